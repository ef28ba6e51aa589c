package main

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/crystaldb/lsmkv/lsm"
)

func main() {
	fmt.Println(strings.Repeat("=", 80))
	fmt.Println("LSM-Tree Storage Engine Demo")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Println()

	demoLSM()
}

func demoLSM() {
	dir, err := os.MkdirTemp("", "lsmkv-demo-*")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(dir)

	db, err := lsm.Open(dir, lsm.DefaultSimpleLeveledOptions())
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	fmt.Println("✓ Opened LSM-Tree storage engine at", dir)

	fmt.Println("\n[Writing data]")
	testData := map[string]string{
		"user:1001":   `{"name": "Alice", "age": 30, "city": "NYC"}`,
		"user:1002":   `{"name": "Bob", "age": 25, "city": "SF"}`,
		"user:1003":   `{"name": "Charlie", "age": 35, "city": "LA"}`,
		"product:101": `{"name": "Laptop", "price": 999.99}`,
		"product:102": `{"name": "Mouse", "price": 29.99}`,
	}
	for key, value := range testData {
		if err := db.Put([]byte(key), []byte(value)); err != nil {
			log.Printf("Error writing %s: %v", key, err)
			continue
		}
		fmt.Printf("  PUT %s\n", key)
	}

	fmt.Println("\n[Reading data]")
	for key := range testData {
		value, found, err := db.Get([]byte(key))
		switch {
		case err != nil:
			log.Printf("Error reading %s: %v", key, err)
		case !found:
			log.Printf("Key not found: %s", key)
		default:
			fmt.Printf("  GET %s -> %s\n", key, truncate(string(value), 40))
		}
	}

	fmt.Println("\n[Updating data]")
	db.Put([]byte("user:1001"), []byte(`{"name": "Alice Updated", "age": 31, "city": "NYC"}`))
	fmt.Println("  PUT user:1001 (updated)")
	if name, found, _ := db.Get([]byte("user:1001")); found {
		fmt.Printf("  GET user:1001 -> %s\n", truncate(string(name), 50))
	}

	fmt.Println("\n[Deleting data]")
	db.Delete([]byte("product:102"))
	fmt.Println("  DELETE product:102")
	if _, found, _ := db.Get([]byte("product:102")); !found {
		fmt.Println("  GET product:102 -> Key not found (as expected)")
	}

	fmt.Println("\n[Range scans]")
	fmt.Println("1. Prefix scan (user:*):")
	scanPrefix(db, "user:")

	fmt.Println("\n2. Prefix scan (product:*):")
	scanPrefix(db, "product:")

	fmt.Println("\n3. Full scan (sorted order):")
	full, err := db.Scan(lsm.UnboundedBound(), lsm.UnboundedBound())
	if err != nil {
		log.Fatal(err)
	}
	defer full.Close()
	count := 0
	for full.IsValid() {
		fmt.Printf("   %s -> %s\n", full.Key(), truncate(string(full.Value()), 40))
		count++
		if err := full.Next(); err != nil {
			log.Fatal(err)
		}
	}
	fmt.Printf("   Total: %d keys\n", count)

	fmt.Println("\n[Forcing a full compaction]")
	if err := db.ForceFullCompaction(); err != nil {
		log.Printf("compaction failed: %v", err)
	} else {
		fmt.Println("  Compaction complete")
	}

	fmt.Println("\n[Statistics]")
	stats := db.Stats()
	fmt.Printf("  Keys: %d\n", stats.NumKeys)
	fmt.Printf("  Segments: %d\n", stats.NumSegments)
	fmt.Printf("  Disk Usage: %.2f KB\n", float64(stats.TotalDiskSize)/1024)
	fmt.Printf("  Write Amplification: %.2fx\n", stats.WriteAmp)
	fmt.Printf("  Space Amplification: %.2fx\n", stats.SpaceAmp)
}

func scanPrefix(db *lsm.Engine, prefix string) {
	upper := prefixUpperBound(prefix)
	it, err := db.Scan(lsm.IncludedBound([]byte(prefix)), upper)
	if err != nil {
		log.Fatal(err)
	}
	defer it.Close()
	count := 0
	for it.IsValid() {
		fmt.Printf("   %s -> %s\n", it.Key(), truncate(string(it.Value()), 40))
		count++
		if err := it.Next(); err != nil {
			log.Fatal(err)
		}
	}
	fmt.Printf("   Found %d keys\n", count)
}

// prefixUpperBound returns an excluded bound one past every key sharing
// prefix, by incrementing its last byte.
func prefixUpperBound(prefix string) lsm.Bound {
	b := []byte(prefix)
	end := append([]byte(nil), b...)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return lsm.ExcludedBound(end[:i+1])
		}
	}
	return lsm.UnboundedBound()
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
