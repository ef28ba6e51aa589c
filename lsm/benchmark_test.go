package lsm

import (
	"fmt"
	"math/rand"
	"os"
	"sort"
	"testing"
	"time"
)

func BenchmarkWriteHeavy(b *testing.B) {
	dir := fmt.Sprintf("/tmp/lsm-bench-write-%d", time.Now().UnixNano())
	defer os.RemoveAll(dir)

	engine, err := Open(dir, DefaultOptions())
	if err != nil {
		b.Fatalf("Open failed: %v", err)
	}
	defer engine.Close()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		key := []byte(fmt.Sprintf("key%010d", i))
		value := []byte(fmt.Sprintf("value%010d", i))
		if err := engine.Put(key, value); err != nil {
			b.Fatalf("Put failed: %v", err)
		}
	}
	b.StopTimer()

	duration := b.Elapsed()
	opsPerSec := float64(b.N) / duration.Seconds()
	b.ReportMetric(opsPerSec, "ops/sec")
}

func BenchmarkReadHeavy(b *testing.B) {
	dir := fmt.Sprintf("/tmp/lsm-bench-read-%d", time.Now().UnixNano())
	defer os.RemoveAll(dir)

	engine, err := Open(dir, DefaultOptions())
	if err != nil {
		b.Fatalf("Open failed: %v", err)
	}
	defer engine.Close()

	numKeys := 10000
	for i := 0; i < numKeys; i++ {
		key := []byte(fmt.Sprintf("key%010d", i))
		value := []byte(fmt.Sprintf("value%010d", i))
		engine.Put(key, value)
	}

	time.Sleep(500 * time.Millisecond)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		keyIdx := rand.Intn(numKeys)
		key := []byte(fmt.Sprintf("key%010d", keyIdx))
		engine.Get(key)
	}
	b.StopTimer()

	duration := b.Elapsed()
	opsPerSec := float64(b.N) / duration.Seconds()
	b.ReportMetric(opsPerSec, "ops/sec")
}

func BenchmarkBalanced(b *testing.B) {
	dir := fmt.Sprintf("/tmp/lsm-bench-balanced-%d", time.Now().UnixNano())
	defer os.RemoveAll(dir)

	engine, err := Open(dir, DefaultOptions())
	if err != nil {
		b.Fatalf("Open failed: %v", err)
	}
	defer engine.Close()

	numKeys := 5000
	for i := 0; i < numKeys; i++ {
		key := []byte(fmt.Sprintf("key%010d", i))
		value := []byte(fmt.Sprintf("value%010d", i))
		engine.Put(key, value)
	}

	time.Sleep(300 * time.Millisecond)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if rand.Float32() < 0.5 {
			keyIdx := rand.Intn(numKeys)
			key := []byte(fmt.Sprintf("key%010d", keyIdx))
			engine.Get(key)
		} else {
			keyIdx := rand.Intn(numKeys * 2)
			key := []byte(fmt.Sprintf("key%010d", keyIdx))
			value := []byte(fmt.Sprintf("value%010d", keyIdx))
			engine.Put(key, value)
		}
	}
	b.StopTimer()

	duration := b.Elapsed()
	opsPerSec := float64(b.N) / duration.Seconds()
	b.ReportMetric(opsPerSec, "ops/sec")
}

func BenchmarkWriteThroughput(b *testing.B) {
	benchmarks := []struct {
		name   string
		numOps int
	}{
		{"10K", 10000},
		{"50K", 50000},
		{"100K", 100000},
	}

	for _, bm := range benchmarks {
		b.Run(bm.name, func(b *testing.B) {
			dir := fmt.Sprintf("/tmp/lsm-bench-throughput-%d", time.Now().UnixNano())
			defer os.RemoveAll(dir)

			engine, err := Open(dir, DefaultOptions())
			if err != nil {
				b.Fatalf("Open failed: %v", err)
			}
			defer engine.Close()

			b.ResetTimer()
			start := time.Now()

			for i := 0; i < bm.numOps; i++ {
				key := []byte(fmt.Sprintf("key%010d", i))
				value := []byte(fmt.Sprintf("value%010d", i))
				engine.Put(key, value)
			}

			elapsed := time.Since(start)
			b.StopTimer()

			opsPerSec := float64(bm.numOps) / elapsed.Seconds()
			b.ReportMetric(opsPerSec, "ops/sec")
			b.ReportMetric(elapsed.Seconds()*1000, "ms")
		})
	}
}

func BenchmarkReadLatency(b *testing.B) {
	dir := fmt.Sprintf("/tmp/lsm-bench-latency-%d", time.Now().UnixNano())
	defer os.RemoveAll(dir)

	engine, err := Open(dir, DefaultOptions())
	if err != nil {
		b.Fatalf("Open failed: %v", err)
	}
	defer engine.Close()

	numKeys := 10000
	for i := 0; i < numKeys; i++ {
		key := []byte(fmt.Sprintf("key%010d", i))
		value := []byte(fmt.Sprintf("value%010d", i))
		engine.Put(key, value)
	}

	time.Sleep(500 * time.Millisecond)

	latencies := make([]time.Duration, 1000)

	b.ResetTimer()
	for i := 0; i < 1000; i++ {
		keyIdx := rand.Intn(numKeys)
		key := []byte(fmt.Sprintf("key%010d", keyIdx))

		start := time.Now()
		engine.Get(key)
		latencies[i] = time.Since(start)
	}
	b.StopTimer()

	sort.Slice(latencies, func(i, j int) bool {
		return latencies[i] < latencies[j]
	})

	p50 := latencies[500].Microseconds()
	p95 := latencies[950].Microseconds()
	p99 := latencies[990].Microseconds()

	b.ReportMetric(float64(p50), "p50_µs")
	b.ReportMetric(float64(p95), "p95_µs")
	b.ReportMetric(float64(p99), "p99_µs")
}

func BenchmarkNegativeLookup(b *testing.B) {
	dir := fmt.Sprintf("/tmp/lsm-bench-negative-%d", time.Now().UnixNano())
	defer os.RemoveAll(dir)

	engine, err := Open(dir, DefaultOptions())
	if err != nil {
		b.Fatalf("Open failed: %v", err)
	}
	defer engine.Close()

	numKeys := 10000
	for i := 0; i < numKeys; i++ {
		key := []byte(fmt.Sprintf("key%010d", i))
		value := []byte(fmt.Sprintf("value%010d", i))
		engine.Put(key, value)
	}

	time.Sleep(500 * time.Millisecond)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		key := []byte(fmt.Sprintf("key%010d", numKeys+i))
		_, found, err := engine.Get(key)
		if err != nil {
			b.Fatalf("Get failed: %v", err)
		}
		if found {
			b.Fatalf("non-existent key found")
		}
	}
	b.StopTimer()

	duration := b.Elapsed()
	opsPerSec := float64(b.N) / duration.Seconds()
	b.ReportMetric(opsPerSec, "ops/sec")
}

func BenchmarkUpdateExisting(b *testing.B) {
	dir := fmt.Sprintf("/tmp/lsm-bench-update-%d", time.Now().UnixNano())
	defer os.RemoveAll(dir)

	engine, err := Open(dir, DefaultOptions())
	if err != nil {
		b.Fatalf("Open failed: %v", err)
	}
	defer engine.Close()

	numKeys := 1000
	for i := 0; i < numKeys; i++ {
		key := []byte(fmt.Sprintf("key%010d", i))
		value := []byte(fmt.Sprintf("value%010d", i))
		engine.Put(key, value)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		keyIdx := rand.Intn(numKeys)
		key := []byte(fmt.Sprintf("key%010d", keyIdx))
		value := []byte(fmt.Sprintf("newvalue%010d", i))
		if err := engine.Put(key, value); err != nil {
			b.Fatalf("Put failed: %v", err)
		}
	}
	b.StopTimer()

	duration := b.Elapsed()
	opsPerSec := float64(b.N) / duration.Seconds()
	b.ReportMetric(opsPerSec, "ops/sec")
}

func BenchmarkRangeScan(b *testing.B) {
	dir := fmt.Sprintf("/tmp/lsm-bench-scan-%d", time.Now().UnixNano())
	defer os.RemoveAll(dir)

	engine, err := Open(dir, DefaultOptions())
	if err != nil {
		b.Fatalf("Open failed: %v", err)
	}
	defer engine.Close()

	numKeys := 10000
	for i := 0; i < numKeys; i++ {
		key := []byte(fmt.Sprintf("key%010d", i))
		value := []byte(fmt.Sprintf("value%010d", i))
		engine.Put(key, value)
	}

	time.Sleep(500 * time.Millisecond)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		it, err := engine.Scan(IncludedBound([]byte("key0000000000")), ExcludedBound([]byte("key0000001000")))
		if err != nil {
			b.Fatalf("Scan failed: %v", err)
		}
		for it.IsValid() {
			if err := it.Next(); err != nil {
				b.Fatalf("Next failed: %v", err)
			}
		}
	}
	b.StopTimer()

	duration := b.Elapsed()
	opsPerSec := float64(b.N) / duration.Seconds()
	b.ReportMetric(opsPerSec, "scans/sec")
}
