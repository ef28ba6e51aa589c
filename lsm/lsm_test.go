package lsm

import (
	"fmt"
	"os"
	"sync"
	"testing"
	"time"
)

func tmpDir(name string) string {
	return fmt.Sprintf("/tmp/lsm-test-%s-%d", name, time.Now().UnixNano())
}

func TestBasicOperations(t *testing.T) {
	dir := tmpDir("basic")
	defer os.RemoveAll(dir)

	engine, err := Open(dir, DefaultOptions())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer engine.Close()

	if err := engine.Put([]byte("key1"), []byte("value1")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	value, found, err := engine.Get([]byte("key1"))
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !found {
		t.Fatal("expected key1 to be found")
	}
	if string(value) != "value1" {
		t.Fatalf("expected value1, got %s", value)
	}

	_, found, err = engine.Get([]byte("missing"))
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if found {
		t.Fatal("expected missing key to not be found")
	}
}

func TestDelete(t *testing.T) {
	dir := tmpDir("delete")
	defer os.RemoveAll(dir)

	engine, err := Open(dir, DefaultOptions())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer engine.Close()

	engine.Put([]byte("key1"), []byte("value1"))
	if err := engine.Delete([]byte("key1")); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	_, found, err := engine.Get([]byte("key1"))
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if found {
		t.Fatal("expected key1 to be gone after delete")
	}
}

func TestUpdate(t *testing.T) {
	dir := tmpDir("update")
	defer os.RemoveAll(dir)

	engine, err := Open(dir, DefaultOptions())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer engine.Close()

	engine.Put([]byte("key1"), []byte("v1"))
	engine.Put([]byte("key1"), []byte("v2"))

	value, found, err := engine.Get([]byte("key1"))
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !found {
		t.Fatal("expected key1 to be found")
	}
	if string(value) != "v2" {
		t.Fatalf("expected v2, got %s", value)
	}
}

func TestMemtableFlush(t *testing.T) {
	dir := tmpDir("flush")
	defer os.RemoveAll(dir)

	opts := DefaultOptions()
	opts.TargetSstSize = 1024
	opts.NumMemtableLimit = 2

	engine, err := Open(dir, opts)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer engine.Close()

	for i := 0; i < 200; i++ {
		key := []byte(fmt.Sprintf("key%010d", i))
		value := []byte(fmt.Sprintf("value%010d", i))
		if err := engine.Put(key, value); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}

	time.Sleep(300 * time.Millisecond)

	state := engine.state.Load()
	t.Logf("L0 tables after flush: %d", len(state.L0SSTables))
	if len(state.L0SSTables) == 0 {
		t.Fatal("expected at least one L0 table after forcing memtable flushes")
	}

	for i := 0; i < 200; i++ {
		key := []byte(fmt.Sprintf("key%010d", i))
		expected := fmt.Sprintf("value%010d", i)
		value, found, err := engine.Get(key)
		if err != nil {
			t.Fatalf("Get failed for %s: %v", key, err)
		}
		if !found {
			t.Fatalf("key %s not found after flush", key)
		}
		if string(value) != expected {
			t.Fatalf("key %s: expected %s, got %s", key, expected, value)
		}
	}
}

func levelByLabelOrEmpty(levels []Level, label int) []uint32 {
	if l := levelByLabel(levels, label); l != nil {
		return l.SSTs
	}
	return nil
}

func TestL0Compaction(t *testing.T) {
	dir := tmpDir("l0compaction")
	defer os.RemoveAll(dir)

	opts := DefaultSimpleLeveledOptions()
	opts.TargetSstSize = 1024
	opts.NumMemtableLimit = 1
	opts.CompactionOptions.Simple.Level0FileNumCompactionTrigger = 2

	engine, err := Open(dir, opts)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer engine.Close()

	for i := 0; i < 500; i++ {
		key := []byte(fmt.Sprintf("key%010d", i))
		value := []byte(fmt.Sprintf("value%010d", i))
		engine.Put(key, value)
	}

	time.Sleep(700 * time.Millisecond)

	state := engine.state.Load()
	t.Logf("L0: %d, L1: %d", len(state.L0SSTables), len(levelByLabelOrEmpty(state.Levels, 1)))

	for i := 0; i < 500; i++ {
		key := []byte(fmt.Sprintf("key%010d", i))
		expected := fmt.Sprintf("value%010d", i)
		value, found, err := engine.Get(key)
		if err != nil {
			t.Fatalf("Get failed for %s: %v", key, err)
		}
		if !found {
			t.Fatalf("key %s not found after compaction", key)
		}
		if string(value) != expected {
			t.Fatalf("key %s: expected %s, got %s", key, expected, value)
		}
	}
}

func TestRangeScan(t *testing.T) {
	dir := tmpDir("rangescan")
	defer os.RemoveAll(dir)

	engine, err := Open(dir, DefaultOptions())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer engine.Close()

	for i := 0; i < 100; i++ {
		key := []byte(fmt.Sprintf("key%010d", i))
		value := []byte(fmt.Sprintf("value%010d", i))
		engine.Put(key, value)
	}

	it, err := engine.Scan(IncludedBound([]byte("key0000000010")), ExcludedBound([]byte("key0000000020")))
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	count := 0
	for it.IsValid() {
		expected := fmt.Sprintf("key%010d", 10+count)
		if string(it.Key()) != expected {
			t.Fatalf("expected key %s, got %s", expected, it.Key())
		}
		count++
		if err := it.Next(); err != nil {
			t.Fatalf("Next failed: %v", err)
		}
	}
	if count != 10 {
		t.Fatalf("expected 10 keys in range, got %d", count)
	}
}

func TestTombstones(t *testing.T) {
	dir := tmpDir("tombstones")
	defer os.RemoveAll(dir)

	opts := DefaultOptions()
	opts.TargetSstSize = 1024

	engine, err := Open(dir, opts)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer engine.Close()

	for i := 0; i < 100; i++ {
		key := []byte(fmt.Sprintf("key%010d", i))
		value := []byte(fmt.Sprintf("value%010d", i))
		engine.Put(key, value)
	}

	time.Sleep(200 * time.Millisecond)

	for i := 0; i < 50; i++ {
		key := []byte(fmt.Sprintf("key%010d", i))
		engine.Delete(key)
	}

	time.Sleep(200 * time.Millisecond)

	for i := 0; i < 100; i++ {
		key := []byte(fmt.Sprintf("key%010d", i))
		_, found, err := engine.Get(key)
		if err != nil {
			t.Fatalf("Get failed for %s: %v", key, err)
		}
		if i < 50 && found {
			t.Fatalf("key %s should have been deleted", key)
		}
		if i >= 50 && !found {
			t.Fatalf("key %s should still be present", key)
		}
	}

	it, err := engine.Scan(UnboundedBound(), UnboundedBound())
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	count := 0
	for it.IsValid() {
		count++
		if err := it.Next(); err != nil {
			t.Fatalf("Next failed: %v", err)
		}
	}
	if count != 50 {
		t.Fatalf("expected 50 live keys after deletes, got %d", count)
	}
}

func TestConcurrentWrites(t *testing.T) {
	dir := tmpDir("concurrent")
	defer os.RemoveAll(dir)

	engine, err := Open(dir, DefaultOptions())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer engine.Close()

	var wg sync.WaitGroup
	numWorkers := 8
	keysPerWorker := 100

	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for i := 0; i < keysPerWorker; i++ {
				key := []byte(fmt.Sprintf("worker%02d-key%05d", worker, i))
				value := []byte(fmt.Sprintf("value%05d", i))
				if err := engine.Put(key, value); err != nil {
					t.Errorf("Put failed: %v", err)
				}
			}
		}(w)
	}
	wg.Wait()

	for w := 0; w < numWorkers; w++ {
		for i := 0; i < keysPerWorker; i++ {
			key := []byte(fmt.Sprintf("worker%02d-key%05d", w, i))
			expected := fmt.Sprintf("value%05d", i)
			value, found, err := engine.Get(key)
			if err != nil {
				t.Fatalf("Get failed for %s: %v", key, err)
			}
			if !found {
				t.Fatalf("key %s not found", key)
			}
			if string(value) != expected {
				t.Fatalf("key %s: expected %s, got %s", key, expected, value)
			}
		}
	}
}

func TestCompactionFilter(t *testing.T) {
	dir := tmpDir("filter")
	defer os.RemoveAll(dir)

	engine, err := Open(dir, DefaultOptions())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer engine.Close()

	engine.Put([]byte("keep:1"), []byte("a"))
	engine.Put([]byte("drop:1"), []byte("b"))
	engine.Put([]byte("keep:2"), []byte("c"))

	// ForceFullCompaction only merges L0 and L1, so move the keys out of the
	// memtable and into L0 first.
	if err := engine.ForceFreezeMemtable(); err != nil {
		t.Fatalf("ForceFreezeMemtable failed: %v", err)
	}
	if err := engine.ForceFlushNextImmMemtable(); err != nil {
		t.Fatalf("ForceFlushNextImmMemtable failed: %v", err)
	}

	engine.AddCompactionFilter([]byte("drop:"))

	if err := engine.ForceFullCompaction(); err != nil {
		t.Fatalf("ForceFullCompaction failed: %v", err)
	}

	_, found, err := engine.Get([]byte("drop:1"))
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if found {
		t.Fatal("expected drop:1 to be filtered out by compaction")
	}

	for _, k := range []string{"keep:1", "keep:2"} {
		_, found, err := engine.Get([]byte(k))
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if !found {
			t.Fatalf("expected %s to survive compaction", k)
		}
	}
}
