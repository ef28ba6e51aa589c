package lsm

import (
	"fmt"
	"os"
	"testing"
	"time"
)

func TestPersistenceAcrossRestart(t *testing.T) {
	dir := tmpDir("restart")
	defer os.RemoveAll(dir)

	opts := DefaultOptions()
	opts.TargetSstSize = 1024

	engine, err := Open(dir, opts)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	for i := 0; i < 200; i++ {
		key := []byte(fmt.Sprintf("key%010d", i))
		value := []byte(fmt.Sprintf("value%010d", i))
		if err := engine.Put(key, value); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}

	time.Sleep(300 * time.Millisecond)

	if err := engine.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := Open(dir, opts)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	for i := 0; i < 200; i++ {
		key := []byte(fmt.Sprintf("key%010d", i))
		expected := fmt.Sprintf("value%010d", i)
		value, found, err := reopened.Get(key)
		if err != nil {
			t.Fatalf("Get failed for %s: %v", key, err)
		}
		if !found {
			t.Fatalf("key %s missing after reopen", key)
		}
		if string(value) != expected {
			t.Fatalf("key %s: expected %s, got %s", key, expected, value)
		}
	}
}

func TestCrashRecovery(t *testing.T) {
	dir := tmpDir("crash")
	defer os.RemoveAll(dir)

	opts := DefaultOptions()
	opts.EnableWAL = true

	engine, err := Open(dir, opts)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	for i := 0; i < 50; i++ {
		key := []byte(fmt.Sprintf("key%010d", i))
		value := []byte(fmt.Sprintf("value%010d", i))
		if err := engine.Put(key, value); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}

	// Simulate a crash: abandon the engine without running its
	// flush-everything Close path, leaving the active memtable's WAL as
	// the only record of these writes.

	reopened, err := Open(dir, opts)
	if err != nil {
		t.Fatalf("reopen after crash failed: %v", err)
	}
	defer reopened.Close()

	for i := 0; i < 50; i++ {
		key := []byte(fmt.Sprintf("key%010d", i))
		expected := fmt.Sprintf("value%010d", i)
		value, found, err := reopened.Get(key)
		if err != nil {
			t.Fatalf("Get failed for %s: %v", key, err)
		}
		if !found {
			t.Fatalf("key %s lost on crash recovery", key)
		}
		if string(value) != expected {
			t.Fatalf("key %s: expected %s, got %s", key, expected, value)
		}
	}
}

func TestCompactionPreservesData(t *testing.T) {
	dir := tmpDir("compactpreserve")
	defer os.RemoveAll(dir)

	opts := DefaultOptions()
	opts.TargetSstSize = 2048

	engine, err := Open(dir, opts)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer engine.Close()

	total := 1000
	for i := 0; i < total; i++ {
		key := []byte(fmt.Sprintf("key%010d", i))
		value := []byte(fmt.Sprintf("value%010d", i))
		engine.Put(key, value)
	}

	time.Sleep(300 * time.Millisecond)

	if err := engine.ForceFullCompaction(); err != nil {
		t.Fatalf("ForceFullCompaction failed: %v", err)
	}

	for i := 0; i < total; i++ {
		key := []byte(fmt.Sprintf("key%010d", i))
		expected := fmt.Sprintf("value%010d", i)
		value, found, err := engine.Get(key)
		if err != nil {
			t.Fatalf("Get failed for %s: %v", key, err)
		}
		if !found {
			t.Fatalf("key %s lost during compaction", key)
		}
		if string(value) != expected {
			t.Fatalf("key %s: expected %s, got %s", key, expected, value)
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
	if count != total {
		t.Fatalf("expected %d keys after compaction, got %d", total, count)
	}
}

func TestUpdatesDuringCompaction(t *testing.T) {
	dir := tmpDir("updateduringcompaction")
	defer os.RemoveAll(dir)

	opts := DefaultOptions()
	opts.TargetSstSize = 1024

	engine, err := Open(dir, opts)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer engine.Close()

	for i := 0; i < 200; i++ {
		key := []byte(fmt.Sprintf("key%010d", i))
		value := []byte("v1")
		engine.Put(key, value)
	}
	time.Sleep(200 * time.Millisecond)

	if err := engine.ForceFullCompaction(); err != nil {
		t.Fatalf("first compaction failed: %v", err)
	}

	for i := 0; i < 200; i++ {
		key := []byte(fmt.Sprintf("key%010d", i))
		engine.Put(key, []byte("v2"))
	}
	time.Sleep(200 * time.Millisecond)

	if err := engine.ForceFullCompaction(); err != nil {
		t.Fatalf("second compaction failed: %v", err)
	}

	for i := 0; i < 200; i++ {
		key := []byte(fmt.Sprintf("key%010d", i))
		value, found, err := engine.Get(key)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if !found {
			t.Fatalf("key %s missing after update+compaction", key)
		}
		if string(value) != "v2" {
			t.Fatalf("key %s: expected v2 (newest write) after compaction, got %s", key, value)
		}
	}
}

func TestBloomFilterEffectiveness(t *testing.T) {
	numKeys := 10000
	bf := NewBloomFilter(numKeys, 0.01)

	present := make([][]byte, numKeys)
	for i := 0; i < numKeys; i++ {
		key := []byte(fmt.Sprintf("key%010d", i))
		present[i] = key
		bf.Add(key)
	}

	for _, key := range present {
		if !bf.MayContain(key) {
			t.Fatalf("bloom filter false negative for %s", key)
		}
	}

	falsePositives := 0
	numAbsent := 10000
	for i := 0; i < numAbsent; i++ {
		key := []byte(fmt.Sprintf("absent%010d", i))
		if bf.MayContain(key) {
			falsePositives++
		}
	}

	rate := float64(falsePositives) / float64(numAbsent)
	t.Logf("false positive rate: %.4f (target 0.01)", rate)
	if rate > 0.05 {
		t.Fatalf("false positive rate too high: %.4f", rate)
	}
}
