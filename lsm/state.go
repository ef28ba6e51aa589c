package lsm

import (
	"os"
	"path/filepath"
	"sync"
)

// Level pairs a level label with the (disjoint, sorted) SST ids it holds.
// Labels start at 1; L0 is tracked separately since its tables may overlap
// (spec §2, §4.5).
type Level struct {
	Label int
	SSTs  []uint32
}

// LsmState is an immutable snapshot of the engine's entire SST topology
// plus its in-memory tables. Mutations never edit a published LsmState in
// place; they build a new one and swap it in under stateLock, so readers
// holding an old snapshot keep working against consistent data even while
// a flush or compaction runs concurrently (spec §5: "copy-on-write state
// publication").
type LsmState struct {
	Memtable        *MemTable
	ImmMemtables    []*MemTable // newest first
	L0SSTables      []uint32    // newest first
	Levels          []Level
	SST             map[uint32]*SortedTable
}

// snapshot returns a shallow copy of s: new top-level slices/map, same
// element pointers. Callers mutate the copy, then publish it.
func (s *LsmState) snapshot() *LsmState {
	cp := &LsmState{
		Memtable: s.Memtable,
		SST:      make(map[uint32]*SortedTable, len(s.SST)),
	}
	cp.ImmMemtables = append(cp.ImmMemtables, s.ImmMemtables...)
	cp.L0SSTables = append(cp.L0SSTables, s.L0SSTables...)
	for _, lvl := range s.Levels {
		cp.Levels = append(cp.Levels, Level{Label: lvl.Label, SSTs: append([]uint32(nil), lvl.SSTs...)})
	}
	for id, t := range s.SST {
		cp.SST[id] = t
	}
	return cp
}

// stateHolder publishes LsmState snapshots behind an RWMutex, giving
// readers a cheap, consistent view (RLock, grab pointer, RUnlock) while
// writers serialize structural edits through a separate lock (spec §5).
type stateHolder struct {
	mu    sync.RWMutex
	state *LsmState
}

func newStateHolder(initial *LsmState) *stateHolder {
	return &stateHolder{state: initial}
}

// Load returns the currently published snapshot.
func (h *stateHolder) Load() *LsmState {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state
}

// Publish installs a new snapshot, replacing whatever was there.
func (h *stateHolder) Publish(next *LsmState) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.state = next
}

// syncDir fsyncs the parent directory of path, the step POSIX requires
// after creating or renaming a file so the directory entry itself survives
// a crash, not just the file's contents.
func syncDir(path string) error {
	dir := filepath.Dir(path)
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}
