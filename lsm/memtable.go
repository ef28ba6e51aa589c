package lsm

import (
	"bytes"
	"fmt"
	"sync/atomic"

	"github.com/zhangyunhao116/skipmap"
)

// MemTable is the active (or a frozen) in-memory table backing writes
// before they are flushed to an SST (spec §2, §4.4). The skip list gives
// lock-free sorted reads concurrent with writers, matching how the spec
// describes the memtable as "a concurrent sorted map".
type MemTable struct {
	id  uint32
	skl *skipmap.FuncMap[[]byte, []byte]
	wal *WAL // nil when the engine runs with WAL disabled

	approximateSize atomic.Int64
}

func lessBytes(a, b []byte) bool { return bytes.Compare(a, b) < 0 }

// NewMemTable creates an empty memtable with no WAL.
func NewMemTable(id uint32) *MemTable {
	return &MemTable{id: id, skl: skipmap.NewFunc[[]byte, []byte](lessBytes)}
}

// CreateMemTableWithWAL creates an empty memtable whose writes are also
// appended to a new WAL file at walPath.
func CreateMemTableWithWAL(id uint32, walPath string) (*MemTable, error) {
	wal, err := CreateWAL(walPath)
	if err != nil {
		return nil, fmt.Errorf("create memtable %d: %w", id, err)
	}
	return &MemTable{id: id, skl: skipmap.NewFunc[[]byte, []byte](lessBytes), wal: wal}, nil
}

// RecoverMemTableFromWAL rebuilds a memtable by replaying an existing WAL.
func RecoverMemTableFromWAL(id uint32, walPath string) (*MemTable, error) {
	skl := skipmap.NewFunc[[]byte, []byte](lessBytes)
	wal, err := RecoverWAL(walPath, skl)
	if err != nil {
		return nil, fmt.Errorf("recover memtable %d: %w", id, err)
	}
	m := &MemTable{id: id, skl: skl, wal: wal}
	skl.Range(func(key []byte, value []byte) bool {
		m.approximateSize.Add(int64(len(key) + len(value)))
		return true
	})
	return m, nil
}

// ID returns the memtable's SST-space identifier, assigned when it is
// created and kept as its eventual flushed SST's ID (spec §4.4).
func (m *MemTable) ID() uint32 { return m.id }

// Put inserts key=value, replacing any previous value for key. An empty
// value is stored verbatim; callers wanting a tombstone use Delete.
func (m *MemTable) Put(key, value []byte) error {
	if m.wal != nil {
		if err := m.wal.Put(key, value); err != nil {
			return fmt.Errorf("memtable %d put: %w", m.id, err)
		}
	}
	old, existed := m.skl.Load(key)
	m.skl.Store(key, value)
	if existed {
		m.approximateSize.Add(int64(len(value) - len(old)))
	} else {
		m.approximateSize.Add(int64(len(key) + len(value)))
	}
	return nil
}

// Delete writes a tombstone for key (spec §2: "a delete is a put of an
// empty value").
func (m *MemTable) Delete(key []byte) error {
	return m.Put(key, []byte{})
}

// Get returns the raw stored value for key (possibly empty, meaning a
// tombstone) and whether key is present at all.
func (m *MemTable) Get(key []byte) ([]byte, bool) {
	return m.skl.Load(key)
}

// ApproximateSize returns a running estimate of the memtable's byte size,
// used to decide when to freeze it (spec §4.4, §9).
func (m *MemTable) ApproximateSize() int64 {
	return m.approximateSize.Load()
}

// IsEmpty reports whether the memtable holds no entries.
func (m *MemTable) IsEmpty() bool {
	return m.skl.Len() == 0
}

// SyncWAL forces the memtable's WAL, if any, to stable storage.
func (m *MemTable) SyncWAL() error {
	if m.wal == nil {
		return nil
	}
	return m.wal.Sync()
}

// Close releases the memtable's WAL handle.
func (m *MemTable) Close() error {
	if m.wal == nil {
		return nil
	}
	return m.wal.Close()
}

// Flush writes every entry in key order into builder, producing one SST
// per memtable as spec §4.4 requires.
func (m *MemTable) Flush(builder *SsTableBuilder) {
	m.skl.Range(func(key []byte, value []byte) bool {
		builder.Add(key, value)
		return true
	})
}

// memTableEntry is a point-in-time snapshot record used by MemTableIterator.
type memTableEntry struct {
	key   []byte
	value []byte
}

// MemTableIterator walks a consistent snapshot of the memtable taken at
// Scan time, bounded by lower and upper. Snapshotting avoids holding the
// skip list's internal structure live across a long-running scan.
type MemTableIterator struct {
	entries []memTableEntry
	pos     int
}

// Scan returns an iterator over entries between lower and upper, each bound
// applied with its own kind.
func (m *MemTable) Scan(lower, upper Bound) *MemTableIterator {
	var entries []memTableEntry
	m.skl.Range(func(key []byte, value []byte) bool {
		if lower.SatisfiesLower(key) && upper.SatisfiesUpper(key) {
			entries = append(entries, memTableEntry{key: append([]byte(nil), key...), value: append([]byte{}, value...)})
		}
		return true
	})
	return &MemTableIterator{entries: entries}
}

// IsValid reports whether the iterator is positioned at an entry.
func (it *MemTableIterator) IsValid() bool { return it.pos < len(it.entries) }

// Key returns the current entry's key.
func (it *MemTableIterator) Key() []byte { return it.entries[it.pos].key }

// Value returns the current entry's value (empty means a tombstone).
func (it *MemTableIterator) Value() []byte { return it.entries[it.pos].value }

// Next advances the iterator.
func (it *MemTableIterator) Next() error {
	it.pos++
	return nil
}
