package lsm

import (
	"bytes"
	"fmt"
)

// ConcatIterator walks a list of SSTs known to be disjoint and already
// sorted by key range (an L1+ level), materializing one SsTableIterator at
// a time instead of opening every table up front (spec §7: "lazily creates
// the next table's iterator only once the current one is exhausted").
type ConcatIterator struct {
	tables  []*SortedTable
	tblIdx  int
	current *SsTableIterator
}

// NewConcatIteratorAndSeekToFirst creates an iterator positioned at the
// first entry of tables[0], skipping any leading empty tables.
func NewConcatIteratorAndSeekToFirst(tables []*SortedTable) (*ConcatIterator, error) {
	it := &ConcatIterator{tables: tables}
	if err := it.seekToTable(0, nil); err != nil {
		return nil, err
	}
	return it, nil
}

// NewConcatIteratorAndSeekToKey creates an iterator positioned at the first
// entry with key >= k, opening the first table (in order) whose last key
// is >= k.
func NewConcatIteratorAndSeekToKey(tables []*SortedTable, k []byte) (*ConcatIterator, error) {
	it := &ConcatIterator{tables: tables}
	idx := it.findTableIdx(k)
	if err := it.seekToTable(idx, k); err != nil {
		return nil, err
	}
	return it, nil
}

// findTableIdx returns the index of the first table whose last key is >= k.
func (it *ConcatIterator) findTableIdx(k []byte) int {
	for i, t := range it.tables {
		if bytes.Compare(t.LastKey(), k) >= 0 {
			return i
		}
	}
	return len(it.tables)
}

// seekToTable opens tables[idx] (seeking to key k if non-nil, else to its
// first entry), skipping forward through any tables that end up empty.
func (it *ConcatIterator) seekToTable(idx int, k []byte) error {
	for idx < len(it.tables) {
		var sub *SsTableIterator
		var err error
		if k != nil {
			sub, err = NewSsTableIteratorAndSeekToKey(it.tables[idx], k)
		} else {
			sub, err = NewSsTableIteratorAndSeekToFirst(it.tables[idx])
		}
		if err != nil {
			return fmt.Errorf("concat iterator: open table %d: %w", it.tables[idx].ID, err)
		}
		if sub.IsValid() {
			it.tblIdx = idx
			it.current = sub
			return nil
		}
		idx++
	}
	it.tblIdx = len(it.tables)
	it.current = nil
	return nil
}

// IsValid reports whether the iterator is positioned at an entry.
func (it *ConcatIterator) IsValid() bool {
	return it.current != nil && it.current.IsValid()
}

// Key returns the current entry's key.
func (it *ConcatIterator) Key() []byte { return it.current.Key() }

// Value returns the current entry's value.
func (it *ConcatIterator) Value() []byte { return it.current.Value() }

// Next advances within the current table, rolling to the next table when
// exhausted.
func (it *ConcatIterator) Next() error {
	if it.current == nil {
		return nil
	}
	if err := it.current.Next(); err != nil {
		return err
	}
	if it.current.IsValid() {
		return nil
	}
	return it.seekToTable(it.tblIdx+1, nil)
}
