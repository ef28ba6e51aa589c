package lsm

import "fmt"

// LsmIterator wraps the merged view of every source (memtables, L0, levels)
// and applies the two policies a raw merge can't: skip tombstones (empty
// values) and stop once the scan's upper bound is passed (spec §7).
type LsmIterator struct {
	inner StorageIterator
	upper Bound
	valid bool
}

// NewLsmIterator wraps inner, advancing past any leading tombstones or
// out-of-range entries.
func NewLsmIterator(inner StorageIterator, upper Bound) (*LsmIterator, error) {
	it := &LsmIterator{inner: inner, upper: upper}
	if err := it.skipDeletedAndOutOfRange(); err != nil {
		return nil, err
	}
	return it, nil
}

func (it *LsmIterator) skipDeletedAndOutOfRange() error {
	for it.inner.IsValid() {
		if !it.upper.SatisfiesUpper(it.inner.Key()) {
			it.valid = false
			return nil
		}
		if len(it.inner.Value()) != 0 {
			it.valid = true
			return nil
		}
		if err := it.inner.Next(); err != nil {
			return err
		}
	}
	it.valid = false
	return nil
}

// IsValid reports whether the iterator is positioned at a live entry.
func (it *LsmIterator) IsValid() bool { return it.valid }

// Key returns the current entry's key.
func (it *LsmIterator) Key() []byte { return it.inner.Key() }

// Value returns the current entry's value. Never empty: tombstones are
// filtered out by construction.
func (it *LsmIterator) Value() []byte { return it.inner.Value() }

// Next advances past the current entry to the next live, in-range one.
func (it *LsmIterator) Next() error {
	if !it.valid {
		return nil
	}
	if err := it.inner.Next(); err != nil {
		return err
	}
	return it.skipDeletedAndOutOfRange()
}

// FusedIterator wraps any StorageIterator so that once it reports invalid
// or errors, it stays invalid forever rather than risking undefined
// behavior from calling Next again (spec §7). It also pins every on-disk
// table the scan touches for its lifetime, so a compaction racing the scan
// can't close a file out from under it (spec §5); Close releases those
// pins and is called automatically once the scan is exhausted.
type FusedIterator struct {
	inner   StorageIterator
	errored bool
	tables  []*SortedTable
	closed  bool
}

// NewFusedIterator wraps inner, pinning tables (already acquired by the
// caller) for release on Close or on natural exhaustion.
func NewFusedIterator(inner StorageIterator, tables []*SortedTable) *FusedIterator {
	it := &FusedIterator{inner: inner, tables: tables}
	if !inner.IsValid() {
		it.Close()
	}
	return it
}

// Close releases every table pinned by this scan. Safe to call more than
// once or after natural exhaustion already released them.
func (it *FusedIterator) Close() error {
	if it.closed {
		return nil
	}
	it.closed = true
	var firstErr error
	for _, t := range it.tables {
		if err := t.release(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// IsValid reports whether the iterator is positioned at an entry and has
// not latched into the errored state.
func (it *FusedIterator) IsValid() bool {
	return !it.errored && it.inner.IsValid()
}

// Key returns the current entry's key.
func (it *FusedIterator) Key() []byte { return it.inner.Key() }

// Value returns the current entry's value.
func (it *FusedIterator) Value() []byte { return it.inner.Value() }

// Next advances the inner iterator, latching the fused iterator invalid
// forever if it errors or if called while already invalid. Releases the
// scan's pinned tables as soon as it runs out of entries.
func (it *FusedIterator) Next() error {
	if it.errored {
		return fmt.Errorf("fused iterator: next called after error")
	}
	if !it.inner.IsValid() {
		it.Close()
		return nil
	}
	if err := it.inner.Next(); err != nil {
		it.errored = true
		it.Close()
		return err
	}
	if !it.inner.IsValid() {
		it.Close()
	}
	return nil
}
