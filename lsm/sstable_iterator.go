package lsm

// SsTableIterator scans a single SST forward, reading blocks through the
// shared block cache on demand (spec §4.2, §7).
type SsTableIterator struct {
	table    *SortedTable
	blockIdx int
	blockIt  *BlockIterator
}

// NewSsTableIteratorAndSeekToFirst creates an iterator positioned at the
// table's first entry.
func NewSsTableIteratorAndSeekToFirst(table *SortedTable) (*SsTableIterator, error) {
	it := &SsTableIterator{table: table}
	if err := it.seekToBlock(0); err != nil {
		return nil, err
	}
	if it.blockIt != nil {
		it.blockIt.SeekToFirst()
	}
	return it, nil
}

// NewSsTableIteratorAndSeekToKey creates an iterator positioned at the
// first entry with key >= k.
func NewSsTableIteratorAndSeekToKey(table *SortedTable, k []byte) (*SsTableIterator, error) {
	it := &SsTableIterator{table: table}
	if err := it.SeekToKey(k); err != nil {
		return nil, err
	}
	return it, nil
}

func (it *SsTableIterator) seekToBlock(idx int) error {
	if idx >= it.table.NumBlocks() {
		it.blockIt = nil
		it.blockIdx = idx
		return nil
	}
	block, err := it.table.ReadBlockCached(idx)
	if err != nil {
		return err
	}
	it.blockIdx = idx
	it.blockIt = NewBlockIterator(block)
	return nil
}

// SeekToKey repositions the iterator at the first entry with key >= k,
// rolling into the next block if k falls past the end of the one found by
// the SST's block index.
func (it *SsTableIterator) SeekToKey(k []byte) error {
	idx := it.table.FindBlockIdx(k)
	if err := it.seekToBlock(idx); err != nil {
		return err
	}
	if it.blockIt == nil {
		return nil
	}
	it.blockIt.SeekToKey(k)
	if !it.blockIt.IsValid() {
		if err := it.seekToBlock(idx + 1); err != nil {
			return err
		}
		if it.blockIt != nil {
			it.blockIt.SeekToFirst()
		}
	}
	return nil
}

// IsValid reports whether the iterator is positioned at an entry.
func (it *SsTableIterator) IsValid() bool {
	return it.blockIt != nil && it.blockIt.IsValid()
}

// Key returns the current entry's key.
func (it *SsTableIterator) Key() []byte { return it.blockIt.Key() }

// Value returns the current entry's value.
func (it *SsTableIterator) Value() []byte { return it.blockIt.Value() }

// Next advances within the current block, rolling to the next block when
// the current one is exhausted.
func (it *SsTableIterator) Next() error {
	if it.blockIt == nil {
		return nil
	}
	if err := it.blockIt.Next(); err != nil {
		return err
	}
	if !it.blockIt.IsValid() {
		if err := it.seekToBlock(it.blockIdx + 1); err != nil {
			return err
		}
		if it.blockIt != nil {
			it.blockIt.SeekToFirst()
		}
	}
	return nil
}
