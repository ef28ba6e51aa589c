package lsm

import "bytes"

// BlockIterator scans a single block forward. Validity is tracked by the
// entry index: -1 (or past the last entry) means the iterator is invalid.
type BlockIterator struct {
	block     *Block
	key       []byte
	valBegin  int
	valEnd    int
	entryIdx  int
}

// NewBlockIterator creates an iterator over block, initially invalid.
func NewBlockIterator(block *Block) *BlockIterator {
	return &BlockIterator{block: block, entryIdx: -1}
}

// SeekToFirst positions the iterator at entry 0.
func (it *BlockIterator) SeekToFirst() {
	it.seekTo(0)
}

func (it *BlockIterator) seekTo(idx int) {
	if idx >= it.block.NumEntries() {
		it.invalidate()
		return
	}
	key, value, valueEnd, err := it.block.entryAt(it.block.offsets[idx])
	if err != nil {
		it.invalidate()
		return
	}
	it.key = key
	begin := valueEnd - uint16(len(value))
	it.valBegin = int(begin)
	it.valEnd = int(valueEnd)
	it.entryIdx = idx
}

func (it *BlockIterator) invalidate() {
	it.key = nil
	it.entryIdx = -1
}

// IsValid reports whether the iterator is positioned at an entry.
func (it *BlockIterator) IsValid() bool {
	return it.entryIdx >= 0 && it.entryIdx < it.block.NumEntries()
}

// Key returns the current key. Defined only when IsValid.
func (it *BlockIterator) Key() []byte {
	return it.key
}

// Value returns the current value. Defined only when IsValid.
func (it *BlockIterator) Value() []byte {
	return it.block.data[it.valBegin:it.valEnd]
}

// Next advances to the next entry, located through the block's offset table.
func (it *BlockIterator) Next() error {
	if !it.IsValid() {
		return nil
	}
	nextIdx := it.entryIdx + 1
	it.seekTo(nextIdx)
	return nil
}

// SeekToKey positions the iterator at the first entry with key >= k.
// Offsets are indexable, so this is done via binary search.
func (it *BlockIterator) SeekToKey(k []byte) {
	n := it.block.NumEntries()
	lo, hi := 0, n
	for lo < hi {
		mid := (lo + hi) / 2
		key, _, _, err := it.block.entryAt(it.block.offsets[mid])
		if err != nil {
			it.invalidate()
			return
		}
		if bytes.Compare(key, k) < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	it.seekTo(lo)
}
