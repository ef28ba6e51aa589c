package lsm

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/crystaldb/lsmkv/common"
)

// SsTableBuilder accumulates sorted key-value pairs into data blocks and
// writes a finished SST to disk (spec §4.3). Keys must be added in strictly
// increasing order; the builder does not itself check this, the same
// contract the teacher's writers place on their callers.
type SsTableBuilder struct {
	blockSize int
	builder   *BlockBuilder
	data      []byte
	metas     []BlockMeta

	firstKey []byte
	lastKey  []byte

	bloom    *BloomFilter
	keyCount int
}

// NewSsTableBuilder creates a builder targeting blockSize-byte data blocks.
func NewSsTableBuilder(blockSize int) *SsTableBuilder {
	return &SsTableBuilder{
		blockSize: blockSize,
		builder:   NewBlockBuilder(blockSize),
	}
}

// Add appends one entry. An empty value represents a tombstone (spec §2).
func (b *SsTableBuilder) Add(key, value []byte) {
	if b.firstKey == nil {
		b.firstKey = append([]byte(nil), key...)
	}
	if b.bloom != nil {
		b.bloom.Add(key)
	}

	if b.builder.Add(key, value) {
		b.lastKey = append([]byte(nil), key...)
		b.keyCount++
		return
	}

	b.sealBlock()
	b.builder.Add(key, value)
	b.lastKey = append([]byte(nil), key...)
	b.keyCount++
}

// sealBlock finishes the current block, appends it to the data region, and
// records its meta entry, then starts a fresh block.
func (b *SsTableBuilder) sealBlock() {
	if b.builder.IsEmpty() {
		return
	}
	block := b.builder.Build()
	offset := uint32(len(b.data))
	b.data = append(b.data, block.Encode()...)

	lastKey := b.lastKeyOfBlock(block)
	b.metas = append(b.metas, BlockMeta{
		Offset:   offset,
		FirstKey: append([]byte(nil), b.builder.FirstKey()...),
		LastKey:  lastKey,
	})

	b.builder = NewBlockBuilder(b.blockSize)
}

// lastKeyOfBlock walks a just-built block to recover its last key, since
// BlockBuilder only tracks the first.
func (b *SsTableBuilder) lastKeyOfBlock(block *Block) []byte {
	it := NewBlockIterator(block)
	it.SeekToFirst()
	var last []byte
	for it.IsValid() {
		last = it.Key()
		it.Next()
	}
	return append([]byte(nil), last...)
}

// EstimatedSize returns the approximate number of bytes written so far,
// used by callers deciding when to stop feeding an SST and roll a new one.
func (b *SsTableBuilder) EstimatedSize() int {
	return len(b.data)
}

// EnableBloom attaches a bloom filter sized for the given false positive
// rate. Must be called before the first Add to cover every key.
func (b *SsTableBuilder) EnableBloom(expectedKeys int, falsePositiveRate float64) {
	b.bloom = NewBloomFilter(expectedKeys, falsePositiveRate)
}

// Build finalizes the SST: seals the trailing block, writes data ‖ meta ‖
// meta_offset to path, fsyncs the file and its parent directory, and
// reopens it read-only through OpenSortedTable.
func (b *SsTableBuilder) Build(id uint32, cache *BlockCache, path string) (*SortedTable, error) {
	b.sealBlock()

	metaOffset := uint32(len(b.data))
	encodedMeta := encodeBlockMeta(b.metas)

	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create sst %d at %s: %w", id, path, err)
	}

	if _, err := file.Write(b.data); err != nil {
		file.Close()
		return nil, fmt.Errorf("write sst %d data: %w", id, err)
	}
	if _, err := file.Write(encodedMeta); err != nil {
		file.Close()
		return nil, fmt.Errorf("write sst %d meta: %w", id, err)
	}
	var footer [4]byte
	binary.LittleEndian.PutUint32(footer[:], metaOffset)
	if _, err := file.Write(footer[:]); err != nil {
		file.Close()
		return nil, fmt.Errorf("write sst %d footer: %w", id, err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return nil, fmt.Errorf("sync sst %d: %w", id, err)
	}
	if err := file.Close(); err != nil {
		return nil, fmt.Errorf("close sst %d after write: %w", id, err)
	}
	if err := syncDir(path); err != nil {
		return nil, fmt.Errorf("sync dir for sst %d: %w", id, err)
	}

	if len(b.metas) == 0 {
		return nil, fmt.Errorf("build sst %d: %w: no entries", id, common.ErrInvariantViolation)
	}

	readFile, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reopen sst %d: %w", id, err)
	}
	table, err := OpenSortedTable(id, readFile, cache)
	if err != nil {
		readFile.Close()
		return nil, fmt.Errorf("reopen sst %d: %w", id, err)
	}
	table.SetBloom(b.bloom)
	return table, nil
}
