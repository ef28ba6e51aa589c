package lsm

import (
	"encoding/binary"
	"fmt"

	"github.com/crystaldb/lsmkv/common"
)

// Block holds a fixed-size page of sorted key-value entries plus an offset
// index, decoded from its on-disk bit-exact layout (spec §6):
//
//	entries ‖ u16le offsets[n] ‖ u16le n
//	entry    = u16le key_len ‖ key ‖ u16le val_len ‖ val
type Block struct {
	data    []byte // the entries region, concatenated
	offsets []uint16
}

// Encode serializes the block to its on-disk byte layout.
func (b *Block) Encode() []byte {
	buf := make([]byte, 0, len(b.data)+len(b.offsets)*2+2)
	buf = append(buf, b.data...)
	for _, off := range b.offsets {
		var tmp [2]byte
		binary.LittleEndian.PutUint16(tmp[:], off)
		buf = append(buf, tmp[:]...)
	}
	var count [2]byte
	binary.LittleEndian.PutUint16(count[:], uint16(len(b.offsets)))
	buf = append(buf, count[:]...)
	return buf
}

// DecodeBlock parses a block from its on-disk byte layout.
func DecodeBlock(raw []byte) (*Block, error) {
	if len(raw) < 2 {
		return nil, fmt.Errorf("decode block: %w: too short (%d bytes)", common.ErrCorrupted, len(raw))
	}
	numEntries := int(binary.LittleEndian.Uint16(raw[len(raw)-2:]))
	offsetsEnd := len(raw) - 2
	offsetsStart := offsetsEnd - numEntries*2
	if offsetsStart < 0 || offsetsStart > offsetsEnd {
		return nil, fmt.Errorf("decode block: %w: offset table out of range", common.ErrCorrupted)
	}

	offsets := make([]uint16, numEntries)
	for i := 0; i < numEntries; i++ {
		offsets[i] = binary.LittleEndian.Uint16(raw[offsetsStart+i*2:])
	}

	return &Block{
		data:    raw[:offsetsStart],
		offsets: offsets,
	}, nil
}

// NumEntries returns the number of entries encoded in the block.
func (b *Block) NumEntries() int {
	return len(b.offsets)
}

// entryAt decodes the entry starting at byte offset off within b.data,
// returning its key, value and the offset just past the value.
func (b *Block) entryAt(off uint16) (key, value []byte, valueEnd uint16, err error) {
	pos := int(off)
	if pos+2 > len(b.data) {
		return nil, nil, 0, fmt.Errorf("decode entry: %w", common.ErrCorrupted)
	}
	keyLen := int(binary.LittleEndian.Uint16(b.data[pos:]))
	pos += 2
	if pos+keyLen+2 > len(b.data) {
		return nil, nil, 0, fmt.Errorf("decode entry: %w", common.ErrCorrupted)
	}
	key = b.data[pos : pos+keyLen]
	pos += keyLen
	valLen := int(binary.LittleEndian.Uint16(b.data[pos:]))
	pos += 2
	if pos+valLen > len(b.data) {
		return nil, nil, 0, fmt.Errorf("decode entry: %w", common.ErrCorrupted)
	}
	value = b.data[pos : pos+valLen]
	pos += valLen
	return key, value, uint16(pos), nil
}

// BlockBuilder fills a block up to a size budget, one entry at a time.
// Invariant: the first entry's key is remembered as the block's first key.
type BlockBuilder struct {
	offsets   []uint16
	data      []byte
	blockSize int
	firstKey  []byte
}

// NewBlockBuilder creates a BlockBuilder with the given target block size.
func NewBlockBuilder(blockSize int) *BlockBuilder {
	return &BlockBuilder{blockSize: blockSize}
}

// Add tries to append an entry, returning false if it would exceed the
// block size budget. An empty builder always accepts its first entry
// regardless of size, so the caller is guaranteed progress.
func (b *BlockBuilder) Add(key, value []byte) bool {
	estimatedSize := len(b.data) + 2 + len(key) + 2 + len(value) + 2
	if estimatedSize > b.blockSize && !b.IsEmpty() {
		return false
	}

	b.offsets = append(b.offsets, uint16(len(b.data)))

	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], uint16(len(key)))
	b.data = append(b.data, tmp[:]...)
	b.data = append(b.data, key...)
	binary.LittleEndian.PutUint16(tmp[:], uint16(len(value)))
	b.data = append(b.data, tmp[:]...)
	b.data = append(b.data, value...)

	if b.firstKey == nil {
		b.firstKey = append([]byte(nil), key...)
	}

	return true
}

// IsEmpty reports whether no entry has been added yet.
func (b *BlockBuilder) IsEmpty() bool {
	return len(b.offsets) == 0
}

// FirstKey returns the key of the first entry added, or nil if empty.
func (b *BlockBuilder) FirstKey() []byte {
	return b.firstKey
}

// Build finalizes the block.
func (b *BlockBuilder) Build() *Block {
	return &Block{data: b.data, offsets: b.offsets}
}
