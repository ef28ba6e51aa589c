package lsm

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"sort"
	"sync/atomic"

	"github.com/crystaldb/lsmkv/common"
)

// BlockMeta locates one data block within an SST and remembers its key
// range, so a lookup can binary-search the meta section instead of reading
// every block (spec §4.2, §6 meta_entry layout).
type BlockMeta struct {
	Offset   uint32
	FirstKey []byte
	LastKey  []byte
}

// encodeBlockMeta serializes the meta section:
// repeated (u16le fkl ‖ u16le lkl ‖ u32le offset ‖ first_key ‖ last_key).
func encodeBlockMeta(metas []BlockMeta) []byte {
	var buf bytes.Buffer
	var tmp [4]byte
	for _, m := range metas {
		binary.LittleEndian.PutUint16(tmp[:2], uint16(len(m.FirstKey)))
		buf.Write(tmp[:2])
		binary.LittleEndian.PutUint16(tmp[:2], uint16(len(m.LastKey)))
		buf.Write(tmp[:2])
		binary.LittleEndian.PutUint32(tmp[:4], m.Offset)
		buf.Write(tmp[:4])
		buf.Write(m.FirstKey)
		buf.Write(m.LastKey)
	}
	return buf.Bytes()
}

func decodeBlockMeta(data []byte) ([]BlockMeta, error) {
	var metas []BlockMeta
	pos := 0
	for pos < len(data) {
		if pos+8 > len(data) {
			return nil, fmt.Errorf("decode block meta: %w", common.ErrCorrupted)
		}
		fkl := int(binary.LittleEndian.Uint16(data[pos:]))
		lkl := int(binary.LittleEndian.Uint16(data[pos+2:]))
		offset := binary.LittleEndian.Uint32(data[pos+4:])
		pos += 8
		if pos+fkl+lkl > len(data) {
			return nil, fmt.Errorf("decode block meta: %w", common.ErrCorrupted)
		}
		firstKey := append([]byte(nil), data[pos:pos+fkl]...)
		pos += fkl
		lastKey := append([]byte(nil), data[pos:pos+lkl]...)
		pos += lkl
		metas = append(metas, BlockMeta{Offset: offset, FirstKey: firstKey, LastKey: lastKey})
	}
	return metas, nil
}

// SortedTable is a read handle on one immutable on-disk SST (spec §2, §6).
// Its bloom filter, when present, is an in-memory-only optimization built by
// SsTableBuilder; it is not part of the on-disk layout and is absent after a
// reopen (see DESIGN.md).
type SortedTable struct {
	ID   uint32
	file *os.File

	blockMeta  []BlockMeta
	metaOffset uint32
	fileSize   uint32

	firstKey []byte
	lastKey  []byte

	bloom *BloomFilter
	cache *BlockCache

	// refCount starts at 1, representing the state snapshot's own slot for
	// this table. Readers that outlive a single synchronous call (an
	// in-flight Scan, or a Get mid-disk-read) acquire an extra count so a
	// concurrent compaction's removal can't close the file out from under
	// them (spec §5: "concurrent in-flight readers continue without
	// interference").
	refCount atomic.Int32
}

// OpenSortedTable reads an SST's footer and meta section and wraps file for
// on-demand block reads. cache may be nil to disable block caching.
func OpenSortedTable(id uint32, file *os.File, cache *BlockCache) (*SortedTable, error) {
	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat sst %d: %w", id, err)
	}
	size := info.Size()
	if size < 4 {
		return nil, fmt.Errorf("open sst %d: %w: file too small", id, common.ErrCorrupted)
	}

	var footer [4]byte
	if _, err := file.ReadAt(footer[:], size-4); err != nil {
		return nil, fmt.Errorf("read sst %d footer: %w", id, err)
	}
	metaOffset := binary.LittleEndian.Uint32(footer[:])
	if int64(metaOffset) > size-4 {
		return nil, fmt.Errorf("open sst %d: %w: meta offset out of range", id, common.ErrCorrupted)
	}

	metaBytes := make([]byte, size-4-int64(metaOffset))
	if _, err := file.ReadAt(metaBytes, int64(metaOffset)); err != nil {
		return nil, fmt.Errorf("read sst %d meta: %w", id, err)
	}
	metas, err := decodeBlockMeta(metaBytes)
	if err != nil {
		return nil, fmt.Errorf("open sst %d: %w", id, err)
	}
	if len(metas) == 0 {
		return nil, fmt.Errorf("open sst %d: %w: empty meta section", id, common.ErrCorrupted)
	}

	t := &SortedTable{
		ID:         id,
		file:       file,
		blockMeta:  metas,
		metaOffset: metaOffset,
		fileSize:   uint32(size),
		firstKey:   metas[0].FirstKey,
		lastKey:    metas[len(metas)-1].LastKey,
		cache:      cache,
	}
	t.refCount.Store(1)
	return t, nil
}

// SetBloom attaches a bloom filter built at construction time.
func (t *SortedTable) SetBloom(bf *BloomFilter) { t.bloom = bf }

// FirstKey returns the smallest key stored in the table.
func (t *SortedTable) FirstKey() []byte { return t.firstKey }

// LastKey returns the largest key stored in the table.
func (t *SortedTable) LastKey() []byte { return t.lastKey }

// NumBlocks returns the number of data blocks in the table.
func (t *SortedTable) NumBlocks() int { return len(t.blockMeta) }

// FileSize returns the table's on-disk size in bytes.
func (t *SortedTable) FileSize() int64 { return int64(t.fileSize) }

// Close releases the underlying file handle unconditionally, regardless of
// refCount. Only safe once no reader can possibly still be touching t (final
// engine teardown).
func (t *SortedTable) Close() error {
	if t.file == nil {
		return nil
	}
	return t.file.Close()
}

// acquire pins t against release for the duration of a read that may
// outlive the caller's hold on the state snapshot it came from.
func (t *SortedTable) acquire() {
	t.refCount.Add(1)
}

// release drops one pin. The table's file is closed once the count reaches
// zero: once both its state-snapshot slot and every in-flight reader have
// let go of it.
func (t *SortedTable) release() error {
	if t.refCount.Add(-1) == 0 {
		return t.Close()
	}
	return nil
}

// FindBlockIdx returns the index of the last block whose first key is <= k,
// i.e. the only block that could contain k (spec §4.2).
func (t *SortedTable) FindBlockIdx(k []byte) int {
	idx := sort.Search(len(t.blockMeta), func(i int) bool {
		return bytes.Compare(t.blockMeta[i].FirstKey, k) > 0
	})
	if idx == 0 {
		return 0
	}
	return idx - 1
}

// ReadBlock reads and decodes block i directly from disk, bypassing any
// cache.
func (t *SortedTable) ReadBlock(i int) (*Block, error) {
	if i < 0 || i >= len(t.blockMeta) {
		return nil, fmt.Errorf("read block %d of sst %d: %w", i, t.ID, common.ErrInvariantViolation)
	}
	start := t.blockMeta[i].Offset
	var end uint32
	if i+1 < len(t.blockMeta) {
		end = t.blockMeta[i+1].Offset
	} else {
		end = t.metaOffset
	}
	raw := make([]byte, end-start)
	if _, err := t.file.ReadAt(raw, int64(start)); err != nil {
		return nil, fmt.Errorf("read block %d of sst %d: %w", i, t.ID, err)
	}
	block, err := DecodeBlock(raw)
	if err != nil {
		return nil, fmt.Errorf("read block %d of sst %d: %w", i, t.ID, err)
	}
	return block, nil
}

// ReadBlockCached reads block i through the shared block cache, if one was
// configured.
func (t *SortedTable) ReadBlockCached(i int) (*Block, error) {
	if t.cache == nil {
		return t.ReadBlock(i)
	}
	return t.cache.GetOrCompute(t.ID, i, func() (*Block, error) {
		return t.ReadBlock(i)
	})
}

// RangeOverlap reports whether this table's [firstKey, lastKey] range could
// hold any key between lower and upper, each bound applied with its own kind.
func (t *SortedTable) RangeOverlap(lower, upper Bound) bool {
	switch upper.Kind {
	case Included:
		if bytes.Compare(t.firstKey, upper.Key) > 0 {
			return false
		}
	case Excluded:
		if bytes.Compare(t.firstKey, upper.Key) >= 0 {
			return false
		}
	}
	switch lower.Kind {
	case Included:
		if bytes.Compare(t.lastKey, lower.Key) < 0 {
			return false
		}
	case Excluded:
		if bytes.Compare(t.lastKey, lower.Key) <= 0 {
			return false
		}
	}
	return true
}

// MayContainKey reports whether k could be present: false is a definite
// answer, true means "check the data". The range check always runs first as
// a cheap, always-correct reject; the bloom filter, if attached, can only
// turn a true into a false.
func (t *SortedTable) MayContainKey(k []byte) bool {
	if bytes.Compare(k, t.firstKey) < 0 || bytes.Compare(k, t.lastKey) > 0 {
		return false
	}
	if t.bloom != nil && !t.bloom.MayContain(k) {
		return false
	}
	return true
}
