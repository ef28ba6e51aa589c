package lsm

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// blockCacheKey keys the process-wide block cache by (sst id, block idx),
// as spec §4.2/§9 require.
type blockCacheKey struct {
	sstID    uint32
	blockIdx int
}

// BlockCache is a bounded, process-wide LRU of decoded blocks shared across
// levels, with single-flight semantics on miss so concurrent readers
// requesting the same (sst id, block idx) load it exactly once.
type BlockCache struct {
	cache *lru.Cache[blockCacheKey, *Block]
	group singleflight.Group
}

// NewBlockCache creates a cache bounded to size entries.
func NewBlockCache(size int) (*BlockCache, error) {
	if size <= 0 {
		size = 1
	}
	c, err := lru.New[blockCacheKey, *Block](size)
	if err != nil {
		return nil, fmt.Errorf("create block cache: %w", err)
	}
	return &BlockCache{cache: c}, nil
}

// GetOrCompute returns the cached block for (sstID, blockIdx), computing it
// via load on a miss. Concurrent misses for the same key collapse into one
// loader call.
func (c *BlockCache) GetOrCompute(sstID uint32, blockIdx int, load func() (*Block, error)) (*Block, error) {
	key := blockCacheKey{sstID: sstID, blockIdx: blockIdx}
	if block, ok := c.cache.Get(key); ok {
		return block, nil
	}

	sfKey := fmt.Sprintf("%d:%d", sstID, blockIdx)
	v, err, _ := c.group.Do(sfKey, func() (interface{}, error) {
		if block, ok := c.cache.Get(key); ok {
			return block, nil
		}
		block, err := load()
		if err != nil {
			return nil, err
		}
		c.cache.Add(key, block)
		return block, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Block), nil
}
