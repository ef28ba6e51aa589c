package lsm

import (
	"encoding/binary"
	"math"

	"github.com/bits-and-blooms/bitset"
	"github.com/twmb/murmur3"
)

// BloomFilter narrows may_contain_key checks ahead of the exact
// first/last-key range test (spec §4.2/§7: "a bloom filter, if present,
// narrows this further but is not designed here"). Bit storage is a
// bitset.BitSet; hashing is murmur3 with the standard double-hashing trick
// for deriving k independent probes from one 128-bit digest.
type BloomFilter struct {
	bits      *bitset.BitSet
	numBits   uint64
	numHashes uint32
}

// NewBloomFilter sizes a filter for expectedKeys entries at the given
// false-positive rate using the standard optimal-m/optimal-k formulas.
func NewBloomFilter(expectedKeys int, falsePositiveRate float64) *BloomFilter {
	if expectedKeys < 1 {
		expectedKeys = 1
	}
	numBits := uint64(math.Ceil(-float64(expectedKeys) * math.Log(falsePositiveRate) / (math.Ln2 * math.Ln2)))
	if numBits < 8 {
		numBits = 8
	}
	numHashes := uint32(math.Ceil(float64(numBits) / float64(expectedKeys) * math.Ln2))
	if numHashes == 0 {
		numHashes = 1
	}

	return &BloomFilter{
		bits:      bitset.New(uint(numBits)),
		numBits:   numBits,
		numHashes: numHashes,
	}
}

func (bf *BloomFilter) hashPair(key []byte) (uint64, uint64) {
	return murmur3.Sum128(key)
}

// Add inserts a key into the filter.
func (bf *BloomFilter) Add(key []byte) {
	h1, h2 := bf.hashPair(key)
	for i := uint32(0); i < bf.numHashes; i++ {
		bit := (h1 + uint64(i)*h2) % bf.numBits
		bf.bits.Set(uint(bit))
	}
}

// MayContain returns false if key is definitely absent, true if it might be
// present (including false positives).
func (bf *BloomFilter) MayContain(key []byte) bool {
	h1, h2 := bf.hashPair(key)
	for i := uint32(0); i < bf.numHashes; i++ {
		bit := (h1 + uint64(i)*h2) % bf.numBits
		if !bf.bits.Test(uint(bit)) {
			return false
		}
	}
	return true
}

// Encode serializes the filter: u64le numBits | u32le numHashes | raw words.
func (bf *BloomFilter) Encode() []byte {
	words := bf.bits.Bytes()
	buf := make([]byte, 12+len(words)*8)
	binary.LittleEndian.PutUint64(buf[0:], bf.numBits)
	binary.LittleEndian.PutUint32(buf[8:], bf.numHashes)
	for i, word := range words {
		binary.LittleEndian.PutUint64(buf[12+i*8:], word)
	}
	return buf
}

// DecodeBloomFilter deserializes a filter produced by Encode.
func DecodeBloomFilter(data []byte) *BloomFilter {
	if len(data) < 12 {
		return nil
	}
	numBits := binary.LittleEndian.Uint64(data[0:])
	numHashes := binary.LittleEndian.Uint32(data[8:])
	wordsLen := (len(data) - 12) / 8
	words := make([]uint64, wordsLen)
	for i := 0; i < wordsLen; i++ {
		words[i] = binary.LittleEndian.Uint64(data[12+i*8:])
	}
	return &BloomFilter{bits: bitset.From(words), numBits: numBits, numHashes: numHashes}
}
