package filters

import (
	"encoding/binary"
	"math"
	"math/bits"

	"github.com/spaolacci/murmur3"
)

// BloomFilter is a probabilistic membership set over 64-bit keys.
// Lookups do not mutate the filter and are safe for concurrent use once
// all keys have been added.
type BloomFilter struct {
	bits    []uint64
	numBits uint64
	numHash uint32
}

// NewBloomFilter creates a new Bloom filter with the given parameters.
func NewBloomFilter(numElements uint64, falsePositiveRate float64) *BloomFilter {
	if numElements == 0 {
		numElements = 1
	}
	// m = -n * ln(p) / (ln(2)^2)
	m := uint64(math.Ceil(-float64(numElements) * math.Log(falsePositiveRate) / math.Pow(math.Ln2, 2)))

	// Round up to nearest multiple of 64
	m = ((m + 63) / 64) * 64
	if m == 0 {
		m = 64
	}

	// k = (m/n) * ln(2)
	k := uint32(math.Ceil(float64(m) / float64(numElements) * math.Ln2))
	if k < 1 {
		k = 1
	}
	if k > 10 {
		k = 10
	}

	return &BloomFilter{
		bits:    make([]uint64, m/64),
		numBits: m,
		numHash: k,
	}
}

// Add adds a key to the filter.
func (bf *BloomFilter) Add(key uint64) {
	h1, h2 := hashKey(key)
	for i := uint32(0); i < bf.numHash; i++ {
		// Double hashing: h(i) = h1 + i*h2
		pos := (h1 + uint64(i)*h2) % bf.numBits
		bf.bits[pos/64] |= uint64(1) << (pos % 64)
	}
}

// Contains reports whether key may be in the set. False means definitely absent.
func (bf *BloomFilter) Contains(key uint64) bool {
	h1, h2 := hashKey(key)
	for i := uint32(0); i < bf.numHash; i++ {
		pos := (h1 + uint64(i)*h2) % bf.numBits
		if bf.bits[pos/64]&(uint64(1)<<(pos%64)) == 0 {
			return false
		}
	}
	return true
}

// EstimateFalsePositiveRate estimates the current false positive rate.
func (bf *BloomFilter) EstimateFalsePositiveRate() float64 {
	setBits := 0
	for _, word := range bf.bits {
		setBits += bits.OnesCount64(word)
	}
	fillRatio := float64(setBits) / float64(bf.numBits)
	return math.Pow(fillRatio, float64(bf.numHash))
}

// SizeInBytes returns the size of the filter in bytes.
func (bf *BloomFilter) SizeInBytes() int {
	return len(bf.bits) * 8
}

func hashKey(key uint64) (uint64, uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], key)
	h1, h2 := murmur3.Sum128(b[:])
	return h1, h2 | 1
}
