package lmtable

import (
	"fmt"

	"github.com/CVDpl/go-lmtable/internal/common"
	"github.com/CVDpl/go-lmtable/internal/htable"
	"github.com/CVDpl/go-lmtable/internal/mempool"
)

type bigramEntry struct {
	parent uint32
	word   uint32
	pos    uint32
}

// BigramCache maps (parent word, word) to the position of the bigram in
// level 2. Entries live in a block pool and are indexed by a fixed-key hash
// table. The cache is never resized: once IsFull reports true the owner
// calls Reset. BigramCache is not safe for concurrent use.
type BigramCache struct {
	maxEntries int
	entries    int
	ht         *htable.Table[*bigramEntry]
	pool       *mempool.Pool[bigramEntry]
	logger     common.Logger

	hits   uint64
	misses uint64
	resets uint64
}

// NewBigramCache creates a cache holding at most maxEntries bigrams.
func NewBigramCache(maxEntries int, logger common.Logger) *BigramCache {
	if logger == nil {
		logger = NewNullLogger()
	}
	if maxEntries < 1 {
		maxEntries = 1
	}
	return &BigramCache{
		maxEntries: maxEntries,
		ht:         htable.New[*bigramEntry](initialSlots(maxEntries)),
		pool:       mempool.New[bigramEntry](poolBlock(maxEntries)),
		logger:     logger,
	}
}

// initialSlots sizes a fresh hash table; it grows toward maxEntries on demand.
func initialSlots(maxEntries int) int {
	if maxEntries > 4096 {
		return 4096
	}
	return maxEntries
}

func poolBlock(maxEntries int) int {
	n := maxEntries / 10
	switch {
	case n < 1:
		return 1
	case n > 1<<14:
		return 1 << 14
	}
	return n
}

func bigramKey(parent, word uint32) uint64 { return uint64(parent)<<32 | uint64(word) }

// Get returns the cached level-2 position of (parent, word).
func (c *BigramCache) Get(parent, word uint32) (int, bool) {
	e, ok := c.ht.Find(bigramKey(parent, word))
	if !ok {
		c.misses++
		return 0, false
	}
	c.hits++
	return int(e.pos), true
}

// Put caches the position of (parent, word). Inserting a key twice is a
// caller bug and returns ErrDuplicateKey; the first entry is kept.
func (c *BigramCache) Put(parent, word uint32, pos int) error {
	if c.IsFull() {
		return fmt.Errorf("%w: %d entries", common.ErrCacheFull, c.entries)
	}
	key := bigramKey(parent, word)
	if _, ok := c.ht.Find(key); ok {
		return fmt.Errorf("%w: (%d, %d)", common.ErrDuplicateKey, parent, word)
	}
	e := c.pool.Alloc()
	e.parent, e.word, e.pos = parent, word, uint32(pos)
	c.ht.Enter(key, e)
	c.entries++
	return nil
}

// IsFull reports whether the cache reached its capacity.
func (c *BigramCache) IsFull() bool { return c.entries >= c.maxEntries }

// Len returns the number of cached bigrams.
func (c *BigramCache) Len() int { return c.entries }

// Cap returns the maximum number of cached bigrams.
func (c *BigramCache) Cap() int { return c.maxEntries }

// Reset discards all entries and starts over with smaller backing storage.
func (c *BigramCache) Reset() {
	lookups, probes := c.ht.Stats()
	c.logger.Debug("bigram cache reset",
		"entries", c.entries,
		"hits", c.hits,
		"misses", c.misses,
		"lookups", lookups,
		"probes", probes,
		"pool_blocks", c.pool.Blocks(),
	)
	c.ht = htable.New[*bigramEntry](initialSlots(c.maxEntries))
	c.pool.Reset()
	c.entries = 0
	c.resets++
}

// Stats returns hit, miss and reset counters.
func (c *BigramCache) Stats() (hits, misses, resets uint64) { return c.hits, c.misses, c.resets }
