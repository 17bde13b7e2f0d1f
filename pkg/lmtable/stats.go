package lmtable

import (
	"sync/atomic"

	"github.com/CVDpl/go-lmtable/internal/common"
)

// statsCollector counts lookups. All fields are updated atomically so the
// read path stays lock-free.
type statsCollector struct {
	gets        [common.MaxLevel + 1]uint64
	bsearches   uint64
	cacheHits   uint64
	cacheMisses uint64
	cacheResets uint64
	bloomSkips  uint64
}

func newStatsCollector() *statsCollector { return &statsCollector{} }

func (sc *statsCollector) recordGet(level int) { atomic.AddUint64(&sc.gets[level], 1) }
func (sc *statsCollector) recordBSearch() { atomic.AddUint64(&sc.bsearches, 1) }
func (sc *statsCollector) recordCacheHit() { atomic.AddUint64(&sc.cacheHits, 1) }
func (sc *statsCollector) recordCacheMiss() { atomic.AddUint64(&sc.cacheMisses, 1) }
func (sc *statsCollector) recordCacheReset() { atomic.AddUint64(&sc.cacheResets, 1) }
func (sc *statsCollector) recordBloomSkip() { atomic.AddUint64(&sc.bloomSkips, 1) }

// Stats is a snapshot of table counters.
type Stats struct {
	// Counts[i] is the number of records at level i+1.
	Counts []uint64

	// Gets[i] is the number of lookups that reached level i+1.
	Gets []uint64

	// BinarySearches is the number of binary searches performed.
	BinarySearches uint64

	// CacheHits and CacheMisses count bigram cache lookups.
	CacheHits   uint64
	CacheMisses uint64

	// CacheResets counts bigram cache resets.
	CacheResets uint64

	// CacheEntries is the current number of cached bigrams.
	CacheEntries int

	// BloomSkips counts bigram searches avoided by the Bloom filter.
	BloomSkips uint64

	// MemoryBytes is the size of all record arrays.
	MemoryBytes int64
}

// CacheHitRate returns the bigram cache hit rate.
func (s Stats) CacheHitRate() float64 {
	total := s.CacheHits + s.CacheMisses
	if total == 0 {
		return 0
	}
	return float64(s.CacheHits) / float64(total)
}

// Stats returns a snapshot of the table counters.
func (t *Table) Stats() Stats {
	s := Stats{
		Counts:         t.Counts(),
		Gets:           make([]uint64, t.maxlev),
		BinarySearches: atomic.LoadUint64(&t.stats.bsearches),
		CacheHits:      atomic.LoadUint64(&t.stats.cacheHits),
		CacheMisses:    atomic.LoadUint64(&t.stats.cacheMisses),
		CacheResets:    atomic.LoadUint64(&t.stats.cacheResets),
		BloomSkips:     atomic.LoadUint64(&t.stats.bloomSkips),
	}
	for l := 1; l <= t.maxlev; l++ {
		s.Gets[l-1] = atomic.LoadUint64(&t.stats.gets[l])
		s.MemoryBytes += int64(len(t.levels[l].data))
	}
	if t.cache != nil {
		t.cacheMu.Lock()
		s.CacheEntries = t.cache.Len()
		t.cacheMu.Unlock()
	}
	return s
}

// LogStats writes the table counters to the table logger.
func (t *Table) LogStats() {
	s := t.Stats()
	t.logger.Info("table stats",
		"order", t.maxlev,
		"counts", s.Counts,
		"gets", s.Gets,
		"binary_searches", s.BinarySearches,
		"cache_hit_rate", s.CacheHitRate(),
		"cache_entries", s.CacheEntries,
		"cache_resets", s.CacheResets,
		"bloom_skips", s.BloomSkips,
		"memory_bytes", s.MemoryBytes,
	)
}
