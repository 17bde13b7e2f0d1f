package lmtable

// Find walks the levels for ng and returns the deepest match. Level l is
// binary-searched for ng[l-1] inside the child range of the node matched at
// level l-1. Queries longer than the model order match at most MaxLevel words.
// Find never fails: a partial match is the back-off path.
func (t *Table) Find(ng []uint32) Match {
	return t.find(ng, t.finalized)
}

func (t *Table) find(ng []uint32, useCache bool) Match {
	m := Match{Order: len(ng)}
	depth := len(ng)
	if depth > t.maxlev {
		depth = t.maxlev
	}

	lo, hi := 0, t.levels[1].count
	for l := 1; l <= depth; l++ {
		t.stats.recordGet(l)

		var pos int
		var ok bool
		if l == 2 && useCache {
			pos, ok = t.findBigram(ng[0], ng[1], lo, hi)
		} else {
			pos, ok = t.search(l, lo, hi, ng[l-1])
		}
		if !ok {
			break
		}
		m.Node = Node{Level: l, Pos: pos}
		if l == depth {
			break
		}
		lo, hi = t.ChildRange(m.Node)
	}
	return m
}

// search binary-searches level l in [lo, hi) for word.
func (t *Table) search(l, lo, hi int, word uint32) (int, bool) {
	if lo >= hi {
		return 0, false
	}
	t.stats.recordBSearch()
	lv := t.levels[l]
	for lo < hi {
		mid := int(uint(lo+hi) >> 1)
		w := lv.word(mid)
		switch {
		case w == word:
			return mid, true
		case w < word:
			lo = mid + 1
		default:
			hi = mid
		}
	}
	return 0, false
}

// findBigram resolves level 2 through the Bloom filter and bigram cache
// before falling back to binary search. Only hits are cached.
func (t *Table) findBigram(parent, word uint32, lo, hi int) (int, bool) {
	if t.bloom != nil && !t.bloom.Contains(bigramKey(parent, word)) {
		t.stats.recordBloomSkip()
		return 0, false
	}
	if t.cache == nil {
		return t.search(2, lo, hi, word)
	}

	t.cacheMu.Lock()
	pos, ok := t.cache.Get(parent, word)
	t.cacheMu.Unlock()
	if ok {
		t.stats.recordCacheHit()
		return pos, true
	}
	t.stats.recordCacheMiss()

	pos, ok = t.search(2, lo, hi, word)
	if !ok {
		return 0, false
	}

	t.cacheMu.Lock()
	defer t.cacheMu.Unlock()
	if t.cache.IsFull() {
		t.cache.Reset()
		t.stats.recordCacheReset()
	}
	// Another reader may have cached the same bigram since the Get above;
	// ErrDuplicateKey then carries no information.
	_ = t.cache.Put(parent, word, pos)
	return pos, true
}

// ResetCache empties the bigram cache.
func (t *Table) ResetCache() {
	if t.cache == nil {
		return
	}
	t.cacheMu.Lock()
	t.cache.Reset()
	t.cacheMu.Unlock()
	t.stats.recordCacheReset()
}

// LongestSuffix returns the longest suffix of ng stored in the table, or nil.
// Decoders keep it as language model state.
func (t *Table) LongestSuffix(ng []uint32) []uint32 {
	start := 0
	if len(ng) > t.maxlev {
		start = len(ng) - t.maxlev
	}
	for i := start; i < len(ng); i++ {
		if t.Find(ng[i:]).Complete() {
			return ng[i:]
		}
	}
	return nil
}
