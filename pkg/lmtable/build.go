package lmtable

import (
	"fmt"
	"math"

	"github.com/CVDpl/go-lmtable/internal/common"
	"github.com/CVDpl/go-lmtable/internal/encoding"
	"github.com/CVDpl/go-lmtable/internal/filters"
)

// SetCodebook installs the codebook of level l. Quantized tables need it
// before the first Insert into that level.
func (t *Table) SetCodebook(l int, cb *Codebook) error {
	if t.finalized {
		return common.ErrFinalized
	}
	if !t.quantized {
		return fmt.Errorf("%w: table is not quantized", common.ErrNoCodebook)
	}
	if l < 1 || l > t.maxlev {
		return fmt.Errorf("%w: level %d outside 1..%d", common.ErrBadNgram, l, t.maxlev)
	}
	lv := t.levels[l]
	if lv.count > 0 {
		return fmt.Errorf("%w: level %d already holds %d records", common.ErrLevelSealed, l, lv.count)
	}
	if err := cb.validate(l, lv.layout.Type); err != nil {
		return err
	}
	lv.codebook = cb
	return nil
}

// Insert appends the n-gram ng with its log10 probability and back-off.
// Levels must be filled in increasing order and, within a level, sorted by
// parent position then word id. The parent (ng without its last word) must
// already be stored. Quantized tables store the nearest codebook classes.
func (t *Table) Insert(ng []uint32, prob, bow float32) (Node, error) {
	if t.closed.Load() {
		return Node{}, common.ErrClosed
	}
	if t.finalized {
		return Node{}, common.ErrFinalized
	}
	l := len(ng)
	if l < 1 || l > t.maxlev {
		return Node{}, fmt.Errorf("%w: length %d outside 1..%d", common.ErrBadNgram, l, t.maxlev)
	}
	if err := t.enterLevel(l); err != nil {
		return Node{}, err
	}

	parent := 0
	if l > 1 {
		m := t.find(ng[:l-1], false)
		if !m.Complete() {
			return Node{}, fmt.Errorf("%w: level %d n-gram %v matched only %d words", common.ErrMissingParent, l, ng, m.Level())
		}
		parent = m.Node.Pos
	}
	return t.insertAt(l, parent, ng[l-1], prob, bow)
}

// enterLevel advances the build state to level l, sealing lower levels.
func (t *Table) enterLevel(l int) error {
	switch {
	case l == t.building:
		return nil
	case l < t.building:
		return fmt.Errorf("%w: level %d (building level %d)", common.ErrLevelSealed, l, t.building)
	case l > t.building+1:
		return fmt.Errorf("%w: level %d inserted while building level %d", common.ErrOutOfOrder, l, t.building)
	}
	t.seal(t.building)
	t.building = l
	return nil
}

// seal closes level l: every parent at level l-1 that received no further
// children gets the final child count as its bound.
func (t *Table) seal(l int) {
	if l < 2 {
		return
	}
	pl, lv := t.levels[l-1], t.levels[l]
	for i := pl.nextBound; i < pl.count; i++ {
		pl.layout.Bound.Put(pl.rec(i), uint32(lv.count))
	}
	pl.nextBound = pl.count
	t.logger.Debug("level sealed", "level", l, "records", lv.count)
}

func (t *Table) insertAt(l, parent int, word uint32, prob, bow float32) (Node, error) {
	lv := t.levels[l]
	if lv.count >= lv.capacity {
		return Node{}, fmt.Errorf("%w: level %d capacity %d", common.ErrCapacity, l, lv.capacity)
	}
	if word > encoding.MaxValue(t.wordWidth) {
		return Node{}, fmt.Errorf("%w: word id %d exceeds %d-byte width", common.ErrBadNgram, word, t.wordWidth)
	}
	if lv.count > 0 {
		last := lv.word(lv.count - 1)
		if parent < lv.lastParent || (parent == lv.lastParent && word <= last) {
			return Node{}, fmt.Errorf("%w: level %d word %d under parent %d after word %d under parent %d",
				common.ErrOutOfOrder, l, word, parent, last, lv.lastParent)
		}
	}

	var probBits, bowBits uint32
	if lv.layout.Type.Quantized() {
		if lv.codebook == nil {
			return Node{}, fmt.Errorf("%w: level %d", common.ErrNoCodebook, l)
		}
		probBits = uint32(lv.codebook.nearestProb(prob))
		if !lv.layout.Type.IsLeaf() {
			bowBits = uint32(lv.codebook.nearestBackoff(bow))
		}
	} else {
		probBits = math.Float32bits(prob)
		bowBits = math.Float32bits(bow)
	}

	pos := lv.count
	lv.data = lv.data[:(pos+1)*lv.layout.Size]
	rec := lv.rec(pos)
	clear(rec)
	lv.layout.Word.Put(rec, word)
	lv.layout.Prob.Put(rec, probBits)
	if lv.layout.HasChildren() {
		lv.layout.Bow.Put(rec, bowBits)
	}
	lv.count++
	lv.lastParent = parent

	if l > 1 {
		t.extendParent(l-1, parent, lv.count)
	}
	return Node{Level: l, Pos: pos}, nil
}

// extendParent makes the parent at level pl own children up to childEnd.
// Parents skipped since the last insert are closed with empty ranges.
func (t *Table) extendParent(pl, parent, childEnd int) {
	p := t.levels[pl]
	for i := p.nextBound; i < parent; i++ {
		p.layout.Bound.Put(p.rec(i), uint32(childEnd-1))
	}
	p.layout.Bound.Put(p.rec(parent), uint32(childEnd))
	p.nextBound = parent
}

// Finalize seals every level and makes the table read-only.
func (t *Table) Finalize() error {
	if t.finalized {
		return nil
	}
	if t.quantized {
		for l := 1; l <= t.maxlev; l++ {
			if t.levels[l].codebook == nil {
				return fmt.Errorf("%w: level %d", common.ErrNoCodebook, l)
			}
		}
	}
	for l := t.building; l <= t.maxlev; l++ {
		t.seal(l)
	}
	t.building = t.maxlev
	t.finalized = true
	t.buildBloom()
	t.logger.Info("table finalized", "order", t.maxlev, "counts", t.Counts(), "quantized", t.quantized)
	return nil
}

func (t *Table) buildBloom() {
	if t.opts.BigramBloomFPR <= 0 || t.maxlev < 2 {
		return
	}
	bf := filters.NewBloomFilter(uint64(t.levels[2].count), t.opts.BigramBloomFPR)
	for c := t.Children(Node{}); c.Next(); {
		parent := c.Word()
		for k := t.Children(c.Node()); k.Next(); {
			bf.Add(bigramKey(parent, k.Word()))
		}
	}
	t.bloom = bf
	t.logger.Debug("bigram bloom built", "bigrams", t.levels[2].count, "bytes", bf.SizeInBytes())
}
