package lmtable

import "fmt"

// Cursor iterates the children of one parent node in ascending word order.
// It reads the level array directly; no binary search is involved.
//
//	for c := t.Children(parent); c.Next(); {
//		_ = c.Word()
//	}
type Cursor struct {
	t     *Table
	level int
	pos   int
	end   int
}

// Children starts an iteration over the children of parent. The root's
// children are the unigrams; a leaf has none.
func (t *Table) Children(parent Node) *Cursor {
	c := &Cursor{t: t, level: parent.Level + 1}
	if parent.Level >= t.maxlev {
		return c
	}
	start, end := t.ChildRange(parent)
	c.pos, c.end = start-1, end
	return c
}

// Scan starts an iteration over the successors of prefix. An empty prefix
// scans the unigrams.
func (t *Table) Scan(prefix []uint32) (*Cursor, error) {
	if len(prefix) >= t.maxlev {
		return nil, fmt.Errorf("%w: prefix of length %d has no successors in an order %d table", ErrBadNgram, len(prefix), t.maxlev)
	}
	if len(prefix) == 0 {
		return t.Children(Node{}), nil
	}
	m := t.find(prefix, false)
	if !m.Complete() {
		return nil, fmt.Errorf("%w: prefix %v matched only %d words", ErrMissingParent, prefix, m.Level())
	}
	return t.Children(m.Node), nil
}

// Next advances to the next child and reports whether one exists.
func (c *Cursor) Next() bool {
	if c.pos+1 >= c.end {
		c.pos = c.end
		return false
	}
	c.pos++
	return true
}

// Node returns the current child.
func (c *Cursor) Node() Node { return Node{Level: c.level, Pos: c.pos} }

// Level returns the level the cursor walks.
func (c *Cursor) Level() int { return c.level }

// Word returns the word id of the current child.
func (c *Cursor) Word() uint32 { return c.t.Word(c.Node()) }

// LogProb returns the log10 probability of the current child.
func (c *Cursor) LogProb() float64 { return c.t.LogProb(c.Node()) }

// Backoff returns the back-off weight of the current child.
func (c *Cursor) Backoff() float64 { return c.t.Backoff(c.Node()) }
