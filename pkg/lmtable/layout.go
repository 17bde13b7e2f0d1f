package lmtable

import (
	"fmt"

	"github.com/CVDpl/go-lmtable/internal/common"
	"github.com/CVDpl/go-lmtable/internal/encoding"
)

// NodeType selects the record layout of a level.
type NodeType uint8

const (
	// Internal records carry word, float prob, float back-off and child bound.
	Internal NodeType = iota
	// QInternal records carry word, prob class, back-off class and child bound.
	QInternal
	// Leaf records carry word and float prob.
	Leaf
	// QLeaf records carry word and prob class.
	QLeaf
)

func (t NodeType) String() string {
	switch t {
	case Internal:
		return "internal"
	case QInternal:
		return "qinternal"
	case Leaf:
		return "leaf"
	case QLeaf:
		return "qleaf"
	default:
		return fmt.Sprintf("NodeType(%d)", uint8(t))
	}
}

// Quantized reports whether probabilities are stored as codebook classes.
func (t NodeType) Quantized() bool { return t == QInternal || t == QLeaf }

// IsLeaf reports whether records of this type have no children.
func (t NodeType) IsLeaf() bool { return t == Leaf || t == QLeaf }

// levelTypes returns the node type of every level 1..maxlev (index 0 unused).
// The last level is a leaf; a single-level table is one leaf level.
func levelTypes(maxlev int, quantized bool) []NodeType {
	types := make([]NodeType, maxlev+1)
	for l := 1; l < maxlev; l++ {
		types[l] = Internal
		if quantized {
			types[l] = QInternal
		}
	}
	types[maxlev] = Leaf
	if quantized {
		types[maxlev] = QLeaf
	}
	return types
}

// Layout is the memoized field geometry of one record type.
// Back-off and bound have zero width on leaf layouts.
type Layout struct {
	Type  NodeType
	Size  int
	Word  encoding.Field
	Prob  encoding.Field
	Bow   encoding.Field
	Bound encoding.Field
}

// NewLayout computes field offsets for records of type t.
func NewLayout(t NodeType, wordWidth int) Layout {
	probWidth := common.ProbWidth
	if t.Quantized() {
		probWidth = common.QProbWidth
	}

	l := Layout{Type: t}
	l.Word = encoding.Field{Offset: 0, Width: wordWidth}
	l.Prob = encoding.Field{Offset: l.Word.End(), Width: probWidth}
	end := l.Prob.End()
	if !t.IsLeaf() {
		l.Bow = encoding.Field{Offset: end, Width: probWidth}
		l.Bound = encoding.Field{Offset: l.Bow.End(), Width: common.BoundWidth}
		end = l.Bound.End()
	}
	l.Size = end
	return l
}

// HasChildren reports whether the layout carries a bound field.
func (l Layout) HasChildren() bool { return l.Bound.Width > 0 }

// RecordSize returns the packed size of a record of type t.
func RecordSize(t NodeType, wordWidth int) int { return NewLayout(t, wordWidth).Size }
