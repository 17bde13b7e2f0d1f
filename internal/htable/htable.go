// Package htable is a fixed-key open-addressing hash table.
//
// Keys are 64-bit integers (two packed 32-bit ids for the bigram cache).
// Slots are probed linearly; the table doubles when its load factor would
// exceed 3/4. Deletion is not supported.
package htable

import (
	"encoding/binary"

	"github.com/spaolacci/murmur3"
)

const minSlots = 16

type slot[V any] struct {
	key  uint64
	val  V
	used bool
}

// Table maps uint64 keys to values of type V. It is not safe for concurrent use.
type Table[V any] struct {
	slots []slot[V]
	mask  uint64
	count int

	// Statistics
	lookups uint64
	probes  uint64
}

// New creates a table sized for roughly sizeHint entries.
func New[V any](sizeHint int) *Table[V] {
	n := minSlots
	for n*3/4 < sizeHint {
		n <<= 1
	}
	return &Table[V]{
		slots: make([]slot[V], n),
		mask:  uint64(n - 1),
	}
}

// Find returns the value stored under key.
func (t *Table[V]) Find(key uint64) (V, bool) {
	t.lookups++
	i := hash(key) & t.mask
	for {
		t.probes++
		s := &t.slots[i]
		if !s.used {
			var zero V
			return zero, false
		}
		if s.key == key {
			return s.val, true
		}
		i = (i + 1) & t.mask
	}
}

// Enter inserts v under key unless the key is already present.
// It returns the stored value and whether v was inserted.
func (t *Table[V]) Enter(key uint64, v V) (V, bool) {
	if (t.count+1)*4 > len(t.slots)*3 {
		t.grow()
	}
	t.lookups++
	i := hash(key) & t.mask
	for {
		t.probes++
		s := &t.slots[i]
		if !s.used {
			s.key, s.val, s.used = key, v, true
			t.count++
			return v, true
		}
		if s.key == key {
			return s.val, false
		}
		i = (i + 1) & t.mask
	}
}

// Len returns the number of stored entries.
func (t *Table[V]) Len() int { return t.count }

// Slots returns the number of allocated slots.
func (t *Table[V]) Slots() int { return len(t.slots) }

// Stats returns the lookup count and the total number of probed slots.
func (t *Table[V]) Stats() (lookups, probes uint64) { return t.lookups, t.probes }

func (t *Table[V]) grow() {
	old := t.slots
	t.slots = make([]slot[V], len(old)*2)
	t.mask = uint64(len(t.slots) - 1)
	for _, s := range old {
		if !s.used {
			continue
		}
		i := hash(s.key) & t.mask
		for t.slots[i].used {
			i = (i + 1) & t.mask
		}
		t.slots[i] = s
	}
}

func hash(key uint64) uint64 {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], key)
	return murmur3.Sum64(b[:])
}
