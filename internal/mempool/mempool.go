// Package mempool provides a block allocator for fixed-size entries.
//
// Entries are carved from blocks of blockSize elements; individual entries are
// never freed, the whole pool is released with Reset.
package mempool

// Pool hands out pointers to zeroed T values.
type Pool[T any] struct {
	blockSize int
	blocks    [][]T
	used      int // entries taken from the last block
	total     int
}

// New creates a pool that allocates blockSize entries at a time.
func New[T any](blockSize int) *Pool[T] {
	if blockSize <= 0 {
		blockSize = 1
	}
	return &Pool[T]{blockSize: blockSize}
}

// Alloc returns a pointer to a fresh entry.
func (p *Pool[T]) Alloc() *T {
	if len(p.blocks) == 0 || p.used == p.blockSize {
		p.blocks = append(p.blocks, make([]T, p.blockSize))
		p.used = 0
	}
	e := &p.blocks[len(p.blocks)-1][p.used]
	p.used++
	p.total++
	return e
}

// Len returns the number of allocated entries.
func (p *Pool[T]) Len() int { return p.total }

// Blocks returns the number of blocks held by the pool.
func (p *Pool[T]) Blocks() int { return len(p.blocks) }

// BlockSize returns the number of entries per block.
func (p *Pool[T]) BlockSize() int { return p.blockSize }

// Reset drops every block. Pointers returned earlier must not be used afterwards.
func (p *Pool[T]) Reset() {
	p.blocks = nil
	p.used = 0
	p.total = 0
}
