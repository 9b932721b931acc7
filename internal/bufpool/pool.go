// Package bufpool pools fixed-size byte buffers: the overlay binding reads
// datagrams into them, so a busy peer connection doesn't allocate one
// slice per inbound wire envelope, and blobcore copies each outgoing data
// block into one before encoding it.
package bufpool

import "sync"

// Pool hands out byte buffers of a fixed size, reusing returned ones.
type Pool struct {
	pool sync.Pool
	size int
}

// New creates a pool whose buffers are exactly size bytes.
func New(size int) *Pool {
	if size <= 0 {
		panic("bufpool: size must be positive")
	}
	return &Pool{
		size: size,
		pool: sync.Pool{
			New: func() any { return make([]byte, size) },
		},
	}
}

// Get returns a buffer of exactly Size() bytes, zeroed only by virtue of
// being freshly allocated — a reused buffer carries the previous reader's
// bytes beyond whatever length the caller actually fills.
func (p *Pool) Get() []byte {
	buf := p.pool.Get().([]byte)
	if cap(buf) < p.size {
		return make([]byte, p.size)
	}
	return buf[:p.size]
}

// Put returns buf to the pool. Buffers smaller than Size() are discarded
// rather than retained, since Get() always hands out at least that many.
func (p *Pool) Put(buf []byte) {
	if cap(buf) < p.size {
		return
	}
	p.pool.Put(buf[:cap(buf)])
}

// Size reports the fixed buffer length this pool hands out.
func (p *Pool) Size() int {
	return p.size
}
