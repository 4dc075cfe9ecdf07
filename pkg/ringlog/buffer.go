package ringlog

import (
	"sync/atomic"
	"time"

	"github.com/golang/glog"
)

// Sink accepts one byte at a time.
// TrySend must give up after timeout and return a non-nil error when the
// byte was not accepted. It must not reorder bytes it has accepted.
type Sink interface {
	TrySend(b byte, timeout time.Duration) error
}

// SinkFunc is func form of Sink.
type SinkFunc func(b byte, timeout time.Duration) error

// TrySend implements Sink.
func (f SinkFunc) TrySend(b byte, timeout time.Duration) error {
	return f(b, timeout)
}

const maxSize = 1 << 30

// Buffer is a fixed-size ring of bytes with one producer and one consumer.
//
// One slot is always left unused: the ring is full when the write cursor
// reaches the drain cursor, and empty when the write cursor is right after
// the drain cursor. A Buffer of size N holds at most N-1 bytes.
type Buffer struct {
	// dropped counts bytes rejected because the ring was full, producer-owned.
	// First field for 64-bit atomic alignment on 32-bit platforms.
	dropped uint64

	storage []byte

	// writeCur is the next free slot, stored only by the producer.
	writeCur uint32
	// drainCur is the last consumed slot, stored only by the consumer.
	drainCur uint32
}

// NewBuffer creates a Buffer with size slots, size-1 of them usable.
func NewBuffer(size int) (*Buffer, error) {
	if size < 2 || size > maxSize {
		return nil, ErrInvalidCapacity
	}
	return &Buffer{
		storage:  make([]byte, size),
		writeCur: 1,
		drainCur: 0,
	}, nil
}

// MustNewBuffer is NewBuffer that panics on a bad size.
func MustNewBuffer(size int) *Buffer {
	b, err := NewBuffer(size)
	if err != nil {
		panic(err)
	}
	return b
}

// Size returns the number of slots, including the reserved one.
func (r *Buffer) Size() int {
	return len(r.storage)
}

// Cap returns the maximum number of bytes the buffer can hold.
func (r *Buffer) Cap() int {
	return len(r.storage) - 1
}

// Len returns the number of buffered bytes. It's exact only when called
// from the producer or the consumer with the other side idle.
func (r *Buffer) Len() int {
	size := uint32(len(r.storage))
	w, d := atomic.LoadUint32(&r.writeCur), atomic.LoadUint32(&r.drainCur)
	return int((w + size - d - 1) % size)
}

// Dropped returns the number of bytes dropped on overflow so far.
func (r *Buffer) Dropped() uint64 {
	return atomic.LoadUint64(&r.dropped)
}

// Append stores one byte, or drops it if the buffer is full.
// It must only be called from a single producer at a time.
func (r *Buffer) Append(b byte) {
	w := atomic.LoadUint32(&r.writeCur)
	if atomic.LoadUint32(&r.drainCur) == w {
		atomic.AddUint64(&r.dropped, 1)
		return
	}
	r.storage[w] = b
	atomic.StoreUint32(&r.writeCur, r.next(w))
}

// Drain sends at most max bytes to sink, oldest first, and returns how many
// were accepted. It stops at the first rejected byte, which stays in the
// buffer as the next one to send.
// It must only be called from a single consumer at a time.
func (r *Buffer) Drain(sink Sink, max int, timeout time.Duration) int {
	sent, _ := r.drain(sink, max, timeout)
	return sent
}

// drain is Drain also returning the sink error that stopped it, if any.
func (r *Buffer) drain(sink Sink, max int, timeout time.Duration) (sent int, err error) {
	d := atomic.LoadUint32(&r.drainCur)
	for sent < max {
		if r.next(d) == atomic.LoadUint32(&r.writeCur) {
			break
		}
		// drainCur is published only after the sink accepted the byte,
		// a rejected byte leaves it where it was.
		n := r.next(d)
		if err = sink.TrySend(r.storage[n], timeout); err != nil {
			glog.V(3).Infof("drain stopped after %d byte(s): %v", sent, err)
			return
		}
		d = n
		atomic.StoreUint32(&r.drainCur, d)
		sent++
	}
	return
}

func (r *Buffer) next(i uint32) uint32 {
	if i++; i >= uint32(len(r.storage)) {
		return 0
	}
	return i
}
