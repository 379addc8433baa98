// ABOUTME: Per-channel elastic FIFO of samples
// ABOUTME: Appends whole blocks and removes exact-size prefixes
package playout

import "errors"

// ErrShortRead is returned when more samples are requested than are queued
var ErrShortRead = errors.New("playout: read exceeds queued samples")

// Sample is any PCM sample type a queue can hold
type Sample interface {
	~float32 | ~float64 | ~int16 | ~int32
}

// ChannelQueue is an unbounded FIFO for one channel. Written slices are
// kept as segments rather than copied, so a write is a single append.
// It is not safe for concurrent use.
type ChannelQueue[T Sample] struct {
	segs   [][]T
	head   int // samples already consumed from segs[0]
	length int
}

// NewChannelQueue creates an empty queue
func NewChannelQueue[T Sample]() *ChannelQueue[T] {
	return &ChannelQueue[T]{}
}

// Write appends samples in order. The queue takes ownership of block.
func (q *ChannelQueue[T]) Write(block []T) {
	if len(block) == 0 {
		return
	}
	q.segs = append(q.segs, block)
	q.length += len(block)
}

// Len returns the number of unread samples
func (q *ChannelQueue[T]) Len() int {
	return q.length
}

// ReadInto removes exactly len(dst) samples from the front into dst.
// If fewer are queued it returns ErrShortRead and changes nothing.
func (q *ChannelQueue[T]) ReadInto(dst []T) error {
	if len(dst) > q.length {
		return ErrShortRead
	}

	n := 0
	for n < len(dst) {
		seg := q.segs[0][q.head:]
		c := copy(dst[n:], seg)
		n += c
		q.advance(c, len(seg))
	}
	q.length -= len(dst)
	return nil
}

// Read removes and returns the first n samples
func (q *ChannelQueue[T]) Read(n int) ([]T, error) {
	if n < 0 || n > q.length {
		return nil, ErrShortRead
	}
	out := make([]T, n)
	if err := q.ReadInto(out); err != nil {
		return nil, err
	}
	return out, nil
}

// Discard drops the first n samples
func (q *ChannelQueue[T]) Discard(n int) error {
	if n < 0 || n > q.length {
		return ErrShortRead
	}

	left := n
	for left > 0 {
		avail := len(q.segs[0]) - q.head
		c := min(left, avail)
		left -= c
		q.advance(c, avail)
	}
	q.length -= n
	return nil
}

// Reset drops everything
func (q *ChannelQueue[T]) Reset() {
	clear(q.segs)
	q.segs = q.segs[:0]
	q.head = 0
	q.length = 0
}

// advance consumes c samples from the head segment, which had avail unread
func (q *ChannelQueue[T]) advance(c, avail int) {
	if c < avail {
		q.head += c
		return
	}
	q.segs[0] = nil
	q.segs = q.segs[1:]
	q.head = 0
}
