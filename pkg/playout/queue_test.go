// ABOUTME: Tests for the per-channel sample queue
// ABOUTME: Checks length accounting, FIFO order and short-read handling
package playout

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seq(start, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(start + i)
	}
	return out
}

func TestQueueLengthIsSumOfWrites(t *testing.T) {
	q := NewChannelQueue[float32]()
	assert.Equal(t, 0, q.Len())

	total := 0
	for _, n := range []int{3, 0, 17, 1, 4096} {
		q.Write(seq(total, n))
		total += n
		assert.Equal(t, total, q.Len())
	}
}

func TestQueueReadReturnsPrefixInOrder(t *testing.T) {
	q := NewChannelQueue[float32]()
	q.Write(seq(0, 5))
	q.Write(seq(5, 3))
	q.Write(seq(8, 10))

	got, err := q.Read(4)
	require.NoError(t, err)
	assert.Equal(t, seq(0, 4), got)
	assert.Equal(t, 14, q.Len())

	// Spans the tail of the first segment, all of the second and part of the third
	got, err = q.Read(6)
	require.NoError(t, err)
	assert.Equal(t, seq(4, 6), got)
	assert.Equal(t, 8, q.Len())

	got, err = q.Read(8)
	require.NoError(t, err)
	assert.Equal(t, seq(10, 8), got)
	assert.Equal(t, 0, q.Len())
}

func TestQueueShortReadLeavesQueueUntouched(t *testing.T) {
	q := NewChannelQueue[float32]()
	q.Write(seq(0, 10))

	_, err := q.Read(11)
	assert.ErrorIs(t, err, ErrShortRead)

	dst := make([]float32, 11)
	assert.ErrorIs(t, q.ReadInto(dst), ErrShortRead)
	assert.ErrorIs(t, q.Discard(11), ErrShortRead)
	_, err = q.Read(-1)
	assert.ErrorIs(t, err, ErrShortRead)

	assert.Equal(t, 10, q.Len())
	got, err := q.Read(10)
	require.NoError(t, err)
	assert.Equal(t, seq(0, 10), got)
}

func TestQueueReadZero(t *testing.T) {
	q := NewChannelQueue[float32]()
	got, err := q.Read(0)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, q.ReadInto(nil))
}

func TestQueueDiscard(t *testing.T) {
	q := NewChannelQueue[float32]()
	q.Write(seq(0, 4))
	q.Write(seq(4, 4))

	require.NoError(t, q.Discard(6))
	assert.Equal(t, 2, q.Len())

	got, err := q.Read(2)
	require.NoError(t, err)
	assert.Equal(t, seq(6, 2), got)
}

func TestQueueReset(t *testing.T) {
	q := NewChannelQueue[float32]()
	q.Write(seq(0, 100))
	_, _ = q.Read(10)
	q.Reset()
	assert.Equal(t, 0, q.Len())

	q.Write(seq(7, 2))
	got, err := q.Read(2)
	require.NoError(t, err)
	assert.Equal(t, seq(7, 2), got)
}

func TestQueueIntegerSamples(t *testing.T) {
	q := NewChannelQueue[int16]()
	q.Write([]int16{1, 2, 3})
	q.Write([]int16{4})

	got, err := q.Read(4)
	require.NoError(t, err)
	assert.Equal(t, []int16{1, 2, 3, 4}, got)
}

func TestQueueMatchesReferenceFIFO(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	q := NewChannelQueue[float32]()
	var ref []float32
	next := 0

	for step := 0; step < 2000; step++ {
		if rng.Intn(2) == 0 {
			n := rng.Intn(300)
			block := seq(next, n)
			next += n
			ref = append(ref, block...)
			q.Write(block)
		} else {
			n := rng.Intn(400)
			got, err := q.Read(n)
			if n > len(ref) {
				assert.ErrorIs(t, err, ErrShortRead)
			} else {
				require.NoError(t, err)
				require.Len(t, got, n)
				if n > 0 {
					require.Equal(t, ref[:n], got)
				}
				ref = ref[n:]
			}
		}
		require.Equal(t, len(ref), q.Len())
	}
}
