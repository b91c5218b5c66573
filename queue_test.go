package streams

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSizedQueue_EnqueueDequeueOrder(t *testing.T) {
	var q sizedQueue
	q.enqueue("a", 1)
	q.enqueue("b", 2)
	q.enqueue("c", 3)
	assert.Equal(t, 3, q.len())
	assert.Equal(t, float64(6), q.total)

	e := q.dequeue()
	assert.Equal(t, "a", e.value)
	assert.Equal(t, float64(5), q.total)

	e = q.dequeue()
	assert.Equal(t, "b", e.value)

	e = q.dequeue()
	assert.Equal(t, "c", e.value)
	assert.Equal(t, 0, q.len())
	// total snaps to zero rather than drifting on the last dequeue.
	assert.Equal(t, float64(0), q.total)
}

func TestSizedQueue_Peek(t *testing.T) {
	var q sizedQueue
	_, ok := q.peek()
	assert.False(t, ok)

	q.enqueue("x", 5)
	entry, ok := q.peek()
	require.True(t, ok)
	assert.Equal(t, "x", entry.value)
	assert.Equal(t, 1, q.len(), "peek must not remove")
}

func TestSizedQueue_Reset(t *testing.T) {
	var q sizedQueue
	q.enqueue("a", 1)
	q.enqueue("b", 2)
	q.reset()
	assert.Equal(t, 0, q.len())
	assert.Equal(t, float64(0), q.total)
}

func TestSizedQueue_DequeuePanicsOnEmpty(t *testing.T) {
	var q sizedQueue
	assert.Panics(t, func() { q.dequeue() })
}
