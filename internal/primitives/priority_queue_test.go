package primitives

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPriorityQueuePopsInAscendingOrder(t *testing.T) {
	q := NewPriorityQueue[string](false)
	q.Push("c", 30)
	q.Push("a", 10)
	q.Push("b", 20)

	assert.Equal(t, 3, q.Len())
	assert.Equal(t, "a", q.Pop())
	assert.Equal(t, "b", q.Pop())
	assert.Equal(t, "c", q.Pop())
	assert.Equal(t, 0, q.Len())
}

func TestPriorityQueueReversedPopsDescending(t *testing.T) {
	q := NewPriorityQueue[string](true)
	q.Push("a", 10)
	q.Push("b", 20)

	assert.Equal(t, "b", q.Pop())
	assert.Equal(t, "a", q.Pop())
}

func TestPriorityQueuePushExistingUpdatesPriority(t *testing.T) {
	q := NewPriorityQueue[string](false)
	q.Push("a", 100)
	q.Push("b", 5)
	q.Push("a", 1)

	assert.Equal(t, 2, q.Len())
	assert.Equal(t, "a", q.Pop())
	assert.Equal(t, "b", q.Pop())
}

func TestPriorityQueuePeekDoesNotRemove(t *testing.T) {
	q := NewPriorityQueue[string](false)
	v, empty := q.Peek()
	assert.True(t, empty)
	assert.Equal(t, "", v)

	q.Push("only", 1)
	v, empty = q.Peek()
	assert.False(t, empty)
	assert.Equal(t, "only", v)
	assert.Equal(t, 1, q.Len())

	p, empty := q.PeekPriority()
	assert.False(t, empty)
	assert.EqualValues(t, 1, p)
}

func TestPriorityQueueRemove(t *testing.T) {
	q := NewPriorityQueue[string](false)
	q.Push("a", 1)
	q.Push("b", 2)

	assert.True(t, q.Remove("a"))
	assert.False(t, q.Remove("a"))
	assert.True(t, q.Contains("b"))
	assert.Equal(t, 1, q.Len())
	assert.Equal(t, "b", q.Pop())
}
