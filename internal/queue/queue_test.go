package queue

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnqueueAndLen(t *testing.T) {
	q := New[string]()
	assert.Equal(t, 0, q.Len())

	q.Enqueue("a")
	q.Enqueue("b")
	assert.Equal(t, 2, q.Len())
}

func TestDrainProcessesInOrder(t *testing.T) {
	q := New[int]()
	q.Enqueue(1)
	q.Enqueue(2)
	q.Enqueue(3)

	var seen []int
	processed := q.DrainAndProcess(func(v int) error {
		seen = append(seen, v)
		return nil
	})

	assert.Equal(t, 3, processed)
	assert.Equal(t, []int{1, 2, 3}, seen)
	assert.Equal(t, 0, q.Len())
}

func TestDrainRequeuesFailures(t *testing.T) {
	q := New[int]()
	q.Enqueue(1)
	q.Enqueue(2)
	q.Enqueue(3)

	processed := q.DrainAndProcess(func(v int) error {
		if v == 2 {
			return errors.New("transport down")
		}
		return nil
	})

	assert.Equal(t, 2, processed)
	assert.Equal(t, 1, q.Len())

	// The failed item comes back on the next drain.
	var seen []int
	q.DrainAndProcess(func(v int) error {
		seen = append(seen, v)
		return nil
	})
	assert.Equal(t, []int{2}, seen)
}

func TestDrainEmptyQueue(t *testing.T) {
	q := New[int]()

	processed := q.DrainAndProcess(func(v int) error {
		t.Fatal("process should not be called")
		return nil
	})

	assert.Equal(t, 0, processed)
}

func TestItemsEnqueuedDuringDrainStay(t *testing.T) {
	q := New[int]()
	q.Enqueue(1)

	q.DrainAndProcess(func(v int) error {
		q.Enqueue(99)
		return nil
	})

	assert.Equal(t, 1, q.Len())
}
