package engine

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventQueue_FIFO(t *testing.T) {
	q := newEventQueue()

	for _, id := range []string{"A", "B", "C"} {
		require.True(t, q.Enqueue(ImageTrashed{ID: id}))
	}

	for _, want := range []string{"A", "B", "C"} {
		got, ok := q.TryDequeue()
		require.True(t, ok)
		assert.Equal(t, ImageTrashed{ID: want}, got)
	}
}

func TestEventQueue_TryDequeue_Empty(t *testing.T) {
	q := newEventQueue()

	ev, ok := q.TryDequeue()
	assert.False(t, ok, "dequeue from empty queue should return false")
	assert.Nil(t, ev)
}

func TestEventQueue_WaitSignalsOnEnqueue(t *testing.T) {
	q := newEventQueue()

	go func() {
		time.Sleep(10 * time.Millisecond)
		q.Enqueue(TrashEmptied{})
	}()

	select {
	case <-q.Wait():
	case <-time.After(time.Second):
		t.Fatal("wait did not signal")
	}

	ev, ok := q.TryDequeue()
	require.True(t, ok)
	assert.Equal(t, "TrashEmptied", ev.Kind())
}

func TestEventQueue_Close(t *testing.T) {
	q := newEventQueue()
	q.Close()
	q.Close() // idempotent

	assert.False(t, q.Enqueue(TrashEmptied{}), "enqueue after close should return false")

	select {
	case <-q.Wait():
	case <-time.After(100 * time.Millisecond):
		t.Fatal("wait channel not closed")
	}
}

func TestEventQueue_Len(t *testing.T) {
	q := newEventQueue()
	assert.Equal(t, 0, q.Len())

	q.Enqueue(ImageRemoved{ID: "1"})
	q.Enqueue(ImageRemoved{ID: "2"})
	assert.Equal(t, 2, q.Len())

	q.TryDequeue()
	assert.Equal(t, 1, q.Len())
}

func TestEventQueue_ConcurrentProducers(t *testing.T) {
	q := newEventQueue()

	const producers = 10
	const perProducer = 100

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Enqueue(TrashEmptied{})
			}
		}()
	}
	wg.Wait()

	n := 0
	for {
		if _, ok := q.TryDequeue(); !ok {
			break
		}
		n++
	}
	assert.Equal(t, producers*perProducer, n)
}
