package capture

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueDrainReturnsPushedEvents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q := NewQueue(ctx)

	q.Push(&ChangeEvent{Xmin: 1, Schema: "public", Table: "book", Op: "INSERT", New: map[string]interface{}{"isbn": "1"}})
	q.Push(&ChangeEvent{Xmin: 2, Schema: "public", Table: "book", Op: "INSERT", New: map[string]interface{}{"isbn": "2"}})

	events := q.Drain(10)
	require.Len(t, events, 2)
	assert.Equal(t, "1", events[0].New["isbn"])
	assert.Equal(t, "2", events[1].New["isbn"])
	assert.Equal(t, 0, q.Len())
}

func TestQueueCoalescesRepeatedNotificationsForSameRow(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q := NewQueue(ctx)

	row := map[string]interface{}{"isbn": "1"}
	q.Push(&ChangeEvent{Xmin: 1, Schema: "public", Table: "book", Op: "UPDATE", New: row})
	q.Push(&ChangeEvent{Xmin: 2, Schema: "public", Table: "book", Op: "UPDATE", New: row})

	events := q.Drain(10)
	require.Len(t, events, 1)
	assert.Equal(t, int64(2), events[0].Xmin)
}

func TestQueueTruncateSupersedesQueuedRowEvents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q := NewQueue(ctx)

	q.Push(&ChangeEvent{Xmin: 1, Schema: "public", Table: "book", Op: "INSERT", New: map[string]interface{}{"isbn": "1"}})
	q.Push(&ChangeEvent{Xmin: 2, Schema: "public", Table: "book", Op: "INSERT", New: map[string]interface{}{"isbn": "2"}})
	q.Push(&ChangeEvent{Xmin: 3, Schema: "public", Table: "book", Op: "TRUNCATE"})

	events := q.Drain(10)
	require.Len(t, events, 1)
	assert.Equal(t, "TRUNCATE", events[0].Op)
}

func TestQueueDrainRespectsMax(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q := NewQueue(ctx)

	for i := 0; i < 5; i++ {
		q.Push(&ChangeEvent{Xmin: int64(i), Schema: "public", Table: "book", Op: "INSERT", New: map[string]interface{}{"isbn": string(rune('a' + i))}})
	}

	first := q.Drain(2)
	require.Len(t, first, 2)
	assert.Equal(t, 3, q.Len())
}

func TestQueueDrainUnblocksOnContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	q := NewQueue(ctx)

	done := make(chan []*ChangeEvent, 1)
	go func() {
		done <- q.Drain(10)
	}()

	cancel()

	select {
	case events := <-done:
		assert.Nil(t, events)
	case <-time.After(time.Second):
		t.Fatal("Drain did not unblock after context cancellation")
	}
}
