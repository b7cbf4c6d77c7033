package coordinator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_AddDeduplicates(t *testing.T) {
	q := newWorkQueue()
	q.Add("t1")
	q.Add("t1")
	q.Add("t2")

	assert.Equal(t, 2, q.Len())
}

func TestQueue_GetReturnsInOrder(t *testing.T) {
	q := newWorkQueue()
	q.Add("t1")
	q.Add("t2")

	first, ok := q.Get(context.Background())
	require.True(t, ok)
	second, ok := q.Get(context.Background())
	require.True(t, ok)

	assert.Equal(t, "t1", first)
	assert.Equal(t, "t2", second)
}

func TestQueue_DirtyRequeueAfterDone(t *testing.T) {
	q := newWorkQueue()
	q.Add("t1")

	got, ok := q.Get(context.Background())
	require.True(t, ok)
	require.Equal(t, "t1", got)

	// re-added while processing: must come back after Done
	q.Add("t1")
	assert.Equal(t, 0, q.Len())

	q.Done("t1")
	assert.Equal(t, 1, q.Len())
}

func TestQueue_ShutdownUnblocksGet(t *testing.T) {
	q := newWorkQueue()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, ok := q.Get(context.Background())
		assert.False(t, ok)
	}()

	q.Shutdown()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Get did not return after Shutdown")
	}
}

func TestQueue_ContextCancellationUnblocksGet(t *testing.T) {
	q := newWorkQueue()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, ok := q.Get(ctx)
		assert.False(t, ok)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Get did not return after cancellation")
	}
}

func TestQueue_AddAfterShutdownIsIgnored(t *testing.T) {
	q := newWorkQueue()
	q.Shutdown()
	q.Add("t1")

	assert.Equal(t, 0, q.Len())
}
