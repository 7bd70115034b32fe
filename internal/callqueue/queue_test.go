package callqueue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perrors "github.com/IggyIkenna/basis-strategy-v1-sub010/internal/errors"
)

func TestQueue_PriorityThenFIFOOrder(t *testing.T) {
	q := NewQueue("test", 16)
	defer q.Stop()

	var mu sync.Mutex
	var order []string

	// Hold the worker on a gate so all three calls are queued before any runs
	gate := make(chan struct{})
	gateID, err := q.Enqueue(func(ctx context.Context) (interface{}, error) {
		<-gate
		return nil, nil
	}, 100, time.Second)
	require.NoError(t, err)

	record := func(name string) WorkFunc {
		return func(ctx context.Context) (interface{}, error) {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return name, nil
		}
	}

	idLow1, err := q.Enqueue(record("low-1"), 1, time.Second)
	require.NoError(t, err)
	idHigh, err := q.Enqueue(record("high"), 5, time.Second)
	require.NoError(t, err)
	idLow2, err := q.Enqueue(record("low-2"), 1, time.Second)
	require.NoError(t, err)

	close(gate)

	_, err = q.AwaitResult(gateID, time.Second)
	require.NoError(t, err)
	for _, id := range []string{idHigh, idLow1, idLow2} {
		_, err := q.AwaitResult(id, time.Second)
		require.NoError(t, err)
	}

	assert.Equal(t, []string{"high", "low-1", "low-2"}, order)
}

func TestQueue_ConcurrentEnqueueNoLostOrDuplicatedIDs(t *testing.T) {
	const producers = 8
	const perProducer = 25

	q := NewQueue("test", producers*perProducer)
	defer q.Stop()

	var wg sync.WaitGroup
	idCh := make(chan string, producers*perProducer)

	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				id, err := q.Enqueue(func(ctx context.Context) (interface{}, error) {
					return nil, nil
				}, i%3, time.Second)
				if err == nil {
					idCh <- id
				}
			}
		}()
	}
	wg.Wait()
	close(idCh)

	seen := make(map[string]bool)
	count := 0
	for id := range idCh {
		assert.False(t, seen[id], "duplicate call id %s", id)
		seen[id] = true
		count++
	}
	require.Equal(t, producers*perProducer, count)

	// Every call must complete exactly once
	for id := range seen {
		_, err := q.AwaitResult(id, 2*time.Second)
		assert.NoError(t, err, "call %s lost", id)
	}
}

func TestQueue_FullEnqueueIsBackpressureNotTimeout(t *testing.T) {
	q := NewQueue("test", 1)
	defer q.Stop()

	gate := make(chan struct{})
	defer close(gate)

	// Occupy the worker, then fill the single pending slot
	_, err := q.Enqueue(func(ctx context.Context) (interface{}, error) {
		<-gate
		return nil, nil
	}, 0, time.Second)
	require.NoError(t, err)

	// The worker may or may not have dequeued the blocker yet; fill until full
	var fullErr error
	for i := 0; i < 3; i++ {
		_, fullErr = q.Enqueue(func(ctx context.Context) (interface{}, error) {
			return nil, nil
		}, 0, time.Second)
		if fullErr != nil {
			break
		}
	}

	require.Error(t, fullErr)
	assert.True(t, perrors.Is(fullErr, perrors.ErrorCategoryQueueFull))
	assert.False(t, perrors.Is(fullErr, perrors.ErrorCategoryTimeout))
}

func TestQueue_CallTimeoutFailsOnlyThatCall(t *testing.T) {
	q := NewQueue("test", 8)
	defer q.Stop()

	slowID, err := q.Enqueue(func(ctx context.Context) (interface{}, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(5 * time.Second):
			return "too late", nil
		}
	}, 0, 30*time.Millisecond)
	require.NoError(t, err)

	fastID, err := q.Enqueue(func(ctx context.Context) (interface{}, error) {
		return "ok", nil
	}, 0, time.Second)
	require.NoError(t, err)

	_, err = q.AwaitResult(slowID, 2*time.Second)
	require.Error(t, err)
	assert.True(t, perrors.Is(err, perrors.ErrorCategoryTimeout))

	value, err := q.AwaitResult(fastID, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "ok", value)
}

func TestQueue_AwaitResultTimeout(t *testing.T) {
	q := NewQueue("test", 8)
	defer q.Stop()

	id, err := q.Enqueue(func(ctx context.Context) (interface{}, error) {
		time.Sleep(200 * time.Millisecond)
		return nil, nil
	}, 0, time.Second)
	require.NoError(t, err)

	_, err = q.AwaitResult(id, 10*time.Millisecond)
	require.Error(t, err)
	assert.True(t, perrors.Is(err, perrors.ErrorCategoryTimeout))
}

func TestQueue_AwaitTimeoutReleasesResultEntry(t *testing.T) {
	q := NewQueue("test", 8)
	defer q.Stop()

	id, err := q.Enqueue(func(ctx context.Context) (interface{}, error) {
		time.Sleep(100 * time.Millisecond)
		return "late", nil
	}, 0, time.Second)
	require.NoError(t, err)

	_, err = q.AwaitResult(id, 5*time.Millisecond)
	require.Error(t, err)
	assert.True(t, perrors.Is(err, perrors.ErrorCategoryTimeout))

	// An abandoned call must not keep a slot in the results map; a second
	// await for the same id is a validation error, not another wait
	_, err = q.AwaitResult(id, 5*time.Millisecond)
	require.Error(t, err)
	assert.True(t, perrors.Is(err, perrors.ErrorCategoryValidation))
}

func TestQueue_StopDrainsThenRejects(t *testing.T) {
	q := NewQueue("test", 8)

	var completed int
	var mu sync.Mutex
	for i := 0; i < 5; i++ {
		_, err := q.Enqueue(func(ctx context.Context) (interface{}, error) {
			mu.Lock()
			completed++
			mu.Unlock()
			return nil, nil
		}, 0, time.Second)
		require.NoError(t, err)
	}

	q.Stop()

	mu.Lock()
	assert.Equal(t, 5, completed)
	mu.Unlock()

	_, err := q.Enqueue(func(ctx context.Context) (interface{}, error) {
		return nil, nil
	}, 0, time.Second)
	assert.Error(t, err)
}

func TestQueue_UnknownCallID(t *testing.T) {
	q := NewQueue("test", 8)
	defer q.Stop()

	_, err := q.AwaitResult("no-such-call", 10*time.Millisecond)
	require.Error(t, err)
	assert.True(t, perrors.Is(err, perrors.ErrorCategoryValidation))
}
