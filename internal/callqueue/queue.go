package callqueue

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	perrors "github.com/IggyIkenna/basis-strategy-v1-sub010/internal/errors"
)

const component = "callqueue"

// WorkFunc is the deferred work a queued call performs. It must honor
// ctx cancellation: the queue cancels the context on timeout but never
// forcibly kills a running call.
type WorkFunc func(ctx context.Context) (interface{}, error)

// Result is the terminal state of one call
type Result struct {
	ID       string
	Value    interface{}
	Err      error
	Duration time.Duration
}

// call is one queued unit of work
type call struct {
	id          string
	priority    int
	enqueueTime time.Time
	seq         uint64
	timeout     time.Duration
	work        WorkFunc
}

// Queue serializes all outbound calls against one external resource.
// A single worker drains calls strictly by (priority desc, enqueue order
// asc) and runs them one at a time, so no two calls against the same
// resource are ever in flight concurrently. Independent queues (one per
// venue) may run concurrently with each other.
type Queue struct {
	name     string
	capacity int

	mu      sync.Mutex
	pending callHeap
	results map[string]chan Result
	seq     uint64
	stopped bool

	wake chan struct{}
	done chan struct{}
}

// NewQueue creates and starts a sequential call queue with the given
// bounded capacity
func NewQueue(name string, capacity int) *Queue {
	q := &Queue{
		name:     name,
		capacity: capacity,
		results:  make(map[string]chan Result),
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	heap.Init(&q.pending)
	go q.worker()
	return q
}

// Name returns the queue name (typically the venue it guards)
func (q *Queue) Name() string {
	return q.name
}

// Enqueue adds work to the queue and returns its call ID. Enqueue on a
// full queue fails with a queue-full error, which is backpressure and
// deliberately distinct from a call timing out.
func (q *Queue) Enqueue(work WorkFunc, priority int, timeout time.Duration) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.stopped {
		return "", perrors.NewValidationError(component, "Enqueue",
			"queue "+q.name+" is stopped")
	}
	if q.pending.Len() >= q.capacity {
		return "", perrors.NewQueueFullError(component, "Enqueue", q.capacity)
	}

	q.seq++
	c := &call{
		id:          uuid.NewString(),
		priority:    priority,
		enqueueTime: time.Now(),
		seq:         q.seq,
		timeout:     timeout,
		work:        work,
	}

	heap.Push(&q.pending, c)
	q.results[c.id] = make(chan Result, 1)
	q.signal()

	return c.id, nil
}

// AwaitResult blocks until the call completes or the await timeout
// elapses. The await timeout is independent of the call's own timeout.
func (q *Queue) AwaitResult(callID string, timeout time.Duration) (interface{}, error) {
	q.mu.Lock()
	ch, ok := q.results[callID]
	q.mu.Unlock()

	if !ok {
		return nil, perrors.NewValidationError(component, "AwaitResult",
			"unknown call id "+callID)
	}

	select {
	case result := <-ch:
		q.mu.Lock()
		delete(q.results, callID)
		q.mu.Unlock()
		return result.Value, result.Err
	case <-time.After(timeout):
		// Nobody will come back for this result; drop the entry so the
		// worker discards it instead of parking it in the map forever
		q.mu.Lock()
		delete(q.results, callID)
		q.mu.Unlock()
		return nil, perrors.NewTimeoutError(component, "AwaitResult",
			"timed out waiting for call "+callID)
	}
}

// Depth returns the number of calls waiting to run
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pending.Len()
}

// Stop drains in-flight and pending work gracefully, then shuts the
// worker down. Further enqueues are rejected immediately; the running
// call is never forcibly cancelled.
func (q *Queue) Stop() {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		<-q.done
		return
	}
	q.stopped = true
	q.mu.Unlock()

	q.signal()
	<-q.done
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// worker drains the heap one call at a time
func (q *Queue) worker() {
	defer close(q.done)

	for {
		q.mu.Lock()
		if q.pending.Len() == 0 {
			if q.stopped {
				q.mu.Unlock()
				return
			}
			q.mu.Unlock()
			<-q.wake
			continue
		}
		c := heap.Pop(&q.pending).(*call)
		q.mu.Unlock()

		result := q.run(c)

		q.mu.Lock()
		ch, ok := q.results[c.id]
		q.mu.Unlock()
		if ok {
			ch <- result
		}
	}
}

// run executes one call with its own timeout. A timeout fails only this
// call; the context is cancelled so well-behaved work returns promptly,
// and the worker moves on.
func (q *Queue) run(c *call) Result {
	start := time.Now()

	ctx := context.Background()
	cancel := context.CancelFunc(func() {})
	if c.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
	}
	defer cancel()

	type outcome struct {
		value interface{}
		err   error
	}
	outcomeCh := make(chan outcome, 1)

	go func() {
		value, err := c.work(ctx)
		outcomeCh <- outcome{value: value, err: err}
	}()

	select {
	case o := <-outcomeCh:
		return Result{ID: c.id, Value: o.value, Err: o.err, Duration: time.Since(start)}
	case <-ctx.Done():
		return Result{
			ID:       c.id,
			Err:      perrors.NewTimeoutError(component, "run", "call "+c.id+" exceeded its timeout"),
			Duration: time.Since(start),
		}
	}
}

// callHeap orders calls by priority desc, then enqueue order asc
type callHeap []*call

func (h callHeap) Len() int { return len(h) }

func (h callHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	return h[i].seq < h[j].seq
}

func (h callHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *callHeap) Push(x interface{}) {
	*h = append(*h, x.(*call))
}

func (h *callHeap) Pop() interface{} {
	old := *h
	n := len(old)
	c := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return c
}
