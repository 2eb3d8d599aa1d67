package relay

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrQueueClosed is returned by Queue.Do after Stop.
var ErrQueueClosed = errors.New("conversation queue closed")

// Serializer runs fn for a conversation under the configured ordering policy.
// Do blocks until fn has returned or fn could not be scheduled.
type Serializer interface {
	Do(ctx context.Context, conversationID string, fn func(ctx context.Context)) error
}

// Direct runs every exchange immediately with no cross-exchange ordering.
type Direct struct{}

func (Direct) Do(ctx context.Context, _ string, fn func(ctx context.Context)) error {
	fn(ctx)
	return nil
}

type queueJob struct {
	ctx  context.Context
	fn   func(ctx context.Context)
	done chan struct{}
}

type lane struct {
	jobs    chan queueJob
	pending int
}

// Queue is a per-conversation single-writer queue. Each active conversation gets one
// worker goroutine that runs its exchanges in arrival order and exits after idleTimeout.
type Queue struct {
	mu          sync.Mutex
	lanes       map[string]*lane
	idleTimeout time.Duration

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewQueue creates a queue whose idle workers exit after idleTimeout.
func NewQueue(idleTimeout time.Duration) *Queue {
	if idleTimeout <= 0 {
		idleTimeout = time.Minute
	}
	return &Queue{
		lanes:       make(map[string]*lane),
		idleTimeout: idleTimeout,
		done:        make(chan struct{}),
	}
}

func (q *Queue) Do(ctx context.Context, conversationID string, fn func(ctx context.Context)) error {
	l, err := q.acquire(conversationID)
	if err != nil {
		return err
	}

	job := queueJob{ctx: ctx, fn: fn, done: make(chan struct{})}
	select {
	case l.jobs <- job:
	case <-ctx.Done():
		q.release(l)
		return ctx.Err()
	case <-q.done:
		q.release(l)
		return ErrQueueClosed
	}

	<-job.done
	return nil
}

// Stop stops accepting work. Running exchanges finish; queued ones fail with ErrQueueClosed.
func (q *Queue) Stop() {
	q.stopOnce.Do(func() {
		close(q.done)
	})
	q.wg.Wait()
}

// Active returns the number of conversations with a live worker.
func (q *Queue) Active() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.lanes)
}

func (q *Queue) acquire(conversationID string) (*lane, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	select {
	case <-q.done:
		return nil, ErrQueueClosed
	default:
	}

	l, ok := q.lanes[conversationID]
	if !ok {
		l = &lane{jobs: make(chan queueJob)}
		q.lanes[conversationID] = l
		q.wg.Add(1)
		go q.work(conversationID, l)
	}
	l.pending++
	return l, nil
}

func (q *Queue) release(l *lane) {
	q.mu.Lock()
	l.pending--
	q.mu.Unlock()
}

func (q *Queue) work(conversationID string, l *lane) {
	defer q.wg.Done()

	idle := time.NewTimer(q.idleTimeout)
	defer idle.Stop()

	for {
		select {
		case job := <-l.jobs:
			job.fn(job.ctx)
			close(job.done)
			q.release(l)
			idle.Reset(q.idleTimeout)
		case <-idle.C:
			q.mu.Lock()
			if l.pending == 0 {
				delete(q.lanes, conversationID)
				q.mu.Unlock()
				return
			}
			q.mu.Unlock()
			idle.Reset(q.idleTimeout)
		case <-q.done:
			q.mu.Lock()
			delete(q.lanes, conversationID)
			q.mu.Unlock()
			return
		}
	}
}
