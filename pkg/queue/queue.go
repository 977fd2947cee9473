package queue

import (
	"context"
	"fmt"
	"sync"

	"github.com/identitylab/fedsync/pkg/identity"
)

// Queue holds candidates awaiting synchronization. The waiting and running
// sets share one lock so the dedup check, the insert and the
// waiting-to-running move are each a single atomic step.
type Queue struct {
	mu   sync.Mutex
	cond *sync.Cond

	// waiting preserves FIFO order; waitingKeys mirrors it for O(1) dedup.
	waiting     []*identity.Candidate
	waitingKeys map[string]struct{}
	running     map[string]*identity.Candidate
}

// New creates an empty queue.
func New() *Queue {
	q := &Queue{
		waitingKeys: make(map[string]struct{}),
		running:     make(map[string]*identity.Candidate),
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// EnqueueIfAbsent adds the candidate to the waiting set unless an equal
// candidate is already waiting or running. It reports whether the candidate
// was accepted; a dropped duplicate is not an error.
func (q *Queue) EnqueueIfAbsent(c *identity.Candidate) bool {
	key := c.Key()

	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.waitingKeys[key]; ok {
		return false
	}
	if _, ok := q.running[key]; ok {
		return false
	}
	q.waiting = append(q.waiting, c)
	q.waitingKeys[key] = struct{}{}
	q.cond.Signal()
	return true
}

// Take blocks until a waiting candidate exists, moves it to the running set
// and returns it. It returns the context error when ctx is cancelled before
// a candidate becomes available.
func (q *Queue) Take(ctx context.Context) (*identity.Candidate, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	// Wake the cond wait when the caller gives up.
	stop := context.AfterFunc(ctx, func() {
		q.mu.Lock()
		q.cond.Broadcast()
		q.mu.Unlock()
	})
	defer stop()

	for len(q.waiting) == 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		q.cond.Wait()
	}

	c := q.waiting[0]
	q.waiting = q.waiting[1:]
	delete(q.waitingKeys, c.Key())
	q.running[c.Key()] = c
	return c, nil
}

// Remove drops a candidate from the running set once its synchronization
// attempt has finished. A missing entry indicates a bookkeeping bug and is
// reported as an error.
func (q *Queue) Remove(c *identity.Candidate) error {
	key := c.Key()

	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.running[key]; !ok {
		return fmt.Errorf("candidate %s is not in the running set", key)
	}
	delete(q.running, key)
	return nil
}

// WaitingJobs returns the number of candidates waiting to be synchronized.
func (q *Queue) WaitingJobs() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.waiting)
}

// RunningJobs returns the number of candidates currently being synchronized.
func (q *Queue) RunningJobs() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.running)
}
