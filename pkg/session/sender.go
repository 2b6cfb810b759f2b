package session

import (
	"context"
	"sync"
)

// sendJob is one backend request issued from the loop. done, when set, is
// posted back to the loop with the result.
type sendJob struct {
	send func(ctx context.Context) error
	done func(error)
	move bool
}

// sender runs order-sensitive requests one at a time, in the order they were
// pushed. A move still waiting in the queue is replaced by a newer move
// pushed directly behind it, so only the latest direction goes out.
type sender struct {
	mu     sync.Mutex
	queue  []sendJob
	closed bool
	wake   chan struct{}
	done   chan struct{}
}

func newSender() *sender {
	return &sender{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

// push queues j. It reports false once the sender is closed.
func (q *sender) push(j sendJob) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	if n := len(q.queue); j.move && n > 0 && q.queue[n-1].move {
		q.queue[n-1] = j
	} else {
		q.queue = append(q.queue, j)
	}
	select {
	case q.wake <- struct{}{}:
	default:
	}
	return true
}

func (q *sender) next() (sendJob, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.queue) == 0 {
		return sendJob{}, false
	}
	j := q.queue[0]
	q.queue = q.queue[1:]
	return j, true
}

func (q *sender) pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queue)
}

// run executes queued jobs until close, then drains what is left.
func (q *sender) run(exec func(sendJob)) {
	defer close(q.done)
	for range q.wake {
		for {
			j, ok := q.next()
			if !ok {
				break
			}
			exec(j)
		}
	}
	for {
		j, ok := q.next()
		if !ok {
			return
		}
		exec(j)
	}
}

// close stops accepting jobs. run returns after the queue is drained.
func (q *sender) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.wake)
	}
}

func (q *sender) wait() { <-q.done }
