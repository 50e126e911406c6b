package transport

import (
	"net"
	"sync"

	"github.com/Kronuz/Xapiand-sub007/cmn/nlog"
)

// writeQueue implements the write half of spec.md §4.G: "a background
// runner is enqueued at most once per connection while messages are
// waiting; it drains messages ... and flags itself stopped on empty
// queue. Reentrant enqueues must be safe." One drainer goroutine owns
// nc.Write for the lifetime of a burst, so frames from concurrent
// enqueue callers are never interleaved on the wire.
type writeQueue struct {
	nc net.Conn

	mu      sync.Mutex
	pending [][]byte
	running bool
}

// enqueue appends frame to the queue and, if no drainer is currently
// active, starts one. Safe to call from any goroutine, including from
// within the drainer's own error path.
func (q *writeQueue) enqueue(frame []byte) {
	q.mu.Lock()
	q.pending = append(q.pending, frame)
	if q.running {
		q.mu.Unlock()
		return
	}
	q.running = true
	q.mu.Unlock()
	go q.drain()
}

func (q *writeQueue) isRunning() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.running || len(q.pending) > 0
}

// drain writes queued frames one at a time until the queue is empty, then
// flags itself stopped (spec.md §4.G). A write error stops the drainer
// and discards whatever remained queued; the caller observes the broken
// connection on its next read.
func (q *writeQueue) drain() {
	for {
		q.mu.Lock()
		if len(q.pending) == 0 {
			q.running = false
			q.mu.Unlock()
			return
		}
		next := q.pending[0]
		q.pending = q.pending[1:]
		q.mu.Unlock()

		if _, err := q.nc.Write(next); err != nil {
			nlog.Warningf("transport: write %s: %v", q.nc.RemoteAddr(), err)
			q.mu.Lock()
			q.running = false
			q.pending = nil
			q.mu.Unlock()
			return
		}
	}
}
