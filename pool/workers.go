package pool

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// defaultAsyncWorkers bounds the concurrency of off-path continuation work
// (gate.release's queued callback, a finished endpoint's queued failures),
// per spec.md §5: "long-running or blocking work runs on a bounded worker
// pool", not an unbounded goroutine-per-event spawn.
const defaultAsyncWorkers = 64

var asyncSem = semaphore.NewWeighted(defaultAsyncWorkers)

// asyncRun dispatches f onto the bounded pool. context.Background() never
// cancels, so Acquire only blocks until a slot frees -- it cannot fail here.
func asyncRun(f func()) {
	_ = asyncSem.Acquire(context.Background(), 1)
	go func() {
		defer asyncSem.Release(1)
		f()
	}()
}
