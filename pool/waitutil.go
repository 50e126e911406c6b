// Package pool implements the shard pool & lifecycle manager: ShardEndpoint
// (spec.md §4.D) and DatabasePool (spec.md §4.E), the core concurrency
// primitive of this repository. Grounded on the teacher's condition-variable
// and atomic-counter idioms seen in res/resilver.go and core/lom.go, adapted
// from the original implementation's database/pool.h.
package pool

import (
	"sync"
	"time"
)

// waitCondDeadline waits on cond until ready() is true or deadline passes.
// The caller must hold cond.L when calling this, exactly as with a plain
// cond.Wait() loop. A zero deadline means wait forever. Returns false on
// timeout, leaving the mutex held either way (same contract as cond.Wait).
//
// This is the bridge between Go's condition variables (which have no native
// deadline support) and spec.md §5's "every blocking pool operation takes an
// absolute deadline" requirement.
func waitCondDeadline(cond *sync.Cond, deadline time.Time, ready func() bool) bool {
	if ready() {
		return true
	}
	if deadline.IsZero() {
		for !ready() {
			cond.Wait()
		}
		return true
	}
	d := time.Until(deadline)
	if d <= 0 {
		return ready()
	}
	var expired atomicBool
	timer := time.AfterFunc(d, func() {
		cond.L.Lock()
		expired.store(true)
		cond.Broadcast()
		cond.L.Unlock()
	})
	defer timer.Stop()
	for !ready() {
		if expired.load() {
			return false
		}
		cond.Wait()
	}
	return true
}

// atomicBool is a tiny, lock-protected-by-caller flag: the timer callback
// above always holds cond.L while touching it, so a plain bool would do,
// but using a dedicated type documents the intent without pulling in
// cmn/atomic's independent locking semantics into a field that is, in fact,
// always accessed under cond.L.
type atomicBool struct{ v bool }

func (b *atomicBool) store(val bool) { b.v = val }
func (b *atomicBool) load() bool     { return b.v }

// gate is a bounded counting semaphore with both blocking (deadline-aware)
// and continuation-based (callback) acquisition, used by DatabasePool to
// enforce the fleet-wide max_database_readers cap (spec.md §4.E) across all
// endpoints. cap == 0 means unbounded.
type gate struct {
	mu    sync.Mutex
	cond  *sync.Cond
	cap   int
	inUse int
	queue []func()
}

func newGate(capacity int) *gate {
	g := &gate{cap: capacity}
	g.cond = sync.NewCond(&g.mu)
	return g
}

func (g *gate) hasRoom() bool { return g.cap == 0 || g.inUse < g.cap }

// tryAcquire acquires a slot only if one is immediately available.
func (g *gate) tryAcquire() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.hasRoom() {
		g.inUse++
		return true
	}
	return false
}

// waitAcquire blocks until a slot is available or deadline passes.
func (g *gate) waitAcquire(deadline time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !waitCondDeadline(g.cond, deadline, g.hasRoom) {
		return false
	}
	g.inUse++
	return true
}

// enqueue registers cb to run (with a slot already reserved on its behalf)
// the next time one frees up. If a slot is free right now, cb runs
// synchronously before enqueue returns.
func (g *gate) enqueue(cb func()) {
	g.mu.Lock()
	if g.hasRoom() {
		g.inUse++
		g.mu.Unlock()
		cb()
		return
	}
	g.queue = append(g.queue, cb)
	g.mu.Unlock()
}

// release frees one slot. If a continuation is queued, the oldest one
// inherits the freed slot (FIFO by enqueue time, spec.md §8 P6); otherwise
// every blocked waiter is woken at once and they race for the slot.
func (g *gate) release() {
	g.mu.Lock()
	g.inUse--
	if len(g.queue) > 0 && g.hasRoom() {
		cb := g.queue[0]
		g.queue = g.queue[1:]
		g.inUse++
		g.mu.Unlock()
		asyncRun(cb)
		return
	}
	g.cond.Broadcast()
	g.mu.Unlock()
}

func (g *gate) inUseCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inUse
}
