package pool

import (
	"sync"
	"time"

	"github.com/Kronuz/Xapiand-sub007/cmn/cos"
	"github.com/Kronuz/Xapiand-sub007/cmn/debug"
	"github.com/Kronuz/Xapiand-sub007/cmn/nlog"
	"github.com/Kronuz/Xapiand-sub007/meta"
	"github.com/Kronuz/Xapiand-sub007/shard"
	"github.com/pkg/errors"
)

// trackedShard pairs a Shard with the number of outstanding checkouts
// referencing it.
type trackedShard struct {
	sh   *shard.Shard
	refs int
}

// pendingCB is one entry in ShardEndpoint.callbacks: a continuation waiting
// for either the writable handle or a readable handle to free up.
type pendingCB struct {
	writable bool
	flags    shard.OpenFlags
	deadline time.Time
	cb       func(*shard.Shard, error)
}

// deadlinePassed reports whether d is a non-zero deadline that has already
// elapsed.
func deadlinePassed(d time.Time) bool { return !d.IsZero() && !time.Now().Before(d) }

// ShardEndpoint is the pool's per-endpoint slot: at most one writable Shard,
// a bounded set of reusable readable Shards, a pending-acquirer queue, and a
// lock used during replication (spec.md §3, §4.D).
type ShardEndpoint struct {
	mu sync.Mutex

	ep     meta.Endpoint
	engine shard.Engine

	// maxReaders bounds this endpoint's own readables slice (spec.md §3:
	// "readables: ordered collection of Shard, bounded by
	// max_database_readers"); 0 means unbounded.
	maxReaders int

	writable  *trackedShard
	readables []*trackedShard

	locked   bool
	refs     int
	finished bool

	writableCond  *sync.Cond
	lockableCond  *sync.Cond
	readablesCond *sync.Cond

	callbacks []pendingCB
}

func newShardEndpoint(ep meta.Endpoint, engine shard.Engine, maxReaders int) *ShardEndpoint {
	e := &ShardEndpoint{ep: ep, engine: engine, maxReaders: maxReaders}
	e.writableCond = sync.NewCond(&e.mu)
	e.lockableCond = sync.NewCond(&e.mu)
	e.readablesCond = sync.NewCond(&e.mu)
	return e
}

// Endpoint returns the Endpoint this slot serves.
func (e *ShardEndpoint) Endpoint() meta.Endpoint { return e.ep }

// Refs returns the current outstanding reference count, used by
// DatabasePool's eviction precondition (refs == 0 && !locked).
func (e *ShardEndpoint) Refs() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.refs
}

// Locked reports whether a replication swap currently holds this endpoint.
func (e *ShardEndpoint) Locked() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.locked
}

// WritableInUse reports whether this endpoint's writable Shard is currently
// checked out, for the stats package's writable_in_use gauge.
func (e *ShardEndpoint) WritableInUse() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.writable != nil && e.writable.refs > 0
}

// Evictable reports whether the pool may safely drop this slot right now
// (spec.md §3 invariant: "refs == 0 && !locked is the precondition for
// eviction").
func (e *ShardEndpoint) Evictable() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.refs == 0 && !e.locked
}

// openWithRetry opens a new engine handle, retrying once after a short
// backoff on transient failure before surfacing the error, per spec.md §4.D
// ("Transient shard open errors are retried once after a short backoff").
func (e *ShardEndpoint) openWithRetry(kind shard.Kind, flags shard.OpenFlags) (*shard.Shard, error) {
	db, err := e.engine.Open(e.ep.String(), flags)
	if err != nil {
		time.Sleep(10 * time.Millisecond)
		db, err = e.engine.Open(e.ep.String(), flags)
		if err != nil {
			return nil, errors.Wrapf(err, "open shard %s (kind=%s)", e.ep, kind)
		}
	}
	return shard.New(kind, e.ep, flags, db), nil
}

// Checkout acquires a Shard handle per spec.md §4.D. If onAvailable is nil,
// Checkout blocks (subject to deadline); if onAvailable is non-nil and the
// handle is not immediately available, Checkout enqueues the continuation
// and returns (nil, true, nil) -- the caller must not block further and
// onAvailable will run exactly once on a future Checkin.
func (e *ShardEndpoint) Checkout(flags shard.OpenFlags, deadline time.Time, onAvailable func(*shard.Shard, error)) (sh *shard.Shard, pending bool, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.finished {
		return nil, false, cos.NewErrPoolClosed(e.ep.String())
	}

	if flags.Has(shard.WRITABLE) {
		return e.checkoutWritableLocked(flags, deadline, onAvailable)
	}
	return e.checkoutReadableLocked(flags, deadline, onAvailable)
}

func (e *ShardEndpoint) checkoutWritableLocked(flags shard.OpenFlags, deadline time.Time, onAvailable func(*shard.Shard, error)) (*shard.Shard, bool, error) {
	for {
		if e.finished {
			return nil, false, cos.NewErrPoolClosed(e.ep.String())
		}
		if e.locked {
			if onAvailable != nil {
				if deadlinePassed(deadline) {
					return nil, false, cos.NewErrTimeout("writable checkout %s", e.ep)
				}
				e.callbacks = append(e.callbacks, pendingCB{writable: true, flags: flags, deadline: deadline, cb: onAvailable})
				return nil, true, nil
			}
			ready := func() bool { return !e.locked || e.finished }
			if !waitCondDeadline(e.lockableCond, deadline, ready) {
				return nil, false, cos.NewErrTimeout("writable checkout %s: locked", e.ep)
			}
			continue
		}
		if e.writable != nil {
			if e.writable.refs == 0 {
				e.writable.refs++
				e.refs++
				return e.writable.sh, false, nil
			}
			if onAvailable != nil {
				if deadlinePassed(deadline) {
					return nil, false, cos.NewErrTimeout("writable checkout %s", e.ep)
				}
				e.callbacks = append(e.callbacks, pendingCB{writable: true, flags: flags, deadline: deadline, cb: onAvailable})
				return nil, true, nil
			}
			ready := func() bool {
				return e.writable == nil || e.writable.refs == 0 || e.locked || e.finished
			}
			if !waitCondDeadline(e.writableCond, deadline, ready) {
				return nil, false, cos.NewErrTimeout("writable checkout %s: in use", e.ep)
			}
			continue
		}
		sh, err := e.openWithRetry(shard.Writable, flags)
		if err != nil {
			return nil, false, err
		}
		e.writable = &trackedShard{sh: sh, refs: 1}
		e.refs++
		return sh, false, nil
	}
}

func (e *ShardEndpoint) checkoutReadableLocked(flags shard.OpenFlags, deadline time.Time, onAvailable func(*shard.Shard, error)) (*shard.Shard, bool, error) {
	for {
		if e.finished {
			return nil, false, cos.NewErrPoolClosed(e.ep.String())
		}
		if e.locked {
			if onAvailable != nil {
				if deadlinePassed(deadline) {
					return nil, false, cos.NewErrTimeout("readable checkout %s", e.ep)
				}
				e.callbacks = append(e.callbacks, pendingCB{writable: false, flags: flags, deadline: deadline, cb: onAvailable})
				return nil, true, nil
			}
			ready := func() bool { return !e.locked || e.finished }
			if !waitCondDeadline(e.lockableCond, deadline, ready) {
				return nil, false, cos.NewErrTimeout("readable checkout %s: locked", e.ep)
			}
			continue
		}
		for _, ts := range e.readables {
			if ts.refs == 0 {
				ts.refs++
				e.refs++
				return ts.sh, false, nil
			}
		}
		if e.maxReaders == 0 || len(e.readables) < e.maxReaders {
			sh, err := e.openWithRetry(shard.Readable, flags)
			if err != nil {
				return nil, false, err
			}
			e.readables = append(e.readables, &trackedShard{sh: sh, refs: 1})
			e.refs++
			return sh, false, nil
		}
		if onAvailable != nil {
			if deadlinePassed(deadline) {
				return nil, false, cos.NewErrResourceExhausted("readable checkout %s: at capacity", e.ep)
			}
			e.callbacks = append(e.callbacks, pendingCB{writable: false, flags: flags, deadline: deadline, cb: onAvailable})
			return nil, true, nil
		}
		ready := func() bool {
			if e.locked || e.finished {
				return true
			}
			for _, ts := range e.readables {
				if ts.refs == 0 {
					return true
				}
			}
			return len(e.readables) < e.maxReaders
		}
		if !waitCondDeadline(e.readablesCond, deadline, ready) {
			return nil, false, cos.NewErrResourceExhausted("readable checkout %s: at capacity", e.ep)
		}
	}
}

// Checkin releases a previously checked-out Shard, waking the appropriate
// waiters (spec.md §4.D checkin contract).
func (e *ShardEndpoint) Checkin(sh *shard.Shard) {
	e.mu.Lock()

	var wasWritable bool
	if e.writable != nil && e.writable.sh == sh {
		e.writable.refs--
		debug.Assert(e.writable.refs >= 0)
		e.refs--
		wasWritable = true
	} else {
		for _, ts := range e.readables {
			if ts.sh == sh {
				ts.refs--
				debug.Assert(ts.refs >= 0)
				e.refs--
				break
			}
		}
	}

	if wasWritable {
		e.writableCond.Broadcast()
	} else {
		e.readablesCond.Broadcast()
	}
	if e.refs == 0 {
		e.lockableCond.Broadcast()
	}

	if len(e.callbacks) > 0 {
		next := e.callbacks[0]
		e.callbacks = e.callbacks[1:]
		e.mu.Unlock()
		// Re-drive a full Checkout on behalf of the continuation: it may
		// still have to wait again (e.g. woken for the wrong reason), but
		// per-connection handlers always pass onAvailable so this never
		// blocks this goroutine.
		sh2, pending, err := e.Checkout(next.flags, next.deadline, next.cb)
		if !pending {
			next.cb(sh2, err)
		}
		return
	}
	e.mu.Unlock()
}

// Lock sets locked=true once every existing handle for this endpoint is
// idle, used while swapping in a replication snapshot (spec.md §4.D).
func (e *ShardEndpoint) Lock(deadline time.Time) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	ready := func() bool { return e.refs == 0 || e.finished }
	if !waitCondDeadline(e.lockableCond, deadline, ready) {
		return cos.NewErrTimeout("lock %s: refs did not drain", e.ep)
	}
	if e.finished {
		return cos.NewErrPoolClosed(e.ep.String())
	}
	debug.Assert(e.refs == 0)
	e.locked = true
	return nil
}

// Unlock clears the replication lock, wakes all blocking waiters, and
// re-drives any continuation-style checkouts that queued into e.callbacks
// while locked -- otherwise they'd starve until some unrelated future
// Checkin happened to run (spec.md §8 P6: waiting checkouts resume in FIFO
// order of callbacks enqueue time).
func (e *ShardEndpoint) Unlock() {
	e.mu.Lock()
	e.locked = false
	cbs := e.callbacks
	e.callbacks = nil
	e.writableCond.Broadcast()
	e.readablesCond.Broadcast()
	e.lockableCond.Broadcast()
	e.mu.Unlock()

	// Re-drive each queued continuation through a full Checkout, the same
	// way Checkin does for the one at the head of the queue: it may still
	// have to wait again (e.g. a writable someone else grabbed first), in
	// which case it re-enqueues itself in FIFO order behind any callback
	// dispatch added, but it never blocks this goroutine since every
	// per-connection handler passes onAvailable.
	for _, next := range cbs {
		next := next
		sh, pending, err := e.Checkout(next.flags, next.deadline, next.cb)
		if !pending {
			next.cb(sh, err)
		}
	}
}

// SwapWritable atomically replaces the writable shard (used by replication
// after applying a switch-in directory); caller must hold the lock.
func (e *ShardEndpoint) SwapWritable(sh *shard.Shard) {
	e.mu.Lock()
	defer e.mu.Unlock()
	debug.Assert(e.locked)
	if e.writable != nil {
		_ = e.writable.sh.Close()
	}
	e.writable = &trackedShard{sh: sh}
}

// finishLocked marks the endpoint as rejecting new checkouts, returning the
// queued continuations so the caller can fail them asynchronously once e.mu
// is released (spec.md §5: "Connection teardown sets finished on pending
// ShardEndpoint queues").
func (e *ShardEndpoint) finishLocked() []pendingCB {
	e.finished = true
	cbs := e.callbacks
	e.callbacks = nil
	e.writableCond.Broadcast()
	e.readablesCond.Broadcast()
	e.lockableCond.Broadcast()
	return cbs
}

func (e *ShardEndpoint) finish() {
	e.mu.Lock()
	cbs := e.finishLocked()
	e.mu.Unlock()
	for _, cb := range cbs {
		cb := cb
		asyncRun(func() { cb.cb(nil, cos.NewErrPoolClosed(e.ep.String())) })
	}
}

// closeAll closes every handle this endpoint owns -- only safe once
// Evictable() is true.
func (e *ShardEndpoint) closeAll() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.writable != nil {
		if err := e.writable.sh.Close(); err != nil {
			nlog.Warningf("pool: close writable %s: %v", e.ep, err)
		}
		e.writable = nil
	}
	for _, ts := range e.readables {
		if err := ts.sh.Close(); err != nil {
			nlog.Warningf("pool: close readable %s: %v", e.ep, err)
		}
	}
	e.readables = nil
}
