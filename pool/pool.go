package pool

import (
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Kronuz/Xapiand-sub007/cmn"
	"github.com/Kronuz/Xapiand-sub007/cmn/cos"
	"github.com/Kronuz/Xapiand-sub007/cmn/nlog"
	"github.com/Kronuz/Xapiand-sub007/hk"
	"github.com/Kronuz/Xapiand-sub007/lru"
	"github.com/Kronuz/Xapiand-sub007/meta"
	"github.com/Kronuz/Xapiand-sub007/shard"
)

const hkName = "database-pool-cleanup"

// DatabasePool is the fleet-wide shard lifecycle manager (spec.md §4.E): an
// LRU of ShardEndpoint slots bounded by max_databases, plus a fleet-wide
// counting semaphore bounding outstanding readers across every endpoint by
// max_database_readers. Grounded on the teacher's resource-pool idiom in
// res/resilver.go (bounded worker pool + housekeeping-driven reclaim).
type DatabasePool struct {
	engine shard.Engine

	mu         sync.Mutex
	endpoints  *lru.Cache[string, *ShardEndpoint]
	maxDBs     int
	readerGate *gate

	finished bool
}

func New(engine shard.Engine, cfg *cmn.Config) *DatabasePool {
	if cfg == nil {
		cfg = cmn.DefaultConfig()
	}
	p := &DatabasePool{
		engine:     engine,
		endpoints:  lru.New[string, *ShardEndpoint](0, 0), // bounding done explicitly below
		maxDBs:     cfg.Pool.MaxDatabases,
		readerGate: newGate(cfg.Pool.MaxDatabaseReaders),
	}
	p.endpoints.OnEvict(func(key string, se *ShardEndpoint) {
		se.closeAll()
	})
	hk.Reg(hkName, func() time.Duration {
		p.Cleanup(false)
		return cfg.Pool.CleanupInterval
	}, cfg.Pool.CleanupInterval)
	return p
}

func (p *DatabasePool) getOrCreateEndpointLocked(ep meta.Endpoint) *ShardEndpoint {
	key := ep.String()
	if se, ok := p.endpoints.Find(key); ok {
		return se
	}
	se := newShardEndpoint(ep, p.engine, 0)
	p.endpoints.Insert(key, se)
	// The slot we just created has refs == 0 until the caller's Checkout
	// actually lands on it a moment later, so it would otherwise look like
	// the best eviction candidate; protect it from its own cleanup pass.
	p.cleanupLockedExcept(key)
	return se
}

// Checkout acquires one Shard for ep (spec.md §4.D, §4.E). Readable
// checkouts are additionally gated by the fleet-wide reader cap; writable
// checkouts are bounded only by the per-endpoint single-writable invariant
// enforced inside ShardEndpoint.
func (p *DatabasePool) Checkout(ep meta.Endpoint, flags shard.OpenFlags, deadline time.Time, onAvailable func(*shard.Shard, error)) (*shard.Shard, bool, error) {
	p.mu.Lock()
	if p.finished {
		p.mu.Unlock()
		return nil, false, cos.NewErrPoolClosed(ep.String())
	}
	se := p.getOrCreateEndpointLocked(ep)
	p.mu.Unlock()

	if !flags.Has(shard.WRITABLE) {
		return p.checkoutReadable(se, ep, flags, deadline, onAvailable)
	}
	return se.Checkout(flags, deadline, onAvailable)
}

func (p *DatabasePool) checkoutReadable(se *ShardEndpoint, ep meta.Endpoint, flags shard.OpenFlags, deadline time.Time, onAvailable func(*shard.Shard, error)) (*shard.Shard, bool, error) {
	if onAvailable == nil {
		if !p.readerGate.waitAcquire(deadline) {
			return nil, false, cos.NewErrTimeout("fleet reader cap: checkout %s", ep)
		}
		sh, _, err := se.Checkout(flags, deadline, nil)
		if err != nil {
			p.readerGate.release()
			return nil, false, err
		}
		return sh, false, nil
	}

	if deadlinePassed(deadline) {
		return nil, false, cos.NewErrTimeout("fleet reader cap: checkout %s", ep)
	}
	if p.readerGate.tryAcquire() {
		sh, pending, err := se.Checkout(flags, deadline, onAvailable)
		if err != nil {
			p.readerGate.release()
			return nil, pending, err
		}
		if !pending {
			return sh, false, nil
		}
		// the endpoint queued its own continuation; the fleet slot stays
		// reserved for it and is released when Checkin eventually fires.
		return nil, true, nil
	}
	// no fleet-wide slot free: queue behind it. The gate itself runs cb with
	// a slot already reserved on its behalf, in FIFO order of enqueue time
	// (spec.md §8 P6).
	p.readerGate.enqueue(func() {
		sh, pending, err := se.Checkout(flags, deadline, onAvailable)
		if !pending {
			if err != nil {
				p.readerGate.release()
			}
			onAvailable(sh, err)
		}
	})
	return nil, true, nil
}

// Checkin releases a Shard previously obtained from Checkout.
func (p *DatabasePool) Checkin(ep meta.Endpoint, sh *shard.Shard) {
	p.mu.Lock()
	se, ok := p.endpoints.Peek(ep.String())
	p.mu.Unlock()
	if !ok {
		return
	}
	se.Checkin(sh)
	if sh.Kind == shard.Readable {
		p.readerGate.release()
	}
}

// CheckoutBatch acquires a Shard for every endpoint in eps. Endpoints are
// always *submitted* for acquisition in the pool's canonical sorted order
// (spec.md §4.E) to avoid deadlock against concurrent batch callers, but the
// waits themselves run concurrently via errgroup -- distinct endpoints never
// share a lock, so no goroutine here ever blocks on one endpoint while
// holding another, which is what keeps the fixed submission order safe. On
// any failure every shard already acquired in this call is rolled back and
// the error is returned (all-or-none). The returned slice is in the same
// order as eps, regardless of acquisition order.
func (p *DatabasePool) CheckoutBatch(eps []meta.Endpoint, flags shard.OpenFlags, deadline time.Time) ([]*shard.Shard, error) {
	sorted := append([]meta.Endpoint(nil), eps...)
	meta.SortEndpoints(sorted)

	type acquired struct {
		ep meta.Endpoint
		sh *shard.Shard
	}
	var (
		mu  sync.Mutex
		got []acquired
		g   errgroup.Group
	)
	for _, ep := range sorted {
		ep := ep
		g.Go(func() error {
			sh, _, err := p.Checkout(ep, flags, deadline, nil)
			if err != nil {
				return err
			}
			mu.Lock()
			got = append(got, acquired{ep, sh})
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, a := range got {
			p.Checkin(a.ep, a.sh)
		}
		return nil, err
	}

	byKey := make(map[string]*shard.Shard, len(got))
	for _, a := range got {
		byKey[a.ep.String()] = a.sh
	}
	out := make([]*shard.Shard, len(eps))
	for i, ep := range eps {
		out[i] = byKey[ep.String()]
	}
	return out, nil
}

// CheckinBatch releases every shard obtained from a prior CheckoutBatch.
func (p *DatabasePool) CheckinBatch(eps []meta.Endpoint, shs []*shard.Shard) {
	for i, sh := range shs {
		p.Checkin(eps[i], sh)
	}
}

// Lock acquires the replication lock for ep's endpoint, blocking until every
// outstanding handle has drained or deadline passes.
func (p *DatabasePool) Lock(ep meta.Endpoint, deadline time.Time) error {
	p.mu.Lock()
	se := p.getOrCreateEndpointLocked(ep)
	p.mu.Unlock()
	return se.Lock(deadline)
}

// Unlock releases the replication lock previously taken via Lock.
func (p *DatabasePool) Unlock(ep meta.Endpoint) {
	p.mu.Lock()
	se, ok := p.endpoints.Peek(ep.String())
	p.mu.Unlock()
	if ok {
		se.Unlock()
	}
}

// SwapWritable atomically replaces ep's writable shard; caller must hold
// the replication lock for ep (see Lock).
func (p *DatabasePool) SwapWritable(ep meta.Endpoint, sh *shard.Shard) {
	p.mu.Lock()
	se, ok := p.endpoints.Peek(ep.String())
	p.mu.Unlock()
	if ok {
		se.SwapWritable(sh)
	}
}

// Cleanup reclaims idle endpoint slots down to max_databases (spec.md §4.E).
// immediate is reserved for an operator-triggered sweep as opposed to the
// periodic housekeeping call; both currently run the same reclaim pass.
func (p *DatabasePool) Cleanup(immediate bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cleanupLocked()
}

func (p *DatabasePool) cleanupLocked() { p.cleanupLockedExcept("") }

func (p *DatabasePool) cleanupLockedExcept(protect string) {
	if p.maxDBs <= 0 {
		return
	}
	keys := p.endpoints.Keys() // most-recently-used first
	for i := len(keys) - 1; i >= 0 && p.endpoints.Size() > p.maxDBs; i-- {
		if keys[i] == protect {
			continue
		}
		se, ok := p.endpoints.Peek(keys[i])
		if !ok || !se.Evictable() {
			continue
		}
		p.endpoints.Erase(keys[i]) // triggers OnEvict -> se.closeAll()
	}
}

// Size reports the number of endpoint slots currently tracked.
func (p *DatabasePool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.endpoints.Size()
}

// ReadersInUse reports the current fleet-wide outstanding reader count, for
// the stats package's gauge.
func (p *DatabasePool) ReadersInUse() int { return p.readerGate.inUseCount() }

// WritablesInUse reports how many endpoints currently have their writable
// Shard checked out, for the stats package's writable_in_use gauge.
func (p *DatabasePool) WritablesInUse() int {
	p.mu.Lock()
	ses := make([]*ShardEndpoint, 0, p.endpoints.Size())
	for _, k := range p.endpoints.Keys() {
		if se, ok := p.endpoints.Peek(k); ok {
			ses = append(ses, se)
		}
	}
	p.mu.Unlock()
	n := 0
	for _, se := range ses {
		if se.WritableInUse() {
			n++
		}
	}
	return n
}

// finish marks the pool closed: no further checkouts succeed and every
// endpoint's pending continuations fail with PoolClosed (spec.md §5).
func (p *DatabasePool) finish() {
	p.mu.Lock()
	if p.finished {
		p.mu.Unlock()
		return
	}
	p.finished = true
	keys := p.endpoints.Keys()
	p.mu.Unlock()

	hk.Unreg(hkName)
	for _, k := range keys {
		if se, ok := p.endpoints.Peek(k); ok {
			se.finish()
		}
	}
}

// join blocks until every endpoint has drained (refs == 0) or deadline
// passes, returning how many endpoints are still outstanding at that point.
func (p *DatabasePool) join(deadline time.Time) (stillBusy int) {
	for {
		p.mu.Lock()
		keys := p.endpoints.Keys()
		busy := 0
		for _, k := range keys {
			if se, ok := p.endpoints.Peek(k); ok && se.Refs() > 0 {
				busy++
			}
		}
		p.mu.Unlock()
		if busy == 0 {
			return 0
		}
		if !deadline.IsZero() && !time.Now().Before(deadline) {
			return busy
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// Shutdown finishes the pool, waits up to deadline for outstanding handles
// to drain, then force-closes every remaining endpoint and drops them all.
// This is the pool's one-shot teardown path, run once at process exit.
func (p *DatabasePool) Shutdown(deadline time.Time) {
	p.finish()
	if busy := p.join(deadline); busy > 0 {
		nlog.Warningf("pool: shutdown forcing close of %d endpoint(s) still busy", busy)
	}
	p.clear()
}

// clear force-closes and drops every tracked endpoint, regardless of
// outstanding refs -- only safe to call after finish()/join().
func (p *DatabasePool) clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, k := range p.endpoints.Keys() {
		if se, ok := p.endpoints.Peek(k); ok {
			se.closeAll()
		}
		p.endpoints.Erase(k)
	}
}
