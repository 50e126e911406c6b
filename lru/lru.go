// Package lru implements the generic, bounded, time-expiring key-to-value
// container used by the shard pool's endpoint table (package pool), as well
// as any schema/Accept-negotiation caches layered on top of it
// (spec.md §4.A, §9: "LRU generic over many key types ... a single
// parametric container").
//
// Cache is NOT safe for concurrent use; callers that need thread-safety
// (the database pool, schema caches) wrap it with their own mutex, exactly
// as spec.md §4.A prescribes ("thread safety is layered by wrapping
// callers").
package lru

import (
	"container/list"
	"time"

	"github.com/Kronuz/Xapiand-sub007/cmn/cos"
	"github.com/Kronuz/Xapiand-sub007/cmn/mono"
)

// Action is the result of a Policy decision for one eviction candidate.
type Action int

const (
	// LEAVE keeps the entry and continues the scan.
	LEAVE Action = iota
	// RENEW promotes the entry (resets its recency) and continues the scan.
	RENEW
	// EVICT removes the entry, decrements size, and continues the scan.
	EVICT
	// STOP aborts the scan immediately.
	STOP
)

// Policy decides the fate of one eviction candidate, visited in aging order
// (oldest first) during an age-bound scan, or in LRU order (least-recently
// used first) during a size-bound scan (spec.md §4.A).
type Policy[K comparable, V any] func(key K, value V, age time.Duration) Action

type entry[K comparable, V any] struct {
	key        K
	val        V
	insertedAt int64
	recencyEl  *list.Element
	agingEl    *list.Element
}

// Cache is the bounded LRU/aging-LRU map.
type Cache[K comparable, V any] struct {
	items    map[K]*entry[K, V]
	recency  *list.List // front = most-recently-used
	aging    *list.List // front = oldest inserted
	maxSize  int        // 0 == unbounded
	maxAge   time.Duration
	onEvict  func(K, V)
	policy   Policy[K, V] // applied by Insert's automatic trim; see SetPolicy
}

// New creates a Cache bounded by maxSize entries (0 == unbounded) and/or
// maxAge (0 == entries never expire by age).
func New[K comparable, V any](maxSize int, maxAge time.Duration) *Cache[K, V] {
	return &Cache[K, V]{
		items:   make(map[K]*entry[K, V]),
		recency: list.New(),
		aging:   list.New(),
		maxSize: maxSize,
		maxAge:  maxAge,
	}
}

// OnEvict registers a callback invoked whenever an entry is dropped, either
// by explicit Erase or during a trim scan.
func (c *Cache[K, V]) OnEvict(f func(K, V)) { c.onEvict = f }

// SetPolicy registers the Policy Insert's automatic trim applies to each
// eviction candidate (spec.md §4.A: "each drop candidate is passed to a
// caller-supplied policy"), e.g. to protect specific keys from an
// insertion-triggered overflow eviction. A nil policy (the default)
// restores Trim's own built-in default behavior.
func (c *Cache[K, V]) SetPolicy(p Policy[K, V]) { c.policy = p }

func (c *Cache[K, V]) Size() int { return len(c.items) }

// Find looks up k, promoting it to the front of the recency list on hit. An
// aged-out entry is erased and reported as absent (spec.md §4.A).
func (c *Cache[K, V]) Find(k K) (v V, ok bool) {
	e, found := c.items[k]
	if !found {
		return v, false
	}
	if c.expired(e) {
		c.remove(e)
		if c.onEvict != nil {
			c.onEvict(k, e.val)
		}
		return v, false
	}
	c.recency.MoveToFront(e.recencyEl)
	return e.val, true
}

// Peek behaves like Find but never promotes k's recency nor treats an
// aged-out entry as absent -- used by callers that need to inspect
// candidates (e.g. to check whether they're safe to evict) without
// perturbing LRU order.
func (c *Cache[K, V]) Peek(k K) (v V, ok bool) {
	e, found := c.items[k]
	if !found {
		return v, false
	}
	return e.val, true
}

// At behaves like Find but fails with *cos.ErrNotFound on a missing key.
func (c *Cache[K, V]) At(k K) (V, error) {
	v, ok := c.Find(k)
	if !ok {
		var zero V
		return zero, cos.NewErrNotFound("lru key %v", k)
	}
	return v, nil
}

// Get returns the value for k, or def if absent/expired.
func (c *Cache[K, V]) Get(k K, def V) V {
	if v, ok := c.Find(k); ok {
		return v
	}
	return def
}

// Insert places v at the front of the recency list under k, replacing any
// existing entry (refreshing both its value and recency, but not its age
// stamp -- age is insertion-time-only). Insert then runs Trim(c.policy),
// i.e. whatever Policy was last registered via SetPolicy (nil -> Trim's
// built-in default).
func (c *Cache[K, V]) Insert(k K, v V) {
	if e, ok := c.items[k]; ok {
		e.val = v
		c.recency.MoveToFront(e.recencyEl)
		c.Trim(c.policy)
		return
	}
	e := &entry[K, V]{key: k, val: v, insertedAt: mono.NanoTime()}
	e.recencyEl = c.recency.PushFront(e)
	e.agingEl = c.aging.PushBack(e)
	c.items[k] = e
	c.Trim(c.policy)
}

// Emplace constructs a value in place via build only if k is absent,
// returning the (possibly just-built) value and whether it already existed.
func (c *Cache[K, V]) Emplace(k K, build func() V) (v V, existed bool) {
	if v, ok := c.Find(k); ok {
		return v, true
	}
	v = build()
	c.Insert(k, v)
	return v, false
}

// Erase removes k unconditionally, if present.
func (c *Cache[K, V]) Erase(k K) {
	e, ok := c.items[k]
	if !ok {
		return
	}
	c.remove(e)
	if c.onEvict != nil {
		c.onEvict(k, e.val)
	}
}

func (c *Cache[K, V]) remove(e *entry[K, V]) {
	delete(c.items, e.key)
	c.recency.Remove(e.recencyEl)
	c.aging.Remove(e.agingEl)
}

func (c *Cache[K, V]) expired(e *entry[K, V]) bool {
	if c.maxAge <= 0 {
		return false
	}
	return mono.Since(e.insertedAt) > c.maxAge
}

// Trim runs the aged-scan (if maxAge is set) then the LRU-size-scan (if
// maxSize is set), applying policy to each candidate in turn. policy == nil
// selects the default: evict everything aged past maxAge, then evict
// least-recently-used entries until size <= maxSize.
func (c *Cache[K, V]) Trim(policy Policy[K, V]) {
	c.trimAged(policy)
	c.trimLRU(policy)
}

func (c *Cache[K, V]) trimAged(policy Policy[K, V]) {
	if c.maxAge <= 0 {
		return
	}
	for el := c.aging.Front(); el != nil; {
		e := el.Value.(*entry[K, V])
		next := el.Next()
		age := mono.Since(e.insertedAt)
		action := LEAVE
		switch {
		case policy != nil:
			action = policy(e.key, e.val, age)
		case age > c.maxAge:
			action = EVICT
		default:
			action = STOP // default policy: aging order means nothing older remains
		}
		switch action {
		case STOP:
			return
		case EVICT:
			c.remove(e)
			if c.onEvict != nil {
				c.onEvict(e.key, e.val)
			}
		case RENEW:
			c.recency.MoveToFront(e.recencyEl)
		}
		el = next
	}
}

func (c *Cache[K, V]) trimLRU(policy Policy[K, V]) {
	if c.maxSize <= 0 {
		return
	}
	// Walk an explicit cursor from least- to more-recently-used, the way
	// trimAged walks the aging list, so LEAVE can skip one candidate and
	// continue the scan instead of aborting it.
	for el := c.recency.Back(); len(c.items) > c.maxSize && el != nil; {
		e := el.Value.(*entry[K, V])
		prev := el.Prev()
		age := mono.Since(e.insertedAt)
		action := EVICT
		if policy != nil {
			action = policy(e.key, e.val, age)
		}
		switch action {
		case STOP:
			return
		case RENEW:
			c.recency.MoveToFront(e.recencyEl)
		case LEAVE:
			// keep the entry, continue scanning toward more-recent candidates
		default: // EVICT
			c.remove(e)
			if c.onEvict != nil {
				c.onEvict(e.key, e.val)
			}
		}
		el = prev
	}
}

// Keys returns keys in most-recently-used-first order (for diagnostics and
// tests only).
func (c *Cache[K, V]) Keys() []K {
	out := make([]K, 0, len(c.items))
	for el := c.recency.Front(); el != nil; el = el.Next() {
		out = append(out, el.Value.(*entry[K, V]).key)
	}
	return out
}
