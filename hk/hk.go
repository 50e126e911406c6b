// Package hk provides a mechanism for registering cleanup functions which
// are invoked at specified intervals — used by DatabasePool to run its
// periodic LRU cleanup (spec.md §4.E, §6: default 60s interval) without the
// pool owning its own timer goroutine.
package hk

import (
	"container/heap"
	"sync"
	"time"

	"github.com/Kronuz/Xapiand-sub007/cmn/nlog"
)

// request's f returns the duration until it should run again; returning 0
// unregisters it.
type request struct {
	name     string
	f        func() time.Duration
	interval time.Duration
	due      time.Time
	index    int
}

type dueHeap []*request

func (h dueHeap) Len() int            { return len(h) }
func (h dueHeap) Less(i, j int) bool  { return h[i].due.Before(h[j].due) }
func (h dueHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index, h[j].index = i, j }
func (h *dueHeap) Push(x any)         { r := x.(*request); r.index = len(*h); *h = append(*h, r) }
func (h *dueHeap) Pop() any {
	old := *h
	n := len(old)
	r := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return r
}

// Housekeeper runs registered callbacks on their own schedule using a single
// background goroutine and a min-heap of due times, the way the teacher's hk
// package is documented to (hk/housekeeper_suite_test.go: "mechanism for
// registering cleanup functions which are invoked at specified intervals").
type Housekeeper struct {
	mu      sync.Mutex
	byName  map[string]*request
	heap    dueHeap
	wake    chan struct{}
	started chan struct{}
	once    sync.Once
	stop    chan struct{}
}

// DefaultHK is the process-wide housekeeper instance.
var DefaultHK = New()

func New() *Housekeeper {
	return &Housekeeper{
		byName: make(map[string]*request),
		wake:   make(chan struct{}, 1),
		started: make(chan struct{}),
		stop:    make(chan struct{}),
	}
}

// Reg registers f to run first after interval, and subsequently after
// whatever duration f itself returns (0 unregisters it).
func (h *Housekeeper) Reg(name string, f func() time.Duration, interval time.Duration) {
	h.mu.Lock()
	if old, ok := h.byName[name]; ok {
		heap.Remove(&h.heap, old.index)
	}
	r := &request{name: name, f: f, interval: interval, due: time.Now().Add(interval)}
	h.byName[name] = r
	heap.Push(&h.heap, r)
	h.mu.Unlock()
	h.nudge()
}

// Unreg removes a previously registered callback by name.
func (h *Housekeeper) Unreg(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if r, ok := h.byName[name]; ok {
		heap.Remove(&h.heap, r.index)
		delete(h.byName, name)
	}
}

func (h *Housekeeper) nudge() {
	select {
	case h.wake <- struct{}{}:
	default:
	}
}

// Run is the housekeeper's main loop; call it from its own goroutine
// (go hk.DefaultHK.Run()), matching the teacher test's usage.
func (h *Housekeeper) Run() {
	h.once.Do(func() { close(h.started) })
	for {
		h.mu.Lock()
		var wait time.Duration = time.Hour
		if len(h.heap) > 0 {
			wait = time.Until(h.heap[0].due)
		}
		h.mu.Unlock()
		if wait < 0 {
			wait = 0
		}
		timer := time.NewTimer(wait)
		select {
		case <-h.stop:
			timer.Stop()
			return
		case <-h.wake:
			timer.Stop()
			continue
		case <-timer.C:
		}
		h.fireDue()
	}
}

func (h *Housekeeper) fireDue() {
	now := time.Now()
	for {
		h.mu.Lock()
		if len(h.heap) == 0 || h.heap[0].due.After(now) {
			h.mu.Unlock()
			return
		}
		r := heap.Pop(&h.heap).(*request)
		delete(h.byName, r.name)
		h.mu.Unlock()

		next := safeCall(r)
		if next > 0 {
			h.mu.Lock()
			r.due = time.Now().Add(next)
			h.byName[r.name] = r
			heap.Push(&h.heap, r)
			h.mu.Unlock()
		}
	}
}

func safeCall(r *request) (next time.Duration) {
	defer func() {
		if p := recover(); p != nil {
			nlog.Errorf("hk: %s panicked: %v", r.name, p)
			next = r.interval
		}
	}()
	return r.f()
}

// Stop terminates the housekeeper's Run loop.
func (h *Housekeeper) Stop() { close(h.stop) }

// WaitStarted blocks until DefaultHK.Run has begun, used by tests the way
// the teacher's hk.WaitStarted gates Ginkgo suite startup.
func WaitStarted() { <-DefaultHK.started }

// TestInit resets DefaultHK for test isolation between suites.
func TestInit() {
	DefaultHK = New()
}

func Reg(name string, f func() time.Duration, interval time.Duration) {
	DefaultHK.Reg(name, f, interval)
}

func Unreg(name string) { DefaultHK.Unreg(name) }
