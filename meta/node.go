package meta

import (
	"strings"
	"sync"
	"time"

	"github.com/Kronuz/Xapiand-sub007/cmn/atomic"
)

// Node is the identity of one process in the cluster (spec.md §3).
type Node struct {
	LowerName       string
	DisplayName     string
	Address         string // IPv4
	HTTPPort        int
	RemotePort      int
	ReplicationPort int
	Activated       atomic.Bool
	touchedNano     atomic.Int64
}

// Touched returns the last liveness timestamp recorded for n.
func (n *Node) Touched() time.Time {
	ns := n.touchedNano.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// hasAddress reports whether n carries a non-empty network identity (used
// by touch_node's "strict subset" comparison and by DropNode).
func (n *Node) hasAddress() bool { return n.Address != "" }

// isSubsetOf reports whether every non-zero field of n is equal to the
// corresponding field of other -- i.e. n carries no information other does
// not already have. An empty/zero field in n is considered compatible with
// any value in other.
func (n *Node) isSubsetOf(other *Node) bool {
	if n.DisplayName != "" && n.DisplayName != other.DisplayName {
		return false
	}
	if n.Address != "" && n.Address != other.Address {
		return false
	}
	if n.HTTPPort != 0 && n.HTTPPort != other.HTTPPort {
		return false
	}
	if n.RemotePort != 0 && n.RemotePort != other.RemotePort {
		return false
	}
	if n.ReplicationPort != 0 && n.ReplicationPort != other.ReplicationPort {
		return false
	}
	return true
}

// merge returns a copy of n with any zero field in n filled in from fill.
func (n *Node) merge(fill *Node) *Node {
	m := &Node{
		LowerName:       n.LowerName,
		DisplayName:     n.DisplayName,
		Address:         n.Address,
		HTTPPort:        n.HTTPPort,
		RemotePort:      n.RemotePort,
		ReplicationPort: n.ReplicationPort,
	}
	if m.DisplayName == "" {
		m.DisplayName = fill.DisplayName
	}
	if m.Address == "" {
		m.Address = fill.Address
	}
	if m.HTTPPort == 0 {
		m.HTTPPort = fill.HTTPPort
	}
	if m.RemotePort == 0 {
		m.RemotePort = fill.RemotePort
	}
	if m.ReplicationPort == 0 {
		m.ReplicationPort = fill.ReplicationPort
	}
	m.Activated.Store(n.Activated.Load() || fill.Activated.Load())
	m.touchedNano.Store(maxInt64(n.touchedNano.Load(), fill.touchedNano.Load()))
	return m
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func equalIdentity(a, b *Node) bool {
	return a.DisplayName == b.DisplayName &&
		a.Address == b.Address &&
		a.HTTPPort == b.HTTPPort &&
		a.RemotePort == b.RemotePort &&
		a.ReplicationPort == b.ReplicationPort
}

// registry is the process-wide Node table (spec.md §3, §9: "expose as a
// process-singleton facade with explicit initialization on startup and
// teardown on shutdown; no implicit construction").
type registry struct {
	mu     sync.Mutex
	byName map[string]*Node
	local  *Node
	leader *Node
}

var reg *registry

// InitRegistry (re-)initializes the process-wide node registry. Must be
// called once during startup before any other function in this file.
func InitRegistry() {
	reg = &registry{byName: make(map[string]*Node)}
}

// TeardownRegistry releases the process-wide registry, for orderly shutdown
// and test isolation.
func TeardownRegistry() { reg = nil }

func mustReg() *registry {
	if reg == nil {
		InitRegistry()
	}
	return reg
}

// TouchNode atomically upserts n by lower-cased name. If an existing record
// is a strict subset of n, it is replaced by a merged copy (missing fields
// filled in from n); changed reports whether the logical record differs
// from what was previously registered. activate sets the activated flag;
// touch updates the liveness timestamp (spec.md §4.B).
func TouchNode(n *Node, activate, touch bool) (stored *Node, changed bool) {
	r := mustReg()
	lname := strings.ToLower(n.LowerName)
	n.LowerName = lname

	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.byName[lname]
	if !ok {
		stored = &Node{
			LowerName:       lname,
			DisplayName:     n.DisplayName,
			Address:         n.Address,
			HTTPPort:        n.HTTPPort,
			RemotePort:      n.RemotePort,
			ReplicationPort: n.ReplicationPort,
		}
		r.byName[lname] = stored
		changed = true
	} else if existing.isSubsetOf(n) && !equalIdentity(existing, n) {
		stored = existing.merge(n)
		stored.LowerName = lname
		r.byName[lname] = stored
		changed = true
	} else {
		stored = existing
		changed = false
	}
	if activate {
		stored.Activated.Store(true)
	}
	if touch {
		stored.touchedNano.Store(time.Now().UnixNano())
	}
	return stored, changed
}

// DropNode clears the network identity of name without removing its slot
// from the registry (spec.md §3).
func DropNode(name string) {
	r := mustReg()
	lname := strings.ToLower(name)
	r.mu.Lock()
	defer r.mu.Unlock()
	if n, ok := r.byName[lname]; ok {
		n.Address = ""
		n.HTTPPort, n.RemotePort, n.ReplicationPort = 0, 0, 0
		n.Activated.Store(false)
	}
}

// Get returns the registered Node for name, if any.
func Get(name string) (*Node, bool) {
	r := mustReg()
	lname := strings.ToLower(name)
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.byName[lname]
	return n, ok
}

// SetLocal designates n as the local node, registering it if not already
// present.
func SetLocal(n *Node) {
	r := mustReg()
	stored, _ := TouchNode(n, true, true)
	r.mu.Lock()
	r.local = stored
	r.mu.Unlock()
}

// GetLocal returns the designated local node, or nil if none is set.
func GetLocal() *Node {
	r := mustReg()
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.local
}

// SetLeader designates an already-registered node (by name) as the cluster
// leader.
func SetLeader(name string) (ok bool) {
	r := mustReg()
	lname := strings.ToLower(name)
	r.mu.Lock()
	defer r.mu.Unlock()
	n, found := r.byName[lname]
	if !found {
		return false
	}
	r.leader = n
	return true
}

// GetLeader returns the designated leader node, or nil if none is set.
func GetLeader() *Node {
	r := mustReg()
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.leader
}

// All returns a snapshot of every registered node.
func All() []*Node {
	r := mustReg()
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Node, 0, len(r.byName))
	for _, n := range r.byName {
		out = append(out, n)
	}
	return out
}
