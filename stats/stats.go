// Package stats exposes this node's Prometheus metrics (SPEC_FULL.md's
// domain stack): pool occupancy gauges sourced from package pool, remote
// protocol message counters sourced from package remote's dispatch path,
// and replication transfer counters sourced from package replication.
// Grounded on the teacher's stats package naming (coreStats's Tracker of
// counter/gauge-kind statsValue entries in stats/common_statsd.go) adapted
// from its build-tag-gated StatsD-or-Prometheus split to a direct
// client_golang registry, since the teacher's own Prometheus build tag
// path was not present in the retrieved source.
package stats

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Kronuz/Xapiand-sub007/pool"
)

// poolGauges is the pool occupancy source the stats registry polls on
// every scrape; *pool.DatabasePool satisfies it without this package
// importing anything pool doesn't already expose for that purpose.
type poolGauges interface {
	ReadersInUse() int
	WritablesInUse() int
	Size() int
}

// Registry owns this node's metric registrations: pool occupancy gauges,
// per-message-type counters for the remote protocol, and replication
// transfer/failure counters. One Registry per process.
type Registry struct {
	reg *prometheus.Registry

	messagesTotal    *prometheus.CounterVec
	exceptionsTotal  *prometheus.CounterVec
	snapshotsTotal   prometheus.Counter
	changesetsTotal  prometheus.Counter
	replicationFails prometheus.Counter
}

// NewRegistry creates a Registry, registers p's occupancy gauges under it,
// and returns it ready for Handler to be mounted. namespace is prepended to
// every metric name (e.g. "xapiand" yields "xapiand_checked_out_readers").
func NewRegistry(namespace string, p poolGauges) *Registry {
	r := &Registry{reg: prometheus.NewRegistry()}

	r.reg.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "checked_out_readers",
			Help:      "Readable shard handles currently checked out fleet-wide.",
		},
		func() float64 { return float64(p.ReadersInUse()) },
	))
	r.reg.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "writable_in_use",
			Help:      "Endpoints whose writable shard is currently checked out.",
		},
		func() float64 { return float64(p.WritablesInUse()) },
	))
	r.reg.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "lru_size",
			Help:      "Endpoint slots currently tracked by the database pool's LRU.",
		},
		func() float64 { return float64(p.Size()) },
	))

	r.messagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "msgs_total",
		Help:      "Remote protocol messages dispatched, by message type.",
	}, []string{"type"})
	r.reg.MustRegister(r.messagesTotal)

	r.exceptionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "exceptions_total",
		Help:      "REPLY_EXCEPTION frames sent, by originating message type.",
	}, []string{"type"})
	r.reg.MustRegister(r.exceptionsTotal)

	r.snapshotsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "replication_snapshots_total",
		Help:      "Full database snapshots sent by this node's replication server.",
	})
	r.reg.MustRegister(r.snapshotsTotal)

	r.changesetsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "replication_changesets_total",
		Help:      "WAL changeset files sent by this node's replication server.",
	})
	r.reg.MustRegister(r.changesetsTotal)

	r.replicationFails = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "replication_failures_total",
		Help:      "Replication streams (as client or server) that failed.",
	})
	r.reg.MustRegister(r.replicationFails)

	return r
}

// ObserveMessage increments the msgs_total counter for one dispatched
// message type, named via remote.MsgType.String(). A nil Registry is a
// no-op so callers (package remote, package replication) can hold an
// optional *Registry without nil-checking every call site.
func (r *Registry) ObserveMessage(typeName string) {
	if r == nil {
		return
	}
	r.messagesTotal.WithLabelValues(typeName).Inc()
}

// ObserveException increments exceptions_total for a REPLY_EXCEPTION sent
// while handling the named message type.
func (r *Registry) ObserveException(typeName string) {
	if r == nil {
		return
	}
	r.exceptionsTotal.WithLabelValues(typeName).Inc()
}

// ObserveSnapshotSent increments replication_snapshots_total.
func (r *Registry) ObserveSnapshotSent() {
	if r == nil {
		return
	}
	r.snapshotsTotal.Inc()
}

// ObserveChangesetSent increments replication_changesets_total.
func (r *Registry) ObserveChangesetSent() {
	if r == nil {
		return
	}
	r.changesetsTotal.Inc()
}

// ObserveReplicationFailure increments replication_failures_total.
func (r *Registry) ObserveReplicationFailure() {
	if r == nil {
		return
	}
	r.replicationFails.Inc()
}

// Handler serves the registry in Prometheus text exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// compile-time check that *pool.DatabasePool satisfies poolGauges.
var _ poolGauges = (*pool.DatabasePool)(nil)
