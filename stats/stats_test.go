package stats_test

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Kronuz/Xapiand-sub007/cmn"
	"github.com/Kronuz/Xapiand-sub007/pool"
	"github.com/Kronuz/Xapiand-sub007/shard/mock"
	"github.com/Kronuz/Xapiand-sub007/stats"
)

func scrape(t *testing.T, r *stats.Registry) string {
	t.Helper()
	rr := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	r.Handler().ServeHTTP(rr, req)
	require.Equal(t, 200, rr.Code)
	return rr.Body.String()
}

func TestRegistryExposesPoolGauges(t *testing.T) {
	p := pool.New(mock.NewEngine(), cmn.DefaultConfig())
	r := stats.NewRegistry("xapiand", p)

	body := scrape(t, r)
	require.Contains(t, body, "xapiand_checked_out_readers 0")
	require.Contains(t, body, "xapiand_writable_in_use 0")
	require.Contains(t, body, "xapiand_lru_size 0")
}

func TestRegistryCountersIncrement(t *testing.T) {
	p := pool.New(mock.NewEngine(), cmn.DefaultConfig())
	r := stats.NewRegistry("xapiand", p)

	r.ObserveMessage("query")
	r.ObserveMessage("query")
	r.ObserveException("query")
	r.ObserveSnapshotSent()
	r.ObserveChangesetSent()
	r.ObserveReplicationFailure()

	body := scrape(t, r)
	require.True(t, strings.Contains(body, `xapiand_msgs_total{type="query"} 2`))
	require.True(t, strings.Contains(body, `xapiand_exceptions_total{type="query"} 1`))
	require.Contains(t, body, "xapiand_replication_snapshots_total 1")
	require.Contains(t, body, "xapiand_replication_changesets_total 1")
	require.Contains(t, body, "xapiand_replication_failures_total 1")
}

func TestNilRegistryObserveIsNoop(t *testing.T) {
	var r *stats.Registry
	require.NotPanics(t, func() {
		r.ObserveMessage("query")
		r.ObserveException("query")
		r.ObserveSnapshotSent()
		r.ObserveChangesetSent()
		r.ObserveReplicationFailure()
	})
}
