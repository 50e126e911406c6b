package pool_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kronuz/Xapiand-sub007/cmn"
	"github.com/Kronuz/Xapiand-sub007/meta"
	"github.com/Kronuz/Xapiand-sub007/pool"
	"github.com/Kronuz/Xapiand-sub007/shard"
	"github.com/Kronuz/Xapiand-sub007/shard/mock"
)

func testEndpoint(t *testing.T, path string) meta.Endpoint {
	t.Helper()
	ep, err := meta.Parse("memory://" + path)
	require.NoError(t, err)
	return ep
}

func testConfig(maxReaders int) *cmn.Config {
	cfg := cmn.DefaultConfig()
	cfg.Pool.MaxDatabaseReaders = maxReaders
	cfg.Pool.CleanupInterval = time.Hour // keep background sweeps out of the way
	return cfg
}

func TestSingleWritablePerEndpoint(t *testing.T) {
	p := pool.New(mock.NewEngine(), testConfig(0))
	ep := testEndpoint(t, "/a")

	sh1, pending, err := p.Checkout(ep, shard.WRITABLE|shard.CREATE_OR_OPEN, time.Time{}, nil)
	require.NoError(t, err)
	require.False(t, pending)
	require.NotNil(t, sh1)

	// A second writable checkout must not succeed synchronously while the
	// first is outstanding.
	deadline := time.Now().Add(20 * time.Millisecond)
	_, _, err = p.Checkout(ep, shard.WRITABLE, deadline, nil)
	require.Error(t, err)

	p.Checkin(ep, sh1)

	sh2, pending, err := p.Checkout(ep, shard.WRITABLE, time.Time{}, nil)
	require.NoError(t, err)
	require.False(t, pending)
	assert.NotNil(t, sh2)
}

func TestFleetReaderCapBlocks(t *testing.T) {
	p := pool.New(mock.NewEngine(), testConfig(1))
	ep1 := testEndpoint(t, "/a")
	ep2 := testEndpoint(t, "/b")

	sh1, _, err := p.Checkout(ep1, shard.OPEN|shard.CREATE_OR_OPEN, time.Time{}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, p.ReadersInUse())

	// A second reader, even on a different endpoint, must block on the
	// fleet-wide cap (spec.md §4.E, P4).
	_, _, err = p.Checkout(ep2, shard.OPEN|shard.CREATE_OR_OPEN, time.Now().Add(20*time.Millisecond), nil)
	require.Error(t, err)

	p.Checkin(ep1, sh1)
	assert.Equal(t, 0, p.ReadersInUse())

	sh2, _, err := p.Checkout(ep2, shard.OPEN|shard.CREATE_OR_OPEN, time.Time{}, nil)
	require.NoError(t, err)
	assert.NotNil(t, sh2)
}

func TestCheckinReleasesGateNoLeak(t *testing.T) {
	p := pool.New(mock.NewEngine(), testConfig(2))
	ep := testEndpoint(t, "/a")

	for i := 0; i < 5; i++ {
		sh, _, err := p.Checkout(ep, shard.OPEN|shard.CREATE_OR_OPEN, time.Time{}, nil)
		require.NoError(t, err)
		p.Checkin(ep, sh)
	}
	assert.Equal(t, 0, p.ReadersInUse(), "repeated checkout/checkin must not leak gate slots")
}

func TestPendingContinuationFIFO(t *testing.T) {
	p := pool.New(mock.NewEngine(), testConfig(1))
	ep := testEndpoint(t, "/a")

	sh0, _, err := p.Checkout(ep, shard.OPEN|shard.CREATE_OR_OPEN, time.Time{}, nil)
	require.NoError(t, err)

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		i := i
		wg.Add(1)
		_, pending, err := p.Checkout(ep, shard.OPEN, time.Time{}, func(sh *shard.Shard, err error) {
			defer wg.Done()
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			if sh != nil {
				p.Checkin(ep, sh)
			}
		})
		require.NoError(t, err)
		require.True(t, pending)
		time.Sleep(time.Millisecond) // keep enqueue order deterministic
	}

	p.Checkin(ep, sh0)
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, order, 3)
	assert.Equal(t, []int{0, 1, 2}, order, "continuations resume in FIFO order of enqueue (P6)")
}

func TestReplicationLockIsolatesCheckout(t *testing.T) {
	p := pool.New(mock.NewEngine(), testConfig(0))
	ep := testEndpoint(t, "/a")

	require.NoError(t, p.Lock(ep, time.Time{}))

	_, _, err := p.Checkout(ep, shard.OPEN, time.Now().Add(20*time.Millisecond), nil)
	require.Error(t, err, "checkout must block while the endpoint is locked for replication")

	p.Unlock(ep)

	sh, _, err := p.Checkout(ep, shard.OPEN|shard.CREATE_OR_OPEN, time.Time{}, nil)
	require.NoError(t, err)
	assert.NotNil(t, sh)
}

func TestReplicationUnlockResumesQueuedContinuation(t *testing.T) {
	p := pool.New(mock.NewEngine(), testConfig(0))
	ep := testEndpoint(t, "/a")

	require.NoError(t, p.Lock(ep, time.Time{}))

	var mu sync.Mutex
	var sh *shard.Shard
	var cbErr error
	done := make(chan struct{})
	_, pending, err := p.Checkout(ep, shard.OPEN|shard.CREATE_OR_OPEN, time.Time{}, func(got *shard.Shard, e error) {
		mu.Lock()
		sh, cbErr = got, e
		mu.Unlock()
		close(done)
	})
	require.NoError(t, err)
	require.True(t, pending, "checkout while locked must queue, not fail or block")

	p.Unlock(ep)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("continuation queued behind a replication lock was never invoked after Unlock")
	}

	mu.Lock()
	defer mu.Unlock()
	require.NoError(t, cbErr)
	assert.NotNil(t, sh, "Unlock must re-drive callbacks queued while locked")
}

func TestBatchCheckoutAllOrNoneRollsBack(t *testing.T) {
	eng := mock.NewEngine()
	p := pool.New(eng, testConfig(0))
	epA := testEndpoint(t, "/a")
	epB := testEndpoint(t, "/b")

	// Hold epB's writable slot so the batch checkout below fails on it.
	held, _, err := p.Checkout(epB, shard.WRITABLE|shard.CREATE_OR_OPEN, time.Time{}, nil)
	require.NoError(t, err)

	_, err = p.CheckoutBatch([]meta.Endpoint{epA, epB}, shard.WRITABLE|shard.CREATE_OR_OPEN, time.Now().Add(20*time.Millisecond))
	require.Error(t, err)

	// epA must have been rolled back: a fresh writable checkout succeeds
	// immediately rather than blocking.
	shA, pending, err := p.Checkout(epA, shard.WRITABLE|shard.CREATE_OR_OPEN, time.Time{}, nil)
	require.NoError(t, err)
	require.False(t, pending)
	assert.NotNil(t, shA)

	p.Checkin(epB, held)
}

func TestCleanupEvictsOnlyIdleEndpoints(t *testing.T) {
	cfg := testConfig(0)
	cfg.Pool.MaxDatabases = 1
	p := pool.New(mock.NewEngine(), cfg)

	epBusy := testEndpoint(t, "/busy")
	epIdle := testEndpoint(t, "/idle")

	busy, _, err := p.Checkout(epBusy, shard.OPEN|shard.CREATE_OR_OPEN, time.Time{}, nil)
	require.NoError(t, err)

	idle, _, err := p.Checkout(epIdle, shard.OPEN|shard.CREATE_OR_OPEN, time.Time{}, nil)
	require.NoError(t, err)
	p.Checkin(epIdle, idle)
	require.Equal(t, 2, p.Size())

	// An explicit sweep should reclaim epIdle's now-idle slot but must leave
	// epBusy alone, since it still has an outstanding reference.
	p.Cleanup(true)
	assert.Equal(t, 1, p.Size())

	p.Checkin(epBusy, busy)
}

func TestShutdownDrainsAndRejectsNewCheckouts(t *testing.T) {
	p := pool.New(mock.NewEngine(), testConfig(0))
	ep := testEndpoint(t, "/a")

	sh, _, err := p.Checkout(ep, shard.WRITABLE|shard.CREATE_OR_OPEN, time.Time{}, nil)
	require.NoError(t, err)
	p.Checkin(ep, sh)

	p.Shutdown(time.Now().Add(50 * time.Millisecond))

	_, _, err = p.Checkout(ep, shard.WRITABLE, time.Time{}, nil)
	require.Error(t, err)
}
