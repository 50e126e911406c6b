package replication_test

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Kronuz/Xapiand-sub007/cmn"
	"github.com/Kronuz/Xapiand-sub007/meta"
	"github.com/Kronuz/Xapiand-sub007/pool"
	"github.com/Kronuz/Xapiand-sub007/replication"
	"github.com/Kronuz/Xapiand-sub007/shard"
	"github.com/Kronuz/Xapiand-sub007/shard/mock"
)

func newTestPool() (*pool.DatabasePool, *mock.Engine) {
	cfg := cmn.DefaultConfig()
	engine := mock.NewEngine()
	return pool.New(engine, cfg), engine
}

// TestFullSnapshotReplicatesEmptyTarget mirrors spec.md §8 scenario 5: a
// target with no local state ("" uuid) requests everything from a source
// that holds committed documents, and ends up with the same content.
func TestFullSnapshotReplicatesEmptyTarget(t *testing.T) {
	srcPool, _ := newTestPool()
	ep, err := meta.Parse("memory:///database/repltest")
	require.NoError(t, err)

	sh, _, err := srcPool.Checkout(ep, shard.WRITABLE|shard.CREATE_OR_OPEN, time.Now().Add(time.Second), nil)
	require.NoError(t, err)
	_, err = sh.AddDocument(&shard.Document{Terms: []string{"hello", "world"}, Data: []byte("doc-1")})
	require.NoError(t, err)
	_, err = sh.AddDocument(&shard.Document{Terms: []string{"hello"}, Data: []byte("doc-2")})
	require.NoError(t, err)
	require.NoError(t, sh.Commit())
	srcPool.Checkin(ep, sh)

	serverNc, clientNc := net.Pipe()
	defer serverNc.Close()
	defer clientNc.Close()

	srv := replication.NewServer(serverNc, srcPool)
	defer srv.Close()

	dstPool, dstEngine := newTestPool()
	cl := replication.NewClient(clientNc, dstPool, dstEngine, ep, "", 0, 0)

	err = cl.Wait()
	require.NoError(t, err)

	got, _, err := dstPool.Checkout(ep, shard.OPEN, time.Now().Add(time.Second), nil)
	require.NoError(t, err)
	defer dstPool.Checkin(ep, got)

	exists, err := got.TermExists("hello")
	require.NoError(t, err)
	require.True(t, exists)

	freq, err := got.TermFreq("hello")
	require.NoError(t, err)
	require.Equal(t, uint64(2), freq)

	doc, err := got.GetDoc(1)
	require.NoError(t, err)
	require.Equal(t, []byte("doc-1"), doc.Data)
}

// TestReplicationFailureLeavesLiveShardUntouched exercises the REPLY_FAIL
// path: the requester's switch-in work is discarded and the target pool's
// endpoint slot is never created as writable.
func TestReplicationFailureLeavesLiveShardUntouched(t *testing.T) {
	srcPool, srcEngine := newTestPool()
	ep, err := meta.Parse("memory:///database/doesnotexist")
	require.NoError(t, err)
	// Fail both of the source pool's open attempts (the first try and its
	// one retry), so Server's Checkout errors and it replies REPLY_FAIL.
	srcEngine.FailOpen = 2

	serverNc, clientNc := net.Pipe()
	defer serverNc.Close()
	defer clientNc.Close()

	srv := replication.NewServer(serverNc, srcPool)
	defer srv.Close()

	dstPool, engine := newTestPool()
	cl := replication.NewClient(clientNc, dstPool, engine, ep, "", 0, 0)

	err = cl.Wait()
	require.Error(t, err)
}
