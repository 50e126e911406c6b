package shard_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kronuz/Xapiand-sub007/meta"
	"github.com/Kronuz/Xapiand-sub007/shard"
	"github.com/Kronuz/Xapiand-sub007/shard/mock"
)

func openTestShard(t *testing.T, kind shard.Kind, flags shard.OpenFlags) *shard.Shard {
	t.Helper()
	eng := mock.NewEngine()
	ep, err := meta.Parse("memory:///x")
	require.NoError(t, err)
	db, err := eng.Open(ep.String(), flags)
	require.NoError(t, err)
	return shard.New(kind, ep, flags, db)
}

func TestWritableAcceptsMutations(t *testing.T) {
	s := openTestShard(t, shard.Writable, shard.WRITABLE|shard.CREATE_OR_OPEN)
	id, err := s.AddDocument(&shard.Document{Terms: []string{"hello"}})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), id)
	require.NoError(t, s.Commit())

	doc, err := s.GetDoc(id)
	require.NoError(t, err)
	assert.Equal(t, []string{"hello"}, doc.Terms)
}

func TestReadableRejectsMutation(t *testing.T) {
	s := openTestShard(t, shard.Readable, shard.OPEN)
	_, err := s.AddDocument(&shard.Document{Terms: []string{"x"}})
	require.Error(t, err)
}

func TestKeepAliveNoopLocal(t *testing.T) {
	s := openTestShard(t, shard.Readable, shard.OPEN)
	before := s.AgeStamp()
	require.NoError(t, s.KeepAlive())
	assert.GreaterOrEqual(t, s.AgeStamp(), before)
	assert.False(t, s.IsRemote())
}

func TestAddSpellingAndRemove(t *testing.T) {
	s := openTestShard(t, shard.Writable, shard.WRITABLE|shard.CREATE_OR_OPEN)
	require.NoError(t, s.AddSpelling("wrold", 3))
	exists, err := s.TermExists("wrold")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, s.RemoveSpelling("wrold", 3))
	exists, err = s.TermExists("wrold")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestQueryRoundTripsStatsIntoMSet(t *testing.T) {
	s := openTestShard(t, shard.Writable, shard.WRITABLE|shard.CREATE_OR_OPEN)
	_, err := s.AddDocument(&shard.Document{Terms: []string{"xapian"}})
	require.NoError(t, err)
	_, err = s.AddDocument(&shard.Document{Terms: []string{"xapian", "go"}})
	require.NoError(t, err)

	handle, stats, err := s.PrepareQuery([]byte("xapian"))
	require.NoError(t, err)
	assert.EqualValues(t, 2, stats.Matches)

	ms, err := s.GetMSet(handle, 0, 10, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 2, ms.Matches)
	assert.Len(t, ms.Items, 2)
}

func TestDocLengthAndUniqueTerms(t *testing.T) {
	s := openTestShard(t, shard.Writable, shard.WRITABLE|shard.CREATE_OR_OPEN)
	id, err := s.AddDocument(&shard.Document{Terms: []string{"a", "b", "b"}})
	require.NoError(t, err)

	n, err := s.DocLength(id)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	u, err := s.UniqueTerms(id)
	require.NoError(t, err)
	assert.EqualValues(t, 2, u)
}
