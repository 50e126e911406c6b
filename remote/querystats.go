package remote

import (
	"github.com/tinylib/msgp/msgp"

	"github.com/Kronuz/Xapiand-sub007/cmn/cos"
	"github.com/Kronuz/Xapiand-sub007/shard"
)

// encodeQueryStats serializes a shard.QueryStats with msgp (domain stack:
// "remote MSet-stats payload encoding between prepare (MSG_QUERY) and
// materialize (MSG_GETMSET)"), so it travels unchanged from REPLY_STATS to
// a later MSG_GETMSET request even after the client merges stats across
// several shards (spec.md §4.H: "passed verbatim between them").
func encodeQueryStats(s shard.QueryStats) []byte {
	b := msgp.AppendArrayHeader(nil, 4)
	b = msgp.AppendUint64(b, s.Matches)
	b = msgp.AppendFloat64(b, s.MaxPossible)
	b = msgp.AppendFloat64(b, s.MaxReceived)
	b = msgp.AppendBytes(b, s.Opaque)
	return b
}

func decodeQueryStats(b []byte) (shard.QueryStats, []byte, error) {
	n, b, err := msgp.ReadArrayHeaderBytes(b)
	if err != nil {
		return shard.QueryStats{}, b, cos.NewErrSerialisation("query stats: %v", err)
	}
	if n != 4 {
		return shard.QueryStats{}, b, cos.NewErrSerialisation("query stats: expected 4 fields, got %d", n)
	}
	var s shard.QueryStats
	if s.Matches, b, err = msgp.ReadUint64Bytes(b); err != nil {
		return shard.QueryStats{}, b, cos.NewErrSerialisation("query stats matches: %v", err)
	}
	if s.MaxPossible, b, err = msgp.ReadFloat64Bytes(b); err != nil {
		return shard.QueryStats{}, b, cos.NewErrSerialisation("query stats max_possible: %v", err)
	}
	if s.MaxReceived, b, err = msgp.ReadFloat64Bytes(b); err != nil {
		return shard.QueryStats{}, b, cos.NewErrSerialisation("query stats max_received: %v", err)
	}
	if s.Opaque, b, err = msgp.ReadBytesBytes(b, nil); err != nil {
		return shard.QueryStats{}, b, cos.NewErrSerialisation("query stats opaque: %v", err)
	}
	return s, b, nil
}
