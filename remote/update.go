package remote

import (
	"github.com/Kronuz/Xapiand-sub007/meta"
	"github.com/Kronuz/Xapiand-sub007/shard"
	"github.com/Kronuz/Xapiand-sub007/wire"
)

// encodeUpdate builds a REPLY_UPDATE payload (spec.md §6): protocol major/
// minor, then the shard stats fields the handshake and MSG_UPDATE share.
func encodeUpdate(st shard.Stats) []byte {
	out := []byte{ProtocolMajor, ProtocolMinor}
	out = wire.EncodeVarUint(out, st.DocCount)
	lastMinusDoc := uint64(0)
	if st.LastDocID > st.DocCount {
		lastMinusDoc = st.LastDocID - st.DocCount
	}
	out = wire.EncodeVarUint(out, lastMinusDoc)
	out = wire.EncodeVarUint(out, st.DocLengthLower)
	upperMinusLower := uint64(0)
	if st.DocLengthUpper > st.DocLengthLower {
		upperMinusLower = st.DocLengthUpper - st.DocLengthLower
	}
	out = wire.EncodeVarUint(out, upperMinusLower)
	if st.HasPositions {
		out = append(out, '1')
	} else {
		out = append(out, '0')
	}
	out = wire.EncodeVarUint(out, st.TotalLength)
	out = append(out, []byte(st.UUID)...)
	return out
}

// aggregateStats combines the Stats of every shard in shards, the way a
// distributed MSG_UPDATE reply summarizes several endpoints at once
// (spec.md §4.H: "Aggregate doccount, doclength bounds, uuid").
func aggregateStats(shards []*shard.Shard) shard.Stats {
	var agg shard.Stats
	for i, sh := range shards {
		st := sh.Stats()
		agg.DocCount += st.DocCount
		if st.LastDocID > agg.LastDocID {
			agg.LastDocID = st.LastDocID
		}
		if i == 0 || st.DocLengthLower < agg.DocLengthLower {
			agg.DocLengthLower = st.DocLengthLower
		}
		if st.DocLengthUpper > agg.DocLengthUpper {
			agg.DocLengthUpper = st.DocLengthUpper
		}
		agg.HasPositions = agg.HasPositions || st.HasPositions
		agg.TotalLength += st.TotalLength
		if agg.UUID == "" {
			agg.UUID = st.UUID
		}
	}
	return agg
}

// decodeEndpoints parses the endpoint list payload of MSG_READACCESS:
// count:var-uint, then count length-prefixed endpoint URI strings.
func decodeEndpoints(payload []byte) ([]meta.Endpoint, error) {
	n, pos, err := wire.DecodeVarUint(payload, 0)
	if err != nil {
		return nil, err
	}
	eps := make([]meta.Endpoint, 0, n)
	for i := uint64(0); i < n; i++ {
		var raw []byte
		raw, pos, err = wire.DecodeString(payload, pos, true)
		if err != nil {
			return nil, err
		}
		ep, err := meta.Parse(string(raw))
		if err != nil {
			return nil, err
		}
		eps = append(eps, ep)
	}
	return eps, nil
}
