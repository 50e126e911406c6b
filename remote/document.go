package remote

import (
	"github.com/Kronuz/Xapiand-sub007/shard"
	"github.com/Kronuz/Xapiand-sub007/wire"
)

// encodeDocument/decodeDocument frame a shard.Document for MSG_ADDDOCUMENT
// and MSG_REPLACEDOCUMENT(TERM): term count + length-prefixed terms, value
// count + (slot, length-prefixed bytes) pairs, then a length-prefixed opaque
// data blob. MSG_DOCUMENT's replies do not use this layout (see
// handleDocument).
func encodeDocument(doc *shard.Document) []byte {
	out := wire.EncodeVarUint(nil, uint64(len(doc.Terms)))
	for _, t := range doc.Terms {
		out = wire.EncodeString(out, []byte(t))
	}
	out = wire.EncodeVarUint(out, uint64(len(doc.Values)))
	for slot, v := range doc.Values {
		out = wire.EncodeVarUint(out, uint64(slot))
		out = wire.EncodeString(out, v)
	}
	out = wire.EncodeString(out, doc.Data)
	return out
}

func decodeDocument(buf []byte) (*shard.Document, error) {
	nTerms, pos, err := wire.DecodeVarUint(buf, 0)
	if err != nil {
		return nil, err
	}
	doc := &shard.Document{Values: make(map[int][]byte)}
	for i := uint64(0); i < nTerms; i++ {
		var term []byte
		term, pos, err = wire.DecodeString(buf, pos, true)
		if err != nil {
			return nil, err
		}
		doc.Terms = append(doc.Terms, string(term))
	}
	nValues, pos2, err := wire.DecodeVarUint(buf, pos)
	if err != nil {
		return nil, err
	}
	pos = pos2
	for i := uint64(0); i < nValues; i++ {
		var slot uint64
		slot, pos, err = wire.DecodeVarUint(buf, pos)
		if err != nil {
			return nil, err
		}
		var v []byte
		v, pos, err = wire.DecodeString(buf, pos, true)
		if err != nil {
			return nil, err
		}
		doc.Values[int(slot)] = v
	}
	data, pos, err := wire.DecodeString(buf, pos, true)
	if err != nil {
		return nil, err
	}
	doc.Data = data
	_ = pos
	return doc, nil
}
