package remote

import (
	"sort"
	"time"

	"github.com/tinylib/msgp/msgp"

	"github.com/Kronuz/Xapiand-sub007/cmn/cos"
	"github.com/Kronuz/Xapiand-sub007/meta"
	"github.com/Kronuz/Xapiand-sub007/shard"
	"github.com/Kronuz/Xapiand-sub007/wire"
)

func (s *Session) requireReadable() (*shard.Shard, error) {
	if sh := s.activeShard(); sh != nil {
		return sh, nil
	}
	return nil, cos.NewErrInvalidArgument("no endpoint configured on this connection")
}

func (s *Session) requireWritable() (*shard.Shard, error) {
	if !s.hasWrite {
		return nil, cos.NewErrInvalidArgument("write access required")
	}
	return s.writeShard, nil
}

func (s *Session) handleReadAccess(payload []byte) error {
	eps, err := decodeEndpoints(payload)
	if err != nil {
		return err
	}
	shards, err := s.p.CheckoutBatch(eps, shard.OPEN, time.Now().Add(defaultCheckoutTimeout))
	if err != nil {
		return err
	}
	s.releaseReads()
	s.readEPs, s.readShards = eps, shards
	return s.handleUpdate()
}

func (s *Session) handleWriteAccess(payload []byte) error {
	raw, _, err := wire.DecodeString(payload, 0, true)
	if err != nil {
		return err
	}
	ep, err := meta.Parse(string(raw))
	if err != nil {
		return err
	}
	sh, _, err := s.p.Checkout(ep, shard.WRITABLE|shard.CREATE_OR_OPEN, time.Now().Add(defaultCheckoutTimeout), nil)
	if err != nil {
		return err
	}
	s.releaseWrite()
	s.writeEP, s.writeShard, s.hasWrite = ep, sh, true
	return s.handleUpdate()
}

func (s *Session) handleReopen() error {
	sh, err := s.requireReadable()
	if err != nil {
		return err
	}
	advanced, err := sh.Reopen()
	if err != nil {
		return err
	}
	if advanced {
		return s.handleUpdate()
	}
	s.conn.EnqueueWrite(byte(ReplyDone), nil)
	return nil
}

func (s *Session) handleUpdate() error {
	var shards []*shard.Shard
	if s.hasWrite {
		shards = []*shard.Shard{s.writeShard}
	} else {
		shards = s.readShards
	}
	if len(shards) == 0 {
		return cos.NewErrInvalidArgument("no endpoint configured on this connection")
	}
	s.conn.EnqueueWrite(byte(ReplyUpdate), encodeUpdate(aggregateStats(shards)))
	return nil
}

// streamTerms drives the prefix-compressed stream replies shared by
// MSG_ALLTERMS and MSG_METADATAKEYLIST (spec.md §4.H): decode a prefix
// filter, fetch the candidate strings, sort them (prefix compression
// requires sorted input, spec.md §8 P8), and emit one reply frame per
// entry via a fresh wire.PrefixEncoder, ending with REPLY_DONE.
func (s *Session) streamTerms(payload []byte, fetch func(*shard.Shard, string) ([]string, error), replyType ReplyType) error {
	sh, err := s.requireReadable()
	if err != nil {
		return err
	}
	prefix, _, err := wire.DecodeString(payload, 0, true)
	if err != nil {
		return err
	}
	items, err := fetch(sh, string(prefix))
	if err != nil {
		return err
	}
	sort.Strings(items)
	enc := &wire.PrefixEncoder{}
	for _, t := range items {
		s.conn.EnqueueWrite(byte(replyType), enc.Next([]byte(t)))
	}
	s.conn.EnqueueWrite(byte(ReplyDone), nil)
	return nil
}

func (s *Session) handleTermList(payload []byte) error {
	sh, err := s.requireReadable()
	if err != nil {
		return err
	}
	docID, _, err := wire.DecodeVarUint(payload, 0)
	if err != nil {
		return err
	}
	terms, err := sh.TermList(docID)
	if err != nil {
		return err
	}
	sort.Strings(terms)
	enc := &wire.PrefixEncoder{}
	for _, t := range terms {
		s.conn.EnqueueWrite(byte(ReplyTermList), enc.Next([]byte(t)))
	}
	s.conn.EnqueueWrite(byte(ReplyDone), nil)
	return nil
}

// streamUints emits a gap-encoded var-uint stream: each entry's absolute
// value minus the previous entry's (first entry is absolute), one per
// frame, ending with REPLY_DONE. PostList (document ids) and PositionList
// (word positions) are numeric sequences rather than sorted term strings,
// so they use this gap encoding instead of wire.PrefixEncoder's string
// prefix compression -- both achieve the same goal (small deltas cost few
// bytes) over the shape of data they each carry.
func (s *Session) streamUints(vals []uint64, replyType ReplyType) {
	sort.Slice(vals, func(i, j int) bool { return vals[i] < vals[j] })
	var prev uint64
	for i, v := range vals {
		gap := v
		if i > 0 {
			gap = v - prev
		}
		s.conn.EnqueueWrite(byte(replyType), wire.EncodeVarUint(nil, gap))
		prev = v
	}
	s.conn.EnqueueWrite(byte(ReplyDone), nil)
}

func (s *Session) handlePostList(payload []byte) error {
	sh, err := s.requireReadable()
	if err != nil {
		return err
	}
	term, _, err := wire.DecodeString(payload, 0, true)
	if err != nil {
		return err
	}
	ids, err := sh.PostList(string(term))
	if err != nil {
		return err
	}
	s.conn.EnqueueWrite(byte(ReplyPostListStart), wire.EncodeVarUint(nil, uint64(len(ids))))
	s.streamUints(ids, ReplyPostListItem)
	return nil
}

func (s *Session) handlePositionList(payload []byte) error {
	sh, err := s.requireReadable()
	if err != nil {
		return err
	}
	docID, pos, err := wire.DecodeVarUint(payload, 0)
	if err != nil {
		return err
	}
	term, _, err := wire.DecodeString(payload, pos, true)
	if err != nil {
		return err
	}
	positions, err := sh.PositionList(docID, string(term))
	if err != nil {
		return err
	}
	s.streamUints(positions, ReplyPositionList)
	return nil
}

func (s *Session) handlePositionListCount(payload []byte) error {
	sh, err := s.requireReadable()
	if err != nil {
		return err
	}
	docID, pos, err := wire.DecodeVarUint(payload, 0)
	if err != nil {
		return err
	}
	term, _, err := wire.DecodeString(payload, pos, true)
	if err != nil {
		return err
	}
	n, err := sh.PositionListCount(docID, string(term))
	if err != nil {
		return err
	}
	s.conn.EnqueueWrite(byte(ReplyPositionListCount), wire.EncodeVarUint(nil, n))
	return nil
}

func (s *Session) handleTermExists(payload []byte) error {
	sh, err := s.requireReadable()
	if err != nil {
		return err
	}
	term, _, err := wire.DecodeString(payload, 0, true)
	if err != nil {
		return err
	}
	exists, err := sh.TermExists(string(term))
	if err != nil {
		return err
	}
	if exists {
		s.conn.EnqueueWrite(byte(ReplyTermExists), nil)
	} else {
		s.conn.EnqueueWrite(byte(ReplyTermDoesntExist), nil)
	}
	return nil
}

func (s *Session) handleUintReply(payload []byte, fn func(*shard.Shard, string) (uint64, error), replyType ReplyType) error {
	sh, err := s.requireReadable()
	if err != nil {
		return err
	}
	term, _, err := wire.DecodeString(payload, 0, true)
	if err != nil {
		return err
	}
	v, err := fn(sh, string(term))
	if err != nil {
		return err
	}
	s.conn.EnqueueWrite(byte(replyType), wire.EncodeVarUint(nil, v))
	return nil
}

func (s *Session) handleDocIDUintReply(payload []byte, fn func(*shard.Shard, uint64) (uint64, error), replyType ReplyType) error {
	sh, err := s.requireReadable()
	if err != nil {
		return err
	}
	docID, _, err := wire.DecodeVarUint(payload, 0)
	if err != nil {
		return err
	}
	v, err := fn(sh, docID)
	if err != nil {
		return err
	}
	s.conn.EnqueueWrite(byte(replyType), wire.EncodeVarUint(nil, v))
	return nil
}

func (s *Session) handleFreqs(payload []byte) error {
	sh, err := s.requireReadable()
	if err != nil {
		return err
	}
	term, _, err := wire.DecodeString(payload, 0, true)
	if err != nil {
		return err
	}
	tf, cf, err := sh.Freqs(string(term))
	if err != nil {
		return err
	}
	out := wire.EncodeVarUint(nil, tf)
	out = wire.EncodeVarUint(out, cf)
	s.conn.EnqueueWrite(byte(ReplyFreqs), out)
	return nil
}

func (s *Session) handleValueStats(payload []byte) error {
	sh, err := s.requireReadable()
	if err != nil {
		return err
	}
	slot, _, err := wire.DecodeVarUint(payload, 0)
	if err != nil {
		return err
	}
	vs, err := sh.ValueStats(int(slot))
	if err != nil {
		return err
	}
	out := wire.EncodeVarUint(nil, uint64(vs.Count))
	out = wire.EncodeString(out, vs.Lower)
	out = wire.EncodeString(out, vs.Upper)
	s.conn.EnqueueWrite(byte(ReplyValueStats), out)
	return nil
}

func (s *Session) handleQuery(payload []byte) error {
	sh, err := s.requireReadable()
	if err != nil {
		return err
	}
	handle, stats, err := sh.PrepareQuery(payload)
	if err != nil {
		return err
	}
	s.queryHandle, s.queryStats = handle, stats
	s.conn.EnqueueWrite(byte(ReplyStats), encodeQueryStats(stats))
	return nil
}

func (s *Session) handleGetMSet(payload []byte) error {
	sh, err := s.requireReadable()
	if err != nil {
		return err
	}
	first, pos, err := wire.DecodeVarUint(payload, 0)
	if err != nil {
		return err
	}
	maxItems, pos, err := wire.DecodeVarUint(payload, pos)
	if err != nil {
		return err
	}
	checkAtLeast, pos, err := wire.DecodeVarUint(payload, pos)
	if err != nil {
		return err
	}
	if pos < len(payload) {
		mergedStats, _, err := decodeQueryStats(payload[pos:])
		if err != nil {
			return err
		}
		s.queryStats = mergedStats
	}
	ms, err := sh.GetMSet(s.queryHandle, int(first), int(maxItems), int(checkAtLeast))
	if err != nil {
		return err
	}
	s.conn.EnqueueWrite(byte(ReplyResults), encodeMSet(ms))
	return nil
}

func encodeMSet(ms shard.MSet) []byte {
	out := wire.EncodeVarUint(nil, ms.Firstitem)
	out = wire.EncodeVarUint(out, ms.Matches)
	out = msgp.AppendFloat64(out, ms.MaxPossible)
	out = msgp.AppendFloat64(out, ms.MaxAttained)
	out = wire.EncodeVarUint(out, uint64(len(ms.Items)))
	for _, it := range ms.Items {
		out = wire.EncodeVarUint(out, it.DocID)
		out = msgp.AppendFloat64(out, it.Weight)
		out = wire.EncodeVarUint(out, it.Rank)
	}
	return out
}

func (s *Session) handleDocument(payload []byte) error {
	sh, err := s.requireReadable()
	if err != nil {
		return err
	}
	docID, _, err := wire.DecodeVarUint(payload, 0)
	if err != nil {
		return err
	}
	doc, err := sh.GetDoc(docID)
	if err != nil {
		return err
	}
	s.conn.EnqueueWrite(byte(ReplyDocData), doc.Data)
	slots := make([]int, 0, len(doc.Values))
	for slot := range doc.Values {
		slots = append(slots, slot)
	}
	sort.Ints(slots)
	for _, slot := range slots {
		out := wire.EncodeVarUint(nil, uint64(slot))
		out = append(out, doc.Values[slot]...)
		s.conn.EnqueueWrite(byte(ReplyValue), out)
	}
	s.conn.EnqueueWrite(byte(ReplyDone), nil)
	return nil
}

func (s *Session) handleAddDocument(payload []byte) error {
	sh, err := s.requireWritable()
	if err != nil {
		return err
	}
	doc, err := decodeDocument(payload)
	if err != nil {
		return err
	}
	id, err := sh.AddDocument(doc)
	if err != nil {
		return err
	}
	s.conn.EnqueueWrite(byte(ReplyAddDocument), wire.EncodeVarUint(nil, id))
	return nil
}

// handleDeleteDocument covers both MSG_DELETEDOCUMENT and
// MSG_DELETEDOCUMENTTERM: the underlying engine interface (package shard)
// only exposes deletion by term/id-string match, so both variants decode
// their payload the same way; byTerm only changes whether a reply is sent
// (spec.md §4.H: "REPLY_DONE (silent for term variant)").
func (s *Session) handleDeleteDocument(payload []byte, byTerm bool) error {
	sh, err := s.requireWritable()
	if err != nil {
		return err
	}
	if err := sh.DeleteDocument(string(payload)); err != nil {
		return err
	}
	if !byTerm {
		s.conn.EnqueueWrite(byte(ReplyDone), nil)
	}
	return nil
}

func (s *Session) handleReplaceDocument(payload []byte, byTerm bool) error {
	sh, err := s.requireWritable()
	if err != nil {
		return err
	}
	idOrTerm, pos, err := wire.DecodeString(payload, 0, true)
	if err != nil {
		return err
	}
	doc, err := decodeDocument(payload[pos:])
	if err != nil {
		return err
	}
	id, err := sh.ReplaceDocument(string(idOrTerm), doc)
	if err != nil {
		return err
	}
	_ = byTerm // both variants reply the same way in this implementation
	s.conn.EnqueueWrite(byte(ReplyAddDocument), wire.EncodeVarUint(nil, id))
	return nil
}

func (s *Session) handleCommitOrCancel(commit bool) error {
	sh, err := s.requireWritable()
	if err != nil {
		return err
	}
	if commit {
		err = sh.Commit()
	} else {
		err = sh.Cancel()
	}
	if err != nil {
		return err
	}
	s.conn.EnqueueWrite(byte(ReplyDone), nil)
	return nil
}

func (s *Session) handleGetMetadata(payload []byte) error {
	sh, err := s.requireReadable()
	if err != nil {
		return err
	}
	v, err := sh.GetMetadata(string(payload))
	if err != nil {
		return err
	}
	s.conn.EnqueueWrite(byte(ReplyMetadata), v)
	return nil
}

func (s *Session) handleSetMetadata(payload []byte) error {
	sh, err := s.requireWritable()
	if err != nil {
		return err
	}
	key, pos, err := wire.DecodeString(payload, 0, true)
	if err != nil {
		return err
	}
	return sh.SetMetadata(string(key), payload[pos:])
}

func (s *Session) handleSpelling(payload []byte, add bool) error {
	sh, err := s.requireWritable()
	if err != nil {
		return err
	}
	freqDelta, pos, err := wire.DecodeVarUint(payload, 0)
	if err != nil {
		return err
	}
	term := string(payload[pos:])
	if add {
		err = sh.AddSpelling(term, int(freqDelta))
	} else {
		err = sh.RemoveSpelling(term, int(freqDelta))
	}
	if err != nil {
		return err
	}
	s.conn.EnqueueWrite(byte(ReplyRemoveSpelling), wire.EncodeVarUint(nil, freqDelta))
	return nil
}

func (s *Session) handleKeepAlive() error {
	sh, err := s.requireReadable()
	if err != nil {
		return err
	}
	if err := sh.KeepAlive(); err != nil {
		return err
	}
	s.conn.EnqueueWrite(byte(ReplyDone), nil)
	return nil
}
