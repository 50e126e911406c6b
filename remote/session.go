package remote

import (
	"net"
	"time"

	"github.com/Kronuz/Xapiand-sub007/cmn/cos"
	"github.com/Kronuz/Xapiand-sub007/meta"
	"github.com/Kronuz/Xapiand-sub007/pool"
	"github.com/Kronuz/Xapiand-sub007/shard"
	"github.com/Kronuz/Xapiand-sub007/stats"
	"github.com/Kronuz/Xapiand-sub007/transport"
)

// defaultCheckoutTimeout bounds how long a single protocol message will
// wait on the pool before failing with Timeout (spec.md §6: pool sizing is
// the only configurable surface here; per-message deadlines are an
// implementation constant, not a knob).
const defaultCheckoutTimeout = 30 * time.Second

// Session is one connection's remote-protocol state machine (spec.md
// §4.H): it owns the transport.Conn, the endpoints configured on it via
// MSG_READACCESS/MSG_WRITEACCESS, and the query handle created by the most
// recent MSG_QUERY. Exactly one Session exists per accepted connection.
type Session struct {
	p    *pool.DatabasePool
	conn *transport.Conn

	started bool // spec.md §8 P7: once past INIT, never returns to it

	readEPs    []meta.Endpoint
	readShards []*shard.Shard

	writeEP    meta.Endpoint
	writeShard *shard.Shard
	hasWrite   bool

	queryHandle []byte
	queryStats  shard.QueryStats

	metrics *stats.Registry
}

// SetMetrics attaches r as this session's metrics sink; a nil *Session
// metrics field (the default) simply makes every Observe* call a no-op.
func (s *Session) SetMetrics(r *stats.Registry) { s.metrics = r }

// NewSession wraps nc in a transport.Conn running this session's dispatch
// table, writes the INIT_REMOTE handshake REPLY_UPDATE, and transitions to
// REMOTE_SERVER (spec.md §4.H). p is the pool this node's shards live in.
func NewSession(nc net.Conn, p *pool.DatabasePool) *Session {
	s := &Session{p: p}
	s.conn = transport.NewConn(nc, s)
	s.conn.EnqueueWrite(byte(ReplyUpdate), encodeUpdate(shard.Stats{}))
	s.started = true
	return s
}

// Close tears down the underlying connection and releases every
// outstanding checkout.
func (s *Session) Close() {
	s.releaseReads()
	s.releaseWrite()
	s.conn.Close()
}

func (s *Session) releaseReads() {
	if len(s.readShards) == 0 {
		return
	}
	s.p.CheckinBatch(s.readEPs, s.readShards)
	s.readEPs, s.readShards = nil, nil
}

func (s *Session) releaseWrite() {
	if !s.hasWrite {
		return
	}
	s.p.Checkin(s.writeEP, s.writeShard)
	s.hasWrite = false
	s.writeShard = nil
}

// HandleFile is never exercised by the remote protocol (only replication
// streams files over transport's file mode); present to satisfy
// transport.Handler.
func (s *Session) HandleFile(transport.FileFrame) error { return nil }

// HandleFrame dispatches one decoded message per spec.md §4.H's table.
// Errors from the typed cos kinds are serialized to REPLY_EXCEPTION and
// swallowed (connection continues); only Serialisation propagates up to
// tear the connection down, per spec.md §7's propagation policy.
func (s *Session) HandleFrame(f transport.Frame) error {
	typ := MsgType(f.Type)
	s.metrics.ObserveMessage(typ.String())
	err := s.dispatch(typ, f.Payload)
	if err == nil {
		return nil
	}
	if cos.IsErrSerialisation(err) {
		return err
	}
	s.metrics.ObserveException(typ.String())
	logException(s.context(), err)
	s.conn.EnqueueWrite(byte(ReplyException), encodeException(s.context(), err))
	return nil
}

func (s *Session) context() string {
	if s.hasWrite {
		return s.writeEP.String()
	}
	if len(s.readEPs) > 0 {
		return s.readEPs[0].String()
	}
	return ""
}

func (s *Session) activeShard() *shard.Shard {
	if s.hasWrite {
		return s.writeShard
	}
	if len(s.readShards) > 0 {
		return s.readShards[0]
	}
	return nil
}

func (s *Session) dispatch(typ MsgType, payload []byte) error {
	switch typ {
	case MsgReadAccess:
		return s.handleReadAccess(payload)
	case MsgWriteAccess:
		return s.handleWriteAccess(payload)
	case MsgReopen:
		return s.handleReopen()
	case MsgUpdate:
		return s.handleUpdate()
	case MsgAllTerms:
		return s.streamTerms(payload, func(sh *shard.Shard, prefix string) ([]string, error) { return sh.AllTerms(prefix) }, ReplyAllTerms)
	case MsgTermList:
		return s.handleTermList(payload)
	case MsgPositionList:
		return s.handlePositionList(payload)
	case MsgPostList:
		return s.handlePostList(payload)
	case MsgMetadataKeyList:
		return s.streamTerms(payload, func(sh *shard.Shard, prefix string) ([]string, error) { return sh.MetadataKeys(prefix) }, ReplyMetadataKeyList)
	case MsgTermExists:
		return s.handleTermExists(payload)
	case MsgTermFreq:
		return s.handleUintReply(payload, func(sh *shard.Shard, term string) (uint64, error) { return sh.TermFreq(term) }, ReplyTermFreq)
	case MsgCollFreq:
		return s.handleUintReply(payload, func(sh *shard.Shard, term string) (uint64, error) { return sh.CollFreq(term) }, ReplyCollFreq)
	case MsgFreqs:
		return s.handleFreqs(payload)
	case MsgDocLength:
		return s.handleDocIDUintReply(payload, func(sh *shard.Shard, id uint64) (uint64, error) { return sh.DocLength(id) }, ReplyDocLength)
	case MsgUniqueTerms:
		return s.handleDocIDUintReply(payload, func(sh *shard.Shard, id uint64) (uint64, error) { return sh.UniqueTerms(id) }, ReplyUniqueTerms)
	case MsgPositionListCount:
		return s.handlePositionListCount(payload)
	case MsgValueStats:
		return s.handleValueStats(payload)
	case MsgQuery:
		return s.handleQuery(payload)
	case MsgGetMSet:
		return s.handleGetMSet(payload)
	case MsgDocument:
		return s.handleDocument(payload)
	case MsgAddDocument:
		return s.handleAddDocument(payload)
	case MsgDeleteDocument:
		return s.handleDeleteDocument(payload, false)
	case MsgDeleteDocumentTerm:
		return s.handleDeleteDocument(payload, true)
	case MsgReplaceDocument:
		return s.handleReplaceDocument(payload, false)
	case MsgReplaceDocumentTerm:
		return s.handleReplaceDocument(payload, true)
	case MsgCommit:
		return s.handleCommitOrCancel(true)
	case MsgCancel:
		return s.handleCommitOrCancel(false)
	case MsgGetMetadata:
		return s.handleGetMetadata(payload)
	case MsgSetMetadata:
		return s.handleSetMetadata(payload)
	case MsgAddSpelling:
		return s.handleSpelling(payload, true)
	case MsgRemoveSpelling:
		return s.handleSpelling(payload, false)
	case MsgKeepAlive:
		return s.handleKeepAlive()
	case MsgShutdown:
		s.Close()
		return nil
	default:
		return cos.NewErrInvalidArgument("unknown message type %d", typ)
	}
}
