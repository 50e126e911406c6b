package replication

import (
	"io"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"

	"github.com/Kronuz/Xapiand-sub007/cmn/cos"
	"github.com/Kronuz/Xapiand-sub007/meta"
	"github.com/Kronuz/Xapiand-sub007/pool"
	"github.com/Kronuz/Xapiand-sub007/shard"
	"github.com/Kronuz/Xapiand-sub007/stats"
	"github.com/Kronuz/Xapiand-sub007/transport"
	"github.com/Kronuz/Xapiand-sub007/wire"
)

const defaultLockTimeout = 30 * time.Second

// Server answers MSG_GET_CHANGESETS on the node holding the authoritative
// shard (spec.md §4.I): it streams an optional snapshot followed by the
// changesets needed to bring the requester up to date.
type Server struct {
	p       *pool.DatabasePool
	conn    *transport.Conn
	metrics *stats.Registry
}

func NewServer(nc net.Conn, p *pool.DatabasePool) *Server {
	s := &Server{p: p}
	s.conn = transport.NewConn(nc, s)
	return s
}

// SetMetrics attaches r as this server's metrics sink.
func (s *Server) SetMetrics(r *stats.Registry) { s.metrics = r }

func (s *Server) Close() { s.conn.Close() }

func (s *Server) HandleFile(transport.FileFrame) error { return nil }

func (s *Server) HandleFrame(f transport.Frame) error {
	if MsgType(f.Type) != MsgGetChangesets {
		return cos.NewErrInvalidArgument("replication: unknown message type %d", f.Type)
	}
	if err := s.handleGetChangesets(f.Payload); err != nil {
		s.metrics.ObserveReplicationFailure()
		s.conn.EnqueueWrite(byte(ReplyFail), []byte(err.Error()))
	}
	return nil
}

func decodeGetChangesets(payload []byte) (uuid string, fromRev, toRev uint64, ep meta.Endpoint, err error) {
	var raw []byte
	var pos int
	if raw, pos, err = wire.DecodeString(payload, 0, true); err != nil {
		return "", 0, 0, meta.Endpoint{}, err
	}
	uuid = string(raw)
	if fromRev, pos, err = wire.DecodeVarUint(payload, pos); err != nil {
		return "", 0, 0, meta.Endpoint{}, err
	}
	if toRev, pos, err = wire.DecodeVarUint(payload, pos); err != nil {
		return "", 0, 0, meta.Endpoint{}, err
	}
	if raw, _, err = wire.DecodeString(payload, pos, true); err != nil {
		return "", 0, 0, meta.Endpoint{}, err
	}
	ep, err = meta.Parse(string(raw))
	return uuid, fromRev, toRev, ep, err
}

func encodeGetChangesets(uuid string, fromRev, toRev uint64, ep meta.Endpoint) []byte {
	out := wire.EncodeString(nil, []byte(uuid))
	out = wire.EncodeVarUint(out, fromRev)
	out = wire.EncodeVarUint(out, toRev)
	out = wire.EncodeString(out, []byte(ep.String()))
	return out
}

func (s *Server) handleGetChangesets(payload []byte) error {
	uuid, fromRev, toRev, ep, err := decodeGetChangesets(payload)
	if err != nil {
		return err
	}
	sh, _, err := s.p.Checkout(ep, shard.OPEN, time.Now().Add(defaultLockTimeout), nil)
	if err != nil {
		return err
	}
	defer s.p.Checkin(ep, sh)

	st := sh.Stats()
	if st.UUID != uuid {
		if err := s.sendSnapshot(sh); err != nil {
			return err
		}
	} else {
		paths, err := sh.Changesets(fromRev, toRev)
		if err != nil {
			return err
		}
		for _, path := range paths {
			if err := s.sendFile(ReplyChangeset, fileTypeChangeset, path); err != nil {
				return err
			}
			s.metrics.ObserveChangesetSent()
		}
	}
	out := wire.EncodeVarUint(nil, st.LastDocID)
	out = wire.EncodeString(out, []byte(st.UUID))
	s.conn.EnqueueWrite(byte(ReplyEndOfChanges), out)
	return nil
}

func (s *Server) sendSnapshot(sh *shard.Shard) error {
	files, err := sh.SnapshotFiles()
	if err != nil {
		return errors.Wrap(err, "replication: snapshot files")
	}
	s.conn.EnqueueWrite(byte(ReplyDBHeader), nil)
	for _, path := range files {
		if err := s.sendFile(ReplyDBFilename, fileTypeSnapshot, path); err != nil {
			return err
		}
	}
	s.conn.EnqueueWrite(byte(ReplyDBFooter), nil)
	s.metrics.ObserveSnapshotSent()
	return nil
}

// sendFile announces path's base name via replyType, then streams its
// contents through transport's file mode (spec.md §4.G), LZ4-wrapped so
// transfer size is bounded independent of the underlying snapshot/changeset
// size (SPEC_FULL.md §3 domain stack: pierrec/lz4).
func (s *Server) sendFile(replyType ReplyType, fileType byte, path string) error {
	s.conn.EnqueueWrite(byte(replyType), wire.EncodeString(nil, []byte(filepath.Base(path))))
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "replication: open %s", path)
	}
	defer f.Close()
	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(compress(pw, f))
	}()
	return s.conn.EnqueueFile(fileType, pr)
}
