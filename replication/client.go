package replication

import (
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/Kronuz/Xapiand-sub007/cmn/cos"
	"github.com/Kronuz/Xapiand-sub007/cmn/nlog"
	"github.com/Kronuz/Xapiand-sub007/meta"
	"github.com/Kronuz/Xapiand-sub007/pool"
	"github.com/Kronuz/Xapiand-sub007/shard"
	"github.com/Kronuz/Xapiand-sub007/stats"
	"github.com/Kronuz/Xapiand-sub007/transport"
	"github.com/Kronuz/Xapiand-sub007/wire"
)

// Client drives the receiving side of one replication stream (spec.md
// §4.I): it writes incoming snapshot files to a temporary switch-in
// directory, collects changeset files in arrival order, and on
// REPLY_END_OF_CHANGES applies everything to a fresh engine handle before
// atomically swapping it in under the ShardEndpoint lock (spec.md §4.D).
// On REPLY_FAIL the switch-in directory's files are discarded and the live
// shard is left untouched.
type Client struct {
	p      *pool.DatabasePool
	engine shard.Engine
	ep     meta.Endpoint
	conn   *transport.Conn

	switchInDir string

	mu              sync.Mutex
	pendingFilename string
	snapshotFiles   []string
	changesetFiles  []string

	done chan error

	metrics *stats.Registry
}

// SetMetrics attaches r as this client's metrics sink.
func (c *Client) SetMetrics(r *stats.Registry) { c.metrics = r }

// NewClient opens nc as a replication session and immediately requests the
// revision range (fromRev, toRev] for ep, advertising localUUID so the
// source can decide whether a full snapshot is needed.
func NewClient(nc net.Conn, p *pool.DatabasePool, engine shard.Engine, ep meta.Endpoint, localUUID string, fromRev, toRev uint64) *Client {
	c := &Client{
		p:           p,
		engine:      engine,
		ep:          ep,
		switchInDir: ep.String() + ".switch-in-" + cos.GenUUID(),
		done:        make(chan error, 1),
	}
	c.conn = transport.NewConn(nc, c)
	c.conn.EnqueueWrite(byte(MsgGetChangesets), encodeGetChangesets(localUUID, fromRev, toRev, ep))
	return c
}

// Wait blocks until the stream completes (successfully or not) or the
// connection is closed unexpectedly, returning the terminal error if any.
func (c *Client) Wait() error {
	err := <-c.done
	c.conn.Close()
	return err
}

func (c *Client) HandleFrame(f transport.Frame) error {
	switch ReplyType(f.Type) {
	case ReplyDBHeader:
	case ReplyDBFilename:
		name, _, err := wire.DecodeString(f.Payload, 0, true)
		if err != nil {
			return err
		}
		c.mu.Lock()
		c.pendingFilename = string(name)
		c.mu.Unlock()
	case ReplyDBFooter:
	case ReplyChangeset:
	case ReplyEndOfChanges:
		c.finish(nil)
	case ReplyFail:
		c.finish(errors.Errorf("replication: source reported failure: %s", f.Payload))
	default:
		return cos.NewErrInvalidArgument("replication: unknown reply type %d", f.Type)
	}
	return nil
}

func (c *Client) HandleFile(f transport.FileFrame) error {
	dst, err := c.decompressToTemp(f.Path)
	os.Remove(f.Path)
	if err != nil {
		return err
	}
	switch f.UserType {
	case fileTypeSnapshot:
		if err := os.MkdirAll(c.switchInDir, 0o755); err != nil {
			return errors.Wrap(err, "replication: switch-in dir")
		}
		c.mu.Lock()
		name := c.pendingFilename
		c.mu.Unlock()
		final := filepath.Join(c.switchInDir, name)
		if err := os.Rename(dst, final); err != nil {
			return errors.Wrap(err, "replication: move snapshot file")
		}
		c.mu.Lock()
		c.snapshotFiles = append(c.snapshotFiles, final)
		c.mu.Unlock()
	case fileTypeChangeset:
		c.mu.Lock()
		c.changesetFiles = append(c.changesetFiles, dst)
		c.mu.Unlock()
	default:
		return cos.NewErrInvalidArgument("replication: unknown file user type %d", f.UserType)
	}
	return nil
}

// decompressToTemp reads path (LZ4-compressed, as sendFile wrote it) into a
// fresh temp file holding the plain bytes, and returns its path.
func (c *Client) decompressToTemp(path string) (string, error) {
	src, err := os.Open(path)
	if err != nil {
		return "", errors.Wrap(err, "replication: open received file")
	}
	defer src.Close()
	dst, err := os.CreateTemp("", "xapiand-recv-*")
	if err != nil {
		return "", errors.Wrap(err, "replication: temp file")
	}
	defer dst.Close()
	if _, err := io.Copy(dst, decompressReader(src)); err != nil {
		return "", errors.Wrap(err, "replication: decompress")
	}
	return dst.Name(), nil
}

func (c *Client) finish(err error) {
	if err != nil {
		c.metrics.ObserveReplicationFailure()
		c.cleanup()
		select {
		case c.done <- err:
		default:
		}
		return
	}
	applyErr := c.apply()
	if applyErr != nil {
		c.metrics.ObserveReplicationFailure()
		c.cleanup()
	}
	select {
	case c.done <- applyErr:
	default:
	}
}

// apply opens a fresh engine handle over the switch-in directory, replays
// the received snapshot and changesets onto it, then swaps it in as ep's
// live writable shard while holding the ShardEndpoint lock so no in-flight
// query ever observes a half-applied state (spec.md §4.I correctness
// requirement).
func (c *Client) apply() error {
	c.mu.Lock()
	snapshotFiles := append([]string(nil), c.snapshotFiles...)
	changesetFiles := append([]string(nil), c.changesetFiles...)
	c.mu.Unlock()

	db, err := c.engine.Open(c.switchInDir, shard.CREATE_OR_OPEN|shard.WRITABLE)
	if err != nil {
		return errors.Wrap(err, "replication: open switch-in db")
	}
	for _, path := range snapshotFiles {
		if err := db.ApplySnapshot(path); err != nil {
			db.Close()
			return errors.Wrapf(err, "replication: apply snapshot %s", path)
		}
	}
	for _, path := range changesetFiles {
		if err := db.ApplyChangeset(path); err != nil {
			db.Close()
			return errors.Wrapf(err, "replication: apply changeset %s", path)
		}
		os.Remove(path)
	}
	db.Close()

	// Commit the switch-in directory onto the canonical path (spec.md §4.I:
	// "writes to a sibling switch-in directory and renames on commit"), then
	// reopen it there so future readable checkouts for this endpoint find it
	// under its normal path instead of the throwaway switch-in one.
	if err := c.engine.Rename(c.switchInDir, c.ep.String()); err != nil {
		return errors.Wrap(err, "replication: commit switch-in directory")
	}
	db, err = c.engine.Open(c.ep.String(), shard.WRITABLE)
	if err != nil {
		return errors.Wrap(err, "replication: reopen committed database")
	}

	if err := c.p.Lock(c.ep, time.Now().Add(defaultLockTimeout)); err != nil {
		db.Close()
		return errors.Wrap(err, "replication: lock endpoint for swap")
	}
	defer c.p.Unlock(c.ep)

	newShard := shard.New(shard.Writable, c.ep, shard.WRITABLE, db)
	c.p.SwapWritable(c.ep, newShard)
	nlog.Infof("replication: switched in %s (%d snapshot file(s), %d changeset(s))", c.ep, len(snapshotFiles), len(changesetFiles))
	return nil
}

func (c *Client) cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, path := range c.changesetFiles {
		os.Remove(path)
	}
	if c.switchInDir != "" {
		os.RemoveAll(c.switchInDir)
	}
}
