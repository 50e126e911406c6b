package remote_test

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Kronuz/Xapiand-sub007/cmn"
	"github.com/Kronuz/Xapiand-sub007/pool"
	"github.com/Kronuz/Xapiand-sub007/remote"
	"github.com/Kronuz/Xapiand-sub007/shard/mock"
	"github.com/Kronuz/Xapiand-sub007/wire"
)

func newTestPool() *pool.DatabasePool {
	cfg := cmn.DefaultConfig()
	return pool.New(mock.NewEngine(), cfg)
}

// client is a minimal hand-rolled remote-protocol client for exercising
// package remote's Session against a real net.Pipe connection, the way
// transport_test.go exercises package transport directly.
type client struct {
	nc net.Conn
}

// readByte reads exactly one byte off nc.
func readByte(t *testing.T, nc net.Conn) byte {
	t.Helper()
	b := make([]byte, 1)
	_, err := readFull(nc, b)
	require.NoError(t, err)
	return b[0]
}

// readFrame reads one type-byte + var-uint length + payload frame,
// following EncodeVarUint's byte layout exactly (spec.md §6): a single byte
// below 0xff is the whole value; 0xff starts a run of plain 7-bit groups
// terminated by a standalone byte with the high bit set.
func (c *client) readFrame(t *testing.T) (byte, []byte) {
	t.Helper()
	typ := readByte(t, c.nc)
	first := readByte(t, c.nc)
	buf := []byte{first}
	if first == 0xff {
		for {
			b := readByte(t, c.nc)
			buf = append(buf, b)
			if b&0x80 != 0 {
				break
			}
		}
	}
	plen, _, err := wire.DecodeVarUint(buf, 0)
	require.NoError(t, err)
	payload := make([]byte, plen)
	_, err = readFull(c.nc, payload)
	require.NoError(t, err)
	return typ, payload
}

func readFull(nc net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := nc.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func (c *client) writeFrame(t *testing.T, typ byte, payload []byte) {
	t.Helper()
	out := []byte{typ}
	out = wire.EncodeVarUint(out, uint64(len(payload)))
	out = append(out, payload...)
	_, err := c.nc.Write(out)
	require.NoError(t, err)
}

func TestSessionHandshakeSendsReplyUpdate(t *testing.T) {
	nc, serverNc := net.Pipe()
	defer nc.Close()

	p := newTestPool()
	s := remote.NewSession(serverNc, p)
	defer s.Close()

	c := &client{nc: nc}
	typ, payload := c.readFrame(t)
	require.Equal(t, byte(remote.ReplyUpdate), typ)
	require.GreaterOrEqual(t, len(payload), 2)
	require.Equal(t, byte(remote.ProtocolMajor), payload[0])
	require.Equal(t, byte(remote.ProtocolMinor), payload[1])
}

func TestSessionWriteAccessThenAddDocumentAndQuery(t *testing.T) {
	nc, serverNc := net.Pipe()
	defer nc.Close()

	p := newTestPool()
	s := remote.NewSession(serverNc, p)
	defer s.Close()

	c := &client{nc: nc}
	_, _ = c.readFrame(t) // handshake REPLY_UPDATE

	ep := "memory:///database/test"
	payload := wire.EncodeString(nil, []byte(ep))
	c.writeFrame(t, byte(remote.MsgWriteAccess), payload)

	typ, _ := c.readFrame(t)
	require.Equal(t, byte(remote.ReplyUpdate), typ)

	doc := wire.EncodeVarUint(nil, 1) // one term
	doc = wire.EncodeString(doc, []byte("hello"))
	doc = wire.EncodeVarUint(doc, 0) // zero values
	doc = wire.EncodeString(doc, []byte("opaque-data"))
	c.writeFrame(t, byte(remote.MsgAddDocument), doc)

	typ, addPayload := c.readFrame(t)
	require.Equal(t, byte(remote.ReplyAddDocument), typ)
	docID, _, err := wire.DecodeVarUint(addPayload, 0)
	require.NoError(t, err)
	require.Equal(t, uint64(1), docID)

	c.writeFrame(t, byte(remote.MsgCommit), nil)
	typ, _ = c.readFrame(t)
	require.Equal(t, byte(remote.ReplyDone), typ)

	c.writeFrame(t, byte(remote.MsgTermExists), wire.EncodeString(nil, []byte("hello")))
	typ, _ = c.readFrame(t)
	require.Equal(t, byte(remote.ReplyTermExists), typ)
}

func TestSessionExceptionOnUnknownEndpoint(t *testing.T) {
	nc, serverNc := net.Pipe()
	defer nc.Close()

	p := newTestPool()
	s := remote.NewSession(serverNc, p)
	defer s.Close()

	c := &client{nc: nc}
	_, _ = c.readFrame(t) // handshake

	// MSG_TERMEXISTS with no endpoint configured -> InvalidArgument, which
	// becomes REPLY_EXCEPTION (connection continues) per the error
	// propagation policy, never tears the connection down.
	c.writeFrame(t, byte(remote.MsgTermExists), wire.EncodeString(nil, []byte("hello")))
	typ, excPayload := c.readFrame(t)
	require.Equal(t, byte(remote.ReplyException), typ)
	require.NotEmpty(t, excPayload)

	// connection must still be alive: a keepalive after a typed exception
	// should fail its own way (still no endpoint) rather than hang up.
	c.writeFrame(t, byte(remote.MsgKeepAlive), nil)
	typ, _ = c.readFrame(t)
	require.Equal(t, byte(remote.ReplyException), typ)
}

func TestSessionShutdownClosesConnection(t *testing.T) {
	nc, serverNc := net.Pipe()
	defer nc.Close()

	p := newTestPool()
	s := remote.NewSession(serverNc, p)
	defer s.Close()

	c := &client{nc: nc}
	_, _ = c.readFrame(t) // handshake

	c.writeFrame(t, byte(remote.MsgShutdown), nil)

	done := make(chan struct{})
	go func() {
		buf := make([]byte, 1)
		nc.Read(buf)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("connection was not closed after MSG_SHUTDOWN")
	}
}
