package transport_test

import (
	"bytes"
	"net"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Kronuz/Xapiand-sub007/transport"
)

type recorder struct {
	mu     sync.Mutex
	frames []transport.Frame
	files  []transport.FileFrame
	seen   chan struct{}
}

func newRecorder() *recorder { return &recorder{seen: make(chan struct{}, 64)} }

func (r *recorder) HandleFrame(f transport.Frame) error {
	r.mu.Lock()
	r.frames = append(r.frames, f)
	r.mu.Unlock()
	r.seen <- struct{}{}
	return nil
}

func (r *recorder) HandleFile(f transport.FileFrame) error {
	r.mu.Lock()
	r.files = append(r.files, f)
	r.mu.Unlock()
	r.seen <- struct{}{}
	return nil
}

func (r *recorder) waitN(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-r.seen:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for message %d/%d", i+1, n)
		}
	}
}

func TestEnqueueWriteRoundTrips(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	rec := newRecorder()
	serverConn := transport.NewConn(server, rec)
	defer serverConn.Close()

	clientConn := transport.NewConn(client, newRecorder())
	defer clientConn.Close()

	clientConn.EnqueueWrite(7, []byte("hello"))
	rec.waitN(t, 1)

	require.Len(t, rec.frames, 1)
	require.EqualValues(t, 7, rec.frames[0].Type)
	require.Equal(t, []byte("hello"), rec.frames[0].Payload)
}

func TestEnqueueWriteManyPreservesOrder(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	rec := newRecorder()
	serverConn := transport.NewConn(server, rec)
	defer serverConn.Close()
	clientConn := transport.NewConn(client, newRecorder())
	defer clientConn.Close()

	for i := byte(0); i < 10; i++ {
		clientConn.EnqueueWrite(i, []byte{i, i})
	}
	rec.waitN(t, 10)

	require.Len(t, rec.frames, 10)
	for i, f := range rec.frames {
		require.EqualValues(t, i, f.Type)
	}
}

func TestEnqueueFileRoundTrips(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	rec := newRecorder()
	serverConn := transport.NewConn(server, rec)
	defer serverConn.Close()
	clientConn := transport.NewConn(client, newRecorder())
	defer clientConn.Close()

	body := bytes.Repeat([]byte("xapian-shard-snapshot"), 4096)
	err := clientConn.EnqueueFile(3, bytes.NewReader(body))
	require.NoError(t, err)

	rec.waitN(t, 1)
	require.Len(t, rec.files, 1)
	require.EqualValues(t, 3, rec.files[0].UserType)

	got, err := os.ReadFile(rec.files[0].Path)
	require.NoError(t, err)
	require.Equal(t, body, got)
	os.Remove(rec.files[0].Path)
}

func TestFramesAfterFileResumeNormalMode(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	rec := newRecorder()
	serverConn := transport.NewConn(server, rec)
	defer serverConn.Close()
	clientConn := transport.NewConn(client, newRecorder())
	defer clientConn.Close()

	require.NoError(t, clientConn.EnqueueFile(1, bytes.NewReader([]byte("snapshot-body"))))
	clientConn.EnqueueWrite(9, []byte("after-file"))
	rec.waitN(t, 2)

	require.Len(t, rec.files, 1)
	require.Len(t, rec.frames, 1)
	require.EqualValues(t, 9, rec.frames[0].Type)
	require.Equal(t, []byte("after-file"), rec.frames[0].Payload)

	os.Remove(rec.files[0].Path)
}

func TestIsIdleAfterDrain(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	rec := newRecorder()
	serverConn := transport.NewConn(server, rec)
	defer serverConn.Close()
	clientConn := transport.NewConn(client, newRecorder())
	defer clientConn.Close()

	clientConn.EnqueueWrite(1, []byte("ping"))
	rec.waitN(t, 1)

	require.Eventually(t, func() bool {
		return clientConn.IsIdle() && serverConn.IsIdle()
	}, time.Second, time.Millisecond)
}
