package usftp

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

// newTestSession wires a Client directly to a Server over an in-memory
// net.Pipe, the same harness shape as the client/server pairs used
// elsewhere in this corpus for protocol-level tests that don't want a real
// socket or subprocess in the loop.
func newTestSession(t *testing.T, h Handler) (*Client, func()) {
	t.Helper()
	serverConn, clientConn := net.Pipe()

	srv := NewServer(serverConn, serverConn, h)
	done := make(chan error, 1)
	go func() { done <- srv.Serve() }()

	client, err := NewClientPipe(clientConn, clientConn)
	require.NoError(t, err)

	return client, func() {
		client.Close()
		serverConn.Close()
		<-done
	}
}

func TestInitHandshakeNegotiatesVersionAndExtensions(t *testing.T) {
	client, closeAll := newTestSession(t, newMemHandler())
	defer closeAll()

	_, ok := client.HasExtension(extLimits)
	require.True(t, ok)
	_, ok = client.HasExtension(extFsync)
	require.True(t, ok)
}

func TestRealPathUsesLimitsExtension(t *testing.T) {
	client, closeAll := newTestSession(t, newMemHandler())
	defer closeAll()

	canon, err := client.RealPath("foo")
	require.NoError(t, err)
	require.Equal(t, "foo", canon)

	limits, err := client.limits()
	require.NoError(t, err)
	require.NotZero(t, limits.MaxReadLength)
}

func TestWriteThenReadRoundTrip(t *testing.T) {
	client, closeAll := newTestSession(t, newMemHandler())
	defer closeAll()

	want := []byte("0123456789")
	require.NoError(t, client.WriteFile("/hello.txt", want))

	got, err := client.ReadFile("/hello.txt")
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestReadDirSkipsDotEntries(t *testing.T) {
	client, closeAll := newTestSession(t, newMemHandler())
	defer closeAll()

	require.NoError(t, client.WriteFile("/dir/a.txt", []byte("a")))
	require.NoError(t, client.WriteFile("/dir/b.txt", []byte("bb")))

	entries, err := client.ReadDir("/dir", 0, nil)
	require.NoError(t, err)

	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.BaseName()
	}
	require.ElementsMatch(t, []string{"a.txt", "b.txt"}, names)
}

// blockingHandler answers Init normally (so the handshake completes) but
// hangs forever on Stat, standing in for a server that drops a request on
// the floor - enough to exercise the client's per-request deadline.
type blockingHandler struct {
	*memHandler
	blockC chan struct{}
}

func (h *blockingHandler) Stat(path string) (*FileStat, error) {
	<-h.blockC
	return h.memHandler.Stat(path)
}

func TestRequestTimesOutWhenServerNeverReplies(t *testing.T) {
	h := &blockingHandler{memHandler: newMemHandler(), blockC: make(chan struct{})}
	client, closeAll := newTestSession(t, h)
	defer func() {
		close(h.blockC)
		closeAll()
	}()

	client.SetTimeout(1)
	_, err := client.Stat("/whatever")
	require.Error(t, err)

	var ce *ClientError
	require.True(t, errors.As(err, &ce))
	require.Equal(t, Timeout, ce.Kind)
}

func TestServerErrorPropagatesAsNotExist(t *testing.T) {
	client, closeAll := newTestSession(t, newMemHandler())
	defer closeAll()

	// the server answers with status NoSuchFile; the client surfaces that
	// as os.ErrNotExist, the same mapping errFromStatus applies everywhere
	_, err := client.Stat("/does-not-exist")
	require.Error(t, err)
	require.True(t, errors.Is(err, os.ErrNotExist))

	exists, err := client.TryExists("/does-not-exist")
	require.NoError(t, err)
	require.False(t, exists)
}

func TestFileReadEndOfStreamReturnsEOF(t *testing.T) {
	client, closeAll := newTestSession(t, newMemHandler())
	defer closeAll()

	require.NoError(t, client.WriteFile("/small.txt", []byte("hi")))

	f, err := client.OpenRead("/small.txt")
	require.NoError(t, err)
	defer f.Close()

	buf := make([]byte, 2)
	n, err := f.ReadAt(buf, 0)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	n, err = f.ReadAt(buf, 2)
	require.ErrorIs(t, err, io.EOF)
	require.Equal(t, 0, n)

	// a read after close is a local error, no round trip
	require.NoError(t, f.Close())
	_, err = f.ReadAt(buf, 0)
	require.ErrorIs(t, err, os.ErrClosed)
}

func TestMaxOpenHandlesIsEnforcedLocally(t *testing.T) {
	client, closeAll := newTestSession(t, newMemHandler())
	defer closeAll()
	client.maxOpenHandles = 1

	require.NoError(t, client.WriteFile("/one.txt", []byte("x")))
	require.NoError(t, client.WriteFile("/two.txt", []byte("y")))

	f1, err := client.OpenRead("/one.txt")
	require.NoError(t, err)
	defer f1.Close()

	_, err = client.OpenRead("/two.txt")
	require.Error(t, err)
	var ce *ClientError
	require.True(t, errors.As(err, &ce))
	require.Equal(t, Limited, ce.Kind)

	// closing the first file frees the slot
	require.NoError(t, f1.Close())
	f2, err := client.OpenRead("/two.txt")
	require.NoError(t, err)
	defer f2.Close()
}

func TestRequestReplyCorrelationUnderOutOfOrderWork(t *testing.T) {
	client, closeAll := newTestSession(t, newMemHandler())
	defer closeAll()

	const n = 50
	want := make([][]byte, n)
	for i := 0; i < n; i++ {
		want[i] = bytes.Repeat([]byte{byte('a' + i%26)}, 16)
	}

	errC := make(chan error, n)
	for i := 0; i < n; i++ {
		i := i
		go func() {
			name := fmt.Sprintf("/interleaved-%02d.bin", i)
			errC <- client.WriteFile(name, want[i])
		}()
	}
	for i := 0; i < n; i++ {
		require.NoError(t, <-errC)
	}
}

func TestRenameAndPosixRename(t *testing.T) {
	client, closeAll := newTestSession(t, newMemHandler())
	defer closeAll()

	require.NoError(t, client.WriteFile("/old.txt", []byte("data")))
	require.NoError(t, client.Rename("/old.txt", "/new.txt"))

	got, err := client.ReadFile("/new.txt")
	require.NoError(t, err)
	require.Equal(t, []byte("data"), got)

	require.NoError(t, client.WriteFile("/another.txt", []byte("more")))
	require.NoError(t, client.PosixRename("/another.txt", "/renamed.txt"))
	got, err = client.ReadFile("/renamed.txt")
	require.NoError(t, err)
	require.Equal(t, []byte("more"), got)
}

func TestFsInfoUsesStatvfsExtension(t *testing.T) {
	client, closeAll := newTestSession(t, newMemHandler())
	defer closeAll()

	vfs, err := client.FsInfo("/")
	require.NoError(t, err)
	require.EqualValues(t, 4096, vfs.Bsize)
	require.EqualValues(t, 4096*1000, vfs.TotalSpace())
}

func TestRemoveNonexistentFileReturnsNotExist(t *testing.T) {
	client, closeAll := newTestSession(t, newMemHandler())
	defer closeAll()

	err := client.Remove("/nope.txt")
	require.Error(t, err)
	require.True(t, errors.Is(err, os.ErrNotExist))
}

func TestGenericExtendedRoundTrip(t *testing.T) {
	client, closeAll := newTestSession(t, newMemHandler())
	defer closeAll()

	reply, err := client.Extended("echo@example.com", []byte("ping"))
	require.NoError(t, err)
	require.Equal(t, []byte("ping"), reply)

	_, err = client.Extended("unknown@example.com", nil)
	require.Error(t, err)
}

func TestHasExtensionReportsAbsentExtensionsAsNotOk(t *testing.T) {
	client, closeAll := newTestSession(t, newMemHandler())
	defer closeAll()

	_, ok := client.HasExtension("made-up@example.com")
	require.False(t, ok)
}
