package conn

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/sys/unix"
)

func socketPair(t *testing.T) (a, b int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	require.NoError(t, err)
	return fds[0], fds[1]
}

func TestConnection_SendThenAsyncWriteThenPeerAsyncRead(t *testing.T) {
	defer goleak.VerifyNone(t)

	a, b := socketPair(t)
	ca := New(a, "a", "b")
	cb := New(b, "b", "a")
	defer ca.Release()
	defer cb.Release()

	payload := []byte("hello from ca")
	require.NoError(t, ca.Send(payload))

	n, suspend := ca.AsyncWrite()
	require.Equal(t, len(payload), n)
	require.False(t, suspend)

	deadline := time.Now().Add(2 * time.Second)
	var got int
	for time.Now().Before(deadline) {
		n, _ := cb.AsyncRead()
		got += n
		if got >= len(payload) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	require.Equal(t, len(payload), got)

	out := make([]byte, len(payload))
	rn, err := cb.ReadBuf.Read(out)
	require.NoError(t, err)
	require.Equal(t, payload, out[:rn])
}

func TestConnection_CloseIsIdempotentAndPreservesReadBuffer(t *testing.T) {
	defer goleak.VerifyNone(t)

	a, b := socketPair(t)
	ca := New(a, "a", "b")
	cb := New(b, "b", "a")
	defer ca.Release()
	defer cb.Release()

	require.NoError(t, ca.Send([]byte("x")))
	_, _ = ca.AsyncWrite()

	time.Sleep(20 * time.Millisecond)
	_, _ = cb.AsyncRead()
	require.Equal(t, 1, cb.ReadBuf.Size())

	cb.Close()
	cb.Close() // must not panic

	require.True(t, cb.Closed())
	require.Equal(t, 1, cb.ReadBuf.Size(), "close must preserve unread buffered bytes")
}

func TestConnection_AsyncReadDetectsPeerClose(t *testing.T) {
	defer goleak.VerifyNone(t)

	a, b := socketPair(t)
	ca := New(a, "a", "b")
	cb := New(b, "b", "a")
	defer ca.Release()
	defer cb.Release()

	ca.Close()
	unix.Close(a)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		_, suspend := cb.AsyncRead()
		if cb.Closed() {
			break
		}
		_ = suspend
		time.Sleep(5 * time.Millisecond)
	}
	require.True(t, cb.Closed())
}

func TestConnection_SendRespectsMaxWriteBuffered(t *testing.T) {
	defer goleak.VerifyNone(t)

	a, b := socketPair(t)
	ca := New(a, "a", "b")
	defer ca.Release()
	unix.Close(b)

	ca.MaxWriteBuffered = 10
	require.NoError(t, ca.Send(make([]byte, 5)))
	err := ca.Send(make([]byte, 10))
	require.ErrorIs(t, err, ErrWriteBufferFull)
}

func TestConnection_AwaitWriteReadyReturnsImmediatelyWhenBufferNonEmpty(t *testing.T) {
	defer goleak.VerifyNone(t)

	a, b := socketPair(t)
	ca := New(a, "a", "b")
	defer ca.Release()
	unix.Close(b)

	require.NoError(t, ca.Send([]byte("x")))

	done := make(chan struct{})
	go func() {
		ca.AwaitWriteReady()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("AwaitWriteReady blocked despite a non-empty write buffer")
	}
}
