//go:build linux
// +build linux

package reactor

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func newReactorT(t *testing.T) *Reactor {
	t.Helper()
	r, err := New(50 * time.Millisecond)
	require.NoError(t, err)
	t.Cleanup(r.Stop)
	return r
}

func TestReactor_SpawnRunsOnLoop(t *testing.T) {
	r := newReactorT(t)

	var wg sync.WaitGroup
	wg.Add(1)
	r.Spawn(func() { wg.Done() })

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("spawned closure never ran")
	}
}

type pipeConn struct {
	fd       int
	readable chan bool
}

func (p *pipeConn) FD() int { return p.fd }
func (p *pipeConn) OnReadable(hangup bool) {
	select {
	case p.readable <- hangup:
	default:
	}
}
func (p *pipeConn) OnWritable() {}

func TestReactor_AddEventDeliversReadable(t *testing.T) {
	r := newReactorT(t)

	fds := make([]int, 2)
	require.NoError(t, unix.Pipe2(fds, unix.O_NONBLOCK|unix.O_CLOEXEC))
	readFd, writeFd := fds[0], fds[1]
	defer unix.Close(readFd)
	defer unix.Close(writeFd)

	pc := &pipeConn{fd: readFd, readable: make(chan bool, 1)}
	r.AddEvent(pc, EventRead)

	_, err := unix.Write(writeFd, []byte("x"))
	require.NoError(t, err)

	select {
	case hangup := <-pc.readable:
		require.False(t, hangup)
	case <-time.After(2 * time.Second):
		t.Fatal("reactor never delivered readability")
	}
}

func TestReactor_AddEventDetectsHangup(t *testing.T) {
	r := newReactorT(t)

	fds := make([]int, 2)
	require.NoError(t, unix.Pipe2(fds, unix.O_NONBLOCK|unix.O_CLOEXEC))
	readFd, writeFd := fds[0], fds[1]
	defer unix.Close(readFd)

	pc := &pipeConn{fd: readFd, readable: make(chan bool, 1)}
	r.AddEvent(pc, EventRead)

	unix.Close(writeFd)

	select {
	case hangup := <-pc.readable:
		require.True(t, hangup)
	case <-time.After(2 * time.Second):
		t.Fatal("reactor never delivered hangup")
	}
}

func TestReactor_StopExitsLoop(t *testing.T) {
	r, err := New(20 * time.Millisecond)
	require.NoError(t, err)
	r.Stop()
	time.Sleep(100 * time.Millisecond)
	// A second Stop must not panic or block.
	r.Stop()
}
