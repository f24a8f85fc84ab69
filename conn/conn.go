// Package conn implements the Connection type: one non-blocking TCP
// endpoint pair, its chained read/write buffers, and the four
// awaitable-equivalent suspension points a receive/send task blocks on.
//
// In the Go rendition (documented in DESIGN.md) a task is a goroutine and
// an awaitable is a blocking method call on a channel rather than a
// language-level suspend point; the suspension discipline from the
// original design — never perform a blocking syscall between suspensions —
// is preserved because the only blocking operation between reactor-driven
// reads is a channel receive.
package conn

import (
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/driftrpc/drift/buffer"
	"github.com/driftrpc/drift/reactor"
	"golang.org/x/sys/unix"
)

// DefaultMaxWriteBuffered bounds how many bytes may sit in a connection's
// write buffer before Send refuses more, so one slow peer cannot grow its
// write buffer without bound.
const DefaultMaxWriteBuffered = 16 << 20

// ErrWriteBufferFull is returned by Send when appending would take the write
// buffer past its configured bound.
var ErrWriteBufferFull = errors.New("conn: write buffer full")

// ErrClosed is returned by Send on an already-closed connection.
var ErrClosed = errors.New("conn: connection closed")

// Connection represents one TCP endpoint pair driven entirely by a
// Reactor: the fd is never wrapped in net.Conn, since the reactor owns
// its readiness and lifecycle directly.
type Connection struct {
	fd         int
	LocalAddr  string
	PeerAddr   string
	MaxWriteBuffered int

	ReadBuf  *buffer.ChainedBuffer
	WriteBuf *buffer.ChainedBuffer

	readResume  chan struct{}
	writeResume chan struct{}

	closed atomic.Bool
	refs   atomic.Int32

	writeMu sync.Mutex // guards WriteBuf: receive-task dispatch and send-task drain are real concurrent goroutines in Go, unlike the single-threaded cooperative original.
}

// New wraps an already-accepted, already-configured non-blocking fd.
func New(fd int, localAddr, peerAddr string) *Connection {
	c := &Connection{
		fd:               fd,
		LocalAddr:        localAddr,
		PeerAddr:         peerAddr,
		MaxWriteBuffered: DefaultMaxWriteBuffered,
		ReadBuf:          buffer.NewChainedBuffer(),
		WriteBuf:         buffer.NewChainedBuffer(),
		readResume:       make(chan struct{}, 1),
		writeResume:      make(chan struct{}, 1),
	}
	c.refs.Store(1)
	return c
}

// FD implements reactor.Pollable.
func (c *Connection) FD() int { return c.fd }

// Retain increments the reference count. New starts the count at 1, the
// receive task's reference; the accept path (or client.Dial) calls Retain
// once more for the send task. Each task Releases its reference on exit.
func (c *Connection) Retain() { c.refs.Add(1) }

// Release decrements the reference count, closing the fd once it reaches
// zero. Connection is destroyed only after both tasks have terminated and
// all external strong references drop.
func (c *Connection) Release() {
	if c.refs.Add(-1) == 0 {
		unix.Close(c.fd)
	}
}

// Closed reports whether the connection has been marked closed. Monotonic:
// once true, never reverts to false.
func (c *Connection) Closed() bool { return c.closed.Load() }

// Close is idempotent. It performs shutdown(fd, SHUT_WR) and sets the
// closed flag; the read buffer is preserved so the peer task can drain any
// remaining bytes.
func (c *Connection) Close() {
	if c.closed.CompareAndSwap(false, true) {
		unix.Shutdown(c.fd, unix.SHUT_WR)
		c.wakeWrite()
	}
}

// RegisterRead establishes the connection as owner of the read interest
// and issues the initial add_event(READ), mirroring RegisterReadAwaiter's
// one-time registration on first suspension of the receive task.
func (c *Connection) RegisterRead(r *reactor.Reactor) {
	r.AddEvent(c, reactor.EventRead)
}

// AwaitReadable blocks the calling (receive-task) goroutine until the
// reactor reports readability, unless the connection is already closed —
// mirroring ReadAwaiter's should_suspend = !closed && should_suspend.
func (c *Connection) AwaitReadable(r *reactor.Reactor, shouldSuspend bool) {
	if c.closed.Load() {
		r.AddEvent(c, reactor.EventDelete)
		return
	}
	if !shouldSuspend {
		return
	}
	<-c.readResume
}

// OnReadable implements reactor.Pollable. Invoked on the reactor's own
// goroutine; never blocks. On hangup it marks the connection closed and
// wakes both the receive and send tasks — a send task idle in
// AwaitWriteReady with no pending write would otherwise never learn the
// peer is gone and block forever.
func (c *Connection) OnReadable(hangup bool) {
	if hangup {
		c.closed.Store(true)
		c.wakeWrite()
	}
	c.wakeRead()
}

// OnWritable implements reactor.Pollable.
func (c *Connection) OnWritable() {
	c.wakeWrite()
}

func (c *Connection) wakeRead() {
	select {
	case c.readResume <- struct{}{}:
	default:
	}
}

func (c *Connection) wakeWrite() {
	select {
	case c.writeResume <- struct{}{}:
	default:
	}
}

// ResumeWrite wakes the send task in-process, with no reactor interaction —
// used by a server dispatch handler or client call path immediately after
// enqueueing bytes into WriteBuf.
func (c *Connection) ResumeWrite() {
	c.wakeWrite()
}

// AwaitWriteReady implements WaitWriteAwaiter: ready immediately if closed
// or the write buffer already has pending bytes; otherwise blocks until
// ResumeWrite or OnWritable wakes it, with no reactor interest change.
func (c *Connection) AwaitWriteReady() {
	if c.closed.Load() || !c.WriteBuf.Empty() {
		return
	}
	<-c.writeResume
}

// AwaitWritable implements WriteAwaiter: suspends iff shouldSuspend; on
// suspension, registers write interest so the reactor re-arms EPOLLOUT.
func (c *Connection) AwaitWritable(r *reactor.Reactor, shouldSuspend bool) {
	if !shouldSuspend {
		return
	}
	r.AddEvent(c, reactor.EventReadWrite)
	<-c.writeResume
}

// AsyncRead reads non-blockingly into ReadBuf, reading again while each
// read fills the offered block, and stops after a short read, EAGAIN, peer
// close, or an error. Returns the total bytes read this call and whether
// the caller should suspend (!closed && bytesRead == 0).
func (c *Connection) AsyncRead() (n int, shouldSuspend bool) {
	for {
		view := c.ReadBuf.WriteView()
		r, err := unix.Read(c.fd, view)
		switch {
		case r > 0:
			c.ReadBuf.CommitResv(r)
			n += r
			if r == len(view) {
				continue // block filled; kernel may have more buffered
			}
			return n, false
		case r == 0:
			c.closed.Store(true)
			c.wakeWrite()
			return n, false
		case err == unix.EINTR:
			continue
		case errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK):
			return n, !c.closed.Load() && n == 0
		default:
			log.Printf("conn: read fd=%d: %v", c.fd, err)
			c.closed.Store(true)
			c.wakeWrite()
			return n, false
		}
	}
}

// AsyncWrite gathers the pending write-buffer contents into an iovec view
// (bounded by GatherIOVecs' IOV_MAX cap) and issues the writev(2) syscall
// repeatedly until the buffer is drained, a write comes back short, or the
// kernel returns EAGAIN. Returns bytes written this call and whether the
// caller should suspend (!closed && still has pending bytes).
func (c *Connection) AsyncWrite() (n int, shouldSuspend bool) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	for !c.WriteBuf.Empty() {
		iovs := c.WriteBuf.GatherIOVecs()
		if len(iovs) == 0 {
			break
		}
		want := 0
		for _, iov := range iovs {
			want += int(iov.Len)
		}

		r1, _, errno := unix.Syscall(unix.SYS_WRITEV, uintptr(c.fd), uintptr(unsafe.Pointer(&iovs[0])), uintptr(len(iovs)))
		w := int(r1)
		var err error
		if errno != 0 {
			err = errno
		}
		switch {
		case err == nil:
			c.WriteBuf.CommitSend(w)
			n += w
			if w < want {
				return n, !c.closed.Load() && !c.WriteBuf.Empty()
			}
		case err == unix.EINTR:
			continue
		case errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK):
			return n, !c.closed.Load() && !c.WriteBuf.Empty()
		default:
			log.Printf("conn: writev fd=%d: %v", c.fd, err)
			c.closed.Store(true)
			c.WriteBuf.Discard()
			return n, false
		}
	}
	return n, !c.closed.Load() && !c.WriteBuf.Empty()
}

// Send appends p to the write buffer, subject to MaxWriteBuffered. It does
// not wake the send task: the server dispatch path and the client call
// path call ResumeWrite after a successful Send.
func (c *Connection) Send(p []byte) error {
	if c.closed.Load() {
		return ErrClosed
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.WriteBuf.Size()+len(p) > c.MaxWriteBuffered {
		return ErrWriteBufferFull
	}
	_, err := c.WriteBuf.Write(p)
	return err
}
