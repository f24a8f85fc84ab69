// Package client implements the client half of the wire codec: dialing a
// connection, the pending-call map keyed by request id, and the
// asynchronous/synchronous CallMethod surface.
package client

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/driftrpc/drift/conn"
	"github.com/driftrpc/drift/internal/metrics"
	"github.com/driftrpc/drift/internal/sockopt"
	"github.com/driftrpc/drift/reactor"
	"github.com/driftrpc/drift/rpcsvc"
	"github.com/driftrpc/drift/task"
	"github.com/driftrpc/drift/wire"
	"golang.org/x/sys/unix"
	"google.golang.org/protobuf/proto"
)

// pendingCall is one outstanding call's caller-provided response slot and
// the completion to run once the matching frame arrives.
type pendingCall struct {
	resp proto.Message
	done func(error)
}

// Channel is one client connection, driven by its own private reactor.
type Channel struct {
	cfg     Config
	conn    *conn.Connection
	reactor *reactor.Reactor
	metrics *metrics.Registry

	nextReqID atomic.Uint64

	mu      sync.Mutex
	pending map[uint64]*pendingCall
	closed  bool
}

// Metrics returns the channel's call-counter and latency-histogram
// registry, keyed by "service.method".
func (ch *Channel) Metrics() *metrics.Registry { return ch.metrics }

// Dial connects to addr, applies client-side socket options, and starts
// the private reactor plus the receive/send tasks.
func Dial(ctx context.Context, addr string, opts ...Option) (*Channel, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	fd, err := dialNonBlocking(ctx, addr)
	if err != nil {
		return nil, err
	}

	if err := sockopt.ApplyConnection(fd); err != nil {
		unix.Close(fd)
		return nil, err
	}
	if err := sockopt.ApplyClientSide(fd); err != nil {
		unix.Close(fd)
		return nil, err
	}

	r, err := reactor.New(cfg.PollTimeout)
	if err != nil {
		unix.Close(fd)
		return nil, err
	}

	localAddr, peerAddr := "", addr
	if localSa, err := unix.Getsockname(fd); err == nil {
		localAddr = sockaddrString(localSa)
	}
	if peerSa, err := unix.Getpeername(fd); err == nil {
		if s := sockaddrString(peerSa); s != "" {
			peerAddr = s
		}
	}

	c := conn.New(fd, localAddr, peerAddr)
	c.MaxWriteBuffered = cfg.MaxWriteBuffered

	ch := &Channel{
		cfg:     cfg,
		conn:    c,
		reactor: r,
		metrics: metrics.NewRegistry(),
		pending: make(map[uint64]*pendingCall),
	}

	c.Retain() // send task
	task.Spawn(func() { receiveLoop(ch) })
	task.Spawn(func() { sendLoop(ch) })

	return ch, nil
}

// CallMethod is the synchronous convenience wrapper: it blocks the calling
// goroutine until the response arrives or ctx is done.
func (ch *Channel) CallMethod(ctx context.Context, service, method string, req, resp proto.Message) error {
	done := make(chan error, 1)
	ch.Go(service, method, req, resp, func(err error) { done <- err })

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Go is the asynchronous call form: it may be called from any goroutine.
// The request id is allocated, the pending-call entry inserted, and the
// write resumed, all inside one closure submitted to the channel's
// reactor — giving id allocation, map insertion, and ResumeWrite a fixed
// happens-before order for free, without an extra lock.
func (ch *Channel) Go(service, method string, req, resp proto.Message, done func(error)) *rpcsvc.Controller {
	ctrl := &rpcsvc.Controller{}

	callName := service + "." + method
	start := time.Now()
	done = func(orig func(error)) func(error) {
		return func(err error) {
			ch.metrics.Counter(callName).Inc()
			ch.metrics.Histogram(callName).Observe(time.Since(start))
			orig(err)
		}
	}(done)

	ch.reactor.Spawn(func() {
		ch.mu.Lock()
		if ch.closed {
			ch.mu.Unlock()
			ctrl.SetFailed("channel closed")
			done(fmt.Errorf("client: channel closed"))
			return
		}
		ch.mu.Unlock()

		reqID := ch.nextReqID.Add(1)

		reqBytes, err := proto.Marshal(req)
		if err != nil {
			ctrl.SetFailed(err.Error())
			done(err)
			return
		}

		h := wire.Header{
			Magic:     wire.Magic,
			Version:   wire.Version,
			Type:      wire.MessageRequest,
			RequestID: reqID,
			Service:   service,
			Method:    method,
		}

		ch.mu.Lock()
		ch.pending[reqID] = &pendingCall{resp: resp, done: done}
		ch.mu.Unlock()

		if err := ch.conn.Send(wire.EncodeFrame(h, reqBytes)); err != nil {
			ch.mu.Lock()
			delete(ch.pending, reqID)
			ch.mu.Unlock()
			ctrl.SetFailed(err.Error())
			done(err)
			return
		}
		ch.conn.ResumeWrite()
	})

	return ctrl
}

// Close shuts down the connection, drains the pending-call map, and
// invokes each completion with a synthetic "channel closed" failure so no
// caller waits forever on a response that will never arrive.
func (ch *Channel) Close() {
	ch.mu.Lock()
	if ch.closed {
		ch.mu.Unlock()
		return
	}
	ch.closed = true
	pending := ch.pending
	ch.pending = nil
	ch.mu.Unlock()

	for _, p := range pending {
		p.done(fmt.Errorf("client: channel closed"))
	}

	ch.conn.Close()
	ch.reactor.Stop()
}

func dialNonBlocking(ctx context.Context, addr string) (int, error) {
	sa, fd, err := resolveSockaddr(addr)
	if err != nil {
		return -1, err
	}

	err = unix.Connect(fd, sa)
	if err == nil {
		return fd, nil
	}
	if err != unix.EINPROGRESS {
		unix.Close(fd)
		return -1, fmt.Errorf("client: connect: %w", err)
	}

	deadline := time.Now().Add(10 * time.Second)
	if d, ok := ctx.Deadline(); ok {
		deadline = d
	}

	for {
		remaining := int(time.Until(deadline) / time.Millisecond)
		if remaining <= 0 {
			unix.Close(fd)
			return -1, fmt.Errorf("client: connect: timed out")
		}
		pfd := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLOUT}}
		n, perr := unix.Poll(pfd, remaining)
		if perr == unix.EINTR {
			continue
		}
		if perr != nil {
			unix.Close(fd)
			return -1, fmt.Errorf("client: connect poll: %w", perr)
		}
		if n == 0 {
			continue
		}
		soErr, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
		if err != nil {
			unix.Close(fd)
			return -1, fmt.Errorf("client: connect getsockopt: %w", err)
		}
		if soErr != 0 {
			unix.Close(fd)
			return -1, fmt.Errorf("client: connect: %s", unix.Errno(soErr))
		}
		return fd, nil
	}
}
