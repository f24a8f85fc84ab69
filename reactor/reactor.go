//go:build linux
// +build linux

// File: reactor/reactor.go
// Author: momentics <momentics@gmail.com>
//
// Linux epoll binding for the reactor contract: one epoll fd, one eventfd
// wake channel, one OS thread pinned via runtime.LockOSThread.
package reactor

import (
	"fmt"
	"log"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/driftrpc/drift/affinity"
	"github.com/driftrpc/drift/queue"
	"golang.org/x/sys/unix"
)

const maxEvents = 1024

// Reactor owns one epoll instance and the single OS thread that drives it.
// All calls to AddEvent that originate off the reactor's own goroutine are
// routed through Spawn so the actual epoll_ctl syscall always executes on
// the pinned thread, matching the contract's "must only be called from the
// reactor thread" rule while staying safe to call from anywhere.
type Reactor struct {
	epfd int
	wake *wakeConn

	tasks *queue.TaskQueue

	shouldNotify atomic.Bool
	stopped      atomic.Bool

	pollTimeout time.Duration
	cpu         int // pinned logical CPU, or -1 for none

	conns map[int]Pollable
}

// New creates a Reactor. pollTimeout bounds how long one EpollWait call may
// block when no fd is ready and the wake-fd has not fired; callers that want
// to block indefinitely should pass 0.
func New(pollTimeout time.Duration) (*Reactor, error) {
	return newPinned(pollTimeout, -1)
}

// newPinned is New plus an optional logical CPU to pin the reactor's OS
// thread to once it starts running. cpu < 0 means no pinning, matching the
// plain runtime.LockOSThread behavior New exposes.
func newPinned(pollTimeout time.Duration, cpu int) (*Reactor, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("reactor: epoll_create1: %w", err)
	}

	r := &Reactor{
		epfd:        epfd,
		tasks:       queue.NewTaskQueue(),
		pollTimeout: pollTimeout,
		cpu:         cpu,
		conns:       make(map[int]Pollable),
	}

	wake, err := newWakeConn()
	if err != nil {
		unix.Close(epfd)
		return nil, err
	}
	r.wake = wake

	if err := r.epollAdd(wake.FD(), unix.EPOLLIN); err != nil {
		unix.Close(epfd)
		wake.close()
		return nil, err
	}

	go r.run()
	return r, nil
}

// Spawn enqueues fn for execution on the reactor's own goroutine and wakes
// it if it is currently blocked in EpollWait. Callable from any goroutine.
func (r *Reactor) Spawn(fn func()) {
	r.tasks.Push(fn)
	if r.shouldNotify.CompareAndSwap(true, false) {
		r.wake.notify()
	}
}

// AddEvent registers, modifies, or removes interest in conn's fd for kind.
// Safe to call from any goroutine: the actual epoll_ctl always runs on the
// reactor's pinned thread via Spawn.
func (r *Reactor) AddEvent(conn Pollable, kind EventKind) {
	r.Spawn(func() {
		fd := conn.FD()
		switch kind {
		case EventRead:
			r.conns[fd] = conn
			if err := r.epollModOrAdd(fd, unix.EPOLLIN|unix.EPOLLET|unix.EPOLLRDHUP); err != nil {
				log.Printf("reactor: add_event read fd=%d: %v", fd, err)
			}
		case EventReadWrite:
			r.conns[fd] = conn
			if err := r.epollModOrAdd(fd, unix.EPOLLIN|unix.EPOLLOUT|unix.EPOLLET|unix.EPOLLRDHUP); err != nil {
				log.Printf("reactor: add_event read|write fd=%d: %v", fd, err)
			}
		case EventDelete:
			delete(r.conns, fd)
			if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil && err != unix.ENOENT {
				log.Printf("reactor: add_event delete fd=%d: %v", fd, err)
			}
		}
	})
}

// Stop signals the event loop to exit on its next wake.
func (r *Reactor) Stop() {
	r.stopped.Store(true)
	if r.shouldNotify.CompareAndSwap(true, false) {
		r.wake.notify()
	}
}

func (r *Reactor) run() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer unix.Close(r.epfd)
	defer r.wake.close()

	if r.cpu >= 0 {
		if err := affinity.SetAffinity(r.cpu); err != nil {
			log.Printf("reactor: pin to cpu %d: %v", r.cpu, err)
		}
	}

	events := make([]unix.EpollEvent, maxEvents)

	for !r.stopped.Load() {
		for {
			v, ok := r.tasks.Pop()
			if !ok {
				break
			}
			v()
		}
		if r.stopped.Load() {
			return
		}

		r.shouldNotify.Store(true)

		timeoutMs := -1
		if r.pollTimeout > 0 {
			timeoutMs = int(r.pollTimeout / time.Millisecond)
		}

		n, err := unix.EpollWait(r.epfd, events, timeoutMs)
		r.shouldNotify.Store(false)

		if err != nil {
			if err == unix.EINTR {
				continue
			}
			log.Printf("reactor: epoll_wait: %v", err)
			continue
		}

		for i := 0; i < n; i++ {
			ev := events[i]
			fd := int(ev.Fd)

			if fd == r.wake.FD() {
				r.wake.drain()
				continue
			}

			conn, ok := r.conns[fd]
			if !ok {
				continue
			}

			hangup := ev.Events&(unix.EPOLLHUP|unix.EPOLLRDHUP|unix.EPOLLERR) != 0

			if hangup {
				delete(r.conns, fd)
				unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, fd, nil)
				conn.OnReadable(true)
				continue
			}

			if ev.Events&unix.EPOLLOUT != 0 {
				r.epollModOrAdd(fd, unix.EPOLLIN|unix.EPOLLET|unix.EPOLLRDHUP)
				conn.OnWritable()
			}
			if ev.Events&unix.EPOLLIN != 0 {
				conn.OnReadable(false)
			}
		}
	}
}

func (r *Reactor) epollAdd(fd int, events uint32) error {
	ev := unix.EpollEvent{Events: events, Fd: int32(fd)}
	return unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, fd, &ev)
}

func (r *Reactor) epollModOrAdd(fd int, events uint32) error {
	ev := unix.EpollEvent{Events: events, Fd: int32(fd)}
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_MOD, fd, &ev); err != nil {
		if err == unix.ENOENT {
			return unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, fd, &ev)
		}
		return err
	}
	return nil
}
