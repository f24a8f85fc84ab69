//go:build linux
// +build linux

package reactor

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/sys/unix"
)

// wakeConn is the reactor's cross-thread wake channel: an eventfd the
// Reactor registers for readability just like any other fd, but which
// carries no application data and is never exposed as a Pollable. A
// dedicated type rather than a degenerate Connection keeps the wake path
// free of every piece of per-connection state (buffers, refcounts,
// resume channels) that a real Connection carries but a wake-fd never
// needs.
type wakeConn struct {
	fd int
}

func newWakeConn() (*wakeConn, error) {
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		return nil, fmt.Errorf("reactor: eventfd: %w", err)
	}
	return &wakeConn{fd: fd}, nil
}

// FD returns the eventfd descriptor, registered for readability alongside
// every other fd the reactor multiplexes.
func (w *wakeConn) FD() int { return w.fd }

// notify writes one counter increment, waking a blocked EpollWait.
func (w *wakeConn) notify() {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], 1)
	for {
		_, err := unix.Write(w.fd, buf[:])
		if err == unix.EINTR {
			continue
		}
		return
	}
}

// drain resets the eventfd counter to zero after a wake.
func (w *wakeConn) drain() {
	var buf [8]byte
	for {
		_, err := unix.Read(w.fd, buf[:])
		if err == unix.EINTR {
			continue
		}
		return
	}
}

func (w *wakeConn) close() {
	unix.Close(w.fd)
}
