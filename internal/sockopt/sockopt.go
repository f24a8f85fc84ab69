// Package sockopt applies the socket options a connection needs on
// listener, accepted, and client sockets.
package sockopt

import "golang.org/x/sys/unix"

// RecvBufSize and SendBufSize are the fixed send/receive buffer sizes
// applied to every connected socket.
const (
	RecvBufSize = 524288
	SendBufSize = 524288
)

// ApplyListener sets SO_REUSEADDR on a listening socket.
func ApplyListener(fd int) error {
	return unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
}

// ApplyConnection sets TCP_NODELAY and the fixed send/receive buffer sizes
// common to both accepted and client-dialed sockets.
func ApplyConnection(fd int) error {
	if err := unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1); err != nil {
		return err
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_SNDBUF, SendBufSize); err != nil {
		return err
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_RCVBUF, RecvBufSize); err != nil {
		return err
	}
	return nil
}

// ApplyServerSide sets SO_KEEPALIVE, applied only on the server-accepted
// side.
func ApplyServerSide(fd int) error {
	return unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_KEEPALIVE, 1)
}

// ApplyClientSide sets SO_LINGER = {onoff: 0, linger: 0}, i.e. lingering
// disabled: close returns at once and the kernel completes the normal
// shutdown in the background. Applied only on the client-dialed side.
func ApplyClientSide(fd int) error {
	return unix.SetsockoptLinger(fd, unix.SOL_SOCKET, unix.SO_LINGER, &unix.Linger{Onoff: 0, Linger: 0})
}
