package client

import (
	"fmt"
	"net"
	"strconv"

	"golang.org/x/sys/unix"
)

// resolveSockaddr parses "host:port", resolves host, and creates a
// non-blocking, close-on-exec TCP socket ready for a non-blocking connect.
func resolveSockaddr(addr string) (unix.Sockaddr, int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, -1, fmt.Errorf("client: parse addr %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, -1, fmt.Errorf("client: parse port %q: %w", portStr, err)
	}

	ipAddr, err := net.ResolveIPAddr("ip", host)
	if err != nil {
		return nil, -1, fmt.Errorf("client: resolve %q: %w", host, err)
	}
	v4 := ipAddr.IP.To4()
	if v4 == nil {
		return nil, -1, fmt.Errorf("client: only IPv4 addresses are supported, got %s", ipAddr.IP)
	}

	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, -1, fmt.Errorf("client: socket: %w", err)
	}

	sa := &unix.SockaddrInet4{Port: port}
	copy(sa.Addr[:], v4)

	return sa, fd, nil
}

// sockaddrString renders a unix.Sockaddr as "host:port", or "" if it is not
// an IPv4 socket address (the only family this runtime dials).
func sockaddrString(sa unix.Sockaddr) string {
	v4, ok := sa.(*unix.SockaddrInet4)
	if !ok {
		return ""
	}
	ip := net.IP(v4.Addr[:])
	return net.JoinHostPort(ip.String(), strconv.Itoa(v4.Port))
}
