package server

import (
	"fmt"
	"net"
	"strconv"

	"golang.org/x/sys/unix"
)

// resolveAndSocket parses "host:port", resolves host, and creates a
// non-blocking, close-on-exec TCP socket bound to no address yet. Only
// net's address-resolution helpers are used here — no net.Conn or
// net.Listener ever wraps the resulting fd, which the reactor drives
// directly for the rest of its lifetime.
func resolveAndSocket(addr string) (unix.Sockaddr, int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, -1, fmt.Errorf("server: parse addr %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, -1, fmt.Errorf("server: parse port %q: %w", portStr, err)
	}

	var ip net.IP
	if host == "" {
		ip = net.IPv4zero
	} else {
		ipAddr, err := net.ResolveIPAddr("ip", host)
		if err != nil {
			return nil, -1, fmt.Errorf("server: resolve %q: %w", host, err)
		}
		ip = ipAddr.IP
	}

	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, -1, fmt.Errorf("server: socket: %w", err)
	}

	sa := &unix.SockaddrInet4{Port: port}
	v4 := ip.To4()
	if v4 == nil {
		unix.Close(fd)
		return nil, -1, fmt.Errorf("server: only IPv4 addresses are supported, got %s", ip)
	}
	copy(sa.Addr[:], v4)

	return sa, fd, nil
}

// sockaddrString renders a unix.Sockaddr as "host:port", or "" if it is not
// an IPv4 socket address (the only family this runtime binds).
func sockaddrString(sa unix.Sockaddr) string {
	v4, ok := sa.(*unix.SockaddrInet4)
	if !ok {
		return ""
	}
	ip := net.IP(v4.Addr[:])
	return net.JoinHostPort(ip.String(), strconv.Itoa(v4.Port))
}
