// Package server implements the accept path and per-connection dispatch
// half of the runtime: binding a listener, accepting non-blocking
// connections, and spawning the per-connection receive and send tasks.
package server

import (
	"fmt"
	"log"
	"runtime"
	"time"

	"github.com/driftrpc/drift/conn"
	"github.com/driftrpc/drift/internal/metrics"
	"github.com/driftrpc/drift/internal/sockopt"
	"github.com/driftrpc/drift/reactor"
	"github.com/driftrpc/drift/rpcsvc"
	"github.com/driftrpc/drift/task"
	"github.com/jpillora/backoff"
	"golang.org/x/sys/unix"
)

// Server binds one listening socket, accepts connections, and dispatches
// requests through a registry of services.
type Server struct {
	cfg      Config
	registry *rpcsvc.Registry
	metrics  *metrics.Registry
	pool     *reactor.Pool

	listenFd int
	stopped  chan struct{}
}

// New constructs a Server, applying opts over DefaultConfig.
func New(opts ...Option) *Server {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Reactors <= 0 {
		cfg.Reactors = runtime.NumCPU()
	}
	return &Server{
		cfg:      cfg,
		registry: rpcsvc.NewRegistry(),
		metrics:  metrics.NewRegistry(),
		stopped:  make(chan struct{}),
	}
}

// Metrics returns the server's call-counter and latency-histogram
// registry, keyed by "service.method".
func (s *Server) Metrics() *metrics.Registry { return s.metrics }

// Register adds svc under name, callable before or after Serve starts.
func (s *Server) Register(name string, svc rpcsvc.Service) {
	s.registry.Register(name, svc)
}

// Serve binds addr, starts the reactor pool, and accepts connections until
// Stop is called or an unrecoverable accept error occurs.
func (s *Server) Serve(addr string) error {
	pool, err := reactor.NewPool(s.cfg.Reactors, s.cfg.PollTimeout)
	if err != nil {
		return fmt.Errorf("server: reactor pool: %w", err)
	}
	s.pool = pool

	lfd, err := bindListener(addr)
	if err != nil {
		pool.Stop()
		return err
	}
	s.listenFd = lfd

	b := &backoff.Backoff{
		Factor: 2,
		Jitter: true,
		Min:    5 * time.Millisecond,
		Max:    1 * time.Second,
	}

	for {
		select {
		case <-s.stopped:
			unix.Close(s.listenFd)
			s.pool.Stop()
			return nil
		default:
		}

		fd, peerSa, err := unix.Accept4(s.listenFd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			if err == unix.EAGAIN {
				time.Sleep(time.Millisecond)
				continue
			}
			if err == unix.EMFILE || err == unix.ENFILE {
				d := b.Duration()
				log.Printf("server: accept: %v, backing off %s", err, d)
				time.Sleep(d)
				continue
			}
			return fmt.Errorf("server: accept: %w", err)
		}
		b.Reset()

		if err := sockopt.ApplyConnection(fd); err != nil {
			log.Printf("server: apply sockopt: %v", err)
		}
		if err := sockopt.ApplyServerSide(fd); err != nil {
			log.Printf("server: apply server-side sockopt: %v", err)
		}

		s.handleAccepted(fd, peerSa)
	}
}

func (s *Server) handleAccepted(fd int, peerSa unix.Sockaddr) {
	localAddr := ""
	if localSa, err := unix.Getsockname(fd); err == nil {
		localAddr = sockaddrString(localSa)
	}
	c := conn.New(fd, localAddr, sockaddrString(peerSa))
	r := s.pool.Next()

	c.Retain() // send task
	task.Spawn(func() { receiveLoop(c, r, s.registry, s.metrics) })
	task.Spawn(func() { sendLoop(c, r) })
}

// Stop signals Serve to return after its current accept call.
func (s *Server) Stop() {
	close(s.stopped)
}

func bindListener(addr string) (int, error) {
	sa, fd, err := resolveAndSocket(addr)
	if err != nil {
		return -1, err
	}
	if err := sockopt.ApplyListener(fd); err != nil {
		unix.Close(fd)
		return -1, err
	}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("server: bind: %w", err)
	}
	if err := unix.Listen(fd, 1024); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("server: listen: %w", err)
	}
	return fd, nil
}
