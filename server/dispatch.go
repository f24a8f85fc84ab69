package server

import (
	"log"
	"time"

	"github.com/driftrpc/drift/conn"
	"github.com/driftrpc/drift/internal/metrics"
	"github.com/driftrpc/drift/reactor"
	"github.com/driftrpc/drift/rpcsvc"
	"github.com/driftrpc/drift/wire"
	"google.golang.org/protobuf/proto"
)

// waitForBytes drives async reads and reactor suspension until c.ReadBuf
// holds at least n unread bytes, the connection closes, or an unrecoverable
// error is encountered.
func waitForBytes(c *conn.Connection, r *reactor.Reactor, n int) bool {
	for c.ReadBuf.Size() < n {
		if c.Closed() {
			return false
		}
		_, shouldSuspend := c.AsyncRead()
		if c.Closed() {
			return false
		}
		c.AwaitReadable(r, shouldSuspend)
	}
	return true
}

// receiveLoop is the per-connection server receive task: parse one frame
// at a time, dispatch synchronously, serialize the response, and signal
// the send task. Each dispatched call's count and handler latency are
// recorded under "service.method" in m.
func receiveLoop(c *conn.Connection, r *reactor.Reactor, registry *rpcsvc.Registry, m *metrics.Registry) {
	defer c.Release()
	c.RegisterRead(r)

	for {
		if !waitForBytes(c, r, 4) {
			return
		}
		headerLen := wire.ReadLengthPrefix(c.ReadBuf)

		if !waitForBytes(c, r, int(headerLen)) {
			return
		}
		header, err := wire.ReadHeader(c.ReadBuf, headerLen)
		if err != nil {
			log.Printf("server: fd=%d bad header: %v", c.FD(), err)
			c.Close()
			return
		}

		if !waitForBytes(c, r, 4) {
			return
		}
		payloadLen := wire.ReadLengthPrefix(c.ReadBuf)

		desc, serviceFound, methodFound := registry.Lookup(header.Service, header.Method)
		if !serviceFound {
			log.Printf("server: fd=%d unknown service %q", c.FD(), header.Service)
			c.Close()
			return
		}
		if !methodFound {
			log.Printf("server: fd=%d unknown method %s.%s", c.FD(), header.Service, header.Method)
			c.Close()
			return
		}

		if !waitForBytes(c, r, int(payloadLen)) {
			return
		}
		reqBytes := wire.ReadPayload(c.ReadBuf, payloadLen)

		req := desc.NewRequest()
		if err := proto.Unmarshal(reqBytes, req); err != nil {
			log.Printf("server: fd=%d bad request body: %v", c.FD(), err)
			c.Close()
			return
		}

		callName := header.Service + "." + header.Method
		start := time.Now()

		// Deliberately NOT recovered: the handler runs on a plain goroutine,
		// outside task.Spawn's recover, so an unhandled panic escaping a
		// dispatch handler terminates the process. The receive task waits
		// for it to finish before going on.
		var resp proto.Message
		var handlerErr error
		handlerDone := make(chan struct{})
		go func() {
			resp, handlerErr = desc.Handler(req)
			close(handlerDone)
		}()
		<-handlerDone

		m.Counter(callName).Inc()
		m.Histogram(callName).Observe(time.Since(start))

		if handlerErr != nil {
			log.Printf("server: fd=%d handler error for %s.%s: %v", c.FD(), header.Service, header.Method, handlerErr)
			c.Close()
			return
		}

		respBytes, err := proto.Marshal(resp)
		if err != nil {
			log.Printf("server: fd=%d marshal response: %v", c.FD(), err)
			c.Close()
			return
		}

		respHeader := wire.Header{
			Magic:     wire.Magic,
			Version:   wire.Version,
			Type:      wire.MessageResponse,
			RequestID: header.RequestID,
			Service:   header.Service,
			Method:    header.Method,
		}
		if err := c.Send(wire.EncodeFrame(respHeader, respBytes)); err != nil {
			log.Printf("server: fd=%d send response: %v", c.FD(), err)
			c.Close()
			return
		}
		c.ResumeWrite()
	}
}

// sendLoop is the per-connection server send task: drain the write buffer
// whenever it becomes non-empty, suspending on AwaitWriteReady /
// AwaitWritable until more room or more data is ready.
func sendLoop(c *conn.Connection, r *reactor.Reactor) {
	defer c.Release()

	for {
		c.AwaitWriteReady()
		if c.Closed() && c.WriteBuf.Empty() {
			return
		}
		for {
			_, shouldSuspend := c.AsyncWrite()
			if !shouldSuspend {
				break
			}
			c.AwaitWritable(r, shouldSuspend)
		}
		if c.Closed() && c.WriteBuf.Empty() {
			return
		}
	}
}
