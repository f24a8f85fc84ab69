package client

import (
	"log"

	"github.com/driftrpc/drift/conn"
	"github.com/driftrpc/drift/reactor"
	"github.com/driftrpc/drift/wire"
	"google.golang.org/protobuf/proto"
)

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

// receiveLoop is the client receive task: parses response frames and
// resolves them against the pending-call map. A missing request id is
// logged and skipped; it is not a fatal connection error.
func receiveLoop(ch *Channel) {
	defer ch.conn.Release()
	c := ch.conn
	r := ch.reactor
	c.RegisterRead(r)

	for {
		if !waitForBytes(c, r, 4) {
			break
		}
		headerLen := wire.ReadLengthPrefix(c.ReadBuf)

		if !waitForBytes(c, r, int(headerLen)) {
			break
		}
		header, err := wire.ReadHeader(c.ReadBuf, headerLen)
		if err != nil {
			log.Printf("client: fd=%d bad header: %v", c.FD(), err)
			c.Close()
			break
		}

		if !waitForBytes(c, r, 4) {
			break
		}
		payloadLen := wire.ReadLengthPrefix(c.ReadBuf)

		if !waitForBytes(c, r, int(payloadLen)) {
			break
		}
		payload := wire.ReadPayload(c.ReadBuf, payloadLen)

		ch.mu.Lock()
		p, ok := ch.pending[header.RequestID]
		if ok {
			delete(ch.pending, header.RequestID)
		}
		ch.mu.Unlock()

		if !ok {
			log.Printf("client: fd=%d response for unknown request id %d, skipping", c.FD(), header.RequestID)
			continue
		}

		if err := proto.Unmarshal(payload, p.resp); err != nil {
			p.done(err)
			continue
		}
		p.done(nil)
	}

	ch.Close()
}

// sendLoop is the client send task, identical in structure to the
// server's.
func sendLoop(ch *Channel) {
	defer ch.conn.Release()
	c := ch.conn
	r := ch.reactor

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
