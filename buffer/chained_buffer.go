// File: buffer/chained_buffer.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package buffer

import (
	"errors"

	"golang.org/x/sys/unix"
)

// maxIOVec bounds the number of iovecs handed to writev in one call —
// Linux's UIO_MAXIOV.
const maxIOVec = 1024

// ErrBackUpTooFar is returned when InputBackUp or OutputBackUp is asked to
// rewind further than the current cursor allows.
var ErrBackUpTooFar = errors.New("buffer: back up exceeds current cursor")

// ChainedBuffer is an ordered sequence of fixed-size blocks with independent
// read/write cursors, a free list for block recycling, and the zero-copy
// stream contract the wire codec drives directly (§4.A). It is not
// goroutine-safe: ownership is exclusive to its enclosing Connection, which
// serializes access from whichever single task currently holds the
// corresponding read or write slot.
// maxFreeListBlocks bounds how many drained blocks one ChainedBuffer keeps
// on its own free list before spilling the rest back to the shared
// bytebufferpool — otherwise a buffer that briefly spiked in size would
// hoard blocks for its entire lifetime instead of letting other buffers
// reuse that memory.
const maxFreeListBlocks = 16

type ChainedBuffer struct {
	head, tail *block
	freeList   *block
	freeCount  int
	totalSize  int

	inputByteCount int64 // bytes consumed; lowered only by InputBackUp
	activeLimit    int64 // absolute byte-count position of the active push_limit, or -1
	limitStack     []int64
}

// NewChainedBuffer returns an empty buffer.
func NewChainedBuffer() *ChainedBuffer {
	return &ChainedBuffer{activeLimit: -1}
}

// Size returns the total number of unread bytes currently buffered.
func (c *ChainedBuffer) Size() int { return c.totalSize }

// Empty reports whether the buffer currently holds no unread bytes.
func (c *ChainedBuffer) Empty() bool { return c.totalSize == 0 }

// InputByteCount is the total number of bytes consumed via Read, InputNext
// or InputSkip. It never decreases except when InputBackUp gives back bytes
// that InputNext just handed out.
func (c *ChainedBuffer) InputByteCount() int64 { return c.inputByteCount }

// OutputByteCount equals Size(): the bytes currently available for output.
func (c *ChainedBuffer) OutputByteCount() int64 { return int64(c.totalSize) }

// Write appends len(p) bytes, allocating blocks on demand. It never
// partially fails except under allocator exhaustion and always returns
// len(p). Implements io.Writer.
func (c *ChainedBuffer) Write(p []byte) (int, error) {
	written := 0
	for written < len(p) {
		if c.tail == nil || c.tail.full() {
			c.appendBlock()
		}
		n := c.tail.writeBytes(p[written:])
		written += n
		c.totalSize += n
	}
	return written, nil
}

// Read copies out up to len(p) bytes, advancing the head cursor and
// recycling emptied blocks. Implements io.Reader; unlike io.Reader's usual
// contract it never returns io.EOF for a drained-but-live buffer — callers
// distinguish "nothing available yet" from end-of-stream themselves, since
// this is a buffer, not a socket.
func (c *ChainedBuffer) Read(p []byte) (int, error) {
	read := 0
	for c.head != nil && read < len(p) {
		view := c.head.readView()
		n := copy(p[read:], view)
		c.head.readPos += n
		read += n
		c.totalSize -= n
		c.inputByteCount += int64(n)
		if c.head.isEmpty() {
			c.removeHead()
		}
	}
	return read, nil
}

// InputNext exposes the next contiguous span of unread bytes from the head
// block and advances the head cursor by that span. A head block it drains
// stays in place, so InputBackUp can still rewind into it, and is recycled
// by the next InputNext, Read or InputSkip. Respects the active read limit
// (see PushLimit): once the limit is exhausted, InputNext returns ok=false
// signalling end-of-substream without touching the underlying connection
// state.
func (c *ChainedBuffer) InputNext() (data []byte, ok bool) {
	if c.activeLimit >= 0 && c.inputByteCount >= c.activeLimit {
		return nil, false
	}
	if c.head != nil && c.head.isEmpty() {
		c.removeHead()
	}
	if c.head == nil {
		return nil, false
	}
	view := c.head.readView()
	if view == nil {
		return nil, false
	}
	if c.activeLimit >= 0 {
		remaining := c.activeLimit - c.inputByteCount
		if int64(len(view)) > remaining {
			view = view[:remaining]
		}
	}
	c.head.readPos += len(view)
	c.totalSize -= len(view)
	c.inputByteCount += int64(len(view))
	return view, true
}

// InputBackUp rewinds the head cursor within the current head block by up
// to n bytes, bounded by the in-block read cursor, restoring the limit.
// It must be called with the block that was just consumed still at the
// head — i.e. immediately after InputNext, before any other read.
func (c *ChainedBuffer) InputBackUp(n int) error {
	if n == 0 {
		return nil
	}
	if c.head == nil || c.head.readPos < n {
		return ErrBackUpTooFar
	}
	c.head.readPos -= n
	c.totalSize += n
	c.inputByteCount -= int64(n)
	return nil
}

// InputSkip discards n bytes, recycling fully consumed blocks.
func (c *ChainedBuffer) InputSkip(n int) bool {
	skipped := 0
	for skipped < n && c.head != nil {
		view := c.head.readView()
		if view == nil {
			c.removeHead()
			continue
		}
		take := n - skipped
		if take > len(view) {
			take = len(view)
		}
		c.head.readPos += take
		c.totalSize -= take
		c.inputByteCount += int64(take)
		skipped += take
		if c.head.isEmpty() {
			c.removeHead()
		}
	}
	return skipped == n
}

// OutputNext hands out writable space from the tail block, appending a new
// block if the tail is full, and optimistically bumps the tail cursor by
// the exposed length.
func (c *ChainedBuffer) OutputNext() []byte {
	if c.tail == nil || c.tail.full() {
		c.appendBlock()
	}
	view := c.tail.writeView()
	c.tail.writePos = BlockSize
	c.totalSize += len(view)
	return view
}

// OutputBackUp rewinds the optimistic advance OutputNext performed, by up
// to n bytes, when the codec wrote fewer bytes than it was offered.
func (c *ChainedBuffer) OutputBackUp(n int) error {
	if n == 0 {
		return nil
	}
	if c.tail == nil || c.tail.writePos < n {
		return ErrBackUpTooFar
	}
	c.tail.writePos -= n
	c.totalSize -= n
	return nil
}

// PushLimit establishes a bounded view of the next k readable bytes,
// nestable, used to bound the codec to exactly the framed payload region.
func (c *ChainedBuffer) PushLimit(k int) {
	c.limitStack = append(c.limitStack, c.activeLimit)
	newLimit := c.inputByteCount + int64(k)
	if c.activeLimit >= 0 && newLimit > c.activeLimit {
		newLimit = c.activeLimit
	}
	c.activeLimit = newLimit
}

// PopLimit restores the previous, possibly-unlimited, read boundary.
func (c *ChainedBuffer) PopLimit() {
	if len(c.limitStack) == 0 {
		c.activeLimit = -1
		return
	}
	c.activeLimit = c.limitStack[len(c.limitStack)-1]
	c.limitStack = c.limitStack[:len(c.limitStack)-1]
}

// WriteView exposes the tail block's writable span for a direct syscall
// read(2) target (conn.AsyncRead writes kernel data straight into it); the
// length of the returned slice is how many bytes were offered. Call
// CommitResv after the syscall reports how many bytes it actually filled.
func (c *ChainedBuffer) WriteView() []byte {
	if c.tail == nil || c.tail.full() {
		c.appendBlock()
	}
	return c.tail.writeView()
}

// CommitResv advances the tail cursor by m bytes after a read(2) filled m
// bytes into a pointer obtained from WriteView. A tail block filled exactly
// is left as is; the next WriteView chains a new tail block after it.
func (c *ChainedBuffer) CommitResv(m int) {
	if m <= 0 {
		return
	}
	c.tail.writePos += m
	c.totalSize += m
}

// CommitSend advances head cursors over n bytes after writev(2) reported n
// bytes sent, recycling drained blocks.
func (c *ChainedBuffer) CommitSend(n int) {
	remaining := n
	for remaining > 0 && c.head != nil {
		avail := c.head.size()
		if avail == 0 {
			c.removeHead()
			continue
		}
		take := remaining
		if take > avail {
			take = avail
		}
		c.head.readPos += take
		c.totalSize -= take
		remaining -= take
		if c.head.isEmpty() {
			c.removeHead()
		}
	}
}

// Discard drops every unread byte, recycling blocks through the same
// free-list/bytebufferpool path as normal drain — used when a connection's
// write side fails permanently and the buffered bytes will never be sent.
func (c *ChainedBuffer) Discard() {
	for c.head != nil {
		c.removeHead()
	}
	c.totalSize = 0
}

// GatherIOVecs returns the unread spans as a vector of unix.Iovec, capped
// at maxIOVec entries — the send-side gather view for writev(2).
func (c *ChainedBuffer) GatherIOVecs() []unix.Iovec {
	iovs := make([]unix.Iovec, 0, 8)
	for cur := c.head; cur != nil && len(iovs) < maxIOVec; cur = cur.next {
		view := cur.readView()
		if len(view) == 0 {
			continue
		}
		var iov unix.Iovec
		iov.Base = &view[0]
		iov.SetLen(len(view))
		iovs = append(iovs, iov)
	}
	return iovs
}

func (c *ChainedBuffer) appendBlock() {
	nb := c.allocateBlock()
	if c.tail == nil {
		c.head, c.tail = nb, nb
		return
	}
	c.tail.next = nb
	c.tail = nb
}

func (c *ChainedBuffer) removeHead() {
	if c.head == nil {
		return
	}
	old := c.head
	c.head = old.next
	if c.head == nil {
		c.tail = nil
	}
	c.deallocateBlock(old)
}

func (c *ChainedBuffer) allocateBlock() *block {
	if c.freeList != nil {
		b := c.freeList
		c.freeList = b.next
		c.freeCount--
		b.next = nil
		b.reset()
		return b
	}
	return newBlock()
}

func (c *ChainedBuffer) deallocateBlock(b *block) {
	if c.freeCount >= maxFreeListBlocks {
		b.release()
		return
	}
	b.reset()
	b.next = c.freeList
	c.freeList = b
	c.freeCount++
}
