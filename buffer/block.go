// File: buffer/block.go
// Package buffer implements a chained (segmented) byte buffer with a
// zero-copy stream contract, so the wire codec can consume and produce
// bytes block-at-a-time without an intermediate linearization copy.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package buffer

import "github.com/valyala/bytebufferpool"

// BlockSize is the capacity of one chained-buffer segment.
const BlockSize = 4096

var blockPool bytebufferpool.Pool

// block is one fixed-capacity segment with independent read/write cursors.
// Storage is borrowed from the package-level bytebufferpool so that a
// block evicted from its buffer's own free list returns its backing array
// to a shared pool instead of letting the GC reclaim it.
type block struct {
	buf      *bytebufferpool.ByteBuffer
	readPos  int
	writePos int
	next     *block
}

func newBlock() *block {
	bb := blockPool.Get()
	if cap(bb.B) < BlockSize {
		bb.B = make([]byte, BlockSize)
	} else {
		bb.B = bb.B[:BlockSize]
	}
	return &block{buf: bb}
}

func (b *block) release() {
	blockPool.Put(b.buf)
	b.buf = nil
	b.next = nil
	b.readPos, b.writePos = 0, 0
}

func (b *block) data() []byte { return b.buf.B[:BlockSize] }

func (b *block) size() int      { return b.writePos - b.readPos }
func (b *block) full() bool     { return b.writePos == BlockSize }
func (b *block) isEmpty() bool  { return b.readPos == b.writePos }
func (b *block) available() int { return BlockSize - b.writePos }

// writeBytes copies as much of src as fits; returns bytes copied.
func (b *block) writeBytes(src []byte) int {
	n := len(src)
	if n > b.available() {
		n = b.available()
	}
	if n > 0 {
		copy(b.data()[b.writePos:], src[:n])
		b.writePos += n
	}
	return n
}

// readView exposes the unread span of this block without copying.
func (b *block) readView() []byte {
	if b.isEmpty() {
		return nil
	}
	return b.data()[b.readPos:b.writePos]
}

// writeView exposes the writable span of this block without copying.
func (b *block) writeView() []byte {
	if b.full() {
		return nil
	}
	return b.data()[b.writePos:BlockSize]
}

func (b *block) reset() {
	b.readPos, b.writePos = 0, 0
}
