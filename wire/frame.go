package wire

import (
	"encoding/binary"
	"errors"
	"io"

	"github.com/driftrpc/drift/buffer"
)

// ErrBadMagic is returned when a Header's magic does not match Magic.
var ErrBadMagic = errors.New("wire: bad magic")

// ErrBadVersion is returned when a Header's version does not match Version.
var ErrBadVersion = errors.New("wire: unsupported version")

// Each frame is u32 header_len | Header bytes | u32 payload_len | payload
// bytes. The two u32 length prefixes are little-endian; see Header for the
// (independently, big-endian) encoding of the record they bound.

// EncodeFrame returns the raw bytes of one complete frame: u32 header_len
// (LE) | Header bytes (BE) | u32 payload_len (LE) | payload bytes. Used
// directly by server/client send paths so the result can go through
// conn.Connection.Send's write-buffer bound check in one copy.
func EncodeFrame(h Header, payload []byte) []byte {
	hb := h.AppendTo(make([]byte, 0, h.EncodedLen()))

	out := make([]byte, 0, 4+len(hb)+4+len(payload))
	var lenBuf [4]byte

	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(hb)))
	out = append(out, lenBuf[:]...)
	out = append(out, hb...)

	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	out = append(out, lenBuf[:]...)
	out = append(out, payload...)

	return out
}

// WriteFrame serializes h and payload directly into buf as one complete
// frame.
func WriteFrame(buf *buffer.ChainedBuffer, h Header, payload []byte) error {
	_, err := buf.Write(EncodeFrame(h, payload))
	return err
}

// ReadLengthPrefix reads one little-endian u32 length prefix. Callers must
// have already confirmed buf.Size() >= 4 via their own await-readable loop;
// the "await enough bytes" discipline belongs to the server/client receive
// loops, not to the codec.
func ReadLengthPrefix(buf *buffer.ChainedBuffer) uint32 {
	b := readExact(buf, 4)
	return binary.LittleEndian.Uint32(b)
}

// ReadHeader reads exactly headerLen bytes via the zero-copy InputNext
// contract (bounded by PushLimit/PopLimit), parses a Header, and validates
// magic and version. Callers must have already confirmed
// buf.Size() >= int(headerLen).
func ReadHeader(buf *buffer.ChainedBuffer, headerLen uint32) (Header, error) {
	hb := readExact(buf, int(headerLen))
	if len(hb) != int(headerLen) {
		return Header{}, io.ErrUnexpectedEOF
	}
	h, err := UnmarshalHeader(hb)
	if err != nil {
		return h, err
	}
	if h.Magic != Magic {
		return h, ErrBadMagic
	}
	if h.Version != Version {
		return h, ErrBadVersion
	}
	return h, nil
}

// ReadPayload reads exactly payloadLen bytes. Callers must have already
// confirmed buf.Size() >= int(payloadLen).
func ReadPayload(buf *buffer.ChainedBuffer, payloadLen uint32) []byte {
	return readExact(buf, int(payloadLen))
}

// readExact drains exactly n bytes from buf using PushLimit + InputNext,
// concatenating across block boundaries only when a field straddles one.
func readExact(buf *buffer.ChainedBuffer, n int) []byte {
	out := make([]byte, n)
	buf.PushLimit(n)
	defer buf.PopLimit()

	read := 0
	for read < n {
		v, ok := buf.InputNext()
		if !ok {
			break
		}
		copy(out[read:], v)
		read += len(v)
	}
	return out[:read]
}
