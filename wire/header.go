// Package wire implements the frame codec: length-prefixed records carrying
// a Header followed by a protobuf payload, read and written directly
// against a buffer.ChainedBuffer's zero-copy stream contract.
package wire

import (
	"io"

	"github.com/lithdew/bytesutil"
)

// Magic identifies a drift frame; mismatch is a fatal connection error.
const Magic uint32 = 0x30F8CA9B

// Version is the only wire version this implementation speaks.
const Version uint16 = 1

// MessageType distinguishes a request frame from a response frame.
type MessageType uint8

const (
	MessageRequest MessageType = iota
	MessageResponse
)

// Header is the schema-described record carried by every frame: magic,
// version, message-type tag, 64-bit request id, service name, method name.
// Its own fields are encoded big-endian via lithdew/bytesutil, independent
// of the outer frame length prefixes (see Frame's little-endian lengths) —
// a deliberate contrast so the two layers are visibly independent of one
// another.
type Header struct {
	Magic     uint32
	Version   uint16
	Type      MessageType
	RequestID uint64
	Service   string
	Method    string
}

// AppendTo appends the big-endian encoding of h to dst and returns the
// extended slice.
func (h Header) AppendTo(dst []byte) []byte {
	dst = bytesutil.AppendUint32BE(dst, h.Magic)
	dst = bytesutil.AppendUint16BE(dst, h.Version)
	dst = append(dst, byte(h.Type))
	dst = bytesutil.AppendUint64BE(dst, h.RequestID)
	dst = bytesutil.AppendUint16BE(dst, uint16(len(h.Service)))
	dst = append(dst, h.Service...)
	dst = bytesutil.AppendUint16BE(dst, uint16(len(h.Method)))
	dst = append(dst, h.Method...)
	return dst
}

// UnmarshalHeader parses a Header from buf, which must contain exactly one
// encoded header (callers push_limit to the header_len field before
// calling this).
func UnmarshalHeader(buf []byte) (Header, error) {
	var h Header

	if len(buf) < 4+2+1+8+2 {
		return h, io.ErrUnexpectedEOF
	}
	h.Magic, buf = bytesutil.Uint32BE(buf[:4]), buf[4:]
	h.Version, buf = bytesutil.Uint16BE(buf[:2]), buf[2:]
	h.Type, buf = MessageType(buf[0]), buf[1:]
	h.RequestID, buf = bytesutil.Uint64BE(buf[:8]), buf[8:]

	var svcLen uint16
	svcLen, buf = bytesutil.Uint16BE(buf[:2]), buf[2:]
	if len(buf) < int(svcLen) {
		return h, io.ErrUnexpectedEOF
	}
	h.Service, buf = string(buf[:svcLen]), buf[svcLen:]

	if len(buf) < 2 {
		return h, io.ErrUnexpectedEOF
	}
	var methodLen uint16
	methodLen, buf = bytesutil.Uint16BE(buf[:2]), buf[2:]
	if len(buf) < int(methodLen) {
		return h, io.ErrUnexpectedEOF
	}
	h.Method, buf = string(buf[:methodLen]), buf[methodLen:]

	return h, nil
}

// EncodedLen returns the exact number of bytes AppendTo will append.
func (h Header) EncodedLen() int {
	return 4 + 2 + 1 + 8 + 2 + len(h.Service) + 2 + len(h.Method)
}
