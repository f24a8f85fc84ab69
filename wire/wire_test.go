package wire

import (
	"testing"

	"github.com/driftrpc/drift/buffer"
	"github.com/stretchr/testify/require"
)

func TestFrame_WriteReadRoundTrip(t *testing.T) {
	buf := buffer.NewChainedBuffer()

	h := Header{
		Magic:     Magic,
		Version:   Version,
		Type:      MessageRequest,
		RequestID: 42,
		Service:   "Echo",
		Method:    "Call",
	}
	payload := []byte("request body")

	require.NoError(t, WriteFrame(buf, h, payload))

	headerLen := ReadLengthPrefix(buf)
	gotHeader, err := ReadHeader(buf, headerLen)
	require.NoError(t, err)
	require.Equal(t, h, gotHeader)

	payloadLen := ReadLengthPrefix(buf)
	gotPayload := ReadPayload(buf, payloadLen)
	require.Equal(t, payload, gotPayload)

	require.True(t, buf.Empty())
}

func TestFrame_RejectsBadMagic(t *testing.T) {
	buf := buffer.NewChainedBuffer()
	h := Header{Magic: 0xDEADBEEF, Version: Version, Service: "S", Method: "M"}
	require.NoError(t, WriteFrame(buf, h, nil))

	headerLen := ReadLengthPrefix(buf)
	_, err := ReadHeader(buf, headerLen)
	require.ErrorIs(t, err, ErrBadMagic)
}

func TestFrame_RejectsBadVersion(t *testing.T) {
	buf := buffer.NewChainedBuffer()
	h := Header{Magic: Magic, Version: 99, Service: "S", Method: "M"}
	require.NoError(t, WriteFrame(buf, h, nil))

	headerLen := ReadLengthPrefix(buf)
	_, err := ReadHeader(buf, headerLen)
	require.ErrorIs(t, err, ErrBadVersion)
}

func TestFrame_PayloadSpanningBlockBoundary(t *testing.T) {
	buf := buffer.NewChainedBuffer()
	h := Header{Magic: Magic, Version: Version, Service: "S", Method: "M"}

	payload := make([]byte, buffer.BlockSize*2+123)
	for i := range payload {
		payload[i] = byte(i)
	}
	require.NoError(t, WriteFrame(buf, h, payload))

	headerLen := ReadLengthPrefix(buf)
	_, err := ReadHeader(buf, headerLen)
	require.NoError(t, err)

	payloadLen := ReadLengthPrefix(buf)
	require.Equal(t, uint32(len(payload)), payloadLen)
	got := ReadPayload(buf, payloadLen)
	require.Equal(t, payload, got)
}

func TestFrame_ZeroLengthPayloadRoundTrip(t *testing.T) {
	buf := buffer.NewChainedBuffer()
	h := Header{Magic: Magic, Version: Version, Type: MessageResponse, RequestID: 7, Service: "S", Method: "M"}
	require.NoError(t, WriteFrame(buf, h, nil))

	headerLen := ReadLengthPrefix(buf)
	gotHeader, err := ReadHeader(buf, headerLen)
	require.NoError(t, err)
	require.Equal(t, h, gotHeader)

	payloadLen := ReadLengthPrefix(buf)
	require.Equal(t, uint32(0), payloadLen)
	got := ReadPayload(buf, payloadLen)
	require.Len(t, got, 0)
}
