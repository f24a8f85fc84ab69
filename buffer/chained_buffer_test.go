package buffer

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestChainedBuffer_WriteReadRoundTrip(t *testing.T) {
	defer goleak.VerifyNone(t)

	b := NewChainedBuffer()
	src := make([]byte, BlockSize*3+17)
	rand.New(rand.NewSource(1)).Read(src)

	n, err := b.Write(src)
	require.NoError(t, err)
	require.Equal(t, len(src), n)
	require.Equal(t, len(src), b.Size())

	out := make([]byte, len(src))
	n, err = b.Read(out)
	require.NoError(t, err)
	require.Equal(t, len(src), n)
	require.Equal(t, src, out)
	require.True(t, b.Empty())
}

func TestChainedBuffer_ReadDrainsAcrossBlocks(t *testing.T) {
	defer goleak.VerifyNone(t)

	b := NewChainedBuffer()
	total := 0
	for i := 0; i < 10; i++ {
		chunk := bytes.Repeat([]byte{byte(i)}, BlockSize/2+1)
		n, err := b.Write(chunk)
		require.NoError(t, err)
		total += n
	}
	require.Equal(t, total, b.Size())

	out := make([]byte, total)
	n, err := b.Read(out)
	require.NoError(t, err)
	require.Equal(t, total, n)
	require.True(t, b.Empty())
}

func TestChainedBuffer_InputNextBackUp_ZeroCopyRoundTrip(t *testing.T) {
	defer goleak.VerifyNone(t)

	b := NewChainedBuffer()
	src := []byte("hello zero-copy world")
	_, err := b.Write(src)
	require.NoError(t, err)

	sizeBefore := b.Size()
	countBefore := b.InputByteCount()

	view, ok := b.InputNext()
	require.True(t, ok)
	require.True(t, len(view) > 0)

	require.NoError(t, b.InputBackUp(len(view)))
	require.Equal(t, sizeBefore, b.Size())
	require.Equal(t, countBefore, b.InputByteCount())

	out := make([]byte, len(src))
	n, err := b.Read(out)
	require.NoError(t, err)
	require.Equal(t, len(src), n)
	require.Equal(t, src, out)
}

func TestChainedBuffer_EmptyAtEOF(t *testing.T) {
	defer goleak.VerifyNone(t)

	b := NewChainedBuffer()
	data, ok := b.InputNext()
	require.False(t, ok)
	require.Nil(t, data)

	out := make([]byte, 16)
	n, err := b.Read(out)
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

func TestChainedBuffer_PushPopLimit_BoundsInputNext(t *testing.T) {
	defer goleak.VerifyNone(t)

	b := NewChainedBuffer()
	payload := []byte("0123456789abcdefghij")
	_, err := b.Write(payload)
	require.NoError(t, err)

	b.PushLimit(5)
	var collected []byte
	for {
		v, ok := b.InputNext()
		if !ok {
			break
		}
		collected = append(collected, v...)
	}
	require.Equal(t, payload[:5], collected)
	b.PopLimit()

	rest := make([]byte, len(payload)-5)
	n, err := b.Read(rest)
	require.NoError(t, err)
	require.Equal(t, len(rest), n)
	require.Equal(t, payload[5:], rest)
}

func TestChainedBuffer_NestedPushLimit_ClampsToOuter(t *testing.T) {
	defer goleak.VerifyNone(t)

	b := NewChainedBuffer()
	_, err := b.Write(bytes.Repeat([]byte{'x'}, 100))
	require.NoError(t, err)

	b.PushLimit(10)
	b.PushLimit(50) // inner request exceeds outer remaining budget
	var n int
	for {
		v, ok := b.InputNext()
		if !ok {
			break
		}
		n += len(v)
	}
	require.Equal(t, 10, n, "nested limit must clamp to the outer bound")
	b.PopLimit()
	b.PopLimit()
}

func TestChainedBuffer_OutputNextBackUp(t *testing.T) {
	defer goleak.VerifyNone(t)

	b := NewChainedBuffer()
	view := b.OutputNext()
	require.Equal(t, BlockSize, len(view))

	copy(view, []byte("partial"))
	require.NoError(t, b.OutputBackUp(len(view)-len("partial")))
	require.Equal(t, len("partial"), b.Size())

	out := make([]byte, len("partial"))
	n, err := b.Read(out)
	require.NoError(t, err)
	require.Equal(t, "partial", string(out[:n]))
}

func TestChainedBuffer_CommitSendAdvancesAndRecycles(t *testing.T) {
	defer goleak.VerifyNone(t)

	b := NewChainedBuffer()
	src := bytes.Repeat([]byte{'y'}, BlockSize*2+5)
	_, err := b.Write(src)
	require.NoError(t, err)

	iovs := b.GatherIOVecs()
	require.True(t, len(iovs) >= 1)

	b.CommitSend(len(src))
	require.True(t, b.Empty())
}

func TestChainedBuffer_WriteViewCommitResv(t *testing.T) {
	defer goleak.VerifyNone(t)

	b := NewChainedBuffer()
	view := b.WriteView()
	n := copy(view, []byte("from-the-kernel"))
	b.CommitResv(n)
	require.Equal(t, n, b.Size())

	out := make([]byte, n)
	rn, err := b.Read(out)
	require.NoError(t, err)
	require.Equal(t, n, rn)
	require.Equal(t, "from-the-kernel", string(out))
}

func TestChainedBuffer_GatherIOVecsCappedAtMaxIOVec(t *testing.T) {
	defer goleak.VerifyNone(t)

	b := NewChainedBuffer()
	// force far more blocks than maxIOVec to exercise the cap.
	_, err := b.Write(bytes.Repeat([]byte{'z'}, BlockSize*(maxIOVec+10)))
	require.NoError(t, err)

	iovs := b.GatherIOVecs()
	require.LessOrEqual(t, len(iovs), maxIOVec)
}
