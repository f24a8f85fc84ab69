package queue

import (
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMPMC_SingleProducerSingleConsumer_FIFO(t *testing.T) {
	defer goleak.VerifyNone(t)

	q := NewMPMC[int]()
	const n = 10_000

	for i := 0; i < n; i++ {
		require.True(t, q.Push(i))
	}

	for i := 0; i < n; i++ {
		v, ok := q.Pop()
		require.True(t, ok)
		require.Equal(t, i, v)
	}

	_, ok := q.Pop()
	require.False(t, ok)
}

func TestMPMC_ManyChunkRollovers(t *testing.T) {
	defer goleak.VerifyNone(t)

	q := NewMPMC[int]()
	const n = chunkSize*5 + 7 // force several chunk boundaries

	for i := 0; i < n; i++ {
		require.True(t, q.Push(i))
	}
	for i := 0; i < n; i++ {
		v, ok := q.Pop()
		require.True(t, ok)
		require.Equal(t, i, v)
	}
}

func TestMPMC_Concurrent_MultisetPreserved(t *testing.T) {
	defer goleak.VerifyNone(t)

	q := NewMPMC[int]()
	producers := 8
	consumers := 8
	itemsPerProducer := 5000
	total := int64(producers * itemsPerProducer)

	var wg sync.WaitGroup
	var sentSum, receivedSum, receivedCount int64

	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(pid int) {
			defer wg.Done()
			for i := 0; i < itemsPerProducer; i++ {
				v := pid*itemsPerProducer + i + 1
				q.Push(v)
				atomic.AddInt64(&sentSum, int64(v))
			}
		}(p)
	}

	var cwg sync.WaitGroup
	for c := 0; c < consumers; c++ {
		cwg.Add(1)
		go func() {
			defer cwg.Done()
			for {
				if v, ok := q.Pop(); ok {
					atomic.AddInt64(&receivedSum, int64(v))
					if atomic.AddInt64(&receivedCount, 1) == total {
						return
					}
				} else {
					if atomic.LoadInt64(&receivedCount) >= total {
						return
					}
					runtime.Gosched()
				}
			}
		}()
	}

	wg.Wait()

	done := make(chan struct{})
	go func() { cwg.Wait(); close(done) }()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("consumers did not drain the queue in time")
	}

	require.Equal(t, sentSum, receivedSum)
	require.Equal(t, total, receivedCount)
}

func TestMPMC_PerProducerOrderPreserved(t *testing.T) {
	defer goleak.VerifyNone(t)

	q := NewMPMC[[2]int]() // [producerID, seq]
	producers := 4
	itemsPerProducer := 2000

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(pid int) {
			defer wg.Done()
			for i := 0; i < itemsPerProducer; i++ {
				q.Push([2]int{pid, i})
			}
		}(p)
	}
	wg.Wait()

	lastSeq := make([]int, producers)
	for i := range lastSeq {
		lastSeq[i] = -1
	}

	total := producers * itemsPerProducer
	for i := 0; i < total; i++ {
		v, ok := q.Pop()
		require.True(t, ok)
		require.Greater(t, v[1], lastSeq[v[0]], "per-producer FIFO order violated")
		lastSeq[v[0]] = v[1]
	}
}
