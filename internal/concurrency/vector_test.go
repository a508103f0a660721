package concurrency

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConcurrentVectorReserveGrowSet(t *testing.T) {
	v := NewConcurrentVector[int64](4, "pk")

	start := v.Reserve(10)
	require.Equal(t, 0, start)
	v.Grow(start + 10)
	assert.Equal(t, 3, v.NumChunks()) // ceil(10/4)

	for i := 0; i < 10; i++ {
		v.Set(i, int64(i*2))
	}
	for i := 0; i < 10; i++ {
		assert.Equal(t, int64(i*2), v.Get(i))
	}
}

func TestConcurrentVectorConcurrentWriters(t *testing.T) {
	v := NewConcurrentVector[int64](8, "pk")
	const writers = 16
	const perWriter = 100

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			start := v.Reserve(perWriter)
			v.Grow(start + perWriter)
			for i := 0; i < perWriter; i++ {
				v.Set(start+i, int64(start+i))
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, writers*perWriter, v.Size())
	for i := 0; i < writers*perWriter; i++ {
		assert.Equal(t, int64(i), v.Get(i))
	}
}

func TestAckResponderInOrder(t *testing.T) {
	a := NewAckResponder()
	assert.Equal(t, int64(0), a.Horizon())

	a.Ack(0, 10)
	assert.Equal(t, int64(10), a.Horizon())

	a.Ack(10, 20)
	assert.Equal(t, int64(20), a.Horizon())
}

func TestAckResponderOutOfOrder(t *testing.T) {
	a := NewAckResponder()

	a.Ack(10, 20) // arrives before [0,10)
	assert.Equal(t, int64(0), a.Horizon())

	a.Ack(20, 30)
	assert.Equal(t, int64(0), a.Horizon())

	a.Ack(0, 10) // unblocks the whole chain
	assert.Equal(t, int64(30), a.Horizon())
}

func TestAckResponderConcurrentOutOfOrder(t *testing.T) {
	a := NewAckResponder()
	const ranges = 200
	rangeSize := int64(5)

	var wg sync.WaitGroup
	for i := ranges - 1; i >= 0; i-- { // dispatch in reverse order
		wg.Add(1)
		start := int64(i) * rangeSize
		go func(start int64) {
			defer wg.Done()
			a.Ack(start, start+rangeSize)
		}(start)
	}
	wg.Wait()

	assert.Equal(t, int64(ranges)*rangeSize, a.Horizon())
}
