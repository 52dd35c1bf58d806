package location

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOneShotFirstOfferWins(t *testing.T) {
	s := newOneShot[int]()
	assert.True(t, s.offer(1))
	assert.False(t, s.offer(2))
	assert.False(t, s.cancel())

	v, err := s.wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}

func TestOneShotCancelledWait(t *testing.T) {
	s := newOneShot[int]()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, s.offer(3), "offer after cancellation must be dropped")
}

func TestOneShotValueBeatsLateCancellation(t *testing.T) {
	s := newOneShot[string]()
	require.True(t, s.offer("fix"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	v, err := s.wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, "fix", v)
}

func TestOneShotConcurrentOffers(t *testing.T) {
	s := newOneShot[int]()
	var accepted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if s.offer(i) {
				accepted.Add(1)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, int32(1), accepted.Load())
}
