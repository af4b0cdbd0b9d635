package semaphore_test

import (
	"context"
	"testing"
	"time"

	"github.com/runetale/wmiq/semaphore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSemaphore(t *testing.T) {
	s := semaphore.NewSemaphore(2)
	assert.Equal(t, 2, s.Cap())

	assert.True(t, s.TryAcquire())
	require.NoError(t, s.Acquire(context.Background()))
	assert.Equal(t, 2, s.InUse())
	assert.False(t, s.TryAcquire())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Acquire(ctx), context.DeadlineExceeded)

	s.Release()
	assert.Equal(t, 1, s.InUse())
	require.NoError(t, s.Acquire(context.Background()))
}

func TestSemaphoreFreeSlotBeatsDoneContext(t *testing.T) {
	s := semaphore.NewSemaphore(1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, s.Acquire(ctx))
	assert.ErrorIs(t, s.Acquire(ctx), context.Canceled)
}

func TestSemaphoreMinimumSize(t *testing.T) {
	s := semaphore.NewSemaphore(0)
	assert.Equal(t, 1, s.Cap())
	assert.True(t, s.TryAcquire())
	assert.False(t, s.TryAcquire())
}

func TestSemaphoreReleaseWithoutAcquire(t *testing.T) {
	s := semaphore.NewSemaphore(1)
	assert.Panics(t, s.Release)
}
