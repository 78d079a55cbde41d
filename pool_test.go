package threadpool

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestGlobalThreadPool_Lifecycle verifies the singleton helpers
// Given: An initialized global pool of 3 threads
// When: Messages are posted and the pool is shut down
// Then: Messages run, repeated Init is a no-op, Get panics after shutdown
func TestGlobalThreadPool_Lifecycle(t *testing.T) {
	// Arrange
	InitGlobalThreadPool(3)
	pool := GetGlobalThreadPool()
	InitGlobalThreadPool(8)
	require.Same(t, pool, GetGlobalThreadPool(), "second Init must not replace the pool")
	assert.Equal(t, 3, pool.NumThreads())

	// Act
	var ran atomic.Int32
	done := make(chan struct{})
	for i := 0; i < 3; i++ {
		require.NoError(t, Post(i, MessageFunc(func(ctx context.Context) {
			got := RunInBlockerPool(ctx, func() int { return CurrentThreadIndex(ctx) })
			if got != CurrentThreadIndex(ctx) {
				t.Errorf("blocking result %d on thread %d", got, CurrentThreadIndex(ctx))
			}
			if ran.Add(1) == 3 {
				close(done)
			}
		})))
	}
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("posted messages did not run")
	}
	ShutdownGlobalThreadPool()
	ShutdownGlobalThreadPool()

	// Assert
	assert.Equal(t, int32(3), ran.Load())
	assert.True(t, pool.BlockerPool().IsClosed())
	assert.Panics(t, func() { GetGlobalThreadPool() })
}

func TestPost_InvalidIndex(t *testing.T) {
	InitGlobalThreadPool(1)
	defer ShutdownGlobalThreadPool()

	assert.ErrorIs(t, Post(5, MessageFunc(func(context.Context) {})), ErrInvalidThreadIndex)
}
