package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestPoolRunsEnqueuedTasks(t *testing.T) {
	pool := NewPool(PoolConfig{Workers: 2, QueueSize: 8, Logger: zerolog.Nop()})

	var counter int32
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		err := pool.Enqueue(func(context.Context) {
			defer wg.Done()
			atomic.AddInt32(&counter, 1)
		})
		require.NoError(t, err)
	}

	wg.Wait()
	require.Equal(t, int32(5), atomic.LoadInt32(&counter))

	require.NoError(t, pool.Shutdown(context.Background()))
}

func TestPoolRejectsWhenQueueFull(t *testing.T) {
	pool := NewPool(PoolConfig{Workers: 1, QueueSize: 1, Logger: zerolog.Nop()})

	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, pool.Enqueue(func(context.Context) {
		close(started)
		<-release
	}))
	<-started

	// Worker is busy; fill the queue, then overflow it.
	require.NoError(t, pool.Enqueue(func(context.Context) {}))
	require.ErrorIs(t, pool.Enqueue(func(context.Context) {}), ErrQueueFull)

	close(release)
	require.NoError(t, pool.Shutdown(context.Background()))
}

func TestPoolRejectsAfterShutdown(t *testing.T) {
	pool := NewPool(PoolConfig{Workers: 1, QueueSize: 4, Logger: zerolog.Nop()})
	require.NoError(t, pool.Shutdown(context.Background()))

	err := pool.Enqueue(func(context.Context) {})
	require.ErrorIs(t, err, ErrPoolClosed)
}

func TestPoolShutdownDrainsQueuedTasks(t *testing.T) {
	pool := NewPool(PoolConfig{Workers: 1, QueueSize: 8, Logger: zerolog.Nop()})

	var counter int32
	for i := 0; i < 6; i++ {
		require.NoError(t, pool.Enqueue(func(context.Context) {
			time.Sleep(10 * time.Millisecond)
			atomic.AddInt32(&counter, 1)
		}))
	}

	require.NoError(t, pool.Shutdown(context.Background()))
	require.Equal(t, int32(6), atomic.LoadInt32(&counter))
}

func TestPoolShutdownHonorsDeadline(t *testing.T) {
	pool := NewPool(PoolConfig{Workers: 1, QueueSize: 4, Logger: zerolog.Nop()})

	started := make(chan struct{})
	require.NoError(t, pool.Enqueue(func(context.Context) {
		close(started)
		time.Sleep(2 * time.Second)
	}))
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	require.ErrorIs(t, pool.Shutdown(ctx), context.DeadlineExceeded)
}

func TestPoolRecoversFromPanickingTask(t *testing.T) {
	pool := NewPool(PoolConfig{Workers: 1, QueueSize: 4, Logger: zerolog.Nop()})

	done := make(chan struct{})
	require.NoError(t, pool.Enqueue(func(context.Context) {
		panic("boom")
	}))
	require.NoError(t, pool.Enqueue(func(context.Context) {
		close(done)
	}))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not survive the panic")
	}

	require.NoError(t, pool.Shutdown(context.Background()))
}

func TestPoolDefaults(t *testing.T) {
	pool := NewPool(PoolConfig{Logger: zerolog.Nop()})

	require.Equal(t, 16, cap(pool.queue))
	require.NoError(t, pool.Shutdown(context.Background()))
}
