package core

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalSemaphore_AcquireBlocksUntilRelease(t *testing.T) {
	sem := NewLocalSemaphore(1)
	require.NoError(t, sem.Acquire(context.Background()))

	acquired := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		acquired <- sem.Acquire(ctx)
	}()

	select {
	case <-acquired:
		t.Fatal("许可未释放时 Acquire 不应返回")
	case <-time.After(50 * time.Millisecond):
	}

	sem.Release()
	select {
	case err := <-acquired:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("释放后等待方应拿到许可")
	}
}

func TestLocalSemaphore_AcquireRespectsDeadline(t *testing.T) {
	sem := NewLocalSemaphore(1)
	require.NoError(t, sem.Acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err := sem.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLocalSemaphore_TryAcquire(t *testing.T) {
	sem := NewLocalSemaphore(1)
	assert.True(t, sem.TryAcquire())
	assert.False(t, sem.TryAcquire())

	sem.Release()
	assert.True(t, sem.TryAcquire())
}
