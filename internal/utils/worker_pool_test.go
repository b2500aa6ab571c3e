package utils

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWorkerPool_RunsAllTasks(t *testing.T) {
	pool := NewWorkerPool(4)
	var count atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(1)
		assert.True(t, pool.Submit(func() {
			defer wg.Done()
			count.Add(1)
		}))
	}
	wg.Wait()
	pool.Shutdown()

	assert.Equal(t, int32(100), count.Load())
	assert.Equal(t, 4, pool.Size())
}

func TestWorkerPool_SubmitAfterShutdown(t *testing.T) {
	pool := NewWorkerPool(0)
	assert.Equal(t, 1, pool.Size())

	pool.Shutdown()
	pool.Shutdown()

	ran := false
	assert.False(t, pool.Submit(func() { ran = true }))
	assert.False(t, ran)
}
