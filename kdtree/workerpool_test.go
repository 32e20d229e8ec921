package kdtree

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestWorkerPoolSubmitRunsEveryTask(t *testing.T) {
	pool := NewWorkerPool(3)
	defer pool.Stop()

	const n = 100
	var count int64
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		pool.Submit(func() {
			atomic.AddInt64(&count, 1)
			wg.Done()
		})
	}
	wg.Wait()

	if got := atomic.LoadInt64(&count); got != n {
		t.Errorf("tasks run = %d, want %d", got, n)
	}
}

func TestWorkerPoolSubmitWaitBlocksUntilDone(t *testing.T) {
	pool := NewWorkerPool(2)
	defer pool.Stop()

	var ran bool
	pool.SubmitWait(func() {
		time.Sleep(10 * time.Millisecond)
		ran = true
	})
	if !ran {
		t.Error("SubmitWait returned before its task ran")
	}
}

func TestFanOutRunsAllIndices(t *testing.T) {
	pool := NewWorkerPool(4)
	defer pool.Stop()

	const n = 50
	seen := make([]int32, n)
	pool.FanOut(n, func(i int) {
		atomic.AddInt32(&seen[i], 1)
	})
	for i, v := range seen {
		if v != 1 {
			t.Errorf("index %d ran %d times, want 1", i, v)
		}
	}
}

func TestWorkersReportsMaxWorkers(t *testing.T) {
	pool := NewWorkerPool(4)
	defer pool.Stop()
	if got := pool.Workers(); got != 4 {
		t.Errorf("Workers() = %d, want 4", got)
	}
}

func TestWorkerPoolStopWaitDrainsQueue(t *testing.T) {
	pool := NewWorkerPool(1)
	var ran int32
	for i := 0; i < 10; i++ {
		pool.Submit(func() {
			atomic.AddInt32(&ran, 1)
		})
	}
	pool.StopWait()
	if got := atomic.LoadInt32(&ran); got != 10 {
		t.Errorf("StopWait left %d/10 tasks unrun", got)
	}
}
