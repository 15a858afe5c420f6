package concurrency

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestPoolRunsAllTasks(t *testing.T) {
	p := NewGoRoutinePool(3)
	defer p.Stop()

	var ran int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		p.Schedule(func() {
			atomic.AddInt32(&ran, 1)
			wg.Done()
		})
	}
	wg.Wait()

	if got := atomic.LoadInt32(&ran); got != 20 {
		t.Errorf("tasks run: got %d, want 20", got)
	}
}

func TestPoolLimitsConcurrency(t *testing.T) {
	p := NewGoRoutinePool(2)
	defer p.Stop()

	var active, peak int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		p.Schedule(func() {
			n := atomic.AddInt32(&active, 1)
			for {
				old := atomic.LoadInt32(&peak)
				if n <= old || atomic.CompareAndSwapInt32(&peak, old, n) {
					break
				}
			}
			atomic.AddInt32(&active, -1)
			wg.Done()
		})
	}
	wg.Wait()

	if got := atomic.LoadInt32(&peak); got > 2 {
		t.Errorf("concurrent workers: got %d, want at most 2", got)
	}
}
