package worker

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestNewPool_ZeroWorkers(t *testing.T) {
	pool := NewPool(0)
	if pool == nil {
		t.Fatal("Expected non-nil pool")
	}
	if pool.GetStats().Workers <= 0 {
		t.Error("Expected workers to default to the CPU count")
	}
}

func TestPool_Submit(t *testing.T) {
	pool := NewPool(2)
	pool.Start()
	defer pool.Close()

	var counter int
	var mu sync.Mutex

	for i := 0; i < 5; i++ {
		pool.Submit(func() {
			mu.Lock()
			counter++
			mu.Unlock()
		})
	}

	pool.Wait()

	if counter != 5 {
		t.Errorf("Expected counter to be 5, got %d", counter)
	}
}

func TestPool_StartOnce(t *testing.T) {
	pool := NewPool(2)

	pool.Start()
	pool.Start()
	defer pool.Close()

	var executed atomic.Bool
	pool.Submit(func() { executed.Store(true) })
	pool.Wait()

	if !executed.Load() {
		t.Error("Expected job to be executed")
	}
}

func TestPool_SubmitAfterClose(t *testing.T) {
	pool := NewPool(1)
	pool.Start()
	pool.Close()
	pool.Close()

	if pool.Submit(func() {}) {
		t.Error("Expected Submit to fail after Close")
	}
	if pool.TrySubmit(func() {}) {
		t.Error("Expected TrySubmit to fail after Close")
	}
}

func TestPool_TrySubmitWhenFull(t *testing.T) {
	pool := NewPool(1) // queue holds 2
	pool.Start()
	defer pool.Close()

	release := make(chan struct{})
	started := make(chan struct{})
	pool.Submit(func() {
		close(started)
		<-release
	})
	<-started

	accepted := 0
	for i := 0; i < 5; i++ {
		if pool.TrySubmit(func() {}) {
			accepted++
		}
	}
	if accepted != 2 {
		t.Errorf("Expected 2 jobs to fit in the queue, got %d", accepted)
	}

	close(release)
	pool.Wait()

	stats := pool.GetStats()
	if stats.TotalJobs != 3 || stats.CompletedJobs != 3 {
		t.Errorf("Unexpected stats %+v", stats)
	}
}

func TestPool_PanicDoesNotKillWorker(t *testing.T) {
	pool := NewPool(1)
	pool.Start()
	defer pool.Close()

	pool.Submit(func() { panic("boom") })
	var ran atomic.Bool
	pool.Submit(func() { ran.Store(true) })
	pool.Wait()

	if !ran.Load() {
		t.Error("Expected the worker to survive a panicking job")
	}
}

func TestPool_ConcurrentStatsAccess(t *testing.T) {
	pool := NewPool(2)
	pool.Start()
	defer pool.Close()

	const numJobs = 20
	var wg sync.WaitGroup

	for i := 0; i < numJobs; i++ {
		pool.Submit(func() {
			for j := 0; j < 5000; j++ {
				_ = j * j
			}
		})
	}

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				_ = pool.GetStats()
			}
		}()
	}

	wg.Wait()
	pool.Wait()

	stats := pool.GetStats()
	if stats.TotalJobs != numJobs || stats.CompletedJobs != numJobs {
		t.Errorf("Expected %d total and completed jobs, got %+v", numJobs, stats)
	}
	if stats.ActiveWorkers != 0 {
		t.Errorf("Expected 0 active workers, got %d", stats.ActiveWorkers)
	}
}
