package conformance

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// WorkerPool distributes Scenarios across a fixed number of goroutines:
// channel-fed worker goroutines plus a ticking progress-reporter
// goroutine, generalized from "candidate sequences checked" to
// "scenarios checked".
type WorkerPool struct {
	NumWorkers int
	Report     *Report
	mu         sync.Mutex
	checked    atomic.Int64
	passed     atomic.Int64
	failed     atomic.Int64
	completed  atomic.Int64
}

// NewWorkerPool returns a pool with the given worker count, defaulting
// to runtime.NumCPU() for numWorkers<=0.
func NewWorkerPool(numWorkers int) *WorkerPool {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	return &WorkerPool{
		NumWorkers: numWorkers,
		Report:     NewReport(),
	}
}

// Stats returns the running checked/passed/failed counters.
func (wp *WorkerPool) Stats() (checked, passed, failed int64) {
	return wp.checked.Load(), wp.passed.Load(), wp.failed.Load()
}

// RunScenarios runs every scenario in scenarios across NumWorkers
// goroutines, printing the same periodic status line style as
// pkg/search.WorkerPool.RunTasks, and returns once every scenario has
// completed.
func (wp *WorkerPool) RunScenarios(scenarios []Scenario, verbose bool) {
	total := int64(len(scenarios))

	ch := make(chan Scenario, len(scenarios))
	for _, s := range scenarios {
		ch <- s
	}
	close(ch)

	done := make(chan struct{})
	startTime := time.Now()
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		var lastChecked int64
		lastTime := startTime
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				now := time.Now()
				comp := wp.completed.Load()
				checked := wp.checked.Load()
				passed := wp.passed.Load()
				elapsed := now.Sub(startTime)

				dt := now.Sub(lastTime).Seconds()
				dc := checked - lastChecked
				rate := float64(dc) / dt
				lastChecked = checked
				lastTime = now

				var eta string
				if comp > 0 {
					remaining := time.Duration(float64(elapsed) * float64(total-comp) / float64(comp))
					eta = remaining.Round(time.Second).String()
				} else {
					eta = "..."
				}

				pct := float64(comp) / float64(total) * 100
				fmt.Printf("  [%s] %d/%d scenarios (%.1f%%) | %d passed | %.1fk checks/s | ETA %s\n",
					elapsed.Round(time.Second), comp, total, pct, passed, rate/1e3, eta)
			}
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < wp.NumWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for s := range ch {
				wp.runOne(s, verbose)
				wp.completed.Add(1)
			}
		}()
	}
	wg.Wait()

	close(done)
	elapsed := time.Since(startTime)
	comp := wp.completed.Load()
	checked := wp.checked.Load()
	passed := wp.passed.Load()
	rate := float64(checked) / elapsed.Seconds()
	fmt.Printf("  [%s] %d/%d scenarios (100.0%%) | %d passed | %.1fk checks/s avg | DONE\n",
		elapsed.Round(time.Second), comp, total, passed, rate/1e3)
}

func (wp *WorkerPool) runOne(s Scenario, verbose bool) {
	wp.checked.Add(1)
	if err := s.Run(); err != nil {
		wp.failed.Add(1)
		wp.mu.Lock()
		wp.Report.Add(Failure{Name: s.Name, Err: err.Error()})
		wp.mu.Unlock()
		if verbose {
			fmt.Printf("  FAIL: %s: %v\n", s.Name, err)
		}
		return
	}
	wp.passed.Add(1)
	if verbose {
		fmt.Printf("  PASS: %s\n", s.Name)
	}
}
