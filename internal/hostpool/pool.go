// Package hostpool provides the fixed worker pool behind CPU-path
// evaluation. Work units are independent and side-effect-free; workers only
// read shared inputs and write to disjoint output slots, so the pool needs
// no locking beyond its own submission channel.
package hostpool

import (
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
)

// ErrPoolClosed is returned when work is submitted to a closed pool.
var ErrPoolClosed = errors.New("hostpool: pool closed")

// Pool manages a fixed set of worker goroutines. This avoids spawning
// goroutines per evaluation under optimization loops that issue thousands
// of calls per second.
//
// Submission is safe for concurrent use; ParallelFor from multiple
// goroutines interleaves work units on the shared workers.
type Pool struct {
	numWorkers int
	workCh     chan func()
	stopCh     chan struct{}
	wg         sync.WaitGroup
	closed     atomic.Bool
	submitMu   sync.RWMutex
}

// New creates a pool with numWorkers goroutines. Values below one default
// to the available hardware concurrency.
func New(numWorkers int) *Pool {
	if numWorkers < 1 {
		numWorkers = runtime.GOMAXPROCS(0)
	}

	p := &Pool{
		numWorkers: numWorkers,
		workCh:     make(chan func(), numWorkers*2),
		stopCh:     make(chan struct{}),
	}

	p.wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go p.worker()
	}

	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return p.numWorkers
}

func (p *Pool) worker() {
	defer p.wg.Done()

	for {
		select {
		case <-p.stopCh:
			// Drain remaining work before exiting.
			for {
				select {
				case task, ok := <-p.workCh:
					if !ok {
						return
					}
					task()
				default:
					return
				}
			}
		case task, ok := <-p.workCh:
			if !ok {
				return
			}
			task()
		}
	}
}

// Submit enqueues a task and returns immediately.
func (p *Pool) Submit(task func()) error {
	p.submitMu.RLock()
	defer p.submitMu.RUnlock()

	if p.closed.Load() {
		return ErrPoolClosed
	}

	select {
	case p.workCh <- task:
		return nil
	case <-p.stopCh:
		return ErrPoolClosed
	}
}

// Chunks returns the number of ranges ParallelFor splits [0, n) into for
// the given chunk request. Exposed so callers can size per-chunk output
// slots.
func Chunks(n, chunks int) int {
	if n <= 0 {
		return 0
	}
	if chunks < 1 {
		chunks = 1
	}
	if chunks > n {
		chunks = n
	}
	// Ceil division twice: the range count can undershoot the request
	// (e.g. n=10, chunks=7 yields 5 ranges of size 2).
	chunkSize := (n + chunks - 1) / chunks
	return (n + chunkSize - 1) / chunkSize
}

// ParallelFor partitions [0, n) into at most chunks contiguous ranges,
// runs fn on each range on the pool, and blocks until all ranges finish.
// fn receives the chunk index alongside the range, so workers can write
// partial results to disjoint slots. Chunk boundaries depend only on n and
// chunks, making the partitioning deterministic for a fixed configuration.
func (p *Pool) ParallelFor(n, chunks int, fn func(chunk, start, end int)) error {
	chunks = Chunks(n, chunks)
	if chunks == 0 {
		return nil
	}

	chunkSize := (n + chunks - 1) / chunks

	var wg sync.WaitGroup
	for idx, start := 0, 0; start < n; idx, start = idx+1, start+chunkSize {
		end := min(start+chunkSize, n)
		c, s, e := idx, start, end
		wg.Add(1)
		if err := p.Submit(func() {
			defer wg.Done()
			fn(c, s, e)
		}); err != nil {
			wg.Done()
			wg.Wait()
			return err
		}
	}
	wg.Wait()
	return nil
}

// Close shuts the pool down and waits for workers to exit. Close is
// idempotent.
func (p *Pool) Close() {
	if !p.closed.CompareAndSwap(false, true) {
		return
	}

	p.submitMu.Lock()
	close(p.stopCh)
	close(p.workCh)
	p.submitMu.Unlock()

	p.wg.Wait()
}
