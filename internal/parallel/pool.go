// Package parallel provides a fixed-size worker pool that runs n
// independent tasks over the index range [0, n) and blocks until all of
// them complete. It implements the thread-pool interface consumed by the
// weight packer.
package parallel

import "runtime"

type rangeTask struct {
	lo, hi int
	fn     func(i int)
	done   chan struct{}
}

// Pool distributes index ranges across a fixed set of worker goroutines.
// A Pool is safe for concurrent use; each Run call borrows a completion
// slot so concurrent callers do not observe each other's signals.
type Pool struct {
	size      int
	tasks     chan rangeTask
	doneSlots chan chan struct{}
}

// New creates a pool with the given number of workers. Non-positive size
// selects GOMAXPROCS.
func New(size int) *Pool {
	if size <= 0 {
		size = runtime.GOMAXPROCS(0)
	}
	p := &Pool{
		size:      size,
		tasks:     make(chan rangeTask, size*2),
		doneSlots: make(chan chan struct{}, size),
	}
	for range size {
		p.doneSlots <- make(chan struct{}, 1)
	}
	for range size {
		go func() {
			for task := range p.tasks {
				for i := task.lo; i < task.hi; i++ {
					task.fn(i)
				}
				task.done <- struct{}{}
			}
		}()
	}
	return p
}

// Size returns the worker count.
func (p *Pool) Size() int {
	return p.size
}

// Run executes task(i) for every i in [0, n) and returns once all calls
// have completed. Tasks must be independent; Run provides no ordering
// between them.
func (p *Pool) Run(n int, task func(i int)) {
	if n <= 0 {
		return
	}

	workers := p.size
	if workers > n {
		workers = n
	}
	if workers <= 1 {
		for i := 0; i < n; i++ {
			task(i)
		}
		return
	}

	chunk := (n + workers - 1) / workers
	done := <-p.doneSlots

	submitted := 0
	for w := 0; w < workers; w++ {
		lo := w * chunk
		hi := min(lo+chunk, n)
		if lo >= hi {
			break
		}
		p.tasks <- rangeTask{lo: lo, hi: hi, fn: task, done: done}
		submitted++
	}

	for range submitted {
		<-done
	}
	p.doneSlots <- done
}

// Close stops the workers. Run must not be called after Close.
func (p *Pool) Close() {
	close(p.tasks)
}
