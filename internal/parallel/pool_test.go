package parallel

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestRunCoversEveryIndexOnce(t *testing.T) {
	pool := New(4)
	defer pool.Close()

	const n = 1000
	var counts [n]int32
	pool.Run(n, func(i int) {
		atomic.AddInt32(&counts[i], 1)
	})

	for i, c := range counts {
		if c != 1 {
			t.Fatalf("index %d ran %d times", i, c)
		}
	}
}

func TestRunSmallN(t *testing.T) {
	pool := New(8)
	defer pool.Close()

	for _, n := range []int{0, 1, 2, 7} {
		var count int32
		pool.Run(n, func(i int) {
			atomic.AddInt32(&count, 1)
		})
		if int(count) != n {
			t.Fatalf("n=%d: ran %d tasks", n, count)
		}
	}
}

func TestConcurrentRunCalls(t *testing.T) {
	pool := New(4)
	defer pool.Close()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var count int32
			pool.Run(100, func(i int) {
				atomic.AddInt32(&count, 1)
			})
			if count != 100 {
				t.Errorf("ran %d tasks, want 100", count)
			}
		}()
	}
	wg.Wait()
}

func TestDefaultSize(t *testing.T) {
	pool := New(0)
	defer pool.Close()
	if pool.Size() < 1 {
		t.Fatalf("default size %d", pool.Size())
	}
}
