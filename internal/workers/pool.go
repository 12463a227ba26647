package workers

import (
	"context"
	"sync"
)

// Handler processes one item. It must be safe to call from several goroutines.
type Handler[T any] func(context.Context, T)

// Run feeds items to workerCount goroutines and returns once every item has
// been handled or ctx is done. Items not yet picked up when ctx ends are skipped.
func Run[T any](ctx context.Context, workerCount int, items []T, handler Handler[T]) {
	if len(items) == 0 || handler == nil {
		return
	}
	if workerCount <= 0 {
		workerCount = 1
	}
	if workerCount > len(items) {
		workerCount = len(items)
	}

	jobs := make(chan T)
	var wg sync.WaitGroup
	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range jobs {
				handler(ctx, item)
			}
		}()
	}

feed:
	for _, item := range items {
		if ctx.Err() != nil {
			break
		}
		select {
		case <-ctx.Done():
			break feed
		case jobs <- item:
		}
	}
	close(jobs)
	wg.Wait()
}
