package collectors

import (
	"context"
	"time"

	"github.com/hetulpatel/cexarb/internal/logging"
)

// RunLoop fetches from collector every interval and hands the quotes to
// handleFn. Partial fetches are still handled; the error is only logged.
func RunLoop(ctx context.Context, collector Collector, opts FetchOptions, every time.Duration, handleFn func(context.Context, []Quote) error) {
	if every <= 0 {
		every = time.Second
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		quotes, err := collector.Fetch(ctx, opts)
		if err != nil && ctx.Err() == nil {
			logging.Errorf("[%s] fetch failed: %v", collector.Name(), err)
		}
		if handleFn != nil && len(quotes) > 0 {
			if err := handleFn(ctx, quotes); err != nil {
				logging.Errorf("[%s] handler error: %v", collector.Name(), err)
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
