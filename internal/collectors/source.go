package collectors

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hetulpatel/cexarb/internal/exchanges"
)

// SourceCollector polls an exchanges.PriceSource symbol by symbol.
type SourceCollector struct {
	src exchanges.PriceSource
	now func() time.Time
}

func NewSourceCollector(src exchanges.PriceSource) *SourceCollector {
	return &SourceCollector{src: src, now: time.Now}
}

func (c *SourceCollector) Name() string {
	return c.src.Name()
}

func (c *SourceCollector) Fetch(ctx context.Context, opts FetchOptions) ([]Quote, error) {
	quotes := make([]Quote, 0, len(opts.Symbols))
	var errs []error
	for _, symbol := range opts.Symbols {
		if err := ctx.Err(); err != nil {
			return quotes, err
		}
		price, err := c.src.GetPrice(ctx, symbol)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", symbol, err))
			continue
		}
		if price <= 0 {
			errs = append(errs, fmt.Errorf("%s: non-positive price %v", symbol, price))
			continue
		}
		quotes = append(quotes, Quote{Exchange: c.src.Name(), Symbol: symbol, Price: price, At: c.now().UTC()})
	}
	return quotes, errors.Join(errs...)
}
