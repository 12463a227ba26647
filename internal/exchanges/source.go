package exchanges

import (
	"context"
	"errors"
)

// ErrNoPrice is returned when a venue has no quote for the symbol.
var ErrNoPrice = errors.New("no price")

// PriceSource is implemented by venue-specific price clients. One source
// serves one exchange.
type PriceSource interface {
	Name() string
	GetPrice(ctx context.Context, symbol string) (float64, error)
}

// Registry maps exchange names to their price source.
type Registry map[string]PriceSource

// Names returns the registered exchange names in the order given by order,
// skipping names without a source.
func (r Registry) Names(order []string) []string {
	out := make([]string, 0, len(order))
	for _, name := range order {
		if _, ok := r[name]; ok {
			out = append(out, name)
		}
	}
	return out
}
