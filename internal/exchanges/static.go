package exchanges

import (
	"context"
	"fmt"
	"sync"
)

// StaticSource serves prices from memory. It backs dry runs and tests and can
// be updated while a scan is running.
type StaticSource struct {
	name   string
	mu     sync.RWMutex
	prices map[string]float64
	errs   map[string]error
}

func NewStaticSource(name string, prices map[string]float64) *StaticSource {
	copied := make(map[string]float64, len(prices))
	for k, v := range prices {
		copied[k] = v
	}
	return &StaticSource{name: name, prices: copied, errs: make(map[string]error)}
}

func (s *StaticSource) Name() string {
	return s.name
}

func (s *StaticSource) SetPrice(symbol string, price float64) {
	s.mu.Lock()
	s.prices[symbol] = price
	delete(s.errs, symbol)
	s.mu.Unlock()
}

// SetError makes GetPrice fail for symbol until the next SetPrice.
func (s *StaticSource) SetError(symbol string, err error) {
	s.mu.Lock()
	s.errs[symbol] = err
	s.mu.Unlock()
}

func (s *StaticSource) GetPrice(ctx context.Context, symbol string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err, ok := s.errs[symbol]; ok {
		return 0, err
	}
	price, ok := s.prices[symbol]
	if !ok {
		return 0, fmt.Errorf("%s %s: %w", s.name, symbol, ErrNoPrice)
	}
	return price, nil
}
