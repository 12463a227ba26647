// Package portfolio is the reference position ledger. Amounts are kept as
// decimals and converted to float64 only at the boundary.
package portfolio

import (
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
)

type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

var ErrInsufficientPosition = errors.New("insufficient position")

type position struct {
	qty     decimal.Decimal
	avgCost decimal.Decimal
}

// Position is a read-only view of one symbol.
type Position struct {
	Symbol  string  `json:"symbol"`
	Qty     float64 `json:"qty"`
	AvgCost float64 `json:"avg_cost"`
}

// Ledger tracks cash and average-cost positions. Fills are serialized.
type Ledger struct {
	mu        sync.Mutex
	cash      decimal.Decimal
	realized  decimal.Decimal
	positions map[string]*position
}

func NewLedger(cashUSD float64) *Ledger {
	return &Ledger{cash: decimal.NewFromFloat(cashUSD), positions: make(map[string]*position)}
}

// UpdateOnFill applies a fill and returns the PnL it realized. Buys realize
// nothing; sells realize (price - avg cost) * qty.
func (l *Ledger) UpdateOnFill(symbol string, side Side, qty, price float64) (float64, error) {
	if qty <= 0 || price <= 0 {
		return 0, fmt.Errorf("fill %s %s: qty and price must be > 0", side, symbol)
	}
	q := decimal.NewFromFloat(qty)
	px := decimal.NewFromFloat(price)
	notional := q.Mul(px)

	l.mu.Lock()
	defer l.mu.Unlock()
	pos := l.positions[symbol]
	if pos == nil {
		pos = &position{}
		l.positions[symbol] = pos
	}

	switch side {
	case Buy:
		total := pos.qty.Mul(pos.avgCost).Add(notional)
		pos.qty = pos.qty.Add(q)
		pos.avgCost = total.Div(pos.qty)
		l.cash = l.cash.Sub(notional)
		return 0, nil
	case Sell:
		if pos.qty.LessThan(q) {
			return 0, fmt.Errorf("sell %s %s of %s: %w", q, symbol, pos.qty, ErrInsufficientPosition)
		}
		pnl := px.Sub(pos.avgCost).Mul(q)
		pos.qty = pos.qty.Sub(q)
		if pos.qty.IsZero() {
			delete(l.positions, symbol)
		}
		l.cash = l.cash.Add(notional)
		l.realized = l.realized.Add(pnl)
		f, _ := pnl.Float64()
		return f, nil
	default:
		return 0, fmt.Errorf("unknown side %q", side)
	}
}

// EquityUSD is cash plus open positions at cost.
func (l *Ledger) EquityUSD() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	equity := l.cash
	for _, p := range l.positions {
		equity = equity.Add(p.qty.Mul(p.avgCost))
	}
	f, _ := equity.Float64()
	return f
}

func (l *Ledger) RealizedPnL() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	f, _ := l.realized.Float64()
	return f
}

func (l *Ledger) Position(symbol string) (Position, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.positions[symbol]
	if !ok {
		return Position{}, false
	}
	qty, _ := p.qty.Float64()
	avg, _ := p.avgCost.Float64()
	return Position{Symbol: symbol, Qty: qty, AvgCost: avg}, true
}
