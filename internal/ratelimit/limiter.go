package ratelimit

import (
	"sync"
	"time"
)

const ReasonRateLimited = "rate_limited"

// Config controls the sliding-window caps. A max of zero or less leaves that
// bucket unlimited.
type Config struct {
	Enabled        bool
	Window         time.Duration
	MaxPerExchange int
	MaxPerSymbol   int
}

// Limiter is a hard cap on executions per exchange and per symbol within a
// trailing window. Expired timestamps are pruned lazily on Allow.
type Limiter struct {
	cfg     Config
	now     func() time.Time
	mu      sync.Mutex
	buckets map[string][]time.Time
}

func New(cfg Config) *Limiter {
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	return &Limiter{cfg: cfg, now: time.Now, buckets: make(map[string][]time.Time)}
}

// WithClock replaces the time source; used by tests.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

func ExchangeKey(name string) string { return "exchange:" + name }
func SymbolKey(symbol string) string { return "symbol:" + symbol }

// Allow reports whether another execution on the two exchanges and symbol
// fits inside the window. When it does not, reason is "rate_limited" and key
// names the saturated bucket.
func (l *Limiter) Allow(exchangeA, exchangeB, symbol string) (ok bool, reason string, key string) {
	if l == nil || !l.cfg.Enabled {
		return true, "", ""
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := l.now().Add(-l.cfg.Window)
	for _, c := range l.checks(exchangeA, exchangeB, symbol) {
		if c.max <= 0 {
			continue
		}
		if len(l.prune(c.key, cutoff)) >= c.max {
			return false, ReasonRateLimited, c.key
		}
	}
	return true, "", ""
}

// Reserve checks the window and, when every bucket has room, takes a slot
// in each of them under the same lock. Concurrent executions sharing an
// exchange or symbol therefore cannot both pass a full bucket. release
// gives the slots back; call it when the execution does not fill. A
// rejected call returns a no-op release.
func (l *Limiter) Reserve(exchangeA, exchangeB, symbol string) (release func(), ok bool, key string) {
	if l == nil || !l.cfg.Enabled {
		return func() {}, true, ""
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	cutoff := now.Add(-l.cfg.Window)
	checks := l.checks(exchangeA, exchangeB, symbol)
	for _, c := range checks {
		if c.max > 0 && len(l.prune(c.key, cutoff)) >= c.max {
			return func() {}, false, c.key
		}
	}
	for _, c := range checks {
		l.buckets[c.key] = append(l.prune(c.key, cutoff), now)
	}
	var once sync.Once
	return func() {
		once.Do(func() { l.cancel(checks, now) })
	}, true, ""
}

// cancel removes one entry stamped at from each bucket.
func (l *Limiter) cancel(checks []check, at time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, c := range checks {
		entries := l.buckets[c.key]
		for i := len(entries) - 1; i >= 0; i-- {
			if entries[i].Equal(at) {
				entries = append(entries[:i:i], entries[i+1:]...)
				break
			}
		}
		if len(entries) == 0 {
			delete(l.buckets, c.key)
		} else {
			l.buckets[c.key] = entries
		}
	}
}

// Record appends the current time to every bucket the execution touched.
// It never trims: a bucket may go over its max when callers record without
// reserving, and Allow keeps rejecting until the window drains.
func (l *Limiter) Record(exchangeA, exchangeB, symbol string) {
	if l == nil || !l.cfg.Enabled {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	cutoff := now.Add(-l.cfg.Window)
	for _, c := range l.checks(exchangeA, exchangeB, symbol) {
		l.buckets[c.key] = append(l.prune(c.key, cutoff), now)
	}
}

// Count returns the number of in-window entries for key.
func (l *Limiter) Count(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.prune(key, l.now().Add(-l.cfg.Window)))
}

type check struct {
	key string
	max int
}

func (l *Limiter) checks(exchangeA, exchangeB, symbol string) []check {
	out := make([]check, 0, 3)
	out = append(out, check{key: ExchangeKey(exchangeA), max: l.cfg.MaxPerExchange})
	if exchangeB != exchangeA {
		out = append(out, check{key: ExchangeKey(exchangeB), max: l.cfg.MaxPerExchange})
	}
	out = append(out, check{key: SymbolKey(symbol), max: l.cfg.MaxPerSymbol})
	return out
}

// prune drops entries older than cutoff. Caller holds mu.
func (l *Limiter) prune(key string, cutoff time.Time) []time.Time {
	entries := l.buckets[key]
	idx := 0
	for idx < len(entries) && !entries[idx].After(cutoff) {
		idx++
	}
	if idx > 0 {
		entries = append(entries[:0:0], entries[idx:]...)
		if len(entries) == 0 {
			delete(l.buckets, key)
		} else {
			l.buckets[key] = entries
		}
	}
	return entries
}
