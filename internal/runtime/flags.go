// Package runtime holds the hot-reloadable operator flags and the derived
// counters the engine reports. Neither is a source of truth for decisions
// beyond the current tick.
package runtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hetulpatel/cexarb/internal/models"
)

const DefaultIntervalSeconds = 30

// Flags is an immutable snapshot of operator-controlled state. Callers load
// one per tick and pass it down rather than reading shared globals.
type Flags struct {
	GlobalStop      bool           `json:"global_stop"`
	ArbOn           bool           `json:"arb_on"`
	AutoMode        bool           `json:"auto_mode"`
	IntervalSeconds int            `json:"interval_seconds"`
	Filters         models.Filters `json:"filters"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

func DefaultFlags() Flags {
	return Flags{
		ArbOn:           true,
		IntervalSeconds: DefaultIntervalSeconds,
		Filters:         models.DefaultFilters(),
	}
}

func (f Flags) Interval() time.Duration {
	if f.IntervalSeconds <= 0 {
		return DefaultIntervalSeconds * time.Second
	}
	return time.Duration(f.IntervalSeconds) * time.Second
}

func (f Flags) Validate() error {
	if f.IntervalSeconds < 0 {
		return fmt.Errorf("interval_seconds must be >= 0, got %d", f.IntervalSeconds)
	}
	return f.Filters.Validate()
}

// Store persists Flags between processes. Load on an empty store returns
// the store's defaults, never an error.
type Store interface {
	Load(ctx context.Context) (Flags, error)
	Save(ctx context.Context, flags Flags) error
}

// Update applies fn to the current flags and saves the result if it is valid.
func Update(ctx context.Context, store Store, fn func(*Flags) error) (Flags, error) {
	flags, err := store.Load(ctx)
	if err != nil {
		return Flags{}, fmt.Errorf("load flags: %w", err)
	}
	if err := fn(&flags); err != nil {
		return Flags{}, err
	}
	if err := flags.Validate(); err != nil {
		return Flags{}, err
	}
	flags.UpdatedAt = time.Now().UTC()
	if err := store.Save(ctx, flags); err != nil {
		return Flags{}, fmt.Errorf("save flags: %w", err)
	}
	return flags, nil
}

// MemoryStore keeps flags in process.
type MemoryStore struct {
	mu    sync.RWMutex
	flags Flags
}

func NewMemoryStore(initial Flags) *MemoryStore {
	return &MemoryStore{flags: initial}
}

func (s *MemoryStore) Load(context.Context) (Flags, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.flags, nil
}

func (s *MemoryStore) Save(_ context.Context, flags Flags) error {
	s.mu.Lock()
	s.flags = flags
	s.mu.Unlock()
	return nil
}
