package models

import (
	"errors"
	"fmt"
)

type SortKey string

const (
	SortByNetROI    SortKey = "net_roi_pct"
	SortByNetProfit SortKey = "net_profit_usd"
)

type SortDir string

const (
	SortAsc  SortDir = "asc"
	SortDesc SortDir = "desc"
)

// ErrInvalidFilters is returned for malformed filter configuration or patches.
var ErrInvalidFilters = errors.New("invalid filters")

// Filters is the mutable runtime filtering configuration applied to every scan.
type Filters struct {
	MinNetROIPct float64 `json:"min_net_roi_pct" yaml:"min_net_roi_pct"`
	MaxNetROIPct float64 `json:"max_net_roi_pct" yaml:"max_net_roi_pct"`
	MinNetUSD    float64 `json:"min_net_usd" yaml:"min_net_usd"`
	TopK         int     `json:"top_k" yaml:"top_k"`
	SortKey      SortKey `json:"sort_key" yaml:"sort_key"`
	SortDir      SortDir `json:"sort_dir" yaml:"sort_dir"`
}

// DefaultFilters keeps everything profitable, best ROI first.
func DefaultFilters() Filters {
	return Filters{
		MinNetROIPct: 0,
		MaxNetROIPct: 100,
		MinNetUSD:    0,
		TopK:         10,
		SortKey:      SortByNetROI,
		SortDir:      SortDesc,
	}
}

func (f Filters) Validate() error {
	if f.TopK < 1 {
		return fmt.Errorf("%w: top_k must be >= 1, got %d", ErrInvalidFilters, f.TopK)
	}
	switch f.SortKey {
	case SortByNetROI, SortByNetProfit:
	default:
		return fmt.Errorf("%w: unknown sort_key %q", ErrInvalidFilters, f.SortKey)
	}
	switch f.SortDir {
	case SortAsc, SortDesc:
	default:
		return fmt.Errorf("%w: unknown sort_dir %q", ErrInvalidFilters, f.SortDir)
	}
	if f.MinNetROIPct > f.MaxNetROIPct {
		return fmt.Errorf("%w: min_net_roi_pct %.4f exceeds max_net_roi_pct %.4f", ErrInvalidFilters, f.MinNetROIPct, f.MaxNetROIPct)
	}
	return nil
}

// FiltersPatch carries a partial update; nil fields are left unchanged.
type FiltersPatch struct {
	MinNetROIPct *float64 `json:"min_net_roi_pct,omitempty"`
	MaxNetROIPct *float64 `json:"max_net_roi_pct,omitempty"`
	MinNetUSD    *float64 `json:"min_net_usd,omitempty"`
	TopK         *int     `json:"top_k,omitempty"`
	SortKey      *SortKey `json:"sort_key,omitempty"`
	SortDir      *SortDir `json:"sort_dir,omitempty"`
}

// Apply returns f with the patch applied, or an error if the result is invalid.
func (p FiltersPatch) Apply(f Filters) (Filters, error) {
	if p.MinNetROIPct != nil {
		f.MinNetROIPct = *p.MinNetROIPct
	}
	if p.MaxNetROIPct != nil {
		f.MaxNetROIPct = *p.MaxNetROIPct
	}
	if p.MinNetUSD != nil {
		f.MinNetUSD = *p.MinNetUSD
	}
	if p.TopK != nil {
		f.TopK = *p.TopK
	}
	if p.SortKey != nil {
		f.SortKey = *p.SortKey
	}
	if p.SortDir != nil {
		f.SortDir = *p.SortDir
	}
	if err := f.Validate(); err != nil {
		return Filters{}, err
	}
	return f, nil
}
