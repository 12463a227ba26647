// Package policy holds the pure functions applied to a scan's opportunities:
// threshold filtering, ranking, truncation and single-pick selection.
package policy

import (
	"cmp"
	"slices"

	"github.com/hetulpatel/cexarb/internal/models"
)

const (
	ReasonROIAboveThreshold models.RejectReason = "roi_above_threshold"
	ReasonRankTruncated     models.RejectReason = "rank_truncated"
)

// Rejection pairs a dropped opportunity with why it was dropped.
type Rejection struct {
	Opportunity models.Opportunity  `json:"opportunity"`
	Reason      models.RejectReason `json:"reason"`
}

// Check returns the reason o fails f, or ReasonNone if it passes.
func Check(o models.Opportunity, f models.Filters) models.RejectReason {
	switch {
	case o.NetROIPct < f.MinNetROIPct:
		return models.ReasonROIBelowThreshold
	case o.NetROIPct > f.MaxNetROIPct:
		return ReasonROIAboveThreshold
	case o.NetProfitUSD < f.MinNetUSD:
		return models.ReasonProfitBelowThreshold
	}
	return models.ReasonNone
}

// Apply splits opps into those clearing the thresholds and those that do not.
func Apply(opps []models.Opportunity, f models.Filters) ([]models.Opportunity, []Rejection) {
	kept := make([]models.Opportunity, 0, len(opps))
	var rejected []Rejection
	for _, o := range opps {
		if reason := Check(o, f); reason != models.ReasonNone {
			rejected = append(rejected, Rejection{Opportunity: o, Reason: reason})
			continue
		}
		kept = append(kept, o)
	}
	return kept, rejected
}

// Sort orders opps in place by key and direction. Ties keep their input order.
func Sort(opps []models.Opportunity, key models.SortKey, dir models.SortDir) {
	value := func(o models.Opportunity) float64 {
		if key == models.SortByNetProfit {
			return o.NetProfitUSD
		}
		return o.NetROIPct
	}
	slices.SortStableFunc(opps, func(a, b models.Opportunity) int {
		c := cmp.Compare(value(a), value(b))
		if dir == models.SortDesc {
			return -c
		}
		return c
	})
}

// TopK truncates opps to k entries and returns the overflow.
func TopK(opps []models.Opportunity, k int) ([]models.Opportunity, []models.Opportunity) {
	if k < 1 {
		k = 1
	}
	if len(opps) <= k {
		return opps, nil
	}
	return opps[:k], opps[k:]
}

// Rank applies thresholds, sorts and truncates. Everything not returned in
// kept shows up in rejected with its reason.
func Rank(opps []models.Opportunity, f models.Filters) ([]models.Opportunity, []Rejection) {
	kept, rejected := Apply(opps, f)
	Sort(kept, f.SortKey, f.SortDir)
	kept, overflow := TopK(kept, f.TopK)
	for _, o := range overflow {
		rejected = append(rejected, Rejection{Opportunity: o, Reason: ReasonRankTruncated})
	}
	return kept, rejected
}

// Select picks the first ranked opportunity if it still clears the thresholds.
func Select(ranked []models.Opportunity, f models.Filters) (models.Opportunity, bool) {
	if len(ranked) == 0 {
		return models.Opportunity{}, false
	}
	first := ranked[0]
	if Check(first, f) != models.ReasonNone {
		return models.Opportunity{}, false
	}
	return first, true
}
