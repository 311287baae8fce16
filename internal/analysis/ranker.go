package analysis

import (
	"sort"

	"fundingflow/internal/model"
)

// SortKey selects the metric opportunities are ranked by.
type SortKey string

const (
	// SortByFundingSpread orders by raw per-settlement spread, largest
	// first. This is the default.
	SortByFundingSpread SortKey = "funding_spread"
	// SortByAnnualizedSpread orders by interval-adjusted yearly spread,
	// largest first. It can reorder pairs whose venues settle on
	// different cadences.
	SortByAnnualizedSpread SortKey = "annualized_spread"
)

// ParseSortKey maps a user-supplied key to a SortKey, falling back to
// funding spread for anything unrecognized.
func ParseSortKey(s string) SortKey {
	if SortKey(s) == SortByAnnualizedSpread {
		return SortByAnnualizedSpread
	}
	return SortByFundingSpread
}

// Rank orders opportunities by the chosen key, descending, with ties
// broken by symbol so output is deterministic. topN > 0 truncates the
// result; topN <= 0 returns everything. The input slice is not modified.
func Rank(opportunities []model.ArbitrageOpportunity, key SortKey, topN int) []model.ArbitrageOpportunity {
	ranked := make([]model.ArbitrageOpportunity, len(opportunities))
	copy(ranked, opportunities)

	sort.SliceStable(ranked, func(i, j int) bool {
		var c int
		switch key {
		case SortByAnnualizedSpread:
			c = ranked[i].AnnualizedSpread.Cmp(ranked[j].AnnualizedSpread)
		default:
			c = ranked[i].FundingSpread.Cmp(ranked[j].FundingSpread)
		}
		if c != 0 {
			return c > 0
		}
		return ranked[i].Symbol < ranked[j].Symbol
	})

	if topN > 0 && topN < len(ranked) {
		ranked = ranked[:topN]
	}
	return ranked
}
