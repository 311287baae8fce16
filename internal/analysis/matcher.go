package analysis

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"fundingflow/internal/model"
	"fundingflow/logger"
)

// Params are the filter thresholds applied to every candidate pair. Rates
// and spreads are decimal fractions (0.0001 = 0.01%).
type Params struct {
	// MinSpread is the smallest acceptable funding spread between the two
	// legs.
	MinSpread decimal.Decimal

	// MaxPriceSpreadPct rejects pairs whose mark prices diverge by more
	// than this relative fraction. Diverging prices break the
	// delta-neutral assumption: the two legs must track the same
	// underlying within tolerance.
	MaxPriceSpreadPct decimal.Decimal

	// MinVolume rejects pairs whose thinner leg traded less than this
	// much quote volume in 24h.
	MinVolume decimal.Decimal

	// MaxTimeToFunding rejects pairs whose soonest settlement is further
	// away than this many hours. Funding captured too far out is stale by
	// the time it pays. Zero disables the filter.
	MaxTimeToFunding decimal.Decimal

	// StrictCoverage rejects pairs with unknown price or volume data
	// instead of skipping those filters. The permissive default matches
	// the many venues that simply do not report these fields.
	StrictCoverage bool
}

// DefaultParams returns the standard thresholds: 0.01% minimum funding
// spread, 1% maximum price divergence, $100k minimum 24h volume, 24h
// maximum time to funding.
func DefaultParams() Params {
	return Params{
		MinSpread:         decimal.New(1, -4),
		MaxPriceSpreadPct: decimal.New(1, -2),
		MinVolume:         decimal.NewFromInt(100_000),
		MaxTimeToFunding:  decimal.NewFromInt(24),
	}
}

// Matcher finds, per symbol, the single best long/short venue pair.
type Matcher struct {
	params Params
	now    func() time.Time
	log    *logger.Log
}

// NewMatcher creates a matcher with the given thresholds.
func NewMatcher(params Params) *Matcher {
	return &Matcher{params: params, now: time.Now, log: logger.GetLogger()}
}

// Match scans the per-symbol groups and returns every pair that survives
// the spread, price-divergence and volume filters. It selects one pair per
// symbol: long on the lowest funding rate, short on the highest. Symbols
// on fewer than two exchanges yield nothing. The input is not mutated.
func (m *Matcher) Match(groups map[string][]model.FundingRateRecord) []model.ArbitrageOpportunity {
	log := m.log.WithComponent("matcher")

	syms := make([]string, 0, len(groups))
	for sym := range groups {
		syms = append(syms, sym)
	}
	sort.Strings(syms)

	opportunities := make([]model.ArbitrageOpportunity, 0, len(syms))
	for _, sym := range syms {
		opp, ok := m.matchSymbol(sym, groups[sym])
		if !ok {
			continue
		}
		opportunities = append(opportunities, opp)
	}

	log.WithFields(logger.Fields{
		"symbols":       len(groups),
		"opportunities": len(opportunities),
	}).Info("matching completed")

	return opportunities
}

func (m *Matcher) matchSymbol(sym string, records []model.FundingRateRecord) (model.ArbitrageOpportunity, bool) {
	long, short, ok := bestPair(records)
	if !ok {
		return model.ArbitrageOpportunity{}, false
	}

	spread := short.FundingRate.Sub(long.FundingRate)
	if spread.Cmp(m.params.MinSpread) < 0 {
		return model.ArbitrageOpportunity{}, false
	}

	priceSpread := priceSpreadPct(long.MarkPrice, short.MarkPrice)
	if priceSpread != nil {
		if priceSpread.Cmp(m.params.MaxPriceSpreadPct) > 0 {
			m.log.WithComponent("matcher").WithFields(logger.Fields{
				"symbol":           sym,
				"price_spread_pct": priceSpread.String(),
			}).Debug("rejected on price divergence")
			return model.ArbitrageOpportunity{}, false
		}
	} else if m.params.StrictCoverage {
		return model.ArbitrageOpportunity{}, false
	}

	volume := minVolume(long.Volume24hQuote, short.Volume24hQuote)
	if volume != nil {
		if volume.Cmp(m.params.MinVolume) < 0 {
			m.log.WithComponent("matcher").WithFields(logger.Fields{
				"symbol":     sym,
				"min_volume": volume.String(),
			}).Debug("rejected on volume")
			return model.ArbitrageOpportunity{}, false
		}
	} else if m.params.StrictCoverage {
		return model.ArbitrageOpportunity{}, false
	}

	timeToFunding := timeToFundingHours(m.now().UTC(), long.NextFundingTime, short.NextFundingTime)
	if m.params.MaxTimeToFunding.Sign() > 0 && timeToFunding.Cmp(m.params.MaxTimeToFunding) > 0 {
		m.log.WithComponent("matcher").WithFields(logger.Fields{
			"symbol":                sym,
			"time_to_funding_hours": timeToFunding.String(),
		}).Debug("rejected on time to funding")
		return model.ArbitrageOpportunity{}, false
	}

	return model.ArbitrageOpportunity{
		Symbol:             sym,
		LongExchange:       long.Exchange,
		LongRate:           long.FundingRate,
		ShortExchange:      short.Exchange,
		ShortRate:          short.FundingRate,
		FundingSpread:      spread,
		AnnualizedSpread:   short.AnnualizedRate.Sub(long.AnnualizedRate),
		PriceSpreadPct:     priceSpread,
		MinVolume:          volume,
		TimeToFundingHours: timeToFunding,
	}, true
}

// bestPair returns the records with the lowest and highest funding rate,
// which maximizes short - long over all orderings with long <= short.
// Ties are broken toward the lexically smaller exchange name so repeated
// runs over identical data are deterministic. The short leg is always
// taken from a different exchange than the long leg, so a symbol where
// every venue reports the same rate still forms a zero-spread pair for
// the min-spread filter to decide on.
func bestPair(records []model.FundingRateRecord) (long, short model.FundingRateRecord, ok bool) {
	if len(records) < 2 {
		return long, short, false
	}

	long = records[0]
	for _, rec := range records[1:] {
		if c := rec.FundingRate.Cmp(long.FundingRate); c < 0 || (c == 0 && rec.Exchange < long.Exchange) {
			long = rec
		}
	}

	found := false
	for _, rec := range records {
		if rec.Exchange == long.Exchange {
			continue
		}
		if !found {
			short, found = rec, true
			continue
		}
		if c := rec.FundingRate.Cmp(short.FundingRate); c > 0 || (c == 0 && rec.Exchange < short.Exchange) {
			short = rec
		}
	}
	return long, short, found
}

// priceSpreadPct is the absolute mark-price difference relative to the
// two legs' average, or nil when either price is unknown.
func priceSpreadPct(a, b *decimal.Decimal) *decimal.Decimal {
	if a == nil || b == nil || a.Sign() <= 0 || b.Sign() <= 0 {
		return nil
	}
	avg := a.Add(*b).Div(decimal.NewFromInt(2))
	spread := a.Sub(*b).Abs().Div(avg)
	return &spread
}

// minVolume is the thinner leg's 24h quote volume, or nil when either
// leg's volume is unknown — an unknown leg must not be treated as deep.
func minVolume(a, b *decimal.Decimal) *decimal.Decimal {
	if a == nil || b == nil {
		return nil
	}
	v := decimal.Min(*a, *b)
	return &v
}

// timeToFundingHours is the smallest positive distance from now to either
// leg's next settlement. Past timestamps are ignored; with no usable
// timestamp at all the standard 8h cadence is assumed.
func timeToFundingHours(now time.Time, legs ...*time.Time) decimal.Decimal {
	var best decimal.Decimal
	found := false
	for _, t := range legs {
		if t == nil {
			continue
		}
		diff := t.Sub(now)
		if diff <= 0 {
			continue
		}
		h := decimal.NewFromFloat(diff.Hours()).Round(4)
		if !found || h.Cmp(best) < 0 {
			best = h
			found = true
		}
	}
	if !found {
		return decimal.NewFromInt(8)
	}
	return best
}
