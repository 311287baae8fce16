package model

import "github.com/shopspring/decimal"

// ArbitrageOpportunity is the single best long/short venue pair for one
// symbol. LongRate <= ShortRate always holds: the long leg is taken on the
// venue with the lower (or more negative) funding rate, so FundingSpread is
// non-negative by construction.
type ArbitrageOpportunity struct {
	Symbol           string           `json:"symbol"`
	LongExchange     string           `json:"long_exchange"`
	LongRate         decimal.Decimal  `json:"long_rate"`
	ShortExchange    string           `json:"short_exchange"`
	ShortRate        decimal.Decimal  `json:"short_rate"`
	FundingSpread    decimal.Decimal  `json:"funding_spread"`
	AnnualizedSpread decimal.Decimal  `json:"annualized_spread"`
	PriceSpreadPct   *decimal.Decimal `json:"price_spread_pct,omitempty"`
	MinVolume        *decimal.Decimal `json:"min_volume,omitempty"`

	// TimeToFundingHours is the soonest settlement among the two legs,
	// defaulted to 8 when neither venue reported a next funding time.
	TimeToFundingHours decimal.Decimal `json:"time_to_funding_hours"`
}
