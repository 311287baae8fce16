package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// FundingRateRecord is one venue's funding snapshot for one canonical
// symbol. FundingRate is always present; every other market field is
// optional and nil means "unknown" — adapters must never substitute zero
// for data the venue did not report, since zero volume or zero price would
// corrupt downstream filtering.
type FundingRateRecord struct {
	Exchange             string           `json:"exchange"`
	Symbol               string           `json:"symbol"`
	FundingRate          decimal.Decimal  `json:"funding_rate"`
	FundingIntervalHours decimal.Decimal  `json:"funding_interval_hours"`
	MarkPrice            *decimal.Decimal `json:"mark_price,omitempty"`
	Volume24hQuote       *decimal.Decimal `json:"volume_24h_quote,omitempty"`
	NextFundingTime      *time.Time       `json:"next_funding_time,omitempty"`
	MaxOrderSize         *decimal.Decimal `json:"max_order_size,omitempty"`

	// AnnualizedRate is derived once when the record enters the
	// repository and never recomputed.
	AnnualizedRate decimal.Decimal `json:"annualized_rate"`
}

// Validate checks the identity fields every consumer keys on. A record
// failing validation is dropped at the repository boundary.
func (r FundingRateRecord) Validate() error {
	if r.Exchange == "" {
		return fmt.Errorf("%w: missing exchange", ErrMalformedRecord)
	}
	if r.Symbol == "" {
		return fmt.Errorf("%w: missing symbol", ErrMalformedRecord)
	}
	return nil
}

// ExchangeResult is the outcome of one adapter fetch for a run. A failed
// source carries Err and zero records; it degrades coverage without
// failing the run.
type ExchangeResult struct {
	Exchange  string
	Records   []FundingRateRecord
	Err       error
	FetchedAt time.Time
	Duration  time.Duration
}

// Success reports whether the adapter returned data.
func (r ExchangeResult) Success() bool {
	return r.Err == nil
}

// SourceStatus summarizes one exchange's contribution to a run for the
// report output.
type SourceStatus struct {
	Exchange   string        `json:"exchange"`
	Records    int           `json:"records"`
	Error      string        `json:"error,omitempty"`
	DurationMs int64         `json:"duration_ms"`
	FetchedAt  time.Time     `json:"fetched_at"`
	Elapsed    time.Duration `json:"-"`
}
