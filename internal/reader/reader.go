// Package reader defines the per-exchange funding readers and the shared
// helpers they normalize through.
package reader

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"fundingflow/config"
	"fundingflow/internal/model"
)

// FundingReader fetches the current funding snapshot of one exchange. A
// single call covers every perpetual contract the venue lists.
type FundingReader interface {
	Name() string
	FetchFundingRates(ctx context.Context) ([]model.FundingRateRecord, error)
}

// Factory builds a reader from the application configuration.
type Factory func(cfg *config.Config) FundingReader

var factories = map[string]Factory{}

// Register makes a reader constructor available under the exchange name.
// Called from the exchange packages' init functions.
func Register(name string, f Factory) {
	factories[name] = f
}

// Build instantiates readers for the named exchanges. Unknown names are an
// error so a typo in an exchange filter fails loudly instead of silently
// shrinking coverage.
func Build(cfg *config.Config, names []string) ([]FundingReader, error) {
	readers := make([]FundingReader, 0, len(names))
	for _, name := range names {
		f, ok := factories[name]
		if !ok {
			return nil, fmt.Errorf("unknown exchange %q", name)
		}
		readers = append(readers, f(cfg))
	}
	return readers, nil
}

// NewHTTPClient builds an HTTP client from an exchange's connection pool
// settings and the fetcher timeout.
func NewHTTPClient(src config.ExchangeSourceConfig, timeout time.Duration) *http.Client {
	transport := &http.Transport{
		MaxIdleConns:        src.ConnectionPool.MaxIdleConns,
		MaxIdleConnsPerHost: src.ConnectionPool.MaxIdleConns,
		MaxConnsPerHost:     src.ConnectionPool.MaxConnsPerHost,
		IdleConnTimeout:     src.ConnectionPool.IdleConnTimeout,
		DisableCompression:  false,
	}
	return &http.Client{Transport: transport, Timeout: timeout}
}

// ParseOptionalDecimal parses s into a decimal pointer. Empty strings,
// unparseable values and non-positive values all come back nil: for mark
// prices and volumes a zero from the API means "not reported", and zero
// must never masquerade as a real quote.
func ParseOptionalDecimal(s string) *decimal.Decimal {
	if s == "" {
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil || d.Sign() <= 0 {
		return nil
	}
	return &d
}

// ParseMillisTime converts an epoch-milliseconds string to a UTC time
// pointer, nil when absent or zero.
func ParseMillisTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil || ms <= 0 {
		return nil
	}
	t := time.UnixMilli(ms).UTC()
	return &t
}

// NextFundingFallback estimates the next settlement time for venues that
// do not report one, assuming settlements aligned to the UTC wall clock.
// Eight-hour contracts settle at 00/08/16, four-hour contracts every four
// hours and hourly contracts at the top of each hour.
func NextFundingFallback(now time.Time, intervalHours int) time.Time {
	switch intervalHours {
	case 1, 4, 8:
	default:
		intervalHours = 8
	}

	now = now.UTC()
	step := time.Duration(intervalHours) * time.Hour
	day := now.Truncate(24 * time.Hour)
	next := day
	for !next.After(now) {
		next = next.Add(step)
	}
	return next
}
