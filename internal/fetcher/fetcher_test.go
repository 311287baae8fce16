package fetcher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"fundingflow/config"
	"fundingflow/internal/channel/rates"
	"fundingflow/internal/model"
	"fundingflow/internal/reader"
	"fundingflow/internal/repository"
)

type fakeReader struct {
	name    string
	records []model.FundingRateRecord
	err     error
	delay   time.Duration
}

func (f *fakeReader) Name() string { return f.name }

func (f *fakeReader) FetchFundingRates(ctx context.Context) ([]model.FundingRateRecord, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.records, f.err
}

func record(exchange, symbol string) model.FundingRateRecord {
	return model.FundingRateRecord{
		Exchange:             exchange,
		Symbol:               symbol,
		FundingRate:          decimal.New(1, -4),
		FundingIntervalHours: decimal.NewFromInt(8),
	}
}

func fetcherConfig(workers int, timeout time.Duration) *config.Config {
	return &config.Config{
		Fetcher: config.FetcherConfig{
			MaxWorkers:    workers,
			Timeout:       timeout,
			GlobalTimeout: 5 * time.Second,
		},
	}
}

func TestRunCollectsAllExchanges(t *testing.T) {
	readers := []reader.FundingReader{
		&fakeReader{name: "binance", records: []model.FundingRateRecord{record("binance", "BTC")}},
		&fakeReader{name: "bybit", records: []model.FundingRateRecord{record("bybit", "BTC"), record("bybit", "ETH")}},
		&fakeReader{name: "okx", err: errors.New("connection refused")},
	}

	repo := repository.New()
	f := New(fetcherConfig(2, time.Second), readers, rates.NewChannels(len(readers)), repo)

	if err := f.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if got := len(repo.Records()); got != 3 {
		t.Errorf("expected 3 records, got %d", got)
	}
	if repo.Succeeded() != 2 {
		t.Errorf("expected 2 successful sources, got %d", repo.Succeeded())
	}

	statuses := repo.SourceStatuses()
	if len(statuses) != 3 {
		t.Fatalf("expected 3 statuses, got %d", len(statuses))
	}
	for _, s := range statuses {
		if s.Exchange == "okx" && s.Error == "" {
			t.Errorf("okx failure should be recorded in its status")
		}
	}
}

func TestRunAdapterTimeout(t *testing.T) {
	readers := []reader.FundingReader{
		&fakeReader{name: "binance", records: []model.FundingRateRecord{record("binance", "BTC")}},
		&fakeReader{name: "gate", delay: time.Second},
	}

	repo := repository.New()
	f := New(fetcherConfig(2, 20*time.Millisecond), readers, rates.NewChannels(len(readers)), repo)

	if err := f.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// the slow exchange times out, the fast one still lands
	if repo.Succeeded() != 1 {
		t.Errorf("expected 1 successful source, got %d", repo.Succeeded())
	}
	if got := len(repo.Records()); got != 1 {
		t.Errorf("expected 1 record, got %d", got)
	}
}

func TestRunBoundedConcurrency(t *testing.T) {
	var readers []reader.FundingReader
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		readers = append(readers, &fakeReader{
			name:    name,
			delay:   10 * time.Millisecond,
			records: []model.FundingRateRecord{record(name, "BTC")},
		})
	}

	repo := repository.New()
	f := New(fetcherConfig(1, time.Second), readers, rates.NewChannels(len(readers)), repo)

	start := time.Now()
	if err := f.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// 5 fetches of 10ms through a single worker cannot finish faster than
	// the serialized total
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("fetches were not serialized: %s", elapsed)
	}
	if repo.Succeeded() != 5 {
		t.Errorf("expected 5 successful sources, got %d", repo.Succeeded())
	}
}

func TestRunNoReaders(t *testing.T) {
	f := New(fetcherConfig(1, time.Second), nil, rates.NewChannels(1), repository.New())
	if err := f.Run(context.Background()); err == nil {
		t.Fatalf("expected error when no exchanges are enabled")
	}
}

func TestRunFailedFetchWrapsAdapterError(t *testing.T) {
	readers := []reader.FundingReader{
		&fakeReader{name: "okx", err: errors.New("boom")},
	}

	repo := repository.New()
	f := New(fetcherConfig(1, time.Second), readers, rates.NewChannels(1), repo)
	if err := f.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	statuses := repo.SourceStatuses()
	if len(statuses) != 1 {
		t.Fatalf("expected 1 status")
	}
	if statuses[0].Error == "" {
		t.Errorf("error should be recorded")
	}
}
