// Package fetcher fans funding fetches out across exchanges and funnels
// the results through a single collector into the repository.
package fetcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"fundingflow/config"
	"fundingflow/internal/channel/rates"
	"fundingflow/internal/metrics"
	"fundingflow/internal/model"
	"fundingflow/internal/reader"
	"fundingflow/internal/repository"
	"fundingflow/logger"
)

// Fetcher runs one collection round: every reader fetches under its own
// timeout, at most MaxWorkers at a time, and exactly one collector
// goroutine writes into the repository.
type Fetcher struct {
	config   *config.Config
	readers  []reader.FundingReader
	channels *rates.Channels
	repo     *repository.Repository

	mu      sync.RWMutex
	running bool
	log     *logger.Log
}

// New creates a fetcher over the given readers.
func New(cfg *config.Config, readers []reader.FundingReader, ch *rates.Channels, repo *repository.Repository) *Fetcher {
	return &Fetcher{
		config:   cfg,
		readers:  readers,
		channels: ch,
		repo:     repo,
		log:      logger.GetLogger(),
	}
}

// Run performs one fetch round and blocks until every exchange has either
// delivered or failed. A partial outcome is not an error: per-exchange
// failures are recorded as source statuses and the round carries on with
// whatever arrived.
func (f *Fetcher) Run(ctx context.Context) error {
	f.mu.Lock()
	if f.running {
		f.mu.Unlock()
		return fmt.Errorf("fetcher already running")
	}
	f.running = true
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.running = false
		f.mu.Unlock()
	}()

	log := f.log.WithComponent("fetcher")

	if len(f.readers) == 0 {
		return fmt.Errorf("no exchanges enabled")
	}

	globalTimeout := f.config.Fetcher.GlobalTimeout
	if globalTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, globalTimeout)
		defer cancel()
	}

	log.WithFields(logger.Fields{
		"exchanges":   len(f.readers),
		"max_workers": f.config.Fetcher.MaxWorkers,
		"timeout":     f.config.Fetcher.Timeout.String(),
	}).Info("starting fetch round")

	collectorDone := make(chan struct{})
	go f.collect(collectorDone)

	maxWorkers := f.config.Fetcher.MaxWorkers
	if maxWorkers <= 0 {
		maxWorkers = len(f.readers)
	}
	sem := make(chan struct{}, maxWorkers)

	var wg sync.WaitGroup
	for _, rd := range f.readers {
		wg.Add(1)
		go func(rd reader.FundingReader) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				f.deliver(ctx, model.ExchangeResult{
					Exchange:  rd.Name(),
					Err:       &model.AdapterError{Exchange: rd.Name(), Err: ctx.Err()},
					FetchedAt: time.Now().UTC(),
				})
				return
			}

			f.deliver(ctx, f.fetchOne(ctx, rd))
		}(rd)
	}

	wg.Wait()
	f.channels.Close()
	<-collectorDone

	log.WithFields(logger.Fields{
		"succeeded": f.repo.Succeeded(),
		"exchanges": len(f.readers),
	}).Info("fetch round completed")
	return nil
}

// fetchOne runs a single exchange fetch under the per-adapter timeout.
func (f *Fetcher) fetchOne(ctx context.Context, rd reader.FundingReader) model.ExchangeResult {
	log := f.log.WithComponent("fetcher").WithFields(logger.Fields{"exchange": rd.Name()})

	fetchCtx := ctx
	if f.config.Fetcher.Timeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, f.config.Fetcher.Timeout)
		defer cancel()
	}

	start := time.Now()
	records, err := rd.FetchFundingRates(fetchCtx)
	result := model.ExchangeResult{
		Exchange:  rd.Name(),
		Records:   records,
		FetchedAt: start.UTC(),
		Duration:  time.Since(start),
	}
	if err != nil {
		result.Err = &model.AdapterError{Exchange: rd.Name(), Err: err}
		result.Records = nil
		log.WithError(err).Error("exchange fetch failed")
	} else {
		logger.LogPerformanceEntry(log, "fetcher", "exchange_fetch", result.Duration, logger.Fields{
			"exchange": rd.Name(),
			"records":  len(records),
		})
	}
	return result
}

// deliver hands a result to the collector. The channel is buffered for one
// result per exchange, so a drop can only mean misconfiguration; the
// result is then written to the repository directly rather than lost.
func (f *Fetcher) deliver(ctx context.Context, result model.ExchangeResult) {
	if f.channels.SendResult(ctx, result) {
		return
	}
	metrics.EmitDropMetric(f.log, metrics.DropMetricResult, result.Exchange, "collector")
	f.repo.Add(result)
}

// collect is the single writer into the repository.
func (f *Fetcher) collect(done chan<- struct{}) {
	defer close(done)

	log := f.log.WithComponent("fetcher_collector")
	for result := range f.channels.Results {
		if result.Success() {
			metrics.IncrementFetchSuccess(result.Exchange)
			metrics.AddRatesCollected(result.Exchange, len(result.Records))
			logger.LogDataFlowEntry(log, result.Exchange, "repository", len(result.Records), "funding_rates")
		} else {
			metrics.IncrementFetchError(result.Exchange)
		}
		f.repo.Add(result)
	}
}
