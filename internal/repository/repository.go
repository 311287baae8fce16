// Package repository holds the in-memory working set of one collection
// run: every funding record that survived sanitization, grouped views
// over it, and the per-exchange fetch outcomes.
package repository

import (
	"sort"
	"sync"

	"fundingflow/internal/analysis"
	"fundingflow/internal/model"
	"fundingflow/logger"
)

// Stats summarizes the working set after all fetches have completed.
type Stats struct {
	TotalRecords         int `json:"total_records"`
	Exchanges            int `json:"exchanges"`
	UniqueSymbols        int `json:"unique_symbols"`
	MultiExchangeSymbols int `json:"multi_exchange_symbols"`
	DroppedRecords       int `json:"dropped_records"`
}

// Repository accumulates exchange results from concurrent fetches. All
// methods are safe for concurrent use.
type Repository struct {
	mu       sync.RWMutex
	records  []model.FundingRateRecord
	statuses []model.SourceStatus
	dropped  int
	log      *logger.Log
}

func New() *Repository {
	return &Repository{log: logger.GetLogger()}
}

// Add ingests one exchange's fetch result. Failed fetches contribute only
// a source status. Records are sanitized at this boundary: entries with
// missing identity fields or a non-positive settlement interval are
// dropped and counted, and every surviving record is enriched with its
// annualized rate so downstream consumers never recompute it.
func (r *Repository) Add(result model.ExchangeResult) {
	log := r.log.WithComponent("repository")

	status := model.SourceStatus{
		Exchange:   result.Exchange,
		FetchedAt:  result.FetchedAt,
		DurationMs: result.Duration.Milliseconds(),
	}

	if result.Err != nil {
		status.Error = result.Err.Error()
		r.mu.Lock()
		r.statuses = append(r.statuses, status)
		r.mu.Unlock()
		return
	}

	kept := make([]model.FundingRateRecord, 0, len(result.Records))
	dropped := 0
	for _, rec := range result.Records {
		if err := rec.Validate(); err != nil {
			dropped++
			log.WithError(err).WithFields(logger.Fields{
				"exchange": result.Exchange,
				"symbol":   rec.Symbol,
			}).Warn("dropping malformed record")
			continue
		}
		ann, err := analysis.Annualize(rec.FundingRate, rec.FundingIntervalHours)
		if err != nil {
			dropped++
			log.WithError(err).WithFields(logger.Fields{
				"exchange": rec.Exchange,
				"symbol":   rec.Symbol,
				"interval": rec.FundingIntervalHours.String(),
			}).Warn("dropping record with invalid settlement interval")
			continue
		}
		rec.AnnualizedRate = ann
		kept = append(kept, rec)
	}

	status.Records = len(kept)

	r.mu.Lock()
	r.records = append(r.records, kept...)
	r.statuses = append(r.statuses, status)
	r.dropped += dropped
	r.mu.Unlock()

	logger.IncrementRatesRead(result.Exchange, len(kept))
}

// Records returns a copy of every sanitized record collected so far.
func (r *Repository) Records() []model.FundingRateRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.FundingRateRecord, len(r.records))
	copy(out, r.records)
	return out
}

// GroupBySymbol buckets the collected records by canonical symbol. The
// groups map is freshly built on each call so callers may mutate it.
func (r *Repository) GroupBySymbol() map[string][]model.FundingRateRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	groups := make(map[string][]model.FundingRateRecord)
	for _, rec := range r.records {
		groups[rec.Symbol] = append(groups[rec.Symbol], rec)
	}
	return groups
}

// SourceStatuses returns the per-exchange fetch outcomes ordered by
// exchange name.
func (r *Repository) SourceStatuses() []model.SourceStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]model.SourceStatus, len(r.statuses))
	copy(out, r.statuses)
	sort.Slice(out, func(i, j int) bool { return out[i].Exchange < out[j].Exchange })
	return out
}

// Succeeded reports how many sources delivered records without error.
func (r *Repository) Succeeded() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, s := range r.statuses {
		if s.Error == "" {
			n++
		}
	}
	return n
}

// Stats computes summary counts over the working set.
func (r *Repository) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	exchanges := make(map[string]struct{})
	symbolExchanges := make(map[string]map[string]struct{})
	for _, rec := range r.records {
		exchanges[rec.Exchange] = struct{}{}
		if symbolExchanges[rec.Symbol] == nil {
			symbolExchanges[rec.Symbol] = make(map[string]struct{})
		}
		symbolExchanges[rec.Symbol][rec.Exchange] = struct{}{}
	}

	multi := 0
	for _, venues := range symbolExchanges {
		if len(venues) > 1 {
			multi++
		}
	}

	return Stats{
		TotalRecords:         len(r.records),
		Exchanges:            len(exchanges),
		UniqueSymbols:        len(symbolExchanges),
		MultiExchangeSymbols: multi,
		DroppedRecords:       r.dropped,
	}
}
