// Package binance reads perpetual funding data from Binance USDT-margined
// futures.
package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	futures "github.com/adshao/go-binance/v2/futures"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"fundingflow/config"
	"fundingflow/internal/model"
	"fundingflow/internal/reader"
	"fundingflow/internal/symbols"
	"fundingflow/logger"
)

const defaultBaseURL = "https://fapi.binance.com"

func init() {
	reader.Register("binance", func(cfg *config.Config) reader.FundingReader {
		return NewReader(cfg)
	})
}

// Reader fetches funding rates, settlement intervals and 24h volumes for
// every USDT perpetual on Binance futures.
type Reader struct {
	config  *config.Config
	client  *futures.Client
	baseURL string
	limiter *rate.Limiter
	log     *logger.Log
}

// NewReader creates a Binance funding reader using the binance-go client.
func NewReader(cfg *config.Config) *Reader {
	log := logger.GetLogger()
	src := cfg.Source.Binance

	httpClient := reader.NewHTTPClient(src, cfg.Fetcher.Timeout)

	client := futures.NewClient("", "")
	client.HTTPClient = httpClient

	baseURL := strings.TrimSuffix(src.URL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	client.SetApiEndpoint(baseURL)

	rps := src.RateLimit.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}
	burst := src.RateLimit.BurstSize
	if burst <= 0 {
		burst = 1
	}

	log.WithComponent("binance_reader").WithFields(logger.Fields{
		"base_url": baseURL,
		"timeout":  cfg.Fetcher.Timeout,
	}).Info("binance funding reader initialized")

	return &Reader{
		config:  cfg,
		client:  client,
		baseURL: baseURL,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		log:     log,
	}
}

func (r *Reader) Name() string { return "binance" }

// FetchFundingRates pulls the premium index for all symbols, joins it with
// per-symbol settlement intervals and 24h quote volumes, and normalizes
// the result. Symbols not settled in USDT are skipped.
func (r *Reader) FetchFundingRates(ctx context.Context) ([]model.FundingRateRecord, error) {
	log := r.log.WithComponent("binance_reader")

	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	start := time.Now()
	premiums, err := r.client.NewPremiumIndexService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("premium index: %w", err)
	}
	logger.LogPerformanceEntry(log, "binance_reader", "premium_index", time.Since(start), nil)

	intervals, err := r.fetchFundingIntervals(ctx)
	if err != nil {
		// Settlement cadence defaults to 8h, so a failed lookup degrades
		// rather than aborts the whole fetch.
		log.WithError(err).Warn("failed to fetch funding intervals, assuming 8h")
		intervals = map[string]int{}
	}

	volumes, err := r.fetchQuoteVolumes(ctx)
	if err != nil {
		log.WithError(err).Warn("failed to fetch 24h volumes")
		volumes = map[string]*decimal.Decimal{}
	}

	records := make([]model.FundingRateRecord, 0, len(premiums))
	for _, p := range premiums {
		if !strings.HasSuffix(p.Symbol, "USDT") {
			continue
		}

		fundingRate, err := decimal.NewFromString(p.LastFundingRate)
		if err != nil {
			log.WithFields(logger.Fields{"symbol": p.Symbol}).Debug("skipping symbol without funding rate")
			continue
		}

		intervalHours := 8
		if h, ok := intervals[p.Symbol]; ok && h > 0 {
			intervalHours = h
		}

		var nextFunding *time.Time
		if p.NextFundingTime > 0 {
			t := time.UnixMilli(p.NextFundingTime).UTC()
			nextFunding = &t
		} else {
			t := reader.NextFundingFallback(time.Now(), intervalHours)
			nextFunding = &t
		}

		records = append(records, model.FundingRateRecord{
			Exchange:             "binance",
			Symbol:               symbols.ToCanonical("binance", p.Symbol),
			FundingRate:          fundingRate,
			FundingIntervalHours: decimal.NewFromInt(int64(intervalHours)),
			MarkPrice:            reader.ParseOptionalDecimal(p.MarkPrice),
			Volume24hQuote:       volumes[p.Symbol],
			NextFundingTime:      nextFunding,
		})
	}

	log.WithFields(logger.Fields{"records": len(records)}).Info("binance funding rates fetched")
	return records, nil
}

type fundingInfoEntry struct {
	Symbol               string `json:"symbol"`
	FundingIntervalHours int    `json:"fundingIntervalHours"`
}

// fetchFundingIntervals reads /fapi/v1/fundingInfo, which lists only the
// symbols that deviate from the default 8h cadence.
func (r *Reader) fetchFundingIntervals(ctx context.Context) (map[string]int, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/fapi/v1/fundingInfo", nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.client.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("funding info returned status %d", resp.StatusCode)
	}

	var entries []fundingInfoEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, err
	}

	intervals := make(map[string]int, len(entries))
	for _, e := range entries {
		intervals[e.Symbol] = e.FundingIntervalHours
	}
	return intervals, nil
}

func (r *Reader) fetchQuoteVolumes(ctx context.Context) (map[string]*decimal.Decimal, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	stats, err := r.client.NewListPriceChangeStatsService().Do(ctx)
	if err != nil {
		return nil, err
	}

	volumes := make(map[string]*decimal.Decimal, len(stats))
	for _, s := range stats {
		volumes[s.Symbol] = reader.ParseOptionalDecimal(s.QuoteVolume)
	}
	return volumes, nil
}
