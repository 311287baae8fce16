// Package okx reads perpetual funding data from OKX USDT-margined swaps.
//
// OKX has no bulk funding endpoint, so the reader lists live swaps first
// and then fans out one funding-rate request per instrument under a
// bounded number of workers.
package okx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	appconfig "fundingflow/config"
	"fundingflow/internal/model"
	"fundingflow/internal/reader"
	"fundingflow/internal/symbols"
	"fundingflow/logger"
)

const (
	defaultBaseURL = "https://www.okx.com"
	fundingWorkers = 8
)

func init() {
	reader.Register("okx", func(cfg *appconfig.Config) reader.FundingReader {
		return NewReader(cfg)
	})
}

// Reader fetches funding rates for live USDT swaps on OKX.
type Reader struct {
	config  *appconfig.Config
	client  *http.Client
	baseURL string
	limiter *rate.Limiter
	log     *logger.Log
}

// NewReader creates an OKX funding reader.
func NewReader(cfg *appconfig.Config) *Reader {
	log := logger.GetLogger()
	src := cfg.Source.Okx

	baseURL := strings.TrimSuffix(src.URL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	client := reader.NewHTTPClient(src, cfg.Fetcher.Timeout)
	client.Transport = userAgentTransport{agent: "fundingflow/1.0", base: client.Transport}

	rps := src.RateLimit.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}
	burst := src.RateLimit.BurstSize
	if burst <= 0 {
		burst = 1
	}

	log.WithComponent("okx_reader").WithFields(logger.Fields{
		"base_url": baseURL,
		"timeout":  cfg.Fetcher.Timeout,
	}).Info("okx funding reader initialized")

	return &Reader{
		config:  cfg,
		client:  client,
		baseURL: baseURL,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		log:     log,
	}
}

func (r *Reader) Name() string { return "okx" }

type envelope struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

type instrument struct {
	InstID    string `json:"instId"`
	SettleCcy string `json:"settleCcy"`
	State     string `json:"state"`
}

type fundingRateEntry struct {
	InstID          string `json:"instId"`
	FundingRate     string `json:"fundingRate"`
	FundingTime     string `json:"fundingTime"`
	NextFundingTime string `json:"nextFundingTime"`
}

type ticker struct {
	InstID    string `json:"instId"`
	Last      string `json:"last"`
	VolCcy24h string `json:"volCcy24h"`
}

// FetchFundingRates lists live USDT swaps, loads tickers for prices and
// volumes, then fetches each instrument's funding rate concurrently.
func (r *Reader) FetchFundingRates(ctx context.Context) ([]model.FundingRateRecord, error) {
	log := r.log.WithComponent("okx_reader")

	instruments, err := r.fetchInstruments(ctx)
	if err != nil {
		return nil, err
	}

	tickers, err := r.fetchTickers(ctx)
	if err != nil {
		log.WithError(err).Warn("failed to fetch tickers, prices and volumes unknown")
		tickers = map[string]ticker{}
	}

	type fetchResult struct {
		instID string
		entry  *fundingRateEntry
	}

	jobs := make(chan string)
	results := make(chan fetchResult)
	var wg sync.WaitGroup

	workers := fundingWorkers
	if workers > len(instruments) {
		workers = len(instruments)
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for instID := range jobs {
				entry, err := r.fetchFundingRate(ctx, instID)
				if err != nil {
					log.WithError(err).WithFields(logger.Fields{"inst_id": instID}).Debug("funding rate fetch failed")
					entry = nil
				}
				select {
				case results <- fetchResult{instID: instID, entry: entry}:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, inst := range instruments {
			select {
			case jobs <- inst.InstID:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	entries := make(map[string]*fundingRateEntry, len(instruments))
	for res := range results {
		if res.entry != nil {
			entries[res.instID] = res.entry
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	records := make([]model.FundingRateRecord, 0, len(entries))
	for _, inst := range instruments {
		entry, ok := entries[inst.InstID]
		if !ok {
			continue
		}

		fundingRate, err := decimal.NewFromString(entry.FundingRate)
		if err != nil {
			continue
		}

		intervalHours := intervalFromTimes(entry.FundingTime, entry.NextFundingTime)

		nextFunding := reader.ParseMillisTime(entry.NextFundingTime)
		if nextFunding == nil {
			t := reader.NextFundingFallback(now, intervalHours)
			nextFunding = &t
		}

		var markPrice, volume *decimal.Decimal
		if tk, ok := tickers[inst.InstID]; ok {
			markPrice = reader.ParseOptionalDecimal(tk.Last)
			volume = reader.ParseOptionalDecimal(tk.VolCcy24h)
			// volCcy24h is denominated in base currency
			if volume != nil && markPrice != nil {
				v := volume.Mul(*markPrice)
				volume = &v
			} else {
				volume = nil
			}
		}

		records = append(records, model.FundingRateRecord{
			Exchange:             "okx",
			Symbol:               symbols.ToCanonical("okx", inst.InstID),
			FundingRate:          fundingRate,
			FundingIntervalHours: decimal.NewFromInt(int64(intervalHours)),
			MarkPrice:            markPrice,
			Volume24hQuote:       volume,
			NextFundingTime:      nextFunding,
		})
	}

	log.WithFields(logger.Fields{"records": len(records)}).Info("okx funding rates fetched")
	return records, nil
}

// intervalFromTimes derives the settlement cadence from the current and
// next funding timestamps, defaulting to 8h when either is missing.
func intervalFromTimes(fundingTime, nextFundingTime string) int {
	ft, err1 := strconv.ParseInt(fundingTime, 10, 64)
	nft, err2 := strconv.ParseInt(nextFundingTime, 10, 64)
	if err1 != nil || err2 != nil || nft <= ft {
		return 8
	}
	hours := int(time.Duration(nft-ft) * time.Millisecond / time.Hour)
	switch hours {
	case 1, 2, 4, 8:
		return hours
	default:
		return 8
	}
}

func (r *Reader) fetchInstruments(ctx context.Context) ([]instrument, error) {
	data, err := r.get(ctx, "/api/v5/public/instruments", url.Values{"instType": {"SWAP"}})
	if err != nil {
		return nil, fmt.Errorf("instruments: %w", err)
	}

	var all []instrument
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, fmt.Errorf("decode instruments: %w", err)
	}

	live := make([]instrument, 0, len(all))
	for _, inst := range all {
		if inst.SettleCcy == "USDT" && inst.State == "live" {
			live = append(live, inst)
		}
	}
	return live, nil
}

func (r *Reader) fetchTickers(ctx context.Context) (map[string]ticker, error) {
	data, err := r.get(ctx, "/api/v5/market/tickers", url.Values{"instType": {"SWAP"}})
	if err != nil {
		return nil, err
	}

	var list []ticker
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, err
	}

	out := make(map[string]ticker, len(list))
	for _, tk := range list {
		out[tk.InstID] = tk
	}
	return out, nil
}

func (r *Reader) fetchFundingRate(ctx context.Context, instID string) (*fundingRateEntry, error) {
	data, err := r.get(ctx, "/api/v5/public/funding-rate", url.Values{"instId": {instID}})
	if err != nil {
		return nil, err
	}

	var entries []fundingRateEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("no funding data for %s", instID)
	}
	return &entries[0], nil
}

func (r *Reader) get(ctx context.Context, path string, params url.Values) (json.RawMessage, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	reqURL := r.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s returned status %d", path, resp.StatusCode)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, err
	}
	if env.Code != "0" {
		return nil, fmt.Errorf("%s returned code %s: %s", path, env.Code, env.Msg)
	}
	return env.Data, nil
}
