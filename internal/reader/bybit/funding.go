// Package bybit reads perpetual funding data from Bybit linear contracts.
package bybit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	bybit "github.com/bybit-exchange/bybit.go.api"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	appconfig "fundingflow/config"
	"fundingflow/internal/model"
	"fundingflow/internal/reader"
	"fundingflow/internal/symbols"
	"fundingflow/logger"
)

const defaultBaseURL = "https://api.bybit.com"

var minutesPerHour = decimal.NewFromInt(60)

func init() {
	reader.Register("bybit", func(cfg *appconfig.Config) reader.FundingReader {
		return NewReader(cfg)
	})
}

// Reader fetches funding rates for every linear perpetual on Bybit. The
// tickers endpoint carries rates, prices and turnover in one response;
// instruments-info supplies the settlement cadence and order size caps.
type Reader struct {
	config  *appconfig.Config
	client  *bybit.Client
	limiter *rate.Limiter
	log     *logger.Log
}

// NewReader creates a Bybit funding reader.
func NewReader(cfg *appconfig.Config) *Reader {
	log := logger.GetLogger()
	src := cfg.Source.Bybit

	base := strings.TrimSuffix(src.URL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	if parsed, err := url.Parse(base); err == nil && parsed.Host != "" {
		base = fmt.Sprintf("%s://%s", parsed.Scheme, parsed.Host)
	}

	client := bybit.NewBybitHttpClient("", "", bybit.WithBaseURL(base))
	client.HTTPClient = reader.NewHTTPClient(src, cfg.Fetcher.Timeout)

	rps := src.RateLimit.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}
	burst := src.RateLimit.BurstSize
	if burst <= 0 {
		burst = 1
	}

	log.WithComponent("bybit_reader").WithFields(logger.Fields{
		"base_url": base,
		"timeout":  cfg.Fetcher.Timeout,
	}).Info("bybit funding reader initialized")

	return &Reader{
		config:  cfg,
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		log:     log,
	}
}

func (r *Reader) Name() string { return "bybit" }

type tickersResult struct {
	Category string        `json:"category"`
	List     []tickerEntry `json:"list"`
}

type tickerEntry struct {
	Symbol          string `json:"symbol"`
	MarkPrice       string `json:"markPrice"`
	FundingRate     string `json:"fundingRate"`
	NextFundingTime string `json:"nextFundingTime"`
	Turnover24h     string `json:"turnover24h"`
}

type instrumentsResult struct {
	Category       string            `json:"category"`
	NextPageCursor string            `json:"nextPageCursor"`
	List           []instrumentEntry `json:"list"`
}

type instrumentEntry struct {
	Symbol          string `json:"symbol"`
	Status          string `json:"status"`
	FundingInterval int    `json:"fundingInterval"`
	LotSizeFilter   struct {
		MaxOrderQty string `json:"maxOrderQty"`
	} `json:"lotSizeFilter"`
}

type instrumentMeta struct {
	intervalHours decimal.Decimal
	maxOrderSize  *decimal.Decimal
}

// FetchFundingRates joins the linear tickers with per-instrument metadata
// and normalizes the result. USDC and inverse symbols are skipped.
func (r *Reader) FetchFundingRates(ctx context.Context) ([]model.FundingRateRecord, error) {
	log := r.log.WithComponent("bybit_reader")

	meta, err := r.fetchInstrumentMeta(ctx)
	if err != nil {
		log.WithError(err).Warn("failed to fetch instrument metadata, assuming 8h cadence")
		meta = map[string]instrumentMeta{}
	}

	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	params := map[string]interface{}{"category": "linear"}
	start := time.Now()
	resp, err := r.client.NewUtaBybitServiceWithParams(params).GetMarketTickers(ctx)
	if err != nil {
		return nil, fmt.Errorf("market tickers: %w", err)
	}
	logger.LogPerformanceEntry(log, "bybit_reader", "market_tickers", time.Since(start), nil)

	if resp.RetCode != 0 {
		return nil, fmt.Errorf("market tickers: retCode %d: %s", resp.RetCode, resp.RetMsg)
	}

	payload, err := json.Marshal(resp.Result)
	if err != nil {
		return nil, fmt.Errorf("marshal tickers result: %w", err)
	}
	var result tickersResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, fmt.Errorf("decode tickers result: %w", err)
	}

	records := make([]model.FundingRateRecord, 0, len(result.List))
	for _, t := range result.List {
		if !strings.HasSuffix(t.Symbol, "USDT") {
			continue
		}
		fundingRate, err := decimal.NewFromString(t.FundingRate)
		if err != nil {
			log.WithFields(logger.Fields{"symbol": t.Symbol}).Debug("skipping symbol without funding rate")
			continue
		}

		intervalHours := decimal.NewFromInt(8)
		var maxOrderSize *decimal.Decimal
		if m, ok := meta[t.Symbol]; ok {
			if m.intervalHours.Sign() > 0 {
				intervalHours = m.intervalHours
			}
			maxOrderSize = m.maxOrderSize
		}

		nextFunding := reader.ParseMillisTime(t.NextFundingTime)
		if nextFunding == nil {
			hours := int(intervalHours.IntPart())
			fallback := reader.NextFundingFallback(time.Now(), hours)
			nextFunding = &fallback
		}

		records = append(records, model.FundingRateRecord{
			Exchange:             "bybit",
			Symbol:               symbols.ToCanonical("bybit", t.Symbol),
			FundingRate:          fundingRate,
			FundingIntervalHours: intervalHours,
			MarkPrice:            reader.ParseOptionalDecimal(t.MarkPrice),
			Volume24hQuote:       reader.ParseOptionalDecimal(t.Turnover24h),
			NextFundingTime:      nextFunding,
			MaxOrderSize:         maxOrderSize,
		})
	}

	log.WithFields(logger.Fields{"records": len(records)}).Info("bybit funding rates fetched")
	return records, nil
}

// fetchInstrumentMeta pages through instruments-info. Bybit reports the
// funding interval in minutes.
func (r *Reader) fetchInstrumentMeta(ctx context.Context) (map[string]instrumentMeta, error) {
	meta := make(map[string]instrumentMeta)
	cursor := ""

	for {
		if err := r.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		params := map[string]interface{}{"category": "linear", "limit": 1000}
		if cursor != "" {
			params["cursor"] = cursor
		}

		resp, err := r.client.NewUtaBybitServiceWithParams(params).GetInstrumentInfo(ctx)
		if err != nil {
			return nil, err
		}
		if resp.RetCode != 0 {
			return nil, fmt.Errorf("instruments info: retCode %d: %s", resp.RetCode, resp.RetMsg)
		}

		payload, err := json.Marshal(resp.Result)
		if err != nil {
			return nil, err
		}
		var result instrumentsResult
		if err := json.Unmarshal(payload, &result); err != nil {
			return nil, err
		}

		mergeInstruments(meta, result.List)

		if result.NextPageCursor == "" || result.NextPageCursor == cursor {
			break
		}
		cursor = result.NextPageCursor
	}

	return meta, nil
}

func mergeInstruments(meta map[string]instrumentMeta, list []instrumentEntry) {
	for _, inst := range list {
		if inst.Status != "" && inst.Status != "Trading" {
			continue
		}
		m := instrumentMeta{maxOrderSize: reader.ParseOptionalDecimal(inst.LotSizeFilter.MaxOrderQty)}
		if inst.FundingInterval > 0 {
			m.intervalHours = decimal.NewFromInt(int64(inst.FundingInterval)).Div(minutesPerHour)
		}
		meta[inst.Symbol] = m
	}
}
