// Package kucoin reads perpetual funding data from KuCoin futures.
package kucoin

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	api "github.com/Kucoin/kucoin-universal-sdk/sdk/golang/pkg/api"
	futuresmarket "github.com/Kucoin/kucoin-universal-sdk/sdk/golang/pkg/generate/futures/market"
	sdktype "github.com/Kucoin/kucoin-universal-sdk/sdk/golang/pkg/types"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	appconfig "fundingflow/config"
	"fundingflow/internal/model"
	"fundingflow/internal/reader"
	"fundingflow/internal/symbols"
	"fundingflow/logger"
)

const defaultBaseURL = "https://api-futures.kucoin.com"

// backfillLimit caps how many contracts are re-fetched one by one when the
// bulk listing omits their funding rate.
const backfillLimit = 25

func init() {
	reader.Register("kucoin", func(cfg *appconfig.Config) reader.FundingReader {
		return NewReader(cfg)
	})
}

// Reader fetches the active contract list in one call and falls back to
// per-symbol detail lookups for contracts the listing reports without a
// funding rate.
type Reader struct {
	config    *appconfig.Config
	client    *http.Client
	marketAPI futuresmarket.MarketAPI
	baseURL   string
	limiter   *rate.Limiter
	log       *logger.Log
}

// NewReader creates a KuCoin funding reader.
func NewReader(cfg *appconfig.Config) *Reader {
	log := logger.GetLogger()
	src := cfg.Source.Kucoin

	baseURL := strings.TrimSuffix(src.URL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	transportOpt := sdktype.NewTransportOptionBuilder().
		SetMaxIdleConns(src.ConnectionPool.MaxIdleConns).
		SetMaxIdleConnsPerHost(src.ConnectionPool.MaxIdleConns).
		SetMaxConnsPerHost(src.ConnectionPool.MaxConnsPerHost).
		SetIdleConnTimeout(src.ConnectionPool.IdleConnTimeout).
		SetTimeout(cfg.Fetcher.Timeout).
		Build()

	option := sdktype.NewClientOptionBuilder().
		WithFuturesEndpoint(baseURL).
		WithTransportOption(transportOpt).
		Build()

	client := api.NewClient(option)
	marketAPI := client.RestService().GetFuturesService().GetMarketAPI()

	rps := src.RateLimit.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}
	burst := src.RateLimit.BurstSize
	if burst <= 0 {
		burst = 1
	}

	log.WithComponent("kucoin_reader").WithFields(logger.Fields{
		"base_url": baseURL,
		"timeout":  cfg.Fetcher.Timeout,
	}).Info("kucoin funding reader initialized")

	return &Reader{
		config:    cfg,
		client:    reader.NewHTTPClient(src, cfg.Fetcher.Timeout),
		marketAPI: marketAPI,
		baseURL:   baseURL,
		limiter:   rate.NewLimiter(rate.Limit(rps), burst),
		log:       log,
	}
}

func (r *Reader) Name() string { return "kucoin" }

// contract mirrors the fields of /api/v1/contracts/active this reader
// consumes. Numeric fields are pointers so an absent value stays
// distinguishable from zero.
type contract struct {
	Symbol                 string           `json:"symbol"`
	Status                 string           `json:"status"`
	FundingFeeRate         *decimal.Decimal `json:"fundingFeeRate"`
	FundingRateGranularity int64            `json:"fundingRateGranularity"`
	NextFundingRateTime    int64            `json:"nextFundingRateTime"`
	MarkPrice              *decimal.Decimal `json:"markPrice"`
	TurnoverOf24h          *decimal.Decimal `json:"turnoverOf24h"`
	MaxOrderQty            *decimal.Decimal `json:"maxOrderQty"`
}

type contractsResponse struct {
	Code string     `json:"code"`
	Data []contract `json:"data"`
}

// FetchFundingRates pulls all open USDT-margined contracts and normalizes
// them.
func (r *Reader) FetchFundingRates(ctx context.Context) ([]model.FundingRateRecord, error) {
	log := r.log.WithComponent("kucoin_reader")

	contracts, err := r.fetchActiveContracts(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	records := make([]model.FundingRateRecord, 0, len(contracts))
	backfilled := 0
	for _, c := range contracts {
		if c.Status != "" && c.Status != "Open" {
			continue
		}
		if !strings.HasSuffix(c.Symbol, "USDTM") {
			continue
		}

		if c.FundingFeeRate == nil && backfilled < backfillLimit {
			if fr, err := r.backfillFundingRate(ctx, c.Symbol); err == nil && fr != nil {
				c.FundingFeeRate = fr
				backfilled++
			}
		}
		if c.FundingFeeRate == nil {
			log.WithFields(logger.Fields{"symbol": c.Symbol}).Debug("skipping contract without funding rate")
			continue
		}

		intervalHours := decimal.NewFromInt(8)
		if c.FundingRateGranularity > 0 {
			intervalHours = decimal.NewFromInt(c.FundingRateGranularity).
				Div(decimal.NewFromInt(int64(time.Hour / time.Millisecond)))
		}

		// nextFundingRateTime is a countdown in milliseconds
		var nextFunding *time.Time
		if c.NextFundingRateTime > 0 {
			t := now.Add(time.Duration(c.NextFundingRateTime) * time.Millisecond)
			nextFunding = &t
		} else {
			t := reader.NextFundingFallback(now, int(intervalHours.IntPart()))
			nextFunding = &t
		}

		records = append(records, model.FundingRateRecord{
			Exchange:             "kucoin",
			Symbol:               symbols.ToCanonical("kucoin", c.Symbol),
			FundingRate:          *c.FundingFeeRate,
			FundingIntervalHours: intervalHours,
			MarkPrice:            positiveOrNil(c.MarkPrice),
			Volume24hQuote:       positiveOrNil(c.TurnoverOf24h),
			NextFundingTime:      nextFunding,
			MaxOrderSize:         positiveOrNil(c.MaxOrderQty),
		})
	}

	log.WithFields(logger.Fields{
		"records":    len(records),
		"backfilled": backfilled,
	}).Info("kucoin funding rates fetched")
	return records, nil
}

func (r *Reader) fetchActiveContracts(ctx context.Context) ([]contract, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/api/v1/contracts/active", nil)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("active contracts: %w", err)
	}
	defer resp.Body.Close()
	logger.LogPerformanceEntry(r.log.WithComponent("kucoin_reader"), "kucoin_reader", "active_contracts", time.Since(start), nil)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("active contracts returned status %d", resp.StatusCode)
	}

	var parsed contractsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode active contracts: %w", err)
	}
	if parsed.Code != "" && parsed.Code != "200000" {
		return nil, fmt.Errorf("active contracts returned code %s", parsed.Code)
	}
	return parsed.Data, nil
}

// backfillFundingRate re-reads a single contract through the SDK when the
// bulk listing omitted its funding rate.
func (r *Reader) backfillFundingRate(ctx context.Context, symbol string) (*decimal.Decimal, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req := futuresmarket.NewGetSymbolReqBuilder().SetSymbol(symbol).Build()
	resp, err := r.marketAPI.GetSymbol(req, ctx)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, fmt.Errorf("empty response for symbol %s", symbol)
	}

	payload, err := json.Marshal(resp)
	if err != nil {
		return nil, err
	}
	var detail struct {
		FundingFeeRate *decimal.Decimal `json:"fundingFeeRate"`
	}
	if err := json.Unmarshal(payload, &detail); err != nil {
		return nil, err
	}
	return detail.FundingFeeRate, nil
}

func positiveOrNil(d *decimal.Decimal) *decimal.Decimal {
	if d == nil || d.Sign() <= 0 {
		return nil
	}
	return d
}
