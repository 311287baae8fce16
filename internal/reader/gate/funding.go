// Package gate reads perpetual funding data from Gate USDT futures. A
// single contracts call carries everything: rates, cadence, prices,
// volumes and order caps.
package gate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	appconfig "fundingflow/config"
	"fundingflow/internal/model"
	"fundingflow/internal/reader"
	"fundingflow/internal/symbols"
	"fundingflow/logger"
)

const defaultBaseURL = "https://api.gateio.ws"

var secondsPerHour = decimal.NewFromInt(3600)

func init() {
	reader.Register("gate", func(cfg *appconfig.Config) reader.FundingReader {
		return NewReader(cfg)
	})
}

// Reader fetches funding data for all USDT perpetual contracts on Gate.
type Reader struct {
	config  *appconfig.Config
	client  *http.Client
	baseURL string
	limiter *rate.Limiter
	log     *logger.Log
}

// NewReader creates a Gate funding reader.
func NewReader(cfg *appconfig.Config) *Reader {
	log := logger.GetLogger()
	src := cfg.Source.Gate

	baseURL := src.URL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	rps := src.RateLimit.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}
	burst := src.RateLimit.BurstSize
	if burst <= 0 {
		burst = 1
	}

	log.WithComponent("gate_reader").WithFields(logger.Fields{
		"base_url": baseURL,
		"timeout":  cfg.Fetcher.Timeout,
	}).Info("gate funding reader initialized")

	return &Reader{
		config:  cfg,
		client:  reader.NewHTTPClient(src, cfg.Fetcher.Timeout),
		baseURL: baseURL,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		log:     log,
	}
}

func (r *Reader) Name() string { return "gate" }

// contract mirrors the /api/v4/futures/usdt/contracts fields this reader
// consumes. Gate encodes decimals as JSON strings.
type contract struct {
	Name             string `json:"name"`
	InDelisting      bool   `json:"in_delisting"`
	FundingRate      string `json:"funding_rate"`
	FundingInterval  int64  `json:"funding_interval"`
	FundingNextApply int64  `json:"funding_next_apply"`
	MarkPrice        string `json:"mark_price"`
	Volume24hUSD     string `json:"volume_24h_usd"`
	TradeSize        int64  `json:"trade_size"`
	OrderSizeMax     int64  `json:"order_size_max"`
}

// FetchFundingRates pulls the USDT contract list and normalizes it.
func (r *Reader) FetchFundingRates(ctx context.Context) ([]model.FundingRateRecord, error) {
	log := r.log.WithComponent("gate_reader")

	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/api/v4/futures/usdt/contracts", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("contracts: %w", err)
	}
	defer resp.Body.Close()
	logger.LogPerformanceEntry(log, "gate_reader", "contracts", time.Since(start), nil)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("contracts returned status %d", resp.StatusCode)
	}

	var contracts []contract
	if err := json.NewDecoder(resp.Body).Decode(&contracts); err != nil {
		return nil, fmt.Errorf("decode contracts: %w", err)
	}

	now := time.Now().UTC()
	records := make([]model.FundingRateRecord, 0, len(contracts))
	for _, c := range contracts {
		if c.Name == "" || c.InDelisting {
			continue
		}

		fundingRate, err := decimal.NewFromString(c.FundingRate)
		if err != nil {
			log.WithFields(logger.Fields{"contract": c.Name}).Debug("skipping contract without funding rate")
			continue
		}

		intervalHours := decimal.NewFromInt(8)
		if c.FundingInterval > 0 {
			intervalHours = decimal.NewFromInt(c.FundingInterval).Div(secondsPerHour)
		}

		var nextFunding *time.Time
		if c.FundingNextApply > 0 {
			t := time.Unix(c.FundingNextApply, 0).UTC()
			nextFunding = &t
		} else {
			t := reader.NextFundingFallback(now, int(intervalHours.IntPart()))
			nextFunding = &t
		}

		markPrice := reader.ParseOptionalDecimal(c.MarkPrice)

		volume := reader.ParseOptionalDecimal(c.Volume24hUSD)
		if volume == nil && markPrice != nil && c.TradeSize > 0 {
			v := decimal.NewFromInt(c.TradeSize).Mul(*markPrice)
			volume = &v
		}

		var maxOrderSize *decimal.Decimal
		if c.OrderSizeMax > 0 {
			m := decimal.NewFromInt(c.OrderSizeMax)
			maxOrderSize = &m
		}

		records = append(records, model.FundingRateRecord{
			Exchange:             "gate",
			Symbol:               symbols.ToCanonical("gate", c.Name),
			FundingRate:          fundingRate,
			FundingIntervalHours: intervalHours,
			MarkPrice:            markPrice,
			Volume24hQuote:       volume,
			NextFundingTime:      nextFunding,
			MaxOrderSize:         maxOrderSize,
		})
	}

	log.WithFields(logger.Fields{"records": len(records)}).Info("gate funding rates fetched")
	return records, nil
}
