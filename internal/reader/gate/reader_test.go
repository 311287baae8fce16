package gate

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	appconfig "fundingflow/config"
)

func minimalConfig(url string) *appconfig.Config {
	return &appconfig.Config{
		Fetcher: appconfig.FetcherConfig{Timeout: time.Second},
		Source: appconfig.SourceConfig{
			Gate: appconfig.ExchangeSourceConfig{
				Enabled: true,
				URL:     url,
				ConnectionPool: appconfig.ConnectionPoolConfig{
					MaxIdleConns:    1,
					MaxConnsPerHost: 1,
					IdleConnTimeout: time.Second,
				},
			},
		},
	}
}

func TestFetchFundingRates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Path != "/api/v4/futures/usdt/contracts" {
			http.NotFound(w, req)
			return
		}
		w.Write([]byte(`[
			{"name":"KAITO_USDT","funding_rate":"-0.014078","funding_interval":28800,
			 "funding_next_apply":1755907200,"mark_price":"1.52",
			 "volume_24h_usd":"5400000","order_size_max":100000},
			{"name":"BTC_USDT","funding_rate":"0.0001","funding_interval":14400,
			 "funding_next_apply":1755900000,"mark_price":"65000",
			 "volume_24h_usd":"","trade_size":2000},
			{"name":"DEAD_USDT","funding_rate":"0.0001","funding_interval":28800,
			 "in_delisting":true},
			{"name":"NEW_USDT","funding_interval":28800}
		]`))
	}))
	defer srv.Close()

	r := NewReader(minimalConfig(srv.URL))
	if r.Name() != "gate" {
		t.Errorf("unexpected name %q", r.Name())
	}

	records, err := r.FetchFundingRates(context.Background())
	if err != nil {
		t.Fatalf("FetchFundingRates failed: %v", err)
	}

	// delisting and rate-less contracts are skipped
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}

	kaito := records[0]
	if kaito.Symbol != "KAITO" || kaito.FundingRate.String() != "-0.014078" {
		t.Errorf("unexpected KAITO record: %+v", kaito)
	}
	if !kaito.FundingIntervalHours.IsInteger() || kaito.FundingIntervalHours.IntPart() != 8 {
		t.Errorf("28800s should map to 8h, got %s", kaito.FundingIntervalHours)
	}
	if kaito.NextFundingTime == nil || kaito.NextFundingTime.Unix() != 1755907200 {
		t.Errorf("unexpected next funding time: %v", kaito.NextFundingTime)
	}
	if kaito.MaxOrderSize == nil || kaito.MaxOrderSize.String() != "100000" {
		t.Errorf("unexpected max order size: %v", kaito.MaxOrderSize)
	}

	btc := records[1]
	if !btc.FundingIntervalHours.IsInteger() || btc.FundingIntervalHours.IntPart() != 4 {
		t.Errorf("14400s should map to 4h, got %s", btc.FundingIntervalHours)
	}
	// missing volume_24h_usd falls back to trade_size * mark_price
	if btc.Volume24hQuote == nil || btc.Volume24hQuote.String() != "130000000" {
		t.Errorf("volume fallback = %v, want 130000000", btc.Volume24hQuote)
	}
}

func TestFetchFundingRatesServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	r := NewReader(minimalConfig(srv.URL))
	if _, err := r.FetchFundingRates(context.Background()); err == nil {
		t.Fatalf("expected error on server failure")
	}
}
