package okx

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
			Okx: appconfig.ExchangeSourceConfig{
				Enabled:   true,
				URL:       url,
				RateLimit: appconfig.RateLimitConfig{RequestsPerSecond: 100, BurstSize: 100},
				ConnectionPool: appconfig.ConnectionPoolConfig{
					MaxIdleConns:    2,
					MaxConnsPerHost: 2,
					IdleConnTimeout: time.Second,
				},
			},
		},
	}
}

func okxServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		switch req.URL.Path {
		case "/api/v5/public/instruments":
			w.Write([]byte(`{"code":"0","msg":"","data":[
				{"instId":"BTC-USDT-SWAP","settleCcy":"USDT","state":"live"},
				{"instId":"ETH-USD-SWAP","settleCcy":"ETH","state":"live"},
				{"instId":"OLD-USDT-SWAP","settleCcy":"USDT","state":"suspend"}
			]}`))
		case "/api/v5/market/tickers":
			w.Write([]byte(`{"code":"0","msg":"","data":[
				{"instId":"BTC-USDT-SWAP","last":"65000","volCcy24h":"1000"}
			]}`))
		case "/api/v5/public/funding-rate":
			if req.URL.Query().Get("instId") != "BTC-USDT-SWAP" {
				w.Write([]byte(`{"code":"51001","msg":"instrument not found","data":[]}`))
				return
			}
			w.Write([]byte(`{"code":"0","msg":"","data":[
				{"instId":"BTC-USDT-SWAP","fundingRate":"0.0001",
				 "fundingTime":"1755878400000","nextFundingTime":"1755907200000"}
			]}`))
		default:
			http.NotFound(w, req)
		}
	}))
}

func TestFetchFundingRates(t *testing.T) {
	srv := okxServer(t)
	defer srv.Close()

	r := NewReader(minimalConfig(srv.URL))
	records, err := r.FetchFundingRates(context.Background())
	if err != nil {
		t.Fatalf("FetchFundingRates failed: %v", err)
	}

	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}

	rec := records[0]
	if rec.Exchange != "okx" || rec.Symbol != "BTC" {
		t.Errorf("unexpected record identity: %+v", rec)
	}
	if rec.FundingRate.String() != "0.0001" {
		t.Errorf("funding rate = %s", rec.FundingRate)
	}
	if !rec.FundingIntervalHours.IsInteger() || rec.FundingIntervalHours.IntPart() != 8 {
		t.Errorf("interval = %s, want 8", rec.FundingIntervalHours)
	}
	// volume is volCcy24h (base) * last price
	if rec.Volume24hQuote == nil || rec.Volume24hQuote.String() != "65000000" {
		t.Errorf("quote volume = %v, want 65000000", rec.Volume24hQuote)
	}
	if rec.NextFundingTime == nil || rec.NextFundingTime.UnixMilli() != 1755907200000 {
		t.Errorf("next funding time = %v", rec.NextFundingTime)
	}
}

func TestIntervalFromTimes(t *testing.T) {
	cases := []struct {
		funding string
		next    string
		want    int
	}{
		{"1755878400000", "1755907200000", 8}, // 8h apart
		{"1755900000000", "1755903600000", 1}, // 1h apart
		{"1755890400000", "1755904800000", 4}, // 4h apart
		{"", "1755907200000", 8},              // missing current time
		{"1755907200000", "1755878400000", 8}, // next before current
		{"1755878400000", "1755889200000", 8}, // 3h apart, unusual cadence
	}

	for _, c := range cases {
		if got := intervalFromTimes(c.funding, c.next); got != c.want {
			t.Errorf("intervalFromTimes(%s, %s) = %d, want %d", c.funding, c.next, got, c.want)
		}
	}
}

func TestFetchInstrumentsFiltersLiveUSDT(t *testing.T) {
	srv := okxServer(t)
	defer srv.Close()

	r := NewReader(minimalConfig(srv.URL))
	instruments, err := r.fetchInstruments(context.Background())
	if err != nil {
		t.Fatalf("fetchInstruments failed: %v", err)
	}
	if len(instruments) != 1 || instruments[0].InstID != "BTC-USDT-SWAP" {
		t.Errorf("unexpected instruments: %+v", instruments)
	}
}
