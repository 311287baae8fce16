package binance

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"fundingflow/config"
)

func minimalConfig(url string) *config.Config {
	return &config.Config{
		Fetcher: config.FetcherConfig{Timeout: time.Second},
		Source: config.SourceConfig{
			Binance: config.ExchangeSourceConfig{
				Enabled: true,
				URL:     url,
				ConnectionPool: config.ConnectionPoolConfig{
					MaxIdleConns:    1,
					MaxConnsPerHost: 1,
					IdleConnTimeout: time.Second,
				},
			},
		},
	}
}

func TestNewReader(t *testing.T) {
	r := NewReader(minimalConfig("https://example.com"))
	if r == nil {
		t.Fatal("NewReader returned nil")
	}
	if r.Name() != "binance" {
		t.Errorf("unexpected name %q", r.Name())
	}
}

func TestFetchFundingIntervals(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Path != "/fapi/v1/fundingInfo" {
			http.NotFound(w, req)
			return
		}
		w.Write([]byte(`[
			{"symbol":"HYPEUSDT","fundingIntervalHours":1},
			{"symbol":"BLURUSDT","fundingIntervalHours":4}
		]`))
	}))
	defer srv.Close()

	r := NewReader(minimalConfig(srv.URL))
	intervals, err := r.fetchFundingIntervals(context.Background())
	if err != nil {
		t.Fatalf("fetchFundingIntervals failed: %v", err)
	}
	if intervals["HYPEUSDT"] != 1 || intervals["BLURUSDT"] != 4 {
		t.Errorf("unexpected intervals: %v", intervals)
	}
	if _, ok := intervals["BTCUSDT"]; ok {
		t.Errorf("symbols on the default cadence are not listed")
	}
}

func TestFetchFundingIntervalsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	defer srv.Close()

	r := NewReader(minimalConfig(srv.URL))
	if _, err := r.fetchFundingIntervals(context.Background()); err == nil {
		t.Fatalf("expected error on non-200 status")
	}
}
