package writer

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	appconfig "fundingflow/config"
	"fundingflow/internal/model"
	"fundingflow/internal/repository"
)

func testConfig() *appconfig.Config {
	return &appconfig.Config{
		Fundingflow: appconfig.FundingflowConfig{Name: "fundingflow", Version: "1.0.0"},
		Analyzer: appconfig.AnalyzerConfig{
			MinSpread:         "0.0001",
			MaxPriceSpreadPct: "0.01",
			MinVolume:         "100000",
			SortKey:           "funding_spread",
			TopN:              10,
		},
	}
}

func seededRepository(t *testing.T) *repository.Repository {
	t.Helper()

	repo := repository.New()
	repo.Add(model.ExchangeResult{
		Exchange: "binance",
		Records: []model.FundingRateRecord{{
			Exchange:             "binance",
			Symbol:               "BTC",
			FundingRate:          decimal.RequireFromString("0.0001"),
			FundingIntervalHours: decimal.NewFromInt(8),
		}},
		FetchedAt: time.Now().UTC(),
	})
	repo.Add(model.ExchangeResult{
		Exchange: "gate",
		Records: []model.FundingRateRecord{{
			Exchange:             "gate",
			Symbol:               "BTC",
			FundingRate:          decimal.RequireFromString("-0.0005"),
			FundingIntervalHours: decimal.NewFromInt(8),
		}},
		FetchedAt: time.Now().UTC(),
	})
	return repo
}

func TestBuildReport(t *testing.T) {
	repo := seededRepository(t)
	opportunities := []model.ArbitrageOpportunity{{
		Symbol:           "BTC",
		LongExchange:     "gate",
		LongRate:         decimal.RequireFromString("-0.0005"),
		ShortExchange:    "binance",
		ShortRate:        decimal.RequireFromString("0.0001"),
		FundingSpread:    decimal.RequireFromString("0.0006"),
		AnnualizedSpread: decimal.RequireFromString("0.657"),
	}}

	report := BuildReport(testConfig(), opportunities, repo)

	if report.RunID == "" {
		t.Errorf("report should carry a run id")
	}
	if report.Params.MinSpread != "0.0001" || report.Params.TopN != 10 {
		t.Errorf("unexpected params: %+v", report.Params)
	}
	if len(report.Opportunities) != 1 {
		t.Fatalf("expected 1 opportunity, got %d", len(report.Opportunities))
	}
	if report.Stats.TotalRecords != 2 {
		t.Errorf("expected 2 records in stats, got %d", report.Stats.TotalRecords)
	}
	if len(report.Records) != 2 {
		t.Errorf("expected 2 enriched records, got %d", len(report.Records))
	}
	if len(report.Sources) != 2 {
		t.Errorf("expected 2 source statuses, got %d", len(report.Sources))
	}
}

func TestReportCarriesEnrichedRecords(t *testing.T) {
	report := BuildReport(testConfig(), nil, seededRepository(t))

	data, err := json.Marshal(report)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded struct {
		Records []struct {
			Exchange       string `json:"exchange"`
			Symbol         string `json:"symbol"`
			FundingRate    string `json:"funding_rate"`
			AnnualizedRate string `json:"annualized_rate"`
		} `json:"records"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if len(decoded.Records) != 2 {
		t.Fatalf("expected 2 records in the JSON report, got %d", len(decoded.Records))
	}

	for _, rec := range decoded.Records {
		if rec.Exchange != "gate" {
			continue
		}
		if rec.FundingRate != "-0.0005" {
			t.Errorf("gate funding rate = %s, want -0.0005", rec.FundingRate)
		}
		if rec.AnnualizedRate != "-0.5475" {
			t.Errorf("gate annualized rate = %s, want -0.5475", rec.AnnualizedRate)
		}
		return
	}
	t.Fatalf("gate record missing from report")
}

func TestBuildReportEmptyOpportunities(t *testing.T) {
	report := BuildReport(testConfig(), nil, seededRepository(t))

	data, err := json.Marshal(report)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	// nil must serialize as an empty list, not null
	var decoded map[string]json.RawMessage
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if string(decoded["opportunities"]) != "[]" {
		t.Errorf("expected empty opportunities list, got %s", decoded["opportunities"])
	}
}

func TestRenderText(t *testing.T) {
	repo := seededRepository(t)
	report := BuildReport(testConfig(), []model.ArbitrageOpportunity{{
		Symbol:           "BTC",
		LongExchange:     "gate",
		LongRate:         decimal.RequireFromString("-0.0005"),
		ShortExchange:    "binance",
		ShortRate:        decimal.RequireFromString("0.0001"),
		FundingSpread:    decimal.RequireFromString("0.0006"),
		AnnualizedSpread: decimal.RequireFromString("0.657"),
	}}, repo)

	out := string(renderText(report))

	for _, want := range []string{"BTC", "gate", "binance", "0.0006", "2 records"} {
		if !strings.Contains(out, want) {
			t.Errorf("text report missing %q:\n%s", want, out)
		}
	}

	report.Opportunities = nil
	out = string(renderText(report))
	if !strings.Contains(out, "no opportunities") {
		t.Errorf("empty report should say so:\n%s", out)
	}
}

func TestWriteReportToFile(t *testing.T) {
	repo := seededRepository(t)
	report := BuildReport(testConfig(), nil, repo)

	path := filepath.Join(t.TempDir(), "out", "report.json")
	cfg := appconfig.ReportConfig{Output: path, Pretty: true}

	if err := WriteReport(report, cfg); err != nil {
		t.Fatalf("WriteReport failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading report failed: %v", err)
	}

	var decoded RunReport
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("report is not valid JSON: %v", err)
	}
	if decoded.RunID != report.RunID {
		t.Errorf("run id mismatch: %s vs %s", decoded.RunID, report.RunID)
	}
	if decoded.Stats.TotalRecords != 2 {
		t.Errorf("expected 2 records after round trip, got %d", decoded.Stats.TotalRecords)
	}
}
