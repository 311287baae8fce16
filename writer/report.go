// Package writer renders run output: a JSON report of the ranked
// opportunities and, when enabled, a parquet snapshot of the collected
// funding rates.
package writer

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	appconfig "fundingflow/config"
	"fundingflow/internal/model"
	"fundingflow/internal/repository"
	"fundingflow/logger"
)

// ReportParams echoes the analyzer settings a run was produced with, so a
// report is interpretable without the config file that generated it.
type ReportParams struct {
	MinSpread         string `json:"min_spread"`
	MaxPriceSpreadPct string `json:"max_price_spread_pct"`
	MinVolume         string `json:"min_volume"`
	SortKey           string `json:"sort_key"`
	TopN              int    `json:"top_n"`
	StrictCoverage    bool   `json:"strict_coverage"`
}

// RunReport is the full output of one collection and analysis round: the
// ranked opportunities plus every enriched record they were derived from.
type RunReport struct {
	RunID         string                       `json:"run_id"`
	GeneratedAt   time.Time                    `json:"generated_at"`
	Params        ReportParams                 `json:"params"`
	Opportunities []model.ArbitrageOpportunity `json:"opportunities"`
	Records       []model.FundingRateRecord    `json:"records"`
	Stats         repository.Stats             `json:"stats"`
	Sources       []model.SourceStatus         `json:"sources"`
}

// BuildReport assembles a report from the analysis output and the
// repository state. Opportunities may be empty; the report still carries
// the source statuses so a barren run is diagnosable.
func BuildReport(cfg *appconfig.Config, opportunities []model.ArbitrageOpportunity, repo *repository.Repository) *RunReport {
	if opportunities == nil {
		opportunities = []model.ArbitrageOpportunity{}
	}
	records := repo.Records()
	if records == nil {
		records = []model.FundingRateRecord{}
	}
	return &RunReport{
		RunID:       uuid.New().String(),
		GeneratedAt: time.Now().UTC(),
		Params: ReportParams{
			MinSpread:         cfg.Analyzer.MinSpread,
			MaxPriceSpreadPct: cfg.Analyzer.MaxPriceSpreadPct,
			MinVolume:         cfg.Analyzer.MinVolume,
			SortKey:           cfg.Analyzer.SortKey,
			TopN:              cfg.Analyzer.TopN,
			StrictCoverage:    cfg.Analyzer.StrictCoverage,
		},
		Opportunities: opportunities,
		Records:       records,
		Stats:         repo.Stats(),
		Sources:       repo.SourceStatuses(),
	}
}

// WriteReport serializes the report according to the export settings.
// Output is "stdout", "stderr" or a file path; parent directories are
// created as needed.
func WriteReport(report *RunReport, cfg appconfig.ReportConfig) error {
	log := logger.GetLogger().WithComponent("report_writer").WithFields(logger.Fields{
		"run_id": report.RunID,
		"output": cfg.Output,
	})

	var (
		data []byte
		err  error
	)
	switch cfg.Format {
	case "text":
		data = renderText(report)
	default:
		if cfg.Pretty {
			data, err = json.MarshalIndent(report, "", "  ")
		} else {
			data, err = json.Marshal(report)
		}
		if err != nil {
			log.WithError(err).Error("failed to serialize report")
			return fmt.Errorf("failed to serialize report: %w", err)
		}
		data = append(data, '\n')
	}

	switch cfg.Output {
	case "", "stdout":
		err = writeStream(os.Stdout, data)
	case "stderr":
		err = writeStream(os.Stderr, data)
	default:
		if dir := filepath.Dir(cfg.Output); dir != "." {
			if mkErr := os.MkdirAll(dir, 0o755); mkErr != nil {
				err = fmt.Errorf("failed to create report directory: %w", mkErr)
				break
			}
		}
		err = os.WriteFile(cfg.Output, data, 0o644)
	}
	if err != nil {
		log.WithError(err).Error("failed to write report")
		return fmt.Errorf("failed to write report: %w", err)
	}

	logger.IncrementExportWrite(int64(len(data)))
	log.WithFields(logger.Fields{
		"bytes":         len(data),
		"opportunities": len(report.Opportunities),
	}).Info("report written")
	return nil
}

func writeStream(w io.Writer, data []byte) error {
	_, err := w.Write(data)
	return err
}
