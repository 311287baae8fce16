package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"fundingflow/config"
	"fundingflow/internal/analysis"
	"fundingflow/internal/channel/rates"
	"fundingflow/internal/fetcher"
	"fundingflow/internal/metrics"
	"fundingflow/internal/reader"
	"fundingflow/internal/repository"
	"fundingflow/logger"
	"fundingflow/writer"

	// register the exchange adapters
	_ "fundingflow/internal/reader/binance"
	_ "fundingflow/internal/reader/bybit"
	_ "fundingflow/internal/reader/gate"
	_ "fundingflow/internal/reader/kucoin"
	_ "fundingflow/internal/reader/okx"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
	exchanges := flag.String("exchanges", "", "Comma-separated subset of enabled exchanges to fetch")
	topN := flag.Int("top", -1, "Maximum opportunities to report (overrides config)")
	sortKey := flag.String("sort", "", "Ranking key: funding_spread or annualized_spread (overrides config)")
	minSpread := flag.String("min-spread", "", "Minimum funding spread (overrides config)")
	maxPriceSpread := flag.String("max-price-spread", "", "Maximum mark price divergence fraction (overrides config)")
	minVolume := flag.String("min-volume", "", "Minimum 24h quote volume (overrides config)")
	strict := flag.Bool("strict", false, "Reject opportunities with unknown price or volume data")
	output := flag.String("output", "", "Report destination: stdout, stderr or a file path (overrides config)")
	timeout := flag.Duration("timeout", 0, "Per-exchange fetch timeout (overrides config)")
	asJSON := flag.Bool("json", false, "Force JSON report output")

	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := applyFlagOverrides(cfg, *topN, *sortKey, *minSpread, *maxPriceSpread, *minVolume, *strict, *output); err != nil {
		log.WithError(err).Error("invalid flag override")
		os.Exit(1)
	}
	if *timeout > 0 {
		cfg.Fetcher.Timeout = *timeout
		if cfg.Fetcher.GlobalTimeout < *timeout {
			cfg.Fetcher.GlobalTimeout = *timeout
		}
	}
	if *asJSON {
		cfg.Export.Report.Format = "json"
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	env := config.AppEnvironment()
	log.WithFields(logger.Fields{
		"service": cfg.Fundingflow.Name,
		"version": cfg.Fundingflow.Version,
		"env":     env,
	}).Info("starting fundingflow")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Metrics.Enabled {
		metrics.Init(cfg.Metrics.Listen)
	}
	// CloudWatch publishing only makes sense where AWS credentials exist
	if cfg.Metrics.CloudWatch && config.IsProductionLike(env) {
		logger.InitCloudWatch(cfg.Storage.S3.Region, cfg.Metrics.Namespace, cfg.Logging.DashboardName)
	}
	if strings.ToLower(cfg.Logging.Level) == "report" {
		logger.StartReport(ctx, log, 30*time.Second)
	}

	names, err := selectExchanges(cfg, *exchanges)
	if err != nil {
		log.WithError(err).Error("invalid exchange selection")
		os.Exit(1)
	}

	readers, err := reader.Build(cfg, names)
	if err != nil {
		log.WithError(err).Error("failed to build exchange readers")
		os.Exit(1)
	}

	channels := rates.NewChannels(cfg.Channels.ResultBuffer)
	repo := repository.New()

	f := fetcher.New(cfg, readers, channels, repo)
	if err := f.Run(ctx); err != nil {
		log.WithError(err).Error("fetch round failed")
		os.Exit(1)
	}

	if repo.Succeeded() == 0 {
		log.WithComponent("main").Error("every exchange fetch failed, nothing to analyze")
		os.Exit(1)
	}

	matcher := analysis.NewMatcher(analysis.Params{
		MinSpread:         cfg.Analyzer.MinSpreadDecimal(),
		MaxPriceSpreadPct: cfg.Analyzer.MaxPriceSpreadPctDecimal(),
		MinVolume:         cfg.Analyzer.MinVolumeDecimal(),
		MaxTimeToFunding:  cfg.Analyzer.MaxTimeToFundingDecimal(),
		StrictCoverage:    cfg.Analyzer.StrictCoverage,
	})
	opportunities := matcher.Match(repo.GroupBySymbol())
	ranked := analysis.Rank(opportunities, analysis.ParseSortKey(cfg.Analyzer.SortKey), cfg.Analyzer.TopN)

	metrics.SetOpportunities(len(ranked))
	if len(ranked) == 0 {
		log.WithComponent("main").WithFields(logger.Fields{
			"records":   repo.Stats().TotalRecords,
			"exchanges": repo.Succeeded(),
		}).Warn("no opportunities cleared the configured thresholds")
	}

	report := writer.BuildReport(cfg, ranked, repo)
	if err := writer.WriteReport(report, cfg.Export.Report); err != nil {
		log.WithError(err).Error("failed to write report")
		os.Exit(1)
	}

	if cfg.Export.Snapshot.Enabled {
		sw, err := writer.NewSnapshotWriter(ctx, cfg)
		if err != nil {
			log.WithError(err).Error("failed to create snapshot writer")
			os.Exit(1)
		}
		if _, err := sw.Write(ctx, report.RunID, repo.Records()); err != nil {
			log.WithError(err).Error("failed to write snapshot")
			os.Exit(1)
		}
	}

	log.WithFields(logger.Fields{
		"run_id":        report.RunID,
		"opportunities": len(ranked),
		"records":       repo.Stats().TotalRecords,
	}).Info("run completed")
}

// applyFlagOverrides folds command line overrides into the loaded config.
// Overrides are validated here because they land after LoadConfig has
// already run its checks.
func applyFlagOverrides(cfg *config.Config, topN int, sortKey, minSpread, maxPriceSpread, minVolume string, strict bool, output string) error {
	if topN >= 0 {
		cfg.Analyzer.TopN = topN
	}
	if sortKey != "" {
		switch sortKey {
		case "funding_spread", "annualized_spread":
			cfg.Analyzer.SortKey = sortKey
		default:
			return fmt.Errorf("sort key '%s' is invalid", sortKey)
		}
	}
	for _, o := range []struct {
		flag  string
		value string
		dst   *string
	}{
		{"min-spread", minSpread, &cfg.Analyzer.MinSpread},
		{"max-price-spread", maxPriceSpread, &cfg.Analyzer.MaxPriceSpreadPct},
		{"min-volume", minVolume, &cfg.Analyzer.MinVolume},
	} {
		if o.value == "" {
			continue
		}
		d, err := decimal.NewFromString(o.value)
		if err != nil {
			return fmt.Errorf("-%s '%s' is not a valid decimal", o.flag, o.value)
		}
		if d.Sign() < 0 {
			return fmt.Errorf("-%s must not be negative", o.flag)
		}
		*o.dst = o.value
	}
	if strict {
		cfg.Analyzer.StrictCoverage = true
	}
	if output != "" {
		cfg.Export.Report.Output = output
	}
	return nil
}

// selectExchanges intersects the enabled sources with the -exchanges flag.
// Naming a disabled or unknown exchange is an error rather than a silent
// no-op.
func selectExchanges(cfg *config.Config, filter string) ([]string, error) {
	enabled := cfg.Source.EnabledExchanges()
	if filter == "" {
		return enabled, nil
	}

	enabledSet := make(map[string]struct{}, len(enabled))
	for _, name := range enabled {
		enabledSet[name] = struct{}{}
	}

	var out []string
	for _, raw := range strings.Split(filter, ",") {
		name := strings.ToLower(strings.TrimSpace(raw))
		if name == "" {
			continue
		}
		if _, ok := enabledSet[name]; !ok {
			return nil, fmt.Errorf("exchange '%s' is not enabled in the configuration", name)
		}
		out = append(out, name)
	}
	return out, nil
}
