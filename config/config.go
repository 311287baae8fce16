package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Fundingflow FundingflowConfig `yaml:"fundingflow"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Channels    ChannelsConfig    `yaml:"channels"`
	Fetcher     FetcherConfig     `yaml:"fetcher"`
	Analyzer    AnalyzerConfig    `yaml:"analyzer"`
	Source      SourceConfig      `yaml:"source"`
	Storage     StorageConfig     `yaml:"storage"`
	Export      ExportConfig      `yaml:"export"`
	Logging     LoggingConfig     `yaml:"logging"`
}

type FundingflowConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type MetricsConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Listen     string `yaml:"listen"`
	CloudWatch bool   `yaml:"cloudwatch"`
	Namespace  string `yaml:"namespace"`
}

type ChannelsConfig struct {
	ResultBuffer int `yaml:"result_buffer"`
}

type FetcherConfig struct {
	MaxWorkers    int           `yaml:"max_workers"`
	Timeout       time.Duration `yaml:"timeout"`
	GlobalTimeout time.Duration `yaml:"global_timeout"`
}

// AnalyzerConfig holds the matcher thresholds as strings so they survive
// the YAML round trip without float rounding. MinSpread and
// MaxPriceSpreadPct are decimal fractions (0.0001 = 0.01%), MinVolume is
// quote currency.
type AnalyzerConfig struct {
	MinSpread         string `yaml:"min_spread"`
	MaxPriceSpreadPct string `yaml:"max_price_spread_pct"`
	MinVolume         string `yaml:"min_volume"`
	MaxTimeToFunding  string `yaml:"max_time_to_funding_hours"`
	SortKey           string `yaml:"sort_key"`
	TopN              int    `yaml:"top_n"`
	StrictCoverage    bool   `yaml:"strict_coverage"`
}

type RateLimitConfig struct {
	RequestsPerSecond int `yaml:"requests_per_second"`
	BurstSize         int `yaml:"burst_size"`
}

type ConnectionPoolConfig struct {
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	MaxConnsPerHost int           `yaml:"max_conns_per_host"`
	IdleConnTimeout time.Duration `yaml:"idle_conn_timeout"`
}

type SourceConfig struct {
	Binance ExchangeSourceConfig `yaml:"binance"`
	Bybit   ExchangeSourceConfig `yaml:"bybit"`
	Kucoin  ExchangeSourceConfig `yaml:"kucoin"`
	Okx     ExchangeSourceConfig `yaml:"okx"`
	Gate    ExchangeSourceConfig `yaml:"gate"`
}

type ExchangeSourceConfig struct {
	Enabled        bool                 `yaml:"enabled"`
	URL            string               `yaml:"url"`
	RateLimit      RateLimitConfig      `yaml:"rate_limit"`
	ConnectionPool ConnectionPoolConfig `yaml:"connection_pool"`
}

type StorageConfig struct {
	S3 S3Config `yaml:"s3"`
}

type S3Config struct {
	Enabled         bool   `yaml:"enabled"`
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Prefix          string `yaml:"prefix"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

type ExportConfig struct {
	Report   ReportConfig   `yaml:"report"`
	Snapshot SnapshotConfig `yaml:"snapshot"`
}

type ReportConfig struct {
	Output string `yaml:"output"`
	Format string `yaml:"format"`
	Pretty bool   `yaml:"pretty"`
}

type SnapshotConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Directory   string `yaml:"directory"`
	Compression string `yaml:"compression"`
	Upload      bool   `yaml:"upload"`
}

type LoggingConfig struct {
	Level         string `yaml:"level"`
	Format        string `yaml:"format"`
	Output        string `yaml:"output"`
	MaxAge        int    `yaml:"max_age"`
	DashboardName string `yaml:"dashboard_name"`
}

// analyzer threshold environment overrides, applied after the YAML parse
const (
	envMinSpread         = "FF_MIN_SPREAD"
	envMaxPriceSpreadPct = "FF_MAX_PRICE_SPREAD_PCT"
	envMinVolume         = "FF_MIN_VOLUME"
	envTopN              = "FF_TOP_N"
)

func LoadConfig(path string) (*Config, error) {
	// Read configuration file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Config{
		Channels: ChannelsConfig{ResultBuffer: 8},
		Fetcher: FetcherConfig{
			MaxWorkers:    3,
			Timeout:       30 * time.Second,
			GlobalTimeout: 2 * time.Minute,
		},
		Analyzer: AnalyzerConfig{
			MinSpread:         "0.0001",
			MaxPriceSpreadPct: "0.01",
			MinVolume:         "100000",
			MaxTimeToFunding:  "24",
			SortKey:           "funding_spread",
			TopN:              10,
		},
		Export: ExportConfig{
			Report:   ReportConfig{Output: "stdout", Format: "json"},
			Snapshot: SnapshotConfig{Compression: "snappy"},
		},
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Override S3 settings from environment variables if available
	if config.Storage.S3.Enabled {
		if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
			config.Storage.S3.AccessKeyID = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
			config.Storage.S3.SecretAccessKey = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_REGION"); v != "" {
			config.Storage.S3.Region = strings.TrimSpace(v)
		}
		if v := os.Getenv("S3_BUCKET"); v != "" {
			config.Storage.S3.Bucket = strings.TrimSpace(v)
		}
	}

	// Analyzer thresholds can be tuned per deployment without editing the
	// config file.
	if v := os.Getenv(envMinSpread); v != "" {
		config.Analyzer.MinSpread = strings.TrimSpace(v)
	}
	if v := os.Getenv(envMaxPriceSpreadPct); v != "" {
		config.Analyzer.MaxPriceSpreadPct = strings.TrimSpace(v)
	}
	if v := os.Getenv(envMinVolume); v != "" {
		config.Analyzer.MinVolume = strings.TrimSpace(v)
	}
	if v := os.Getenv(envTopN); v != "" {
		var n int
		if _, err := fmt.Sscanf(strings.TrimSpace(v), "%d", &n); err == nil {
			config.Analyzer.TopN = n
		}
	}

	config.Storage.S3.Bucket = strings.TrimSpace(config.Storage.S3.Bucket)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func validateConfig(cfg *Config) error {
	if cfg.Fundingflow.Name == "" {
		return fmt.Errorf("fundingflow.name is required")
	}

	if cfg.Fundingflow.Version == "" {
		return fmt.Errorf("fundingflow.version is required")
	}

	if cfg.Channels.ResultBuffer <= 0 {
		return fmt.Errorf("channels.result_buffer must be greater than 0")
	}

	if cfg.Fetcher.MaxWorkers <= 0 {
		return fmt.Errorf("fetcher.max_workers must be greater than 0")
	}
	if cfg.Fetcher.Timeout <= 0 {
		return fmt.Errorf("fetcher.timeout must be greater than 0")
	}
	if cfg.Fetcher.GlobalTimeout < cfg.Fetcher.Timeout {
		return fmt.Errorf("fetcher.global_timeout must not be shorter than fetcher.timeout")
	}

	for name, value := range map[string]string{
		"analyzer.min_spread":                cfg.Analyzer.MinSpread,
		"analyzer.max_price_spread_pct":      cfg.Analyzer.MaxPriceSpreadPct,
		"analyzer.min_volume":                cfg.Analyzer.MinVolume,
		"analyzer.max_time_to_funding_hours": cfg.Analyzer.MaxTimeToFunding,
	} {
		d, err := decimal.NewFromString(value)
		if err != nil {
			return fmt.Errorf("%s '%s' is not a valid decimal", name, value)
		}
		if d.Sign() < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}

	switch cfg.Analyzer.SortKey {
	case "funding_spread", "annualized_spread":
	default:
		return fmt.Errorf("analyzer.sort_key '%s' is invalid", cfg.Analyzer.SortKey)
	}

	if cfg.Analyzer.TopN < 0 {
		return fmt.Errorf("analyzer.top_n must not be negative")
	}

	if cfg.Storage.S3.Enabled {
		if cfg.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required when S3 is enabled")
		}
		if cfg.Storage.S3.Region == "" {
			return fmt.Errorf("storage.s3.region is required when S3 is enabled")
		}
		if !isValidS3Bucket(cfg.Storage.S3.Bucket) {
			return fmt.Errorf("storage.s3.bucket '%s' is invalid", cfg.Storage.S3.Bucket)
		}
	}

	switch cfg.Export.Report.Format {
	case "", "json", "text":
	default:
		return fmt.Errorf("export.report.format '%s' is invalid", cfg.Export.Report.Format)
	}

	switch cfg.Export.Snapshot.Compression {
	case "", "snappy", "gzip", "uncompressed":
	default:
		return fmt.Errorf("export.snapshot.compression '%s' is invalid", cfg.Export.Snapshot.Compression)
	}

	if cfg.Export.Snapshot.Upload && !cfg.Storage.S3.Enabled {
		return fmt.Errorf("export.snapshot.upload requires storage.s3.enabled")
	}

	return nil
}

// MinSpreadDecimal returns the validated min_spread threshold.
func (a AnalyzerConfig) MinSpreadDecimal() decimal.Decimal {
	return decimal.RequireFromString(a.MinSpread)
}

// MaxPriceSpreadPctDecimal returns the validated max_price_spread_pct
// threshold.
func (a AnalyzerConfig) MaxPriceSpreadPctDecimal() decimal.Decimal {
	return decimal.RequireFromString(a.MaxPriceSpreadPct)
}

// MinVolumeDecimal returns the validated min_volume threshold.
func (a AnalyzerConfig) MinVolumeDecimal() decimal.Decimal {
	return decimal.RequireFromString(a.MinVolume)
}

// MaxTimeToFundingDecimal returns the validated max_time_to_funding_hours
// threshold. Zero disables the filter.
func (a AnalyzerConfig) MaxTimeToFundingDecimal() decimal.Decimal {
	return decimal.RequireFromString(a.MaxTimeToFunding)
}

// EnabledExchanges lists the exchanges switched on in the source section,
// in a fixed order.
func (s SourceConfig) EnabledExchanges() []string {
	var out []string
	for _, e := range []struct {
		name string
		cfg  ExchangeSourceConfig
	}{
		{"binance", s.Binance},
		{"bybit", s.Bybit},
		{"gate", s.Gate},
		{"kucoin", s.Kucoin},
		{"okx", s.Okx},
	} {
		if e.cfg.Enabled {
			out = append(out, e.name)
		}
	}
	return out
}

// Exchange returns the source settings for the named exchange.
func (s SourceConfig) Exchange(name string) (ExchangeSourceConfig, bool) {
	switch name {
	case "binance":
		return s.Binance, true
	case "bybit":
		return s.Bybit, true
	case "kucoin":
		return s.Kucoin, true
	case "okx":
		return s.Okx, true
	case "gate":
		return s.Gate, true
	default:
		return ExchangeSourceConfig{}, false
	}
}

var s3BucketRegexp = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

func isValidS3Bucket(name string) bool {
	if len(name) < 3 || len(name) > 63 {
		return false
	}
	if strings.Contains(name, "..") || strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".") {
		return false
	}
	return s3BucketRegexp.MatchString(name)
}
