package writer

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/shopspring/decimal"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"

	appconfig "fundingflow/config"
	"fundingflow/internal/model"
	"fundingflow/logger"
)

// ParquetRecord is the snapshot row layout. Funding and annualized rates
// are stored as their exact decimal text; the optional market fields stay
// null when the venue did not report them.
type ParquetRecord struct {
	Exchange        string   `parquet:"name=exchange, type=BYTE_ARRAY, convertedtype=UTF8"`
	Symbol          string   `parquet:"name=symbol, type=BYTE_ARRAY, convertedtype=UTF8"`
	FundingRate     string   `parquet:"name=funding_rate, type=BYTE_ARRAY, convertedtype=UTF8"`
	IntervalHours   float64  `parquet:"name=funding_interval_hours, type=DOUBLE"`
	AnnualizedRate  string   `parquet:"name=annualized_rate, type=BYTE_ARRAY, convertedtype=UTF8"`
	MarkPrice       *float64 `parquet:"name=mark_price, type=DOUBLE, repetitiontype=OPTIONAL"`
	Volume24hQuote  *float64 `parquet:"name=volume_24h_quote, type=DOUBLE, repetitiontype=OPTIONAL"`
	NextFundingTime *int64   `parquet:"name=next_funding_time, type=INT64, repetitiontype=OPTIONAL"`
	MaxOrderSize    *float64 `parquet:"name=max_order_size, type=DOUBLE, repetitiontype=OPTIONAL"`
	CollectedAt     int64    `parquet:"name=collected_at, type=INT64"`
}

// memoryFileWriter implements source.ParquetFile over a byte buffer so the
// snapshot is assembled in memory before it touches disk or S3.
type memoryFileWriter struct {
	buffer *bytes.Buffer
}

func newMemoryFileWriter() *memoryFileWriter {
	return &memoryFileWriter{buffer: &bytes.Buffer{}}
}

func (mfw *memoryFileWriter) Create(name string) (source.ParquetFile, error) {
	return mfw, nil
}

func (mfw *memoryFileWriter) Open(name string) (source.ParquetFile, error) {
	return mfw, nil
}

func (mfw *memoryFileWriter) Seek(offset int64, whence int) (int64, error) {
	// write-only usage, the parquet writer never seeks backwards
	return int64(mfw.buffer.Len()), nil
}

func (mfw *memoryFileWriter) Read(b []byte) (int, error) {
	return mfw.buffer.Read(b)
}

func (mfw *memoryFileWriter) Write(b []byte) (int, error) {
	return mfw.buffer.Write(b)
}

func (mfw *memoryFileWriter) Close() error {
	return nil
}

func (mfw *memoryFileWriter) Bytes() []byte {
	return mfw.buffer.Bytes()
}

// SnapshotWriter persists the enriched funding rate records of a run as a
// parquet file, locally and optionally to S3.
type SnapshotWriter struct {
	config   *appconfig.Config
	s3Client *s3.Client
	log      *logger.Log
}

// NewSnapshotWriter builds a snapshot writer. The S3 client is only
// constructed when uploads are enabled, so local-only deployments need no
// AWS credentials.
func NewSnapshotWriter(ctx context.Context, cfg *appconfig.Config) (*SnapshotWriter, error) {
	w := &SnapshotWriter{
		config: cfg,
		log:    logger.GetLogger(),
	}

	if !cfg.Export.Snapshot.Upload {
		return w, nil
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Storage.S3.Region),
	}
	if cfg.Storage.S3.AccessKeyID != "" && cfg.Storage.S3.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				cfg.Storage.S3.AccessKeyID,
				cfg.Storage.S3.SecretAccessKey,
				"",
			),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	creds, err := awsCfg.Credentials.Retrieve(ctx)
	if err != nil || !creds.HasKeys() {
		return nil, fmt.Errorf("aws credentials not found")
	}

	w.s3Client = s3.NewFromConfig(awsCfg)
	return w, nil
}

// Write renders the records into a parquet file named after the run and
// returns the local path. When uploads are enabled the same bytes are
// pushed to S3 under a date-partitioned key.
func (w *SnapshotWriter) Write(ctx context.Context, runID string, records []model.FundingRateRecord) (string, error) {
	log := w.log.WithComponent("snapshot_writer").WithFields(logger.Fields{
		"run_id":  runID,
		"records": len(records),
	})

	now := time.Now().UTC()
	data, err := w.createParquetFile(records, now)
	if err != nil {
		log.WithError(err).Error("failed to create snapshot")
		return "", err
	}

	dir := w.config.Export.Snapshot.Directory
	if dir == "" {
		dir = "snapshots"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.WithError(err).Error("failed to create snapshot directory")
		return "", fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	filename := fmt.Sprintf("funding_rates_%s_%s.parquet", now.Format("20060102150405"), runID)
	path := filepath.Join(dir, filename)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		log.WithError(err).Error("failed to write snapshot")
		return "", fmt.Errorf("failed to write snapshot: %w", err)
	}

	logger.IncrementExportWrite(int64(len(data)))
	log.WithFields(logger.Fields{
		"path":  path,
		"bytes": len(data),
	}).Info("snapshot written")

	if w.config.Export.Snapshot.Upload {
		key := w.generateS3Key(now, filename)
		if err := w.uploadToS3(ctx, key, data); err != nil {
			log.WithError(err).Error("failed to upload snapshot")
			return path, err
		}
	}

	return path, nil
}

func (w *SnapshotWriter) createParquetFile(records []model.FundingRateRecord, now time.Time) ([]byte, error) {
	fw := newMemoryFileWriter()

	pw, err := writer.NewParquetWriter(fw, new(ParquetRecord), 4)
	if err != nil {
		return nil, fmt.Errorf("failed to create parquet writer: %w", err)
	}

	switch w.config.Export.Snapshot.Compression {
	case "snappy":
		pw.CompressionType = parquet.CompressionCodec_SNAPPY
	case "gzip":
		pw.CompressionType = parquet.CompressionCodec_GZIP
	default:
		pw.CompressionType = parquet.CompressionCodec_UNCOMPRESSED
	}

	collectedAt := now.UnixMilli()
	for _, r := range records {
		row := ParquetRecord{
			Exchange:       r.Exchange,
			Symbol:         r.Symbol,
			FundingRate:    r.FundingRate.String(),
			IntervalHours:  r.FundingIntervalHours.InexactFloat64(),
			AnnualizedRate: r.AnnualizedRate.String(),
			MarkPrice:      optionalFloat(r.MarkPrice),
			Volume24hQuote: optionalFloat(r.Volume24hQuote),
			MaxOrderSize:   optionalFloat(r.MaxOrderSize),
			CollectedAt:    collectedAt,
		}
		if r.NextFundingTime != nil {
			ms := r.NextFundingTime.UnixMilli()
			row.NextFundingTime = &ms
		}

		if err := pw.Write(row); err != nil {
			pw.WriteStop()
			return nil, fmt.Errorf("failed to write parquet record: %w", err)
		}
	}

	if err := pw.WriteStop(); err != nil {
		return nil, fmt.Errorf("failed to finalize parquet writing: %w", err)
	}

	return fw.Bytes(), nil
}

func (w *SnapshotWriter) generateS3Key(ts time.Time, filename string) string {
	parts := []string{
		fmt.Sprintf("year=%04d", ts.Year()),
		fmt.Sprintf("month=%02d", ts.Month()),
		fmt.Sprintf("day=%02d", ts.Day()),
	}
	if prefix := w.config.Storage.S3.Prefix; prefix != "" {
		parts = append([]string{prefix}, parts...)
	}
	key := filepath.Join(append(parts, filename)...)
	return filepath.ToSlash(key)
}

func (w *SnapshotWriter) uploadToS3(ctx context.Context, key string, data []byte) error {
	log := w.log.WithComponent("snapshot_writer").WithFields(logger.Fields{
		"bucket": w.config.Storage.S3.Bucket,
		"key":    key,
	})

	input := &s3.PutObjectInput{
		Bucket:      aws.String(w.config.Storage.S3.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/octet-stream"),
		Metadata: map[string]string{
			"content-type":        "parquet",
			"compression":         w.config.Export.Snapshot.Compression,
			"fundingflow-version": w.config.Fundingflow.Version,
		},
	}

	// the upload should complete even if the run context was cancelled
	// after the fetch round finished
	uploadCtx := context.WithoutCancel(ctx)
	if _, err := w.s3Client.PutObject(uploadCtx, input); err != nil {
		return fmt.Errorf("failed to upload to S3 bucket %s: %w", w.config.Storage.S3.Bucket, err)
	}

	log.Info("snapshot uploaded")
	return nil
}

func optionalFloat(d *decimal.Decimal) *float64 {
	if d == nil {
		return nil
	}
	f := d.InexactFloat64()
	return &f
}
