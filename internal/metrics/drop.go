package metrics

import "fundingflow/logger"

// DropMetric identifies the metric name emitted when channel messages are dropped.
type DropMetric string

const (
	// DropMetricResult records exchange results dropped on a full collector channel.
	DropMetricResult DropMetric = "result_messages_dropped"
)

// EmitDropMetric logs and emits a metric representing a dropped channel message.
// The metric value is always incremented by one so callers should invoke this
// helper for each dropped message. Optional metadata (exchange, stage) is added
// to the metric fields when provided.
func EmitDropMetric(log *logger.Log, metric DropMetric, exchange, stage string) {
	fields := logger.Fields{}
	if exchange != "" {
		fields["exchange"] = exchange
	}
	if stage != "" {
		fields["stage"] = stage
	}

	if log == nil {
		log = logger.GetLogger()
	}
	log.LogMetric("channel_drops", string(metric), 1, "counter", fields)
}
