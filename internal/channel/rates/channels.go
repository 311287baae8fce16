package rates

import (
	"context"
	"sync"

	"fundingflow/internal/model"
	"fundingflow/logger"
)

// ChannelStats tracks enqueue/dropped counters.
type ChannelStats struct {
	ResultsSent    int64
	ResultsDropped int64
}

// Channels carries per-exchange fetch results from the fan-out workers to
// the single collector.
type Channels struct {
	Results chan model.ExchangeResult

	stats ChannelStats
	mu    sync.RWMutex
	log   *logger.Log
}

// NewChannels allocates the buffered results channel. The buffer should
// hold at least one result per enabled exchange so a slow collector never
// blocks a finished fetch.
func NewChannels(bufferSize int) *Channels {
	log := logger.GetLogger()
	ch := &Channels{
		Results: make(chan model.ExchangeResult, bufferSize),
		log:     log,
	}

	log.WithComponent("rates_channels").WithFields(logger.Fields{
		"buffer_size": bufferSize,
	}).Info("funding result channel initialized")

	return ch
}

// Close closes the results channel, signalling the collector to drain and
// stop.
func (c *Channels) Close() {
	close(c.Results)
	c.log.WithComponent("rates_channels").Info("funding result channel closed")
}

// SendResult enqueues one exchange's fetch outcome. A full buffer drops
// the result rather than blocking the worker.
func (c *Channels) SendResult(ctx context.Context, result model.ExchangeResult) bool {
	select {
	case c.Results <- result:
		c.incrementSent()
		logger.RecordChannelMessage("rates_results", len(result.Records))
		return true
	case <-ctx.Done():
		return false
	default:
		c.incrementDropped()
		c.log.WithComponent("rates_channels").WithFields(logger.Fields{
			"exchange": result.Exchange,
		}).Warn("result channel full, dropping exchange result")
		return false
	}
}

// GetStats returns a snapshot of the telemetry counters.
func (c *Channels) GetStats() ChannelStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}

func (c *Channels) incrementSent() {
	c.mu.Lock()
	c.stats.ResultsSent++
	c.mu.Unlock()
}

func (c *Channels) incrementDropped() {
	c.mu.Lock()
	c.stats.ResultsDropped++
	c.mu.Unlock()
}
