package capacity

import (
	"context"

	"github.com/aurum-solar/core/internal/metrics"
)

// MeteredCounter decorates a Counter with Prometheus instrumentation,
// recording a rejection whenever check_and_increment disallows an
// attempt (spec §4.6 "On not allowed..."). Wrapping rather than
// modifying RedisCounter/MemoryCounter keeps both implementations
// metrics-agnostic, matching this package's existing
// production/in-process split.
type MeteredCounter struct {
	Counter
	metrics *metrics.Registry
}

// NewMeteredCounter wraps next with m. m must not be nil.
func NewMeteredCounter(next Counter, m *metrics.Registry) *MeteredCounter {
	return &MeteredCounter{Counter: next, metrics: m}
}

func (c *MeteredCounter) CheckAndIncrement(ctx context.Context, key string, window Window, limit int) (Result, error) {
	res, err := c.Counter.CheckAndIncrement(ctx, key, window, limit)
	if err == nil && !res.Allowed {
		c.metrics.CapacityRejections.WithLabelValues(string(window)).Inc()
	}
	return res, err
}
