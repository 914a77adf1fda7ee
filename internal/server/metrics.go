// SPDX-License-Identifier: MPL-2.0

package server

import (
	"strconv"
	"time"

	"github.com/DataDog/datadog-go/v5/statsd"
)

const (
	metricRequests  = "requests"
	metricDuration  = "request.duration"
	metricPanics    = "panics"
	metricTimeouts  = "timeouts"
	metricPoolBusy  = "pool.busy"
	metricPoolSize  = "pool.size"
	metricNamespace = "berth."
)

// NewStatsd connects a DogStatsD client to addr. An empty addr returns a
// client that drops everything.
func NewStatsd(addr string, tags ...string) (statsd.ClientInterface, error) {
	if addr == "" {
		return &statsd.NoOpClient{}, nil
	}
	return statsd.New(addr, statsd.WithNamespace(metricNamespace), statsd.WithTags(tags))
}

// metrics wraps the client so failed sends never reach request handling.
type metrics struct {
	client statsd.ClientInterface
}

func (m metrics) request(status int, d time.Duration) {
	tags := []string{"status:" + strconv.Itoa(status)}
	_ = m.client.Incr(metricRequests, tags, 1)
	_ = m.client.Timing(metricDuration, d, tags, 1)
}

func (m metrics) panic() {
	_ = m.client.Incr(metricPanics, nil, 1)
}

func (m metrics) timeout() {
	_ = m.client.Incr(metricTimeouts, nil, 1)
}

func (m metrics) pool(busy, size int64) {
	_ = m.client.Gauge(metricPoolBusy, float64(busy), nil, 1)
	_ = m.client.Gauge(metricPoolSize, float64(size), nil, 1)
}
