package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)

	r.RecordMessageSent("kafka", "p1")
	r.RecordMessageSent("kafka", "p1")
	r.RecordError("publish")
	r.RecordLastPrice("p1", 1_010_000)
	r.RecordLatency("market_price_tick", 0.002)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.messagesSent.WithLabelValues("kafka", "p1")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.errorsTotal.WithLabelValues("publish")))
	assert.Equal(t, 1_010_000.0, testutil.ToFloat64(r.lastPrice.WithLabelValues("p1")))
	assert.Equal(t, 1, testutil.CollectAndCount(r.latency))
}
