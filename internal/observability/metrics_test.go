package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// counterValue reads the current value of a counter from the default gatherer.
func counterValue(t *testing.T, name string) float64 {
	t.Helper()

	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)

	for _, mf := range families {
		if mf.GetName() == name {
			var total float64
			for _, m := range mf.GetMetric() {
				total += m.GetCounter().GetValue()
			}
			return total
		}
	}
	t.Fatalf("metric %s not found", name)
	return 0
}

func TestNewMetrics(t *testing.T) {
	// promauto registers against the default registry; a single instance
	// is shared by all subtests to avoid duplicate registration.
	m := NewMetrics("paperpipe_test")

	m.RunsCompleted.Inc()
	m.RunsCompleted.Inc()
	m.RunsRejected.Inc()
	m.ItemsFiltered.Inc()
	m.StageAttempts.WithLabelValues("relevance").Inc()
	m.SchedulerMissedTicks.WithLabelValues("arxiv-daily").Inc()
	m.EngineQueueDepth.Set(3)

	assert.Equal(t, 2.0, counterValue(t, "paperpipe_test_runs_completed_total"))
	assert.Equal(t, 1.0, counterValue(t, "paperpipe_test_runs_rejected_total"))
	assert.Equal(t, 1.0, counterValue(t, "paperpipe_test_items_filtered_total"))
	assert.Equal(t, 1.0, counterValue(t, "paperpipe_test_stage_attempts_total"))
	assert.Equal(t, 1.0, counterValue(t, "paperpipe_test_scheduler_missed_ticks_total"))

	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	var gauge *dto.MetricFamily
	for _, mf := range families {
		if mf.GetName() == "paperpipe_test_engine_queue_depth" {
			gauge = mf
		}
	}
	require.NotNil(t, gauge)
	assert.Equal(t, 3.0, gauge.GetMetric()[0].GetGauge().GetValue())
}
