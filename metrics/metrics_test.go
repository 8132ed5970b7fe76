package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func TestRecordPassLatencyObserves(t *testing.T) {
	reg := prometheus.NewRegistry()
	pm := NewPrometheusMetrics(reg)

	pm.RecordPassLatency("run-1", 5*time.Millisecond)

	families, err := reg.Gather()
	require.NoError(t, err)
	require.True(t, findHistogramSampleCount(families, "opensight_pass_latency_ms") == 1)
}

func TestDisableSuppressesRecording(t *testing.T) {
	reg := prometheus.NewRegistry()
	pm := NewPrometheusMetrics(reg)
	pm.Disable()

	pm.RecordPassLatency("run-1", time.Millisecond)
	pm.IncrementSkips("run-1", "node-a")

	families, err := reg.Gather()
	require.NoError(t, err)
	require.EqualValues(t, 0, findHistogramSampleCount(families, "opensight_pass_latency_ms"))
}

func findHistogramSampleCount(families []*dto.MetricFamily, name string) uint64 {
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		var total uint64
		for _, m := range f.GetMetric() {
			total += m.GetHistogram().GetSampleCount()
		}
		return total
	}
	return 0
}
