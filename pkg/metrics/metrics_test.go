package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/trainprep/pkg/errors"
)

func gather(t *testing.T, reg *prometheus.Registry) map[string]*dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	out := make(map[string]*dto.MetricFamily, len(families))
	for _, f := range families {
		out[f.GetName()] = f
	}
	return out
}

func labelValue(m *dto.Metric, name string) string {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}

func TestCollectorRecordsLoad(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordCatalog(3, 2)
	c.RecordSample("1", 3)
	c.RecordSample("0", 5)
	c.RecordSample("1", 2)
	c.ObserveLoad(120*time.Millisecond, nil)
	c.ObserveLoad(time.Millisecond, errors.New(errors.ErrorTypeMissingStructure, "no samples"))

	families := gather(t, reg)

	events := families["trainprep_events_loaded_total"]
	require.NotNil(t, events)
	assert.Equal(t, 10.0, events.GetMetric()[0].GetCounter().GetValue())

	samples := families["trainprep_samples_loaded_total"]
	require.NotNil(t, samples)
	byLabel := map[string]float64{}
	for _, m := range samples.GetMetric() {
		byLabel[labelValue(m, "label")] = m.GetCounter().GetValue()
	}
	assert.Equal(t, map[string]float64{"0": 1, "1": 2}, byLabel)

	loadErrors := families["trainprep_load_errors_total"]
	require.NotNil(t, loadErrors)
	require.Len(t, loadErrors.GetMetric(), 1)
	assert.Equal(t, "missing_structure", labelValue(loadErrors.GetMetric()[0], "kind"))

	features := families["trainprep_catalog_features"]
	require.NotNil(t, features)
	counts := map[string]float64{}
	for _, m := range features.GetMetric() {
		counts[labelValue(m, "set")] = m.GetGauge().GetValue()
	}
	assert.Equal(t, map[string]float64{"raw": 3, "trainable": 2}, counts)

	duration := families["trainprep_load_duration_seconds"]
	require.NotNil(t, duration)
	assert.Len(t, duration.GetMetric(), 2)
}

func TestCollectorsAreIsolated(t *testing.T) {
	a := prometheus.NewRegistry()
	b := prometheus.NewRegistry()
	NewCollector(a).RecordSample("1", 4)
	NewCollector(b)

	assert.Contains(t, gather(t, a), "trainprep_samples_loaded_total")
	assert.NotContains(t, gather(t, b), "trainprep_samples_loaded_total")
}

func TestDefaultIsShared(t *testing.T) {
	assert.Same(t, Default(), Default())
}

func TestThroughputTracker(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	tracker := NewThroughputTracker(c)

	tracker.Increment(100)
	time.Sleep(10 * time.Millisecond)
	rate := tracker.GetAndReset()
	assert.Greater(t, rate, 0.0)

	g := gather(t, reg)["trainprep_events_per_second"]
	require.NotNil(t, g)
	assert.Equal(t, rate, g.GetMetric()[0].GetGauge().GetValue())
}

func TestTimer(t *testing.T) {
	timer := NewTimer()
	time.Sleep(time.Millisecond)
	assert.GreaterOrEqual(t, timer.Stop(), time.Millisecond)
}
