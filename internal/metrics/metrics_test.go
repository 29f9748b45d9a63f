package metrics

import (
	"testing"
	"time"

	"sector-registry/sectorhub/internal/constants"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveTransitionRun(t *testing.T) {
	m := NewMetricsRegistry(prometheus.NewRegistry())
	finished := time.Unix(1735689600, 0)

	m.ObserveTransitionRun(constants.TransitionTriggerScheduled, constants.TransitionRunSucceeded, time.Second, 2, 1, finished)
	m.ObserveTransitionRun(constants.TransitionTriggerManual, constants.TransitionRunFailed, time.Second, 0, 0, finished.Add(time.Hour))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.TransitionRunsTotal.WithLabelValues(constants.TransitionTriggerScheduled, constants.TransitionRunSucceeded)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.TransitionRecordsTotal.WithLabelValues(constants.TransitionDeactivated)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TransitionRecordsTotal.WithLabelValues(constants.TransitionActivated)))
	// failed runs do not move the last-success gauge
	assert.Equal(t, float64(finished.Unix()), testutil.ToFloat64(m.TransitionLastSuccess))
}

func TestNilRegistryIsSafe(t *testing.T) {
	var m *MetricsRegistry
	assert.NotPanics(t, func() {
		m.ObserveMutation(constants.AuditActionCreate, 3)
		m.ObserveTransitionRun(constants.TransitionTriggerManual, constants.TransitionRunSucceeded, 0, 1, 1, time.Now())
	})
}
