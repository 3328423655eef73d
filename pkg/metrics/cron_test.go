package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestCronJobMetricsRecordsRuns(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCronJobMetrics(reg)
	finished := time.Unix(1767225600, 0)

	m.ObserveRun("outbox-retention", 250*time.Millisecond, nil, finished)
	m.ObserveRun("outbox-retention", 100*time.Millisecond, errors.New("boom"), finished.Add(time.Hour))
	m.ObserveRun("", time.Millisecond, nil, finished)
	m.IncLockSkipped()

	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("outbox-retention", outcomeSuccess)))
	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("outbox-retention", outcomeFailure)))
	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("unknown", outcomeSuccess)))
	require.Equal(t, 1.0, testutil.ToFloat64(m.lockSkips))

	// the failed run is later but must not move the gauge
	require.Equal(t, float64(finished.Unix()), testutil.ToFloat64(m.lastSuccess.WithLabelValues("outbox-retention")))

	mfs, err := reg.Gather()
	require.NoError(t, err)
	sum, err := fetchHistogramSum(mfs, "bazaar_cron_job_duration_seconds", "job", "outbox-retention")
	require.NoError(t, err)
	require.InDelta(t, 0.35, sum, 1e-9)

	require.Equal(t, 2, testutil.CollectAndCount(m.lastSuccess))
}

func TestCronJobMetricsNilRegistererIsNoop(t *testing.T) {
	m := NewCronJobMetrics(nil)
	m.ObserveRun("job", time.Second, nil, time.Now())
	m.IncLockSkipped()

	var nilMetrics *CronJobMetrics
	nilMetrics.ObserveRun("job", time.Second, nil, time.Now())
	nilMetrics.IncLockSkipped()
}

func TestCronJobMetricsRejectsDoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewCronJobMetrics(reg)
	require.Panics(t, func() { NewCronJobMetrics(reg) })
}
