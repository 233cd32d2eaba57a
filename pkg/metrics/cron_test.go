package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestCronJobMetricsExportsCountersAndHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewCronJobMetrics(reg)
	job := "test-job"
	metrics.ObserveDuration(job, 250*time.Millisecond)
	metrics.IncSuccess(job)
	metrics.IncFailure(job)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	success := findSample(t, mfs, "cron_job_runs_total", "outcome", "success")
	if got := success.GetCounter().GetValue(); got != 1 {
		t.Fatalf("expected success=1, got %f", got)
	}

	failure := findSample(t, mfs, "cron_job_runs_total", "outcome", "failure")
	if got := failure.GetCounter().GetValue(); got != 1 {
		t.Fatalf("expected failure=1, got %f", got)
	}

	duration := findSample(t, mfs, "cron_job_duration_seconds", "job", job)
	if got := duration.GetHistogram().GetSampleSum(); got <= 0 {
		t.Fatalf("expected duration sum > 0, got %f", got)
	}
}

func TestPaymentMetricsRecordsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewPaymentMetrics(reg)
	metrics.Record(PaymentOutcomeConfirmed, 40*time.Millisecond)
	metrics.Record(PaymentOutcomeDuplicate, 5*time.Millisecond)
	metrics.Record(PaymentOutcomeDuplicate, 5*time.Millisecond)
	metrics.Record("", time.Millisecond)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	dup := findSample(t, mfs, "payment_confirmations_total", "outcome", PaymentOutcomeDuplicate)
	if got := dup.GetCounter().GetValue(); got != 2 {
		t.Fatalf("expected duplicate=2, got %f", got)
	}

	latency := findSample(t, mfs, "payment_confirmation_seconds", "outcome", PaymentOutcomeConfirmed)
	if got := latency.GetHistogram().GetSampleSum(); got <= 0 {
		t.Fatalf("expected latency sum > 0, got %f", got)
	}

	unknown := findSample(t, mfs, "payment_confirmations_total", "outcome", "unknown")
	if got := unknown.GetCounter().GetValue(); got != 1 {
		t.Fatalf("expected unknown=1, got %f", got)
	}
}

// findSample locates the sample of family name carrying label=value, failing
// the test when absent.
func findSample(t *testing.T, mfs []*dto.MetricFamily, name, label, value string) *dto.Metric {
	t.Helper()
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			for _, pair := range metric.GetLabel() {
				if pair.GetName() == label && pair.GetValue() == value {
					return metric
				}
			}
		}
		t.Fatalf("metric %q has no sample with %s=%s", name, label, value)
	}
	t.Fatalf("metric %q not found", name)
	return nil
}
