package middleware_test

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/relicore/toil/id"
	"github.com/relicore/toil/job"
	mw "github.com/relicore/toil/middleware"
)

// runMetered executes the metrics middleware once against an urgent
// cleanup-cache job and returns everything the manual reader collected.
func runMetered(t *testing.T, handlerErr error) metricdata.ResourceMetrics {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m := mw.MetricsWithMeter(mp.Meter("metered"))

	j := &job.Job{ID: id.NewJobID(), Type: "cleanup-cache", Priority: job.PriorityUrgent}
	_ = m(context.Background(), j, func(_ context.Context) error {
		return handlerErr
	})

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	return rm
}

// instrument digs the named metric out of the collected set.
func instrument(t *testing.T, rm metricdata.ResourceMetrics, name string) metricdata.Metrics {
	t.Helper()
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == name {
				return m
			}
		}
	}
	t.Fatalf("instrument %q not collected", name)
	return metricdata.Metrics{}
}

func stringAttrs(set attribute.Set) map[string]string {
	out := make(map[string]string)
	for _, a := range set.ToSlice() {
		if a.Value.Type() == attribute.STRING {
			out[string(a.Key)] = a.Value.AsString()
		}
	}
	return out
}

func TestMetrics_DurationHistogram(t *testing.T) {
	rm := runMetered(t, nil)

	hist, ok := instrument(t, rm, "toil.job.duration").Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("toil.job.duration is not a float64 histogram")
	}
	if len(hist.DataPoints) != 1 {
		t.Fatalf("duration data points = %d, want 1", len(hist.DataPoints))
	}
	dp := hist.DataPoints[0]
	if dp.Count != 1 {
		t.Errorf("duration count = %d, want 1", dp.Count)
	}
	if dp.Sum < 0 {
		t.Errorf("duration sum = %v, want non-negative", dp.Sum)
	}
}

func TestMetrics_ExecutionCounterStatus(t *testing.T) {
	cases := []struct {
		name       string
		handlerErr error
		wantStatus string
	}{
		{"success counts as ok", nil, "ok"},
		{"failure counts as error", errors.New("purge failed"), "error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rm := runMetered(t, tc.handlerErr)

			sum, ok := instrument(t, rm, "toil.job.executions").Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatal("toil.job.executions is not an int64 sum")
			}
			if len(sum.DataPoints) != 1 {
				t.Fatalf("execution data points = %d, want 1", len(sum.DataPoints))
			}
			dp := sum.DataPoints[0]
			if dp.Value != 1 {
				t.Errorf("execution count = %d, want 1", dp.Value)
			}

			attrs := stringAttrs(dp.Attributes)
			if attrs["status"] != tc.wantStatus {
				t.Errorf("status attribute = %q, want %q", attrs["status"], tc.wantStatus)
			}
			if attrs["job_type"] != "cleanup-cache" {
				t.Errorf("job_type attribute = %q", attrs["job_type"])
			}
			if attrs["priority"] != "urgent" {
				t.Errorf("priority attribute = %q", attrs["priority"])
			}
		})
	}
}

func TestMetrics_GlobalProviderDefaultIsSafe(t *testing.T) {
	// Without a configured global meter provider the middleware must be a
	// transparent pass-through, not a panic.
	m := mw.Metrics()
	j := &job.Job{ID: id.NewJobID(), Type: "cleanup-cache"}

	var ran bool
	if err := m(context.Background(), j, func(_ context.Context) error {
		ran = true
		return nil
	}); err != nil || !ran {
		t.Fatalf("pass-through: ran=%v err=%v", ran, err)
	}
}
