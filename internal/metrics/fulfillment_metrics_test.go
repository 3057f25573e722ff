package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	metric := &dto.Metric{}
	if err := c.Write(metric); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}
	return metric.Counter.GetValue()
}

func TestNewFulfillmentMetrics(t *testing.T) {
	m := NewFulfillmentMetricsWithRegisterer(prometheus.NewRegistry())

	if m.ordersCreated == nil || m.stockDeductions == nil || m.operationDuration == nil {
		t.Fatal("collectors should not be nil")
	}
	if m.inFlightOperations == nil {
		t.Fatal("inFlightOperations gauge should not be nil")
	}
}

func TestNewFulfillmentMetrics_ReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first := NewFulfillmentMetricsWithRegisterer(reg)
	second := NewFulfillmentMetricsWithRegisterer(reg)

	first.RecordOrderCreated()
	second.RecordOrderCreated()

	if got := counterValue(t, first.ordersCreated); got != 2 {
		t.Fatalf("expected shared counter value 2, got %f", got)
	}
}

func TestRecordDeduction(t *testing.T) {
	m := NewFulfillmentMetricsWithRegisterer(prometheus.NewRegistry())

	m.RecordDeduction(SourceOrder, 3)
	m.RecordDeduction(SourceOrder, 2)
	m.RecordDeduction(SourcePartsRequest, 1)

	if got := counterValue(t, m.stockDeductions.WithLabelValues(SourceOrder)); got != 2 {
		t.Errorf("expected 2 order deductions, got %f", got)
	}
	if got := counterValue(t, m.stockDeductedUnits.WithLabelValues(SourceOrder)); got != 5 {
		t.Errorf("expected 5 deducted units, got %f", got)
	}
	if got := counterValue(t, m.stockDeductions.WithLabelValues(SourcePartsRequest)); got != 1 {
		t.Errorf("expected 1 parts request deduction, got %f", got)
	}
}

func TestRecordEventCounts(t *testing.T) {
	m := NewFulfillmentMetricsWithRegisterer(prometheus.NewRegistry())

	m.RecordOutboxEvents(2)
	m.RecordOutboxEvents(0)
	m.RecordTimelineEvents(3)
	m.RecordTimelineEvents(-1)

	if got := counterValue(t, m.outboxEvents); got != 2 {
		t.Errorf("expected 2 outbox events, got %f", got)
	}
	if got := counterValue(t, m.timelineEvents); got != 3 {
		t.Errorf("expected 3 timeline events, got %f", got)
	}
}

func TestTrackOperation(t *testing.T) {
	m := NewFulfillmentMetricsWithRegisterer(prometheus.NewRegistry())

	done := m.TrackOperation("checkout")
	gauge := &dto.Metric{}
	if err := m.inFlightOperations.Write(gauge); err != nil {
		t.Fatalf("failed to write gauge: %v", err)
	}
	if gauge.Gauge.GetValue() != 1 {
		t.Fatalf("expected 1 in-flight operation, got %f", gauge.Gauge.GetValue())
	}

	time.Sleep(time.Millisecond)
	done()

	if err := m.inFlightOperations.Write(gauge); err != nil {
		t.Fatalf("failed to write gauge: %v", err)
	}
	if gauge.Gauge.GetValue() != 0 {
		t.Fatalf("expected 0 in-flight operations, got %f", gauge.Gauge.GetValue())
	}

	observer, err := m.operationDuration.GetMetricWithLabelValues("checkout")
	if err != nil {
		t.Fatalf("get histogram: %v", err)
	}
	hist := &dto.Metric{}
	if err := observer.(prometheus.Histogram).Write(hist); err != nil {
		t.Fatalf("failed to write histogram: %v", err)
	}
	if hist.Histogram.GetSampleCount() != 1 {
		t.Fatalf("expected 1 sample, got %d", hist.Histogram.GetSampleCount())
	}
}

func TestNilMetricsAreNoop(t *testing.T) {
	var m *FulfillmentMetrics

	m.RecordOrderCreated()
	m.RecordCheckoutFailure("x")
	m.RecordDeduction(SourceOrder, 1)
	m.RecordInsufficientStock(SourceOrder)
	m.RecordLowStock()
	m.RecordConcurrencyRetry("op")
	m.RecordPartsRequest("created")
	m.RecordInvoiceGenerated()
	m.RecordPaymentReview("order", "approved")
	m.RecordTimelineEvents(1)
	m.RecordOutboxEvents(1)
	m.TrackOperation("op")()
}

func TestOutboxMetrics_SetBacklog(t *testing.T) {
	m := NewOutboxMetrics(prometheus.NewRegistry())
	now := time.Now()

	m.SetBacklog(3, now.Add(-5*time.Second), now)
	gauge := &dto.Metric{}
	if err := m.oldestPendingAge.Write(gauge); err != nil {
		t.Fatalf("failed to write gauge: %v", err)
	}
	if gauge.Gauge.GetValue() != 5 {
		t.Fatalf("expected age 5s, got %f", gauge.Gauge.GetValue())
	}

	m.SetBacklog(0, time.Time{}, now)
	if err := m.oldestPendingAge.Write(gauge); err != nil {
		t.Fatalf("failed to write gauge: %v", err)
	}
	if gauge.Gauge.GetValue() != 0 {
		t.Fatalf("expected age reset to 0, got %f", gauge.Gauge.GetValue())
	}

	m.RecordPublish(OutboxSent)
	if got := counterValue(t, m.publishAttempts.WithLabelValues(OutboxSent)); got != 1 {
		t.Fatalf("expected 1 sent attempt, got %f", got)
	}

	var nilMetrics *OutboxMetrics
	nilMetrics.RecordPublish(OutboxFailed)
	nilMetrics.SetBacklog(1, now, now)
}
