package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Источники списания остатка.
const (
	SourceOrder        = "order"
	SourcePartsRequest = "parts_request"
	SourceAdmin        = "admin"
)

// FulfillmentMetrics содержит метрики складского учёта и исполнения заказов.
// Все методы безопасны для nil-получателя, чтобы сервисы работали без метрик в тестах.
type FulfillmentMetrics struct {
	ordersCreated      prometheus.Counter
	checkoutFailures   *prometheus.CounterVec
	stockDeductions    *prometheus.CounterVec
	stockDeductedUnits *prometheus.CounterVec
	insufficientStock  *prometheus.CounterVec
	lowStockEvents     prometheus.Counter
	concurrencyRetries *prometheus.CounterVec
	operationDuration  *prometheus.HistogramVec
	partsRequests      *prometheus.CounterVec
	invoicesGenerated  prometheus.Counter
	paymentReviews     *prometheus.CounterVec
	timelineEvents     prometheus.Counter
	outboxEvents       prometheus.Counter
	inFlightOperations prometheus.Gauge
}

// NewFulfillmentMetrics регистрирует метрики в prometheus.DefaultRegisterer.
func NewFulfillmentMetrics() *FulfillmentMetrics {
	return NewFulfillmentMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewFulfillmentMetricsWithRegisterer регистрирует метрики в заданном registerer.
func NewFulfillmentMetricsWithRegisterer(registerer prometheus.Registerer) *FulfillmentMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &FulfillmentMetrics{
		ordersCreated: registerCounter(registerer, prometheus.CounterOpts{
			Name: "workshop_orders_created_total",
			Help: "Total number of orders created from carts",
		}),
		checkoutFailures: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "workshop_checkout_failures_total",
			Help: "Total number of failed checkouts grouped by reason",
		}, []string{"reason"}),
		stockDeductions: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "workshop_stock_deductions_total",
			Help: "Total number of successful stock deductions grouped by source",
		}, []string{"source"}),
		stockDeductedUnits: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "workshop_stock_deducted_units_total",
			Help: "Total number of deducted stock units grouped by source",
		}, []string{"source"}),
		insufficientStock: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "workshop_insufficient_stock_total",
			Help: "Total number of rejected deductions due to insufficient stock",
		}, []string{"source"}),
		lowStockEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "workshop_low_stock_events_total",
			Help: "Total number of transitions of a SKU into low stock",
		}),
		concurrencyRetries: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "workshop_concurrency_retries_total",
			Help: "Total number of retries caused by concurrency conflicts",
		}, []string{"operation"}),
		operationDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "workshop_operation_duration_seconds",
			Help:    "Duration of core operations in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"operation"}),
		partsRequests: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "workshop_parts_requests_total",
			Help: "Total number of parts request transitions grouped by result",
		}, []string{"result"}),
		invoicesGenerated: registerCounter(registerer, prometheus.CounterOpts{
			Name: "workshop_invoices_generated_total",
			Help: "Total number of generated invoices",
		}),
		paymentReviews: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "workshop_payment_reviews_total",
			Help: "Total number of payment review transitions grouped by subject and result",
		}, []string{"subject", "result"}),
		timelineEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "workshop_timeline_events_total",
			Help: "Total number of timeline events recorded",
		}),
		outboxEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "workshop_outbox_events_total",
			Help: "Total number of events enqueued to the outbox",
		}),
		inFlightOperations: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "workshop_inflight_operations",
			Help: "Number of core operations currently executing",
		}),
	}
}

// RecordOrderCreated увеличивает счётчик созданных заказов.
func (m *FulfillmentMetrics) RecordOrderCreated() {
	if m == nil {
		return
	}
	m.ordersCreated.Inc()
}

// RecordCheckoutFailure фиксирует неудачное оформление заказа.
func (m *FulfillmentMetrics) RecordCheckoutFailure(reason string) {
	if m == nil {
		return
	}
	m.checkoutFailures.WithLabelValues(reason).Inc()
}

// RecordDeduction фиксирует успешное списание qty единиц.
func (m *FulfillmentMetrics) RecordDeduction(source string, qty int) {
	if m == nil {
		return
	}
	m.stockDeductions.WithLabelValues(source).Inc()
	m.stockDeductedUnits.WithLabelValues(source).Add(float64(qty))
}

// RecordInsufficientStock фиксирует отказ по нехватке остатка.
func (m *FulfillmentMetrics) RecordInsufficientStock(source string) {
	if m == nil {
		return
	}
	m.insufficientStock.WithLabelValues(source).Inc()
}

// RecordLowStock фиксирует переход SKU в состояние низкого остатка.
func (m *FulfillmentMetrics) RecordLowStock() {
	if m == nil {
		return
	}
	m.lowStockEvents.Inc()
}

// RecordConcurrencyRetry фиксирует повтор операции после конфликта.
func (m *FulfillmentMetrics) RecordConcurrencyRetry(operation string) {
	if m == nil {
		return
	}
	m.concurrencyRetries.WithLabelValues(operation).Inc()
}

// ObserveOperation записывает длительность операции.
func (m *FulfillmentMetrics) ObserveOperation(operation string, duration time.Duration) {
	if m == nil {
		return
	}
	m.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// TrackOperation увеличивает gauge активных операций и возвращает функцию завершения,
// которая записывает длительность.
func (m *FulfillmentMetrics) TrackOperation(operation string) func() {
	if m == nil {
		return func() {}
	}
	started := time.Now()
	m.inFlightOperations.Inc()
	return func() {
		m.inFlightOperations.Dec()
		m.ObserveOperation(operation, time.Since(started))
	}
}

// RecordPartsRequest фиксирует переход заявки (created/approved/rejected).
func (m *FulfillmentMetrics) RecordPartsRequest(result string) {
	if m == nil {
		return
	}
	m.partsRequests.WithLabelValues(result).Inc()
}

// RecordInvoiceGenerated увеличивает счётчик сгенерированных счетов.
func (m *FulfillmentMetrics) RecordInvoiceGenerated() {
	if m == nil {
		return
	}
	m.invoicesGenerated.Inc()
}

// RecordPaymentReview фиксирует решение по оплате (subject: order|invoice).
func (m *FulfillmentMetrics) RecordPaymentReview(subject, result string) {
	if m == nil {
		return
	}
	m.paymentReviews.WithLabelValues(subject, result).Inc()
}

// RecordTimelineEvents добавляет n зафиксированных событий timeline.
func (m *FulfillmentMetrics) RecordTimelineEvents(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.timelineEvents.Add(float64(n))
}

// RecordOutboxEvents добавляет n зафиксированных событий outbox.
func (m *FulfillmentMetrics) RecordOutboxEvents(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.outboxEvents.Add(float64(n))
}
