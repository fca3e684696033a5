package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// CartMutationsTotal counts cart mutations by operation and result.
	CartMutationsTotal *prometheus.CounterVec
	// PromoAttemptsTotal counts promo code applications by result.
	PromoAttemptsTotal *prometheus.CounterVec
	// CheckoutTotal counts checkout attempts by outcome.
	CheckoutTotal *prometheus.CounterVec
	// CheckoutLatency records checkout gateway latency in milliseconds.
	CheckoutLatency *prometheus.HistogramVec
	// ShippingSelectionsTotal counts shipping method selections.
	ShippingSelectionsTotal *prometheus.CounterVec
	// SessionsActive tracks the number of in-memory sessions.
	SessionsActive prometheus.Gauge
	// SessionEvictionsTotal counts idle sessions evicted from memory.
	SessionEvictionsTotal prometheus.Counter
	// EventsPublishedTotal counts domain events handed to the async queue.
	EventsPublishedTotal *prometheus.CounterVec
	// EventsProcessedTotal counts event tasks handled by the worker.
	EventsProcessedTotal *prometheus.CounterVec
	// WebhookDeliveriesTotal counts webhook deliveries by outcome.
	WebhookDeliveriesTotal *prometheus.CounterVec
	// WebhookLatency records webhook delivery latency in milliseconds.
	WebhookLatency *prometheus.HistogramVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		CartMutationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cart_mutations_total",
			Help:      "Count of cart mutations by operation and result.",
		}, []string{"op", "result"})
		PromoAttemptsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "promo_attempts_total",
			Help:      "Count of promo code applications by result.",
		}, []string{"result"})
		CheckoutTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_total",
			Help:      "Count of checkout attempts by outcome.",
		}, []string{"result"})
		CheckoutLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "checkout_duration_ms",
			Help:      "Latency of checkout submissions in milliseconds.",
			Buckets:   []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"result"})
		ShippingSelectionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "shipping_selections_total",
			Help:      "Count of shipping method selections.",
		}, []string{"method"})
		SessionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of sessions held in memory.",
		})
		SessionEvictionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_evictions_total",
			Help:      "Number of idle sessions evicted from memory.",
		})
		EventsPublishedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Count of domain events enqueued for async delivery.",
		}, []string{"topic", "result"})
		EventsProcessedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_processed_total",
			Help:      "Count of event tasks processed by the worker.",
		}, []string{"topic", "result"})
		WebhookDeliveriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_deliveries_total",
			Help:      "Count of webhook deliveries by outcome.",
		}, []string{"result"})
		WebhookLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "webhook_delivery_duration_ms",
			Help:      "Latency of webhook deliveries in milliseconds.",
			Buckets:   []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"result"})

		reuseCounterVec := func(dst **prometheus.CounterVec) func(prometheus.Collector) {
			return func(existing prometheus.Collector) {
				if v, ok := existing.(*prometheus.CounterVec); ok {
					*dst = v
				}
			}
		}
		mustRegisterCollector(reg, CartMutationsTotal, reuseCounterVec(&CartMutationsTotal))
		mustRegisterCollector(reg, PromoAttemptsTotal, reuseCounterVec(&PromoAttemptsTotal))
		mustRegisterCollector(reg, CheckoutTotal, reuseCounterVec(&CheckoutTotal))
		mustRegisterCollector(reg, ShippingSelectionsTotal, reuseCounterVec(&ShippingSelectionsTotal))
		mustRegisterCollector(reg, EventsPublishedTotal, reuseCounterVec(&EventsPublishedTotal))
		mustRegisterCollector(reg, EventsProcessedTotal, reuseCounterVec(&EventsProcessedTotal))
		mustRegisterCollector(reg, WebhookDeliveriesTotal, reuseCounterVec(&WebhookDeliveriesTotal))
		reuseHistogramVec := func(dst **prometheus.HistogramVec) func(prometheus.Collector) {
			return func(existing prometheus.Collector) {
				if v, ok := existing.(*prometheus.HistogramVec); ok {
					*dst = v
				}
			}
		}
		mustRegisterCollector(reg, CheckoutLatency, reuseHistogramVec(&CheckoutLatency))
		mustRegisterCollector(reg, WebhookLatency, reuseHistogramVec(&WebhookLatency))
		mustRegisterCollector(reg, SessionsActive, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Gauge); ok {
				SessionsActive = v
			}
		})
		mustRegisterCollector(reg, SessionEvictionsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				SessionEvictionsTotal = v
			}
		})
	})
}

// CountCartMutation increments the cart mutation counter when registered.
func CountCartMutation(op string, ok bool) {
	if CartMutationsTotal == nil {
		return
	}
	CartMutationsTotal.WithLabelValues(op, resultLabel(ok)).Inc()
}

// CountPromoAttempt increments the promo counter when registered.
func CountPromoAttempt(result string) {
	if PromoAttemptsTotal != nil {
		PromoAttemptsTotal.WithLabelValues(result).Inc()
	}
}

// CountShippingSelection increments the shipping selection counter when registered.
func CountShippingSelection(method string) {
	if ShippingSelectionsTotal != nil {
		ShippingSelectionsTotal.WithLabelValues(method).Inc()
	}
}

// ObserveCheckout records a checkout outcome and its latency in milliseconds.
func ObserveCheckout(ok bool, millis float64) {
	result := resultLabel(ok)
	if CheckoutTotal != nil {
		CheckoutTotal.WithLabelValues(result).Inc()
	}
	if CheckoutLatency != nil {
		CheckoutLatency.WithLabelValues(result).Observe(millis)
	}
}

// SetSessionsActive records the number of in-memory sessions.
func SetSessionsActive(n int) {
	if SessionsActive != nil {
		SessionsActive.Set(float64(n))
	}
}

// CountSessionEvictions adds n evicted sessions.
func CountSessionEvictions(n int) {
	if SessionEvictionsTotal != nil && n > 0 {
		SessionEvictionsTotal.Add(float64(n))
	}
}

// CountEventPublished increments the event publish counter when registered.
func CountEventPublished(topic string, ok bool) {
	if EventsPublishedTotal != nil {
		EventsPublishedTotal.WithLabelValues(topic, resultLabel(ok)).Inc()
	}
}

// CountEventProcessed increments the worker event counter when registered.
func CountEventProcessed(topic string, ok bool) {
	if EventsProcessedTotal != nil {
		EventsProcessedTotal.WithLabelValues(topic, resultLabel(ok)).Inc()
	}
}

// ObserveWebhook records a webhook delivery outcome and latency.
func ObserveWebhook(result string, millis float64) {
	if WebhookDeliveriesTotal != nil {
		WebhookDeliveriesTotal.WithLabelValues(result).Inc()
	}
	if WebhookLatency != nil {
		WebhookLatency.WithLabelValues(result).Observe(millis)
	}
}

func resultLabel(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register domain metric: %w", err))
	}
}
