package metrics

import "github.com/prometheus/client_golang/prometheus"

// FulfillmentMetrics counts fulfillment dispatches and poll reconciler work by
// trigger source, so duplicate suppression is observable.
type FulfillmentMetrics struct {
	dispatches   *prometheus.CounterVec
	duplicates   *prometheus.CounterVec
	pollAttempts prometheus.Counter
	pollTimeouts prometheus.Counter
}

// NewFulfillmentMetrics registers fulfillment metrics on the provided registerer.
func NewFulfillmentMetrics(reg prometheus.Registerer) *FulfillmentMetrics {
	if reg == nil {
		return &FulfillmentMetrics{}
	}
	dispatches := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fulfillment_dispatch_total",
		Help: "Fulfillment dispatches that won the status transition.",
	}, []string{"source"})
	duplicates := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fulfillment_duplicate_total",
		Help: "Dispatch attempts suppressed by the status transition.",
	}, []string{"source"})
	pollAttempts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "payment_poll_attempts_total",
		Help: "Gateway status poll attempts.",
	})
	pollTimeouts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "payment_poll_timeouts_total",
		Help: "Orders abandoned after the poll schedule was exhausted.",
	})
	reg.MustRegister(dispatches, duplicates, pollAttempts, pollTimeouts)
	return &FulfillmentMetrics{
		dispatches:   dispatches,
		duplicates:   duplicates,
		pollAttempts: pollAttempts,
		pollTimeouts: pollTimeouts,
	}
}

// IncDispatch counts a dispatch that won the transition for the given source.
func (f *FulfillmentMetrics) IncDispatch(source string) {
	if f == nil || f.dispatches == nil {
		return
	}
	f.dispatches.WithLabelValues(normalizeLabel(source)).Inc()
}

// IncDuplicate counts a dispatch suppressed as a duplicate for the given source.
func (f *FulfillmentMetrics) IncDuplicate(source string) {
	if f == nil || f.duplicates == nil {
		return
	}
	f.duplicates.WithLabelValues(normalizeLabel(source)).Inc()
}

// IncPollAttempt counts one gateway status poll.
func (f *FulfillmentMetrics) IncPollAttempt() {
	if f == nil || f.pollAttempts == nil {
		return
	}
	f.pollAttempts.Inc()
}

// IncPollTimeout counts one order abandoned on poll exhaustion.
func (f *FulfillmentMetrics) IncPollTimeout() {
	if f == nil || f.pollTimeouts == nil {
		return
	}
	f.pollTimeouts.Inc()
}
