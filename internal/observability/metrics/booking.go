package metrics

import "github.com/prometheus/client_golang/prometheus"

// BookingMetrics exposes counters for slot generation and the booking
// lifecycle.
type BookingMetrics struct {
	bookingsTotal    *prometheus.CounterVec
	transitionsTotal *prometheus.CounterVec
	slotsCreated     prometheus.Counter
	slotsSkipped     prometheus.Counter
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "peegflow",
			Subsystem: "scheduling",
			Name:      "bookings_total",
			Help:      "Booking attempts by outcome",
		}, []string{"outcome"}),
		transitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "peegflow",
			Subsystem: "scheduling",
			Name:      "transitions_total",
			Help:      "Lifecycle transitions by target status",
		}, []string{"to"}),
		slotsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "peegflow",
			Subsystem: "scheduling",
			Name:      "slots_created_total",
			Help:      "Slots created by bulk generation",
		}),
		slotsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "peegflow",
			Subsystem: "scheduling",
			Name:      "slots_skipped_total",
			Help:      "Slot candidates skipped due to overlap",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.bookingsTotal, m.transitionsTotal, m.slotsCreated, m.slotsSkipped)
	return m
}

func (m *BookingMetrics) ObserveBooking(outcome string) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(outcome).Inc()
}

func (m *BookingMetrics) ObserveTransition(to string) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(to).Inc()
}

func (m *BookingMetrics) ObserveSlots(created, skipped int) {
	if m == nil {
		return
	}
	m.slotsCreated.Add(float64(created))
	m.slotsSkipped.Add(float64(skipped))
}
