package metrics

import (
	"sync"

	"gearrental/internal/events"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "gearrental"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Count of API requests by handler.",
		},
		[]string{"handler"},
	)

	availabilityChecks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "availability_checks_total",
			Help:      "Count of availability checks by result.",
		},
		[]string{"result"},
	)

	bookingsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bookings_created_total",
			Help:      "Count of bookings created.",
		},
	)

	bookingConflicts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_conflicts_total",
			Help:      "Count of checkouts refused because of overlapping bookings, by stage.",
		},
		[]string{"stage"},
	)

	statusChanges = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_status_changes_total",
			Help:      "Count of booking status changes by target status.",
		},
		[]string{"status"},
	)

	cacheRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_requests_total",
			Help:      "Count of booked-dates cache lookups by result.",
		},
		[]string{"result"},
	)

	domainEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Count of booking events delivered on the bus, by type.",
		},
		[]string{"type"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			availabilityChecks,
			bookingsCreated,
			bookingConflicts,
			statusChanges,
			cacheRequests,
			domainEvents,
		)
	})
}

func IncHTTP(handler string) {
	httpRequests.WithLabelValues(handler).Inc()
}

func IncAvailabilityCheck(result string) {
	availabilityChecks.WithLabelValues(result).Inc()
}

func IncBookingCreated() {
	bookingsCreated.Inc()
}

// IncBookingConflict counts a refused checkout. stage is "check" or "insert".
func IncBookingConflict(stage string) {
	bookingConflicts.WithLabelValues(stage).Inc()
}

func IncStatusChange(status string) {
	statusChanges.WithLabelValues(status).Inc()
}

func IncCache(result string) {
	cacheRequests.WithLabelValues(result).Inc()
}

// CountEvent is an events.EventHandler that counts every delivered event by type.
func CountEvent(e events.Event) error {
	domainEvents.WithLabelValues(e.Type).Inc()
	return nil
}

// SubscribeEvents attaches CountEvent to every booking event type.
func SubscribeEvents(bus *events.EventBus) {
	for _, t := range []string{events.BookingCreated, events.BookingStatusChanged, events.UndertakingSigned} {
		bus.Subscribe(t, CountEvent)
	}
}
