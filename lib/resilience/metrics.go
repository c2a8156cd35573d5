package resilience

import (
	"github.com/go-i2p/fdfspool/lib/metrics"
)

// Circuit breaker metrics
var (
	// BreakerTrips counts the number of times breakers have opened.
	BreakerTrips = metrics.NewCounter(
		"fdfspool_circuit_breaker_trips_total",
		"Total number of times endpoint circuit breakers have opened",
	)

	// BreakerRejections counts dials rejected by open breakers.
	BreakerRejections = metrics.NewCounter(
		"fdfspool_circuit_breaker_rejections_total",
		"Total dials rejected by open circuit breakers",
	)
)
