package repository

import (
	"time"

	"github.com/sony/gobreaker"

	xlogger "EstateDesk/pkg/logger"
)

// newBreaker trips after 5 consecutive failures, or a 50% failure rate over
// at least 20 requests, and retries after 30s.
func newBreaker(name string, logger *xlogger.Logger) *gobreaker.CircuitBreaker {
	st := gobreaker.Settings{
		Name:     name,
		Interval: time.Minute,
		Timeout:  30 * time.Second,
	}
	st.ReadyToTrip = func(counts gobreaker.Counts) bool {
		if counts.ConsecutiveFailures >= 5 {
			return true
		}
		if counts.Requests < 20 {
			return false
		}
		return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.5
	}
	st.OnStateChange = func(name string, from, to gobreaker.State) {
		logger.Warn("circuit breaker state change",
			xlogger.String("breaker", name),
			xlogger.String("from", from.String()),
			xlogger.String("to", to.String()),
		)
	}
	return gobreaker.NewCircuitBreaker(st)
}
