package metrics

import (
	"errors"
	"log/slog"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
)

// NewBreaker returns a circuit breaker for an outbound dependency (mail
// provider, object store) with its state exported as metrics.
//
// Settings:
//   - 3 trial requests while half-open
//   - counts reset every minute while closed
//   - 30s open before trying again
//   - trips at >= 60% failures once there are at least 5 requests
func NewBreaker[T any](name string, logger *slog.Logger) *gobreaker.CircuitBreaker[T] {
	CircuitBreakerState.WithLabelValues(name).Set(0)

	return gobreaker.NewCircuitBreaker[T](gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 5 {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return ratio >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
			CircuitBreakerState.WithLabelValues(name).Set(stateValue(to))
		},
	})
}

// RecordBreakerResult classifies the error returned by cb.Execute.
func RecordBreakerResult(name string, err error) {
	switch {
	case err == nil:
		CircuitBreakerRequests.WithLabelValues(name, "success").Inc()
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		CircuitBreakerRequests.WithLabelValues(name, "rejected").Inc()
	default:
		CircuitBreakerRequests.WithLabelValues(name, "failure").Inc()
	}
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
