package session

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/sony/gobreaker"

	"github.com/aristath/taskdriver/internal/worker"
)

// newWorkerBreaker builds the circuit breaker guarding worker
// invocations. Repeated worker failures in a row stop the session from
// hammering a broken CLI or a dead API.
func newWorkerBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 3, // test requests allowed in half-open state
		Interval:    0, // don't clear counts automatically
		Timeout:     30 * time.Second, // stay open for 30s before testing recovery
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Printf("Circuit breaker %q: %s -> %s", name, from, to)
		},
		IsSuccessful: func(err error) bool {
			// User cancellation is not a worker failure.
			if err == nil {
				return true
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return true
			}
			return false
		},
	})
}

// invokeThroughBreaker runs one worker invocation behind the breaker.
func invokeThroughBreaker(ctx context.Context, cb *gobreaker.CircuitBreaker, w worker.Worker, req worker.Request) (worker.Result, error) {
	result, err := cb.Execute(func() (interface{}, error) {
		return w.Invoke(ctx, req)
	})
	if err != nil {
		return worker.Result{}, err
	}
	return result.(worker.Result), nil
}
