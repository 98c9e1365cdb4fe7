/*
Package resilience provides circuit breaker implementation for graceful degradation.

# Overview

This package implements the circuit breaker pattern. The service uses it to
stop hammering an unreachable trace collector: while the breaker is open,
span batches are dropped instead of waiting on export timeouts.

# Features

- Three-state circuit breaker (Closed, Open, Half-Open)
- Consecutive-failure threshold and open timeout
- Injectable clock for tests
- State change callbacks for monitoring
- Cancelled calls are not counted against the dependency

# Usage

	breaker := resilience.New("span-exporter", resilience.Settings{
		FailureThreshold: 5,
		OpenTimeout:      30 * time.Second,
		OnStateChange: func(name string, from, to resilience.State) {
			logger.Warn("breaker state changed", zap.String("breaker", name),
				zap.Stringer("from", from), zap.Stringer("to", to))
		},
	})

	err := breaker.Call(ctx, func(ctx context.Context) error {
		return exporter.ExportSpans(ctx, spans)
	})

# States

- Closed: Normal operation, requests pass through
- Open: Service unavailable, requests fail immediately
- Half-Open: Testing if service recovered, limited requests allowed

# Pattern

The circuit breaker transitions between states based on success/failure rates:

	Closed --[failures]-> Open --[timeout]-> Half-Open --[successes]-> Closed
	                                           |
	                                    [failure]
	                                           |
	                                           v
	                                         Open
*/
package resilience
