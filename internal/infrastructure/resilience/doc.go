/*
Package resilience provides a circuit breaker for dependencies that sessions
call during cleanup, such as the store behind an auto-saving unit of work.

A breaker starts closed. After ReadyToTrip accepts the failure counts it
opens and rejects calls with ErrCircuitOpen until Timeout elapses. It then
lets MaxTrials calls through half-open and closes again once they all
succeed. Any failure while half-open reopens it.

	Closed --[trip]-> Open --[timeout]-> Half-Open --[trials pass]-> Closed
	                   ^                     |
	                   +------[failure]------+

Usage:

	b := resilience.New("store", resilience.Settings{
		Timeout: 10 * time.Second,
		OnStateChange: func(name string, from, to resilience.State) {
			logger.Warn("breaker state changed", zap.Stringer("to", to))
		},
	})
	err := b.Do(ctx, func(ctx context.Context) error {
		_, err := unit.SaveChanges(ctx)
		return err
	})
*/
package resilience
