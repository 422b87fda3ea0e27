// Package resilience groups the fault tolerance layers used around
// dependency calls.
//
// Subpackages:
//   - circuitbreaker: named closed/open/half-open breakers and the process-wide Registry
//   - retry: bounded retries with exponential backoff and jitter, run through a breaker
//
// Usage Example:
//
//	reg := circuitbreaker.NewRegistry(circuitbreaker.DefaultConfig())
//	exec := retry.NewExecutor(reg)
//	rows, err := retry.DoValue(ctx, exec, circuitbreaker.NameDatabase, retry.DBConfig(),
//	    func(ctx context.Context) ([]*entity.Post, error) {
//	        return queryPosts(ctx)
//	    })
package resilience
