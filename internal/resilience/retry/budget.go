package retry

import (
	"golang.org/x/time/rate"
)

// Budget caps the rate of retries across all sequences sharing it, so a
// widespread outage does not multiply load by MaxAttempts. First attempts
// are never charged.
type Budget struct {
	limiter *rate.Limiter
}

// NewBudget allows perSecond retries on average with the given burst.
func NewBudget(perSecond float64, burst int) *Budget {
	if burst < 1 {
		burst = 1
	}
	return &Budget{limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

// Allow reports whether one more retry may be spent. A nil Budget always allows.
func (b *Budget) Allow() bool {
	if b == nil {
		return true
	}
	return b.limiter.Allow()
}
