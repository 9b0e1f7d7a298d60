// Package ratelimit bounds the number of requests a client identity may make
// within a fixed window. Two backends share the Limiter contract: an
// in-process table for single-instance deployments and a Redis counter for
// deployments where several processes serve the same traffic.
package ratelimit

import (
	"context"
	"math"
	"time"
)

// DefaultWindow is the counting window used when none is configured.
const DefaultWindow = 15 * time.Minute

// Result describes the state of an identity after a check.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter returns the number of whole seconds until the window resets,
// never less than 1.
func (r Result) RetryAfter(now time.Time) int {
	secs := int(math.Ceil(r.ResetAt.Sub(now).Seconds()))
	if secs < 1 {
		secs = 1
	}
	return secs
}

// Limiter decides whether identity may proceed under limit requests per window.
type Limiter interface {
	Check(ctx context.Context, identity string, limit int) (Result, error)
}
