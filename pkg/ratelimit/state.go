// Package ratelimit tracks the request budget a collection server advertises
// through the X-RateLimit-Remaining and X-RateLimit-Reset headers and gates
// requests before the budget runs out.
//
// State lives in Redis so that every process (and every split cursor fetching
// through the same client) sees the same budget.
package ratelimit

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Response headers carrying the rate limit budget.
const (
	HeaderRemaining = "X-RateLimit-Remaining"
	HeaderReset     = "X-RateLimit-Reset"
)

// redisKeyPrefix namespaces rate limit state per scope (usually the API host).
const redisKeyPrefix = "pagestream:ratelimit:"

// Thresholds decide when requests are throttled or blocked.
type Thresholds struct {
	// Critical blocks all requests when the remaining budget falls below it.
	Critical int

	// Warning throttles requests when the remaining budget falls below it.
	Warning int

	// Healthy marks the state healthy at or above it.
	Healthy int
}

// DefaultThresholds returns the default thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Critical: 5,
		Warning:  20,
		Healthy:  50,
	}
}

// Validate checks that the thresholds are ordered.
func (th Thresholds) Validate() error {
	if th.Critical < 0 {
		return fmt.Errorf("critical threshold must be >= 0 (got %d)", th.Critical)
	}
	if th.Warning < th.Critical {
		return fmt.Errorf("warning threshold %d below critical threshold %d", th.Warning, th.Critical)
	}
	if th.Healthy < th.Warning {
		return fmt.Errorf("healthy threshold %d below warning threshold %d", th.Healthy, th.Warning)
	}
	return nil
}

// State is the last known rate limit budget.
type State struct {
	// Remaining is the number of requests left in the current window.
	Remaining int

	// ResetAt is when the window resets and the budget refills.
	ResetAt time.Time

	// LastUpdate is when the state was last read from response headers.
	LastUpdate time.Time
}

// IsStale returns true if the state is older than maxAge.
func (s *State) IsStale(maxAge time.Duration) bool {
	return time.Since(s.LastUpdate) > maxAge
}

// NeedsCriticalBlock returns true if requests should be blocked.
func (s *State) NeedsCriticalBlock(th Thresholds) bool {
	return s.Remaining < th.Critical
}

// NeedsThrottling returns true if requests should be slowed down.
func (s *State) NeedsThrottling(th Thresholds) bool {
	return s.Remaining < th.Warning && !s.NeedsCriticalBlock(th)
}

// IsHealthy returns true if no restriction applies.
func (s *State) IsHealthy(th Thresholds) bool {
	return s.Remaining >= th.Healthy
}

// TimeUntilReset returns the duration until the window resets, or 0 if it
// already has.
func (s *State) TimeUntilReset() time.Duration {
	return max(time.Until(s.ResetAt), 0)
}

// ParseHeaders reads the rate limit budget from response headers. ok is false
// when the response carries no budget at all.
//
// The reset header holds seconds until the window resets.
func ParseHeaders(headers http.Header, now time.Time) (state *State, ok bool, err error) {
	remainStr := strings.TrimSpace(headers.Get(HeaderRemaining))
	if remainStr == "" {
		return nil, false, nil
	}

	remain, err := strconv.Atoi(remainStr)
	if err != nil {
		return nil, false, fmt.Errorf("parse %s header: %w", HeaderRemaining, err)
	}

	resetStr := strings.TrimSpace(headers.Get(HeaderReset))
	if resetStr == "" {
		return nil, false, fmt.Errorf("%s header missing", HeaderReset)
	}
	resetSeconds, err := strconv.Atoi(resetStr)
	if err != nil {
		return nil, false, fmt.Errorf("parse %s header: %w", HeaderReset, err)
	}

	return &State{
		Remaining:  remain,
		ResetAt:    now.Add(time.Duration(max(resetSeconds, 0)) * time.Second),
		LastUpdate: now,
	}, true, nil
}
