package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

var (
	rateLimitRemaining = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pagestream_rate_limit_remaining",
		Help: "Requests remaining in the current rate limit window",
	}, []string{"scope"})

	rateLimitBlocksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pagestream_rate_limit_blocks_total",
		Help: "Total number of requests blocked at the critical rate limit threshold",
	}, []string{"scope"})

	rateLimitThrottlesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pagestream_rate_limit_throttles_total",
		Help: "Total number of requests throttled at the warning rate limit threshold",
	}, []string{"scope"})
)

// DefaultThrottleDelay is how long a request is held back while the budget is
// below the warning threshold.
const DefaultThrottleDelay = time.Second

// Hash fields of the Redis state.
const (
	fieldRemaining  = "remaining"
	fieldResetAt    = "reset_at"
	fieldLastUpdate = "last_update"
)

// Tracker monitors the rate limit budget of one scope and gates requests.
type Tracker struct {
	redis         *redis.Client
	scope         string
	key           string
	thresholds    Thresholds
	throttleDelay time.Duration
	logger        zerolog.Logger
}

// NewTracker creates a tracker for scope, typically the API host.
func NewTracker(redisClient *redis.Client, scope string, thresholds Thresholds, logger zerolog.Logger) *Tracker {
	return &Tracker{
		redis:         redisClient,
		scope:         scope,
		key:           redisKeyPrefix + scope,
		thresholds:    thresholds,
		throttleDelay: DefaultThrottleDelay,
		logger:        logger.With().Str("scope", scope).Logger(),
	}
}

// SetThrottleDelay overrides DefaultThrottleDelay (for testing).
func (t *Tracker) SetThrottleDelay(d time.Duration) {
	t.throttleDelay = d
}

// Thresholds returns the thresholds the tracker gates on.
func (t *Tracker) Thresholds() Thresholds {
	return t.thresholds
}

// GetState returns the current state from Redis. Without stored state it
// assumes a healthy budget until the first response says otherwise.
func (t *Tracker) GetState(ctx context.Context) (*State, error) {
	fields, err := t.redis.HGetAll(ctx, t.key).Result()
	if err != nil {
		return nil, fmt.Errorf("get rate limit state: %w", err)
	}

	now := time.Now()
	if len(fields) == 0 {
		t.logger.Debug().Msg("No rate limit state in Redis, assuming healthy")
		return &State{
			Remaining:  t.thresholds.Healthy,
			ResetAt:    now,
			LastUpdate: now,
		}, nil
	}

	remaining, err := strconv.Atoi(fields[fieldRemaining])
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", fieldRemaining, err)
	}
	resetAt, err := strconv.ParseInt(fields[fieldResetAt], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", fieldResetAt, err)
	}
	lastUpdate, err := strconv.ParseInt(fields[fieldLastUpdate], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", fieldLastUpdate, err)
	}

	return &State{
		Remaining:  remaining,
		ResetAt:    time.Unix(resetAt, 0),
		LastUpdate: time.Unix(0, lastUpdate),
	}, nil
}

// UpdateFromHeaders stores the budget advertised by a response. Responses
// without rate limit headers are ignored.
func (t *Tracker) UpdateFromHeaders(ctx context.Context, headers http.Header) error {
	state, ok, err := ParseHeaders(headers, time.Now())
	if err != nil || !ok {
		return err
	}

	// The key expires with the window: once it resets the budget is full again.
	pipe := t.redis.TxPipeline()
	pipe.HSet(ctx, t.key,
		fieldRemaining, state.Remaining,
		fieldResetAt, state.ResetAt.Unix(),
		fieldLastUpdate, state.LastUpdate.UnixNano(),
	)
	pipe.ExpireAt(ctx, t.key, state.ResetAt.Add(time.Second))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store rate limit state in redis: %w", err)
	}

	rateLimitRemaining.WithLabelValues(t.scope).Set(float64(state.Remaining))

	switch {
	case state.NeedsCriticalBlock(t.thresholds):
		t.logger.Error().
			Int("remaining", state.Remaining).
			Time("reset_at", state.ResetAt).
			Msg("Rate limit CRITICAL - requests will be blocked")
	case state.NeedsThrottling(t.thresholds):
		t.logger.Warn().
			Int("remaining", state.Remaining).
			Time("reset_at", state.ResetAt).
			Msg("Rate limit WARNING - requests will be throttled")
	default:
		t.logger.Debug().
			Int("remaining", state.Remaining).
			Time("reset_at", state.ResetAt).
			Bool("is_healthy", state.IsHealthy(t.thresholds)).
			Msg("Rate limit state updated")
	}

	return nil
}

// ShouldAllowRequest reports whether a request may be sent. Below the
// critical threshold it returns false; below the warning threshold it first
// waits for the throttle delay, returning early with ctx's error if ctx is
// done.
func (t *Tracker) ShouldAllowRequest(ctx context.Context) (bool, error) {
	state, err := t.GetState(ctx)
	if err != nil {
		return false, err
	}

	if state.NeedsCriticalBlock(t.thresholds) {
		t.logger.Error().
			Int("remaining", state.Remaining).
			Dur("wait_duration", state.TimeUntilReset()).
			Msg("Rate limit critical - blocking request")
		rateLimitBlocksTotal.WithLabelValues(t.scope).Inc()
		return false, nil
	}

	if state.NeedsThrottling(t.thresholds) {
		t.logger.Warn().
			Int("remaining", state.Remaining).
			Dur("delay", t.throttleDelay).
			Msg("Rate limit warning - throttling request")
		rateLimitThrottlesTotal.WithLabelValues(t.scope).Inc()

		timer := time.NewTimer(t.throttleDelay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-timer.C:
		}
	}

	return true, nil
}

// Reset removes the stored state.
func (t *Tracker) Reset(ctx context.Context) error {
	if err := t.redis.Del(ctx, t.key).Err(); err != nil {
		return fmt.Errorf("reset rate limit state: %w", err)
	}
	return nil
}
