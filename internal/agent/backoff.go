// Copyright 2025 FabricMesh, Inc. All Rights Reserved.

package agent

import (
	"cmp"
	"context"
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type retryOpts struct {
	InitialBackoff       time.Duration
	MaxBackoff           time.Duration
	MaxJitterPct         float64
	SevereErrorThreshold int
	ExponentialFactor    float64
	Logger               *zap.Logger

	// SessionTimeToConsiderSuccess handles actions whose happy path blocks
	// for a long time. An action that ran at least this long before failing
	// is treated as recovered, so its failure starts a fresh backoff cycle
	// instead of counting toward the severe-error threshold.
	SessionTimeToConsiderSuccess time.Duration
}

var _ zapcore.ObjectMarshaler = &retryOpts{}

func (o retryOpts) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddDuration("initial_backoff", o.InitialBackoff)
	enc.AddDuration("max_backoff", o.MaxBackoff)
	enc.AddFloat64("exponential_factor", o.ExponentialFactor)
	enc.AddFloat64("max_jitter_pct", o.MaxJitterPct)
	enc.AddInt("severe_error_threshold", o.SevereErrorThreshold)

	return nil
}

// clamp returns val constrained to [minimum, maximum].
func clamp[T cmp.Ordered](minimum, val, maximum T) T {
	if val < minimum {
		return minimum
	}
	if val > maximum {
		return maximum
	}
	return val
}

// jitter spreads d by up to ±maxJitterPct so a fleet of agents does not
// reconnect in lockstep.
func jitter(d time.Duration, maxJitterPct float64) time.Duration {
	if maxJitterPct <= 0 {
		return d
	}
	spread := (rand.Float64()*2 - 1) * maxJitterPct
	return time.Duration(float64(d) * (1 + spread))
}

// withBackoff runs action until the context is canceled or the action fails
// SevereErrorThreshold times in a row. A successful return, or a failure
// after a long enough session, resets the failure count and the delay.
func withBackoff(ctx context.Context, opts retryOpts, action func(ctx context.Context) error) error {
	backoff := opts.InitialBackoff
	consecutiveFailures := 0

	// Fire immediately on the first attempt.
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}

		started := time.Now()
		err := action(ctx)

		if ctx.Err() != nil {
			return ctx.Err()
		}

		longSession := opts.SessionTimeToConsiderSuccess > 0 &&
			time.Since(started) >= opts.SessionTimeToConsiderSuccess

		if err == nil || longSession {
			consecutiveFailures = 0
			backoff = opts.InitialBackoff
			if err == nil {
				timer.Reset(opts.InitialBackoff)
				continue
			}
		}

		consecutiveFailures++
		if consecutiveFailures >= opts.SevereErrorThreshold {
			opts.Logger.Error("Giving up after repeated failures",
				zap.Int("consecutive_failures", consecutiveFailures),
				zap.Error(err),
			)
			return fmt.Errorf("failed %d times: %w", consecutiveFailures, err)
		}

		sleep := clamp(opts.InitialBackoff, jitter(backoff, opts.MaxJitterPct), opts.MaxBackoff)
		opts.Logger.Debug("Backing off",
			zap.Duration("sleep", sleep),
			zap.Int("consecutive_failures", consecutiveFailures),
			zap.Error(err),
		)
		timer.Reset(sleep)
		backoff = min(time.Duration(float64(backoff)*opts.ExponentialFactor), opts.MaxBackoff)
	}
}
