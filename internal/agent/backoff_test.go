package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestClamp(t *testing.T) {
	tests := []struct {
		name     string
		minimum  time.Duration
		val      time.Duration
		maximum  time.Duration
		expected time.Duration
	}{
		{
			name:     "value within range",
			minimum:  1 * time.Second,
			val:      5 * time.Second,
			maximum:  10 * time.Second,
			expected: 5 * time.Second,
		},
		{
			name:     "value below minimum",
			minimum:  1 * time.Second,
			val:      500 * time.Millisecond,
			maximum:  10 * time.Second,
			expected: 1 * time.Second,
		},
		{
			name:     "value above maximum",
			minimum:  1 * time.Second,
			val:      30 * time.Second,
			maximum:  10 * time.Second,
			expected: 10 * time.Second,
		},
		{
			name:     "value at boundary",
			minimum:  1 * time.Second,
			val:      1 * time.Second,
			maximum:  10 * time.Second,
			expected: 1 * time.Second,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, clamp(tc.minimum, tc.val, tc.maximum))
		})
	}
}

func TestJitterBounds(t *testing.T) {
	base := 10 * time.Second

	assert.Equal(t, base, jitter(base, 0))

	for i := 0; i < 100; i++ {
		spread := jitter(base, 0.2)
		assert.GreaterOrEqual(t, spread, 8*time.Second)
		assert.LessOrEqual(t, spread, 12*time.Second)
	}
}

func testRetryOpts() retryOpts {
	return retryOpts{
		InitialBackoff:       time.Millisecond,
		MaxBackoff:           5 * time.Millisecond,
		MaxJitterPct:         0,
		SevereErrorThreshold: 3,
		ExponentialFactor:    2,
		Logger:               zap.NewNop(),
	}
}

func TestWithBackoffGivesUpAfterThreshold(t *testing.T) {
	failure := errors.New("dial refused")
	attempts := 0

	err := withBackoff(context.Background(), testRetryOpts(), func(context.Context) error {
		attempts++
		return failure
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, failure)
	assert.Equal(t, 3, attempts)
}

func TestWithBackoffStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	attempts := 0
	err := withBackoff(ctx, testRetryOpts(), func(context.Context) error {
		attempts++
		if attempts == 2 {
			cancel()
		}
		return nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.LessOrEqual(t, attempts, 2)
}

func TestWithBackoffResetsAfterSuccess(t *testing.T) {
	// Failures interleaved with successes never reach the threshold.
	results := []error{
		errors.New("one"), errors.New("two"),
		nil,
		errors.New("three"), errors.New("four"),
		nil,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	attempts := 0
	err := withBackoff(ctx, testRetryOpts(), func(context.Context) error {
		if attempts >= len(results) {
			cancel()
			return nil
		}
		result := results[attempts]
		attempts++
		return result
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, len(results), attempts)
}

func TestWithBackoffLongSessionResetsFailures(t *testing.T) {
	opts := testRetryOpts()
	opts.SessionTimeToConsiderSuccess = 5 * time.Millisecond

	failure := errors.New("stream dropped")
	attempts := 0

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Every attempt runs longer than the success threshold, so the
	// failure count never accumulates toward giving up.
	err := withBackoff(ctx, opts, func(context.Context) error {
		attempts++
		if attempts == 5 {
			cancel()
		}
		time.Sleep(10 * time.Millisecond)
		return failure
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 5, attempts)
}

func TestRetryOptsMarshalLogObject(t *testing.T) {
	opts := testRetryOpts()

	enc := zapcore.NewMapObjectEncoder()
	require.NoError(t, opts.MarshalLogObject(enc))

	assert.Equal(t, time.Millisecond, enc.Fields["initial_backoff"])
	assert.Equal(t, 3, enc.Fields["severe_error_threshold"])
}
