package fault_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/ticketflow/pkg/ticketflow/fault"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want fault.Class
	}{
		{"transient", fault.TransientErr(errors.New("rate limit"), "llm call"), fault.Transient},
		{"validation", fault.ValidationErr(errors.New("bad json"), "parse"), fault.Validation},
		{"fatal", fault.FatalErr(errors.New("missing input"), "agent"), fault.Fatal},
		{"conflict", fault.ConflictErr(errors.New("stale version"), "save"), fault.Conflict},
		{"wrapped", fmt.Errorf("outer: %w", fault.TransientErr(errors.New("inner"), "")), fault.Transient},
		{"unknown defaults to fatal", errors.New("mystery"), fault.Fatal},
		{"nil defaults to fatal", nil, fault.Fatal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, fault.Classify(tt.err))
		})
	}
}

func TestPredicates(t *testing.T) {
	transient := fault.TransientErr(errors.New("overloaded"), "send")

	assert.True(t, fault.IsTransient(transient))
	assert.False(t, fault.IsFatal(transient))
	assert.True(t, fault.IsValidation(fault.ValidationErr(errors.New("x"), "")))
	assert.True(t, fault.IsConflict(fault.ConflictErr(errors.New("x"), "")))
}

func TestErrorMessageIncludesClass(t *testing.T) {
	err := fault.TransientErr(errors.New("timeout"), "llm call")
	assert.Contains(t, err.Error(), "transient")
	assert.Contains(t, err.Error(), "llm call")
}

func TestWithRetry_SucceedsAfterTransient(t *testing.T) {
	cfg := fault.RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     time.Millisecond,
		BackoffFactor:  1.0,
	}

	calls := 0
	result := fault.WithRetry(cfg, func() (string, error) {
		calls++
		if calls < 3 {
			return "", fault.TransientErr(errors.New("flaky"), "send")
		}
		return "ok", nil
	})

	require.NoError(t, result.Err)
	assert.Equal(t, "ok", result.Value)
	assert.Equal(t, 3, result.Attempts)
}

func TestWithRetry_StopsAtBudget(t *testing.T) {
	cfg := fault.RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     time.Millisecond,
		BackoffFactor:  1.0,
	}

	calls := 0
	result := fault.WithRetry(cfg, func() (string, error) {
		calls++
		return "", fault.TransientErr(errors.New("always down"), "send")
	})

	require.Error(t, result.Err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 3, result.Attempts)
	assert.True(t, fault.IsTransient(result.Err))
}

func TestWithRetry_FatalNotRetried(t *testing.T) {
	calls := 0
	result := fault.WithRetry(fault.DefaultRetry, func() (int, error) {
		calls++
		return 0, fault.FatalErr(errors.New("no such artifact"), "agent")
	})

	require.Error(t, result.Err)
	assert.Equal(t, 1, calls)
}

func TestWithRetryContext_CancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	cfg := fault.RetryConfig{
		MaxAttempts:    5,
		InitialBackoff: time.Hour,
		MaxBackoff:     time.Hour,
		BackoffFactor:  1.0,
	}

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	result := fault.WithRetryContext(ctx, cfg, func(context.Context) (int, error) {
		return 0, fault.TransientErr(errors.New("down"), "send")
	})

	require.Error(t, result.Err)
	assert.Equal(t, 1, result.Attempts)
}

func TestBackoffGrowsAndCaps(t *testing.T) {
	cfg := fault.RetryConfig{
		InitialBackoff: time.Second,
		MaxBackoff:     4 * time.Second,
		BackoffFactor:  2.0,
	}

	assert.Equal(t, time.Second, cfg.Backoff(0))
	assert.Equal(t, 2*time.Second, cfg.Backoff(1))
	assert.Equal(t, 4*time.Second, cfg.Backoff(2))
	assert.Equal(t, 4*time.Second, cfg.Backoff(10))
}
