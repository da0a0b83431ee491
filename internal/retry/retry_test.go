package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NCATS-Tangerine/tkg-beacon/internal/apperrors"
)

func fastConfig(retries int) *Config {
	return &Config{
		MaxRetries:   retries,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, 200*time.Millisecond, cfg.InitialDelay)
	assert.Equal(t, 5*time.Second, cfg.MaxDelay)
	assert.Equal(t, 2.0, cfg.Multiplier)
}

func TestDo_SuccessAfterRetries(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(3), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient error")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_MaxRetriesExhausted(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(2), func() error {
		calls++
		return fmt.Errorf("attempt %d", calls)
	})

	assert.EqualError(t, err, "attempt 3")
	assert.Equal(t, 3, calls)
}

func TestDo_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := &Config{MaxRetries: 5, InitialDelay: time.Second, MaxDelay: time.Second, Multiplier: 1}

	calls := 0
	err := Do(ctx, cfg, func() error {
		calls++
		cancel()
		return errors.New("boom")
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestDoWithResult(t *testing.T) {
	calls := 0
	got, err := DoWithResult(context.Background(), fastConfig(3), func() ([]string, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("connection reset")
		}
		return []string{"HP"}, nil
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"HP"}, got)
}

func TestDoIfRetryable_PermanentErrorStops(t *testing.T) {
	calls := 0
	_, err := DoIfRetryable(context.Background(), fastConfig(3), func() (int, error) {
		calls++
		return 0, apperrors.ErrInvalidIdentifier
	})

	assert.ErrorIs(t, err, apperrors.ErrInvalidIdentifier)
	assert.Equal(t, 1, calls)
}

func TestDoIfRetryable_TransientErrorRetries(t *testing.T) {
	calls := 0
	got, err := DoIfRetryable(context.Background(), fastConfig(3), func() (int, error) {
		calls++
		if calls < 3 {
			return 0, fmt.Errorf("fetching identifiers: %w", apperrors.ErrStoreUnavailable)
		}
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, 3, calls)
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"store unavailable", fmt.Errorf("x: %w", apperrors.ErrStoreUnavailable), true},
		{"deadline", context.DeadlineExceeded, true},
		{"cancelled", context.Canceled, false},
		{"throttled", errors.New("esummary: status 429"), true},
		{"bad gateway", errors.New("status 502 Bad Gateway"), true},
		{"not found", apperrors.ErrNotFound, false},
		{"skip threshold with status-like count", fmt.Errorf("500 identifiers skipped: %w", apperrors.ErrSkipThresholdExceeded), false},
		{"unsupported with status-like text", fmt.Errorf("backend 503: %w", apperrors.ErrUnsupported), false},
		{"syntax", errors.New("Neo.ClientError.Statement.SyntaxError"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestApplyJitterBounds(t *testing.T) {
	base := 100 * time.Millisecond
	assert.Equal(t, base, applyJitter(base, 0))
	for i := 0; i < 100; i++ {
		d := applyJitter(base, 0.1)
		assert.GreaterOrEqual(t, d, 90*time.Millisecond)
		assert.LessOrEqual(t, d, 110*time.Millisecond)
	}
}
