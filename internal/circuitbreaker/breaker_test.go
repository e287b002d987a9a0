package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "crm-tag-proxy/internal/common/errors"
	"crm-tag-proxy/internal/common/logging"
)

func testLogger(t *testing.T) logging.Logger {
	t.Helper()
	logger, err := logging.NewZapLogger(logging.LogConfig{Level: logging.ErrorLevel})
	require.NoError(t, err)
	return logger
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
	assert.Error(t, Config{MaxFailures: 0, Timeout: time.Second, MaxConcurrentRequests: 1}.Validate())
	assert.Error(t, Config{MaxFailures: 1, Timeout: 0, MaxConcurrentRequests: 1}.Validate())
	assert.Error(t, Config{MaxFailures: 1, Timeout: time.Second, MaxConcurrentRequests: 0}.Validate())
}

func TestBreaker_PassesThroughSuccess(t *testing.T) {
	b := New("test", DefaultConfig(), testLogger(t))

	called := false
	err := b.Execute(context.Background(), func() error {
		called = true
		return nil
	})

	assert.NoError(t, err)
	assert.True(t, called)
}

func TestBreaker_PropagatesError(t *testing.T) {
	b := New("test", DefaultConfig(), testLogger(t))

	boom := errors.New("boom")
	err := b.Execute(context.Background(), func() error { return boom })

	assert.Equal(t, boom, err)
}

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	cfg := Config{MaxFailures: 2, Timeout: time.Minute, MaxConcurrentRequests: 1}
	b := New("test", cfg, testLogger(t))

	boom := errors.New("boom")
	for i := 0; i < 2; i++ {
		_ = b.Execute(context.Background(), func() error { return boom })
	}

	calls := 0
	err := b.Execute(context.Background(), func() error {
		calls++
		return nil
	})

	assert.Equal(t, 0, calls, "open breaker must not invoke fn")
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeInternal))
	assert.Contains(t, err.Error(), "rejected request")
}

func TestBreaker_HonorsContextCancellation(t *testing.T) {
	b := New("test", DefaultConfig(), testLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := b.Execute(ctx, func() error {
		calls++
		return nil
	})

	assert.Equal(t, 0, calls)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBreaker_InvalidConfigFallsBackToDefaults(t *testing.T) {
	b := New("test", Config{}, testLogger(t))

	err := b.Execute(context.Background(), func() error { return nil })
	assert.NoError(t, err)
}
