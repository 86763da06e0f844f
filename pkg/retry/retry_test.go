package retry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tutor-platform/pkg/errors"
)

func fastPolicy(retries int) Policy {
	return Policy{
		MaxRetries:      retries,
		AttemptTimeout:  time.Second,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
	}
}

func TestDo_SucceedsFirstTry(t *testing.T) {
	calls := 0
	v, err := Do(context.Background(), fastPolicy(2), func(ctx context.Context) (string, error) {
		calls++
		return "ok", nil
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, 1, calls)
}

func TestDo_RetriesTransientThenSucceeds(t *testing.T) {
	calls := 0
	var notified []int
	v, err := Do(context.Background(), fastPolicy(2), func(ctx context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, errors.New(errors.CodeUpstreamUnavailable, "")
		}
		return 42, nil
	}, func(err error, attempt int, wait time.Duration) {
		notified = append(notified, attempt)
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, notified)
}

func TestDo_GivesUpAfterMaxRetries(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), fastPolicy(2), func(ctx context.Context) (int, error) {
		calls++
		return 0, errors.New(errors.CodeRateLimited, "")
	}, nil)
	assert.Equal(t, errors.CodeRateLimited, errors.CodeOf(err))
	assert.Equal(t, 3, calls)
}

func TestDo_DoesNotRetryPermanentErrors(t *testing.T) {
	for _, code := range []errors.Code{errors.CodeInternal, errors.CodeUnknownTool, errors.CodeValidation} {
		calls := 0
		_, err := Do(context.Background(), fastPolicy(2), func(ctx context.Context) (int, error) {
			calls++
			return 0, errors.New(code, "")
		}, nil)
		assert.Equal(t, code, errors.CodeOf(err))
		assert.Equal(t, 1, calls, code)
	}
}

func TestDo_AttemptTimeoutIsUpstreamTimeout(t *testing.T) {
	p := fastPolicy(1)
	p.AttemptTimeout = 5 * time.Millisecond
	calls := 0
	_, err := Do(context.Background(), p, func(ctx context.Context) (int, error) {
		calls++
		<-ctx.Done()
		return 0, ctx.Err()
	}, nil)
	assert.Equal(t, errors.CodeUpstreamTimeout, errors.CodeOf(err))
	assert.Equal(t, 2, calls)
}

func TestDo_ParentCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	_, err := Do(ctx, fastPolicy(2), func(ctx context.Context) (int, error) {
		calls++
		return 1, nil
	}, nil)
	assert.Equal(t, errors.CodeCancelled, errors.CodeOf(err))
	assert.Equal(t, 0, calls)

	ctx, cancel = context.WithCancel(context.Background())
	calls = 0
	_, err = Do(ctx, fastPolicy(5), func(ctx context.Context) (int, error) {
		calls++
		cancel()
		return 0, errors.New(errors.CodeUpstreamUnavailable, "")
	}, nil)
	assert.Equal(t, errors.CodeCancelled, errors.CodeOf(err))
	assert.Equal(t, 1, calls)
}

func TestTransient(t *testing.T) {
	assert.True(t, Transient(errors.New(errors.CodeUpstreamTimeout, "")))
	assert.True(t, Transient(context.DeadlineExceeded))
	assert.False(t, Transient(context.Canceled))
	assert.False(t, Transient(errors.New(errors.CodeToolLoopExceeded, "")))
	assert.False(t, Transient(nil))
}
