package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLocker struct {
	held     map[string]string
	released []string
	ttl      time.Duration
	err      error
}

func (f *fakeLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	if f.err != nil {
		return "", false, f.err
	}
	f.ttl = ttl
	if _, ok := f.held[key]; ok {
		return "", false, nil
	}
	token := "token-" + key
	f.held[key] = token
	return token, true, nil
}

func (f *fakeLocker) Release(ctx context.Context, key, token string) error {
	if f.held[key] == token {
		delete(f.held, key)
	}
	f.released = append(f.released, key)
	return nil
}

func TestSyncLockRejectsOverlappingRuns(t *testing.T) {
	locker := &fakeLocker{held: map[string]string{}}
	lock := NewSyncLockWith(locker, time.Minute)
	ctx := context.Background()

	release, err := lock.Acquire(ctx, snowflake.ID(7))
	require.NoError(t, err)
	assert.Equal(t, time.Minute, locker.ttl)

	_, err = lock.Acquire(ctx, snowflake.ID(7))
	assert.ErrorIs(t, err, ErrSyncInProgress)

	_, err = lock.Acquire(ctx, snowflake.ID(8))
	assert.NoError(t, err)

	require.NoError(t, release(ctx))
	assert.Equal(t, []string{"salesforce:sync:7"}, locker.released)

	_, err = lock.Acquire(ctx, snowflake.ID(7))
	assert.NoError(t, err)
}

func TestSyncLockWrapsBackendErrors(t *testing.T) {
	boom := errors.New("connection refused")
	lock := NewSyncLockWith(&fakeLocker{held: map[string]string{}, err: boom}, 0)

	_, err := lock.Acquire(context.Background(), snowflake.ID(1))
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrSyncInProgress)
}

func TestEvaluateRetryAfter(t *testing.T) {
	res := evaluate(false, 0.5, 2, 10)
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
	assert.Equal(t, 250*time.Millisecond, res.RetryAfter)

	res = evaluate(true, 3.7, 2, 10)
	assert.True(t, res.Allowed)
	assert.Equal(t, 3, res.Remaining)
	assert.Zero(t, res.RetryAfter)
}

func TestNilWebhookLimiterAllows(t *testing.T) {
	var l *WebhookLimiter
	assert.True(t, l.Allow(context.Background(), "esign", "10.0.0.1").Allowed)
}
