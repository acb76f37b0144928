package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/pricedesk/internal/config"
)

var ErrSyncInProgress = errors.New("sync_in_progress")

const keySalesforceSync = "salesforce:sync:%s"

// TryLocker is the part of Locker the sync guard needs.
type TryLocker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	Release(ctx context.Context, key, token string) error
}

// SyncLock keeps at most one Salesforce sync running per tenant.
type SyncLock struct {
	locker TryLocker
	ttl    time.Duration
}

func NewSyncLock(locker *Locker, cfg config.Config) *SyncLock {
	return NewSyncLockWith(locker, cfg.Salesforce.LockTTL)
}

func NewSyncLockWith(locker TryLocker, ttl time.Duration) *SyncLock {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &SyncLock{locker: locker, ttl: ttl}
}

// Acquire returns a release func, or ErrSyncInProgress when another run
// holds the tenant lock.
func (l *SyncLock) Acquire(ctx context.Context, tenantID snowflake.ID) (func(context.Context) error, error) {
	key := SyncLockKey(tenantID)
	token, ok, err := l.locker.TryLock(ctx, key, l.ttl)
	if err != nil {
		return nil, fmt.Errorf("acquire sync lock: %w", err)
	}
	if !ok {
		return nil, ErrSyncInProgress
	}
	return func(ctx context.Context) error {
		return l.locker.Release(ctx, key, token)
	}, nil
}

func SyncLockKey(tenantID snowflake.ID) string {
	return fmt.Sprintf(keySalesforceSync, tenantID.String())
}
