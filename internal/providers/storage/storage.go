package storage

import (
	"context"
	"time"
)

// ObjectStorage keeps generated documents and hands out time-limited links.
type ObjectStorage interface {
	Put(ctx context.Context, key, contentType string, body []byte) error
	PresignGet(ctx context.Context, key string, expiresIn time.Duration) (string, time.Time, error)
}
