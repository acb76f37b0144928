package domain

import (
	"context"
	"errors"
	"time"
)

type Service interface {
	// QuotePDF renders the quote, stores it and returns a time-limited link.
	QuotePDF(ctx context.Context, quoteID string) (*DocumentResponse, error)
}

type DocumentResponse struct {
	QuoteID     string    `json:"quote_id"`
	QuoteNumber string    `json:"quote_number"`
	Key         string    `json:"key"`
	ContentType string    `json:"content_type"`
	URL         string    `json:"url"`
	ExpiresAt   time.Time `json:"expires_at"`
}

const ContentTypePDF = "application/pdf"

var (
	ErrInvalidTenant = errors.New("invalid_tenant")
	ErrInvalidID     = errors.New("invalid_id")
	ErrNotFound      = errors.New("not_found")
)
