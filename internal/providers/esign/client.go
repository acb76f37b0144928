//go:generate mockgen -source=client.go -destination=mock_esign/client.go -package=mock_esign

package esign

import (
	"context"
	"time"
)

type Signer struct {
	Name  string
	Email string
	Order int
}

type CreateRequest struct {
	Title     string
	Subject   string
	Message   string
	Signers   []Signer
	FileURLs  []string
	ExpiresAt time.Time
	Metadata  map[string]string
}

type Signature struct {
	SignatureID string
	Email       string
	Order       int
}

type SignatureRequest struct {
	RequestID  string
	SigningURL string
	DetailsURL string
	FilesURL   string
	Signatures []Signature
}

// Client is the outbound side of the e-signature provider.
type Client interface {
	CreateSignatureRequest(ctx context.Context, req CreateRequest) (*SignatureRequest, error)
	CancelSignatureRequest(ctx context.Context, requestID string) error
	RemindSigner(ctx context.Context, requestID, email string) error
}
