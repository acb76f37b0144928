package esign

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/smallbiznis/pricedesk/internal/config"
	"github.com/smallbiznis/pricedesk/internal/observability/tracing"
	"github.com/smallbiznis/pricedesk/internal/providers"
	"go.uber.org/fx"
)

var Module = fx.Module("providers.esign",
	fx.Provide(NewHTTPClient),
	fx.Provide(NewWebhookVerifier),
)

type HTTPClient struct {
	baseURL  string
	apiKey   string
	clientID string
	testMode bool
	http     *http.Client
}

func NewHTTPClient(cfg config.Config) Client {
	return &HTTPClient{
		baseURL:  strings.TrimSuffix(cfg.ESign.BaseURL, "/"),
		apiKey:   cfg.ESign.APIKey,
		clientID: cfg.ESign.ClientID,
		testMode: cfg.ESign.TestMode,
		http:     tracing.WrapHTTPClient(&http.Client{Timeout: cfg.ESign.Timeout}),
	}
}

type apiSigner struct {
	Name         string `json:"name"`
	EmailAddress string `json:"email_address"`
	Order        int    `json:"order"`
}

type sendRequest struct {
	Title     string            `json:"title,omitempty"`
	Subject   string            `json:"subject,omitempty"`
	Message   string            `json:"message,omitempty"`
	ClientID  string            `json:"client_id,omitempty"`
	Signers   []apiSigner       `json:"signers"`
	FileURLs  []string          `json:"file_urls"`
	ExpiresAt int64             `json:"expires_at,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	TestMode  bool              `json:"test_mode"`
}

type apiSignatureRequest struct {
	SignatureRequestID string `json:"signature_request_id"`
	SigningURL         string `json:"signing_url"`
	DetailsURL         string `json:"details_url"`
	FilesURL           string `json:"files_url"`
	Signatures         []struct {
		SignatureID        string `json:"signature_id"`
		SignerEmailAddress string `json:"signer_email_address"`
		Order              *int   `json:"order"`
	} `json:"signatures"`
}

type apiError struct {
	Error struct {
		ErrorMsg  string `json:"error_msg"`
		ErrorName string `json:"error_name"`
	} `json:"error"`
}

func (c *HTTPClient) CreateSignatureRequest(ctx context.Context, req CreateRequest) (*SignatureRequest, error) {
	body := sendRequest{
		Title:    req.Title,
		Subject:  req.Subject,
		Message:  req.Message,
		ClientID: c.clientID,
		FileURLs: req.FileURLs,
		Metadata: req.Metadata,
		TestMode: c.testMode,
	}
	if !req.ExpiresAt.IsZero() {
		body.ExpiresAt = req.ExpiresAt.Unix()
	}
	for _, s := range req.Signers {
		body.Signers = append(body.Signers, apiSigner{Name: s.Name, EmailAddress: s.Email, Order: s.Order})
	}

	var out struct {
		SignatureRequest apiSignatureRequest `json:"signature_request"`
	}
	if err := c.do(ctx, "create_signature_request", "/signature_request/send", body, &out); err != nil {
		return nil, err
	}

	res := &SignatureRequest{
		RequestID:  out.SignatureRequest.SignatureRequestID,
		SigningURL: out.SignatureRequest.SigningURL,
		DetailsURL: out.SignatureRequest.DetailsURL,
		FilesURL:   out.SignatureRequest.FilesURL,
	}
	for i, sig := range out.SignatureRequest.Signatures {
		order := i
		if sig.Order != nil {
			order = *sig.Order
		}
		res.Signatures = append(res.Signatures, Signature{
			SignatureID: sig.SignatureID,
			Email:       sig.SignerEmailAddress,
			Order:       order,
		})
	}
	if res.RequestID == "" {
		return nil, providers.External("esign", "create_signature_request", fmt.Errorf("response without signature_request_id"))
	}
	return res, nil
}

func (c *HTTPClient) CancelSignatureRequest(ctx context.Context, requestID string) error {
	return c.do(ctx, "cancel_signature_request", "/signature_request/cancel/"+requestID, nil, nil)
}

func (c *HTTPClient) RemindSigner(ctx context.Context, requestID, email string) error {
	payload := map[string]string{"email_address": email}
	return c.do(ctx, "remind_signer", "/signature_request/remind/"+requestID, payload, nil)
}

func (c *HTTPClient) do(ctx context.Context, op, path string, in, out any) error {
	var reader io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s: %w", op, err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build %s: %w", op, err)
	}
	req.SetBasicAuth(c.apiKey, "")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return providers.External("esign", op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return providers.External("esign", op, err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr apiError
		_ = json.Unmarshal(raw, &apiErr)
		msg := apiErr.Error.ErrorMsg
		if msg == "" {
			msg = resp.Status
		}
		return providers.External("esign", op, fmt.Errorf("status %d: %s", resp.StatusCode, msg))
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return providers.External("esign", op, fmt.Errorf("decode response: %w", err))
	}
	return nil
}
