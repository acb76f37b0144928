package esign

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/smallbiznis/pricedesk/internal/config"
)

// Acknowledgement is the body the provider expects from a webhook receiver.
const Acknowledgement = "Hello API Event Received"

var (
	ErrInvalidPayload   = errors.New("invalid_webhook_payload")
	ErrInvalidSignature = errors.New("invalid_webhook_signature")
)

// Event types sent by the provider.
const (
	EventSignatureRequestViewed     = "signature_request_viewed"
	EventSignatureRequestSigned     = "signature_request_signed"
	EventSignatureRequestDeclined   = "signature_request_declined"
	EventSignatureRequestReminded   = "signature_request_remind"
	EventSignatureRequestAllSigned  = "signature_request_all_signed"
	EventSignatureRequestSent       = "signature_request_sent"
	EventSignatureRequestCanceled   = "signature_request_canceled"
	EventSignatureRequestExpired    = "signature_request_expired"
	EventSignatureRequestInvalid    = "signature_request_invalid"
	EventSignatureRequestEmailError = "signature_request_email_bounce"
	EventFileError                  = "file_error"
	EventCallbackTest               = "callback_test"
)

// Callback is a decoded webhook delivery.
type Callback struct {
	EventType          string
	EventTime          string
	EventHash          string
	RelatedSignatureID string
	SignatureRequestID string
	StatusCode         string
	Error              string
	OccurredAt         time.Time
	// Metadata echoes what was attached when the request was created.
	Metadata           map[string]string
	Raw                map[string]any
}

type callbackEnvelope struct {
	Event struct {
		EventType     string `json:"event_type"`
		EventTime     string `json:"event_time"`
		EventHash     string `json:"event_hash"`
		EventMetadata struct {
			RelatedSignatureID string `json:"related_signature_id"`
			EventMessage       string `json:"event_message"`
		} `json:"event_metadata"`
	} `json:"event"`
	SignatureRequest *struct {
		SignatureRequestID string            `json:"signature_request_id"`
		Metadata           map[string]string `json:"metadata"`
		Signatures         []struct {
			SignatureID string `json:"signature_id"`
			StatusCode  string `json:"status_code"`
			Error       string `json:"error"`
		} `json:"signatures"`
	} `json:"signature_request"`
}

// ParseCallback decodes the JSON the provider posts in the "json" form field.
func ParseCallback(payload []byte) (*Callback, error) {
	var env callbackEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, ErrInvalidPayload
	}
	if env.Event.EventType == "" || env.Event.EventTime == "" || env.Event.EventHash == "" {
		return nil, ErrInvalidPayload
	}

	var raw map[string]any
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, ErrInvalidPayload
	}

	cb := &Callback{
		EventType:          env.Event.EventType,
		EventTime:          env.Event.EventTime,
		EventHash:          strings.ToLower(env.Event.EventHash),
		RelatedSignatureID: env.Event.EventMetadata.RelatedSignatureID,
		Error:              env.Event.EventMetadata.EventMessage,
		Raw:                raw,
	}
	if seconds, err := strconv.ParseInt(env.Event.EventTime, 10, 64); err == nil {
		cb.OccurredAt = time.Unix(seconds, 0).UTC()
	}
	if env.SignatureRequest != nil {
		cb.SignatureRequestID = env.SignatureRequest.SignatureRequestID
		cb.Metadata = env.SignatureRequest.Metadata
		for _, sig := range env.SignatureRequest.Signatures {
			if sig.SignatureID == cb.RelatedSignatureID {
				cb.StatusCode = sig.StatusCode
				if cb.Error == "" {
					cb.Error = sig.Error
				}
			}
		}
	}
	return cb, nil
}

// WebhookVerifier checks event_hash == hex(HMAC-SHA256(api_key, event_time+event_type)).
type WebhookVerifier struct {
	apiKey []byte
}

func NewWebhookVerifier(cfg config.Config) *WebhookVerifier {
	return &WebhookVerifier{apiKey: []byte(cfg.ESign.APIKey)}
}

func (v *WebhookVerifier) Verify(cb *Callback) error {
	if cb == nil || len(v.apiKey) == 0 {
		return ErrInvalidSignature
	}
	expected := ComputeEventHash(v.apiKey, cb.EventTime, cb.EventType)
	if !hmac.Equal([]byte(expected), []byte(cb.EventHash)) {
		return ErrInvalidSignature
	}
	return nil
}

func ComputeEventHash(apiKey []byte, eventTime, eventType string) string {
	mac := hmac.New(sha256.New, apiKey)
	mac.Write([]byte(eventTime + eventType))
	return hex.EncodeToString(mac.Sum(nil))
}
