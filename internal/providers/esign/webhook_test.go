package esign

import (
	"fmt"
	"testing"

	"github.com/smallbiznis/pricedesk/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func callbackJSON(hash string) []byte {
	return []byte(fmt.Sprintf(`{
		"event": {
			"event_type": "signature_request_signed",
			"event_time": "1700000000",
			"event_hash": %q,
			"event_metadata": {"related_signature_id": "s_a"}
		},
		"signature_request": {
			"signature_request_id": "sr_1",
			"metadata": {"tenant_id": "42"},
			"signatures": [{"signature_id": "s_a", "status_code": "signed"}]
		}
	}`, hash))
}

func TestParseAndVerifyCallback(t *testing.T) {
	cfg := config.Config{}
	cfg.ESign.APIKey = "key"
	verifier := NewWebhookVerifier(cfg)

	hash := ComputeEventHash([]byte("key"), "1700000000", EventSignatureRequestSigned)
	cb, err := ParseCallback(callbackJSON(hash))
	require.NoError(t, err)

	assert.Equal(t, "sr_1", cb.SignatureRequestID)
	assert.Equal(t, "s_a", cb.RelatedSignatureID)
	assert.Equal(t, "signed", cb.StatusCode)
	assert.Equal(t, "42", cb.Metadata["tenant_id"])
	assert.Equal(t, int64(1700000000), cb.OccurredAt.Unix())
	assert.NoError(t, verifier.Verify(cb))

	forged, err := ParseCallback(callbackJSON("deadbeef"))
	require.NoError(t, err)
	assert.ErrorIs(t, verifier.Verify(forged), ErrInvalidSignature)
}

func TestParseCallbackRejectsIncompleteEvents(t *testing.T) {
	_, err := ParseCallback([]byte(`{"event":{"event_type":"x"}}`))
	assert.ErrorIs(t, err, ErrInvalidPayload)

	_, err = ParseCallback([]byte(`not json`))
	assert.ErrorIs(t, err, ErrInvalidPayload)
}
