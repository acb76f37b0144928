package esign

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/smallbiznis/pricedesk/internal/config"
	"github.com/smallbiznis/pricedesk/internal/providers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(url string) Client {
	cfg := config.Config{}
	cfg.ESign.BaseURL = url
	cfg.ESign.APIKey = "key"
	cfg.ESign.TestMode = true
	cfg.ESign.Timeout = 5 * time.Second
	return NewHTTPClient(cfg)
}

func TestCreateSignatureRequest(t *testing.T) {
	var received sendRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/signature_request/send", r.URL.Path)
		user, _, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "key", user)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&received))

		_, _ = w.Write([]byte(`{"signature_request":{"signature_request_id":"sr_1","signing_url":"https://sign/1",
			"signatures":[{"signature_id":"s_a","signer_email_address":"a@x.test","order":0},
			              {"signature_id":"s_b","signer_email_address":"b@x.test","order":1}]}}`))
	}))
	defer srv.Close()

	out, err := newTestClient(srv.URL).CreateSignatureRequest(context.Background(), CreateRequest{
		Title:    "MSA",
		Signers:  []Signer{{Name: "A", Email: "a@x.test", Order: 0}, {Name: "B", Email: "b@x.test", Order: 1}},
		FileURLs: []string{"https://docs/q.pdf"},
	})
	require.NoError(t, err)
	assert.Equal(t, "sr_1", out.RequestID)
	require.Len(t, out.Signatures, 2)
	assert.Equal(t, "s_b", out.Signatures[1].SignatureID)
	assert.True(t, received.TestMode)
	assert.Len(t, received.Signers, 2)
}

func TestProviderErrorsAreExternal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"error_msg":"bad signer","error_name":"bad_request"}}`))
	}))
	defer srv.Close()

	err := newTestClient(srv.URL).CancelSignatureRequest(context.Background(), "sr_1")
	require.Error(t, err)
	assert.ErrorIs(t, err, providers.ErrExternal)
	assert.Contains(t, err.Error(), "bad signer")
}
