package salesforce

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

func newFakeOrg(t *testing.T) *httptest.Server {
	t.Helper()
	var srv *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/services/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "tok",
			"token_type":   "Bearer",
			"instance_url": srv.URL,
		})
	})
	mux.HandleFunc("/services/data/v59.0/query", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"done":false,"nextRecordsUrl":"/services/data/v59.0/query/next","records":[{"attributes":{"type":"Account"},"Id":"001A","Name":"Acme"}]}`))
	})
	mux.HandleFunc("/services/data/v59.0/query/next", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"done":true,"records":[{"Id":"001B","Name":"Globex"}]}`))
	})
	mux.HandleFunc("/services/data/v59.0/sobjects/Account", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		_, _ = w.Write([]byte(`{"id":"001C","success":true}`))
	})
	mux.HandleFunc("/services/data/v59.0/sobjects/Account/001A", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/services/data/v59.0/sobjects/Account/BAD", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`[{"message":"bad field","errorCode":"INVALID_FIELD"}]`))
	})
	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newClient(t *testing.T, srv *httptest.Server) Client {
	t.Helper()
	cfg := config.Config{}
	cfg.Salesforce.AuthURL = srv.URL
	cfg.Salesforce.APIVersion = "v59.0"
	cfg.Salesforce.Timeout = 5 * time.Second

	client, err := NewFactory(cfg).New(context.Background(), Credentials{
		ClientID:     "id",
		ClientSecret: "secret",
		RefreshToken: "refresh",
	})
	require.NoError(t, err)
	return client
}

func TestQueryFollowsPages(t *testing.T) {
	srv := newFakeOrg(t)
	records, err := newClient(t, srv).Query(context.Background(), "SELECT Id, Name FROM Account")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "Acme", records[0]["Name"])
	assert.NotContains(t, records[0], "attributes")
	assert.Equal(t, "001B", records[1]["Id"])
}

func TestCreateAndUpdate(t *testing.T) {
	srv := newFakeOrg(t)
	client := newClient(t, srv)

	id, err := client.Create(context.Background(), "Account", Record{"Name": "Initech"})
	require.NoError(t, err)
	assert.Equal(t, "001C", id)

	require.NoError(t, client.Update(context.Background(), "Account", "001A", Record{"Name": "Acme Corp"}))

	err = client.Update(context.Background(), "Account", "BAD", Record{"Nope": 1})
	assert.ErrorIs(t, err, providers.ErrExternal)
	assert.Contains(t, err.Error(), "INVALID_FIELD")
}

func TestCredentialsValidate(t *testing.T) {
	assert.Error(t, Credentials{ClientID: "a"}.Validate())
	assert.NoError(t, Credentials{ClientID: "a", ClientSecret: "b", RefreshToken: "c"}.Validate())
}
