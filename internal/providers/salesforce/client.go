package salesforce

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/smallbiznis/pricedesk/internal/config"
	"github.com/smallbiznis/pricedesk/internal/observability/tracing"
	"github.com/smallbiznis/pricedesk/internal/providers"
	"go.uber.org/fx"
	"golang.org/x/oauth2"
)

var Module = fx.Module("providers.salesforce",
	fx.Provide(NewFactory),
)

// Credentials is the per-tenant connected-app blob kept in Secrets Manager.
type Credentials struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	RefreshToken string `json:"refresh_token"`
	InstanceURL  string `json:"instance_url,omitempty"`
}

func (c Credentials) Validate() error {
	if strings.TrimSpace(c.ClientID) == "" || strings.TrimSpace(c.ClientSecret) == "" || strings.TrimSpace(c.RefreshToken) == "" {
		return errors.New("client_id, client_secret and refresh_token are required")
	}
	return nil
}

// Record is one sObject row keyed by API field name.
type Record map[string]any

// Client talks to one tenant's org.
type Client interface {
	Query(ctx context.Context, soql string) ([]Record, error)
	Create(ctx context.Context, object string, fields Record) (string, error)
	Update(ctx context.Context, object, id string, fields Record) error
}

// Factory builds a Client from tenant credentials.
type Factory interface {
	New(ctx context.Context, creds Credentials) (Client, error)
}

type factory struct {
	authURL    string
	apiVersion string
	timeout    time.Duration
}

func NewFactory(cfg config.Config) Factory {
	return &factory{
		authURL:    strings.TrimSuffix(cfg.Salesforce.AuthURL, "/"),
		apiVersion: cfg.Salesforce.APIVersion,
		timeout:    cfg.Salesforce.Timeout,
	}
}

func (f *factory) New(ctx context.Context, creds Credentials) (Client, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}

	oauthCfg := &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL:  f.authURL + "/services/oauth2/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}

	base := tracing.WrapHTTPClient(&http.Client{Timeout: f.timeout})
	tokenCtx := context.WithValue(ctx, oauth2.HTTPClient, base)
	source := oauthCfg.TokenSource(tokenCtx, &oauth2.Token{RefreshToken: creds.RefreshToken})

	instanceURL := strings.TrimSuffix(creds.InstanceURL, "/")
	if instanceURL == "" {
		token, err := source.Token()
		if err != nil {
			return nil, providers.External("salesforce", "refresh_token", err)
		}
		if v, ok := token.Extra("instance_url").(string); ok {
			instanceURL = strings.TrimSuffix(v, "/")
		}
		if instanceURL == "" {
			return nil, providers.External("salesforce", "refresh_token", errors.New("token response without instance_url"))
		}
	}

	return &restClient{
		http:       oauth2.NewClient(tokenCtx, source),
		baseURL:    instanceURL + "/services/data/" + f.apiVersion,
		instance:   instanceURL,
		apiVersion: f.apiVersion,
	}, nil
}

type restClient struct {
	http       *http.Client
	baseURL    string
	instance   string
	apiVersion string
}

type queryResponse struct {
	Done           bool     `json:"done"`
	NextRecordsURL string   `json:"nextRecordsUrl"`
	Records        []Record `json:"records"`
}

func (c *restClient) Query(ctx context.Context, soql string) ([]Record, error) {
	next := c.baseURL + "/query?q=" + url.QueryEscape(soql)
	var out []Record
	for next != "" {
		var page queryResponse
		if err := c.do(ctx, "query", http.MethodGet, next, nil, &page); err != nil {
			return nil, err
		}
		for _, rec := range page.Records {
			delete(rec, "attributes")
			out = append(out, rec)
		}
		next = ""
		if !page.Done && page.NextRecordsURL != "" {
			next = c.instance + page.NextRecordsURL
		}
	}
	return out, nil
}

func (c *restClient) Create(ctx context.Context, object string, fields Record) (string, error) {
	var out struct {
		ID      string `json:"id"`
		Success bool   `json:"success"`
	}
	if err := c.do(ctx, "create", http.MethodPost, c.baseURL+"/sobjects/"+object, fields, &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", providers.External("salesforce", "create", errors.New("response without id"))
	}
	return out.ID, nil
}

func (c *restClient) Update(ctx context.Context, object, id string, fields Record) error {
	return c.do(ctx, "update", http.MethodPatch, c.baseURL+"/sobjects/"+object+"/"+id, fields, nil)
}

func (c *restClient) do(ctx context.Context, op, method, target string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s: %w", op, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("build %s: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return providers.External("salesforce", op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return providers.External("salesforce", op, err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		var apiErrs []struct {
			Message   string `json:"message"`
			ErrorCode string `json:"errorCode"`
		}
		msg := resp.Status
		if json.Unmarshal(raw, &apiErrs) == nil && len(apiErrs) > 0 {
			msg = apiErrs[0].ErrorCode + ": " + apiErrs[0].Message
		}
		return providers.External("salesforce", op, fmt.Errorf("status %d: %s", resp.StatusCode, msg))
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return providers.External("salesforce", op, fmt.Errorf("decode response: %w", err))
	}
	return nil
}
