package service

import (
	"context"
	"encoding/json"
	"strconv"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/golang/mock/gomock"
	auditdomain "github.com/smallbiznis/pricedesk/internal/audit/domain"
	auditrepository "github.com/smallbiznis/pricedesk/internal/audit/repository"
	auditservice "github.com/smallbiznis/pricedesk/internal/audit/service"
	"github.com/smallbiznis/pricedesk/internal/clock"
	"github.com/smallbiznis/pricedesk/internal/config"
	contractdomain "github.com/smallbiznis/pricedesk/internal/contract/domain"
	contractrepository "github.com/smallbiznis/pricedesk/internal/contract/repository"
	documentdomain "github.com/smallbiznis/pricedesk/internal/document/domain"
	pricingdomain "github.com/smallbiznis/pricedesk/internal/pricing/domain"
	"github.com/smallbiznis/pricedesk/internal/providers/esign"
	"github.com/smallbiznis/pricedesk/internal/providers/esign/mock_esign"
	quotedomain "github.com/smallbiznis/pricedesk/internal/quote/domain"
	"github.com/smallbiznis/pricedesk/internal/tenantcontext"
	"github.com/smallbiznis/pricedesk/pkg/db/dbtest"
	"github.com/smallbiznis/pricedesk/pkg/db/model"
	"github.com/smallbiznis/pricedesk/pkg/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const webhookKey = "esign-api-key"

type fakeDocuments struct {
	calls int
}

func (f *fakeDocuments) QuotePDF(ctx context.Context, quoteID string) (*documentdomain.DocumentResponse, error) {
	f.calls++
	return &documentdomain.DocumentResponse{
		QuoteID:     quoteID,
		Key:         "tenants/1/quotes/" + quoteID + "/q.pdf",
		ContentType: documentdomain.ContentTypePDF,
		URL:         "https://files.test/q.pdf",
	}, nil
}

type fixture struct {
	svc      *Service
	db       *gorm.DB
	esign    *mock_esign.MockClient
	docs     *fakeDocuments
	clock    *clock.FakeClock
	ctx      context.Context
	node     *snowflake.Node
	quoteID  string
	contract *contractdomain.ContractResponse
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := dbtest.Open(t,
		&quotedomain.Quote{},
		&contractdomain.Contract{}, &contractdomain.ContractSignature{},
		&contractdomain.ContractSignerDetails{}, &contractdomain.ContractSignerAudit{},
		&contractdomain.EventDetail{},
		&auditdomain.AuditLog{},
	)
	node, err := snowflake.NewNode(12)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC))
	log := zap.NewNop()
	ctx := tenantcontext.With(context.Background(), 1, 7)

	quotes := repository.ProvideStore[quotedomain.Quote](db)
	quote := &quotedomain.Quote{
		Base:          model.NewBase(ctx, node.Generate(), clk.Now()),
		Number:        "Q-1",
		OpportunityID: 99,
		PriceBookID:   98,
		Name:          "Acme 2027",
		Status:        quotedomain.StatusApproved,
		Currency:      "USD",
		Breakdown:     datatypes.NewJSONType(pricingdomain.Breakdown{Currency: "USD"}),
	}
	require.NoError(t, quotes.Create(ctx, quote))

	cfg := config.Config{}
	cfg.ESign.APIKey = webhookKey
	ctrl := gomock.NewController(t)
	client := mock_esign.NewMockClient(ctrl)
	docs := &fakeDocuments{}

	svc := New(Params{
		DB:         db,
		Log:        log,
		GenID:      node,
		Clock:      clk,
		Contracts:  repository.ProvideStore[contractdomain.Contract](db),
		Signatures: repository.ProvideStore[contractdomain.ContractSignature](db),
		Signers:    repository.ProvideStore[contractdomain.ContractSignerDetails](db),
		Audits:     repository.ProvideStore[contractdomain.ContractSignerAudit](db),
		Repo:       contractrepository.Provide(),
		Quotes:     quotes,
		Documents:  docs,
		ESign:      client,
		Verifier:   esign.NewWebhookVerifier(cfg),
		DealDesk:   config.NewStaticDealDeskConfigHolder(config.DefaultDealDeskConfig()),
		AuditSvc:   auditservice.NewService(auditservice.Params{DB: db, Log: log, GenID: node, Clock: clk, Repo: auditrepository.Provide()}),
	}).(*Service)

	contract, err := svc.Create(ctx, contractdomain.CreateRequest{QuoteID: quote.ID.String(), Name: "Acme MSA"})
	require.NoError(t, err)

	return &fixture{svc: svc, db: db, esign: client, docs: docs, clock: clk, ctx: ctx, node: node, quoteID: quote.ID.String(), contract: contract}
}

func (f *fixture) request() contractdomain.SignatureRequest {
	return contractdomain.SignatureRequest{
		Title:           "Acme MSA",
		AccountSigners:  []contractdomain.SignerInput{{Name: "Ana", Email: "ana@vendor.test"}},
		CustomerSigners: []contractdomain.SignerInput{{Name: "Bo", Email: "Bo@Acme.test"}, {Name: "Cy", Email: "cy@acme.test"}},
	}
}

// sign creates a signature whose provider ids are s_0, s_1, s_2.
func (f *fixture) sign(t *testing.T) *contractdomain.SignatureResponse {
	t.Helper()
	f.esign.EXPECT().CreateSignatureRequest(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req esign.CreateRequest) (*esign.SignatureRequest, error) {
			out := &esign.SignatureRequest{RequestID: "sr_1", SigningURL: "https://sign.test/sr_1"}
			for _, s := range req.Signers {
				out.Signatures = append(out.Signatures, esign.Signature{SignatureID: "s_" + strconv.Itoa(s.Order), Email: s.Email, Order: s.Order})
			}
			return out, nil
		})
	resp, err := f.svc.CreateSignature(f.ctx, f.contract.ID, f.request())
	require.NoError(t, err)
	return resp
}

func callback(t *testing.T, eventType, requestID, signatureID, statusCode string, at time.Time, metadata map[string]string) []byte {
	t.Helper()
	eventTime := strconv.FormatInt(at.Unix(), 10)
	body := map[string]any{
		"event": map[string]any{
			"event_type":     eventType,
			"event_time":     eventTime,
			"event_hash":     esign.ComputeEventHash([]byte(webhookKey), eventTime, eventType),
			"event_metadata": map[string]any{"related_signature_id": signatureID},
		},
		"signature_request": map[string]any{
			"signature_request_id": requestID,
			"metadata":             metadata,
			"signatures": []map[string]any{
				{"signature_id": signatureID, "status_code": statusCode},
			},
		},
	}
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	return raw
}

func TestCreateSignatureOrdersSignersAccountFirst(t *testing.T) {
	f := newFixture(t)

	var sent esign.CreateRequest
	f.esign.EXPECT().CreateSignatureRequest(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req esign.CreateRequest) (*esign.SignatureRequest, error) {
			sent = req
			return &esign.SignatureRequest{
				RequestID: "sr_1",
				Signatures: []esign.Signature{
					{SignatureID: "s_a", Email: "ana@vendor.test", Order: 0},
					{SignatureID: "s_b", Email: "bo@acme.test", Order: 1},
					{SignatureID: "s_c", Email: "cy@acme.test", Order: 2},
				},
			}, nil
		})

	resp, err := f.svc.CreateSignature(f.ctx, f.contract.ID, f.request())
	require.NoError(t, err)

	assert.Equal(t, []string{"https://files.test/q.pdf"}, sent.FileURLs)
	assert.Equal(t, "1", sent.Metadata["tenant_id"])
	require.Len(t, sent.Signers, 3)
	assert.Equal(t, "ana@vendor.test", sent.Signers[0].Email)
	assert.Equal(t, "bo@acme.test", sent.Signers[1].Email)

	assert.Equal(t, contractdomain.StatusInApproval, resp.Status)
	assert.Equal(t, f.clock.Now().AddDate(0, 0, 30), resp.ExpiresAt)
	require.Len(t, resp.Signers, 3)
	for i, signer := range resp.Signers {
		assert.Equal(t, i, signer.SignerOrder)
	}
	assert.Equal(t, contractdomain.SignerAccount, resp.Signers[0].Type)
	assert.Equal(t, contractdomain.SignerCustomer, resp.Signers[2].Type)
	assert.Equal(t, "s_c", *resp.Signers[2].ProviderSignatureID)

	contract, err := f.svc.Get(f.ctx, f.contract.ID)
	require.NoError(t, err)
	assert.Equal(t, contractdomain.StatusInApproval, contract.Status)

	var audits int64
	require.NoError(t, f.db.Model(&contractdomain.ContractSignerAudit{}).Count(&audits).Error)
	assert.Equal(t, int64(3), audits)
}

func TestCreateSignatureValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreateSignature(f.ctx, f.contract.ID, contractdomain.SignatureRequest{Title: "x"})
	assert.ErrorIs(t, err, contractdomain.ErrNoSigners)

	dup := contractdomain.SignatureRequest{
		Title:           "x",
		AccountSigners:  []contractdomain.SignerInput{{Name: "A", Email: "a@x.test"}},
		CustomerSigners: []contractdomain.SignerInput{{Name: "B", Email: "A@x.test"}},
	}
	_, err = f.svc.CreateSignature(f.ctx, f.contract.ID, dup)
	assert.ErrorIs(t, err, contractdomain.ErrInvalidSigner)

	zero := 0
	req := f.request()
	req.ExpiryDays = &zero
	_, err = f.svc.CreateSignature(f.ctx, f.contract.ID, req)
	assert.ErrorIs(t, err, contractdomain.ErrInvalidExpiry)

	f.sign(t)
	_, err = f.svc.CreateSignature(f.ctx, f.contract.ID, f.request())
	assert.ErrorIs(t, err, contractdomain.ErrSignatureExists)
}

func TestContractRequiresApprovedQuote(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.db.Model(&quotedomain.Quote{}).Where("number = ?", "Q-1").Update("status", quotedomain.StatusDraft).Error)

	_, err := f.svc.Create(f.ctx, contractdomain.CreateRequest{QuoteID: f.quoteID, Name: "Again"})
	assert.ErrorIs(t, err, contractdomain.ErrQuoteNotApproved)
}

func TestWebhookFoldsSignerEvents(t *testing.T) {
	f := newFixture(t)
	f.sign(t)
	base := f.clock.Now()

	require.NoError(t, f.svc.HandleWebhook(context.Background(), callback(t, esign.EventSignatureRequestViewed, "sr_1", "s_0", "awaiting_signature", base.Add(time.Minute), nil)))
	require.NoError(t, f.svc.HandleWebhook(context.Background(), callback(t, esign.EventSignatureRequestSigned, "sr_1", "s_0", "signed", base.Add(2*time.Minute), nil)))
	// Redelivery is ignored.
	require.NoError(t, f.svc.HandleWebhook(context.Background(), callback(t, esign.EventSignatureRequestSigned, "sr_1", "s_0", "signed", base.Add(2*time.Minute), nil)))

	resp, err := f.svc.GetSignature(f.ctx, f.contract.ID)
	require.NoError(t, err)
	assert.Equal(t, contractdomain.StatusInApproval, resp.Status)
	assert.NotNil(t, resp.Signers[0].LastViewedAt)
	assert.NotNil(t, resp.Signers[0].SignedAt)
	assert.Equal(t, "signed", resp.Signers[0].LastStatusCode)
	assert.Nil(t, resp.Signers[1].SignedAt)

	var events int64
	require.NoError(t, f.db.Model(&contractdomain.EventDetail{}).Count(&events).Error)
	assert.Equal(t, int64(2), events)

	// Same second and type for two signers hash identically; both count.
	at := base.Add(3 * time.Minute)
	require.NoError(t, f.svc.HandleWebhook(context.Background(), callback(t, esign.EventSignatureRequestSigned, "sr_1", "s_1", "signed", at, nil)))
	require.NoError(t, f.svc.HandleWebhook(context.Background(), callback(t, esign.EventSignatureRequestSigned, "sr_1", "s_2", "signed", at, nil)))

	resp, err = f.svc.GetSignature(f.ctx, f.contract.ID)
	require.NoError(t, err)
	assert.Equal(t, contractdomain.StatusActivated, resp.Status)

	contract, err := f.svc.Get(f.ctx, f.contract.ID)
	require.NoError(t, err)
	assert.Equal(t, contractdomain.StatusActivated, contract.Status)
}

func TestWebhookDeclineWins(t *testing.T) {
	f := newFixture(t)
	f.sign(t)
	base := f.clock.Now()

	require.NoError(t, f.svc.HandleWebhook(context.Background(), callback(t, esign.EventSignatureRequestEmailError, "sr_1", "s_2", "error", base.Add(time.Minute), nil)))
	resp, err := f.svc.GetSignature(f.ctx, f.contract.ID)
	require.NoError(t, err)
	assert.Equal(t, contractdomain.StatusError, resp.Status)

	require.NoError(t, f.svc.HandleWebhook(context.Background(), callback(t, esign.EventSignatureRequestDeclined, "sr_1", "s_1", "declined", base.Add(2*time.Minute), nil)))
	resp, err = f.svc.GetSignature(f.ctx, f.contract.ID)
	require.NoError(t, err)
	assert.Equal(t, contractdomain.StatusDeclined, resp.Status)
}

func TestWebhookRejectsForgedHash(t *testing.T) {
	f := newFixture(t)
	payload := []byte(`{"event":{"event_type":"signature_request_signed","event_time":"1","event_hash":"00"},"signature_request":{"signature_request_id":"sr_1"}}`)
	assert.ErrorIs(t, f.svc.HandleWebhook(context.Background(), payload), esign.ErrInvalidSignature)
	assert.ErrorIs(t, f.svc.HandleWebhook(context.Background(), []byte(`{}`)), esign.ErrInvalidPayload)
}

func TestEarlyCallbackFoldedOnCreate(t *testing.T) {
	f := newFixture(t)
	at := f.clock.Now().Add(-time.Second)

	// The provider calls back before the signature row is committed.
	require.NoError(t, f.svc.HandleWebhook(context.Background(), callback(t, esign.EventSignatureRequestViewed, "sr_1", "s_1", "awaiting_signature", at, map[string]string{"tenant_id": "1"})))

	resp := f.sign(t)
	assert.NotNil(t, resp.Signers[1].LastViewedAt)

	events, err := f.svc.ListEvents(f.ctx, f.contract.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, esign.EventSignatureRequestViewed, events[0].EventType)
}

func TestExpiredSignatureReportedAndSwept(t *testing.T) {
	f := newFixture(t)
	f.sign(t)

	f.clock.Advance(31 * 24 * time.Hour)

	resp, err := f.svc.GetSignature(f.ctx, f.contract.ID)
	require.NoError(t, err)
	assert.Equal(t, contractdomain.StatusExpired, resp.Status)

	var stored contractdomain.ContractSignature
	require.NoError(t, f.db.First(&stored).Error)
	assert.Equal(t, contractdomain.StatusInApproval, stored.Status)

	contract, err := f.svc.Get(f.ctx, f.contract.ID)
	require.NoError(t, err)
	assert.Equal(t, contractdomain.StatusExpired, contract.Status)

	swept, err := f.svc.ExpireSignatures(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, swept.Expired)

	require.NoError(t, f.db.First(&stored).Error)
	assert.Equal(t, contractdomain.StatusExpired, stored.Status)

	swept, err = f.svc.ExpireSignatures(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, swept.Expired)
}

func TestLateCallbackCannotReviveExpiredSignature(t *testing.T) {
	for _, tc := range []struct {
		name, eventType, statusCode string
	}{
		{"signed", esign.EventSignatureRequestSigned, "signed"},
		{"declined", esign.EventSignatureRequestDeclined, "declined"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			f.sign(t)
			base := f.clock.Now()
			require.NoError(t, f.svc.HandleWebhook(context.Background(), callback(t, esign.EventSignatureRequestSigned, "sr_1", "s_0", "signed", base.Add(time.Minute), nil)))
			require.NoError(t, f.svc.HandleWebhook(context.Background(), callback(t, esign.EventSignatureRequestSigned, "sr_1", "s_1", "signed", base.Add(2*time.Minute), nil)))

			// Expired but not yet swept: the stored status is still open.
			f.clock.Advance(31 * 24 * time.Hour)
			var stored contractdomain.ContractSignature
			require.NoError(t, f.db.First(&stored).Error)
			require.Equal(t, contractdomain.StatusInApproval, stored.Status)

			require.NoError(t, f.svc.HandleWebhook(context.Background(), callback(t, tc.eventType, "sr_1", "s_2", tc.statusCode, f.clock.Now(), nil)))

			require.NoError(t, f.db.First(&stored).Error)
			assert.Equal(t, contractdomain.StatusExpired, stored.Status)

			resp, err := f.svc.GetSignature(f.ctx, f.contract.ID)
			require.NoError(t, err)
			assert.Equal(t, contractdomain.StatusExpired, resp.Status)

			contract, err := f.svc.Get(f.ctx, f.contract.ID)
			require.NoError(t, err)
			assert.Equal(t, contractdomain.StatusExpired, contract.Status)
		})
	}
}

func TestReplayRebuildsAudits(t *testing.T) {
	f := newFixture(t)
	f.sign(t)
	base := f.clock.Now()

	for i, id := range []string{"s_0", "s_1", "s_2"} {
		require.NoError(t, f.svc.HandleWebhook(context.Background(), callback(t, esign.EventSignatureRequestSigned, "sr_1", id, "signed", base.Add(time.Duration(i+1)*time.Minute), nil)))
	}

	require.NoError(t, f.db.Model(&contractdomain.ContractSignerAudit{}).Where("1 = 1").
		Updates(map[string]any{"signed_at": nil, "last_status_code": ""}).Error)
	require.NoError(t, f.db.Model(&contractdomain.ContractSignature{}).Where("1 = 1").
		Update("status", contractdomain.StatusInApproval).Error)

	resp, err := f.svc.ReplaySignature(f.ctx, f.contract.ID)
	require.NoError(t, err)
	assert.Equal(t, contractdomain.StatusActivated, resp.Status)
	for _, signer := range resp.Signers {
		assert.NotNil(t, signer.SignedAt)
		assert.Equal(t, "signed", signer.LastStatusCode)
	}
}

func TestCancelAndRemind(t *testing.T) {
	f := newFixture(t)
	f.sign(t)

	f.esign.EXPECT().RemindSigner(gomock.Any(), "sr_1", "bo@acme.test").Return(nil)
	require.NoError(t, f.svc.RemindSigner(f.ctx, f.contract.ID, contractdomain.RemindRequest{Email: "BO@acme.test"}))

	err := f.svc.RemindSigner(f.ctx, f.contract.ID, contractdomain.RemindRequest{Email: "nobody@acme.test"})
	assert.ErrorIs(t, err, contractdomain.ErrSignerNotFound)

	f.esign.EXPECT().CancelSignatureRequest(gomock.Any(), "sr_1").Return(nil)
	resp, err := f.svc.CancelSignature(f.ctx, f.contract.ID)
	require.NoError(t, err)
	assert.Equal(t, contractdomain.StatusCancelled, resp.Status)

	err = f.svc.RemindSigner(f.ctx, f.contract.ID, contractdomain.RemindRequest{Email: "bo@acme.test"})
	assert.ErrorIs(t, err, contractdomain.ErrSignatureClosed)

	_, err = f.svc.CancelSignature(f.ctx, f.contract.ID)
	assert.ErrorIs(t, err, contractdomain.ErrSignatureClosed)

	// A closed signature can be replaced.
	f.sign(t)
	assert.Equal(t, 2, f.docs.calls)
}

func TestDeleteRefusedWhileSigning(t *testing.T) {
	f := newFixture(t)
	f.sign(t)

	assert.ErrorIs(t, f.svc.Delete(f.ctx, f.contract.ID), contractdomain.ErrSignatureExists)

	f.esign.EXPECT().CancelSignatureRequest(gomock.Any(), "sr_1").Return(nil)
	_, err := f.svc.CancelSignature(f.ctx, f.contract.ID)
	require.NoError(t, err)

	require.NoError(t, f.svc.Delete(f.ctx, f.contract.ID))
	_, err = f.svc.Get(f.ctx, f.contract.ID)
	assert.ErrorIs(t, err, contractdomain.ErrNotFound)
}
