package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	accountdomain "github.com/smallbiznis/pricedesk/internal/account/domain"
	"github.com/smallbiznis/pricedesk/internal/clock"
	"github.com/smallbiznis/pricedesk/internal/config"
	documentdomain "github.com/smallbiznis/pricedesk/internal/document/domain"
	plandomain "github.com/smallbiznis/pricedesk/internal/plan/domain"
	planrepository "github.com/smallbiznis/pricedesk/internal/plan/repository"
	pricingdomain "github.com/smallbiznis/pricedesk/internal/pricing/domain"
	productdomain "github.com/smallbiznis/pricedesk/internal/product/domain"
	"github.com/smallbiznis/pricedesk/internal/providers/pdf"
	"github.com/smallbiznis/pricedesk/internal/providers/storage"
	quotedomain "github.com/smallbiznis/pricedesk/internal/quote/domain"
	tenantdomain "github.com/smallbiznis/pricedesk/internal/tenant/domain"
	tenantrepository "github.com/smallbiznis/pricedesk/internal/tenant/repository"
	"github.com/smallbiznis/pricedesk/internal/tenantcontext"
	"github.com/smallbiznis/pricedesk/pkg/db/dbtest"
	"github.com/smallbiznis/pricedesk/pkg/db/model"
	"github.com/smallbiznis/pricedesk/pkg/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

type capturingPDF struct {
	doc pdf.QuoteDocument
}

func (c *capturingPDF) GenerateQuote(ctx context.Context, doc pdf.QuoteDocument) ([]byte, error) {
	c.doc = doc
	return []byte("%PDF-1.4 test"), nil
}

func TestQuotePDFStoresAndPresigns(t *testing.T) {
	db := dbtest.Open(t,
		&tenantdomain.Tenant{},
		&accountdomain.Account{}, &accountdomain.Opportunity{},
		&productdomain.Product{}, &plandomain.Plan{}, &plandomain.Tier{},
		&quotedomain.Quote{},
	)
	node, err := snowflake.NewNode(11)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC))
	now := clk.Now()
	ctx := tenantcontext.With(context.Background(), 1, 7)

	tenantRepo := tenantrepository.Provide()
	require.NoError(t, tenantRepo.Insert(ctx, db, &tenantdomain.Tenant{ID: 1, Name: "Globex", Slug: "globex", CreatedAt: now, UpdatedAt: now}))

	accounts := repository.ProvideStore[accountdomain.Account](db)
	opportunities := repository.ProvideStore[accountdomain.Opportunity](db)
	account := &accountdomain.Account{Base: model.NewBase(ctx, node.Generate(), now), Name: "Acme"}
	require.NoError(t, accounts.Create(ctx, account))
	opp := &accountdomain.Opportunity{Base: model.NewBase(ctx, node.Generate(), now), AccountID: account.ID, Name: "Renewal", Stage: accountdomain.StageProposal, Currency: "USD"}
	require.NoError(t, opportunities.Create(ctx, opp))

	products := repository.ProvideStore[productdomain.Product](db)
	product := &productdomain.Product{Base: model.NewBase(ctx, node.Generate(), now), Code: "crm", Name: "CRM", Active: true}
	require.NoError(t, products.Create(ctx, product))
	planRepo := planrepository.Provide()
	plan := &plandomain.Plan{Base: model.NewBase(ctx, node.Generate(), now), ProductID: product.ID, Code: "std", Name: "Standard", Active: true}
	require.NoError(t, planRepo.InsertPlan(ctx, db, plan))
	tier := &plandomain.Tier{Base: model.NewBase(ctx, node.Generate(), now), PlanID: plan.ID, Name: "Pro"}
	require.NoError(t, planRepo.InsertTier(ctx, db, tier))

	metric := "storage_gb"
	breakdown := pricingdomain.Breakdown{
		Currency: "USD",
		Tiers: []pricingdomain.TierBreakdown{{
			TierID: tier.ID.String(),
			Products: []pricingdomain.ProductBreakdown{{
				ProductID: product.ID.String(),
				Core: []pricingdomain.RowValue{
					{Key: "seats", DisplayName: "Seats", Value: decimal.NewFromInt(10)},
					{Key: "total", Value: decimal.NewFromInt(1000)},
				},
				Addons: []pricingdomain.AddonLine{{
					AddonID: "1", ProductID: product.ID.String(), Metric: &metric,
					Units: decimal.NewFromInt(2), UnitPrice: decimal.NewFromInt(5), Total: decimal.NewFromInt(10),
				}},
				Subtotal:        decimal.NewFromInt(1010),
				DiscountPercent: decimal.NewFromInt(10),
				Total:           decimal.NewFromInt(909),
			}},
		}},
		Subtotal: decimal.NewFromInt(1010),
		Total:    decimal.NewFromInt(909),
	}
	quotes := repository.ProvideStore[quotedomain.Quote](db)
	quote := &quotedomain.Quote{
		Base:            model.NewBase(ctx, node.Generate(), now),
		Number:          "Q-TEST",
		OpportunityID:   opp.ID,
		PriceBookID:     1,
		Name:            "Acme 2027",
		Status:          quotedomain.StatusDraft,
		Currency:        "USD",
		Subtotal:        breakdown.Subtotal,
		DiscountPercent: decimal.NewFromInt(10),
		Total:           breakdown.Total,
		DealTerms:       datatypes.JSONMap{"payment_terms": "net 30", "billing": "annual"},
		Breakdown:       datatypes.NewJSONType(breakdown),
	}
	require.NoError(t, quotes.Create(ctx, quote))

	renderer := &capturingPDF{}
	store := storage.NewMemoryStorage()
	cfg := config.Config{}
	cfg.AWS.PresignExpiration = 10 * time.Minute
	svc := New(Params{
		DB: db, Log: zap.NewNop(), Clock: clk, Cfg: cfg,
		Quotes: quotes, Opportunities: opportunities, Accounts: accounts, Products: products,
		PlanRepo: planRepo, TenantRepo: tenantRepo, PDF: renderer, Storage: store,
	})

	resp, err := svc.QuotePDF(ctx, quote.ID.String())
	require.NoError(t, err)
	assert.Equal(t, "Q-TEST", resp.QuoteNumber)
	assert.Equal(t, documentdomain.ContentTypePDF, resp.ContentType)
	assert.Equal(t, "memory://"+resp.Key, resp.URL)

	body, ok := store.Get(resp.Key)
	require.True(t, ok)
	assert.Equal(t, "%PDF-1.4 test", string(body))

	doc := renderer.doc
	assert.Equal(t, "Globex", doc.TenantName)
	assert.Equal(t, "Acme", doc.AccountName)
	assert.Equal(t, "2026-09-01", doc.IssuedAt)
	assert.Equal(t, "USD 909.00", doc.Total)
	require.Len(t, doc.Sections, 1)
	assert.Equal(t, "CRM - Pro", doc.Sections[0].Title)
	rows := doc.Sections[0].Rows
	require.Len(t, rows, 5)
	assert.Equal(t, "Seats", rows[0].Label)
	assert.Equal(t, "total", rows[1].Label)
	assert.True(t, rows[2].Addon)
	assert.Equal(t, "2 x 5.00 = USD 10.00", rows[2].Value)
	assert.Equal(t, "Discount", rows[3].Label)
	assert.Equal(t, []pdf.Term{{Name: "billing", Value: "annual"}, {Name: "payment_terms", Value: "net 30"}}, doc.DealTerms)
}

func TestQuotePDFUnknownQuote(t *testing.T) {
	db := dbtest.Open(t, &quotedomain.Quote{})
	ctx := tenantcontext.With(context.Background(), 1, 7)
	svc := New(Params{
		DB: db, Log: zap.NewNop(), Clock: clock.New(),
		Quotes: repository.ProvideStore[quotedomain.Quote](db),
		PDF:    &capturingPDF{}, Storage: storage.NewMemoryStorage(),
	})

	_, err := svc.QuotePDF(ctx, "12345")
	assert.ErrorIs(t, err, documentdomain.ErrNotFound)

	_, err = svc.QuotePDF(ctx, "nope")
	assert.ErrorIs(t, err, documentdomain.ErrInvalidID)

	_, err = svc.QuotePDF(context.Background(), "12345")
	assert.ErrorIs(t, err, documentdomain.ErrInvalidTenant)
}
