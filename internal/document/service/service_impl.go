package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/smallbiznis/pricedesk/internal/account/domain"
	"github.com/smallbiznis/pricedesk/internal/clock"
	"github.com/smallbiznis/pricedesk/internal/config"
	documentdomain "github.com/smallbiznis/pricedesk/internal/document/domain"
	plandomain "github.com/smallbiznis/pricedesk/internal/plan/domain"
	pricingdomain "github.com/smallbiznis/pricedesk/internal/pricing/domain"
	productdomain "github.com/smallbiznis/pricedesk/internal/product/domain"
	"github.com/smallbiznis/pricedesk/internal/providers/pdf"
	"github.com/smallbiznis/pricedesk/internal/providers/storage"
	quotedomain "github.com/smallbiznis/pricedesk/internal/quote/domain"
	tenantdomain "github.com/smallbiznis/pricedesk/internal/tenant/domain"
	"github.com/smallbiznis/pricedesk/internal/tenantcontext"
	"github.com/smallbiznis/pricedesk/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	Clock         clock.Clock
	Cfg           config.Config
	Quotes        repository.Repository[quotedomain.Quote]
	Opportunities repository.Repository[accountdomain.Opportunity]
	Accounts      repository.Repository[accountdomain.Account]
	Products      repository.Repository[productdomain.Product]
	PlanRepo      plandomain.Repository
	TenantRepo    tenantdomain.Repository
	PDF           pdf.Provider
	Storage       storage.ObjectStorage
}

type Service struct {
	db            *gorm.DB
	log           *zap.Logger
	clock         clock.Clock
	cfg           config.Config
	quotes        repository.Repository[quotedomain.Quote]
	opportunities repository.Repository[accountdomain.Opportunity]
	accounts      repository.Repository[accountdomain.Account]
	products      repository.Repository[productdomain.Product]
	planRepo      plandomain.Repository
	tenantRepo    tenantdomain.Repository
	pdf           pdf.Provider
	storage       storage.ObjectStorage
}

func New(p Params) documentdomain.Service {
	return &Service{
		db:            p.DB,
		log:           p.Log.Named("document.service"),
		clock:         p.Clock,
		cfg:           p.Cfg,
		quotes:        p.Quotes,
		opportunities: p.Opportunities,
		accounts:      p.Accounts,
		products:      p.Products,
		planRepo:      p.PlanRepo,
		tenantRepo:    p.TenantRepo,
		pdf:           p.PDF,
		storage:       p.Storage,
	}
}

func (s *Service) QuotePDF(ctx context.Context, quoteID string) (*documentdomain.DocumentResponse, error) {
	tenantID, ok := tenantcontext.TenantIDFromContext(ctx)
	if !ok {
		return nil, documentdomain.ErrInvalidTenant
	}
	id, err := snowflake.ParseString(strings.TrimSpace(quoteID))
	if err != nil || id == 0 {
		return nil, documentdomain.ErrInvalidID
	}

	quote, err := s.quotes.FindByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if quote == nil {
		return nil, documentdomain.ErrNotFound
	}

	doc, err := s.render(ctx, tenantID, quote)
	if err != nil {
		return nil, err
	}
	body, err := s.pdf.GenerateQuote(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("render quote pdf: %w", err)
	}

	key := fmt.Sprintf("tenants/%s/quotes/%s/%s.pdf", tenantID, quote.ID, quote.Number)
	if err := s.storage.Put(ctx, key, documentdomain.ContentTypePDF, body); err != nil {
		return nil, err
	}
	url, expiresAt, err := s.storage.PresignGet(ctx, key, s.cfg.AWS.PresignExpiration)
	if err != nil {
		return nil, err
	}

	s.log.Info("quote document stored",
		zap.String("tenant_id", tenantID.String()),
		zap.String("quote_id", quote.ID.String()),
		zap.String("key", key),
		zap.Int("bytes", len(body)),
	)

	return &documentdomain.DocumentResponse{
		QuoteID:     quote.ID.String(),
		QuoteNumber: quote.Number,
		Key:         key,
		ContentType: documentdomain.ContentTypePDF,
		URL:         url,
		ExpiresAt:   expiresAt,
	}, nil
}

func (s *Service) render(ctx context.Context, tenantID snowflake.ID, quote *quotedomain.Quote) (pdf.QuoteDocument, error) {
	breakdown := quote.Breakdown.Data()
	doc := pdf.QuoteDocument{
		QuoteNumber: quote.Number,
		QuoteName:   quote.Name,
		Status:      string(quote.Status),
		IssuedAt:    s.clock.Now().Format("2006-01-02"),
		Currency:    quote.Currency,
		Discount:    quote.DiscountPercent.String() + "%",
		Total:       quote.Currency + " " + quote.Total.StringFixed(2),
		DealTerms:   dealTerms(quote.DealTerms),
	}

	tenant, err := s.tenantRepo.FindByID(ctx, s.db, tenantID)
	if err != nil {
		return doc, err
	}
	if tenant != nil {
		doc.TenantName = tenant.Name
	}

	if opp, err := s.opportunities.FindByID(ctx, tenantID, quote.OpportunityID); err != nil {
		return doc, err
	} else if opp != nil {
		account, err := s.accounts.FindByID(ctx, tenantID, opp.AccountID)
		if err != nil {
			return doc, err
		}
		if account != nil {
			doc.AccountName = account.Name
		}
	}

	for _, tier := range breakdown.Tiers {
		tierName := s.tierName(ctx, tenantID, tier.TierID)
		for _, product := range tier.Products {
			doc.Sections = append(doc.Sections, pdf.QuoteSection{
				Title: s.productName(ctx, tenantID, product.ProductID) + " - " + tierName,
				Rows:  sectionRows(breakdown.Currency, product),
			})
		}
	}
	return doc, nil
}

func (s *Service) tierName(ctx context.Context, tenantID snowflake.ID, raw string) string {
	id, err := snowflake.ParseString(raw)
	if err != nil {
		return raw
	}
	tier, err := s.planRepo.FindTier(ctx, s.db, tenantID, id)
	if err != nil || tier == nil {
		return raw
	}
	return tier.Name
}

func (s *Service) productName(ctx context.Context, tenantID snowflake.ID, raw string) string {
	id, err := snowflake.ParseString(raw)
	if err != nil {
		return raw
	}
	product, err := s.products.FindByID(ctx, tenantID, id)
	if err != nil || product == nil {
		return raw
	}
	return product.Name
}

func sectionRows(currency string, product pricingdomain.ProductBreakdown) []pdf.Row {
	rows := make([]pdf.Row, 0, len(product.Core)+len(product.Addons)+2)
	for _, row := range product.Core {
		label := row.DisplayName
		if label == "" {
			label = row.Key
		}
		rows = append(rows, pdf.Row{Label: label, Value: row.Value.String()})
	}
	for _, addon := range product.Addons {
		label := addon.AddonID
		if addon.Metric != nil {
			label = *addon.Metric
		}
		rows = append(rows, pdf.Row{
			Label: label,
			Value: fmt.Sprintf("%s x %s = %s %s", addon.Units.String(), addon.UnitPrice.StringFixed(2), currency, addon.Total.StringFixed(2)),
			Addon: true,
		})
	}
	if !product.DiscountPercent.IsZero() {
		rows = append(rows, pdf.Row{Label: "Discount", Value: product.DiscountPercent.String() + "%"})
	}
	rows = append(rows, pdf.Row{Label: "Total", Value: currency + " " + product.Total.StringFixed(2)})
	return rows
}

func dealTerms(terms map[string]any) []pdf.Term {
	keys := make([]string, 0, len(terms))
	for k := range terms {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]pdf.Term, 0, len(keys))
	for _, k := range keys {
		out = append(out, pdf.Term{Name: k, Value: fmt.Sprint(terms[k])})
	}
	return out
}
