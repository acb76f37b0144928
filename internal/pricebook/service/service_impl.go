package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/pricedesk/internal/audit/domain"
	"github.com/smallbiznis/pricedesk/internal/clock"
	plandomain "github.com/smallbiznis/pricedesk/internal/plan/domain"
	pricebookdomain "github.com/smallbiznis/pricedesk/internal/pricebook/domain"
	"github.com/smallbiznis/pricedesk/internal/pricebook/rules"
	productdomain "github.com/smallbiznis/pricedesk/internal/product/domain"
	"github.com/smallbiznis/pricedesk/internal/tenantcontext"
	"github.com/smallbiznis/pricedesk/pkg/db/model"
	"github.com/smallbiznis/pricedesk/pkg/db/option"
	"github.com/smallbiznis/pricedesk/pkg/db/pagination"
	"github.com/smallbiznis/pricedesk/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var hundred = decimal.NewFromInt(100)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Books    repository.Repository[pricebookdomain.PriceBook]
	Entries  repository.Repository[pricebookdomain.PriceBookEntry]
	Rules    repository.Repository[pricebookdomain.PriceBookRule]
	Policies repository.Repository[pricebookdomain.DiscountPolicy]
	Products repository.Repository[productdomain.Product]
	PlanRepo plandomain.Repository
	Engine   *rules.Engine
	AuditSvc auditdomain.Service
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	books    repository.Repository[pricebookdomain.PriceBook]
	entries  repository.Repository[pricebookdomain.PriceBookEntry]
	rules    repository.Repository[pricebookdomain.PriceBookRule]
	policies repository.Repository[pricebookdomain.DiscountPolicy]
	products repository.Repository[productdomain.Product]
	planRepo plandomain.Repository
	engine   *rules.Engine
	auditSvc auditdomain.Service
}

func New(p Params) pricebookdomain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("pricebook.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		books:    p.Books,
		entries:  p.Entries,
		rules:    p.Rules,
		policies: p.Policies,
		products: p.Products,
		planRepo: p.PlanRepo,
		engine:   p.Engine,
		auditSvc: p.AuditSvc,
	}
}

func (s *Service) Create(ctx context.Context, req pricebookdomain.PriceBookRequest) (*pricebookdomain.PriceBookResponse, error) {
	if _, err := s.tenantIDFromContext(ctx); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, pricebookdomain.ErrInvalidName
	}
	currency, err := normalizeCurrency(req.Currency)
	if err != nil {
		return nil, err
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}

	book := &pricebookdomain.PriceBook{
		Base:        model.NewBase(ctx, s.genID.Generate(), s.clock.Now()),
		Name:        name,
		Description: trimmed(req.Description),
		Currency:    currency,
		Active:      active,
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.books.WithTrx(tx).Create(ctx, book); err != nil {
			return err
		}
		return s.audit(ctx, tx, "price_book.create", "price_book", book.ID, map[string]any{"currency": currency})
	})
	if err != nil {
		return nil, err
	}
	return toPriceBookResponse(book), nil
}

func (s *Service) List(ctx context.Context, req pricebookdomain.ListRequest) (*pricebookdomain.ListResponse, error) {
	tenantID, err := s.tenantIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := pagination.DecodeBeforeID(req.PageToken); err != nil {
		return nil, pricebookdomain.ErrInvalidPageToken
	}

	opts := []option.QueryOption{
		option.WithSortBy(option.QuerySortBy{}),
		option.ApplyPagination(req.Pagination),
	}
	if req.Active != nil {
		opts = append(opts, option.ApplyOperator(option.Condition{
			Field:    "active",
			Operator: option.EQ,
			Value:    *req.Active,
		}))
	}

	items, err := s.books.Find(ctx, tenantID, nil, opts...)
	if err != nil {
		return nil, err
	}
	items, pageInfo := pagination.Trim(items, req.PageSize, func(b *pricebookdomain.PriceBook) string { return b.ID.String() })

	resp := &pricebookdomain.ListResponse{PageInfo: pageInfo, PriceBooks: make([]pricebookdomain.PriceBookResponse, 0, len(items))}
	for _, item := range items {
		resp.PriceBooks = append(resp.PriceBooks, *toPriceBookResponse(item))
	}
	return resp, nil
}

func (s *Service) Get(ctx context.Context, id string) (*pricebookdomain.PriceBookResponse, error) {
	tenantID, bookID, err := s.parse(ctx, id)
	if err != nil {
		return nil, err
	}
	book, err := s.loadBook(ctx, s.books, tenantID, bookID)
	if err != nil {
		return nil, err
	}
	return toPriceBookResponse(book), nil
}

func (s *Service) Update(ctx context.Context, id string, req pricebookdomain.PriceBookRequest) (*pricebookdomain.PriceBookResponse, error) {
	tenantID, bookID, err := s.parse(ctx, id)
	if err != nil {
		return nil, err
	}

	values := map[string]any{}
	if req.Name != "" {
		name := strings.TrimSpace(req.Name)
		if name == "" {
			return nil, pricebookdomain.ErrInvalidName
		}
		values["name"] = name
	}
	if req.Description != nil {
		values["description"] = trimmed(req.Description)
	}
	if req.Currency != "" {
		currency, err := normalizeCurrency(req.Currency)
		if err != nil {
			return nil, err
		}
		values["currency"] = currency
	}
	if req.Active != nil {
		values["active"] = *req.Active
	}

	var book *pricebookdomain.PriceBook
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		books := s.books.WithTrx(tx)
		if _, err := s.loadBook(ctx, books, tenantID, bookID); err != nil {
			return err
		}
		if err := books.Update(ctx, tenantID, bookID, model.Updates(ctx, s.clock.Now(), values)); err != nil {
			return err
		}
		book, err = s.loadBook(ctx, books, tenantID, bookID)
		if err != nil {
			return err
		}
		return s.audit(ctx, tx, "price_book.update", "price_book", bookID, nil)
	})
	if err != nil {
		return nil, err
	}
	return toPriceBookResponse(book), nil
}

// Delete soft-deletes the price book with its entries, rules and policy.
func (s *Service) Delete(ctx context.Context, id string) error {
	tenantID, bookID, err := s.parse(ctx, id)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		books := s.books.WithTrx(tx)
		if _, err := s.loadBook(ctx, books, tenantID, bookID); err != nil {
			return err
		}
		deleted := model.Updates(ctx, s.clock.Now(), map[string]any{"is_deleted": true})
		for _, table := range []any{&pricebookdomain.PriceBookEntry{}, &pricebookdomain.PriceBookRule{}, &pricebookdomain.DiscountPolicy{}} {
			err := tx.WithContext(ctx).Model(table).
				Where("tenant_id = ? AND price_book_id = ? AND is_deleted = ?", tenantID, bookID, false).
				Updates(deleted).Error
			if err != nil {
				return err
			}
		}
		if err := books.SoftDelete(ctx, tenantID, bookID, tenantcontext.ActorRef(ctx)); err != nil {
			return err
		}
		return s.audit(ctx, tx, "price_book.delete", "price_book", bookID, nil)
	})
}

func (s *Service) CreateEntry(ctx context.Context, priceBookID string, req pricebookdomain.EntryRequest) (*pricebookdomain.EntryResponse, error) {
	tenantID, bookID, err := s.parse(ctx, priceBookID)
	if err != nil {
		return nil, err
	}
	productID, err := parseID(req.ProductID)
	if err != nil {
		return nil, pricebookdomain.ErrInvalidProduct
	}
	tierID, err := parseID(req.TierID)
	if err != nil {
		return nil, pricebookdomain.ErrInvalidTier
	}
	if req.ListPrice == nil || req.ListPrice.IsNegative() {
		return nil, pricebookdomain.ErrInvalidPrice
	}

	entry := &pricebookdomain.PriceBookEntry{
		Base:        model.NewBase(ctx, s.genID.Generate(), s.clock.Now()),
		PriceBookID: bookID,
		ProductID:   productID,
		TierID:      tierID,
		ListPrice:   req.ListPrice.Round(4),
		IsAddon:     req.IsAddon,
		Metric:      trimmed(req.Metric),
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.loadBook(ctx, s.books.WithTrx(tx), tenantID, bookID); err != nil {
			if errors.Is(err, pricebookdomain.ErrNotFound) {
				return pricebookdomain.ErrInvalidPriceBook
			}
			return err
		}
		if err := s.requireTierOfProduct(ctx, tx, tenantID, productID, tierID); err != nil {
			return err
		}
		entries := s.entries.WithTrx(tx)
		if !entry.IsAddon {
			existing, err := entries.Count(ctx, tenantID, nil, coreEntryFilter(bookID, productID, tierID)...)
			if err != nil {
				return err
			}
			if existing > 0 {
				return pricebookdomain.ErrEntryExists
			}
		}
		if err := entries.Create(ctx, entry); err != nil {
			return err
		}
		return s.audit(ctx, tx, "price_book_entry.create", "price_book_entry", entry.ID, map[string]any{
			"price_book_id": bookID.String(),
			"list_price":    entry.ListPrice.String(),
		})
	})
	if err != nil {
		return nil, err
	}
	return toEntryResponse(entry), nil
}

func (s *Service) ListEntries(ctx context.Context, priceBookID string) ([]pricebookdomain.EntryResponse, error) {
	tenantID, bookID, err := s.parse(ctx, priceBookID)
	if err != nil {
		return nil, err
	}
	if _, err := s.loadBook(ctx, s.books, tenantID, bookID); err != nil {
		return nil, err
	}
	items, err := s.entries.Find(ctx, tenantID, &pricebookdomain.PriceBookEntry{PriceBookID: bookID}, oldestFirst())
	if err != nil {
		return nil, err
	}
	resp := make([]pricebookdomain.EntryResponse, 0, len(items))
	for _, item := range items {
		resp = append(resp, *toEntryResponse(item))
	}
	return resp, nil
}

// UpdateEntry changes price and metric only. Moving an entry to another
// product or tier is a delete and create.
func (s *Service) UpdateEntry(ctx context.Context, id string, req pricebookdomain.EntryRequest) (*pricebookdomain.EntryResponse, error) {
	tenantID, entryID, err := s.parse(ctx, id)
	if err != nil {
		return nil, err
	}
	values := map[string]any{}
	if req.ListPrice != nil {
		if req.ListPrice.IsNegative() {
			return nil, pricebookdomain.ErrInvalidPrice
		}
		values["list_price"] = req.ListPrice.Round(4)
	}
	if req.Metric != nil {
		values["metric"] = trimmed(req.Metric)
	}

	var entry *pricebookdomain.PriceBookEntry
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		entries := s.entries.WithTrx(tx)
		if _, err := loadRow(ctx, entries, tenantID, entryID); err != nil {
			return err
		}
		if err := entries.Update(ctx, tenantID, entryID, model.Updates(ctx, s.clock.Now(), values)); err != nil {
			return err
		}
		entry, err = loadRow(ctx, entries, tenantID, entryID)
		if err != nil {
			return err
		}
		return s.audit(ctx, tx, "price_book_entry.update", "price_book_entry", entryID, map[string]any{"list_price": entry.ListPrice.String()})
	})
	if err != nil {
		return nil, err
	}
	return toEntryResponse(entry), nil
}

func (s *Service) DeleteEntry(ctx context.Context, id string) error {
	tenantID, entryID, err := s.parse(ctx, id)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		entries := s.entries.WithTrx(tx)
		if _, err := loadRow(ctx, entries, tenantID, entryID); err != nil {
			return err
		}
		if err := entries.SoftDelete(ctx, tenantID, entryID, tenantcontext.ActorRef(ctx)); err != nil {
			return err
		}
		return s.audit(ctx, tx, "price_book_entry.delete", "price_book_entry", entryID, nil)
	})
}

func (s *Service) requireTierOfProduct(ctx context.Context, tx *gorm.DB, tenantID, productID, tierID snowflake.ID) error {
	product, err := s.products.WithTrx(tx).FindByID(ctx, tenantID, productID)
	if err != nil {
		return err
	}
	if product == nil {
		return pricebookdomain.ErrInvalidProduct
	}
	tier, err := s.planRepo.FindTier(ctx, tx, tenantID, tierID)
	if err != nil {
		return err
	}
	if tier == nil {
		return pricebookdomain.ErrInvalidTier
	}
	plan, err := s.planRepo.FindPlan(ctx, tx, tenantID, tier.PlanID)
	if err != nil {
		return err
	}
	if plan == nil || plan.ProductID != productID {
		return pricebookdomain.ErrInvalidTier
	}
	return nil
}

func (s *Service) loadBook(ctx context.Context, repo repository.Repository[pricebookdomain.PriceBook], tenantID, id snowflake.ID) (*pricebookdomain.PriceBook, error) {
	return loadRow(ctx, repo, tenantID, id)
}

func loadRow[T any](ctx context.Context, repo repository.Repository[T], tenantID, id snowflake.ID) (*T, error) {
	row, err := repo.FindByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, pricebookdomain.ErrNotFound
	}
	return row, nil
}

func coreEntryFilter(bookID, productID, tierID snowflake.ID) []option.QueryOption {
	return []option.QueryOption{
		option.ApplyOperator(option.Condition{Field: "price_book_id", Operator: option.EQ, Value: int64(bookID)}),
		option.ApplyOperator(option.Condition{Field: "product_id", Operator: option.EQ, Value: int64(productID)}),
		option.ApplyOperator(option.Condition{Field: "tier_id", Operator: option.EQ, Value: int64(tierID)}),
		option.ApplyOperator(option.Condition{Field: "is_addon", Operator: option.EQ, Value: false}),
	}
}

func oldestFirst() option.QueryOption {
	return option.WithSortBy(option.QuerySortBy{OrderBy: "asc"})
}

func (s *Service) audit(ctx context.Context, tx *gorm.DB, action, targetType string, id snowflake.ID, metadata map[string]any) error {
	return s.auditSvc.Record(ctx, tx, auditdomain.Entry{
		Action:     action,
		TargetType: targetType,
		TargetID:   id.String(),
		Metadata:   metadata,
	})
}

func (s *Service) parse(ctx context.Context, id string) (snowflake.ID, snowflake.ID, error) {
	tenantID, err := s.tenantIDFromContext(ctx)
	if err != nil {
		return 0, 0, err
	}
	parsed, err := parseID(id)
	if err != nil {
		return 0, 0, pricebookdomain.ErrInvalidID
	}
	return tenantID, parsed, nil
}

func (s *Service) tenantIDFromContext(ctx context.Context) (snowflake.ID, error) {
	tenantID, ok := tenantcontext.TenantIDFromContext(ctx)
	if !ok {
		return 0, pricebookdomain.ErrInvalidTenant
	}
	return tenantID, nil
}

func normalizeCurrency(value string) (string, error) {
	currency := strings.ToUpper(strings.TrimSpace(value))
	if currency == "" {
		return "USD", nil
	}
	if len(currency) != 3 {
		return "", pricebookdomain.ErrInvalidCurrency
	}
	return currency, nil
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil {
		return 0, err
	}
	if id == 0 {
		return 0, pricebookdomain.ErrInvalidID
	}
	return id, nil
}

func trimmed(value *string) *string {
	if value == nil {
		return nil
	}
	v := strings.TrimSpace(*value)
	if v == "" {
		return nil
	}
	return &v
}

func toPriceBookResponse(b *pricebookdomain.PriceBook) *pricebookdomain.PriceBookResponse {
	return &pricebookdomain.PriceBookResponse{
		ID:          b.ID.String(),
		Name:        b.Name,
		Description: b.Description,
		Currency:    b.Currency,
		Active:      b.Active,
		CreatedAt:   b.CreatedAt,
		UpdatedAt:   b.UpdatedAt,
	}
}

func toEntryResponse(e *pricebookdomain.PriceBookEntry) *pricebookdomain.EntryResponse {
	return &pricebookdomain.EntryResponse{
		ID:          e.ID.String(),
		PriceBookID: e.PriceBookID.String(),
		ProductID:   e.ProductID.String(),
		TierID:      e.TierID.String(),
		ListPrice:   e.ListPrice,
		IsAddon:     e.IsAddon,
		Metric:      e.Metric,
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}
}

func toRuleResponse(r *pricebookdomain.PriceBookRule) *pricebookdomain.RuleResponse {
	resp := &pricebookdomain.RuleResponse{
		ID:          r.ID.String(),
		PriceBookID: r.PriceBookID.String(),
		Name:        r.Name,
		Condition:   r.Condition,
		Action:      r.Action,
		Value:       r.Value,
		Active:      r.Active,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	if r.ProductID != nil {
		id := r.ProductID.String()
		resp.ProductID = &id
	}
	return resp
}

func toPolicyResponse(p *pricebookdomain.DiscountPolicy) *pricebookdomain.DiscountPolicyResponse {
	roles := []string(p.ApproverRoles)
	if roles == nil {
		roles = []string{}
	}
	return &pricebookdomain.DiscountPolicyResponse{
		ID:                       p.ID.String(),
		PriceBookID:              p.PriceBookID.String(),
		MaxDiscountPercent:       p.MaxDiscountPercent,
		ApprovalThresholdPercent: p.ApprovalThresholdPercent,
		ApproverRoles:            roles,
		UpdatedAt:                p.UpdatedAt,
	}
}

func normalizeRoles(roles []string) pq.StringArray {
	seen := make(map[string]struct{}, len(roles))
	out := make(pq.StringArray, 0, len(roles))
	for _, role := range roles {
		role = strings.TrimSpace(role)
		if role == "" {
			continue
		}
		if _, ok := seen[role]; ok {
			continue
		}
		seen[role] = struct{}{}
		out = append(out, role)
	}
	return out
}
