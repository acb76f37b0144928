package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	accountdomain "github.com/smallbiznis/pricedesk/internal/account/domain"
	auditdomain "github.com/smallbiznis/pricedesk/internal/audit/domain"
	"github.com/smallbiznis/pricedesk/internal/clock"
	"github.com/smallbiznis/pricedesk/internal/config"
	"github.com/smallbiznis/pricedesk/internal/observability/metrics"
	pricebookdomain "github.com/smallbiznis/pricedesk/internal/pricebook/domain"
	pricingdomain "github.com/smallbiznis/pricedesk/internal/pricing/domain"
	"github.com/smallbiznis/pricedesk/internal/providers/email"
	quotedomain "github.com/smallbiznis/pricedesk/internal/quote/domain"
	rbacdomain "github.com/smallbiznis/pricedesk/internal/rbac/domain"
	"github.com/smallbiznis/pricedesk/internal/tenantcontext"
	userdomain "github.com/smallbiznis/pricedesk/internal/user/domain"
	"github.com/smallbiznis/pricedesk/pkg/db"
	"github.com/smallbiznis/pricedesk/pkg/db/model"
	"github.com/smallbiznis/pricedesk/pkg/db/option"
	"github.com/smallbiznis/pricedesk/pkg/db/pagination"
	"github.com/smallbiznis/pricedesk/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var hundred = decimal.NewFromInt(100)

type calculator interface {
	Calculate(ctx context.Context, req pricingdomain.CalculateRequest) (*pricingdomain.Breakdown, error)
}

type checker interface {
	Check(ctx context.Context, req pricebookdomain.CheckRequest) (*pricebookdomain.Verdict, error)
}

type roleDirectory interface {
	Resolve(ctx context.Context, userID snowflake.ID) (*rbacdomain.Resolution, error)
	UsersWithRoles(ctx context.Context, roles []string) ([]snowflake.ID, error)
}

type userDirectory interface {
	Emails(ctx context.Context, ids []snowflake.ID) ([]string, error)
}

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	GenID         *snowflake.Node
	Clock         clock.Clock
	Quotes        repository.Repository[quotedomain.Quote]
	Comments      repository.Repository[quotedomain.QuoteComment]
	Opportunities repository.Repository[accountdomain.Opportunity]
	Accounts      repository.Repository[accountdomain.Account]
	Pricing       pricingdomain.Service
	PriceBooks    pricebookdomain.Service
	RBAC          rbacdomain.Service
	Users         userdomain.Service
	Email         email.Provider
	DealDesk      *config.DealDeskConfigHolder
	Metrics       *metrics.Metrics `optional:"true"`
	AuditSvc      auditdomain.Service
}

type Service struct {
	db            *gorm.DB
	log           *zap.Logger
	genID         *snowflake.Node
	clock         clock.Clock
	quotes        repository.Repository[quotedomain.Quote]
	comments      repository.Repository[quotedomain.QuoteComment]
	opportunities repository.Repository[accountdomain.Opportunity]
	accounts      repository.Repository[accountdomain.Account]
	pricing       calculator
	priceBooks    checker
	roles         roleDirectory
	users         userDirectory
	email         email.Provider
	dealDesk      *config.DealDeskConfigHolder
	metrics       *metrics.Metrics
	auditSvc      auditdomain.Service
}

func New(p Params) quotedomain.Service {
	return &Service{
		db:            p.DB,
		log:           p.Log.Named("quote.service"),
		genID:         p.GenID,
		clock:         p.Clock,
		quotes:        p.Quotes,
		comments:      p.Comments,
		opportunities: p.Opportunities,
		accounts:      p.Accounts,
		pricing:       p.Pricing,
		priceBooks:    p.PriceBooks,
		roles:         p.RBAC,
		users:         p.Users,
		email:         p.Email,
		dealDesk:      p.DealDesk,
		metrics:       p.Metrics,
		auditSvc:      p.AuditSvc,
	}
}

func (s *Service) Create(ctx context.Context, req quotedomain.CreateRequest) (*quotedomain.QuoteResponse, error) {
	tenantID, err := s.tenantIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	oppID, err := parseID(req.OpportunityID)
	if err != nil {
		return nil, quotedomain.ErrInvalidOpportunity
	}
	bookID, err := parseID(req.PriceBookID)
	if err != nil {
		return nil, pricingdomain.ErrInvalidPriceBook
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, quotedomain.ErrInvalidName
	}
	discount := decimal.Zero
	if req.DiscountPercent != nil {
		discount = *req.DiscountPercent
	}
	if !validPercent(discount) {
		return nil, quotedomain.ErrInvalidDiscount
	}

	opp, err := s.opportunities.FindByID(ctx, tenantID, oppID)
	if err != nil {
		return nil, err
	}
	if opp == nil {
		return nil, quotedomain.ErrInvalidOpportunity
	}

	breakdown, verdict, err := s.price(ctx, bookID, req.Selections, discount)
	if err != nil {
		return nil, err
	}

	quote := &quotedomain.Quote{
		Base:             model.NewBase(ctx, s.genID.Generate(), s.clock.Now()),
		Number:           s.newNumber(),
		OpportunityID:    oppID,
		PriceBookID:      bookID,
		Name:             name,
		Status:           quotedomain.StatusDraft,
		Currency:         breakdown.Currency,
		Subtotal:         breakdown.Subtotal,
		DiscountPercent:  discount,
		Total:            breakdown.Total,
		Selections:       datatypes.JSONSlice[pricingdomain.Selection](req.Selections),
		Breakdown:        datatypes.NewJSONType(*breakdown),
		RequiresApproval: verdict.RequiresApproval,
		ApproverRoles:    verdict.ApproverRoles,
		ValidUntil:       req.ValidUntil,
	}
	if req.DealTerms != nil {
		quote.DealTerms = datatypes.JSONMap(req.DealTerms)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.quotes.WithTrx(tx).Create(ctx, quote); err != nil {
			return err
		}
		return s.audit(ctx, tx, "quote.create", quote.ID, map[string]any{
			"number": quote.Number,
			"total":  quote.Total.String(),
		})
	})
	if err != nil {
		return nil, err
	}
	return toQuoteResponse(quote), nil
}

func (s *Service) List(ctx context.Context, req quotedomain.ListRequest) (*quotedomain.ListResponse, error) {
	tenantID, err := s.tenantIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := pagination.DecodeBeforeID(req.PageToken); err != nil {
		return nil, quotedomain.ErrInvalidPageToken
	}

	filter := &quotedomain.Quote{}
	if strings.TrimSpace(req.OpportunityID) != "" {
		oppID, err := parseID(req.OpportunityID)
		if err != nil {
			return nil, quotedomain.ErrInvalidOpportunity
		}
		filter.OpportunityID = oppID
	}
	if req.Status != "" {
		status := quotedomain.Status(req.Status)
		if !status.Valid() {
			return nil, quotedomain.ErrInvalidStatus
		}
		filter.Status = status
	}

	items, err := s.quotes.Find(ctx, tenantID, filter,
		option.WithSortBy(option.QuerySortBy{}),
		option.ApplyPagination(req.Pagination),
	)
	if err != nil {
		return nil, err
	}
	items, pageInfo := pagination.Trim(items, req.PageSize, func(q *quotedomain.Quote) string { return q.ID.String() })

	resp := &quotedomain.ListResponse{PageInfo: pageInfo, Quotes: make([]quotedomain.QuoteResponse, 0, len(items))}
	for _, item := range items {
		resp.Quotes = append(resp.Quotes, *toQuoteResponse(item))
	}
	return resp, nil
}

func (s *Service) Get(ctx context.Context, id string) (*quotedomain.QuoteResponse, error) {
	tenantID, quoteID, err := s.parse(ctx, id)
	if err != nil {
		return nil, err
	}
	quote, err := loadRow(ctx, s.quotes, tenantID, quoteID)
	if err != nil {
		return nil, err
	}
	return toQuoteResponse(quote), nil
}

func (s *Service) Update(ctx context.Context, id string, req quotedomain.UpdateRequest) (*quotedomain.QuoteResponse, error) {
	tenantID, quoteID, err := s.parse(ctx, id)
	if err != nil {
		return nil, err
	}
	snapshot, err := loadRow(ctx, s.quotes, tenantID, quoteID)
	if err != nil {
		return nil, err
	}
	if snapshot.Status != quotedomain.StatusDraft {
		return nil, quotedomain.ErrNotEditable
	}

	values := map[string]any{}
	if req.Name != "" {
		name := strings.TrimSpace(req.Name)
		if name == "" {
			return nil, quotedomain.ErrInvalidName
		}
		values["name"] = name
	}
	if req.DealTerms != nil {
		values["deal_terms"] = datatypes.JSONMap(req.DealTerms)
	}
	if req.ValidUntil != nil {
		values["valid_until"] = *req.ValidUntil
	}

	discount := snapshot.DiscountPercent
	if req.DiscountPercent != nil {
		if !validPercent(*req.DiscountPercent) {
			return nil, quotedomain.ErrInvalidDiscount
		}
		discount = *req.DiscountPercent
	}
	selections := []pricingdomain.Selection(snapshot.Selections)
	if len(req.Selections) > 0 {
		selections = req.Selections
	}
	if req.DiscountPercent != nil || len(req.Selections) > 0 {
		breakdown, verdict, err := s.price(ctx, snapshot.PriceBookID, selections, discount)
		if err != nil {
			return nil, err
		}
		values["selections"] = datatypes.JSONSlice[pricingdomain.Selection](selections)
		values["breakdown"] = datatypes.NewJSONType(*breakdown)
		values["currency"] = breakdown.Currency
		values["subtotal"] = breakdown.Subtotal
		values["discount_percent"] = discount
		values["total"] = breakdown.Total
		values["requires_approval"] = verdict.RequiresApproval
		values["approver_roles"] = pqRoles(verdict.ApproverRoles)
	}

	var quote *quotedomain.Quote
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := s.lock(ctx, tx, tenantID, quoteID)
		if err != nil {
			return err
		}
		if locked.Status != quotedomain.StatusDraft {
			return quotedomain.ErrNotEditable
		}
		if !locked.UpdatedAt.Equal(snapshot.UpdatedAt) {
			return quotedomain.ErrStaleQuote
		}
		quotes := s.quotes.WithTrx(tx)
		if err := quotes.Update(ctx, tenantID, quoteID, model.Updates(ctx, s.clock.Now(), values)); err != nil {
			return err
		}
		if quote, err = loadRow(ctx, quotes, tenantID, quoteID); err != nil {
			return err
		}
		return s.audit(ctx, tx, "quote.update", quoteID, map[string]any{"total": quote.Total.String()})
	})
	if err != nil {
		return nil, err
	}
	return toQuoteResponse(quote), nil
}

// Delete soft-deletes quotes that are not live in the approval flow.
func (s *Service) Delete(ctx context.Context, id string) error {
	tenantID, quoteID, err := s.parse(ctx, id)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		quote, err := s.lock(ctx, tx, tenantID, quoteID)
		if err != nil {
			return err
		}
		switch quote.Status {
		case quotedomain.StatusDraft, quotedomain.StatusDeclined, quotedomain.StatusCancelled:
		default:
			return quotedomain.ErrNotEditable
		}
		if err := s.quotes.WithTrx(tx).SoftDelete(ctx, tenantID, quoteID, tenantcontext.ActorRef(ctx)); err != nil {
			return err
		}
		return s.audit(ctx, tx, "quote.delete", quoteID, map[string]any{"number": quote.Number})
	})
}

func (s *Service) AddComment(ctx context.Context, id string, req quotedomain.CommentRequest) (*quotedomain.CommentResponse, error) {
	tenantID, quoteID, err := s.parse(ctx, id)
	if err != nil {
		return nil, err
	}
	body := strings.TrimSpace(req.Body)
	if body == "" {
		return nil, quotedomain.ErrInvalidComment
	}
	var comment *quotedomain.QuoteComment
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := loadRow(ctx, s.quotes.WithTrx(tx), tenantID, quoteID); err != nil {
			return err
		}
		comment, err = s.addComment(ctx, tx, quoteID, quotedomain.CommentNote, body)
		return err
	})
	if err != nil {
		return nil, err
	}
	return toCommentResponse(comment), nil
}

func (s *Service) ListComments(ctx context.Context, id string) ([]quotedomain.CommentResponse, error) {
	tenantID, quoteID, err := s.parse(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := loadRow(ctx, s.quotes, tenantID, quoteID); err != nil {
		return nil, err
	}
	items, err := s.comments.Find(ctx, tenantID, &quotedomain.QuoteComment{QuoteID: quoteID},
		option.WithSortBy(option.QuerySortBy{OrderBy: "asc"}),
	)
	if err != nil {
		return nil, err
	}
	resp := make([]quotedomain.CommentResponse, 0, len(items))
	for _, item := range items {
		resp = append(resp, *toCommentResponse(item))
	}
	return resp, nil
}

func (s *Service) addComment(ctx context.Context, tx *gorm.DB, quoteID snowflake.ID, kind quotedomain.CommentKind, body string) (*quotedomain.QuoteComment, error) {
	comment := &quotedomain.QuoteComment{
		Base:    model.NewBase(ctx, s.genID.Generate(), s.clock.Now()),
		QuoteID: quoteID,
		Kind:    kind,
		Body:    body,
	}
	if err := s.comments.WithTrx(tx).Create(ctx, comment); err != nil {
		return nil, err
	}
	return comment, nil
}

// price computes the breakdown of selections with discount applied to every
// product and checks it against the price book.
func (s *Service) price(ctx context.Context, bookID snowflake.ID, selections []pricingdomain.Selection, discount decimal.Decimal) (*pricingdomain.Breakdown, *pricebookdomain.Verdict, error) {
	breakdown, err := s.pricing.Calculate(ctx, pricingdomain.CalculateRequest{
		PriceBookID: bookID.String(),
		Selections:  selections,
	})
	if err != nil {
		return nil, nil, err
	}
	breakdown.ApplyDiscounts(discount, nil)
	verdict, err := s.check(ctx, bookID, breakdown)
	if err != nil {
		return nil, nil, err
	}
	return breakdown, verdict, nil
}

func (s *Service) check(ctx context.Context, bookID snowflake.ID, breakdown *pricingdomain.Breakdown) (*pricebookdomain.Verdict, error) {
	req := pricebookdomain.CheckRequest{PriceBookID: bookID.String(), QuoteTotal: breakdown.Total}
	for _, tier := range breakdown.Tiers {
		for _, p := range tier.Products {
			req.Lines = append(req.Lines, pricebookdomain.CheckLine{
				ProductID:       p.ProductID,
				TierID:          tier.TierID,
				Quantities:      p.Quantities,
				ListPrice:       p.ListPrice,
				Subtotal:        p.Subtotal,
				DiscountPercent: p.DiscountPercent,
			})
		}
	}
	verdict, err := s.priceBooks.Check(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(verdict.Violations) > 0 {
		return nil, &quotedomain.RuleViolationError{Violations: verdict.Violations}
	}
	return verdict, nil
}

func (s *Service) lock(ctx context.Context, tx *gorm.DB, tenantID, id snowflake.ID) (*quotedomain.Quote, error) {
	return loadRow(ctx, s.quotes.WithTrx(db.ForUpdate(tx)), tenantID, id)
}

func (s *Service) newNumber() string {
	prefix := "Q"
	if s.dealDesk != nil {
		if p := strings.TrimSpace(s.dealDesk.Get().QuotePrefix); p != "" {
			prefix = p
		}
	}
	return fmt.Sprintf("%s-%s", prefix, ulid.Make().String())
}

func loadRow[T any](ctx context.Context, repo repository.Repository[T], tenantID, id snowflake.ID) (*T, error) {
	row, err := repo.FindByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, quotedomain.ErrNotFound
	}
	return row, nil
}

func (s *Service) audit(ctx context.Context, tx *gorm.DB, action string, id snowflake.ID, metadata map[string]any) error {
	return s.auditSvc.Record(ctx, tx, auditdomain.Entry{
		Action:     action,
		TargetType: "quote",
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
		return 0, 0, quotedomain.ErrInvalidID
	}
	return tenantID, parsed, nil
}

func (s *Service) tenantIDFromContext(ctx context.Context) (snowflake.ID, error) {
	tenantID, ok := tenantcontext.TenantIDFromContext(ctx)
	if !ok {
		return 0, quotedomain.ErrInvalidTenant
	}
	return tenantID, nil
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil {
		return 0, err
	}
	if id == 0 {
		return 0, quotedomain.ErrInvalidID
	}
	return id, nil
}

func validPercent(value decimal.Decimal) bool {
	return !value.IsNegative() && value.LessThanOrEqual(hundred)
}

func toQuoteResponse(q *quotedomain.Quote) *quotedomain.QuoteResponse {
	resp := &quotedomain.QuoteResponse{
		ID:               q.ID.String(),
		Number:           q.Number,
		OpportunityID:    q.OpportunityID.String(),
		PriceBookID:      q.PriceBookID.String(),
		Name:             q.Name,
		Status:           q.Status,
		Currency:         q.Currency,
		Subtotal:         q.Subtotal,
		DiscountPercent:  q.DiscountPercent,
		Total:            q.Total,
		Breakdown:        q.Breakdown.Data(),
		RequiresApproval: q.RequiresApproval,
		ApproverRoles:    []string(q.ApproverRoles),
		ValidUntil:       q.ValidUntil,
		CreatedAt:        q.CreatedAt,
		UpdatedAt:        q.UpdatedAt,
	}
	if q.DealTerms != nil {
		resp.DealTerms = map[string]any(q.DealTerms)
	}
	return resp
}

func toCommentResponse(c *quotedomain.QuoteComment) *quotedomain.CommentResponse {
	resp := &quotedomain.CommentResponse{
		ID:        c.ID.String(),
		QuoteID:   c.QuoteID.String(),
		Kind:      c.Kind,
		Body:      c.Body,
		CreatedAt: c.CreatedAt,
	}
	if c.CreatedBy != nil {
		author := c.CreatedBy.String()
		resp.AuthorID = &author
	}
	return resp
}
