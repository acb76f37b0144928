package service

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	accountdomain "github.com/smallbiznis/pricedesk/internal/account/domain"
	auditdomain "github.com/smallbiznis/pricedesk/internal/audit/domain"
	auditrepository "github.com/smallbiznis/pricedesk/internal/audit/repository"
	auditservice "github.com/smallbiznis/pricedesk/internal/audit/service"
	"github.com/smallbiznis/pricedesk/internal/clock"
	"github.com/smallbiznis/pricedesk/internal/config"
	plandomain "github.com/smallbiznis/pricedesk/internal/plan/domain"
	planrepository "github.com/smallbiznis/pricedesk/internal/plan/repository"
	pricebookdomain "github.com/smallbiznis/pricedesk/internal/pricebook/domain"
	"github.com/smallbiznis/pricedesk/internal/pricebook/rules"
	pricebookservice "github.com/smallbiznis/pricedesk/internal/pricebook/service"
	pricingdomain "github.com/smallbiznis/pricedesk/internal/pricing/domain"
	pricingservice "github.com/smallbiznis/pricedesk/internal/pricing/service"
	productdomain "github.com/smallbiznis/pricedesk/internal/product/domain"
	"github.com/smallbiznis/pricedesk/internal/providers/email"
	quotedomain "github.com/smallbiznis/pricedesk/internal/quote/domain"
	rbacdomain "github.com/smallbiznis/pricedesk/internal/rbac/domain"
	"github.com/smallbiznis/pricedesk/internal/tenantcontext"
	"github.com/smallbiznis/pricedesk/pkg/db/dbtest"
	"github.com/smallbiznis/pricedesk/pkg/db/model"
	"github.com/smallbiznis/pricedesk/pkg/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type sentMail struct {
	to       []string
	template string
	data     email.QuoteNotification
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (f *fakeMailer) Send(ctx context.Context, to []string, subject string, htmlBody string) error {
	return f.err
}

func (f *fakeMailer) SendTemplate(ctx context.Context, to []string, templateName string, data email.QuoteNotification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMail{to: to, template: templateName, data: data})
	return f.err
}

func (f *fakeMailer) last() sentMail {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent[len(f.sent)-1]
}

type fakeRoles struct{ holders map[string][]snowflake.ID }

func (f *fakeRoles) Resolve(ctx context.Context, userID snowflake.ID) (*rbacdomain.Resolution, error) {
	res := &rbacdomain.Resolution{Permissions: rbacdomain.Permissions{}}
	for role, holders := range f.holders {
		if slices.Contains(holders, userID) {
			res.Roles = append(res.Roles, role)
		}
	}
	return res, nil
}

func (f *fakeRoles) UsersWithRoles(ctx context.Context, roles []string) ([]snowflake.ID, error) {
	var out []snowflake.ID
	for _, role := range roles {
		out = append(out, f.holders[role]...)
	}
	return out, nil
}

type fakeUsers struct{ emails map[snowflake.ID]string }

func (f *fakeUsers) Emails(ctx context.Context, ids []snowflake.ID) ([]string, error) {
	var out []string
	for _, id := range ids {
		if e, ok := f.emails[id]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}

type fixture struct {
	svc       *Service
	books     pricebookdomain.Service
	mailer    *fakeMailer
	ctx       context.Context
	oppID     string
	bookID    string
	selection pricingdomain.Selection
}

const (
	creatorID  snowflake.ID = 7
	approverID snowflake.ID = 8
)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := dbtest.Open(t,
		&accountdomain.Account{}, &accountdomain.Opportunity{},
		&productdomain.Product{},
		&plandomain.Plan{}, &plandomain.Tier{},
		&pricebookdomain.PriceBook{}, &pricebookdomain.PriceBookEntry{},
		&pricebookdomain.PriceBookRule{}, &pricebookdomain.DiscountPolicy{},
		&pricingdomain.PricingModel{}, &pricingdomain.PricingStructure{},
		&quotedomain.Quote{}, &quotedomain.QuoteComment{},
		&auditdomain.AuditLog{},
	)
	node, err := snowflake.NewNode(10)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC))
	log := zap.NewNop()
	ctx := tenantcontext.With(context.Background(), 1, creatorID)
	now := clk.Now()
	audit := auditservice.NewService(auditservice.Params{DB: db, Log: log, GenID: node, Clock: clk, Repo: auditrepository.Provide()})

	accounts := repository.ProvideStore[accountdomain.Account](db)
	opportunities := repository.ProvideStore[accountdomain.Opportunity](db)
	account := &accountdomain.Account{Base: model.NewBase(ctx, node.Generate(), now), Name: "Acme"}
	require.NoError(t, accounts.Create(ctx, account))
	opp := &accountdomain.Opportunity{
		Base: model.NewBase(ctx, node.Generate(), now), AccountID: account.ID, Name: "Acme renewal",
		Stage: accountdomain.StageProposal, Currency: "USD",
	}
	require.NoError(t, opportunities.Create(ctx, opp))

	products := repository.ProvideStore[productdomain.Product](db)
	product := &productdomain.Product{Base: model.NewBase(ctx, node.Generate(), now), Code: "crm", Name: "CRM", Active: true}
	require.NoError(t, products.Create(ctx, product))
	planRepo := planrepository.Provide()
	plan := &plandomain.Plan{Base: model.NewBase(ctx, node.Generate(), now), ProductID: product.ID, Code: "std", Name: "Standard", Active: true}
	require.NoError(t, planRepo.InsertPlan(ctx, db, plan))
	tier := &plandomain.Tier{Base: model.NewBase(ctx, node.Generate(), now), PlanID: plan.ID, Name: "Pro"}
	require.NoError(t, planRepo.InsertTier(ctx, db, tier))

	bookStore := repository.ProvideStore[pricebookdomain.PriceBook](db)
	entryStore := repository.ProvideStore[pricebookdomain.PriceBookEntry](db)
	engine, err := rules.NewEngine()
	require.NoError(t, err)
	books := pricebookservice.New(pricebookservice.Params{
		DB: db, Log: log, GenID: node, Clock: clk,
		Books: bookStore, Entries: entryStore,
		Rules:    repository.ProvideStore[pricebookdomain.PriceBookRule](db),
		Policies: repository.ProvideStore[pricebookdomain.DiscountPolicy](db),
		Products: products, PlanRepo: planRepo, Engine: engine, AuditSvc: audit,
	})
	pricing := pricingservice.New(pricingservice.Params{
		DB: db, Log: log, GenID: node, Clock: clk,
		Models:     repository.ProvideStore[pricingdomain.PricingModel](db),
		Structures: repository.ProvideStore[pricingdomain.PricingStructure](db),
		Products:   products, Books: bookStore, Entries: entryStore, AuditSvc: audit,
	})

	book, err := books.Create(ctx, pricebookdomain.PriceBookRequest{Name: "List", Currency: "USD"})
	require.NoError(t, err)
	price := decimal.NewFromInt(100)
	_, err = books.CreateEntry(ctx, book.ID, pricebookdomain.EntryRequest{
		ProductID: product.ID.String(), TierID: tier.ID.String(), ListPrice: &price,
	})
	require.NoError(t, err)

	productID := product.ID.String()
	pm, err := pricing.CreateModel(ctx, pricingdomain.ModelRequest{ProductID: &productID, Name: "Per seat"})
	require.NoError(t, err)
	formula := "seats * list_price"
	structure, err := pricing.CreateStructure(ctx, pricingdomain.StructureRequest{
		PricingModelID: pm.ID,
		Name:           "Seats",
		Rows: []pricingdomain.Row{
			{Key: "seats", IsInputColumn: true},
			{Key: "list_price"},
			{Key: "total", Formula: &formula, IsOutputColumn: true},
		},
	})
	require.NoError(t, err)

	mailer := &fakeMailer{}
	svc := &Service{
		db:            db,
		log:           log,
		genID:         node,
		clock:         clk,
		quotes:        repository.ProvideStore[quotedomain.Quote](db),
		comments:      repository.ProvideStore[quotedomain.QuoteComment](db),
		opportunities: opportunities,
		accounts:      accounts,
		pricing:       pricing,
		priceBooks:    books,
		roles:         &fakeRoles{holders: map[string][]snowflake.ID{"sales_manager": {approverID}}},
		users: &fakeUsers{emails: map[snowflake.ID]string{
			creatorID:  "rep@acme.test",
			approverID: "manager@acme.test",
		}},
		email:    mailer,
		dealDesk: config.NewStaticDealDeskConfigHolder(config.DefaultDealDeskConfig()),
		auditSvc: audit,
	}

	return &fixture{
		svc:    svc,
		books:  books,
		mailer: mailer,
		ctx:    ctx,
		oppID:  opp.ID.String(),
		bookID: book.ID,
		selection: pricingdomain.Selection{
			ProductID:          productID,
			PricingStructureID: structure.ID,
			TierID:             tier.ID.String(),
			Quantities:         map[string]decimal.Decimal{"seats": decimal.NewFromInt(10)},
		},
	}
}

func (f *fixture) create(t *testing.T, discount int64) *quotedomain.QuoteResponse {
	t.Helper()
	d := decimal.NewFromInt(discount)
	quote, err := f.svc.Create(f.ctx, quotedomain.CreateRequest{
		OpportunityID:   f.oppID,
		PriceBookID:     f.bookID,
		Name:            "Acme 2027",
		DiscountPercent: &d,
		DealTerms:       map[string]any{"payment_terms": "net30"},
		Selections:      []pricingdomain.Selection{f.selection},
	})
	require.NoError(t, err)
	return quote
}

func TestCreateComputesBreakdown(t *testing.T) {
	f := newFixture(t)
	quote := f.create(t, 10)

	assert.Equal(t, quotedomain.StatusDraft, quote.Status)
	assert.True(t, strings.HasPrefix(quote.Number, "Q-"), quote.Number)
	assert.Len(t, quote.Number, 2+26)
	assert.True(t, decimal.NewFromInt(1000).Equal(quote.Subtotal), quote.Subtotal.String())
	assert.True(t, decimal.NewFromInt(900).Equal(quote.Total), quote.Total.String())
	require.Len(t, quote.Breakdown.Tiers, 1)
	assert.Equal(t, "net30", quote.DealTerms["payment_terms"])

	got, err := f.svc.Get(f.ctx, quote.ID)
	require.NoError(t, err)
	assert.Equal(t, quote.Number, got.Number)
	require.Len(t, got.Breakdown.Products(), 1)
	assert.True(t, decimal.NewFromInt(10).Equal(got.Breakdown.Products()[0].DiscountPercent))

	_, err = f.svc.Create(f.ctx, quotedomain.CreateRequest{
		OpportunityID: f.oppID, PriceBookID: f.bookID, Name: "x",
		DiscountPercent: decimalPtr(120), Selections: []pricingdomain.Selection{f.selection},
	})
	assert.ErrorIs(t, err, quotedomain.ErrInvalidDiscount)
}

func TestDiscountPolicyGatesQuote(t *testing.T) {
	f := newFixture(t)
	_, err := f.books.SetDiscountPolicy(f.ctx, f.bookID, pricebookdomain.DiscountPolicyRequest{
		MaxDiscountPercent:       decimal.NewFromInt(30),
		ApprovalThresholdPercent: decimal.NewFromInt(15),
		ApproverRoles:            []string{"sales_manager"},
	})
	require.NoError(t, err)

	_, err = f.svc.Create(f.ctx, quotedomain.CreateRequest{
		OpportunityID: f.oppID, PriceBookID: f.bookID, Name: "too deep",
		DiscountPercent: decimalPtr(40), Selections: []pricingdomain.Selection{f.selection},
	})
	require.ErrorIs(t, err, quotedomain.ErrRuleViolation)
	var violation *quotedomain.RuleViolationError
	require.True(t, errors.As(err, &violation))
	assert.Len(t, violation.Violations, 1)

	quote := f.create(t, 20)
	assert.True(t, quote.RequiresApproval)
	assert.Equal(t, []string{"sales_manager"}, quote.ApproverRoles)
}

func TestApprovalFlow(t *testing.T) {
	f := newFixture(t)
	quote := f.create(t, 0)

	_, err := f.svc.Approval(f.ctx, quote.ID, quotedomain.ApprovalRequest{Decision: quotedomain.DecisionApprove})
	assert.ErrorIs(t, err, quotedomain.ErrInvalidTransition)

	forwarded, err := f.svc.Forward(f.ctx, quote.ID, quotedomain.TransitionRequest{Comment: "please review"})
	require.NoError(t, err)
	assert.Equal(t, quotedomain.StatusForwarded, forwarded.Status)
	mail := f.mailer.last()
	assert.Equal(t, email.TemplateQuoteForwarded, mail.template)
	assert.Equal(t, []string{"dealdesk@pricedesk.local"}, mail.to)
	assert.Equal(t, "Acme", mail.data.AccountName)
	assert.Equal(t, "rep@acme.test", mail.data.RequestedBy)

	escalated, err := f.svc.Escalate(f.ctx, quote.ID, quotedomain.TransitionRequest{})
	require.NoError(t, err)
	assert.Equal(t, quotedomain.StatusEscalated, escalated.Status)
	assert.Equal(t, email.TemplateQuoteEscalated, f.mailer.last().template)

	approved, err := f.svc.Approval(f.ctx, quote.ID, quotedomain.ApprovalRequest{
		Decision:  quotedomain.DecisionApprove,
		Discounts: []quotedomain.ProductDiscount{{ProductID: f.selection.ProductID, DiscountPercent: decimal.NewFromInt(25)}},
		Comment:   "ok for 25%",
	})
	require.NoError(t, err)
	assert.Equal(t, quotedomain.StatusApproved, approved.Status)
	assert.True(t, decimal.NewFromInt(750).Equal(approved.Total), approved.Total.String())
	assert.True(t, decimal.NewFromInt(25).Equal(approved.Breakdown.Products()[0].DiscountPercent))

	decision := f.mailer.last()
	assert.Equal(t, email.TemplateQuoteDecision, decision.template)
	assert.Equal(t, []string{"rep@acme.test"}, decision.to)

	comments, err := f.svc.ListComments(f.ctx, quote.ID)
	require.NoError(t, err)
	require.Len(t, comments, 2)
	assert.Equal(t, quotedomain.CommentForward, comments[0].Kind)
	assert.Equal(t, quotedomain.CommentApprove, comments[1].Kind)

	_, err = f.svc.Cancel(f.ctx, quote.ID, quotedomain.TransitionRequest{})
	assert.ErrorIs(t, err, quotedomain.ErrInvalidTransition)
	_, err = f.svc.Reopen(f.ctx, quote.ID, quotedomain.TransitionRequest{})
	assert.ErrorIs(t, err, quotedomain.ErrInvalidTransition)
}

func TestEscalationGoesToApprovers(t *testing.T) {
	f := newFixture(t)
	_, err := f.books.SetDiscountPolicy(f.ctx, f.bookID, pricebookdomain.DiscountPolicyRequest{
		MaxDiscountPercent:       decimal.NewFromInt(50),
		ApprovalThresholdPercent: decimal.NewFromInt(5),
		ApproverRoles:            []string{"sales_manager"},
	})
	require.NoError(t, err)
	quote := f.create(t, 10)

	_, err = f.svc.Forward(f.ctx, quote.ID, quotedomain.TransitionRequest{})
	require.NoError(t, err)
	_, err = f.svc.Escalate(f.ctx, quote.ID, quotedomain.TransitionRequest{})
	require.NoError(t, err)
	assert.Equal(t, []string{"manager@acme.test"}, f.mailer.last().to)

	require.NoError(t, f.svc.Resend(f.ctx, quote.ID))
	assert.Len(t, f.mailer.sent, 3)
	assert.Equal(t, email.TemplateQuoteEscalated, f.mailer.last().template)

	_, err = f.svc.Approval(f.asApprover(), quote.ID, quotedomain.ApprovalRequest{
		Decision:  quotedomain.DecisionApprove,
		Discounts: []quotedomain.ProductDiscount{{ProductID: f.selection.ProductID, DiscountPercent: decimal.NewFromInt(60)}},
	})
	assert.ErrorIs(t, err, quotedomain.ErrRuleViolation)

	status, err := f.svc.Status(f.ctx, quote.ID)
	require.NoError(t, err)
	assert.Equal(t, quotedomain.StatusEscalated, status.Status)
}

func TestApprovalNeedsApproverRole(t *testing.T) {
	f := newFixture(t)
	_, err := f.books.SetDiscountPolicy(f.ctx, f.bookID, pricebookdomain.DiscountPolicyRequest{
		MaxDiscountPercent:       decimal.NewFromInt(50),
		ApprovalThresholdPercent: decimal.NewFromInt(5),
		ApproverRoles:            []string{"sales_manager"},
	})
	require.NoError(t, err)
	quote := f.create(t, 10)
	require.True(t, quote.RequiresApproval)

	_, err = f.svc.Forward(f.ctx, quote.ID, quotedomain.TransitionRequest{})
	require.NoError(t, err)
	_, err = f.svc.Escalate(f.ctx, quote.ID, quotedomain.TransitionRequest{})
	require.NoError(t, err)

	_, err = f.svc.Approval(f.ctx, quote.ID, quotedomain.ApprovalRequest{Decision: quotedomain.DecisionApprove})
	assert.ErrorIs(t, err, quotedomain.ErrNotApprover)
	_, err = f.svc.Approval(f.ctx, quote.ID, quotedomain.ApprovalRequest{Decision: quotedomain.DecisionReject})
	assert.ErrorIs(t, err, quotedomain.ErrNotApprover)

	status, err := f.svc.Status(f.ctx, quote.ID)
	require.NoError(t, err)
	assert.Equal(t, quotedomain.StatusEscalated, status.Status)

	approved, err := f.svc.Approval(f.asApprover(), quote.ID, quotedomain.ApprovalRequest{Decision: quotedomain.DecisionApprove})
	require.NoError(t, err)
	assert.Equal(t, quotedomain.StatusApproved, approved.Status)
}

func TestApprovalRechecksOverriddenDiscounts(t *testing.T) {
	f := newFixture(t)
	_, err := f.books.SetDiscountPolicy(f.ctx, f.bookID, pricebookdomain.DiscountPolicyRequest{
		MaxDiscountPercent:       decimal.NewFromInt(50),
		ApprovalThresholdPercent: decimal.NewFromInt(15),
		ApproverRoles:            []string{"sales_manager"},
	})
	require.NoError(t, err)
	quote := f.create(t, 10)
	require.False(t, quote.RequiresApproval)

	_, err = f.svc.Forward(f.ctx, quote.ID, quotedomain.TransitionRequest{})
	require.NoError(t, err)
	_, err = f.svc.Escalate(f.ctx, quote.ID, quotedomain.TransitionRequest{})
	require.NoError(t, err)

	deeper := quotedomain.ApprovalRequest{
		Decision:  quotedomain.DecisionApprove,
		Discounts: []quotedomain.ProductDiscount{{ProductID: f.selection.ProductID, DiscountPercent: decimal.NewFromInt(20)}},
	}
	_, err = f.svc.Approval(f.ctx, quote.ID, deeper)
	assert.ErrorIs(t, err, quotedomain.ErrNotApprover)

	approved, err := f.svc.Approval(f.asApprover(), quote.ID, deeper)
	require.NoError(t, err)
	assert.Equal(t, quotedomain.StatusApproved, approved.Status)
	assert.True(t, approved.RequiresApproval)
	assert.Equal(t, []string{"sales_manager"}, approved.ApproverRoles)
	assert.True(t, decimal.NewFromInt(800).Equal(approved.Total), approved.Total.String())
}

func TestUpdateOnlyInDraftAndReopen(t *testing.T) {
	f := newFixture(t)
	quote := f.create(t, 0)

	more := f.selection
	more.Quantities = map[string]decimal.Decimal{"seats": decimal.NewFromInt(20)}
	updated, err := f.svc.Update(f.ctx, quote.ID, quotedomain.UpdateRequest{Selections: []pricingdomain.Selection{more}})
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(2000).Equal(updated.Total), updated.Total.String())

	_, err = f.svc.Forward(f.ctx, quote.ID, quotedomain.TransitionRequest{})
	require.NoError(t, err)
	_, err = f.svc.Update(f.ctx, quote.ID, quotedomain.UpdateRequest{Name: "renamed"})
	assert.ErrorIs(t, err, quotedomain.ErrNotEditable)
	assert.ErrorIs(t, f.svc.Delete(f.ctx, quote.ID), quotedomain.ErrNotEditable)

	reopened, err := f.svc.Reopen(f.ctx, quote.ID, quotedomain.TransitionRequest{Comment: "customer asked for changes"})
	require.NoError(t, err)
	assert.Equal(t, quotedomain.StatusDraft, reopened.Status)

	renamed, err := f.svc.Update(f.ctx, quote.ID, quotedomain.UpdateRequest{Name: "renamed"})
	require.NoError(t, err)
	assert.Equal(t, "renamed", renamed.Name)

	assert.ErrorIs(t, f.svc.Resend(f.ctx, quote.ID), quotedomain.ErrInvalidTransition)

	list, err := f.svc.List(f.ctx, quotedomain.ListRequest{Status: string(quotedomain.StatusDraft)})
	require.NoError(t, err)
	require.Len(t, list.Quotes, 1)

	require.NoError(t, f.svc.Delete(f.ctx, quote.ID))
	_, err = f.svc.Get(f.ctx, quote.ID)
	assert.ErrorIs(t, err, quotedomain.ErrNotFound)
}

func TestNotificationFailureDoesNotFailTransition(t *testing.T) {
	f := newFixture(t)
	f.mailer.err = errors.New("smtp down")
	quote := f.create(t, 0)

	forwarded, err := f.svc.Forward(f.ctx, quote.ID, quotedomain.TransitionRequest{})
	require.NoError(t, err)
	assert.Equal(t, quotedomain.StatusForwarded, forwarded.Status)
}

func (f *fixture) asApprover() context.Context {
	return tenantcontext.With(context.Background(), 1, approverID)
}

func decimalPtr(v int64) *decimal.Decimal {
	d := decimal.NewFromInt(v)
	return &d
}
