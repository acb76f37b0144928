package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	accountdomain "github.com/smallbiznis/pricedesk/internal/account/domain"
	auditdomain "github.com/smallbiznis/pricedesk/internal/audit/domain"
	"github.com/smallbiznis/pricedesk/internal/clock"
	"github.com/smallbiznis/pricedesk/internal/tenantcontext"
	"github.com/smallbiznis/pricedesk/pkg/db/model"
	"github.com/smallbiznis/pricedesk/pkg/db/option"
	"github.com/smallbiznis/pricedesk/pkg/db/pagination"
	"github.com/smallbiznis/pricedesk/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	GenID         *snowflake.Node
	Clock         clock.Clock
	Accounts      repository.Repository[accountdomain.Account]
	Opportunities repository.Repository[accountdomain.Opportunity]
	AuditSvc      auditdomain.Service
}

type Service struct {
	db            *gorm.DB
	log           *zap.Logger
	genID         *snowflake.Node
	clock         clock.Clock
	accounts      repository.Repository[accountdomain.Account]
	opportunities repository.Repository[accountdomain.Opportunity]
	auditSvc      auditdomain.Service
}

func New(p Params) accountdomain.Service {
	return &Service{
		db:            p.DB,
		log:           p.Log.Named("account.service"),
		genID:         p.GenID,
		clock:         p.Clock,
		accounts:      p.Accounts,
		opportunities: p.Opportunities,
		auditSvc:      p.AuditSvc,
	}
}

func (s *Service) CreateAccount(ctx context.Context, req accountdomain.AccountRequest) (*accountdomain.AccountResponse, error) {
	if _, err := s.tenantIDFromContext(ctx); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, accountdomain.ErrInvalidName
	}

	account := &accountdomain.Account{
		Base:           model.NewBase(ctx, s.genID.Generate(), s.clock.Now()),
		Name:           name,
		Industry:       strings.TrimSpace(req.Industry),
		Website:        strings.TrimSpace(req.Website),
		BillingCountry: strings.ToUpper(strings.TrimSpace(req.BillingCountry)),
		OwnerEmail:     strings.ToLower(strings.TrimSpace(req.OwnerEmail)),
	}
	if req.Metadata != nil {
		account.Metadata = datatypes.JSONMap(req.Metadata)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.accounts.WithTrx(tx).Create(ctx, account); err != nil {
			return err
		}
		return s.audit(ctx, tx, "account.create", "account", account.ID, map[string]any{"name": name})
	})
	if err != nil {
		return nil, err
	}
	return toAccountResponse(account), nil
}

func (s *Service) ListAccounts(ctx context.Context, req accountdomain.ListAccountRequest) (*accountdomain.ListAccountResponse, error) {
	tenantID, err := s.tenantIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := pagination.DecodeBeforeID(req.PageToken); err != nil {
		return nil, accountdomain.ErrInvalidPageToken
	}

	opts := []option.QueryOption{
		option.WithSortBy(option.QuerySortBy{}),
		option.ApplyPagination(req.Pagination),
	}
	if name := strings.TrimSpace(req.Name); name != "" {
		opts = append(opts, option.ApplyOperator(option.Condition{
			Field:    "lower(name)",
			Operator: option.LIKE,
			Value:    "%" + strings.ToLower(name) + "%",
		}))
	}

	items, err := s.accounts.Find(ctx, tenantID, nil, opts...)
	if err != nil {
		return nil, err
	}
	items, pageInfo := pagination.Trim(items, req.PageSize, func(a *accountdomain.Account) string { return a.ID.String() })

	resp := &accountdomain.ListAccountResponse{PageInfo: pageInfo, Accounts: make([]accountdomain.AccountResponse, 0, len(items))}
	for _, item := range items {
		resp.Accounts = append(resp.Accounts, *toAccountResponse(item))
	}
	return resp, nil
}

func (s *Service) GetAccount(ctx context.Context, id string) (*accountdomain.AccountResponse, error) {
	tenantID, accountID, err := s.parse(ctx, id)
	if err != nil {
		return nil, err
	}
	account, err := s.loadAccount(ctx, s.accounts, tenantID, accountID)
	if err != nil {
		return nil, err
	}
	return toAccountResponse(account), nil
}

func (s *Service) UpdateAccount(ctx context.Context, id string, req accountdomain.AccountRequest) (*accountdomain.AccountResponse, error) {
	tenantID, accountID, err := s.parse(ctx, id)
	if err != nil {
		return nil, err
	}

	values := map[string]any{}
	if req.Name != "" {
		name := strings.TrimSpace(req.Name)
		if name == "" {
			return nil, accountdomain.ErrInvalidName
		}
		values["name"] = name
	}
	if req.Industry != "" {
		values["industry"] = strings.TrimSpace(req.Industry)
	}
	if req.Website != "" {
		values["website"] = strings.TrimSpace(req.Website)
	}
	if req.BillingCountry != "" {
		values["billing_country"] = strings.ToUpper(strings.TrimSpace(req.BillingCountry))
	}
	if req.OwnerEmail != "" {
		values["owner_email"] = strings.ToLower(strings.TrimSpace(req.OwnerEmail))
	}
	if req.Metadata != nil {
		values["metadata"] = datatypes.JSONMap(req.Metadata)
	}

	var account *accountdomain.Account
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		accounts := s.accounts.WithTrx(tx)
		if _, err := s.loadAccount(ctx, accounts, tenantID, accountID); err != nil {
			return err
		}
		if err := accounts.Update(ctx, tenantID, accountID, model.Updates(ctx, s.clock.Now(), values)); err != nil {
			return err
		}
		account, err = s.loadAccount(ctx, accounts, tenantID, accountID)
		if err != nil {
			return err
		}
		return s.audit(ctx, tx, "account.update", "account", accountID, nil)
	})
	if err != nil {
		return nil, err
	}
	return toAccountResponse(account), nil
}

func (s *Service) DeleteAccount(ctx context.Context, id string) error {
	tenantID, accountID, err := s.parse(ctx, id)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		accounts := s.accounts.WithTrx(tx)
		if _, err := s.loadAccount(ctx, accounts, tenantID, accountID); err != nil {
			return err
		}
		open, err := s.opportunities.WithTrx(tx).Count(ctx, tenantID, &accountdomain.Opportunity{AccountID: accountID})
		if err != nil {
			return err
		}
		if open > 0 {
			return accountdomain.ErrAccountInUse
		}
		if err := accounts.SoftDelete(ctx, tenantID, accountID, tenantcontext.ActorRef(ctx)); err != nil {
			return err
		}
		return s.audit(ctx, tx, "account.delete", "account", accountID, nil)
	})
}

func (s *Service) CreateOpportunity(ctx context.Context, req accountdomain.OpportunityRequest) (*accountdomain.OpportunityResponse, error) {
	tenantID, err := s.tenantIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	accountID, err := parseID(req.AccountID)
	if err != nil {
		return nil, accountdomain.ErrInvalidAccount
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, accountdomain.ErrInvalidName
	}
	stage := req.Stage
	if stage == "" {
		stage = accountdomain.StageProspecting
	}
	if !validStage(stage) {
		return nil, accountdomain.ErrInvalidStage
	}
	amount := decimal.Zero
	if req.Amount != nil {
		if req.Amount.IsNegative() {
			return nil, accountdomain.ErrInvalidAmount
		}
		amount = *req.Amount
	}
	currency, err := normalizeCurrency(req.Currency)
	if err != nil {
		return nil, err
	}

	opp := &accountdomain.Opportunity{
		Base:      model.NewBase(ctx, s.genID.Generate(), s.clock.Now()),
		AccountID: accountID,
		Name:      name,
		Stage:     stage,
		Amount:    amount,
		Currency:  currency,
		CloseDate: req.CloseDate,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		account, err := s.accounts.WithTrx(tx).FindByID(ctx, tenantID, accountID)
		if err != nil {
			return err
		}
		if account == nil {
			return accountdomain.ErrInvalidAccount
		}
		if err := s.opportunities.WithTrx(tx).Create(ctx, opp); err != nil {
			return err
		}
		return s.audit(ctx, tx, "opportunity.create", "opportunity", opp.ID, map[string]any{"account_id": accountID.String()})
	})
	if err != nil {
		return nil, err
	}
	return toOpportunityResponse(opp), nil
}

func (s *Service) ListOpportunities(ctx context.Context, req accountdomain.ListOpportunityRequest) (*accountdomain.ListOpportunityResponse, error) {
	tenantID, err := s.tenantIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := pagination.DecodeBeforeID(req.PageToken); err != nil {
		return nil, accountdomain.ErrInvalidPageToken
	}

	filter := &accountdomain.Opportunity{}
	if strings.TrimSpace(req.AccountID) != "" {
		accountID, err := parseID(req.AccountID)
		if err != nil {
			return nil, accountdomain.ErrInvalidAccount
		}
		filter.AccountID = accountID
	}
	if req.Stage != "" {
		if !validStage(accountdomain.Stage(req.Stage)) {
			return nil, accountdomain.ErrInvalidStage
		}
		filter.Stage = accountdomain.Stage(req.Stage)
	}

	items, err := s.opportunities.Find(ctx, tenantID, filter,
		option.WithSortBy(option.QuerySortBy{}),
		option.ApplyPagination(req.Pagination),
	)
	if err != nil {
		return nil, err
	}
	items, pageInfo := pagination.Trim(items, req.PageSize, func(o *accountdomain.Opportunity) string { return o.ID.String() })

	resp := &accountdomain.ListOpportunityResponse{PageInfo: pageInfo, Opportunities: make([]accountdomain.OpportunityResponse, 0, len(items))}
	for _, item := range items {
		resp.Opportunities = append(resp.Opportunities, *toOpportunityResponse(item))
	}
	return resp, nil
}

func (s *Service) GetOpportunity(ctx context.Context, id string) (*accountdomain.OpportunityResponse, error) {
	tenantID, oppID, err := s.parse(ctx, id)
	if err != nil {
		return nil, err
	}
	opp, err := s.loadOpportunity(ctx, s.opportunities, tenantID, oppID)
	if err != nil {
		return nil, err
	}
	return toOpportunityResponse(opp), nil
}

func (s *Service) UpdateOpportunity(ctx context.Context, id string, req accountdomain.OpportunityRequest) (*accountdomain.OpportunityResponse, error) {
	tenantID, oppID, err := s.parse(ctx, id)
	if err != nil {
		return nil, err
	}

	values := map[string]any{}
	if name := strings.TrimSpace(req.Name); name != "" {
		values["name"] = name
	}
	if req.Stage != "" {
		if !validStage(req.Stage) {
			return nil, accountdomain.ErrInvalidStage
		}
		values["stage"] = req.Stage
	}
	if req.Amount != nil {
		if req.Amount.IsNegative() {
			return nil, accountdomain.ErrInvalidAmount
		}
		values["amount"] = *req.Amount
	}
	if req.Currency != "" {
		currency, err := normalizeCurrency(req.Currency)
		if err != nil {
			return nil, err
		}
		values["currency"] = currency
	}
	if req.CloseDate != nil {
		values["close_date"] = *req.CloseDate
	}

	var opp *accountdomain.Opportunity
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		opps := s.opportunities.WithTrx(tx)
		if _, err := s.loadOpportunity(ctx, opps, tenantID, oppID); err != nil {
			return err
		}
		if err := opps.Update(ctx, tenantID, oppID, model.Updates(ctx, s.clock.Now(), values)); err != nil {
			return err
		}
		opp, err = s.loadOpportunity(ctx, opps, tenantID, oppID)
		if err != nil {
			return err
		}
		return s.audit(ctx, tx, "opportunity.update", "opportunity", oppID, map[string]any{"stage": string(opp.Stage)})
	})
	if err != nil {
		return nil, err
	}
	return toOpportunityResponse(opp), nil
}

func (s *Service) DeleteOpportunity(ctx context.Context, id string) error {
	tenantID, oppID, err := s.parse(ctx, id)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		opps := s.opportunities.WithTrx(tx)
		if _, err := s.loadOpportunity(ctx, opps, tenantID, oppID); err != nil {
			return err
		}
		if err := opps.SoftDelete(ctx, tenantID, oppID, tenantcontext.ActorRef(ctx)); err != nil {
			return err
		}
		return s.audit(ctx, tx, "opportunity.delete", "opportunity", oppID, nil)
	})
}

func (s *Service) loadAccount(ctx context.Context, repo repository.Repository[accountdomain.Account], tenantID, id snowflake.ID) (*accountdomain.Account, error) {
	account, err := repo.FindByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, accountdomain.ErrNotFound
	}
	return account, nil
}

func (s *Service) loadOpportunity(ctx context.Context, repo repository.Repository[accountdomain.Opportunity], tenantID, id snowflake.ID) (*accountdomain.Opportunity, error) {
	opp, err := repo.FindByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if opp == nil {
		return nil, accountdomain.ErrNotFound
	}
	return opp, nil
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
		return 0, 0, accountdomain.ErrInvalidID
	}
	return tenantID, parsed, nil
}

func (s *Service) tenantIDFromContext(ctx context.Context) (snowflake.ID, error) {
	tenantID, ok := tenantcontext.TenantIDFromContext(ctx)
	if !ok {
		return 0, accountdomain.ErrInvalidTenant
	}
	return tenantID, nil
}

func validStage(stage accountdomain.Stage) bool {
	switch stage {
	case accountdomain.StageProspecting, accountdomain.StageQualified, accountdomain.StageProposal,
		accountdomain.StageNegotiation, accountdomain.StageClosedWon, accountdomain.StageClosedLost:
		return true
	default:
		return false
	}
}

func normalizeCurrency(value string) (string, error) {
	currency := strings.ToUpper(strings.TrimSpace(value))
	if currency == "" {
		return "USD", nil
	}
	if len(currency) != 3 {
		return "", accountdomain.ErrInvalidCurrency
	}
	return currency, nil
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil {
		return 0, err
	}
	if id == 0 {
		return 0, accountdomain.ErrInvalidID
	}
	return id, nil
}

func toAccountResponse(a *accountdomain.Account) *accountdomain.AccountResponse {
	return &accountdomain.AccountResponse{
		ID:             a.ID.String(),
		Name:           a.Name,
		Industry:       a.Industry,
		Website:        a.Website,
		BillingCountry: a.BillingCountry,
		OwnerEmail:     a.OwnerEmail,
		SalesforceID:   a.SalesforceID,
		Metadata:       a.Metadata,
		CreatedAt:      a.CreatedAt,
		UpdatedAt:      a.UpdatedAt,
	}
}

func toOpportunityResponse(o *accountdomain.Opportunity) *accountdomain.OpportunityResponse {
	return &accountdomain.OpportunityResponse{
		ID:           o.ID.String(),
		AccountID:    o.AccountID.String(),
		Name:         o.Name,
		Stage:        o.Stage,
		Amount:       o.Amount,
		Currency:     o.Currency,
		CloseDate:    o.CloseDate,
		SalesforceID: o.SalesforceID,
		CreatedAt:    o.CreatedAt,
		UpdatedAt:    o.UpdatedAt,
	}
}
