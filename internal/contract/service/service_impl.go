package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/pricedesk/internal/audit/domain"
	"github.com/smallbiznis/pricedesk/internal/clock"
	"github.com/smallbiznis/pricedesk/internal/config"
	contractdomain "github.com/smallbiznis/pricedesk/internal/contract/domain"
	documentdomain "github.com/smallbiznis/pricedesk/internal/document/domain"
	"github.com/smallbiznis/pricedesk/internal/observability/metrics"
	"github.com/smallbiznis/pricedesk/internal/providers/esign"
	quotedomain "github.com/smallbiznis/pricedesk/internal/quote/domain"
	"github.com/smallbiznis/pricedesk/internal/tenantcontext"
	"github.com/smallbiznis/pricedesk/pkg/db"
	"github.com/smallbiznis/pricedesk/pkg/db/model"
	"github.com/smallbiznis/pricedesk/pkg/db/option"
	"github.com/smallbiznis/pricedesk/pkg/db/pagination"
	"github.com/smallbiznis/pricedesk/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Contracts  repository.Repository[contractdomain.Contract]
	Signatures repository.Repository[contractdomain.ContractSignature]
	Signers    repository.Repository[contractdomain.ContractSignerDetails]
	Audits     repository.Repository[contractdomain.ContractSignerAudit]
	Repo       contractdomain.Repository
	Quotes     repository.Repository[quotedomain.Quote]
	Documents  documentdomain.Service
	ESign      esign.Client
	Verifier   *esign.WebhookVerifier
	DealDesk   *config.DealDeskConfigHolder
	Metrics    *metrics.Metrics `optional:"true"`
	AuditSvc   auditdomain.Service
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	contracts  repository.Repository[contractdomain.Contract]
	signatures repository.Repository[contractdomain.ContractSignature]
	signers    repository.Repository[contractdomain.ContractSignerDetails]
	audits     repository.Repository[contractdomain.ContractSignerAudit]
	repo       contractdomain.Repository
	quotes     repository.Repository[quotedomain.Quote]
	documents  documentdomain.Service
	esign      esign.Client
	verifier   *esign.WebhookVerifier
	dealDesk   *config.DealDeskConfigHolder
	metrics    *metrics.Metrics
	auditSvc   auditdomain.Service
}

func New(p Params) contractdomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("contract.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		contracts:  p.Contracts,
		signatures: p.Signatures,
		signers:    p.Signers,
		audits:     p.Audits,
		repo:       p.Repo,
		quotes:     p.Quotes,
		documents:  p.Documents,
		esign:      p.ESign,
		verifier:   p.Verifier,
		dealDesk:   p.DealDesk,
		metrics:    p.Metrics,
		auditSvc:   p.AuditSvc,
	}
}

func (s *Service) Create(ctx context.Context, req contractdomain.CreateRequest) (*contractdomain.ContractResponse, error) {
	tenantID, err := s.tenantIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	quoteID, err := parseID(req.QuoteID)
	if err != nil {
		return nil, contractdomain.ErrInvalidQuote
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, contractdomain.ErrInvalidName
	}
	if !validDates(req.StartDate, req.EndDate) {
		return nil, contractdomain.ErrInvalidDates
	}

	quote, err := s.quotes.FindByID(ctx, tenantID, quoteID)
	if err != nil {
		return nil, err
	}
	if quote == nil {
		return nil, contractdomain.ErrInvalidQuote
	}
	if quote.Status != quotedomain.StatusApproved {
		return nil, contractdomain.ErrQuoteNotApproved
	}

	now := s.clock.Now()
	contract := &contractdomain.Contract{
		Base:          model.NewBase(ctx, s.genID.Generate(), now),
		QuoteID:       quote.ID,
		OpportunityID: quote.OpportunityID,
		Name:          name,
		Status:        contractdomain.StatusDraft,
		StartDate:     req.StartDate,
		EndDate:       req.EndDate,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.contracts.WithTrx(tx).Create(ctx, contract); err != nil {
			return err
		}
		return s.audit(ctx, tx, "contract.create", "contract", contract.ID, map[string]any{
			"quote_id": quote.ID.String(),
			"name":     name,
		})
	})
	if err != nil {
		return nil, err
	}
	return toContractResponse(contract, contract.Status), nil
}

func (s *Service) List(ctx context.Context, req contractdomain.ListRequest) (*contractdomain.ListResponse, error) {
	tenantID, err := s.tenantIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := pagination.DecodeBeforeID(req.PageToken); err != nil {
		return nil, contractdomain.ErrInvalidPageToken
	}

	filter := &contractdomain.Contract{}
	if strings.TrimSpace(req.QuoteID) != "" {
		if filter.QuoteID, err = parseID(req.QuoteID); err != nil {
			return nil, contractdomain.ErrInvalidQuote
		}
	}
	if strings.TrimSpace(req.OpportunityID) != "" {
		if filter.OpportunityID, err = parseID(req.OpportunityID); err != nil {
			return nil, contractdomain.ErrInvalidID
		}
	}
	filter.Status = contractdomain.SignatureStatus(strings.TrimSpace(req.Status))

	items, err := s.contracts.Find(ctx, tenantID, filter,
		option.WithSortBy(option.QuerySortBy{}),
		option.ApplyPagination(req.Pagination),
	)
	if err != nil {
		return nil, err
	}
	items, pageInfo := pagination.Trim(items, req.PageSize, func(c *contractdomain.Contract) string { return c.ID.String() })

	statuses, err := s.effectiveStatuses(ctx, tenantID, items)
	if err != nil {
		return nil, err
	}
	resp := &contractdomain.ListResponse{PageInfo: pageInfo, Contracts: make([]contractdomain.ContractResponse, 0, len(items))}
	for _, item := range items {
		resp.Contracts = append(resp.Contracts, *toContractResponse(item, statuses[item.ID]))
	}
	return resp, nil
}

func (s *Service) Get(ctx context.Context, id string) (*contractdomain.ContractResponse, error) {
	tenantID, contractID, err := s.parse(ctx, id)
	if err != nil {
		return nil, err
	}
	contract, err := loadRow(ctx, s.contracts, tenantID, contractID)
	if err != nil {
		return nil, err
	}
	statuses, err := s.effectiveStatuses(ctx, tenantID, []*contractdomain.Contract{contract})
	if err != nil {
		return nil, err
	}
	return toContractResponse(contract, statuses[contract.ID]), nil
}

func (s *Service) Update(ctx context.Context, id string, req contractdomain.UpdateRequest) (*contractdomain.ContractResponse, error) {
	tenantID, contractID, err := s.parse(ctx, id)
	if err != nil {
		return nil, err
	}
	contract, err := loadRow(ctx, s.contracts, tenantID, contractID)
	if err != nil {
		return nil, err
	}

	values := map[string]any{}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, contractdomain.ErrInvalidName
		}
		values["name"] = name
		contract.Name = name
	}
	if req.StartDate != nil {
		values["start_date"] = req.StartDate
		contract.StartDate = req.StartDate
	}
	if req.EndDate != nil {
		values["end_date"] = req.EndDate
		contract.EndDate = req.EndDate
	}
	if !validDates(contract.StartDate, contract.EndDate) {
		return nil, contractdomain.ErrInvalidDates
	}
	if len(values) == 0 {
		return s.Get(ctx, id)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.contracts.WithTrx(tx).Update(ctx, tenantID, contractID, model.Updates(ctx, s.clock.Now(), values)); err != nil {
			return err
		}
		return s.audit(ctx, tx, "contract.update", "contract", contractID, nil)
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

func (s *Service) Delete(ctx context.Context, id string) error {
	tenantID, contractID, err := s.parse(ctx, id)
	if err != nil {
		return err
	}
	if _, err := loadRow(ctx, s.contracts, tenantID, contractID); err != nil {
		return err
	}
	sig, err := s.currentSignature(ctx, s.signatures, tenantID, contractID)
	if err != nil {
		return err
	}
	if sig != nil && !sig.Status.Effective(s.clock.Now(), sig.ExpiresAt).Terminal() {
		return contractdomain.ErrSignatureExists
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.contracts.WithTrx(tx).SoftDelete(ctx, tenantID, contractID, tenantcontext.ActorRef(ctx)); err != nil {
			return err
		}
		return s.audit(ctx, tx, "contract.delete", "contract", contractID, nil)
	})
}

// effectiveStatuses maps each contract to the status readers see, applying
// signature expiry.
func (s *Service) effectiveStatuses(ctx context.Context, tenantID snowflake.ID, contracts []*contractdomain.Contract) (map[snowflake.ID]contractdomain.SignatureStatus, error) {
	out := make(map[snowflake.ID]contractdomain.SignatureStatus, len(contracts))
	var open []snowflake.ID
	for _, c := range contracts {
		out[c.ID] = c.Status
		if c.Status != contractdomain.StatusDraft && !c.Status.Terminal() {
			open = append(open, c.ID)
		}
	}
	if len(open) == 0 {
		return out, nil
	}

	sigs, err := s.signatures.Find(ctx, tenantID, &contractdomain.ContractSignature{},
		option.ApplyOperator(option.Condition{Field: "contract_id", Operator: option.IN, Value: open}),
	)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	for _, sig := range sigs {
		if status, ok := out[sig.ContractID]; ok {
			out[sig.ContractID] = status.Effective(now, sig.ExpiresAt)
		}
	}
	return out, nil
}

func (s *Service) currentSignature(ctx context.Context, store repository.Repository[contractdomain.ContractSignature], tenantID, contractID snowflake.ID) (*contractdomain.ContractSignature, error) {
	return store.FindOne(ctx, tenantID, &contractdomain.ContractSignature{ContractID: contractID})
}

func (s *Service) lockSignature(ctx context.Context, tx *gorm.DB, tenantID, id snowflake.ID) (*contractdomain.ContractSignature, error) {
	sig, err := s.signatures.WithTrx(db.ForUpdate(tx)).FindByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if sig == nil {
		return nil, contractdomain.ErrSignatureNotFound
	}
	return sig, nil
}

func loadRow[T any](ctx context.Context, repo repository.Repository[T], tenantID, id snowflake.ID) (*T, error) {
	row, err := repo.FindByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, contractdomain.ErrNotFound
	}
	return row, nil
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
		return 0, 0, contractdomain.ErrInvalidID
	}
	return tenantID, parsed, nil
}

func (s *Service) tenantIDFromContext(ctx context.Context) (snowflake.ID, error) {
	tenantID, ok := tenantcontext.TenantIDFromContext(ctx)
	if !ok {
		return 0, contractdomain.ErrInvalidTenant
	}
	return tenantID, nil
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil {
		return 0, err
	}
	if id == 0 {
		return 0, contractdomain.ErrInvalidID
	}
	return id, nil
}

func validDates(start, end *time.Time) bool {
	return start == nil || end == nil || !end.Before(*start)
}

func toContractResponse(c *contractdomain.Contract, status contractdomain.SignatureStatus) *contractdomain.ContractResponse {
	return &contractdomain.ContractResponse{
		ID:            c.ID.String(),
		QuoteID:       c.QuoteID.String(),
		OpportunityID: c.OpportunityID.String(),
		Name:          c.Name,
		Status:        status,
		StartDate:     c.StartDate,
		EndDate:       c.EndDate,
		CreatedAt:     c.CreatedAt,
		UpdatedAt:     c.UpdatedAt,
	}
}
