package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/pricedesk/internal/audit/domain"
	"github.com/smallbiznis/pricedesk/internal/clock"
	plandomain "github.com/smallbiznis/pricedesk/internal/plan/domain"
	productdomain "github.com/smallbiznis/pricedesk/internal/product/domain"
	"github.com/smallbiznis/pricedesk/internal/tenantcontext"
	"github.com/smallbiznis/pricedesk/pkg/db"
	"github.com/smallbiznis/pricedesk/pkg/db/model"
	"github.com/smallbiznis/pricedesk/pkg/db/pagination"
	"github.com/smallbiznis/pricedesk/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Repo     plandomain.Repository
	Products repository.Repository[productdomain.Product]
	Syncer   plandomain.PackageDetailSyncer
	AuditSvc auditdomain.Service
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	repo     plandomain.Repository
	products repository.Repository[productdomain.Product]
	syncer   plandomain.PackageDetailSyncer
	auditSvc auditdomain.Service
}

func New(p Params) plandomain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("plan.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		repo:     p.Repo,
		products: p.Products,
		syncer:   p.Syncer,
		auditSvc: p.AuditSvc,
	}
}

func (s *Service) CreatePlan(ctx context.Context, req plandomain.PlanRequest) (*plandomain.PlanResponse, error) {
	tenantID, err := s.tenantID(ctx)
	if err != nil {
		return nil, err
	}
	productID, err := parseID(req.ProductID)
	if err != nil {
		return nil, plandomain.ErrInvalidProduct
	}
	code := strings.TrimSpace(req.Code)
	if code == "" {
		return nil, plandomain.ErrInvalidCode
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, plandomain.ErrInvalidName
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}

	plan := &plandomain.Plan{
		Base:        model.NewBase(ctx, s.genID.Generate(), s.clock.Now()),
		ProductID:   productID,
		Code:        code,
		Name:        name,
		Description: trimmedPtr(req.Description),
		Active:      active,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		product, err := s.products.WithTrx(tx).FindByID(ctx, tenantID, productID)
		if err != nil {
			return err
		}
		if product == nil {
			return plandomain.ErrInvalidProduct
		}
		taken, err := s.repo.CodeExists(ctx, tx, tenantID, code)
		if err != nil {
			return err
		}
		if taken {
			return plandomain.ErrCodeTaken
		}
		if err := s.repo.InsertPlan(ctx, tx, plan); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return plandomain.ErrCodeTaken
			}
			return err
		}
		return s.audit(ctx, tx, "plan.create", "plan", plan.ID, map[string]any{"code": code})
	})
	if err != nil {
		return nil, err
	}
	return toPlanResponse(plan, nil), nil
}

func (s *Service) ListPlans(ctx context.Context, req plandomain.ListPlanRequest) (*plandomain.ListPlanResponse, error) {
	tenantID, err := s.tenantID(ctx)
	if err != nil {
		return nil, err
	}
	beforeID, err := pagination.DecodeBeforeID(req.PageToken)
	if err != nil {
		return nil, plandomain.ErrInvalidPageToken
	}

	filter := plandomain.ListPlanFilter{BeforeID: beforeID, Limit: pagination.Size(req.PageSize)}
	if strings.TrimSpace(req.ProductID) != "" {
		productID, err := parseID(req.ProductID)
		if err != nil {
			return nil, plandomain.ErrInvalidProduct
		}
		filter.ProductID = productID
	}

	plans, err := s.repo.ListPlans(ctx, s.db, tenantID, filter)
	if err != nil {
		return nil, err
	}
	plans, pageInfo := pagination.Trim(plans, req.PageSize, func(p plandomain.Plan) string { return p.ID.String() })

	resp := &plandomain.ListPlanResponse{PageInfo: pageInfo, Plans: make([]plandomain.PlanResponse, 0, len(plans))}
	for i := range plans {
		tiers, err := s.repo.ListTiers(ctx, s.db, tenantID, plans[i].ID)
		if err != nil {
			return nil, err
		}
		resp.Plans = append(resp.Plans, *toPlanResponse(&plans[i], tiers))
	}
	return resp, nil
}

func (s *Service) GetPlan(ctx context.Context, id string) (*plandomain.PlanResponse, error) {
	tenantID, planID, err := s.parse(ctx, id)
	if err != nil {
		return nil, err
	}
	plan, err := s.repo.FindPlan(ctx, s.db, tenantID, planID)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, plandomain.ErrNotFound
	}
	tiers, err := s.repo.ListTiers(ctx, s.db, tenantID, planID)
	if err != nil {
		return nil, err
	}
	return toPlanResponse(plan, tiers), nil
}

func (s *Service) UpdatePlan(ctx context.Context, id string, req plandomain.PlanRequest) (*plandomain.PlanResponse, error) {
	tenantID, planID, err := s.parse(ctx, id)
	if err != nil {
		return nil, err
	}

	values := map[string]any{}
	if req.Name != "" {
		name := strings.TrimSpace(req.Name)
		if name == "" {
			return nil, plandomain.ErrInvalidName
		}
		values["name"] = name
	}
	if req.Description != nil {
		values["description"] = trimmedPtr(req.Description)
	}
	if req.Active != nil {
		values["active"] = *req.Active
	}

	var (
		plan  *plandomain.Plan
		tiers []plandomain.Tier
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.repo.LockPlan(ctx, tx, tenantID, planID)
		if err != nil {
			return err
		}
		if current == nil {
			return plandomain.ErrNotFound
		}
		if req.Code != "" && strings.TrimSpace(req.Code) != current.Code {
			return plandomain.ErrInvalidCode
		}
		if err := s.repo.UpdatePlan(ctx, tx, tenantID, planID, model.Updates(ctx, s.clock.Now(), values)); err != nil {
			return err
		}
		if plan, err = s.repo.FindPlan(ctx, tx, tenantID, planID); err != nil {
			return err
		}
		if tiers, err = s.repo.ListTiers(ctx, tx, tenantID, planID); err != nil {
			return err
		}
		return s.audit(ctx, tx, "plan.update", "plan", planID, nil)
	})
	if err != nil {
		return nil, err
	}
	return toPlanResponse(plan, tiers), nil
}

// DeletePlan soft-deletes the plan, its tiers and every package built on it.
func (s *Service) DeletePlan(ctx context.Context, id string) error {
	tenantID, planID, err := s.parse(ctx, id)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		plan, err := s.repo.LockPlan(ctx, tx, tenantID, planID)
		if err != nil {
			return err
		}
		if plan == nil {
			return plandomain.ErrNotFound
		}
		tiers, err := s.repo.ListTiers(ctx, tx, tenantID, planID)
		if err != nil {
			return err
		}
		for i := range tiers {
			if err := s.deleteTier(ctx, tx, plan, &tiers[i]); err != nil {
				return err
			}
		}
		if err := s.syncer.OnPlanDeleted(ctx, tx, plan); err != nil {
			return err
		}
		if err := s.repo.UpdatePlan(ctx, tx, tenantID, planID, s.deletedValues(ctx)); err != nil {
			return err
		}
		return s.audit(ctx, tx, "plan.delete", "plan", planID, nil)
	})
}

// CreateTier inserts a tier and gives every already-configured package of
// the plan a detail row for it.
func (s *Service) CreateTier(ctx context.Context, req plandomain.TierRequest) (*plandomain.TierResponse, error) {
	tenantID, err := s.tenantID(ctx)
	if err != nil {
		return nil, err
	}
	planID, err := parseID(req.PlanID)
	if err != nil {
		return nil, plandomain.ErrInvalidPlan
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, plandomain.ErrInvalidName
	}

	tier := &plandomain.Tier{
		Base:        model.NewBase(ctx, s.genID.Generate(), s.clock.Now()),
		PlanID:      planID,
		Name:        name,
		Description: trimmedPtr(req.Description),
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		plan, err := s.repo.LockPlan(ctx, tx, tenantID, planID)
		if err != nil {
			return err
		}
		if plan == nil {
			return plandomain.ErrInvalidPlan
		}
		if req.Position != nil {
			tier.Position = *req.Position
		} else {
			existing, err := s.repo.ListTiers(ctx, tx, tenantID, planID)
			if err != nil {
				return err
			}
			tier.Position = len(existing)
		}
		if err := s.repo.InsertTier(ctx, tx, tier); err != nil {
			return err
		}
		if err := s.syncer.OnTierCreated(ctx, tx, plan, tier); err != nil {
			return err
		}
		return s.audit(ctx, tx, "tier.create", "tier", tier.ID, map[string]any{"plan_id": planID.String()})
	})
	if err != nil {
		return nil, err
	}
	resp := toTierResponse(tier)
	return &resp, nil
}

func (s *Service) ListTiers(ctx context.Context, planID string) ([]plandomain.TierResponse, error) {
	tenantID, pid, err := s.parse(ctx, planID)
	if err != nil {
		return nil, err
	}
	tiers, err := s.repo.ListTiers(ctx, s.db, tenantID, pid)
	if err != nil {
		return nil, err
	}
	resp := make([]plandomain.TierResponse, 0, len(tiers))
	for i := range tiers {
		resp = append(resp, toTierResponse(&tiers[i]))
	}
	return resp, nil
}

func (s *Service) GetTier(ctx context.Context, id string) (*plandomain.TierResponse, error) {
	tenantID, tierID, err := s.parse(ctx, id)
	if err != nil {
		return nil, err
	}
	tier, err := s.repo.FindTier(ctx, s.db, tenantID, tierID)
	if err != nil {
		return nil, err
	}
	if tier == nil {
		return nil, plandomain.ErrNotFound
	}
	resp := toTierResponse(tier)
	return &resp, nil
}

func (s *Service) UpdateTier(ctx context.Context, id string, req plandomain.TierRequest) (*plandomain.TierResponse, error) {
	tenantID, tierID, err := s.parse(ctx, id)
	if err != nil {
		return nil, err
	}

	values := map[string]any{}
	if req.Name != "" {
		name := strings.TrimSpace(req.Name)
		if name == "" {
			return nil, plandomain.ErrInvalidName
		}
		values["name"] = name
	}
	if req.Description != nil {
		values["description"] = trimmedPtr(req.Description)
	}
	if req.Position != nil {
		values["position"] = *req.Position
	}

	var tier *plandomain.Tier
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.repo.FindTier(ctx, tx, tenantID, tierID)
		if err != nil {
			return err
		}
		if current == nil {
			return plandomain.ErrNotFound
		}
		if req.PlanID != "" && strings.TrimSpace(req.PlanID) != current.PlanID.String() {
			return plandomain.ErrInvalidPlan
		}
		if err := s.repo.UpdateTier(ctx, tx, tenantID, tierID, model.Updates(ctx, s.clock.Now(), values)); err != nil {
			return err
		}
		if tier, err = s.repo.FindTier(ctx, tx, tenantID, tierID); err != nil {
			return err
		}
		return s.audit(ctx, tx, "tier.update", "tier", tierID, nil)
	})
	if err != nil {
		return nil, err
	}
	resp := toTierResponse(tier)
	return &resp, nil
}

// DeleteTier soft-deletes the tier and its package details under the plan
// row lock.
func (s *Service) DeleteTier(ctx context.Context, id string) error {
	tenantID, tierID, err := s.parse(ctx, id)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tier, err := s.repo.FindTier(ctx, tx, tenantID, tierID)
		if err != nil {
			return err
		}
		if tier == nil {
			return plandomain.ErrNotFound
		}
		plan, err := s.repo.LockPlan(ctx, tx, tenantID, tier.PlanID)
		if err != nil {
			return err
		}
		if plan == nil {
			return plandomain.ErrNotFound
		}
		if err := s.deleteTier(ctx, tx, plan, tier); err != nil {
			return err
		}
		return s.audit(ctx, tx, "tier.delete", "tier", tierID, map[string]any{"plan_id": plan.ID.String()})
	})
}

func (s *Service) deleteTier(ctx context.Context, tx *gorm.DB, plan *plandomain.Plan, tier *plandomain.Tier) error {
	if err := s.repo.UpdateTier(ctx, tx, tier.TenantID, tier.ID, s.deletedValues(ctx)); err != nil {
		return err
	}
	return s.syncer.OnTierDeleted(ctx, tx, plan, tier)
}

func (s *Service) deletedValues(ctx context.Context) map[string]any {
	return model.Updates(ctx, s.clock.Now(), map[string]any{"is_deleted": true})
}

func (s *Service) audit(ctx context.Context, tx *gorm.DB, action, targetType string, id snowflake.ID, metadata map[string]any) error {
	return s.auditSvc.Record(ctx, tx, auditdomain.Entry{
		Action:     action,
		TargetType: targetType,
		TargetID:   id.String(),
		Metadata:   metadata,
	})
}

func (s *Service) tenantID(ctx context.Context) (snowflake.ID, error) {
	tenantID, ok := tenantcontext.TenantIDFromContext(ctx)
	if !ok {
		return 0, plandomain.ErrInvalidTenant
	}
	return tenantID, nil
}

func (s *Service) parse(ctx context.Context, id string) (snowflake.ID, snowflake.ID, error) {
	tenantID, err := s.tenantID(ctx)
	if err != nil {
		return 0, 0, err
	}
	parsed, err := parseID(id)
	if err != nil {
		return 0, 0, plandomain.ErrInvalidID
	}
	return tenantID, parsed, nil
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil {
		return 0, err
	}
	if id == 0 {
		return 0, plandomain.ErrInvalidID
	}
	return id, nil
}

func trimmedPtr(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func toPlanResponse(p *plandomain.Plan, tiers []plandomain.Tier) *plandomain.PlanResponse {
	resp := &plandomain.PlanResponse{
		ID:          p.ID.String(),
		ProductID:   p.ProductID.String(),
		Code:        p.Code,
		Name:        p.Name,
		Description: p.Description,
		Active:      p.Active,
		Tiers:       make([]plandomain.TierResponse, 0, len(tiers)),
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
	for i := range tiers {
		resp.Tiers = append(resp.Tiers, toTierResponse(&tiers[i]))
	}
	return resp
}

func toTierResponse(t *plandomain.Tier) plandomain.TierResponse {
	return plandomain.TierResponse{
		ID:          t.ID.String(),
		PlanID:      t.PlanID.String(),
		Name:        t.Name,
		Description: t.Description,
		Position:    t.Position,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}
