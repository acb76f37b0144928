package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/pricedesk/internal/audit/domain"
	"github.com/smallbiznis/pricedesk/internal/clock"
	packagedomain "github.com/smallbiznis/pricedesk/internal/packages/domain"
	plandomain "github.com/smallbiznis/pricedesk/internal/plan/domain"
	"github.com/smallbiznis/pricedesk/internal/tenantcontext"
	"github.com/smallbiznis/pricedesk/pkg/db"
	"github.com/smallbiznis/pricedesk/pkg/db/model"
	"github.com/smallbiznis/pricedesk/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Repo     packagedomain.Repository
	PlanRepo plandomain.Repository
	AuditSvc auditdomain.Service
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	repo     packagedomain.Repository
	planRepo plandomain.Repository
	auditSvc auditdomain.Service
}

func New(p Params) packagedomain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("packages.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		repo:     p.Repo,
		planRepo: p.PlanRepo,
		auditSvc: p.AuditSvc,
	}
}

// Create inserts the package with one detail per existing tier of its plan.
// The plan row is locked so a concurrent tier write cannot slip between the
// tier read and the detail insert.
func (s *Service) Create(ctx context.Context, req packagedomain.CreateRequest) (*packagedomain.Response, error) {
	tenantID, err := s.tenantID(ctx)
	if err != nil {
		return nil, err
	}
	planID, err := parseID(req.PlanID)
	if err != nil {
		return nil, packagedomain.ErrInvalidPlan
	}
	code := strings.TrimSpace(req.Code)
	if code == "" {
		return nil, packagedomain.ErrInvalidCode
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, packagedomain.ErrInvalidName
	}

	now := s.clock.Now()
	pkg := &packagedomain.Package{
		Base:        model.NewBase(ctx, s.genID.Generate(), now),
		PlanID:      planID,
		Code:        code,
		Name:        name,
		Description: trimmedPtr(req.Description),
	}

	var details []packagedomain.PackageDetail
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		plan, err := s.planRepo.LockPlan(ctx, tx, tenantID, planID)
		if err != nil {
			return err
		}
		if plan == nil {
			return packagedomain.ErrInvalidPlan
		}
		taken, err := s.repo.CodeExists(ctx, tx, tenantID, code)
		if err != nil {
			return err
		}
		if taken {
			return packagedomain.ErrCodeTaken
		}
		tiers, err := s.planRepo.ListTiers(ctx, tx, tenantID, planID)
		if err != nil {
			return err
		}

		known := make(map[string]bool, len(tiers))
		for _, tier := range tiers {
			known[tier.ID.String()] = true
		}
		for tierID := range req.Details {
			if !known[strings.TrimSpace(tierID)] {
				return packagedomain.ErrInvalidTier
			}
		}

		if err := s.repo.InsertPackage(ctx, tx, pkg); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return packagedomain.ErrCodeTaken
			}
			return err
		}

		details = make([]packagedomain.PackageDetail, 0, len(tiers))
		for _, tier := range tiers {
			payload := datatypes.JSONMap{}
			if seeded, ok := req.Details[tier.ID.String()]; ok && seeded != nil {
				payload = datatypes.JSONMap(seeded)
			}
			details = append(details, packagedomain.PackageDetail{
				Base:      model.NewBase(ctx, s.genID.Generate(), now),
				PackageID: pkg.ID,
				TierID:    tier.ID,
				Details:   payload,
			})
		}
		if err := s.repo.InsertDetails(ctx, tx, details); err != nil {
			return err
		}
		return s.audit(ctx, tx, "package.create", "package", pkg.ID, map[string]any{
			"plan_id": planID.String(),
			"details": len(details),
		})
	})
	if err != nil {
		return nil, err
	}
	return toResponse(pkg, details), nil
}

func (s *Service) List(ctx context.Context, req packagedomain.ListRequest) (*packagedomain.ListResponse, error) {
	tenantID, err := s.tenantID(ctx)
	if err != nil {
		return nil, err
	}
	beforeID, err := pagination.DecodeBeforeID(req.PageToken)
	if err != nil {
		return nil, packagedomain.ErrInvalidPageToken
	}

	filter := packagedomain.ListFilter{BeforeID: beforeID, Limit: pagination.Size(req.PageSize)}
	if strings.TrimSpace(req.PlanID) != "" {
		planID, err := parseID(req.PlanID)
		if err != nil {
			return nil, packagedomain.ErrInvalidPlan
		}
		filter.PlanID = planID
	}

	items, err := s.repo.ListPackages(ctx, s.db, tenantID, filter)
	if err != nil {
		return nil, err
	}
	items, pageInfo := pagination.Trim(items, req.PageSize, func(p packagedomain.Package) string { return p.ID.String() })

	resp := &packagedomain.ListResponse{PageInfo: pageInfo, Packages: make([]packagedomain.Response, 0, len(items))}
	for i := range items {
		details, err := s.repo.ListDetails(ctx, s.db, tenantID, items[i].ID)
		if err != nil {
			return nil, err
		}
		resp.Packages = append(resp.Packages, *toResponse(&items[i], details))
	}
	return resp, nil
}

func (s *Service) Get(ctx context.Context, id string) (*packagedomain.Response, error) {
	tenantID, packageID, err := s.parse(ctx, id)
	if err != nil {
		return nil, err
	}
	pkg, err := s.repo.FindPackage(ctx, s.db, tenantID, packageID)
	if err != nil {
		return nil, err
	}
	if pkg == nil {
		return nil, packagedomain.ErrNotFound
	}
	details, err := s.repo.ListDetails(ctx, s.db, tenantID, packageID)
	if err != nil {
		return nil, err
	}
	return toResponse(pkg, details), nil
}

func (s *Service) Update(ctx context.Context, id string, req packagedomain.UpdateRequest) (*packagedomain.Response, error) {
	tenantID, packageID, err := s.parse(ctx, id)
	if err != nil {
		return nil, err
	}

	values := map[string]any{}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, packagedomain.ErrInvalidName
		}
		values["name"] = name
	}
	if req.Description != nil {
		values["description"] = trimmedPtr(req.Description)
	}

	var (
		pkg     *packagedomain.Package
		details []packagedomain.PackageDetail
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.repo.FindPackage(ctx, tx, tenantID, packageID)
		if err != nil {
			return err
		}
		if current == nil {
			return packagedomain.ErrNotFound
		}
		if err := s.repo.UpdatePackage(ctx, tx, tenantID, packageID, model.Updates(ctx, s.clock.Now(), values)); err != nil {
			return err
		}
		if pkg, err = s.repo.FindPackage(ctx, tx, tenantID, packageID); err != nil {
			return err
		}
		if details, err = s.repo.ListDetails(ctx, tx, tenantID, packageID); err != nil {
			return err
		}
		return s.audit(ctx, tx, "package.update", "package", packageID, nil)
	})
	if err != nil {
		return nil, err
	}
	return toResponse(pkg, details), nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	tenantID, packageID, err := s.parse(ctx, id)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		pkg, err := s.repo.FindPackage(ctx, tx, tenantID, packageID)
		if err != nil {
			return err
		}
		if pkg == nil {
			return packagedomain.ErrNotFound
		}
		now := s.clock.Now()
		if err := s.repo.SoftDeleteDetailsForPackage(ctx, tx, tenantID, packageID, model.Updates(ctx, now, map[string]any{"is_deleted": true})); err != nil {
			return err
		}
		if err := s.repo.UpdatePackage(ctx, tx, tenantID, packageID, model.Updates(ctx, now, map[string]any{"is_deleted": true})); err != nil {
			return err
		}
		return s.audit(ctx, tx, "package.delete", "package", packageID, nil)
	})
}

// UpdateDetail replaces the payload of one package detail.
func (s *Service) UpdateDetail(ctx context.Context, id string, req packagedomain.DetailRequest) (*packagedomain.DetailResponse, error) {
	tenantID, detailID, err := s.parse(ctx, id)
	if err != nil {
		return nil, err
	}
	payload := datatypes.JSONMap{}
	if req.Details != nil {
		payload = datatypes.JSONMap(req.Details)
	}

	var detail *packagedomain.PackageDetail
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.repo.FindDetail(ctx, tx, tenantID, detailID)
		if err != nil {
			return err
		}
		if current == nil {
			return packagedomain.ErrNotFound
		}
		values := model.Updates(ctx, s.clock.Now(), map[string]any{"details": payload})
		if err := s.repo.UpdateDetail(ctx, tx, tenantID, detailID, values); err != nil {
			return err
		}
		if detail, err = s.repo.FindDetail(ctx, tx, tenantID, detailID); err != nil {
			return err
		}
		return s.audit(ctx, tx, "package_detail.update", "package_detail", detailID, map[string]any{
			"package_id": current.PackageID.String(),
			"tier_id":    current.TierID.String(),
		})
	})
	if err != nil {
		return nil, err
	}
	resp := toDetailResponse(detail)
	return &resp, nil
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
		return 0, packagedomain.ErrInvalidTenant
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
		return 0, 0, packagedomain.ErrInvalidID
	}
	return tenantID, parsed, nil
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil {
		return 0, err
	}
	if id == 0 {
		return 0, packagedomain.ErrInvalidID
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

func toResponse(p *packagedomain.Package, details []packagedomain.PackageDetail) *packagedomain.Response {
	resp := &packagedomain.Response{
		ID:          p.ID.String(),
		PlanID:      p.PlanID.String(),
		Code:        p.Code,
		Name:        p.Name,
		Description: p.Description,
		Details:     make([]packagedomain.DetailResponse, 0, len(details)),
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
	for i := range details {
		resp.Details = append(resp.Details, toDetailResponse(&details[i]))
	}
	return resp
}

func toDetailResponse(d *packagedomain.PackageDetail) packagedomain.DetailResponse {
	details := map[string]any(d.Details)
	if details == nil {
		details = map[string]any{}
	}
	return packagedomain.DetailResponse{
		ID:        d.ID.String(),
		PackageID: d.PackageID.String(),
		TierID:    d.TierID.String(),
		Details:   details,
		UpdatedAt: d.UpdatedAt,
	}
}
