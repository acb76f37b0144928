package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	auditdomain "github.com/smallbiznis/pricedesk/internal/audit/domain"
	"github.com/smallbiznis/pricedesk/internal/clock"
	rbacdomain "github.com/smallbiznis/pricedesk/internal/rbac/domain"
	tenantdomain "github.com/smallbiznis/pricedesk/internal/tenant/domain"
	"github.com/smallbiznis/pricedesk/internal/tenantcontext"
	userdomain "github.com/smallbiznis/pricedesk/internal/user/domain"
	"github.com/smallbiznis/pricedesk/pkg/db"
	"github.com/smallbiznis/pricedesk/pkg/db/model"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxSlugAttempts = 5

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Repo     tenantdomain.Repository
	UserRepo userdomain.Repository
	RBAC     rbacdomain.Service
	AuditSvc auditdomain.Service
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	repo     tenantdomain.Repository
	userRepo userdomain.Repository
	rbac     rbacdomain.Service
	auditSvc auditdomain.Service
}

func New(p Params) tenantdomain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("tenant.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		repo:     p.Repo,
		userRepo: p.UserRepo,
		rbac:     p.RBAC,
		auditSvc: p.AuditSvc,
	}
}

func (s *Service) Create(ctx context.Context, req tenantdomain.CreateRequest) (*tenantdomain.Response, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, tenantdomain.ErrInvalidName
	}
	subject := strings.TrimSpace(req.Founder.Subject)
	email := strings.ToLower(strings.TrimSpace(req.Founder.Email))
	if subject == "" || email == "" {
		return nil, tenantdomain.ErrInvalidFounder
	}

	base := slug.Make(name)
	if custom := strings.TrimSpace(req.Slug); custom != "" {
		if !slug.IsSlug(custom) {
			return nil, tenantdomain.ErrInvalidSlug
		}
		base = custom
	}
	if base == "" {
		return nil, tenantdomain.ErrInvalidSlug
	}

	existing, err := s.userRepo.FindByExternalID(ctx, s.db, subject)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, tenantdomain.ErrAlreadyMember
	}

	now := s.clock.Now()
	tenant := &tenantdomain.Tenant{
		ID:        s.genID.Generate(),
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	founder := &userdomain.User{
		ExternalID: subject,
		Email:      email,
		Username:   strings.TrimSpace(req.Founder.Username),
		Status:     userdomain.StatusActive,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tenant.Slug, err = s.uniqueSlug(ctx, tx, base, custom(req.Slug))
		if err != nil {
			return err
		}
		if err := s.repo.Insert(ctx, tx, tenant); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return tenantdomain.ErrSlugTaken
			}
			return err
		}

		founderID := s.genID.Generate()
		scoped := tenantcontext.With(ctx, tenant.ID, founderID)
		founder.Base = model.NewBase(scoped, founderID, now)
		if err := s.userRepo.Insert(scoped, tx, founder); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return tenantdomain.ErrAlreadyMember
			}
			return err
		}
		if err := s.rbac.SeedTenant(scoped, tx, tenant.ID, founderID); err != nil {
			return err
		}
		return s.auditSvc.Record(scoped, tx, auditdomain.Entry{
			Action:     "tenant.create",
			TargetType: "tenant",
			TargetID:   tenant.ID.String(),
			Metadata:   map[string]any{"slug": tenant.Slug, "name": name},
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("tenant created", zap.String("tenant_id", tenant.ID.String()), zap.String("slug", tenant.Slug))
	resp := toResponse(tenant)
	resp.AdminID = founder.ID.String()
	return resp, nil
}

// uniqueSlug appends a numeric suffix to generated slugs until one is free.
// A slug chosen by the caller is never rewritten.
func (s *Service) uniqueSlug(ctx context.Context, tx *gorm.DB, base string, fixed bool) (string, error) {
	candidate := base
	for attempt := 1; attempt <= maxSlugAttempts; attempt++ {
		taken, err := s.repo.SlugExists(ctx, tx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
		if fixed {
			return "", tenantdomain.ErrSlugTaken
		}
		candidate = fmt.Sprintf("%s-%d", base, attempt+1)
	}
	return "", tenantdomain.ErrSlugTaken
}

func (s *Service) Current(ctx context.Context) (*tenantdomain.Response, error) {
	tenant, err := s.current(ctx, s.db)
	if err != nil {
		return nil, err
	}
	return toResponse(tenant), nil
}

func (s *Service) Update(ctx context.Context, req tenantdomain.UpdateRequest) (*tenantdomain.Response, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, tenantdomain.ErrInvalidName
	}

	var tenant *tenantdomain.Tenant
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.current(ctx, tx)
		if err != nil {
			return err
		}
		values := model.Updates(ctx, s.clock.Now(), map[string]any{"name": name})
		if err := s.repo.Update(ctx, tx, current.ID, values); err != nil {
			return err
		}
		tenant, err = s.current(ctx, tx)
		if err != nil {
			return err
		}
		return s.auditSvc.Record(ctx, tx, auditdomain.Entry{
			Action:     "tenant.update",
			TargetType: "tenant",
			TargetID:   current.ID.String(),
			Metadata:   map[string]any{"name": name, "previous_name": current.Name},
		})
	})
	if err != nil {
		return nil, err
	}
	return toResponse(tenant), nil
}

func (s *Service) current(ctx context.Context, conn *gorm.DB) (*tenantdomain.Tenant, error) {
	tenantID, ok := tenantcontext.TenantIDFromContext(ctx)
	if !ok {
		return nil, tenantdomain.ErrInvalidTenant
	}
	tenant, err := s.repo.FindByID(ctx, conn, tenantID)
	if err != nil {
		return nil, err
	}
	if tenant == nil {
		return nil, tenantdomain.ErrNotFound
	}
	return tenant, nil
}

func custom(value string) bool {
	return strings.TrimSpace(value) != ""
}

func toResponse(t *tenantdomain.Tenant) *tenantdomain.Response {
	return &tenantdomain.Response{
		ID:        t.ID.String(),
		Name:      t.Name,
		Slug:      t.Slug,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}
}
