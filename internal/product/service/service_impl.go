package service

import (
	"context"
	"regexp"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/pricedesk/internal/audit/domain"
	"github.com/smallbiznis/pricedesk/internal/clock"
	"github.com/smallbiznis/pricedesk/internal/product/domain"
	"github.com/smallbiznis/pricedesk/internal/tenantcontext"
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

// Feature keys double as pricing formula identifiers.
var featureKeyPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	GenID         *snowflake.Node
	Clock         clock.Clock
	Products      repository.Repository[domain.Product]
	FeatureGroups repository.Repository[domain.FeatureGroup]
	Features      repository.Repository[domain.Feature]
	AuditSvc      auditdomain.Service
}

type Service struct {
	db            *gorm.DB
	log           *zap.Logger
	genID         *snowflake.Node
	clock         clock.Clock
	products      repository.Repository[domain.Product]
	featureGroups repository.Repository[domain.FeatureGroup]
	features      repository.Repository[domain.Feature]
	auditSvc      auditdomain.Service
}

func New(p Params) domain.Service {
	return &Service{
		db:            p.DB,
		log:           p.Log.Named("product.service"),
		genID:         p.GenID,
		clock:         p.Clock,
		products:      p.Products,
		featureGroups: p.FeatureGroups,
		features:      p.Features,
		auditSvc:      p.AuditSvc,
	}
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) (*domain.ListResponse, error) {
	tenantID, err := s.tenantID(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := pagination.DecodeBeforeID(req.PageToken); err != nil {
		return nil, domain.ErrInvalidPageToken
	}

	opts := []option.QueryOption{}
	if name := strings.TrimSpace(req.Name); name != "" {
		opts = append(opts, option.ApplyOperator(option.Condition{Field: "name", Operator: option.EQ, Value: name}))
	}
	if req.Active != nil {
		opts = append(opts, option.ApplyOperator(option.Condition{Field: "active", Operator: option.EQ, Value: *req.Active}))
	}
	if strings.TrimSpace(req.PageToken) == "" {
		opts = append(opts, option.WithSortBy(option.WithQuerySortBy(req.SortBy, req.OrderBy, map[string]bool{
			"created_at": true,
			"updated_at": true,
			"name":       true,
		})))
	} else {
		// Cursors only follow the default ordering.
		opts = append(opts, option.WithSortBy(option.QuerySortBy{}))
	}
	opts = append(opts, option.ApplyPagination(req.Pagination))

	items, err := s.products.Find(ctx, tenantID, nil, opts...)
	if err != nil {
		return nil, err
	}
	items, pageInfo := pagination.Trim(items, req.PageSize, func(p *domain.Product) string { return p.ID.String() })

	resp := &domain.ListResponse{PageInfo: pageInfo, Products: make([]domain.Response, 0, len(items))}
	for _, item := range items {
		resp.Products = append(resp.Products, toResponse(item))
	}
	return resp, nil
}

func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (*domain.Response, error) {
	tenantID, err := s.tenantID(ctx)
	if err != nil {
		return nil, err
	}

	code := strings.TrimSpace(req.Code)
	if code == "" {
		return nil, domain.ErrInvalidCode
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}

	p := &domain.Product{
		Base:        model.NewBase(ctx, s.genID.Generate(), s.clock.Now()),
		Code:        code,
		Name:        name,
		Description: trimmedPtr(req.Description),
		Active:      active,
	}
	if req.Metadata != nil {
		p.Metadata = datatypes.JSONMap(req.Metadata)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		products := s.products.WithTrx(tx)
		existing, err := products.FindOne(ctx, tenantID, &domain.Product{Code: code})
		if err != nil {
			return err
		}
		if existing != nil {
			return domain.ErrCodeTaken
		}
		if err := products.Create(ctx, p); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return domain.ErrCodeTaken
			}
			return err
		}
		return s.audit(ctx, tx, "product.create", "product", p.ID, map[string]any{"code": code})
	})
	if err != nil {
		return nil, err
	}
	resp := toResponse(p)
	return &resp, nil
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Response, error) {
	tenantID, productID, err := s.parse(ctx, id)
	if err != nil {
		return nil, err
	}
	item, err := s.loadProduct(ctx, s.products, tenantID, productID)
	if err != nil {
		return nil, err
	}
	resp := toResponse(item)
	return &resp, nil
}

func (s *Service) Update(ctx context.Context, id string, req domain.UpdateRequest) (*domain.Response, error) {
	tenantID, productID, err := s.parse(ctx, id)
	if err != nil {
		return nil, err
	}

	values := map[string]any{}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, domain.ErrInvalidName
		}
		values["name"] = name
	}
	if req.Description != nil {
		values["description"] = trimmedPtr(req.Description)
	}
	if req.Active != nil {
		values["active"] = *req.Active
	}
	if req.Metadata != nil {
		values["metadata"] = datatypes.JSONMap(req.Metadata)
	}

	var item *domain.Product
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		products := s.products.WithTrx(tx)
		if _, err := s.loadProduct(ctx, products, tenantID, productID); err != nil {
			return err
		}
		if err := products.Update(ctx, tenantID, productID, model.Updates(ctx, s.clock.Now(), values)); err != nil {
			return err
		}
		item, err = s.loadProduct(ctx, products, tenantID, productID)
		if err != nil {
			return err
		}
		return s.audit(ctx, tx, "product.update", "product", productID, nil)
	})
	if err != nil {
		return nil, err
	}
	resp := toResponse(item)
	return &resp, nil
}

// Delete soft-deletes the product together with its feature groups and
// repository features.
func (s *Service) Delete(ctx context.Context, id string) error {
	tenantID, productID, err := s.parse(ctx, id)
	if err != nil {
		return err
	}
	actor := tenantcontext.ActorRef(ctx)
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		products := s.products.WithTrx(tx)
		if _, err := s.loadProduct(ctx, products, tenantID, productID); err != nil {
			return err
		}
		groups, err := s.featureGroups.WithTrx(tx).Find(ctx, tenantID, &domain.FeatureGroup{ProductID: productID})
		if err != nil {
			return err
		}
		for _, g := range groups {
			if err := s.featureGroups.WithTrx(tx).SoftDelete(ctx, tenantID, g.ID, actor); err != nil {
				return err
			}
		}
		features, err := s.features.WithTrx(tx).Find(ctx, tenantID, &domain.Feature{ProductID: productID})
		if err != nil {
			return err
		}
		for _, f := range features {
			if err := s.features.WithTrx(tx).SoftDelete(ctx, tenantID, f.ID, actor); err != nil {
				return err
			}
		}
		if err := products.SoftDelete(ctx, tenantID, productID, actor); err != nil {
			return err
		}
		return s.audit(ctx, tx, "product.delete", "product", productID, nil)
	})
}

func (s *Service) loadProduct(ctx context.Context, repo repository.Repository[domain.Product], tenantID, id snowflake.ID) (*domain.Product, error) {
	item, err := repo.FindByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, domain.ErrNotFound
	}
	return item, nil
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
		return 0, domain.ErrInvalidTenant
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
		return 0, 0, domain.ErrInvalidID
	}
	return tenantID, parsed, nil
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil {
		return 0, err
	}
	if id == 0 {
		return 0, domain.ErrInvalidID
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

func toResponse(p *domain.Product) domain.Response {
	resp := domain.Response{
		ID:          p.ID.String(),
		Code:        p.Code,
		Name:        p.Name,
		Description: p.Description,
		Active:      p.Active,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
	if len(p.Metadata) > 0 {
		resp.Metadata = map[string]any(p.Metadata)
	}
	return resp
}
