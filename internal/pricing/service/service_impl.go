package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/pricedesk/internal/audit/domain"
	"github.com/smallbiznis/pricedesk/internal/clock"
	pricebookdomain "github.com/smallbiznis/pricedesk/internal/pricebook/domain"
	pricingdomain "github.com/smallbiznis/pricedesk/internal/pricing/domain"
	"github.com/smallbiznis/pricedesk/internal/pricing/evaluator"
	productdomain "github.com/smallbiznis/pricedesk/internal/product/domain"
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

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Models     repository.Repository[pricingdomain.PricingModel]
	Structures repository.Repository[pricingdomain.PricingStructure]
	Products   repository.Repository[productdomain.Product]
	Books      repository.Repository[pricebookdomain.PriceBook]
	Entries    repository.Repository[pricebookdomain.PriceBookEntry]
	AuditSvc   auditdomain.Service
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	models     repository.Repository[pricingdomain.PricingModel]
	structures repository.Repository[pricingdomain.PricingStructure]
	products   repository.Repository[productdomain.Product]
	books      repository.Repository[pricebookdomain.PriceBook]
	entries    repository.Repository[pricebookdomain.PriceBookEntry]
	auditSvc   auditdomain.Service
}

func New(p Params) pricingdomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("pricing.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		models:     p.Models,
		structures: p.Structures,
		products:   p.Products,
		books:      p.Books,
		entries:    p.Entries,
		auditSvc:   p.AuditSvc,
	}
}

func (s *Service) CreateModel(ctx context.Context, req pricingdomain.ModelRequest) (*pricingdomain.ModelResponse, error) {
	tenantID, err := s.tenantIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, pricingdomain.ErrInvalidName
	}
	productID, err := optionalID(req.ProductID, pricingdomain.ErrInvalidProduct)
	if err != nil {
		return nil, err
	}

	pm := &pricingdomain.PricingModel{
		Base:        model.NewBase(ctx, s.genID.Generate(), s.clock.Now()),
		ProductID:   productID,
		Name:        name,
		Description: trimmed(req.Description),
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.requireProduct(ctx, tx, tenantID, productID); err != nil {
			return err
		}
		if err := s.models.WithTrx(tx).Create(ctx, pm); err != nil {
			return err
		}
		return s.audit(ctx, tx, "pricing_model.create", "pricing_model", pm.ID, map[string]any{"name": name})
	})
	if err != nil {
		return nil, err
	}
	return toModelResponse(pm, nil), nil
}

func (s *Service) ListModels(ctx context.Context, req pricingdomain.ListModelRequest) (*pricingdomain.ListModelResponse, error) {
	tenantID, err := s.tenantIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := pagination.DecodeBeforeID(req.PageToken); err != nil {
		return nil, pricingdomain.ErrInvalidPageToken
	}
	opts := []option.QueryOption{
		option.WithSortBy(option.QuerySortBy{}),
		option.ApplyPagination(req.Pagination),
	}
	if strings.TrimSpace(req.ProductID) != "" {
		productID, err := parseID(req.ProductID)
		if err != nil {
			return nil, pricingdomain.ErrInvalidProduct
		}
		opts = append(opts, option.ApplyOperator(option.Condition{
			Field:    "product_id",
			Operator: option.EQ,
			Value:    int64(productID),
		}))
	}

	items, err := s.models.Find(ctx, tenantID, nil, opts...)
	if err != nil {
		return nil, err
	}
	items, pageInfo := pagination.Trim(items, req.PageSize, func(m *pricingdomain.PricingModel) string { return m.ID.String() })

	resp := &pricingdomain.ListModelResponse{PageInfo: pageInfo, Models: make([]pricingdomain.ModelResponse, 0, len(items))}
	for _, item := range items {
		resp.Models = append(resp.Models, *toModelResponse(item, nil))
	}
	return resp, nil
}

func (s *Service) GetModel(ctx context.Context, id string) (*pricingdomain.ModelResponse, error) {
	tenantID, modelID, err := s.parse(ctx, id)
	if err != nil {
		return nil, err
	}
	pm, err := loadRow(ctx, s.models, tenantID, modelID)
	if err != nil {
		return nil, err
	}
	structures, err := s.structures.Find(ctx, tenantID, &pricingdomain.PricingStructure{PricingModelID: modelID}, oldestFirst())
	if err != nil {
		return nil, err
	}
	return toModelResponse(pm, structures), nil
}

func (s *Service) UpdateModel(ctx context.Context, id string, req pricingdomain.ModelRequest) (*pricingdomain.ModelResponse, error) {
	tenantID, modelID, err := s.parse(ctx, id)
	if err != nil {
		return nil, err
	}
	values := map[string]any{}
	if req.Name != "" {
		name := strings.TrimSpace(req.Name)
		if name == "" {
			return nil, pricingdomain.ErrInvalidName
		}
		values["name"] = name
	}
	if req.Description != nil {
		values["description"] = trimmed(req.Description)
	}
	productID, err := optionalID(req.ProductID, pricingdomain.ErrInvalidProduct)
	if err != nil {
		return nil, err
	}
	if productID != nil {
		values["product_id"] = *productID
	}

	var pm *pricingdomain.PricingModel
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		models := s.models.WithTrx(tx)
		if _, err := loadRow(ctx, models, tenantID, modelID); err != nil {
			return err
		}
		if err := s.requireProduct(ctx, tx, tenantID, productID); err != nil {
			return err
		}
		if err := models.Update(ctx, tenantID, modelID, model.Updates(ctx, s.clock.Now(), values)); err != nil {
			return err
		}
		pm, err = loadRow(ctx, models, tenantID, modelID)
		if err != nil {
			return err
		}
		return s.audit(ctx, tx, "pricing_model.update", "pricing_model", modelID, nil)
	})
	if err != nil {
		return nil, err
	}
	return toModelResponse(pm, nil), nil
}

// DeleteModel refuses while the model still has structures.
func (s *Service) DeleteModel(ctx context.Context, id string) error {
	tenantID, modelID, err := s.parse(ctx, id)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		models := s.models.WithTrx(tx)
		if _, err := loadRow(ctx, models, tenantID, modelID); err != nil {
			return err
		}
		count, err := s.structures.WithTrx(tx).Count(ctx, tenantID, &pricingdomain.PricingStructure{PricingModelID: modelID})
		if err != nil {
			return err
		}
		if count > 0 {
			return pricingdomain.ErrModelInUse
		}
		if err := models.SoftDelete(ctx, tenantID, modelID, tenantcontext.ActorRef(ctx)); err != nil {
			return err
		}
		return s.audit(ctx, tx, "pricing_model.delete", "pricing_model", modelID, nil)
	})
}

func (s *Service) CreateStructure(ctx context.Context, req pricingdomain.StructureRequest) (*pricingdomain.StructureResponse, error) {
	tenantID, err := s.tenantIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	modelID, err := parseID(req.PricingModelID)
	if err != nil {
		return nil, pricingdomain.ErrInvalidModel
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, pricingdomain.ErrInvalidName
	}
	rows := normalizeRows(req.Rows)
	if err := evaluator.Validate(rows); err != nil {
		return nil, err
	}

	structure := &pricingdomain.PricingStructure{
		Base:           model.NewBase(ctx, s.genID.Generate(), s.clock.Now()),
		PricingModelID: modelID,
		Name:           name,
		Rows:           datatypes.JSONSlice[pricingdomain.Row](rows),
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		pm, err := s.models.WithTrx(tx).FindByID(ctx, tenantID, modelID)
		if err != nil {
			return err
		}
		if pm == nil {
			return pricingdomain.ErrInvalidModel
		}
		if err := s.structures.WithTrx(tx).Create(ctx, structure); err != nil {
			return err
		}
		return s.audit(ctx, tx, "pricing_structure.create", "pricing_structure", structure.ID, map[string]any{
			"pricing_model_id": modelID.String(),
			"rows":             len(rows),
		})
	})
	if err != nil {
		return nil, err
	}
	return toStructureResponse(structure), nil
}

func (s *Service) ListStructures(ctx context.Context, pricingModelID string) ([]pricingdomain.StructureResponse, error) {
	tenantID, modelID, err := s.parse(ctx, pricingModelID)
	if err != nil {
		return nil, err
	}
	if _, err := loadRow(ctx, s.models, tenantID, modelID); err != nil {
		return nil, err
	}
	items, err := s.structures.Find(ctx, tenantID, &pricingdomain.PricingStructure{PricingModelID: modelID}, oldestFirst())
	if err != nil {
		return nil, err
	}
	resp := make([]pricingdomain.StructureResponse, 0, len(items))
	for _, item := range items {
		resp = append(resp, *toStructureResponse(item))
	}
	return resp, nil
}

func (s *Service) GetStructure(ctx context.Context, id string) (*pricingdomain.StructureResponse, error) {
	tenantID, structureID, err := s.parse(ctx, id)
	if err != nil {
		return nil, err
	}
	structure, err := loadRow(ctx, s.structures, tenantID, structureID)
	if err != nil {
		return nil, err
	}
	return toStructureResponse(structure), nil
}

// UpdateStructure replaces the name and, when given, the whole row list.
func (s *Service) UpdateStructure(ctx context.Context, id string, req pricingdomain.StructureRequest) (*pricingdomain.StructureResponse, error) {
	tenantID, structureID, err := s.parse(ctx, id)
	if err != nil {
		return nil, err
	}
	values := map[string]any{}
	if req.Name != "" {
		name := strings.TrimSpace(req.Name)
		if name == "" {
			return nil, pricingdomain.ErrInvalidName
		}
		values["name"] = name
	}
	if req.Rows != nil {
		rows := normalizeRows(req.Rows)
		if err := evaluator.Validate(rows); err != nil {
			return nil, err
		}
		values["rows"] = datatypes.JSONSlice[pricingdomain.Row](rows)
	}

	var structure *pricingdomain.PricingStructure
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		structures := s.structures.WithTrx(tx)
		if _, err := loadRow(ctx, structures, tenantID, structureID); err != nil {
			return err
		}
		if err := structures.Update(ctx, tenantID, structureID, model.Updates(ctx, s.clock.Now(), values)); err != nil {
			return err
		}
		structure, err = loadRow(ctx, structures, tenantID, structureID)
		if err != nil {
			return err
		}
		return s.audit(ctx, tx, "pricing_structure.update", "pricing_structure", structureID, map[string]any{"rows": len(structure.Rows)})
	})
	if err != nil {
		return nil, err
	}
	return toStructureResponse(structure), nil
}

func (s *Service) DeleteStructure(ctx context.Context, id string) error {
	tenantID, structureID, err := s.parse(ctx, id)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		structures := s.structures.WithTrx(tx)
		if _, err := loadRow(ctx, structures, tenantID, structureID); err != nil {
			return err
		}
		if err := structures.SoftDelete(ctx, tenantID, structureID, tenantcontext.ActorRef(ctx)); err != nil {
			return err
		}
		return s.audit(ctx, tx, "pricing_structure.delete", "pricing_structure", structureID, nil)
	})
}

func (s *Service) requireProduct(ctx context.Context, tx *gorm.DB, tenantID snowflake.ID, productID *snowflake.ID) error {
	if productID == nil {
		return nil
	}
	product, err := s.products.WithTrx(tx).FindByID(ctx, tenantID, *productID)
	if err != nil {
		return err
	}
	if product == nil {
		return pricingdomain.ErrInvalidProduct
	}
	return nil
}

func normalizeRows(rows []pricingdomain.Row) []pricingdomain.Row {
	out := make([]pricingdomain.Row, len(rows))
	for i, row := range rows {
		row.Key = strings.TrimSpace(row.Key)
		row.DisplayName = strings.TrimSpace(row.DisplayName)
		if row.DisplayName == "" {
			row.DisplayName = row.Key
		}
		row.Metric = trimmed(row.Metric)
		row.Formula = trimmed(row.Formula)
		out[i] = row
	}
	return out
}

func loadRow[T any](ctx context.Context, repo repository.Repository[T], tenantID, id snowflake.ID) (*T, error) {
	row, err := repo.FindByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, pricingdomain.ErrNotFound
	}
	return row, nil
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
		return 0, 0, pricingdomain.ErrInvalidID
	}
	return tenantID, parsed, nil
}

func (s *Service) tenantIDFromContext(ctx context.Context) (snowflake.ID, error) {
	tenantID, ok := tenantcontext.TenantIDFromContext(ctx)
	if !ok {
		return 0, pricingdomain.ErrInvalidTenant
	}
	return tenantID, nil
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil {
		return 0, err
	}
	if id == 0 {
		return 0, pricingdomain.ErrInvalidID
	}
	return id, nil
}

func optionalID(value *string, invalid error) (*snowflake.ID, error) {
	if value == nil || strings.TrimSpace(*value) == "" {
		return nil, nil
	}
	id, err := parseID(*value)
	if err != nil {
		return nil, invalid
	}
	return &id, nil
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

func toModelResponse(m *pricingdomain.PricingModel, structures []*pricingdomain.PricingStructure) *pricingdomain.ModelResponse {
	resp := &pricingdomain.ModelResponse{
		ID:          m.ID.String(),
		Name:        m.Name,
		Description: m.Description,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
	if m.ProductID != nil {
		id := m.ProductID.String()
		resp.ProductID = &id
	}
	for _, structure := range structures {
		resp.Structures = append(resp.Structures, *toStructureResponse(structure))
	}
	return resp
}

func toStructureResponse(st *pricingdomain.PricingStructure) *pricingdomain.StructureResponse {
	return &pricingdomain.StructureResponse{
		ID:             st.ID.String(),
		PricingModelID: st.PricingModelID.String(),
		Name:           st.Name,
		Rows:           []pricingdomain.Row(st.Rows),
		CreatedAt:      st.CreatedAt,
		UpdatedAt:      st.UpdatedAt,
	}
}
