package service

import (
	"context"
	"sort"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/pricedesk/internal/product/domain"
	"github.com/smallbiznis/pricedesk/internal/tenantcontext"
	"github.com/smallbiznis/pricedesk/pkg/db/model"
	"github.com/smallbiznis/pricedesk/pkg/repository"
	"gorm.io/gorm"
)

func (s *Service) CreateFeatureGroup(ctx context.Context, req domain.FeatureGroupRequest) (*domain.FeatureGroupResponse, error) {
	tenantID, err := s.tenantID(ctx)
	if err != nil {
		return nil, err
	}
	productID, err := parseID(req.ProductID)
	if err != nil {
		return nil, domain.ErrInvalidProduct
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}

	group := &domain.FeatureGroup{
		Base:        model.NewBase(ctx, s.genID.Generate(), s.clock.Now()),
		ProductID:   productID,
		Name:        name,
		Description: trimmedPtr(req.Description),
	}
	if req.Position != nil {
		group.Position = *req.Position
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.requireProduct(ctx, tx, tenantID, productID); err != nil {
			return err
		}
		if err := s.featureGroups.WithTrx(tx).Create(ctx, group); err != nil {
			return err
		}
		return s.audit(ctx, tx, "feature_group.create", "feature_group", group.ID, map[string]any{"product_id": productID.String()})
	})
	if err != nil {
		return nil, err
	}
	resp := toGroupResponse(group)
	return &resp, nil
}

// ListFeatureGroups returns the product's groups ordered by position.
func (s *Service) ListFeatureGroups(ctx context.Context, productID string) ([]domain.FeatureGroupResponse, error) {
	tenantID, err := s.tenantID(ctx)
	if err != nil {
		return nil, err
	}
	pid, err := parseID(productID)
	if err != nil {
		return nil, domain.ErrInvalidProduct
	}

	items, err := s.featureGroups.Find(ctx, tenantID, &domain.FeatureGroup{ProductID: pid})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Position != items[j].Position {
			return items[i].Position < items[j].Position
		}
		return items[i].ID < items[j].ID
	})

	resp := make([]domain.FeatureGroupResponse, 0, len(items))
	for _, item := range items {
		resp = append(resp, toGroupResponse(item))
	}
	return resp, nil
}

func (s *Service) UpdateFeatureGroup(ctx context.Context, id string, req domain.FeatureGroupRequest) (*domain.FeatureGroupResponse, error) {
	tenantID, groupID, err := s.parse(ctx, id)
	if err != nil {
		return nil, err
	}

	values := map[string]any{}
	if req.Name != "" {
		name := strings.TrimSpace(req.Name)
		if name == "" {
			return nil, domain.ErrInvalidName
		}
		values["name"] = name
	}
	if req.Description != nil {
		values["description"] = trimmedPtr(req.Description)
	}
	if req.Position != nil {
		values["position"] = *req.Position
	}

	var group *domain.FeatureGroup
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		groups := s.featureGroups.WithTrx(tx)
		if _, err := loadRow(ctx, groups, tenantID, groupID); err != nil {
			return err
		}
		if err := groups.Update(ctx, tenantID, groupID, model.Updates(ctx, s.clock.Now(), values)); err != nil {
			return err
		}
		group, err = loadRow(ctx, groups, tenantID, groupID)
		if err != nil {
			return err
		}
		return s.audit(ctx, tx, "feature_group.update", "feature_group", groupID, nil)
	})
	if err != nil {
		return nil, err
	}
	resp := toGroupResponse(group)
	return &resp, nil
}

// DeleteFeatureGroup soft-deletes the group and detaches its features.
func (s *Service) DeleteFeatureGroup(ctx context.Context, id string) error {
	tenantID, groupID, err := s.parse(ctx, id)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		groups := s.featureGroups.WithTrx(tx)
		if _, err := loadRow(ctx, groups, tenantID, groupID); err != nil {
			return err
		}
		err := tx.WithContext(ctx).Model(&domain.Feature{}).
			Where("tenant_id = ? AND group_id = ? AND is_deleted = ?", tenantID, groupID, false).
			Updates(model.Updates(ctx, s.clock.Now(), map[string]any{"group_id": nil})).Error
		if err != nil {
			return err
		}
		if err := groups.SoftDelete(ctx, tenantID, groupID, tenantcontext.ActorRef(ctx)); err != nil {
			return err
		}
		return s.audit(ctx, tx, "feature_group.delete", "feature_group", groupID, nil)
	})
}

func (s *Service) CreateFeature(ctx context.Context, req domain.FeatureRequest) (*domain.FeatureResponse, error) {
	tenantID, err := s.tenantID(ctx)
	if err != nil {
		return nil, err
	}
	productID, err := parseID(req.ProductID)
	if err != nil {
		return nil, domain.ErrInvalidProduct
	}
	key := strings.TrimSpace(req.Key)
	if !featureKeyPattern.MatchString(key) {
		return nil, domain.ErrInvalidKey
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}
	groupID, err := optionalID(req.GroupID)
	if err != nil {
		return nil, domain.ErrInvalidGroup
	}

	feature := &domain.Feature{
		Base:        model.NewBase(ctx, s.genID.Generate(), s.clock.Now()),
		ProductID:   productID,
		GroupID:     groupID,
		Key:         key,
		Name:        name,
		Description: trimmedPtr(req.Description),
		Metric:      trimmedPtr(req.Metric),
		Unit:        strings.TrimSpace(req.Unit),
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.requireProduct(ctx, tx, tenantID, productID); err != nil {
			return err
		}
		if err := s.requireGroup(ctx, tx, tenantID, productID, groupID); err != nil {
			return err
		}
		features := s.features.WithTrx(tx)
		existing, err := features.FindOne(ctx, tenantID, &domain.Feature{ProductID: productID, Key: key})
		if err != nil {
			return err
		}
		if existing != nil {
			return domain.ErrKeyTaken
		}
		if err := features.Create(ctx, feature); err != nil {
			return err
		}
		return s.audit(ctx, tx, "feature.create", "feature", feature.ID, map[string]any{"key": key})
	})
	if err != nil {
		return nil, err
	}
	resp := toFeatureResponse(feature)
	return &resp, nil
}

func (s *Service) ListFeatures(ctx context.Context, req domain.ListFeatureRequest) ([]domain.FeatureResponse, error) {
	tenantID, err := s.tenantID(ctx)
	if err != nil {
		return nil, err
	}

	filter := &domain.Feature{}
	if strings.TrimSpace(req.ProductID) != "" {
		productID, err := parseID(req.ProductID)
		if err != nil {
			return nil, domain.ErrInvalidProduct
		}
		filter.ProductID = productID
	}
	if strings.TrimSpace(req.GroupID) != "" {
		groupID, err := parseID(req.GroupID)
		if err != nil {
			return nil, domain.ErrInvalidGroup
		}
		filter.GroupID = &groupID
	}

	items, err := s.features.Find(ctx, tenantID, filter)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].Key < items[j].Key })

	resp := make([]domain.FeatureResponse, 0, len(items))
	for _, item := range items {
		resp = append(resp, toFeatureResponse(item))
	}
	return resp, nil
}

func (s *Service) GetFeature(ctx context.Context, id string) (*domain.FeatureResponse, error) {
	tenantID, featureID, err := s.parse(ctx, id)
	if err != nil {
		return nil, err
	}
	feature, err := loadRow(ctx, s.features, tenantID, featureID)
	if err != nil {
		return nil, err
	}
	resp := toFeatureResponse(feature)
	return &resp, nil
}

// UpdateFeature changes display fields and grouping. The key is immutable
// because pricing structures reference it.
func (s *Service) UpdateFeature(ctx context.Context, id string, req domain.FeatureRequest) (*domain.FeatureResponse, error) {
	tenantID, featureID, err := s.parse(ctx, id)
	if err != nil {
		return nil, err
	}

	values := map[string]any{}
	if req.Name != "" {
		name := strings.TrimSpace(req.Name)
		if name == "" {
			return nil, domain.ErrInvalidName
		}
		values["name"] = name
	}
	if req.Description != nil {
		values["description"] = trimmedPtr(req.Description)
	}
	if req.Metric != nil {
		values["metric"] = trimmedPtr(req.Metric)
	}
	if req.Unit != "" {
		values["unit"] = strings.TrimSpace(req.Unit)
	}
	groupID, err := optionalID(req.GroupID)
	if err != nil {
		return nil, domain.ErrInvalidGroup
	}

	var feature *domain.Feature
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		features := s.features.WithTrx(tx)
		current, err := loadRow(ctx, features, tenantID, featureID)
		if err != nil {
			return err
		}
		if req.Key != "" && strings.TrimSpace(req.Key) != current.Key {
			return domain.ErrInvalidKey
		}
		if req.GroupID != nil {
			if err := s.requireGroup(ctx, tx, tenantID, current.ProductID, groupID); err != nil {
				return err
			}
			values["group_id"] = groupID
		}
		if err := features.Update(ctx, tenantID, featureID, model.Updates(ctx, s.clock.Now(), values)); err != nil {
			return err
		}
		feature, err = loadRow(ctx, features, tenantID, featureID)
		if err != nil {
			return err
		}
		return s.audit(ctx, tx, "feature.update", "feature", featureID, nil)
	})
	if err != nil {
		return nil, err
	}
	resp := toFeatureResponse(feature)
	return &resp, nil
}

func (s *Service) DeleteFeature(ctx context.Context, id string) error {
	tenantID, featureID, err := s.parse(ctx, id)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		features := s.features.WithTrx(tx)
		if _, err := loadRow(ctx, features, tenantID, featureID); err != nil {
			return err
		}
		if err := features.SoftDelete(ctx, tenantID, featureID, tenantcontext.ActorRef(ctx)); err != nil {
			return err
		}
		return s.audit(ctx, tx, "feature.delete", "feature", featureID, nil)
	})
}

func (s *Service) requireProduct(ctx context.Context, tx *gorm.DB, tenantID, productID snowflake.ID) error {
	product, err := s.products.WithTrx(tx).FindByID(ctx, tenantID, productID)
	if err != nil {
		return err
	}
	if product == nil {
		return domain.ErrInvalidProduct
	}
	return nil
}

func (s *Service) requireGroup(ctx context.Context, tx *gorm.DB, tenantID, productID snowflake.ID, groupID *snowflake.ID) error {
	if groupID == nil {
		return nil
	}
	group, err := s.featureGroups.WithTrx(tx).FindByID(ctx, tenantID, *groupID)
	if err != nil {
		return err
	}
	if group == nil || group.ProductID != productID {
		return domain.ErrInvalidGroup
	}
	return nil
}

func loadRow[T any](ctx context.Context, repo repository.Repository[T], tenantID, id snowflake.ID) (*T, error) {
	item, err := repo.FindByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, domain.ErrNotFound
	}
	return item, nil
}

func optionalID(value *string) (*snowflake.ID, error) {
	if value == nil || strings.TrimSpace(*value) == "" {
		return nil, nil
	}
	id, err := parseID(*value)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func toGroupResponse(g *domain.FeatureGroup) domain.FeatureGroupResponse {
	return domain.FeatureGroupResponse{
		ID:          g.ID.String(),
		ProductID:   g.ProductID.String(),
		Name:        g.Name,
		Description: g.Description,
		Position:    g.Position,
		CreatedAt:   g.CreatedAt,
		UpdatedAt:   g.UpdatedAt,
	}
}

func toFeatureResponse(f *domain.Feature) domain.FeatureResponse {
	resp := domain.FeatureResponse{
		ID:          f.ID.String(),
		ProductID:   f.ProductID.String(),
		Key:         f.Key,
		Name:        f.Name,
		Description: f.Description,
		Metric:      f.Metric,
		Unit:        f.Unit,
		CreatedAt:   f.CreatedAt,
		UpdatedAt:   f.UpdatedAt,
	}
	if f.GroupID != nil {
		groupID := f.GroupID.String()
		resp.GroupID = &groupID
	}
	return resp
}
