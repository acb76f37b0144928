package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/pricedesk/internal/clock"
	packagedomain "github.com/smallbiznis/pricedesk/internal/packages/domain"
	plandomain "github.com/smallbiznis/pricedesk/internal/plan/domain"
	"github.com/smallbiznis/pricedesk/pkg/db/model"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type SyncerParams struct {
	fx.In

	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  packagedomain.Repository
}

// Syncer propagates tier writes into package details. It only touches the
// transaction it is handed.
type Syncer struct {
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  packagedomain.Repository
}

func NewSyncer(p SyncerParams) plandomain.PackageDetailSyncer {
	return &Syncer{
		log:   p.Log.Named("packages.syncer"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

// OnTierCreated adds an empty detail for the new tier to every live package
// of the plan, including packages that have no detail yet because the plan
// had no tiers when they were created.
func (s *Syncer) OnTierCreated(ctx context.Context, tx *gorm.DB, plan *plandomain.Plan, tier *plandomain.Tier) error {
	packageIDs, err := s.repo.PackageIDsForPlan(ctx, tx, plan.TenantID, plan.ID)
	if err != nil {
		return err
	}
	if len(packageIDs) == 0 {
		return nil
	}

	now := s.clock.Now()
	details := make([]packagedomain.PackageDetail, 0, len(packageIDs))
	for _, packageID := range packageIDs {
		details = append(details, packagedomain.PackageDetail{
			Base:      model.NewBase(ctx, s.genID.Generate(), now),
			PackageID: packageID,
			TierID:    tier.ID,
			Details:   datatypes.JSONMap{},
		})
	}
	if err := s.repo.InsertDetails(ctx, tx, details); err != nil {
		return err
	}
	s.log.Debug("package details added",
		zap.String("tier_id", tier.ID.String()),
		zap.Int("packages", len(details)),
	)
	return nil
}

func (s *Syncer) OnTierDeleted(ctx context.Context, tx *gorm.DB, plan *plandomain.Plan, tier *plandomain.Tier) error {
	return s.repo.SoftDeleteDetailsForTier(ctx, tx, plan.TenantID, tier.ID, s.deleted(ctx))
}

func (s *Syncer) OnPlanDeleted(ctx context.Context, tx *gorm.DB, plan *plandomain.Plan) error {
	return s.repo.SoftDeletePackagesForPlan(ctx, tx, plan.TenantID, plan.ID, s.deleted(ctx))
}

func (s *Syncer) deleted(ctx context.Context) map[string]any {
	return model.Updates(ctx, s.clock.Now(), map[string]any{"is_deleted": true})
}
