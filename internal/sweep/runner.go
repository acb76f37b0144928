package sweep

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/pricedesk/internal/clock"
	contractdomain "github.com/smallbiznis/pricedesk/internal/contract/domain"
	"github.com/smallbiznis/pricedesk/internal/observability/metrics"
	"github.com/smallbiznis/pricedesk/internal/ratelimit"
	sfdomain "github.com/smallbiznis/pricedesk/internal/salesforce/domain"
	tenantdomain "github.com/smallbiznis/pricedesk/internal/tenant/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	JobExpireSignatures = "expire_signatures"
	JobSalesforceSync   = "salesforce_sync"

	leaseKeyFormat = "sweep:%s"
)

var (
	ErrInvalidConfig = errors.New("sweep: invalid config")
	ErrUnknownJob    = errors.New("sweep: unknown job")
)

// Jobs lists every job in the order Run executes them.
var Jobs = []string{JobExpireSignatures, JobSalesforceSync}

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	GenID         *snowflake.Node
	Clock         clock.Clock
	ContractSvc   contractdomain.Service
	SalesforceSvc sfdomain.Service
	Locker        *ratelimit.Locker `optional:"true"`
	Metrics       *metrics.Metrics  `optional:"true"`
	Config        Config            `optional:"true"`
}

// Runner executes the tenant sweeps once per invocation: persisting expired
// signature requests and syncing Salesforce for tenants with mappings. The
// cadence belongs to whatever external cron invokes it.
type Runner struct {
	db            *gorm.DB
	log           *zap.Logger
	cfg           Config
	genID         *snowflake.Node
	clock         clock.Clock
	contractSvc   contractdomain.Service
	salesforceSvc sfdomain.Service
	locker        ratelimit.TryLocker
	metrics       *metrics.Metrics
}

func New(p Params) (*Runner, error) {
	if p.DB == nil || p.Log == nil || p.GenID == nil || p.Clock == nil || p.ContractSvc == nil || p.SalesforceSvc == nil {
		return nil, ErrInvalidConfig
	}
	s := &Runner{
		db:            p.DB,
		log:           p.Log.Named("sweep").With(zap.String("component", "sweep")),
		cfg:           p.Config.withDefaults(),
		genID:         p.GenID,
		clock:         p.Clock,
		contractSvc:   p.ContractSvc,
		salesforceSvc: p.SalesforceSvc,
		metrics:       p.Metrics,
	}
	if p.Locker != nil {
		s.locker = p.Locker
	}
	return s, nil
}

func (s *Runner) runJob(
	parent context.Context,
	name string,
	batchSize int,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	release, ok := s.acquireLease(ctx, name)
	if !ok {
		s.metrics.RecordJobRun(ctx, name, "skipped", 0)
		return nil
	}
	defer release()

	ctx, run, owner := s.ensureJobRun(ctx, name, batchSize)
	if owner {
		s.logJobStart(ctx, run)
	}
	log := s.logger(ctx).With(
		zap.String("job", name),
		zap.String("run_id", run.runID),
	)

	err := fn(ctx)
	elapsed := s.clock.Now().Sub(start)
	if owner {
		if err != nil && run.errorCount == 0 {
			run.IncError()
		}
		s.logJobFinish(ctx, run)
	}
	if err == nil {
		s.metrics.RecordJobRun(ctx, name, "success", elapsed)
		return nil
	}

	// deadline is a soft timeout; the next invocation resumes the sweep
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		s.metrics.RecordJobRun(ctx, name, "timeout", elapsed)
		log.Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	s.metrics.RecordJobRun(ctx, name, "error", elapsed)
	return fmt.Errorf("%s: %w", name, err)
}

// acquireLease keeps overlapping invocations from running the same job. Without
// a lock backend, or when it is unreachable, the job runs unguarded.
func (s *Runner) acquireLease(ctx context.Context, job string) (func(), bool) {
	noop := func() {}
	if s.locker == nil {
		return noop, true
	}
	key := fmt.Sprintf(leaseKeyFormat, job)
	token, ok, err := s.locker.TryLock(ctx, key, s.cfg.LeaseTTL)
	if err != nil {
		s.log.Warn("sweep lease unavailable", zap.String("job", job), zap.Error(err))
		return noop, true
	}
	if !ok {
		s.log.Info("sweep lease held elsewhere", zap.String("job", job))
		return noop, false
	}
	return func() {
		if err := s.locker.Release(context.Background(), key, token); err != nil {
			s.log.Warn("sweep lease release failed", zap.String("job", job), zap.Error(err))
		}
	}, true
}

// Run executes the named jobs, or every job when none is named. A job
// failing does not stop the ones after it.
func (s *Runner) Run(parent context.Context, jobs ...string) error {
	if len(jobs) == 0 {
		jobs = Jobs
	}
	selected := make([]string, 0, len(jobs))
	for _, job := range jobs {
		name, ok := normalizeJob(job)
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnknownJob, job)
		}
		selected = append(selected, name)
	}

	var err error
	for _, job := range selected {
		switch job {
		case JobExpireSignatures:
			err = errors.Join(err, s.runJob(parent, job, s.cfg.TenantBatchSize, s.cfg.JobTimeout, s.ExpireSignaturesJob))
		case JobSalesforceSync:
			err = errors.Join(err, s.runJob(parent, job, s.cfg.TenantBatchSize, s.cfg.JobTimeout, s.SalesforceSyncJob))
		}
	}
	return err
}

func normalizeJob(job string) (string, bool) {
	for _, known := range Jobs {
		if strings.EqualFold(strings.TrimSpace(job), known) {
			return known, true
		}
	}
	return "", false
}

// ExpireSignaturesJob walks every live tenant and persists Expired on its
// open signature requests that are past their expiry.
func (s *Runner) ExpireSignaturesJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, JobExpireSignatures, s.cfg.TenantBatchSize)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}

	var jobErr error
	err := s.eachTenant(ctx, s.activeTenants, func(tenantID snowflake.ID) {
		resp, err := s.contractSvc.ExpireSignatures(s.withTenant(ctx, tenantID))
		if err != nil {
			jobErr = errors.Join(jobErr, err)
			s.logTenantError(ctx, run, "sweep.expire_signatures.failed", tenantID, err)
			return
		}
		if resp != nil && resp.Expired > 0 {
			run.AddProcessed(resp.Expired)
			s.logger(s.withTenant(ctx, tenantID)).Info("signatures expired", zap.Int("count", resp.Expired))
		}
	})
	return errors.Join(jobErr, err)
}

// SalesforceSyncJob runs a sync for every tenant holding at least one live
// field mapping. Tenants whose sync is already running, or whose
// credentials are missing, are skipped.
func (s *Runner) SalesforceSyncJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, JobSalesforceSync, s.cfg.TenantBatchSize)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}

	var jobErr error
	err := s.eachTenant(ctx, s.mappedTenants, func(tenantID snowflake.ID) {
		_, err := s.salesforceSvc.Sync(s.withTenant(ctx, tenantID), sfdomain.SyncRequest{Direction: string(s.cfg.SalesforceDirection)})
		switch {
		case err == nil:
			run.AddProcessed(1)
		case errors.Is(err, sfdomain.ErrSyncInProgress),
			errors.Is(err, sfdomain.ErrNoMappings),
			errors.Is(err, sfdomain.ErrNotConfigured):
			s.logger(s.withTenant(ctx, tenantID)).Debug("salesforce sync skipped", zap.Error(err))
		default:
			jobErr = errors.Join(jobErr, err)
			s.logTenantError(ctx, run, "sweep.salesforce_sync.failed", tenantID, err)
		}
	})
	return errors.Join(jobErr, err)
}

type tenantPage func(ctx context.Context, after snowflake.ID, limit int) ([]snowflake.ID, error)

// eachTenant pages through tenant ids in ascending order and stops early
// when ctx is done.
func (s *Runner) eachTenant(ctx context.Context, page tenantPage, fn func(snowflake.ID)) error {
	var after snowflake.ID
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		ids, err := page(ctx, after, s.cfg.TenantBatchSize)
		if err != nil {
			return err
		}
		for _, id := range ids {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fn(id)
		}
		if len(ids) < s.cfg.TenantBatchSize {
			return nil
		}
		after = ids[len(ids)-1]
	}
}

func (s *Runner) activeTenants(ctx context.Context, after snowflake.ID, limit int) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	err := s.db.WithContext(ctx).
		Model(&tenantdomain.Tenant{}).
		Where("is_deleted = ? AND id > ?", false, after).
		Order("id ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	return ids, err
}

func (s *Runner) mappedTenants(ctx context.Context, after snowflake.ID, limit int) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	err := s.db.WithContext(ctx).
		Model(&sfdomain.FieldMapping{}).
		Distinct("tenant_id").
		Where("is_deleted = ? AND tenant_id > ?", false, after).
		Order("tenant_id ASC").
		Limit(limit).
		Pluck("tenant_id", &ids).Error
	return ids, err
}
