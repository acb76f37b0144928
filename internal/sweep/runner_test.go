package sweep

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/pricedesk/internal/clock"
	contractdomain "github.com/smallbiznis/pricedesk/internal/contract/domain"
	sfdomain "github.com/smallbiznis/pricedesk/internal/salesforce/domain"
	tenantdomain "github.com/smallbiznis/pricedesk/internal/tenant/domain"
	"github.com/smallbiznis/pricedesk/internal/tenantcontext"
	"github.com/smallbiznis/pricedesk/pkg/db/dbtest"
	"github.com/smallbiznis/pricedesk/pkg/db/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fakeContractService struct {
	contractdomain.Service

	mu      sync.Mutex
	tenants []snowflake.ID
	fail    map[snowflake.ID]error
}

func (f *fakeContractService) ExpireSignatures(ctx context.Context) (*contractdomain.ExpireResponse, error) {
	tenantID, ok := tenantcontext.TenantIDFromContext(ctx)
	if !ok {
		return nil, contractdomain.ErrInvalidTenant
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tenants = append(f.tenants, tenantID)
	if err := f.fail[tenantID]; err != nil {
		return nil, err
	}
	return &contractdomain.ExpireResponse{Expired: 1}, nil
}

type fakeSalesforceService struct {
	sfdomain.Service

	mu       sync.Mutex
	requests map[snowflake.ID]sfdomain.SyncRequest
	errs     map[snowflake.ID]error
}

func (f *fakeSalesforceService) Sync(ctx context.Context, req sfdomain.SyncRequest) (*sfdomain.SyncLogResponse, error) {
	tenantID, ok := tenantcontext.TenantIDFromContext(ctx)
	if !ok {
		return nil, sfdomain.ErrInvalidTenant
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.requests == nil {
		f.requests = map[snowflake.ID]sfdomain.SyncRequest{}
	}
	f.requests[tenantID] = req
	if err := f.errs[tenantID]; err != nil {
		return nil, err
	}
	return &sfdomain.SyncLogResponse{}, nil
}

type fakeLocker struct {
	held     bool
	err      error
	released []string
}

func (l *fakeLocker) TryLock(_ context.Context, key string, _ time.Duration) (string, bool, error) {
	if l.err != nil {
		return "", false, l.err
	}
	return "token-" + key, !l.held, nil
}

func (l *fakeLocker) Release(_ context.Context, key, _ string) error {
	l.released = append(l.released, key)
	return nil
}

type fixture struct {
	db         *gorm.DB
	clock      *clock.FakeClock
	contracts  *fakeContractService
	salesforce *fakeSalesforceService
	runner     *Runner
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()

	db := dbtest.Open(t, &tenantdomain.Tenant{}, &sfdomain.FieldMapping{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	f := &fixture{
		db:         db,
		clock:      clock.NewFakeClock(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)),
		contracts:  &fakeContractService{},
		salesforce: &fakeSalesforceService{},
	}
	f.runner, err = New(Params{
		DB:            db,
		Log:           zap.NewNop(),
		GenID:         node,
		Clock:         f.clock,
		ContractSvc:   f.contracts,
		SalesforceSvc: f.salesforce,
		Config:        cfg,
	})
	require.NoError(t, err)
	return f
}

func (f *fixture) addTenant(t *testing.T, id int64, deleted bool) {
	t.Helper()
	now := f.clock.Now()
	require.NoError(t, f.db.Create(&tenantdomain.Tenant{
		ID:        snowflake.ID(id),
		Name:      "Tenant",
		Slug:      snowflake.ID(id).String(),
		IsDeleted: deleted,
		CreatedAt: now,
		UpdatedAt: now,
	}).Error)
}

func (f *fixture) addMapping(t *testing.T, id, tenantID int64, deleted bool) {
	t.Helper()
	now := f.clock.Now()
	require.NoError(t, f.db.Create(&sfdomain.FieldMapping{
		Base: model.Base{
			ID:        snowflake.ID(id),
			TenantID:  snowflake.ID(tenantID),
			IsDeleted: deleted,
			CreatedAt: now,
			UpdatedAt: now,
		},
		Entity:      sfdomain.EntityAccount,
		LocalField:  "name",
		RemoteField: "Name",
		Direction:   sfdomain.DirectionBoth,
	}).Error)
}

func TestNewRejectsMissingDependencies(t *testing.T) {
	_, err := New(Params{Log: zap.NewNop()})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestExpireSignaturesVisitsEveryLiveTenant(t *testing.T) {
	f := newFixture(t, Config{TenantBatchSize: 2})
	f.addTenant(t, 3, false)
	f.addTenant(t, 1, false)
	f.addTenant(t, 2, true)
	f.addTenant(t, 5, false)

	require.NoError(t, f.runner.ExpireSignaturesJob(context.Background()))

	assert.Equal(t, []snowflake.ID{1, 3, 5}, f.contracts.tenants)
}

func TestExpireSignaturesContinuesPastTenantFailure(t *testing.T) {
	f := newFixture(t, Config{})
	f.addTenant(t, 1, false)
	f.addTenant(t, 2, false)
	boom := errors.New("boom")
	f.contracts.fail = map[snowflake.ID]error{1: boom}

	err := f.runner.ExpireSignaturesJob(context.Background())

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []snowflake.ID{1, 2}, f.contracts.tenants)
}

func TestSalesforceSyncOnlyTenantsWithMappings(t *testing.T) {
	f := newFixture(t, Config{SalesforceDirection: sfdomain.DirectionPull})
	f.addMapping(t, 10, 1, false)
	f.addMapping(t, 11, 1, false)
	f.addMapping(t, 12, 2, true)
	f.addMapping(t, 13, 4, false)

	require.NoError(t, f.runner.SalesforceSyncJob(context.Background()))

	assert.Len(t, f.salesforce.requests, 2)
	assert.Contains(t, f.salesforce.requests, snowflake.ID(1))
	assert.Contains(t, f.salesforce.requests, snowflake.ID(4))
	assert.Equal(t, string(sfdomain.DirectionPull), f.salesforce.requests[1].Direction)
}

func TestSalesforceSyncToleratesBusyAndUnconfiguredTenants(t *testing.T) {
	f := newFixture(t, Config{})
	f.addMapping(t, 10, 1, false)
	f.addMapping(t, 11, 2, false)
	f.salesforce.errs = map[snowflake.ID]error{
		1: sfdomain.ErrSyncInProgress,
		2: sfdomain.ErrNotConfigured,
	}

	assert.NoError(t, f.runner.SalesforceSyncJob(context.Background()))
}

func TestRunExecutesEveryJobByDefault(t *testing.T) {
	f := newFixture(t, Config{})
	f.addTenant(t, 1, false)
	f.addMapping(t, 10, 1, false)

	require.NoError(t, f.runner.Run(context.Background()))

	assert.Equal(t, []snowflake.ID{1}, f.contracts.tenants)
	assert.Len(t, f.salesforce.requests, 1)
}

func TestRunOnlyNamedJobs(t *testing.T) {
	f := newFixture(t, Config{})
	f.addTenant(t, 1, false)
	f.addMapping(t, 10, 1, false)

	require.NoError(t, f.runner.Run(context.Background(), " Expire_Signatures "))

	assert.Equal(t, []snowflake.ID{1}, f.contracts.tenants)
	assert.Empty(t, f.salesforce.requests)
}

func TestRunRejectsUnknownJobBeforeRunningAny(t *testing.T) {
	f := newFixture(t, Config{})
	f.addTenant(t, 1, false)

	err := f.runner.Run(context.Background(), JobExpireSignatures, "rebuild_invoices")

	assert.ErrorIs(t, err, ErrUnknownJob)
	assert.Empty(t, f.contracts.tenants)
}

func TestRunJoinsJobFailures(t *testing.T) {
	f := newFixture(t, Config{})
	f.addTenant(t, 1, false)
	f.addMapping(t, 10, 1, false)
	boom := errors.New("boom")
	f.contracts.fail = map[snowflake.ID]error{1: boom}

	err := f.runner.Run(context.Background())

	assert.ErrorIs(t, err, boom)
	assert.Len(t, f.salesforce.requests, 1)
}

func TestRunJobSkipsWhenLeaseHeldElsewhere(t *testing.T) {
	f := newFixture(t, Config{})
	locker := &fakeLocker{held: true}
	f.runner.locker = locker

	called := false
	err := f.runner.runJob(context.Background(), "heartbeat", 1, time.Second, func(context.Context) error {
		called = true
		return nil
	})

	require.NoError(t, err)
	assert.False(t, called)
	assert.Empty(t, locker.released)
}

func TestRunJobReleasesLease(t *testing.T) {
	f := newFixture(t, Config{})
	locker := &fakeLocker{}
	f.runner.locker = locker

	err := f.runner.runJob(context.Background(), "heartbeat", 1, time.Second, func(context.Context) error {
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"sweep:heartbeat"}, locker.released)
}

func TestRunJobRunsUnguardedWhenLockBackendFails(t *testing.T) {
	f := newFixture(t, Config{})
	f.runner.locker = &fakeLocker{err: errors.New("redis down")}

	called := false
	err := f.runner.runJob(context.Background(), "heartbeat", 1, time.Second, func(context.Context) error {
		called = true
		return nil
	})

	require.NoError(t, err)
	assert.True(t, called)
}

func TestRunJobTimeoutIsSoft(t *testing.T) {
	f := newFixture(t, Config{})

	err := f.runner.runJob(context.Background(), "timeout_job", 0, 5*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	assert.NoError(t, err)
}

func TestRunJobWrapsFailure(t *testing.T) {
	f := newFixture(t, Config{})
	boom := errors.New("boom")

	err := f.runner.runJob(context.Background(), "failing", 0, time.Second, func(context.Context) error {
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "failing")
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{SalesforceDirection: "sideways"}.withDefaults()

	assert.Equal(t, sfdomain.DirectionBoth, cfg.SalesforceDirection)
	assert.Equal(t, 100, cfg.TenantBatchSize)
	assert.Equal(t, 5*time.Minute, cfg.JobTimeout)
	assert.Equal(t, 10*time.Minute, cfg.LeaseTTL)
}
