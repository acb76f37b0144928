package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	accountdomain "github.com/smallbiznis/pricedesk/internal/account/domain"
	sfclient "github.com/smallbiznis/pricedesk/internal/providers/salesforce"
	"github.com/smallbiznis/pricedesk/internal/ratelimit"
	sfdomain "github.com/smallbiznis/pricedesk/internal/salesforce/domain"
	"github.com/smallbiznis/pricedesk/pkg/db/model"
	"github.com/smallbiznis/pricedesk/pkg/db/option"
	"go.uber.org/zap"
)

// syncRun carries the state of one sync pass.
type syncRun struct {
	tenantID snowflake.ID
	client   sfclient.Client
	mappings []*sfdomain.FieldMapping
	entry    *sfdomain.SyncLog
	now      time.Time
}

func (r *syncRun) fail(err error) {
	r.entry.Failed++
	r.entry.Error = err.Error()
}

func (s *Service) Sync(ctx context.Context, req sfdomain.SyncRequest) (*sfdomain.SyncLogResponse, error) {
	tenantID, err := s.tenantIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	direction := sfdomain.DirectionBoth
	if v := strings.ToLower(strings.TrimSpace(req.Direction)); v != "" {
		direction = sfdomain.Direction(v)
		if !direction.Valid() {
			return nil, sfdomain.ErrInvalidDirection
		}
	}

	mappings, err := s.mappings.Find(ctx, tenantID, &sfdomain.FieldMapping{})
	if err != nil {
		return nil, err
	}
	if !hasMappings(mappings, direction) {
		return nil, sfdomain.ErrNoMappings
	}
	creds, err := s.loadCredentials(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	release, err := s.lock.Acquire(ctx, tenantID)
	if err != nil {
		if errors.Is(err, ratelimit.ErrSyncInProgress) {
			return nil, sfdomain.ErrSyncInProgress
		}
		return nil, err
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			s.log.Warn("release sync lock", zap.String("tenant_id", tenantID.String()), zap.Error(err))
		}
	}()

	started := s.clock.Now()
	entry := &sfdomain.SyncLog{
		Base:      model.NewBase(ctx, s.genID.Generate(), started),
		Direction: direction,
		Status:    sfdomain.SyncRunning,
		StartedAt: started,
	}
	if err := s.logs.Create(ctx, entry); err != nil {
		return nil, err
	}

	runErr := s.run(ctx, tenantID, *creds, direction, mappings, entry)

	finished := s.clock.Now()
	entry.FinishedAt = &finished
	switch {
	case runErr != nil:
		entry.Status = sfdomain.SyncFailed
		entry.Error = runErr.Error()
	case entry.Failed > 0:
		entry.Status = sfdomain.SyncPartial
	default:
		entry.Status = sfdomain.SyncSucceeded
	}
	if err := s.logs.Update(ctx, tenantID, entry.ID, model.Updates(ctx, finished, map[string]any{
		"status":      entry.Status,
		"finished_at": entry.FinishedAt,
		"pulled":      entry.Pulled,
		"pushed":      entry.Pushed,
		"skipped":     entry.Skipped,
		"failed":      entry.Failed,
		"error":       entry.Error,
	})); err != nil {
		return nil, err
	}

	s.metrics.RecordSalesforceSync(ctx, tenantID.String(), string(direction), string(entry.Status))
	s.log.Info("salesforce sync finished",
		zap.String("tenant_id", tenantID.String()),
		zap.String("direction", string(direction)),
		zap.String("status", string(entry.Status)),
		zap.Int("pulled", entry.Pulled),
		zap.Int("pushed", entry.Pushed),
		zap.Int("skipped", entry.Skipped),
		zap.Int("failed", entry.Failed),
		zap.Duration("duration", finished.Sub(started)),
	)
	if err := s.audit(ctx, nil, "salesforce.sync", entry.ID, map[string]any{
		"direction": string(direction),
		"status":    string(entry.Status),
		"pulled":    entry.Pulled,
		"pushed":    entry.Pushed,
		"failed":    entry.Failed,
	}); err != nil {
		return nil, err
	}

	if runErr != nil {
		return nil, runErr
	}
	resp := toSyncLogResponse(entry)
	return &resp, nil
}

func (s *Service) run(ctx context.Context, tenantID snowflake.ID, creds sfclient.Credentials, direction sfdomain.Direction, mappings []*sfdomain.FieldMapping, entry *sfdomain.SyncLog) error {
	client, err := s.factory.New(ctx, creds)
	s.metrics.RecordExternalCall(ctx, "salesforce", "connect", callStatus(err))
	if err != nil {
		return err
	}
	r := &syncRun{tenantID: tenantID, client: client, mappings: mappings, entry: entry, now: entry.StartedAt}

	// Accounts go first so opportunities can resolve their parent.
	if direction.Includes(sfdomain.DirectionPull) {
		since, err := s.lastSync(ctx, tenantID, sfdomain.DirectionPull)
		if err != nil {
			return err
		}
		if err := s.pullAccounts(ctx, r, since); err != nil {
			return err
		}
		if err := s.pullOpportunities(ctx, r, since); err != nil {
			return err
		}
	}
	if direction.Includes(sfdomain.DirectionPush) {
		since, err := s.lastSync(ctx, tenantID, sfdomain.DirectionPush)
		if err != nil {
			return err
		}
		if err := s.pushAccounts(ctx, r, since); err != nil {
			return err
		}
		if err := s.pushOpportunities(ctx, r, since); err != nil {
			return err
		}
	}
	return nil
}

// lastSync is the start of the latest completed run covering pass, used as
// the incremental watermark.
func (s *Service) lastSync(ctx context.Context, tenantID snowflake.ID, pass sfdomain.Direction) (*time.Time, error) {
	last, err := s.logs.FindOne(ctx, tenantID, &sfdomain.SyncLog{},
		option.ApplyOperator(option.Condition{
			Field:    "status",
			Operator: option.IN,
			Value:    []string{string(sfdomain.SyncSucceeded), string(sfdomain.SyncPartial)},
		}),
		option.ApplyOperator(option.Condition{
			Field:    "direction",
			Operator: option.IN,
			Value:    []string{string(pass), string(sfdomain.DirectionBoth)},
		}),
		option.WithSortBy(option.QuerySortBy{}),
	)
	if err != nil || last == nil {
		return nil, err
	}
	return &last.StartedAt, nil
}

func (s *Service) query(ctx context.Context, r *syncRun, object string, fields []string, since *time.Time) ([]sfclient.Record, error) {
	soql := fmt.Sprintf("SELECT %s FROM %s", strings.Join(fields, ", "), object)
	if since != nil {
		soql += " WHERE LastModifiedDate > " + since.UTC().Format(time.RFC3339)
	}
	records, err := r.client.Query(ctx, soql)
	s.metrics.RecordExternalCall(ctx, "salesforce", "query", callStatus(err))
	return records, err
}

func (s *Service) pullAccounts(ctx context.Context, r *syncRun, since *time.Time) error {
	mappings := filterMappings(r.mappings, sfdomain.EntityAccount, sfdomain.DirectionPull)
	if len(mappings) == 0 {
		return nil
	}
	records, err := s.query(ctx, r, sfdomain.EntityAccount.Object(), selectFields(mappings), since)
	if err != nil {
		return err
	}
	for _, rec := range records {
		sfID := remoteID(rec)
		if sfID == "" {
			r.entry.Skipped++
			continue
		}
		values := pullValues(mappings, rec)
		existing, err := s.accounts.FindOne(ctx, r.tenantID, &accountdomain.Account{SalesforceID: &sfID})
		if err != nil {
			return err
		}
		if existing != nil {
			if len(values) == 0 {
				r.entry.Skipped++
				continue
			}
			if err := s.accounts.Update(ctx, r.tenantID, existing.ID, model.Updates(ctx, r.now, values)); err != nil {
				r.fail(err)
				continue
			}
			r.entry.Pulled++
			continue
		}

		name, _ := values["name"].(string)
		if name == "" {
			r.entry.Skipped++
			continue
		}
		account := &accountdomain.Account{
			Base:         model.NewBase(ctx, s.genID.Generate(), r.now),
			Name:         name,
			SalesforceID: &sfID,
		}
		account.Industry, _ = values["industry"].(string)
		account.Website, _ = values["website"].(string)
		account.BillingCountry, _ = values["billing_country"].(string)
		account.OwnerEmail, _ = values["owner_email"].(string)
		if err := s.accounts.Create(ctx, account); err != nil {
			r.fail(err)
			continue
		}
		r.entry.Pulled++
	}
	return nil
}

func (s *Service) pullOpportunities(ctx context.Context, r *syncRun, since *time.Time) error {
	mappings := filterMappings(r.mappings, sfdomain.EntityOpportunity, sfdomain.DirectionPull)
	if len(mappings) == 0 {
		return nil
	}
	records, err := s.query(ctx, r, sfdomain.EntityOpportunity.Object(), selectFields(mappings, "AccountId"), since)
	if err != nil {
		return err
	}
	for _, rec := range records {
		sfID := remoteID(rec)
		if sfID == "" {
			r.entry.Skipped++
			continue
		}
		values := pullValues(mappings, rec)
		existing, err := s.opportunities.FindOne(ctx, r.tenantID, &accountdomain.Opportunity{SalesforceID: &sfID})
		if err != nil {
			return err
		}
		if existing != nil {
			if len(values) == 0 {
				r.entry.Skipped++
				continue
			}
			if err := s.opportunities.Update(ctx, r.tenantID, existing.ID, model.Updates(ctx, r.now, values)); err != nil {
				r.fail(err)
				continue
			}
			r.entry.Pulled++
			continue
		}

		parentID, _ := rec["AccountId"].(string)
		name, _ := values["name"].(string)
		currency, _ := values["currency"].(string)
		if parentID == "" || name == "" || currency == "" {
			r.entry.Skipped++
			continue
		}
		parent, err := s.accounts.FindOne(ctx, r.tenantID, &accountdomain.Account{SalesforceID: &parentID})
		if err != nil {
			return err
		}
		if parent == nil {
			r.entry.Skipped++
			continue
		}
		opp := &accountdomain.Opportunity{
			Base:         model.NewBase(ctx, s.genID.Generate(), r.now),
			AccountID:    parent.ID,
			Name:         name,
			Stage:        accountdomain.StageProspecting,
			Currency:     currency,
			SalesforceID: &sfID,
		}
		if stage, ok := values["stage"].(accountdomain.Stage); ok {
			opp.Stage = stage
		}
		if amount, ok := values["amount"].(decimal.Decimal); ok {
			opp.Amount = amount
		}
		if closeDate, ok := values["close_date"].(time.Time); ok {
			opp.CloseDate = &closeDate
		}
		if err := s.opportunities.Create(ctx, opp); err != nil {
			r.fail(err)
			continue
		}
		r.entry.Pulled++
	}
	return nil
}

func (s *Service) pushAccounts(ctx context.Context, r *syncRun, since *time.Time) error {
	mappings := filterMappings(r.mappings, sfdomain.EntityAccount, sfdomain.DirectionPush)
	if len(mappings) == 0 {
		return nil
	}
	accounts, err := s.accounts.Find(ctx, r.tenantID, &accountdomain.Account{}, changedSince(since)...)
	if err != nil {
		return err
	}
	for _, account := range accounts {
		rec := pushRecord(mappings, func(field string) any { return accountField(account, field) })
		sfID, err := s.upsert(ctx, r, sfdomain.EntityAccount.Object(), account.SalesforceID, rec)
		if err != nil {
			s.log.Warn("push account", zap.String("account_id", account.ID.String()), zap.Error(err))
			r.fail(err)
			continue
		}
		if account.SalesforceID == nil {
			// Linking is not a local edit; keep updated_at so the next push skips it.
			if err := s.accounts.Update(ctx, r.tenantID, account.ID, map[string]any{"salesforce_id": sfID, "updated_at": account.UpdatedAt}); err != nil {
				r.fail(err)
				continue
			}
		}
		r.entry.Pushed++
	}
	return nil
}

func (s *Service) pushOpportunities(ctx context.Context, r *syncRun, since *time.Time) error {
	mappings := filterMappings(r.mappings, sfdomain.EntityOpportunity, sfdomain.DirectionPush)
	if len(mappings) == 0 {
		return nil
	}
	opps, err := s.opportunities.Find(ctx, r.tenantID, &accountdomain.Opportunity{}, changedSince(since)...)
	if err != nil {
		return err
	}
	for _, opp := range opps {
		parent, err := s.accounts.FindByID(ctx, r.tenantID, opp.AccountID)
		if err != nil {
			return err
		}
		if parent == nil || parent.SalesforceID == nil {
			r.entry.Skipped++
			continue
		}
		rec := pushRecord(mappings, func(field string) any { return opportunityField(opp, field) })
		if opp.SalesforceID == nil {
			rec["AccountId"] = *parent.SalesforceID
		}
		sfID, err := s.upsert(ctx, r, sfdomain.EntityOpportunity.Object(), opp.SalesforceID, rec)
		if err != nil {
			s.log.Warn("push opportunity", zap.String("opportunity_id", opp.ID.String()), zap.Error(err))
			r.fail(err)
			continue
		}
		if opp.SalesforceID == nil {
			if err := s.opportunities.Update(ctx, r.tenantID, opp.ID, map[string]any{"salesforce_id": sfID, "updated_at": opp.UpdatedAt}); err != nil {
				r.fail(err)
				continue
			}
		}
		r.entry.Pushed++
	}
	return nil
}

// upsert updates the linked record or creates one, returning its id.
func (s *Service) upsert(ctx context.Context, r *syncRun, object string, sfID *string, rec sfclient.Record) (string, error) {
	if sfID != nil {
		err := r.client.Update(ctx, object, *sfID, rec)
		s.metrics.RecordExternalCall(ctx, "salesforce", "update", callStatus(err))
		return *sfID, err
	}
	id, err := r.client.Create(ctx, object, rec)
	s.metrics.RecordExternalCall(ctx, "salesforce", "create", callStatus(err))
	return id, err
}

func changedSince(since *time.Time) []option.QueryOption {
	opts := []option.QueryOption{option.WithSortBy(option.WithQuerySortBy("created_at", "asc", map[string]bool{"created_at": true}))}
	if since != nil {
		opts = append(opts, option.ApplyOperator(option.Condition{Field: "updated_at", Operator: option.GTE, Value: *since}))
	}
	return opts
}

func hasMappings(mappings []*sfdomain.FieldMapping, direction sfdomain.Direction) bool {
	for _, m := range mappings {
		if m.Direction.Includes(direction) || direction == sfdomain.DirectionBoth {
			return true
		}
	}
	return false
}

func callStatus(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "error"
	}
}
