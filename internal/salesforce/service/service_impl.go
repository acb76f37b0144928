package service

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"strings"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/smallbiznis/pricedesk/internal/account/domain"
	auditdomain "github.com/smallbiznis/pricedesk/internal/audit/domain"
	"github.com/smallbiznis/pricedesk/internal/audit/masking"
	"github.com/smallbiznis/pricedesk/internal/clock"
	"github.com/smallbiznis/pricedesk/internal/observability/metrics"
	sfclient "github.com/smallbiznis/pricedesk/internal/providers/salesforce"
	"github.com/smallbiznis/pricedesk/internal/providers/secrets"
	"github.com/smallbiznis/pricedesk/internal/ratelimit"
	sfdomain "github.com/smallbiznis/pricedesk/internal/salesforce/domain"
	"github.com/smallbiznis/pricedesk/internal/tenantcontext"
	"github.com/smallbiznis/pricedesk/pkg/db"
	"github.com/smallbiznis/pricedesk/pkg/db/model"
	"github.com/smallbiznis/pricedesk/pkg/db/option"
	"github.com/smallbiznis/pricedesk/pkg/db/pagination"
	"github.com/smallbiznis/pricedesk/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// secretKey is the entry holding Salesforce credentials inside the tenant
// secret blob.
const secretKey = "salesforce"

var remoteFieldPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]{0,79}$`)

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	GenID         *snowflake.Node
	Clock         clock.Clock
	Mappings      repository.Repository[sfdomain.FieldMapping]
	Logs          repository.Repository[sfdomain.SyncLog]
	Accounts      repository.Repository[accountdomain.Account]
	Opportunities repository.Repository[accountdomain.Opportunity]
	Secrets       secrets.Store
	Factory       sfclient.Factory
	Lock          *ratelimit.SyncLock
	Metrics       *metrics.Metrics `optional:"true"`
	AuditSvc      auditdomain.Service
}

type Service struct {
	db            *gorm.DB
	log           *zap.Logger
	genID         *snowflake.Node
	clock         clock.Clock
	mappings      repository.Repository[sfdomain.FieldMapping]
	logs          repository.Repository[sfdomain.SyncLog]
	accounts      repository.Repository[accountdomain.Account]
	opportunities repository.Repository[accountdomain.Opportunity]
	secrets       secrets.Store
	factory       sfclient.Factory
	lock          *ratelimit.SyncLock
	metrics       *metrics.Metrics
	auditSvc      auditdomain.Service
}

func New(p Params) sfdomain.Service {
	return &Service{
		db:            p.DB,
		log:           p.Log.Named("salesforce.service"),
		genID:         p.GenID,
		clock:         p.Clock,
		mappings:      p.Mappings,
		logs:          p.Logs,
		accounts:      p.Accounts,
		opportunities: p.Opportunities,
		secrets:       p.Secrets,
		factory:       p.Factory,
		lock:          p.Lock,
		metrics:       p.Metrics,
		auditSvc:      p.AuditSvc,
	}
}

func (s *Service) GetCredentials(ctx context.Context) (*sfdomain.CredentialsResponse, error) {
	tenantID, err := s.tenantIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	creds, err := s.loadCredentials(ctx, tenantID)
	if err != nil {
		if errors.Is(err, sfdomain.ErrNotConfigured) {
			return &sfdomain.CredentialsResponse{Configured: false}, nil
		}
		return nil, err
	}
	return maskCredentials(creds), nil
}

func (s *Service) PutCredentials(ctx context.Context, req sfdomain.CredentialsRequest) (*sfdomain.CredentialsResponse, error) {
	tenantID, err := s.tenantIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	creds := sfclient.Credentials{
		ClientID:     strings.TrimSpace(req.ClientID),
		ClientSecret: strings.TrimSpace(req.ClientSecret),
		RefreshToken: strings.TrimSpace(req.RefreshToken),
		InstanceURL:  strings.TrimSuffix(strings.TrimSpace(req.InstanceURL), "/"),
	}
	if err := creds.Validate(); err != nil {
		return nil, sfdomain.ErrInvalidCredentials
	}

	blob := map[string]json.RawMessage{}
	if err := s.secrets.GetTenantJSON(ctx, tenantID, &blob); err != nil && !errors.Is(err, secrets.ErrSecretNotFound) {
		return nil, err
	}
	raw, err := json.Marshal(creds)
	if err != nil {
		return nil, err
	}
	blob[secretKey] = raw
	if err := s.secrets.PutTenantJSON(ctx, tenantID, blob); err != nil {
		return nil, err
	}

	if err := s.auditSvc.Record(ctx, nil, auditdomain.Entry{
		Action:     "salesforce.credentials.update",
		TargetType: "tenant",
		TargetID:   tenantID.String(),
		Metadata: masking.MaskCredentials(map[string]any{
			"client_id":     creds.ClientID,
			"client_secret": creds.ClientSecret,
			"refresh_token": creds.RefreshToken,
			"instance_url":  creds.InstanceURL,
		}),
	}); err != nil {
		return nil, err
	}
	s.log.Info("salesforce credentials updated", zap.String("tenant_id", tenantID.String()))
	return maskCredentials(&creds), nil
}

func (s *Service) loadCredentials(ctx context.Context, tenantID snowflake.ID) (*sfclient.Credentials, error) {
	blob := map[string]json.RawMessage{}
	if err := s.secrets.GetTenantJSON(ctx, tenantID, &blob); err != nil {
		if errors.Is(err, secrets.ErrSecretNotFound) {
			return nil, sfdomain.ErrNotConfigured
		}
		return nil, err
	}
	raw, ok := blob[secretKey]
	if !ok {
		return nil, sfdomain.ErrNotConfigured
	}
	var creds sfclient.Credentials
	if err := json.Unmarshal(raw, &creds); err != nil {
		return nil, sfdomain.ErrInvalidCredentials
	}
	return &creds, nil
}

func maskCredentials(c *sfclient.Credentials) *sfdomain.CredentialsResponse {
	return &sfdomain.CredentialsResponse{
		Configured:   true,
		ClientID:     c.ClientID,
		ClientSecret: masking.MaskSecret(c.ClientSecret),
		RefreshToken: masking.MaskSecret(c.RefreshToken),
		InstanceURL:  c.InstanceURL,
	}
}

func (s *Service) ListMappings(ctx context.Context, req sfdomain.ListMappingsRequest) ([]sfdomain.MappingResponse, error) {
	tenantID, err := s.tenantIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	filter := &sfdomain.FieldMapping{}
	if entity := strings.TrimSpace(req.Entity); entity != "" {
		if filter.Entity, err = parseEntity(entity); err != nil {
			return nil, err
		}
	}
	items, err := s.mappings.Find(ctx, tenantID, filter,
		option.WithSortBy(option.WithQuerySortBy("local_field", "asc", map[string]bool{"local_field": true})),
	)
	if err != nil {
		return nil, err
	}
	out := make([]sfdomain.MappingResponse, 0, len(items))
	for _, item := range items {
		out = append(out, toMappingResponse(item))
	}
	return out, nil
}

func (s *Service) CreateMapping(ctx context.Context, req sfdomain.MappingRequest) (*sfdomain.MappingResponse, error) {
	tenantID, err := s.tenantIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	entity, err := parseEntity(req.Entity)
	if err != nil {
		return nil, err
	}
	local := strings.ToLower(strings.TrimSpace(req.LocalField))
	if !sfdomain.IsLocalField(entity, local) {
		return nil, sfdomain.ErrInvalidLocalField
	}
	remote := strings.TrimSpace(req.RemoteField)
	if !remoteFieldPattern.MatchString(remote) {
		return nil, sfdomain.ErrInvalidRemoteField
	}
	direction := sfdomain.Direction(strings.ToLower(strings.TrimSpace(req.Direction)))
	if !direction.Valid() {
		return nil, sfdomain.ErrInvalidDirection
	}

	existing, err := s.mappings.FindOne(ctx, tenantID, &sfdomain.FieldMapping{Entity: entity, LocalField: local})
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, sfdomain.ErrMappingExists
	}

	mapping := &sfdomain.FieldMapping{
		Base:        model.NewBase(ctx, s.genID.Generate(), s.clock.Now()),
		Entity:      entity,
		LocalField:  local,
		RemoteField: remote,
		Direction:   direction,
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.mappings.WithTrx(tx).Create(ctx, mapping); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return sfdomain.ErrMappingExists
			}
			return err
		}
		return s.audit(ctx, tx, "salesforce.mapping.create", mapping.ID, map[string]any{
			"entity":       string(entity),
			"local_field":  local,
			"remote_field": remote,
			"direction":    string(direction),
		})
	})
	if err != nil {
		return nil, err
	}
	resp := toMappingResponse(mapping)
	return &resp, nil
}

func (s *Service) UpdateMapping(ctx context.Context, id string, req sfdomain.UpdateMappingRequest) (*sfdomain.MappingResponse, error) {
	tenantID, mappingID, err := s.parse(ctx, id)
	if err != nil {
		return nil, err
	}
	mapping, err := s.loadMapping(ctx, tenantID, mappingID)
	if err != nil {
		return nil, err
	}

	values := map[string]any{}
	if req.RemoteField != nil {
		remote := strings.TrimSpace(*req.RemoteField)
		if !remoteFieldPattern.MatchString(remote) {
			return nil, sfdomain.ErrInvalidRemoteField
		}
		values["remote_field"] = remote
		mapping.RemoteField = remote
	}
	if req.Direction != nil {
		direction := sfdomain.Direction(strings.ToLower(strings.TrimSpace(*req.Direction)))
		if !direction.Valid() {
			return nil, sfdomain.ErrInvalidDirection
		}
		values["direction"] = direction
		mapping.Direction = direction
	}
	if len(values) == 0 {
		resp := toMappingResponse(mapping)
		return &resp, nil
	}

	now := s.clock.Now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.mappings.WithTrx(tx).Update(ctx, tenantID, mappingID, model.Updates(ctx, now, values)); err != nil {
			return err
		}
		return s.audit(ctx, tx, "salesforce.mapping.update", mappingID, map[string]any{
			"remote_field": mapping.RemoteField,
			"direction":    string(mapping.Direction),
		})
	})
	if err != nil {
		return nil, err
	}
	mapping.UpdatedAt = now
	resp := toMappingResponse(mapping)
	return &resp, nil
}

func (s *Service) DeleteMapping(ctx context.Context, id string) error {
	tenantID, mappingID, err := s.parse(ctx, id)
	if err != nil {
		return err
	}
	if _, err := s.loadMapping(ctx, tenantID, mappingID); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.mappings.WithTrx(tx).SoftDelete(ctx, tenantID, mappingID, tenantcontext.ActorRef(ctx)); err != nil {
			return err
		}
		return s.audit(ctx, tx, "salesforce.mapping.delete", mappingID, nil)
	})
}

func (s *Service) ListSyncLogs(ctx context.Context, req sfdomain.ListSyncLogsRequest) (*sfdomain.ListSyncLogsResponse, error) {
	tenantID, err := s.tenantIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := pagination.DecodeBeforeID(req.PageToken); err != nil {
		return nil, sfdomain.ErrInvalidPageToken
	}
	filter := &sfdomain.SyncLog{Status: sfdomain.SyncStatus(strings.TrimSpace(req.Status))}
	items, err := s.logs.Find(ctx, tenantID, filter,
		option.WithSortBy(option.QuerySortBy{}),
		option.ApplyPagination(req.Pagination),
	)
	if err != nil {
		return nil, err
	}
	items, pageInfo := pagination.Trim(items, req.PageSize, func(l *sfdomain.SyncLog) string { return l.ID.String() })

	resp := &sfdomain.ListSyncLogsResponse{PageInfo: pageInfo, Logs: make([]sfdomain.SyncLogResponse, 0, len(items))}
	for _, item := range items {
		resp.Logs = append(resp.Logs, toSyncLogResponse(item))
	}
	return resp, nil
}

func (s *Service) GetSyncLog(ctx context.Context, id string) (*sfdomain.SyncLogResponse, error) {
	tenantID, logID, err := s.parse(ctx, id)
	if err != nil {
		return nil, err
	}
	item, err := s.logs.FindByID(ctx, tenantID, logID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, sfdomain.ErrNotFound
	}
	resp := toSyncLogResponse(item)
	return &resp, nil
}

func (s *Service) loadMapping(ctx context.Context, tenantID, id snowflake.ID) (*sfdomain.FieldMapping, error) {
	mapping, err := s.mappings.FindByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if mapping == nil {
		return nil, sfdomain.ErrNotFound
	}
	return mapping, nil
}

func (s *Service) audit(ctx context.Context, tx *gorm.DB, action string, id snowflake.ID, metadata map[string]any) error {
	targetType := "salesforce_field_mapping"
	if strings.HasPrefix(action, "salesforce.sync") {
		targetType = "salesforce_sync_log"
	}
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
	parsed, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || parsed == 0 {
		return 0, 0, sfdomain.ErrInvalidID
	}
	return tenantID, parsed, nil
}

func (s *Service) tenantIDFromContext(ctx context.Context) (snowflake.ID, error) {
	tenantID, ok := tenantcontext.TenantIDFromContext(ctx)
	if !ok {
		return 0, sfdomain.ErrInvalidTenant
	}
	return tenantID, nil
}

func parseEntity(value string) (sfdomain.Entity, error) {
	entity := sfdomain.Entity(strings.ToLower(strings.TrimSpace(value)))
	if entity.Object() == "" {
		return "", sfdomain.ErrInvalidEntity
	}
	return entity, nil
}

func toMappingResponse(m *sfdomain.FieldMapping) sfdomain.MappingResponse {
	return sfdomain.MappingResponse{
		ID:          m.ID.String(),
		Entity:      m.Entity,
		Object:      m.Entity.Object(),
		LocalField:  m.LocalField,
		RemoteField: m.RemoteField,
		Direction:   m.Direction,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

func toSyncLogResponse(l *sfdomain.SyncLog) sfdomain.SyncLogResponse {
	return sfdomain.SyncLogResponse{
		ID:         l.ID.String(),
		Direction:  l.Direction,
		Status:     l.Status,
		StartedAt:  l.StartedAt,
		FinishedAt: l.FinishedAt,
		Pulled:     l.Pulled,
		Pushed:     l.Pushed,
		Skipped:    l.Skipped,
		Failed:     l.Failed,
		Error:      l.Error,
	}
}
