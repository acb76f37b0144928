package service

import (
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/pricedesk/internal/audit/domain"
	"github.com/smallbiznis/pricedesk/internal/clock"
	"github.com/smallbiznis/pricedesk/internal/providers/identity"
	rbacdomain "github.com/smallbiznis/pricedesk/internal/rbac/domain"
	"github.com/smallbiznis/pricedesk/internal/tenantcontext"
	userdomain "github.com/smallbiznis/pricedesk/internal/user/domain"
	"github.com/smallbiznis/pricedesk/pkg/db"
	"github.com/smallbiznis/pricedesk/pkg/db/model"
	"github.com/smallbiznis/pricedesk/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Repo      userdomain.Repository
	Directory identity.Directory
	RBAC      rbacdomain.Service
	AuditSvc  auditdomain.Service
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	repo      userdomain.Repository
	directory identity.Directory
	rbac      rbacdomain.Service
	auditSvc  auditdomain.Service
}

func New(p Params) userdomain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("user.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		repo:      p.Repo,
		directory: p.Directory,
		rbac:      p.RBAC,
		auditSvc:  p.AuditSvc,
	}
}

func (s *Service) ResolveSubject(ctx context.Context, subject string) (*userdomain.Principal, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return nil, userdomain.ErrUnknownSubject
	}
	user, err := s.repo.FindByExternalID(ctx, s.db, subject)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, userdomain.ErrUnknownSubject
	}

	switch user.Status {
	case userdomain.StatusDisabled:
		return nil, userdomain.ErrUserDisabled
	case userdomain.StatusInvited:
		err := s.repo.Update(ctx, s.db, user.TenantID, user.ID, map[string]any{
			"status":     userdomain.StatusActive,
			"updated_at": s.clock.Now(),
		})
		if err != nil {
			return nil, err
		}
		s.log.Info("invited user signed in", zap.String("user_id", user.ID.String()))
	}

	return &userdomain.Principal{UserID: user.ID, TenantID: user.TenantID, Email: user.Email}, nil
}

func (s *Service) Me(ctx context.Context) (*userdomain.Response, error) {
	tenantID, err := s.tenantIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	actorID, ok := tenantcontext.ActorIDFromContext(ctx)
	if !ok {
		return nil, userdomain.ErrNotFound
	}
	user, err := s.load(ctx, s.db, tenantID, actorID)
	if err != nil {
		return nil, err
	}
	return toResponse(user), nil
}

func (s *Service) List(ctx context.Context, req userdomain.ListRequest) (*userdomain.ListResponse, error) {
	tenantID, err := s.tenantIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	beforeID, err := pagination.DecodeBeforeID(req.PageToken)
	if err != nil {
		return nil, userdomain.ErrInvalidPageToken
	}
	if req.Status != "" && !validStatus(userdomain.Status(req.Status)) {
		return nil, userdomain.ErrInvalidStatus
	}

	pageSize := pagination.Size(req.PageSize)
	items, err := s.repo.List(ctx, s.db, tenantID, userdomain.ListFilter{
		Status:   req.Status,
		Email:    strings.TrimSpace(req.Email),
		BeforeID: beforeID,
		Limit:    pageSize,
	})
	if err != nil {
		return nil, err
	}

	items, pageInfo := pagination.Trim(items, pageSize, func(u userdomain.User) string { return u.ID.String() })
	resp := &userdomain.ListResponse{PageInfo: pageInfo, Users: make([]userdomain.Response, 0, len(items))}
	for i := range items {
		resp.Users = append(resp.Users, *toResponse(&items[i]))
	}
	return resp, nil
}

func (s *Service) Get(ctx context.Context, id string) (*userdomain.Response, error) {
	tenantID, userID, err := s.parse(ctx, id)
	if err != nil {
		return nil, err
	}
	user, err := s.load(ctx, s.db, tenantID, userID)
	if err != nil {
		return nil, err
	}
	return toResponse(user), nil
}

func (s *Service) Invite(ctx context.Context, req userdomain.InviteRequest) (*userdomain.Response, error) {
	tenantID, err := s.tenantIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, userdomain.ErrInvalidEmail
	}
	if err := s.checkRoles(ctx, req.Roles); err != nil {
		return nil, err
	}

	existing, err := s.repo.FindByEmail(ctx, s.db, tenantID, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, userdomain.ErrUserExists
	}

	invited, err := s.directory.InviteUser(ctx, email, req.Name)
	if err != nil {
		s.log.Warn("identity invite failed", zap.String("email", email), zap.Error(err))
		return nil, err
	}

	user := &userdomain.User{
		Base:       model.NewBase(ctx, s.genID.Generate(), s.clock.Now()),
		ExternalID: invited.Subject,
		Email:      email,
		Username:   invited.Username,
		Name:       firstNonEmpty(strings.TrimSpace(req.Name), invited.Name),
		Status:     userdomain.StatusInvited,
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Insert(ctx, tx, user); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return userdomain.ErrUserExists
			}
			return err
		}
		return s.auditSvc.Record(ctx, tx, auditdomain.Entry{
			Action:     "user.invite",
			TargetType: "user",
			TargetID:   user.ID.String(),
			Metadata:   map[string]any{"email": email, "roles": req.Roles},
		})
	})
	if err != nil {
		return nil, err
	}

	for _, role := range req.Roles {
		if err := s.rbac.AssignRole(ctx, user.ID.String(), role); err != nil {
			return nil, err
		}
	}
	return toResponse(user), nil
}

func (s *Service) Update(ctx context.Context, id string, req userdomain.UpdateRequest) (*userdomain.Response, error) {
	tenantID, userID, err := s.parse(ctx, id)
	if err != nil {
		return nil, err
	}

	values := map[string]any{}
	if req.Name != nil {
		values["name"] = strings.TrimSpace(*req.Name)
	}
	if req.Status != nil {
		if !validStatus(*req.Status) {
			return nil, userdomain.ErrInvalidStatus
		}
		values["status"] = *req.Status
	}

	var user *userdomain.User
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.load(ctx, tx, tenantID, userID); err != nil {
			return err
		}
		if len(values) > 0 {
			if err := s.repo.Update(ctx, tx, tenantID, userID, model.Updates(ctx, s.clock.Now(), values)); err != nil {
				return err
			}
		}
		user, err = s.load(ctx, tx, tenantID, userID)
		if err != nil {
			return err
		}
		return s.auditSvc.Record(ctx, tx, auditdomain.Entry{
			Action:     "user.update",
			TargetType: "user",
			TargetID:   userID.String(),
			Metadata:   map[string]any{"status": string(user.Status)},
		})
	})
	if err != nil {
		return nil, err
	}
	return toResponse(user), nil
}

// Sync refreshes profile and status from the identity provider. A user
// removed from the provider is disabled.
func (s *Service) Sync(ctx context.Context, id string) (*userdomain.Response, error) {
	tenantID, userID, err := s.parse(ctx, id)
	if err != nil {
		return nil, err
	}
	user, err := s.load(ctx, s.db, tenantID, userID)
	if err != nil {
		return nil, err
	}

	username := firstNonEmpty(user.Username, user.Email)
	remote, err := s.directory.GetUser(ctx, username)
	values := map[string]any{}
	switch {
	case errors.Is(err, identity.ErrUserNotFound):
		values["status"] = userdomain.StatusDisabled
	case err != nil:
		return nil, err
	default:
		if remote.Email != "" {
			values["email"] = strings.ToLower(remote.Email)
		}
		if remote.Name != "" {
			values["name"] = remote.Name
		}
		if remote.Username != "" {
			values["username"] = remote.Username
		}
		if !remote.Enabled {
			values["status"] = userdomain.StatusDisabled
		} else if user.Status == userdomain.StatusDisabled {
			values["status"] = userdomain.StatusActive
		}
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Update(ctx, tx, tenantID, userID, model.Updates(ctx, s.clock.Now(), values)); err != nil {
			return err
		}
		user, err = s.load(ctx, tx, tenantID, userID)
		if err != nil {
			return err
		}
		return s.auditSvc.Record(ctx, tx, auditdomain.Entry{
			Action:     "user.sync",
			TargetType: "user",
			TargetID:   userID.String(),
			Metadata:   map[string]any{"status": string(user.Status)},
		})
	})
	if err != nil {
		return nil, err
	}
	return toResponse(user), nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	tenantID, userID, err := s.parse(ctx, id)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.load(ctx, tx, tenantID, userID); err != nil {
			return err
		}
		values := model.Updates(ctx, s.clock.Now(), map[string]any{"is_deleted": true})
		if err := s.repo.Update(ctx, tx, tenantID, userID, values); err != nil {
			return err
		}
		return s.auditSvc.Record(ctx, tx, auditdomain.Entry{
			Action:     "user.delete",
			TargetType: "user",
			TargetID:   userID.String(),
		})
	})
}

func (s *Service) Emails(ctx context.Context, ids []snowflake.ID) ([]string, error) {
	tenantID, err := s.tenantIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	users, err := s.repo.FindByIDs(ctx, s.db, tenantID, ids)
	if err != nil {
		return nil, err
	}
	emails := make([]string, 0, len(users))
	for _, u := range users {
		if u.Status == userdomain.StatusDisabled || slices.Contains(emails, u.Email) {
			continue
		}
		emails = append(emails, u.Email)
	}
	return emails, nil
}

func (s *Service) checkRoles(ctx context.Context, roles []string) error {
	if len(roles) == 0 {
		return nil
	}
	existing, err := s.rbac.ListRoles(ctx)
	if err != nil {
		return err
	}
	for _, role := range roles {
		name := strings.ToLower(strings.TrimSpace(role))
		found := slices.ContainsFunc(existing, func(r rbacdomain.RoleResponse) bool { return r.Name == name })
		if !found {
			return userdomain.ErrInvalidRole
		}
	}
	return nil
}

func (s *Service) load(ctx context.Context, conn *gorm.DB, tenantID, id snowflake.ID) (*userdomain.User, error) {
	user, err := s.repo.FindByID(ctx, conn, tenantID, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, userdomain.ErrNotFound
	}
	return user, nil
}

func (s *Service) parse(ctx context.Context, id string) (snowflake.ID, snowflake.ID, error) {
	tenantID, err := s.tenantIDFromContext(ctx)
	if err != nil {
		return 0, 0, err
	}
	userID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || userID == 0 {
		return 0, 0, userdomain.ErrInvalidID
	}
	return tenantID, userID, nil
}

func (s *Service) tenantIDFromContext(ctx context.Context) (snowflake.ID, error) {
	tenantID, ok := tenantcontext.TenantIDFromContext(ctx)
	if !ok {
		return 0, userdomain.ErrInvalidTenant
	}
	return tenantID, nil
}

func validStatus(status userdomain.Status) bool {
	switch status {
	case userdomain.StatusInvited, userdomain.StatusActive, userdomain.StatusDisabled:
		return true
	default:
		return false
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func toResponse(u *userdomain.User) *userdomain.Response {
	return &userdomain.Response{
		ID:         u.ID.String(),
		TenantID:   u.TenantID.String(),
		ExternalID: u.ExternalID,
		Email:      u.Email,
		Username:   u.Username,
		Name:       u.Name,
		Status:     u.Status,
		CreatedAt:  u.CreatedAt,
		UpdatedAt:  u.UpdatedAt,
	}
}
