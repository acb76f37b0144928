package service

import (
	"context"
	"slices"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/pricedesk/internal/audit/domain"
	"github.com/smallbiznis/pricedesk/internal/clock"
	rbacdomain "github.com/smallbiznis/pricedesk/internal/rbac/domain"
	"github.com/smallbiznis/pricedesk/internal/tenantcontext"
	"github.com/smallbiznis/pricedesk/pkg/db"
	"github.com/smallbiznis/pricedesk/pkg/db/model"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Repo     rbacdomain.Repository
	AuditSvc auditdomain.Service
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	repo     rbacdomain.Repository
	auditSvc auditdomain.Service
}

func New(p Params) rbacdomain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("rbac.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		repo:     p.Repo,
		auditSvc: p.AuditSvc,
	}
}

// EnsureFeatures keeps rbac_features in line with the catalogue.
func EnsureFeatures(lc fx.Lifecycle, conn *gorm.DB, clk clock.Clock, repo rbacdomain.Repository) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			features := make([]rbacdomain.Feature, 0, len(rbacdomain.Catalogue))
			now := clk.Now()
			for _, f := range rbacdomain.Catalogue {
				f.CreatedAt = now
				features = append(features, f)
			}
			return repo.EnsureFeatures(ctx, conn, features)
		},
	})
}

func (s *Service) Resolve(ctx context.Context, userID snowflake.ID) (*rbacdomain.Resolution, error) {
	tenantID, err := s.tenantIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	return s.resolve(ctx, tenantID, userID)
}

func (s *Service) Authorize(ctx context.Context, userID snowflake.ID, feature, method string) error {
	tenantID, err := s.tenantIDFromContext(ctx)
	if err != nil {
		return err
	}
	domain := rbacdomain.TenantDomain(tenantID)
	rules, err := s.repo.ListRules(ctx, s.db, domain)
	if err != nil {
		return err
	}
	e, err := newEnforcer(rules)
	if err != nil {
		return err
	}
	allowed, err := e.Enforce(rbacdomain.UserSubject(userID), domain, feature, strings.ToUpper(method))
	if err != nil {
		return err
	}
	if !allowed {
		return rbacdomain.ErrForbidden
	}
	return nil
}

func (s *Service) resolve(ctx context.Context, tenantID, userID snowflake.ID) (*rbacdomain.Resolution, error) {
	domain := rbacdomain.TenantDomain(tenantID)
	rules, err := s.repo.ListRules(ctx, s.db, domain)
	if err != nil {
		return nil, err
	}
	e, err := newEnforcer(rules)
	if err != nil {
		return nil, err
	}

	subject := rbacdomain.UserSubject(userID)
	roleSubjects := make([]string, 0)
	for _, rule := range rules {
		if rule.Ptype != rbacdomain.PtypeGrouping || rule.V0 != subject || rule.V2 != domain {
			continue
		}
		if !slices.Contains(roleSubjects, rule.V1) {
			roleSubjects = append(roleSubjects, rule.V1)
		}
	}

	perms := rbacdomain.Permissions{}
	for _, role := range roleSubjects {
		policies, err := e.GetFilteredPolicy(0, role, domain)
		if err != nil {
			return nil, err
		}
		mergePolicies(perms, policies)
	}
	direct, err := e.GetFilteredPolicy(0, subject, domain)
	if err != nil {
		return nil, err
	}
	mergePolicies(perms, direct)

	roles := make([]string, 0, len(roleSubjects))
	for _, role := range roleSubjects {
		roles = append(roles, strings.TrimPrefix(role, "role:"))
	}
	return &rbacdomain.Resolution{Permissions: perms, Roles: roles}, nil
}

// mergePolicies appends feature methods in first-seen order.
func mergePolicies(perms rbacdomain.Permissions, policies [][]string) {
	for _, policy := range policies {
		if len(policy) < 4 {
			continue
		}
		feature, method := policy[2], policy[3]
		if slices.Contains(perms[feature], method) {
			continue
		}
		perms[feature] = append(perms[feature], method)
	}
}

func (s *Service) ListFeatures(ctx context.Context) ([]rbacdomain.Feature, error) {
	return s.repo.ListFeatures(ctx, s.db)
}

func (s *Service) CreateRole(ctx context.Context, req rbacdomain.RoleRequest) (*rbacdomain.RoleResponse, error) {
	tenantID, err := s.tenantIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	name, err := normalizeRoleName(req.Name)
	if err != nil {
		return nil, err
	}
	perms, err := normalizePermissions(req.Permissions)
	if err != nil {
		return nil, err
	}

	role := &rbacdomain.Role{
		Base:        model.NewBase(ctx, s.genID.Generate(), s.clock.Now()),
		Name:        name,
		Description: strings.TrimSpace(req.Description),
	}
	domain := rbacdomain.TenantDomain(tenantID)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.repo.FindRoleByName(ctx, tx, tenantID, name)
		if err != nil {
			return err
		}
		if existing != nil {
			return rbacdomain.ErrRoleExists
		}
		if err := s.repo.InsertRole(ctx, tx, role); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return rbacdomain.ErrRoleExists
			}
			return err
		}
		if err := s.repo.InsertRules(ctx, tx, policyRules(rbacdomain.RoleSubject(name), domain, perms)); err != nil {
			return err
		}
		return s.auditSvc.Record(ctx, tx, auditdomain.Entry{
			Action:     "rbac.role.create",
			TargetType: "rbac_role",
			TargetID:   role.ID.String(),
			Metadata:   map[string]any{"name": name},
		})
	})
	if err != nil {
		return nil, err
	}
	return s.toRoleResponse(role, perms), nil
}

func (s *Service) ListRoles(ctx context.Context) ([]rbacdomain.RoleResponse, error) {
	tenantID, err := s.tenantIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	roles, err := s.repo.ListRoles(ctx, s.db, tenantID)
	if err != nil {
		return nil, err
	}
	rules, err := s.repo.ListRules(ctx, s.db, rbacdomain.TenantDomain(tenantID))
	if err != nil {
		return nil, err
	}

	resp := make([]rbacdomain.RoleResponse, 0, len(roles))
	for i := range roles {
		perms := permissionsOf(rules, rbacdomain.RoleSubject(roles[i].Name))
		resp = append(resp, *s.toRoleResponse(&roles[i], perms))
	}
	return resp, nil
}

func (s *Service) GetRole(ctx context.Context, id string) (*rbacdomain.RoleResponse, error) {
	tenantID, role, err := s.loadRole(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	rules, err := s.repo.ListRules(ctx, s.db, rbacdomain.TenantDomain(tenantID))
	if err != nil {
		return nil, err
	}
	return s.toRoleResponse(role, permissionsOf(rules, rbacdomain.RoleSubject(role.Name))), nil
}

func (s *Service) UpdateRole(ctx context.Context, id string, req rbacdomain.RoleRequest) (*rbacdomain.RoleResponse, error) {
	var (
		role  *rbacdomain.Role
		perms rbacdomain.Permissions
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tenantID, current, err := s.loadRole(ctx, tx, id)
		if err != nil {
			return err
		}
		domain := rbacdomain.TenantDomain(tenantID)

		name := current.Name
		if strings.TrimSpace(req.Name) != "" {
			name, err = normalizeRoleName(req.Name)
			if err != nil {
				return err
			}
		}
		if name != current.Name {
			if current.Name == rbacdomain.AdminRole {
				return rbacdomain.ErrRoleProtected
			}
			existing, err := s.repo.FindRoleByName(ctx, tx, tenantID, name)
			if err != nil {
				return err
			}
			if existing != nil {
				return rbacdomain.ErrRoleExists
			}
		}

		rules, err := s.repo.ListRules(ctx, tx, domain)
		if err != nil {
			return err
		}
		perms = permissionsOf(rules, rbacdomain.RoleSubject(current.Name))
		if req.Permissions != nil {
			perms, err = normalizePermissions(req.Permissions)
			if err != nil {
				return err
			}
		}

		values := map[string]any{"name": name}
		if req.Description != "" {
			values["description"] = strings.TrimSpace(req.Description)
		}
		if err := s.repo.UpdateRole(ctx, tx, tenantID, current.ID, model.Updates(ctx, s.clock.Now(), values)); err != nil {
			return err
		}

		if err := s.repo.DeletePolicies(ctx, tx, rbacdomain.RoleSubject(current.Name), domain); err != nil {
			return err
		}
		if err := s.repo.InsertRules(ctx, tx, policyRules(rbacdomain.RoleSubject(name), domain, perms)); err != nil {
			return err
		}
		if name != current.Name {
			if err := s.renameMemberships(ctx, tx, rules, current.Name, name, domain); err != nil {
				return err
			}
		}

		role, err = s.repo.FindRoleByID(ctx, tx, tenantID, current.ID)
		if err != nil {
			return err
		}
		return s.auditSvc.Record(ctx, tx, auditdomain.Entry{
			Action:     "rbac.role.update",
			TargetType: "rbac_role",
			TargetID:   current.ID.String(),
			Metadata:   map[string]any{"name": name, "previous_name": current.Name},
		})
	})
	if err != nil {
		return nil, err
	}
	return s.toRoleResponse(role, perms), nil
}

func (s *Service) renameMemberships(ctx context.Context, tx *gorm.DB, rules []rbacdomain.Rule, from, to, domain string) error {
	fromSubject := rbacdomain.RoleSubject(from)
	members := make([]rbacdomain.Rule, 0)
	for _, rule := range rules {
		if rule.Ptype == rbacdomain.PtypeGrouping && rule.V1 == fromSubject {
			members = append(members, groupingRule(rule.V0, rbacdomain.RoleSubject(to), domain))
		}
	}
	if err := s.repo.DeleteGroupingForRole(ctx, tx, fromSubject, domain); err != nil {
		return err
	}
	return s.repo.InsertRules(ctx, tx, members)
}

func (s *Service) DeleteRole(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tenantID, role, err := s.loadRole(ctx, tx, id)
		if err != nil {
			return err
		}
		if role.Name == rbacdomain.AdminRole {
			return rbacdomain.ErrRoleProtected
		}
		domain := rbacdomain.TenantDomain(tenantID)
		subject := rbacdomain.RoleSubject(role.Name)

		if err := s.repo.UpdateRole(ctx, tx, tenantID, role.ID, model.Updates(ctx, s.clock.Now(), map[string]any{"is_deleted": true})); err != nil {
			return err
		}
		if err := s.repo.DeletePolicies(ctx, tx, subject, domain); err != nil {
			return err
		}
		if err := s.repo.DeleteGroupingForRole(ctx, tx, subject, domain); err != nil {
			return err
		}
		return s.auditSvc.Record(ctx, tx, auditdomain.Entry{
			Action:     "rbac.role.delete",
			TargetType: "rbac_role",
			TargetID:   role.ID.String(),
			Metadata:   map[string]any{"name": role.Name},
		})
	})
}

func (s *Service) SetRolePermissions(ctx context.Context, id string, perms rbacdomain.Permissions) (*rbacdomain.RoleResponse, error) {
	if perms == nil {
		perms = rbacdomain.Permissions{}
	}
	return s.UpdateRole(ctx, id, rbacdomain.RoleRequest{Permissions: perms})
}

func (s *Service) AssignRole(ctx context.Context, userID string, roleName string) error {
	tenantID, uid, err := s.parseUser(ctx, userID)
	if err != nil {
		return err
	}
	name, err := normalizeRoleName(roleName)
	if err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.ensureUser(ctx, tx, tenantID, uid); err != nil {
			return err
		}
		role, err := s.repo.FindRoleByName(ctx, tx, tenantID, name)
		if err != nil {
			return err
		}
		if role == nil {
			return rbacdomain.ErrNotFound
		}
		domain := rbacdomain.TenantDomain(tenantID)
		rule := groupingRule(rbacdomain.UserSubject(uid), rbacdomain.RoleSubject(name), domain)
		if err := s.repo.InsertRules(ctx, tx, []rbacdomain.Rule{rule}); err != nil {
			return err
		}
		return s.auditSvc.Record(ctx, tx, auditdomain.Entry{
			Action:     "rbac.role.assign",
			TargetType: "user",
			TargetID:   uid.String(),
			Metadata:   map[string]any{"role": name},
		})
	})
}

func (s *Service) RevokeRole(ctx context.Context, userID string, roleName string) error {
	tenantID, uid, err := s.parseUser(ctx, userID)
	if err != nil {
		return err
	}
	name, err := normalizeRoleName(roleName)
	if err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		domain := rbacdomain.TenantDomain(tenantID)
		if err := s.repo.DeleteGrouping(ctx, tx, rbacdomain.UserSubject(uid), rbacdomain.RoleSubject(name), domain); err != nil {
			return err
		}
		return s.auditSvc.Record(ctx, tx, auditdomain.Entry{
			Action:     "rbac.role.revoke",
			TargetType: "user",
			TargetID:   uid.String(),
			Metadata:   map[string]any{"role": name},
		})
	})
}

func (s *Service) SetUserPermissions(ctx context.Context, userID string, perms rbacdomain.Permissions) error {
	tenantID, uid, err := s.parseUser(ctx, userID)
	if err != nil {
		return err
	}
	normalized, err := normalizePermissions(perms)
	if err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.ensureUser(ctx, tx, tenantID, uid); err != nil {
			return err
		}
		domain := rbacdomain.TenantDomain(tenantID)
		subject := rbacdomain.UserSubject(uid)
		if err := s.repo.DeletePolicies(ctx, tx, subject, domain); err != nil {
			return err
		}
		if err := s.repo.InsertRules(ctx, tx, policyRules(subject, domain, normalized)); err != nil {
			return err
		}
		return s.auditSvc.Record(ctx, tx, auditdomain.Entry{
			Action:     "rbac.grants.update",
			TargetType: "user",
			TargetID:   uid.String(),
			Metadata:   map[string]any{"features": len(normalized)},
		})
	})
}

func (s *Service) GetUserPermissions(ctx context.Context, userID string) (*rbacdomain.Resolution, error) {
	tenantID, uid, err := s.parseUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := s.ensureUser(ctx, s.db, tenantID, uid); err != nil {
		return nil, err
	}
	return s.resolve(ctx, tenantID, uid)
}

func (s *Service) SeedTenant(ctx context.Context, tx *gorm.DB, tenantID, adminUserID snowflake.ID) error {
	if tenantID == 0 {
		return rbacdomain.ErrInvalidTenant
	}
	now := s.clock.Now()
	base := model.NewBase(ctx, s.genID.Generate(), now)
	base.TenantID = tenantID
	role := &rbacdomain.Role{
		Base:        base,
		Name:        rbacdomain.AdminRole,
		Description: "Full access to every feature",
	}
	if err := s.repo.InsertRole(ctx, tx, role); err != nil {
		return err
	}

	domain := rbacdomain.TenantDomain(tenantID)
	rules := policyRules(rbacdomain.RoleSubject(rbacdomain.AdminRole), domain, allPermissions())
	if adminUserID != 0 {
		rules = append(rules, groupingRule(rbacdomain.UserSubject(adminUserID), rbacdomain.RoleSubject(rbacdomain.AdminRole), domain))
	}
	return s.repo.InsertRules(ctx, tx, rules)
}

func (s *Service) UsersWithRoles(ctx context.Context, roles []string) ([]snowflake.ID, error) {
	tenantID, err := s.tenantIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if len(roles) == 0 {
		return nil, nil
	}
	wanted := make([]string, 0, len(roles))
	for _, role := range roles {
		wanted = append(wanted, rbacdomain.RoleSubject(strings.ToLower(strings.TrimSpace(role))))
	}

	rules, err := s.repo.ListRules(ctx, s.db, rbacdomain.TenantDomain(tenantID))
	if err != nil {
		return nil, err
	}
	ids := make([]snowflake.ID, 0)
	for _, rule := range rules {
		if rule.Ptype != rbacdomain.PtypeGrouping || !slices.Contains(wanted, rule.V1) {
			continue
		}
		id, err := snowflake.ParseString(strings.TrimPrefix(rule.V0, "user:"))
		if err != nil || slices.Contains(ids, id) {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *Service) loadRole(ctx context.Context, conn *gorm.DB, id string) (snowflake.ID, *rbacdomain.Role, error) {
	tenantID, err := s.tenantIDFromContext(ctx)
	if err != nil {
		return 0, nil, err
	}
	roleID, err := parseID(id)
	if err != nil {
		return 0, nil, rbacdomain.ErrInvalidID
	}
	role, err := s.repo.FindRoleByID(ctx, conn, tenantID, roleID)
	if err != nil {
		return 0, nil, err
	}
	if role == nil {
		return 0, nil, rbacdomain.ErrNotFound
	}
	return tenantID, role, nil
}

func (s *Service) parseUser(ctx context.Context, userID string) (snowflake.ID, snowflake.ID, error) {
	tenantID, err := s.tenantIDFromContext(ctx)
	if err != nil {
		return 0, 0, err
	}
	uid, err := parseID(userID)
	if err != nil || uid == 0 {
		return 0, 0, rbacdomain.ErrInvalidUser
	}
	return tenantID, uid, nil
}

func (s *Service) ensureUser(ctx context.Context, conn *gorm.DB, tenantID, userID snowflake.ID) error {
	ok, err := s.repo.UserExists(ctx, conn, tenantID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return rbacdomain.ErrNotFound
	}
	return nil
}

func (s *Service) tenantIDFromContext(ctx context.Context) (snowflake.ID, error) {
	tenantID, ok := tenantcontext.TenantIDFromContext(ctx)
	if !ok {
		return 0, rbacdomain.ErrInvalidTenant
	}
	return tenantID, nil
}

func (s *Service) toRoleResponse(role *rbacdomain.Role, perms rbacdomain.Permissions) *rbacdomain.RoleResponse {
	if perms == nil {
		perms = rbacdomain.Permissions{}
	}
	return &rbacdomain.RoleResponse{
		ID:          role.ID.String(),
		Name:        role.Name,
		Description: role.Description,
		Permissions: perms,
		CreatedAt:   role.CreatedAt,
		UpdatedAt:   role.UpdatedAt,
	}
}

func parseID(value string) (snowflake.ID, error) {
	return snowflake.ParseString(strings.TrimSpace(value))
}
