package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/pricedesk/internal/audit/domain"
	auditrepository "github.com/smallbiznis/pricedesk/internal/audit/repository"
	auditservice "github.com/smallbiznis/pricedesk/internal/audit/service"
	"github.com/smallbiznis/pricedesk/internal/clock"
	"github.com/smallbiznis/pricedesk/internal/providers"
	"github.com/smallbiznis/pricedesk/internal/providers/identity"
	rbacdomain "github.com/smallbiznis/pricedesk/internal/rbac/domain"
	rbacrepository "github.com/smallbiznis/pricedesk/internal/rbac/repository"
	rbacservice "github.com/smallbiznis/pricedesk/internal/rbac/service"
	"github.com/smallbiznis/pricedesk/internal/tenantcontext"
	userdomain "github.com/smallbiznis/pricedesk/internal/user/domain"
	"github.com/smallbiznis/pricedesk/internal/user/repository"
	"github.com/smallbiznis/pricedesk/pkg/db/dbtest"
	"github.com/smallbiznis/pricedesk/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const testTenant = snowflake.ID(10)

type fakeDirectory struct {
	users   map[string]*identity.DirectoryUser
	invited []string
	err     error
}

func (f *fakeDirectory) GetUser(_ context.Context, username string) (*identity.DirectoryUser, error) {
	if f.err != nil {
		return nil, f.err
	}
	u, ok := f.users[username]
	if !ok {
		return nil, identity.ErrUserNotFound
	}
	return u, nil
}

func (f *fakeDirectory) InviteUser(_ context.Context, email, name string) (*identity.DirectoryUser, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.invited = append(f.invited, email)
	u := &identity.DirectoryUser{Subject: "sub-" + email, Username: email, Email: email, Name: name, Enabled: true}
	f.users[email] = u
	return u, nil
}

type fixture struct {
	db   *gorm.DB
	svc  userdomain.Service
	rbac rbacdomain.Service
	dir  *fakeDirectory
	clk  *clock.FakeClock
	ctx  context.Context
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	db := dbtest.Open(t, &userdomain.User{}, &rbacdomain.Role{}, &auditdomain.AuditLog{})
	dbtest.MigrateTable(t, db, rbacdomain.RuleTable, &rbacdomain.Rule{})

	node, err := snowflake.NewNode(2)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC))
	audit := auditservice.NewService(auditservice.Params{
		DB: db, Log: zap.NewNop(), GenID: node, Clock: clk, Repo: auditrepository.Provide(),
	})
	rbac := rbacservice.New(rbacservice.Params{
		DB: db, Log: zap.NewNop(), GenID: node, Clock: clk, Repo: rbacrepository.Provide(), AuditSvc: audit,
	})
	dir := &fakeDirectory{users: map[string]*identity.DirectoryUser{}}
	svc := New(Params{
		DB: db, Log: zap.NewNop(), GenID: node, Clock: clk, Repo: repository.Provide(),
		Directory: dir, RBAC: rbac, AuditSvc: audit,
	})

	return fixture{
		db: db, svc: svc, rbac: rbac, dir: dir, clk: clk,
		ctx: tenantcontext.With(context.Background(), testTenant, 0),
	}
}

func TestInviteCreatesInvitedUserWithRoles(t *testing.T) {
	f := newFixture(t)
	_, err := f.rbac.CreateRole(f.ctx, rbacdomain.RoleRequest{
		Name:        "sales",
		Permissions: rbacdomain.Permissions{"quote": {"GET"}},
	})
	require.NoError(t, err)

	resp, err := f.svc.Invite(f.ctx, userdomain.InviteRequest{Email: " Ana@Example.com ", Name: "Ana", Roles: []string{"sales"}})
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", resp.Email)
	assert.Equal(t, userdomain.StatusInvited, resp.Status)
	assert.Equal(t, "sub-ana@example.com", resp.ExternalID)

	principal, err := f.svc.ResolveSubject(context.Background(), "sub-ana@example.com")
	require.NoError(t, err)
	assert.Equal(t, testTenant, principal.TenantID)

	got, err := f.svc.Get(f.ctx, resp.ID)
	require.NoError(t, err)
	assert.Equal(t, userdomain.StatusActive, got.Status)

	res, err := f.rbac.Resolve(f.ctx, principal.UserID)
	require.NoError(t, err)
	assert.Equal(t, []string{"sales"}, res.Roles)

	_, err = f.svc.Invite(f.ctx, userdomain.InviteRequest{Email: "ana@example.com"})
	assert.ErrorIs(t, err, userdomain.ErrUserExists)
}

func TestInviteRejectsUnknownRoleBeforeCallingProvider(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Invite(f.ctx, userdomain.InviteRequest{Email: "bo@example.com", Roles: []string{"ghost"}})
	assert.ErrorIs(t, err, userdomain.ErrInvalidRole)
	assert.Empty(t, f.dir.invited)
}

func TestInviteSurfacesProviderFailure(t *testing.T) {
	f := newFixture(t)
	f.dir.err = providers.External("cognito", "admin_create_user", errors.New("throttled"))

	_, err := f.svc.Invite(f.ctx, userdomain.InviteRequest{Email: "bo@example.com"})
	assert.ErrorIs(t, err, providers.ErrExternal)
}

func TestResolveSubjectRejectsDisabledAndUnknown(t *testing.T) {
	f := newFixture(t)
	resp, err := f.svc.Invite(f.ctx, userdomain.InviteRequest{Email: "cy@example.com"})
	require.NoError(t, err)

	disabled := userdomain.StatusDisabled
	_, err = f.svc.Update(f.ctx, resp.ID, userdomain.UpdateRequest{Status: &disabled})
	require.NoError(t, err)

	_, err = f.svc.ResolveSubject(context.Background(), resp.ExternalID)
	assert.ErrorIs(t, err, userdomain.ErrUserDisabled)

	_, err = f.svc.ResolveSubject(context.Background(), "nobody")
	assert.ErrorIs(t, err, userdomain.ErrUnknownSubject)
}

func TestSyncDisablesUsersMissingFromProvider(t *testing.T) {
	f := newFixture(t)
	resp, err := f.svc.Invite(f.ctx, userdomain.InviteRequest{Email: "di@example.com"})
	require.NoError(t, err)

	f.dir.users["di@example.com"].Name = "Di Renamed"
	synced, err := f.svc.Sync(f.ctx, resp.ID)
	require.NoError(t, err)
	assert.Equal(t, "Di Renamed", synced.Name)

	delete(f.dir.users, "di@example.com")
	synced, err = f.svc.Sync(f.ctx, resp.ID)
	require.NoError(t, err)
	assert.Equal(t, userdomain.StatusDisabled, synced.Status)

	emails, err := f.svc.Emails(f.ctx, []snowflake.ID{snowflake.ID(0)})
	require.NoError(t, err)
	assert.Empty(t, emails)
}

func TestListPaginates(t *testing.T) {
	f := newFixture(t)
	for _, email := range []string{"a@example.com", "b@example.com", "c@example.com"} {
		_, err := f.svc.Invite(f.ctx, userdomain.InviteRequest{Email: email})
		require.NoError(t, err)
	}

	page, err := f.svc.List(f.ctx, userdomain.ListRequest{Pagination: paginationOf("", 2)})
	require.NoError(t, err)
	require.Len(t, page.Users, 2)
	assert.True(t, page.HasMore)
	assert.Equal(t, "c@example.com", page.Users[0].Email)

	next, err := f.svc.List(f.ctx, userdomain.ListRequest{Pagination: paginationOf(page.NextPageToken, 2)})
	require.NoError(t, err)
	require.Len(t, next.Users, 1)
	assert.False(t, next.HasMore)
	assert.Equal(t, "a@example.com", next.Users[0].Email)

	require.NoError(t, f.svc.Delete(f.ctx, next.Users[0].ID))
	_, err = f.svc.Get(f.ctx, next.Users[0].ID)
	assert.ErrorIs(t, err, userdomain.ErrNotFound)
}

func paginationOf(token string, size int) pagination.Pagination {
	return pagination.Pagination{PageToken: token, PageSize: size}
}
