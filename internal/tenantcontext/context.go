package tenantcontext

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

type tenantKey struct{}
type actorKey struct{}

// WithTenantID returns a copy of ctx scoped to the given tenant.
func WithTenantID(ctx context.Context, tenantID snowflake.ID) context.Context {
	return context.WithValue(ctx, tenantKey{}, tenantID)
}

// TenantIDFromContext reports the tenant the request is scoped to.
func TenantIDFromContext(ctx context.Context) (snowflake.ID, bool) {
	if ctx == nil {
		return 0, false
	}
	id, ok := ctx.Value(tenantKey{}).(snowflake.ID)
	if !ok || id == 0 {
		return 0, false
	}
	return id, true
}

// WithActorID records the authenticated user acting in ctx.
func WithActorID(ctx context.Context, userID snowflake.ID) context.Context {
	return context.WithValue(ctx, actorKey{}, userID)
}

func ActorIDFromContext(ctx context.Context) (snowflake.ID, bool) {
	if ctx == nil {
		return 0, false
	}
	id, ok := ctx.Value(actorKey{}).(snowflake.ID)
	if !ok || id == 0 {
		return 0, false
	}
	return id, true
}

// ActorRef returns the actor as a nullable column value for created_by and
// updated_by. Requests without a user (webhooks, cron) yield nil.
func ActorRef(ctx context.Context) *snowflake.ID {
	id, ok := ActorIDFromContext(ctx)
	if !ok {
		return nil
	}
	return &id
}

// With scopes ctx to a tenant and an actor in one call.
func With(ctx context.Context, tenantID, actorID snowflake.ID) context.Context {
	ctx = WithTenantID(ctx, tenantID)
	if actorID != 0 {
		ctx = WithActorID(ctx, actorID)
	}
	return ctx
}
