package tenantcontext

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
)

func TestTenantAndActorRoundTrip(t *testing.T) {
	ctx := With(context.Background(), snowflake.ID(10), snowflake.ID(20))

	tenantID, ok := TenantIDFromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, snowflake.ID(10), tenantID)

	actor := ActorRef(ctx)
	if assert.NotNil(t, actor) {
		assert.Equal(t, snowflake.ID(20), *actor)
	}
}

func TestMissingValues(t *testing.T) {
	ctx := context.Background()

	_, ok := TenantIDFromContext(ctx)
	assert.False(t, ok)
	assert.Nil(t, ActorRef(ctx))

	ctx = With(ctx, snowflake.ID(10), 0)
	assert.Nil(t, ActorRef(ctx))
}
