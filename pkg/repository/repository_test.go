package repository

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/pricedesk/internal/tenantcontext"
	"github.com/smallbiznis/pricedesk/pkg/db/dbtest"
	"github.com/smallbiznis/pricedesk/pkg/db/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type widget struct {
	model.Base
	Name string
}

func TestStoreScopesByTenantAndSoftDelete(t *testing.T) {
	db := dbtest.Open(t, &widget{})
	store := ProvideStore[widget](db)

	ctx := tenantcontext.With(context.Background(), 10, 99)
	now := time.Now().UTC()

	a := &widget{Base: model.NewBase(ctx, 1, now), Name: "a"}
	b := &widget{Base: model.NewBase(ctx, 2, now), Name: "b"}
	other := &widget{Base: model.NewBase(tenantcontext.With(context.Background(), 11, 99), 3, now), Name: "c"}
	require.NoError(t, store.BatchCreate(ctx, []*widget{a, b, other}))

	items, err := store.Find(ctx, 10, nil)
	require.NoError(t, err)
	assert.Len(t, items, 2)
	require.NotNil(t, items[0].CreatedBy)
	assert.Equal(t, snowflake.ID(99), *items[0].CreatedBy)

	require.NoError(t, store.SoftDelete(ctx, 10, 1, tenantcontext.ActorRef(ctx)))

	found, err := store.FindByID(ctx, 10, 1)
	require.NoError(t, err)
	assert.Nil(t, found)

	count, err := store.Count(ctx, 10, &widget{Name: "b"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	cross, err := store.FindByID(ctx, 10, 3)
	require.NoError(t, err)
	assert.Nil(t, cross)
}
