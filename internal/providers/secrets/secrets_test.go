package secrets

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	smtypes "github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
	"github.com/smallbiznis/pricedesk/internal/providers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	values  map[string]string
	failGet error
}

func (f *fakeAPI) GetSecretValue(_ context.Context, in *secretsmanager.GetSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	if f.failGet != nil {
		return nil, f.failGet
	}
	v, ok := f.values[aws.ToString(in.SecretId)]
	if !ok {
		return nil, &smtypes.ResourceNotFoundException{Message: aws.String("missing")}
	}
	return &secretsmanager.GetSecretValueOutput{SecretString: aws.String(v)}, nil
}

func (f *fakeAPI) PutSecretValue(_ context.Context, in *secretsmanager.PutSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.PutSecretValueOutput, error) {
	if _, ok := f.values[aws.ToString(in.SecretId)]; !ok {
		return nil, &smtypes.ResourceNotFoundException{Message: aws.String("missing")}
	}
	f.values[aws.ToString(in.SecretId)] = aws.ToString(in.SecretString)
	return &secretsmanager.PutSecretValueOutput{}, nil
}

func (f *fakeAPI) CreateSecret(_ context.Context, in *secretsmanager.CreateSecretInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.CreateSecretOutput, error) {
	f.values[aws.ToString(in.Name)] = aws.ToString(in.SecretString)
	return &secretsmanager.CreateSecretOutput{}, nil
}

type creds struct {
	ClientID     string `json:"client_id"`
	RefreshToken string `json:"refresh_token"`
}

func TestPutCreatesThenUpdates(t *testing.T) {
	api := &fakeAPI{values: map[string]string{}}
	store := NewStore(api, "pricedesk/tenants/")
	ctx := context.Background()

	var got creds
	assert.ErrorIs(t, store.GetTenantJSON(ctx, 5, &got), ErrSecretNotFound)

	require.NoError(t, store.PutTenantJSON(ctx, 5, creds{ClientID: "a", RefreshToken: "r1"}))
	require.Contains(t, api.values, "pricedesk/tenants/5")

	require.NoError(t, store.PutTenantJSON(ctx, 5, creds{ClientID: "a", RefreshToken: "r2"}))
	require.NoError(t, store.GetTenantJSON(ctx, 5, &got))
	assert.Equal(t, "r2", got.RefreshToken)
}

func TestGetWrapsProviderFailures(t *testing.T) {
	store := NewStore(&fakeAPI{values: map[string]string{}, failGet: errors.New("throttled")}, "p")
	var got creds
	err := store.GetTenantJSON(context.Background(), 1, &got)
	assert.ErrorIs(t, err, providers.ErrExternal)
}
