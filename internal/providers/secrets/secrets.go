// Package secrets stores per-tenant integration credentials as JSON blobs
// in AWS Secrets Manager under "<prefix>/<tenant_id>".
package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	smtypes "github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/pricedesk/internal/config"
	"github.com/smallbiznis/pricedesk/internal/providers"
	"go.uber.org/fx"
)

var Module = fx.Module("providers.secrets",
	fx.Provide(NewSecretsManagerStore),
)

var ErrSecretNotFound = errors.New("secret_not_found")

type Store interface {
	GetTenantJSON(ctx context.Context, tenantID snowflake.ID, out any) error
	PutTenantJSON(ctx context.Context, tenantID snowflake.ID, value any) error
}

// API is the subset of the Secrets Manager client used here.
type API interface {
	GetSecretValue(ctx context.Context, in *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
	PutSecretValue(ctx context.Context, in *secretsmanager.PutSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.PutSecretValueOutput, error)
	CreateSecret(ctx context.Context, in *secretsmanager.CreateSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.CreateSecretOutput, error)
}

type SecretsManagerStore struct {
	api    API
	prefix string
}

func NewSecretsManagerStore(awsCfg aws.Config, cfg config.Config) Store {
	return NewStore(secretsmanager.NewFromConfig(awsCfg), cfg.AWS.SecretsPrefix)
}

func NewStore(api API, prefix string) *SecretsManagerStore {
	return &SecretsManagerStore{api: api, prefix: strings.TrimSuffix(prefix, "/")}
}

func (s *SecretsManagerStore) name(tenantID snowflake.ID) string {
	return fmt.Sprintf("%s/%s", s.prefix, tenantID.String())
}

func (s *SecretsManagerStore) GetTenantJSON(ctx context.Context, tenantID snowflake.ID, out any) error {
	resp, err := s.api.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(s.name(tenantID)),
	})
	if err != nil {
		var notFound *smtypes.ResourceNotFoundException
		if errors.As(err, &notFound) {
			return ErrSecretNotFound
		}
		return providers.External("secretsmanager", "get_secret_value", err)
	}
	if resp.SecretString == nil {
		return ErrSecretNotFound
	}
	if err := json.Unmarshal([]byte(*resp.SecretString), out); err != nil {
		return fmt.Errorf("decode tenant secret: %w", err)
	}
	return nil
}

// PutTenantJSON replaces the tenant blob, creating the secret on first write.
func (s *SecretsManagerStore) PutTenantJSON(ctx context.Context, tenantID snowflake.ID, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode tenant secret: %w", err)
	}

	_, err = s.api.PutSecretValue(ctx, &secretsmanager.PutSecretValueInput{
		SecretId:     aws.String(s.name(tenantID)),
		SecretString: aws.String(string(payload)),
	})
	if err == nil {
		return nil
	}

	var notFound *smtypes.ResourceNotFoundException
	if !errors.As(err, &notFound) {
		return providers.External("secretsmanager", "put_secret_value", err)
	}

	_, err = s.api.CreateSecret(ctx, &secretsmanager.CreateSecretInput{
		Name:         aws.String(s.name(tenantID)),
		SecretString: aws.String(string(payload)),
	})
	if err != nil {
		return providers.External("secretsmanager", "create_secret", err)
	}
	return nil
}
