// Package awsconfig builds the shared AWS SDK configuration used by the S3,
// Secrets Manager and Cognito clients.
package awsconfig

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/smallbiznis/pricedesk/internal/config"
	"github.com/smallbiznis/pricedesk/internal/observability/tracing"
	"go.uber.org/fx"
)

var Module = fx.Module("providers.aws",
	fx.Provide(Load),
)

// Load resolves credentials from the environment. Static keys win when set,
// otherwise the default chain (instance role, shared profile) applies.
func Load(cfg config.Config) (aws.Config, error) {
	region := cfg.AWS.Region
	if region == "" {
		region = "us-east-1"
	}

	opts := []func(*awscfg.LoadOptions) error{
		awscfg.WithRegion(region),
		awscfg.WithHTTPClient(tracing.WrapHTTPClient(nil)),
	}
	if cfg.AWS.AccessKeyID != "" && cfg.AWS.SecretAccessKey != "" {
		opts = append(opts, awscfg.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AWS.AccessKeyID,
			cfg.AWS.SecretAccessKey,
			"",
		)))
	}

	loaded, err := awscfg.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	if cfg.AWS.Endpoint != "" {
		loaded.BaseEndpoint = aws.String(cfg.AWS.Endpoint)
	}
	return loaded, nil
}
