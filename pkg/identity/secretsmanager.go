package identity

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"

	"github.com/jvreagan/ssh-deploy/pkg/manifest"
)

type secretsManagerAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// newSecretsManagerClient is replaced in tests.
var newSecretsManagerClient = func(ctx context.Context, region string) (secretsManagerAPI, error) {
	var opts []func(*config.LoadOptions) error
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return secretsmanager.NewFromConfig(cfg), nil
}

func fromSecretsManager(ctx context.Context, cfg *manifest.SecretsManagerConfig) (*Identity, error) {
	if cfg == nil || cfg.SecretID == "" {
		return nil, fmt.Errorf("secrets manager secret_id is required")
	}

	client, err := newSecretsManagerClient(ctx, cfg.Region)
	if err != nil {
		return nil, err
	}

	result, err := client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(cfg.SecretID),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve secret %s: %w", cfg.SecretID, err)
	}

	var raw []byte
	switch {
	case result.SecretString != nil:
		raw = []byte(*result.SecretString)
	case len(result.SecretBinary) > 0:
		raw = result.SecretBinary
	default:
		return nil, fmt.Errorf("secret %s has no value", cfg.SecretID)
	}

	if cfg.Key != "" {
		fields := map[string]string{}
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, fmt.Errorf("failed to parse secret JSON: %w", err)
		}
		value, ok := fields[cfg.Key]
		if !ok {
			return nil, fmt.Errorf("key %s not found in secret %s", cfg.Key, cfg.SecretID)
		}
		raw = []byte(value)
	}

	return writeTemp(raw, manifest.IdentitySecretsManager)
}
