// Package secrets loads the signing and encryption keys once at startup,
// either from AWS Secrets Manager or from the server configuration.
package secrets

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/matenet/backend/internal/common"
	"github.com/matenet/backend/internal/cryptox"
	sc "github.com/matenet/backend/internal/server/config"
)

var ErrSecretNotFound = errors.New("secret not found")

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newSecretsClientFromConfig = func(cfg aws.Config, optFns ...func(*secretsmanager.Options)) getSecretValueAPI {
		return secretsmanager.NewFromConfig(cfg, optFns...)
	}
)

// Provider resolves a secret by identifier.
type Provider interface {
	GetSecret(ctx context.Context, id string) ([]byte, error)
}

// StaticProvider serves secrets from an in-memory map.
type StaticProvider map[string]string

func (p StaticProvider) GetSecret(_ context.Context, id string) ([]byte, error) {
	v, ok := p[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSecretNotFound, id)
	}
	return []byte(v), nil
}

type getSecretValueAPI interface {
	GetSecretValue(ctx context.Context, in *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// AWSProvider reads secrets from AWS Secrets Manager.
type AWSProvider struct {
	client getSecretValueAPI
}

func NewAWSProvider(ctx context.Context, region string) (*AWSProvider, error) {
	cfg, err := loadDefaultAWSConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &AWSProvider{client: newSecretsClientFromConfig(cfg)}, nil
}

func (p *AWSProvider) GetSecret(ctx context.Context, id string) ([]byte, error) {
	out, err := p.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{SecretId: aws.String(id)})
	if err != nil {
		return nil, fmt.Errorf("get secret %s: %w", id, err)
	}
	if out.SecretString != nil {
		return []byte(*out.SecretString), nil
	}
	if len(out.SecretBinary) > 0 {
		return out.SecretBinary, nil
	}
	return nil, fmt.Errorf("%w: %s is empty", ErrSecretNotFound, id)
}

// NewProvider picks the provider named by cfg.SecretsSource.
func NewProvider(ctx context.Context, cfg *sc.Config) (Provider, error) {
	switch cfg.SecretsSource {
	case sc.SecretsSourceAWS:
		return NewAWSProvider(ctx, cfg.AWSRegion)
	case sc.SecretsSourceConfig, "":
		return StaticProvider{
			cfg.JWTSecretID:       cfg.JWTSecret,
			cfg.CipherKeySecretID: cfg.CipherKey,
		}, nil
	}
	return nil, fmt.Errorf("%w: unknown secrets source %q", common.ErrValidation, cfg.SecretsSource)
}

// Material is the key material the server needs at runtime.
type Material struct {
	JWTSecret []byte
	CipherKey []byte
}

// Load fetches both secrets and validates them.
func Load(ctx context.Context, p Provider, jwtSecretID, cipherKeyID string) (*Material, error) {
	jwtSecret, err := p.GetSecret(ctx, jwtSecretID)
	if err != nil {
		return nil, err
	}
	if len(jwtSecret) == 0 {
		return nil, fmt.Errorf("%w: empty jwt secret", common.ErrValidation)
	}

	key, err := p.GetSecret(ctx, cipherKeyID)
	if err != nil {
		return nil, err
	}
	if len(key) != cryptox.KeySize {
		return nil, fmt.Errorf("%w: cipher key must be %d bytes, got %d", common.ErrValidation, cryptox.KeySize, len(key))
	}

	return &Material{JWTSecret: jwtSecret, CipherKey: key}, nil
}
