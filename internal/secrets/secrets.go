// Package secrets resolves warehouse credentials. Production reads a JSON
// secret from AWS Secrets Manager; tests and local runs use a static
// provider.
package secrets

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	perrors "github.com/dehpipe/dehpipe/internal/errors"
)

// Credentials holds the warehouse connection parameters stored in the
// secret payload.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Host     string `json:"host"`
	DBName   string `json:"dbname"`
}

// MySQLDSN renders the credentials as a go-sql-driver DSN.
func (c Credentials) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:3306)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		c.Username, c.Password, c.Host, c.DBName)
}

// Provider fetches warehouse credentials.
type Provider interface {
	Fetch(ctx context.Context) (Credentials, error)
}

// secretsManagerAPI is the slice of the Secrets Manager client we use.
type secretsManagerAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// SecretsManagerProvider reads a JSON credentials payload from AWS Secrets
// Manager.
type SecretsManagerProvider struct {
	client   secretsManagerAPI
	secretID string
}

// NewSecretsManagerProvider builds a provider using the default AWS
// configuration chain.
func NewSecretsManagerProvider(ctx context.Context, region, secretID string) (*SecretsManagerProvider, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, perrors.NewSecretsError("load aws config", err)
	}
	return &SecretsManagerProvider{
		client:   secretsmanager.NewFromConfig(cfg),
		secretID: secretID,
	}, nil
}

// NewSecretsManagerProviderWithClient is for tests that inject a fake client.
func NewSecretsManagerProviderWithClient(client secretsManagerAPI, secretID string) *SecretsManagerProvider {
	return &SecretsManagerProvider{client: client, secretID: secretID}
}

// Fetch retrieves and decodes the secret payload.
func (p *SecretsManagerProvider) Fetch(ctx context.Context) (Credentials, error) {
	out, err := p.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(p.secretID),
	})
	if err != nil {
		return Credentials{}, perrors.NewSecretsError(
			fmt.Sprintf("fetch secret %s", p.secretID), err)
	}
	if out.SecretString == nil {
		return Credentials{}, perrors.NewSecretsError(
			fmt.Sprintf("secret %s has no string payload", p.secretID), nil)
	}

	var creds Credentials
	if err := json.Unmarshal([]byte(*out.SecretString), &creds); err != nil {
		return Credentials{}, perrors.NewSecretsError(
			fmt.Sprintf("decode secret %s", p.secretID), err)
	}
	if creds.Username == "" || creds.Host == "" || creds.DBName == "" {
		return Credentials{}, perrors.NewSecretsError(
			fmt.Sprintf("secret %s is missing required fields", p.secretID), nil)
	}
	return creds, nil
}

// StaticProvider returns fixed credentials; used for local runs and tests.
type StaticProvider struct {
	Creds Credentials
}

func (p StaticProvider) Fetch(ctx context.Context) (Credentials, error) {
	return p.Creds, nil
}
