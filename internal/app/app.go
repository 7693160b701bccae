// Package app wires configuration into a runnable pipeline: storage, table
// store, credentials and notifier are constructed once per process.
package app

import (
	"context"
	"fmt"
	"log"

	"github.com/dehpipe/dehpipe/internal/config"
	"github.com/dehpipe/dehpipe/internal/notify"
	"github.com/dehpipe/dehpipe/internal/pipeline"
	"github.com/dehpipe/dehpipe/internal/secrets"
	"github.com/dehpipe/dehpipe/internal/storage"
	"github.com/dehpipe/dehpipe/internal/table"
	"github.com/dehpipe/dehpipe/pkg/types"
)

// App holds the shared resources for pipeline invocations.
type App struct {
	cfg *config.Config

	storage  storage.ObjectStorage
	tables   table.Store
	notifier notify.Notifier
	pipeline *pipeline.Pipeline
}

// New creates a new App with the given configuration.
func New(cfg *config.Config) (*App, error) {
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}
	return &App{cfg: cfg}, nil
}

// Start initializes storage, tables and the notifier, then builds the
// pipeline.
func (a *App) Start(ctx context.Context) error {
	var err error

	switch a.cfg.Storage.Type {
	case "local":
		a.storage, err = storage.NewLocalStorage(a.cfg.Storage.Path)
	case "s3":
		s3Cfg := storage.DefaultS3Config()
		if a.cfg.Storage.S3.Region != "" {
			s3Cfg.Region = a.cfg.Storage.S3.Region
		}
		if a.cfg.Storage.S3.Endpoint != "" {
			s3Cfg.Endpoint = a.cfg.Storage.S3.Endpoint
		}
		s3Cfg.UsePathStyle = a.cfg.Storage.S3.UsePathStyle
		a.storage, err = storage.NewS3Storage(ctx, a.cfg.Storage.S3.Bucket, s3Cfg)
	default:
		return fmt.Errorf("unsupported storage type: %s", a.cfg.Storage.Type)
	}
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	log.Printf("app: storage initialized: type=%s", a.cfg.Storage.Type)

	switch a.cfg.Tables.Type {
	case "sqlite":
		a.tables, err = table.NewSQLiteStore(a.cfg.Tables.SQLitePath)
	case "mysql":
		var creds secrets.Credentials
		creds, err = a.credentials(ctx)
		if err == nil {
			a.tables, err = table.NewMySQLStore(creds.MySQLDSN())
		}
	default:
		return fmt.Errorf("unsupported tables type: %s", a.cfg.Tables.Type)
	}
	if err != nil {
		return fmt.Errorf("failed to initialize table store: %w", err)
	}
	log.Printf("app: table store initialized: type=%s", a.cfg.Tables.Type)

	switch a.cfg.Notify.Type {
	case "log":
		a.notifier = notify.LogNotifier{}
	case "sns":
		a.notifier, err = notify.NewSNSNotifier(ctx, a.cfg.Notify.Region, a.cfg.Notify.TopicARN)
		if err != nil {
			return fmt.Errorf("failed to initialize notifier: %w", err)
		}
	default:
		return fmt.Errorf("unsupported notify type: %s", a.cfg.Notify.Type)
	}

	a.pipeline = pipeline.New(a.storage, a.tables, a.notifier,
		pipeline.WithOpTimeout(a.cfg.Pipeline.OpTimeout))
	return nil
}

// credentials resolves warehouse credentials once per process.
func (a *App) credentials(ctx context.Context) (secrets.Credentials, error) {
	switch a.cfg.Secrets.Provider {
	case "secretsmanager":
		provider, err := secrets.NewSecretsManagerProvider(ctx, a.cfg.Secrets.Region, a.cfg.Secrets.SecretID)
		if err != nil {
			return secrets.Credentials{}, err
		}
		return provider.Fetch(ctx)
	case "static":
		return secrets.StaticProvider{Creds: secrets.Credentials{
			Username: a.cfg.Secrets.Username,
			Password: a.cfg.Secrets.Password,
			Host:     a.cfg.Secrets.Host,
			DBName:   a.cfg.Secrets.DBName,
		}}.Fetch(ctx)
	default:
		return secrets.Credentials{}, fmt.Errorf("unsupported secrets provider: %s", a.cfg.Secrets.Provider)
	}
}

// Process runs one file through the pipeline.
func (a *App) Process(ctx context.Context, loc types.FileLocation) (*pipeline.Result, error) {
	if a.pipeline == nil {
		return nil, fmt.Errorf("app is not started")
	}
	return a.pipeline.Run(ctx, loc)
}

// Stop releases shared resources.
func (a *App) Stop() {
	if a.tables != nil {
		if err := a.tables.Close(); err != nil {
			log.Printf("app: table store close error: %v", err)
		}
	}
}
