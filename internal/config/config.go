// Package config provides unified configuration for the pipeline.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the configuration for one pipeline deployment.
type Config struct {
	// DataDir is the base directory for all local data files
	DataDir string `json:"data_dir" yaml:"data_dir"`

	// Storage configuration
	Storage StorageConfig `json:"storage" yaml:"storage"`

	// Tables configuration
	Tables TablesConfig `json:"tables" yaml:"tables"`

	// Secrets configuration
	Secrets SecretsConfig `json:"secrets" yaml:"secrets"`

	// Notify configuration
	Notify NotifyConfig `json:"notify" yaml:"notify"`

	// Pipeline behavior configuration
	Pipeline PipelineConfig `json:"pipeline" yaml:"pipeline"`
}

// StorageConfig holds object storage configuration.
type StorageConfig struct {
	// Type is the storage type: local, s3
	Type string `json:"type" yaml:"type"`

	// Path is the local storage path (for local type)
	Path string `json:"path" yaml:"path"`

	// S3 configuration (for s3 type)
	S3 S3Config `json:"s3" yaml:"s3"`
}

// S3Config holds S3 storage configuration.
type S3Config struct {
	// Bucket is the S3 bucket name
	Bucket string `json:"bucket" yaml:"bucket"`

	// Region is the AWS region
	Region string `json:"region" yaml:"region"`

	// Endpoint is the S3 endpoint (for S3-compatible storage)
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	// UsePathStyle forces path-style addressing (for S3-compatible storage)
	UsePathStyle bool `json:"use_path_style" yaml:"use_path_style"`
}

// TablesConfig holds table store configuration.
type TablesConfig struct {
	// Type is the table store type: sqlite, mysql
	Type string `json:"type" yaml:"type"`

	// SQLitePath is the database file path (for sqlite type)
	SQLitePath string `json:"sqlite_path" yaml:"sqlite_path"`
}

// SecretsConfig holds warehouse credential configuration. The mysql table
// store resolves its DSN from the named secret once per invocation.
type SecretsConfig struct {
	// Provider is the credential source: secretsmanager, static
	Provider string `json:"provider" yaml:"provider"`

	// Region is the AWS region for Secrets Manager
	Region string `json:"region" yaml:"region"`

	// SecretID is the Secrets Manager secret name
	SecretID string `json:"secret_id" yaml:"secret_id"`

	// Static credentials (for static provider)
	Username string `json:"username" yaml:"username"`
	Password string `json:"password" yaml:"password"`
	Host     string `json:"host" yaml:"host"`
	DBName   string `json:"dbname" yaml:"dbname"`
}

// NotifyConfig holds notification configuration.
type NotifyConfig struct {
	// Type is the notifier type: log, sns
	Type string `json:"type" yaml:"type"`

	// Region is the AWS region for SNS
	Region string `json:"region" yaml:"region"`

	// TopicARN is the SNS topic to publish run outcomes to
	TopicARN string `json:"topic_arn" yaml:"topic_arn"`
}

// PipelineConfig holds pipeline behavior configuration.
type PipelineConfig struct {
	// OpTimeout bounds each external call (storage, tables, notify)
	OpTimeout time.Duration `json:"op_timeout" yaml:"op_timeout"`
}

// DefaultConfig returns the default configuration for local development.
func DefaultConfig() *Config {
	return &Config{
		DataDir: "./data/dehpipe",
		Storage: StorageConfig{
			Type: "local",
			Path: "",
		},
		Tables: TablesConfig{
			Type:       "sqlite",
			SQLitePath: "",
		},
		Secrets: SecretsConfig{
			Provider: "static",
		},
		Notify: NotifyConfig{
			Type: "log",
		},
		Pipeline: PipelineConfig{
			OpTimeout: 30 * time.Second,
		},
	}
}

// Resolve resolves relative paths and sets defaults based on DataDir.
func (c *Config) Resolve() {
	if c.DataDir == "" {
		c.DataDir = "./data/dehpipe"
	}

	if c.Storage.Path == "" {
		c.Storage.Path = filepath.Join(c.DataDir, "storage")
	}

	if c.Tables.SQLitePath == "" {
		c.Tables.SQLitePath = filepath.Join(c.DataDir, "sales.db")
	}

	if c.Pipeline.OpTimeout <= 0 {
		c.Pipeline.OpTimeout = 30 * time.Second
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}

	if c.Storage.Type != "local" && c.Storage.Type != "s3" {
		return fmt.Errorf("invalid storage type: %s (must be local or s3)", c.Storage.Type)
	}
	if c.Storage.Type == "s3" && c.Storage.S3.Bucket == "" {
		return fmt.Errorf("s3.bucket is required when storage type is s3")
	}

	if c.Tables.Type != "sqlite" && c.Tables.Type != "mysql" {
		return fmt.Errorf("invalid tables type: %s (must be sqlite or mysql)", c.Tables.Type)
	}
	if c.Tables.Type == "mysql" {
		switch c.Secrets.Provider {
		case "secretsmanager":
			if c.Secrets.SecretID == "" {
				return fmt.Errorf("secrets.secret_id is required when tables type is mysql")
			}
		case "static":
			if c.Secrets.Host == "" || c.Secrets.Username == "" || c.Secrets.DBName == "" {
				return fmt.Errorf("secrets.host, secrets.username and secrets.dbname are required for static credentials")
			}
		default:
			return fmt.Errorf("invalid secrets provider: %s (must be secretsmanager or static)", c.Secrets.Provider)
		}
	}

	if c.Notify.Type != "log" && c.Notify.Type != "sns" {
		return fmt.Errorf("invalid notify type: %s (must be log or sns)", c.Notify.Type)
	}
	if c.Notify.Type == "sns" && c.Notify.TopicARN == "" {
		return fmt.Errorf("notify.topic_arn is required when notify type is sns")
	}

	return nil
}

// LoadFromFile loads configuration from a YAML or JSON file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the DEHPIPE_ prefix.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("DEHPIPE_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}

	// Storage configuration
	if v := os.Getenv("DEHPIPE_STORAGE_TYPE"); v != "" {
		cfg.Storage.Type = v
	}
	if v := os.Getenv("DEHPIPE_STORAGE_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("DEHPIPE_S3_BUCKET"); v != "" {
		cfg.Storage.S3.Bucket = v
	}
	if v := os.Getenv("DEHPIPE_S3_REGION"); v != "" {
		cfg.Storage.S3.Region = v
	}
	if v := os.Getenv("DEHPIPE_S3_ENDPOINT"); v != "" {
		cfg.Storage.S3.Endpoint = v
	}

	// Tables configuration
	if v := os.Getenv("DEHPIPE_TABLES_TYPE"); v != "" {
		cfg.Tables.Type = v
	}
	if v := os.Getenv("DEHPIPE_SQLITE_PATH"); v != "" {
		cfg.Tables.SQLitePath = v
	}

	// Secrets configuration
	if v := os.Getenv("DEHPIPE_SECRETS_PROVIDER"); v != "" {
		cfg.Secrets.Provider = v
	}
	if v := os.Getenv("DEHPIPE_SECRETS_REGION"); v != "" {
		cfg.Secrets.Region = v
	}
	if v := os.Getenv("DEHPIPE_SECRETS_ID"); v != "" {
		cfg.Secrets.SecretID = v
	}

	// Notify configuration
	if v := os.Getenv("DEHPIPE_NOTIFY_TYPE"); v != "" {
		cfg.Notify.Type = v
	}
	if v := os.Getenv("DEHPIPE_NOTIFY_REGION"); v != "" {
		cfg.Notify.Region = v
	}
	if v := os.Getenv("DEHPIPE_NOTIFY_TOPIC_ARN"); v != "" {
		cfg.Notify.TopicARN = v
	}

	// Pipeline configuration
	if v := os.Getenv("DEHPIPE_OP_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Pipeline.OpTimeout = d
		}
	}
}

// EnsureDirectories creates all required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.DataDir,
	}
	if c.Storage.Type == "local" {
		dirs = append(dirs, c.Storage.Path)
	}
	if c.Tables.Type == "sqlite" {
		dirs = append(dirs, filepath.Dir(c.Tables.SQLitePath))
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
