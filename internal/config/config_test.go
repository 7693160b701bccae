package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Resolve()

	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if cfg.Storage.Type != "local" {
		t.Errorf("expected local storage default, got %s", cfg.Storage.Type)
	}
	if cfg.Tables.SQLitePath == "" {
		t.Error("Resolve should set a sqlite path")
	}
	if cfg.Pipeline.OpTimeout != 30*time.Second {
		t.Errorf("unexpected default op timeout %v", cfg.Pipeline.OpTimeout)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:   "defaults valid",
			mutate: func(c *Config) {},
		},
		{
			name:    "bad storage type",
			mutate:  func(c *Config) { c.Storage.Type = "ftp" },
			wantErr: true,
		},
		{
			name:    "s3 without bucket",
			mutate:  func(c *Config) { c.Storage.Type = "s3" },
			wantErr: true,
		},
		{
			name: "s3 with bucket",
			mutate: func(c *Config) {
				c.Storage.Type = "s3"
				c.Storage.S3.Bucket = "sales-data"
			},
		},
		{
			name:    "bad tables type",
			mutate:  func(c *Config) { c.Tables.Type = "postgres" },
			wantErr: true,
		},
		{
			name: "mysql without secret",
			mutate: func(c *Config) {
				c.Tables.Type = "mysql"
				c.Secrets.Provider = "secretsmanager"
			},
			wantErr: true,
		},
		{
			name: "mysql with secret",
			mutate: func(c *Config) {
				c.Tables.Type = "mysql"
				c.Secrets.Provider = "secretsmanager"
				c.Secrets.SecretID = "prod/sales/db"
			},
		},
		{
			name: "mysql static missing host",
			mutate: func(c *Config) {
				c.Tables.Type = "mysql"
				c.Secrets.Provider = "static"
				c.Secrets.Username = "etl"
			},
			wantErr: true,
		},
		{
			name:    "sns without topic",
			mutate:  func(c *Config) { c.Notify.Type = "sns" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Resolve()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Error("expected validation error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected validation error: %v", err)
			}
		})
	}
}

func TestLoadFromFile_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
data_dir: /var/lib/dehpipe
storage:
  type: s3
  s3:
    bucket: sales-data
    region: us-east-1
notify:
  type: sns
  region: us-east-1
  topic_arn: arn:aws:sns:us-east-1:123456789012:dehtopic
pipeline:
  op_timeout: 45s
`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if cfg.Storage.S3.Bucket != "sales-data" {
		t.Errorf("unexpected bucket %q", cfg.Storage.S3.Bucket)
	}
	if cfg.Notify.TopicARN != "arn:aws:sns:us-east-1:123456789012:dehtopic" {
		t.Errorf("unexpected topic arn %q", cfg.Notify.TopicARN)
	}
	if cfg.Pipeline.OpTimeout != 45*time.Second {
		t.Errorf("unexpected op timeout %v", cfg.Pipeline.OpTimeout)
	}
	// Unset fields keep their defaults.
	if cfg.Tables.Type != "sqlite" {
		t.Errorf("expected sqlite default, got %s", cfg.Tables.Type)
	}
}

func TestLoadFromFile_UnsupportedFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("x = 1"), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := LoadFromFile(path); err == nil {
		t.Error("expected error for unsupported format")
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("DEHPIPE_STORAGE_TYPE", "s3")
	t.Setenv("DEHPIPE_S3_BUCKET", "sales-data")
	t.Setenv("DEHPIPE_TABLES_TYPE", "mysql")
	t.Setenv("DEHPIPE_SECRETS_PROVIDER", "secretsmanager")
	t.Setenv("DEHPIPE_SECRETS_ID", "prod/sales/db")
	t.Setenv("DEHPIPE_OP_TIMEOUT", "10s")

	cfg := DefaultConfig()
	LoadFromEnv(cfg)

	if cfg.Storage.Type != "s3" || cfg.Storage.S3.Bucket != "sales-data" {
		t.Errorf("storage env overrides not applied: %+v", cfg.Storage)
	}
	if cfg.Tables.Type != "mysql" || cfg.Secrets.SecretID != "prod/sales/db" {
		t.Errorf("table/secret env overrides not applied")
	}
	if cfg.Pipeline.OpTimeout != 10*time.Second {
		t.Errorf("unexpected op timeout %v", cfg.Pipeline.OpTimeout)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("env-built config should validate: %v", err)
	}
}
