// Package main implements the dehpipe binary. One invocation processes one
// landed sales file: validate, load, archive, aggregate, notify.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/dehpipe/dehpipe/internal/app"
	"github.com/dehpipe/dehpipe/internal/config"
	"github.com/dehpipe/dehpipe/pkg/types"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	var (
		configFile  string
		dataDir     string
		bucket      string
		key         string
		showVersion bool
		showHelp    bool
	)

	flag.StringVar(&configFile, "config", "", "Path to configuration file (YAML or JSON)")
	flag.StringVar(&dataDir, "data-dir", "", "Base directory for local data files")
	flag.StringVar(&bucket, "bucket", "", "Bucket holding the landed file (s3 storage)")
	flag.StringVar(&key, "key", "", "Object key of the landed file, e.g. landing/sales.csv")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.BoolVar(&showHelp, "help", false, "Show help message")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "dehpipe - sales data validation and load pipeline\n\n")
		fmt.Fprintf(os.Stderr, "Usage: dehpipe [options] -key <object-key>\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  dehpipe -key landing/sales.csv -data-dir /data/dehpipe\n")
		fmt.Fprintf(os.Stderr, "  dehpipe -config /etc/dehpipe/config.yaml -bucket sales-data -key landing/sales.json\n")
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(os.Stderr, "  DEHPIPE_DATA_DIR       Base directory for local data files\n")
		fmt.Fprintf(os.Stderr, "  DEHPIPE_STORAGE_TYPE   Storage type (local, s3)\n")
		fmt.Fprintf(os.Stderr, "  DEHPIPE_S3_BUCKET      S3 bucket name\n")
		fmt.Fprintf(os.Stderr, "  DEHPIPE_TABLES_TYPE    Table store type (sqlite, mysql)\n")
		fmt.Fprintf(os.Stderr, "  DEHPIPE_NOTIFY_TYPE    Notifier type (log, sns)\n")
	}

	flag.Parse()

	if showHelp {
		flag.Usage()
		os.Exit(0)
	}
	if showVersion {
		fmt.Printf("dehpipe version %s (commit: %s)\n", version, commit)
		os.Exit(0)
	}
	if key == "" {
		fmt.Fprintf(os.Stderr, "error: -key is required\n\n")
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := loadConfig(configFile, dataDir, bucket)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	application, err := app.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create application: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	if err := application.Start(ctx); err != nil {
		log.Fatalf("Failed to start application: %v", err)
	}
	defer application.Stop()

	res, err := application.Process(ctx, types.FileLocation{Bucket: cfg.Storage.S3.Bucket, Key: key})
	if err != nil {
		log.Fatalf("Pipeline failed: %v", err)
	}

	log.Printf("Pipeline finished: state=%s received=%d loaded=%d deduplicated=%d",
		res.State, res.RowsReceived, res.RowsLoaded, res.RowsDeduped)
}

// loadConfig loads configuration from file, environment, and command line flags.
func loadConfig(configFile, dataDir, bucket string) (*config.Config, error) {
	var cfg *config.Config
	var err error

	if configFile != "" {
		cfg, err = config.LoadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	} else {
		cfg = config.DefaultConfig()
	}

	config.LoadFromEnv(cfg)

	// Command line flags take highest priority.
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if bucket != "" {
		cfg.Storage.Type = "s3"
		cfg.Storage.S3.Bucket = bucket
	}

	return cfg, nil
}
