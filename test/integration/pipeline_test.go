// Package integration provides end-to-end tests that run a file through the
// fully wired application: config, storage, table store and pipeline.
package integration

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dehpipe/dehpipe/internal/app"
	"github.com/dehpipe/dehpipe/internal/config"
	"github.com/dehpipe/dehpipe/internal/pipeline"
	"github.com/dehpipe/dehpipe/pkg/types"
)

func setupApp(t *testing.T) (*app.App, string) {
	t.Helper()

	dataDir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.DataDir = dataDir
	cfg.Pipeline.OpTimeout = 10 * time.Second

	application, err := app.New(cfg)
	if err != nil {
		t.Fatalf("failed to create app: %v", err)
	}
	if err := application.Start(context.Background()); err != nil {
		t.Fatalf("failed to start app: %v", err)
	}
	t.Cleanup(application.Stop)

	return application, filepath.Join(dataDir, "storage")
}

func landFile(t *testing.T, storageDir, name, content string) {
	t.Helper()
	path := filepath.Join(storageDir, "landing", name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("failed to create landing dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to land file: %v", err)
	}
}

func salesCSV(n int) string {
	var b strings.Builder
	b.WriteString("uuid,country,item_type,sales_channel,order_priority,order_date,order_id,ship_date,units_sold,unit_price,unit_cost\n")
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "order-%03d,Canada,Cereal,Offline,C,4/18/2026,%d,5/2/2026,%d,205.70,117.11\n",
			i, 100000+i, i+1)
	}
	return b.String()
}

func TestEndToEnd_CleanFile(t *testing.T) {
	application, storageDir := setupApp(t)
	landFile(t, storageDir, "sales.csv", salesCSV(10))

	res, err := application.Process(context.Background(),
		types.FileLocation{Key: "landing/sales.csv"})
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if res.State != pipeline.StateDone {
		t.Errorf("expected DONE, got %s", res.State)
	}
	if res.RowsLoaded != 10 {
		t.Errorf("expected 10 rows loaded, got %d", res.RowsLoaded)
	}

	// The landing file is gone, the archive blob exists.
	if _, err := os.Stat(filepath.Join(storageDir, "landing", "sales.csv")); !os.IsNotExist(err) {
		t.Error("landing file should be removed")
	}
	if _, err := os.Stat(filepath.Join(storageDir, res.ArchivePath)); err != nil {
		t.Errorf("archive blob missing at %s: %v", res.ArchivePath, err)
	}
}

func TestEndToEnd_ReprocessingIsSafe(t *testing.T) {
	application, storageDir := setupApp(t)
	ctx := context.Background()

	landFile(t, storageDir, "sales.csv", salesCSV(10))
	if _, err := application.Process(ctx, types.FileLocation{Key: "landing/sales.csv"}); err != nil {
		t.Fatalf("first Process failed: %v", err)
	}

	// Duplicate trigger: same content landed again.
	landFile(t, storageDir, "sales.csv", salesCSV(10))
	res, err := application.Process(ctx, types.FileLocation{Key: "landing/sales.csv"})
	if err != nil {
		t.Fatalf("second Process failed: %v", err)
	}
	if res.RowsLoaded != 0 || res.RowsDeduped != 10 {
		t.Errorf("expected 0 loaded and 10 deduped on replay, got loaded=%d deduped=%d",
			res.RowsLoaded, res.RowsDeduped)
	}
}

func TestEndToEnd_InvalidFileQuarantined(t *testing.T) {
	application, storageDir := setupApp(t)

	// order_date column carries a non-date value.
	body := "uuid,country,item_type,sales_channel,order_priority,order_date,order_id,ship_date,units_sold,unit_price,unit_cost\n" +
		"x,Canada,Cereal,Offline,C,not-a-date,100001,5/2/2026,3,205.70,117.11\n"
	landFile(t, storageDir, "bad.csv", body)

	res, err := application.Process(context.Background(),
		types.FileLocation{Key: "landing/bad.csv"})
	if err != nil {
		t.Fatalf("Process returned error on quarantine path: %v", err)
	}
	if res.State != pipeline.StateQuarantined {
		t.Errorf("expected QUARANTINED, got %s", res.State)
	}
	if _, err := os.Stat(filepath.Join(storageDir, res.QuarantinePath)); err != nil {
		t.Errorf("quarantined file missing at %s: %v", res.QuarantinePath, err)
	}
}
