package janitor

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jkaninda/sanduku/internal/config"
	"github.com/jkaninda/sanduku/internal/workspace"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNew_InvalidSchedule(t *testing.T) {
	ws, err := workspace.New(t.TempDir())
	if err != nil {
		t.Fatalf("workspace.New: %v", err)
	}

	_, err = New(&config.JanitorConfig{Schedule: "not a cron expr"}, ws, nil, testLogger())
	if err == nil {
		t.Fatal("New accepted invalid cron expression")
	}
}

func TestSweep_RemovesStaleEntries(t *testing.T) {
	root := t.TempDir()
	ws, err := workspace.New(root)
	if err != nil {
		t.Fatalf("workspace.New: %v", err)
	}

	stale := filepath.Join(root, "stale.txt")
	fresh := filepath.Join(root, "fresh.txt")
	for _, p := range []string{stale, fresh} {
		if err := os.WriteFile(p, []byte("x"), 0o600); err != nil {
			t.Fatalf("writing %s: %v", p, err)
		}
	}
	old := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(stale, old, old); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}

	j, err := New(&config.JanitorConfig{MaxAgeSeconds: 3600}, ws, nil, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	j.sweep(context.Background())

	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("stale file survived sweep")
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Errorf("fresh file removed by sweep: %v", err)
	}
}

func TestStart_StopsOnCancel(t *testing.T) {
	ws, err := workspace.New(t.TempDir())
	if err != nil {
		t.Fatalf("workspace.New: %v", err)
	}
	j, err := New(&config.JanitorConfig{}, ws, nil, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	stop := j.Start(context.Background())
	stop() // must not hang or panic
}
