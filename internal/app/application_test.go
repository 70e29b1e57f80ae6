package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"audiencehub/internal/config"
)

func testConfig(t *testing.T) config.Config {
	cfg := config.DefaultConfig()
	cfg.DatabaseURL = filepath.Join(t.TempDir(), "audiencehub.db")
	cfg.Port = 18001
	return cfg
}

func TestNewApplication_RejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Port = -1

	if _, err := NewApplication(cfg); err == nil {
		t.Error("expected an invalid config to fail construction, got nil error")
	}
}

func TestNewApplication_WiresEveryComponent(t *testing.T) {
	cfg := testConfig(t)

	app, err := NewApplication(cfg)
	if err != nil {
		t.Fatalf("NewApplication() error = %v", err)
	}
	defer app.Stop(context.Background())

	if app.persistence == nil || app.store == nil || app.hub == nil || app.aggregator == nil {
		t.Fatal("expected every component to be constructed")
	}
	if app.httpServer.Handler == nil {
		t.Fatal("expected the boundary handler to be wired into the http server")
	}
}

func TestApplication_StartStopLifecycle(t *testing.T) {
	cfg := testConfig(t)

	application, err := NewApplication(cfg)
	if err != nil {
		t.Fatalf("NewApplication() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := application.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := application.Stop(shutdownCtx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
}

func TestApplication_MetricsServerOnlyStartsWhenConfigured(t *testing.T) {
	cfg := testConfig(t)

	application, err := NewApplication(cfg)
	if err != nil {
		t.Fatalf("NewApplication() error = %v", err)
	}
	if application.metricsServer != nil {
		t.Error("expected no metrics server when MetricsAddr is empty")
	}

	cfg2 := testConfig(t)
	cfg2.MetricsAddr = "127.0.0.1:0"
	application2, err := NewApplication(cfg2)
	if err != nil {
		t.Fatalf("NewApplication() error = %v", err)
	}
	if application2.metricsServer == nil {
		t.Error("expected a metrics server when MetricsAddr is set")
	}
}
