package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/foxzi/templar/internal/config"
)

func TestGenerateConfig(t *testing.T) {
	initListenAddr = "127.0.0.1:8787"
	initDataDir = "/tmp/templar-data"
	initAPIKey = "test-key"
	initMetrics = true

	content := generateConfig()

	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write generated config: %v", err)
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		t.Fatalf("generated config does not load: %v", err)
	}

	if cfg.API.ListenAddr != "127.0.0.1:8787" {
		t.Errorf("listen addr = %q, want 127.0.0.1:8787", cfg.API.ListenAddr)
	}
	if cfg.API.APIKey != "test-key" {
		t.Errorf("api key = %q, want test-key", cfg.API.APIKey)
	}
	if cfg.Storage.Path != "/tmp/templar-data/templar.db" {
		t.Errorf("storage path = %q", cfg.Storage.Path)
	}
	if !cfg.Metrics.Enabled {
		t.Error("metrics not enabled in generated config")
	}
}

func TestGenerateRandomString(t *testing.T) {
	a := generateRandomString(32)
	b := generateRandomString(32)

	if len(a) != 32 {
		t.Errorf("length = %d, want 32", len(a))
	}
	if a == b {
		t.Error("two generated keys are identical")
	}
}
