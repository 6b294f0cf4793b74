package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/docmind/docmind-core/internal/models"
)

func TestLoad_appliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(`{}`), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Search.MaxResults != 100 {
		t.Errorf("MaxResults = %d, want 100", cfg.Search.MaxResults)
	}
	if cfg.Search.DefaultMode != models.ModeHybrid {
		t.Errorf("DefaultMode = %s, want hybrid", cfg.Search.DefaultMode)
	}
	if cfg.Search.FullTextWeight != 0.6 || cfg.Search.SemanticWeight != 0.4 {
		t.Errorf("weights = (%v, %v), want (0.6, 0.4)", cfg.Search.FullTextWeight, cfg.Search.SemanticWeight)
	}
	if cfg.Performance.RebuildTimeoutMinutes != 30 {
		t.Errorf("RebuildTimeoutMinutes = %d, want 30", cfg.Performance.RebuildTimeoutMinutes)
	}
	if cfg.Embedding.Dimensions != 384 {
		t.Errorf("Embedding.Dimensions = %d, want 384", cfg.Embedding.Dimensions)
	}
	if cfg.Embedding.ModelPath != "" {
		t.Errorf("Embedding.ModelPath = %q, want empty by default (falls back to the deterministic embedder)", cfg.Embedding.ModelPath)
	}
}

func TestLoad_explicitValuesOverrideDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	content := `{
		"data_dir": "./data",
		"indexed_folders": ["./docs"],
		"search": {"max_results": 25, "full_text_weight": 0.8, "semantic_weight": 0.2},
		"performance": {"rebuild_timeout_minutes": 10}
	}`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Search.MaxResults != 25 {
		t.Errorf("MaxResults = %d, want 25", cfg.Search.MaxResults)
	}
	if cfg.Performance.RebuildTimeoutMinutes != 10 {
		t.Errorf("RebuildTimeoutMinutes = %d, want 10", cfg.Performance.RebuildTimeoutMinutes)
	}
	wantDataDir := filepath.Join(dir, "data")
	if cfg.DataDir != wantDataDir {
		t.Errorf("DataDir = %s, want %s", cfg.DataDir, wantDataDir)
	}
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	cfg := &Config{DataDir: dir, IndexedFolders: []string{"/tmp/docs"}}
	ApplyDefaults(cfg)

	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	reloaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if reloaded.Search.MaxResults != cfg.Search.MaxResults {
		t.Errorf("MaxResults mismatch after round trip: %d vs %d", reloaded.Search.MaxResults, cfg.Search.MaxResults)
	}
}

func TestLoad_missingFileReturnsError(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
