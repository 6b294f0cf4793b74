// Package config provides configuration loading and defaults for docmind-core.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/docmind/docmind-core/internal/models"
)

// Config holds all runtime settings for the core.
type Config struct {
	DataDir        string          `json:"data_dir"`
	IndexedFolders []string        `json:"indexed_folders"`
	Search         SearchConfig    `json:"search"`
	Indexing       IndexingConfig  `json:"indexing"`
	Performance    PerformanceConfig `json:"performance"`
	Embedding      EmbeddingConfig `json:"embedding"`
}

// EmbeddingConfig selects and sizes the Embedder used by the core. When
// ModelPath is empty (or the model fails to load), the core falls back to
// DeterministicEmbedder so search keeps working without a real model.
type EmbeddingConfig struct {
	ModelPath  string `json:"model_path"`
	Dimensions int    `json:"dimensions"`
	MaxTokens  int    `json:"max_tokens"`
	CacheSize  int    `json:"cache_size"`
}

// SearchConfig holds Searcher defaults.
type SearchConfig struct {
	MaxResults            int              `json:"max_results"`
	DefaultMode           models.SearchMode `json:"default_mode"`
	FullTextWeight        float64          `json:"full_text_weight"`
	SemanticWeight        float64          `json:"semantic_weight"`
	MinSemanticSimilarity float64          `json:"min_semantic_similarity"`
	SnippetMaxLength      int              `json:"snippet_max_length"`
}

// IndexingConfig holds IndexingPipeline / ChangeWatcher defaults.
type IndexingConfig struct {
	BatchSize         int  `json:"batch_size"`
	SkipEmbeddings    bool `json:"skip_embeddings"`
	WatcherDebounceMs int  `json:"watcher_debounce_ms"`
}

// PerformanceConfig holds search and rebuild timeout budgets.
type PerformanceConfig struct {
	SearchTimeoutSeconds  int `json:"search_timeout_seconds"`
	RebuildTimeoutMinutes int `json:"rebuild_timeout_minutes"`
}

// Load reads and parses the config file at path, expands relative paths,
// and fills in defaults for anything left unset.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.DataDir = expandPath(cfg.DataDir, configDir)
	for i := range cfg.IndexedFolders {
		cfg.IndexedFolders[i] = expandPath(cfg.IndexedFolders[i], configDir)
	}
	return &cfg, nil
}

// Save writes cfg to path as indented JSON, used for persisting changes
// such as an added or removed indexed folder.
func Save(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts path to absolute. Paths starting with "./" are
// relative to configDir; other relative paths are relative to the home
// directory.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
