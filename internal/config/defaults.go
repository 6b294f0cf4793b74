package config

import "github.com/docmind/docmind-core/internal/models"

// ApplyDefaults sets default values for any zero fields in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.DataDir == "" {
		cfg.DataDir = "./docmind-data"
	}
	if cfg.Search.MaxResults == 0 {
		cfg.Search.MaxResults = 100
	}
	if cfg.Search.DefaultMode == "" {
		cfg.Search.DefaultMode = models.ModeHybrid
	}
	if cfg.Search.FullTextWeight == 0 && cfg.Search.SemanticWeight == 0 {
		cfg.Search.FullTextWeight = 0.6
		cfg.Search.SemanticWeight = 0.4
	}
	if cfg.Search.MinSemanticSimilarity == 0 {
		cfg.Search.MinSemanticSimilarity = 0.1
	}
	if cfg.Search.SnippetMaxLength == 0 {
		cfg.Search.SnippetMaxLength = 200
	}
	if cfg.Indexing.BatchSize == 0 {
		cfg.Indexing.BatchSize = 100
	}
	if cfg.Indexing.WatcherDebounceMs == 0 {
		cfg.Indexing.WatcherDebounceMs = 500
	}
	if cfg.Performance.SearchTimeoutSeconds == 0 {
		cfg.Performance.SearchTimeoutSeconds = 5
	}
	if cfg.Performance.RebuildTimeoutMinutes == 0 {
		cfg.Performance.RebuildTimeoutMinutes = 30
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 384
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
}
