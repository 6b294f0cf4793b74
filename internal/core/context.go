// Package core wires the four owned stores and the operations layered on
// top of them into a single handle: CoreContext.
package core

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/docmind/docmind-core/internal/config"
	"github.com/docmind/docmind-core/internal/docstore"
	"github.com/docmind/docmind-core/internal/embedding"
	"github.com/docmind/docmind-core/internal/embedstore"
	"github.com/docmind/docmind-core/internal/extract"
	"github.com/docmind/docmind-core/internal/history"
	"github.com/docmind/docmind-core/internal/indexing"
	"github.com/docmind/docmind-core/internal/invindex"
	"github.com/docmind/docmind-core/internal/rebuild"
	"github.com/docmind/docmind-core/internal/searcher"
	"github.com/docmind/docmind-core/internal/watch"
)

const (
	documentsDBName = "documents.db"
	historyDBName   = "history.db"
	bleveIndexDir   = "bleve"
	embeddingsFile  = "embeddings.bin"
)

// Context is the CoreContext handle: it exclusively owns DocumentStore,
// InvertedIndex, EmbeddingStore, and HistoryStore, and hosts the
// operations layered over them (Searcher, IndexingPipeline,
// RebuildCoordinator, ChangeWatcher).
type Context struct {
	Config  *config.Config
	Logger  *zap.Logger
	Docs    *docstore.Store
	Index   *invindex.Index
	Vector  *embedstore.Store
	History *history.Store
	Search  *searcher.Searcher
	Pipeline *indexing.Pipeline
	Rebuild  *rebuild.Coordinator
	Watcher  *watch.Watcher

	dbPath     string
	indexPath  string
	vectorPath string
}

// New opens every store under cfg.DataDir and wires the operations that
// depend on them. The caller owns the returned Context and must call
// Close when done.
func New(cfg *config.Config, logger *zap.Logger) (*Context, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	dbPath := filepath.Join(cfg.DataDir, documentsDBName)
	docs, err := docstore.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open document store: %w", err)
	}

	indexPath := filepath.Join(cfg.DataDir, bleveIndexDir)
	index, err := invindex.Open(indexPath)
	if err != nil {
		docs.Close()
		return nil, fmt.Errorf("open inverted index: %w", err)
	}

	embedder, err := embedding.NewCachedEmbedder(selectEmbedder(cfg, logger), cfg.Embedding.CacheSize)
	if err != nil {
		docs.Close()
		index.Close()
		return nil, fmt.Errorf("construct embedder: %w", err)
	}

	vectorPath := filepath.Join(cfg.DataDir, embeddingsFile)
	vector, warning := embedstore.Open(vectorPath, embedder)
	if warning != nil {
		logger.Warn("embedding store started empty", zap.Error(warning))
	}

	historyPath := filepath.Join(cfg.DataDir, historyDBName)
	hist, err := history.Open(historyPath)
	if err != nil {
		docs.Close()
		index.Close()
		return nil, fmt.Errorf("open history store: %w", err)
	}

	s := searcher.New(docs, index, vector)
	s.SetLogger(logger)
	s.UpdateWeights(cfg.Search.FullTextWeight, cfg.Search.SemanticWeight)
	s.UpdateMinSemanticSimilarity(cfg.Search.MinSemanticSimilarity)
	s.UpdateSnippetMaxLength(cfg.Search.SnippetMaxLength)

	pipeline := indexing.New(docs, index, vector, extract.NewDefaultExtractor(), indexing.Options{
		BatchSize:      cfg.Indexing.BatchSize,
		SkipEmbeddings: cfg.Indexing.SkipEmbeddings,
		Logger:         logger,
	})

	coordinator := rebuild.New(
		pipeline,
		time.Duration(cfg.Performance.RebuildTimeoutMinutes)*time.Minute,
		5*time.Second,
	)

	watcher := watch.New(cfg.IndexedFolders, extract.SupportedExtensions(), pipeline, watch.Options{
		Debounce: time.Duration(cfg.Indexing.WatcherDebounceMs) * time.Millisecond,
		Logger:   logger,
	})

	if err := sweepOrphanedIndexEntries(docs, index, logger); err != nil {
		docs.Close()
		index.Close()
		hist.Close()
		return nil, fmt.Errorf("sweep orphaned index entries: %w", err)
	}

	return &Context{
		Config:     cfg,
		Logger:     logger,
		Docs:       docs,
		Index:      index,
		Vector:     vector,
		History:    hist,
		Search:     s,
		Pipeline:   pipeline,
		Rebuild:    coordinator,
		Watcher:    watcher,
		dbPath:     dbPath,
		indexPath:  indexPath,
		vectorPath: vectorPath,
	}, nil
}

// Start begins the ChangeWatcher over the configured indexed folders.
func (c *Context) Start(ctx context.Context) error {
	return c.Watcher.Start(ctx)
}

// Close releases all four owned stores.
func (c *Context) Close() error {
	c.Watcher.Stop()
	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	record(c.Vector.Save())
	record(c.Index.Close())
	record(c.Docs.Close())
	record(c.History.Close())
	return firstErr
}

// DiskUsage reports the combined on-disk footprint of the three durable
// stores (DocumentStore's SQLite file, the InvertedIndex directory, and
// the EmbeddingStore file).
func (c *Context) DiskUsage() (int64, error) {
	var total int64

	docBytes, err := docstore.DiskUsageBytes(c.dbPath)
	if err != nil {
		return 0, err
	}
	total += docBytes

	indexBytes, err := dirSize(c.indexPath)
	if err != nil {
		return 0, err
	}
	total += indexBytes

	if info, err := os.Stat(c.vectorPath); err == nil {
		total += info.Size()
	} else if !os.IsNotExist(err) {
		return 0, err
	}

	return total, nil
}

// selectEmbedder loads the configured ONNX model when ModelPath is set,
// falling back to DeterministicEmbedder if it is unset or fails to load
// (e.g. no CGO/onnxruntime available in this build).
func selectEmbedder(cfg *config.Config, logger *zap.Logger) embedding.Embedder {
	if cfg.Embedding.ModelPath == "" {
		return embedding.NewDeterministicEmbedder(cfg.Embedding.Dimensions)
	}
	onnxEmbedder, err := embedding.NewONNXEmbedder(cfg.Embedding.ModelPath, cfg.Embedding.Dimensions, cfg.Embedding.MaxTokens)
	if err != nil {
		logger.Warn("failed to load onnx embedding model, falling back to deterministic embedder",
			zap.String("model_path", cfg.Embedding.ModelPath), zap.Error(err))
		return embedding.NewDeterministicEmbedder(cfg.Embedding.Dimensions)
	}
	return onnxEmbedder
}

// sweepOrphanedIndexEntries removes any InvertedIndex id with no matching
// DocumentStore row, so a document deleted (or never fully written) while
// the process was down does not linger in search results.
func sweepOrphanedIndexEntries(docs *docstore.Store, index *invindex.Index, logger *zap.Logger) error {
	ctx := context.Background()

	indexedIDs, err := index.AllIDs()
	if err != nil {
		return fmt.Errorf("list indexed ids: %w", err)
	}
	if len(indexedIDs) == 0 {
		return nil
	}

	stored, err := docs.List(ctx, 0, 0)
	if err != nil {
		return fmt.Errorf("list document store rows: %w", err)
	}
	known := make(map[string]struct{}, len(stored))
	for _, doc := range stored {
		known[doc.ID] = struct{}{}
	}

	var removed int
	for _, id := range indexedIDs {
		if _, ok := known[id]; ok {
			continue
		}
		if err := index.Remove(id); err != nil {
			return fmt.Errorf("remove orphaned index entry %s: %w", id, err)
		}
		removed++
	}
	if removed > 0 {
		logger.Warn("removed orphaned inverted index entries with no document store row", zap.Int("count", removed))
	}
	return nil
}

func dirSize(root string) (int64, error) {
	var total int64
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if !info.IsDir() {
			total += info.Size()
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}
