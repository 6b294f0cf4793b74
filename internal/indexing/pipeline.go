// Package indexing is the directory-walking bulk indexer: the
// IndexingPipeline component.
package indexing

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/docmind/docmind-core/internal/docstore"
	"github.com/docmind/docmind-core/internal/embedstore"
	"github.com/docmind/docmind-core/internal/extract"
	"github.com/docmind/docmind-core/internal/fileid"
	"github.com/docmind/docmind-core/internal/invindex"
	"github.com/docmind/docmind-core/internal/models"
)

const defaultBatchSize = 100

// ProgressEmitter receives point-in-time RebuildProgress updates during a run.
type ProgressEmitter func(models.RebuildProgress)

// Options configures one Pipeline run.
type Options struct {
	BatchSize      int
	SkipEmbeddings bool
	Logger         *zap.Logger
}

// Pipeline walks a directory tree, extracts supported files, and upserts
// them into DocumentStore, InvertedIndex, and (unless SkipEmbeddings is set)
// EmbeddingStore.
type Pipeline struct {
	docs      *docstore.Store
	index     *invindex.Index
	vector    *embedstore.Store
	extractor extract.Extractor
	opts      Options
}

// New builds a Pipeline over the given stores and extractor.
func New(docs *docstore.Store, index *invindex.Index, vector *embedstore.Store, extractor extract.Extractor, opts Options) *Pipeline {
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	return &Pipeline{docs: docs, index: index, vector: vector, extractor: extractor, opts: opts}
}

var allowedExtensions = buildAllowedExtensionSet()

func buildAllowedExtensionSet() map[string]bool {
	set := make(map[string]bool)
	for _, ext := range extract.SupportedExtensions() {
		set["."+ext] = true
	}
	return set
}

// Run walks root, processing every file whose extension is supported,
// emitting progress via emit. It never aborts the whole run for one file's
// extraction failure; such files are recorded in CompletionStats.FilesFailed.
func (p *Pipeline) Run(ctx context.Context, root string, emit ProgressEmitter) (*models.CompletionStats, error) {
	start := time.Now()
	if emit == nil {
		emit = func(models.RebuildProgress) {}
	}

	emit(models.RebuildProgress{Stage: models.StageScanning})
	paths, err := p.scan(root)
	if err != nil {
		return nil, models.NewCoreError(models.ErrIndexing, err, "scan directory %s", root)
	}
	emit(models.RebuildProgress{Stage: models.StageScanning, TotalFiles: len(paths)})

	stats := &models.CompletionStats{}
	cancelled := false
	for i, path := range paths {
		if ctx.Err() != nil {
			cancelled = true
			break
		}
		emit(models.RebuildProgress{
			Stage:          models.StageProcessing,
			CurrentFile:    path,
			FilesProcessed: i,
			TotalFiles:     len(paths),
		})

		added, err := p.processFile(ctx, path)
		if err != nil {
			stats.FilesFailed++
			p.logFailure(path, err)
			continue
		}
		stats.FilesProcessed++
		if added {
			stats.DocumentsAdded++
		}

		if (i+1)%p.opts.BatchSize == 0 {
			if err := p.flush(); err != nil {
				return nil, err
			}
		}
	}

	emit(models.RebuildProgress{Stage: models.StageIndexing, FilesProcessed: stats.FilesProcessed, TotalFiles: len(paths)})
	if err := p.flush(); err != nil {
		return nil, err
	}
	if err := p.index.Optimize(); err != nil {
		return nil, models.NewCoreError(models.ErrIndexing, err, "optimize inverted index")
	}

	stats.ElapsedSeconds = time.Since(start).Seconds()
	if cancelled {
		// Report what was actually processed against the scan total, so
		// Percentage() does not read as a completed run.
		emit(models.RebuildProgress{
			Stage:          models.StageIndexing,
			CurrentFile:    "cancelled",
			FilesProcessed: stats.FilesProcessed,
			TotalFiles:     len(paths),
		})
		return stats, nil
	}
	emit(models.RebuildProgress{Stage: models.StageCompleted, FilesProcessed: stats.FilesProcessed, TotalFiles: len(paths)})
	return stats, nil
}

// ProcessSingleFile runs the same per-file logic Run uses for one path; it
// is the entry point ChangeWatcher uses for incremental upserts.
func (p *Pipeline) ProcessSingleFile(ctx context.Context, path string) error {
	_, err := p.processFile(ctx, path)
	if err != nil {
		return err
	}
	return p.flush()
}

// RemoveFile synchronously removes path's document from all three stores.
func (p *Pipeline) RemoveFile(ctx context.Context, path string) error {
	id := fileid.FromPath(path)
	if err := p.index.Remove(id); err != nil {
		return err
	}
	p.vector.Remove(id)
	if _, err := p.docs.Delete(ctx, id); err != nil {
		return err
	}
	return p.vector.Save()
}

func (p *Pipeline) scan(root string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if !allowedExtensions[ext] {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	return paths, err
}

// processFile returns whether a new or updated document was actually
// written (false when the file was skipped as unchanged).
func (p *Pipeline) processFile(ctx context.Context, path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return false, err
	}
	id := fileid.FromPath(path)

	existing, err := p.docs.Get(ctx, id)
	if err != nil {
		return false, err
	}
	if existing != nil && !info.ModTime().After(existing.IndexedAt) && info.Size() == existing.Size {
		return false, nil
	}

	extracted, err := p.extractor.Process(path)
	if err != nil {
		return false, err
	}

	doc := &models.Document{
		ID:          id,
		FilePath:    path,
		Title:       extracted.Title,
		Content:     extracted.Content,
		FileType:    extracted.FileType,
		Size:        extracted.Size,
		CreatedAt:   extracted.CreatedAt,
		ModifiedAt:  extracted.ModifiedAt,
		IndexedAt:   time.Now().UTC(),
		ContentHash: fileid.ContentHash(extracted.Content),
	}
	if err := p.docs.Upsert(ctx, doc); err != nil {
		return false, err
	}
	if !p.opts.SkipEmbeddings {
		if err := p.vector.Upsert(ctx, doc.ID, doc.Content); err != nil {
			return false, err
		}
	}
	if err := p.index.Add(doc); err != nil {
		return false, err
	}
	return true, nil
}

func (p *Pipeline) flush() error {
	if p.opts.SkipEmbeddings {
		return nil
	}
	return p.vector.Save()
}

func (p *Pipeline) logFailure(path string, err error) {
	if p.opts.Logger == nil {
		return
	}
	p.opts.Logger.Warn("indexing pipeline failed to process file", zap.String("path", path), zap.Error(err))
}
