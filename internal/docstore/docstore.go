// Package docstore is the persistent source of truth for document metadata
// and content: the DocumentStore component.
package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/docmind/docmind-core/internal/models"
)

// Stats summarizes the document population.
type Stats struct {
	TotalDocs     int64
	TotalSize     int64
	PerTypeCounts map[models.FileType]int64
	LastUpdated   time.Time
}

// Store is the DocumentStore: a SQLite-backed, path- and id-keyed mapping
// from document id to its metadata and content.
type Store struct {
	db *sql.DB
}

// Open creates or opens a SQLite database at dbPath and ensures its schema.
// Parent directories are created if missing.
func Open(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, models.NewCoreError(models.ErrStorage, err, "create database directory %s", dir)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, models.NewCoreError(models.ErrStorage, err, "open database %s", dbPath)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, models.NewCoreError(models.ErrStorage, err, "enable WAL mode")
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, models.NewCoreError(models.ErrStorage, err, "initialize schema")
	}
	return &Store{db: db}, nil
}

func initSchema(db *sql.DB) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		file_path TEXT NOT NULL UNIQUE,
		title TEXT,
		content TEXT NOT NULL,
		file_type TEXT NOT NULL,
		size INTEGER NOT NULL,
		created_at TIMESTAMP NOT NULL,
		modified_at TIMESTAMP NOT NULL,
		indexed_at TIMESTAMP NOT NULL,
		content_hash TEXT NOT NULL,
		metadata TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_documents_indexed_at ON documents(indexed_at);
	CREATE INDEX IF NOT EXISTS idx_documents_file_type ON documents(file_type);
	CREATE INDEX IF NOT EXISTS idx_documents_modified_at ON documents(modified_at);
	`
	_, err := db.Exec(schema)
	return err
}

// Upsert writes doc, replacing any existing row with the same id.
func (s *Store) Upsert(ctx context.Context, doc *models.Document) error {
	metadataJSON, err := json.Marshal(doc.Metadata)
	if err != nil {
		return models.NewCoreError(models.ErrStorage, err, "marshal metadata for %s", doc.ID)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO documents (id, file_path, title, content, file_type, size, created_at, modified_at, indexed_at, content_hash, metadata)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			file_path = excluded.file_path,
			title = excluded.title,
			content = excluded.content,
			file_type = excluded.file_type,
			size = excluded.size,
			created_at = excluded.created_at,
			modified_at = excluded.modified_at,
			indexed_at = excluded.indexed_at,
			content_hash = excluded.content_hash,
			metadata = excluded.metadata`,
		doc.ID, doc.FilePath, doc.Title, doc.Content, string(doc.FileType), doc.Size,
		doc.CreatedAt, doc.ModifiedAt, doc.IndexedAt, doc.ContentHash, string(metadataJSON),
	)
	if err != nil {
		return models.NewCoreError(models.ErrStorage, err, "upsert document %s", doc.ID)
	}
	return nil
}

// Get returns the document with the given id, or nil if none exists.
func (s *Store) Get(ctx context.Context, id string) (*models.Document, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` FROM documents WHERE id = ?`, id)
	return scanOptional(row)
}

// GetByPath returns the document at the given file path, or nil if none exists.
func (s *Store) GetByPath(ctx context.Context, path string) (*models.Document, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` FROM documents WHERE file_path = ?`, path)
	return scanOptional(row)
}

// Delete removes the document with the given id and reports whether a row was removed.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return false, models.NewCoreError(models.ErrStorage, err, "delete document %s", id)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// DeleteByPath removes the document at path and reports whether a row was removed.
func (s *Store) DeleteByPath(ctx context.Context, path string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE file_path = ?`, path)
	if err != nil {
		return false, models.NewCoreError(models.ErrStorage, err, "delete document at %s", path)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// List returns documents newest-indexed-first, paginated by limit/offset.
// limit <= 0 means no limit.
func (s *Store) List(ctx context.Context, limit, offset int) ([]*models.Document, error) {
	query := selectColumns + ` FROM documents ORDER BY indexed_at DESC`
	var args []interface{}
	if limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, limit, offset)
	}
	return s.query(ctx, query, args...)
}

// ListByType returns documents of the given file type, newest first.
func (s *Store) ListByType(ctx context.Context, fileType models.FileType) ([]*models.Document, error) {
	return s.query(ctx, selectColumns+` FROM documents WHERE file_type = ? ORDER BY indexed_at DESC`, string(fileType))
}

// ListModifiedAfter returns documents whose modified_at is strictly after ts.
func (s *Store) ListModifiedAfter(ctx context.Context, ts time.Time) ([]*models.Document, error) {
	return s.query(ctx, selectColumns+` FROM documents WHERE modified_at > ? ORDER BY modified_at DESC`, ts)
}

// SearchTitles returns documents whose title contains substr (case-insensitive).
func (s *Store) SearchTitles(ctx context.Context, substr string) ([]*models.Document, error) {
	return s.query(ctx, selectColumns+` FROM documents WHERE title LIKE ? ORDER BY indexed_at DESC`, "%"+substr+"%")
}

// Count returns the total number of stored documents.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&n)
	if err != nil {
		return 0, models.NewCoreError(models.ErrStorage, err, "count documents")
	}
	return n, nil
}

// Stats aggregates per-type counts, total size, and last_updated.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{PerTypeCounts: make(map[models.FileType]int64)}

	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*), COALESCE(SUM(size), 0) FROM documents`)
	if err := row.Scan(&stats.TotalDocs, &stats.TotalSize); err != nil {
		return nil, models.NewCoreError(models.ErrStorage, err, "aggregate stats")
	}
	if stats.TotalDocs > 0 {
		if err := s.db.QueryRowContext(ctx, `SELECT indexed_at FROM documents ORDER BY indexed_at DESC LIMIT 1`).Scan(&stats.LastUpdated); err != nil {
			return nil, models.NewCoreError(models.ErrStorage, err, "read last-updated timestamp")
		}
	}

	rows, err := s.db.QueryContext(ctx, `SELECT file_type, COUNT(*) FROM documents GROUP BY file_type`)
	if err != nil {
		return nil, models.NewCoreError(models.ErrStorage, err, "aggregate per-type counts")
	}
	defer rows.Close()
	for rows.Next() {
		var ft string
		var count int64
		if err := rows.Scan(&ft, &count); err != nil {
			return nil, models.NewCoreError(models.ErrStorage, err, "scan per-type count")
		}
		stats.PerTypeCounts[models.FileType(ft)] = count
	}
	return stats, rows.Err()
}

// DiskUsageBytes returns the size in bytes of the underlying database file
// (including its WAL/shm siblings, when present).
func DiskUsageBytes(dbPath string) (int64, error) {
	var total int64
	for _, suffix := range []string{"", "-wal", "-shm"} {
		info, err := os.Stat(dbPath + suffix)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return 0, err
		}
		total += info.Size()
	}
	return total, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

const selectColumns = `SELECT id, file_path, title, content, file_type, size, created_at, modified_at, indexed_at, content_hash, metadata`

func (s *Store) query(ctx context.Context, query string, args ...interface{}) ([]*models.Document, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, models.NewCoreError(models.ErrStorage, err, "query documents")
	}
	defer rows.Close()

	var docs []*models.Document
	for rows.Next() {
		doc, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRow(row scanner) (*models.Document, error) {
	var doc models.Document
	var fileType, metadataJSON string
	if err := row.Scan(&doc.ID, &doc.FilePath, &doc.Title, &doc.Content, &fileType, &doc.Size,
		&doc.CreatedAt, &doc.ModifiedAt, &doc.IndexedAt, &doc.ContentHash, &metadataJSON); err != nil {
		return nil, err
	}
	doc.FileType = models.FileType(fileType)
	if metadataJSON != "" && metadataJSON != "null" {
		if err := json.Unmarshal([]byte(metadataJSON), &doc.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	return &doc, nil
}

func scanOptional(row *sql.Row) (*models.Document, error) {
	doc, err := scanRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, models.NewCoreError(models.ErrStorage, err, "scan document")
	}
	return doc, nil
}
