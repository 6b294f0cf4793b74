// Package models defines the core data structures shared across the search core.
package models

import "time"

// FileType is a tagged variant of the supported document formats.
type FileType string

const (
	FileTypePdf          FileType = "pdf"
	FileTypeWord         FileType = "word"
	FileTypeExcel        FileType = "excel"
	FileTypePresentation FileType = "presentation"
	FileTypeMarkdown     FileType = "markdown"
	FileTypeText         FileType = "text"
	FileTypeUnknown      FileType = "unknown"
)

// Document is one indexed file.
type Document struct {
	ID           string                 `json:"id"`
	FilePath     string                 `json:"file_path"`
	Title        string                 `json:"title"`
	Content      string                 `json:"content"`
	FileType     FileType               `json:"file_type"`
	Size         int64                  `json:"size"`
	CreatedAt    time.Time              `json:"created_at"`
	ModifiedAt   time.Time              `json:"modified_at"`
	IndexedAt    time.Time              `json:"indexed_at"`
	ContentHash  string                 `json:"content_hash"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// IsStale reports whether the on-disk file has changed since this record was indexed:
// either its modification time is newer than IndexedAt, or its recomputed content hash differs.
func (d *Document) IsStale(diskModTime time.Time, recomputedHash string) bool {
	if diskModTime.After(d.IndexedAt) {
		return true
	}
	return recomputedHash != d.ContentHash
}

// Embedding is the dense vector representation of one document's content.
type Embedding struct {
	DocID     string    `json:"doc_id"`
	Vector    []float32 `json:"vector"`
	TextHash  string    `json:"text_hash"`
	CreatedAt time.Time `json:"created_at"`
}

// IsFresh reports whether the embedding is valid for the given current content hash.
func (e *Embedding) IsFresh(currentContentHash string) bool {
	return e.TextHash == currentContentHash
}
