// Package extract provides the Extractor capability and a reference implementation.
//
// Per spec §1 the core only consumes an Extractor; format-specific parsing is
// a delegated concern. This package is the reference delegate used by
// cmd/docmind and by tests — any other implementation satisfying Extractor
// works equally well with internal/indexing.
package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/docmind/docmind-core/internal/models"
)

// ExtractKind tags an extraction failure.
type ExtractKind string

const (
	ExtractUnsupported ExtractKind = "unsupported"
	ExtractUnreadable  ExtractKind = "unreadable"
	ExtractCorrupted   ExtractKind = "corrupted"
	ExtractEmpty       ExtractKind = "empty"
)

// ExtractError is the error variant returned by Extractor.Process.
type ExtractError struct {
	Kind ExtractKind
	Path string
	Err  error
}

func (e *ExtractError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("extract %s: %s: %v", e.Path, e.Kind, e.Err)
	}
	return fmt.Sprintf("extract %s: %s", e.Path, e.Kind)
}

func (e *ExtractError) Unwrap() error { return e.Err }

// Extracted is the per-file output of an Extractor.
type Extracted struct {
	FilePath   string
	FileType   models.FileType
	Title      string
	Content    string
	Size       int64
	CreatedAt  time.Time
	ModifiedAt time.Time
}

// Extractor maps a file path to its extracted plain text and metadata.
type Extractor interface {
	Process(path string) (*Extracted, error)
}

var extensionTypes = map[string]models.FileType{
	".pdf":      models.FileTypePdf,
	".doc":      models.FileTypeWord,
	".docx":     models.FileTypeWord,
	".odt":      models.FileTypeWord,
	".rtf":      models.FileTypeWord,
	".xls":      models.FileTypeExcel,
	".xlsx":     models.FileTypeExcel,
	".ods":      models.FileTypeExcel,
	".ppt":      models.FileTypePresentation,
	".pptx":     models.FileTypePresentation,
	".odp":      models.FileTypePresentation,
	".md":       models.FileTypeMarkdown,
	".markdown": models.FileTypeMarkdown,
	".txt":      models.FileTypeText,
}

// FileTypeForExt returns the FileType tag for a (lowercased, dotted) extension,
// defaulting to FileTypeUnknown.
func FileTypeForExt(ext string) models.FileType {
	if ft, ok := extensionTypes[strings.ToLower(ext)]; ok {
		return ft
	}
	return models.FileTypeUnknown
}

// SupportedExtensions lists the extensions IndexingPipeline's directory walk accepts.
func SupportedExtensions() []string {
	return []string{
		"pdf", "doc", "docx", "odt", "rtf",
		"xls", "xlsx", "ods",
		"ppt", "pptx", "odp",
		"md", "markdown", "txt",
	}
}

// DefaultExtractor is the reference Extractor: plain text for .txt/.md,
// delegated PDF/Excel/Word parsing for the binary formats.
type DefaultExtractor struct{}

// NewDefaultExtractor returns the reference Extractor implementation.
func NewDefaultExtractor() *DefaultExtractor { return &DefaultExtractor{} }

// Process reads path and extracts title/content/file_type/size/timestamps.
func (e *DefaultExtractor) Process(path string) (*Extracted, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &ExtractError{Kind: ExtractUnreadable, Path: path, Err: err}
	}
	if !info.Mode().IsRegular() {
		return nil, &ExtractError{Kind: ExtractUnsupported, Path: path, Err: fmt.Errorf("not a regular file")}
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &ExtractError{Kind: ExtractUnreadable, Path: path, Err: err}
	}
	ext := strings.ToLower(filepath.Ext(path))
	fileType := FileTypeForExt(ext)

	var content string
	switch ext {
	case ".pdf":
		content, err = extractPDF(raw)
	case ".xls", ".xlsx":
		content, err = extractExcel(raw)
	case ".ods":
		content, err = extractOds(raw)
	case ".doc", ".docx", ".odt", ".rtf":
		content, err = extractDocx(raw)
	case ".ppt", ".pptx":
		content, err = extractPptx(raw)
	case ".odp":
		content, err = extractOdp(raw)
	case ".txt", ".md", ".markdown", "":
		content, err = extractPlain(raw)
	default:
		content, err = extractPlain(raw)
	}
	if err != nil {
		return nil, &ExtractError{Kind: ExtractCorrupted, Path: path, Err: err}
	}
	if strings.TrimSpace(content) == "" {
		return nil, &ExtractError{Kind: ExtractEmpty, Path: path}
	}

	title := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return &Extracted{
		FilePath:   path,
		FileType:   fileType,
		Title:      title,
		Content:    content,
		Size:       info.Size(),
		CreatedAt:  info.ModTime(),
		ModifiedAt: info.ModTime(),
	}, nil
}
