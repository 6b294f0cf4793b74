package models

import (
	"fmt"
	"strings"
	"time"
)

// SearchMode selects which search algorithm a Query runs.
type SearchMode string

const (
	ModeFullText SearchMode = "full_text"
	ModeSemantic SearchMode = "semantic"
	ModeHybrid   SearchMode = "hybrid"
)

const (
	DefaultLimit = 100
	MaxLimit     = 1000

	// DefaultFullTextWeight and DefaultSemanticWeight are the hybrid fusion
	// defaults used when a Query supplies no Weights or supplies all-zero weights.
	DefaultFullTextWeight = 0.6
	DefaultSemanticWeight = 0.4
)

// Weights holds the hybrid fusion weight pair. Stored normalized to sum to 1.
type Weights struct {
	FullText float64 `json:"full_text"`
	Semantic float64 `json:"semantic"`
}

// NormalizeWeights returns weights normalized to sum to 1. When both inputs are
// zero (or negative), it returns the package defaults.
func NormalizeWeights(fullText, semantic float64) Weights {
	if fullText < 0 {
		fullText = 0
	}
	if semantic < 0 {
		semantic = 0
	}
	sum := fullText + semantic
	if sum <= 0 {
		return Weights{FullText: DefaultFullTextWeight, Semantic: DefaultSemanticWeight}
	}
	return Weights{FullText: fullText / sum, Semantic: semantic / sum}
}

// Query is a search request descriptor.
type Query struct {
	Text        string     `json:"text"`
	Mode        SearchMode `json:"mode"`
	Limit       int        `json:"limit,omitempty"`
	FileTypes   []FileType `json:"file_types,omitempty"`
	DateFrom    *time.Time `json:"date_from,omitempty"`
	DateTo      *time.Time `json:"date_to,omitempty"`
	FolderPaths []string   `json:"folder_paths,omitempty"`
	Weights     *Weights   `json:"weights,omitempty"`
}

// Validate trims Text, rejects empty queries, and normalizes Limit/Mode/Weights in place.
func (q *Query) Validate() error {
	q.Text = strings.TrimSpace(q.Text)
	if q.Text == "" {
		return fmt.Errorf("query text cannot be empty")
	}
	if q.Limit <= 0 {
		q.Limit = DefaultLimit
	}
	if q.Limit > MaxLimit {
		q.Limit = MaxLimit
	}
	switch q.Mode {
	case ModeFullText, ModeSemantic, ModeHybrid:
	case "":
		q.Mode = ModeFullText
	default:
		return fmt.Errorf("invalid search mode: %q", q.Mode)
	}
	if q.Mode == ModeHybrid {
		if q.Weights == nil {
			w := NormalizeWeights(DefaultFullTextWeight, DefaultSemanticWeight)
			q.Weights = &w
		} else {
			w := NormalizeWeights(q.Weights.FullText, q.Weights.Semantic)
			q.Weights = &w
		}
	}
	return nil
}
