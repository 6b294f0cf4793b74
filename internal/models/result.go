package models

import "time"

// Result is one post-processed search hit.
type Result struct {
	Document             *Document  `json:"document"`
	Score                float64    `json:"score"`
	ModeUsed             SearchMode `json:"mode_used"`
	Snippet              string     `json:"snippet"`
	HighlightedTerms     []string   `json:"highlighted_terms,omitempty"`
	Rank                 int        `json:"rank"`
	RelevanceExplanation string     `json:"relevance_explanation,omitempty"`
}

// Response wraps a Searcher.Search result with execution metadata.
type Response struct {
	Results           []*Result `json:"results"`
	TotalCandidates   int       `json:"total_candidates"`
	ExecutionTimeMs   int64     `json:"execution_time_ms"`
	Truncated         bool      `json:"truncated"`
}

// RebuildStage is one state of RebuildProgress.
type RebuildStage string

const (
	StageIdle       RebuildStage = "idle"
	StageScanning   RebuildStage = "scanning"
	StageProcessing RebuildStage = "processing"
	StageIndexing   RebuildStage = "indexing"
	StageCompleted  RebuildStage = "completed"
	StageError      RebuildStage = "error"
)

// RebuildProgress is a point-in-time snapshot of an IndexingPipeline run.
type RebuildProgress struct {
	Stage          RebuildStage `json:"stage"`
	CurrentFile    string       `json:"current_file,omitempty"`
	FilesProcessed int          `json:"files_processed"`
	TotalFiles     int          `json:"total_files"`
	Message        string       `json:"message,omitempty"`
	ElapsedTime    string       `json:"elapsed_time,omitempty"`
}

// Percentage derives the completion percentage per spec §3:
// min(100, processed*100/total) when total > 0, else 100 if Completed, else 0.
func (p *RebuildProgress) Percentage() int {
	if p.TotalFiles > 0 {
		pct := p.FilesProcessed * 100 / p.TotalFiles
		if pct > 100 {
			pct = 100
		}
		return pct
	}
	if p.Stage == StageCompleted {
		return 100
	}
	return 0
}

// CompletionStats is the terminal summary of an IndexingPipeline run.
type CompletionStats struct {
	FilesProcessed  int     `json:"files_processed"`
	FilesFailed     int     `json:"files_failed"`
	DocumentsAdded  int     `json:"documents_added"`
	ElapsedSeconds  float64 `json:"elapsed_seconds"`
}

// RebuildState is the singleton RebuildCoordinator state.
type RebuildState struct {
	IsActive   bool   `json:"is_active"`
	ThreadID   string `json:"thread_id,omitempty"`
	StartedAt  string `json:"started_at,omitempty"`
	FolderPath string `json:"folder_path,omitempty"`
}

// IsTimeoutExceeded reports whether the rebuild has been active longer than
// minutes, given the current time. False when the coordinator is idle.
func (s RebuildState) IsTimeoutExceeded(now time.Time, minutes float64) bool {
	if !s.IsActive || s.StartedAt == "" {
		return false
	}
	started, err := time.Parse(time.RFC3339Nano, s.StartedAt)
	if err != nil {
		return false
	}
	return now.Sub(started) > time.Duration(minutes*float64(time.Minute))
}

// SearchHistoryRecord is one append-only executed-query log entry.
type SearchHistoryRecord struct {
	ID              int64      `json:"id"`
	QueryText       string     `json:"query_text"`
	Mode            SearchMode `json:"mode"`
	Timestamp       string     `json:"timestamp"`
	ResultCount     int        `json:"result_count"`
	ExecutionTimeMs int64      `json:"execution_time_ms"`
}

// SavedSearch is a named, reusable query.
type SavedSearch struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	QueryText   string     `json:"query_text"`
	Mode        SearchMode `json:"mode"`
	OptionsJSON string     `json:"options_json,omitempty"`
	CreatedAt   string     `json:"created_at"`
	LastUsedAt  string     `json:"last_used_at,omitempty"`
	UseCount    int        `json:"use_count"`
}
