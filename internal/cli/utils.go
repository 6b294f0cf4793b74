// Package cli provides output formatting helpers for the docmind CLI.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/docmind/docmind-core/internal/models"
)

// OutputFormat is the format for search result output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputCompact is one result per line.
	OutputCompact OutputFormat = "compact"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// WriteSearchResults writes resp to w in the given format.
func WriteSearchResults(w io.Writer, resp *models.Response, format OutputFormat) error {
	switch format {
	case OutputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	case OutputCompact:
		writeCompact(w, resp)
		return nil
	default:
		writeText(w, resp)
		return nil
	}
}

func writeText(w io.Writer, resp *models.Response) {
	fmt.Fprintf(w, "\nFound %d results (of %d candidates) in %dms\n\n",
		len(resp.Results), resp.TotalCandidates, resp.ExecutionTimeMs)
	if resp.Truncated {
		fmt.Fprintln(w, "(result set truncated to the requested limit)")
	}
	for _, r := range resp.Results {
		fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
		fmt.Fprintf(w, "[%s] Rank: %d | Score: %.4f\n", r.ModeUsed, r.Rank, r.Score)
		fmt.Fprintf(w, "ID: %s\n", r.Document.ID)
		fmt.Fprintf(w, "Path: %s\n", r.Document.FilePath)
		if r.RelevanceExplanation != "" {
			fmt.Fprintf(w, "Why: %s\n", r.RelevanceExplanation)
		}
		fmt.Fprintf(w, "\n%s\n\n", r.Snippet)
	}
}

func writeCompact(w io.Writer, resp *models.Response) {
	fmt.Fprintf(w, "Found %d results in %dms\n", len(resp.Results), resp.ExecutionTimeMs)
	for _, r := range resp.Results {
		fmt.Fprintf(w, "[%s] #%d %.4f | %s\n", r.ModeUsed, r.Rank, r.Score, r.Document.FilePath)
	}
}

// PrintSearchResults prints resp to stdout in text format.
func PrintSearchResults(resp *models.Response) {
	_ = WriteSearchResults(os.Stdout, resp, OutputText)
}
