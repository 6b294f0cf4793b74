package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/docmind/docmind-core/internal/models"
)

func sampleResponse() *models.Response {
	return &models.Response{
		Results: []*models.Result{
			{
				Rank:     1,
				Score:    0.9,
				ModeUsed: models.ModeHybrid,
				Snippet:  "...quarterly budget report...",
				Document: &models.Document{
					ID:       "doc-1",
					FilePath: "/docs/report.txt",
					Title:    "report.txt",
				},
			},
		},
		TotalCandidates: 1,
		ExecutionTimeMs: 12,
	}
}

func TestWriteSearchResults_JSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSearchResults(&buf, sampleResponse(), OutputJSON); err != nil {
		t.Fatal(err)
	}
	var decoded models.Response
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatal(err)
	}
	if len(decoded.Results) != 1 {
		t.Errorf("results = %d, want 1", len(decoded.Results))
	}
}

func TestWriteSearchResults_Text(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSearchResults(&buf, sampleResponse(), OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "/docs/report.txt") {
		t.Errorf("expected text output to contain file path, got %q", out)
	}
}

func TestWriteSearchResults_Compact(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSearchResults(&buf, sampleResponse(), OutputCompact); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "#1") {
		t.Errorf("expected compact output to contain rank, got %q", out)
	}
}
