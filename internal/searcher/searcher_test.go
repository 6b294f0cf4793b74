package searcher

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/docmind/docmind-core/internal/docstore"
	"github.com/docmind/docmind-core/internal/embedding"
	"github.com/docmind/docmind-core/internal/embedstore"
	"github.com/docmind/docmind-core/internal/invindex"
	"github.com/docmind/docmind-core/internal/models"
)

// failingEmbedder always errors on Encode, used to force the semantic
// sub-query to fail so Hybrid's degrade-to-FullText path can be exercised.
type failingEmbedder struct {
	dim int
}

func (f *failingEmbedder) Encode(ctx context.Context, text string) ([]float32, error) {
	return nil, errors.New("embedder unavailable")
}

func (f *failingEmbedder) EncodeBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, errors.New("embedder unavailable")
}

func (f *failingEmbedder) Dimension() int { return f.dim }

func (f *failingEmbedder) Close() error { return nil }

type testHarness struct {
	searcher *Searcher
	docs     *docstore.Store
	index    *invindex.Index
	vector   *embedstore.Store
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()
	dir := t.TempDir()

	docs, err := docstore.Open(filepath.Join(dir, "docs.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { docs.Close() })

	index, err := invindex.Open(filepath.Join(dir, "bleve"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { index.Close() })

	vector, warning := embedstore.Open(filepath.Join(dir, "embed.bin"), embedding.NewDeterministicEmbedder(16))
	if warning != nil {
		t.Fatal(warning)
	}

	return &testHarness{searcher: New(docs, index, vector), docs: docs, index: index, vector: vector}
}

func (h *testHarness) addDocument(t *testing.T, id, path, title, content string) *models.Document {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Second)
	doc := &models.Document{
		ID:          id,
		FilePath:    path,
		Title:       title,
		Content:     content,
		FileType:    models.FileTypeText,
		Size:        int64(len(content)),
		CreatedAt:   now,
		ModifiedAt:  now,
		IndexedAt:   now,
		ContentHash: "hash-" + id,
	}
	ctx := context.Background()
	if err := h.docs.Upsert(ctx, doc); err != nil {
		t.Fatal(err)
	}
	if err := h.index.Add(doc); err != nil {
		t.Fatal(err)
	}
	if err := h.vector.Upsert(ctx, doc.ID, doc.Content); err != nil {
		t.Fatal(err)
	}
	return doc
}

func TestSearch_fullTextFindsMatchingDocument(t *testing.T) {
	h := newHarness(t)
	h.addDocument(t, "doc:1", "/a/budget.txt", "annual budget", "this document covers the annual budget in detail")
	h.addDocument(t, "doc:2", "/a/unrelated.txt", "river ecosystems", "a survey of river ecosystems")

	resp, rec, err := h.searcher.Search(context.Background(), &models.Query{Text: "budget", Mode: models.ModeFullText, Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 1 || resp.Results[0].Document.ID != "doc:1" {
		t.Fatalf("results = %+v", resp.Results)
	}
	if resp.Results[0].ModeUsed != models.ModeFullText {
		t.Errorf("ModeUsed = %s, want full_text", resp.Results[0].ModeUsed)
	}
	if rec.ResultCount != 1 || rec.Mode != models.ModeFullText {
		t.Errorf("record request = %+v", rec)
	}
}

func TestSearch_semanticHydratesFromDocumentStore(t *testing.T) {
	h := newHarness(t)
	h.addDocument(t, "doc:1", "/a/x.txt", "x", "a very specific phrase about widgets")

	resp, _, err := h.searcher.Search(context.Background(), &models.Query{Text: "a very specific phrase about widgets", Mode: models.ModeSemantic, Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 1 || resp.Results[0].Document.FilePath != "/a/x.txt" {
		t.Fatalf("results = %+v", resp.Results)
	}
}

func TestSearch_hybridCombinesBothModes(t *testing.T) {
	h := newHarness(t)
	h.addDocument(t, "doc:1", "/a/budget.txt", "annual budget report", "annual budget report content")
	h.addDocument(t, "doc:2", "/a/other.txt", "something else", "something else entirely")

	resp, _, err := h.searcher.Search(context.Background(), &models.Query{Text: "annual budget report", Mode: models.ModeHybrid, Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) == 0 {
		t.Fatal("expected at least one hybrid result")
	}
	if resp.Results[0].Document.ID != "doc:1" {
		t.Errorf("expected doc:1 to rank first, got %s", resp.Results[0].Document.ID)
	}
	if resp.Results[0].ModeUsed != models.ModeHybrid {
		t.Errorf("ModeUsed = %s, want hybrid", resp.Results[0].ModeUsed)
	}
	if resp.Results[0].RelevanceExplanation == "" {
		t.Error("expected a relevance explanation for hybrid results")
	}
}

func TestSearch_folderPathFilter(t *testing.T) {
	h := newHarness(t)
	h.addDocument(t, "doc:1", "/a/reports/budget.txt", "budget", "budget report")
	h.addDocument(t, "doc:2", "/b/other/budget.txt", "budget", "budget report")

	resp, _, err := h.searcher.Search(context.Background(), &models.Query{
		Text: "budget", Mode: models.ModeFullText, Limit: 10, FolderPaths: []string{"/a/"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 1 || resp.Results[0].Document.ID != "doc:1" {
		t.Fatalf("results = %+v", resp.Results)
	}
}

func TestSearch_dateRangeFilter(t *testing.T) {
	h := newHarness(t)
	old := h.addDocument(t, "doc:1", "/a/old.txt", "archive", "archive notes")
	old.ModifiedAt = time.Now().Add(-72 * time.Hour)
	if err := h.docs.Upsert(context.Background(), old); err != nil {
		t.Fatal(err)
	}
	h.addDocument(t, "doc:2", "/a/recent.txt", "archive", "archive notes")

	cutoff := time.Now().Add(-1 * time.Hour)
	resp, _, err := h.searcher.Search(context.Background(), &models.Query{
		Text: "archive", Mode: models.ModeFullText, Limit: 10, DateFrom: &cutoff,
	})
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range resp.Results {
		if r.Document.ID == "doc:1" {
			t.Error("expected doc:1 to be filtered out by date_from")
		}
	}
}

func TestSearch_truncatesToLimitAndReportsTruncated(t *testing.T) {
	h := newHarness(t)
	for i := 0; i < 5; i++ {
		h.addDocument(t, string(rune('a'+i))+":doc", "/a/doc"+string(rune('a'+i)), "shared term", "shared term content")
	}

	resp, _, err := h.searcher.Search(context.Background(), &models.Query{Text: "shared term", Mode: models.ModeFullText, Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(resp.Results))
	}
	if !resp.Truncated {
		t.Error("expected Truncated = true")
	}
	if resp.TotalCandidates < 2 {
		t.Errorf("TotalCandidates = %d, want >= 2", resp.TotalCandidates)
	}
}

func TestUpdateWeights_renormalizes(t *testing.T) {
	h := newHarness(t)
	h.searcher.UpdateWeights(3, 1)
	s := h.searcher.Settings()
	if s.FullTextWeight != 0.75 || s.SemanticWeight != 0.25 {
		t.Errorf("settings = %+v, want 0.75/0.25", s)
	}
}

func TestUpdateMinSemanticSimilarity_clamps(t *testing.T) {
	h := newHarness(t)
	h.searcher.UpdateMinSemanticSimilarity(5)
	if got := h.searcher.Settings().MinSemanticSimilarity; got != 1.0 {
		t.Errorf("MinSemanticSimilarity = %f, want 1.0 (clamped)", got)
	}
	h.searcher.UpdateMinSemanticSimilarity(-5)
	if got := h.searcher.Settings().MinSemanticSimilarity; got != 0.0 {
		t.Errorf("MinSemanticSimilarity = %f, want 0.0 (clamped)", got)
	}
}

func TestSuggestions_shortPrefixReturnsEmpty(t *testing.T) {
	h := newHarness(t)
	suggestions, err := h.searcher.Suggestions().GetSuggestions("a", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(suggestions) != 0 {
		t.Errorf("expected empty result for single-char prefix, got %v", suggestions)
	}
}

func TestSuggestions_prefixMatchSortedByLengthThenLex(t *testing.T) {
	h := newHarness(t)
	h.addDocument(t, "doc:1", "/a/x.txt", "budget budgets budgeting", "")

	suggestions, err := h.searcher.Suggestions().GetSuggestions("budget", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(suggestions) != 3 {
		t.Fatalf("suggestions = %v, want 3 entries", suggestions)
	}
	if suggestions[0] != "budget" || suggestions[1] != "budgets" || suggestions[2] != "budgeting" {
		t.Errorf("suggestions = %v, want [budget budgets budgeting]", suggestions)
	}
}

func TestSearch_hybridDegradesToFullTextWhenSemanticFails(t *testing.T) {
	dir := t.TempDir()
	docs, err := docstore.Open(filepath.Join(dir, "docs.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer docs.Close()
	index, err := invindex.Open(filepath.Join(dir, "bleve"))
	if err != nil {
		t.Fatal(err)
	}
	defer index.Close()
	vector, warning := embedstore.Open(filepath.Join(dir, "embed.bin"), &failingEmbedder{dim: 16})
	if warning != nil {
		t.Fatal(warning)
	}

	h := &testHarness{searcher: New(docs, index, vector), docs: docs, index: index, vector: vector}
	// failingEmbedder cannot encode, so the document goes only into the
	// document store and the inverted index, not through addDocument.
	now := time.Now().UTC().Truncate(time.Second)
	doc := &models.Document{
		ID: "doc:1", FilePath: "/a/budget.txt", Title: "budget", Content: "quarterly budget plan",
		FileType: models.FileTypeText, Size: 21, CreatedAt: now, ModifiedAt: now, IndexedAt: now, ContentHash: "hash-doc:1",
	}
	if err := docs.Upsert(context.Background(), doc); err != nil {
		t.Fatal(err)
	}
	if err := index.Add(doc); err != nil {
		t.Fatal(err)
	}

	resp, _, err := h.searcher.Search(context.Background(), &models.Query{Text: "budget", Mode: models.ModeHybrid, Limit: 10})
	if err != nil {
		t.Fatalf("expected Hybrid to degrade gracefully, got error: %v", err)
	}
	if len(resp.Results) != 1 {
		t.Fatalf("results = %+v, want 1 full-text result", resp.Results)
	}
	r := resp.Results[0]
	if r.ModeUsed != models.ModeFullText {
		t.Errorf("ModeUsed = %s, want full_text after degradation", r.ModeUsed)
	}
	if !strings.Contains(r.RelevanceExplanation, "semantic") {
		t.Errorf("RelevanceExplanation = %q, want it to mention the semantic degradation", r.RelevanceExplanation)
	}
}
