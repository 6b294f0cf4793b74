package embedstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/docmind/docmind-core/internal/embedding"
	"github.com/docmind/docmind-core/internal/models"
)

func newTestEmbedder() embedding.Embedder {
	return embedding.NewDeterministicEmbedder(16)
}

func TestStore_UpsertThenSearchSimilar(t *testing.T) {
	ctx := context.Background()
	s, warning := Open(filepath.Join(t.TempDir(), "embed.bin"), newTestEmbedder())
	if warning != nil {
		t.Fatal(warning)
	}

	if err := s.Upsert(ctx, "doc:1", "the quick brown fox"); err != nil {
		t.Fatal(err)
	}
	if err := s.Upsert(ctx, "doc:2", "an entirely different sentence"); err != nil {
		t.Fatal(err)
	}
	if n := s.Count(); n != 2 {
		t.Fatalf("Count = %d, want 2", n)
	}

	matches, err := s.SearchSimilar(ctx, "the quick brown fox", 5, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) == 0 || matches[0].DocID != "doc:1" {
		t.Fatalf("expected doc:1 to rank first, got %+v", matches)
	}
	if matches[0].Score < 0.99 {
		t.Errorf("exact text match should score near 1.0, got %f", matches[0].Score)
	}
}

func TestStore_UpsertSkipsRecomputeWhenHashUnchanged(t *testing.T) {
	ctx := context.Background()
	counting := &countingEmbedder{Embedder: newTestEmbedder()}
	s, _ := Open(filepath.Join(t.TempDir(), "embed.bin"), counting)

	if err := s.Upsert(ctx, "doc:1", "same text"); err != nil {
		t.Fatal(err)
	}
	if err := s.Upsert(ctx, "doc:1", "same text"); err != nil {
		t.Fatal(err)
	}
	if counting.calls != 1 {
		t.Errorf("Encode called %d times, want 1", counting.calls)
	}

	if err := s.Upsert(ctx, "doc:1", "changed text"); err != nil {
		t.Fatal(err)
	}
	if counting.calls != 2 {
		t.Errorf("Encode called %d times after content change, want 2", counting.calls)
	}
}

func TestStore_RemoveDeletesEntry(t *testing.T) {
	ctx := context.Background()
	s, _ := Open(filepath.Join(t.TempDir(), "embed.bin"), newTestEmbedder())
	if err := s.Upsert(ctx, "doc:1", "hello"); err != nil {
		t.Fatal(err)
	}
	s.Remove("doc:1")
	if n := s.Count(); n != 0 {
		t.Errorf("Count = %d, want 0 after Remove", n)
	}
}

func TestStore_SaveAndReopenRoundTrips(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "embed.bin")
	embedder := newTestEmbedder()

	s, _ := Open(path, embedder)
	if err := s.Upsert(ctx, "doc:1", "alpha beta gamma"); err != nil {
		t.Fatal(err)
	}
	if err := s.Upsert(ctx, "doc:2", "delta epsilon"); err != nil {
		t.Fatal(err)
	}
	if err := s.Save(); err != nil {
		t.Fatal(err)
	}

	reopened, warning := Open(path, embedder)
	if warning != nil {
		t.Fatalf("reopen should not warn of corruption: %v", warning)
	}
	if n := reopened.Count(); n != 2 {
		t.Fatalf("Count after reopen = %d, want 2", n)
	}

	matches, err := reopened.SearchSimilar(ctx, "alpha beta gamma", 1, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 1 || matches[0].DocID != "doc:1" {
		t.Fatalf("SearchSimilar after reopen = %+v", matches)
	}
}

func TestOpen_corruptFileStartsEmptyWithWarning(t *testing.T) {
	path := filepath.Join(t.TempDir(), "embed.bin")
	if err := os.WriteFile(path, []byte("not a valid embedding store"), 0o644); err != nil {
		t.Fatal(err)
	}

	s, warning := Open(path, newTestEmbedder())
	if warning == nil {
		t.Fatal("expected a corruption warning")
	}
	if n := s.Count(); n != 0 {
		t.Errorf("Count = %d, want 0 for a fresh store", n)
	}
}

func TestOpen_missingFileStartsEmptyWithNoWarning(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.bin")
	s, warning := Open(path, newTestEmbedder())
	if warning != nil {
		t.Fatalf("missing file should not be treated as corruption: %v", warning)
	}
	if n := s.Count(); n != 0 {
		t.Errorf("Count = %d, want 0", n)
	}
}

func TestStore_RebuildReplacesAllEntries(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "embed.bin")
	s, _ := Open(path, newTestEmbedder())
	if err := s.Upsert(ctx, "doc:stale", "stale content"); err != nil {
		t.Fatal(err)
	}

	docs := []*models.Document{
		{ID: "doc:1", Content: "first document"},
		{ID: "doc:2", Content: "second document"},
	}
	if err := s.Rebuild(ctx, docs, 1); err != nil {
		t.Fatal(err)
	}

	if n := s.Count(); n != 2 {
		t.Fatalf("Count after rebuild = %d, want 2", n)
	}
	matches, err := s.SearchSimilar(ctx, "stale content", 5, 0)
	if err != nil {
		t.Fatal(err)
	}
	for _, m := range matches {
		if m.DocID == "doc:stale" {
			t.Error("rebuild should have dropped the stale entry")
		}
	}
}

func TestSearchSimilar_respectsMinSimilarity(t *testing.T) {
	ctx := context.Background()
	s, _ := Open(filepath.Join(t.TempDir(), "embed.bin"), newTestEmbedder())
	if err := s.Upsert(ctx, "doc:1", "completely unrelated payload"); err != nil {
		t.Fatal(err)
	}

	matches, err := s.SearchSimilar(ctx, "something else entirely", 5, 1.0)
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 0 {
		t.Errorf("expected no matches above similarity 1.0 for distinct text, got %+v", matches)
	}
}

type countingEmbedder struct {
	embedding.Embedder
	calls int
}

func (c *countingEmbedder) Encode(ctx context.Context, text string) ([]float32, error) {
	c.calls++
	return c.Embedder.Encode(ctx, text)
}
