package history

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/docmind/docmind-core/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_RecordAndRecent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Record(ctx, "budget report", models.ModeFullText, 5, 42); err != nil {
		t.Fatal(err)
	}
	if err := s.Record(ctx, "annual plan", models.ModeHybrid, 3, 120); err != nil {
		t.Fatal(err)
	}

	recent, err := s.Recent(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 2 {
		t.Fatalf("len(recent) = %d, want 2", len(recent))
	}
	if recent[0].QueryText != "annual plan" {
		t.Errorf("expected most recent record first, got %s", recent[0].QueryText)
	}
}

func TestStore_Popular(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := s.Record(ctx, "budget", models.ModeFullText, 5, 10); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Record(ctx, "rare query", models.ModeFullText, 1, 10); err != nil {
		t.Fatal(err)
	}

	popular, err := s.Popular(ctx, 30, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(popular) == 0 || popular[0].QueryText != "budget" || popular[0].Count != 3 {
		t.Fatalf("popular = %+v", popular)
	}
}

func TestStore_SuggestionsFromHistory(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if err := s.Record(ctx, "budget report", models.ModeFullText, 5, 10); err != nil {
		t.Fatal(err)
	}
	if err := s.Record(ctx, "budget forecast", models.ModeFullText, 5, 10); err != nil {
		t.Fatal(err)
	}
	if err := s.Record(ctx, "travel plans", models.ModeFullText, 5, 10); err != nil {
		t.Fatal(err)
	}

	suggestions, err := s.SuggestionsFromHistory(ctx, "budget", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(suggestions) != 2 {
		t.Fatalf("suggestions = %v, want 2 entries", suggestions)
	}
}

func TestStore_Statistics(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if err := s.Record(ctx, "q1", models.ModeFullText, 5, 10); err != nil {
		t.Fatal(err)
	}
	if err := s.Record(ctx, "q2", models.ModeSemantic, 0, 20); err != nil {
		t.Fatal(err)
	}

	stats, err := s.Statistics(ctx, 30)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Total != 2 {
		t.Errorf("Total = %d, want 2", stats.Total)
	}
	if stats.ByMode[models.ModeFullText].Count != 1 {
		t.Errorf("ByMode[full_text].Count = %d, want 1", stats.ByMode[models.ModeFullText].Count)
	}
}

func TestStore_Failed(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if err := s.Record(ctx, "nonexistent thing", models.ModeFullText, 0, 10); err != nil {
		t.Fatal(err)
	}
	if err := s.Record(ctx, "found thing", models.ModeFullText, 3, 10); err != nil {
		t.Fatal(err)
	}

	failed, err := s.Failed(ctx, 30, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(failed) != 1 || failed[0].QueryText != "nonexistent thing" {
		t.Fatalf("failed = %+v", failed)
	}
}

func TestStore_ClearOlderThan(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if err := s.Record(ctx, "q", models.ModeFullText, 1, 10); err != nil {
		t.Fatal(err)
	}

	n, err := s.ClearOlderThan(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("ClearOlderThan removed %d rows, want 1", n)
	}
	recent, err := s.Recent(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 0 {
		t.Errorf("expected no remaining history, got %+v", recent)
	}
}

func TestStore_SavedSearchCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	saved, err := s.SaveSearch(ctx, "my search", "budget", models.ModeFullText, `{"limit":10}`)
	if err != nil {
		t.Fatal(err)
	}
	if saved.Name != "my search" || saved.UseCount != 0 {
		t.Fatalf("saved = %+v", saved)
	}

	list, err := s.ListSavedSearches(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 {
		t.Fatalf("list = %+v", list)
	}

	used, err := s.UseSavedSearch(ctx, saved.ID)
	if err != nil {
		t.Fatal(err)
	}
	if used.UseCount != 1 {
		t.Errorf("UseCount = %d, want 1", used.UseCount)
	}
	if used.LastUsedAt == "" {
		t.Error("expected LastUsedAt to be set after Use")
	}

	if err := s.RenameSavedSearch(ctx, saved.ID, "renamed"); err != nil {
		t.Fatal(err)
	}
	renamed, err := s.SavedSearchByID(ctx, saved.ID)
	if err != nil {
		t.Fatal(err)
	}
	if renamed.Name != "renamed" {
		t.Errorf("Name = %s, want renamed", renamed.Name)
	}

	removed, err := s.DeleteSavedSearch(ctx, saved.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !removed {
		t.Error("expected DeleteSavedSearch to report removal")
	}
	gone, err := s.SavedSearchByID(ctx, saved.ID)
	if err != nil {
		t.Fatal(err)
	}
	if gone != nil {
		t.Errorf("expected nil after delete, got %+v", gone)
	}
}

func TestStore_SaveSearchUpsertsByName(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, err := s.SaveSearch(ctx, "dup", "query1", models.ModeFullText, "{}")
	if err != nil {
		t.Fatal(err)
	}
	second, err := s.SaveSearch(ctx, "dup", "query2", models.ModeSemantic, "{}")
	if err != nil {
		t.Fatal(err)
	}
	if first.ID != second.ID {
		t.Errorf("expected same id on upsert by name, got %s vs %s", first.ID, second.ID)
	}
	if second.QueryText != "query2" {
		t.Errorf("QueryText = %s, want query2", second.QueryText)
	}
}
