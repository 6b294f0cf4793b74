package invindex

import (
	"path/filepath"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/docmind/docmind-core/internal/models"
)

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	idx, err := Open(filepath.Join(t.TempDir(), "bleve"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { idx.Close() })
	return idx
}

func sampleDocument(id, title, content string) *models.Document {
	now := time.Now().UTC().Truncate(time.Second)
	return &models.Document{
		ID:          id,
		FilePath:    "/docs/" + id,
		Title:       title,
		Content:     content,
		FileType:    models.FileTypeText,
		Size:        int64(len(content)),
		CreatedAt:   now,
		ModifiedAt:  now,
		IndexedAt:   now,
		ContentHash: "hash-" + id,
	}
}

func TestIndex_AddAndQueryTitleBoost(t *testing.T) {
	ix := newTestIndex(t)

	doc1 := sampleDocument("doc:1", "budget report", "unrelated filler text about rivers")
	doc2 := sampleDocument("doc:2", "unrelated title", "this document discusses the budget report in detail")
	if err := ix.Add(doc1); err != nil {
		t.Fatal(err)
	}
	if err := ix.Add(doc2); err != nil {
		t.Fatal(err)
	}

	hits, err := ix.Query("budget report", 10, Filters{})
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d: %+v", len(hits), hits)
	}
	if hits[0].ID != "doc:1" {
		t.Errorf("expected doc:1 (title match) to rank first due to title boost, got %s", hits[0].ID)
	}
}

func TestIndex_QueryFiltersByFileType(t *testing.T) {
	ix := newTestIndex(t)

	textDoc := sampleDocument("doc:text", "quarterly numbers", "quarterly numbers summary")
	textDoc.FileType = models.FileTypeText
	pdfDoc := sampleDocument("doc:pdf", "quarterly numbers", "quarterly numbers summary")
	pdfDoc.FileType = models.FileTypePdf

	if err := ix.Add(textDoc); err != nil {
		t.Fatal(err)
	}
	if err := ix.Add(pdfDoc); err != nil {
		t.Fatal(err)
	}

	hits, err := ix.Query("quarterly numbers", 10, Filters{FileTypes: []models.FileType{models.FileTypePdf}})
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0].ID != "doc:pdf" {
		t.Fatalf("expected only doc:pdf, got %+v", hits)
	}
}

func TestIndex_QueryFiltersByModifiedAfter(t *testing.T) {
	ix := newTestIndex(t)

	old := sampleDocument("doc:old", "archive notes", "archive notes content")
	old.ModifiedAt = time.Now().Add(-72 * time.Hour)
	recent := sampleDocument("doc:recent", "archive notes", "archive notes content")

	if err := ix.Add(old); err != nil {
		t.Fatal(err)
	}
	if err := ix.Add(recent); err != nil {
		t.Fatal(err)
	}

	cutoff := time.Now().Add(-1 * time.Hour)
	hits, err := ix.Query("archive notes", 10, Filters{ModifiedAfter: &cutoff})
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0].ID != "doc:recent" {
		t.Fatalf("expected only doc:recent, got %+v", hits)
	}
}

func TestIndex_RemoveDeletesEntry(t *testing.T) {
	ix := newTestIndex(t)
	doc := sampleDocument("doc:1", "ephemeral", "ephemeral content")
	if err := ix.Add(doc); err != nil {
		t.Fatal(err)
	}
	if err := ix.Remove("doc:1"); err != nil {
		t.Fatal(err)
	}
	n, err := ix.DocCount()
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("DocCount = %d, want 0", n)
	}
}

func TestIndex_ClearEmptiesIndex(t *testing.T) {
	ix := newTestIndex(t)
	for i := 0; i < 3; i++ {
		if err := ix.Add(sampleDocument(string(rune('a'+i))+":doc", "title", "content")); err != nil {
			t.Fatal(err)
		}
	}
	if err := ix.Clear(); err != nil {
		t.Fatal(err)
	}
	n, err := ix.DocCount()
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("DocCount after Clear = %d, want 0", n)
	}
}

func TestIndex_NormalizeScoreClampsToUnitRange(t *testing.T) {
	ix := newTestIndex(t)
	ix.SetScoreDivisor(10.0)

	if got := ix.NormalizeScore(5.0); got != 0.5 {
		t.Errorf("NormalizeScore(5.0) = %f, want 0.5", got)
	}
	if got := ix.NormalizeScore(100.0); got != 1.0 {
		t.Errorf("NormalizeScore(100.0) = %f, want 1.0 (clamped)", got)
	}
	if got := ix.NormalizeScore(-5.0); got != 0.0 {
		t.Errorf("NormalizeScore(-5.0) = %f, want 0.0 (clamped)", got)
	}
}

func TestExtractQueryTerms_latinAndCJK(t *testing.T) {
	terms := ExtractQueryTerms("Hello World 日本語 テスト a 123")
	want := []string{"hello", "world", "日本語", "テスト", "123"}
	if len(terms) != len(want) {
		t.Fatalf("terms = %v, want %v", terms, want)
	}
	for i, w := range want {
		if terms[i] != w {
			t.Errorf("terms[%d] = %q, want %q", i, terms[i], w)
		}
	}
}

func TestExtractQueryTerms_dropsSingleCharLatinTokens(t *testing.T) {
	terms := ExtractQueryTerms("a I go")
	want := []string{"go"}
	if len(terms) != len(want) || terms[0] != want[0] {
		t.Errorf("terms = %v, want %v", terms, want)
	}
}

func TestSnippet_extractsWindowAroundMatch(t *testing.T) {
	content := "prefix filler text that goes on for a while before the important keyword appears here and then continues on afterward with more filler text to pad it out"
	snippet := Snippet(content, "keyword", 60)
	if !contains(snippet, "keyword") {
		t.Errorf("snippet %q should contain the matched term", snippet)
	}
	if len(snippet) > 70 {
		t.Errorf("snippet too long: %d chars: %q", len(snippet), snippet)
	}
}

func TestSnippet_noMatchTruncatesFromStart(t *testing.T) {
	content := "this content does not contain the searched phrase anywhere at all within it, so it should just be truncated"
	snippet := Snippet(content, "absent", 20)
	if utf8.RuneCountInString(snippet) > 21 {
		t.Errorf("snippet too long: %q", snippet)
	}
}

func TestSnippet_stripsHTML(t *testing.T) {
	content := "<p>hello <b>world</b></p>"
	snippet := Snippet(content, "world", 100)
	if contains(snippet, "<") || contains(snippet, ">") {
		t.Errorf("snippet should have HTML stripped, got %q", snippet)
	}
}

func contains(haystack, needle string) bool {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return true
		}
	}
	return false
}
