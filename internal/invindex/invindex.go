// Package invindex is the on-disk lexical index over document title and
// content: the InvertedIndex component, backed by Bleve.
package invindex

import (
	"os"
	"sort"
	"strings"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/analysis/token/ngram"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search"

	"github.com/docmind/docmind-core/internal/models"
)

const (
	titleBoost            = 2.0
	ngramAnalyzerName     = "content_ngram"
	defaultScoreDivisor   = 10.0
	defaultSnippetContext = 50
)

// Hit is one raw match from Query, carrying the document's stored fields so
// callers do not need a separate fetch to build a snippet.
type Hit struct {
	ID          string
	RawScore    float64
	FilePath    string
	Title       string
	Content     string
	FileType    models.FileType
	Size        int64
	CreatedAt   time.Time
	ModifiedAt  time.Time
	IndexedAt   time.Time
	ContentHash string
}

// Filters restricts Query results to documents matching all given predicates.
// A nil/empty field applies no restriction on that dimension.
type Filters struct {
	FileTypes      []models.FileType
	ModifiedAfter  *time.Time
	ModifiedBefore *time.Time
}

// Index is the InvertedIndex: a Bleve-backed lexical index with a tunable
// score-normalization divisor.
type Index struct {
	index        bleve.Index
	path         string
	scoreDivisor float64
}

// Open creates or opens a Bleve index at path. An existing index is reused
// so incremental sync does not force a full re-index; to pick up a mapping
// change, delete the index directory first.
func Open(path string) (*Index, error) {
	if _, err := os.Stat(path); err == nil {
		idx, err := bleve.Open(path)
		if err != nil {
			return nil, models.NewCoreError(models.ErrIndexing, err, "open inverted index at %s", path)
		}
		return &Index{index: idx, path: path, scoreDivisor: defaultScoreDivisor}, nil
	}
	idx, err := bleve.New(path, buildMapping())
	if err != nil {
		return nil, models.NewCoreError(models.ErrIndexing, err, "create inverted index at %s", path)
	}
	return &Index{index: idx, path: path, scoreDivisor: defaultScoreDivisor}, nil
}

func buildMapping() mapping.IndexMapping {
	im := bleve.NewIndexMapping()

	_ = im.AddCustomTokenFilter("content_ngram_filter", map[string]interface{}{
		"type": ngram.Name,
		"min":  2.0,
		"max":  4.0,
	})
	_ = im.AddCustomAnalyzer(ngramAnalyzerName, map[string]interface{}{
		"type":          custom.Name,
		"tokenizer":     unicode.Name,
		"token_filters": []string{"content_ngram_filter"},
	})

	docMapping := bleve.NewDocumentMapping()

	textField := bleve.NewTextFieldMapping()
	textField.Analyzer = standard.Name

	ngramField := bleve.NewTextFieldMapping()
	ngramField.Analyzer = ngramAnalyzerName
	ngramField.Store = false
	ngramField.IncludeInAll = false

	keywordField := bleve.NewKeywordFieldMapping()
	numericField := bleve.NewNumericFieldMapping()
	dateField := bleve.NewDateTimeFieldMapping()

	docMapping.AddFieldMappingsAt("id", keywordField)
	docMapping.AddFieldMappingsAt("file_path", textField)
	docMapping.AddFieldMappingsAt("title", textField)
	docMapping.AddFieldMappingsAt("content", textField)
	docMapping.AddFieldMappingsAt("content", ngramField)
	docMapping.AddFieldMappingsAt("file_type", keywordField)
	docMapping.AddFieldMappingsAt("size", numericField)
	docMapping.AddFieldMappingsAt("created_at", dateField)
	docMapping.AddFieldMappingsAt("modified_at", dateField)
	docMapping.AddFieldMappingsAt("indexed_at", dateField)
	docMapping.AddFieldMappingsAt("content_hash", keywordField)

	im.AddDocumentMapping("document", docMapping)
	im.DefaultType = "document"
	im.DefaultMapping = docMapping
	return im
}

// Add indexes doc under its id, replacing any existing entry (Bleve's Index
// call is an atomic upsert by id).
func (ix *Index) Add(doc *models.Document) error {
	if err := ix.index.Index(doc.ID, doc); err != nil {
		return models.NewCoreError(models.ErrIndexing, err, "add document %s", doc.ID)
	}
	return nil
}

// Update replaces the indexed entry for doc.ID; identical to Add since Bleve
// indexing is already an atomic replace-by-id.
func (ix *Index) Update(doc *models.Document) error {
	return ix.Add(doc)
}

// Remove deletes the entry for id. Removing a nonexistent id is a no-op.
func (ix *Index) Remove(id string) error {
	if err := ix.index.Delete(id); err != nil {
		return models.NewCoreError(models.ErrIndexing, err, "remove document %s", id)
	}
	return nil
}

// Clear empties the index: close, delete the on-disk directory, and
// re-create an empty index with the same mapping. Falls back to an
// open-ended term-delete sweep if directory removal fails (e.g. permissions).
func (ix *Index) Clear() error {
	path := ix.path
	if err := ix.index.Close(); err != nil {
		return models.NewCoreError(models.ErrIndexing, err, "close index before clear")
	}
	if err := os.RemoveAll(path); err != nil {
		reopened, openErr := bleve.Open(path)
		if openErr != nil {
			return models.NewCoreError(models.ErrIndexing, err, "remove index directory %s", path)
		}
		ix.index = reopened
		return ix.clearByDelete()
	}
	idx, err := bleve.New(path, buildMapping())
	if err != nil {
		return models.NewCoreError(models.ErrIndexing, err, "recreate index at %s", path)
	}
	ix.index = idx
	return nil
}

func (ix *Index) clearByDelete() error {
	for {
		req := bleve.NewSearchRequest(bleve.NewMatchAllQuery())
		req.Size = 1000
		res, err := ix.index.Search(req)
		if err != nil {
			return models.NewCoreError(models.ErrIndexing, err, "sweep index for clear")
		}
		if len(res.Hits) == 0 {
			return nil
		}
		for _, hit := range res.Hits {
			if err := ix.index.Delete(hit.ID); err != nil {
				return models.NewCoreError(models.ErrIndexing, err, "delete %s during clear", hit.ID)
			}
		}
	}
}

// Optimize applies an empty batch to the index, giving callers an explicit
// hook to invoke after a large bulk write. It does not force a segment
// merge; Bleve merges segments on its own in the background.
func (ix *Index) Optimize() error {
	return ix.index.Batch(bleve.NewBatch())
}

// DocCount returns the number of documents currently indexed.
func (ix *Index) DocCount() (uint64, error) {
	n, err := ix.index.DocCount()
	if err != nil {
		return 0, models.NewCoreError(models.ErrIndexing, err, "count indexed documents")
	}
	return n, nil
}

// Close closes the underlying Bleve index.
func (ix *Index) Close() error {
	return ix.index.Close()
}

// Query parses text against title/content with a title boost, intersects
// with filters, and returns up to limit hits sorted by descending raw score.
func (ix *Index) Query(text string, limit int, filters Filters) ([]Hit, error) {
	titleQuery := bleve.NewMatchQuery(text)
	titleQuery.SetField("title")
	titleQuery.SetBoost(titleBoost)

	contentQuery := bleve.NewMatchQuery(text)
	contentQuery.SetField("content")

	ngramQuery := bleve.NewMatchQuery(text)
	ngramQuery.SetField("content")
	ngramQuery.Analyzer = ngramAnalyzerName
	ngramQuery.SetBoost(0.5)

	textQuery := bleve.NewDisjunctionQuery(titleQuery, contentQuery, ngramQuery)

	var query bleve.Query = textQuery
	if predicate := filterQuery(filters); predicate != nil {
		query = bleve.NewConjunctionQuery(textQuery, predicate)
	}

	req := bleve.NewSearchRequest(query)
	if limit <= 0 {
		limit = models.DefaultLimit
	}
	req.Size = limit
	req.Fields = []string{"*"}

	res, err := ix.index.Search(req)
	if err != nil {
		return nil, models.NewCoreError(models.ErrIndexing, err, "query inverted index")
	}

	hits := make([]Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		hits = append(hits, hitFromDocumentMatch(h))
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].RawScore > hits[j].RawScore })
	return hits, nil
}

// AllIDs returns every document id currently stored in the index, used by
// the referential-integrity sweep at startup to find InvertedIndex entries
// with no corresponding DocumentStore row.
func (ix *Index) AllIDs() ([]string, error) {
	count, err := ix.DocCount()
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}

	req := bleve.NewSearchRequest(bleve.NewMatchAllQuery())
	req.Size = int(count)
	req.Fields = nil

	res, err := ix.index.Search(req)
	if err != nil {
		return nil, models.NewCoreError(models.ErrIndexing, err, "enumerate indexed document ids")
	}
	ids := make([]string, 0, len(res.Hits))
	for _, h := range res.Hits {
		ids = append(ids, h.ID)
	}
	return ids, nil
}

func hitFromDocumentMatch(h *search.DocumentMatch) Hit {
	hit := Hit{ID: h.ID, RawScore: h.Score}
	hit.FilePath = fieldString(h.Fields, "file_path")
	hit.Title = fieldString(h.Fields, "title")
	hit.Content = fieldString(h.Fields, "content")
	hit.FileType = models.FileType(fieldString(h.Fields, "file_type"))
	hit.ContentHash = fieldString(h.Fields, "content_hash")
	hit.Size = fieldInt(h.Fields, "size")
	hit.CreatedAt = fieldTime(h.Fields, "created_at")
	hit.ModifiedAt = fieldTime(h.Fields, "modified_at")
	hit.IndexedAt = fieldTime(h.Fields, "indexed_at")
	return hit
}

func fieldString(fields map[string]interface{}, key string) string {
	if v, ok := fields[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func fieldInt(fields map[string]interface{}, key string) int64 {
	if v, ok := fields[key]; ok {
		switch n := v.(type) {
		case float64:
			return int64(n)
		case int64:
			return n
		}
	}
	return 0
}

func fieldTime(fields map[string]interface{}, key string) time.Time {
	s := fieldString(fields, key)
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func filterQuery(filters Filters) bleve.Query {
	var predicates []bleve.Query
	if len(filters.FileTypes) > 0 {
		typeQueries := make([]bleve.Query, 0, len(filters.FileTypes))
		for _, ft := range filters.FileTypes {
			q := bleve.NewTermQuery(string(ft))
			q.SetField("file_type")
			typeQueries = append(typeQueries, q)
		}
		predicates = append(predicates, bleve.NewDisjunctionQuery(typeQueries...))
	}
	if filters.ModifiedAfter != nil || filters.ModifiedBefore != nil {
		dr := bleve.NewDateRangeQuery(timeOrZero(filters.ModifiedAfter), timeOrZero(filters.ModifiedBefore))
		dr.SetField("modified_at")
		predicates = append(predicates, dr)
	}
	if len(predicates) == 0 {
		return nil
	}
	return bleve.NewConjunctionQuery(predicates...)
}

func timeOrZero(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

// NormalizeScore divides a raw Bleve score by the tunable divisor and caps
// the result at 1.0 for display; the raw score should still be retained by
// callers for relevance_explanation.
func (ix *Index) NormalizeScore(raw float64) float64 {
	n := raw / ix.scoreDivisor
	if n > 1.0 {
		return 1.0
	}
	if n < 0 {
		return 0
	}
	return n
}

// SetScoreDivisor overrides the default score-normalization divisor.
func (ix *Index) SetScoreDivisor(divisor float64) {
	if divisor > 0 {
		ix.scoreDivisor = divisor
	}
}

// ExtractQueryTerms tokenizes text into alphanumeric Latin tokens of length
// >= 2, lowercased, plus contiguous CJK/Hiragana/Katakana runs treated as
// single tokens.
func ExtractQueryTerms(text string) []string {
	var terms []string
	var buf []rune
	flushLatin := func() {
		if len(buf) >= 2 {
			terms = append(terms, strings.ToLower(string(buf)))
		}
		buf = buf[:0]
	}
	var cjkBuf []rune
	flushCJK := func() {
		if len(cjkBuf) > 0 {
			terms = append(terms, string(cjkBuf))
			cjkBuf = cjkBuf[:0]
		}
	}
	for _, r := range text {
		switch {
		case isCJK(r):
			flushLatin()
			cjkBuf = append(cjkBuf, r)
		case isAlphaNumeric(r):
			flushCJK()
			buf = append(buf, r)
		default:
			flushLatin()
			flushCJK()
		}
	}
	flushLatin()
	flushCJK()
	return terms
}

func isAlphaNumeric(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}

func isCJK(r rune) bool {
	return (r >= 0x3040 && r <= 0x309F) || // Hiragana
		(r >= 0x30A0 && r <= 0x30FF) || // Katakana
		(r >= 0x4E00 && r <= 0x9FFF) // CJK Unified Ideographs
}

// Snippet extracts a window of content around the earliest occurrence of
// any query term, with ~defaultSnippetContext characters of surrounding
// context, HTML-stripped and ellipsis-truncated to maxChars. Candidate
// windows are not scored or compared; the first match position wins.
func Snippet(content, queryText string, maxChars int) string {
	stripped := stripHTML(content)
	if maxChars <= 0 {
		maxChars = 200
	}
	terms := ExtractQueryTerms(queryText)
	lower := strings.ToLower(stripped)

	best := -1
	for _, term := range terms {
		if idx := strings.Index(lower, strings.ToLower(term)); idx >= 0 {
			if best == -1 || idx < best {
				best = idx
			}
		}
	}
	if best == -1 {
		if len(stripped) <= maxChars {
			return stripped
		}
		return strings.TrimSpace(stripped[:maxChars]) + "…"
	}

	start := best - defaultSnippetContext
	if start < 0 {
		start = 0
	}
	end := best + defaultSnippetContext
	if end > len(stripped) {
		end = len(stripped)
	}
	if end-start > maxChars {
		end = start + maxChars
	}

	snippet := strings.TrimSpace(stripped[start:end])
	if start > 0 {
		snippet = "…" + snippet
	}
	if end < len(stripped) {
		snippet = snippet + "…"
	}
	return snippet
}

func stripHTML(s string) string {
	var b strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return b.String()
}
