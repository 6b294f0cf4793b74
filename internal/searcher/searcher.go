// Package searcher is the fusion layer: it executes lexical, semantic, and
// hybrid queries against the InvertedIndex and EmbeddingStore, hydrates hits
// via the DocumentStore, and produces ranked, post-processed Results.
package searcher

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/docmind/docmind-core/internal/docstore"
	"github.com/docmind/docmind-core/internal/embedstore"
	"github.com/docmind/docmind-core/internal/invindex"
	"github.com/docmind/docmind-core/internal/models"
)

const (
	defaultMinSemanticSimilarity = 0.1
	hybridSubQueryMinSimilarity  = 0.1
	defaultSnippetMaxLength      = 200
)

// Settings are the runtime-mutable knobs of a Searcher. Weight updates
// renormalize so FullTextWeight+SemanticWeight always sum to 1.
type Settings struct {
	FullTextWeight        float64
	SemanticWeight        float64
	MinSemanticSimilarity float64
	SnippetMaxLength      int
}

func defaultSettings() Settings {
	return Settings{
		FullTextWeight:        models.DefaultFullTextWeight,
		SemanticWeight:        models.DefaultSemanticWeight,
		MinSemanticSimilarity: defaultMinSemanticSimilarity,
		SnippetMaxLength:      defaultSnippetMaxLength,
	}
}

// Searcher holds shared, read-only references to the three stores and
// executes queries against them.
type Searcher struct {
	docs   *docstore.Store
	index  *invindex.Index
	vector *embedstore.Store

	mu       sync.RWMutex
	settings Settings

	suggestions *SuggestionIndex
	logger      *zap.Logger
}

// New builds a Searcher over the given stores.
func New(docs *docstore.Store, index *invindex.Index, vector *embedstore.Store) *Searcher {
	s := &Searcher{docs: docs, index: index, vector: vector, settings: defaultSettings(), logger: zap.NewNop()}
	s.suggestions = NewSuggestionIndex(s.tokenSource)
	return s
}

// SetLogger wires a logger for degradation warnings (e.g. Hybrid falling
// back to FullText-only when the semantic sub-query fails). Passing nil
// restores the no-op logger.
func (s *Searcher) SetLogger(logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s.mu.Lock()
	s.logger = logger
	s.mu.Unlock()
}

// Settings returns a copy of the current runtime settings.
func (s *Searcher) Settings() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// UpdateWeights renormalizes and applies new hybrid fusion weights.
func (s *Searcher) UpdateWeights(fullText, semantic float64) {
	w := models.NormalizeWeights(fullText, semantic)
	s.mu.Lock()
	s.settings.FullTextWeight = w.FullText
	s.settings.SemanticWeight = w.Semantic
	s.mu.Unlock()
}

// UpdateMinSemanticSimilarity clamps sim to [0,1] and applies it.
func (s *Searcher) UpdateMinSemanticSimilarity(sim float64) {
	if sim < 0 {
		sim = 0
	}
	if sim > 1 {
		sim = 1
	}
	s.mu.Lock()
	s.settings.MinSemanticSimilarity = sim
	s.mu.Unlock()
}

// UpdateSnippetMaxLength applies a new snippet length, ignoring non-positive values.
func (s *Searcher) UpdateSnippetMaxLength(n int) {
	if n <= 0 {
		return
	}
	s.mu.Lock()
	s.settings.SnippetMaxLength = n
	s.mu.Unlock()
}

// RecordRequest describes a query execution the caller should submit to
// HistoryStore. Search returns it instead of notifying HistoryStore itself,
// breaking the Searcher->HistoryStore back-reference.
type RecordRequest struct {
	Text            string
	Mode            models.SearchMode
	ResultCount     int
	ExecutionTimeMs int64
}

// Search executes q against the configured stores and returns a Response
// plus a RecordRequest describing the execution for HistoryStore.
func (s *Searcher) Search(ctx context.Context, q *models.Query) (*models.Response, RecordRequest, error) {
	settings := s.Settings()
	if q.Mode == models.ModeHybrid && q.Weights == nil {
		q.Weights = &models.Weights{FullText: settings.FullTextWeight, Semantic: settings.SemanticWeight}
	}
	if err := q.Validate(); err != nil {
		return nil, RecordRequest{}, models.NewCoreError(models.ErrValidation, err, "invalid query")
	}
	start := time.Now()

	// One candidate past the limit lets the truncation check below see
	// whether more matches exist than were asked for.
	var results []*models.Result
	var err error
	switch q.Mode {
	case models.ModeFullText:
		results, err = s.fullText(ctx, q, q.Limit+1, settings)
	case models.ModeSemantic:
		results, err = s.semantic(ctx, q, q.Limit+1, settings.MinSemanticSimilarity, settings)
	case models.ModeHybrid:
		results, err = s.hybrid(ctx, q, settings)
	}
	if err != nil {
		return nil, RecordRequest{}, err
	}

	results = dedupeByDocID(results)
	results = filterByFolderPaths(results, q.FolderPaths)
	results = filterByDateRange(results, q.DateFrom, q.DateTo)
	totalCandidates := len(results)
	truncated := len(results) > q.Limit
	if truncated {
		results = results[:q.Limit]
	}
	for i, r := range results {
		r.Rank = i + 1
	}

	elapsed := time.Since(start)
	resp := &models.Response{
		Results:         results,
		TotalCandidates: totalCandidates,
		ExecutionTimeMs: elapsed.Milliseconds(),
		Truncated:       truncated,
	}
	rec := RecordRequest{Text: q.Text, Mode: q.Mode, ResultCount: len(results), ExecutionTimeMs: resp.ExecutionTimeMs}
	return resp, rec, nil
}

func (s *Searcher) fullText(ctx context.Context, q *models.Query, limit int, settings Settings) ([]*models.Result, error) {
	hits, err := s.index.Query(q.Text, limit, toFilters(q))
	if err != nil {
		return nil, models.NewCoreError(models.ErrSearch, err, "full-text query")
	}
	terms := invindex.ExtractQueryTerms(q.Text)
	results := make([]*models.Result, 0, len(hits))
	for i, h := range hits {
		doc := documentFromHit(h)
		results = append(results, &models.Result{
			Document:         doc,
			Score:            s.index.NormalizeScore(h.RawScore),
			ModeUsed:         models.ModeFullText,
			Snippet:          invindex.Snippet(h.Content, q.Text, settings.SnippetMaxLength),
			HighlightedTerms: terms,
			Rank:             i + 1,
		})
	}
	return results, nil
}

func (s *Searcher) semantic(ctx context.Context, q *models.Query, limit int, minSimilarity float64, settings Settings) ([]*models.Result, error) {
	matches, err := s.vector.SearchSimilar(ctx, q.Text, limit, minSimilarity)
	if err != nil {
		return nil, models.NewCoreError(models.ErrSearch, err, "semantic query")
	}
	results := make([]*models.Result, 0, len(matches))
	for i, m := range matches {
		doc, err := s.docs.Get(ctx, m.DocID)
		if err != nil {
			return nil, models.NewCoreError(models.ErrSearch, err, "hydrate document %s", m.DocID)
		}
		if doc == nil {
			continue
		}
		results = append(results, &models.Result{
			Document: doc,
			Score:    m.Score,
			ModeUsed: models.ModeSemantic,
			Snippet:  truncatePrefix(doc.Content, settings.SnippetMaxLength),
			Rank:     i + 1,
		})
	}
	return applyQueryFilters(results, q), nil
}

func (s *Searcher) hybrid(ctx context.Context, q *models.Query, settings Settings) ([]*models.Result, error) {
	candidateLimit := q.Limit * 2
	ftResults, err := s.fullText(ctx, q, candidateLimit, settings)
	if err != nil {
		return nil, err
	}
	semResults, err := s.semantic(ctx, q, candidateLimit, hybridSubQueryMinSimilarity, settings)
	if err != nil {
		degraded := &models.CoreError{
			Kind:        models.ErrSearch,
			Component:   "semantic",
			Recoverable: true,
			Message:     fmt.Sprintf("semantic sub-query failed, falling back to full-text only: %v", err),
			Cause:       err,
		}
		s.mu.RLock()
		logger := s.logger
		s.mu.RUnlock()
		if degraded.Recoverable {
			logger.Warn("hybrid search degraded to full-text only", zap.Error(degraded))
		}
		return fullTextOnlyResults(ftResults, degraded), nil
	}

	weights := *q.Weights

	type fused struct {
		doc       *models.Document
		ftScore   float64
		semScore  float64
		ftResult  *models.Result
		semResult *models.Result
	}
	byID := make(map[string]*fused)
	for _, r := range ftResults {
		byID[r.Document.ID] = &fused{doc: r.Document, ftScore: r.Score, ftResult: r}
	}
	for _, r := range semResults {
		if f, ok := byID[r.Document.ID]; ok {
			f.semScore = r.Score
			f.semResult = r
		} else {
			byID[r.Document.ID] = &fused{doc: r.Document, semScore: r.Score, semResult: r}
		}
	}

	results := make([]*models.Result, 0, len(byID))
	for _, f := range byID {
		combined := f.ftScore*weights.FullText + f.semScore*weights.Semantic
		results = append(results, &models.Result{
			Document:             f.doc,
			Score:                combined,
			ModeUsed:             models.ModeHybrid,
			Snippet:              chooseSnippet(f.ftResult, f.semResult),
			HighlightedTerms:     mergeTerms(f.ftResult, f.semResult),
			RelevanceExplanation: explainHybrid(f.ftScore, f.semScore, weights),
		})
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	for i, r := range results {
		r.Rank = i + 1
	}
	return results, nil
}

// fullTextOnlyResults reduces a Hybrid query to its FullText results alone,
// annotating each with the degradation reason (spec: Hybrid silently falls
// back to FullText-only if the semantic sub-query fails).
func fullTextOnlyResults(ftResults []*models.Result, degraded *models.CoreError) []*models.Result {
	for i, r := range ftResults {
		r.RelevanceExplanation = degraded.Error()
		r.Rank = i + 1
	}
	return ftResults
}

func chooseSnippet(ft, sem *models.Result) string {
	switch {
	case ft != nil && sem != nil:
		if len(ft.Snippet) >= len(sem.Snippet) {
			return ft.Snippet
		}
		return sem.Snippet
	case ft != nil:
		return ft.Snippet
	case sem != nil:
		return sem.Snippet
	default:
		return ""
	}
}

func mergeTerms(ft, sem *models.Result) []string {
	seen := make(map[string]bool)
	var merged []string
	add := func(terms []string) {
		for _, t := range terms {
			if !seen[t] {
				seen[t] = true
				merged = append(merged, t)
			}
		}
	}
	if ft != nil {
		add(ft.HighlightedTerms)
	}
	if sem != nil {
		add(sem.HighlightedTerms)
	}
	return merged
}

func explainHybrid(ftScore, semScore float64, w models.Weights) string {
	return fmt.Sprintf("full_text=%.4f*%.2f + semantic=%.4f*%.2f", ftScore, w.FullText, semScore, w.Semantic)
}

func documentFromHit(h invindex.Hit) *models.Document {
	return &models.Document{
		ID:          h.ID,
		FilePath:    h.FilePath,
		Title:       h.Title,
		Content:     h.Content,
		FileType:    h.FileType,
		Size:        h.Size,
		CreatedAt:   h.CreatedAt,
		ModifiedAt:  h.ModifiedAt,
		IndexedAt:   h.IndexedAt,
		ContentHash: h.ContentHash,
	}
}

func toFilters(q *models.Query) invindex.Filters {
	return invindex.Filters{
		FileTypes:      q.FileTypes,
		ModifiedAfter:  q.DateFrom,
		ModifiedBefore: q.DateTo,
	}
}

func applyQueryFilters(results []*models.Result, q *models.Query) []*models.Result {
	results = filterByFileTypes(results, q.FileTypes)
	return results
}

func filterByFileTypes(results []*models.Result, types []models.FileType) []*models.Result {
	if len(types) == 0 {
		return results
	}
	allowed := make(map[models.FileType]bool, len(types))
	for _, t := range types {
		allowed[t] = true
	}
	out := results[:0]
	for _, r := range results {
		if allowed[r.Document.FileType] {
			out = append(out, r)
		}
	}
	return out
}

func dedupeByDocID(results []*models.Result) []*models.Result {
	seen := make(map[string]bool, len(results))
	out := make([]*models.Result, 0, len(results))
	for _, r := range results {
		if seen[r.Document.ID] {
			continue
		}
		seen[r.Document.ID] = true
		out = append(out, r)
	}
	return out
}

func filterByFolderPaths(results []*models.Result, prefixes []string) []*models.Result {
	if len(prefixes) == 0 {
		return results
	}
	out := make([]*models.Result, 0, len(results))
	for _, r := range results {
		for _, p := range prefixes {
			if strings.HasPrefix(r.Document.FilePath, p) {
				out = append(out, r)
				break
			}
		}
	}
	return out
}

func filterByDateRange(results []*models.Result, from, to *time.Time) []*models.Result {
	if from == nil && to == nil {
		return results
	}
	out := make([]*models.Result, 0, len(results))
	for _, r := range results {
		if from != nil && r.Document.ModifiedAt.Before(*from) {
			continue
		}
		if to != nil && r.Document.ModifiedAt.After(*to) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func truncatePrefix(content string, maxChars int) string {
	if maxChars <= 0 {
		maxChars = defaultSnippetMaxLength
	}
	if len(content) <= maxChars {
		return content
	}
	return strings.TrimSpace(content[:maxChars]) + "…"
}
