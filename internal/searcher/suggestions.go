package searcher

import (
	"context"
	"sort"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/docmind/docmind-core/internal/invindex"
)

const suggestionCacheCapacity = 256

// SuggestionIndex is an in-memory token prefix index over stored documents,
// plus an LRU cache of prefix->suggestions. It is owned by Searcher and
// built lazily on first use.
type SuggestionIndex struct {
	source func() ([]string, error)

	mu     sync.RWMutex
	tokens []string
	built  bool

	cache *lru.Cache[string, []string]
}

// NewSuggestionIndex builds a SuggestionIndex that pulls its token universe
// from source on first use. source returns every distinct document id's
// worth of searchable text (titles and content concatenated).
func NewSuggestionIndex(source func() ([]string, error)) *SuggestionIndex {
	cache, _ := lru.New[string, []string](suggestionCacheCapacity)
	return &SuggestionIndex{source: source, cache: cache}
}

// tokenSource gathers title+content text across all stored documents. It is
// wired as the SuggestionIndex's default source.
func (s *Searcher) tokenSource() ([]string, error) {
	ctx := context.Background()
	docs, err := s.docs.List(ctx, 0, 0)
	if err != nil {
		return nil, err
	}
	texts := make([]string, 0, len(docs))
	for _, d := range docs {
		texts = append(texts, d.Title+" "+d.Content)
	}
	return texts, nil
}

// Rebuild forces a fresh scan of the token universe, discarding the cache.
func (si *SuggestionIndex) Rebuild() error {
	texts, err := si.source()
	if err != nil {
		return err
	}
	set := make(map[string]bool)
	for _, text := range texts {
		for _, term := range invindex.ExtractQueryTerms(text) {
			set[term] = true
		}
	}
	tokens := make([]string, 0, len(set))
	for t := range set {
		tokens = append(tokens, t)
	}
	sort.Strings(tokens)

	si.mu.Lock()
	si.tokens = tokens
	si.built = true
	si.mu.Unlock()
	si.cache.Purge()
	return nil
}

func (si *SuggestionIndex) ensureBuilt() error {
	si.mu.RLock()
	built := si.built
	si.mu.RUnlock()
	if built {
		return nil
	}
	return si.Rebuild()
}

// GetSuggestions returns prefix-matching tokens sorted by (length,
// lexicographic), up to limit. Prefixes shorter than 2 characters always
// return an empty result. Results are cached by normalized prefix.
func (si *SuggestionIndex) GetSuggestions(prefix string, limit int) ([]string, error) {
	normalized := strings.ToLower(strings.TrimSpace(prefix))
	if len(normalized) < 2 {
		return nil, nil
	}
	if cached, ok := si.cache.Get(normalized); ok {
		return capSlice(cached, limit), nil
	}
	if err := si.ensureBuilt(); err != nil {
		return nil, err
	}

	si.mu.RLock()
	tokens := si.tokens
	si.mu.RUnlock()

	var matches []string
	for _, t := range tokens {
		if strings.HasPrefix(t, normalized) {
			matches = append(matches, t)
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		if len(matches[i]) != len(matches[j]) {
			return len(matches[i]) < len(matches[j])
		}
		return matches[i] < matches[j]
	})

	si.cache.Add(normalized, matches)
	return capSlice(matches, limit), nil
}

// Invalidate drops the cached suggestion lists without forcing an immediate
// rebuild; the next GetSuggestions call triggers a lazy rebuild only if the
// token universe itself was never built, otherwise stale tokens remain valid
// until the next explicit Rebuild.
func (si *SuggestionIndex) Invalidate() {
	si.cache.Purge()
}

func capSlice(s []string, limit int) []string {
	if limit <= 0 || limit >= len(s) {
		return s
	}
	return s[:limit]
}

// Suggestions exposes the Searcher's SuggestionIndex.
func (s *Searcher) Suggestions() *SuggestionIndex {
	return s.suggestions
}
