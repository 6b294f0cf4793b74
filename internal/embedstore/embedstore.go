// Package embedstore is the persistent map from document id to embedding
// vector: the EmbeddingStore component. The whole map is loaded into memory
// at startup and rewritten atomically to a single binary file on save.
package embedstore

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/docmind/docmind-core/internal/embedding"
	"github.com/docmind/docmind-core/internal/fileid"
	"github.com/docmind/docmind-core/internal/models"
)

// magic identifies the on-disk embedding store format ("DMEM").
const magic = uint32(0x444D454D)

const formatVersion = uint32(1)

// Match is one result of SearchSimilar.
type Match struct {
	DocID string
	Score float64
}

// Store is the EmbeddingStore: an in-memory map of document id to Embedding,
// backed by a single file rewritten atomically on every Save.
type Store struct {
	path      string
	embedder  embedding.Embedder
	dimension int

	mu      sync.RWMutex
	entries map[string]models.Embedding
}

// Open loads path into memory, or starts with an empty store if the file is
// absent or corrupt (corruption is reported via the returned warning, not an error).
func Open(path string, embedder embedding.Embedder) (store *Store, warning error) {
	s := &Store{
		path:      path,
		embedder:  embedder,
		dimension: embedder.Dimension(),
		entries:   make(map[string]models.Embedding),
	}
	entries, err := load(path, s.dimension)
	if err != nil {
		return s, models.NewCoreError(models.ErrEmbedding, err, "embedding store at %s is corrupt, starting empty", path)
	}
	s.entries = entries
	return s, nil
}

func load(path string, dimension int) (map[string]models.Embedding, error) {
	entries := make(map[string]models.Embedding)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return entries, nil
		}
		return entries, err
	}
	defer f.Close()

	var header struct {
		Magic     uint32
		Version   uint32
		Dimension uint32
		Count     uint32
	}
	if err := binary.Read(f, binary.LittleEndian, &header); err != nil {
		return make(map[string]models.Embedding), err
	}
	if header.Magic != magic {
		return make(map[string]models.Embedding), os.ErrInvalid
	}
	if int(header.Dimension) != dimension {
		return make(map[string]models.Embedding), os.ErrInvalid
	}

	for i := uint32(0); i < header.Count; i++ {
		var idLen uint32
		if err := binary.Read(f, binary.LittleEndian, &idLen); err != nil {
			return make(map[string]models.Embedding), err
		}
		idBytes := make([]byte, idLen)
		if _, err := io.ReadFull(f, idBytes); err != nil {
			return make(map[string]models.Embedding), err
		}
		var textHash [32]byte
		if err := binary.Read(f, binary.LittleEndian, &textHash); err != nil {
			return make(map[string]models.Embedding), err
		}
		var createdAtUnixNano int64
		if err := binary.Read(f, binary.LittleEndian, &createdAtUnixNano); err != nil {
			return make(map[string]models.Embedding), err
		}
		vecBytes := make([]byte, dimension*4)
		if _, err := io.ReadFull(f, vecBytes); err != nil {
			return make(map[string]models.Embedding), err
		}

		id := string(idBytes)
		entries[id] = models.Embedding{
			DocID:     id,
			Vector:    bytesToFloat32Slice(vecBytes),
			TextHash:  hex.EncodeToString(textHash[:]),
			CreatedAt: time.Unix(0, createdAtUnixNano).UTC(),
		}
	}
	return entries, nil
}

// Save serializes the entire in-memory map to path.tmp and renames it over
// path, so a crash mid-write never leaves a truncated store on disk.
func (s *Store) Save() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return models.NewCoreError(models.ErrEmbedding, err, "create embedding store directory")
	}
	tmpPath := s.path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return models.NewCoreError(models.ErrEmbedding, err, "create temp embedding store file")
	}

	ids := make([]string, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	header := struct {
		Magic     uint32
		Version   uint32
		Dimension uint32
		Count     uint32
	}{magic, formatVersion, uint32(s.dimension), uint32(len(ids))}

	writeErr := func() error {
		if err := binary.Write(f, binary.LittleEndian, header); err != nil {
			return err
		}
		for _, id := range ids {
			e := s.entries[id]
			idBytes := []byte(id)
			if err := binary.Write(f, binary.LittleEndian, uint32(len(idBytes))); err != nil {
				return err
			}
			if _, err := f.Write(idBytes); err != nil {
				return err
			}
			hashBytes, err := hex.DecodeString(e.TextHash)
			if err != nil {
				return err
			}
			var hashArray [32]byte
			copy(hashArray[:], hashBytes)
			if err := binary.Write(f, binary.LittleEndian, hashArray); err != nil {
				return err
			}
			if err := binary.Write(f, binary.LittleEndian, e.CreatedAt.UnixNano()); err != nil {
				return err
			}
			if _, err := f.Write(float32SliceToBytes(padVector(e.Vector, s.dimension))); err != nil {
				return err
			}
		}
		return nil
	}()

	if closeErr := f.Close(); writeErr == nil {
		writeErr = closeErr
	}
	if writeErr != nil {
		_ = os.Remove(tmpPath)
		return models.NewCoreError(models.ErrEmbedding, writeErr, "write embedding store")
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return models.NewCoreError(models.ErrEmbedding, err, "rename embedding store into place")
	}
	return nil
}

// Upsert computes hash = sha256(text); if an existing entry already has that
// hash, it is a no-op. Otherwise the embedder encodes text (or the zero
// vector, when text is empty) and the entry is replaced.
func (s *Store) Upsert(ctx context.Context, docID, text string) error {
	hash := fileid.ContentHash(text)

	s.mu.RLock()
	existing, ok := s.entries[docID]
	s.mu.RUnlock()
	if ok && existing.TextHash == hash {
		return nil
	}

	vec, err := s.embedder.Encode(ctx, text)
	if err != nil {
		return models.NewCoreError(models.ErrEmbedding, err, "encode document %s", docID)
	}

	s.mu.Lock()
	s.entries[docID] = models.Embedding{DocID: docID, Vector: vec, TextHash: hash, CreatedAt: time.Now().UTC()}
	s.mu.Unlock()
	return nil
}

// Remove deletes the entry for docID, if present.
func (s *Store) Remove(docID string) {
	s.mu.Lock()
	delete(s.entries, docID)
	s.mu.Unlock()
}

// Count returns the number of stored embeddings.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// SearchSimilar encodes queryText, scores every stored vector by cosine
// similarity, filters by minSimilarity, and returns the top limit matches
// sorted by descending score.
func (s *Store) SearchSimilar(ctx context.Context, queryText string, limit int, minSimilarity float64) ([]Match, error) {
	queryVec, err := s.embedder.Encode(ctx, queryText)
	if err != nil {
		return nil, models.NewCoreError(models.ErrEmbedding, err, "encode query text")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	matches := make([]Match, 0, len(s.entries))
	for id, e := range s.entries {
		score := cosineSimilarity(queryVec, e.Vector)
		if score >= minSimilarity {
			matches = append(matches, Match{DocID: id, Score: score})
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// Rebuild clears the store, re-encodes each document's content, and saves
// periodically so a crash mid-rebuild does not lose all prior progress.
func (s *Store) Rebuild(ctx context.Context, docs []*models.Document, flushEvery int) error {
	s.mu.Lock()
	s.entries = make(map[string]models.Embedding)
	s.mu.Unlock()

	if flushEvery <= 0 {
		flushEvery = 200
	}
	for i, doc := range docs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.Upsert(ctx, doc.ID, doc.Content); err != nil {
			return err
		}
		if (i+1)%flushEvery == 0 {
			if err := s.Save(); err != nil {
				return err
			}
		}
	}
	return s.Save()
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return math.Max(0, math.Min(1, dot))
}

func padVector(v []float32, dimension int) []float32 {
	if len(v) == dimension {
		return v
	}
	out := make([]float32, dimension)
	copy(out, v)
	return out
}

func float32SliceToBytes(s []float32) []byte {
	out := make([]byte, len(s)*4)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*4:(i+1)*4], math.Float32bits(v))
	}
	return out
}

func bytesToFloat32Slice(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4 : (i+1)*4]))
	}
	return out
}
