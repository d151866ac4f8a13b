// Package memstore is an in-process vector index using brute-force cosine similarity.
// It backs tests and single-node deployments without an external index.
package memstore

import (
	"context"
	"math"
	"sort"
	"sync"

	"campus-rag-go/internal/model"
)

// Store keeps every record in memory, keyed by vector id.
type Store struct {
	mu      sync.RWMutex
	records map[string]model.VectorRecord
}

// New returns an empty store.
func New() *Store {
	return &Store{records: make(map[string]model.VectorRecord)}
}

func (s *Store) Upsert(ctx context.Context, records []model.VectorRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		vec := make([]float32, len(r.Vector))
		copy(vec, r.Vector)
		r.Vector = vec
		s.records[r.ID] = r
	}
	return nil
}

// Query ranks all records by cosine similarity; ties are broken by id for stable output.
func (s *Store) Query(ctx context.Context, vector []float32, topK int) ([]model.VectorMatch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	matches := make([]model.VectorMatch, 0, len(s.records))
	for id, r := range s.records {
		matches = append(matches, model.VectorMatch{ID: id, Score: cosine(vector, r.Vector), Metadata: r.Metadata})
	}
	s.mu.RUnlock()

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ID < matches[j].ID
	})
	if topK > 0 && len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func (s *Store) DeleteByContentHash(ctx context.Context, hash string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, r := range s.records {
		if r.Metadata.ContentHash == hash {
			delete(s.records, id)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored vectors.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
