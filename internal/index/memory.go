package index

import (
	"context"
	"fmt"
	"math"
	"sync"

	"bookdex/internal/model"
	apperrors "bookdex/internal/pkg/errors"
)

// memoryStore is an in-process index for tests and offline runs. Same
// contract, same deterministic ordering, no external service.
type memoryStore struct {
	mu        sync.RWMutex
	dimension int
	records   map[string]model.IndexRecord
}

func init() {
	Register("memory", createMemoryStore)
}

func createMemoryStore(collection string, args interface{}) (Store, error) {
	_ = collection
	_ = args
	return NewMemoryStore(), nil
}

func NewMemoryStore() Store {
	return &memoryStore{records: make(map[string]model.IndexRecord)}
}

func (s *memoryStore) EnsureCollection(ctx context.Context, dimension int) error {
	_ = ctx
	if dimension <= 0 {
		return fmt.Errorf("%w: invalid dimension %d", apperrors.ErrInvalid, dimension)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dimension == 0 {
		s.dimension = dimension
		return nil
	}
	if s.dimension != dimension {
		return fmt.Errorf("%w: collection has dimension=%d, want %d", apperrors.ErrSchemaMismatch, s.dimension, dimension)
	}
	return nil
}

func (s *memoryStore) Upsert(ctx context.Context, records []model.IndexRecord) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range records {
		if err := validateRecord(rec); err != nil {
			return err
		}
		if s.dimension > 0 && len(rec.Vector) != s.dimension {
			return fmt.Errorf("%w: record %s has dimension %d, want %d",
				apperrors.ErrDimensionMismatch, rec.ID, len(rec.Vector), s.dimension)
		}
		s.records[rec.ID] = rec
	}
	return nil
}

func (s *memoryStore) Search(ctx context.Context, vector []float32, topK int) ([]model.ScoredRecord, error) {
	_ = ctx
	if topK <= 0 {
		topK = 5
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	hits := make([]model.ScoredRecord, 0, len(s.records))
	for _, rec := range s.records {
		hits = append(hits, model.ScoredRecord{Record: rec, Score: CosineSimilarity(vector, rec.Vector)})
	}
	return sortScored(hits, topK), nil
}

func (s *memoryStore) Count(ctx context.Context) (int64, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.records)), nil
}

func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
