package index

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"bookdex/internal/config"
	"bookdex/internal/model"
)

// Store is the vector index boundary. EnsureCollection is idempotent and fails
// loudly on a dimension or metric mismatch; Upsert replaces by id; Search
// returns at most topK records by descending cosine similarity with a
// deterministic tie-break.
type Store interface {
	EnsureCollection(ctx context.Context, dimension int) error
	Upsert(ctx context.Context, records []model.IndexRecord) error
	Search(ctx context.Context, vector []float32, topK int) ([]model.ScoredRecord, error)
	Count(ctx context.Context) (int64, error)
}

type Factory func(collection string, args interface{}) (Store, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

func Register(name string, factory Factory) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" || factory == nil {
		return
	}
	registryMu.Lock()
	registry[key] = factory
	registryMu.Unlock()
}

func New(cfg config.IndexConfig) (Store, error) {
	key := strings.ToLower(strings.TrimSpace(cfg.Type))
	if key == "" {
		return nil, fmt.Errorf("index.type is required")
	}
	registryMu.RLock()
	factory := registry[key]
	registryMu.RUnlock()
	if factory == nil {
		return nil, fmt.Errorf("unsupported index type: %s", cfg.Type)
	}
	return factory(cfg.Collection, cfg.Data)
}

func decodeConfig(args interface{}, dst interface{}) error {
	if args == nil {
		return nil
	}
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode index config: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode index config: %w", err)
	}
	return nil
}

// sortScored orders hits by descending score, then ascending chunk position,
// then id. Two runs against an unchanged index must produce byte-identical
// ordering, so ties are never left to storage order.
func sortScored(hits []model.ScoredRecord, topK int) []model.ScoredRecord {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		if hits[i].Record.Payload.Position != hits[j].Record.Payload.Position {
			return hits[i].Record.Payload.Position < hits[j].Record.Payload.Position
		}
		return hits[i].Record.ID < hits[j].Record.ID
	})
	if topK > 0 && len(hits) > topK {
		hits = hits[:topK]
	}
	return hits
}
