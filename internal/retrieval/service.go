package retrieval

import (
	"context"
	"fmt"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"bookdex/internal/ai"
	"bookdex/internal/config"
	"bookdex/internal/index"
	"bookdex/internal/model"
)

// Service answers natural-language queries against the index. It is stateless
// per request: the embedder and store are safely shared across concurrent
// calls.
type Service struct {
	embedder ai.IEmbedder
	store    index.Store
	topK     int
	minScore float64
}

func NewService(embedder ai.IEmbedder, store index.Store, cfg config.RetrievalConfig) *Service {
	return &Service{
		embedder: embedder,
		store:    store,
		topK:     cfg.TopK,
		minScore: cfg.MinScore,
	}
}

// Retrieve embeds the query with the same model used at ingestion, searches
// the index and maps hits into the agent-ready shape. Results under the score
// floor are dropped; an empty slice is a valid "nothing relevant found"
// outcome, distinct from an error.
func (s *Service) Retrieve(ctx context.Context, queryText string, topK int) ([]model.RetrievedChunk, error) {
	logger := logutil.GetLogger(ctx)
	if queryText == "" {
		return nil, fmt.Errorf("query text is required")
	}
	if topK <= 0 {
		topK = s.topK
	}
	start := time.Now()

	vectors, err := s.embedder.EmbedBatch(ctx, []string{queryText}, ai.TaskQuery)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	hits, err := s.store.Search(ctx, vectors[0], topK)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}

	results := make([]model.RetrievedChunk, 0, len(hits))
	for _, hit := range hits {
		if hit.Score < s.minScore {
			continue
		}
		results = append(results, model.RetrievedChunk{
			ChunkID:         hit.Record.ID,
			Content:         hit.Record.Payload.Content,
			SourceURL:       hit.Record.Payload.SourceURL,
			Chapter:         hit.Record.Payload.Chapter,
			Section:         hit.Record.Payload.Section,
			HeadingPath:     hit.Record.Payload.HeadingPath,
			SimilarityScore: hit.Score,
		})
	}

	logger.Debug("retrieval completed",
		zap.Int("top_k", topK),
		zap.Int("results", len(results)),
		zap.Duration("latency", time.Since(start)),
	)
	return results, nil
}
