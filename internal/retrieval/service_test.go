package retrieval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"bookdex/internal/config"
	"bookdex/internal/index"
	"bookdex/internal/model"
)

// mapEmbedder returns a canned vector per text so tests control similarity
// exactly.
type mapEmbedder struct {
	vectors  map[string][]float32
	lastTask string
}

func (m *mapEmbedder) ModelName() string { return "map-embed" }

func (m *mapEmbedder) EmbedBatch(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	m.lastTask = taskType
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v, ok := m.vectors[text]
		if !ok {
			v = []float32{0, 0, 1}
		}
		out[i] = v
	}
	return out, nil
}

func seededStore(t *testing.T) index.Store {
	t.Helper()
	store := index.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.EnsureCollection(ctx, 3))
	require.NoError(t, store.Upsert(ctx, []model.IndexRecord{
		{
			ID:     "chunk-physics",
			Vector: []float32{1, 0, 0},
			Payload: model.ChunkPayload{
				Content:     "Gravity compensation in simulation.",
				SourceURL:   "https://example.com/docs/physics",
				Chapter:     "Physics",
				Section:     "Gravity",
				HeadingPath: []string{"Physics", "Gravity"},
				Position:    0,
			},
		},
		{
			ID:     "chunk-sensors",
			Vector: []float32{0, 1, 0},
			Payload: model.ChunkPayload{
				Content:   "Lidar sensor plugin configuration.",
				SourceURL: "https://example.com/docs/sensors",
				Chapter:   "Sensors",
				Position:  1,
			},
		},
	}))
	return store
}

func TestRetrieveMapsMetadata(t *testing.T) {
	embedder := &mapEmbedder{vectors: map[string][]float32{
		"how does gravity work": {1, 0, 0},
	}}
	svc := NewService(embedder, seededStore(t), config.RetrievalConfig{TopK: 5})

	results, err := svc.Retrieve(context.Background(), "how does gravity work", 0)
	require.NoError(t, err)
	require.Len(t, results, 2)

	top := results[0]
	require.Equal(t, "chunk-physics", top.ChunkID)
	require.Equal(t, "Gravity compensation in simulation.", top.Content)
	require.Equal(t, "https://example.com/docs/physics", top.SourceURL)
	require.Equal(t, "Physics", top.Chapter)
	require.Equal(t, "Gravity", top.Section)
	require.Equal(t, []string{"Physics", "Gravity"}, top.HeadingPath)
	require.InDelta(t, 1.0, top.SimilarityScore, 1e-9)
	require.Greater(t, top.SimilarityScore, results[1].SimilarityScore)
}

func TestRetrieveUsesQueryTaskType(t *testing.T) {
	embedder := &mapEmbedder{vectors: map[string][]float32{}}
	svc := NewService(embedder, seededStore(t), config.RetrievalConfig{TopK: 5})

	_, err := svc.Retrieve(context.Background(), "anything", 0)
	require.NoError(t, err)
	require.Equal(t, "search_query", embedder.lastTask)
}

func TestRetrieveScoreFloor(t *testing.T) {
	embedder := &mapEmbedder{vectors: map[string][]float32{
		"unrelated question": {0, 0, 1},
	}}
	svc := NewService(embedder, seededStore(t), config.RetrievalConfig{TopK: 5, MinScore: 0.5})

	results, err := svc.Retrieve(context.Background(), "unrelated question", 0)
	require.NoError(t, err)
	require.NotNil(t, results, "no match is an empty result, not an error")
	require.Empty(t, results)
}

func TestRetrieveTopKOverride(t *testing.T) {
	embedder := &mapEmbedder{vectors: map[string][]float32{
		"how does gravity work": {1, 0, 0},
	}}
	svc := NewService(embedder, seededStore(t), config.RetrievalConfig{TopK: 5})

	results, err := svc.Retrieve(context.Background(), "how does gravity work", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "chunk-physics", results[0].ChunkID)
}

func TestRetrieveRejectsEmptyQuery(t *testing.T) {
	svc := NewService(&mapEmbedder{}, seededStore(t), config.RetrievalConfig{TopK: 5})
	_, err := svc.Retrieve(context.Background(), "", 0)
	require.Error(t, err)
}
