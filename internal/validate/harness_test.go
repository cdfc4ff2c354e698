package validate

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"bookdex/internal/config"
	"bookdex/internal/index"
	"bookdex/internal/model"
	"bookdex/internal/retrieval"
)

func query(text string, expected []string, category string) model.ValidationQuery {
	return model.ValidationQuery{QueryText: text, ExpectedChunkIDs: expected, Category: category}
}

func TestScorePerfectRetrieval(t *testing.T) {
	res := Score(query("q", []string{"a", "b"}, ""), []string{"a", "b"})
	require.InDelta(t, 1.0, res.Precision, 1e-9)
	require.InDelta(t, 1.0, res.Recall, 1e-9)
	require.InDelta(t, 1.0, res.Accuracy, 1e-9)
}

func TestScorePartialRetrieval(t *testing.T) {
	res := Score(query("q", []string{"a", "b"}, ""), []string{"a", "x", "y", "z"})
	require.InDelta(t, 0.25, res.Precision, 1e-9)
	require.InDelta(t, 0.5, res.Recall, 1e-9)
	require.Zero(t, res.Accuracy, "accuracy is the strict all-expected-found signal")
}

func TestScoreEmptyExpectedSet(t *testing.T) {
	// Nothing expected means nothing missed.
	res := Score(query("q", nil, ""), []string{"a", "b"})
	require.Zero(t, res.Precision)
	require.InDelta(t, 1.0, res.Recall, 1e-9)
	require.InDelta(t, 1.0, res.Accuracy, 1e-9)
}

func TestScoreEmptyRetrieval(t *testing.T) {
	res := Score(query("q", []string{"a"}, ""), nil)
	require.Zero(t, res.Precision)
	require.Zero(t, res.Recall)
	require.Zero(t, res.Accuracy)
}

func TestScoreDeduplicatesRetrieved(t *testing.T) {
	// A duplicated hit counts once toward overlap but still dilutes precision.
	res := Score(query("q", []string{"a"}, ""), []string{"a", "a"})
	require.InDelta(t, 0.5, res.Precision, 1e-9)
	require.InDelta(t, 1.0, res.Recall, 1e-9)
	require.InDelta(t, 1.0, res.Accuracy, 1e-9)
}

type fixedEmbedder struct {
	vectors map[string][]float32
}

func (f *fixedEmbedder) ModelName() string { return "fixed-embed" }

func (f *fixedEmbedder) EmbedBatch(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v, ok := f.vectors[text]
		if !ok {
			v = []float32{0, 0, 1}
		}
		out[i] = v
	}
	return out, nil
}

func TestHarnessRunAggregates(t *testing.T) {
	ctx := context.Background()
	store := index.NewMemoryStore()
	require.NoError(t, store.EnsureCollection(ctx, 3))
	require.NoError(t, store.Upsert(ctx, []model.IndexRecord{
		{
			ID:     "chunk-a",
			Vector: []float32{1, 0, 0},
			Payload: model.ChunkPayload{
				Content:   "Chunk A content.",
				SourceURL: "https://example.com/docs/a",
			},
		},
		{
			ID:     "chunk-b",
			Vector: []float32{0, 1, 0},
			Payload: model.ChunkPayload{
				Content:   "Chunk B content.",
				SourceURL: "https://example.com/docs/b",
				Position:  1,
			},
		},
	}))

	embedder := &fixedEmbedder{vectors: map[string][]float32{
		"find chunk a": {1, 0, 0},
		"find chunk b": {0, 1, 0},
	}}
	service := retrieval.NewService(embedder, store, config.RetrievalConfig{TopK: 1})
	harness := New(service, 1)

	report, err := harness.Run(ctx, []model.ValidationQuery{
		query("find chunk a", []string{"chunk-a"}, "single-concept"),
		query("find chunk b", []string{"chunk-a"}, "cross-section"),
	})
	require.NoError(t, err)
	require.Len(t, report.Results, 2)
	require.Positive(t, report.Results[0].LatencySeconds)

	require.InDelta(t, 0.5, report.MeanPrecision, 1e-9)
	require.InDelta(t, 0.5, report.MeanRecall, 1e-9)
	require.InDelta(t, 0.5, report.MeanAccuracy, 1e-9)

	require.Equal(t, []string{"cross-section", "single-concept"}, report.Categories())
	require.Equal(t, 1, report.ByCategory["single-concept"].Queries)
	require.InDelta(t, 1.0, report.ByCategory["single-concept"].MeanRecall, 1e-9)
	require.InDelta(t, 0.0, report.ByCategory["cross-section"].MeanRecall, 1e-9)
}

func TestLoadQueries(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gold.json")
	queries := []model.ValidationQuery{
		query("what is a gazebo world", []string{"id-1"}, "single-concept"),
	}
	data, err := json.Marshal(queries)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	got, err := LoadQueries(path)
	require.NoError(t, err)
	require.Equal(t, queries, got)
}

func TestLoadQueriesRejectsMissingText(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gold.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"expected_chunk_ids":["x"]}]`), 0o644))

	_, err := LoadQueries(path)
	require.Error(t, err)
}
