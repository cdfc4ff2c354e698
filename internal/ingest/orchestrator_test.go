package ingest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"bookdex/internal/ai"
	"bookdex/internal/chunker"
	"bookdex/internal/config"
	"bookdex/internal/index"
	"bookdex/internal/model"
	apperrors "bookdex/internal/pkg/errors"
)

const testDim = 3

// stubEmbedder fails any batch whose text contains failMarker; everything else
// gets a fixed-dimension vector.
type stubEmbedder struct {
	mu         sync.Mutex
	batches    int
	failMarker string
	failErr    error
}

func (s *stubEmbedder) ModelName() string { return "stub-embed" }

func (s *stubEmbedder) EmbedBatch(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	s.mu.Lock()
	s.batches++
	s.mu.Unlock()
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if s.failMarker != "" && strings.Contains(text, s.failMarker) {
			return nil, s.failErr
		}
		out[i] = []float32{float32(len(text)), 1, 0}
	}
	return out, nil
}

func testOrchestrator(embedder ai.IEmbedder, store index.Store) *Orchestrator {
	ck := chunker.New(config.ChunkerConfig{MinTokens: 5, MaxTokens: 50, OverlapTokens: 0})
	return New(ck, embedder, store, testDim, 2)
}

func page(url, text string) model.DocumentPage {
	return model.DocumentPage{URL: url, RawText: text}
}

func TestIngestHappyPath(t *testing.T) {
	store := index.NewMemoryStore()
	orch := testOrchestrator(&stubEmbedder{}, store)

	report, err := orch.Ingest(context.Background(), []model.DocumentPage{
		page("https://example.com/a", "# A\n\nSome short page body here."),
		page("https://example.com/b", "# B\n\nAnother short page body here."),
	})
	require.NoError(t, err)
	require.Equal(t, 2, report.PagesAttempted)
	require.Equal(t, 2, report.PagesSucceeded)
	require.Zero(t, report.PagesFailed)
	require.Equal(t, report.ChunksProduced, report.VectorsStored)

	count, err := store.Count(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, report.VectorsStored, count)
}

func TestIngestPartialFailureContinues(t *testing.T) {
	store := index.NewMemoryStore()
	embedder := &stubEmbedder{
		failMarker: "POISON",
		failErr:    fmt.Errorf("%w: status 503", apperrors.ErrUpstreamUnavailable),
	}
	orch := testOrchestrator(embedder, store)

	report, err := orch.Ingest(context.Background(), []model.DocumentPage{
		page("https://example.com/bad", "# Bad\n\nPOISON body that cannot embed."),
		page("https://example.com/good", "# Good\n\nPerfectly normal body text."),
	})
	require.NoError(t, err, "a transient page failure must not fail the run")
	require.Equal(t, 2, report.PagesAttempted)
	require.Equal(t, 1, report.PagesSucceeded)
	require.Equal(t, 1, report.PagesFailed)
	require.Len(t, report.Failures, 1)
	require.Equal(t, "https://example.com/bad", report.Failures[0].URL)
	require.Equal(t, model.StageEmbed, report.Failures[0].Stage)
	require.NotEmpty(t, report.Failures[0].Reason)

	count, err := store.Count(context.Background())
	require.NoError(t, err)
	require.Positive(t, count, "the good page must still be stored")
}

func TestIngestFatalErrorAborts(t *testing.T) {
	store := index.NewMemoryStore()
	embedder := &stubEmbedder{
		failMarker: "POISON",
		failErr:    fmt.Errorf("%w: vector 0 has dimension 2, expected 3", apperrors.ErrDimensionMismatch),
	}
	orch := testOrchestrator(embedder, store)

	report, err := orch.Ingest(context.Background(), []model.DocumentPage{
		page("https://example.com/bad", "# Bad\n\nPOISON body that cannot embed."),
	})
	require.Error(t, err)
	require.ErrorIs(t, err, apperrors.ErrDimensionMismatch)
	require.NotNil(t, report, "partial progress is still reported")
	require.Equal(t, 1, report.PagesFailed)
}

func TestIngestSchemaMismatchBeforeWork(t *testing.T) {
	store := index.NewMemoryStore()
	require.NoError(t, store.EnsureCollection(context.Background(), testDim+1))

	orch := testOrchestrator(&stubEmbedder{}, store)
	report, err := orch.Ingest(context.Background(), []model.DocumentPage{
		page("https://example.com/a", "Some body."),
	})
	require.ErrorIs(t, err, apperrors.ErrSchemaMismatch)
	require.Nil(t, report)
}

func TestIngestRerunIsIdempotent(t *testing.T) {
	store := index.NewMemoryStore()
	orch := testOrchestrator(&stubEmbedder{}, store)
	pages := []model.DocumentPage{
		page("https://example.com/a", "# A\n\nSome short page body here."),
		page("https://example.com/b", "# B\n\nAnother short page body here."),
	}

	first, err := orch.Ingest(context.Background(), pages)
	require.NoError(t, err)
	countAfterFirst, err := store.Count(context.Background())
	require.NoError(t, err)

	second, err := orch.Ingest(context.Background(), pages)
	require.NoError(t, err)
	countAfterSecond, err := store.Count(context.Background())
	require.NoError(t, err)

	require.Equal(t, first.ChunksProduced, second.ChunksProduced)
	require.Equal(t, countAfterFirst, countAfterSecond, "deterministic ids must overwrite, not duplicate")
}

func TestIngestStopsWhenContextCanceled(t *testing.T) {
	store := index.NewMemoryStore()
	orch := testOrchestrator(&stubEmbedder{}, store)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := orch.Ingest(ctx, []model.DocumentPage{
		page("https://example.com/a", "# A\n\nSome short page body here."),
		page("https://example.com/b", "# B\n\nAnother short page body here."),
	})
	require.Error(t, err, "an interrupted run must not read as a completed one")
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, report)
	require.Zero(t, report.PagesAttempted)
	require.Zero(t, report.PagesSucceeded)

	count, err := store.Count(context.Background())
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestIngestEmptyPageSkipped(t *testing.T) {
	store := index.NewMemoryStore()
	orch := testOrchestrator(&stubEmbedder{}, store)

	report, err := orch.Ingest(context.Background(), []model.DocumentPage{
		page("https://example.com/empty", ""),
	})
	require.NoError(t, err)
	require.Equal(t, 1, report.PagesSucceeded)
	require.Zero(t, report.ChunksProduced)
}
