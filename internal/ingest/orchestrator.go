package ingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"bookdex/internal/ai"
	"bookdex/internal/chunker"
	"bookdex/internal/index"
	"bookdex/internal/model"
	apperrors "bookdex/internal/pkg/errors"
)

// Orchestrator drives chunk → embed → store over a corpus of pages. Pages are
// independent of each other, so they run on a bounded worker pool; within a
// page the pipeline is strict. A failing page is recorded and skipped, a fatal
// misconfiguration (dimension or schema mismatch) stops the whole run before
// it can produce a large volume of uniformly bad output.
type Orchestrator struct {
	chunker  *chunker.Chunker
	embedder ai.IEmbedder
	store    index.Store
	workers  int
	dim      int
}

func New(ck *chunker.Chunker, embedder ai.IEmbedder, store index.Store, dimension, workers int) *Orchestrator {
	if workers <= 0 {
		workers = 4
	}
	return &Orchestrator{
		chunker:  ck,
		embedder: embedder,
		store:    store,
		workers:  workers,
		dim:      dimension,
	}
}

type pageResult struct {
	url     string
	chunks  int
	vectors int
	failure *model.PageFailure
	fatal   error
}

func (o *Orchestrator) Ingest(ctx context.Context, pages []model.DocumentPage) (*model.IngestionReport, error) {
	logger := logutil.GetLogger(ctx)
	start := time.Now()

	if err := o.store.EnsureCollection(ctx, o.dim); err != nil {
		return nil, fmt.Errorf("ensure collection: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan model.DocumentPage)
	results := make(chan pageResult, len(pages))
	var wg sync.WaitGroup
	for i := 0; i < o.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for page := range jobs {
				results <- o.processPage(runCtx, page)
			}
		}()
	}

	attempted := 0
feed:
	for _, page := range pages {
		// Cancellation is observed between pages: the page currently being
		// processed finishes, nothing is started half-way. The non-blocking
		// check first so a canceled run never races an idle worker for the
		// next page.
		select {
		case <-runCtx.Done():
			break feed
		default:
		}
		select {
		case <-runCtx.Done():
			break feed
		case jobs <- page:
			attempted++
		}
	}
	close(jobs)
	wg.Wait()
	close(results)

	report := &model.IngestionReport{PagesAttempted: attempted}
	var fatal error
	for res := range results {
		if res.fatal != nil && fatal == nil {
			fatal = res.fatal
			cancel()
		}
		if res.failure != nil {
			report.PagesFailed++
			report.Failures = append(report.Failures, *res.failure)
			continue
		}
		report.PagesSucceeded++
		report.ChunksProduced += res.chunks
		report.VectorsStored += res.vectors
	}
	report.Duration = time.Since(start)

	logger.Info("ingestion finished",
		zap.Int("attempted", report.PagesAttempted),
		zap.Int("succeeded", report.PagesSucceeded),
		zap.Int("failed", report.PagesFailed),
		zap.Int("chunks", report.ChunksProduced),
		zap.Int("vectors", report.VectorsStored),
		zap.Duration("duration", report.Duration),
	)
	if fatal != nil {
		return report, fatal
	}
	// An interrupted run must not read as a completed one: the caller (CLI or
	// cron job) decides whether a truncated pass counts as success.
	if err := ctx.Err(); err != nil && report.PagesAttempted < len(pages) {
		return report, fmt.Errorf("ingestion interrupted after %d of %d pages: %w",
			report.PagesAttempted, len(pages), err)
	}
	return report, nil
}

// processPage runs the strict per-page pipeline. The page that is already in
// flight when the run is canceled completes against a detached context, so the
// index never holds a half-stored page; individual external calls still carry
// their own timeouts.
func (o *Orchestrator) processPage(ctx context.Context, page model.DocumentPage) pageResult {
	pageCtx := context.WithoutCancel(ctx)
	logger := logutil.GetLogger(pageCtx).With(zap.String("url", page.URL))

	chunks, err := o.chunker.Chunk(page)
	if err != nil {
		return o.fail(logger, page.URL, model.StageChunk, err)
	}
	if len(chunks) == 0 {
		logger.Warn("page produced no chunks, skipping")
		return pageResult{url: page.URL}
	}

	texts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		texts = append(texts, c.Content)
	}
	vectors, err := o.embedder.EmbedBatch(pageCtx, texts, ai.TaskDocument)
	if err != nil {
		return o.fail(logger, page.URL, model.StageEmbed, err)
	}

	records := make([]model.IndexRecord, 0, len(chunks))
	for i, c := range chunks {
		records = append(records, model.IndexRecord{
			ID:     c.ID,
			Vector: vectors[i],
			Payload: model.ChunkPayload{
				Content:     c.Content,
				SourceURL:   c.SourceURL,
				Chapter:     c.Chapter,
				Section:     c.Section,
				HeadingPath: c.HeadingPath,
				Position:    c.Position,
			},
		})
	}
	if err := o.store.Upsert(pageCtx, records); err != nil {
		return o.fail(logger, page.URL, model.StageStore, err)
	}

	logger.Debug("page ingested", zap.Int("chunks", len(chunks)))
	return pageResult{url: page.URL, chunks: len(chunks), vectors: len(records)}
}

func (o *Orchestrator) fail(logger *zap.Logger, url, stage string, err error) pageResult {
	logger.Error("page ingestion failed", zap.String("stage", stage), zap.Error(err))
	res := pageResult{
		url:     url,
		failure: &model.PageFailure{URL: url, Stage: stage, Reason: err.Error()},
	}
	if apperrors.IsFatal(err) {
		res.fatal = fmt.Errorf("ingestion aborted at %s (%s): %w", url, stage, err)
	}
	return res
}
