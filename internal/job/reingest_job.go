package job

import (
	"context"

	"bookdex/internal/ingest"
	"bookdex/internal/source"
)

// ReingestJob re-runs the full ingestion pass on a cron schedule so the index
// follows the published site. Chunk ids are deterministic, so an unchanged
// corpus makes the whole pass a no-op in effect.
type ReingestJob struct {
	src  source.Source
	orch *ingest.Orchestrator
}

func NewReingestJob(src source.Source, orch *ingest.Orchestrator) *ReingestJob {
	return &ReingestJob{src: src, orch: orch}
}

func (j *ReingestJob) Name() string {
	return "reingest"
}

func (j *ReingestJob) Run(ctx context.Context) error {
	pages, err := j.src.Pages(ctx)
	if err != nil {
		return err
	}
	_, err = j.orch.Ingest(ctx, pages)
	return err
}
