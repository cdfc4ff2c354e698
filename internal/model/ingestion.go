package model

import "time"

// Ingestion stages for per-page failure reporting.
const (
	StageChunk = "chunk"
	StageEmbed = "embed"
	StageStore = "store"
)

// PageFailure records one page that could not be ingested and where it failed.
type PageFailure struct {
	URL    string `json:"url"`
	Stage  string `json:"stage"`
	Reason string `json:"reason"`
}

// IngestionReport summarizes one ingestion run.
type IngestionReport struct {
	PagesAttempted int           `json:"pages_attempted"`
	PagesSucceeded int           `json:"pages_succeeded"`
	PagesFailed    int           `json:"pages_failed"`
	Failures       []PageFailure `json:"failures,omitempty"`
	ChunksProduced int           `json:"chunks_produced"`
	VectorsStored  int           `json:"vectors_stored"`
	Duration       time.Duration `json:"duration"`
}
