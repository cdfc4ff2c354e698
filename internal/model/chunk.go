package model

// Chunk is the atomic unit of retrieval: a bounded, heading-aware slice of a
// page. Chunks are immutable; re-ingestion of unchanged content reproduces the
// same ids so index upserts stay idempotent.
type Chunk struct {
	ID          string   `json:"id"`
	Content     string   `json:"content"`
	SourceURL   string   `json:"source_url"`
	Chapter     string   `json:"chapter"`
	Section     string   `json:"section"`
	HeadingPath []string `json:"heading_path"`
	Position    int      `json:"position"`
	TokenCount  int      `json:"token_count"`
}

// EmbeddingVector pairs a chunk with its fixed-dimension vector and the model
// that produced it, so later model drift can be detected.
type EmbeddingVector struct {
	ChunkID string    `json:"chunk_id"`
	Values  []float32 `json:"values"`
	Model   string    `json:"model"`
}

// IndexRecord is the persisted unit in the vector index. The payload is
// self-sufficient for citation: rendering a source reference never requires a
// join against other storage.
type IndexRecord struct {
	ID      string       `json:"id"`
	Vector  []float32    `json:"vector"`
	Payload ChunkPayload `json:"payload"`
}

// ChunkPayload is the fixed-field payload stored beside each vector. It is a
// named-field struct rather than an open map so malformed payloads fail at
// write time.
type ChunkPayload struct {
	Content     string   `json:"content"`
	SourceURL   string   `json:"source_url"`
	Chapter     string   `json:"chapter"`
	Section     string   `json:"section"`
	HeadingPath []string `json:"heading_path"`
	Position    int      `json:"position"`
}

// ScoredRecord is one similarity-search hit.
type ScoredRecord struct {
	Record IndexRecord `json:"record"`
	Score  float64     `json:"score"`
}

// RetrievedChunk is the agent-ready shape handed to the consumer layer. This
// is the sole downstream contract and must stay stable even if chunking or
// embedding strategy changes.
type RetrievedChunk struct {
	ChunkID         string   `json:"chunk_id"`
	Content         string   `json:"content"`
	SourceURL       string   `json:"source_url"`
	Chapter         string   `json:"chapter"`
	Section         string   `json:"section"`
	HeadingPath     []string `json:"heading_path"`
	SimilarityScore float64  `json:"similarity_score"`
}
