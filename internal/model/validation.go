package model

// ValidationQuery is one gold query with the chunk ids it is expected to
// surface.
type ValidationQuery struct {
	QueryText        string   `json:"query_text"`
	ExpectedChunkIDs []string `json:"expected_chunk_ids"`
	Category         string   `json:"category"`
}

// ValidationResult carries the measured quality of one gold query. A poor
// score is a quality signal for review, not an error.
type ValidationResult struct {
	Query             ValidationQuery `json:"query"`
	RetrievedChunkIDs []string        `json:"retrieved_chunk_ids"`
	Precision         float64         `json:"precision"`
	Recall            float64         `json:"recall"`
	Accuracy          float64         `json:"accuracy"`
	LatencySeconds    float64         `json:"latency_seconds"`
}
