package index

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"bookdex/internal/model"
	apperrors "bookdex/internal/pkg/errors"
)

const qdrantUpsertBatch = 128

type qdrantConfig struct {
	URL         string `json:"url"`
	APIKey      string `json:"api_key"`
	TimeoutSecs int    `json:"timeout_secs"`
}

// qdrantStore is a minimal REST client to Qdrant. Collections use cosine
// distance; Qdrant returns cosine similarity directly as the score.
type qdrantStore struct {
	url        string
	apiKey     string
	collection string
	client     *http.Client
}

func init() {
	Register("qdrant", createQdrantStore)
}

func createQdrantStore(collection string, args interface{}) (Store, error) {
	cfg := &qdrantConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	if cfg.URL == "" {
		cfg.URL = os.Getenv("QDRANT_URL")
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("QDRANT_API_KEY")
	}
	if cfg.URL == "" {
		return nil, fmt.Errorf("qdrant url is required")
	}
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &qdrantStore{
		url:        strings.TrimRight(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		collection: collection,
		client:     &http.Client{Timeout: timeout},
	}, nil
}

type qdrantCollectionInfo struct {
	Result struct {
		Config struct {
			Params struct {
				Vectors struct {
					Size     int    `json:"size"`
					Distance string `json:"distance"`
				} `json:"vectors"`
			} `json:"params"`
		} `json:"config"`
	} `json:"result"`
}

func (s *qdrantStore) EnsureCollection(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("%w: invalid dimension %d", apperrors.ErrInvalid, dimension)
	}
	var info qdrantCollectionInfo
	status, err := s.do(ctx, http.MethodGet, "/collections/"+s.collection, nil, &info)
	if err != nil {
		return err
	}
	if status == http.StatusOK {
		got := info.Result.Config.Params.Vectors
		if got.Size != dimension || !strings.EqualFold(got.Distance, "Cosine") {
			return fmt.Errorf("%w: collection %s has size=%d distance=%s, want size=%d distance=Cosine",
				apperrors.ErrSchemaMismatch, s.collection, got.Size, got.Distance, dimension)
		}
		return nil
	}
	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": "Cosine",
		},
	}
	status, err = s.do(ctx, http.MethodPut, "/collections/"+s.collection, body, nil)
	if err != nil {
		return err
	}
	if status >= 300 {
		return fmt.Errorf("create collection %s: status %d", s.collection, status)
	}
	return nil
}

func (s *qdrantStore) Upsert(ctx context.Context, records []model.IndexRecord) error {
	for start := 0; start < len(records); start += qdrantUpsertBatch {
		end := start + qdrantUpsertBatch
		if end > len(records) {
			end = len(records)
		}
		points := make([]map[string]any, 0, end-start)
		for _, rec := range records[start:end] {
			if err := validateRecord(rec); err != nil {
				return err
			}
			points = append(points, map[string]any{
				"id":      rec.ID,
				"vector":  rec.Vector,
				"payload": rec.Payload,
			})
		}
		status, err := s.do(ctx, http.MethodPut, "/collections/"+s.collection+"/points?wait=true", map[string]any{"points": points}, nil)
		if err != nil {
			return err
		}
		if status >= 300 {
			return fmt.Errorf("upsert %d points: status %d", len(points), status)
		}
	}
	return nil
}

func (s *qdrantStore) Search(ctx context.Context, vector []float32, topK int) ([]model.ScoredRecord, error) {
	if topK <= 0 {
		topK = 5
	}
	req := map[string]any{
		"vector":       vector,
		"limit":        topK,
		"with_payload": true,
	}
	var resp struct {
		Result []struct {
			ID      string             `json:"id"`
			Score   float64            `json:"score"`
			Payload model.ChunkPayload `json:"payload"`
		} `json:"result"`
	}
	status, err := s.do(ctx, http.MethodPost, "/collections/"+s.collection+"/points/search", req, &resp)
	if err != nil {
		return nil, err
	}
	if status >= 300 {
		return nil, fmt.Errorf("search: status %d", status)
	}
	hits := make([]model.ScoredRecord, 0, len(resp.Result))
	for _, r := range resp.Result {
		hits = append(hits, model.ScoredRecord{
			Record: model.IndexRecord{ID: r.ID, Payload: r.Payload},
			Score:  r.Score,
		})
	}
	return sortScored(hits, topK), nil
}

func (s *qdrantStore) Count(ctx context.Context) (int64, error) {
	var resp struct {
		Result struct {
			Count int64 `json:"count"`
		} `json:"result"`
	}
	status, err := s.do(ctx, http.MethodPost, "/collections/"+s.collection+"/points/count", map[string]any{"exact": true}, &resp)
	if err != nil {
		return 0, err
	}
	if status >= 300 {
		return 0, fmt.Errorf("count: status %d", status)
	}
	return resp.Result.Count, nil
}

// do issues one request and decodes the body into out when provided. 5xx and
// transport errors surface as upstream-unavailable so callers can retry;
// 404 on GET is reported through the status for EnsureCollection to act on.
func (s *qdrantStore) do(ctx context.Context, method, path string, body any, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.url+path, reader)
	if err != nil {
		return 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: qdrant %s %s: %v", apperrors.ErrUpstreamUnavailable, method, path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusInternalServerError {
		return resp.StatusCode, fmt.Errorf("%w: qdrant %s %s: %s", apperrors.ErrUpstreamUnavailable, method, path, resp.Status)
	}
	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode qdrant response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

func validateRecord(rec model.IndexRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("%w: index record without id", apperrors.ErrInvalid)
	}
	if len(rec.Vector) == 0 {
		return fmt.Errorf("%w: index record %s without vector", apperrors.ErrInvalid, rec.ID)
	}
	if rec.Payload.Content == "" || rec.Payload.SourceURL == "" {
		return fmt.Errorf("%w: index record %s payload missing content or source_url", apperrors.ErrInvalid, rec.ID)
	}
	return nil
}
