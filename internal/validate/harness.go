package validate

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"bookdex/internal/model"
	"bookdex/internal/retrieval"
)

// Harness replays a fixed gold query set through the retrieval service and
// measures quality. Poor scores are reported, never thrown: they are a signal
// for humans and CI, not a runtime failure.
type Harness struct {
	service *retrieval.Service
	topK    int
}

func New(service *retrieval.Service, topK int) *Harness {
	if topK <= 0 {
		topK = 5
	}
	return &Harness{service: service, topK: topK}
}

// CategoryMetrics aggregates results for one query category.
type CategoryMetrics struct {
	Queries       int     `json:"queries"`
	MeanPrecision float64 `json:"mean_precision"`
	MeanRecall    float64 `json:"mean_recall"`
	MeanAccuracy  float64 `json:"mean_accuracy"`
}

// Report is the full harness output: per-query results plus aggregates.
type Report struct {
	Results       []model.ValidationResult   `json:"results"`
	MeanPrecision float64                    `json:"mean_precision"`
	MeanRecall    float64                    `json:"mean_recall"`
	MeanAccuracy  float64                    `json:"mean_accuracy"`
	ByCategory    map[string]CategoryMetrics `json:"by_category"`
}

func (h *Harness) Run(ctx context.Context, queries []model.ValidationQuery) (*Report, error) {
	logger := logutil.GetLogger(ctx)
	report := &Report{ByCategory: map[string]CategoryMetrics{}}

	for i, q := range queries {
		start := time.Now()
		retrieved, err := h.service.Retrieve(ctx, q.QueryText, h.topK)
		if err != nil {
			return nil, fmt.Errorf("validation query %d (%q): %w", i+1, q.QueryText, err)
		}
		ids := make([]string, 0, len(retrieved))
		for _, r := range retrieved {
			ids = append(ids, r.ChunkID)
		}
		result := Score(q, ids)
		result.LatencySeconds = time.Since(start).Seconds()
		report.Results = append(report.Results, result)

		logger.Info("validation query measured",
			zap.String("query", q.QueryText),
			zap.String("category", q.Category),
			zap.Float64("precision", result.Precision),
			zap.Float64("recall", result.Recall),
			zap.Float64("accuracy", result.Accuracy),
		)
	}

	aggregate(report)
	return report, nil
}

// Score computes precision, recall and accuracy for one query. Recall over an
// empty expected set is 1.0: nothing was expected, so nothing was missed.
// Accuracy is the strict binary "every expected chunk retrieved" signal.
func Score(q model.ValidationQuery, retrievedIDs []string) model.ValidationResult {
	expected := make(map[string]struct{}, len(q.ExpectedChunkIDs))
	for _, id := range q.ExpectedChunkIDs {
		expected[id] = struct{}{}
	}
	overlap := 0
	seen := make(map[string]struct{}, len(retrievedIDs))
	for _, id := range retrievedIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if _, ok := expected[id]; ok {
			overlap++
		}
	}

	result := model.ValidationResult{
		Query:             q,
		RetrievedChunkIDs: retrievedIDs,
	}
	if len(retrievedIDs) > 0 {
		result.Precision = float64(overlap) / float64(len(retrievedIDs))
	}
	if len(expected) > 0 {
		result.Recall = float64(overlap) / float64(len(expected))
	} else {
		result.Recall = 1.0
	}
	if overlap == len(expected) {
		result.Accuracy = 1.0
	}
	return result
}

func aggregate(report *Report) {
	if len(report.Results) == 0 {
		return
	}
	type sums struct {
		precision, recall, accuracy float64
		count                       int
	}
	total := sums{}
	perCategory := map[string]*sums{}
	for _, r := range report.Results {
		total.precision += r.Precision
		total.recall += r.Recall
		total.accuracy += r.Accuracy
		total.count++
		cat := r.Query.Category
		if perCategory[cat] == nil {
			perCategory[cat] = &sums{}
		}
		perCategory[cat].precision += r.Precision
		perCategory[cat].recall += r.Recall
		perCategory[cat].accuracy += r.Accuracy
		perCategory[cat].count++
	}
	report.MeanPrecision = total.precision / float64(total.count)
	report.MeanRecall = total.recall / float64(total.count)
	report.MeanAccuracy = total.accuracy / float64(total.count)
	for cat, s := range perCategory {
		report.ByCategory[cat] = CategoryMetrics{
			Queries:       s.count,
			MeanPrecision: s.precision / float64(s.count),
			MeanRecall:    s.recall / float64(s.count),
			MeanAccuracy:  s.accuracy / float64(s.count),
		}
	}
}

// LoadQueries reads a gold query set from a JSON file.
func LoadQueries(path string) ([]model.ValidationQuery, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read query set: %w", err)
	}
	var queries []model.ValidationQuery
	if err := json.Unmarshal(data, &queries); err != nil {
		return nil, fmt.Errorf("decode query set: %w", err)
	}
	for i, q := range queries {
		if q.QueryText == "" {
			return nil, fmt.Errorf("query %d has no query_text", i+1)
		}
	}
	return queries, nil
}

// Categories lists the categories present in a report in stable order.
func (r *Report) Categories() []string {
	cats := make([]string, 0, len(r.ByCategory))
	for cat := range r.ByCategory {
		cats = append(cats, cat)
	}
	sort.Strings(cats)
	return cats
}
