package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"bookdex/internal/config"
	apperrors "bookdex/internal/pkg/errors"
)

// Client is the embedding client the whole system goes through, for chunk
// content during ingestion and query text during retrieval alike. It batches
// up to the provider limit, rate-limits outbound batches through one shared
// limiter, retries transient failures with exponential backoff, and validates
// every returned vector against the configured dimensionality.
type Client struct {
	provider    IEmbedProvider
	model       string
	dimension   int
	batchSize   int
	maxAttempts int
	backoff     time.Duration
	timeout     time.Duration
	limiter     *rate.Limiter
}

func NewClient(provider IEmbedProvider, cfg config.AIConfig) *Client {
	return &Client{
		provider:    provider,
		model:       cfg.Model,
		dimension:   cfg.Dimension,
		batchSize:   cfg.BatchSize,
		maxAttempts: cfg.MaxAttempts,
		backoff:     cfg.Backoff(),
		timeout:     cfg.Timeout(),
		limiter:     rate.NewLimiter(rate.Limit(float64(cfg.RatePerMinute)/60.0), 1),
	}
}

func (c *Client) ModelName() string {
	return c.model
}

func (c *Client) Dimension() int {
	return c.dimension
}

// EmbedBatch embeds texts one-to-one and order-preserving. On exhausted
// retries the error names the input span that was not processed; callers never
// get a silently truncated result.
func (c *Client) EmbedBatch(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += c.batchSize {
		end := start + c.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch, err := c.embedOne(ctx, texts[start:end], taskType)
		if err != nil {
			return nil, fmt.Errorf("embed inputs [%d:%d) of %d: %w", start, end, len(texts), err)
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}

func (c *Client) embedOne(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	logger := logutil.GetLogger(ctx)
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		vectors, err := c.provider.EmbedBatch(callCtx, c.model, texts, taskType)
		cancel()
		if err == nil {
			if len(vectors) != len(texts) {
				return nil, fmt.Errorf("provider %s returned %d vectors for %d inputs", c.provider.Name(), len(vectors), len(texts))
			}
			if err := c.validate(vectors); err != nil {
				return nil, err
			}
			return vectors, nil
		}
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: embed call exceeded %s", apperrors.ErrTimeout, c.timeout)
		}
		if !apperrors.IsTransient(err) {
			return nil, err
		}
		lastErr = err
		if attempt < c.maxAttempts {
			delay := c.backoff << (attempt - 1)
			logger.Warn("embed attempt failed, backing off",
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(err),
			)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	return nil, fmt.Errorf("%w: %d attempts exhausted: %v", apperrors.ErrUpstreamUnavailable, c.maxAttempts, lastErr)
}

// A wrong vector length means the provider model drifted from the configured
// one; continuing would silently corrupt the index, so this is fatal and never
// retried.
func (c *Client) validate(vectors [][]float32) error {
	for i, v := range vectors {
		if len(v) != c.dimension {
			return fmt.Errorf("%w: vector %d has dimension %d, expected %d (model %s)",
				apperrors.ErrDimensionMismatch, i, len(v), c.dimension, c.model)
		}
	}
	return nil
}
