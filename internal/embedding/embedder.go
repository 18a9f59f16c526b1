package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"

	"docqa/internal/domain"
)

// DefaultBatchSize is the number of texts sent per provider call.
const DefaultBatchSize = 100

// Provider is an external embedding service.
// EmbedBatch returns one vector per input text, in input order.
type Provider interface {
	Name() string
	Model() string
	EmbedBatch(ctx context.Context, texts []string, mode domain.Mode) ([][]float32, error)
}

// Embedder turns ordered texts into an ordered matrix by batching provider calls.
type Embedder struct {
	provider  Provider
	batchSize int
	limiter   *rate.Limiter
	logger    *slog.Logger
}

// Option configures an Embedder.
type Option func(*Embedder)

// WithLimiter paces batch calls. A nil limiter disables pacing.
func WithLimiter(l *rate.Limiter) Option {
	return func(e *Embedder) { e.limiter = l }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Embedder) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEmbedder wraps provider. batchSize <= 0 uses DefaultBatchSize.
func NewEmbedder(provider Provider, batchSize int, opts ...Option) *Embedder {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	e := &Embedder{provider: provider, batchSize: batchSize, logger: slog.Default()}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Provider returns the underlying provider.
func (e *Embedder) Provider() Provider { return e.provider }

// Embed embeds texts in consecutive batches and concatenates the results so that
// row i corresponds to texts[i]. Any batch failure aborts the whole call.
func (e *Embedder) Embed(ctx context.Context, texts []string, mode domain.Mode) (domain.Matrix, error) {
	clean := make([]string, len(texts))
	for i, t := range texts {
		clean[i] = Sanitize(t)
	}

	matrix := make(domain.Matrix, 0, len(clean))
	dim := 0
	for start := 0; start < len(clean); start += e.batchSize {
		end := min(start+e.batchSize, len(clean))
		vectors, err := e.embedBatch(ctx, clean[start:end], mode, start)
		if err != nil {
			return nil, err
		}
		for i, v := range vectors {
			if len(v) == 0 {
				return nil, domain.ProviderError("embed", fmt.Errorf("empty vector at position %d", start+i))
			}
			if dim == 0 {
				dim = len(v)
			}
			if len(v) != dim {
				return nil, domain.ProviderError("embed", fmt.Errorf("vector %d has dimension %d, want %d", start+i, len(v), dim))
			}
			matrix = append(matrix, domain.Vector(v))
		}
	}
	return matrix, nil
}

func (e *Embedder) embedBatch(ctx context.Context, batch []string, mode domain.Mode, offset int) ([][]float32, error) {
	ctx, span := otel.Tracer("docqa/embedding").Start(ctx, "embedding.batch")
	defer span.End()
	span.SetAttributes(
		attribute.String("embedding.provider", e.provider.Name()),
		attribute.String("embedding.model", e.provider.Model()),
		attribute.String("embedding.mode", mode.String()),
		attribute.Int("embedding.batch_size", len(batch)),
		attribute.Int("embedding.offset", offset),
	)

	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			span.SetStatus(codes.Error, err.Error())
			return nil, domain.ProviderError("embed", err)
		}
	}

	vectors, err := e.provider.EmbedBatch(ctx, batch, mode)
	if err != nil {
		e.logger.Error("embedding batch failed",
			"provider", e.provider.Name(), "offset", offset, "size", len(batch), "err", err)
		span.SetStatus(codes.Error, err.Error())
		if errors.Is(err, domain.ErrProvider) {
			return nil, err
		}
		return nil, domain.ProviderError("embed", fmt.Errorf("batch %d-%d: %w", offset, offset+len(batch), err))
	}
	if len(vectors) != len(batch) {
		err := fmt.Errorf("batch %d-%d: got %d vectors for %d texts", offset, offset+len(batch), len(vectors), len(batch))
		span.SetStatus(codes.Error, err.Error())
		return nil, domain.ProviderError("embed", err)
	}
	e.logger.Debug("embedding batch done", "provider", e.provider.Name(), "offset", offset, "size", len(batch))
	return vectors, nil
}

// Sanitize replaces line breaks with spaces; providers are sensitive to literal newlines.
func Sanitize(text string) string {
	return strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(text)
}
