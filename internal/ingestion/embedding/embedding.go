package embedding

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/yungbote/docbridge-backend/internal/observability"
	"github.com/yungbote/docbridge-backend/internal/pkg/ctxutil"
	apperrors "github.com/yungbote/docbridge-backend/internal/pkg/errors"
	"github.com/yungbote/docbridge-backend/internal/pkg/retry"
	"github.com/yungbote/docbridge-backend/internal/platform/logger"
)

// Provider is the embedding call surface; openai.Client satisfies it.
type Provider interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
}

const (
	DefaultBatchSize = 64
	// Inter-batch token bucket. The adaptive delay below stacks on top when
	// the provider starts failing.
	defaultBatchesPerSec = 2.0

	maxAdaptiveDelay  = 30 * time.Second
	baseAdaptiveDelay = 500 * time.Millisecond

	batchMaxRetries    = 3
	fallbackMaxRetries = 1
)

// Generator embeds chunk texts in strictly sequential fixed-size batches.
// Sequencing is deliberate: the inference dependency is rate-limited and
// parallel batches just trade 429s for wasted retries.
type Generator struct {
	log      *logger.Logger
	provider Provider

	batchSize int
	limiter   *rate.Limiter

	mu    sync.Mutex
	delay time.Duration
}

type Option func(*Generator)

func WithBatchSize(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.batchSize = n
		}
	}
}

func WithRate(batchesPerSec float64) Option {
	return func(g *Generator) {
		if batchesPerSec > 0 {
			g.limiter = rate.NewLimiter(rate.Limit(batchesPerSec), 1)
		}
	}
}

func New(log *logger.Logger, provider Provider, opts ...Option) *Generator {
	g := &Generator{
		log:       log.With("component", "EmbeddingGenerator"),
		provider:  provider,
		batchSize: DefaultBatchSize,
		limiter:   rate.NewLimiter(rate.Limit(defaultBatchesPerSec), 1),
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// EmbedAll returns a positional vector slice: out[i] belongs to texts[i] and
// is nil when that text failed both the batch call and its per-item fallback.
// Failures are returned for logging as long as at least half the texts
// embedded; below that the whole call fails with a PartialFailureError.
// progress is invoked before each batch with (done, total).
func (g *Generator) EmbedAll(ctx context.Context, texts []string, progress func(done, total int)) ([][]float32, []*apperrors.EmbeddingError, error) {
	ctx = ctxutil.Default(ctx)
	if len(texts) == 0 {
		return nil, nil, &apperrors.ProcessingError{Stage: "embed", Err: fmt.Errorf("no texts to embed: %w", apperrors.ErrInvalidArgument)}
	}

	out := make([][]float32, len(texts))
	var failures []*apperrors.EmbeddingError

	for start := 0; start < len(texts); start += g.batchSize {
		end := start + g.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		if progress != nil {
			progress(start, len(texts))
		}
		if err := g.pace(ctx); err != nil {
			return nil, nil, err
		}

		vecs, batchFailures := g.embedBatch(ctx, start, texts[start:end])
		for i, v := range vecs {
			out[start+i] = v
		}
		failures = append(failures, batchFailures...)
		g.adapt(len(batchFailures) == 0)
	}

	succeeded := 0
	for _, v := range out {
		if v != nil {
			succeeded++
		}
	}
	failed := len(texts) - succeeded
	if failed > 0 {
		observability.Current().IncPartialBatch()
	}
	if succeeded*2 < len(texts) {
		return nil, failures, &apperrors.PartialFailureError{
			Op:        "embed",
			Succeeded: succeeded,
			Failed:    failed,
			Err:       fmt.Errorf("embedding success rate below 50%%"),
		}
	}
	return out, failures, nil
}

// embedBatch runs one batch call with bounded retries; a dead batch degrades
// to per-item fallback calls so one poisoned input cannot sink its whole
// batch. Positional result, nil for failed items.
func (g *Generator) embedBatch(ctx context.Context, offset int, batch []string) ([][]float32, []*apperrors.EmbeddingError) {
	out := make([][]float32, len(batch))
	var failures []*apperrors.EmbeddingError

	var vecs [][]float32
	err := retry.Do(ctx, g.log, "embed_batch", batchMaxRetries, func(ctx context.Context) error {
		v, err := g.provider.Embed(ctx, batch)
		if err != nil {
			return err
		}
		vecs = v
		return nil
	})

	if err != nil {
		g.log.Warn("batch embedding failed; falling back to per-item calls",
			"offset", offset, "batch_size", len(batch), "error", err)
		observability.Current().IncEmbedFallback("batch", "single")
		for i, text := range batch {
			v, ferr := g.embedSingle(ctx, text)
			if ferr != nil {
				failures = append(failures, &apperrors.EmbeddingError{ChunkIndex: offset + i, Err: ferr})
				continue
			}
			out[i] = v
		}
		return out, failures
	}

	if len(vecs) != len(batch) {
		g.log.Warn("embedding response count mismatch",
			"offset", offset, "want", len(batch), "got", len(vecs))
	}
	for i := range batch {
		if i < len(vecs) && len(vecs[i]) > 0 {
			out[i] = vecs[i]
			continue
		}
		failures = append(failures, &apperrors.EmbeddingError{
			ChunkIndex: offset + i,
			Err:        fmt.Errorf("provider returned no vector at batch position %d", i),
		})
	}
	return out, failures
}

func (g *Generator) embedSingle(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("empty text: %w", apperrors.ErrInvalidArgument)
	}
	var vec []float32
	err := retry.Do(ctx, g.log, "embed_single", fallbackMaxRetries, func(ctx context.Context) error {
		v, err := g.provider.Embed(ctx, []string{text})
		if err != nil {
			return err
		}
		if len(v) != 1 || len(v[0]) == 0 {
			return fmt.Errorf("embedding count mismatch (got %d want 1)", len(v))
		}
		vec = v[0]
		return nil
	})
	if err != nil {
		return nil, err
	}
	return vec, nil
}

// pace blocks for the token bucket plus the current adaptive delay.
func (g *Generator) pace(ctx context.Context) error {
	if err := g.limiter.Wait(ctx); err != nil {
		return err
	}
	g.mu.Lock()
	d := g.delay
	g.mu.Unlock()
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// adapt grows the inter-batch delay when a batch had failures and halves it
// back down on clean batches.
func (g *Generator) adapt(clean bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if clean {
		g.delay /= 2
		if g.delay < time.Millisecond {
			g.delay = 0
		}
		return
	}
	if g.delay == 0 {
		g.delay = baseAdaptiveDelay
		return
	}
	g.delay *= 2
	if g.delay > maxAdaptiveDelay {
		g.delay = maxAdaptiveDelay
	}
}

// Delay reports the current adaptive delay (test hook).
func (g *Generator) Delay() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.delay
}
