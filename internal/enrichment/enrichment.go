package enrichment

import (
	"context"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	types "github.com/yungbote/docbridge-backend/internal/domain"
	"github.com/yungbote/docbridge-backend/internal/pkg/ctxutil"
	"github.com/yungbote/docbridge-backend/internal/pkg/deadline"
	"github.com/yungbote/docbridge-backend/internal/platform/logger"
	"github.com/yungbote/docbridge-backend/internal/platform/openai"
)

const (
	// excerptCharBudget bounds the text sent to single-call generations
	// (abstract, quiz).
	excerptCharBudget = 48_000
	// keywordBatchCharBudget sizes the full-coverage keyword batches.
	keywordBatchCharBudget = 24_000
	keywordMaxParallel     = 4
	keywordBatchTimeout    = 60 * time.Second

	generationBaseTimeout     = 30 * time.Second
	generationPerChunkTimeout = 500 * time.Millisecond
	generationMaxTimeout      = 120 * time.Second

	maxKeywords     = 30
	quizMaxAttempts = 3
)

// AbstractUnavailable is written when abstract generation fails. The document
// still becomes ready.
const AbstractUnavailable = "No abstract available."

// Generator derives the abstract, keyword list, and quiz for a document from
// its chunk texts. Every operation degrades instead of failing the document.
type Generator struct {
	log       *logger.Logger
	ai        openai.Client
	deadlines *deadline.Manager
}

func New(log *logger.Logger, ai openai.Client) *Generator {
	l := log.With("component", "Enrichment")
	return &Generator{
		log:       l,
		ai:        ai,
		deadlines: deadline.NewManager(l),
	}
}

// QuizItem is one validated multiple-choice question, pre-persistence.
type QuizItem struct {
	Prompt       string
	Options      []string
	CorrectIndex int
	Explanation  string
}

// Result carries everything enrichment produced. Questions is nil when quiz
// generation failed or was skipped; Abstract falls back to the sentinel.
type Result struct {
	Abstract  string
	Keywords  []types.Keyword
	Questions []QuizItem
}

// Shutdown cancels every generation currently in flight, across documents.
func (g *Generator) Shutdown() {
	g.deadlines.CancelAll()
}

// EnrichDocument runs the three generations concurrently. The only error it
// returns is parent-context cancellation; everything else degrades in place.
func (g *Generator) EnrichDocument(ctx context.Context, doc *types.Document, texts []string) (*Result, error) {
	ctx = ctxutil.Default(ctx)

	res := &Result{Abstract: AbstractUnavailable}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		res.Abstract = g.GenerateAbstract(egCtx, doc, texts)
		return nil
	})
	eg.Go(func() error {
		res.Keywords = g.GenerateKeywords(egCtx, doc, texts)
		return nil
	})
	eg.Go(func() error {
		res.Questions = g.GenerateQuiz(egCtx, doc, texts)
		return nil
	})
	if err := eg.Wait(); err != nil {
		return res, err
	}
	return res, ctx.Err()
}

// generationTimeout scales with chunk count so big documents get room while
// a stuck call still dies well before the job lease does.
func generationTimeout(chunkCount int) time.Duration {
	d := generationBaseTimeout + time.Duration(chunkCount)*generationPerChunkTimeout
	if d > generationMaxTimeout {
		d = generationMaxTimeout
	}
	return d
}

// joinTruncated concatenates texts with blank lines up to a rune budget.
func joinTruncated(texts []string, budget int) string {
	joined := strings.TrimSpace(strings.Join(texts, "\n\n"))
	runes := []rune(joined)
	if len(runes) <= budget {
		return joined
	}
	return string(runes[:budget])
}
