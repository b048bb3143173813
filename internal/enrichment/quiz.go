package enrichment

import (
	"context"
	"fmt"
	"strings"

	types "github.com/yungbote/docbridge-backend/internal/domain"
	"github.com/yungbote/docbridge-backend/internal/prompts"
)

const (
	quizMinQuestions     = 1
	quizMaxQuestions     = 20
	quizDefaultQuestions = 5
	quizOptionCount      = 4
)

// GenerateQuiz requests exactly n four-option questions and validates the
// response strictly: one malformed question fails the whole call, which is
// retried. Final failure returns nil; the document stays quizless until a
// manual regenerate.
func (g *Generator) GenerateQuiz(ctx context.Context, doc *types.Document, texts []string) []QuizItem {
	n := clampQuizCount(g, doc)
	excerpts := joinTruncated(texts, excerptCharBudget)
	if strings.TrimSpace(excerpts) == "" {
		g.log.Warn("quiz skipped: no chunk text", "slug", doc.Slug)
		return nil
	}

	in := prompts.Input{
		DocumentTitle: doc.Title,
		Excerpts:      excerpts,
		QuestionCount: n,
	}
	if doc.Abstract != nil && *doc.Abstract != "" && *doc.Abstract != AbstractUnavailable {
		in.Abstract = *doc.Abstract
	}
	p, err := prompts.Build(prompts.PromptDocumentQuiz, in)
	if err != nil {
		g.log.Warn("quiz prompt build failed", "slug", doc.Slug, "error", err)
		return nil
	}

	for attempt := 1; attempt <= quizMaxAttempts; attempt++ {
		if ctx.Err() != nil {
			return nil
		}
		var items []QuizItem
		err := g.deadlines.Run(ctx, "document_quiz", generationTimeout(len(texts)), func(ctx context.Context) error {
			obj, callErr := g.ai.GenerateJSON(ctx, p.System, p.User, p.SchemaName, p.Schema)
			if callErr != nil {
				return callErr
			}
			logModelWarnings(g.log, "quiz", doc.Slug, obj)
			items, callErr = parseQuiz(obj, n)
			return callErr
		})
		if err == nil {
			return items
		}
		g.log.Warn("quiz generation attempt failed", "slug", doc.Slug, "attempt", attempt, "of", quizMaxAttempts, "error", err)
	}
	g.log.Warn("quiz generation gave up", "slug", doc.Slug, "attempts", quizMaxAttempts)
	return nil
}

func clampQuizCount(g *Generator, doc *types.Document) int {
	n := doc.QuizCount
	if n == 0 {
		return quizDefaultQuestions
	}
	if n < quizMinQuestions {
		g.log.Warn("quiz count below minimum; clamping", "slug", doc.Slug, "requested", n)
		return quizMinQuestions
	}
	if n > quizMaxQuestions {
		g.log.Warn("quiz count above maximum; clamping", "slug", doc.Slug, "requested", n)
		return quizMaxQuestions
	}
	return n
}

// parseQuiz is fail-closed: a count mismatch or one malformed question fails
// the whole response. Nothing is silently dropped.
func parseQuiz(obj map[string]any, wantCount int) ([]QuizItem, error) {
	raw, ok := obj["questions"]
	if !ok {
		return nil, fmt.Errorf("response missing questions")
	}
	arr, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("questions is %T, not array", raw)
	}
	if len(arr) != wantCount {
		return nil, fmt.Errorf("returned %d questions, want exactly %d", len(arr), wantCount)
	}

	out := make([]QuizItem, 0, wantCount)
	for i, x := range arr {
		m, ok := x.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("questions[%d] is %T, not object", i, x)
		}
		prompt, ok := m["prompt_md"].(string)
		if !ok || strings.TrimSpace(prompt) == "" {
			return nil, fmt.Errorf("questions[%d].prompt_md missing or empty", i)
		}
		options, err := parseOptions(m["options"])
		if err != nil {
			return nil, fmt.Errorf("questions[%d]: %w", i, err)
		}
		correct, ok := intFromAny(m["correct_index"])
		if !ok {
			return nil, fmt.Errorf("questions[%d].correct_index is %T, not integer", i, m["correct_index"])
		}
		if correct < 0 || correct >= quizOptionCount {
			return nil, fmt.Errorf("questions[%d].correct_index %d out of [0, %d]", i, correct, quizOptionCount-1)
		}
		explanation, _ := m["explanation_md"].(string)
		out = append(out, QuizItem{
			Prompt:       strings.TrimSpace(prompt),
			Options:      options,
			CorrectIndex: correct,
			Explanation:  strings.TrimSpace(explanation),
		})
	}
	return out, nil
}

func parseOptions(v any) ([]string, error) {
	arr, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("options is %T, not array", v)
	}
	if len(arr) != quizOptionCount {
		return nil, fmt.Errorf("%d options, want exactly %d", len(arr), quizOptionCount)
	}
	out := make([]string, 0, quizOptionCount)
	for i, x := range arr {
		s, ok := x.(string)
		if !ok || strings.TrimSpace(s) == "" {
			return nil, fmt.Errorf("options[%d] missing or empty", i)
		}
		out = append(out, strings.TrimSpace(s))
	}
	return out, nil
}
