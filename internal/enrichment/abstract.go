package enrichment

import (
	"context"
	"fmt"
	"strings"

	types "github.com/yungbote/docbridge-backend/internal/domain"
	"github.com/yungbote/docbridge-backend/internal/prompts"
)

// GenerateAbstract produces a short markdown abstract over the (truncated)
// concatenated chunk text. Any failure, including the stage deadline, returns
// the sentinel instead of an error.
func (g *Generator) GenerateAbstract(ctx context.Context, doc *types.Document, texts []string) string {
	excerpts := joinTruncated(texts, excerptCharBudget)
	if strings.TrimSpace(excerpts) == "" {
		g.log.Warn("abstract skipped: no chunk text", "slug", doc.Slug)
		return AbstractUnavailable
	}

	p, err := prompts.Build(prompts.PromptDocumentAbstract, prompts.Input{
		DocumentTitle: doc.Title,
		SourceKind:    sourceKindForPrompt(doc.SourceMime),
		Excerpts:      excerpts,
	})
	if err != nil {
		g.log.Warn("abstract prompt build failed", "slug", doc.Slug, "error", err)
		return AbstractUnavailable
	}

	var abstract string
	err = g.deadlines.Run(ctx, "document_abstract", generationTimeout(len(texts)), func(ctx context.Context) error {
		obj, callErr := g.ai.GenerateJSON(ctx, p.System, p.User, p.SchemaName, p.Schema)
		if callErr != nil {
			return callErr
		}
		logModelWarnings(g.log, "abstract", doc.Slug, obj)
		abstract, callErr = parseAbstract(obj)
		return callErr
	})
	if err != nil {
		g.log.Warn("abstract generation failed", "slug", doc.Slug, "prompt_fingerprint", p.Fingerprint(), "error", err)
		return AbstractUnavailable
	}
	return abstract
}

func parseAbstract(obj map[string]any) (string, error) {
	raw, ok := obj["abstract_md"]
	if !ok {
		return "", fmt.Errorf("response missing abstract_md")
	}
	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("abstract_md is %T, not string", raw)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("abstract_md is empty")
	}
	return s, nil
}

func sourceKindForPrompt(mime string) string {
	mime = strings.ToLower(strings.TrimSpace(mime))
	switch {
	case strings.Contains(mime, "pdf"):
		return "pdf"
	case strings.HasPrefix(mime, "audio/"):
		return "audio"
	case strings.HasPrefix(mime, "video/"):
		return "video"
	default:
		return "text"
	}
}
