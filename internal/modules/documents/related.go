package documents

import (
	"context"

	"github.com/yungbote/docbridge-backend/internal/data/graph"
	"github.com/yungbote/docbridge-backend/internal/pkg/ctxutil"
)

const (
	defaultRelatedLimit = 10
	maxRelatedLimit     = 50
)

// Related lists documents sharing keywords with this one, ranked by summed
// shared keyword weight. Without a graph connection it degrades to an empty
// list rather than an error.
func (s *Service) Related(ctx context.Context, slug string, limit int) ([]graph.RelatedDocument, error) {
	ctx = ctxutil.Default(ctx)
	doc, err := s.mustGetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	limit = clampLimit(limit, defaultRelatedLimit, maxRelatedLimit)

	related, err := graph.RelatedDocuments(ctx, s.graph, doc.Slug, limit)
	if err != nil {
		return nil, err
	}
	if related == nil {
		related = []graph.RelatedDocument{}
	}
	return related, nil
}
