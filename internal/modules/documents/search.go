package documents

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/yungbote/docbridge-backend/internal/pkg/ctxutil"
	"github.com/yungbote/docbridge-backend/internal/pkg/dbctx"
	apperrors "github.com/yungbote/docbridge-backend/internal/pkg/errors"
)

const (
	defaultSearchLimit = 10
	maxSearchLimit     = 50

	// searchScanLimit caps the candidate set pulled into memory. At this
	// scale brute-force cosine in process beats running a vector store.
	searchScanLimit = 5000
)

type SearchResult struct {
	DocumentID   uuid.UUID `json:"document_id"`
	DocumentSlug string    `json:"document_slug"`
	ChunkID      uuid.UUID `json:"chunk_id"`
	Index        int       `json:"index"`
	Content      string    `json:"content"`
	Page         *int      `json:"page,omitempty"`
	StartSec     *float64  `json:"start_sec,omitempty"`
	EndSec       *float64  `json:"end_sec,omitempty"`
	Score        float64   `json:"score"`
}

// Search embeds the query and ranks stored chunks by cosine similarity.
// Chunks whose embedding failed during ingestion are skipped, not errors.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	ctx = ctxutil.Default(ctx)

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("query required: %w", apperrors.ErrInvalidArgument)
	}
	limit = clampLimit(limit, defaultSearchLimit, maxSearchLimit)

	vecs, err := s.ai.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vecs) != 1 || len(vecs[0]) == 0 {
		return nil, fmt.Errorf("embed query: provider returned %d vectors", len(vecs))
	}
	qvec := vecs[0]

	chunks, err := s.chunks.ListEmbedded(dbctx.Context{Ctx: ctx}, searchScanLimit)
	if err != nil {
		return nil, &apperrors.DatabaseError{Op: "list embedded chunks", Err: err}
	}

	results := make([]SearchResult, 0, limit)
	for _, c := range chunks {
		if len(c.Embedding) == 0 {
			continue
		}
		var vec []float32
		if err := json.Unmarshal(c.Embedding, &vec); err != nil {
			s.log.Warn("undecodable chunk embedding", "chunk_id", c.ID, "error", err)
			continue
		}
		score, ok := cosineSimilarity(qvec, vec)
		if !ok {
			continue
		}
		results = append(results, SearchResult{
			DocumentID:   c.DocumentID,
			DocumentSlug: c.DocumentSlug,
			ChunkID:      c.ID,
			Index:        c.Index,
			Content:      c.Content,
			Page:         c.Page,
			StartSec:     c.StartSec,
			EndSec:       c.EndSec,
			Score:        score,
		})
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// cosineSimilarity reports ok=false on dimension mismatch or a zero vector,
// which happens when the embed model changed between ingest runs.
func cosineSimilarity(a, b []float32) (float64, bool) {
	if len(a) == 0 || len(a) != len(b) {
		return 0, false
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0, false
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), true
}
