package graph

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	types "github.com/yungbote/docbridge-backend/internal/domain"
	"github.com/yungbote/docbridge-backend/internal/platform/logger"
	"github.com/yungbote/docbridge-backend/internal/platform/neo4jdb"
)

// UpsertDocumentKeywordGraph projects a document and its enriched keywords
// into Neo4j: (:Document)-[:HAS_KEYWORD {weight}]->(:Keyword). Keywords are
// replaced wholesale so re-enrichment never leaves stale edges. A nil client
// means the graph is not configured; the call is a no-op.
func UpsertDocumentKeywordGraph(
	ctx context.Context,
	client *neo4jdb.Client,
	log *logger.Logger,
	documentID uuid.UUID,
	slug string,
	title string,
	keywords []types.Keyword,
) error {
	if client == nil || client.Driver == nil {
		return nil
	}
	if documentID == uuid.Nil || strings.TrimSpace(slug) == "" {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)

	rows := make([]map[string]any, 0, len(keywords))
	for _, kw := range keywords {
		term := strings.ToLower(strings.TrimSpace(kw.Term))
		if term == "" {
			continue
		}
		rows = append(rows, map[string]any{
			"term":      truncateString(term, 200),
			"weight":    kw.Weight,
			"synced_at": now,
		})
	}

	session := client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: client.Database,
	})
	defer session.Close(ctx)

	// Best-effort schema init.
	{
		stmts := []string{
			`CREATE CONSTRAINT document_id_unique IF NOT EXISTS FOR (d:Document) REQUIRE d.id IS UNIQUE`,
			`CREATE CONSTRAINT document_slug_unique IF NOT EXISTS FOR (d:Document) REQUIRE d.slug IS UNIQUE`,
			`CREATE CONSTRAINT keyword_term_unique IF NOT EXISTS FOR (k:Keyword) REQUIRE k.term IS UNIQUE`,
		}
		for _, q := range stmts {
			if res, err := session.Run(ctx, q, nil); err != nil {
				if log != nil {
					log.Warn("neo4j schema init failed (continuing)", "error", err)
				}
			} else {
				_, _ = res.Consume(ctx)
			}
		}
	}

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if res, err := tx.Run(ctx, `
MERGE (d:Document {id: $id})
SET d.slug = $slug, d.title = $title, d.synced_at = $synced_at
`, map[string]any{
			"id":        documentID.String(),
			"slug":      slug,
			"title":     truncateString(title, 400),
			"synced_at": now,
		}); err != nil {
			return nil, err
		} else if _, err := res.Consume(ctx); err != nil {
			return nil, err
		}

		// Drop prior keyword edges so the projection mirrors the current set.
		if res, err := tx.Run(ctx, `
MATCH (d:Document {id: $id})-[r:HAS_KEYWORD]->(:Keyword)
DELETE r
`, map[string]any{"id": documentID.String()}); err != nil {
			return nil, err
		} else if _, err := res.Consume(ctx); err != nil {
			return nil, err
		}

		if len(rows) > 0 {
			res, err := tx.Run(ctx, `
UNWIND $keywords AS kw
MERGE (k:Keyword {term: kw.term})
SET k.synced_at = kw.synced_at
WITH k, kw
MATCH (d:Document {id: $id})
MERGE (d)-[r:HAS_KEYWORD]->(k)
SET r.weight = kw.weight, r.synced_at = kw.synced_at
`, map[string]any{"id": documentID.String(), "keywords": rows})
			if err != nil {
				return nil, err
			}
			if _, err := res.Consume(ctx); err != nil {
				return nil, err
			}
		}

		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("upsert keyword graph for %s: %w", slug, err)
	}
	return nil
}

// RelatedDocument is a neighbor sharing weighted keywords with the queried
// document. Score is the sum over shared terms of the two edge weights
// multiplied, so strongly-weighted shared terms dominate.
type RelatedDocument struct {
	Slug        string   `json:"slug"`
	Title       string   `json:"title"`
	Score       float64  `json:"score"`
	SharedTerms []string `json:"shared_terms"`
}

func RelatedDocuments(
	ctx context.Context,
	client *neo4jdb.Client,
	slug string,
	limit int,
) ([]RelatedDocument, error) {
	if client == nil || client.Driver == nil {
		return nil, nil
	}
	if strings.TrimSpace(slug) == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}
	if ctx == nil {
		ctx = context.Background()
	}

	session := client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeRead,
		DatabaseName: client.Database,
	})
	defer session.Close(ctx)

	res, err := session.Run(ctx, `
MATCH (d:Document {slug: $slug})-[r1:HAS_KEYWORD]->(k:Keyword)<-[r2:HAS_KEYWORD]-(o:Document)
WHERE o.slug <> $slug
WITH o, sum(coalesce(r1.weight, 0) * coalesce(r2.weight, 0)) AS score, collect(k.term) AS terms
RETURN o.slug AS slug, o.title AS title, score, terms
ORDER BY score DESC
LIMIT $limit
`, map[string]any{"slug": slug, "limit": limit})
	if err != nil {
		return nil, fmt.Errorf("related documents query: %w", err)
	}

	out := []RelatedDocument{}
	for res.Next(ctx) {
		rec := res.Record()
		rd := RelatedDocument{}
		if v, ok := rec.Get("slug"); ok {
			rd.Slug, _ = v.(string)
		}
		if v, ok := rec.Get("title"); ok {
			rd.Title, _ = v.(string)
		}
		if v, ok := rec.Get("score"); ok {
			switch n := v.(type) {
			case float64:
				rd.Score = n
			case int64:
				rd.Score = float64(n)
			}
		}
		if v, ok := rec.Get("terms"); ok {
			if arr, ok := v.([]any); ok {
				for _, t := range arr {
					if s, ok := t.(string); ok {
						rd.SharedTerms = append(rd.SharedTerms, s)
					}
				}
			}
		}
		sort.Strings(rd.SharedTerms)
		if rd.Slug != "" {
			out = append(out, rd)
		}
	}
	if err := res.Err(); err != nil {
		return nil, fmt.Errorf("related documents result: %w", err)
	}
	return out, nil
}

func truncateString(s string, max int) string {
	if max <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
