package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/datatypes"

	"github.com/yungbote/docbridge-backend/internal/data/repos/documents"
	types "github.com/yungbote/docbridge-backend/internal/domain"
	"github.com/yungbote/docbridge-backend/internal/ingestion/extractor"
	"github.com/yungbote/docbridge-backend/internal/observability"
	"github.com/yungbote/docbridge-backend/internal/pkg/ctxutil"
	"github.com/yungbote/docbridge-backend/internal/pkg/dbctx"
	apperrors "github.com/yungbote/docbridge-backend/internal/pkg/errors"
	"github.com/yungbote/docbridge-backend/internal/pkg/retry"
	"github.com/yungbote/docbridge-backend/internal/platform/logger"
)

const (
	ModeReplace = "replace"
	ModeAdd     = "add"

	insertBatchSize     = 100
	insertMaxRetries    = 3
	maxConflictAttempts = 3
)

// Store writes embedded chunks in fixed-size batches. Concurrent "add"
// ingestion into the same document is kept safe by the (document_id, index)
// unique constraint: a collision re-bases the remaining batches above the
// observed max index and retries, bounded.
type Store struct {
	log    *logger.Logger
	chunks documents.DocumentChunkRepo
}

func New(log *logger.Logger, chunkRepo documents.DocumentChunkRepo) *Store {
	return &Store{
		log:    log.With("component", "ChunkStore"),
		chunks: chunkRepo,
	}
}

// StoreInput carries one document's chunk windows and their vectors.
// Vectors is positional with Chunks; a nil vector marks a chunk whose
// embedding failed, and that chunk is skipped.
type StoreInput struct {
	Doc        *types.Document
	Chunks     []extractor.Chunk
	Vectors    [][]float32
	Mode       string
	EmbedModel string
}

type StoreResult struct {
	Stored            int
	SkippedUnembedded int
	FailedBatches     int
	ConflictRetries   int
	StartIndex        int
}

// Store persists the embedded subset of in.Chunks. Mode "replace" clears the
// document's chunks and starts indices at zero; "add" appends above the
// current max.
func (s *Store) Store(ctx context.Context, in StoreInput) (*StoreResult, error) {
	ctx = ctxutil.Default(ctx)
	if in.Doc == nil || in.Doc.ID == uuid.Nil {
		return nil, &apperrors.ProcessingError{Stage: "store", Err: fmt.Errorf("document required: %w", apperrors.ErrInvalidArgument)}
	}
	if len(in.Vectors) != len(in.Chunks) {
		return nil, &apperrors.ProcessingError{Stage: "store", Err: fmt.Errorf("vectors/chunks length mismatch (%d vs %d): %w", len(in.Vectors), len(in.Chunks), apperrors.ErrInvalidArgument)}
	}
	if in.Mode != ModeReplace && in.Mode != ModeAdd {
		return nil, &apperrors.ProcessingError{Stage: "store", Err: fmt.Errorf("unknown store mode %q: %w", in.Mode, apperrors.ErrInvalidArgument)}
	}

	res := &StoreResult{}

	base := 0
	switch in.Mode {
	case ModeReplace:
		if _, err := s.chunks.DeleteBySlug(dbctx.Context{Ctx: ctx}, in.Doc.Slug); err != nil {
			return nil, &apperrors.DatabaseError{Op: "delete chunks", Err: err}
		}
	case ModeAdd:
		max, err := s.chunks.MaxIndexBySlug(dbctx.Context{Ctx: ctx}, in.Doc.Slug)
		if err != nil {
			return nil, &apperrors.DatabaseError{Op: "max index", Err: err}
		}
		base = max + 1
	}
	res.StartIndex = base

	rows := make([]*types.DocumentChunk, 0, len(in.Chunks))
	for i, ch := range in.Chunks {
		if in.Vectors[i] == nil {
			res.SkippedUnembedded++
			continue
		}
		row, err := buildRow(in, ch, in.Vectors[i], base+len(rows))
		if err != nil {
			return nil, &apperrors.ProcessingError{Stage: "store", Err: err}
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return nil, &apperrors.DatabaseError{Op: "store chunks", Err: fmt.Errorf("no embedded chunks to store")}
	}

	batches := splitBatches(rows, insertBatchSize)
	conflictAttempts := 0

	for bi := 0; bi < len(batches); {
		batch := batches[bi]
		err := retry.Do(ctx, s.log, "store_chunk_batch", insertMaxRetries, func(ctx context.Context) error {
			return s.chunks.CreateBatch(dbctx.Context{Ctx: ctx}, batch)
		})
		if err == nil {
			res.Stored += len(batch)
			bi++
			continue
		}

		if isUniqueViolation(err) && conflictAttempts < maxConflictAttempts {
			conflictAttempts++
			res.ConflictRetries++
			observability.Current().IncChunkConflict()

			newMax, merr := s.chunks.MaxIndexBySlug(dbctx.Context{Ctx: ctx}, in.Doc.Slug)
			if merr != nil {
				return nil, &apperrors.DatabaseError{Op: "max index after conflict", Err: merr}
			}
			offset := shiftOffset(batch[0].Index, newMax)
			s.log.Warn("chunk index collision; re-basing remaining batches",
				"slug", in.Doc.Slug, "batch", bi, "observed_max", newMax, "offset", offset, "attempt", conflictAttempts)
			for _, later := range batches[bi:] {
				for _, row := range later {
					row.Index += offset
				}
			}
			continue // retry the same batch at its new indices
		}

		s.log.Error("chunk batch insert failed", "slug", in.Doc.Slug, "batch", bi, "error", err)
		res.FailedBatches++
		bi++
	}

	if res.Stored == 0 {
		return res, &apperrors.DatabaseError{Op: "store chunks", Err: fmt.Errorf("all %d batches failed", len(batches))}
	}
	if res.FailedBatches*2 > len(batches) {
		return res, &apperrors.PartialFailureError{
			Op:        "store chunks",
			Succeeded: res.Stored,
			Failed:    len(rows) - res.Stored,
			Err:       fmt.Errorf("%d of %d batches failed", res.FailedBatches, len(batches)),
		}
	}
	return res, nil
}

// DeleteAll removes every chunk for the slug and returns the count removed.
func (s *Store) DeleteAll(ctx context.Context, slug string) (int64, error) {
	n, err := s.chunks.DeleteBySlug(dbctx.Context{Ctx: ctxutil.Default(ctx)}, slug)
	if err != nil {
		return 0, &apperrors.DatabaseError{Op: "delete chunks", Err: err}
	}
	return n, nil
}

func (s *Store) Count(ctx context.Context, slug string) (int64, error) {
	n, err := s.chunks.CountBySlug(dbctx.Context{Ctx: ctxutil.Default(ctx)}, slug)
	if err != nil {
		return 0, &apperrors.DatabaseError{Op: "count chunks", Err: err}
	}
	return n, nil
}

// MaxIndex returns -1 for a document with no chunks.
func (s *Store) MaxIndex(ctx context.Context, slug string) (int, error) {
	n, err := s.chunks.MaxIndexBySlug(dbctx.Context{Ctx: ctxutil.Default(ctx)}, slug)
	if err != nil {
		return -1, &apperrors.DatabaseError{Op: "max chunk index", Err: err}
	}
	return n, nil
}

func buildRow(in StoreInput, ch extractor.Chunk, vec []float32, index int) (*types.DocumentChunk, error) {
	emb, err := json.Marshal(vec)
	if err != nil {
		return nil, fmt.Errorf("marshal embedding: %w", err)
	}
	return &types.DocumentChunk{
		DocumentID:    in.Doc.ID,
		DocumentSlug:  in.Doc.Slug,
		Index:         index,
		Content:       ch.Content,
		CharStart:     ch.CharStart,
		CharEnd:       ch.CharEnd,
		Page:          ch.Page,
		StartSec:      ch.StartSec,
		EndSec:        ch.EndSec,
		Embedding:     datatypes.JSON(emb),
		EmbedProvider: in.Doc.EmbedProvider,
		EmbedModel:    in.EmbedModel,
		TokenEstimate: ch.TokenEstimate,
	}, nil
}

func splitBatches(rows []*types.DocumentChunk, size int) [][]*types.DocumentChunk {
	if size <= 0 {
		size = insertBatchSize
	}
	var out [][]*types.DocumentChunk
	for start := 0; start < len(rows); start += size {
		end := start + size
		if end > len(rows) {
			end = len(rows)
		}
		out = append(out, rows[start:end])
	}
	return out
}

// shiftOffset computes the smallest index shift that lifts a colliding batch
// above the max index observed after the collision. Zero when the batch
// already clears it.
func shiftOffset(batchMin, observedMax int) int {
	if batchMin > observedMax {
		return 0
	}
	return observedMax - batchMin + 1
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return true
	}
	// Wrapped errors can lose type info; sqlite reports by message only.
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "sqlstate 23505") ||
		strings.Contains(msg, "unique constraint failed") ||
		strings.Contains(msg, "duplicate key")
}
