package documents

import (
	"context"
	"fmt"

	types "github.com/yungbote/docbridge-backend/internal/domain"
	"github.com/yungbote/docbridge-backend/internal/pkg/ctxutil"
	"github.com/yungbote/docbridge-backend/internal/pkg/dbctx"
	apperrors "github.com/yungbote/docbridge-backend/internal/pkg/errors"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200

	defaultChunkPageLimit = 100
	maxChunkPageLimit     = 500

	progressLogLimit = 200
)

// ProgressView is the polling answer for one document: the row's status, the
// newest relevant job, and the recent stage timeline.
type ProgressView struct {
	DocumentID    string                      `json:"document_id"`
	Slug          string                      `json:"slug"`
	Status        string                      `json:"status"`
	FailureReason *string                     `json:"failure_reason,omitempty"`
	Job           *types.JobRun               `json:"job,omitempty"`
	Log           []*types.ProcessingLogEntry `json:"log"`
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*types.Document, error) {
	ctx = ctxutil.Default(ctx)
	limit = clampLimit(limit, defaultListLimit, maxListLimit)
	if offset < 0 {
		offset = 0
	}
	docs, err := s.documents.List(dbctx.Context{Ctx: ctx}, limit, offset)
	if err != nil {
		return nil, &apperrors.DatabaseError{Op: "list documents", Err: err}
	}
	return docs, nil
}

func (s *Service) GetBySlug(ctx context.Context, slug string) (*types.Document, error) {
	ctx = ctxutil.Default(ctx)
	return s.mustGetBySlug(ctx, slug)
}

func (s *Service) ChunksBySlug(ctx context.Context, slug string, limit, offset int) ([]*types.DocumentChunk, error) {
	ctx = ctxutil.Default(ctx)
	if _, err := s.mustGetBySlug(ctx, slug); err != nil {
		return nil, err
	}
	limit = clampLimit(limit, defaultChunkPageLimit, maxChunkPageLimit)
	if offset < 0 {
		offset = 0
	}
	chunks, err := s.chunks.GetBySlug(dbctx.Context{Ctx: ctx}, slug, limit, offset)
	if err != nil {
		return nil, &apperrors.DatabaseError{Op: "list chunks", Err: err}
	}
	return chunks, nil
}

func (s *Service) QuizBySlug(ctx context.Context, slug string) (*types.Document, []*types.QuizQuestion, error) {
	ctx = ctxutil.Default(ctx)
	doc, err := s.mustGetBySlug(ctx, slug)
	if err != nil {
		return nil, nil, err
	}
	questions, err := s.quiz.GetByDocumentID(dbctx.Context{Ctx: ctx}, doc.ID)
	if err != nil {
		return nil, nil, &apperrors.DatabaseError{Op: "list quiz questions", Err: err}
	}
	return doc, questions, nil
}

// ProgressBySlug resolves the ingest job over the quiz job when both exist;
// clients polling after a reingest care about the pipeline run.
func (s *Service) ProgressBySlug(ctx context.Context, slug string) (*ProgressView, error) {
	ctx = ctxutil.Default(ctx)
	doc, err := s.mustGetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}

	dbc := dbctx.Context{Ctx: ctx}
	job, err := s.jobs.LatestForDocument(dbc, types.JobTypeDocumentIngest, doc.ID)
	if err != nil {
		return nil, &apperrors.DatabaseError{Op: "load ingest job", Err: err}
	}
	quizJob, err := s.jobs.LatestForDocument(dbc, types.JobTypeQuizRegenerate, doc.ID)
	if err != nil {
		return nil, &apperrors.DatabaseError{Op: "load quiz job", Err: err}
	}
	if job == nil || (quizJob != nil && quizJob.CreatedAt.After(job.CreatedAt)) {
		job = quizJob
	}

	entries, err := s.logs.ListByDocumentID(dbc, doc.ID, progressLogLimit)
	if err != nil {
		return nil, &apperrors.DatabaseError{Op: "list processing log", Err: err}
	}
	if entries == nil {
		entries = []*types.ProcessingLogEntry{}
	}

	return &ProgressView{
		DocumentID:    doc.ID.String(),
		Slug:          doc.Slug,
		Status:        doc.Status,
		FailureReason: doc.FailureReason,
		Job:           job,
		Log:           entries,
	}, nil
}

func (s *Service) mustGetBySlug(ctx context.Context, slug string) (*types.Document, error) {
	doc, err := s.documents.GetBySlug(dbctx.Context{Ctx: ctx}, slug)
	if err != nil {
		return nil, &apperrors.DatabaseError{Op: "load document", Err: err}
	}
	if doc == nil {
		return nil, fmt.Errorf("document %q: %w", slug, apperrors.ErrNotFound)
	}
	return doc, nil
}

func clampLimit(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}
