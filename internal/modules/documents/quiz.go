package documents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	types "github.com/yungbote/docbridge-backend/internal/domain"
	"github.com/yungbote/docbridge-backend/internal/enrichment"
	"github.com/yungbote/docbridge-backend/internal/pkg/ctxutil"
	"github.com/yungbote/docbridge-backend/internal/pkg/dbctx"
	apperrors "github.com/yungbote/docbridge-backend/internal/pkg/errors"
)

type QuizRegenerateOptions struct {
	// QuestionCount overrides the document's stored quiz_count when positive.
	QuestionCount int
	Report        Report
}

type QuizRegenerateResult struct {
	DocumentID    uuid.UUID `json:"document_id"`
	Slug          string    `json:"slug"`
	QuestionCount int       `json:"question_count"`
}

// RegenerateQuiz rebuilds the quiz from the document's stored chunks. Unlike
// ingestion-time enrichment this is all-or-nothing: generation failing after
// its bounded retries fails the job and the previous quiz stays in place.
func (s *Service) RegenerateQuiz(ctx context.Context, docID uuid.UUID, opts QuizRegenerateOptions) (*QuizRegenerateResult, error) {
	ctx = ctxutil.Default(ctx)

	doc, err := s.documents.GetByID(dbctx.Context{Ctx: ctx}, docID)
	if err != nil {
		return nil, &apperrors.DatabaseError{Op: "load document", Err: err}
	}
	if doc == nil {
		return nil, fmt.Errorf("document %s: %w", docID, apperrors.ErrNotFound)
	}

	rep := s.newReporter(doc, types.JobTypeQuizRegenerate, opts.Report)
	began := time.Now()
	rep.started(ctx, "quiz", "Regenerating quiz", 10)

	chunks, err := s.chunks.GetByDocumentID(dbctx.Context{Ctx: ctx}, doc.ID)
	if err != nil {
		rep.observe("quiz", "failed", began)
		rep.failed(ctx, "quiz", err, 0)
		return nil, &apperrors.DatabaseError{Op: "load chunks", Err: err}
	}
	if len(chunks) == 0 {
		err := &apperrors.ProcessingError{Stage: "quiz", Err: fmt.Errorf("document has no stored chunks")}
		rep.observe("quiz", "failed", began)
		rep.failed(ctx, "quiz", err, 0)
		return nil, err
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}

	if opts.QuestionCount > 0 && opts.QuestionCount != doc.QuizCount {
		if err := s.documents.UpdateFields(dbctx.Context{Ctx: ctx}, doc.ID, map[string]interface{}{
			"quiz_count": opts.QuestionCount,
		}); err != nil {
			rep.observe("quiz", "failed", began)
			rep.failed(ctx, "quiz", err, 0)
			return nil, &apperrors.DatabaseError{Op: "update quiz count", Err: err}
		}
		doc.QuizCount = opts.QuestionCount
	}

	rep.progress(ctx, "quiz", "Generating questions", 40, map[string]any{
		"chunks":         len(chunks),
		"question_count": doc.QuizCount,
	})
	items := s.enricher.GenerateQuiz(ctx, doc, texts)
	if len(items) == 0 {
		err := &apperrors.ProcessingError{Stage: "quiz", Err: fmt.Errorf("quiz generation produced no valid questions")}
		rep.observe("quiz", "failed", began)
		rep.failed(ctx, "quiz", err, 0)
		return nil, err
	}

	questions := make([]*types.QuizQuestion, 0, len(items))
	for i, q := range items {
		row, err := quizRow(doc.ID, i, q)
		if err != nil {
			rep.observe("quiz", "failed", began)
			rep.failed(ctx, "quiz", err, 0)
			return nil, err
		}
		questions = append(questions, row)
	}
	if err := s.quiz.ReplaceForDocument(dbctx.Context{Ctx: ctx}, doc.ID, questions); err != nil {
		dberr := &apperrors.DatabaseError{Op: "replace quiz questions", Err: err}
		rep.observe("quiz", "failed", began)
		rep.failed(ctx, "quiz", dberr, 0)
		return nil, dberr
	}
	if err := s.documents.UpdateFields(dbctx.Context{Ctx: ctx}, doc.ID, map[string]interface{}{
		"quiz_generated": true,
	}); err != nil {
		dberr := &apperrors.DatabaseError{Op: "update document quiz flag", Err: err}
		rep.observe("quiz", "failed", began)
		rep.failed(ctx, "quiz", dberr, 0)
		return nil, dberr
	}
	doc.QuizGenerated = true

	rep.completed(ctx, "quiz", fmt.Sprintf("Quiz regenerated with %d questions", len(questions)), 100, map[string]any{
		"questions": len(questions),
	})
	rep.observe("quiz", "completed", began)

	return &QuizRegenerateResult{
		DocumentID:    doc.ID,
		Slug:          doc.Slug,
		QuestionCount: len(questions),
	}, nil
}

func quizRow(docID uuid.UUID, index int, q enrichment.QuizItem) (*types.QuizQuestion, error) {
	ob, err := json.Marshal(q.Options)
	if err != nil {
		return nil, &apperrors.ProcessingError{Stage: "quiz", Err: fmt.Errorf("marshal quiz options: %w", err)}
	}
	row := &types.QuizQuestion{
		DocumentID:   docID,
		Index:        index,
		Prompt:       q.Prompt,
		Options:      datatypes.JSON(ob),
		CorrectIndex: q.CorrectIndex,
	}
	if strings.TrimSpace(q.Explanation) != "" {
		expl := q.Explanation
		row.Explanation = &expl
	}
	return row, nil
}
