package documents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"

	"github.com/yungbote/docbridge-backend/internal/data/graph"
	types "github.com/yungbote/docbridge-backend/internal/domain"
	"github.com/yungbote/docbridge-backend/internal/enrichment"
	"github.com/yungbote/docbridge-backend/internal/ingestion/extractor"
	"github.com/yungbote/docbridge-backend/internal/ingestion/storage"
	"github.com/yungbote/docbridge-backend/internal/pkg/ctxutil"
	"github.com/yungbote/docbridge-backend/internal/pkg/dbctx"
	apperrors "github.com/yungbote/docbridge-backend/internal/pkg/errors"
)

type IngestOptions struct {
	// Mode is "replace" (default) or "add".
	Mode string
	// Report mirrors stage progress to the caller (the job handler) without
	// another DB read.
	Report Report
}

// IngestResult summarizes one pipeline run; the job handler stores it on the
// job_run row.
type IngestResult struct {
	DocumentID        uuid.UUID `json:"document_id"`
	Slug              string    `json:"slug"`
	Mode              string    `json:"mode"`
	Provider          string    `json:"provider,omitempty"`
	PageCount         int       `json:"page_count,omitempty"`
	DurationSec       float64   `json:"duration_sec,omitempty"`
	TextRunes         int       `json:"text_runes"`
	ChunkCount        int       `json:"chunk_count"`
	EmbeddedCount     int       `json:"embedded_count"`
	EmbedFailed       int       `json:"embed_failed"`
	StoredCount       int       `json:"stored_count"`
	SkippedUnembedded int       `json:"skipped_unembedded"`
	StartIndex        int       `json:"start_index"`
	ConflictRetries   int       `json:"conflict_retries"`
	FailedBatches     int       `json:"failed_batches"`
	AbstractGenerated bool      `json:"abstract_generated"`
	KeywordCount      int       `json:"keyword_count"`
	QuizCount         int       `json:"quiz_count"`
}

// ingestRun carries one pipeline execution's state between stages.
type ingestRun struct {
	ctx  context.Context
	doc  *types.Document
	rep  *stageReporter
	mode string
	res  *IngestResult

	extracted *extractor.Result
	chunks    []extractor.Chunk
	texts     []string
	vectors   [][]float32
}

// RunIngest executes the full pipeline for one document: extract, chunk,
// embed, store, enrich, finalize. The document moves uploaded|failed →
// processing → ready, or to failed with a reason. Errors propagate to the
// job runner, which owns re-attempts; every stage writes processing_log rows
// and bus events on the way through.
func (s *Service) RunIngest(ctx context.Context, docID uuid.UUID, opts IngestOptions) (*IngestResult, error) {
	ctx = ctxutil.Default(ctx)

	mode := strings.ToLower(strings.TrimSpace(opts.Mode))
	if mode == "" {
		mode = storage.ModeReplace
	}
	if mode != storage.ModeReplace && mode != storage.ModeAdd {
		return nil, &apperrors.ProcessingError{Stage: "ingest", Err: fmt.Errorf("unknown ingest mode %q: %w", opts.Mode, apperrors.ErrInvalidArgument)}
	}

	doc, err := s.documents.GetByID(dbctx.Context{Ctx: ctx}, docID)
	if err != nil {
		return nil, &apperrors.DatabaseError{Op: "load document", Err: err}
	}
	if doc == nil {
		return nil, fmt.Errorf("document %s: %w", docID, apperrors.ErrNotFound)
	}

	if err := s.setDocumentStatus(ctx, doc, types.DocumentStatusProcessing, ""); err != nil {
		return nil, err
	}

	run := &ingestRun{
		ctx:  ctx,
		doc:  doc,
		rep:  s.newReporter(doc, types.JobTypeDocumentIngest, opts.Report),
		mode: mode,
		res:  &IngestResult{DocumentID: doc.ID, Slug: doc.Slug, Mode: mode},
	}

	if err := s.stageExtract(run); err != nil {
		return nil, s.failIngest(run, "extract", err)
	}
	if err := s.stageChunk(run); err != nil {
		return nil, s.failIngest(run, "chunk", err)
	}
	if err := s.stageEmbed(run); err != nil {
		return nil, s.failIngest(run, "embed", err)
	}
	if err := s.stageStore(run); err != nil {
		return nil, s.failIngest(run, "store", err)
	}
	if err := s.stageEnrich(run); err != nil {
		return nil, s.failIngest(run, "enrich", err)
	}
	if err := s.stageFinalize(run); err != nil {
		return nil, s.failIngest(run, "finalize", err)
	}
	return run.res, nil
}

func (s *Service) stageExtract(run *ingestRun) error {
	began := time.Now()
	ctx, span := startStageSpan(run.ctx, "extract")
	defer span.End()

	run.rep.started(ctx, "extract", "Extracting text", 5)
	ext, err := s.extractor.Extract(ctx, run.doc)
	if err != nil {
		run.rep.observe("extract", "failed", began)
		recordSpanError(span, err)
		return err
	}
	run.extracted = ext
	run.res.Provider = ext.Provider
	run.res.TextRunes = utf8.RuneCountInString(ext.Text)

	updates := map[string]interface{}{}
	if ext.PageCount > 0 {
		updates["page_count"] = ext.PageCount
		run.doc.PageCount = types.PtrInt(ext.PageCount)
		run.res.PageCount = ext.PageCount
	}
	if ext.DurationSec > 0 {
		updates["duration_sec"] = ext.DurationSec
		run.doc.DurationSec = types.PtrFloat(ext.DurationSec)
		run.res.DurationSec = ext.DurationSec
	}
	if len(updates) > 0 {
		if err := s.documents.UpdateFields(dbctx.Context{Ctx: ctx}, run.doc.ID, updates); err != nil {
			run.rep.observe("extract", "failed", began)
			recordSpanError(span, err)
			return &apperrors.DatabaseError{Op: "update document source facts", Err: err}
		}
	}

	run.rep.completed(ctx, "extract", "Text extracted", 20, map[string]any{
		"provider":     ext.Provider,
		"text_runes":   run.res.TextRunes,
		"page_count":   ext.PageCount,
		"duration_sec": ext.DurationSec,
		"segments":     len(ext.Segments),
	})
	run.rep.observe("extract", "completed", began)
	return nil
}

func (s *Service) stageChunk(run *ingestRun) error {
	began := time.Now()
	ctx, span := startStageSpan(run.ctx, "chunk")
	defer span.End()

	run.rep.started(ctx, "chunk", "Chunking text", 22)
	chunks, err := extractor.ChunkText(run.extracted.Text, extractor.ChunkOptions{
		ChunkSizeTokens: run.doc.ChunkSize,
		OverlapTokens:   run.doc.ChunkOverlap,
		TotalPages:      run.extracted.PageCount,
		Segments:        run.extracted.Segments,
	})
	if err != nil {
		run.rep.observe("chunk", "failed", began)
		recordSpanError(span, err)
		return err
	}
	run.chunks = chunks
	run.texts = make([]string, len(chunks))
	for i, c := range chunks {
		run.texts[i] = c.Content
	}
	run.res.ChunkCount = len(chunks)

	run.rep.completed(ctx, "chunk", fmt.Sprintf("Split into %d chunks", len(chunks)), 25, map[string]any{
		"chunks":        len(chunks),
		"chunk_size":    run.doc.ChunkSize,
		"chunk_overlap": run.doc.ChunkOverlap,
	})
	run.rep.observe("chunk", "completed", began)
	return nil
}

func (s *Service) stageEmbed(run *ingestRun) error {
	began := time.Now()
	ctx, span := startStageSpan(run.ctx, "embed")
	defer span.End()

	run.rep.started(ctx, "embed", "Embedding chunks", 30)
	vectors, failures, err := s.embedder.EmbedAll(ctx, run.texts, func(done, total int) {
		if total <= 0 {
			return
		}
		pct := 30 + done*40/total
		run.rep.progress(ctx, "embed", fmt.Sprintf("Embedded %d of %d chunks", done, total), pct, map[string]any{
			"done":  done,
			"total": total,
		})
	})
	for _, f := range failures {
		s.log.Warn("chunk embedding failed", "slug", run.doc.Slug, "chunk_index", f.ChunkIndex, "error", f.Err)
	}
	if err != nil {
		run.rep.observe("embed", "failed", began)
		recordSpanError(span, err)
		return err
	}
	run.vectors = vectors
	embedded := 0
	for _, v := range vectors {
		if v != nil {
			embedded++
		}
	}
	run.res.EmbeddedCount = embedded
	run.res.EmbedFailed = len(run.texts) - embedded

	run.rep.completed(ctx, "embed", fmt.Sprintf("Embedded %d of %d chunks", embedded, len(run.texts)), 70, map[string]any{
		"embedded": embedded,
		"failed":   run.res.EmbedFailed,
	})
	run.rep.observe("embed", "completed", began)
	return nil
}

func (s *Service) stageStore(run *ingestRun) error {
	began := time.Now()
	ctx, span := startStageSpan(run.ctx, "store")
	defer span.End()

	run.rep.started(ctx, "store", "Storing chunks", 75)
	stored, err := s.storer.Store(ctx, storage.StoreInput{
		Doc:        run.doc,
		Chunks:     run.chunks,
		Vectors:    run.vectors,
		Mode:       run.mode,
		EmbedModel: s.ai.EmbedModelName(),
	})
	if err != nil {
		run.rep.observe("store", "failed", began)
		recordSpanError(span, err)
		return err
	}
	run.res.StoredCount = stored.Stored
	run.res.SkippedUnembedded = stored.SkippedUnembedded
	run.res.StartIndex = stored.StartIndex
	run.res.ConflictRetries = stored.ConflictRetries
	run.res.FailedBatches = stored.FailedBatches

	run.rep.completed(ctx, "store", fmt.Sprintf("Stored %d chunks", stored.Stored), 85, map[string]any{
		"stored":             stored.Stored,
		"skipped_unembedded": stored.SkippedUnembedded,
		"start_index":        stored.StartIndex,
		"conflict_retries":   stored.ConflictRetries,
		"failed_batches":     stored.FailedBatches,
	})
	run.rep.observe("store", "completed", began)
	return nil
}

func (s *Service) stageEnrich(run *ingestRun) error {
	began := time.Now()
	ctx, span := startStageSpan(run.ctx, "enrich")
	defer span.End()

	run.rep.started(ctx, "enrich", "Generating abstract, keywords, and quiz", 90)
	enriched, err := s.enricher.EnrichDocument(ctx, run.doc, run.texts)
	if err != nil {
		run.rep.observe("enrich", "failed", began)
		recordSpanError(span, err)
		return err
	}
	if err := s.persistEnrichment(ctx, run.doc, enriched); err != nil {
		run.rep.observe("enrich", "failed", began)
		recordSpanError(span, err)
		return err
	}
	run.res.AbstractGenerated = enriched.Abstract != enrichment.AbstractUnavailable
	run.res.KeywordCount = len(enriched.Keywords)
	run.res.QuizCount = len(enriched.Questions)

	if err := graph.UpsertDocumentKeywordGraph(ctx, s.graph, s.log, run.doc.ID, run.doc.Slug, run.doc.Title, enriched.Keywords); err != nil {
		// Graph projection is a best-effort mirror; Postgres stays canonical.
		s.log.Warn("keyword graph upsert failed", "slug", run.doc.Slug, "error", err)
	}

	run.rep.completed(ctx, "enrich", "Enrichment finished", 95, map[string]any{
		"abstract_generated": run.res.AbstractGenerated,
		"keywords":           run.res.KeywordCount,
		"quiz_questions":     run.res.QuizCount,
	})
	run.rep.observe("enrich", "completed", began)
	return nil
}

func (s *Service) stageFinalize(run *ingestRun) error {
	began := time.Now()
	ctx, span := startStageSpan(run.ctx, "finalize")
	defer span.End()

	run.rep.started(ctx, "finalize", "Finalizing document", 98)
	if err := s.setDocumentStatus(ctx, run.doc, types.DocumentStatusReady, ""); err != nil {
		run.rep.observe("finalize", "failed", began)
		recordSpanError(span, err)
		return err
	}
	run.rep.completed(ctx, "finalize", "Document ready", 100, map[string]any{
		"status": types.DocumentStatusReady,
	})
	run.rep.observe("finalize", "completed", began)
	return nil
}

// persistEnrichment writes the generated fields onto the document row and
// swaps the quiz set. Generation failures already degraded inside the
// enricher; an error here is a real persistence failure.
func (s *Service) persistEnrichment(ctx context.Context, doc *types.Document, enriched *enrichment.Result) error {
	keywords := enriched.Keywords
	if keywords == nil {
		keywords = []types.Keyword{}
	}
	kb, err := json.Marshal(keywords)
	if err != nil {
		return &apperrors.ProcessingError{Stage: "enrich", Err: fmt.Errorf("marshal keywords: %w", err)}
	}

	questions := make([]*types.QuizQuestion, 0, len(enriched.Questions))
	for i, q := range enriched.Questions {
		row, err := quizRow(doc.ID, i, q)
		if err != nil {
			return err
		}
		questions = append(questions, row)
	}
	if err := s.quiz.ReplaceForDocument(dbctx.Context{Ctx: ctx}, doc.ID, questions); err != nil {
		return &apperrors.DatabaseError{Op: "replace quiz questions", Err: err}
	}

	updates := map[string]interface{}{
		"abstract":       enriched.Abstract,
		"keywords":       datatypes.JSON(kb),
		"quiz_generated": len(questions) > 0,
	}
	if err := s.documents.UpdateFields(dbctx.Context{Ctx: ctx}, doc.ID, updates); err != nil {
		return &apperrors.DatabaseError{Op: "update document enrichment", Err: err}
	}
	abstract := enriched.Abstract
	doc.Abstract = &abstract
	doc.Keywords = datatypes.JSON(kb)
	doc.QuizGenerated = len(questions) > 0
	return nil
}

// failIngest flips the document to failed with a reason, emits the failed
// event, and hands the original error back to the job runner.
func (s *Service) failIngest(run *ingestRun, stage string, err error) error {
	run.rep.failed(run.ctx, stage, err, 0)
	if serr := s.setDocumentStatus(run.ctx, run.doc, types.DocumentStatusFailed, err.Error()); serr != nil {
		s.log.Error("failed to mark document failed", "slug", run.doc.Slug, "error", serr)
	}
	s.log.Error("ingestion failed", "slug", run.doc.Slug, "stage", stage, "mode", run.mode, "error", err)
	return err
}

// setDocumentStatus persists the transition and keeps the in-memory document
// in sync. reason is only stored for failed; other statuses clear it.
func (s *Service) setDocumentStatus(ctx context.Context, doc *types.Document, status, reason string) error {
	updates := map[string]interface{}{"status": status}
	if status == types.DocumentStatusFailed && reason != "" {
		reason = truncateRunes(reason, 2000)
		updates["failure_reason"] = reason
		doc.FailureReason = &reason
	} else {
		updates["failure_reason"] = nil
		doc.FailureReason = nil
	}
	if err := s.documents.UpdateFields(dbctx.Context{Ctx: ctx}, doc.ID, updates); err != nil {
		return &apperrors.DatabaseError{Op: "update document status", Err: err}
	}
	doc.Status = status
	return nil
}

func startStageSpan(ctx context.Context, stage string) (context.Context, trace.Span) {
	return otel.Tracer("docbridge/ingest").Start(ctx, "ingest."+stage)
}

func recordSpanError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
	}
}

func truncateRunes(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
