package documents

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/docbridge-backend/internal/domain"
	"github.com/yungbote/docbridge-backend/internal/ingestion/extractor"
	"github.com/yungbote/docbridge-backend/internal/pkg/ctxutil"
	"github.com/yungbote/docbridge-backend/internal/pkg/dbctx"
	apperrors "github.com/yungbote/docbridge-backend/internal/pkg/errors"
)

const (
	defaultChunkSize    = 800
	defaultChunkOverlap = 150
	defaultQuizCount    = 5

	maxSlugAttempts = 50
)

const (
	ProviderOpenAI = "openai"
	ProviderGCP    = "gcp"
)

type CreateFromUploadInput struct {
	Title    string
	FileName string
	MimeType string
	Size     int64
	File     io.Reader

	ChunkSize          int
	ChunkOverlap       int
	QuizCount          int
	EmbedProvider      string
	TranscribeProvider string
}

// CreateFromUpload stores the raw object, renders the cover, creates the
// document row, and queues the ingest job. The 202 response carries both the
// document and the job id so clients can poll either.
func (s *Service) CreateFromUpload(ctx context.Context, in CreateFromUploadInput) (*types.Document, *types.JobRun, error) {
	ctx = ctxutil.Default(ctx)

	if in.File == nil {
		return nil, nil, fmt.Errorf("file required: %w", apperrors.ErrInvalidArgument)
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = titleFromFileName(in.FileName)
	}
	if title == "" {
		return nil, nil, fmt.Errorf("title required: %w", apperrors.ErrInvalidArgument)
	}
	if kind := extractor.SourceKind(in.MimeType, in.FileName); kind == extractor.KindUnknown {
		return nil, nil, fmt.Errorf("unsupported source type %q: %w", in.MimeType, apperrors.ErrInvalidArgument)
	}

	chunkSize, chunkOverlap, err := normalizeChunkParams(in.ChunkSize, in.ChunkOverlap)
	if err != nil {
		return nil, nil, err
	}
	quizCount := in.QuizCount
	if quizCount == 0 {
		quizCount = defaultQuizCount
	}
	if quizCount < 1 || quizCount > 20 {
		return nil, nil, fmt.Errorf("quiz_count %d out of [1, 20]: %w", in.QuizCount, apperrors.ErrInvalidArgument)
	}
	embedProvider, err := normalizeProvider("embed_provider", in.EmbedProvider, ProviderOpenAI)
	if err != nil {
		return nil, nil, err
	}
	transcribeProvider, err := normalizeProvider("transcribe_provider", in.TranscribeProvider, ProviderOpenAI, ProviderGCP)
	if err != nil {
		return nil, nil, err
	}

	slug, err := s.uniqueSlug(ctx, title)
	if err != nil {
		return nil, nil, err
	}

	sourceKey := fmt.Sprintf("documents/%s/source%s", slug, strings.ToLower(filepath.Ext(in.FileName)))
	if err := s.bucket.UploadFile(ctx, sourceKey, in.File); err != nil {
		return nil, nil, fmt.Errorf("store upload: %w", err)
	}

	var coverKey *string
	if s.covers != nil {
		if png, cerr := s.covers.Render(ctx, title); cerr != nil {
			s.log.Warn("cover render failed", "slug", slug, "error", cerr)
		} else {
			key := fmt.Sprintf("documents/%s/cover.png", slug)
			if uerr := s.bucket.UploadFile(ctx, key, bytes.NewReader(png)); uerr != nil {
				s.log.Warn("cover upload failed", "slug", slug, "error", uerr)
			} else {
				coverKey = &key
			}
		}
	}

	doc := &types.Document{
		Slug:               slug,
		Title:              title,
		SourceKey:          sourceKey,
		SourceMime:         strings.TrimSpace(in.MimeType),
		SourceBytes:        in.Size,
		CoverKey:           coverKey,
		Status:             types.DocumentStatusUploaded,
		EmbedProvider:      embedProvider,
		TranscribeProvider: transcribeProvider,
		ChunkSize:          chunkSize,
		ChunkOverlap:       chunkOverlap,
		QuizCount:          quizCount,
	}

	var job *types.JobRun
	err = s.inTx(ctx, func(dbc dbctx.Context) error {
		if _, err := s.documents.Create(dbc, doc); err != nil {
			return &apperrors.DatabaseError{Op: "create document", Err: err}
		}
		j, err := s.jobs.EnqueueDocumentIngest(dbc, doc.ID, "replace")
		if err != nil {
			return &apperrors.DatabaseError{Op: "enqueue ingest job", Err: err}
		}
		job = j
		return nil
	})
	if err != nil {
		s.cleanupObjects(ctx, sourceKey, coverKey)
		return nil, nil, err
	}

	rep := s.newReporter(doc, types.JobTypeDocumentIngest, nil)
	rep.completed(ctx, "upload", "Upload stored, ingestion queued", 0, map[string]any{
		"source_key":   sourceKey,
		"source_bytes": in.Size,
		"job_id":       job.ID.String(),
	})

	s.log.Info("document uploaded", "slug", slug, "mime", doc.SourceMime, "bytes", in.Size, "job_id", job.ID)
	return doc, job, nil
}

// Reingest queues another ingest run for an existing document. mode "replace"
// rebuilds from index zero; "add" appends above the current max index.
func (s *Service) Reingest(ctx context.Context, slug, mode string) (*types.Document, *types.JobRun, error) {
	ctx = ctxutil.Default(ctx)

	mode = strings.ToLower(strings.TrimSpace(mode))
	if mode == "" {
		mode = "replace"
	}
	if mode != "replace" && mode != "add" {
		return nil, nil, fmt.Errorf("mode must be replace or add: %w", apperrors.ErrInvalidArgument)
	}

	doc, err := s.documents.GetBySlug(dbctx.Context{Ctx: ctx}, slug)
	if err != nil {
		return nil, nil, &apperrors.DatabaseError{Op: "load document", Err: err}
	}
	if doc == nil {
		return nil, nil, fmt.Errorf("document %q: %w", slug, apperrors.ErrNotFound)
	}

	busy, err := s.jobs.HasRunnableForDocument(dbctx.Context{Ctx: ctx}, types.JobTypeDocumentIngest, doc.ID)
	if err != nil {
		return nil, nil, &apperrors.DatabaseError{Op: "check running jobs", Err: err}
	}
	if busy {
		return nil, nil, fmt.Errorf("document %q already has an ingest job queued or running: %w", slug, apperrors.ErrConflict)
	}

	job, err := s.jobs.EnqueueDocumentIngest(dbctx.Context{Ctx: ctx}, doc.ID, mode)
	if err != nil {
		return nil, nil, &apperrors.DatabaseError{Op: "enqueue ingest job", Err: err}
	}
	s.log.Info("reingest queued", "slug", slug, "mode", mode, "job_id", job.ID)
	return doc, job, nil
}

// RequestQuizRegenerate queues a quiz rebuild. count == 0 keeps the
// document's stored quiz_count.
func (s *Service) RequestQuizRegenerate(ctx context.Context, slug string, count int) (*types.Document, *types.JobRun, error) {
	ctx = ctxutil.Default(ctx)

	if count < 0 || count > 20 {
		return nil, nil, fmt.Errorf("question count %d out of [1, 20]: %w", count, apperrors.ErrInvalidArgument)
	}

	doc, err := s.documents.GetBySlug(dbctx.Context{Ctx: ctx}, slug)
	if err != nil {
		return nil, nil, &apperrors.DatabaseError{Op: "load document", Err: err}
	}
	if doc == nil {
		return nil, nil, fmt.Errorf("document %q: %w", slug, apperrors.ErrNotFound)
	}
	if doc.Status != types.DocumentStatusReady {
		return nil, nil, fmt.Errorf("document %q is %s, quiz regeneration needs ready: %w", slug, doc.Status, apperrors.ErrConflict)
	}

	busy, err := s.jobs.HasRunnableForDocument(dbctx.Context{Ctx: ctx}, types.JobTypeQuizRegenerate, doc.ID)
	if err != nil {
		return nil, nil, &apperrors.DatabaseError{Op: "check running jobs", Err: err}
	}
	if busy {
		return nil, nil, fmt.Errorf("document %q already has a quiz job queued or running: %w", slug, apperrors.ErrConflict)
	}

	job, err := s.jobs.EnqueueQuizRegenerate(dbctx.Context{Ctx: ctx}, doc.ID, count)
	if err != nil {
		return nil, nil, &apperrors.DatabaseError{Op: "enqueue quiz job", Err: err}
	}
	s.log.Info("quiz regenerate queued", "slug", slug, "count", count, "job_id", job.ID)
	return doc, job, nil
}

// inTx runs fn inside one transaction when a DB handle is present; repos fall
// back to their own handles otherwise.
func (s *Service) inTx(ctx context.Context, fn func(dbc dbctx.Context) error) error {
	if s.db == nil {
		return fn(dbctx.Context{Ctx: ctx})
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(dbctx.Context{Ctx: ctx, Tx: tx})
	})
}

func (s *Service) cleanupObjects(ctx context.Context, sourceKey string, coverKey *string) {
	if err := s.bucket.DeleteFile(ctx, sourceKey); err != nil {
		s.log.Warn("orphaned upload cleanup failed", "key", sourceKey, "error", err)
	}
	if coverKey != nil {
		if err := s.bucket.DeleteFile(ctx, *coverKey); err != nil {
			s.log.Warn("orphaned cover cleanup failed", "key", *coverKey, "error", err)
		}
	}
}

// uniqueSlug derives a URL slug from the title and suffixes a counter until
// it is free. Uniqueness is best-effort here; the DB unique index is the
// final arbiter.
func (s *Service) uniqueSlug(ctx context.Context, title string) (string, error) {
	base := slugify(title)
	if base == "" {
		base = "document"
	}
	candidate := base
	for i := 2; i <= maxSlugAttempts; i++ {
		exists, err := s.documents.SlugExists(dbctx.Context{Ctx: ctx}, candidate)
		if err != nil {
			return "", &apperrors.DatabaseError{Op: "check slug", Err: err}
		}
		if !exists {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, i)
	}
	return fmt.Sprintf("%s-%s", base, uuid.NewString()[:8]), nil
}

func slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ""
	}
	s = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == ' ' || r == '-' || r == '_' || r == '.' || r == '/':
			return '-'
		default:
			return -1
		}
	}, s)
	for strings.Contains(s, "--") {
		s = strings.ReplaceAll(s, "--", "-")
	}
	s = strings.Trim(s, "-")
	if len(s) > 64 {
		s = strings.Trim(s[:64], "-")
	}
	return s
}

func titleFromFileName(name string) string {
	base := filepath.Base(strings.TrimSpace(name))
	if base == "." || base == "/" || base == "" {
		return ""
	}
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = strings.NewReplacer("_", " ", "-", " ").Replace(base)
	return strings.Join(strings.Fields(base), " ")
}

func normalizeChunkParams(size, overlap int) (int, int, error) {
	if size == 0 {
		size = defaultChunkSize
	}
	if size < extractor.MinChunkSizeTokens || size > extractor.MaxChunkSizeTokens {
		return 0, 0, fmt.Errorf("chunk_size %d out of [%d, %d]: %w", size, extractor.MinChunkSizeTokens, extractor.MaxChunkSizeTokens, apperrors.ErrInvalidArgument)
	}
	if overlap == 0 {
		overlap = defaultChunkOverlap
	}
	if overlap < 0 || overlap >= size {
		return 0, 0, fmt.Errorf("chunk_overlap %d out of [0, %d): %w", overlap, size, apperrors.ErrInvalidArgument)
	}
	return size, overlap, nil
}

func normalizeProvider(field, value string, allowed ...string) (string, error) {
	v := strings.ToLower(strings.TrimSpace(value))
	if v == "" {
		return allowed[0], nil
	}
	for _, a := range allowed {
		if v == a {
			return v, nil
		}
	}
	return "", fmt.Errorf("%s %q not supported: %w", field, value, apperrors.ErrInvalidArgument)
}
