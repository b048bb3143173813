package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/docbridge-backend/internal/data/graph"
	types "github.com/yungbote/docbridge-backend/internal/domain"
	"github.com/yungbote/docbridge-backend/internal/http/response"
	documentsmod "github.com/yungbote/docbridge-backend/internal/modules/documents"
	"github.com/yungbote/docbridge-backend/internal/platform/logger"
)

const maxUploadMemory = 32 << 20

// DocumentService is the slice of the documents module the HTTP layer uses.
type DocumentService interface {
	CreateFromUpload(ctx context.Context, in documentsmod.CreateFromUploadInput) (*types.Document, *types.JobRun, error)
	List(ctx context.Context, limit, offset int) ([]*types.Document, error)
	GetBySlug(ctx context.Context, slug string) (*types.Document, error)
	ChunksBySlug(ctx context.Context, slug string, limit, offset int) ([]*types.DocumentChunk, error)
	QuizBySlug(ctx context.Context, slug string) (*types.Document, []*types.QuizQuestion, error)
	ProgressBySlug(ctx context.Context, slug string) (*documentsmod.ProgressView, error)
	Reingest(ctx context.Context, slug, mode string) (*types.Document, *types.JobRun, error)
	RequestQuizRegenerate(ctx context.Context, slug string, count int) (*types.Document, *types.JobRun, error)
	Search(ctx context.Context, query string, limit int) ([]documentsmod.SearchResult, error)
	Related(ctx context.Context, slug string, limit int) ([]graph.RelatedDocument, error)
}

type DocumentHandler struct {
	log  *logger.Logger
	docs DocumentService
}

func NewDocumentHandler(log *logger.Logger, docs DocumentService) *DocumentHandler {
	return &DocumentHandler{
		log:  log.With("handler", "DocumentHandler"),
		docs: docs,
	}
}

// POST /api/documents
func (h *DocumentHandler) Create(c *gin.Context) {
	if err := c.Request.ParseMultipartForm(maxUploadMemory); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_multipart_form", err)
		return
	}
	form := c.Request.MultipartForm
	if form == nil || len(form.File["file"]) == 0 {
		response.RespondError(c, http.StatusBadRequest, "file_required", nil)
		return
	}
	fh := form.File["file"][0]

	in := documentsmod.CreateFromUploadInput{
		Title:              formValue(form.Value, "title"),
		FileName:           fh.Filename,
		Size:               fh.Size,
		EmbedProvider:      formValue(form.Value, "embed_provider"),
		TranscribeProvider: formValue(form.Value, "transcribe_provider"),
	}
	for _, f := range []struct {
		name string
		dst  *int
	}{
		{"chunk_size", &in.ChunkSize},
		{"chunk_overlap", &in.ChunkOverlap},
		{"quiz_count", &in.QuizCount},
	} {
		v, err := formInt(form.Value, f.name)
		if err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_form_field", err)
			return
		}
		*f.dst = v
	}

	// Trust the part header when present, sniff otherwise.
	mimeType := fh.Header.Get("Content-Type")
	if mimeType == "" {
		sniff, err := fh.Open()
		if err != nil {
			response.RespondError(c, http.StatusBadRequest, "could_not_read_file", err)
			return
		}
		buf := make([]byte, 512)
		n, _ := sniff.Read(buf)
		_ = sniff.Close()
		mimeType = http.DetectContentType(buf[:n])
	}
	in.MimeType = mimeType

	file, err := fh.Open()
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "could_not_read_file", err)
		return
	}
	defer file.Close()
	in.File = file

	doc, job, err := h.docs.CreateFromUpload(c.Request.Context(), in)
	if err != nil {
		h.log.Warn("upload rejected", "filename", fh.Filename, "error", err)
		response.RespondServiceError(c, "upload_failed", err)
		return
	}

	response.RespondAccepted(c, gin.H{
		"document": doc,
		"job_id":   job.ID,
	})
}

// GET /api/documents
func (h *DocumentHandler) List(c *gin.Context) {
	limit, err := queryInt(c, "limit")
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_limit", err)
		return
	}
	offset, err := queryInt(c, "offset")
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_offset", err)
		return
	}

	docs, err := h.docs.List(c.Request.Context(), limit, offset)
	if err != nil {
		h.log.Error("list documents failed", "error", err)
		response.RespondServiceError(c, "list_documents_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"documents": docs, "count": len(docs)})
}

// GET /api/documents/:slug
func (h *DocumentHandler) Get(c *gin.Context) {
	doc, err := h.docs.GetBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		response.RespondServiceError(c, "document_not_found", err)
		return
	}
	response.RespondOK(c, gin.H{"document": doc})
}

// GET /api/documents/:slug/chunks
func (h *DocumentHandler) Chunks(c *gin.Context) {
	limit, err := queryInt(c, "limit")
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_limit", err)
		return
	}
	offset, err := queryInt(c, "offset")
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_offset", err)
		return
	}

	chunks, err := h.docs.ChunksBySlug(c.Request.Context(), c.Param("slug"), limit, offset)
	if err != nil {
		response.RespondServiceError(c, "list_chunks_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"chunks": chunks, "count": len(chunks)})
}

// GET /api/documents/:slug/quiz
func (h *DocumentHandler) Quiz(c *gin.Context) {
	doc, questions, err := h.docs.QuizBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		response.RespondServiceError(c, "load_quiz_failed", err)
		return
	}
	response.RespondOK(c, gin.H{
		"quiz_generated": doc.QuizGenerated,
		"questions":      questions,
	})
}

// GET /api/documents/:slug/progress
func (h *DocumentHandler) Progress(c *gin.Context) {
	view, err := h.docs.ProgressBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		response.RespondServiceError(c, "load_progress_failed", err)
		return
	}
	response.RespondOK(c, view)
}

// POST /api/documents/:slug/reingest
func (h *DocumentHandler) Reingest(c *gin.Context) {
	var req struct {
		Mode string `json:"mode"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
			return
		}
	}
	if req.Mode == "" {
		req.Mode = c.Query("mode")
	}

	doc, job, err := h.docs.Reingest(c.Request.Context(), c.Param("slug"), req.Mode)
	if err != nil {
		response.RespondServiceError(c, "reingest_failed", err)
		return
	}
	response.RespondAccepted(c, gin.H{
		"document_slug": doc.Slug,
		"job_id":        job.ID,
	})
}

// POST /api/documents/:slug/quiz/regenerate
func (h *DocumentHandler) RegenerateQuiz(c *gin.Context) {
	var req struct {
		QuestionCount int `json:"question_count"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
			return
		}
	}
	if req.QuestionCount == 0 {
		n, err := queryInt(c, "count")
		if err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_count", err)
			return
		}
		req.QuestionCount = n
	}

	doc, job, err := h.docs.RequestQuizRegenerate(c.Request.Context(), c.Param("slug"), req.QuestionCount)
	if err != nil {
		response.RespondServiceError(c, "quiz_regenerate_failed", err)
		return
	}
	response.RespondAccepted(c, gin.H{
		"document_slug": doc.Slug,
		"job_id":        job.ID,
	})
}

// GET /api/documents/:slug/related
func (h *DocumentHandler) Related(c *gin.Context) {
	limit, err := queryInt(c, "limit")
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_limit", err)
		return
	}

	related, err := h.docs.Related(c.Request.Context(), c.Param("slug"), limit)
	if err != nil {
		response.RespondServiceError(c, "load_related_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"related": related, "count": len(related)})
}

func formValue(values map[string][]string, key string) string {
	if v := values[key]; len(v) > 0 {
		return strings.TrimSpace(v[0])
	}
	return ""
}

func formInt(values map[string][]string, key string) (int, error) {
	raw := formValue(values, key)
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

func queryInt(c *gin.Context, name string) (int, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}
