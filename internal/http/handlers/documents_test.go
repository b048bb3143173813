package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/docbridge-backend/internal/data/graph"
	types "github.com/yungbote/docbridge-backend/internal/domain"
	documentsmod "github.com/yungbote/docbridge-backend/internal/modules/documents"
	apperrors "github.com/yungbote/docbridge-backend/internal/pkg/errors"
	"github.com/yungbote/docbridge-backend/internal/platform/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	return log
}

// fakeDocumentService records calls and returns scripted values.
type fakeDocumentService struct {
	lastUpload  *documentsmod.CreateFromUploadInput
	lastMode    string
	lastCount   int
	lastQuery   string
	lastLimit   int
	failWith    error
	doc         *types.Document
	job         *types.JobRun
	progress    *documentsmod.ProgressView
	searchHits  []documentsmod.SearchResult
	relatedHits []graph.RelatedDocument
}

var _ DocumentService = (*fakeDocumentService)(nil)

func (f *fakeDocumentService) CreateFromUpload(ctx context.Context, in documentsmod.CreateFromUploadInput) (*types.Document, *types.JobRun, error) {
	f.lastUpload = &in
	if f.failWith != nil {
		return nil, nil, f.failWith
	}
	return f.doc, f.job, nil
}

func (f *fakeDocumentService) List(ctx context.Context, limit, offset int) ([]*types.Document, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	return []*types.Document{f.doc}, nil
}

func (f *fakeDocumentService) GetBySlug(ctx context.Context, slug string) (*types.Document, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	return f.doc, nil
}

func (f *fakeDocumentService) ChunksBySlug(ctx context.Context, slug string, limit, offset int) ([]*types.DocumentChunk, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	return nil, nil
}

func (f *fakeDocumentService) QuizBySlug(ctx context.Context, slug string) (*types.Document, []*types.QuizQuestion, error) {
	if f.failWith != nil {
		return nil, nil, f.failWith
	}
	return f.doc, nil, nil
}

func (f *fakeDocumentService) ProgressBySlug(ctx context.Context, slug string) (*documentsmod.ProgressView, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	return f.progress, nil
}

func (f *fakeDocumentService) Reingest(ctx context.Context, slug, mode string) (*types.Document, *types.JobRun, error) {
	f.lastMode = mode
	if f.failWith != nil {
		return nil, nil, f.failWith
	}
	return f.doc, f.job, nil
}

func (f *fakeDocumentService) RequestQuizRegenerate(ctx context.Context, slug string, count int) (*types.Document, *types.JobRun, error) {
	f.lastCount = count
	if f.failWith != nil {
		return nil, nil, f.failWith
	}
	return f.doc, f.job, nil
}

func (f *fakeDocumentService) Search(ctx context.Context, query string, limit int) ([]documentsmod.SearchResult, error) {
	f.lastQuery = query
	f.lastLimit = limit
	if f.failWith != nil {
		return nil, f.failWith
	}
	return f.searchHits, nil
}

func (f *fakeDocumentService) Related(ctx context.Context, slug string, limit int) ([]graph.RelatedDocument, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	return f.relatedHits, nil
}

func newTestRouter(t *testing.T, svc DocumentService) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := testLogger(t)
	h := NewDocumentHandler(log, svc)
	sh := NewSearchHandler(log, svc)

	r := gin.New()
	api := r.Group("/api")
	api.POST("/documents", h.Create)
	api.GET("/documents", h.List)
	api.GET("/documents/:slug", h.Get)
	api.GET("/documents/:slug/progress", h.Progress)
	api.POST("/documents/:slug/reingest", h.Reingest)
	api.POST("/documents/:slug/quiz/regenerate", h.RegenerateQuiz)
	api.GET("/documents/:slug/related", h.Related)
	api.GET("/search", sh.Search)
	return r
}

func seedFake() *fakeDocumentService {
	return &fakeDocumentService{
		doc: &types.Document{
			ID:     uuid.New(),
			Slug:   "intro-to-sorting",
			Title:  "Intro to Sorting",
			Status: types.DocumentStatusUploaded,
		},
		job: &types.JobRun{ID: uuid.New()},
	}
}

func multipartUpload(t *testing.T, fields map[string]string, fileName, fileBody string) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatalf("write field %s: %v", k, err)
		}
	}
	if fileName != "" {
		fw, err := w.CreateFormFile("file", fileName)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := fw.Write([]byte(fileBody)); err != nil {
			t.Fatalf("write file body: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return &body, w.FormDataContentType()
}

func TestCreateReturnsAcceptedWithJobID(t *testing.T) {
	fake := seedFake()
	r := newTestRouter(t, fake)

	body, contentType := multipartUpload(t, map[string]string{
		"title":      "Intro to Sorting",
		"chunk_size": "400",
	}, "sorting.txt", "Sorting algorithms compare elements pairwise.")

	req := httptest.NewRequest(http.MethodPost, "/api/documents", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Document *types.Document `json:"document"`
		JobID    uuid.UUID       `json:"job_id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.JobID != fake.job.ID {
		t.Fatalf("job_id = %s, want %s", resp.JobID, fake.job.ID)
	}
	if resp.Document == nil || resp.Document.Slug != "intro-to-sorting" {
		t.Fatalf("document missing from response: %s", rec.Body.String())
	}

	in := fake.lastUpload
	if in == nil {
		t.Fatalf("service never called")
	}
	if in.Title != "Intro to Sorting" || in.FileName != "sorting.txt" || in.ChunkSize != 400 {
		t.Fatalf("unexpected input: %+v", in)
	}
	if in.File == nil {
		t.Fatalf("file reader not passed through")
	}
}

func TestCreateRequiresFile(t *testing.T) {
	r := newTestRouter(t, seedFake())

	body, contentType := multipartUpload(t, map[string]string{"title": "No File"}, "", "")
	req := httptest.NewRequest(http.MethodPost, "/api/documents", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "file_required") {
		t.Fatalf("unexpected error body: %s", rec.Body.String())
	}
}

func TestCreateRejectsBadFormInt(t *testing.T) {
	r := newTestRouter(t, seedFake())

	body, contentType := multipartUpload(t, map[string]string{
		"title":      "Bad Int",
		"chunk_size": "eight-hundred",
	}, "doc.txt", "text")
	req := httptest.NewRequest(http.MethodPost, "/api/documents", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestServiceErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("missing: %w", apperrors.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("bad: %w", apperrors.ErrInvalidArgument), http.StatusBadRequest},
		{fmt.Errorf("busy: %w", apperrors.ErrConflict), http.StatusConflict},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		fake := seedFake()
		fake.failWith = tc.err
		r := newTestRouter(t, fake)

		req := httptest.NewRequest(http.MethodGet, "/api/documents/some-slug", nil)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)

		if rec.Code != tc.want {
			t.Fatalf("err %v: status = %d, want %d", tc.err, rec.Code, tc.want)
		}
	}
}

func TestReingestReadsModeFromBodyAndQuery(t *testing.T) {
	fake := seedFake()
	r := newTestRouter(t, fake)

	req := httptest.NewRequest(http.MethodPost, "/api/documents/intro-to-sorting/reingest",
		strings.NewReader(`{"mode":"add"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", rec.Code, rec.Body.String())
	}
	if fake.lastMode != "add" {
		t.Fatalf("mode = %q, want add", fake.lastMode)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/documents/intro-to-sorting/reingest?mode=replace", nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", rec.Code, rec.Body.String())
	}
	if fake.lastMode != "replace" {
		t.Fatalf("mode = %q, want replace", fake.lastMode)
	}
}

func TestRegenerateQuizPassesCount(t *testing.T) {
	fake := seedFake()
	r := newTestRouter(t, fake)

	req := httptest.NewRequest(http.MethodPost, "/api/documents/intro-to-sorting/quiz/regenerate",
		strings.NewReader(`{"question_count":7}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", rec.Code, rec.Body.String())
	}
	if fake.lastCount != 7 {
		t.Fatalf("count = %d, want 7", fake.lastCount)
	}
}

func TestSearchPassesQueryAndLimit(t *testing.T) {
	fake := seedFake()
	fake.searchHits = []documentsmod.SearchResult{{DocumentSlug: "intro-to-sorting", Score: 0.92}}
	r := newTestRouter(t, fake)

	req := httptest.NewRequest(http.MethodGet, "/api/search?q=quicksort&limit=3", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if fake.lastQuery != "quicksort" || fake.lastLimit != 3 {
		t.Fatalf("query/limit = %q/%d, want quicksort/3", fake.lastQuery, fake.lastLimit)
	}
	var resp struct {
		Results []documentsmod.SearchResult `json:"results"`
		Count   int                         `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Count != 1 || len(resp.Results) != 1 || resp.Results[0].DocumentSlug != "intro-to-sorting" {
		t.Fatalf("unexpected results: %s", rec.Body.String())
	}
}

func TestRelatedReturnsHits(t *testing.T) {
	fake := seedFake()
	fake.relatedHits = []graph.RelatedDocument{{Slug: "heaps", Title: "Heaps", Score: 2, SharedTerms: []string{"sorting"}}}
	r := newTestRouter(t, fake)

	req := httptest.NewRequest(http.MethodGet, "/api/documents/intro-to-sorting/related", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"heaps"`) {
		t.Fatalf("related hit missing: %s", rec.Body.String())
	}
}
