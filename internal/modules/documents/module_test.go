package documents

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	jobsrepo "github.com/yungbote/docbridge-backend/internal/data/repos/jobs"
	types "github.com/yungbote/docbridge-backend/internal/domain"
	"github.com/yungbote/docbridge-backend/internal/enrichment"
	"github.com/yungbote/docbridge-backend/internal/ingestion/embedding"
	"github.com/yungbote/docbridge-backend/internal/ingestion/extractor"
	"github.com/yungbote/docbridge-backend/internal/ingestion/storage"
	"github.com/yungbote/docbridge-backend/internal/jobs"
	"github.com/yungbote/docbridge-backend/internal/pkg/dbctx"
	apperrors "github.com/yungbote/docbridge-backend/internal/pkg/errors"
	"github.com/yungbote/docbridge-backend/internal/platform/gcp"
	"github.com/yungbote/docbridge-backend/internal/platform/logger"
	"github.com/yungbote/docbridge-backend/internal/platform/openai"
	"github.com/yungbote/docbridge-backend/internal/realtime/bus"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	return log
}

// --- fakes ------------------------------------------------------------

type fakeDocumentRepo struct {
	mu   sync.Mutex
	byID map[uuid.UUID]*types.Document
}

func newFakeDocumentRepo() *fakeDocumentRepo {
	return &fakeDocumentRepo{byID: map[uuid.UUID]*types.Document{}}
}

func (r *fakeDocumentRepo) Create(dbc dbctx.Context, doc *types.Document) (*types.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	doc.CreatedAt = time.Now()
	r.byID[doc.ID] = doc
	return doc, nil
}

func (r *fakeDocumentRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byID[id], nil
}

func (r *fakeDocumentRepo) GetBySlug(dbc dbctx.Context, slug string) (*types.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.byID {
		if d.Slug == slug {
			return d, nil
		}
	}
	return nil, nil
}

func (r *fakeDocumentRepo) List(dbc dbctx.Context, limit, offset int) ([]*types.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*types.Document, 0, len(r.byID))
	for _, d := range r.byID {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeDocumentRepo) SlugExists(dbc dbctx.Context, slug string) (bool, error) {
	d, _ := r.GetBySlug(dbc, slug)
	return d != nil, nil
}

func (r *fakeDocumentRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.byID[id]
	if !ok {
		return fmt.Errorf("document %s not found", id)
	}
	for k, v := range updates {
		switch k {
		case "status":
			doc.Status = v.(string)
		case "failure_reason":
			if v == nil {
				doc.FailureReason = nil
			} else {
				s := v.(string)
				doc.FailureReason = &s
			}
		case "page_count":
			n := v.(int)
			doc.PageCount = &n
		case "duration_sec":
			f := v.(float64)
			doc.DurationSec = &f
		case "quiz_generated":
			doc.QuizGenerated = v.(bool)
		case "quiz_count":
			doc.QuizCount = v.(int)
		case "abstract":
			s := v.(string)
			doc.Abstract = &s
		}
	}
	return nil
}

type fakeChunkRepo struct {
	mu    sync.Mutex
	rows  map[uuid.UUID]*types.DocumentChunk
	batch int
}

func newFakeChunkRepo() *fakeChunkRepo {
	return &fakeChunkRepo{rows: map[uuid.UUID]*types.DocumentChunk{}}
}

func (r *fakeChunkRepo) seed(c *types.DocumentChunk) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	r.rows[c.ID] = c
}

func (r *fakeChunkRepo) CreateBatch(dbc dbctx.Context, chunks []*types.DocumentChunk) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batch++
	for _, c := range chunks {
		if c.ID == uuid.Nil {
			c.ID = uuid.New()
		}
		r.rows[c.ID] = c
	}
	return nil
}

func (r *fakeChunkRepo) bySlug(slug string) []*types.DocumentChunk {
	out := []*types.DocumentChunk{}
	for _, c := range r.rows {
		if c.DocumentSlug == slug {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

func (r *fakeChunkRepo) GetBySlug(dbc dbctx.Context, slug string, limit, offset int) ([]*types.DocumentChunk, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.bySlug(slug)
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeChunkRepo) GetByDocumentID(dbc dbctx.Context, docID uuid.UUID) ([]*types.DocumentChunk, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*types.DocumentChunk{}
	for _, c := range r.rows {
		if c.DocumentID == docID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}

func (r *fakeChunkRepo) ListEmbedded(dbc dbctx.Context, limit int) ([]*types.DocumentChunk, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*types.DocumentChunk{}
	for _, c := range r.rows {
		if len(c.Embedding) > 0 {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DocumentSlug != out[j].DocumentSlug {
			return out[i].DocumentSlug < out[j].DocumentSlug
		}
		return out[i].Index < out[j].Index
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeChunkRepo) DeleteBySlug(dbc dbctx.Context, slug string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, c := range r.rows {
		if c.DocumentSlug == slug {
			delete(r.rows, id)
			n++
		}
	}
	return n, nil
}

func (r *fakeChunkRepo) CountBySlug(dbc dbctx.Context, slug string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.bySlug(slug))), nil
}

func (r *fakeChunkRepo) MaxIndexBySlug(dbc dbctx.Context, slug string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	max := -1
	for _, c := range r.bySlug(slug) {
		if c.Index > max {
			max = c.Index
		}
	}
	return max, nil
}

type fakeQuizRepo struct {
	mu    sync.Mutex
	byDoc map[uuid.UUID][]*types.QuizQuestion
}

func newFakeQuizRepo() *fakeQuizRepo {
	return &fakeQuizRepo{byDoc: map[uuid.UUID][]*types.QuizQuestion{}}
}

func (r *fakeQuizRepo) ReplaceForDocument(dbc dbctx.Context, docID uuid.UUID, questions []*types.QuizQuestion) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byDoc[docID] = questions
	return nil
}

func (r *fakeQuizRepo) GetByDocumentID(dbc dbctx.Context, docID uuid.UUID) ([]*types.QuizQuestion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byDoc[docID], nil
}

func (r *fakeQuizRepo) DeleteByDocumentID(dbc dbctx.Context, docID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byDoc, docID)
	return nil
}

type fakeLogRepo struct {
	mu      sync.Mutex
	entries []*types.ProcessingLogEntry
}

func (r *fakeLogRepo) Append(dbc dbctx.Context, entry *types.ProcessingLogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	return nil
}

func (r *fakeLogRepo) ListByDocumentID(dbc dbctx.Context, docID uuid.UUID, limit int) ([]*types.ProcessingLogEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*types.ProcessingLogEntry{}
	for _, e := range r.entries {
		if e.DocumentID == docID {
			out = append(out, e)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// has reports whether a (stage, status) pair was logged.
func (r *fakeLogRepo) has(stage, status string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.Stage == stage && e.Status == status {
			return true
		}
	}
	return false
}

// fakeJobRepo covers only what the enqueue store touches.
type fakeJobRepo struct {
	mu       sync.Mutex
	created  []*types.JobRun
	runnable bool
}

func (r *fakeJobRepo) Create(dbc dbctx.Context, js []*types.JobRun) ([]*types.JobRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, j := range js {
		if j.ID == uuid.Nil {
			j.ID = uuid.New()
		}
	}
	r.created = append(r.created, js...)
	return js, nil
}

func (r *fakeJobRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.JobRun, error) {
	return nil, nil
}

func (r *fakeJobRepo) GetLatestByEntity(dbc dbctx.Context, entityType string, entityID uuid.UUID, jobType string) (*types.JobRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *types.JobRun
	for _, j := range r.created {
		if j.EntityType != entityType || j.EntityID == nil || *j.EntityID != entityID {
			continue
		}
		if jobType != "" && j.JobType != jobType {
			continue
		}
		if latest == nil || j.CreatedAt.After(latest.CreatedAt) {
			latest = j
		}
	}
	return latest, nil
}

func (r *fakeJobRepo) ClaimNextRunnable(dbc dbctx.Context, maxAttempts int, retryDelay, staleRunning time.Duration) (*types.JobRun, error) {
	return nil, nil
}

func (r *fakeJobRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	return nil
}

func (r *fakeJobRepo) UpdateFieldsUnlessStatus(dbc dbctx.Context, id uuid.UUID, disallowed []string, updates map[string]interface{}) (bool, error) {
	return true, nil
}

func (r *fakeJobRepo) Heartbeat(dbc dbctx.Context, id uuid.UUID) error { return nil }

func (r *fakeJobRepo) ExistsRunnable(dbc dbctx.Context, jobType, entityType string, entityID *uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runnable, nil
}

var _ jobsrepo.JobRunRepo = (*fakeJobRepo)(nil)

type fakeBucket struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeBucket() *fakeBucket {
	return &fakeBucket{objects: map[string][]byte{}}
}

func (f *fakeBucket) UploadFile(ctx context.Context, key string, file io.Reader) error {
	b, err := io.ReadAll(file)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = b
	return nil
}

func (f *fakeBucket) DownloadFile(ctx context.Context, key string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.objects[key]
	if !ok {
		return nil, fmt.Errorf("object %q not found", key)
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (f *fakeBucket) DeleteFile(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, key)
	return nil
}

func (f *fakeBucket) GetObjectAttrs(ctx context.Context, key string) (*gcp.ObjectAttrs, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.objects[key]
	if !ok {
		return nil, fmt.Errorf("object %q not found", key)
	}
	return &gcp.ObjectAttrs{Size: int64(len(b))}, nil
}

func (f *fakeBucket) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (f *fakeBucket) DeletePrefix(ctx context.Context, prefix string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for k := range f.objects {
		if strings.HasPrefix(k, prefix) {
			delete(f.objects, k)
		}
	}
	return nil
}

func (f *fakeBucket) ObjectURI(key string) string    { return "gs://test-bucket/" + key }
func (f *fakeBucket) GetPublicURL(key string) string { return "https://cdn.test/" + key }

func (f *fakeBucket) has(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[key]
	return ok
}

// fakeAI scripts GenerateJSON by schema name and embeds with a supplied
// function (default: a constant unit vector so cosine math stays sane).
type fakeAI struct {
	mu      sync.Mutex
	calls   map[string]int
	scripts map[string][]scriptedResponse
	embed   func(inputs []string) ([][]float32, error)
}

type scriptedResponse struct {
	obj map[string]any
	err error
}

func newFakeAI() *fakeAI {
	return &fakeAI{calls: map[string]int{}, scripts: map[string][]scriptedResponse{}}
}

func (f *fakeAI) script(schemaName string, obj map[string]any, err error) {
	f.scripts[schemaName] = append(f.scripts[schemaName], scriptedResponse{obj: obj, err: err})
}

func (f *fakeAI) GenerateJSON(ctx context.Context, system, user, schemaName string, schema map[string]any) (map[string]any, error) {
	f.mu.Lock()
	n := f.calls[schemaName]
	f.calls[schemaName] = n + 1
	script := f.scripts[schemaName]
	f.mu.Unlock()
	if len(script) == 0 {
		return nil, fmt.Errorf("no scripted response for %s", schemaName)
	}
	if n >= len(script) {
		n = len(script) - 1
	}
	return script[n].obj, script[n].err
}

func (f *fakeAI) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	if f.embed != nil {
		return f.embed(inputs)
	}
	out := make([][]float32, len(inputs))
	for i := range inputs {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

func (f *fakeAI) EmbedModelName() string { return "fake-embed" }

func (f *fakeAI) GenerateText(ctx context.Context, system, user string) (string, error) {
	return "", fmt.Errorf("not scripted")
}

func (f *fakeAI) Transcribe(ctx context.Context, audio io.Reader, filename, mimeType string) (openai.Transcription, error) {
	return openai.Transcription{}, fmt.Errorf("not scripted")
}

var _ openai.Client = (*fakeAI)(nil)

type recordingBus struct {
	mu     sync.Mutex
	events []bus.Event
}

func (b *recordingBus) Publish(ctx context.Context, ev bus.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, ev)
	return nil
}

func (b *recordingBus) Close() error { return nil }

func (b *recordingBus) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

// --- service under test ------------------------------------------------

type fixture struct {
	svc     *Service
	docs    *fakeDocumentRepo
	chunks  *fakeChunkRepo
	quiz    *fakeQuizRepo
	logs    *fakeLogRepo
	jobRepo *fakeJobRepo
	bucket  *fakeBucket
	ai      *fakeAI
	bus     *recordingBus
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := testLogger(t)

	fx := &fixture{
		docs:    newFakeDocumentRepo(),
		chunks:  newFakeChunkRepo(),
		quiz:    newFakeQuizRepo(),
		logs:    &fakeLogRepo{},
		jobRepo: &fakeJobRepo{},
		bucket:  newFakeBucket(),
		ai:      newFakeAI(),
		bus:     &recordingBus{},
	}
	fx.svc = New(Deps{
		Log:       log,
		Documents: fx.docs,
		Chunks:    fx.chunks,
		Quiz:      fx.quiz,
		Logs:      fx.logs,
		Jobs:      jobs.NewStore(nil, log, fx.jobRepo),
		Bucket:    fx.bucket,
		AI:        fx.ai,
		Extractor: extractor.New(log, fx.bucket, nil, fx.ai, nil, nil, nil),
		Embedder:  embedding.New(log, fx.ai, embedding.WithRate(1000)),
		Storer:    storage.New(log, fx.chunks),
		Enricher:  enrichment.New(log, fx.ai),
		Bus:       fx.bus,
	})
	return fx
}

func (fx *fixture) seedDoc(t *testing.T, doc *types.Document) *types.Document {
	t.Helper()
	if _, err := fx.docs.Create(dbctx.Context{Ctx: context.Background()}, doc); err != nil {
		t.Fatalf("seed document: %v", err)
	}
	return doc
}

func readyDoc(slug string) *types.Document {
	return &types.Document{
		Slug:          slug,
		Title:         strings.ReplaceAll(slug, "-", " "),
		SourceKey:     "documents/" + slug + "/source.txt",
		SourceMime:    "text/plain",
		Status:        types.DocumentStatusReady,
		EmbedProvider: "openai",
		ChunkSize:     100,
		ChunkOverlap:  10,
		QuizCount:     2,
	}
}

// --- upload intake -----------------------------------------------------

func TestSlugify(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"Hello, World!", "hello-world"},
		{"  Intro to Sorting  ", "intro-to-sorting"},
		{"snake_case_name", "snake-case-name"},
		{"a//b..c", "a-b-c"},
		{"---", ""},
		{"Ünïcode Tïtle", "ncode-ttle"},
		{strings.Repeat("x", 80), strings.Repeat("x", 64)},
	}
	for _, c := range cases {
		if got := slugify(c.in); got != c.want {
			t.Fatalf("slugify(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestTitleFromFileName(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"my_great-doc.pdf", "my great doc"},
		{"/tmp/upload/lecture 3.mp3", "lecture 3"},
		{"", ""},
		{"...", ""},
	}
	for _, c := range cases {
		if got := titleFromFileName(c.in); got != c.want {
			t.Fatalf("titleFromFileName(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestNormalizeChunkParams(t *testing.T) {
	size, overlap, err := normalizeChunkParams(0, 0)
	if err != nil || size != defaultChunkSize || overlap != defaultChunkOverlap {
		t.Fatalf("defaults = (%d, %d, %v)", size, overlap, err)
	}
	if _, _, err := normalizeChunkParams(50, 0); !errors.Is(err, apperrors.ErrInvalidArgument) {
		t.Fatalf("undersized chunk accepted: %v", err)
	}
	if _, _, err := normalizeChunkParams(200, 200); !errors.Is(err, apperrors.ErrInvalidArgument) {
		t.Fatalf("overlap >= size accepted: %v", err)
	}
}

func TestCreateFromUploadStoresObjectAndQueuesJob(t *testing.T) {
	fx := newFixture(t)

	doc, job, err := fx.svc.CreateFromUpload(context.Background(), CreateFromUploadInput{
		Title:    "Intro to Sorting",
		FileName: "lecture.txt",
		MimeType: "text/plain",
		Size:     9,
		File:     strings.NewReader("some text"),
	})
	if err != nil {
		t.Fatalf("CreateFromUpload: %v", err)
	}
	if doc.Slug != "intro-to-sorting" || doc.Status != types.DocumentStatusUploaded {
		t.Fatalf("doc = %+v", doc)
	}
	if doc.ChunkSize != defaultChunkSize || doc.ChunkOverlap != defaultChunkOverlap || doc.QuizCount != defaultQuizCount {
		t.Fatalf("defaults not applied: %+v", doc)
	}
	if doc.EmbedProvider != ProviderOpenAI || doc.TranscribeProvider != ProviderOpenAI {
		t.Fatalf("providers = %s/%s", doc.EmbedProvider, doc.TranscribeProvider)
	}
	if !fx.bucket.has("documents/intro-to-sorting/source.txt") {
		t.Fatalf("source object missing; bucket = %+v", fx.bucket.objects)
	}

	if job == nil || job.JobType != types.JobTypeDocumentIngest {
		t.Fatalf("job = %+v", job)
	}
	if job.EntityType != jobs.EntityTypeDocument || job.EntityID == nil || *job.EntityID != doc.ID {
		t.Fatalf("job entity binding = %+v", job)
	}
	if !strings.Contains(string(job.Payload), doc.ID.String()) || !strings.Contains(string(job.Payload), "replace") {
		t.Fatalf("payload = %s", job.Payload)
	}

	if !fx.logs.has("upload", types.LogCompleted) {
		t.Fatalf("missing upload log entry")
	}
	if fx.bus.count() == 0 {
		t.Fatalf("no bus event published")
	}
}

func TestCreateFromUploadSuffixesTakenSlug(t *testing.T) {
	fx := newFixture(t)
	fx.seedDoc(t, readyDoc("intro-to-sorting"))

	doc, _, err := fx.svc.CreateFromUpload(context.Background(), CreateFromUploadInput{
		Title:    "Intro to Sorting",
		FileName: "again.txt",
		MimeType: "text/plain",
		File:     strings.NewReader("more text"),
	})
	if err != nil {
		t.Fatalf("CreateFromUpload: %v", err)
	}
	if doc.Slug != "intro-to-sorting-2" {
		t.Fatalf("slug = %q, want intro-to-sorting-2", doc.Slug)
	}
}

func TestCreateFromUploadTitleFallsBackToFileName(t *testing.T) {
	fx := newFixture(t)

	doc, _, err := fx.svc.CreateFromUpload(context.Background(), CreateFromUploadInput{
		FileName: "binary_search_trees.md",
		MimeType: "text/markdown",
		File:     strings.NewReader("# BSTs"),
	})
	if err != nil {
		t.Fatalf("CreateFromUpload: %v", err)
	}
	if doc.Title != "binary search trees" {
		t.Fatalf("title = %q", doc.Title)
	}
}

func TestCreateFromUploadRejectsBadInput(t *testing.T) {
	fx := newFixture(t)
	cases := []struct {
		name string
		in   CreateFromUploadInput
	}{
		{"no file", CreateFromUploadInput{Title: "t", MimeType: "text/plain"}},
		{"unsupported mime", CreateFromUploadInput{Title: "t", FileName: "a.zip", MimeType: "application/zip", File: strings.NewReader("x")}},
		{"bad quiz count", CreateFromUploadInput{Title: "t", FileName: "a.txt", MimeType: "text/plain", File: strings.NewReader("x"), QuizCount: 99}},
		{"bad transcriber", CreateFromUploadInput{Title: "t", FileName: "a.txt", MimeType: "text/plain", File: strings.NewReader("x"), TranscribeProvider: "whispercpp"}},
	}
	for _, c := range cases {
		if _, _, err := fx.svc.CreateFromUpload(context.Background(), c.in); !errors.Is(err, apperrors.ErrInvalidArgument) {
			t.Fatalf("%s: err = %v, want ErrInvalidArgument", c.name, err)
		}
	}
}

func TestReingest(t *testing.T) {
	fx := newFixture(t)
	doc := fx.seedDoc(t, readyDoc("algos"))

	_, job, err := fx.svc.Reingest(context.Background(), "algos", "add")
	if err != nil {
		t.Fatalf("Reingest: %v", err)
	}
	if job.JobType != types.JobTypeDocumentIngest || !strings.Contains(string(job.Payload), `"add"`) {
		t.Fatalf("job = %+v payload=%s", job, job.Payload)
	}
	if job.EntityID == nil || *job.EntityID != doc.ID {
		t.Fatalf("entity binding = %+v", job)
	}

	if _, _, err := fx.svc.Reingest(context.Background(), "algos", "upsert"); !errors.Is(err, apperrors.ErrInvalidArgument) {
		t.Fatalf("bad mode err = %v", err)
	}
	if _, _, err := fx.svc.Reingest(context.Background(), "missing", "replace"); !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("missing doc err = %v", err)
	}

	fx.jobRepo.runnable = true
	if _, _, err := fx.svc.Reingest(context.Background(), "algos", "replace"); !errors.Is(err, apperrors.ErrConflict) {
		t.Fatalf("busy doc err = %v", err)
	}
}

func TestRequestQuizRegenerate(t *testing.T) {
	fx := newFixture(t)
	doc := fx.seedDoc(t, readyDoc("graph-theory"))

	_, job, err := fx.svc.RequestQuizRegenerate(context.Background(), "graph-theory", 7)
	if err != nil {
		t.Fatalf("RequestQuizRegenerate: %v", err)
	}
	if job.JobType != types.JobTypeQuizRegenerate || !strings.Contains(string(job.Payload), doc.ID.String()) {
		t.Fatalf("job = %+v payload=%s", job, job.Payload)
	}

	processing := readyDoc("still-cooking")
	processing.Status = types.DocumentStatusProcessing
	fx.seedDoc(t, processing)
	if _, _, err := fx.svc.RequestQuizRegenerate(context.Background(), "still-cooking", 0); !errors.Is(err, apperrors.ErrConflict) {
		t.Fatalf("non-ready doc err = %v", err)
	}

	fx.jobRepo.runnable = true
	if _, _, err := fx.svc.RequestQuizRegenerate(context.Background(), "graph-theory", 0); !errors.Is(err, apperrors.ErrConflict) {
		t.Fatalf("busy doc err = %v", err)
	}
}
