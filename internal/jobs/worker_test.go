package jobs

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	types "github.com/yungbote/docbridge-backend/internal/domain"
	"github.com/yungbote/docbridge-backend/internal/jobs/runtime"
	"github.com/yungbote/docbridge-backend/internal/pkg/dbctx"
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

// fakeJobRepo hands out queued jobs one at a time and records terminal
// updates keyed by job id.
type fakeJobRepo struct {
	mu      sync.Mutex
	queue   []*types.JobRun
	created []*types.JobRun
	updates map[uuid.UUID][]map[string]interface{}
}

func newFakeJobRepo(queue ...*types.JobRun) *fakeJobRepo {
	return &fakeJobRepo{
		queue:   queue,
		updates: map[uuid.UUID][]map[string]interface{}{},
	}
}

func (f *fakeJobRepo) Create(dbc dbctx.Context, jobs []*types.JobRun) ([]*types.JobRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, jobs...)
	return jobs, nil
}

func (f *fakeJobRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.JobRun, error) {
	return nil, nil
}

func (f *fakeJobRepo) GetLatestByEntity(dbc dbctx.Context, entityType string, entityID uuid.UUID, jobType string) (*types.JobRun, error) {
	return nil, nil
}

func (f *fakeJobRepo) ClaimNextRunnable(dbc dbctx.Context, maxAttempts int, retryDelay, staleRunning time.Duration) (*types.JobRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.queue) == 0 {
		return nil, nil
	}
	job := f.queue[0]
	f.queue = f.queue[1:]
	job.Status = types.JobStatusRunning
	job.Attempts++
	return job, nil
}

func (f *fakeJobRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates[id] = append(f.updates[id], updates)
	return nil
}

func (f *fakeJobRepo) UpdateFieldsUnlessStatus(dbc dbctx.Context, id uuid.UUID, disallowed []string, updates map[string]interface{}) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates[id] = append(f.updates[id], updates)
	return true, nil
}

func (f *fakeJobRepo) Heartbeat(dbc dbctx.Context, id uuid.UUID) error { return nil }

func (f *fakeJobRepo) ExistsRunnable(dbc dbctx.Context, jobType string, entityType string, entityID *uuid.UUID) (bool, error) {
	return false, nil
}

func (f *fakeJobRepo) lastUpdateFor(id uuid.UUID) map[string]interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	ups := f.updates[id]
	if len(ups) == 0 {
		return nil
	}
	return ups[len(ups)-1]
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not reached in time")
}

type recordingHandler struct {
	jobType string
	mu      sync.Mutex
	ran     []uuid.UUID
	run     func(jc *runtime.Context) error
}

func (h *recordingHandler) Type() string { return h.jobType }

func (h *recordingHandler) Run(jc *runtime.Context) error {
	h.mu.Lock()
	h.ran = append(h.ran, jc.Job.ID)
	h.mu.Unlock()
	if h.run != nil {
		return h.run(jc)
	}
	jc.Succeed("done", nil)
	return nil
}

func (h *recordingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.ran)
}

func queuedJob(jobType string) *types.JobRun {
	return &types.JobRun{ID: uuid.New(), JobType: jobType, Status: types.JobStatusQueued}
}

func startTestWorker(t *testing.T, repo *fakeJobRepo, handlers ...runtime.Handler) context.CancelFunc {
	t.Helper()
	t.Setenv("WORKER_CONCURRENCY", "1")
	registry := runtime.NewRegistry()
	for _, h := range handlers {
		if err := registry.Register(h); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}
	w := NewWorker(nil, testLogger(t), repo, registry)
	w.pollInterval = 5 * time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	w.Start(ctx)
	return cancel
}

func TestWorkerDispatchesClaimedJob(t *testing.T) {
	job := queuedJob(types.JobTypeDocumentIngest)
	repo := newFakeJobRepo(job)
	h := &recordingHandler{jobType: types.JobTypeDocumentIngest}

	cancel := startTestWorker(t, repo, h)
	defer cancel()

	waitFor(t, func() bool { return h.count() == 1 })
	waitFor(t, func() bool { return repo.lastUpdateFor(job.ID) != nil })

	up := repo.lastUpdateFor(job.ID)
	if up["status"] != types.JobStatusSucceeded {
		t.Fatalf("job status = %v, want succeeded", up["status"])
	}
}

func TestWorkerFailsUnknownJobType(t *testing.T) {
	job := queuedJob("no_such_job")
	repo := newFakeJobRepo(job)

	cancel := startTestWorker(t, repo, &recordingHandler{jobType: types.JobTypeDocumentIngest})
	defer cancel()

	waitFor(t, func() bool { return repo.lastUpdateFor(job.ID) != nil })

	up := repo.lastUpdateFor(job.ID)
	if up["status"] != types.JobStatusFailed {
		t.Fatalf("job status = %v, want failed", up["status"])
	}
	if up["stage"] != "dispatch" {
		t.Fatalf("job stage = %v, want dispatch", up["stage"])
	}
}

func TestWorkerRecoversFromPanicAndKeepsClaiming(t *testing.T) {
	bad := queuedJob(types.JobTypeDocumentIngest)
	good := queuedJob(types.JobTypeDocumentIngest)
	repo := newFakeJobRepo(bad, good)

	calls := 0
	var mu sync.Mutex
	h := &recordingHandler{
		jobType: types.JobTypeDocumentIngest,
		run: func(jc *runtime.Context) error {
			mu.Lock()
			calls++
			first := calls == 1
			mu.Unlock()
			if first {
				panic("exploded")
			}
			jc.Succeed("done", nil)
			return nil
		},
	}

	cancel := startTestWorker(t, repo, h)
	defer cancel()

	waitFor(t, func() bool { return h.count() == 2 })
	waitFor(t, func() bool { return repo.lastUpdateFor(good.ID) != nil })

	badUp := repo.lastUpdateFor(bad.ID)
	if badUp["status"] != types.JobStatusFailed || badUp["stage"] != "panic" {
		t.Fatalf("panicked job update = %v", badUp)
	}
	goodUp := repo.lastUpdateFor(good.ID)
	if goodUp["status"] != types.JobStatusSucceeded {
		t.Fatalf("worker should survive a panic and run the next job, got %v", goodUp)
	}
}

func TestWorkerTurnsHandlerErrorIntoFailure(t *testing.T) {
	job := queuedJob(types.JobTypeDocumentIngest)
	repo := newFakeJobRepo(job)
	h := &recordingHandler{
		jobType: types.JobTypeDocumentIngest,
		run:     func(jc *runtime.Context) error { return errStr("handler blew up") },
	}

	cancel := startTestWorker(t, repo, h)
	defer cancel()

	waitFor(t, func() bool { return repo.lastUpdateFor(job.ID) != nil })

	up := repo.lastUpdateFor(job.ID)
	if up["status"] != types.JobStatusFailed || up["stage"] != "run" {
		t.Fatalf("unhandled error should fail at stage run, got %v", up)
	}
}

func TestEnqueueDefaults(t *testing.T) {
	repo := newFakeJobRepo()
	store := NewStore(nil, testLogger(t), repo)

	job, err := store.Enqueue(dbctx.Context{Ctx: context.Background()}, &types.JobRun{JobType: types.JobTypeDocumentIngest})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if job.ID == uuid.Nil {
		t.Fatalf("Enqueue should assign an id")
	}
	if job.Status != types.JobStatusQueued || job.Stage != "queued" {
		t.Fatalf("defaults = status %q stage %q", job.Status, job.Stage)
	}
	if len(job.Payload) == 0 {
		t.Fatalf("payload should default to an empty object")
	}
	if job.CreatedAt.IsZero() || job.UpdatedAt.IsZero() {
		t.Fatalf("timestamps should be set")
	}

	if _, err := store.Enqueue(dbctx.Context{Ctx: context.Background()}, &types.JobRun{}); err == nil {
		t.Fatalf("Enqueue without job_type should fail")
	}
}

func TestEnqueueDocumentIngestPayload(t *testing.T) {
	repo := newFakeJobRepo()
	store := NewStore(nil, testLogger(t), repo)
	docID := uuid.New()

	job, err := store.EnqueueDocumentIngest(dbctx.Context{Ctx: context.Background()}, docID, "add")
	if err != nil {
		t.Fatalf("EnqueueDocumentIngest: %v", err)
	}
	if job.JobType != types.JobTypeDocumentIngest {
		t.Fatalf("job type = %q", job.JobType)
	}
	if job.EntityType != EntityTypeDocument || job.EntityID == nil || *job.EntityID != docID {
		t.Fatalf("entity binding = %q %v", job.EntityType, job.EntityID)
	}

	var payload map[string]any
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		t.Fatalf("payload not JSON: %v", err)
	}
	if payload["document_id"] != docID.String() || payload["mode"] != "add" {
		t.Fatalf("payload = %v", payload)
	}

	if _, err := store.EnqueueDocumentIngest(dbctx.Context{Ctx: context.Background()}, uuid.Nil, "replace"); err == nil {
		t.Fatalf("nil document id should fail")
	}
}

type errStr string

func (e errStr) Error() string { return string(e) }
