package jobs

import (
	"context"
	"os"
	"strconv"
	"time"

	"gorm.io/gorm"

	jobsrepo "github.com/yungbote/docbridge-backend/internal/data/repos/jobs"
	"github.com/yungbote/docbridge-backend/internal/jobs/runtime"
	"github.com/yungbote/docbridge-backend/internal/observability"
	"github.com/yungbote/docbridge-backend/internal/pkg/dbctx"
	"github.com/yungbote/docbridge-backend/internal/platform/logger"
)

// RunnablePolicy bounds how a job_run row becomes claimable again: failed rows
// retry up to MaxAttempts with RetryDelay between attempts, and running rows
// whose heartbeat is older than StaleRunning are treated as abandoned leases.
type RunnablePolicy struct {
	MaxAttempts  int
	RetryDelay   time.Duration
	StaleRunning time.Duration
}

func (p RunnablePolicy) withDefaults() RunnablePolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 5
	}
	if p.RetryDelay <= 0 {
		p.RetryDelay = 30 * time.Second
	}
	if p.StaleRunning <= 0 {
		p.StaleRunning = 2 * time.Minute
	}
	return p
}

// Worker drives the claim loop: poll, claim one runnable row under SKIP
// LOCKED, dispatch to the registered handler. Handlers own their terminal
// transitions; the worker only covers dispatch failures and panics.
type Worker struct {
	db       *gorm.DB
	log      *logger.Logger
	repo     jobsrepo.JobRunRepo
	registry *runtime.Registry

	policy       RunnablePolicy
	pollInterval time.Duration
}

func NewWorker(db *gorm.DB, baseLog *logger.Logger, repo jobsrepo.JobRunRepo, registry *runtime.Registry) *Worker {
	return &Worker{
		db:           db,
		log:          baseLog.With("component", "JobWorker"),
		repo:         repo,
		registry:     registry,
		policy:       RunnablePolicy{}.withDefaults(),
		pollInterval: time.Second,
	}
}

// Start launches the claim loops and returns. Loops exit when ctx is
// canceled; an in-flight handler finishes its current job first.
func (w *Worker) Start(ctx context.Context) {
	concurrency := getEnvInt("WORKER_CONCURRENCY", 1)
	if concurrency < 1 {
		concurrency = 1
	}
	w.log.Info("Starting job worker pool", "concurrency", concurrency,
		"max_attempts", w.policy.MaxAttempts,
		"retry_delay", w.policy.RetryDelay.String(),
		"stale_running", w.policy.StaleRunning.String(),
	)

	for i := 0; i < concurrency; i++ {
		workerID := i + 1
		go w.runLoop(ctx, workerID)
	}
}

func (w *Worker) runLoop(ctx context.Context, workerID int) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info("Worker loop stopped", "worker_id", workerID)
			return
		case <-ticker.C:
			job, err := w.repo.ClaimNextRunnable(dbctx.Context{Ctx: ctx}, w.policy.MaxAttempts, w.policy.RetryDelay, w.policy.StaleRunning)
			if err != nil {
				w.log.Warn("ClaimNextRunnable failed", "worker_id", workerID, "error", err)
				continue
			}
			if job == nil {
				continue
			}
			w.dispatch(ctx, workerID, runtime.NewContext(ctx, w.db, job, w.repo))
		}
	}
}

func (w *Worker) dispatch(ctx context.Context, workerID int, jc *runtime.Context) {
	job := jc.Job
	h, ok := w.registry.Get(job.JobType)
	if !ok {
		w.log.Warn("No handler registered for job_type",
			"worker_id", workerID,
			"job_type", job.JobType,
			"job_id", job.ID,
		)
		jc.Fail("dispatch", &missingHandlerError{JobType: job.JobType})
		observability.Current().ObserveJob(job.Status)
		return
	}

	func() {
		defer func() {
			if r := recover(); r != nil {
				w.log.Error("Job handler panic",
					"worker_id", workerID,
					"job_id", job.ID,
					"job_type", job.JobType,
					"panic", r,
				)
				jc.Fail("panic", &panicError{Val: r})
			}
		}()

		if runErr := h.Run(jc); runErr != nil {
			// Handlers normally call jc.Fail themselves; this is a safety net.
			jc.Fail("run", runErr)
		}
	}()

	observability.Current().ObserveJob(job.Status)
}

type missingHandlerError struct{ JobType string }

func (e *missingHandlerError) Error() string {
	return "no handler registered for job_type=" + e.JobType
}

type panicError struct{ Val any }

func (e *panicError) Error() string { return "panic: unexpected error" }

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}
