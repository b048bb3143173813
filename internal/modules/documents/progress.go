package documents

import (
	"context"
	"encoding/json"
	"time"

	"gorm.io/datatypes"

	types "github.com/yungbote/docbridge-backend/internal/domain"
	"github.com/yungbote/docbridge-backend/internal/observability"
	"github.com/yungbote/docbridge-backend/internal/pkg/dbctx"
	"github.com/yungbote/docbridge-backend/internal/realtime/bus"
)

// Report receives non-persisted progress callbacks so a job handler can
// mirror pipeline progress onto its job_run row.
type Report func(stage string, pct int, msg string)

// stageReporter fans one pipeline event out to its three sinks: the
// append-only processing_log, the realtime bus, and the job-side callback.
// Log and bus writes are best-effort; a telemetry failure never stops
// ingestion.
type stageReporter struct {
	svc     *Service
	doc     *types.Document
	jobType string
	report  Report
}

func (s *Service) newReporter(doc *types.Document, jobType string, report Report) *stageReporter {
	return &stageReporter{svc: s, doc: doc, jobType: jobType, report: report}
}

func (r *stageReporter) started(ctx context.Context, stage, msg string, pct int) {
	r.emit(ctx, stage, types.LogStarted, msg, pct, nil)
}

func (r *stageReporter) progress(ctx context.Context, stage, msg string, pct int, meta map[string]any) {
	r.emit(ctx, stage, types.LogProgress, msg, pct, meta)
}

func (r *stageReporter) completed(ctx context.Context, stage, msg string, pct int, meta map[string]any) {
	r.emit(ctx, stage, types.LogCompleted, msg, pct, meta)
}

func (r *stageReporter) failed(ctx context.Context, stage string, err error, pct int) {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	r.emit(ctx, stage, types.LogFailed, msg, pct, nil)
}

func (r *stageReporter) emit(ctx context.Context, stage, status, msg string, pct int, meta map[string]any) {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	now := time.Now()

	entry := &types.ProcessingLogEntry{
		DocumentID: r.doc.ID,
		Stage:      stage,
		Status:     status,
		Message:    msg,
		Progress:   types.PtrInt(pct),
		CreatedAt:  now,
	}
	if len(meta) > 0 {
		if b, err := json.Marshal(meta); err == nil {
			entry.Meta = datatypes.JSON(b)
		}
	}
	if err := r.svc.logs.Append(dbctx.Context{Ctx: ctx}, entry); err != nil {
		r.svc.log.Warn("processing_log append failed",
			"slug", r.doc.Slug, "stage", stage, "status", status, "error", err)
	}

	ev := bus.Event{
		Channel:  bus.DocumentChannel(r.doc.Slug),
		Stage:    stage,
		Status:   status,
		Message:  msg,
		Progress: types.PtrInt(pct),
		At:       now,
	}
	if len(meta) > 0 {
		ev.Data = meta
	}
	if err := r.svc.bus.Publish(ctx, ev); err != nil {
		r.svc.log.Warn("progress publish failed",
			"slug", r.doc.Slug, "stage", stage, "status", status, "error", err)
	}

	if r.report != nil {
		r.report(stage, pct, msg)
	}
}

// observe records stage duration and outcome; began is when the stage
// started.
func (r *stageReporter) observe(stage, status string, began time.Time) {
	observability.Current().ObserveIngestStage(r.jobType, stage, status, time.Since(began))
}
