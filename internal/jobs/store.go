package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	jobsrepo "github.com/yungbote/docbridge-backend/internal/data/repos/jobs"
	types "github.com/yungbote/docbridge-backend/internal/domain"
	"github.com/yungbote/docbridge-backend/internal/pkg/dbctx"
	"github.com/yungbote/docbridge-backend/internal/platform/logger"
)

const EntityTypeDocument = "document"

// Store enqueues job_run rows and answers dedupe queries. Claiming and state
// transitions live in the worker and runtime packages.
type Store struct {
	db   *gorm.DB
	log  *logger.Logger
	repo jobsrepo.JobRunRepo
}

func NewStore(db *gorm.DB, baseLog *logger.Logger, repo jobsrepo.JobRunRepo) *Store {
	return &Store{
		db:   db,
		log:  baseLog.With("component", "JobStore"),
		repo: repo,
	}
}

// Enqueue fills defaults and inserts the row. Payload values must be
// JSON-marshalable; uuid values should already be strings.
func (s *Store) Enqueue(dbc dbctx.Context, job *types.JobRun) (*types.JobRun, error) {
	if job == nil {
		return nil, fmt.Errorf("nil job")
	}
	if job.JobType == "" {
		return nil, fmt.Errorf("job_type required")
	}
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.Status == "" {
		job.Status = types.JobStatusQueued
	}
	if job.Stage == "" {
		job.Stage = "queued"
	}
	if job.Payload == nil {
		job.Payload = datatypes.JSON([]byte(`{}`))
	}
	now := time.Now()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now

	created, err := s.repo.Create(dbc, []*types.JobRun{job})
	if err != nil {
		return nil, err
	}
	if len(created) == 0 || created[0] == nil {
		return nil, fmt.Errorf("failed to enqueue job")
	}
	return created[0], nil
}

// EnqueueDocumentIngest queues one ingestion run for a document. mode is
// "replace" or "add"; the handler defaults empty to replace.
func (s *Store) EnqueueDocumentIngest(dbc dbctx.Context, docID uuid.UUID, mode string) (*types.JobRun, error) {
	if docID == uuid.Nil {
		return nil, fmt.Errorf("document id required")
	}
	payload, err := json.Marshal(map[string]any{
		"document_id": docID.String(),
		"mode":        mode,
	})
	if err != nil {
		return nil, err
	}
	id := docID
	return s.Enqueue(dbc, &types.JobRun{
		JobType:    types.JobTypeDocumentIngest,
		EntityType: EntityTypeDocument,
		EntityID:   &id,
		Payload:    datatypes.JSON(payload),
	})
}

// EnqueueQuizRegenerate queues a quiz rebuild over the document's stored
// chunks.
func (s *Store) EnqueueQuizRegenerate(dbc dbctx.Context, docID uuid.UUID, count int) (*types.JobRun, error) {
	if docID == uuid.Nil {
		return nil, fmt.Errorf("document id required")
	}
	payload, err := json.Marshal(map[string]any{
		"document_id":    docID.String(),
		"question_count": count,
	})
	if err != nil {
		return nil, err
	}
	id := docID
	return s.Enqueue(dbc, &types.JobRun{
		JobType:    types.JobTypeQuizRegenerate,
		EntityType: EntityTypeDocument,
		EntityID:   &id,
		Payload:    datatypes.JSON(payload),
	})
}

// HasRunnableForDocument reports whether a queued or running job of the given
// type already targets the document. Callers use it to refuse duplicate
// enqueues rather than stack work.
func (s *Store) HasRunnableForDocument(dbc dbctx.Context, jobType string, docID uuid.UUID) (bool, error) {
	if docID == uuid.Nil {
		return false, nil
	}
	return s.repo.ExistsRunnable(dbc, jobType, EntityTypeDocument, &docID)
}

// LatestForDocument returns the most recent job row of the given type for the
// document, or nil.
func (s *Store) LatestForDocument(dbc dbctx.Context, jobType string, docID uuid.UUID) (*types.JobRun, error) {
	return s.repo.GetLatestByEntity(dbc, EntityTypeDocument, docID, jobType)
}
