package document_ingest

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	types "github.com/yungbote/docbridge-backend/internal/domain"
	jobrt "github.com/yungbote/docbridge-backend/internal/jobs/runtime"
	"github.com/yungbote/docbridge-backend/internal/platform/logger"
)

func TestTypeMatchesEnqueuedJobType(t *testing.T) {
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	p := New(log, nil)
	if p.Type() != types.JobTypeDocumentIngest {
		t.Fatalf("Type() = %q, want %q", p.Type(), types.JobTypeDocumentIngest)
	}
}

func TestRunFailsValidationWithoutDocumentID(t *testing.T) {
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	p := New(log, nil)

	job := &types.JobRun{
		ID:      uuid.New(),
		JobType: types.JobTypeDocumentIngest,
		Status:  types.JobStatusRunning,
		Payload: datatypes.JSON(`{"mode":"replace"}`),
	}
	jc := jobrt.NewContext(context.Background(), nil, job, nil)

	if err := p.Run(jc); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if job.Status != types.JobStatusFailed || job.Stage != "validate" {
		t.Fatalf("job = %s/%s, want failed/validate", job.Status, job.Stage)
	}
}
