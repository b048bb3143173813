package quiz_regenerate

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	types "github.com/yungbote/docbridge-backend/internal/domain"
	jobrt "github.com/yungbote/docbridge-backend/internal/jobs/runtime"
	"github.com/yungbote/docbridge-backend/internal/platform/logger"
)

func testPipeline(t *testing.T) *Pipeline {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	return New(log, nil)
}

func TestTypeMatchesEnqueuedJobType(t *testing.T) {
	if p := testPipeline(t); p.Type() != types.JobTypeQuizRegenerate {
		t.Fatalf("Type() = %q, want %q", p.Type(), types.JobTypeQuizRegenerate)
	}
}

func TestRunValidatesPayload(t *testing.T) {
	cases := []struct {
		name    string
		payload string
	}{
		{"missing document_id", `{"question_count":5}`},
		{"negative count", fmt.Sprintf(`{"document_id":%q,"question_count":-1}`, uuid.NewString())},
	}
	for _, c := range cases {
		job := &types.JobRun{
			ID:      uuid.New(),
			JobType: types.JobTypeQuizRegenerate,
			Status:  types.JobStatusRunning,
			Payload: datatypes.JSON(c.payload),
		}
		jc := jobrt.NewContext(context.Background(), nil, job, nil)
		if err := testPipeline(t).Run(jc); err != nil {
			t.Fatalf("%s: Run: %v", c.name, err)
		}
		if job.Status != types.JobStatusFailed || job.Stage != "validate" {
			t.Fatalf("%s: job = %s/%s, want failed/validate", c.name, job.Status, job.Stage)
		}
	}
}
