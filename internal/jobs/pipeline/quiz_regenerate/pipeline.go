package quiz_regenerate

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	jobrt "github.com/yungbote/docbridge-backend/internal/jobs/runtime"
	documentsmod "github.com/yungbote/docbridge-backend/internal/modules/documents"
)

func (p *Pipeline) Run(jc *jobrt.Context) error {
	if jc == nil || jc.Job == nil {
		return nil
	}
	docID, ok := jc.PayloadUUID("document_id")
	if !ok || docID == uuid.Nil {
		jc.Fail("validate", fmt.Errorf("missing document_id"))
		return nil
	}
	count, _ := jc.PayloadInt("question_count")
	if count < 0 {
		jc.Fail("validate", fmt.Errorf("question_count %d is negative", count))
		return nil
	}

	jobTimeoutMin := getEnvInt("QUIZ_JOB_TIMEOUT_MINUTES", 10)
	jobCtx := jc.Ctx
	cancelJob := func() {}
	if jobTimeoutMin > 0 {
		jobCtx, cancelJob = context.WithTimeout(jc.Ctx, time.Duration(jobTimeoutMin)*time.Minute)
	}
	defer cancelJob()

	stopHeartbeats := jc.StartHeartbeats(0)
	defer stopHeartbeats()

	jc.Progress("quiz", 2)
	out, err := p.docs.RegenerateQuiz(jobCtx, docID, documentsmod.QuizRegenerateOptions{
		QuestionCount: count,
		Report: func(stage string, pct int, message string) {
			_ = message
			jc.Progress(stage, pct)
		},
	})
	stopHeartbeats()
	if err != nil {
		jc.Fail("quiz", err)
		return nil
	}

	jc.Succeed("done", out)
	return nil
}

func getEnvInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}
