package document_ingest

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
	mode := jc.PayloadString("mode")

	jobTimeoutMin := getEnvInt("INGEST_JOB_TIMEOUT_MINUTES", 60)
	jobCtx := jc.Ctx
	cancelJob := func() {}
	if jobTimeoutMin > 0 {
		jobCtx, cancelJob = context.WithTimeout(jc.Ctx, time.Duration(jobTimeoutMin)*time.Minute)
	}
	defer cancelJob()

	stopHeartbeats := jc.StartHeartbeats(0)
	defer stopHeartbeats()

	jc.Progress("ingest", 2)
	out, err := p.docs.RunIngest(jobCtx, docID, documentsmod.IngestOptions{
		Mode: mode,
		Report: func(stage string, pct int, message string) {
			_ = message // stage messages live in the processing log
			jc.Progress(stage, pct)
		},
	})
	stopHeartbeats()
	if err != nil {
		jc.Fail("ingest", err)
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
