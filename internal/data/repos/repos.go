package repos

import (
	"gorm.io/gorm"

	"github.com/yungbote/docbridge-backend/internal/data/repos/documents"
	"github.com/yungbote/docbridge-backend/internal/data/repos/jobs"
	"github.com/yungbote/docbridge-backend/internal/platform/logger"
)

type DocumentRepo = documents.DocumentRepo
type DocumentChunkRepo = documents.DocumentChunkRepo
type QuizQuestionRepo = documents.QuizQuestionRepo
type ProcessingLogRepo = documents.ProcessingLogRepo
type JobRunRepo = jobs.JobRunRepo

// Repos bundles every repository over the one shared *gorm.DB.
type Repos struct {
	Document      DocumentRepo
	DocumentChunk DocumentChunkRepo
	QuizQuestion  QuizQuestionRepo
	ProcessingLog ProcessingLogRepo
	JobRun        JobRunRepo
}

func New(db *gorm.DB, baseLog *logger.Logger) *Repos {
	return &Repos{
		Document:      documents.NewDocumentRepo(db, baseLog),
		DocumentChunk: documents.NewDocumentChunkRepo(db, baseLog),
		QuizQuestion:  documents.NewQuizQuestionRepo(db, baseLog),
		ProcessingLog: documents.NewProcessingLogRepo(db, baseLog),
		JobRun:        jobs.NewJobRunRepo(db, baseLog),
	}
}
