package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/docbridge-backend/internal/enrichment"
	"github.com/yungbote/docbridge-backend/internal/ingestion/embedding"
	"github.com/yungbote/docbridge-backend/internal/ingestion/extractor"
	"github.com/yungbote/docbridge-backend/internal/ingestion/storage"
	"github.com/yungbote/docbridge-backend/internal/jobs"
	"github.com/yungbote/docbridge-backend/internal/jobs/pipeline/document_ingest"
	"github.com/yungbote/docbridge-backend/internal/jobs/pipeline/quiz_regenerate"
	jobruntime "github.com/yungbote/docbridge-backend/internal/jobs/runtime"
	documentsmod "github.com/yungbote/docbridge-backend/internal/modules/documents"
	"github.com/yungbote/docbridge-backend/internal/platform/logger"
	coversvc "github.com/yungbote/docbridge-backend/internal/services"
)

type Services struct {
	Documents *documentsmod.Service
	Jobs      *jobs.Store
	Enricher  *enrichment.Generator
	Covers    coversvc.CoverService

	JobRegistry *jobruntime.Registry
	JobWorker   *jobs.Worker
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, reposet Repos, clients Clients) (Services, error) {
	log.Info("Wiring services...")

	extract := extractor.New(
		log,
		clients.Bucket,
		clients.Media,
		clients.OpenAI,
		clients.DocAI,
		clients.Vision,
		clients.Speech,
	)
	embedder := embedding.New(log, clients.OpenAI)
	storer := storage.New(log, reposet.DocumentChunk)
	enricher := enrichment.New(log, clients.OpenAI)
	jobStore := jobs.NewStore(db, log, reposet.JobRun)

	covers, err := coversvc.NewCoverService(log)
	if err != nil {
		log.Warn("cover renderer init failed (covers disabled)", "error", err)
		covers = nil
	}

	docs := documentsmod.New(documentsmod.Deps{
		DB:  db,
		Log: log,

		Documents: reposet.Document,
		Chunks:    reposet.DocumentChunk,
		Quiz:      reposet.QuizQuestion,
		Logs:      reposet.ProcessingLog,

		Jobs:   jobStore,
		Bucket: clients.Bucket,
		AI:     clients.OpenAI,

		Extractor: extract,
		Embedder:  embedder,
		Storer:    storer,
		Enricher:  enricher,

		Bus:    clients.Bus,
		Graph:  clients.Neo4j,
		Covers: covers,
	})

	jobRegistry := jobruntime.NewRegistry()
	if err := jobRegistry.Register(document_ingest.New(log, docs)); err != nil {
		return Services{}, err
	}
	if err := jobRegistry.Register(quiz_regenerate.New(log, docs)); err != nil {
		return Services{}, err
	}

	worker := jobs.NewWorker(db, log, reposet.JobRun, jobRegistry)

	return Services{
		Documents:   docs,
		Jobs:        jobStore,
		Enricher:    enricher,
		Covers:      covers,
		JobRegistry: jobRegistry,
		JobWorker:   worker,
	}, nil
}
