package documents

import (
	"context"

	"gorm.io/gorm"

	documentsrepo "github.com/yungbote/docbridge-backend/internal/data/repos/documents"
	"github.com/yungbote/docbridge-backend/internal/enrichment"
	"github.com/yungbote/docbridge-backend/internal/ingestion/embedding"
	"github.com/yungbote/docbridge-backend/internal/ingestion/extractor"
	"github.com/yungbote/docbridge-backend/internal/ingestion/storage"
	"github.com/yungbote/docbridge-backend/internal/jobs"
	"github.com/yungbote/docbridge-backend/internal/platform/gcp"
	"github.com/yungbote/docbridge-backend/internal/platform/logger"
	"github.com/yungbote/docbridge-backend/internal/platform/neo4jdb"
	"github.com/yungbote/docbridge-backend/internal/platform/openai"
	"github.com/yungbote/docbridge-backend/internal/realtime/bus"
)

// CoverRenderer draws the placeholder cover image for a new document.
type CoverRenderer interface {
	Render(ctx context.Context, title string) ([]byte, error)
}

// Deps carries everything the documents module needs. Graph and Covers are
// optional; a nil graph skips projection and a nil renderer skips covers.
type Deps struct {
	DB  *gorm.DB
	Log *logger.Logger

	Documents documentsrepo.DocumentRepo
	Chunks    documentsrepo.DocumentChunkRepo
	Quiz      documentsrepo.QuizQuestionRepo
	Logs      documentsrepo.ProcessingLogRepo

	Jobs   *jobs.Store
	Bucket gcp.BucketService
	AI     openai.Client

	Extractor *extractor.Extractor
	Embedder  *embedding.Generator
	Storer    *storage.Store
	Enricher  *enrichment.Generator

	Bus    bus.Bus
	Graph  *neo4jdb.Client
	Covers CoverRenderer
}

// Service is the document module facade: upload intake, the ingestion
// pipeline the job worker drives, and the read-side queries the HTTP layer
// exposes.
type Service struct {
	db  *gorm.DB
	log *logger.Logger

	documents documentsrepo.DocumentRepo
	chunks    documentsrepo.DocumentChunkRepo
	quiz      documentsrepo.QuizQuestionRepo
	logs      documentsrepo.ProcessingLogRepo

	jobs   *jobs.Store
	bucket gcp.BucketService
	ai     openai.Client

	extractor *extractor.Extractor
	embedder  *embedding.Generator
	storer    *storage.Store
	enricher  *enrichment.Generator

	bus    bus.Bus
	graph  *neo4jdb.Client
	covers CoverRenderer
}

func New(d Deps) *Service {
	b := d.Bus
	if b == nil {
		b = bus.NopBus{}
	}
	return &Service{
		db:        d.DB,
		log:       d.Log.With("module", "documents"),
		documents: d.Documents,
		chunks:    d.Chunks,
		quiz:      d.Quiz,
		logs:      d.Logs,
		jobs:      d.Jobs,
		bucket:    d.Bucket,
		ai:        d.AI,
		extractor: d.Extractor,
		embedder:  d.Embedder,
		storer:    d.Storer,
		enricher:  d.Enricher,
		bus:       b,
		graph:     d.Graph,
		covers:    d.Covers,
	}
}
