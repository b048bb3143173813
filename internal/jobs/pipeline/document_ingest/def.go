package document_ingest

import (
	documentsmod "github.com/yungbote/docbridge-backend/internal/modules/documents"
	"github.com/yungbote/docbridge-backend/internal/platform/logger"
)

type Pipeline struct {
	log  *logger.Logger
	docs *documentsmod.Service
}

func New(baseLog *logger.Logger, docs *documentsmod.Service) *Pipeline {
	return &Pipeline{
		log:  baseLog.With("job", "document_ingest"),
		docs: docs,
	}
}

func (p *Pipeline) Type() string { return "document_ingest" }
