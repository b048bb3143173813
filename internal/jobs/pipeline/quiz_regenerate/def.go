package quiz_regenerate

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
		log:  baseLog.With("job", "quiz_regenerate"),
		docs: docs,
	}
}

func (p *Pipeline) Type() string { return "quiz_regenerate" }
