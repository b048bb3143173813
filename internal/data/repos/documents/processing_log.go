package documents

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/docbridge-backend/internal/domain"
	"github.com/yungbote/docbridge-backend/internal/pkg/dbctx"
	"github.com/yungbote/docbridge-backend/internal/platform/logger"
)

type ProcessingLogRepo interface {
	Append(dbc dbctx.Context, entry *types.ProcessingLogEntry) error
	ListByDocumentID(dbc dbctx.Context, docID uuid.UUID, limit int) ([]*types.ProcessingLogEntry, error)
}

type processingLogRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewProcessingLogRepo(db *gorm.DB, baseLog *logger.Logger) ProcessingLogRepo {
	return &processingLogRepo{
		db:  db,
		log: baseLog.With("repo", "ProcessingLogRepo"),
	}
}

func (r *processingLogRepo) Append(dbc dbctx.Context, entry *types.ProcessingLogEntry) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if entry == nil {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).Create(entry).Error
}

func (r *processingLogRepo) ListByDocumentID(dbc dbctx.Context, docID uuid.UUID, limit int) ([]*types.ProcessingLogEntry, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if docID == uuid.Nil {
		return nil, nil
	}
	if limit <= 0 || limit > 2000 {
		limit = 500
	}
	var out []*types.ProcessingLogEntry
	err := transaction.WithContext(dbc.Ctx).
		Where("document_id = ?", docID).
		Order("created_at ASC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}
