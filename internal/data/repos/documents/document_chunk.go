package documents

import (
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/docbridge-backend/internal/domain"
	"github.com/yungbote/docbridge-backend/internal/pkg/dbctx"
	"github.com/yungbote/docbridge-backend/internal/platform/logger"
)

type DocumentChunkRepo interface {
	CreateBatch(dbc dbctx.Context, chunks []*types.DocumentChunk) error
	GetBySlug(dbc dbctx.Context, slug string, limit, offset int) ([]*types.DocumentChunk, error)
	GetByDocumentID(dbc dbctx.Context, docID uuid.UUID) ([]*types.DocumentChunk, error)
	ListEmbedded(dbc dbctx.Context, limit int) ([]*types.DocumentChunk, error)
	DeleteBySlug(dbc dbctx.Context, slug string) (int64, error)
	CountBySlug(dbc dbctx.Context, slug string) (int64, error)
	// MaxIndexBySlug returns -1 when the document has no chunks.
	MaxIndexBySlug(dbc dbctx.Context, slug string) (int, error)
}

type documentChunkRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDocumentChunkRepo(db *gorm.DB, baseLog *logger.Logger) DocumentChunkRepo {
	return &documentChunkRepo{
		db:  db,
		log: baseLog.With("repo", "DocumentChunkRepo"),
	}
}

func (r *documentChunkRepo) CreateBatch(dbc dbctx.Context, chunks []*types.DocumentChunk) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(chunks) == 0 {
		return nil
	}
	// No ON CONFLICT here: unique violations must surface so the caller can
	// re-base indices and retry.
	return transaction.WithContext(dbc.Ctx).Create(&chunks).Error
}

func (r *documentChunkRepo) GetBySlug(dbc dbctx.Context, slug string, limit, offset int) ([]*types.DocumentChunk, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return nil, nil
	}
	if limit <= 0 || limit > 1000 {
		limit = 200
	}
	if offset < 0 {
		offset = 0
	}
	var out []*types.DocumentChunk
	err := transaction.WithContext(dbc.Ctx).
		Where("document_slug = ?", slug).
		Order(`"index" ASC`).
		Limit(limit).
		Offset(offset).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *documentChunkRepo) GetByDocumentID(dbc dbctx.Context, docID uuid.UUID) ([]*types.DocumentChunk, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if docID == uuid.Nil {
		return nil, nil
	}
	var out []*types.DocumentChunk
	err := transaction.WithContext(dbc.Ctx).
		Where("document_id = ?", docID).
		Order(`"index" ASC`).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *documentChunkRepo) ListEmbedded(dbc dbctx.Context, limit int) ([]*types.DocumentChunk, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if limit <= 0 {
		limit = 5000
	}
	var out []*types.DocumentChunk
	err := transaction.WithContext(dbc.Ctx).
		Where("embedding IS NOT NULL").
		Order("document_slug ASC, \"index\" ASC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *documentChunkRepo) DeleteBySlug(dbc dbctx.Context, slug string) (int64, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return 0, nil
	}
	// Hard delete: replace-mode reingestion reuses indices from zero, so the
	// unique (document_id, index) pair must actually be freed.
	res := transaction.WithContext(dbc.Ctx).
		Unscoped().
		Where("document_slug = ?", slug).
		Delete(&types.DocumentChunk{})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *documentChunkRepo) CountBySlug(dbc dbctx.Context, slug string) (int64, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return 0, nil
	}
	var count int64
	err := transaction.WithContext(dbc.Ctx).
		Model(&types.DocumentChunk{}).
		Where("document_slug = ?", slug).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *documentChunkRepo) MaxIndexBySlug(dbc dbctx.Context, slug string) (int, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return -1, nil
	}
	var max *int
	err := transaction.WithContext(dbc.Ctx).
		Model(&types.DocumentChunk{}).
		Where("document_slug = ?", slug).
		Select(`MAX("index")`).
		Scan(&max).Error
	if err != nil {
		return -1, err
	}
	if max == nil {
		return -1, nil
	}
	return *max, nil
}
