package documents

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/docbridge-backend/internal/domain"
	"github.com/yungbote/docbridge-backend/internal/pkg/dbctx"
	"github.com/yungbote/docbridge-backend/internal/platform/logger"
)

type QuizQuestionRepo interface {
	ReplaceForDocument(dbc dbctx.Context, docID uuid.UUID, questions []*types.QuizQuestion) error
	GetByDocumentID(dbc dbctx.Context, docID uuid.UUID) ([]*types.QuizQuestion, error)
	DeleteByDocumentID(dbc dbctx.Context, docID uuid.UUID) error
}

type quizQuestionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewQuizQuestionRepo(db *gorm.DB, baseLog *logger.Logger) QuizQuestionRepo {
	return &quizQuestionRepo{
		db:  db,
		log: baseLog.With("repo", "QuizQuestionRepo"),
	}
}

// ReplaceForDocument swaps the full question set atomically so readers never
// see a half-written quiz.
func (r *quizQuestionRepo) ReplaceForDocument(dbc dbctx.Context, docID uuid.UUID, questions []*types.QuizQuestion) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if docID == uuid.Nil {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).Transaction(func(txx *gorm.DB) error {
		if err := txx.Unscoped().
			Where("document_id = ?", docID).
			Delete(&types.QuizQuestion{}).Error; err != nil {
			return err
		}
		if len(questions) == 0 {
			return nil
		}
		return txx.Create(&questions).Error
	})
}

func (r *quizQuestionRepo) GetByDocumentID(dbc dbctx.Context, docID uuid.UUID) ([]*types.QuizQuestion, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if docID == uuid.Nil {
		return nil, nil
	}
	var out []*types.QuizQuestion
	err := transaction.WithContext(dbc.Ctx).
		Where("document_id = ?", docID).
		Order(`"index" ASC`).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *quizQuestionRepo) DeleteByDocumentID(dbc dbctx.Context, docID uuid.UUID) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if docID == uuid.Nil {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).
		Unscoped().
		Where("document_id = ?", docID).
		Delete(&types.QuizQuestion{}).Error
}
