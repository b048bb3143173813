package db

import (
	"fmt"

	"gorm.io/gorm"

	types "github.com/yungbote/docbridge-backend/internal/domain"
)

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(
		// Documents (uploads + ingestion artifacts)
		&types.Document{},
		&types.DocumentChunk{},
		&types.QuizQuestion{},
		&types.ProcessingLogEntry{},

		// Jobs / worker
		&types.JobRun{},
	)
}

// EnsureDocumentIndexes adds the indexes AutoMigrate can't express. Postgres
// only; on sqlite the struct-tag indexes cover local dev.
func EnsureDocumentIndexes(db *gorm.DB) error {
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_document_chunk_slug_index
		ON document_chunk (document_slug, index)
		WHERE deleted_at IS NULL;
	`).Error; err != nil {
		return fmt.Errorf("create idx_document_chunk_slug_index: %w", err)
	}

	// Lexical fallback search over chunk content.
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_document_chunk_fts
		ON document_chunk
		USING GIN (to_tsvector('english', content))
		WHERE deleted_at IS NULL;
	`).Error; err != nil {
		return fmt.Errorf("create idx_document_chunk_fts: %w", err)
	}

	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_processing_log_doc_created
		ON processing_log (document_id, created_at);
	`).Error; err != nil {
		return fmt.Errorf("create idx_processing_log_doc_created: %w", err)
	}

	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_job_run_claim
		ON job_run (status, created_at)
		WHERE deleted_at IS NULL;
	`).Error; err != nil {
		return fmt.Errorf("create idx_job_run_claim: %w", err)
	}

	return nil
}

func (s *Service) AutoMigrateAll() error {
	s.log.Info("Auto migrating tables...")
	if err := AutoMigrateAll(s.db); err != nil {
		s.log.Error("Auto migration failed", "error", err)
		return err
	}
	if s.driver == "postgres" {
		if err := EnsureDocumentIndexes(s.db); err != nil {
			s.log.Error("Document index migration failed", "error", err)
			return err
		}
	}
	return nil
}
