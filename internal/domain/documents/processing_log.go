package documents

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	LogStarted   = "started"
	LogProgress  = "progress"
	LogCompleted = "completed"
	LogFailed    = "failed"
)

// ProcessingLogEntry is the append-only ingestion timeline for a document.
// Rows are inserted, never updated.
type ProcessingLogEntry struct {
	ID         uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	DocumentID uuid.UUID `gorm:"type:uuid;not null;index" json:"document_id"`
	Document   *Document `gorm:"constraint:OnDelete:CASCADE;foreignKey:DocumentID;references:ID" json:"document,omitempty"`

	Stage    string         `gorm:"column:stage;not null;index" json:"stage"`
	Status   string         `gorm:"column:status;not null;index" json:"status"`
	Message  string         `gorm:"column:message;type:text" json:"message,omitempty"`
	Progress *int           `gorm:"column:progress" json:"progress,omitempty"`
	Meta     datatypes.JSON `gorm:"type:jsonb;column:meta" json:"meta,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:now();index" json:"created_at"`
}

func (ProcessingLogEntry) TableName() string { return "processing_log" }

func (e *ProcessingLogEntry) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}
