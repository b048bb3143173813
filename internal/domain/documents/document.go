package documents

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	StatusUploaded   = "uploaded"
	StatusProcessing = "processing"
	StatusReady      = "ready"
	StatusFailed     = "failed"
)

// Document is one uploaded source (PDF, audio, or video by way of its audio
// track) together with everything ingestion derived from it. The pipeline
// mutates only the fields a stage owns; rows are never deleted by the
// pipeline itself.
type Document struct {
	ID    uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	Slug  string    `gorm:"column:slug;not null;uniqueIndex" json:"slug"`
	Title string    `gorm:"column:title;not null" json:"title"`

	SourceKey   string   `gorm:"column:source_key;not null" json:"source_key"`
	SourceMime  string   `gorm:"column:source_mime;not null" json:"source_mime"`
	SourceBytes int64    `gorm:"column:source_bytes;not null;default:0" json:"source_bytes"`
	PageCount   *int     `gorm:"column:page_count" json:"page_count,omitempty"`
	DurationSec *float64 `gorm:"column:duration_sec" json:"duration_sec,omitempty"`
	CoverKey    *string  `gorm:"column:cover_key" json:"cover_key,omitempty"`

	Status        string  `gorm:"column:status;not null;index;default:'uploaded'" json:"status"`
	FailureReason *string `gorm:"column:failure_reason" json:"failure_reason,omitempty"`

	Abstract      *string        `gorm:"column:abstract;type:text" json:"abstract,omitempty"`
	Keywords      datatypes.JSON `gorm:"type:jsonb;column:keywords" json:"keywords,omitempty"`
	QuizGenerated bool           `gorm:"column:quiz_generated;not null;default:false" json:"quiz_generated"`

	EmbedProvider      string `gorm:"column:embed_provider;not null;default:'openai'" json:"embed_provider"`
	TranscribeProvider string `gorm:"column:transcribe_provider;not null;default:'openai'" json:"transcribe_provider"`
	ChunkSize          int    `gorm:"column:chunk_size;not null;default:800" json:"chunk_size"`
	ChunkOverlap       int    `gorm:"column:chunk_overlap;not null;default:150" json:"chunk_overlap"`
	QuizCount          int    `gorm:"column:quiz_count;not null;default:5" json:"quiz_count"`

	CreatedAt time.Time      `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Document) TableName() string { return "document" }

// BeforeCreate fills the id app-side so the sqlite driver works without the
// uuid-ossp extension.
func (d *Document) BeforeCreate(tx *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return nil
}
