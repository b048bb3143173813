package documents

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DocumentChunk is one overlapping window of extracted text. Index is unique
// per document and never reused; "add" ingestion allocates strictly above the
// current max.
type DocumentChunk struct {
	ID         uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	DocumentID uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:idx_document_chunk_doc_index,priority:1" json:"document_id"`
	Document   *Document `gorm:"constraint:OnDelete:CASCADE;foreignKey:DocumentID;references:ID" json:"document,omitempty"`

	// Denormalized for by-slug reads without a join.
	DocumentSlug string `gorm:"column:document_slug;not null;index" json:"document_slug"`

	Index     int            `gorm:"column:index;not null;uniqueIndex:idx_document_chunk_doc_index,priority:2" json:"index"`
	Content   string         `gorm:"column:content;type:text;not null" json:"content"`
	CharStart int            `gorm:"column:char_start;not null" json:"char_start"`
	CharEnd   int            `gorm:"column:char_end;not null" json:"char_end"`
	Page      *int           `gorm:"column:page;index" json:"page,omitempty"`
	StartSec  *float64       `gorm:"column:start_sec" json:"start_sec,omitempty"`
	EndSec    *float64       `gorm:"column:end_sec" json:"end_sec,omitempty"`
	Embedding datatypes.JSON `gorm:"type:jsonb;column:embedding" json:"embedding,omitempty"`

	EmbedProvider string `gorm:"column:embed_provider;index" json:"embed_provider,omitempty"`
	EmbedModel    string `gorm:"column:embed_model" json:"embed_model,omitempty"`
	TokenEstimate int    `gorm:"column:token_estimate;not null;default:0" json:"token_estimate"`

	Metadata datatypes.JSON `gorm:"type:jsonb;column:metadata" json:"metadata,omitempty"`

	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (DocumentChunk) TableName() string { return "document_chunk" }

func (c *DocumentChunk) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
