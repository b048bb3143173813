package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	types "github.com/yungbote/docbridge-backend/internal/domain"
)

func SeedDocument(tb testing.TB, ctx context.Context, tx *gorm.DB, slug string) *types.Document {
	tb.Helper()
	d := &types.Document{
		ID:                 uuid.New(),
		Slug:               slug,
		Title:              "doc " + slug,
		SourceKey:          "documents/" + slug + "/source.pdf",
		SourceMime:         "application/pdf",
		SourceBytes:        1024,
		Status:             types.DocumentStatusUploaded,
		EmbedProvider:      "openai",
		TranscribeProvider: "openai",
		ChunkSize:          800,
		ChunkOverlap:       150,
		QuizCount:          5,
	}
	if err := tx.WithContext(ctx).Create(d).Error; err != nil {
		tb.Fatalf("seed document: %v", err)
	}
	return d
}

func SeedChunk(tb testing.TB, ctx context.Context, tx *gorm.DB, doc *types.Document, index int) *types.DocumentChunk {
	tb.Helper()
	c := &types.DocumentChunk{
		ID:           uuid.New(),
		DocumentID:   doc.ID,
		DocumentSlug: doc.Slug,
		Index:        index,
		Content:      fmt.Sprintf("chunk %d", index),
		CharStart:    index * 100,
		CharEnd:      index*100 + 100,
		Embedding:    datatypes.JSON([]byte("[0.1,0.2,0.3]")),
		Metadata:     datatypes.JSON([]byte("{}")),
	}
	if err := tx.WithContext(ctx).Create(c).Error; err != nil {
		tb.Fatalf("seed chunk: %v", err)
	}
	return c
}

func SeedQuizQuestion(tb testing.TB, ctx context.Context, tx *gorm.DB, docID uuid.UUID, index int) *types.QuizQuestion {
	tb.Helper()
	q := &types.QuizQuestion{
		ID:           uuid.New(),
		DocumentID:   docID,
		Index:        index,
		Prompt:       fmt.Sprintf("question %d", index),
		Options:      datatypes.JSON([]byte(`["a","b","c","d"]`)),
		CorrectIndex: 0,
	}
	if err := tx.WithContext(ctx).Create(q).Error; err != nil {
		tb.Fatalf("seed quiz question: %v", err)
	}
	return q
}

func SeedJobRun(tb testing.TB, ctx context.Context, tx *gorm.DB, jobType string, entityID uuid.UUID) *types.JobRun {
	tb.Helper()
	j := &types.JobRun{
		ID:         uuid.New(),
		JobType:    jobType,
		EntityType: "document",
		EntityID:   PtrUUID(entityID),
		Status:     types.JobStatusQueued,
		Stage:      "queued",
		Payload:    datatypes.JSON([]byte("{}")),
	}
	if err := tx.WithContext(ctx).Create(j).Error; err != nil {
		tb.Fatalf("seed job run: %v", err)
	}
	return j
}

func PtrUUID(v uuid.UUID) *uuid.UUID { return &v }

func PtrTime(v time.Time) *time.Time { return &v }
