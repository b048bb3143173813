package documents_test

import (
	"context"
	"testing"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	repo "github.com/yungbote/docbridge-backend/internal/data/repos/documents"
	"github.com/yungbote/docbridge-backend/internal/data/repos/testutil"
	types "github.com/yungbote/docbridge-backend/internal/domain"
	"github.com/yungbote/docbridge-backend/internal/pkg/dbctx"
)

func TestDocumentChunkRepoCreateAndGetBySlug(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	log := testutil.Logger(t)

	r := repo.NewDocumentChunkRepo(db, log)
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}

	doc := testutil.SeedDocument(t, ctx, tx, "chunk-roundtrip")
	chunks := []*types.DocumentChunk{
		{
			DocumentID:   doc.ID,
			DocumentSlug: doc.Slug,
			Index:        0,
			Content:      "first",
			CharStart:    0,
			CharEnd:      5,
			Embedding:    datatypes.JSON([]byte("[0.1,0.2]")),
		},
		{
			DocumentID:   doc.ID,
			DocumentSlug: doc.Slug,
			Index:        1,
			Content:      "second",
			CharStart:    3,
			CharEnd:      9,
			Embedding:    datatypes.JSON([]byte("[0.3,0.4]")),
		},
	}
	if err := r.CreateBatch(dbc, chunks); err != nil {
		t.Fatalf("CreateBatch: %v", err)
	}

	got, err := r.GetBySlug(dbc, doc.Slug, 10, 0)
	if err != nil {
		t.Fatalf("GetBySlug: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Index != 0 || got[1].Index != 1 {
		t.Fatalf("chunks out of order: %d, %d", got[0].Index, got[1].Index)
	}
	if got[0].Content != "first" {
		t.Fatalf("content = %q", got[0].Content)
	}
}

func TestDocumentChunkRepoMaxIndexBySlug(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	log := testutil.Logger(t)

	r := repo.NewDocumentChunkRepo(db, log)
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}

	doc := testutil.SeedDocument(t, ctx, tx, "chunk-maxindex")

	max, err := r.MaxIndexBySlug(dbc, doc.Slug)
	if err != nil {
		t.Fatalf("MaxIndexBySlug (empty): %v", err)
	}
	if max != -1 {
		t.Fatalf("max = %d, want -1 for empty document", max)
	}

	testutil.SeedChunk(t, ctx, tx, doc, 0)
	testutil.SeedChunk(t, ctx, tx, doc, 7)

	max, err = r.MaxIndexBySlug(dbc, doc.Slug)
	if err != nil {
		t.Fatalf("MaxIndexBySlug: %v", err)
	}
	if max != 7 {
		t.Fatalf("max = %d, want 7", max)
	}
}

func TestDocumentChunkRepoDeleteBySlugFreesIndices(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	log := testutil.Logger(t)

	r := repo.NewDocumentChunkRepo(db, log)
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}

	doc := testutil.SeedDocument(t, ctx, tx, "chunk-delete")
	testutil.SeedChunk(t, ctx, tx, doc, 0)
	testutil.SeedChunk(t, ctx, tx, doc, 1)

	n, err := r.DeleteBySlug(dbc, doc.Slug)
	if err != nil {
		t.Fatalf("DeleteBySlug: %v", err)
	}
	if n != 2 {
		t.Fatalf("deleted = %d, want 2", n)
	}

	// Indices must be reusable after a replace-mode delete.
	if err := r.CreateBatch(dbc, []*types.DocumentChunk{{
		DocumentID:   doc.ID,
		DocumentSlug: doc.Slug,
		Index:        0,
		Content:      "again",
		CharEnd:      5,
	}}); err != nil {
		t.Fatalf("CreateBatch after delete: %v", err)
	}

	count, err := r.CountBySlug(dbc, doc.Slug)
	if err != nil {
		t.Fatalf("CountBySlug: %v", err)
	}
	if count != 1 {
		t.Fatalf("count = %d, want 1", count)
	}
}

func TestDocumentChunkRepoDuplicateIndexRejected(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	log := testutil.Logger(t)

	r := repo.NewDocumentChunkRepo(db, log)

	doc := testutil.SeedDocument(t, ctx, tx, "chunk-duplicate")
	testutil.SeedChunk(t, ctx, tx, doc, 3)

	// Savepoint keeps the outer test transaction usable after the failure.
	err := tx.Transaction(func(inner *gorm.DB) error {
		return r.CreateBatch(dbctx.Context{Ctx: ctx, Tx: inner}, []*types.DocumentChunk{{
			DocumentID:   doc.ID,
			DocumentSlug: doc.Slug,
			Index:        3,
			Content:      "duplicate",
		}})
	})
	if err == nil {
		t.Fatal("expected unique violation for duplicate (document_id, index)")
	}
}
