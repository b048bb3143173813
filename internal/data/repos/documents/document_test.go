package documents_test

import (
	"context"
	"testing"

	repo "github.com/yungbote/docbridge-backend/internal/data/repos/documents"
	"github.com/yungbote/docbridge-backend/internal/data/repos/testutil"
	types "github.com/yungbote/docbridge-backend/internal/domain"
	"github.com/yungbote/docbridge-backend/internal/pkg/dbctx"
)

func TestDocumentRepoCreateAndGetBySlug(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	log := testutil.Logger(t)

	r := repo.NewDocumentRepo(db, log)
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}

	doc, err := r.Create(dbc, &types.Document{
		Slug:               "intro-to-databases",
		Title:              "Intro to Databases",
		SourceKey:          "documents/intro-to-databases/source.pdf",
		SourceMime:         "application/pdf",
		Status:             types.DocumentStatusUploaded,
		EmbedProvider:      "openai",
		TranscribeProvider: "openai",
		ChunkSize:          800,
		ChunkOverlap:       150,
		QuizCount:          5,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := r.GetBySlug(dbc, "intro-to-databases")
	if err != nil {
		t.Fatalf("GetBySlug: %v", err)
	}
	if got == nil || got.ID != doc.ID {
		t.Fatalf("got = %+v, want id %s", got, doc.ID)
	}

	missing, err := r.GetBySlug(dbc, "nope")
	if err != nil {
		t.Fatalf("GetBySlug missing: %v", err)
	}
	if missing != nil {
		t.Fatalf("missing = %+v, want nil", missing)
	}
}

func TestDocumentRepoSlugExists(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	log := testutil.Logger(t)

	r := repo.NewDocumentRepo(db, log)
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}

	testutil.SeedDocument(t, ctx, tx, "taken-slug")

	ok, err := r.SlugExists(dbc, "taken-slug")
	if err != nil {
		t.Fatalf("SlugExists: %v", err)
	}
	if !ok {
		t.Fatal("SlugExists = false, want true")
	}

	ok, err = r.SlugExists(dbc, "free-slug")
	if err != nil {
		t.Fatalf("SlugExists: %v", err)
	}
	if ok {
		t.Fatal("SlugExists = true, want false")
	}
}

func TestDocumentRepoUpdateFields(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	log := testutil.Logger(t)

	r := repo.NewDocumentRepo(db, log)
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}

	doc := testutil.SeedDocument(t, ctx, tx, "update-me")

	if err := r.UpdateFields(dbc, doc.ID, map[string]interface{}{
		"status":   types.DocumentStatusReady,
		"abstract": "a short abstract",
	}); err != nil {
		t.Fatalf("UpdateFields: %v", err)
	}

	got, err := r.GetByID(dbc, doc.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != types.DocumentStatusReady {
		t.Fatalf("status = %q, want ready", got.Status)
	}
	if got.Abstract == nil || *got.Abstract != "a short abstract" {
		t.Fatalf("abstract = %v", got.Abstract)
	}
}
