package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/yungbote/docbridge-backend/internal/platform/gcp"
	"github.com/yungbote/docbridge-backend/internal/platform/localmedia"
	"github.com/yungbote/docbridge-backend/internal/platform/logger"
	"github.com/yungbote/docbridge-backend/internal/platform/neo4jdb"
	"github.com/yungbote/docbridge-backend/internal/platform/openai"
	"github.com/yungbote/docbridge-backend/internal/realtime/bus"
)

type Clients struct {
	Bus    bus.Bus
	OpenAI openai.Client
	Bucket gcp.BucketService
	Media  localmedia.Tools

	// Optional providers; the extractor runs without any of them.
	DocAI  gcp.DocumentAI
	Vision gcp.Vision
	Speech gcp.Speech
	Neo4j  *neo4jdb.Client
}

func wireClients(log *logger.Logger) (Clients, error) {
	log.Info("Wiring clients...")

	b, err := bus.NewBusFromEnv(log)
	if err != nil {
		return Clients{}, fmt.Errorf("init redis bus: %w", err)
	}

	bucket, err := gcp.NewBucketService(log)
	if err != nil {
		return Clients{}, fmt.Errorf("init bucket client: %w", err)
	}

	ai, err := openai.NewClient(log)
	if err != nil {
		return Clients{}, fmt.Errorf("init openai client: %w", err)
	}

	media := localmedia.New(log)

	docAI, err := gcp.NewDocumentAI(log)
	if err != nil {
		if errors.Is(err, gcp.ErrDocumentAINotConfigured) {
			log.Info("Document AI not configured; PDFs use local extraction")
		} else {
			log.Warn("Document AI init failed (disabled)", "error", err)
		}
		docAI = nil
	}

	vision, err := gcp.NewVision(log)
	if err != nil {
		log.Warn("Vision init failed (scanned-PDF OCR disabled)", "error", err)
		vision = nil
	}

	speech, err := gcp.NewSpeech(log)
	if err != nil {
		log.Warn("Speech init failed (gcp transcription disabled)", "error", err)
		speech = nil
	}

	neo, err := neo4jdb.NewFromEnv(log)
	if err != nil {
		log.Warn("Neo4j init failed (keyword graph disabled)", "error", err)
		neo = nil
	}

	return Clients{
		Bus:    b,
		OpenAI: ai,
		Bucket: bucket,
		Media:  media,
		DocAI:  docAI,
		Vision: vision,
		Speech: speech,
		Neo4j:  neo,
	}, nil
}

func (c *Clients) Close() {
	if c == nil {
		return
	}
	if c.Bus != nil {
		_ = c.Bus.Close()
	}
	if c.DocAI != nil {
		_ = c.DocAI.Close()
	}
	if c.Vision != nil {
		_ = c.Vision.Close()
	}
	if c.Speech != nil {
		_ = c.Speech.Close()
	}
	if c.Neo4j != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = c.Neo4j.Close(ctx)
		cancel()
	}
}
