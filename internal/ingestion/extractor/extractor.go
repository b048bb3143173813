package extractor

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	types "github.com/yungbote/docbridge-backend/internal/domain"
	"github.com/yungbote/docbridge-backend/internal/pkg/ctxutil"
	apperrors "github.com/yungbote/docbridge-backend/internal/pkg/errors"
	"github.com/yungbote/docbridge-backend/internal/platform/gcp"
	"github.com/yungbote/docbridge-backend/internal/platform/localmedia"
	"github.com/yungbote/docbridge-backend/internal/platform/logger"
	"github.com/yungbote/docbridge-backend/internal/platform/openai"
)

// Source kinds the pipeline accepts. Video is handled by extracting its audio
// track and running the audio contract.
const (
	KindPDF     = "pdf"
	KindAudio   = "audio"
	KindVideo   = "video"
	KindText    = "text"
	KindUnknown = "unknown"
)

const (
	// Provider upload ceilings. Oversized audio is split into pieces that
	// individually fit under the ceiling with a safety margin.
	openaiAudioCeilingBytes    int64 = 20 << 20
	gcpInlineAudioCeilingBytes int64 = 10 << 20
	splitSafetyMargin                = 0.9

	// DocAI sync requests cap out well below large scans; bigger PDFs go
	// through the GCS path.
	docAIInlineByteLimit int64 = 15 << 20

	maxSourceDownloadBytes int64 = 1 << 30
)

// Result is everything extraction derives from one stored source object.
// Text carries "[Page N]" markers for paged sources so the chunker can
// assign page provenance; Segments carry page or time spans per provider.
type Result struct {
	Text        string
	Segments    []types.Segment
	PageCount   int
	DurationSec float64
	Provider    string
	Warnings    []string
}

// Extractor routes a document to the provider chain for its source kind.
// DocAI, Vision, and Speech are optional; a nil client skips that provider
// and extraction continues down the fallback chain.
type Extractor struct {
	log    *logger.Logger
	bucket gcp.BucketService
	media  localmedia.Tools
	ai     openai.Client
	docAI  gcp.DocumentAI
	vision gcp.Vision
	speech gcp.Speech

	ocrInlinePageLimit int
	ocrMaxPages        int
	minTextRunes       int
}

func New(
	log *logger.Logger,
	bucket gcp.BucketService,
	media localmedia.Tools,
	ai openai.Client,
	docAI gcp.DocumentAI,
	vision gcp.Vision,
	speech gcp.Speech,
) *Extractor {
	return &Extractor{
		log:    log.With("component", "Extractor"),
		bucket: bucket,
		media:  media,
		ai:     ai,
		docAI:  docAI,
		vision: vision,
		speech: speech,

		ocrInlinePageLimit: 20,
		ocrMaxPages:        200,
		minTextRunes:       32,
	}
}

// Extract downloads the source object and runs the kind-specific chain.
// Unsupported mime types and sources that yield no usable text return an
// ExtractionError; those are never retried.
func (e *Extractor) Extract(ctx context.Context, doc *types.Document) (*Result, error) {
	ctx = ctxutil.Default(ctx)
	if doc == nil {
		return nil, &apperrors.ExtractionError{Err: fmt.Errorf("document required: %w", apperrors.ErrInvalidArgument)}
	}

	kind := SourceKind(doc.SourceMime, doc.SourceKey)
	if kind == KindUnknown {
		return nil, &apperrors.ExtractionError{
			Source: doc.SourceKey,
			Mime:   doc.SourceMime,
			Err:    fmt.Errorf("unsupported source type"),
		}
	}

	localPath, cleanup, err := e.downloadSource(ctx, doc)
	if err != nil {
		return nil, &apperrors.ExtractionError{Source: doc.SourceKey, Mime: doc.SourceMime, Err: err}
	}
	defer cleanup()

	var res *Result
	switch kind {
	case KindPDF:
		res, err = e.extractPDF(ctx, doc, localPath)
	case KindAudio:
		res, err = e.extractAudio(ctx, doc, localPath, false)
	case KindVideo:
		res, err = e.extractVideo(ctx, doc, localPath)
	case KindText:
		res, err = e.extractPlainText(ctx, doc, localPath)
	}
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(res.Text) == "" {
		return nil, &apperrors.ExtractionError{
			Source: doc.SourceKey,
			Mime:   doc.SourceMime,
			Err:    fmt.Errorf("no usable text extracted"),
		}
	}
	for _, w := range res.Warnings {
		e.log.Warn("extraction warning", "slug", doc.Slug, "warning", w)
	}
	return res, nil
}

// downloadSource streams the object to a temp file and returns its path with
// a cleanup func. Extraction tools all want a local path.
func (e *Extractor) downloadSource(ctx context.Context, doc *types.Document) (string, func(), error) {
	rc, err := e.bucket.DownloadFile(ctx, doc.SourceKey)
	if err != nil {
		return "", nil, fmt.Errorf("download source: %w", err)
	}
	defer rc.Close()

	dir, err := os.MkdirTemp("", "docbridge_extract_*")
	if err != nil {
		return "", nil, fmt.Errorf("temp dir: %w", err)
	}
	cleanup := func() { _ = os.RemoveAll(dir) }

	name := "source" + extensionForSource(doc.SourceMime, doc.SourceKey)
	dst := filepath.Join(dir, name)
	f, err := os.Create(dst)
	if err != nil {
		cleanup()
		return "", nil, fmt.Errorf("create temp file: %w", err)
	}
	n, err := io.Copy(f, io.LimitReader(rc, maxSourceDownloadBytes+1))
	cerr := f.Close()
	if err != nil {
		cleanup()
		return "", nil, fmt.Errorf("copy source to disk: %w", err)
	}
	if cerr != nil {
		cleanup()
		return "", nil, fmt.Errorf("close temp file: %w", cerr)
	}
	if n > maxSourceDownloadBytes {
		cleanup()
		return "", nil, fmt.Errorf("source exceeds %d byte download cap", maxSourceDownloadBytes)
	}
	return dst, cleanup, nil
}

// SourceKind classifies an upload by mime type, falling back to the key
// extension. The upload handler uses it to reject unsupported types early.
func SourceKind(mimeType, key string) string {
	m := strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.Index(m, ";"); i >= 0 {
		m = strings.TrimSpace(m[:i])
	}
	switch {
	case m == "application/pdf" || m == "application/x-pdf":
		return KindPDF
	case strings.HasPrefix(m, "audio/"):
		return KindAudio
	case strings.HasPrefix(m, "video/"):
		return KindVideo
	case m == "text/plain" || m == "text/markdown" || m == "text/x-markdown":
		return KindText
	}

	switch strings.ToLower(filepath.Ext(key)) {
	case ".pdf":
		return KindPDF
	case ".mp3", ".wav", ".m4a", ".flac", ".ogg", ".opus":
		return KindAudio
	case ".mp4", ".m4v", ".mov", ".webm":
		return KindVideo
	case ".txt", ".md", ".markdown":
		return KindText
	}
	return KindUnknown
}

func extensionForSource(mimeType, key string) string {
	if ext := strings.ToLower(filepath.Ext(key)); ext != "" {
		return ext
	}
	switch strings.ToLower(strings.TrimSpace(mimeType)) {
	case "application/pdf":
		return ".pdf"
	case "audio/mpeg":
		return ".mp3"
	case "audio/wav", "audio/x-wav":
		return ".wav"
	case "audio/mp4":
		return ".m4a"
	case "audio/flac":
		return ".flac"
	case "audio/ogg":
		return ".ogg"
	case "video/mp4":
		return ".mp4"
	case "video/webm":
		return ".webm"
	case "video/quicktime":
		return ".mov"
	case "text/plain":
		return ".txt"
	case "text/markdown":
		return ".md"
	}
	return ""
}

func weakText(s string, minRunes int) bool {
	return len([]rune(strings.TrimSpace(s))) < minRunes
}
