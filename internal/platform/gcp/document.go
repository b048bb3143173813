package gcp

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/documentai/apiv1"
	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"google.golang.org/api/option"

	types "github.com/yungbote/docbridge-backend/internal/domain"
	"github.com/yungbote/docbridge-backend/internal/platform/ctxutil"
	"github.com/yungbote/docbridge-backend/internal/platform/logger"
)

// DocumentAI is the optional high-fidelity PDF extractor. Configured via
// DOCUMENTAI_PROJECT_ID / DOCUMENTAI_LOCATION / DOCUMENTAI_PROCESSOR_ID
// (+ optional DOCUMENTAI_PROCESSOR_VERSION); when those are absent the
// constructor returns ErrDocumentAINotConfigured and the pipeline falls back
// to pdftotext.
type DocumentAI interface {
	ProcessBytes(ctx context.Context, data []byte, mimeType string) (*DocAIResult, error)
	ProcessGCS(ctx context.Context, gcsURI string, mimeType string) (*DocAIResult, error)
	Close() error
}

var ErrDocumentAINotConfigured = fmt.Errorf("documentai not configured: set DOCUMENTAI_PROJECT_ID and DOCUMENTAI_PROCESSOR_ID")

type DocAIResult struct {
	Provider    string          `json:"provider"`
	Processor   string          `json:"processor"`
	MimeType    string          `json:"mime_type"`
	PrimaryText string          `json:"primary_text"`
	PageCount   int             `json:"page_count"`
	Segments    []types.Segment `json:"segments,omitempty"`
	Tables      []types.Segment `json:"tables,omitempty"`
	Warnings    []string        `json:"warnings,omitempty"`
}

type documentAIService struct {
	log *logger.Logger

	docClient *documentai.DocumentProcessorClient
	processor string
}

func NewDocumentAI(log *logger.Logger) (DocumentAI, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	slog := log.With("service", "gcp.DocumentAI")

	projectID := strings.TrimSpace(os.Getenv("DOCUMENTAI_PROJECT_ID"))
	processorID := strings.TrimSpace(os.Getenv("DOCUMENTAI_PROCESSOR_ID"))
	if projectID == "" || processorID == "" {
		return nil, ErrDocumentAINotConfigured
	}
	location := strings.TrimSpace(os.Getenv("DOCUMENTAI_LOCATION"))
	if location == "" {
		location = "us"
	}
	version := strings.TrimSpace(os.Getenv("DOCUMENTAI_PROCESSOR_VERSION"))

	endpoint := fmt.Sprintf("%s-documentai.googleapis.com:443", location)

	ctx := context.Background()
	docOpts := append([]option.ClientOption{option.WithEndpoint(endpoint)}, ClientOptionsFromEnv()...)
	c, err := documentai.NewDocumentProcessorClient(ctx, docOpts...)
	if err != nil {
		return nil, fmt.Errorf("documentai client: %w", err)
	}

	processor := processorName(projectID, location, processorID, version)
	slog.Info("Document AI initialized", "endpoint", endpoint, "processor", processor)

	return &documentAIService{
		log:       slog,
		docClient: c,
		processor: processor,
	}, nil
}

func (s *documentAIService) Close() error {
	if s == nil || s.docClient == nil {
		return nil
	}
	return s.docClient.Close()
}

func (s *documentAIService) ProcessBytes(ctx context.Context, data []byte, mimeType string) (*DocAIResult, error) {
	ctx = ctxutil.Default(ctx)
	ctx, cancel := context.WithTimeout(ctx, 3*time.Minute)
	defer cancel()

	if mimeType == "" {
		mimeType = "application/pdf"
	}
	if len(data) == 0 {
		return &DocAIResult{Provider: "gcp_documentai", Processor: s.processor, MimeType: mimeType, PrimaryText: ""}, nil
	}

	r := &documentaipb.ProcessRequest{
		Name: s.processor,
		Source: &documentaipb.ProcessRequest_RawDocument{
			RawDocument: &documentaipb.RawDocument{
				Content:  data,
				MimeType: mimeType,
			},
		},
	}

	resp, err := s.docClient.ProcessDocument(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("documentai ProcessDocument: %w", err)
	}
	if resp == nil || resp.Document == nil {
		return &DocAIResult{Provider: "gcp_documentai", Processor: s.processor, MimeType: mimeType, PrimaryText: ""}, nil
	}

	return buildDocAIResult(resp.Document, s.processor, mimeType), nil
}

func (s *documentAIService) ProcessGCS(ctx context.Context, gcsURI string, mimeType string) (*DocAIResult, error) {
	ctx = ctxutil.Default(ctx)
	ctx, cancel := context.WithTimeout(ctx, 3*time.Minute)
	defer cancel()

	if mimeType == "" {
		mimeType = "application/pdf"
	}
	if _, _, err := parseGCSURI(gcsURI); err != nil {
		return nil, err
	}

	r := &documentaipb.ProcessRequest{
		Name: s.processor,
		Source: &documentaipb.ProcessRequest_GcsDocument{
			GcsDocument: &documentaipb.GcsDocument{
				GcsUri:   gcsURI,
				MimeType: mimeType,
			},
		},
	}

	resp, err := s.docClient.ProcessDocument(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("documentai ProcessDocument (gcs): %w", err)
	}
	if resp == nil || resp.Document == nil {
		return &DocAIResult{Provider: "gcp_documentai", Processor: s.processor, MimeType: mimeType, PrimaryText: ""}, nil
	}

	return buildDocAIResult(resp.Document, s.processor, mimeType), nil
}

// ---------- parsing into segments ----------

func buildDocAIResult(doc *documentaipb.Document, processor string, mimeType string) *DocAIResult {
	out := &DocAIResult{
		Provider:  "gcp_documentai",
		Processor: processor,
		MimeType:  mimeType,
	}
	if doc == nil {
		return out
	}

	out.PrimaryText = strings.TrimSpace(doc.Text)
	out.PageCount = len(doc.Pages)

	segs := []types.Segment{}
	tableSegs := []types.Segment{}

	for _, p := range doc.Pages {
		if p == nil {
			continue
		}
		pageNum := int(p.PageNumber)

		var pageText strings.Builder
		for _, para := range p.Paragraphs {
			if para == nil || para.Layout == nil || para.Layout.TextAnchor == nil {
				continue
			}
			t := strings.TrimSpace(textFromAnchor(doc.Text, para.Layout.TextAnchor))
			if t == "" {
				continue
			}
			pageText.WriteString(t)
			pageText.WriteString("\n")
		}

		pt := strings.TrimSpace(pageText.String())
		if pt != "" {
			pn := pageNum
			segs = append(segs, types.Segment{
				Text: pt,
				Page: &pn,
				Metadata: map[string]any{
					"kind":     "docai_page_text",
					"provider": "gcp_documentai",
				},
			})
		}

		for ti, table := range p.Tables {
			md := strings.TrimSpace(tableToMarkdown(doc.Text, table))
			if md == "" {
				continue
			}
			pn := pageNum
			tableSegs = append(tableSegs, types.Segment{
				Text: md,
				Page: &pn,
				Metadata: map[string]any{
					"kind":        "table_text",
					"provider":    "gcp_documentai",
					"table_index": ti,
				},
			})
		}
	}

	out.Segments = segs
	out.Tables = tableSegs

	// Some processors populate doc.Text but omit structured page paragraphs.
	// Ensure callers still get usable text segments.
	if len(out.Segments) == 0 && len(out.Tables) == 0 && strings.TrimSpace(out.PrimaryText) != "" {
		out.Segments = append(out.Segments, types.Segment{
			Text: out.PrimaryText,
			Metadata: map[string]any{
				"kind":     "docai_primary_text",
				"provider": "gcp_documentai",
			},
		})
	}

	return out
}

func textFromAnchor(full string, anchor *documentaipb.Document_TextAnchor) string {
	if anchor == nil || len(anchor.TextSegments) == 0 || full == "" {
		return ""
	}
	var b strings.Builder
	for _, seg := range anchor.TextSegments {
		if seg == nil {
			continue
		}
		start := int(seg.StartIndex)
		end := int(seg.EndIndex)
		if start < 0 {
			start = 0
		}
		if end > len(full) {
			end = len(full)
		}
		if start >= end {
			continue
		}
		b.WriteString(full[start:end])
	}
	return b.String()
}

func tableToMarkdown(full string, t *documentaipb.Document_Page_Table) string {
	if t == nil {
		return ""
	}

	rows := [][]string{}
	header := []string{}
	if len(t.HeaderRows) > 0 && t.HeaderRows[0] != nil {
		header = tableRowToCells(full, t.HeaderRows[0])
	}
	bodyRows := append([]*documentaipb.Document_Page_Table_TableRow{}, t.BodyRows...)

	if len(header) == 0 && len(bodyRows) > 0 && bodyRows[0] != nil {
		header = tableRowToCells(full, bodyRows[0])
		bodyRows = bodyRows[1:]
	}
	if len(header) == 0 {
		return ""
	}

	rows = append(rows, header)
	for _, r := range bodyRows {
		if r == nil {
			continue
		}
		rows = append(rows, tableRowToCells(full, r))
	}
	if len(rows) == 0 {
		return ""
	}

	maxCols := 0
	for _, r := range rows {
		if len(r) > maxCols {
			maxCols = len(r)
		}
	}
	if maxCols == 0 {
		return ""
	}
	for i := range rows {
		for len(rows[i]) < maxCols {
			rows[i] = append(rows[i], "")
		}
	}

	var out strings.Builder
	out.WriteString("| ")
	out.WriteString(strings.Join(escapePipes(rows[0]), " | "))
	out.WriteString(" |\n| ")
	sep := make([]string, maxCols)
	for i := 0; i < maxCols; i++ {
		sep[i] = "---"
	}
	out.WriteString(strings.Join(sep, " | "))
	out.WriteString(" |\n")

	for i := 1; i < len(rows); i++ {
		out.WriteString("| ")
		out.WriteString(strings.Join(escapePipes(rows[i]), " | "))
		out.WriteString(" |\n")
	}
	return out.String()
}

func tableRowToCells(full string, r *documentaipb.Document_Page_Table_TableRow) []string {
	if r == nil {
		return nil
	}
	out := make([]string, 0, len(r.Cells))
	for _, c := range r.Cells {
		if c == nil || c.Layout == nil || c.Layout.TextAnchor == nil {
			out = append(out, "")
			continue
		}
		out = append(out, strings.TrimSpace(textFromAnchor(full, c.Layout.TextAnchor)))
	}
	return out
}

func escapePipes(row []string) []string {
	out := make([]string, len(row))
	for i, s := range row {
		out[i] = strings.ReplaceAll(s, "|", "\\|")
	}
	return out
}

func processorName(project, location, processorID, version string) string {
	base := fmt.Sprintf("projects/%s/locations/%s/processors/%s", project, location, processorID)
	if version != "" {
		return base + "/processorVersions/" + version
	}
	return base
}
