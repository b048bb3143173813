package extractor

import (
	"context"
	"fmt"
	"os"
	"path"
	"sort"
	"strings"

	types "github.com/yungbote/docbridge-backend/internal/domain"
	apperrors "github.com/yungbote/docbridge-backend/internal/pkg/errors"
	"github.com/yungbote/docbridge-backend/internal/platform/gcp"
	"github.com/yungbote/docbridge-backend/internal/platform/localmedia"
)

// extractPDF walks the provider chain: Document AI when configured, local
// pdftotext otherwise or on failure, Vision OCR when the text signal stays
// weak (scanned PDFs). The first provider that yields real text wins.
func (e *Extractor) extractPDF(ctx context.Context, doc *types.Document, pdfPath string) (*Result, error) {
	res := &Result{}

	if n, err := e.media.CountPDFPages(ctx, pdfPath); err != nil {
		res.Warnings = append(res.Warnings, "pdfinfo page count failed: "+err.Error())
	} else {
		res.PageCount = n
	}

	if e.docAI != nil {
		dres, err := e.processDocAI(ctx, doc, pdfPath)
		if err != nil {
			res.Warnings = append(res.Warnings, "documentai failed: "+err.Error())
		} else {
			res.Provider = dres.Provider
			res.Segments = dres.Segments
			res.Warnings = append(res.Warnings, dres.Warnings...)
			if dres.PageCount > 0 {
				res.PageCount = dres.PageCount
			}
			res.Text = pagedTextFromSegments(dres.Segments, dres.PrimaryText)
		}
	}

	if weakText(res.Text, e.minTextRunes) {
		raw, err := e.media.ExtractPDFText(ctx, pdfPath)
		if err != nil {
			res.Warnings = append(res.Warnings, "pdftotext failed: "+err.Error())
		} else {
			text, segs := pagedTextFromPdftotext(raw)
			if !weakText(text, e.minTextRunes) {
				res.Text = text
				res.Segments = segs
				res.Provider = "local_pdftotext"
				if res.PageCount == 0 {
					res.PageCount = len(segs)
				}
			}
		}
	}

	if weakText(res.Text, e.minTextRunes) && e.vision != nil {
		vres, err := e.ocrPDF(ctx, doc, pdfPath, res.PageCount)
		if err != nil {
			res.Warnings = append(res.Warnings, "vision ocr failed: "+err.Error())
		} else if vres != nil {
			res.Warnings = append(res.Warnings, vres.Warnings...)
			text, segs := pagedTextFromVision(vres)
			if !weakText(text, e.minTextRunes) {
				res.Text = text
				res.Segments = segs
				res.Provider = vres.Provider
				if res.PageCount == 0 {
					res.PageCount = len(vres.Pages)
				}
			}
		}
	}

	if weakText(res.Text, e.minTextRunes) {
		return nil, &apperrors.ExtractionError{
			Source: doc.SourceKey,
			Mime:   doc.SourceMime,
			Err:    fmt.Errorf("pdf yielded no usable text (providers tried: docai=%v vision=%v)", e.docAI != nil, e.vision != nil),
		}
	}
	return res, nil
}

// processDocAI sends small PDFs inline and routes larger ones through the
// object already sitting in GCS.
func (e *Extractor) processDocAI(ctx context.Context, doc *types.Document, pdfPath string) (*gcp.DocAIResult, error) {
	st, err := os.Stat(pdfPath)
	if err != nil {
		return nil, fmt.Errorf("stat pdf: %w", err)
	}
	if st.Size() <= docAIInlineByteLimit {
		b, err := os.ReadFile(pdfPath)
		if err != nil {
			return nil, fmt.Errorf("read pdf: %w", err)
		}
		return e.docAI.ProcessBytes(ctx, b, "application/pdf")
	}
	return e.docAI.ProcessGCS(ctx, e.bucket.ObjectURI(doc.SourceKey), "application/pdf")
}

// ocrPDF renders pages locally and annotates them inline when the document is
// small; otherwise it runs the async batch API against the stored object with
// JSON output staged next to the source.
func (e *Extractor) ocrPDF(ctx context.Context, doc *types.Document, pdfPath string, pageCount int) (*gcp.VisionOCRResult, error) {
	if pageCount > 0 && pageCount <= e.ocrInlinePageLimit {
		res, err := e.ocrPDFInline(ctx, pdfPath)
		if err == nil {
			return res, nil
		}
		e.log.Warn("inline ocr failed; falling back to async", "slug", doc.Slug, "error", err)
	}

	outPrefix := e.bucket.ObjectURI(path.Dir(doc.SourceKey)+"/ocr") + "/"
	return e.vision.OCRFileInGCS(ctx, e.bucket.ObjectURI(doc.SourceKey), "application/pdf", outPrefix, e.ocrMaxPages)
}

func (e *Extractor) ocrPDFInline(ctx context.Context, pdfPath string) (*gcp.VisionOCRResult, error) {
	dir, err := os.MkdirTemp("", "docbridge_ocr_*")
	if err != nil {
		return nil, fmt.Errorf("temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	paths, err := e.media.RenderPDFToImages(ctx, pdfPath, dir, localmedia.PDFRenderOptions{DPI: 200, Format: "png"})
	if err != nil {
		return nil, fmt.Errorf("render pdf pages: %w", err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no pages rendered")
	}

	merged := &gcp.VisionOCRResult{Provider: "gcp_vision", MimeType: "application/pdf"}
	for i, p := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pageNum := i + 1
		img, err := os.ReadFile(p)
		if err != nil {
			merged.Warnings = append(merged.Warnings, fmt.Sprintf("read page %d image: %v", pageNum, err))
			continue
		}
		r, err := e.vision.OCRImageBytes(ctx, img, "image/png")
		if err != nil {
			merged.Warnings = append(merged.Warnings, fmt.Sprintf("ocr page %d: %v", pageNum, err))
			continue
		}
		conf := 0.0
		if len(r.Pages) > 0 {
			conf = r.Pages[0].Confidence
		}
		merged.Pages = append(merged.Pages, gcp.VisionOCRPage{
			PageNumber: pageNum,
			Text:       r.PrimaryText,
			Confidence: conf,
		})
		for _, sg := range r.Segments {
			sg.Page = types.PtrInt(pageNum)
			merged.Segments = append(merged.Segments, sg)
		}
	}
	return merged, nil
}

// pagedTextFromSegments rebuilds marker-tagged full text from per-page
// segments. Segments without a page land before the first marker.
func pagedTextFromSegments(segs []types.Segment, fallback string) string {
	byPage := map[int][]string{}
	for _, sg := range segs {
		t := strings.TrimSpace(sg.Text)
		if t == "" {
			continue
		}
		pg := 0
		if sg.Page != nil && *sg.Page > 0 {
			pg = *sg.Page
		}
		byPage[pg] = append(byPage[pg], t)
	}
	if len(byPage) == 0 {
		return strings.TrimSpace(fallback)
	}

	pages := make([]int, 0, len(byPage))
	for pg := range byPage {
		pages = append(pages, pg)
	}
	sort.Ints(pages)

	var b strings.Builder
	for _, pg := range pages {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		if pg > 0 {
			fmt.Fprintf(&b, "[Page %d]\n", pg)
		}
		b.WriteString(strings.Join(byPage[pg], "\n\n"))
	}
	return b.String()
}

// pagedTextFromPdftotext splits raw pdftotext output on form feeds and tags
// each page with its marker.
func pagedTextFromPdftotext(raw string) (string, []types.Segment) {
	pageTexts := strings.Split(raw, "\f")
	var b strings.Builder
	segs := make([]types.Segment, 0, len(pageTexts))
	for i, pt := range pageTexts {
		t := strings.TrimSpace(pt)
		if t == "" {
			continue
		}
		pageNum := i + 1
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[Page %d]\n%s", pageNum, t)
		segs = append(segs, types.Segment{
			Text: t,
			Page: types.PtrInt(pageNum),
			Metadata: map[string]any{
				"kind":     "pdftotext",
				"provider": "local_pdftotext",
			},
		})
	}
	return b.String(), segs
}

func pagedTextFromVision(vres *gcp.VisionOCRResult) (string, []types.Segment) {
	if len(vres.Pages) == 0 {
		return strings.TrimSpace(vres.PrimaryText), vres.Segments
	}
	var b strings.Builder
	for _, pg := range vres.Pages {
		t := strings.TrimSpace(pg.Text)
		if t == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[Page %d]\n%s", pg.PageNumber, t)
	}
	return b.String(), vres.Segments
}
