package extractor

import (
	"context"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	types "github.com/yungbote/docbridge-backend/internal/domain"
	apperrors "github.com/yungbote/docbridge-backend/internal/pkg/errors"
)

// extractPlainText passes .txt/.md sources through unchanged. No page
// markers: the chunker assigns page 1 to everything.
func (e *Extractor) extractPlainText(ctx context.Context, doc *types.Document, path string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, &apperrors.ExtractionError{Source: doc.SourceKey, Mime: doc.SourceMime, Err: fmt.Errorf("read text file: %w", err)}
	}
	if !utf8.Valid(b) {
		return nil, &apperrors.ExtractionError{Source: doc.SourceKey, Mime: doc.SourceMime, Err: fmt.Errorf("text file is not valid UTF-8")}
	}

	text := strings.TrimSpace(string(b))
	res := &Result{
		Text:     text,
		Provider: "passthrough",
	}
	if text != "" {
		res.Segments = []types.Segment{{
			Text:     text,
			Metadata: map[string]any{"kind": "plain_text", "provider": "passthrough"},
		}}
	}
	return res, nil
}
