package extractor

import (
	"errors"
	"strings"
	"testing"

	types "github.com/yungbote/docbridge-backend/internal/domain"
	apperrors "github.com/yungbote/docbridge-backend/internal/pkg/errors"
)

func TestChunkTextValidation(t *testing.T) {
	cases := []struct {
		name string
		text string
		opts ChunkOptions
	}{
		{"empty text", "", ChunkOptions{ChunkSizeTokens: 500, OverlapTokens: 50}},
		{"whitespace text", "   \n\t  ", ChunkOptions{ChunkSizeTokens: 500, OverlapTokens: 50}},
		{"size too small", "some text", ChunkOptions{ChunkSizeTokens: 99, OverlapTokens: 0}},
		{"size too large", "some text", ChunkOptions{ChunkSizeTokens: 5001, OverlapTokens: 0}},
		{"overlap negative", "some text", ChunkOptions{ChunkSizeTokens: 500, OverlapTokens: -1}},
		{"overlap equals size", "some text", ChunkOptions{ChunkSizeTokens: 500, OverlapTokens: 500}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ChunkText(tc.text, tc.opts)
			var perr *apperrors.ProcessingError
			if !errors.As(err, &perr) {
				t.Fatalf("err = %v, want *ProcessingError", err)
			}
		})
	}
}

func TestChunkTextCoverageAndOverlap(t *testing.T) {
	text := strings.Repeat("abcdefghij", 100) // 1000 runes
	opts := ChunkOptions{ChunkSizeTokens: 100, OverlapTokens: 25}

	chunks, err := ChunkText(text, opts)
	if err != nil {
		t.Fatalf("ChunkText: %v", err)
	}
	if len(chunks) != 3 {
		t.Fatalf("len = %d, want 3", len(chunks))
	}

	window := opts.ChunkSizeTokens * CharsPerToken
	overlap := opts.OverlapTokens * CharsPerToken

	if chunks[0].CharStart != 0 {
		t.Fatalf("first chunk starts at %d", chunks[0].CharStart)
	}
	if last := chunks[len(chunks)-1]; last.CharEnd != len([]rune(text)) {
		t.Fatalf("last chunk ends at %d, want %d", last.CharEnd, len(text))
	}
	for i, c := range chunks {
		if c.Index != i {
			t.Fatalf("chunk %d has index %d", i, c.Index)
		}
		if c.CharEnd-c.CharStart > window {
			t.Fatalf("chunk %d spans %d runes, window is %d", i, c.CharEnd-c.CharStart, window)
		}
		if c.Content != text[c.CharStart:c.CharEnd] {
			t.Fatalf("chunk %d content does not match its range", i)
		}
		if i == 0 {
			continue
		}
		prev := chunks[i-1]
		if got := prev.CharEnd - c.CharStart; i < len(chunks)-1 && got != overlap {
			t.Fatalf("chunks %d/%d overlap by %d, want %d", i-1, i, got, overlap)
		}
		if c.CharStart > prev.CharEnd {
			t.Fatalf("gap between chunks %d and %d", i-1, i)
		}
	}
}

func TestChunkTextDeterministic(t *testing.T) {
	text := "[Page 1]" + strings.Repeat("lorem ipsum dolor sit amet ", 80)
	opts := ChunkOptions{ChunkSizeTokens: 120, OverlapTokens: 20, TotalPages: 3}

	a, err := ChunkText(text, opts)
	if err != nil {
		t.Fatalf("ChunkText: %v", err)
	}
	b, err := ChunkText(text, opts)
	if err != nil {
		t.Fatalf("ChunkText: %v", err)
	}
	if len(a) != len(b) {
		t.Fatalf("runs differ: %d vs %d chunks", len(a), len(b))
	}
	for i := range a {
		if a[i].CharStart != b[i].CharStart || a[i].CharEnd != b[i].CharEnd {
			t.Fatalf("chunk %d ranges differ between runs", i)
		}
		if *a[i].Page != *b[i].Page {
			t.Fatalf("chunk %d pages differ between runs", i)
		}
	}
}

func TestChunkTextPageFromMarkers(t *testing.T) {
	text := "[Page 1]" + strings.Repeat("a", 392) +
		"[Page 2]" + strings.Repeat("b", 392) +
		"[Page 3]" + strings.Repeat("c", 200)
	opts := ChunkOptions{ChunkSizeTokens: 100, OverlapTokens: 0, TotalPages: 3}

	chunks, err := ChunkText(text, opts)
	if err != nil {
		t.Fatalf("ChunkText: %v", err)
	}
	if len(chunks) != 3 {
		t.Fatalf("len = %d, want 3", len(chunks))
	}
	for i, want := range []int{1, 2, 3} {
		if chunks[i].Page == nil || *chunks[i].Page != want {
			t.Fatalf("chunk %d page = %v, want %d", i, chunks[i].Page, want)
		}
	}
}

func TestChunkTextPageLastMarkerInsideWins(t *testing.T) {
	// Two markers inside one chunk: the later one owns the chunk.
	text := "[Page 1]" + strings.Repeat("a", 50) + "[Page 2]" + strings.Repeat("b", 1000)
	opts := ChunkOptions{ChunkSizeTokens: 100, OverlapTokens: 0, TotalPages: 5}

	chunks, err := ChunkText(text, opts)
	if err != nil {
		t.Fatalf("ChunkText: %v", err)
	}
	if chunks[0].Page == nil || *chunks[0].Page != 2 {
		t.Fatalf("chunk 0 page = %v, want 2", chunks[0].Page)
	}
	// Later chunks have no marker inside; the preceding marker carries over.
	if last := chunks[len(chunks)-1]; last.Page == nil || *last.Page != 2 {
		t.Fatalf("last chunk page = %v, want 2", last.Page)
	}
}

func TestChunkTextPageClamping(t *testing.T) {
	text := "[Page 9]" + strings.Repeat("a", 500)
	opts := ChunkOptions{ChunkSizeTokens: 100, OverlapTokens: 0, TotalPages: 4}

	chunks, err := ChunkText(text, opts)
	if err != nil {
		t.Fatalf("ChunkText: %v", err)
	}
	for i, c := range chunks {
		if c.Page == nil || *c.Page < 1 || *c.Page > opts.TotalPages {
			t.Fatalf("chunk %d page = %v, want within [1, %d]", i, c.Page, opts.TotalPages)
		}
	}
}

func TestChunkTextPageDefaultsToOne(t *testing.T) {
	text := strings.Repeat("no markers here ", 60)
	opts := ChunkOptions{ChunkSizeTokens: 100, OverlapTokens: 0, TotalPages: 7}

	chunks, err := ChunkText(text, opts)
	if err != nil {
		t.Fatalf("ChunkText: %v", err)
	}
	for i, c := range chunks {
		if c.Page == nil || *c.Page != 1 {
			t.Fatalf("chunk %d page = %v, want 1", i, c.Page)
		}
	}
}

func TestChunkTextUnpagedSourceHasNoPage(t *testing.T) {
	text := strings.Repeat("spoken words ", 40)
	opts := ChunkOptions{ChunkSizeTokens: 100, OverlapTokens: 0}

	chunks, err := ChunkText(text, opts)
	if err != nil {
		t.Fatalf("ChunkText: %v", err)
	}
	for i, c := range chunks {
		if c.Page != nil {
			t.Fatalf("chunk %d page = %d, want nil for unpaged source", i, *c.Page)
		}
	}
}

func TestChunkTextDropsWhitespaceWindows(t *testing.T) {
	text := strings.Repeat("a", 400) + strings.Repeat(" ", 400) + strings.Repeat("b", 400)
	opts := ChunkOptions{ChunkSizeTokens: 100, OverlapTokens: 0}

	chunks, err := ChunkText(text, opts)
	if err != nil {
		t.Fatalf("ChunkText: %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("len = %d, want 2 (whitespace window dropped)", len(chunks))
	}
	if chunks[0].Index != 0 || chunks[1].Index != 1 {
		t.Fatalf("indices not contiguous after drop: %d, %d", chunks[0].Index, chunks[1].Index)
	}
	if chunks[1].CharStart != 800 {
		t.Fatalf("second chunk starts at %d, want 800", chunks[1].CharStart)
	}
}

func TestChunkTextSegmentTimes(t *testing.T) {
	segA := strings.TrimSpace(strings.Repeat("aaa ", 100))
	segB := strings.TrimSpace(strings.Repeat("bbb ", 100))
	text := segA + " " + segB
	opts := ChunkOptions{
		ChunkSizeTokens: 100,
		OverlapTokens:   0,
		Segments: []types.Segment{
			{Text: segA, StartSec: types.PtrFloat(0), EndSec: types.PtrFloat(2.5)},
			{Text: segB, StartSec: types.PtrFloat(2.5), EndSec: types.PtrFloat(5.0)},
		},
	}

	chunks, err := ChunkText(text, opts)
	if err != nil {
		t.Fatalf("ChunkText: %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("len = %d, want 2", len(chunks))
	}
	if chunks[0].StartSec == nil || *chunks[0].StartSec != 0 {
		t.Fatalf("chunk 0 start = %v, want 0", chunks[0].StartSec)
	}
	if chunks[0].EndSec == nil || *chunks[0].EndSec != 2.5 {
		t.Fatalf("chunk 0 end = %v, want 2.5", chunks[0].EndSec)
	}
	if chunks[1].StartSec == nil || *chunks[1].StartSec != 2.5 {
		t.Fatalf("chunk 1 start = %v, want 2.5", chunks[1].StartSec)
	}
	if chunks[1].EndSec == nil || *chunks[1].EndSec != 5.0 {
		t.Fatalf("chunk 1 end = %v, want 5.0", chunks[1].EndSec)
	}

	// Chunk spanning both segments takes first start and last end.
	wide, err := ChunkText(text, ChunkOptions{ChunkSizeTokens: 250, OverlapTokens: 0, Segments: opts.Segments})
	if err != nil {
		t.Fatalf("ChunkText: %v", err)
	}
	if len(wide) != 1 {
		t.Fatalf("len = %d, want 1", len(wide))
	}
	if *wide[0].StartSec != 0 || *wide[0].EndSec != 5.0 {
		t.Fatalf("wide chunk times = %v..%v, want 0..5", *wide[0].StartSec, *wide[0].EndSec)
	}
}

func TestChunkTextUnicodeOffsetsAreRunes(t *testing.T) {
	text := strings.Repeat("héllo wörld ", 60)
	opts := ChunkOptions{ChunkSizeTokens: 100, OverlapTokens: 10}

	chunks, err := ChunkText(text, opts)
	if err != nil {
		t.Fatalf("ChunkText: %v", err)
	}
	runes := []rune(text)
	for i, c := range chunks {
		if c.CharEnd > len(runes) {
			t.Fatalf("chunk %d end %d beyond rune length %d", i, c.CharEnd, len(runes))
		}
		if got := string(runes[c.CharStart:c.CharEnd]); got != c.Content {
			t.Fatalf("chunk %d content mismatch under rune slicing", i)
		}
	}
}
