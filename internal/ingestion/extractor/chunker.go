package extractor

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	types "github.com/yungbote/docbridge-backend/internal/domain"
	apperrors "github.com/yungbote/docbridge-backend/internal/pkg/errors"
)

// CharsPerToken approximates token length without a real tokenizer. All
// window arithmetic below is in runes.
const CharsPerToken = 4

const (
	MinChunkSizeTokens = 100
	MaxChunkSizeTokens = 5000
)

type ChunkOptions struct {
	ChunkSizeTokens int
	OverlapTokens   int
	// TotalPages caps page assignment; zero means the source is unpaged.
	TotalPages int
	// Segments carry timing provenance for transcribed audio.
	Segments []types.Segment
}

// Chunk is one overlapping window of extracted text, positioned by rune
// offsets into the source text.
type Chunk struct {
	Index         int
	Content       string
	CharStart     int
	CharEnd       int
	Page          *int
	StartSec      *float64
	EndSec        *float64
	TokenEstimate int
}

var pageMarkerRe = regexp.MustCompile(`\[Page (\d+)\]`)

// ChunkText slides a window of ChunkSizeTokens*CharsPerToken runes with step
// (size-overlap)*CharsPerToken, dropping whitespace-only windows. Pages come
// from "[Page N]" markers; times from overlapping segments.
func ChunkText(text string, opts ChunkOptions) ([]Chunk, error) {
	if strings.TrimSpace(text) == "" {
		return nil, &apperrors.ProcessingError{Stage: "chunk", Err: fmt.Errorf("input text is empty: %w", apperrors.ErrInvalidArgument)}
	}
	if opts.ChunkSizeTokens < MinChunkSizeTokens || opts.ChunkSizeTokens > MaxChunkSizeTokens {
		return nil, &apperrors.ProcessingError{Stage: "chunk", Err: fmt.Errorf("chunk size %d out of [%d, %d]: %w", opts.ChunkSizeTokens, MinChunkSizeTokens, MaxChunkSizeTokens, apperrors.ErrInvalidArgument)}
	}
	if opts.OverlapTokens < 0 || opts.OverlapTokens >= opts.ChunkSizeTokens {
		return nil, &apperrors.ProcessingError{Stage: "chunk", Err: fmt.Errorf("overlap %d out of [0, %d): %w", opts.OverlapTokens, opts.ChunkSizeTokens, apperrors.ErrInvalidArgument)}
	}

	runes := []rune(text)
	n := len(runes)
	window := opts.ChunkSizeTokens * CharsPerToken
	step := (opts.ChunkSizeTokens - opts.OverlapTokens) * CharsPerToken

	markers := findPageMarkers(text)
	segments := locateSegments(runes, opts.Segments)

	var out []Chunk
	for start := 0; start < n; start += step {
		end := start + window
		if end > n {
			end = n
		}
		content := string(runes[start:end])
		if strings.TrimSpace(content) != "" {
			c := Chunk{
				Index:         len(out),
				Content:       content,
				CharStart:     start,
				CharEnd:       end,
				TokenEstimate: (end - start + CharsPerToken - 1) / CharsPerToken,
			}
			assignPage(&c, markers, opts.TotalPages)
			assignTimes(&c, segments)
			out = append(out, c)
		}
		if end == n {
			break
		}
	}

	if len(out) == 0 {
		return nil, &apperrors.ProcessingError{Stage: "chunk", Err: fmt.Errorf("no chunks produced from %d runes", n)}
	}
	return out, nil
}

type pageMarker struct {
	pos  int // rune offset of the marker's opening bracket
	page int
}

func findPageMarkers(text string) []pageMarker {
	idx := pageMarkerRe.FindAllStringSubmatchIndex(text, -1)
	if len(idx) == 0 {
		return nil
	}
	out := make([]pageMarker, 0, len(idx))
	runeOff := 0
	byteOff := 0
	for _, m := range idx {
		// Matches come back in byte order, so one forward pass converts
		// byte offsets to rune offsets.
		runeOff += utf8.RuneCountInString(text[byteOff:m[0]])
		byteOff = m[0]
		page, err := strconv.Atoi(text[m[2]:m[3]])
		if err != nil || page < 1 {
			continue
		}
		out = append(out, pageMarker{pos: runeOff, page: page})
	}
	return out
}

func assignPage(c *Chunk, markers []pageMarker, totalPages int) {
	if totalPages <= 0 && len(markers) == 0 {
		return
	}
	page := 1
	found := false
	for _, m := range markers {
		if m.pos >= c.CharStart && m.pos < c.CharEnd {
			page = m.page
			found = true
		}
	}
	if !found {
		for _, m := range markers {
			if m.pos < c.CharStart {
				page = m.page
			}
		}
	}
	if page < 1 {
		page = 1
	}
	if totalPages > 0 && page > totalPages {
		page = totalPages
	}
	c.Page = &page
}

type locatedSegment struct {
	start, end int // rune offsets in the full text
	seg        types.Segment
}

// locateSegments finds each segment's position in the full text with a
// forward-moving cursor, tolerating whatever separators the extractor put
// between segments. Segments whose text cannot be found are skipped.
func locateSegments(runes []rune, segs []types.Segment) []locatedSegment {
	if len(segs) == 0 {
		return nil
	}
	out := make([]locatedSegment, 0, len(segs))
	cursor := 0
	for _, s := range segs {
		segRunes := []rune(strings.TrimSpace(s.Text))
		if len(segRunes) == 0 {
			continue
		}
		idx := runeIndex(runes, segRunes, cursor)
		if idx < 0 {
			continue
		}
		out = append(out, locatedSegment{start: idx, end: idx + len(segRunes), seg: s})
		cursor = idx + len(segRunes)
	}
	return out
}

func assignTimes(c *Chunk, segments []locatedSegment) {
	if len(segments) == 0 {
		return
	}
	var first, last *locatedSegment
	for i := range segments {
		s := &segments[i]
		if s.start < c.CharEnd && s.end > c.CharStart {
			if first == nil {
				first = s
			}
			last = s
		}
	}
	if first == nil {
		// Nearest preceding segment, else the following one.
		for i := range segments {
			s := &segments[i]
			if s.end <= c.CharStart {
				first = s
				last = s
			}
		}
		if first == nil {
			for i := range segments {
				s := &segments[i]
				if s.start >= c.CharEnd {
					first = s
					last = s
					break
				}
			}
		}
	}
	if first == nil {
		return
	}
	if first.seg.StartSec != nil {
		v := *first.seg.StartSec
		c.StartSec = &v
	}
	if last.seg.EndSec != nil {
		v := *last.seg.EndSec
		c.EndSec = &v
	}
}

func runeIndex(haystack, needle []rune, from int) int {
	if from < 0 {
		from = 0
	}
	if len(needle) == 0 || from+len(needle) > len(haystack) {
		return -1
	}
	for i := from; i+len(needle) <= len(haystack); i++ {
		match := true
		for j := range needle {
			if haystack[i+j] != needle[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}
