package services

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"image/color"
	"os"
	"strings"
	"sync"
	"unicode"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/yungbote/docbridge-backend/internal/platform/logger"
)

const (
	coverWidth    = 600
	coverHeight   = 800
	coverFontSize = 240
)

// CoverService renders the placeholder cover stored next to a document's
// raw upload: the title's initials over a palette color. Rendering is
// deterministic per title so re-uploads of the same document look the same.
type CoverService interface {
	Render(ctx context.Context, title string) ([]byte, error)
}

type coverService struct {
	log     *logger.Logger
	palette []color.NRGBA

	// truetype faces are not safe for concurrent use.
	mu       sync.Mutex
	fontFace font.Face
}

// defaultCoverPalette is used when COVER_COLORS_JSON_PATH is not set.
var defaultCoverPalette = []color.NRGBA{
	{R: 0x1A, G: 0xBC, B: 0x9C, A: 0xFF},
	{R: 0x16, G: 0xA0, B: 0x85, A: 0xFF},
	{R: 0x27, G: 0xAE, B: 0x60, A: 0xFF},
	{R: 0x29, G: 0x80, B: 0xB9, A: 0xFF},
	{R: 0x8E, G: 0x44, B: 0xAD, A: 0xFF},
	{R: 0x2C, G: 0x3E, B: 0x50, A: 0xFF},
	{R: 0xF3, G: 0x9C, B: 0x12, A: 0xFF},
	{R: 0xD3, G: 0x54, B: 0x00, A: 0xFF},
	{R: 0xC0, G: 0x39, B: 0x2B, A: 0xFF},
	{R: 0x7F, G: 0x8C, B: 0x8D, A: 0xFF},
}

func NewCoverService(log *logger.Logger) (CoverService, error) {
	serviceLog := log.With("service", "CoverService")

	palette := defaultCoverPalette
	if path := strings.TrimSpace(os.Getenv("COVER_COLORS_JSON_PATH")); path != "" {
		serviceLog.Info("Loading cover palette", "path", path)
		loaded, err := loadPaletteFromFile(path)
		if err != nil {
			return nil, fmt.Errorf("could not load cover palette: %w", err)
		}
		if len(loaded) == 0 {
			return nil, fmt.Errorf("cover palette %q is empty", path)
		}
		palette = loaded
	}

	fontBytes := goregular.TTF
	if path := strings.TrimSpace(os.Getenv("COVER_FONT")); path != "" {
		serviceLog.Info("Loading cover font", "font", path)
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("could not read cover font: %w", err)
		}
		fontBytes = b
	}

	parsedFont, err := truetype.Parse(fontBytes)
	if err != nil {
		return nil, fmt.Errorf("could not parse cover font: %w", err)
	}
	face := truetype.NewFace(parsedFont, &truetype.Options{
		Size:    coverFontSize,
		DPI:     72,
		Hinting: font.HintingNone,
	})

	return &coverService{
		log:      serviceLog,
		palette:  palette,
		fontFace: face,
	}, nil
}

func (cs *coverService) Render(ctx context.Context, title string) ([]byte, error) {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	dc := gg.NewContext(coverWidth, coverHeight)

	dc.SetColor(cs.pickColor(title))
	dc.DrawRectangle(0, 0, coverWidth, coverHeight)
	dc.Fill()

	dc.SetFontFace(cs.fontFace)
	dc.SetColor(color.White)
	dc.DrawStringAnchored(coverInitials(title), float64(coverWidth)/2, float64(coverHeight)/2, 0.5, 0.5)

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, fmt.Errorf("failed to encode PNG: %w", err)
	}
	return buf.Bytes(), nil
}

func (cs *coverService) pickColor(title string) color.NRGBA {
	h := fnv.New32a()
	h.Write([]byte(strings.ToLower(strings.TrimSpace(title))))
	return cs.palette[h.Sum32()%uint32(len(cs.palette))]
}

// coverInitials takes the first letter of the first and last words of the
// title, so "Introduction to Algorithms" renders as "IA".
func coverInitials(title string) string {
	fields := strings.Fields(title)
	switch len(fields) {
	case 0:
		return "?"
	case 1:
		return firstLetter(fields[0])
	default:
		return firstLetter(fields[0]) + firstLetter(fields[len(fields)-1])
	}
}

func firstLetter(word string) string {
	for _, r := range word {
		return string(unicode.ToUpper(r))
	}
	return "?"
}

// loadPaletteFromFile reads a JSON array of "#RRGGBB" strings.
func loadPaletteFromFile(jsonPath string) ([]color.NRGBA, error) {
	data, err := os.ReadFile(jsonPath)
	if err != nil {
		return nil, fmt.Errorf("read file error: %w", err)
	}
	var hexes []string
	if err := json.Unmarshal(data, &hexes); err != nil {
		return nil, fmt.Errorf("json unmarshal error: %w", err)
	}
	out := make([]color.NRGBA, 0, len(hexes))
	for _, s := range hexes {
		r, g, b, err := parseHexRGB(s)
		if err != nil {
			return nil, fmt.Errorf("palette entry %q: %w", s, err)
		}
		out = append(out, color.NRGBA{R: r, G: g, B: b, A: 0xFF})
	}
	return out, nil
}

func parseHexRGB(s string) (r, g, b uint8, err error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "#") {
		s = s[1:]
	}
	if len(s) != 6 {
		return 0, 0, 0, fmt.Errorf("expected 6 hex chars")
	}
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != 3 {
		return 0, 0, 0, fmt.Errorf("invalid hex")
	}
	return raw[0], raw[1], raw[2], nil
}
