package extractor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	types "github.com/yungbote/docbridge-backend/internal/domain"
	apperrors "github.com/yungbote/docbridge-backend/internal/pkg/errors"
	"github.com/yungbote/docbridge-backend/internal/platform/gcp"
	"github.com/yungbote/docbridge-backend/internal/platform/localmedia"
	"github.com/yungbote/docbridge-backend/internal/platform/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	return log
}

// fakeBucket serves objects from memory.
type fakeBucket struct {
	objects map[string][]byte
}

func (f *fakeBucket) UploadFile(ctx context.Context, key string, file io.Reader) error {
	b, err := io.ReadAll(file)
	if err != nil {
		return err
	}
	if f.objects == nil {
		f.objects = map[string][]byte{}
	}
	f.objects[key] = b
	return nil
}

func (f *fakeBucket) DownloadFile(ctx context.Context, key string) (io.ReadCloser, error) {
	b, ok := f.objects[key]
	if !ok {
		return nil, fmt.Errorf("object %q not found", key)
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (f *fakeBucket) DeleteFile(ctx context.Context, key string) error {
	delete(f.objects, key)
	return nil
}

func (f *fakeBucket) GetObjectAttrs(ctx context.Context, key string) (*gcp.ObjectAttrs, error) {
	b, ok := f.objects[key]
	if !ok {
		return nil, fmt.Errorf("object %q not found", key)
	}
	return &gcp.ObjectAttrs{Size: int64(len(b)), Updated: time.Now()}, nil
}

func (f *fakeBucket) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	var out []string
	for k := range f.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	return out, nil
}

func (f *fakeBucket) DeletePrefix(ctx context.Context, prefix string) error {
	for k := range f.objects {
		if strings.HasPrefix(k, prefix) {
			delete(f.objects, k)
		}
	}
	return nil
}

func (f *fakeBucket) ObjectURI(key string) string    { return "gs://test-bucket/" + key }
func (f *fakeBucket) GetPublicURL(key string) string { return "https://cdn.test/" + key }

// fakeTools scripts probe durations by file basename and fabricates split
// pieces on disk.
type fakeTools struct {
	durations   map[string]float64
	splitPieces int
	splitCalls  int
}

func (f *fakeTools) AssertReady(ctx context.Context) error { return nil }

func (f *fakeTools) ExtractPDFText(ctx context.Context, pdfPath string) (string, error) {
	return "", fmt.Errorf("not scripted")
}

func (f *fakeTools) CountPDFPages(ctx context.Context, pdfPath string) (int, error) {
	return 0, fmt.Errorf("not scripted")
}

func (f *fakeTools) RenderPDFToImages(ctx context.Context, pdfPath string, outDir string, opts localmedia.PDFRenderOptions) ([]string, error) {
	return nil, fmt.Errorf("not scripted")
}

func (f *fakeTools) ProbeDurationSec(ctx context.Context, mediaPath string) (float64, error) {
	if d, ok := f.durations[filepath.Base(mediaPath)]; ok {
		return d, nil
	}
	return 0, fmt.Errorf("no scripted duration for %s", filepath.Base(mediaPath))
}

func (f *fakeTools) SplitAudio(ctx context.Context, audioPath string, outDir string, segmentSeconds float64) ([]string, error) {
	f.splitCalls++
	var out []string
	for i := 0; i < f.splitPieces; i++ {
		p := filepath.Join(outDir, fmt.Sprintf("piece_%04d.mp3", i))
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (f *fakeTools) ExtractAudioTrack(ctx context.Context, videoPath string, outPath string, opts localmedia.AudioExtractOptions) (string, error) {
	return "", fmt.Errorf("not scripted")
}

func (f *fakeTools) WriteTempFile(ctx context.Context, data []byte, suffix string) (string, func(), error) {
	return "", nil, fmt.Errorf("not scripted")
}

func TestSourceKind(t *testing.T) {
	cases := []struct {
		mime string
		key  string
		want string
	}{
		{"application/pdf", "documents/a/source.pdf", KindPDF},
		{"application/pdf; charset=binary", "x", KindPDF},
		{"audio/mpeg", "documents/a/source.mp3", KindAudio},
		{"video/mp4", "documents/a/source.mp4", KindVideo},
		{"text/plain; charset=utf-8", "notes.txt", KindText},
		{"text/markdown", "notes.md", KindText},
		{"", "documents/a/source.pdf", KindPDF},
		{"", "talk.m4a", KindAudio},
		{"", "clip.mov", KindVideo},
		{"", "readme.markdown", KindText},
		{"application/zip", "archive.zip", KindUnknown},
		{"", "", KindUnknown},
	}
	for _, tc := range cases {
		if got := SourceKind(tc.mime, tc.key); got != tc.want {
			t.Fatalf("SourceKind(%q, %q): want=%s got=%s", tc.mime, tc.key, tc.want, got)
		}
	}
}

func TestExtractPlainTextEndToEnd(t *testing.T) {
	bucket := &fakeBucket{objects: map[string][]byte{
		"documents/notes/source.txt": []byte("  alpha beta gamma delta epsilon zeta eta theta iota kappa  "),
	}}
	ex := New(testLogger(t), bucket, &fakeTools{}, nil, nil, nil, nil)

	doc := &types.Document{Slug: "notes", SourceKey: "documents/notes/source.txt", SourceMime: "text/plain"}
	res, err := ex.Extract(context.Background(), doc)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if res.Text != "alpha beta gamma delta epsilon zeta eta theta iota kappa" {
		t.Fatalf("unexpected text: %q", res.Text)
	}
	if res.Provider != "passthrough" {
		t.Fatalf("provider: want=passthrough got=%s", res.Provider)
	}
	if len(res.Segments) != 1 {
		t.Fatalf("segments: want=1 got=%d", len(res.Segments))
	}
}

func TestExtractRejectsUnsupportedType(t *testing.T) {
	bucket := &fakeBucket{objects: map[string][]byte{"documents/z/source.zip": []byte("pk")}}
	ex := New(testLogger(t), bucket, &fakeTools{}, nil, nil, nil, nil)

	doc := &types.Document{Slug: "z", SourceKey: "documents/z/source.zip", SourceMime: "application/zip"}
	_, err := ex.Extract(context.Background(), doc)
	if err == nil {
		t.Fatalf("expected error for unsupported type")
	}
	var exErr *apperrors.ExtractionError
	if !errors.As(err, &exErr) {
		t.Fatalf("want ExtractionError, got %T: %v", err, err)
	}
}

func TestPagedTextFromPdftotext(t *testing.T) {
	raw := "first page body\fsecond page body\f\f  \ffifth page body"
	text, segs := pagedTextFromPdftotext(raw)

	for _, marker := range []string{"[Page 1]", "[Page 2]", "[Page 5]"} {
		if !strings.Contains(text, marker) {
			t.Fatalf("text missing %s: %q", marker, text)
		}
	}
	if strings.Contains(text, "[Page 3]") || strings.Contains(text, "[Page 4]") {
		t.Fatalf("empty pages should not emit markers: %q", text)
	}
	if len(segs) != 3 {
		t.Fatalf("segments: want=3 got=%d", len(segs))
	}
	if segs[2].Page == nil || *segs[2].Page != 5 {
		t.Fatalf("third segment should keep original page number 5, got %v", segs[2].Page)
	}
}

func TestPagedTextFromSegments(t *testing.T) {
	segs := []types.Segment{
		{Text: "late", Page: types.PtrInt(2)},
		{Text: "front matter"},
		{Text: "early", Page: types.PtrInt(1)},
		{Text: "   "},
	}
	text := pagedTextFromSegments(segs, "fallback")

	iFront := strings.Index(text, "front matter")
	iEarly := strings.Index(text, "[Page 1]")
	iLate := strings.Index(text, "[Page 2]")
	if iFront < 0 || iEarly < 0 || iLate < 0 {
		t.Fatalf("missing sections in %q", text)
	}
	if !(iFront < iEarly && iEarly < iLate) {
		t.Fatalf("pages out of order: %q", text)
	}

	if got := pagedTextFromSegments(nil, "fallback body"); got != "fallback body" {
		t.Fatalf("empty segments should fall back to primary text, got %q", got)
	}
}

func TestTranscribeInPiecesReTimesSegments(t *testing.T) {
	tools := &fakeTools{
		splitPieces: 3,
		durations: map[string]float64{
			"big.mp3":        95.0,
			"piece_0000.mp3": 30.5,
			"piece_0001.mp3": 29.5,
			"piece_0002.mp3": 35.0,
		},
	}
	ex := New(testLogger(t), &fakeBucket{}, tools, nil, nil, nil, nil)

	dir := t.TempDir()
	big := filepath.Join(dir, "big.mp3")
	if err := os.WriteFile(big, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	var order []string
	tr := func(ctx context.Context, path string) (string, []types.Segment, error) {
		name := filepath.Base(path)
		order = append(order, name)
		return "text of " + name, []types.Segment{{
			Text:     "seg " + name,
			StartSec: types.PtrFloat(0),
			EndSec:   types.PtrFloat(10),
		}}, nil
	}

	res := &Result{}
	text, segs, err := ex.transcribeInPieces(context.Background(), big, 50<<20, 20<<20, tr, res)
	if err != nil {
		t.Fatalf("transcribeInPieces: %v", err)
	}

	if len(order) != 3 || order[0] != "piece_0000.mp3" || order[2] != "piece_0002.mp3" {
		t.Fatalf("pieces out of order: %v", order)
	}
	if want := "text of piece_0000.mp3\n\ntext of piece_0001.mp3\n\ntext of piece_0002.mp3"; text != want {
		t.Fatalf("joined text:\nwant=%q\ngot= %q", want, text)
	}
	if len(segs) != 3 {
		t.Fatalf("segments: want=3 got=%d", len(segs))
	}
	// Offsets accumulate the measured piece durations, not the requested cut.
	if *segs[0].StartSec != 0 || *segs[1].StartSec != 30.5 || *segs[2].StartSec != 60.0 {
		t.Fatalf("start offsets: got %v %v %v", *segs[0].StartSec, *segs[1].StartSec, *segs[2].StartSec)
	}
	if *segs[2].EndSec != 70.0 {
		t.Fatalf("third segment end: want=70 got=%v", *segs[2].EndSec)
	}
}

func TestTranscribeInPiecesFailsOnPieceError(t *testing.T) {
	tools := &fakeTools{
		splitPieces: 2,
		durations: map[string]float64{
			"big.mp3":        40.0,
			"piece_0000.mp3": 20.0,
			"piece_0001.mp3": 20.0,
		},
	}
	ex := New(testLogger(t), &fakeBucket{}, tools, nil, nil, nil, nil)

	dir := t.TempDir()
	big := filepath.Join(dir, "big.mp3")
	if err := os.WriteFile(big, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	tr := func(ctx context.Context, path string) (string, []types.Segment, error) {
		if strings.Contains(path, "piece_0001") {
			return "", nil, fmt.Errorf("provider unavailable")
		}
		return "ok", nil, nil
	}

	_, _, err := ex.transcribeInPieces(context.Background(), big, 50<<20, 20<<20, tr, &Result{})
	if err == nil {
		t.Fatalf("expected error when a piece fails")
	}
	if !strings.Contains(err.Error(), "piece 2/2") {
		t.Fatalf("error should name the failed piece: %v", err)
	}
}

func TestMimeForAudioPath(t *testing.T) {
	cases := map[string]string{
		"a/b/x.mp3":  "audio/mpeg",
		"x.WAV":      "audio/wav",
		"x.m4a":      "audio/mp4",
		"x.flac":     "audio/flac",
		"x.opus":     "audio/ogg",
		"x.whatever": "audio/mpeg",
	}
	for in, want := range cases {
		if got := mimeForAudioPath(in); got != want {
			t.Fatalf("mimeForAudioPath(%q): want=%s got=%s", in, want, got)
		}
	}
}
