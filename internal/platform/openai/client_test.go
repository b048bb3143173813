package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/yungbote/docbridge-backend/internal/pkg/httpx"
	"github.com/yungbote/docbridge-backend/internal/platform/logger"
)

func testClient(t *testing.T, srv *httptest.Server) Client {
	t.Helper()
	t.Setenv("OPENAI_API_KEY", "test-key")
	t.Setenv("OPENAI_BASE_URL", srv.URL)
	t.Setenv("OPENAI_MAX_RETRIES", "0")
	t.Setenv("OPENAI_TIMEOUT_SECONDS", "5")

	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	c, err := NewClient(log)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestEmbedPositionalMapping(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/embeddings" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var req struct {
			Input []string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if len(req.Input) != 3 {
			t.Errorf("input length = %d", len(req.Input))
		}
		// Out of order on purpose.
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"index": 2, "embedding": []float64{0.3}},
				{"index": 0, "embedding": []float64{0.1}},
				{"index": 1, "embedding": []float64{0.2}},
			},
		})
	}))
	defer srv.Close()

	c := testClient(t, srv)
	vecs, err := c.Embed(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vecs) != 3 {
		t.Fatalf("len = %d", len(vecs))
	}
	for i, want := range []float32{0.1, 0.2, 0.3} {
		if len(vecs[i]) != 1 || vecs[i][0] != want {
			t.Fatalf("vecs[%d] = %v, want [%v]", i, vecs[i], want)
		}
	}
}

func TestEmbedBlankInputsAreSent(t *testing.T) {
	var gotInputs []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input []string `json:"input"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		gotInputs = req.Input
		data := make([]map[string]any, len(req.Input))
		for i := range req.Input {
			data[i] = map[string]any{"index": i, "embedding": []float64{1}}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"data": data})
	}))
	defer srv.Close()

	c := testClient(t, srv)
	if _, err := c.Embed(context.Background(), []string{"", "  ", "x"}); err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(gotInputs) != 3 || gotInputs[0] != " " || gotInputs[1] != " " {
		t.Fatalf("blank inputs not padded: %q", gotInputs)
	}
}

func TestEmbedRateLimitSurfacesRetryAfter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limit"}}`))
	}))
	defer srv.Close()

	c := testClient(t, srv)
	_, err := c.Embed(context.Background(), []string{"a"})
	if err == nil {
		t.Fatalf("expected error")
	}
	var rl *httpx.RateLimitError
	if !errors.As(err, &rl) {
		t.Fatalf("err = %v, want RateLimitError", err)
	}
	if rl.Provider != "openai" {
		t.Fatalf("provider = %q", rl.Provider)
	}
	if rl.RetryAfter != 7*time.Second {
		t.Fatalf("retry after = %v, want 7s", rl.RetryAfter)
	}
}

func TestGenerateJSONStrictSchema(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/responses" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var req map[string]any
		_ = json.NewDecoder(r.Body).Decode(&req)
		text, _ := req["text"].(map[string]any)
		format, _ := text["format"].(map[string]any)
		if format["type"] != "json_schema" || format["strict"] != true {
			t.Errorf("format = %v", format)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"output": []map[string]any{
				{
					"type": "message",
					"role": "assistant",
					"content": []map[string]any{
						{"type": "output_text", "text": `{"abstract":"short summary"}`},
					},
				},
			},
		})
	}))
	defer srv.Close()

	c := testClient(t, srv)
	obj, err := c.GenerateJSON(context.Background(), "system", "user", "doc_abstract", map[string]any{
		"type": "object",
	})
	if err != nil {
		t.Fatalf("GenerateJSON: %v", err)
	}
	if obj["abstract"] != "short summary" {
		t.Fatalf("obj = %v", obj)
	}
}

func TestGenerateJSONRequiresSchema(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("server should not be called")
	}))
	defer srv.Close()

	c := testClient(t, srv)
	if _, err := c.GenerateJSON(context.Background(), "s", "u", "", map[string]any{"type": "object"}); err == nil {
		t.Fatalf("missing schemaName accepted")
	}
	if _, err := c.GenerateJSON(context.Background(), "s", "u", "name", nil); err == nil {
		t.Fatalf("missing schema accepted")
	}
}

func TestTranscribeVerboseJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/transcriptions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(10 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		if got := r.FormValue("response_format"); got != "verbose_json" {
			t.Errorf("response_format = %q", got)
		}
		if _, hdr, err := r.FormFile("file"); err != nil || hdr.Filename != "lecture.mp3" {
			t.Errorf("file part missing or misnamed: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"text":     "hello world again",
			"language": "en",
			"duration": 4.5,
			"segments": []map[string]any{
				{"start": 0.0, "end": 2.0, "text": " hello world"},
				{"start": 2.0, "end": 4.5, "text": "again "},
				{"start": 4.5, "end": 4.5, "text": "   "},
			},
		})
	}))
	defer srv.Close()

	c := testClient(t, srv)
	tr, err := c.Transcribe(context.Background(), strings.NewReader("fake-audio-bytes"), "lecture.mp3", "audio/mpeg")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if tr.Text != "hello world again" || tr.Language != "en" || tr.DurationSec != 4.5 {
		t.Fatalf("transcription = %+v", tr)
	}
	if len(tr.Segments) != 2 {
		t.Fatalf("segments = %d, want 2 (blank dropped)", len(tr.Segments))
	}
	if tr.Segments[0].Text != "hello world" || tr.Segments[0].EndSec != 2.0 {
		t.Fatalf("segment 0 = %+v", tr.Segments[0])
	}
}
