package extractor

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	types "github.com/yungbote/docbridge-backend/internal/domain"
	apperrors "github.com/yungbote/docbridge-backend/internal/pkg/errors"
	"github.com/yungbote/docbridge-backend/internal/platform/gcp"
	"github.com/yungbote/docbridge-backend/internal/platform/localmedia"
)

// pieceTranscriber transcribes one locally stored audio file and returns its
// text plus piece-relative timed segments.
type pieceTranscriber func(ctx context.Context, path string) (string, []types.Segment, error)

// extractVideo pulls the audio track (16k mono wav) and runs the audio
// contract on it.
func (e *Extractor) extractVideo(ctx context.Context, doc *types.Document, videoPath string) (*Result, error) {
	dir, err := os.MkdirTemp("", "docbridge_vaudio_*")
	if err != nil {
		return nil, &apperrors.ExtractionError{Source: doc.SourceKey, Mime: doc.SourceMime, Err: fmt.Errorf("temp dir: %w", err)}
	}
	defer os.RemoveAll(dir)

	audioPath, err := e.media.ExtractAudioTrack(ctx, videoPath, filepath.Join(dir, "audio.wav"), localmedia.AudioExtractOptions{
		SampleRateHz: 16000,
		Channels:     1,
		Format:       "wav",
	})
	if err != nil {
		return nil, &apperrors.ExtractionError{Source: doc.SourceKey, Mime: doc.SourceMime, Err: fmt.Errorf("extract audio track: %w", err)}
	}
	return e.extractAudio(ctx, doc, audioPath, true)
}

// extractAudio transcribes with the document's configured provider. Files over
// the provider's upload ceiling are cut into stream-copied pieces, transcribed
// strictly in order, and each piece's segments are re-timed by the measured
// duration of the pieces before it.
func (e *Extractor) extractAudio(ctx context.Context, doc *types.Document, audioPath string, derivedFromVideo bool) (*Result, error) {
	res := &Result{}

	if dur, err := e.media.ProbeDurationSec(ctx, audioPath); err != nil {
		res.Warnings = append(res.Warnings, "ffprobe duration failed: "+err.Error())
	} else {
		res.DurationSec = dur
	}

	provider := strings.ToLower(strings.TrimSpace(doc.TranscribeProvider))
	var (
		text string
		segs []types.Segment
		err  error
	)
	switch provider {
	case "", "openai":
		res.Provider = "openai_whisper"
		text, segs, err = e.transcribeWithCeiling(ctx, audioPath, openaiAudioCeilingBytes, e.transcribeOpenAIPiece, res)
	case "gcp", "gcp_speech":
		res.Provider = "gcp_speech"
		text, segs, err = e.transcribeGCP(ctx, doc, audioPath, derivedFromVideo, res)
	default:
		return nil, &apperrors.ExtractionError{
			Source: doc.SourceKey,
			Mime:   doc.SourceMime,
			Err:    fmt.Errorf("unknown transcribe provider %q: %w", doc.TranscribeProvider, apperrors.ErrInvalidArgument),
		}
	}
	if err != nil {
		return nil, &apperrors.ExtractionError{Source: doc.SourceKey, Mime: doc.SourceMime, Err: err}
	}

	res.Text = strings.TrimSpace(text)
	res.Segments = segs
	if res.Text == "" {
		return nil, &apperrors.ExtractionError{Source: doc.SourceKey, Mime: doc.SourceMime, Err: fmt.Errorf("transcription produced no text")}
	}
	return res, nil
}

// transcribeWithCeiling runs the single-shot path when the file fits and the
// split path when it does not.
func (e *Extractor) transcribeWithCeiling(ctx context.Context, audioPath string, ceiling int64, tr pieceTranscriber, res *Result) (string, []types.Segment, error) {
	st, err := os.Stat(audioPath)
	if err != nil {
		return "", nil, fmt.Errorf("stat audio: %w", err)
	}
	if st.Size() <= ceiling {
		return tr(ctx, audioPath)
	}
	return e.transcribeInPieces(ctx, audioPath, st.Size(), ceiling, tr, res)
}

func (e *Extractor) transcribeInPieces(ctx context.Context, audioPath string, sizeBytes, ceiling int64, tr pieceTranscriber, res *Result) (string, []types.Segment, error) {
	total, err := e.media.ProbeDurationSec(ctx, audioPath)
	if err != nil {
		return "", nil, fmt.Errorf("probe duration for split: %w", err)
	}

	pieces := int(math.Ceil(float64(sizeBytes) / (float64(ceiling) * splitSafetyMargin)))
	if pieces < 2 {
		pieces = 2
	}
	segmentSeconds := total / float64(pieces)

	dir, err := os.MkdirTemp("", "docbridge_split_*")
	if err != nil {
		return "", nil, fmt.Errorf("temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	paths, err := e.media.SplitAudio(ctx, audioPath, dir, segmentSeconds)
	if err != nil {
		return "", nil, fmt.Errorf("split audio: %w", err)
	}
	if len(paths) == 0 {
		return "", nil, fmt.Errorf("audio split produced no pieces")
	}
	e.log.Info("transcribing oversized audio in pieces",
		"size_bytes", sizeBytes, "pieces", len(paths), "segment_seconds", segmentSeconds)

	var (
		texts  []string
		segs   []types.Segment
		offset float64
	)
	for i, p := range paths {
		if err := ctx.Err(); err != nil {
			return "", nil, err
		}
		text, pieceSegs, err := tr(ctx, p)
		if err != nil {
			return "", nil, fmt.Errorf("transcribe piece %d/%d: %w", i+1, len(paths), err)
		}
		for _, sg := range pieceSegs {
			segs = append(segs, shiftSegment(sg, offset))
		}
		if t := strings.TrimSpace(text); t != "" {
			texts = append(texts, t)
		}

		// Stream-copied cuts land on frame boundaries, so the requested
		// segment time and the real piece duration differ. Offsets use
		// the measured value.
		measured, perr := e.media.ProbeDurationSec(ctx, p)
		if perr != nil || measured <= 0 {
			res.Warnings = append(res.Warnings, fmt.Sprintf("piece %d duration probe failed; using requested cut length", i+1))
			measured = segmentSeconds
		}
		offset += measured
	}
	return strings.Join(texts, "\n\n"), segs, nil
}

func shiftSegment(sg types.Segment, offset float64) types.Segment {
	if sg.StartSec != nil {
		sg.StartSec = types.PtrFloat(*sg.StartSec + offset)
	}
	if sg.EndSec != nil {
		sg.EndSec = types.PtrFloat(*sg.EndSec + offset)
	}
	return sg
}

func (e *Extractor) transcribeOpenAIPiece(ctx context.Context, path string) (string, []types.Segment, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", nil, fmt.Errorf("open audio: %w", err)
	}
	defer f.Close()

	tr, err := e.ai.Transcribe(ctx, f, filepath.Base(path), mimeForAudioPath(path))
	if err != nil {
		return "", nil, err
	}
	segs := make([]types.Segment, 0, len(tr.Segments))
	for _, s := range tr.Segments {
		t := strings.TrimSpace(s.Text)
		if t == "" {
			continue
		}
		segs = append(segs, types.Segment{
			Text:     t,
			StartSec: types.PtrFloat(s.StartSec),
			EndSec:   types.PtrFloat(s.EndSec),
			Metadata: map[string]any{
				"kind":     "transcript",
				"provider": "openai_whisper",
			},
		})
	}
	return tr.Text, segs, nil
}

// transcribeGCP prefers the long-running GCS path when the original upload is
// itself the audio object; local files fall back to inline recognition with
// the split contract above the inline ceiling.
func (e *Extractor) transcribeGCP(ctx context.Context, doc *types.Document, audioPath string, derivedFromVideo bool, res *Result) (string, []types.Segment, error) {
	if e.speech == nil {
		return "", nil, fmt.Errorf("gcp speech provider not configured")
	}
	cfg := gcp.SpeechConfig{
		EnableAutomaticPunctuation: true,
		EnableWordTimeOffsets:      true,
	}

	if !derivedFromVideo {
		r, err := e.speech.TranscribeAudioGCS(ctx, e.bucket.ObjectURI(doc.SourceKey), cfg)
		if err != nil {
			res.Warnings = append(res.Warnings, "gcs transcription failed; retrying from local bytes: "+err.Error())
		} else {
			return r.PrimaryText, r.Segments, nil
		}
	}

	return e.transcribeWithCeiling(ctx, audioPath, gcpInlineAudioCeilingBytes, func(ctx context.Context, path string) (string, []types.Segment, error) {
		b, err := os.ReadFile(path)
		if err != nil {
			return "", nil, fmt.Errorf("read audio: %w", err)
		}
		r, err := e.speech.TranscribeAudioBytes(ctx, b, mimeForAudioPath(path), cfg)
		if err != nil {
			return "", nil, err
		}
		return r.PrimaryText, r.Segments, nil
	}, res)
}

func mimeForAudioPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		return "audio/mpeg"
	case ".wav":
		return "audio/wav"
	case ".m4a", ".mp4":
		return "audio/mp4"
	case ".flac":
		return "audio/flac"
	case ".ogg", ".opus":
		return "audio/ogg"
	}
	return "audio/mpeg"
}
