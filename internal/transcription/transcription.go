// Package transcription downloads meeting videos and runs speech-to-text on
// them.
package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"council-pipeline-go/internal/config"
	"council-pipeline-go/internal/logger"
	"council-pipeline-go/internal/retry"
	"council-pipeline-go/internal/types"
)

// Transcriber turns a local media file into text plus timestamped segments.
type Transcriber interface {
	Transcribe(ctx context.Context, mediaPath string) (types.Transcript, error)
}

// New picks the backend named by cfg.Backend.
func New(cfg config.Transcribe, httpCfg config.HTTP, log *logger.Logger) (Transcriber, error) {
	switch cfg.Backend {
	case "mock":
		return Mock{}, nil
	case "openai":
		return NewOpenAI(cfg, httpCfg.MaxRetryElapsed, log), nil
	case "whisper-cli":
		return NewWhisperCLI(cfg, log), nil
	default:
		return nil, fmt.Errorf("unknown transcription backend %q", cfg.Backend)
	}
}

// OpenAI talks to any server exposing /v1/audio/transcriptions, such as
// a hosted Whisper or a local faster-whisper server.
type OpenAI struct {
	client     *openai.Client
	model      string
	maxElapsed time.Duration
	log        *logger.Logger
}

func NewOpenAI(cfg config.Transcribe, maxElapsed time.Duration, log *logger.Logger) *OpenAI {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	oc.HTTPClient = &http.Client{}
	return &OpenAI{
		client:     openai.NewClientWithConfig(oc),
		model:      cfg.Model,
		maxElapsed: maxElapsed,
		log:        log.Component("transcriber").With("backend", "openai"),
	}
}

func (o *OpenAI) Transcribe(ctx context.Context, mediaPath string) (types.Transcript, error) {
	var resp openai.AudioResponse
	err := retry.Do(ctx, o.maxElapsed, func() error {
		var err error
		resp, err = o.client.CreateTranscription(ctx, openai.AudioRequest{
			Model:    o.model,
			FilePath: mediaPath,
			Format:   openai.AudioResponseFormatVerboseJSON,
		})
		if err != nil {
			o.log.WithError(err).WithField("file", mediaPath).Warn("transcription attempt failed")
		}
		return retry.OpenAI(err)
	})
	if err != nil {
		return types.Transcript{}, fmt.Errorf("transcribe %s: %w", mediaPath, err)
	}

	out := types.Transcript{Text: resp.Text, Segments: make([]types.Segment, 0, len(resp.Segments))}
	for _, s := range resp.Segments {
		out.Segments = append(out.Segments, types.Segment{
			ID:               s.ID,
			Seek:             s.Seek,
			Start:            s.Start,
			End:              s.End,
			Text:             s.Text,
			Tokens:           s.Tokens,
			Temperature:      s.Temperature,
			AvgLogprob:       s.AvgLogprob,
			CompressionRatio: s.CompressionRatio,
			NoSpeechProb:     s.NoSpeechProb,
		})
	}
	return out, nil
}

// WhisperCLI shells out to the reference whisper command line tool.
type WhisperCLI struct {
	binary string
	model  string
	device string
	log    *logger.Logger
}

func NewWhisperCLI(cfg config.Transcribe, log *logger.Logger) *WhisperCLI {
	return &WhisperCLI{
		binary: cfg.Binary,
		model:  cfg.Model,
		device: cfg.Device,
		log:    log.Component("transcriber").With("backend", "whisper-cli"),
	}
}

func (w *WhisperCLI) args(mediaPath, outDir string) []string {
	return []string{
		mediaPath,
		"--model", w.model,
		"--device", w.device,
		"--output_format", "json",
		"--output_dir", outDir,
		"--verbose", "False",
	}
}

func (w *WhisperCLI) Transcribe(ctx context.Context, mediaPath string) (types.Transcript, error) {
	outDir, err := os.MkdirTemp("", "whisper-")
	if err != nil {
		return types.Transcript{}, err
	}
	defer os.RemoveAll(outDir)

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, w.binary, w.args(mediaPath, outDir)...)
	cmd.Stderr = &stderr
	start := time.Now()
	if err := cmd.Run(); err != nil {
		return types.Transcript{}, fmt.Errorf("%s: %w: %s", w.binary, err, strings.TrimSpace(stderr.String()))
	}
	w.log.WithField("file", mediaPath).
		WithField("duration_ms", time.Since(start).Milliseconds()).
		Debug("whisper finished")

	base := strings.TrimSuffix(filepath.Base(mediaPath), filepath.Ext(mediaPath))
	raw, err := os.ReadFile(filepath.Join(outDir, base+".json"))
	if err != nil {
		return types.Transcript{}, fmt.Errorf("read whisper output: %w", err)
	}
	return ParseWhisperJSON(raw)
}

// ParseWhisperJSON decodes the result document whisper writes with
// --output_format json.
func ParseWhisperJSON(raw []byte) (types.Transcript, error) {
	var doc struct {
		Text     string          `json:"text"`
		Segments []types.Segment `json:"segments"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return types.Transcript{}, fmt.Errorf("decode whisper output: %w", err)
	}
	return types.Transcript{Text: doc.Text, Segments: doc.Segments}, nil
}

// Mock returns a fixed transcript. Enabled with USE_MOCK_TRANSCRIBE=true
// for offline runs.
type Mock struct{}

func (Mock) Transcribe(_ context.Context, mediaPath string) (types.Transcript, error) {
	name := filepath.Base(mediaPath)
	segs := []types.Segment{
		{ID: 0, Start: 0, End: 4.2, Text: " Good morning, the council will come to order.", NoSpeechProb: 0.01},
		{ID: 1, Start: 4.2, End: 9.8, Text: " Item one is ordinance 34,567 regarding 1300 Perdido Street.", NoSpeechProb: 0.02},
		{ID: 2, Start: 9.8, End: 12.0, Text: " [music]", NoSpeechProb: 0.91},
		{ID: 3, Start: 12.0, End: 15.5, Text: " Docket number 12-24 is deferred. Mock transcript of " + name + ".", NoSpeechProb: 0.03},
	}
	var text strings.Builder
	for _, s := range segs {
		text.WriteString(s.Text)
	}
	return types.Transcript{Text: text.String(), Segments: segs}, nil
}
