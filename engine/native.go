// This file contains the whisper.cpp engine backed by the CGO
// bindings. The whisper static library (libwhisper.a) and headers
// must be available at link time via LIBRARY_PATH and C_INCLUDE_PATH.

package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
)

var _ Engine = (*Native)(nil)

// Native runs whisper.cpp inference in-process. The model is loaded
// once by Load and shared across calls; each Transcribe creates a
// fresh whisper context because contexts are not reusable across
// inferences.
type Native struct {
	modelPath string
	language  string
	model     whisperlib.Model
}

// NewNative returns an engine that will load the ggml model at
// modelPath. language is a whisper language code such as "en", or
// "auto" for detection.
func NewNative(modelPath, language string) *Native {
	if language == "" {
		language = "auto"
	}
	return &Native{modelPath: modelPath, language: language}
}

func (n *Native) Name() string { return "whisper.cpp" }

func (n *Native) Load(ctx context.Context) error {
	if n.modelPath == "" {
		return errors.New("engine: model path not set")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := os.Stat(n.modelPath); err != nil {
		return fmt.Errorf("engine: model file: %w", err)
	}
	model, err := whisperlib.New(n.modelPath)
	if err != nil {
		return fmt.Errorf("engine: load model %q: %w", n.modelPath, err)
	}
	n.model = model
	n.warmUp()
	return nil
}

// warmUp runs a short silent inference so the first real utterance
// does not pay first-call initialization cost. Failures are ignored;
// the first real call will surface them.
func (n *Native) warmUp() {
	wctx, err := n.model.NewContext()
	if err != nil {
		return
	}
	silence := make([]float32, whisperlib.SampleRate/2)
	if err := wctx.Process(silence, nil, nil, nil); err != nil {
		return
	}
	for {
		if _, err := wctx.NextSegment(); err != nil {
			break
		}
	}
}

func (n *Native) Transcribe(ctx context.Context, pcm []byte, sampleRate int) (Result, error) {
	if n.model == nil {
		return Result{}, errors.New("engine: model not loaded")
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if sampleRate != whisperlib.SampleRate {
		return Result{}, fmt.Errorf("engine: whisper.cpp requires %d Hz input, got %d", whisperlib.SampleRate, sampleRate)
	}

	samples := pcmToFloat32(pcm)
	start := time.Now()

	wctx, err := n.model.NewContext()
	if err != nil {
		return Result{}, fmt.Errorf("engine: create context: %w", err)
	}
	if err := wctx.SetLanguage(n.language); err != nil {
		return Result{}, fmt.Errorf("engine: set language %q: %w", n.language, err)
	}
	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return Result{}, fmt.Errorf("engine: process audio: %w", err)
	}

	var (
		segs  []Segment
		parts []string
	)
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Result{}, fmt.Errorf("engine: read segment: %w", err)
		}
		text := strings.TrimSpace(segment.Text)
		if text == "" {
			continue
		}
		parts = append(parts, text)
		segs = append(segs, Segment{
			Text:  text,
			Start: segment.Start.Seconds(),
			End:   segment.End.Seconds(),
		})
	}

	return Result{
		Text:     strings.Join(parts, " "),
		Segments: segs,
		AudioS:   float64(len(samples)) / float64(sampleRate),
		InferMs:  float64(time.Since(start).Microseconds()) / 1000,
	}, nil
}

func (n *Native) Close() error {
	if n.model != nil {
		err := n.model.Close()
		n.model = nil
		return err
	}
	return nil
}
