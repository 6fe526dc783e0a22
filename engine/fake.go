package engine

import (
	"context"
	"fmt"
	"sync"
	"time"
)

var _ Engine = (*Fake)(nil)

// Fake is a scripted engine for tests and the stdin-driven test mode.
// Load and Transcribe honor the configured delays so callers can
// exercise readiness waits and in-flight rejection.
type Fake struct {
	text     string
	err      error
	loadErr  error
	loadWait time.Duration
	wait     time.Duration

	mu      sync.Mutex
	calls   int
	lastPCM []byte
}

func NewFake(text string, err error) *Fake {
	return &Fake{text: text, err: err}
}

func (f *Fake) SetLoad(err error, wait time.Duration) {
	f.loadErr = err
	f.loadWait = wait
}

// SetWait makes every Transcribe call block for d before returning.
func (f *Fake) SetWait(d time.Duration) { f.wait = d }

func (f *Fake) Name() string { return "fake" }

func (f *Fake) Load(ctx context.Context) error {
	if f.loadWait > 0 {
		select {
		case <-time.After(f.loadWait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return f.loadErr
}

func (f *Fake) Transcribe(ctx context.Context, pcm []byte, sampleRate int) (Result, error) {
	if f.wait > 0 {
		select {
		case <-time.After(f.wait):
		case <-ctx.Done():
			return Result{}, ctx.Err()
		}
	}

	f.mu.Lock()
	f.calls++
	f.lastPCM = append([]byte(nil), pcm...)
	f.mu.Unlock()

	if f.err != nil {
		return Result{}, fmt.Errorf("fake engine error: %w", f.err)
	}

	audioS := float64(len(pcm)/2) / float64(sampleRate)
	r := Result{Text: f.text, AudioS: audioS, InferMs: 1}
	if f.text != "" {
		r.Segments = []Segment{{Text: f.text, Start: 0, End: audioS}}
	}
	return r, nil
}

// Calls reports how many Transcribe calls completed.
func (f *Fake) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// LastPCM returns a copy of the audio given to the most recent call.
func (f *Fake) LastPCM() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]byte(nil), f.lastPCM...)
}

func (f *Fake) Close() error { return nil }
