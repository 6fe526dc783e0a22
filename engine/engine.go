package engine

import (
	"context"
	"fmt"
	"strings"
)

// Segment is one timed span of recognized speech.
type Segment struct {
	Text  string
	Start float64 // seconds from utterance start
	End   float64
}

// FormatTime renders seconds as M:SS, or H:MM:SS past an hour.
func FormatTime(seconds float64) string {
	total := int(seconds)
	h := total / 3600
	m := total % 3600 / 60
	s := total % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

func (s Segment) FormattedRange() string {
	return fmt.Sprintf("[%s - %s]", FormatTime(s.Start), FormatTime(s.End))
}

// Result is the outcome of one inference call.
type Result struct {
	Text     string
	Segments []Segment
	AudioS   float64 // seconds of audio transcribed
	InferMs  float64 // wall time spent in the engine
}

// RTF is the real-time factor: engine seconds per audio second.
func (r Result) RTF() float64 {
	if r.AudioS <= 0 {
		return 0
	}
	return r.InferMs / 1000 / r.AudioS
}

// Paragraphs groups the raw segments into sentence-sized spans and
// renders one line each. Without segments it falls back to the text.
func (r Result) Paragraphs() []string {
	merged := MergeSegments(r.Segments)
	if len(merged) == 0 {
		if strings.TrimSpace(r.Text) == "" {
			return nil
		}
		return []string{r.Text}
	}
	lines := make([]string, 0, len(merged))
	for _, seg := range merged {
		lines = append(lines, seg.Text)
	}
	return lines
}

// pauseThreshold is the inter-segment gap that forces a paragraph
// break even without sentence-ending punctuation.
const pauseThreshold = 0.5

func endsSentence(text string) bool {
	trimmed := strings.TrimRight(text, " ")
	if trimmed == "" {
		return false
	}
	switch trimmed[len(trimmed)-1] {
	case '.', '?', '!':
		return true
	}
	return false
}

// MergeSegments joins adjacent raw segments into sentence-sized ones.
// A merged segment closes on sentence-ending punctuation or when the
// gap to the next segment exceeds pauseThreshold seconds.
func MergeSegments(segs []Segment) []Segment {
	if len(segs) == 0 {
		return nil
	}

	var merged []Segment
	cur := Segment{Start: segs[0].Start}
	var parts []string
	var lastEnd float64

	flush := func(end float64) {
		if len(parts) == 0 {
			return
		}
		cur.Text = strings.Join(parts, " ")
		cur.End = end
		merged = append(merged, cur)
		parts = nil
	}

	for i, seg := range segs {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		if len(parts) == 0 {
			cur = Segment{Start: seg.Start}
		}
		parts = append(parts, text)
		lastEnd = seg.End

		longPause := i < len(segs)-1 && segs[i+1].Start-seg.End > pauseThreshold
		if endsSentence(text) || longPause {
			flush(seg.End)
		}
	}
	flush(lastEnd)
	return merged
}

// Engine runs speech-to-text inference over finished utterances.
// Implementations are not safe for concurrent use: the dispatcher
// never overlaps calls, and Load completes before any Transcribe.
type Engine interface {
	Name() string
	// Load acquires the model. Called once before any Transcribe.
	Load(ctx context.Context) error
	// Transcribe runs blocking inference over 16-bit little-endian
	// mono PCM and returns the recognized text with segment timing.
	Transcribe(ctx context.Context, pcm []byte, sampleRate int) (Result, error)
	Close() error
}
