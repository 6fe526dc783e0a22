package main

import "time"

// SilenceState classifies one chunk's contribution to the
// end-of-utterance decision.
type SilenceState int

const (
	Speaking SilenceState = iota
	SilentBelowThreshold
	SilentPastThreshold
)

func (s SilenceState) String() string {
	switch s {
	case Speaking:
		return "speaking"
	case SilentBelowThreshold:
		return "silent"
	case SilentPastThreshold:
		return "silent_past_threshold"
	default:
		return "unknown"
	}
}

const (
	defaultSilenceThreshold = 500.0
	defaultSilenceDuration  = 2 * time.Second
)

// silenceDetector accumulates quiet time across consecutive chunks.
// Loudness at or above the threshold counts as speech and resets the
// run; a run that reaches the configured limit yields
// SilentPastThreshold exactly once. There is no gain adaptation: the
// threshold is a fixed configuration input.
type silenceDetector struct {
	threshold float64
	limit     time.Duration

	quiet time.Duration
	fired bool
}

func newSilenceDetector(threshold float64, limit time.Duration) *silenceDetector {
	if threshold <= 0 {
		threshold = defaultSilenceThreshold
	}
	if limit <= 0 {
		limit = defaultSilenceDuration
	}
	return &silenceDetector{threshold: threshold, limit: limit}
}

// Feed consumes one chunk's loudness and duration. The quiet counter
// advances by whole chunk durations; a session silent from its first
// chunk terminates once the counter alone reaches the limit.
func (d *silenceDetector) Feed(rms float64, dur time.Duration) SilenceState {
	if rms >= d.threshold {
		d.quiet = 0
		d.fired = false
		return Speaking
	}
	d.quiet += dur
	if !d.fired && d.quiet >= d.limit {
		d.fired = true
		return SilentPastThreshold
	}
	return SilentBelowThreshold
}

// Reset clears the accumulated run for a new session.
func (d *silenceDetector) Reset() {
	d.quiet = 0
	d.fired = false
}
