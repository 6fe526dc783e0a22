// Package beep plays short audio cues marking recording start, stop
// and errors. Cues are fire-and-forget: a missing or broken output
// device must never delay or break dictation, so playback errors are
// swallowed.
package beep

import "sync"

var (
	disabled  bool
	setupOnce sync.Once
)

// Disable turns all cues off. Called before any Play* when the
// configuration disables feedback sounds.
func Disable() { disabled = true }

type cueKind int

const (
	cueStart cueKind = iota
	cueEnd
	cueError
	cueCount
)

const (
	sampleRate = 44100

	startFreq   = 1200.0
	startVolume = 0.5
	startDecay  = 60.0

	endFreq   = 900.0
	endVolume = 0.5
	endDecay  = 40.0

	errorFreq   = 350.0
	errorVolume = 0.6
	errorDecay  = 30.0
)

// Init pre-generates the cue samples and opens the output path so the
// first beep plays without setup latency.
func Init() {
	if disabled {
		return
	}
	setupOnce.Do(setup)
}

// PlayStart marks the beginning of a recording with a short high tick.
func PlayStart() { play(cueStart) }

// PlayEnd marks the end of a recording with a slightly lower tick.
func PlayEnd() { play(cueEnd) }

// PlayError is a low double-beep for failed transcriptions.
func PlayError() { play(cueError) }

func play(k cueKind) {
	if disabled {
		return
	}
	setupOnce.Do(setup)
	emit(k)
}
