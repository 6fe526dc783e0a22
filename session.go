package main

import (
	"errors"
	"sync"
	"time"

	"parla/audio"
	"parla/dispatch"
	"parla/log"
)

// SessionState tracks one utterance through its lifecycle.
type SessionState int

const (
	StateIdle SessionState = iota
	StateRecording
	StateFinalizing
	StateTranscribing
)

func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StateFinalizing:
		return "finalizing"
	case StateTranscribing:
		return "transcribing"
	}
	return "unknown"
}

// ErrSessionBusy rejects a start while the previous utterance has not
// reached idle. One utterance in flight, never two.
var ErrSessionBusy = errors.New("session busy: utterance still in flight")

// StopReason records what ended the recording half of a session.
type StopReason int

const (
	StopHotkey StopReason = iota
	StopSilence
	StopStreamError
)

func (r StopReason) String() string {
	switch r {
	case StopHotkey:
		return "hotkey"
	case StopSilence:
		return "silence"
	case StopStreamError:
		return "stream_error"
	}
	return "unknown"
}

// SessionConfig carries the capture and silence tunables.
type SessionConfig struct {
	SampleRate       int
	ChunkMs          int
	SilenceThreshold float64
	SilenceDuration  time.Duration
	PreviewMinAudio  time.Duration
}

func (c SessionConfig) withDefaults() SessionConfig {
	if c.SampleRate == 0 {
		c.SampleRate = audio.DefaultSampleRate
	}
	if c.ChunkMs == 0 {
		c.ChunkMs = audio.DefaultChunkMs
	}
	if c.SilenceThreshold == 0 {
		c.SilenceThreshold = defaultSilenceThreshold
	}
	if c.SilenceDuration == 0 {
		c.SilenceDuration = defaultSilenceDuration
	}
	if c.PreviewMinAudio == 0 {
		c.PreviewMinAudio = 500 * time.Millisecond
	}
	return c
}

// RecordingSession owns one utterance: the capture device, the
// accumulating buffer, and the silence detector. Chunks append on the
// capture goroutine; everything else happens on the controller's
// goroutine. The stop channel crosses between them, and fires at most
// once per session no matter how many stop causes race.
type RecordingSession struct {
	dev  audio.CaptureDevice
	det  *silenceDetector
	sink EventSink

	stops    chan StopReason
	stopOnce sync.Once

	mu       sync.Mutex
	pcm      []byte
	dur      time.Duration
	sealed   bool
	lastPrev int // bytes already offered for preview

	startedAt time.Time
}

func newRecordingSession(dev audio.CaptureDevice, det *silenceDetector, sink EventSink) *RecordingSession {
	return &RecordingSession{
		dev:       dev,
		det:       det,
		sink:      sink,
		stops:     make(chan StopReason, 1),
		startedAt: time.Now(),
	}
}

// onChunk runs on the capture goroutine. The chunk is appended before
// the detector sees it, so the chunk that crosses the silence limit
// is part of the utterance.
func (s *RecordingSession) onChunk(chunk audio.Chunk) {
	rms := chunk.RMS()
	dur := chunk.Duration()

	s.mu.Lock()
	if s.sealed {
		// Late chunk after finalize began; discard.
		s.mu.Unlock()
		return
	}
	s.pcm = append(s.pcm, chunk.PCM...)
	s.dur += dur
	state := s.det.Feed(rms, dur)
	if state == SilentPastThreshold {
		// The chunk that crossed the limit is the last one kept.
		// Anything arriving before finalize runs is not part of
		// the utterance.
		s.sealed = true
	}
	s.mu.Unlock()

	s.sink.AudioLevel(rms / 32768.0)
	if state == SilentPastThreshold {
		s.signalStop(StopSilence)
	}
}

// onStreamError runs on the capture goroutine. Mid-stream failures
// are fatal for the session: whatever audio was captured still gets
// transcribed.
func (s *RecordingSession) onStreamError(err error) {
	log.Errorf("capture stream error: %v", err)
	s.signalStop(StopStreamError)
}

func (s *RecordingSession) signalStop(r StopReason) {
	s.stopOnce.Do(func() { s.stops <- r })
}

// seal freezes the buffer and hands ownership to the caller. Chunks
// delivered after seal are discarded by onChunk.
func (s *RecordingSession) seal() ([]byte, time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sealed = true
	return s.pcm, s.dur
}

// snapshot copies the audio recorded so far for a live preview.
// Refused below the minimum duration and when no new audio arrived
// since the last snapshot.
func (s *RecordingSession) snapshot(min time.Duration) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sealed || s.dur < min || len(s.pcm) == s.lastPrev {
		return nil, false
	}
	s.lastPrev = len(s.pcm)
	cp := make([]byte, len(s.pcm))
	copy(cp, s.pcm)
	return cp, true
}

// Controller is the single mutation point for session state. All
// methods must be called from the owner goroutine (the main loop).
// Capture callbacks never touch state directly; they signal through
// the session's stop channel.
type Controller struct {
	audioCtx audio.Context
	device   *audio.DeviceInfo
	disp     *dispatch.Dispatcher
	sink     EventSink
	cfg      SessionConfig

	state SessionState
	sess  *RecordingSession
}

func NewController(audioCtx audio.Context, device *audio.DeviceInfo, disp *dispatch.Dispatcher, sink EventSink, cfg SessionConfig) *Controller {
	if sink == nil {
		sink = nopSink{}
	}
	return &Controller{
		audioCtx: audioCtx,
		device:   device,
		disp:     disp,
		sink:     sink,
		cfg:      cfg.withDefaults(),
	}
}

func (c *Controller) State() SessionState { return c.state }

// SetDevice switches the capture device for future sessions. No
// effect on an active recording.
func (c *Controller) SetDevice(device *audio.DeviceInfo) { c.device = device }

// Toggle starts a recording when idle and stops it when recording.
// While a prior utterance is finalizing or transcribing it returns
// ErrSessionBusy and changes nothing.
func (c *Controller) Toggle() error {
	switch c.state {
	case StateIdle:
		return c.startRecording()
	case StateRecording:
		c.finalize(StopHotkey)
		return nil
	default:
		return ErrSessionBusy
	}
}

// Stops exposes the active session's stop channel for the main select
// loop. Nil while nothing records; a nil channel never fires, and a
// stale signal left behind by a stop race dies with its session.
func (c *Controller) Stops() <-chan StopReason {
	if c.state != StateRecording || c.sess == nil {
		return nil
	}
	return c.sess.stops
}

// HandleStop reacts to a stop signal from the capture goroutine.
// Signals that lost the race against a manual stop arrive here after
// the state already moved on and are ignored.
func (c *Controller) HandleStop(reason StopReason) {
	if c.state != StateRecording {
		return
	}
	c.finalize(reason)
}

// HandleOutcome finishes the lifecycle for final outcomes. Preview
// outcomes never touch session state.
func (c *Controller) HandleOutcome(o dispatch.Outcome) {
	if o.Kind != dispatch.Final {
		return
	}
	if c.state == StateTranscribing {
		c.state = StateIdle
		c.sess = nil
	}
}

// PreviewSnapshot copies the in-progress utterance for live preview.
func (c *Controller) PreviewSnapshot() ([]byte, bool) {
	if c.state != StateRecording || c.sess == nil {
		return nil, false
	}
	return c.sess.snapshot(c.cfg.PreviewMinAudio)
}

// RecordingElapsed is the wall time since the recording started.
func (c *Controller) RecordingElapsed() time.Duration {
	if c.sess == nil {
		return 0
	}
	return time.Since(c.sess.startedAt)
}

// RecordedDuration is the audio accepted into the buffer so far.
func (c *Controller) RecordedDuration() time.Duration {
	if c.sess == nil {
		return 0
	}
	c.sess.mu.Lock()
	defer c.sess.mu.Unlock()
	return c.sess.dur
}

// Close abandons any active recording without transcribing it. For
// process shutdown only.
func (c *Controller) Close() {
	if c.sess != nil && c.state == StateRecording {
		c.sess.seal()
		c.sess.dev.Stop()
		c.sess.dev.Close()
	}
	c.state = StateIdle
	c.sess = nil
}

func (c *Controller) startRecording() error {
	dev, err := c.audioCtx.NewCapture(c.device, audio.CaptureConfig{
		SampleRate: uint32(c.cfg.SampleRate),
		Channels:   audio.Channels,
		ChunkMs:    c.cfg.ChunkMs,
	})
	if err != nil {
		return err
	}

	s := newRecordingSession(dev, newSilenceDetector(c.cfg.SilenceThreshold, c.cfg.SilenceDuration), c.sink)
	dev.SetCallbacks(audio.Callbacks{
		Data:  s.onChunk,
		Error: s.onStreamError,
	})
	if err := dev.Start(); err != nil {
		dev.ClearCallbacks()
		dev.Close()
		return err
	}

	c.sess = s
	c.state = StateRecording
	log.RecordingStart(dev.DeviceName())
	c.sink.RecordingStart()
	return nil
}

// finalize seals the buffer, releases the device, and hands the
// utterance to the dispatcher. Exactly one finalize happens per
// session regardless of how many stop causes race; callers guard on
// state before entering.
func (c *Controller) finalize(reason StopReason) {
	c.state = StateFinalizing
	c.sink.RecordingStop()

	pcm, dur := c.sess.seal()
	c.sess.dev.Stop()
	c.sess.dev.ClearCallbacks()
	c.sess.dev.Close()
	log.RecordingStop(reason.String(), dur.Seconds())

	c.state = StateTranscribing
	if err := c.disp.Submit(pcm, c.cfg.SampleRate); err != nil {
		log.Errorf("submit failed: %v", err)
		c.state = StateIdle
		c.sess = nil
	}
}
