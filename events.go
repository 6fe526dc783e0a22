package main

import "parla/history"

// EventSink abstracts the display layer so the Bubble Tea TUI and the
// headless test mode receive the same recording/transcription events.
// Implementations must be callable from any goroutine; audio levels
// arrive from the capture goroutine and previews from the worker.
type EventSink interface {
	RecordingStart()
	RecordingStop()
	RecordingTick(duration float64)
	AudioLevel(level float64)
	LivePreview(text string)
	Transcription(text string, metrics []string, copied bool, noSpeech bool)
	History(entries []history.Entry)
	EngineLine(text string)
	DeviceLine(text string)
	Notice(text string)
}

type nopSink struct{}

func (nopSink) RecordingStart()                            {}
func (nopSink) RecordingStop()                             {}
func (nopSink) RecordingTick(float64)                      {}
func (nopSink) AudioLevel(float64)                         {}
func (nopSink) LivePreview(string)                         {}
func (nopSink) Transcription(string, []string, bool, bool) {}
func (nopSink) History([]history.Entry)                    {}
func (nopSink) EngineLine(string)                          {}
func (nopSink) DeviceLine(string)                          {}
func (nopSink) Notice(string)                              {}
