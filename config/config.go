// Package config provides the YAML configuration schema and loader
// for parla. Every field has a working default; the file and every
// key in it are optional.
package config

import "time"

// Config is the root configuration, typically loaded from
// ~/.config/parla/config.yaml via [Resolve].
type Config struct {
	Audio   AudioConfig   `yaml:"audio"`
	Silence SilenceConfig `yaml:"silence"`
	Engine  EngineConfig  `yaml:"engine"`
	Insert  InsertConfig  `yaml:"insert"`
	Preview PreviewConfig `yaml:"preview"`
	Hotkey  HotkeyConfig  `yaml:"hotkey"`
	Log     LogConfig     `yaml:"log"`

	// Beep plays short audio cues on recording start, stop, and error.
	Beep bool `yaml:"beep"`

	// Dump writes each finished utterance to a FLAC file next to the
	// logs, for debugging capture problems.
	Dump bool `yaml:"dump"`
}

// AudioConfig selects the capture device and stream geometry.
type AudioConfig struct {
	// SampleRate of the capture stream. The transcription engine
	// accepts 16000 only.
	SampleRate int `yaml:"sample_rate"`

	// ChunkMs is the duration of one capture chunk in milliseconds.
	ChunkMs int `yaml:"chunk_ms"`

	// Device is a substring of the capture device name; empty picks
	// the system default.
	Device string `yaml:"device"`
}

// SilenceConfig tunes the auto-stop detector.
type SilenceConfig struct {
	// Threshold is the RMS floor below which a chunk counts as
	// silent. Chunks at or above it count as speech.
	Threshold float64 `yaml:"threshold"`

	// DurationS is how many seconds of continuous silence end the
	// recording.
	DurationS float64 `yaml:"duration_s"`
}

// EngineConfig selects and tunes the transcription model.
type EngineConfig struct {
	// Model is a known model name (resolved against the model
	// directory) or an explicit path to a ggml file.
	Model string `yaml:"model"`

	// Language hint for the model; "auto" detects.
	Language string `yaml:"language"`

	// ReadyTimeoutS bounds how long a finished utterance waits for
	// the model to load before giving up.
	ReadyTimeoutS float64 `yaml:"ready_timeout_s"`
}

// InsertConfig controls how transcripts reach the focused window.
type InsertConfig struct {
	// Mode is one of paste, type, clipboard.
	Mode string `yaml:"mode"`
}

// PreviewConfig controls live interim transcription while recording.
type PreviewConfig struct {
	Enabled bool `yaml:"enabled"`

	// IntervalS is how often the accumulated audio is re-transcribed.
	IntervalS float64 `yaml:"interval_s"`
}

// HotkeyConfig tunes the toggle key behaviour.
type HotkeyConfig struct {
	// HoldMs is the press length beyond which the hotkey acts as
	// push-to-talk instead of a toggle tap.
	HoldMs int `yaml:"hold_ms"`
}

// LogConfig overrides the log directory.
type LogConfig struct {
	Dir string `yaml:"dir"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Audio:   AudioConfig{SampleRate: 16000, ChunkMs: 100},
		Silence: SilenceConfig{Threshold: 500, DurationS: 2.0},
		Engine:  EngineConfig{Model: "base.en", Language: "auto", ReadyTimeoutS: 30},
		Insert:  InsertConfig{Mode: "paste"},
		Preview: PreviewConfig{Enabled: true, IntervalS: 2.0},
		Hotkey:  HotkeyConfig{HoldMs: 500},
		Beep:    true,
	}
}

func (c *Config) SilenceDuration() time.Duration {
	return time.Duration(c.Silence.DurationS * float64(time.Second))
}

func (c *Config) ReadyTimeout() time.Duration {
	return time.Duration(c.Engine.ReadyTimeoutS * float64(time.Second))
}

func (c *Config) PreviewInterval() time.Duration {
	return time.Duration(c.Preview.IntervalS * float64(time.Second))
}

func (c *Config) HoldThreshold() time.Duration {
	return time.Duration(c.Hotkey.HoldMs) * time.Millisecond
}
