package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"parla/insert"
)

// EnvPath names the environment variable consulted when no -config
// flag is given.
const EnvPath = "PARLA_CONFIG"

// ResolvePath picks the config file location: explicit flag value
// first, then PARLA_CONFIG, then the per-user default. explicit
// reports whether the user named the file, in which case a missing
// file is an error rather than a fallback to defaults.
func ResolvePath(flagValue string) (path string, explicit bool) {
	if flagValue != "" {
		return flagValue, true
	}
	if env := os.Getenv(EnvPath); env != "" {
		return env, true
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", false
	}
	return filepath.Join(dir, "parla", "config.yaml"), false
}

// Resolve loads the configuration for the given -config flag value.
// When no file was named and the default location does not exist, it
// returns Default() with an empty source path.
func Resolve(flagValue string) (cfg *Config, source string, err error) {
	path, explicit := ResolvePath(flagValue)
	if path == "" {
		return Default(), "", nil
	}
	cfg, err = Load(path)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return Default(), "", nil
		}
		return nil, "", err
	}
	return cfg, path, nil
}

// Load reads and validates the YAML file at path. Missing keys keep
// their defaults.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes YAML from r on top of the defaults and
// validates the result. Unknown keys are rejected.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			// empty file
			return cfg, nil
		}
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg holds a coherent set of values and returns
// a joined error listing every violation found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Audio.SampleRate != 16000 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d is unsupported; the engine requires 16000", cfg.Audio.SampleRate))
	}
	if cfg.Audio.ChunkMs < 10 || cfg.Audio.ChunkMs > 1000 {
		errs = append(errs, fmt.Errorf("audio.chunk_ms %d is out of range [10, 1000]", cfg.Audio.ChunkMs))
	}
	if cfg.Silence.Threshold < 0 || cfg.Silence.Threshold >= 32768 {
		errs = append(errs, fmt.Errorf("silence.threshold %.0f is out of range [0, 32768)", cfg.Silence.Threshold))
	}
	if cfg.Silence.DurationS <= 0 || cfg.Silence.DurationS > 600 {
		errs = append(errs, fmt.Errorf("silence.duration_s %.1f is out of range (0, 600]", cfg.Silence.DurationS))
	}
	if cfg.Engine.Model == "" {
		errs = append(errs, errors.New("engine.model is required"))
	}
	if cfg.Engine.ReadyTimeoutS <= 0 {
		errs = append(errs, fmt.Errorf("engine.ready_timeout_s %.1f must be positive", cfg.Engine.ReadyTimeoutS))
	}
	if _, err := insert.ParseMode(cfg.Insert.Mode); err != nil {
		errs = append(errs, err)
	}
	if cfg.Preview.Enabled && cfg.Preview.IntervalS <= 0 {
		errs = append(errs, fmt.Errorf("preview.interval_s %.1f must be positive", cfg.Preview.IntervalS))
	}
	if cfg.Hotkey.HoldMs < 0 {
		errs = append(errs, fmt.Errorf("hotkey.hold_ms %d must not be negative", cfg.Hotkey.HoldMs))
	}

	return errors.Join(errs...)
}
