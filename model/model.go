// Package model locates and downloads whisper ggml model files.
package model

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// EnvDir overrides the model directory.
const EnvDir = "PARLA_MODEL_DIR"

const mib = int64(1) << 20

// baseURL hosts the converted ggml models. Overridden in tests.
var baseURL = "https://huggingface.co/ggerganov/whisper.cpp/resolve/main"

// Info describes one known model. Size is the approximate download
// size, used for the free-space check before fetching.
type Info struct {
	Name string
	Size int64
}

func (i Info) filename() string { return "ggml-" + i.Name + ".bin" }
func (i Info) url() string      { return baseURL + "/" + i.filename() }

var known = []Info{
	{"tiny", 74 * mib},
	{"tiny.en", 74 * mib},
	{"base", 141 * mib},
	{"base.en", 141 * mib},
	{"small", 465 * mib},
	{"small.en", 465 * mib},
	{"medium", 1462 * mib},
	{"medium.en", 1462 * mib},
	{"large-v2", 2951 * mib},
	{"large-v3", 2951 * mib},
	{"large-v3-turbo", 1549 * mib},
}

// Known lists the recognized model names, smallest first.
func Known() []string {
	names := make([]string, len(known))
	for i, m := range known {
		names[i] = m.Name
	}
	return names
}

func Lookup(name string) (Info, bool) {
	for _, m := range known {
		if m.Name == name {
			return m, true
		}
	}
	return Info{}, false
}

// Dir is where fetched models live.
func Dir() string {
	if env := os.Getenv(EnvDir); env != "" {
		return env
	}
	cache, err := os.UserCacheDir()
	if err != nil {
		return "models"
	}
	return filepath.Join(cache, "parla", "models")
}

// Find resolves the configured model to an installed file. A value
// containing a path separator or a .bin suffix is treated as an
// explicit file path; otherwise it must be a known name already
// fetched into Dir.
func Find(nameOrPath string) (string, error) {
	if strings.ContainsRune(nameOrPath, os.PathSeparator) || strings.HasSuffix(nameOrPath, ".bin") {
		if _, err := os.Stat(nameOrPath); err != nil {
			return "", fmt.Errorf("model file: %w", err)
		}
		return nameOrPath, nil
	}
	info, ok := Lookup(nameOrPath)
	if !ok {
		return "", fmt.Errorf("unknown model %q (known: %s)", nameOrPath, strings.Join(Known(), ", "))
	}
	path := filepath.Join(Dir(), info.filename())
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("model %q is not installed, run: parla -fetch-model (%w)", nameOrPath, err)
	}
	return path, nil
}

// ggml files start with this magic, little-endian.
const ggmlMagic = 0x67676d6c

// ValidateHeader reports whether path plausibly is a ggml model file.
func ValidateHeader(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var magic [4]byte
	if _, err := io.ReadFull(f, magic[:]); err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	if binary.LittleEndian.Uint32(magic[:]) != ggmlMagic {
		return fmt.Errorf("%s is not a ggml model (bad magic)", filepath.Base(path))
	}
	return nil
}
