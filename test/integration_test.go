//go:build integration

package test_test

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// The harness drives the real binary in -test mode over stdin.
// Required: PARLA_TEST_BIN (binary path) and PARLA_TEST_MODEL (path
// to a ggml model file, tiny.en is enough). PARLA_TEST_WAV may point
// to a short recording of real speech for the text assertions.

var (
	testBinary string
	testModel  string
)

func TestMain(m *testing.M) {
	testBinary = os.Getenv("PARLA_TEST_BIN")
	if testBinary == "" {
		fmt.Fprintln(os.Stderr, "PARLA_TEST_BIN not set; build the binary and export its path")
		os.Exit(1)
	}
	testModel = os.Getenv("PARLA_TEST_MODEL")

	if err := os.MkdirAll("data", 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "failed to create data dir: %v\n", err)
		os.Exit(1)
	}
	if err := writeWAV(filepath.Join("data", "silence.wav"), 16000, 1.0, 0); err != nil {
		fmt.Fprintf(os.Stderr, "failed to generate silence.wav: %v\n", err)
		os.Exit(1)
	}
	if err := writeWAV(filepath.Join("data", "tone.wav"), 16000, 1.5, 8000); err != nil {
		fmt.Fprintf(os.Stderr, "failed to generate tone.wav: %v\n", err)
		os.Exit(1)
	}
	code := m.Run()
	os.Remove(filepath.Join("data", "silence.wav"))
	os.Remove(filepath.Join("data", "tone.wav"))
	os.Exit(code)
}

// writeWAV renders a mono 16-bit file, a 440 Hz tone at the given
// amplitude or digital silence when amplitude is 0.
func writeWAV(path string, sampleRate int, durationS float64, amplitude float64) error {
	const headerSize = 44
	numSamples := int(float64(sampleRate) * durationS)
	dataSize := numSamples * 2

	buf := make([]byte, headerSize+dataSize)
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(headerSize-8+dataSize))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], 1) // mono
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(sampleRate*2))
	binary.LittleEndian.PutUint16(buf[32:34], 2)  // block align
	binary.LittleEndian.PutUint16(buf[34:36], 16) // bits per sample
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))

	for i := 0; i < numSamples; i++ {
		s := int16(amplitude * math.Sin(2*math.Pi*440*float64(i)/float64(sampleRate)))
		binary.LittleEndian.PutUint16(buf[headerSize+i*2:], uint16(s))
	}
	return os.WriteFile(path, buf, 0o644)
}

func requireModel(t *testing.T) {
	t.Helper()
	if testModel == "" {
		t.Skip("PARLA_TEST_MODEL not set")
	}
}

func speechWAV(t *testing.T) string {
	t.Helper()
	wav := os.Getenv("PARLA_TEST_WAV")
	if wav == "" {
		t.Skip("PARLA_TEST_WAV not set")
	}
	return wav
}

func cmds(parts ...string) string {
	return strings.Join(parts, "\n") + "\n"
}

func runParla(t *testing.T, stdin string, args ...string) (logDir, output string) {
	t.Helper()
	logDir = t.TempDir()
	cmdArgs := append([]string{"-logpath", logDir, "-model", testModel}, args...)

	cmd := exec.Command(testBinary, cmdArgs...)
	cmd.Stdin = strings.NewReader(stdin)
	cmd.Env = os.Environ()

	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("parla exited with error: %v\noutput: %s", err, out)
	}
	return logDir, string(out)
}

func readLog(t *testing.T, logDir, filename string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(logDir, filename))
	if err != nil {
		if os.IsNotExist(err) {
			return ""
		}
		t.Fatalf("failed to read %s: %v", filename, err)
	}
	return string(data)
}

func TestVersionFlag(t *testing.T) {
	out, err := exec.Command(testBinary, "-version").CombinedOutput()
	if err != nil {
		t.Fatalf("-version exited with error: %v\noutput: %s", err, out)
	}
	if !strings.HasPrefix(string(out), "parla ") {
		t.Errorf("unexpected version output: %q", out)
	}
}

func TestCrashLogWritten(t *testing.T) {
	logDir := t.TempDir()
	cmd := exec.Command(testBinary, "-logpath", logDir, "-crash")
	out, err := cmd.CombinedOutput()
	if err == nil {
		t.Fatalf("-crash exited cleanly, expected panic\noutput: %s", out)
	}
	crash := readLog(t, logDir, "crash_log.txt")
	if !strings.Contains(crash, "TEST CRASH") {
		t.Errorf("crash_log.txt does not record the panic:\n%s", crash)
	}
}

// Silence from the very first chunk must auto-stop the session and
// finish with a no-speech outcome, without a second TOGGLE.
func TestSilenceOnlyAutoStops(t *testing.T) {
	requireModel(t)
	_, out := runParla(t, cmds("TOGGLE", "WAIT", "QUIT"), "-test", "data/silence.wav")
	if !strings.Contains(out, "REC_START") {
		t.Errorf("missing REC_START in output:\n%s", out)
	}
	if !strings.Contains(out, "REC_STOP") {
		t.Errorf("session did not auto-stop on silence:\n%s", out)
	}
}

// A loud tone holds the session open until the capture runs dry and
// trailing silence trips the detector.
func TestToneThenSilenceAutoStops(t *testing.T) {
	requireModel(t)
	logDir, out := runParla(t, cmds("TOGGLE", "WAIT", "QUIT"), "-test", "data/tone.wav")
	if !strings.Contains(out, "REC_STOP") {
		t.Errorf("session did not auto-stop after the tone:\n%s", out)
	}
	diag := readLog(t, logDir, "diagnostics_log.txt")
	if !strings.Contains(diag, "silence") {
		t.Errorf("expected a silence stop reason in diagnostics:\n%s", diag)
	}
}

func TestManualToggleStops(t *testing.T) {
	requireModel(t)
	// A wide silence window keeps the auto-stop out of the way so
	// the second TOGGLE is what ends the session.
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(cfgPath, []byte("silence:\n  duration_s: 60\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, out := runParla(t, cmds("TOGGLE", "SLEEP 50", "TOGGLE", "WAIT", "QUIT"),
		"-test", "-config", cfgPath, "data/tone.wav")
	if !strings.Contains(out, "REC_START") || !strings.Contains(out, "REC_STOP") {
		t.Errorf("manual toggle did not run a full session:\n%s", out)
	}
}

func TestSpeechTranscribes(t *testing.T) {
	requireModel(t)
	wav := speechWAV(t)
	logDir, out := runParla(t, cmds("TOGGLE", "WAIT", "QUIT"), "-test", wav)
	if !strings.Contains(out, "RESULT ") {
		t.Fatalf("no transcription in output:\n%s", out)
	}
	text := readLog(t, logDir, "transcribe_log.txt")
	if strings.TrimSpace(text) == "" {
		t.Error("transcribe_log.txt is empty, expected transcribed words")
	}
}

func TestBackToBackSessions(t *testing.T) {
	requireModel(t)
	wav := speechWAV(t)
	logDir, out := runParla(t, cmds("TOGGLE", "WAIT", "SLEEP 100", "TOGGLE", "WAIT", "QUIT"),
		"-test", wav)
	if strings.Count(out, "REC_START") < 2 {
		t.Errorf("expected two sessions:\n%s", out)
	}
	diag := readLog(t, logDir, "diagnostics_log.txt")
	if strings.Count(diag, "transcription") < 2 {
		t.Errorf("expected 2 transcription entries in diagnostics:\n%s", diag)
	}
}
