package log

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	diagLog        zerolog.Logger
	diagFile       *os.File
	transcribeFile *os.File
	logMu          sync.Mutex
	logReady       bool
	pid            int
	dir            string
)

type Metrics struct {
	AudioLengthS  float64
	QueueWaitMs   float64
	InferTimeMs   float64
	RTF           float64
	MemoryAllocMB float64
	MemoryPeakMB  float64
}

// ResolveDir picks the log directory: the -logpath flag, then
// PARLA_LOG_PATH, then the config file's log.dir, then the OS default.
func ResolveDir(flagPath, cfgDir string) (string, error) {
	if flagPath != "" {
		return absolutize(flagPath)
	}
	if env := os.Getenv("PARLA_LOG_PATH"); env != "" {
		return absolutize(env)
	}
	if cfgDir != "" {
		return absolutize(cfgDir)
	}
	return getDefaultDir()
}

func absolutize(p string) (string, error) {
	if filepath.IsAbs(p) {
		return p, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(wd, p), nil
}

func SetDir(d string) {
	dir = d
}

func Dir() string {
	return dir
}

func EnsureDir() error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	return nil
}

func Init() error {
	logMu.Lock()
	defer logMu.Unlock()

	if err := EnsureDir(); err != nil {
		return err
	}

	pid = os.Getpid()

	var err error

	diagPath := filepath.Join(dir, "diagnostics_log.txt")
	diagFile, err = os.OpenFile(diagPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	transcribePath := filepath.Join(dir, "transcribe_log.txt")
	transcribeFile, err = os.OpenFile(transcribePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		diagFile.Close()
		return err
	}

	consoleWriter := zerolog.ConsoleWriter{
		Out:        diagFile,
		TimeFormat: "2006-01-02 15:04:05",
		NoColor:    true,
	}
	diagLog = zerolog.New(consoleWriter).With().Timestamp().Int("pid", pid).Logger()

	logReady = true
	return nil
}

func Close() {
	logMu.Lock()
	defer logMu.Unlock()
	if diagFile != nil {
		diagFile.Close()
		diagFile = nil
	}
	if transcribeFile != nil {
		transcribeFile.Close()
		transcribeFile = nil
	}
	logReady = false
}

func Info(msg string) {
	if logReady {
		diagLog.Info().Msg(msg)
	}
}

func Infof(format string, args ...any) {
	if logReady {
		diagLog.Info().Msg(fmt.Sprintf(format, args...))
	}
}

func Error(msg string) {
	if logReady {
		diagLog.Error().Msg(msg)
	}
}

func Errorf(format string, args ...any) {
	if logReady {
		diagLog.Error().Msg(fmt.Sprintf(format, args...))
	}
}

func Warn(msg string) {
	if logReady {
		diagLog.Warn().Msg(msg)
	}
}

func Warnf(format string, args ...any) {
	if logReady {
		diagLog.Warn().Msg(fmt.Sprintf(format, args...))
	}
}

func TranscriptionMetrics(m Metrics, engine, kind string) {
	if !logReady {
		return
	}

	diagLog.Info().
		Str("engine", engine).
		Str("kind", kind).
		Float64("audio_s", m.AudioLengthS).
		Float64("queue_wait_ms", m.QueueWaitMs).
		Float64("infer_ms", m.InferTimeMs).
		Float64("rtf", m.RTF).
		Float64("mem_mb", m.MemoryAllocMB).
		Float64("peak_mb", m.MemoryPeakMB).
		Msg("transcription")
}

func TranscriptionText(text string) {
	if !logReady {
		return
	}
	logMu.Lock()
	defer logMu.Unlock()
	line := fmt.Sprintf("%s\t[%d]\t%s\n", time.Now().Format("2006-01-02 15:04:05"), pid, text)
	transcribeFile.WriteString(line)
}

func ModelLoad(path string, loadMs float64) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("model", path).
		Float64("load_ms", loadMs).
		Msg("model_load")
}

func RecordingStart(device string) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("device", device).
		Msg("recording_start")
}

func RecordingStop(reason string, audioS float64) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("reason", reason).
		Float64("audio_s", audioS).
		Msg("recording_stop")
}

func SessionStart(engine, device string) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("engine", engine).
		Str("device", device).
		Msg("session_start")
}

func SessionEnd(count int) {
	if !logReady {
		return
	}
	diagLog.Info().
		Int("count", count).
		Msg("session_end")
}
