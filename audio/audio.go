package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
	"time"
)

const (
	DefaultSampleRate = 16000
	DefaultChunkMs    = 100
	Channels          = 1
	BitsPerSample     = 16
	BytesPerSample    = BitsPerSample / 8
)

var (
	// ErrDeviceUnavailable means no capture device could be opened.
	ErrDeviceUnavailable = errors.New("audio: capture device unavailable")
	// ErrPermissionDenied means the OS refused microphone access.
	ErrPermissionDenied = errors.New("audio: microphone access denied")
)

var btKeywords = []string{
	"airpods", "beats", "bose", "wh-1000", "wf-1000",
	"sony wh-", "sony wf-",
	"jabra", "galaxy buds", "pixel buds", "powerbeats",
	"jbl ", "sennheiser momentum", "plantronics",
	"tozo", "anker soundcore", "skullcandy",
	"bluetooth", " bt ", " bt)", " bt]",
}

func IsBluetooth(name string) bool {
	lower := strings.ToLower(name)
	for _, kw := range btKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// Chunk is one fixed-duration block of signed 16-bit little-endian PCM.
// Chunks are immutable once emitted; consumers must not modify PCM.
type Chunk struct {
	PCM        []byte
	SampleRate uint32
	Channels   uint32
}

func (c Chunk) Frames() int {
	if c.Channels == 0 {
		return 0
	}
	return len(c.PCM) / BytesPerSample / int(c.Channels)
}

func (c Chunk) Duration() time.Duration {
	if c.SampleRate == 0 {
		return 0
	}
	return time.Duration(c.Frames()) * time.Second / time.Duration(c.SampleRate)
}

// RMS returns the root-mean-square amplitude of the chunk in raw sample
// units (0..32767). An empty chunk reads as 0.
func (c Chunk) RMS() float64 {
	n := len(c.PCM) / BytesPerSample
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		s := int16(binary.LittleEndian.Uint16(c.PCM[i*BytesPerSample:]))
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(n))
}

// Callbacks carries the consumer hooks for a running capture stream.
// Data is invoked once per fixed-size chunk, always from the same
// goroutine. Error is invoked at most once, for a fatal stream error;
// no Data calls follow it.
type Callbacks struct {
	Data  func(chunk Chunk)
	Error func(err error)
}

type CaptureConfig struct {
	SampleRate uint32
	Channels   uint32
	ChunkMs    int
}

func (c CaptureConfig) withDefaults() CaptureConfig {
	if c.SampleRate == 0 {
		c.SampleRate = DefaultSampleRate
	}
	if c.Channels == 0 {
		c.Channels = Channels
	}
	if c.ChunkMs <= 0 {
		c.ChunkMs = DefaultChunkMs
	}
	return c
}

// chunkBytes is the size in bytes of one full chunk for this config.
func (c CaptureConfig) chunkBytes() int {
	frames := int(c.SampleRate) * c.ChunkMs / 1000
	return frames * int(c.Channels) * BytesPerSample
}

type DeviceInfo struct {
	ID   string // opaque platform-specific identifier
	Name string
}

type Context interface {
	Devices() ([]DeviceInfo, error)
	NewCapture(device *DeviceInfo, config CaptureConfig) (CaptureDevice, error)
	Close()
}

type CaptureDevice interface {
	// Start acquires the device and begins delivery. Device and
	// permission failures are reported here, never mid-stream.
	Start() error
	Stop()
	Close()
	SetCallbacks(cb Callbacks)
	ClearCallbacks()
	DeviceName() string
}

// chunker reframes arbitrarily sized backend buffers into fixed-size
// chunks. A trailing partial chunk at stream end is dropped. Not safe
// for concurrent use; each backend feeds it from its delivery goroutine.
type chunker struct {
	config CaptureConfig
	buf    []byte
	emit   func(Chunk)
}

func newChunker(config CaptureConfig, emit func(Chunk)) *chunker {
	return &chunker{config: config, emit: emit}
}

func (k *chunker) write(data []byte) {
	size := k.config.chunkBytes()
	k.buf = append(k.buf, data...)
	for len(k.buf) >= size {
		pcm := make([]byte, size)
		copy(pcm, k.buf[:size])
		k.buf = k.buf[size:]
		k.emit(Chunk{PCM: pcm, SampleRate: k.config.SampleRate, Channels: k.config.Channels})
	}
}

// classifyStartErr maps a backend open/start failure onto the error
// taxonomy reported at Start.
func classifyStartErr(err error) error {
	if err == nil {
		return nil
	}
	lower := strings.ToLower(err.Error())
	if os.IsPermission(err) || strings.Contains(lower, "permission") || strings.Contains(lower, "access denied") {
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	}
	return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
}
