package audio

import (
	"encoding/binary"
	"math"
	"path/filepath"
	"testing"
	"time"
)

// genConst returns n samples of 16-bit mono PCM all set to val.
func genConst(val int16, n int) []byte {
	pcm := make([]byte, n*2)
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(val))
	}
	return pcm
}

func genTone(freq float64, amplitude int16, sampleRate, n int) []byte {
	pcm := make([]byte, n*2)
	for i := 0; i < n; i++ {
		s := int16(float64(amplitude) * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate)))
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(s))
	}
	return pcm
}

func TestChunkRMS(t *testing.T) {
	chunk := Chunk{PCM: genConst(1000, 1600), SampleRate: 16000, Channels: 1}
	if rms := chunk.RMS(); math.Abs(rms-1000) > 0.5 {
		t.Errorf("constant 1000 signal: RMS = %f, want 1000", rms)
	}

	silent := Chunk{PCM: genConst(0, 1600), SampleRate: 16000, Channels: 1}
	if rms := silent.RMS(); rms != 0 {
		t.Errorf("silent chunk: RMS = %f, want 0", rms)
	}

	// Sine at amplitude A has RMS A/sqrt(2).
	tone := Chunk{PCM: genTone(440, 10000, 16000, 16000), SampleRate: 16000, Channels: 1}
	want := 10000 / math.Sqrt2
	if rms := tone.RMS(); math.Abs(rms-want) > 100 {
		t.Errorf("sine tone: RMS = %f, want ~%f", rms, want)
	}

	empty := Chunk{SampleRate: 16000, Channels: 1}
	if rms := empty.RMS(); rms != 0 {
		t.Errorf("empty chunk: RMS = %f, want 0", rms)
	}
}

func TestChunkDuration(t *testing.T) {
	chunk := Chunk{PCM: genConst(0, 1600), SampleRate: 16000, Channels: 1}
	if d := chunk.Duration(); d != 100*time.Millisecond {
		t.Errorf("1600 frames at 16kHz: duration = %v, want 100ms", d)
	}
}

func TestChunkerReframes(t *testing.T) {
	config := CaptureConfig{SampleRate: 16000, Channels: 1, ChunkMs: 100}
	var got []Chunk
	k := newChunker(config, func(c Chunk) { got = append(got, c) })

	// 3.5 chunks worth of data delivered in awkward slices.
	data := genConst(7, 1600*3+800)
	k.write(data[:100])
	k.write(data[100:5000])
	k.write(data[5000:])

	if len(got) != 3 {
		t.Fatalf("got %d chunks, want 3", len(got))
	}
	for i, c := range got {
		if len(c.PCM) != config.chunkBytes() {
			t.Errorf("chunk %d: %d bytes, want %d", i, len(c.PCM), config.chunkBytes())
		}
		if c.Duration() != 100*time.Millisecond {
			t.Errorf("chunk %d: duration %v, want 100ms", i, c.Duration())
		}
	}
}

func TestWAVRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tone.wav")
	pcm := genTone(440, 8000, 16000, 16000)
	if err := WriteWAVFile(path, pcm, 16000, 1); err != nil {
		t.Fatalf("writing wav: %v", err)
	}

	got, rate, channels, err := ReadWAVFile(path)
	if err != nil {
		t.Fatalf("reading wav: %v", err)
	}
	if rate != 16000 || channels != 1 {
		t.Errorf("rate/channels = %d/%d, want 16000/1", rate, channels)
	}
	if len(got) != len(pcm) {
		t.Fatalf("payload %d bytes, want %d", len(got), len(pcm))
	}
}

func TestFakeCaptureInstant(t *testing.T) {
	pcm := genConst(1000, 1600*5) // 500ms of speech-level audio
	ctx := NewFakeContextFromPCM(pcm, false)

	dev, err := ctx.NewCapture(nil, CaptureConfig{SampleRate: 16000, Channels: 1, ChunkMs: 100})
	if err != nil {
		t.Fatalf("NewCapture: %v", err)
	}
	fake := dev.(*FakeCapture)

	var chunks []Chunk
	done := make(chan struct{})
	var sawSilence bool
	dev.SetCallbacks(Callbacks{Data: func(c Chunk) {
		if c.RMS() == 0 {
			if !sawSilence {
				sawSilence = true
				close(done)
			}
			return
		}
		chunks = append(chunks, c)
	}})

	if err := dev.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	select {
	case <-fake.AudioDone():
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for audio to finish")
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for silence chunks")
	}
	dev.Stop()

	if len(chunks) != 5 {
		t.Errorf("got %d audio chunks, want 5", len(chunks))
	}
	var total time.Duration
	for _, c := range chunks {
		total += c.Duration()
	}
	if total != 500*time.Millisecond {
		t.Errorf("total audio duration %v, want 500ms", total)
	}
}

func TestFakeCaptureStartErr(t *testing.T) {
	ctx := NewFakeContextFromPCM(nil, false)
	ctx.StartErr = ErrDeviceUnavailable

	dev, err := ctx.NewCapture(nil, CaptureConfig{})
	if err != nil {
		t.Fatalf("NewCapture: %v", err)
	}
	if err := dev.Start(); err != ErrDeviceUnavailable {
		t.Errorf("Start err = %v, want ErrDeviceUnavailable", err)
	}
}
