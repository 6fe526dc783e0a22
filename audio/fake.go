package audio

import (
	"sync"
	"time"
)

// FakeContext feeds canned PCM through the CaptureDevice interface. In
// realtime mode chunks arrive paced at their own duration; otherwise the
// whole recording is delivered immediately. After the canned audio runs
// out the capture keeps emitting silence chunks so silence-based
// auto-stop still fires.
type FakeContext struct {
	pcm      []byte
	realtime bool

	// StartErr, when set, is returned from the capture's Start.
	StartErr error
}

func NewFakeContext(wavPath string, realtime bool) (*FakeContext, error) {
	pcm, _, _, err := ReadWAVFile(wavPath)
	if err != nil {
		return nil, err
	}
	return &FakeContext{pcm: pcm, realtime: realtime}, nil
}

func NewFakeContextFromPCM(pcm []byte, realtime bool) *FakeContext {
	return &FakeContext{pcm: pcm, realtime: realtime}
}

func (f *FakeContext) Devices() ([]DeviceInfo, error) {
	return []DeviceInfo{{ID: "fake", Name: "fake capture"}}, nil
}

func (f *FakeContext) Close() {}

func (f *FakeContext) NewCapture(_ *DeviceInfo, config CaptureConfig) (CaptureDevice, error) {
	return &FakeCapture{
		pcm:       f.pcm,
		realtime:  f.realtime,
		config:    config.withDefaults(),
		startErr:  f.StartErr,
		audioDone: make(chan struct{}),
	}, nil
}

type FakeCapture struct {
	pcm       []byte
	realtime  bool
	config    CaptureConfig
	startErr  error
	audioDone chan struct{}

	mu       sync.Mutex
	cb       Callbacks
	stopCh   chan struct{}
	feedDone chan struct{}
}

// AudioDone is closed once the canned audio has been fully delivered
// and the capture has switched to silence.
func (f *FakeCapture) AudioDone() <-chan struct{} { return f.audioDone }

func (f *FakeCapture) SetCallbacks(cb Callbacks) {
	f.mu.Lock()
	f.cb = cb
	f.mu.Unlock()
}

func (f *FakeCapture) ClearCallbacks() {
	f.mu.Lock()
	f.cb = Callbacks{}
	f.mu.Unlock()
}

func (f *FakeCapture) DeviceName() string { return "fake" }

func (f *FakeCapture) callback() Callbacks {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cb
}

func (f *FakeCapture) emit(pcm []byte) {
	if cb := f.callback(); cb.Data != nil {
		cb.Data(Chunk{PCM: pcm, SampleRate: f.config.SampleRate, Channels: f.config.Channels})
	}
}

func (f *FakeCapture) feedChunk(pos, chunkBytes int) int {
	end := min(pos+chunkBytes, len(f.pcm))
	chunk := make([]byte, chunkBytes)
	copy(chunk, f.pcm[pos:end])
	f.emit(chunk)
	return end
}

func (f *FakeCapture) Start() error {
	if f.startErr != nil {
		return f.startErr
	}

	f.stopCh = make(chan struct{})
	f.feedDone = make(chan struct{})
	// audioDone is NOT recreated here -- callers may already be waiting
	// on it. It's reset in Stop() for replay.

	chunkBytes := f.config.chunkBytes()
	silence := make([]byte, chunkBytes)

	if !f.realtime {
		for pos := 0; pos < len(f.pcm); {
			pos = f.feedChunk(pos, chunkBytes)
		}
		close(f.audioDone)

		go func() {
			defer close(f.feedDone)
			for {
				select {
				case <-f.stopCh:
					return
				case <-time.After(time.Millisecond):
				}
				f.emit(silence)
			}
		}()
		return nil
	}

	interval := time.Duration(f.config.ChunkMs) * time.Millisecond
	go func() {
		defer close(f.feedDone)
		pos := 0
		audioFinished := false

		for {
			select {
			case <-f.stopCh:
				return
			default:
			}

			if pos < len(f.pcm) {
				pos = f.feedChunk(pos, chunkBytes)
			} else {
				if !audioFinished {
					audioFinished = true
					close(f.audioDone)
				}
				f.emit(silence)
			}

			select {
			case <-f.stopCh:
				return
			case <-time.After(interval):
			}
		}
	}()

	return nil
}

func (f *FakeCapture) Stop() {
	if f.stopCh == nil {
		return
	}
	select {
	case <-f.stopCh:
	default:
		close(f.stopCh)
	}
	<-f.feedDone
	f.audioDone = make(chan struct{}) // reset for replay
}

func (f *FakeCapture) Close() {}

// FailStream delivers a fatal stream error to the consumer, simulating
// a device that died mid-capture.
func (f *FakeCapture) FailStream(err error) {
	if cb := f.callback(); cb.Error != nil {
		cb.Error(err)
	}
}
