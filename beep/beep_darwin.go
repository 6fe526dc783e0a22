//go:build darwin

package beep

import (
	"math"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"
)

var (
	malgoCtx *malgo.AllocatedContext
	device   *malgo.Device
	cues     [cueCount][]byte

	// Playback state shared with the device callback.
	active atomic.Pointer[[]byte]
	cursor atomic.Uint32
	playMu sync.Mutex
)

// Shorter tones than on Linux; coreaudio output latency already adds
// tail to each cue.
func setup() {
	var err error
	malgoCtx, err = malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return
	}

	cues[cueStart] = tone(startFreq, 0.03, startVolume, startDecay)
	cues[cueEnd] = tone(endFreq, 0.05, endVolume, endDecay)
	cues[cueError] = doubleTone(errorFreq, 0.08, 0.05, errorVolume, errorDecay)

	if err := openDevice(); err != nil {
		malgoCtx.Uninit()
		malgoCtx = nil
	}
}

func openDevice() error {
	config := malgo.DefaultDeviceConfig(malgo.Playback)
	config.Playback.Format = malgo.FormatS16
	config.Playback.Channels = 1
	config.SampleRate = sampleRate

	var err error
	device, err = malgo.InitDevice(malgoCtx.Context, config, malgo.DeviceCallbacks{Data: feed})
	return err
}

// feed streams the active cue into the output buffer and pads with
// silence once it runs out.
func feed(pOutput, _ []byte, frameCount uint32) {
	samples := active.Load()
	if samples == nil || len(*samples) == 0 {
		for i := range pOutput {
			pOutput[i] = 0
		}
		return
	}

	pos := cursor.Load()
	total := uint32(len(*samples))
	want := frameCount * 2
	remaining := total - pos

	if remaining == 0 {
		active.Store(nil)
		for i := range pOutput {
			pOutput[i] = 0
		}
		return
	}

	if want > remaining {
		want = remaining
	}
	copy(pOutput[:want], (*samples)[pos:pos+want])
	cursor.Store(pos + want)

	for i := want; i < frameCount*2; i++ {
		pOutput[i] = 0
	}
}

// tone renders a decaying sine as little-endian mono PCM.
func tone(freq, duration, volume, decay float64) []byte {
	n := int(sampleRate * duration)
	buf := make([]byte, n*2)
	for i := 0; i < n; i++ {
		t := float64(i) / sampleRate
		envelope := math.Exp(-t * decay)
		s := int16(math.Sin(2*math.Pi*freq*t) * 32767 * volume * envelope)
		buf[i*2] = byte(s)
		buf[i*2+1] = byte(s >> 8)
	}
	return buf
}

func doubleTone(freq, toneDur, gapDur, volume, decay float64) []byte {
	single := tone(freq, toneDur, volume, decay)
	gap := make([]byte, int(sampleRate*gapDur)*2)
	out := make([]byte, 0, len(single)*2+len(gap))
	out = append(out, single...)
	out = append(out, gap...)
	out = append(out, single...)
	return out
}

func emit(k cueKind) {
	samples := cues[k]
	if malgoCtx == nil || len(samples) == 0 {
		return
	}

	playMu.Lock()
	defer playMu.Unlock()

	if device == nil {
		return
	}

	device.Stop()
	cursor.Store(0)
	active.Store(&samples)

	if err := device.Start(); err != nil {
		// Start can fail after sleep/wake invalidates the device;
		// rebuild it once and retry.
		device.Uninit()
		if err := openDevice(); err != nil {
			active.Store(nil)
			return
		}
		if err := device.Start(); err != nil {
			active.Store(nil)
		}
	}
}
