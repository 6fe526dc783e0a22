//go:build linux

package beep

import (
	"math"

	"github.com/jfreymuth/pulse"
	"github.com/jfreymuth/pulse/proto"
)

var cues [cueCount][]int16

func setup() {
	cues[cueStart] = tone(startFreq, 0.2, startVolume, startDecay)
	cues[cueEnd] = tone(endFreq, 0.2, endVolume, endDecay)
	cues[cueError] = doubleTone(errorFreq, 0.08, 0.05, errorVolume, errorDecay)
}

func emit(k cueKind) {
	go pulsePlay(cues[k])
}

// tone renders a decaying sine as interleaved stereo samples.
func tone(freq, duration, volume, decay float64) []int16 {
	n := int(sampleRate * duration)
	samples := make([]int16, n*2)
	for i := 0; i < n; i++ {
		t := float64(i) / sampleRate
		envelope := math.Exp(-t * decay)
		s := int16(math.Sin(2*math.Pi*freq*t) * 32767 * volume * envelope)
		samples[i*2] = s
		samples[i*2+1] = s
	}
	return samples
}

func doubleTone(freq, toneDur, gapDur, volume, decay float64) []int16 {
	single := tone(freq, toneDur, volume, decay)
	gap := make([]int16, int(sampleRate*gapDur)*2)
	out := make([]int16, 0, len(single)*2+len(gap))
	out = append(out, single...)
	out = append(out, gap...)
	out = append(out, single...)
	return out
}

// pulsePlay opens a short-lived playback stream and drains the cue
// through it, so no daemon connection is held while idle.
func pulsePlay(samples []int16) {
	if len(samples) == 0 {
		return
	}
	c, err := pulse.NewClient()
	if err != nil {
		return
	}
	defer c.Close()

	pos := 0
	reader := pulse.Int16Reader(func(buf []int16) (int, error) {
		if pos >= len(samples) {
			return 0, pulse.EndOfData
		}
		n := copy(buf, samples[pos:])
		pos += n
		return n, nil
	})
	stream, err := c.NewPlayback(reader,
		pulse.PlaybackStereo,
		pulse.PlaybackSampleRate(sampleRate),
		pulse.PlaybackLatency(0.1),
		pulse.PlaybackRawOption(func(p *proto.CreatePlaybackStream) {
			p.ChannelVolumes = proto.ChannelVolumes{uint32(proto.VolumeNorm), uint32(proto.VolumeNorm)}
		}),
	)
	if err != nil {
		return
	}
	stream.Start()
	stream.Drain()
	stream.Stop()
	stream.Close()
}
