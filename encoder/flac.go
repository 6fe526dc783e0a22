// Package encoder writes debug copies of finished utterances as FLAC.
package encoder

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/mewkiz/flac"
	"github.com/mewkiz/flac/frame"
	"github.com/mewkiz/flac/meta"
)

const blockSize = 4096

// WriteFLAC encodes 16-bit mono little-endian PCM to w. A trailing
// odd byte is ignored.
func WriteFLAC(w io.Writer, pcm []byte, sampleRate uint32) error {
	info := &meta.StreamInfo{
		BlockSizeMin:  blockSize,
		BlockSizeMax:  blockSize,
		SampleRate:    sampleRate,
		NChannels:     1,
		BitsPerSample: 16,
	}
	enc, err := flac.NewEncoder(w, info)
	if err != nil {
		return fmt.Errorf("creating flac encoder: %w", err)
	}
	enc.EnablePredictionAnalysis(true)

	samples := make([]int32, len(pcm)/2)
	for i := range samples {
		samples[i] = int32(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
	}

	for off := 0; off < len(samples); off += blockSize {
		end := off + blockSize
		if end > len(samples) {
			end = len(samples)
		}
		block := samples[off:end]

		sub := &frame.Subframe{
			SubHeader: frame.SubHeader{
				Pred: frame.PredVerbatim,
			},
			Samples:  block,
			NSamples: len(block),
		}
		f := &frame.Frame{
			Header: frame.Header{
				BlockSize:     uint16(len(block)),
				SampleRate:    sampleRate,
				Channels:      frame.ChannelsMono,
				BitsPerSample: 16,
			},
			Subframes: []*frame.Subframe{sub},
		}
		if err := enc.WriteFrame(f); err != nil {
			return fmt.Errorf("writing flac frame: %w", err)
		}
	}
	return enc.Close()
}

// Dump writes one utterance to <dir>/utterance-<id>.flac and returns
// the path. The file is removed again if encoding fails partway.
func Dump(dir, id string, pcm []byte, sampleRate uint32) (string, error) {
	path := filepath.Join(dir, "utterance-"+id+".flac")
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create dump file: %w", err)
	}
	if err := WriteFLAC(f, pcm, sampleRate); err != nil {
		f.Close()
		os.Remove(path)
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return path, nil
}
