package engine

import "encoding/binary"

// pcmToFloat32 converts 16-bit little-endian mono PCM to the
// normalized float32 samples whisper.cpp expects. A trailing odd byte
// is ignored.
func pcmToFloat32(pcm []byte) []float32 {
	n := len(pcm) / 2
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		s := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		out[i] = float32(s) / 32768.0
	}
	return out
}
