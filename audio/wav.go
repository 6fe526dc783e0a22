package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

const WAVHeaderSize = 44

// EncodeWAV writes a canonical 44-byte RIFF header followed by the raw
// 16-bit little-endian PCM payload.
func EncodeWAV(w io.Writer, pcm []byte, sampleRate, channels int) error {
	byteRate := sampleRate * channels * BytesPerSample
	blockAlign := channels * BytesPerSample

	hdr := make([]byte, WAVHeaderSize)
	copy(hdr[0:4], "RIFF")
	binary.LittleEndian.PutUint32(hdr[4:8], uint32(36+len(pcm)))
	copy(hdr[8:12], "WAVE")
	copy(hdr[12:16], "fmt ")
	binary.LittleEndian.PutUint32(hdr[16:20], 16)
	binary.LittleEndian.PutUint16(hdr[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(hdr[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(hdr[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(hdr[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(hdr[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(hdr[34:36], BitsPerSample)
	copy(hdr[36:40], "data")
	binary.LittleEndian.PutUint32(hdr[40:44], uint32(len(pcm)))

	if _, err := w.Write(hdr); err != nil {
		return err
	}
	_, err := w.Write(pcm)
	return err
}

func WriteWAVFile(path string, pcm []byte, sampleRate, channels int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := EncodeWAV(f, pcm, sampleRate, channels); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadWAVFile parses a canonical-layout WAV file (44-byte header, PCM
// s16le) and returns its payload. Files with extra chunks or other
// codecs are rejected.
func ReadWAVFile(path string) (pcm []byte, sampleRate, channels int, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, 0, err
	}
	if len(data) < WAVHeaderSize {
		return nil, 0, 0, errors.New("wav: file too short")
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, 0, 0, errors.New("wav: not a RIFF/WAVE file")
	}
	if string(data[12:16]) != "fmt " || string(data[36:40]) != "data" {
		return nil, 0, 0, errors.New("wav: non-canonical chunk layout")
	}
	if format := binary.LittleEndian.Uint16(data[20:22]); format != 1 {
		return nil, 0, 0, fmt.Errorf("wav: unsupported format %d", format)
	}
	if bits := binary.LittleEndian.Uint16(data[34:36]); bits != BitsPerSample {
		return nil, 0, 0, fmt.Errorf("wav: unsupported bit depth %d", bits)
	}
	channels = int(binary.LittleEndian.Uint16(data[22:24]))
	sampleRate = int(binary.LittleEndian.Uint32(data[24:28]))
	size := int(binary.LittleEndian.Uint32(data[40:44]))
	payload := data[WAVHeaderSize:]
	if size > len(payload) {
		size = len(payload)
	}
	return payload[:size], sampleRate, channels, nil
}
