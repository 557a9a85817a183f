package audio

import (
	"encoding/binary"
	"fmt"
)

// WavHeaderSize is the size of the canonical RIFF/WAVE/fmt/data header.
const WavHeaderSize = 44

// WavHeader builds a canonical 44-byte RIFF header for a PCM payload of
// dataLen bytes. The caller appends the payload itself.
func WavHeader(channels, sampleRate, bitDepth, dataLen int) []byte {
	h := make([]byte, WavHeaderSize)

	byteRate := sampleRate * channels * bitDepth / 8
	blockAlign := channels * bitDepth / 8

	copy(h[0:4], "RIFF")
	binary.LittleEndian.PutUint32(h[4:8], uint32(36+dataLen))
	copy(h[8:12], "WAVE")

	copy(h[12:16], "fmt ")
	binary.LittleEndian.PutUint32(h[16:20], 16) // PCM fmt chunk size
	binary.LittleEndian.PutUint16(h[20:22], 1)  // PCM
	binary.LittleEndian.PutUint16(h[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(h[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(h[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(h[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(h[34:36], uint16(bitDepth))

	copy(h[36:40], "data")
	binary.LittleEndian.PutUint32(h[40:44], uint32(dataLen))

	return h
}

// WavInfo describes the fmt chunk of a parsed WAV container.
type WavInfo struct {
	Channels   int
	SampleRate int
	BitDepth   int
}

// StripWav locates the data chunk of a WAV container and returns its raw
// bytes plus the format info. Providers sometimes wrap raw codec bytes in a
// WAV container; the transport expects headerless frames, so we have to
// unwrap before playback. The data chunk is located explicitly rather than
// assumed at offset 44, since some encoders insert LIST or fact chunks first.
func StripWav(wav []byte) ([]byte, WavInfo, error) {
	var info WavInfo
	if len(wav) < 12 || string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		return nil, info, fmt.Errorf("not a RIFF/WAVE container")
	}

	off := 12
	var data []byte
	for off+8 <= len(wav) {
		id := string(wav[off : off+4])
		size := int(binary.LittleEndian.Uint32(wav[off+4 : off+8]))
		body := off + 8
		if body+size > len(wav) {
			size = len(wav) - body // tolerate truncated final chunk
		}
		switch id {
		case "fmt ":
			if size >= 16 {
				info.Channels = int(binary.LittleEndian.Uint16(wav[body+2 : body+4]))
				info.SampleRate = int(binary.LittleEndian.Uint32(wav[body+4 : body+8]))
				info.BitDepth = int(binary.LittleEndian.Uint16(wav[body+14 : body+16]))
			}
		case "data":
			data = wav[body : body+size]
		}
		// chunks are word-aligned
		if size%2 == 1 {
			size++
		}
		off = body + size
	}

	if data == nil {
		return nil, info, fmt.Errorf("wav: no data chunk found")
	}
	return data, info, nil
}

// PCM16ToBytes serializes samples little-endian, the layout WAV expects.
func PCM16ToBytes(pcm []int16) []byte {
	out := make([]byte, len(pcm)*2)
	for i, s := range pcm {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// BytesToPCM16 parses little-endian 16-bit samples; a trailing odd byte is dropped.
func BytesToPCM16(raw []byte) []int16 {
	n := len(raw) / 2
	pcm := make([]int16, n)
	for i := 0; i < n; i++ {
		pcm[i] = int16(binary.LittleEndian.Uint16(raw[i*2:]))
	}
	return pcm
}
