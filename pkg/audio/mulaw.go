// Package audio holds the stateless codec primitives shared by the media
// pipeline: G.711 μ-law companding, WAV framing and linear resampling.
// Everything here is deterministic and allocation-light; per-call state
// lives with the session that owns it.
package audio

const (
	muLawBias = 0x84
	muLawClip = 32635
)

// EncodeMuLaw compands a linear 16-bit sample to one G.711 μ-law byte.
func EncodeMuLaw(sample int16) byte {
	v := int32(sample)
	var sign byte
	if v < 0 {
		v = -v
		sign = 0x80
	}
	if v > muLawClip {
		v = muLawClip
	}
	v += muLawBias

	exponent := 7
	for mask := int32(0x4000); v&mask == 0 && exponent > 0; exponent-- {
		mask >>= 1
	}
	mantissa := byte((v >> (uint(exponent) + 3)) & 0x0F)

	return ^(sign | byte(exponent)<<4 | mantissa)
}

// DecodeMuLaw expands one μ-law byte back to a linear 16-bit sample.
func DecodeMuLaw(b byte) int16 {
	u := ^b
	t := (int32(u&0x0F) << 3) + muLawBias
	t <<= (u & 0x70) >> 4
	if u&0x80 != 0 {
		return int16(muLawBias - t)
	}
	return int16(t - muLawBias)
}

// MuLawToPCM16 decodes a μ-law payload into linear samples.
func MuLawToPCM16(payload []byte) []int16 {
	pcm := make([]int16, len(payload))
	for i, b := range payload {
		pcm[i] = DecodeMuLaw(b)
	}
	return pcm
}

// PCM16ToMuLaw encodes linear samples into a μ-law payload.
func PCM16ToMuLaw(pcm []int16) []byte {
	out := make([]byte, len(pcm))
	for i, s := range pcm {
		out[i] = EncodeMuLaw(s)
	}
	return out
}

// MuLawSilence is the μ-law encoding of a zero sample, used to pad frames.
const MuLawSilence byte = 0xFF
