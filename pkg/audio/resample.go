package audio

// UpsampleLinear2x doubles the sample rate by interpolating between
// neighboring samples. Good enough as transcription preprocessing; not
// meant for playback quality.
func UpsampleLinear2x(pcm []int16) []int16 {
	if len(pcm) == 0 {
		return nil
	}
	out := make([]int16, 0, len(pcm)*2)
	for i := 0; i < len(pcm); i++ {
		out = append(out, pcm[i])
		if i+1 < len(pcm) {
			out = append(out, int16((int32(pcm[i])+int32(pcm[i+1]))/2))
		} else {
			out = append(out, pcm[i])
		}
	}
	return out
}

// ResampleLinear converts between arbitrary rates with linear interpolation.
// Used to bring provider audio (22.05k/24k WAV) down to the 8k the
// telephony codec wants.
func ResampleLinear(pcm []int16, fromRate, toRate int) []int16 {
	if fromRate == toRate || len(pcm) == 0 || fromRate <= 0 || toRate <= 0 {
		return pcm
	}
	outLen := int(int64(len(pcm)) * int64(toRate) / int64(fromRate))
	if outLen == 0 {
		return nil
	}
	out := make([]int16, outLen)
	step := float64(fromRate) / float64(toRate)
	for i := range out {
		pos := float64(i) * step
		j := int(pos)
		if j >= len(pcm)-1 {
			out[i] = pcm[len(pcm)-1]
			continue
		}
		frac := pos - float64(j)
		out[i] = int16(float64(pcm[j])*(1-frac) + float64(pcm[j+1])*frac)
	}
	return out
}
