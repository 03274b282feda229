package audio

import (
	"encoding/binary"
	"math"
)

const (
	// pcmMaxAmplitude is the maximum amplitude for 16-bit PCM audio.
	pcmMaxAmplitude = 32768.0

	// byteMidpoint is the zero line of unsigned 8-bit time-domain samples.
	byteMidpoint = 128.0
)

// PCM16RMS returns the normalized RMS energy (0.0-1.0) of little-endian
// 16-bit PCM audio. A trailing odd byte is ignored.
func PCM16RMS(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		sample := float64(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
		sum += sample * sample
	}
	return clamp01(math.Sqrt(sum/float64(n)) / pcmMaxAmplitude)
}

// EncodePCM16 appends samples to dst as little-endian 16-bit PCM.
func EncodePCM16(dst []byte, samples []int16) []byte {
	for _, s := range samples {
		dst = binary.LittleEndian.AppendUint16(dst, uint16(s))
	}
	return dst
}

// ByteTimeDomainRMS returns the normalized RMS energy (0.0-1.0) of unsigned
// 8-bit time-domain samples centered on 128, as produced by analyser nodes.
func ByteTimeDomainRMS(samples []byte) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, b := range samples {
		v := (float64(b) - byteMidpoint) / byteMidpoint
		sum += v * v
	}
	return clamp01(math.Sqrt(sum / float64(len(samples))))
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
