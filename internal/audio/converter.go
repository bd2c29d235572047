package audio

import (
	"encoding/binary"
	"fmt"
	"math"
)

// QuantizeSample converts a normalized sample to a signed 16-bit value
// using round(s * 32767), clipped to the int16 range.
func QuantizeSample(s float32) int16 {
	v := math.Round(float64(s) * math.MaxInt16)
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}

// PCM16ToSamples converts little-endian 16-bit PCM bytes from an external
// source to normalized samples, dividing by 32768.
func PCM16ToSamples(pcmData []byte) ([]float32, error) {
	return pcm16ToSamples(pcmData, 32768.0)
}

// pcm16ToSamples divides each 16-bit value by scale. Samples written by
// QuantizeSample are read back with scale 32767 and clamped to [-1, 1].
func pcm16ToSamples(pcmData []byte, scale float32) ([]float32, error) {
	if len(pcmData)%2 != 0 {
		return nil, fmt.Errorf("PCM data length must be even (16-bit samples), got %d", len(pcmData))
	}

	samples := make([]float32, len(pcmData)/2)
	for i := range samples {
		v := int16(binary.LittleEndian.Uint16(pcmData[i*2:]))
		samples[i] = clampSample(float32(v) / scale)
	}

	return samples, nil
}

// SamplesToPCM16 converts normalized samples to little-endian 16-bit PCM bytes
func SamplesToPCM16(samples []float32) []byte {
	pcmData := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(pcmData[i*2:], uint16(QuantizeSample(s)))
	}
	return pcmData
}

// Float32LEToSamples converts raw little-endian IEEE-754 float32 bytes
// (the format loopback recorders emit) to samples, clamped to [-1, 1].
func Float32LEToSamples(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("float32 data length must be a multiple of 4, got %d", len(data))
	}

	samples := make([]float32, len(data)/4)
	for i := range samples {
		s := math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
		if math.IsNaN(float64(s)) {
			s = 0
		}
		samples[i] = clampSample(s)
	}

	return samples, nil
}

// CalculateRMS calculates the root mean square (RMS) of normalized samples.
// Useful for detecting audio levels and silence.
func CalculateRMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0.0
	}

	sum := 0.0
	for _, sample := range samples {
		sum += float64(sample) * float64(sample)
	}

	return math.Sqrt(sum / float64(len(samples)))
}

// DurationSamples returns how many samples cover ms milliseconds at sampleRate
func DurationSamples(ms, sampleRate int) int {
	return int(math.Round(float64(ms) * float64(sampleRate) / 1000.0))
}
