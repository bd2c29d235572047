package audio

import (
	"encoding/binary"
	"math"
	"testing"
)

func TestResample_RateLaw(t *testing.T) {
	pairs := []struct {
		in, out int
	}{
		{44100, 16000},
		{16000, 44100},
		{48000, 16000},
		{8000, 16000},
		{22050, 16000},
	}
	lengths := []int{1, 2, 7, 100, 882, 1764, 4410}

	for _, p := range pairs {
		for _, n := range lengths {
			samples := make([]float32, n)
			got := len(Resample(samples, p.in, p.out))
			expected := int(math.Round(float64(n) * float64(p.out) / float64(p.in)))
			if got != expected {
				t.Errorf("%d->%d with %d samples: expected length %d, got %d", p.in, p.out, n, expected, got)
			}
		}
	}
}

func TestResample_TwentyMillisecondFrame(t *testing.T) {
	// 20ms at 44.1kHz must become exactly one 20ms VAD frame at 16kHz
	out := Resample(make([]float32, 882), 44100, 16000)
	if len(out) != 320 {
		t.Errorf("Expected 320 samples, got %d", len(out))
	}
}

func TestResample_PreservesDC(t *testing.T) {
	samples := make([]float32, 1000)
	for i := range samples {
		samples[i] = 0.5
	}

	out := Resample(samples, 44100, 16000)
	for i, s := range out {
		if math.Abs(float64(s)-0.5) > 1e-4 {
			t.Fatalf("Sample %d: expected 0.5, got %f", i, s)
		}
	}
}

func TestResample_PreservesTone(t *testing.T) {
	const (
		rateIn  = 44100
		rateOut = 16000
		freq    = 440.0
	)
	samples := make([]float32, rateIn/10)
	for i := range samples {
		samples[i] = float32(0.5 * math.Sin(2*math.Pi*freq*float64(i)/rateIn))
	}

	out := Resample(samples, rateIn, rateOut)

	// Skip the edges where neighbours are clamped
	for k := 50; k < len(out)-50; k++ {
		expected := 0.5 * math.Sin(2*math.Pi*freq*float64(k)/rateOut)
		if math.Abs(float64(out[k])-expected) > 0.02 {
			t.Fatalf("Sample %d: expected %.4f, got %.4f", k, expected, out[k])
		}
	}
}

func TestResample_SameRateCopies(t *testing.T) {
	samples := []float32{0.1, 0.2, 0.3}
	out := Resample(samples, 16000, 16000)
	out[0] = 0.9
	if samples[0] != 0.1 {
		t.Error("Expected Resample to return a copy for equal rates")
	}
}

func TestResample_InvalidRates(t *testing.T) {
	if out := Resample([]float32{1, 2}, 0, 16000); out != nil {
		t.Errorf("Expected nil for invalid input rate, got %v", out)
	}
	if out := Resample([]float32{1, 2}, 16000, -1); out != nil {
		t.Errorf("Expected nil for invalid output rate, got %v", out)
	}
}

func TestQuantizeSample(t *testing.T) {
	cases := []struct {
		in       float32
		expected int16
	}{
		{0, 0},
		{1, 32767},
		{-1, -32767},
		{0.5, 16384},
		{2, 32767},
		{-2, -32768},
	}
	for _, c := range cases {
		if got := QuantizeSample(c.in); got != c.expected {
			t.Errorf("QuantizeSample(%v): expected %d, got %d", c.in, c.expected, got)
		}
	}
}

func TestPCM16ToSamples(t *testing.T) {
	pcm := make([]byte, 6)
	binary.LittleEndian.PutUint16(pcm[0:], uint16(int16(16384)))
	binary.LittleEndian.PutUint16(pcm[2:], 0x8000) // -32768
	binary.LittleEndian.PutUint16(pcm[4:], 0)

	samples, err := PCM16ToSamples(pcm)
	if err != nil {
		t.Fatalf("PCM16ToSamples failed: %v", err)
	}
	if samples[0] != 0.5 || samples[1] != -1 || samples[2] != 0 {
		t.Errorf("Unexpected samples: %v", samples)
	}

	if _, err := PCM16ToSamples([]byte{1, 2, 3}); err == nil {
		t.Error("Expected error for odd-length PCM data")
	}
}

func TestSamplesToPCM16(t *testing.T) {
	pcm := SamplesToPCM16([]float32{1, -1})
	if len(pcm) != 4 {
		t.Fatalf("Expected 4 bytes, got %d", len(pcm))
	}
	if v := int16(binary.LittleEndian.Uint16(pcm[0:])); v != 32767 {
		t.Errorf("Expected 32767, got %d", v)
	}
	if v := int16(binary.LittleEndian.Uint16(pcm[2:])); v != -32767 {
		t.Errorf("Expected -32767, got %d", v)
	}
}

func TestFloat32LEToSamples(t *testing.T) {
	data := make([]byte, 12)
	binary.LittleEndian.PutUint32(data[0:], math.Float32bits(0.25))
	binary.LittleEndian.PutUint32(data[4:], math.Float32bits(3.0))
	binary.LittleEndian.PutUint32(data[8:], math.Float32bits(float32(math.NaN())))

	samples, err := Float32LEToSamples(data)
	if err != nil {
		t.Fatalf("Float32LEToSamples failed: %v", err)
	}
	if samples[0] != 0.25 || samples[1] != 1 || samples[2] != 0 {
		t.Errorf("Unexpected samples: %v", samples)
	}

	if _, err := Float32LEToSamples([]byte{1, 2}); err == nil {
		t.Error("Expected error for truncated float32 data")
	}
}

func TestCalculateRMS(t *testing.T) {
	samples := []float32{0.1, -0.1, 0.2, -0.2}
	rms := CalculateRMS(samples)

	expected := math.Sqrt((0.01 + 0.01 + 0.04 + 0.04) / 4)
	if math.Abs(rms-expected) > 1e-6 {
		t.Errorf("Expected RMS %.6f, got %.6f", expected, rms)
	}

	if CalculateRMS(nil) != 0 {
		t.Error("Expected RMS of empty input to be 0")
	}
}

func TestDurationSamples(t *testing.T) {
	if n := DurationSamples(20, 16000); n != 320 {
		t.Errorf("Expected 320, got %d", n)
	}
	if n := DurationSamples(500, 16000); n != 8000 {
		t.Errorf("Expected 8000, got %d", n)
	}
}
