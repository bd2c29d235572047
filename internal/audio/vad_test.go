package audio

import (
	"testing"
)

func constantFrame(n int, v float32) []float32 {
	frame := make([]float32, n)
	for i := range frame {
		frame[i] = v
	}
	return frame
}

func TestEnergyClassifier_Speech(t *testing.T) {
	vad := NewEnergyClassifier(&VADConfig{EnergyThreshold: 0.01})

	samples := constantFrame(320, 0.2) // 20ms at 16kHz

	for i := 0; i < 5; i++ {
		if !vad.IsSpeech(samples) {
			t.Errorf("Expected speech detection on frame %d", i)
		}
	}

	if vad.Level() < 0.19 {
		t.Errorf("Expected level around 0.2, got %f", vad.Level())
	}
}

func TestEnergyClassifier_Silence(t *testing.T) {
	vad := NewEnergyClassifier(nil)

	samples := constantFrame(320, 0.0005)

	for i := 0; i < 15; i++ {
		if vad.IsSpeech(samples) {
			t.Errorf("Expected silence on frame %d", i)
		}
	}
}

func TestEnergyClassifier_Hangover(t *testing.T) {
	vad := NewEnergyClassifier(&VADConfig{EnergyThreshold: 0.01, HangoverFrames: 2})

	loud := constantFrame(320, 0.2)
	quiet := make([]float32, 320)

	if !vad.IsSpeech(loud) {
		t.Fatal("Expected speech on loud frame")
	}

	// Two hangover frames still count as speech
	for i := 0; i < 2; i++ {
		if !vad.IsSpeech(quiet) {
			t.Errorf("Expected hangover speech on quiet frame %d", i)
		}
	}

	if vad.IsSpeech(quiet) {
		t.Error("Expected silence once hangover is exhausted")
	}
}

func TestEnergyClassifier_Reset(t *testing.T) {
	vad := NewEnergyClassifier(&VADConfig{EnergyThreshold: 0.01, HangoverFrames: 5})

	vad.IsSpeech(constantFrame(320, 0.2))
	vad.Reset()

	if vad.IsSpeech(make([]float32, 320)) {
		t.Error("Expected silence after reset")
	}
	if vad.Level() != 0 {
		t.Errorf("Expected level 0 after silent frame, got %f", vad.Level())
	}
}

func TestAlwaysSpeech(t *testing.T) {
	var c Classifier = AlwaysSpeech{}
	if !c.IsSpeech(make([]float32, 320)) {
		t.Error("Expected AlwaysSpeech to classify silence as speech")
	}
}

func TestDetectSilence(t *testing.T) {
	if !DetectSilence(constantFrame(160, 0.001), 0.01) {
		t.Error("Expected silence detection for low-energy audio")
	}
	if DetectSilence(constantFrame(160, 0.3), 0.01) {
		t.Error("Expected non-silence for high-energy audio")
	}
}
