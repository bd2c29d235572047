package audio

// Classifier tags one fixed-size frame of normalized samples as speech or silence
type Classifier interface {
	IsSpeech(frame []float32) bool
}

// resettable is implemented by classifiers that keep state across frames
type resettable interface {
	Reset()
}

// VADConfig holds configuration for Voice Activity Detection
type VADConfig struct {
	EnergyThreshold float64 // RMS threshold on normalized samples
	HangoverFrames  int     // Frames still reported as speech after energy drops
}

// DefaultVADConfig returns a default VAD configuration
func DefaultVADConfig() *VADConfig {
	return &VADConfig{
		EnergyThreshold: 0.01, // about -40 dBFS
		HangoverFrames:  0,
	}
}

// EnergyClassifier performs energy-based Voice Activity Detection
type EnergyClassifier struct {
	config    *VADConfig
	hangover  int
	lastLevel float64
}

// NewEnergyClassifier creates a new energy classifier
func NewEnergyClassifier(config *VADConfig) *EnergyClassifier {
	if config == nil {
		config = DefaultVADConfig()
	}
	return &EnergyClassifier{config: config}
}

// IsSpeech reports whether the frame contains speech
func (c *EnergyClassifier) IsSpeech(frame []float32) bool {
	// Calculate RMS energy for this frame
	c.lastLevel = CalculateRMS(frame)

	if c.lastLevel > c.config.EnergyThreshold {
		c.hangover = c.config.HangoverFrames
		return true
	}

	// Bridge short dips inside a word
	if c.hangover > 0 {
		c.hangover--
		return true
	}

	return false
}

// Level returns the RMS of the last classified frame
func (c *EnergyClassifier) Level() float64 {
	return c.lastLevel
}

// Reset resets the classifier state
func (c *EnergyClassifier) Reset() {
	c.hangover = 0
	c.lastLevel = 0
}

// AlwaysSpeech classifies every frame as speech. Paired with a maximum
// utterance length it turns the segmenter into a fixed-size chunker.
type AlwaysSpeech struct{}

// IsSpeech always returns true
func (AlwaysSpeech) IsSpeech([]float32) bool {
	return true
}

// DetectSilence detects if audio samples represent silence
// Uses a simple energy threshold
func DetectSilence(samples []float32, threshold float64) bool {
	return CalculateRMS(samples) < threshold
}
