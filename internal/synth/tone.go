package synth

import (
	"context"
	"math"
	"unicode/utf8"

	"github.com/dgnsrekt/narrator/internal/audio"
)

// ToneConfig configures the tone engine.
type ToneConfig struct {
	Frequency  float64
	MsPerChar  float64
	Speed      float64
	SampleRate int
}

// Tone renders each paragraph as a sine tone whose length follows the
// paragraph's character count. It needs no external binary, which makes it
// the engine for demos and headless runs.
type Tone struct {
	frequency  float64
	msPerChar  float64
	speed      float64
	sampleRate int
}

const (
	toneAmplitude = 0.3
	toneFade      = 0.005 // seconds
)

// NewTone creates a tone engine, filling zero fields with defaults.
func NewTone(cfg ToneConfig) *Tone {
	t := &Tone{
		frequency:  cfg.Frequency,
		msPerChar:  cfg.MsPerChar,
		speed:      cfg.Speed,
		sampleRate: cfg.SampleRate,
	}
	if t.frequency <= 0 {
		t.frequency = 440
	}
	if t.msPerChar <= 0 {
		t.msPerChar = 65
	}
	if t.speed <= 0 {
		t.speed = 1
	}
	if t.sampleRate <= 0 {
		t.sampleRate = audio.DefaultSampleRate
	}
	return t
}

func (t *Tone) Name() string    { return "tone" }
func (t *Tone) SampleRate() int { return t.sampleRate }

// Synthesize implements Synthesizer.
func (t *Tone) Synthesize(_ context.Context, text string) (Stream, error) {
	return newParagraphStream(text, func(_ context.Context, p string) ([]float32, error) {
		return t.render(p), nil
	}), nil
}

// Duration returns the tone length in samples for paragraph.
func (t *Tone) Duration(paragraph string) int64 {
	ms := float64(utf8.RuneCountInString(paragraph)) * t.msPerChar / t.speed
	return audio.MsToSamples(int64(ms), t.sampleRate)
}

func (t *Tone) render(paragraph string) []float32 {
	n := int(t.Duration(paragraph))
	out := make([]float32, n)
	fade := int(toneFade * float64(t.sampleRate))
	step := 2 * math.Pi * t.frequency / float64(t.sampleRate)

	for i := range out {
		gain := toneAmplitude
		if i < fade {
			gain *= float64(i) / float64(fade)
		} else if n-i < fade {
			gain *= float64(n-i) / float64(fade)
		}
		out[i] = float32(gain * math.Sin(step*float64(i)))
	}
	return out
}
