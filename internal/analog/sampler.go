package analog

import (
	"fmt"
	"log/slog"
)

// Gain selects the converter's programmable amplifier setting.
type Gain int

const (
	GainTwoThirds Gain = iota
	GainOne
	GainTwo
	GainFour
	GainEight
	GainSixteen
)

// fullScale is the input range in volts for each gain.
var fullScale = map[Gain]float64{
	GainTwoThirds: 6.144,
	GainOne:       4.096,
	GainTwo:       2.048,
	GainFour:      1.024,
	GainEight:     0.512,
	GainSixteen:   0.256,
}

func (g Gain) String() string {
	switch g {
	case GainTwoThirds:
		return "2/3"
	case GainOne:
		return "1"
	case GainTwo:
		return "2"
	case GainFour:
		return "4"
	case GainEight:
		return "8"
	case GainSixteen:
		return "16"
	}
	return fmt.Sprintf("Gain(%d)", int(g))
}

// FullScale returns the input range of g in volts.
func (g Gain) FullScale() (float64, bool) {
	fs, ok := fullScale[g]
	return fs, ok
}

// maxCode is the largest positive 12-bit conversion result.
const maxCode = 0x7FF

// Translate converts a raw conversion result to volts.
func Translate(raw int, g Gain) float64 {
	return float64(raw) / maxCode * fullScale[g]
}

// Input selects what the converter measures.
type Input struct {
	Channel      int
	Differential bool
}

// Channel is a single-ended input against ground.
func Channel(ch int) Input { return Input{Channel: ch} }

// Differential01 is the AIN0 - AIN1 pair.
var Differential01 = Input{Differential: true}

// Converter performs one analog-to-digital conversion.
type Converter interface {
	Convert(in Input, g Gain) (int, error)
}

// Samples is how many conversions are averaged per reading.
const Samples = 10

// Reading is an averaged measurement.
type Reading struct {
	Raw   float64
	Volts float64
}

// Sampler averages conversions from a Converter.
type Sampler struct {
	conv Converter
	log  *slog.Logger
}

func NewSampler(conv Converter) *Sampler {
	return &Sampler{conv: conv, log: slog.Default()}
}

// SetLogger replaces the logger used for reading traces.
func (s *Sampler) SetLogger(l *slog.Logger) {
	if l != nil {
		s.log = l
	}
}

// Read averages Samples single-ended conversions on channel.
func (s *Sampler) Read(channel int, g Gain) (Reading, error) {
	if channel < 0 || channel > 3 {
		return Reading{}, fmt.Errorf("adc channel %d out of range", channel)
	}
	r, err := s.average(Channel(channel), g)
	if err != nil {
		return Reading{}, err
	}
	s.log.Debug("adc read", "channel", channel, "raw", r.Raw, "gain", g.String(), "volts", r.Volts)
	return r, nil
}

// ReadDifferential averages Samples conversions across the 0-1 pair.
func (s *Sampler) ReadDifferential(g Gain) (Reading, error) {
	r, err := s.average(Differential01, g)
	if err != nil {
		return Reading{}, err
	}
	s.log.Debug("adc read differential", "raw", r.Raw, "gain", g.String(), "volts", r.Volts)
	return r, nil
}

func (s *Sampler) average(in Input, g Gain) (Reading, error) {
	if _, ok := fullScale[g]; !ok {
		return Reading{}, fmt.Errorf("unsupported gain %v", g)
	}
	var raw, volts float64
	for i := 0; i < Samples; i++ {
		v, err := s.conv.Convert(in, g)
		if err != nil {
			return Reading{}, fmt.Errorf("adc conversion: %w", err)
		}
		raw += float64(v)
		volts += Translate(v, g)
	}
	return Reading{Raw: raw / Samples, Volts: volts / Samples}, nil
}

// ConverterFunc adapts a function to Converter.
type ConverterFunc func(in Input, g Gain) (int, error)

func (f ConverterFunc) Convert(in Input, g Gain) (int, error) { return f(in, g) }

// RawFor returns the conversion result closest to volts at gain g.
func RawFor(volts float64, g Gain) int {
	fs := fullScale[g]
	if fs == 0 {
		return 0
	}
	raw := volts / fs * maxCode
	if raw < 0 {
		return int(raw - 0.5)
	}
	return int(raw + 0.5)
}
