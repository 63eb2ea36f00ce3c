// internal/analysis/analysis.go
// Package analysis summarizes recorded signals and power series offline.
package analysis

import (
	"errors"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

var (
	// ErrEmptyInput indicates there is nothing to analyze
	ErrEmptyInput = errors.New("input is empty")
	// ErrInvalidSampleRate indicates sample rate must be positive
	ErrInvalidSampleRate = errors.New("sample rate must be positive")
)

// Summary describes the distribution of a power series.
type Summary struct {
	Count  int
	Mean   float64
	StdDev float64
	Min    float64
	Max    float64
}

// Summarize computes summary statistics of values.
func Summarize(values []float32) (Summary, error) {
	if len(values) == 0 {
		return Summary{}, ErrEmptyInput
	}
	x := toFloat64(values)

	s := Summary{
		Count: len(x),
		Min:   floats.Min(x),
		Max:   floats.Max(x),
	}
	s.Mean, s.StdDev = stat.MeanStdDev(x, nil)
	if len(x) == 1 {
		// MeanStdDev divides by n-1
		s.StdDev = 0
	}
	return s, nil
}

// DominantFrequency returns the centre frequency of the strongest FFT bin
// of a Hann-windowed copy of samples, ignoring DC. Resolution is
// sampleRate / len(samples).
func DominantFrequency(samples []float32, sampleRate float64) (float64, error) {
	if sampleRate <= 0 {
		return 0, ErrInvalidSampleRate
	}
	if len(samples) < 2 {
		return 0, ErrEmptyInput
	}

	x := toFloat64(samples)
	window.Apply(x, window.Hann)
	spectrum := fft.FFTReal(x)

	half := len(spectrum)/2 + 1
	magnitudes := make([]float64, half)
	for i := 1; i < half; i++ {
		magnitudes[i] = cmplx.Abs(spectrum[i])
	}

	peak := floats.MaxIdx(magnitudes)
	return float64(peak) * sampleRate / float64(len(x)), nil
}

func toFloat64(values []float32) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = float64(v)
	}
	return out
}
