// internal/dsp/estimator.go
package dsp

import (
	"errors"
	"fmt"
	"math"
)

// DefaultWindowSize is the number of samples a window slot accumulates
// before the slot becomes eligible for reset.
const DefaultWindowSize = 1000

// epsilon keeps the normalization finite while a slot has no energy.
const epsilon = 1e-7

var (
	// ErrConfiguration groups every construction-time parameter error
	ErrConfiguration = errors.New("invalid estimator configuration")
	// ErrSignal groups every error caused by the sample stream itself
	ErrSignal = errors.New("invalid signal")

	// ErrInvalidSampleRate indicates sample rate must be positive and finite
	ErrInvalidSampleRate = fmt.Errorf("%w: sample rate must be positive", ErrConfiguration)
	// ErrInvalidFrequency indicates frequency must be positive and below Nyquist
	ErrInvalidFrequency = fmt.Errorf("%w: target frequency must be positive and less than Nyquist frequency", ErrConfiguration)
	// ErrInvalidWindowSize indicates window size must not be negative
	ErrInvalidWindowSize = fmt.Errorf("%w: window size must not be negative", ErrConfiguration)

	// ErrNonFiniteSample indicates a NaN or infinite input sample
	ErrNonFiniteSample = fmt.Errorf("%w: sample is not finite", ErrSignal)
)

// EstimatorConfig holds configuration for the tone power estimator.
type EstimatorConfig struct {
	// TargetFrequency is the monitored frequency in Hz (from config: tone_frequency)
	TargetFrequency float64
	// SampleRate is the rate of the incoming stream in Hz (from config: sample_rate)
	SampleRate float64
	// WindowSize is the slot length in samples, 0 selects DefaultWindowSize (from config: window_size)
	WindowSize int
}

// window is one resonator slot: its recursion state plus the energy and
// sample count used to normalize it.
type window struct {
	prev   float64
	prev2  float64
	energy float64
	count  int
}

func (w *window) advance(x, coeff float64) {
	s := x + coeff*w.prev - w.prev2
	w.prev2 = w.prev
	w.prev = s
	w.count++
}

func (w *window) reset() {
	*w = window{}
}

// power returns the resonator power normalized by the slot's energy and length.
func (w *window) power(coeff float64) float64 {
	raw := w.prev2*w.prev2 + w.prev*w.prev - coeff*w.prev*w.prev2
	return raw / (w.energy + epsilon) / float64(w.count)
}

// Estimator tracks the power of one frequency in a sample stream.
//
// Two resonator slots run side by side. They take turns being reported in
// blocks of WindowSize samples, and the slot not being reported is flushed
// on the first sample at which it holds WindowSize or more samples. The
// reported slot is therefore always at least one full window old once the
// stream has passed its first window, so the estimate never collapses to
// zero at a window boundary.
//
// An Estimator is not safe for concurrent use. It is owned by whichever
// goroutine delivers samples.
type Estimator struct {
	config      EstimatorConfig
	coefficient float64 // Pre-computed: 2 * cos(2π * f / fs)

	a, b  window
	total uint64
}

// New creates an estimator for targetFrequency using DefaultWindowSize.
func New(targetFrequency, sampleRate float64) (*Estimator, error) {
	return NewEstimator(EstimatorConfig{
		TargetFrequency: targetFrequency,
		SampleRate:      sampleRate,
	})
}

// NewEstimator creates a new estimator with the given configuration.
// Returns an error wrapping ErrConfiguration if the configuration is invalid.
func NewEstimator(cfg EstimatorConfig) (*Estimator, error) {
	if cfg.SampleRate <= 0 || math.IsNaN(cfg.SampleRate) || math.IsInf(cfg.SampleRate, 0) {
		return nil, ErrInvalidSampleRate
	}
	nyquist := cfg.SampleRate / 2.0
	if cfg.TargetFrequency <= 0 || cfg.TargetFrequency >= nyquist || math.IsNaN(cfg.TargetFrequency) {
		return nil, ErrInvalidFrequency
	}
	if cfg.WindowSize < 0 {
		return nil, ErrInvalidWindowSize
	}
	if cfg.WindowSize == 0 {
		cfg.WindowSize = DefaultWindowSize
	}

	return &Estimator{
		config:      cfg,
		coefficient: 2.0 * math.Cos(2.0*math.Pi*cfg.TargetFrequency/cfg.SampleRate),
	}, nil
}

// Process feeds one sample and returns the current power estimate.
// Samples must be supplied in arrival order. A non-finite sample returns
// ErrNonFiniteSample and leaves the estimator unchanged.
func (e *Estimator) Process(sample float32) (float32, error) {
	x := float64(sample)
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0, ErrNonFiniteSample
	}

	e.a.advance(x, e.coefficient)
	e.b.advance(x, e.coefficient)
	e.total++

	// The stale slot is flushed on the first sample that reaches a full window.
	if stale := e.stale(); stale.count >= e.config.WindowSize {
		stale.reset()
	}

	energy := x * x
	e.a.energy += energy
	e.b.energy += energy

	return float32(e.active().power(e.coefficient)), nil
}

// ProcessBlock feeds samples in order and writes one estimate per sample
// into out, which must be at least as long as in. It stops at the first
// non-finite sample and returns the number of samples consumed.
func (e *Estimator) ProcessBlock(in, out []float32) (int, error) {
	if len(out) < len(in) {
		return 0, fmt.Errorf("output buffer too short: have %d, need %d", len(out), len(in))
	}
	for i, x := range in {
		p, err := e.Process(x)
		if err != nil {
			return i, fmt.Errorf("sample %d: %w", i, err)
		}
		out[i] = p
	}
	return len(in), nil
}

// ActiveSlot returns 0 or 1, the slot currently being reported.
func (e *Estimator) ActiveSlot() int {
	return int((e.total / uint64(e.config.WindowSize)) & 1)
}

func (e *Estimator) active() *window {
	if e.ActiveSlot() == 0 {
		return &e.a
	}
	return &e.b
}

func (e *Estimator) stale() *window {
	if e.ActiveSlot() == 0 {
		return &e.b
	}
	return &e.a
}

// Reset returns the estimator to its freshly constructed state.
func (e *Estimator) Reset() {
	e.a.reset()
	e.b.reset()
	e.total = 0
}

// SamplesSeen returns the number of samples processed since construction or Reset
func (e *Estimator) SamplesSeen() uint64 {
	return e.total
}

// Coefficient returns the pre-computed resonator coefficient (for testing)
func (e *Estimator) Coefficient() float64 {
	return e.coefficient
}

// WindowSize returns the effective window size
func (e *Estimator) WindowSize() int {
	return e.config.WindowSize
}

// Config returns the effective configuration
func (e *Estimator) Config() EstimatorConfig {
	return e.config
}
