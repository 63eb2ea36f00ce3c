// internal/dsp/gate.go
package dsp

import (
	"errors"
	"math"
	"sync/atomic"
	"time"
)

var (
	// ErrInvalidThreshold indicates threshold must be between 0 and 1
	ErrInvalidThreshold = errors.New("threshold must be between 0.0 and 1.0")
	// ErrInvalidHysteresis indicates hysteresis must be at least one sample
	ErrInvalidHysteresis = errors.New("hysteresis must be at least 1 sample")
)

// ToneEvent represents a tone state change event.
// Duration is the length of the state that just ended, measured in samples
// from its onset to the new state's onset and converted with the stream's
// sample rate.
type ToneEvent struct {
	// ToneOn is true when tone starts, false when tone ends
	ToneOn bool
	// SampleIndex is the 1-based index of the sample that confirmed the change
	SampleIndex uint64
	// Onset is the 1-based index of the first sample of the new state,
	// Hysteresis-1 samples before SampleIndex
	Onset uint64
	// Duration is the length of the preceding state
	Duration time.Duration
	// Power is the estimate that confirmed the change
	Power float32
}

// ToneCallback is called when tone state changes.
// Must be non-blocking and fast - called from the audio processing path.
type ToneCallback func(event ToneEvent)

// GateConfig holds configuration for the tone gate.
type GateConfig struct {
	// Threshold on normalized power (0.0-1.0) (from config: threshold)
	Threshold float64
	// Hysteresis is consecutive samples required to confirm a state change (from config: hysteresis)
	Hysteresis int
}

// Gate turns a per-sample power stream into debounced tone on/off events.
type Gate struct {
	config     GateConfig
	sampleRate float64

	toneState       bool
	pendingState    bool
	hysteresisCount int

	samples   uint64
	runStart  uint64 // 0-based index where the pending run began
	lastOnset uint64 // 0-based index where the current state began

	callbackPtr atomic.Pointer[ToneCallback]
}

// NewGate creates a gate for a stream running at sampleRate.
func NewGate(cfg GateConfig, sampleRate float64) (*Gate, error) {
	if cfg.Threshold < 0 || cfg.Threshold > 1 || math.IsNaN(cfg.Threshold) {
		return nil, ErrInvalidThreshold
	}
	if cfg.Hysteresis < 1 {
		return nil, ErrInvalidHysteresis
	}
	if sampleRate <= 0 || math.IsNaN(sampleRate) || math.IsInf(sampleRate, 0) {
		return nil, ErrInvalidSampleRate
	}
	return &Gate{config: cfg, sampleRate: sampleRate}, nil
}

// SetCallback sets the callback for tone events.
func (g *Gate) SetCallback(cb ToneCallback) {
	if cb == nil {
		g.callbackPtr.Store(nil)
	} else {
		g.callbackPtr.Store(&cb)
	}
}

// Update feeds one power estimate. It reports the event and true when the
// sample confirms a state change.
func (g *Gate) Update(power float32) (ToneEvent, bool) {
	g.samples++
	present := float64(power) > g.config.Threshold

	if present == g.toneState {
		g.pendingState = g.toneState
		g.hysteresisCount = 0
		return ToneEvent{}, false
	}

	if present == g.pendingState {
		g.hysteresisCount++
	} else {
		g.pendingState = present
		g.hysteresisCount = 1
		g.runStart = g.samples - 1
	}

	if g.hysteresisCount < g.config.Hysteresis {
		return ToneEvent{}, false
	}

	event := ToneEvent{
		ToneOn:      g.pendingState,
		SampleIndex: g.samples,
		Onset:       g.runStart + 1,
		Duration:    g.samplesToDuration(g.runStart - g.lastOnset),
		Power:       power,
	}
	g.toneState = g.pendingState
	g.lastOnset = g.runStart
	g.hysteresisCount = 0

	if cbPtr := g.callbackPtr.Load(); cbPtr != nil {
		(*cbPtr)(event)
	}
	return event, true
}

func (g *Gate) samplesToDuration(n uint64) time.Duration {
	return time.Duration(math.Round(float64(n) * float64(time.Second) / g.sampleRate))
}

// ToneOn returns the current confirmed tone state
func (g *Gate) ToneOn() bool {
	return g.toneState
}

// Reset clears the gate state; the callback is kept.
func (g *Gate) Reset() {
	g.toneState = false
	g.pendingState = false
	g.hysteresisCount = 0
	g.samples = 0
	g.runStart = 0
	g.lastOnset = 0
}

// Config returns the current configuration
func (g *Gate) Config() GateConfig {
	return g.config
}
