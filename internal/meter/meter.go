// internal/meter/meter.go
// Package meter drives a tone power estimator from buffered audio and
// publishes its results to readers on other goroutines.
package meter

import (
	"errors"
	"math"
	"sync/atomic"

	"github.com/ColonelBlimp/tonemeter/internal/dsp"
)

// ErrEstimatorRequired indicates an estimator instance is required
var ErrEstimatorRequired = errors.New("estimator instance is required")

// Snapshot is a point-in-time view of the meter.
type Snapshot struct {
	// Power is the most recent estimate
	Power float32
	// Peak is the largest estimate since the previous snapshot
	Peak float32
	// Samples is the number of samples accepted so far
	Samples uint64
	// Dropped is the number of non-finite samples rejected so far
	Dropped uint64
	// ToneOn is the gate state, false when no gate is attached
	ToneOn bool
}

// Meter owns an estimator and an optional gate. Process must only be
// called from one goroutine (normally the audio callback); Snapshot may be
// called from any goroutine.
type Meter struct {
	est  *dsp.Estimator
	gate *dsp.Gate

	power   atomic.Uint32 // float32 bits
	peak    atomic.Uint32 // float32 bits
	samples atomic.Uint64
	dropped atomic.Uint64
	toneOn  atomic.Bool
}

// New creates a meter. gate may be nil.
func New(est *dsp.Estimator, gate *dsp.Gate) (*Meter, error) {
	if est == nil {
		return nil, ErrEstimatorRequired
	}
	return &Meter{est: est, gate: gate}, nil
}

// Process feeds a buffer of mono samples in order. It does not block or
// allocate, so it can run inside an audio callback. Non-finite samples are
// skipped and counted.
func (m *Meter) Process(samples []float32) {
	var (
		last     float32
		peak     float32
		accepted uint64
		dropped  uint64
	)

	for _, s := range samples {
		p, err := m.est.Process(s)
		if err != nil {
			dropped++
			continue
		}
		accepted++
		last = p
		peak = max(peak, p)
		if m.gate != nil {
			m.gate.Update(p)
		}
	}

	if dropped > 0 {
		m.dropped.Add(dropped)
	}
	if accepted == 0 {
		return
	}

	m.power.Store(math.Float32bits(last))
	m.raisePeak(peak)
	m.samples.Add(accepted)
	if m.gate != nil {
		m.toneOn.Store(m.gate.ToneOn())
	}
}

// raisePeak stores p as the peak unless a larger value is already held.
func (m *Meter) raisePeak(p float32) {
	bits := math.Float32bits(p)
	for {
		old := m.peak.Load()
		if math.Float32frombits(old) >= p {
			return
		}
		if m.peak.CompareAndSwap(old, bits) {
			return
		}
	}
}

// Snapshot returns the current state and restarts peak tracking.
func (m *Meter) Snapshot() Snapshot {
	return Snapshot{
		Power:   math.Float32frombits(m.power.Load()),
		Peak:    math.Float32frombits(m.peak.Swap(0)),
		Samples: m.samples.Load(),
		Dropped: m.dropped.Load(),
		ToneOn:  m.toneOn.Load(),
	}
}

// Estimator returns the underlying estimator
func (m *Meter) Estimator() *dsp.Estimator {
	return m.est
}
