// internal/meter/reporter.go
package meter

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"time"
)

// DefaultInterval is the reporting period used when none is configured
const DefaultInterval = 250 * time.Millisecond

// Reporter periodically prints the meter's snapshot.
type Reporter struct {
	meter    *Meter
	interval time.Duration
	out      io.Writer
	logger   *slog.Logger

	lastDropped uint64
	lastToneOn  bool
}

// NewReporter creates a reporter. A non-positive interval selects DefaultInterval.
func NewReporter(m *Meter, interval time.Duration, out io.Writer, logger *slog.Logger) *Reporter {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Reporter{
		meter:    m,
		interval: interval,
		out:      out,
		logger:   logger,
	}
}

// Run reports once per interval until ctx is done.
func (r *Reporter) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := r.Report(); err != nil {
				return err
			}
		}
	}
}

// Report writes one line for the current snapshot.
func (r *Reporter) Report() error {
	snap := r.meter.Snapshot()

	if snap.Dropped > r.lastDropped {
		r.logger.Warn("non-finite samples dropped",
			"count", snap.Dropped-r.lastDropped,
			"total", snap.Dropped)
		r.lastDropped = snap.Dropped
	}
	if snap.ToneOn != r.lastToneOn {
		r.logger.Info("tone state changed", "tone_on", snap.ToneOn, "power", snap.Power)
		r.lastToneOn = snap.ToneOn
	}

	_, err := fmt.Fprintf(r.out, "power=%.4f peak=%.4f db=%.1f tone=%s samples=%d\n",
		snap.Power, snap.Peak, Decibels(snap.Power), onOff(snap.ToneOn), snap.Samples)
	if err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// Decibels converts a normalized power to dB with a floor of -120 dB.
func Decibels(power float32) float64 {
	if power <= 1e-12 {
		return -120
	}
	return 10 * math.Log10(float64(power))
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
