// cmd/monitor.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ColonelBlimp/tonemeter/internal/audio"
	"github.com/ColonelBlimp/tonemeter/internal/dsp"
	"github.com/ColonelBlimp/tonemeter/internal/meter"
	"github.com/ColonelBlimp/tonemeter/internal/recovery"
	"github.com/sourcegraph/conc/pool"
	"github.com/spf13/cobra"
)

var errCaptureStopped = errors.New("audio capture stopped unexpectedly")

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Print live tone power from an audio input device",
	Long: `Captures mono audio from the selected input device and prints the
normalized tone power at a fixed interval until interrupted.`,
	Args: cobra.NoArgs,
	RunE: runMonitor,
}

func runMonitor(cmd *cobra.Command, _ []string) error {
	settings, logger, err := loadSettings(cmd)
	if err != nil {
		return err
	}

	est, err := dsp.NewEstimator(dsp.EstimatorConfig{
		TargetFrequency: settings.ToneFrequency,
		SampleRate:      settings.SampleRate,
		WindowSize:      settings.WindowSize,
	})
	if err != nil {
		return fmt.Errorf("create estimator: %w", err)
	}
	gate, err := dsp.NewGate(dsp.GateConfig{
		Threshold:  settings.Threshold,
		Hysteresis: settings.Hysteresis,
	}, settings.SampleRate)
	if err != nil {
		return fmt.Errorf("create gate: %w", err)
	}
	m, err := meter.New(est, gate)
	if err != nil {
		return err
	}

	capture := audio.New(audio.Config{
		DeviceIndex: settings.DeviceIndex,
		SampleRate:  uint32(settings.SampleRate),
		BufferSize:  uint32(settings.BufferSize),
	})
	if err := capture.Init(); err != nil {
		return fmt.Errorf("audio init: %w", err)
	}
	defer func() {
		if err := capture.Close(); err != nil {
			logger.Warn("audio close failed", "error", err)
		}
	}()
	// A panic here or re-raised by the pool exits the process; release the device first.
	defer recovery.HandlePanicFunc(closeOnPanic(capture))
	capture.SetCallback(m.Process)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := capture.Start(ctx); err != nil {
		return fmt.Errorf("audio start: %w", err)
	}
	logger.Info("monitoring",
		"frequency", settings.ToneFrequency,
		"sample_rate", settings.SampleRate,
		"window", est.WindowSize(),
		"device", settings.DeviceIndex)

	reporter := meter.NewReporter(m, settings.ReportInterval(), cmd.OutOrStdout(), logger)

	p := pool.New().WithContext(ctx).WithCancelOnError()
	p.Go(reporter.Run)
	p.Go(func(ctx context.Context) error {
		return watchCapture(ctx, capture, settings.ReportInterval())
	})
	err = p.Wait()

	snap := m.Snapshot()
	logger.Info("stopped", "samples", snap.Samples, "dropped", snap.Dropped)
	return err
}

// watchCapture fails if capture stops while ctx is still live.
func watchCapture(ctx context.Context, capture interface{ IsRunning() bool }, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if !capture.IsRunning() && ctx.Err() == nil {
				return errCaptureStopped
			}
		}
	}
}

// closeOnPanic returns a cleanup hook that releases c.
func closeOnPanic(c io.Closer) func() {
	return func() { _ = c.Close() }
}
