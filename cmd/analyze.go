// cmd/analyze.go
package cmd

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/ColonelBlimp/tonemeter/internal/analysis"
	"github.com/ColonelBlimp/tonemeter/internal/audio"
	"github.com/ColonelBlimp/tonemeter/internal/config"
	"github.com/ColonelBlimp/tonemeter/internal/dsp"
	"github.com/ColonelBlimp/tonemeter/internal/recovery"
	"github.com/spf13/cobra"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <file.wav>",
	Short: "Run the tone power estimator over a mono WAV file",
	Long: `Streams a mono WAV file through the estimator at the file's own sample
rate and prints power statistics, the dominant frequency and the tone
segments found by the gate.`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().IntP("chunk", "c", audio.DefaultChunkSize, "samples per processing chunk")
}

// fileReport is the result of analyzing one file
type fileReport struct {
	Path            string
	SampleRate      float64
	Samples         int
	Dropped         int
	TargetFrequency float64
	WindowSize      int
	Dominant        float64
	Power           analysis.Summary
	Events          []dsp.ToneEvent
	ToneOnAtEnd     bool
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	settings, logger, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	chunk, err := cmd.Flags().GetInt("chunk")
	if err != nil {
		return err
	}

	report, err := analyzeFile(args[0], settings, chunk, logger)
	if err != nil {
		return err
	}
	return printReport(cmd.OutOrStdout(), report)
}

func analyzeFile(path string, settings *config.Settings, chunk int, logger *slog.Logger) (*fileReport, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	src, err := audio.OpenWAV(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	rate := src.SampleRate()
	if rate != settings.SampleRate {
		logger.Debug("using file sample rate", "file", rate, "configured", settings.SampleRate)
	}

	est, err := dsp.NewEstimator(dsp.EstimatorConfig{
		TargetFrequency: settings.ToneFrequency,
		SampleRate:      rate,
		WindowSize:      settings.WindowSize,
	})
	if err != nil {
		return nil, fmt.Errorf("create estimator: %w", err)
	}
	gate, err := dsp.NewGate(dsp.GateConfig{
		Threshold:  settings.Threshold,
		Hysteresis: settings.Hysteresis,
	}, rate)
	if err != nil {
		return nil, fmt.Errorf("create gate: %w", err)
	}

	report := &fileReport{
		Path:            path,
		SampleRate:      rate,
		TargetFrequency: settings.ToneFrequency,
		WindowSize:      est.WindowSize(),
	}
	gate.SetCallback(func(ev dsp.ToneEvent) {
		logger.Debug("tone event", "on", ev.ToneOn, "onset", ev.Onset, "confirmed", ev.SampleIndex, "duration", ev.Duration)
		report.Events = append(report.Events, ev)
	})

	signal := make([]float32, 0, src.Len())
	powers := make([]float32, 0, src.Len())

	err = recovery.Guard(func() error {
		return src.Stream(func(samples []float32) {
			for _, s := range samples {
				p, err := est.Process(s)
				if err != nil {
					report.Dropped++
					continue
				}
				signal = append(signal, s)
				powers = append(powers, p)
				gate.Update(p)
			}
		}, chunk)
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if len(powers) == 0 {
		return nil, fmt.Errorf("%s: %w", path, analysis.ErrEmptyInput)
	}

	report.Samples = len(powers)
	report.ToneOnAtEnd = gate.ToneOn()

	// The first window is warm-up; summarize the settled part when there is one.
	settled := powers
	if len(powers) > report.WindowSize {
		settled = powers[report.WindowSize:]
	}
	if report.Power, err = analysis.Summarize(settled); err != nil {
		return nil, err
	}
	if report.Dominant, err = analysis.DominantFrequency(signal, rate); err != nil {
		return nil, err
	}
	return report, nil
}

func printReport(w io.Writer, r *fileReport) error {
	ew := &errWriter{w: w}
	ew.printf("file:          %s\n", r.Path)
	ew.printf("sample rate:   %.0f Hz\n", r.SampleRate)
	ew.printf("samples:       %d (%d non-finite dropped)\n", r.Samples, r.Dropped)
	ew.printf("target:        %.1f Hz (window %d)\n", r.TargetFrequency, r.WindowSize)
	ew.printf("dominant:      %.1f Hz\n", r.Dominant)
	ew.printf("power:         mean=%.4f stddev=%.4f min=%.4f max=%.4f\n",
		r.Power.Mean, r.Power.StdDev, r.Power.Min, r.Power.Max)

	var segments int
	for _, ev := range r.Events {
		if ev.ToneOn {
			segments++
		}
	}
	ew.printf("tone segments: %d\n", segments)

	for i, ev := range r.Events {
		if !ev.ToneOn {
			continue
		}
		start := sampleTime(ev.Onset-1, r.SampleRate)
		if i+1 < len(r.Events) {
			ew.printf("  %8.3fs  on for %v\n", start.Seconds(), r.Events[i+1].Duration)
		} else {
			ew.printf("  %8.3fs  on until end\n", start.Seconds())
		}
	}
	return ew.err
}

// sampleTime converts a 0-based sample index to stream time
func sampleTime(index uint64, rate float64) time.Duration {
	return time.Duration(float64(index) / rate * float64(time.Second))
}

// errWriter keeps the first write error
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) printf(format string, args ...any) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.w, format, args...)
}
