// cmd/root.go
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/ColonelBlimp/tonemeter/internal/config"
	"github.com/ColonelBlimp/tonemeter/internal/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "tonemeter",
	Short: "Streaming tone power meter",
	Long: `A tone power meter that tracks how strongly a single target frequency is
present in an audio stream, one estimate per sample.`,
	SilenceUsage: true,
}

// flagKeys maps config keys to the persistent flags that override them
var flagKeys = map[string]string{
	"device_index":   "device",
	"tone_frequency": "frequency",
	"sample_rate":    "sample-rate",
	"window_size":    "window",
	"debug":          "debug",
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Assigned here rather than in the literal to avoid an initialization
	// cycle (initConfig refers to rootCmd).
	rootCmd.PersistentPreRunE = func(*cobra.Command, []string) error { return initConfig() }

	// Global flags (override config file)
	rootCmd.PersistentFlags().IntP("device", "d", -1, "audio device index (-1 for default)")
	rootCmd.PersistentFlags().Float64P("frequency", "f", 600, "target tone frequency in Hz")
	rootCmd.PersistentFlags().Float64P("sample-rate", "r", 48000, "capture sample rate in Hz")
	rootCmd.PersistentFlags().IntP("window", "w", 1000, "estimator window size in samples")
	rootCmd.PersistentFlags().BoolP("debug", "D", false, "enable debug output")

	rootCmd.AddCommand(monitorCmd, analyzeCmd, devicesCmd)
}

// initConfig loads the config file and binds the persistent flags to it.
// Binding happens per run so a viper reset does not lose the flags.
func initConfig() error {
	if err := config.Init(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	for key, name := range flagKeys {
		if err := viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(name)); err != nil {
			return fmt.Errorf("config: bind --%s: %w", name, err)
		}
	}
	return nil
}

// loadSettings returns the validated settings and a logger writing to the
// command's stderr.
func loadSettings(cmd *cobra.Command) (*config.Settings, *slog.Logger, error) {
	settings, err := config.Get()
	if err != nil {
		return nil, nil, err
	}
	logger := logging.New(cmd.ErrOrStderr(), settings.Debug)
	logger.Debug("settings loaded",
		"config_file", viper.ConfigFileUsed(),
		"tone_frequency", settings.ToneFrequency,
		"sample_rate", settings.SampleRate,
		"window_size", settings.WindowSize)
	return settings, logger, nil
}
