// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

const (
	AppName       = "tonemeter"
	ConfigType    = "yaml"
	DefaultConfig = `# Tone Meter Configuration

# Audio device settings
device_index: -1        # -1 for default device (use 'tonemeter devices' to list)
sample_rate: 48000      # Audio sample rate in Hz
buffer_size: 512        # Frames per audio callback

# Tone power estimation
tone_frequency: 600     # Monitored frequency in Hz
window_size: 1000       # Samples per estimator window; resolution is about sample_rate / window_size Hz

# Tone gate
threshold: 0.25         # Normalized power (0.0-1.0) above which a tone is present; a pure tone reads ~0.5
hysteresis: 64          # Consecutive samples required to confirm a state change

# Output
report_interval_ms: 250 # Time between printed power readings
debug: false            # Enable debug logging
`
)

// Settings holds all application configuration
type Settings struct {
	// Audio device settings
	DeviceIndex int     `mapstructure:"device_index"`
	SampleRate  float64 `mapstructure:"sample_rate"`
	BufferSize  int     `mapstructure:"buffer_size"`

	// Tone power estimation
	ToneFrequency float64 `mapstructure:"tone_frequency"`
	WindowSize    int     `mapstructure:"window_size"`

	// Tone gate
	Threshold  float64 `mapstructure:"threshold"`
	Hysteresis int     `mapstructure:"hysteresis"`

	// Output
	ReportIntervalMs int  `mapstructure:"report_interval_ms"`
	Debug            bool `mapstructure:"debug"`
}

// Init initializes Viper with defaults and config file.
// Config file search order: current directory, then ~/.config/tonemeter/
func Init() error {
	viper.SetDefault("device_index", -1)
	viper.SetDefault("sample_rate", 48000)
	viper.SetDefault("buffer_size", 512)
	viper.SetDefault("tone_frequency", 600)
	viper.SetDefault("window_size", 1000)
	viper.SetDefault("threshold", 0.25)
	viper.SetDefault("hysteresis", 64)
	viper.SetDefault("report_interval_ms", 250)
	viper.SetDefault("debug", false)

	viper.SetConfigType(ConfigType)

	// Priority order: current directory first, then XDG config
	viper.AddConfigPath(".")

	configDir, err := os.UserConfigDir()
	if err != nil {
		configDir = filepath.Join(os.Getenv("HOME"), ".config")
	}
	viper.AddConfigPath(filepath.Join(configDir, AppName))

	// Try .config.yaml first (hidden file), then config.yaml
	viper.SetConfigName(".config")
	if err = viper.ReadInConfig(); err != nil {
		viper.SetConfigName("config")
		err = viper.ReadInConfig()
	}

	if err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return fmt.Errorf("read config: %w", err)
		}
		// No config found - create default in ~/.config/tonemeter/
		if err = ensureConfigExists(filepath.Join(configDir, AppName)); err != nil {
			return err
		}
		if err = viper.ReadInConfig(); err != nil {
			return fmt.Errorf("read config: %w", err)
		}
	}

	return nil
}

func ensureConfigExists(configPath string) error {
	configFile := filepath.Join(configPath, "config.yaml")

	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		if err = os.MkdirAll(configPath, 0755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
		if err = os.WriteFile(configFile, []byte(DefaultConfig), 0644); err != nil {
			return fmt.Errorf("write default config: %w", err)
		}
	}
	return nil
}

// Get returns the current settings
func Get() (*Settings, error) {
	var s Settings
	if err := viper.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &s, nil
}

// ReportInterval returns report_interval_ms as a duration
func (s *Settings) ReportInterval() time.Duration {
	return time.Duration(s.ReportIntervalMs) * time.Millisecond
}

// Validate checks that all settings are within acceptable ranges
func (s *Settings) Validate() error {
	var errs []error

	// Audio device settings
	if s.DeviceIndex < -1 {
		errs = append(errs, fmt.Errorf("device_index must be -1 or a device index, got %d", s.DeviceIndex))
	}
	if s.SampleRate < 8000 || s.SampleRate > 192000 {
		errs = append(errs, fmt.Errorf("sample_rate must be between 8000 and 192000 Hz, got %v", s.SampleRate))
	}
	if s.BufferSize < 64 || s.BufferSize > 8192 {
		errs = append(errs, fmt.Errorf("buffer_size must be between 64 and 8192, got %d", s.BufferSize))
	}
	if s.BufferSize&(s.BufferSize-1) != 0 {
		errs = append(errs, fmt.Errorf("buffer_size should be a power of 2, got %d", s.BufferSize))
	}

	// Tone power estimation
	if s.ToneFrequency < 20 || s.ToneFrequency > 20000 {
		errs = append(errs, fmt.Errorf("tone_frequency must be between 20 and 20000 Hz, got %v", s.ToneFrequency))
	}
	if s.WindowSize < 32 || s.WindowSize > 65536 {
		errs = append(errs, fmt.Errorf("window_size must be between 32 and 65536, got %d", s.WindowSize))
	}

	// Tone gate
	if s.Threshold < 0.0 || s.Threshold > 1.0 {
		errs = append(errs, fmt.Errorf("threshold must be between 0.0 and 1.0, got %v", s.Threshold))
	}
	if s.Hysteresis < 1 || s.Hysteresis > 48000 {
		errs = append(errs, fmt.Errorf("hysteresis must be between 1 and 48000, got %d", s.Hysteresis))
	}

	// Output
	if s.ReportIntervalMs < 10 || s.ReportIntervalMs > 10000 {
		errs = append(errs, fmt.Errorf("report_interval_ms must be between 10 and 10000, got %d", s.ReportIntervalMs))
	}

	// Nyquist check: tone frequency must be less than half the sample rate
	if s.ToneFrequency >= s.SampleRate/2 {
		errs = append(errs, fmt.Errorf("tone_frequency (%v Hz) must be less than Nyquist frequency (%v Hz)", s.ToneFrequency, s.SampleRate/2))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
