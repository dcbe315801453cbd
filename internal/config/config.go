// Package config handles configuration management using Viper
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	// Device configuration
	Device DeviceConfig `mapstructure:"device"`

	// Video pipeline configuration
	Video VideoConfig `mapstructure:"video"`

	// Input forwarding configuration
	Input InputConfig `mapstructure:"input"`

	// Logging configuration
	Logging LoggingConfig `mapstructure:"logging"`
}

// DeviceConfig contains the KVM adapter device settings
type DeviceConfig struct {
	VideoPath     string `mapstructure:"video_path"`     // V4L2 capture node, empty = auto-detect
	SerialPath    string `mapstructure:"serial_path"`    // HID chip serial node, empty = auto-detect
	PreferredBaud int    `mapstructure:"preferred_baud"` // Baud rate tried first during negotiation
}

// VideoConfig contains capture and display settings
type VideoConfig struct {
	Width       int `mapstructure:"width"`
	Height      int `mapstructure:"height"`
	FrameRate   int `mapstructure:"frame_rate"`
	BufferCount int `mapstructure:"buffer_count"` // Capture ring size, minimum 3
}

// InputConfig contains input forwarding settings
type InputConfig struct {
	PollIntervalMs int `mapstructure:"poll_interval_ms"` // Pointer poll rate for the input role
	ResizeBorder   int `mapstructure:"resize_border"`    // Edge-resize trigger distance in pixels
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	LogLevel string `mapstructure:"log_level"` // Overrides LOG_LEVEL env var
}

var (
	// DefaultConfig provides sensible defaults
	DefaultConfig = Config{
		Device: DeviceConfig{
			VideoPath:     "",
			SerialPath:    "",
			PreferredBaud: 115200,
		},
		Video: VideoConfig{
			Width:       1920,
			Height:      1080,
			FrameRate:   30,
			BufferCount: 4,
		},
		Input: InputConfig{
			PollIntervalMs: 5,
			ResizeBorder:   10,
		},
		Logging: LoggingConfig{
			LogLevel: "",
		},
	}

	// Global config instance
	cfg *Config

	// Override config path if set
	configPathOverride string
)

// SetConfigPath allows overriding the config path
func SetConfigPath(path string) {
	configPathOverride = path
}

// Init initializes the configuration system
func Init() error {
	viper.SetConfigName("waykvm")
	viper.SetConfigType("toml")

	if configPathOverride != "" {
		viper.SetConfigFile(configPathOverride)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "waykvm"))
		}
		viper.AddConfigPath(".")
	}

	// Set defaults - need to set individual fields for proper merging
	viper.SetDefault("device.video_path", DefaultConfig.Device.VideoPath)
	viper.SetDefault("device.serial_path", DefaultConfig.Device.SerialPath)
	viper.SetDefault("device.preferred_baud", DefaultConfig.Device.PreferredBaud)

	viper.SetDefault("video.width", DefaultConfig.Video.Width)
	viper.SetDefault("video.height", DefaultConfig.Video.Height)
	viper.SetDefault("video.frame_rate", DefaultConfig.Video.FrameRate)
	viper.SetDefault("video.buffer_count", DefaultConfig.Video.BufferCount)

	viper.SetDefault("input.poll_interval_ms", DefaultConfig.Input.PollIntervalMs)
	viper.SetDefault("input.resize_border", DefaultConfig.Input.ResizeBorder)

	viper.SetDefault("logging.log_level", DefaultConfig.Logging.LogLevel)

	// Read config file if it exists
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found, use defaults
	}

	cfg = &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return fmt.Errorf("unable to unmarshal config: %w", err)
	}

	return nil
}

// Get returns the current configuration
func Get() *Config {
	if cfg == nil {
		// Return defaults if not initialized
		return &DefaultConfig
	}
	return cfg
}

// Set sets the current configuration (for testing)
func Set(c *Config) {
	cfg = c
}

// Save saves the current configuration to file
func Save() error {
	configPath := GetConfigPath()

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := viper.WriteConfigAs(configPath); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// GetConfigPath returns the path to the config file
func GetConfigPath() string {
	if configPathOverride != "" {
		return configPathOverride
	}

	if viper.ConfigFileUsed() != "" {
		return viper.ConfigFileUsed()
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "waykvm.toml"
	}

	return filepath.Join(home, ".config", "waykvm", "waykvm.toml")
}
