// Copyright (c) 2025-2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config defines the global configuration structure
type Config struct {
	Plugin    PluginConfig    `mapstructure:"plugin"`
	Loop      LoopConfig      `mapstructure:"loop"`
	HotReload HotReloadConfig `mapstructure:"hot_reload"`
	GPIO      GPIOConfig      `mapstructure:"gpio"`
	Encoder   EncoderConfig   `mapstructure:"encoder"`
	Buttons   ButtonsConfig   `mapstructure:"buttons"`
	Display   DisplayConfig   `mapstructure:"display"`
	Log       LogConfig       `mapstructure:"log"`
}

// LogConfig defines logging configuration
type LogConfig struct {
	Level string `mapstructure:"level"` // debug, info, warn, error
	File  string `mapstructure:"file"`  // Log file path
}

// PluginConfig locates the application module to host.
type PluginConfig struct {
	Path             string `mapstructure:"path"`
	WASI             bool   `mapstructure:"wasi"`               // Link wasi_snapshot_preview1 for the plugin
	MemoryLimitPages uint32 `mapstructure:"memory_limit_pages"` // 64 KiB pages, 0 means the runtime default
}

// LoopConfig controls frame pacing of the main loop.
type LoopConfig struct {
	FPSLimit    int           `mapstructure:"fps_limit"`
	Pacing      bool          `mapstructure:"pacing"`
	JoinTimeout time.Duration `mapstructure:"join_timeout"` // 0 waits forever
}

// HotReloadConfig defines the plugin file watch.
type HotReloadConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Dir     string        `mapstructure:"dir"`     // Defaults to the plugin's directory
	Backend string        `mapstructure:"backend"` // "auto", "inotify", "fsnotify"
	Settle  time.Duration `mapstructure:"settle"`  // fsnotify only
}

// GPIOConfig selects the pin bank.
type GPIOConfig struct {
	Type   string `mapstructure:"type"`   // "bcm2835", "sim"
	Device string `mapstructure:"device"` // e.g. "/dev/gpiomem"
}

// EncoderConfig defines the rotary encoder channels.
type EncoderConfig struct {
	PinA           int           `mapstructure:"pin_a"`
	PinB           int           `mapstructure:"pin_b"`
	SampleInterval time.Duration `mapstructure:"sample_interval"`
}

// ButtonsConfig defines push buttons. A negative pin disables the button.
type ButtonsConfig struct {
	ActiveLow bool `mapstructure:"active_low"`
	Rotary    int  `mapstructure:"rotary"`
	Shutter   int  `mapstructure:"shutter"`
	Power     int  `mapstructure:"power"`
}

// DisplayConfig selects the display backend.
type DisplayConfig struct {
	Type   string       `mapstructure:"type"` // "none", "fbdev", "panel", "terminal"
	Width  int          `mapstructure:"width"`
	Height int          `mapstructure:"height"`
	Fbdev  FbdevConfig  `mapstructure:"fbdev"`
	Panel  SerialConfig `mapstructure:"panel"`
}

// FbdevConfig defines a Linux framebuffer device.
type FbdevConfig struct {
	Device string `mapstructure:"device"`
}

// SerialConfig defines serial port settings of a panel bridge
type SerialConfig struct {
	Device   string        `mapstructure:"device"`
	BaudRate int           `mapstructure:"baud_rate"`
	DataBits int           `mapstructure:"data_bits"`
	Parity   string        `mapstructure:"parity"`
	StopBits int           `mapstructure:"stop_bits"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// Flags registers the command line flags understood by LoadConfig.
func Flags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("stak", pflag.ContinueOnError)
	fs.StringP("config", "c", "", "Configuration file path.")
	fs.StringP("plugin", "p", "", "Plugin module path.")
	fs.StringP("log-level", "v", "", "Log verbosity level (debug, info, warn, error).")
	fs.StringP("log-file", "L", "", "Log file name ('-' for logging to STDOUT only).")
	fs.IntP("fps", "f", 0, "Frame rate cap.")
	fs.StringP("display", "d", "", "Display backend (none, fbdev, panel, terminal).")
	fs.Bool("no-pacing", false, "Disable frame pacing.")
	fs.Bool("no-hot-reload", false, "Disable plugin hot reload.")
	return fs
}

// LoadConfig loads configuration from file, environment and parsed flags.
// fs may be nil.
func LoadConfig(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("stak")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	configFile := ""
	if fs != nil {
		configFile, _ = fs.GetString("config")
		if err := bindFlags(v, fs); err != nil {
			return nil, fmt.Errorf("failed to bind flags: %w", err)
		}
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/stak/")
		v.AddConfigPath("$HOME/.stak")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		// Every key has a default, so running without a file is fine.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || configFile != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := fixup(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("plugin.path", "./build/app.wasm")
	v.SetDefault("plugin.wasi", true)
	v.SetDefault("plugin.memory_limit_pages", 0)
	v.SetDefault("loop.fps_limit", 60)
	v.SetDefault("loop.pacing", true)
	v.SetDefault("loop.join_timeout", 2*time.Second)
	v.SetDefault("hot_reload.enabled", true)
	v.SetDefault("hot_reload.dir", "")
	v.SetDefault("hot_reload.backend", "auto")
	v.SetDefault("hot_reload.settle", 100*time.Millisecond)
	v.SetDefault("gpio.type", "bcm2835")
	v.SetDefault("gpio.device", "/dev/gpiomem")
	v.SetDefault("encoder.pin_a", 15)
	v.SetDefault("encoder.pin_b", 14)
	v.SetDefault("encoder.sample_interval", 250*time.Microsecond)
	v.SetDefault("buttons.active_low", true)
	v.SetDefault("buttons.rotary", 17)
	v.SetDefault("buttons.shutter", -1)
	v.SetDefault("buttons.power", -1)
	v.SetDefault("display.type", "none")
	v.SetDefault("display.width", 96)
	v.SetDefault("display.height", 96)
	v.SetDefault("display.fbdev.device", "/dev/fb1")
	v.SetDefault("display.panel.device", "/dev/ttyAMA0")
	v.SetDefault("display.panel.baud_rate", 921600)
	v.SetDefault("display.panel.data_bits", 8)
	v.SetDefault("display.panel.parity", "N")
	v.SetDefault("display.panel.stop_bits", 1)
	v.SetDefault("display.panel.timeout", 500*time.Millisecond)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
}

// bindFlags maps flags onto config keys. Only flags set on the command
// line override the file, and the first positional argument is the plugin.
func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	keys := map[string]string{
		"plugin":    "plugin.path",
		"log-level": "log.level",
		"log-file":  "log.file",
		"fps":       "loop.fps_limit",
		"display":   "display.type",
	}
	for name, key := range keys {
		f := fs.Lookup(name)
		if f == nil || !f.Changed {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return err
		}
	}
	if f := fs.Lookup("no-pacing"); f != nil && f.Changed {
		v.Set("loop.pacing", false)
	}
	if f := fs.Lookup("no-hot-reload"); f != nil && f.Changed {
		v.Set("hot_reload.enabled", false)
	}
	if fs.NArg() > 0 {
		v.Set("plugin.path", fs.Arg(0))
	}
	return nil
}

func fixup(c *Config) error {
	if c.Display.Width <= 0 || c.Display.Height <= 0 {
		return fmt.Errorf("invalid display size %dx%d", c.Display.Width, c.Display.Height)
	}
	if c.Loop.FPSLimit <= 0 {
		c.Loop.FPSLimit = 60
	}
	if c.HotReload.Dir == "" {
		c.HotReload.Dir = filepath.Dir(c.Plugin.Path)
	}
	if c.Encoder.SampleInterval <= 0 {
		c.Encoder.SampleInterval = 250 * time.Microsecond
	}
	c.HotReload.Backend = strings.ToLower(c.HotReload.Backend)
	c.Display.Type = strings.ToLower(c.Display.Type)
	fixupSerial(&c.Display.Panel)
	return nil
}

func fixupSerial(s *SerialConfig) {
	s.Parity = strings.ToUpper(s.Parity)
	if s.Timeout == 0 {
		s.Timeout = 500 * time.Millisecond
	}
}

// FrameBudget returns the target duration of one tick.
func (c LoopConfig) FrameBudget() time.Duration {
	if c.FPSLimit <= 0 {
		return time.Second / 60
	}
	return time.Second / time.Duration(c.FPSLimit)
}
