// Package config provides configuration management for the overlay hook.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"overlayhook/internal/hotkey"
	"overlayhook/internal/keyfilter"
	"overlayhook/internal/logging"
)

// Config represents the application configuration
type Config struct {
	// Hotkeys are polled from the target's message pump
	Hotkeys []hotkey.Hotkey `mapstructure:"hotkeys" json:"hotkeys"`

	Keyboard  KeyboardConfig  `mapstructure:"keyboard" json:"keyboard"`
	Mouse     MouseConfig     `mapstructure:"mouse" json:"mouse"`
	Intercept InterceptConfig `mapstructure:"intercept" json:"intercept"`
	Connector ConnectorConfig `mapstructure:"connector" json:"connector"`
	Logging   LoggingConfig   `mapstructure:"logging" json:"logging"`
}

// RemapConfig maps one key name to another, e.g. {"from": "Q", "to": "W"}
type RemapConfig struct {
	From    string `mapstructure:"from" json:"from"`
	To      string `mapstructure:"to" json:"to"`
	Enabled bool   `mapstructure:"enabled" json:"enabled"`
}

// KeyboardConfig holds the key filter tables and the overlay keys.
// Keys are names understood by hotkey.ParseKey ("HOME", "NUMPAD5", "0x24").
type KeyboardConfig struct {
	Remaps  []RemapConfig `mapstructure:"remaps" json:"remaps"`
	Blocked []string      `mapstructure:"blocked" json:"blocked"`
	Passed  []string      `mapstructure:"passed" json:"passed"`

	// MenuKey is pressed in the target before the overlay is shown
	MenuKey string `mapstructure:"menu_key" json:"menu_key,omitempty"`

	ShowKey string `mapstructure:"show_key" json:"show_key"`
	HideKey string `mapstructure:"hide_key" json:"hide_key"`
}

type MouseConfig struct {
	MovingSpeed         float32 `mapstructure:"moving_speed" json:"moving_speed"`
	YAxisInvert         bool    `mapstructure:"y_axis_invert" json:"y_axis_invert"`
	SwapButtons         bool    `mapstructure:"swap_buttons" json:"swap_buttons"`
	Numpad5Primary      bool    `mapstructure:"numpad5_primary" json:"numpad5_primary"`
	NumpadPlusSecondary bool    `mapstructure:"numpad_plus_secondary" json:"numpad_plus_secondary"`
}

type InterceptConfig struct {
	AutoIntercept bool `mapstructure:"auto_intercept" json:"auto_intercept"`

	// HookMode is "wndproc" (default) or "msghook"
	HookMode string `mapstructure:"hook_mode" json:"hook_mode"`

	ThreadedHotkeys bool `mapstructure:"threaded_hotkeys" json:"threaded_hotkeys"`
	WindowedIME     bool `mapstructure:"windowed_ime" json:"windowed_ime"`
}

// ConnectorConfig selects the overlay transport. Pipe wins over URL when both are set.
type ConnectorConfig struct {
	URL   string `mapstructure:"url" json:"url"`
	Pipe  string `mapstructure:"pipe" json:"pipe,omitempty"`
	Token string `mapstructure:"token" json:"token,omitempty"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" json:"level"`
	Format string `mapstructure:"format" json:"format"`
	File   string `mapstructure:"file" json:"file,omitempty"`
}

// DefaultConfig returns a new Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Hotkeys: []hotkey.Hotkey{
			{Name: "overlay.toggle", Combo: "Shift+Tab"},
		},
		Keyboard: KeyboardConfig{
			ShowKey: "HOME",
			HideKey: "END",
		},
		Mouse: MouseConfig{
			MovingSpeed: 1,
		},
		Intercept: InterceptConfig{
			HookMode: "wndproc",
		},
		Connector: ConnectorConfig{
			URL: "ws://127.0.0.1:18081/overlay",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// Validate returns every problem found, joined.
func (c *Config) Validate() error {
	var errs []error

	for i, hk := range c.Hotkeys {
		if hk.Name == "" {
			errs = append(errs, fmt.Errorf("hotkeys[%d]: name is empty", i))
		}
		if _, err := hotkey.ParseCombo(hk.Combo); err != nil {
			errs = append(errs, fmt.Errorf("hotkeys[%d] %q: %w", i, hk.Name, err))
		}
	}
	for i, r := range c.Keyboard.Remaps {
		if _, err := hotkey.ParseKey(r.From); err != nil {
			errs = append(errs, fmt.Errorf("keyboard.remaps[%d].from: %w", i, err))
		}
		if _, err := hotkey.ParseKey(r.To); err != nil {
			errs = append(errs, fmt.Errorf("keyboard.remaps[%d].to: %w", i, err))
		}
	}
	for field, keys := range map[string][]string{"blocked": c.Keyboard.Blocked, "passed": c.Keyboard.Passed} {
		for _, k := range keys {
			if _, err := hotkey.ParseKey(k); err != nil {
				errs = append(errs, fmt.Errorf("keyboard.%s: %w", field, err))
			}
		}
	}
	for field, k := range map[string]string{"menu_key": c.Keyboard.MenuKey, "show_key": c.Keyboard.ShowKey, "hide_key": c.Keyboard.HideKey} {
		if k == "" {
			continue
		}
		if _, err := hotkey.ParseKey(k); err != nil {
			errs = append(errs, fmt.Errorf("keyboard.%s: %w", field, err))
		}
	}

	if c.Mouse.MovingSpeed <= 0 || c.Mouse.MovingSpeed > 10 {
		errs = append(errs, fmt.Errorf("mouse.moving_speed %v out of range (0, 10]", c.Mouse.MovingSpeed))
	}
	switch c.Intercept.HookMode {
	case "", "wndproc", "msghook":
	default:
		errs = append(errs, fmt.Errorf("intercept.hook_mode %q: want wndproc or msghook", c.Intercept.HookMode))
	}
	if c.Connector.URL == "" && c.Connector.Pipe == "" {
		errs = append(errs, errors.New("connector: url or pipe is required"))
	}
	if c.Logging.Level != "" && !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level))
	}
	switch c.Logging.Format {
	case "", "json", "console":
	default:
		errs = append(errs, fmt.Errorf("logging.format %q: want json or console", c.Logging.Format))
	}

	return errors.Join(errs...)
}

// FilterRemaps resolves the configured remaps to virtual keys. A generic
// source name such as "SHIFT" expands to every key it covers; the target
// is the first key of its name.
func (c *Config) FilterRemaps() []keyfilter.Remap {
	var out []keyfilter.Remap
	for _, r := range c.Keyboard.Remaps {
		from, err := hotkey.ParseKey(r.From)
		if err != nil {
			continue
		}
		to, err := hotkey.ParseKey(r.To)
		if err != nil {
			continue
		}
		for _, vk := range from {
			out = append(out, keyfilter.Remap{From: vk, To: to[0], Enabled: r.Enabled})
		}
	}
	return out
}

// BlockedKeys and PassedKeys resolve the key lists, skipping bad names.
func (c *Config) BlockedKeys() []uint32 { return resolveKeys(c.Keyboard.Blocked) }
func (c *Config) PassedKeys() []uint32  { return resolveKeys(c.Keyboard.Passed) }

// KeyCode resolves a single configured key; "" and unknown names give 0.
func KeyCode(name string) uint32 {
	if name == "" {
		return 0
	}
	vks, err := hotkey.ParseKey(name)
	if err != nil {
		return 0
	}
	return vks[0]
}

func resolveKeys(names []string) []uint32 {
	var out []uint32
	for _, n := range names {
		vks, err := hotkey.ParseKey(n)
		if err != nil {
			continue
		}
		out = append(out, vks...)
	}
	return out
}

// Manager handles loading and saving configuration
type Manager struct {
	mu         sync.Mutex
	v          *viper.Viper
	configPath string
	config     *Config
	onChanged  func(*Config)
	logger     *zap.Logger
}

// NewManager creates a manager for the default per-user config file.
func NewManager() (*Manager, error) {
	configPath, err := getConfigPath()
	if err != nil {
		return nil, err
	}
	return NewManagerAt(configPath), nil
}

// NewManagerAt creates a manager for an explicit config file.
func NewManagerAt(path string) *Manager {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	v.SetEnvPrefix("OVERLAYHOOK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, DefaultConfig())

	return &Manager{
		v:          v,
		configPath: path,
		config:     DefaultConfig(),
		logger:     logging.L("config"),
	}
}

// setDefaults registers the scalar keys so AutomaticEnv can override them.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("hotkeys", d.Hotkeys)
	v.SetDefault("keyboard.menu_key", d.Keyboard.MenuKey)
	v.SetDefault("keyboard.show_key", d.Keyboard.ShowKey)
	v.SetDefault("keyboard.hide_key", d.Keyboard.HideKey)
	v.SetDefault("mouse.moving_speed", d.Mouse.MovingSpeed)
	v.SetDefault("mouse.y_axis_invert", d.Mouse.YAxisInvert)
	v.SetDefault("mouse.swap_buttons", d.Mouse.SwapButtons)
	v.SetDefault("mouse.numpad5_primary", d.Mouse.Numpad5Primary)
	v.SetDefault("mouse.numpad_plus_secondary", d.Mouse.NumpadPlusSecondary)
	v.SetDefault("intercept.auto_intercept", d.Intercept.AutoIntercept)
	v.SetDefault("intercept.hook_mode", d.Intercept.HookMode)
	v.SetDefault("intercept.threaded_hotkeys", d.Intercept.ThreadedHotkeys)
	v.SetDefault("intercept.windowed_ime", d.Intercept.WindowedIME)
	v.SetDefault("connector.url", d.Connector.URL)
	v.SetDefault("connector.pipe", d.Connector.Pipe)
	v.SetDefault("connector.token", d.Connector.Token)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.file", d.Logging.File)
}

// getConfigPath returns the path to the configuration file
func getConfigPath() (string, error) {
	var configDir string

	switch runtime.GOOS {
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			appData = filepath.Join(home, "AppData", "Roaming")
		}
		configDir = filepath.Join(appData, "overlayhook")
	default:
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		configDir = filepath.Join(home, ".config", "overlayhook")
	}

	if err := os.MkdirAll(configDir, 0755); err != nil {
		return "", err
	}
	return filepath.Join(configDir, "config.json"), nil
}

// Path returns the config file location.
func (m *Manager) Path() string { return m.configPath }

// Load reads the configuration from disk. A missing file keeps the defaults.
func (m *Manager) Load() error {
	m.mu.Lock()
	cfg, err := m.read()
	if err != nil {
		m.mu.Unlock()
		return err
	}
	m.config = cfg
	fn := m.onChanged
	m.mu.Unlock()

	if fn != nil {
		fn(cfg)
	}
	return nil
}

func (m *Manager) read() (*Config, error) {
	if err := m.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read %s: %w", m.configPath, err)
		}
	}
	cfg := DefaultConfig()
	if err := m.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", m.configPath, err)
	}
	return cfg, nil
}

// Save writes the configuration to disk
func (m *Manager) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := m.config
	w := viper.New()
	w.SetConfigType("json")
	w.Set("hotkeys", c.Hotkeys)
	w.Set("keyboard", c.Keyboard)
	w.Set("mouse", c.Mouse)
	w.Set("intercept", c.Intercept)
	w.Set("connector", c.Connector)
	w.Set("logging", c.Logging)

	if err := os.MkdirAll(filepath.Dir(m.configPath), 0755); err != nil {
		return err
	}
	m.logger.Info("saving configuration", zap.String("path", m.configPath))
	return w.WriteConfigAs(m.configPath)
}

// Get returns the current configuration
func (m *Manager) Get() *Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.config
}

// Set updates the configuration
func (m *Manager) Set(config *Config) {
	m.mu.Lock()
	m.config = config
	fn := m.onChanged
	m.mu.Unlock()
	if fn != nil {
		fn(config)
	}
}

// RegisterChangeCallback registers a function to be called when config changes
func (m *Manager) RegisterChangeCallback(fn func(*Config)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChanged = fn
}

// Watch reloads the file whenever it changes on disk. Invalid edits are
// logged and the previous configuration stays active.
func (m *Manager) Watch() {
	m.v.OnConfigChange(func(e fsnotify.Event) {
		m.mu.Lock()
		cfg, err := m.read()
		m.mu.Unlock()
		if err == nil {
			err = cfg.Validate()
		}
		if err != nil {
			m.logger.Warn("config change ignored", zap.String("path", e.Name), zap.Error(err))
			return
		}
		m.logger.Info("config reloaded", zap.String("path", e.Name), zap.Stringer("op", e.Op))
		m.Set(cfg)
	})
	m.v.WatchConfig()
}
