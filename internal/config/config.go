// Package config manages intentiond daemon configuration using koanf/v2.
//
// Supports YAML files and environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// defaultDialTimeout is the soft_bus.dial_timeout value used when the
// configuration does not override it.
const defaultDialTimeout = 5 * time.Second

// -------------------------------------------------------------------------
// Configuration Structures
// -------------------------------------------------------------------------

// Config holds the complete intentiond configuration.
type Config struct {
	Device  DeviceConfig  `koanf:"device"`
	Control ControlConfig `koanf:"control"`
	Metrics MetricsConfig `koanf:"metrics"`
	Log     LogConfig     `koanf:"log"`
	SoftBus SoftBusConfig `koanf:"soft_bus"`
}

// DeviceConfig identifies this device on the soft bus.
type DeviceConfig struct {
	// NetworkID is this device's own networkId, as advertised to peers
	// during coordination negotiation. Generated with google/uuid if left
	// empty at startup.
	NetworkID string `koanf:"network_id"`
}

// ControlConfig holds the operator control-plane (intentionctl) listener
// configuration.
type ControlConfig struct {
	// SocketPath is the Unix-domain socket path the Connect-RPC control
	// handler listens on ("/run/intentiond/control.sock" by default).
	SocketPath string `koanf:"socket_path"`
}

// MetricsConfig holds the Prometheus metrics endpoint configuration.
type MetricsConfig struct {
	// Addr is the HTTP listen address for the metrics endpoint (e.g., ":9100").
	Addr string `koanf:"addr"`
	// Path is the URL path for the metrics endpoint (e.g., "/metrics").
	Path string `koanf:"path"`
}

// LogConfig holds the logging configuration.
type LogConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `koanf:"level"`
	// Format is the log output format: "json" or "text".
	Format string `koanf:"format"`
}

// SoftBusConfig holds the soft-bus (peer transport) tunables.
type SoftBusConfig struct {
	// ListenAddr is the TCP address the soft-bus adapter accepts inbound
	// peer connections on (e.g., ":7890").
	ListenAddr string `koanf:"listen_addr"`
	// DialTimeout is loaded and defaulted here, but it is not passed to the
	// soft-bus adapter, which dials with its own fixed 5-second timeout.
	DialTimeout time.Duration `koanf:"dial_timeout"`
}

// -------------------------------------------------------------------------
// Defaults
// -------------------------------------------------------------------------

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Device: DeviceConfig{
			NetworkID: "",
		},
		Control: ControlConfig{
			SocketPath: "/run/intentiond/control.sock",
		},
		Metrics: MetricsConfig{
			Addr: ":9100",
			Path: "/metrics",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		SoftBus: SoftBusConfig{
			ListenAddr:  ":7890",
			DialTimeout: defaultDialTimeout,
		},
	}
}

// -------------------------------------------------------------------------
// Loader
// -------------------------------------------------------------------------

// envPrefix is the environment variable prefix for intentiond configuration.
// Variables are named INTENTIOND_<section>_<key>, e.g., INTENTIOND_CONTROL_SOCKET_PATH.
const envPrefix = "INTENTIOND_"

// Load reads configuration from a YAML file at path, overlays environment
// variable overrides (INTENTIOND_ prefix), and merges on top of
// DefaultConfig(). Missing fields inherit defaults.
//
// Environment variable mapping:
//
//	INTENTIOND_DEVICE_NETWORK_ID  -> device.network_id
//	INTENTIOND_CONTROL_SOCKET_PATH -> control.socket_path
//	INTENTIOND_METRICS_ADDR       -> metrics.addr
//	INTENTIOND_METRICS_PATH       -> metrics.path
//	INTENTIOND_LOG_LEVEL          -> log.level
//	INTENTIOND_LOG_FORMAT         -> log.format
//	INTENTIOND_SOFT_BUS_LISTEN_ADDR -> soft_bus.listen_addr
//
// Uses koanf/v2 with file + env providers and YAML parser.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	defaults := DefaultConfig()
	if err := loadDefaults(k, defaults); err != nil {
		return nil, fmt.Errorf("load config defaults: %w", err)
	}

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load config from %s: %w", path, err)
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKeyMapper), nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config from %s: %w", path, err)
	}

	return cfg, nil
}

// envKeyMapper transforms INTENTIOND_CONTROL_SOCKET_PATH -> control.socket_path.
// Strips the INTENTIOND_ prefix, lowercases, and replaces the section/key
// boundary underscore with a dot. The soft_bus section carries an underscore
// of its own, so it is matched explicitly before the first-underscore split.
func envKeyMapper(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	s = strings.ToLower(s)
	if rest, ok := strings.CutPrefix(s, "soft_bus_"); ok {
		return "soft_bus." + rest
	}
	parts := strings.SplitN(s, "_", 2)
	if len(parts) != 2 {
		return s
	}
	return parts[0] + "." + parts[1]
}

// loadDefaults marshals the default config into koanf as the base layer.
func loadDefaults(k *koanf.Koanf, defaults *Config) error {
	defaultMap := map[string]any{
		"device.network_id":     defaults.Device.NetworkID,
		"control.socket_path":   defaults.Control.SocketPath,
		"metrics.addr":          defaults.Metrics.Addr,
		"metrics.path":          defaults.Metrics.Path,
		"log.level":             defaults.Log.Level,
		"log.format":            defaults.Log.Format,
		"soft_bus.listen_addr":  defaults.SoftBus.ListenAddr,
		"soft_bus.dial_timeout": defaults.SoftBus.DialTimeout.String(),
	}

	for key, val := range defaultMap {
		if err := k.Set(key, val); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}

	return nil
}

// -------------------------------------------------------------------------
// Validation
// -------------------------------------------------------------------------

// Validation errors.
var (
	// ErrEmptySocketPath indicates the control-plane socket path is empty.
	ErrEmptySocketPath = errors.New("control.socket_path must not be empty")

	// ErrEmptyMetricsAddr indicates the metrics listen address is empty.
	ErrEmptyMetricsAddr = errors.New("metrics.addr must not be empty")

	// ErrEmptySoftBusAddr indicates the soft-bus listen address is empty.
	ErrEmptySoftBusAddr = errors.New("soft_bus.listen_addr must not be empty")
)

// Validate checks the configuration for logical errors.
// Returns the first validation error encountered.
func Validate(cfg *Config) error {
	if cfg.Control.SocketPath == "" {
		return ErrEmptySocketPath
	}
	if cfg.Metrics.Addr == "" {
		return ErrEmptyMetricsAddr
	}
	if cfg.SoftBus.ListenAddr == "" {
		return ErrEmptySoftBusAddr
	}
	return nil
}

// -------------------------------------------------------------------------
// Log Level Parsing
// -------------------------------------------------------------------------

// ParseLogLevel maps a configuration log level string to the corresponding
// slog.Level. Unknown values default to slog.LevelInfo.
//
// Recognized values: "debug", "info", "warn", "error" (case-insensitive).
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
