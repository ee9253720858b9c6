package config

// Configuration loading and validation for cipstack

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tturner/cipstack/internal/cip/codec"
	"github.com/tturner/cipstack/internal/cip/connection"
	"github.com/tturner/cipstack/internal/errors"
	"github.com/tturner/cipstack/internal/logging"
)

// LoggingConfig selects the log level, line format and an optional log file.
type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format,omitempty"`    // "text" or "json"
	LogEvery int    `yaml:"log_every,omitempty"` // console sampling, 0 or 1 logs everything
	File     string `yaml:"file,omitempty"`
}

// ConnectionConfig describes the Forward Open sent for a connection.
type ConnectionConfig struct {
	VendorID          uint16 `yaml:"vendor_id"`
	OriginatorSerial  uint32 `yaml:"originator_serial"`
	TimeoutMultiplier uint8  `yaml:"timeout_multiplier"`
	PriorityTick      uint8  `yaml:"priority_tick"`
	TimeoutTicks      uint8  `yaml:"timeout_ticks"`
	OToTRPIUs         uint32 `yaml:"o_to_t_rpi_us"`
	TToORPIUs         uint32 `yaml:"t_to_o_rpi_us"`
	OToTSize          uint16 `yaml:"o_to_t_size"`
	TToOSize          uint16 `yaml:"t_to_o_size"`
	Priority          string `yaml:"priority"` // "low", "high", "scheduled" or "urgent"
	FixedSize         bool   `yaml:"fixed_size,omitempty"`
	TransportTrigger  uint8  `yaml:"transport_trigger"`
	Large             bool   `yaml:"large"`
	Route             string `yaml:"route"` // port,link pairs, e.g. "1,0" or "1,0,2,10.0.0.5"
	OpenTimeoutMs     int    `yaml:"open_timeout_ms"`
	CloseTimeoutMs    int    `yaml:"close_timeout_ms"`
}

// MessagingConfig bounds request/reply exchanges.
type MessagingConfig struct {
	RequestTimeoutMs int `yaml:"request_timeout_ms"`
}

// Config represents the originator configuration
type Config struct {
	Logging    LoggingConfig    `yaml:"logging"`
	Connection ConnectionConfig `yaml:"connection"`
	Messaging  MessagingConfig  `yaml:"messaging"`
	Target     TargetConfig     `yaml:"target"`
}

var priorities = map[string]uint8{
	"low":       connection.PriorityLow,
	"high":      connection.PriorityHigh,
	"scheduled": connection.PriorityScheduled,
	"urgent":    connection.PriorityUrgent,
}

// CreateDefaultConfig returns the configuration written by WriteDefaultConfig.
func CreateDefaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "info"},
		Connection: ConnectionConfig{
			VendorID:          0x1337,
			OriginatorSerial:  42,
			TimeoutMultiplier: 1,
			PriorityTick:      0x0A,
			TimeoutTicks:      0x0E,
			OToTRPIUs:         2_000_000,
			TToORPIUs:         2_000_000,
			OToTSize:          504,
			TToOSize:          504,
			Priority:          "low",
			TransportTrigger:  connection.TriggerClass3Cyclic,
			Route:             "1,0",
			OpenTimeoutMs:     5000,
			CloseTimeoutMs:    2000,
		},
		Messaging: MessagingConfig{RequestTimeoutMs: 5000},
		Target:    CreateDefaultTargetConfig(),
	}
}

// WriteDefaultConfig writes a default configuration to a file
func WriteDefaultConfig(path string) error {
	data, err := yaml.Marshal(CreateDefaultConfig())
	if err != nil {
		return fmt.Errorf("marshal default config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// LoadConfig loads a configuration from a YAML file. If the file doesn't
// exist and autoCreate is true, a default config file is created first.
// Missing values take their defaults.
func LoadConfig(path string, autoCreate bool) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, errors.WrapConfigError(fmt.Errorf("read config file: %w", err), path)
		}
		if !autoCreate {
			return nil, errors.WrapConfigError(fmt.Errorf("config file not found: %s", path), path)
		}
		if err := WriteDefaultConfig(path); err != nil {
			return nil, fmt.Errorf("create default config: %w", err)
		}
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, errors.WrapConfigError(fmt.Errorf("read created config file: %w", err), path)
		}
	}

	cfg := CreateDefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.WrapConfigError(fmt.Errorf("parse YAML: %w", err), path)
	}
	if err := Validate(cfg); err != nil {
		return nil, errors.WrapConfigError(fmt.Errorf("validate config: %w", err), path)
	}
	return cfg, nil
}

// Validate validates a configuration
func Validate(cfg *Config) error {
	if _, err := logging.ParseLevel(cfg.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	if _, err := logging.ParseFormat(cfg.Logging.Format); err != nil {
		return fmt.Errorf("logging.format: %w", err)
	}
	if cfg.Logging.LogEvery < 0 {
		return fmt.Errorf("logging.log_every must be >= 0")
	}
	if err := cfg.Connection.validate(); err != nil {
		return fmt.Errorf("connection: %w", err)
	}
	if cfg.Messaging.RequestTimeoutMs <= 0 {
		return fmt.Errorf("messaging.request_timeout_ms must be > 0")
	}
	if err := validateTarget(cfg.Target); err != nil {
		return fmt.Errorf("target: %w", err)
	}
	return nil
}

func (c ConnectionConfig) validate() error {
	if c.OToTRPIUs == 0 || c.TToORPIUs == 0 {
		return fmt.Errorf("o_to_t_rpi_us and t_to_o_rpi_us must be > 0")
	}
	if _, ok := priorities[strings.ToLower(c.Priority)]; !ok {
		return fmt.Errorf("priority %q must be one of low, high, scheduled, urgent", c.Priority)
	}
	maxSize := uint16(0x1FF)
	if c.Large {
		maxSize = 0xFFFF
	}
	if c.OToTSize == 0 || c.TToOSize == 0 || c.OToTSize > maxSize || c.TToOSize > maxSize {
		return fmt.Errorf("connection sizes %d/%d must be in [1, %d]", c.OToTSize, c.TToOSize, maxSize)
	}
	if c.TimeoutMultiplier > 7 {
		return fmt.Errorf("timeout_multiplier %d must be <= 7", c.TimeoutMultiplier)
	}
	if c.OpenTimeoutMs < 0 || c.CloseTimeoutMs < 0 {
		return fmt.Errorf("open_timeout_ms and close_timeout_ms must be >= 0")
	}
	if _, err := ParseRoute(c.Route); err != nil {
		return fmt.Errorf("route: %w", err)
	}
	return nil
}

// Params converts the section into connection parameters. The path is the
// route followed by the Message Router.
func (c ConnectionConfig) Params() (connection.Params, error) {
	if err := c.validate(); err != nil {
		return connection.Params{}, err
	}
	priority := priorities[strings.ToLower(c.Priority)]
	ot, err := connection.NetworkParams(c.OToTSize, !c.FixedSize, priority, connection.TypePointToPoint, c.Large)
	if err != nil {
		return connection.Params{}, fmt.Errorf("o_to_t: %w", err)
	}
	to, err := connection.NetworkParams(c.TToOSize, !c.FixedSize, priority, connection.TypePointToPoint, c.Large)
	if err != nil {
		return connection.Params{}, fmt.Errorf("t_to_o: %w", err)
	}
	route, _ := ParseRoute(c.Route)
	segments := append(route,
		codec.MustLogical(codec.ClassID, 0x02),
		codec.MustLogical(codec.InstanceID, 1))

	return connection.Params{
		VendorID:          c.VendorID,
		OriginatorSerial:  c.OriginatorSerial,
		PriorityTick:      c.PriorityTick,
		TimeoutTicks:      c.TimeoutTicks,
		TimeoutMultiplier: c.TimeoutMultiplier,
		OtoTRPI:           c.OToTRPIUs,
		TtoORPI:           c.TToORPIUs,
		OtoTParams:        ot,
		TtoOParams:        to,
		TransportTrigger:  c.TransportTrigger,
		Large:             c.Large,
		Path:              codec.NewEPath(true, segments...),
		OpenTimeout:       time.Duration(c.OpenTimeoutMs) * time.Millisecond,
		CloseTimeout:      time.Duration(c.CloseTimeoutMs) * time.Millisecond,
	}, nil
}

// RequestTimeout returns messaging.request_timeout_ms as a duration.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Messaging.RequestTimeoutMs) * time.Millisecond
}

// NewLogger builds the logger the logging section describes.
func (c *Config) NewLogger() (*logging.Logger, error) {
	level, err := logging.ParseLevel(c.Logging.Level)
	if err != nil {
		return nil, err
	}
	format, err := logging.ParseFormat(c.Logging.Format)
	if err != nil {
		return nil, err
	}
	return logging.New(logging.Options{
		Level:    level,
		File:     c.Logging.File,
		Format:   format,
		LogEvery: c.Logging.LogEvery,
	})
}

// ParseRoute parses comma separated port,link pairs into Port segments.
// A link is a slot number or an IP address. An empty route is local.
func ParseRoute(route string) ([]codec.Segment, error) {
	route = strings.TrimSpace(route)
	if route == "" {
		return nil, nil
	}
	parts := strings.Split(route, ",")
	if len(parts)%2 != 0 {
		return nil, fmt.Errorf("%q: want port,link pairs", route)
	}
	var segs []codec.Segment
	for i := 0; i < len(parts); i += 2 {
		portText, linkText := strings.TrimSpace(parts[i]), strings.TrimSpace(parts[i+1])
		port, err := strconv.ParseUint(portText, 0, 16)
		if err != nil || port == 0 {
			return nil, fmt.Errorf("%q: invalid port %q", route, portText)
		}
		var link []byte
		if n, err := strconv.ParseUint(linkText, 0, 8); err == nil {
			link = []byte{byte(n)}
		} else if net.ParseIP(linkText) != nil {
			link = []byte(linkText)
		} else {
			return nil, fmt.Errorf("%q: invalid link %q (want a slot or an IP address)", route, linkText)
		}
		segs = append(segs, codec.Port{Port: uint16(port), Link: link})
	}
	return segs, nil
}
