// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
)

// EnvPrefix prefixes every environment override, e.g. SAFESPACE_MQTT_BROKER.
const EnvPrefix = "SAFESPACE_"

// Config holds all application configuration values.
// Every field can be set in the config file as KEY=VALUE and overridden by
// the environment variable EnvPrefix+KEY.
type Config struct {
	// Serial
	SerialPort         string   `env:"SERIAL_PORT"` // optional; empty means auto-detect
	SerialBaudRate     int      `env:"SERIAL_BAUD_RATE"`
	SerialPortPatterns []string `env:"SERIAL_PORT_PATTERNS" envSeparator:","`
	SerialMock         bool     `env:"SERIAL_MOCK"`

	// Discovery (milliseconds)
	DiscoveryTimeoutMS int `env:"DISCOVERY_TIMEOUT_MS"`
	DiscoverySettleMS  int `env:"DISCOVERY_SETTLE_MS"`

	// Session (milliseconds)
	SessionReadTimeoutMS int `env:"SESSION_READ_TIMEOUT_MS"`
	SessionOpenTimeoutMS int `env:"SESSION_OPEN_TIMEOUT_MS"`
	ScanIntervalMS       int `env:"SCAN_INTERVAL_MS"`

	// MQTT (optional; empty broker disables publishing)
	MQTTBroker     string `env:"MQTT_BROKER"`
	MQTTClientID   string `env:"MQTT_CLIENT_ID"`
	TopicReading   string `env:"TOPIC_READING"`
	TopicFusion    string `env:"TOPIC_FUSION"`
	TopicDiscovery string `env:"TOPIC_DISCOVERY"`

	// Web Server
	WebServerPort int `env:"WEB_SERVER_PORT"`

	// Physiological classifier service (optional)
	InferenceURL       string `env:"INFERENCE_URL"`
	InferenceTimeoutMS int    `env:"INFERENCE_TIMEOUT_MS"`

	// Coach (optional)
	CoachURL      string `env:"COACH_URL"`
	CoachModel    string `env:"COACH_MODEL"`
	CoachTimeoutS int    `env:"COACH_TIMEOUT_S"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL"`  // debug, info, warn, error
	LogFormat string `env:"LOG_FORMAT"` // console, json
}

// Package-level singleton, set once by InitGlobal and read with Get.
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Default returns the configuration used when a key is absent.
func Default() *Config {
	return &Config{
		SerialBaudRate:       115200,
		DiscoveryTimeoutMS:   1000,
		DiscoverySettleMS:    2000,
		SessionReadTimeoutMS: 2000,
		SessionOpenTimeoutMS: 2000,
		ScanIntervalMS:       1000,
		MQTTClientID:         "safespace",
		TopicReading:         "safespace/physio",
		TopicFusion:          "safespace/fusion",
		TopicDiscovery:       "safespace/discovery",
		WebServerPort:        8080,
		InferenceTimeoutMS:   5000,
		CoachURL:             "http://localhost:11434",
		CoachModel:           "phi3:mini",
		CoachTimeoutS:        180,
		LogLevel:             "info",
		LogFormat:            "console",
	}
}

// Load reads the configuration file on top of Default, then applies
// environment overrides. A missing file is not an error when path is empty.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	if configPath != "" {
		if err := cfg.loadFile(configPath); err != nil {
			return nil, err
		}
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("config env: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(configPath string) error {
	file, err := os.Open(configPath)
	if err != nil {
		return fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse KEY=VALUE
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if err := c.setValue(key, value); err != nil {
			return fmt.Errorf("config line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}
	return nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	switch key {
	// Serial
	case "SERIAL_PORT":
		c.SerialPort = value
	case "SERIAL_BAUD_RATE":
		return setInt(&c.SerialBaudRate, key, value)
	case "SERIAL_PORT_PATTERNS":
		c.SerialPortPatterns = splitList(value)
	case "SERIAL_MOCK":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", key, value, err)
		}
		c.SerialMock = b

	// Discovery
	case "DISCOVERY_TIMEOUT_MS":
		return setInt(&c.DiscoveryTimeoutMS, key, value)
	case "DISCOVERY_SETTLE_MS":
		return setInt(&c.DiscoverySettleMS, key, value)

	// Session
	case "SESSION_READ_TIMEOUT_MS":
		return setInt(&c.SessionReadTimeoutMS, key, value)
	case "SESSION_OPEN_TIMEOUT_MS":
		return setInt(&c.SessionOpenTimeoutMS, key, value)
	case "SCAN_INTERVAL_MS":
		return setInt(&c.ScanIntervalMS, key, value)

	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID":
		c.MQTTClientID = value
	case "TOPIC_READING":
		c.TopicReading = value
	case "TOPIC_FUSION":
		c.TopicFusion = value
	case "TOPIC_DISCOVERY":
		c.TopicDiscovery = value

	// Web Server
	case "WEB_SERVER_PORT":
		return setInt(&c.WebServerPort, key, value)

	// Inference
	case "INFERENCE_URL":
		c.InferenceURL = value
	case "INFERENCE_TIMEOUT_MS":
		return setInt(&c.InferenceTimeoutMS, key, value)

	// Coach
	case "COACH_URL":
		c.CoachURL = value
	case "COACH_MODEL":
		c.CoachModel = value
	case "COACH_TIMEOUT_S":
		return setInt(&c.CoachTimeoutS, key, value)

	// Logging
	case "LOG_LEVEL":
		c.LogLevel = value
	case "LOG_FORMAT":
		c.LogFormat = value

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return nil
}

func setInt(dst *int, key, value string) error {
	v, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	*dst = v
	return nil
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// validate checks ranges of the numeric settings.
func (c *Config) validate() error {
	if c.SerialBaudRate <= 0 {
		return fmt.Errorf("SERIAL_BAUD_RATE must be positive, got %d", c.SerialBaudRate)
	}
	// every serial operation must stay bounded
	if c.DiscoveryTimeoutMS <= 0 || c.DiscoveryTimeoutMS > 1000 {
		return fmt.Errorf("DISCOVERY_TIMEOUT_MS must be 1-1000, got %d", c.DiscoveryTimeoutMS)
	}
	if c.DiscoverySettleMS < 0 {
		return fmt.Errorf("DISCOVERY_SETTLE_MS must not be negative, got %d", c.DiscoverySettleMS)
	}
	if c.SessionReadTimeoutMS <= 0 {
		return fmt.Errorf("SESSION_READ_TIMEOUT_MS must be positive, got %d", c.SessionReadTimeoutMS)
	}
	if c.SessionOpenTimeoutMS <= 0 {
		return fmt.Errorf("SESSION_OPEN_TIMEOUT_MS must be positive, got %d", c.SessionOpenTimeoutMS)
	}
	if c.ScanIntervalMS <= 0 {
		return fmt.Errorf("SCAN_INTERVAL_MS must be positive, got %d", c.ScanIntervalMS)
	}
	if c.WebServerPort <= 0 || c.WebServerPort > 65535 {
		return fmt.Errorf("WEB_SERVER_PORT must be 1-65535, got %d", c.WebServerPort)
	}
	if c.MQTTBroker != "" && c.MQTTClientID == "" {
		return fmt.Errorf("MQTT_CLIENT_ID is required when MQTT_BROKER is set")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error, got %q", c.LogLevel)
	}
	switch c.LogFormat {
	case "console", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be console or json, got %q", c.LogFormat)
	}
	return nil
}

// DiscoveryTimeout bounds each open/write/read of a discovery probe.
func (c *Config) DiscoveryTimeout() time.Duration {
	return time.Duration(c.DiscoveryTimeoutMS) * time.Millisecond
}

// DiscoverySettle is the wait between opening a port and sending PING.
func (c *Config) DiscoverySettle() time.Duration {
	return time.Duration(c.DiscoverySettleMS) * time.Millisecond
}

// SessionReadTimeout bounds one session read.
func (c *Config) SessionReadTimeout() time.Duration {
	return time.Duration(c.SessionReadTimeoutMS) * time.Millisecond
}

// SessionOpenTimeout bounds opening the session port.
func (c *Config) SessionOpenTimeout() time.Duration {
	return time.Duration(c.SessionOpenTimeoutMS) * time.Millisecond
}

// ScanInterval is the monitor loop period.
func (c *Config) ScanInterval() time.Duration {
	return time.Duration(c.ScanIntervalMS) * time.Millisecond
}

// InferenceTimeout bounds one classifier request.
func (c *Config) InferenceTimeout() time.Duration {
	return time.Duration(c.InferenceTimeoutMS) * time.Millisecond
}

// CoachTimeout bounds one coach request.
func (c *Config) CoachTimeout() time.Duration {
	return time.Duration(c.CoachTimeoutS) * time.Second
}

// InitGlobal initializes the global configuration from file.
// Uses sync.Once to ensure this only runs once, even if called multiple times.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration instance.
// InitGlobal must be called first, or this will return nil.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
