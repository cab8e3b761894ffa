// Package config provides application configuration.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"

	"github.com/moffa90/go-b003flash/internal/simdriver"
	"github.com/moffa90/go-b003flash/protocol"
)

const (
	// DefaultListenAddr is the address the HTTP API listens on
	DefaultListenAddr = "127.0.0.1:8080"

	// DefaultLogLevel is used when no level is configured
	DefaultLogLevel = "info"
)

// Config holds all application configuration.
type Config struct {
	ListenAddr     string           `yaml:"listen_addr"`
	LogLevel       string           `yaml:"log_level"`
	LogFormat      string           `yaml:"log_format"` // "json" or "text"
	VendorID       uint16           `yaml:"vendor_id"`
	ProductID      uint16           `yaml:"product_id"`
	FetchTimeout   time.Duration    `yaml:"fetch_timeout"` // 0 = no limit
	AllowedOrigins []string         `yaml:"allowed_origins"`
	Simulate       bool             `yaml:"simulate"`
	Simulator      simdriver.Config `yaml:"simulator"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		ListenAddr:     DefaultListenAddr,
		LogLevel:       DefaultLogLevel,
		LogFormat:      "json",
		VendorID:       protocol.VendorID,
		ProductID:      protocol.ProductID,
		AllowedOrigins: []string{"*"},
		Simulator:      simdriver.DefaultConfig(),
	}
}

// LoadDotEnv loads .env files into the process environment. Missing files
// are ignored; existing variables are not overridden.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// Load reads configuration from the YAML file at path (if it exists) and
// applies B003_* environment overrides on top.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			// defaults
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	cfg.ListenAddr = getEnv("B003_LISTEN_ADDR", cfg.ListenAddr)
	cfg.LogLevel = getEnv("B003_LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getEnv("B003_LOG_FORMAT", cfg.LogFormat)
	cfg.FetchTimeout = getEnvDuration("B003_FETCH_TIMEOUT", cfg.FetchTimeout)
	cfg.Simulate = getEnvBool("B003_SIMULATE", cfg.Simulate)
	cfg.Simulator.FailStep = simdriver.Step(getEnv("B003_SIM_FAIL_STEP", string(cfg.Simulator.FailStep)))
	cfg.Simulator.FailCode = getEnvInt("B003_SIM_FAIL_CODE", cfg.Simulator.FailCode)
	if origins := getEnv("B003_ALLOWED_ORIGINS", ""); origins != "" {
		cfg.AllowedOrigins = strings.Split(origins, ",")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr cannot be empty")
	}
	if c.VendorID == 0 || c.ProductID == 0 {
		return fmt.Errorf("vendor_id and product_id must be non-zero")
	}
	if c.FetchTimeout < 0 {
		return fmt.Errorf("fetch_timeout must be >= 0")
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("log_format must be json or text, got %q", c.LogFormat)
	}
	switch c.Simulator.FailStep {
	case "", simdriver.StepOpen, simdriver.StepConfigure, simdriver.StepIdentify, simdriver.StepWrite, simdriver.StepBoot:
	default:
		return fmt.Errorf("unknown simulator fail_step %q", c.Simulator.FailStep)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
