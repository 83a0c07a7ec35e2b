// Package config provides environment-variable-first configuration loading
// with optional YAML file fallback for the bridge.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ListenDisabled is the sentinel listen value that disables a listener.
const ListenDisabled = "no"

// defaultMaxList caps how many inbox messages one POP3 session lists.
const defaultMaxList = 100

// Config holds the complete application configuration.
type Config struct {
	POP3    POP3Config    `yaml:"pop3"`
	SMTP    SMTPConfig    `yaml:"smtp"`
	Webmail WebmailConfig `yaml:"webmail"`
	Logging LoggingConfig `yaml:"logging"`
}

// POP3Config holds POP3 listener configuration.
type POP3Config struct {
	Listen string `yaml:"listen"`
}

// SMTPConfig holds SMTP listener configuration.
type SMTPConfig struct {
	Listen   string `yaml:"listen"`
	Hostname string `yaml:"hostname"`
}

// WebmailConfig holds webmail server configuration.
type WebmailConfig struct {
	BaseURL string `yaml:"base_url"`
	MaxList int    `yaml:"max_list"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Load loads configuration from environment variables with sensible
// defaults. Environment variables always take precedence.
func Load() (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()
	cfg.applyEnvVars()
	return cfg, nil
}

// LoadFromFile loads configuration from a YAML file as the base layer, then
// overrides with environment variables. Returns an error if the specified
// file path does not exist.
func LoadFromFile(path string) (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Environment variables always override YAML values
	cfg.applyEnvVars()

	return cfg, nil
}

// POP3Enabled returns true unless the POP3 listen address is the "no"
// sentinel.
func (c *Config) POP3Enabled() bool {
	return c.POP3.Listen != ListenDisabled
}

// SMTPEnabled returns true unless the SMTP listen address is the "no"
// sentinel.
func (c *Config) SMTPEnabled() bool {
	return c.SMTP.Listen != ListenDisabled
}

// applyDefaults sets sensible default values for all configuration fields.
func (c *Config) applyDefaults() {
	c.POP3.Listen = ":2110"
	c.SMTP.Listen = ":2587"
	c.SMTP.Hostname = "localhost"
	c.Webmail.BaseURL = "https://app.openmailbox.org"
	c.Webmail.MaxList = defaultMaxList
	c.Logging.Level = "info"
}

// applyEnvVars overrides configuration with environment variable values.
// Only non-empty environment variables override existing values.
func (c *Config) applyEnvVars() {
	if v := os.Getenv("POP3_LISTEN"); v != "" {
		c.POP3.Listen = v
	}
	if v := os.Getenv("SMTP_LISTEN"); v != "" {
		c.SMTP.Listen = v
	}
	if v := os.Getenv("SMTP_HOSTNAME"); v != "" {
		c.SMTP.Hostname = v
	}

	if v := os.Getenv("WEBMAIL_BASE_URL"); v != "" {
		c.Webmail.BaseURL = v
	}
	if v := os.Getenv("WEBMAIL_MAX_LIST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Webmail.MaxList = n
		}
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
}
