// Package config provides environment-variable-first configuration loading
// with optional YAML file fallback for the mailer.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// defaultTimeout bounds a single dial-and-send round trip.
const defaultTimeout = 10 * time.Second

// Config holds the complete application configuration.
type Config struct {
	Transport string        `yaml:"transport"`
	Mailer    MailerConfig  `yaml:"mailer"`
	SES       SESConfig     `yaml:"ses"`
	Graph     GraphConfig   `yaml:"graph"`
	Logging   LoggingConfig `yaml:"logging"`
}

// MailerConfig describes the SMTP account messages are sent from.
// Zero values mean the key was not provided.
type MailerConfig struct {
	Host               string        `yaml:"host"`
	Port               int           `yaml:"port"`
	Secure             string        `yaml:"secure"`
	Address            string        `yaml:"address"`
	Password           string        `yaml:"password"`
	Username           string        `yaml:"username"`
	ReplyToAddress     string        `yaml:"replyto_address"`
	ReplyToName        string        `yaml:"replyto_name"`
	Timeout            time.Duration `yaml:"timeout"`
	InsecureSkipVerify bool          `yaml:"insecure_skip_verify"`
}

// SESConfig holds AWS SES configuration.
type SESConfig struct {
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

// GraphConfig holds Microsoft Graph API configuration.
type GraphConfig struct {
	TenantID     string `yaml:"tenant_id"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Load loads configuration from environment variables with sensible defaults.
// Environment variables always take precedence.
func Load() (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()
	if err := cfg.applyEnvVars(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a YAML file as the base layer,
// then overrides with environment variables. Returns an error if the
// specified file path does not exist.
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
	if err := cfg.applyEnvVars(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// SESConfigured returns true if an SES region is set.
func (c *Config) SESConfigured() bool {
	return c.SES.Region != ""
}

// GraphConfigured returns true if all three Graph API credentials are set.
func (c *Config) GraphConfigured() bool {
	return c.Graph.TenantID != "" &&
		c.Graph.ClientID != "" &&
		c.Graph.ClientSecret != ""
}

// applyDefaults sets default values for optional fields. Required mailer
// keys have no defaults so that their absence stays detectable.
func (c *Config) applyDefaults() {
	c.Transport = "smtp"
	c.Mailer.Timeout = defaultTimeout
	c.Logging.Level = "info"
}

// applyEnvVars overrides configuration with environment variable values.
// Only non-empty environment variables override existing values.
func (c *Config) applyEnvVars() error {
	if v := os.Getenv("MAILER_TRANSPORT"); v != "" {
		c.Transport = strings.ToLower(v)
	}

	if v := os.Getenv("MAILER_SMTP_HOST"); v != "" {
		c.Mailer.Host = v
	}
	if v := os.Getenv("MAILER_SMTP_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid MAILER_SMTP_PORT %q: %w", v, err)
		}
		c.Mailer.Port = port
	}
	if v := os.Getenv("MAILER_SMTP_SECURE"); v != "" {
		c.Mailer.Secure = v
	}
	if v := os.Getenv("MAILER_SMTP_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid MAILER_SMTP_TIMEOUT %q: %w", v, err)
		}
		c.Mailer.Timeout = d
	}
	if v := os.Getenv("MAILER_SMTP_INSECURE_SKIP_VERIFY"); v != "" {
		c.Mailer.InsecureSkipVerify = strings.EqualFold(v, "true")
	}
	if v := os.Getenv("MAILER_ADDRESS"); v != "" {
		c.Mailer.Address = v
	}
	if v := os.Getenv("MAILER_PASSWORD"); v != "" {
		c.Mailer.Password = v
	}
	if v := os.Getenv("MAILER_USERNAME"); v != "" {
		c.Mailer.Username = v
	}
	if v := os.Getenv("MAILER_REPLYTO_ADDRESS"); v != "" {
		c.Mailer.ReplyToAddress = v
	}
	if v := os.Getenv("MAILER_REPLYTO_NAME"); v != "" {
		c.Mailer.ReplyToName = v
	}

	if v := os.Getenv("SES_REGION"); v != "" {
		c.SES.Region = v
	}
	if v := os.Getenv("SES_ACCESS_KEY_ID"); v != "" {
		c.SES.AccessKeyID = v
	}
	if v := os.Getenv("SES_SECRET_ACCESS_KEY"); v != "" {
		c.SES.SecretAccessKey = v
	}

	if v := os.Getenv("GRAPH_TENANT_ID"); v != "" {
		c.Graph.TenantID = v
	}
	if v := os.Getenv("GRAPH_CLIENT_ID"); v != "" {
		c.Graph.ClientID = v
	}
	if v := os.Getenv("GRAPH_CLIENT_SECRET"); v != "" {
		c.Graph.ClientSecret = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}

	return nil
}
