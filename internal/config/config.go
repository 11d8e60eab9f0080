// Package config provides environment-variable-first configuration loading
// with optional YAML file fallback for the bulk mail server and CLI.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// defaultBodyLimit is 25 MB in bytes.
const defaultBodyLimit = 26214400

// Gmail submission endpoint used when only the legacy EMAIL_USER and
// EMAIL_PASSWORD variables are set.
const (
	legacySMTPHost = "smtp.gmail.com"
	legacySMTPPort = 587
)

// Config holds the complete application configuration.
type Config struct {
	Server   ServerConfig  `yaml:"server"`
	Mail     MailConfig    `yaml:"mail"`
	Provider string        `yaml:"provider"`
	SMTP     SMTPConfig    `yaml:"smtp"`
	SES      SESConfig     `yaml:"ses"`
	Graph    GraphConfig   `yaml:"graph"`
	Resend   ResendConfig  `yaml:"resend"`
	TLS      TLSConfig     `yaml:"tls"`
	Logging  LoggingConfig `yaml:"logging"`
	Client   ClientConfig  `yaml:"client"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Listen       string        `yaml:"listen"`
	BodyLimit    int           `yaml:"body_limit"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// MailConfig holds settings shared by every provider.
type MailConfig struct {
	From string `yaml:"from"`
}

// SMTPConfig holds the outbound SMTP relay configuration.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// SESConfig holds AWS SES configuration.
type SESConfig struct {
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	Sender          string `yaml:"sender"`
}

// GraphConfig holds Microsoft Graph API configuration.
type GraphConfig struct {
	TenantID     string `yaml:"tenant_id"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	Sender       string `yaml:"sender"`
}

// ResendConfig holds Resend API configuration.
type ResendConfig struct {
	APIKey string `yaml:"api_key"`
}

// TLSConfig holds TLS settings for the HTTP listener.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// ClientConfig holds settings for the command-line composer.
type ClientConfig struct {
	ServerURL string        `yaml:"server_url"`
	Timeout   time.Duration `yaml:"timeout"`
}

// LoadDotEnv loads variables from a .env file without overriding variables
// already present in the environment. A missing file is not an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// Load loads configuration from environment variables with sensible defaults.
// Environment variables always take precedence.
func Load() (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()
	if err := cfg.applyEnvVars(); err != nil {
		return nil, err
	}
	cfg.applyLegacyDefaults()
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
	cfg.applyLegacyDefaults()

	return cfg, nil
}

// SMTPConfigured returns true if an SMTP relay host and a sender address are set.
func (c *Config) SMTPConfigured() bool {
	return c.SMTP.Host != "" && c.Mail.From != ""
}

// SESConfigured returns true if the SES region and sender are set.
// Credentials may come from the default AWS chain.
func (c *Config) SESConfigured() bool {
	return c.SES.Region != "" && c.SES.Sender != ""
}

// GraphConfigured returns true if all four Graph API credentials are set.
func (c *Config) GraphConfigured() bool {
	return c.Graph.TenantID != "" &&
		c.Graph.ClientID != "" &&
		c.Graph.ClientSecret != "" &&
		c.Graph.Sender != ""
}

// ResendConfigured returns true if a Resend API key and a sender are set.
func (c *Config) ResendConfigured() bool {
	return c.Resend.APIKey != "" && c.Mail.From != ""
}

// AuthEnabled returns true if both SMTP username and password are set.
func (c *Config) AuthEnabled() bool {
	return c.SMTP.Username != "" && c.SMTP.Password != ""
}

// applyDefaults sets sensible default values for all configuration fields.
func (c *Config) applyDefaults() {
	c.Server.Listen = ":3000"
	c.Server.BodyLimit = defaultBodyLimit
	c.Server.ReadTimeout = 30 * time.Second
	c.Server.WriteTimeout = 10 * time.Minute
	c.SMTP.Port = legacySMTPPort
	c.Logging.Level = "info"
	c.Client.ServerURL = "http://localhost:3000"
	c.Client.Timeout = 10 * time.Minute
}

// applyLegacyDefaults fills the Gmail relay host when only the legacy
// credential variables were supplied.
func (c *Config) applyLegacyDefaults() {
	if c.SMTP.Host == "" && os.Getenv("EMAIL_USER") != "" && os.Getenv("EMAIL_PASSWORD") != "" {
		c.SMTP.Host = legacySMTPHost
		c.SMTP.Port = legacySMTPPort
	}
}

// applyEnvVars overrides configuration with environment variable values.
// Only non-empty environment variables override existing values.
func (c *Config) applyEnvVars() error {
	setString := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	setString(&c.Server.Listen, "SERVER_LISTEN")
	if v := os.Getenv("SERVER_BODY_LIMIT"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit <= 0 {
			return fmt.Errorf("invalid SERVER_BODY_LIMIT %q", v)
		}
		c.Server.BodyLimit = limit
	}

	// Legacy names first so the explicit ones win.
	setString(&c.Mail.From, "EMAIL_USER")
	setString(&c.SMTP.Username, "EMAIL_USER")
	setString(&c.SMTP.Password, "EMAIL_PASSWORD")
	setString(&c.Mail.From, "MAIL_FROM")

	if v := os.Getenv("PROVIDER"); v != "" {
		c.Provider = strings.ToLower(v)
	}

	setString(&c.SMTP.Host, "SMTP_HOST")
	if v := os.Getenv("SMTP_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid SMTP_PORT %q: %w", v, err)
		}
		c.SMTP.Port = port
	}
	setString(&c.SMTP.Username, "SMTP_USERNAME")
	setString(&c.SMTP.Password, "SMTP_PASSWORD")

	setString(&c.SES.Region, "SES_REGION")
	setString(&c.SES.AccessKeyID, "SES_ACCESS_KEY_ID")
	setString(&c.SES.SecretAccessKey, "SES_SECRET_ACCESS_KEY")
	setString(&c.SES.Sender, "SES_SENDER")

	setString(&c.Graph.TenantID, "GRAPH_TENANT_ID")
	setString(&c.Graph.ClientID, "GRAPH_CLIENT_ID")
	setString(&c.Graph.ClientSecret, "GRAPH_CLIENT_SECRET")
	setString(&c.Graph.Sender, "GRAPH_SENDER")

	setString(&c.Resend.APIKey, "RESEND_API_KEY")

	if v := os.Getenv("TLS_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid TLS_ENABLED %q: %w", v, err)
		}
		c.TLS.Enabled = enabled
	}
	setString(&c.TLS.CertFile, "TLS_CERT_FILE")
	setString(&c.TLS.KeyFile, "TLS_KEY_FILE")

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}

	setString(&c.Client.ServerURL, "BULKMAIL_SERVER_URL")
	if v := os.Getenv("BULKMAIL_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid BULKMAIL_TIMEOUT %q: %w", v, err)
		}
		c.Client.Timeout = d
	}

	return nil
}
