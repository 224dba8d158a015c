// Package config provides environment-variable-first configuration loading
// with optional YAML file and .env fallbacks for the relay.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/shineum/mail2telegram/internal/telegram"
)

const (
	defaultIMAPPort        = "993"
	defaultMailbox         = "INBOX"
	defaultAPIURL          = "https://api.telegram.org"
	defaultTelegramTimeout = 60 * time.Second
	defaultTimezone        = "Australia/Melbourne"
	defaultMaxAttempts     = 3
	defaultRetryAfter      = 5 * time.Second
	defaultService         = "mail2telegram"
)

// Secret keys shared by the environment and the keyring.
const (
	KeyEmailPassword = "EMAIL_PASSWORD"
	KeyBotToken      = "TELEGRAM_BOT_TOKEN"
)

// Config holds the complete application configuration.
type Config struct {
	IMAP        IMAPConfig        `yaml:"imap"`
	Telegram    TelegramConfig    `yaml:"telegram"`
	Relay       RelayConfig       `yaml:"relay"`
	Credentials CredentialsConfig `yaml:"credentials"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Logging     LoggingConfig     `yaml:"logging"`

	// envErrs collects environment values that could not be parsed.
	envErrs []error
}

// IMAPConfig holds the mailbox connection settings.
type IMAPConfig struct {
	Server             string `yaml:"server"`
	Account            string `yaml:"account"`
	Password           string `yaml:"password"`
	Mailbox            string `yaml:"mailbox"`
	StartTLS           bool   `yaml:"starttls"`
	CAFile             string `yaml:"ca_file"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
}

// TelegramConfig holds the Bot API destination and client settings.
type TelegramConfig struct {
	Token   string        `yaml:"token"`
	GroupID string        `yaml:"group_id"`
	TopicID int64         `yaml:"topic_id"`
	APIURL  string        `yaml:"api_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// RelayConfig holds delivery policy settings.
type RelayConfig struct {
	Timezone          string        `yaml:"timezone"`
	MaxAttempts       int           `yaml:"max_attempts"`
	DefaultRetryAfter time.Duration `yaml:"default_retry_after"`
	DryRun            bool          `yaml:"dry_run"`
}

// CredentialsConfig controls the optional keyring lookup of secrets.
type CredentialsConfig struct {
	Keyring bool   `yaml:"keyring"`
	Service string `yaml:"service"`
	// FilePassword unlocks the encrypted file backend when no system
	// keyring is available. The file backend is disabled when empty.
	FilePassword string `yaml:"file_password"`
}

// MetricsConfig holds metrics export settings.
type MetricsConfig struct {
	Textfile string `yaml:"textfile"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// LoadDotEnv loads KEY=VALUE pairs from path into the process environment
// without overriding variables that are already set. A missing file is not
// an error.
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load env file: %w", err)
	}
	return nil
}

// Load loads configuration from environment variables with sensible defaults.
// Environment variables always take precedence.
func Load() (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()
	cfg.applyEnvVars()
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
	cfg.applyEnvVars()

	return cfg, nil
}

// ResolveSecrets fills the mailbox password and bot token from lookup when
// keyring lookup is enabled and the value is still empty.
func (c *Config) ResolveSecrets(lookup func(key string) (string, error)) error {
	if !c.Credentials.Keyring {
		return nil
	}

	var errs []error
	resolve := func(key string, dst *string) {
		if *dst != "" {
			return
		}
		v, err := lookup(key)
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to read %s from keyring: %w", key, err))
			return
		}
		*dst = v
	}
	resolve(KeyEmailPassword, &c.IMAP.Password)
	if !c.Relay.DryRun {
		resolve(KeyBotToken, &c.Telegram.Token)
	}

	return errors.Join(errs...)
}

// Validate reports every missing or invalid setting at once.
func (c *Config) Validate() error {
	errs := append([]error(nil), c.envErrs...)

	if c.IMAP.Server == "" {
		errs = append(errs, errors.New("IMAP_SERVER is required"))
	}
	if c.IMAP.Account == "" {
		errs = append(errs, errors.New("EMAIL_ACCOUNT is required"))
	}
	if c.IMAP.Password == "" {
		errs = append(errs, errors.New("EMAIL_PASSWORD is required"))
	}
	if c.Telegram.Token == "" && !c.Relay.DryRun {
		errs = append(errs, errors.New("TELEGRAM_BOT_TOKEN is required"))
	}
	if c.Telegram.GroupID == "" {
		errs = append(errs, errors.New("TELEGRAM_GROUP_ID is required"))
	}
	if c.Telegram.TopicID == 0 {
		errs = append(errs, errors.New("TELEGRAM_TOPIC_ID is not set or zero"))
	}
	if c.Relay.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("RELAY_MAX_ATTEMPTS must be at least 1, got %d", c.Relay.MaxAttempts))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// IMAPAddress returns the server as host:port, adding the implicit TLS
// port when none is given.
func (c *Config) IMAPAddress() string {
	if _, _, err := net.SplitHostPort(c.IMAP.Server); err == nil {
		return c.IMAP.Server
	}
	return net.JoinHostPort(c.IMAP.Server, defaultIMAPPort)
}

// IMAPHost returns the server host name without the port.
func (c *Config) IMAPHost() string {
	host, _, err := net.SplitHostPort(c.IMAPAddress())
	if err != nil {
		return c.IMAP.Server
	}
	return host
}

// Destination returns the Telegram chat and topic to post into.
func (c *Config) Destination() telegram.Destination {
	return telegram.Destination{
		ChatID:  c.Telegram.GroupID,
		TopicID: c.Telegram.TopicID,
	}
}

// Location loads the time zone used to render message dates.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Relay.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid RELAY_TIMEZONE %q: %w", c.Relay.Timezone, err)
	}
	return loc, nil
}

// applyDefaults sets sensible default values for all configuration fields.
func (c *Config) applyDefaults() {
	c.IMAP.Mailbox = defaultMailbox
	c.Telegram.APIURL = defaultAPIURL
	c.Telegram.Timeout = defaultTelegramTimeout
	c.Relay.Timezone = defaultTimezone
	c.Relay.MaxAttempts = defaultMaxAttempts
	c.Relay.DefaultRetryAfter = defaultRetryAfter
	c.Credentials.Service = defaultService
	c.Logging.Level = "info"
}

// applyEnvVars overrides configuration with environment variable values.
// Only non-empty environment variables override existing values.
func (c *Config) applyEnvVars() {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setBool := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				c.envErrs = append(c.envErrs, fmt.Errorf("invalid %s %q: %w", key, v, err))
				return
			}
			*dst = b
		}
	}
	setDuration := func(key string, dst *time.Duration) {
		if v := os.Getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				c.envErrs = append(c.envErrs, fmt.Errorf("invalid %s %q: %w", key, v, err))
				return
			}
			*dst = d
		}
	}

	setString("IMAP_SERVER", &c.IMAP.Server)
	setString("EMAIL_ACCOUNT", &c.IMAP.Account)
	setString(KeyEmailPassword, &c.IMAP.Password)
	setString("IMAP_MAILBOX", &c.IMAP.Mailbox)
	setBool("IMAP_STARTTLS", &c.IMAP.StartTLS)
	setString("IMAP_CA_FILE", &c.IMAP.CAFile)
	setBool("IMAP_INSECURE_SKIP_VERIFY", &c.IMAP.InsecureSkipVerify)

	setString(KeyBotToken, &c.Telegram.Token)
	setString("TELEGRAM_GROUP_ID", &c.Telegram.GroupID)
	if v := os.Getenv("TELEGRAM_TOPIC_ID"); v != "" {
		id, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			c.envErrs = append(c.envErrs, fmt.Errorf("invalid TELEGRAM_TOPIC_ID %q: %w", v, err))
		} else {
			c.Telegram.TopicID = id
		}
	}
	setString("TELEGRAM_API_URL", &c.Telegram.APIURL)
	setDuration("TELEGRAM_TIMEOUT", &c.Telegram.Timeout)

	setString("RELAY_TIMEZONE", &c.Relay.Timezone)
	if v := os.Getenv("RELAY_MAX_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			c.envErrs = append(c.envErrs, fmt.Errorf("invalid RELAY_MAX_ATTEMPTS %q: %w", v, err))
		} else {
			c.Relay.MaxAttempts = n
		}
	}
	setDuration("RELAY_DEFAULT_RETRY_AFTER", &c.Relay.DefaultRetryAfter)
	setBool("RELAY_DRY_RUN", &c.Relay.DryRun)

	setBool("CREDENTIALS_KEYRING", &c.Credentials.Keyring)
	setString("CREDENTIALS_SERVICE", &c.Credentials.Service)
	setString("CREDENTIALS_FILE_PASSWORD", &c.Credentials.FilePassword)

	setString("METRICS_TEXTFILE", &c.Metrics.Textfile)

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
}
