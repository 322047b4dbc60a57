package model

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// MailConfig holds the service account and mail server settings.
type MailConfig struct {
	// Address is the service account used to log in and to send replies.
	Address  string `mapstructure:"address" yaml:"address"`
	Password string `mapstructure:"password" yaml:"password"`

	IMAPHost string `mapstructure:"imap_host" yaml:"imap_host"`
	IMAPPort string `mapstructure:"imap_port" yaml:"imap_port"`
	SMTPHost string `mapstructure:"smtp_host" yaml:"smtp_host"`
	SMTPPort string `mapstructure:"smtp_port" yaml:"smtp_port"`

	// TLS forces implicit TLS on both connections. Without it, ports 993
	// and 465 use implicit TLS and every other port uses STARTTLS.
	TLS bool `mapstructure:"tls" yaml:"tls"`

	// Folder is the mailbox polled for inbound messages.
	Folder string `mapstructure:"folder" yaml:"folder"`

	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`

	// CutoffPhrases mark the start of gateway footers stripped from bodies.
	CutoffPhrases []string `mapstructure:"cutoff_phrases" yaml:"cutoff_phrases"`
}

// PhoneConfig identifies the remote party and the carrier gateways.
type PhoneConfig struct {
	Number     string `mapstructure:"number" yaml:"number"`
	SMSGateway string `mapstructure:"sms_gateway" yaml:"sms_gateway"`
	MMSGateway string `mapstructure:"mms_gateway" yaml:"mms_gateway"`
}

// ServerConfig holds the HTTP API listen address.
type ServerConfig struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port string `mapstructure:"port" yaml:"port"`
}

// StoreConfig selects and locates the task backing store.
type StoreConfig struct {
	// Driver is "yaml" or "sqlite".
	Driver string `mapstructure:"driver" yaml:"driver"`
	Path   string `mapstructure:"path" yaml:"path"`
	Table  string `mapstructure:"table" yaml:"table"`
	PIN    string `mapstructure:"pin" yaml:"pin"`
}

// ReminderConfig controls the periodic task-list reminder.
type ReminderConfig struct {
	Enabled  bool          `mapstructure:"enabled" yaml:"enabled"`
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`
}

// LoggingConfig holds log level and output format.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	Mail     MailConfig     `mapstructure:"mail" yaml:"mail"`
	Phone    PhoneConfig    `mapstructure:"phone" yaml:"phone"`
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
	Store    StoreConfig    `mapstructure:"store" yaml:"store"`
	Reminder ReminderConfig `mapstructure:"reminder" yaml:"reminder"`
	Logging  LoggingConfig  `mapstructure:"logging" yaml:"logging"`
}

// EnvPrefix is prepended to environment overrides, e.g. SMSTASK_MAIL_PASSWORD.
const EnvPrefix = "SMSTASK"

// DefaultCutoffPhrases are the gateway footers trimmed from inbound bodies.
var DefaultCutoffPhrases = []string{
	"YOUR ACCOUNT",
	"To respond to this text message, reply to this email or visit Google Voice.",
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/smstask/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "smstask", "config.yaml")
}

// DefaultDataPath returns the default backing file for the given driver.
func DefaultDataPath(driver string) string {
	name := "tasks.yaml"
	if driver == "sqlite" {
		name = "tasks.db"
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", name)
	}
	return filepath.Join(home, ".local", "share", "smstask", name)
}

func setDefaults(v *viper.Viper) {
	// Empty defaults register the keys so AutomaticEnv overrides reach Unmarshal.
	v.SetDefault("mail.address", "")
	v.SetDefault("mail.password", "")
	v.SetDefault("phone.number", "")
	v.SetDefault("store.path", "")
	v.SetDefault("store.pin", "")

	v.SetDefault("mail.imap_host", "imap.gmail.com")
	v.SetDefault("mail.imap_port", "993")
	v.SetDefault("mail.smtp_host", "smtp.gmail.com")
	v.SetDefault("mail.smtp_port", "587")
	v.SetDefault("mail.tls", false)
	v.SetDefault("mail.folder", "INBOX")
	v.SetDefault("mail.poll_interval", "1s")
	v.SetDefault("mail.cutoff_phrases", DefaultCutoffPhrases)
	v.SetDefault("phone.sms_gateway", "@vtext.com")
	v.SetDefault("phone.mms_gateway", "@vzwpix.com")
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", "8007")
	v.SetDefault("store.driver", "yaml")
	v.SetDefault("store.table", "tasks")
	v.SetDefault("reminder.enabled", false)
	v.SetDefault("reminder.interval", "24h")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// LoadConfig reads configuration from the given YAML file path using Viper,
// layering SMSTASK_* environment variables on top. A missing file is not an
// error: defaults and environment still apply.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var pathErr *os.PathError
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &pathErr) && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := &AppConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if cfg.Store.Path == "" {
		cfg.Store.Path = DefaultDataPath(cfg.Store.Driver)
	}
	if cfg.Mail.PollInterval <= 0 {
		cfg.Mail.PollInterval = time.Second
	}

	return cfg, nil
}

var pinPattern = regexp.MustCompile(`^[0-9]{4}$`)

// Validate checks the values every serve run depends on. The mail password
// is not checked here because it may come from the keyring.
func (c *AppConfig) Validate() error {
	var missing []string
	if c.Mail.Address == "" {
		missing = append(missing, "mail.address")
	}
	if c.PhoneDigits() == "" {
		missing = append(missing, "phone.number")
	}
	if c.Store.Table == "" {
		missing = append(missing, "store.table")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required config: %s", strings.Join(missing, ", "))
	}

	switch c.Store.Driver {
	case "yaml", "sqlite":
	default:
		return fmt.Errorf("unknown store.driver %q (want yaml or sqlite)", c.Store.Driver)
	}

	if c.Store.PIN != "" && !pinPattern.MatchString(c.Store.PIN) {
		return fmt.Errorf("store.pin must be exactly 4 digits")
	}

	if c.Reminder.Enabled && c.Reminder.Interval <= 0 {
		return fmt.Errorf("reminder.interval must be positive")
	}

	return nil
}

var nonDigit = regexp.MustCompile(`\D`)

// PhoneDigits returns the configured phone number with formatting removed.
func (c *AppConfig) PhoneDigits() string {
	return nonDigit.ReplaceAllString(c.Phone.Number, "")
}

// Owner is the canonical owner identifier used for tasks created by SMS.
func (c *AppConfig) Owner() string {
	return c.PhoneDigits()
}

// SenderAddress is the gateway address inbound SMS messages arrive from.
func (c *AppConfig) SenderAddress() string {
	return c.PhoneDigits() + c.Phone.SMSGateway
}

// RecipientAddress is the gateway address replies are sent to.
func (c *AppConfig) RecipientAddress() string {
	return c.PhoneDigits() + c.Phone.MMSGateway
}

// ImplicitTLS reports whether a connection to port starts with a TLS
// handshake rather than upgrading with STARTTLS.
func (m MailConfig) ImplicitTLS(port string) bool {
	return m.TLS || port == "993" || port == "465"
}

// ListenAddr is the host:port the HTTP API binds to.
func (c *AppConfig) ListenAddr() string {
	return c.Server.Host + ":" + c.Server.Port
}

// BaseURL is the URL the dispatcher uses to reach the task API.
func (c *AppConfig) BaseURL() string {
	host := c.Server.Host
	if host == "" || host == "0.0.0.0" {
		host = "127.0.0.1"
	}
	return "http://" + host + ":" + c.Server.Port
}
