package model

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "imap.gmail.com", cfg.Mail.IMAPHost)
	assert.Equal(t, "587", cfg.Mail.SMTPPort)
	assert.Equal(t, "INBOX", cfg.Mail.Folder)
	assert.Equal(t, time.Second, cfg.Mail.PollInterval)
	assert.Equal(t, DefaultCutoffPhrases, cfg.Mail.CutoffPhrases)
	assert.Equal(t, "@vtext.com", cfg.Phone.SMSGateway)
	assert.Equal(t, "@vzwpix.com", cfg.Phone.MMSGateway)
	assert.Equal(t, "yaml", cfg.Store.Driver)
	assert.Equal(t, "tasks", cfg.Store.Table)
	assert.Equal(t, 24*time.Hour, cfg.Reminder.Interval)
	assert.NotEmpty(t, cfg.Store.Path)
}

func TestLoadConfig_FileValues(t *testing.T) {
	path := writeConfig(t, `
mail:
  address: bot@example.com
  poll_interval: 5s
phone:
  number: "(555) 010-0100"
server:
  port: "9000"
store:
  driver: sqlite
  path: /tmp/tasks.db
  pin: "1010"
reminder:
  enabled: true
  interval: 12h
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "bot@example.com", cfg.Mail.Address)
	assert.Equal(t, 5*time.Second, cfg.Mail.PollInterval)
	assert.Equal(t, "5550100100", cfg.PhoneDigits())
	assert.Equal(t, "5550100100", cfg.Owner())
	assert.Equal(t, "5550100100@vtext.com", cfg.SenderAddress())
	assert.Equal(t, "5550100100@vzwpix.com", cfg.RecipientAddress())
	assert.Equal(t, "127.0.0.1:9000", cfg.ListenAddr())
	assert.Equal(t, "http://127.0.0.1:9000", cfg.BaseURL())
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.True(t, cfg.Reminder.Enabled)
	assert.Equal(t, 12*time.Hour, cfg.Reminder.Interval)
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	path := writeConfig(t, "mail:\n  address: file@example.com\n")
	t.Setenv("SMSTASK_MAIL_ADDRESS", "env@example.com")
	t.Setenv("SMSTASK_MAIL_PASSWORD", "hunter2")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "env@example.com", cfg.Mail.Address)
	assert.Equal(t, "hunter2", cfg.Mail.Password)
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "mail: [unterminated")

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *AppConfig {
		return &AppConfig{
			Mail:  MailConfig{Address: "bot@example.com"},
			Phone: PhoneConfig{Number: "5550100"},
			Store: StoreConfig{Driver: "yaml", Table: "tasks"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*AppConfig)
		wantErr string
	}{
		{name: "valid", mutate: func(*AppConfig) {}},
		{name: "missing address", mutate: func(c *AppConfig) { c.Mail.Address = "" }, wantErr: "mail.address"},
		{name: "missing phone", mutate: func(c *AppConfig) { c.Phone.Number = "n/a" }, wantErr: "phone.number"},
		{name: "bad driver", mutate: func(c *AppConfig) { c.Store.Driver = "tinydb" }, wantErr: "store.driver"},
		{name: "short pin", mutate: func(c *AppConfig) { c.Store.PIN = "12" }, wantErr: "store.pin"},
		{name: "alpha pin", mutate: func(c *AppConfig) { c.Store.PIN = "12ab" }, wantErr: "store.pin"},
		{
			name: "reminder without interval",
			mutate: func(c *AppConfig) {
				c.Reminder.Enabled = true
			},
			wantErr: "reminder.interval",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestMailConfig_ImplicitTLS(t *testing.T) {
	m := MailConfig{}
	assert.True(t, m.ImplicitTLS("993"))
	assert.True(t, m.ImplicitTLS("465"))
	assert.False(t, m.ImplicitTLS("587"))
	assert.False(t, m.ImplicitTLS("143"))

	m.TLS = true
	assert.True(t, m.ImplicitTLS("587"))
}
