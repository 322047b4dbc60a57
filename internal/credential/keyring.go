package credential

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/99designs/keyring"
)

const serviceName = "smstask"

// ErrNotFound is returned when no password is stored for an account.
var ErrNotFound = errors.New("credential not found")

// Vault stores mail account passwords in the system keyring.
type Vault struct {
	ring keyring.Keyring
}

// Open returns a Vault on the first available system backend, falling back
// to an encrypted file under ~/.config/smstask/credentials.
func Open() (*Vault, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  fileDir(),
		FilePasswordFunc:         keyring.FixedStringPrompt("smstask-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return &Vault{ring: ring}, nil
}

// NewVault wraps an existing keyring, e.g. keyring.NewArrayKeyring in tests.
func NewVault(ring keyring.Keyring) *Vault {
	return &Vault{ring: ring}
}

func fileDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "credentials")
	}
	return filepath.Join(home, ".config", serviceName, "credentials")
}

func mailKey(account string) string {
	return "mail-password:" + account
}

// MailPassword returns the stored password for account.
func (v *Vault) MailPassword(account string) (string, error) {
	item, err := v.ring.Get(mailKey(account))
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", fmt.Errorf("%w: %s", ErrNotFound, account)
	}
	if err != nil {
		return "", fmt.Errorf("getting password for %s: %w", account, err)
	}
	return string(item.Data), nil
}

// SetMailPassword stores password for account, replacing any previous value.
func (v *Vault) SetMailPassword(account, password string) error {
	if account == "" {
		return fmt.Errorf("setting password: account is required")
	}
	err := v.ring.Set(keyring.Item{
		Key:         mailKey(account),
		Data:        []byte(password),
		Label:       "smstask mail password",
		Description: account,
	})
	if err != nil {
		return fmt.Errorf("setting password for %s: %w", account, err)
	}
	return nil
}

// DeleteMailPassword removes the stored password for account.
func (v *Vault) DeleteMailPassword(account string) error {
	err := v.ring.Remove(mailKey(account))
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, account)
	}
	if err != nil {
		return fmt.Errorf("deleting password for %s: %w", account, err)
	}
	return nil
}

// ResolvePassword returns configured when it is set, otherwise the password
// stored for account.
func (v *Vault) ResolvePassword(account, configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	if v == nil {
		return "", fmt.Errorf("%w: %s (no keyring available)", ErrNotFound, account)
	}
	return v.MailPassword(account)
}
