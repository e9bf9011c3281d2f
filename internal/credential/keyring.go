package credential

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/99designs/keyring"
)

const (
	serviceName = "notifyd"
	tokenKey    = "api-token"
)

// ErrNoToken means neither the environment nor the keyring holds a token.
var ErrNoToken = errors.New("no api token configured")

// Vault stores the platform API token in the OS keyring. Secrets stay out of
// config files and preference storage.
type Vault struct {
	open func() (keyring.Keyring, error)
}

func NewVault() *Vault {
	return &Vault{open: openKeyring}
}

func openKeyring() (keyring.Keyring, error) {
	dir := filepath.Join(".", ".notifyd", "credentials")
	if home, err := os.UserHomeDir(); err == nil {
		dir = filepath.Join(home, ".config", "notifyd", "credentials")
	}
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  dir,
		FilePasswordFunc:         keyring.FixedStringPrompt(os.Getenv("NOTIFYD_KEYRING_PASSWORD")),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}

func (v *Vault) Token() (string, error) {
	ring, err := v.open()
	if err != nil {
		return "", err
	}
	item, err := ring.Get(tokenKey)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", ErrNoToken
	}
	if err != nil {
		return "", fmt.Errorf("getting token: %w", err)
	}
	return string(item.Data), nil
}

func (v *Vault) SetToken(token string) error {
	ring, err := v.open()
	if err != nil {
		return err
	}
	if err := ring.Set(keyring.Item{Key: tokenKey, Data: []byte(token), Label: "notifyd API token"}); err != nil {
		return fmt.Errorf("setting token: %w", err)
	}
	return nil
}

func (v *Vault) ClearToken() error {
	ring, err := v.open()
	if err != nil {
		return err
	}
	if err := ring.Remove(tokenKey); err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("deleting token: %w", err)
	}
	return nil
}

// Resolve prefers an explicitly configured token over the keyring.
func (v *Vault) Resolve(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	return v.Token()
}
