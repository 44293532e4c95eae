package credentials

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/zalando/go-keyring"
)

const (
	// keyringService is the service name used in the system keyring.
	keyringService = "minutes-cli"
	// keyringUser is the account name the DSN is stored under.
	keyringUser = "database-dsn"
)

// ErrKeyringUnavailable indicates the system keyring is not available.
var ErrKeyringUnavailable = errors.New("system keyring unavailable")

// SecretBackend stores a single secret.
type SecretBackend interface {
	// Get returns the secret, or ErrNoCredentials when none is stored.
	Get() (string, error)
	// Set stores the secret, replacing any existing one.
	Set(secret string) error
	// Delete removes the secret, or returns ErrNoCredentials when none is stored.
	Delete() error
	// Description returns a human-readable description of the storage mechanism.
	Description() string
}

// KeyringBackend stores the secret in the system keyring.
type KeyringBackend struct {
	service string
	user    string
}

// NewKeyringBackend creates a backend for the DSN entry.
func NewKeyringBackend() *KeyringBackend {
	return &KeyringBackend{service: keyringService, user: keyringUser}
}

func (b *KeyringBackend) Get() (string, error) {
	secret, err := keyring.Get(b.service, b.user)
	if err != nil {
		return "", keyringError(err)
	}
	return secret, nil
}

func (b *KeyringBackend) Set(secret string) error {
	if err := keyring.Set(b.service, b.user, secret); err != nil {
		return keyringError(err)
	}
	return nil
}

func (b *KeyringBackend) Delete() error {
	if err := keyring.Delete(b.service, b.user); err != nil {
		return keyringError(err)
	}
	return nil
}

// Description returns a description of the keyring for this platform.
func (b *KeyringBackend) Description() string {
	switch runtime.GOOS {
	case "darwin":
		return "macOS Keychain"
	case "windows":
		return "Windows Credential Manager"
	default:
		return "System Keyring (Secret Service)"
	}
}

func keyringError(err error) error {
	if errors.Is(err, keyring.ErrNotFound) {
		return ErrNoCredentials
	}
	return fmt.Errorf("%w: %v", ErrKeyringUnavailable, err)
}

// IsKeyringAvailable checks if the system keyring is accessible.
func IsKeyringAvailable() bool {
	_, err := NewKeyringBackend().Get()
	return err == nil || errors.Is(err, ErrNoCredentials)
}
