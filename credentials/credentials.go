// Package credentials keeps the database DSN out of the config file.
// The DSN is stored in the system keyring:
// - macOS: Keychain
// - Windows: Credential Manager
// - Linux: Secret Service (libsecret)
//
// A DSN set in the config file or in MINUTES_DATABASE_DSN always wins over
// the stored one.
package credentials

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Sources a resolved DSN can come from.
const (
	SourceConfig  = "config"
	SourceKeyring = "keyring"
)

// Common errors.
var (
	// ErrNoCredentials is returned when no DSN is stored.
	ErrNoCredentials = errors.New("no database credentials stored")
	// ErrInvalidCredentials is returned when a DSN is empty or malformed.
	ErrInvalidCredentials = errors.New("invalid database credentials")
)

// Store manages the stored DSN.
type Store struct {
	backend SecretBackend
}

// NewStore creates a store backed by the system keyring.
func NewStore() *Store {
	return &Store{backend: NewKeyringBackend()}
}

// NewStoreWithBackend creates a store with a custom backend.
func NewStoreWithBackend(backend SecretBackend) *Store {
	return &Store{backend: backend}
}

// SaveDSN stores dsn, replacing any stored value.
func (s *Store) SaveDSN(dsn string) error {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return fmt.Errorf("%w: DSN is empty", ErrInvalidCredentials)
	}
	if strings.Contains(dsn, "://") {
		if _, err := url.Parse(dsn); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
		}
	}
	if err := s.backend.Set(dsn); err != nil {
		return fmt.Errorf("storing DSN: %w", err)
	}
	return nil
}

// LoadDSN returns the stored DSN, or ErrNoCredentials.
func (s *Store) LoadDSN() (string, error) {
	dsn, err := s.backend.Get()
	if err != nil {
		return "", err
	}
	return dsn, nil
}

// Delete removes the stored DSN. It reports whether one was stored.
func (s *Store) Delete() (bool, error) {
	err := s.backend.Delete()
	if errors.Is(err, ErrNoCredentials) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("removing DSN: %w", err)
	}
	return true, nil
}

// Exists reports whether a DSN is stored.
func (s *Store) Exists() bool {
	_, err := s.backend.Get()
	return err == nil
}

// Description names the storage backend.
func (s *Store) Description() string {
	return s.backend.Description()
}

// ResolveDSN returns configured when set, otherwise the stored DSN.
// The second value names where the DSN came from.
func (s *Store) ResolveDSN(configured string) (string, string, error) {
	if dsn := strings.TrimSpace(configured); dsn != "" {
		return dsn, SourceConfig, nil
	}
	dsn, err := s.LoadDSN()
	if err != nil {
		return "", "", err
	}
	return dsn, SourceKeyring, nil
}

// MaskCredential returns a masked version of the credential for display.
func MaskCredential(cred string) string {
	if len(cred) <= 8 {
		return strings.Repeat("*", len(cred))
	}
	return cred[:4] + strings.Repeat("*", len(cred)-8) + cred[len(cred)-4:]
}
