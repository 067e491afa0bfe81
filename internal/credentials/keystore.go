package credentials

import (
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/zalando/go-keyring"
)

const (
	keystoreService = "mediadesk"
	keystoreUser    = "api-token"
)

// LoadToken reads the API token from the system keychain.
// A missing entry is not an error and yields an empty token.
func LoadToken() (string, error) {
	token, err := keyring.Get(keystoreService, keystoreUser)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read token from keychain: %w", err)
	}
	return token, nil
}

// StoreToken saves the API token in the system keychain
func StoreToken(token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("token must not be empty")
	}
	if err := keyring.Set(keystoreService, keystoreUser, token); err != nil {
		return fmt.Errorf("failed to store token in keychain: %w", err)
	}
	return nil
}

// DeleteToken removes the API token from the keychain
func DeleteToken() error {
	if err := keyring.Delete(keystoreService, keystoreUser); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("failed to delete token: %w", err)
	}
	return nil
}

// IsTokenStored checks if a token exists in the keychain
func IsTokenStored() bool {
	_, err := keyring.Get(keystoreService, keystoreUser)
	return err == nil
}

// ResolveToken prefers an explicitly configured token and falls back to the keychain.
// Keychain failures are logged, not fatal: the backend may not require auth.
func ResolveToken(configured string) string {
	if configured != "" {
		return configured
	}
	token, err := LoadToken()
	if err != nil {
		log.WithError(err).Warn("Keychain unavailable, continuing without API token")
		return ""
	}
	return token
}
