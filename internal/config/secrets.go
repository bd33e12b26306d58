package config

import (
	"fmt"
	"os"
	"strings"
)

const (
	secretService   = "bidwatch"
	accountUsername = "x_username"
	accountPassword = "x_password"
)

// Credentials holds the publisher login material. Never stored in the
// config file; sourced from environment variables or the secret store.
type Credentials struct {
	Username string
	Password string
}

// SecretStore abstracts the platform secret backend so tests can
// substitute a fake.
type SecretStore interface {
	Get(service, account string) (string, error)
}

// NewSecretStore returns the platform secret store: macOS Keychain via the
// security CLI on darwin, a mode-0600 secrets file elsewhere.
func NewSecretStore() SecretStore {
	return secretReader{}
}

type secretReader struct{}

func (secretReader) Get(service, account string) (string, error) {
	out, err := keychainGet(service, account)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// PublisherCredentials resolves the X login material. Environment
// variables take precedence over the secret store.
func PublisherCredentials(ss SecretStore) (Credentials, error) {
	creds := Credentials{
		Username: os.Getenv("BIDWATCH_X_USERNAME"),
		Password: os.Getenv("BIDWATCH_X_PASSWORD"),
	}

	if creds.Username == "" {
		if v, err := ss.Get(secretService, accountUsername); err == nil {
			creds.Username = v
		}
	}
	if creds.Password == "" {
		if v, err := ss.Get(secretService, accountPassword); err == nil {
			creds.Password = v
		}
	}

	var missing []string
	if creds.Username == "" {
		missing = append(missing, "BIDWATCH_X_USERNAME")
	}
	if creds.Password == "" {
		missing = append(missing, "BIDWATCH_X_PASSWORD")
	}
	if len(missing) > 0 {
		return Credentials{}, fmt.Errorf(
			"missing publisher credentials: set %s or store them with 'bidwatch config set-secret'",
			strings.Join(missing, ", "))
	}

	return creds, nil
}

// SetSecret stores a named secret (x_username or x_password) in the
// platform secret store.
func SetSecret(account, value string) error {
	if account != accountUsername && account != accountPassword {
		return fmt.Errorf("unknown secret %q (valid: %s, %s)", account, accountUsername, accountPassword)
	}
	return keychainSet(secretService, account, value)
}
