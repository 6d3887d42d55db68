package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"runtime"

	"github.com/zalando/go-keyring"
)

const (
	keyringService = "kemonograb"
	keyringPrefix  = "session_"
)

// KeyringStore keeps session tokens in the operating system keychain.
// Each account is one keyring secret holding the JSON-encoded Account.
type KeyringStore struct{}

// NewKeyringStore probes the keychain with a throwaway write and fails
// when the platform has no usable secret service.
func NewKeyringStore() (*KeyringStore, error) {
	const probeKey = "availability_probe"
	if err := keyring.Set(keyringService, probeKey, "ok"); err != nil {
		return nil, fmt.Errorf("system keyring unavailable: %w", err)
	}
	_ = keyring.Delete(keyringService, probeKey)
	return &KeyringStore{}, nil
}

func sessionKey(name string) string {
	return keyringPrefix + name
}

// Store writes the account into the keychain, replacing any previous
// token under the same name.
func (k *KeyringStore) Store(account *Account) error {
	if account == nil || account.Name == "" {
		return ErrInvalidCredentials
	}

	data, err := json.Marshal(account)
	if err != nil {
		return fmt.Errorf("encode account: %w", err)
	}
	if err := keyring.Set(keyringService, sessionKey(account.Name), string(data)); err != nil {
		return fmt.Errorf("write account to keyring: %w", err)
	}
	return nil
}

// Retrieve reads one account back from the keychain.
func (k *KeyringStore) Retrieve(name string) (*Account, error) {
	if name == "" {
		return nil, ErrInvalidCredentials
	}

	data, err := keyring.Get(keyringService, sessionKey(name))
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, ErrCredentialsNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read account from keyring: %w", err)
	}

	var account Account
	if err := json.Unmarshal([]byte(data), &account); err != nil {
		return nil, fmt.Errorf("decode stored account: %w", err)
	}
	return &account, nil
}

// List always comes back empty. go-keyring cannot enumerate keys, so
// listing is served by the encrypted file store further down the chain.
func (k *KeyringStore) List() ([]*Account, error) {
	return nil, nil
}

// Delete removes one account's token from the keychain.
func (k *KeyringStore) Delete(name string) error {
	if name == "" {
		return ErrInvalidCredentials
	}

	err := keyring.Delete(keyringService, sessionKey(name))
	if errors.Is(err, keyring.ErrNotFound) {
		return ErrCredentialsNotFound
	}
	if err != nil {
		return fmt.Errorf("remove account from keyring: %w", err)
	}
	return nil
}

// Exists reports whether a token is stored under the name.
func (k *KeyringStore) Exists(name string) bool {
	if name == "" {
		return false
	}
	_, err := keyring.Get(keyringService, sessionKey(name))
	return err == nil
}

// IsKeyringAvailable reports whether this platform is expected to have
// a working keychain, without touching it.
func IsKeyringAvailable() bool {
	switch runtime.GOOS {
	case "darwin", "windows":
		return true
	case "linux":
		// The secret service needs a session bus, typically only present
		// in graphical sessions.
		return os.Getenv("DISPLAY") != "" || os.Getenv("WAYLAND_DISPLAY") != ""
	default:
		return false
	}
}
