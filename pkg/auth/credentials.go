package auth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

var (
	ErrCredentialsNotFound = errors.New("session token not found")
	ErrInvalidCredentials  = errors.New("invalid session token")
	ErrStoreUnavailable    = errors.New("credential store not usable in this environment")
)

// Account is a named session token for one of the archive sites. The
// session cookie is the only credential the downloader ever handles; it
// is passed through to requests unmodified.
type Account struct {
	Name         string    `json:"name"`
	Site         string    `json:"site"`
	Session      string    `json:"session"`
	LastModified time.Time `json:"last_modified"`
}

// CredentialStore is one storage backend for session tokens.
type CredentialStore interface {
	// Store writes the account, replacing any previous token under
	// the same name.
	Store(account *Account) error

	// Retrieve looks up one account by name.
	Retrieve(name string) (*Account, error)

	// List returns every account the backend holds.
	List() ([]*Account, error)

	// Delete removes the named account.
	Delete(name string) error

	// Exists reports whether the backend holds the named account.
	Exists(name string) bool
}

// Manager chains credential stores: writes land in the first store that
// accepts them, reads fall through the chain in order.
type Manager struct {
	stores []CredentialStore
}

// NewManager builds the standard chain: the system keyring when one is
// reachable, the encrypted file vault, and the environment as a
// read-only last resort.
func NewManager() (*Manager, error) {
	var stores []CredentialStore

	if ks, err := NewKeyringStore(); err == nil {
		stores = append(stores, ks)
	}

	configDir, err := getConfigDir()
	if err != nil {
		return nil, fmt.Errorf("resolve config directory: %w", err)
	}
	vault, err := NewEncryptedFileStore(filepath.Join(configDir, "sessions.enc"))
	if err != nil {
		return nil, fmt.Errorf("open encrypted vault: %w", err)
	}
	stores = append(stores, vault, NewEnvironmentStore())

	return &Manager{stores: stores}, nil
}

// Store saves the account into the first store that accepts it.
func (m *Manager) Store(account *Account) error {
	if account.Name == "" {
		return errors.New("account name is required")
	}
	if account.Session == "" {
		return errors.New("session token is required")
	}

	account.LastModified = time.Now()

	var lastErr error
	for _, store := range m.stores {
		if err := store.Store(account); err != nil {
			lastErr = err
			continue
		}
		return nil
	}

	if lastErr != nil {
		return fmt.Errorf("store session token: %w", lastErr)
	}
	return errors.New("no credential stores configured")
}

// Retrieve returns the named account from the first store that has it.
func (m *Manager) Retrieve(name string) (*Account, error) {
	for _, store := range m.stores {
		if account, err := store.Retrieve(name); err == nil && account != nil {
			return account, nil
		}
	}
	return nil, fmt.Errorf("session token not found for account: %s", name)
}

// RetrieveDefault gets the environment token if set, otherwise the first
// stored account.
func (m *Manager) RetrieveDefault() (*Account, error) {
	for _, store := range m.stores {
		env, ok := store.(*EnvironmentStore)
		if !ok {
			continue
		}
		if account, err := env.Retrieve(""); err == nil && account != nil {
			return account, nil
		}
	}

	accounts, err := m.List()
	if err != nil || len(accounts) == 0 {
		return nil, errors.New("no session token found")
	}
	return accounts[0], nil
}

// List merges the accounts of every store. When the same name appears in
// several stores the most recently modified copy wins.
func (m *Manager) List() ([]*Account, error) {
	byName := make(map[string]*Account)
	for _, store := range m.stores {
		accounts, err := store.List()
		if err != nil {
			continue
		}
		for _, account := range accounts {
			existing, ok := byName[account.Name]
			if !ok || account.LastModified.After(existing.LastModified) {
				byName[account.Name] = account
			}
		}
	}

	result := make([]*Account, 0, len(byName))
	for _, account := range byName {
		result = append(result, account)
	}
	return result, nil
}

// Delete removes the named account from every store holding it.
func (m *Manager) Delete(name string) error {
	var deleted bool
	var lastErr error
	for _, store := range m.stores {
		if err := store.Delete(name); err != nil {
			lastErr = err
			continue
		}
		deleted = true
	}

	if deleted {
		return nil
	}
	if lastErr != nil {
		return fmt.Errorf("delete session token: %w", lastErr)
	}
	return fmt.Errorf("session token not found for account: %s", name)
}

// DeleteAll wipes every stored account, ignoring per-account failures.
func (m *Manager) DeleteAll() error {
	accounts, err := m.List()
	if err != nil {
		return err
	}
	for _, account := range accounts {
		_ = m.Delete(account.Name)
	}
	return nil
}

// getConfigDir resolves and creates the per-user config directory.
func getConfigDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(base, "kemonograb")
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("create config directory %s: %w", dir, err)
	}
	return dir, nil
}

// SanitizeAccount copies the account with the token masked for display.
func SanitizeAccount(account *Account) *Account {
	if account == nil {
		return nil
	}
	return &Account{
		Name:         account.Name,
		Site:         account.Site,
		Session:      maskString(account.Session),
		LastModified: account.LastModified,
	}
}

// maskString keeps the first and last four characters of long tokens.
func maskString(s string) string {
	if len(s) <= 8 {
		return "********"
	}
	return s[:4] + "..." + s[len(s)-4:]
}
