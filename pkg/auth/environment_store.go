package auth

import (
	"os"
	"time"
)

const (
	envSession = "KEMONOGRAB_SESSION"
	envSite    = "KEMONOGRAB_SITE"
)

// EnvironmentStore reads a session token straight from the environment.
// It is the read-only tail of the store chain, there for users who
// export KEMONOGRAB_SESSION instead of running the auth commands.
type EnvironmentStore struct{}

// NewEnvironmentStore builds the environment-backed store.
func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{}
}

// Store always fails; the process cannot usefully write its own
// environment.
func (e *EnvironmentStore) Store(account *Account) error {
	return ErrStoreUnavailable
}

// Retrieve builds an Account from the environment. The environment
// carries no account name, so the requested name is echoed back, or
// "default" when the caller asked for any.
func (e *EnvironmentStore) Retrieve(name string) (*Account, error) {
	session := os.Getenv(envSession)
	if session == "" {
		return nil, ErrCredentialsNotFound
	}

	if name == "" {
		name = "default"
	}
	return &Account{
		Name:         name,
		Site:         os.Getenv(envSite),
		Session:      session,
		LastModified: time.Now(),
	}, nil
}

// List returns at most the one environment account.
func (e *EnvironmentStore) List() ([]*Account, error) {
	account, err := e.Retrieve("")
	if err != nil {
		return []*Account{}, nil
	}
	return []*Account{account}, nil
}

// Delete always fails, matching Store.
func (e *EnvironmentStore) Delete(name string) error {
	return ErrStoreUnavailable
}

// Exists reports whether a session token is exported, regardless of the
// name asked for.
func (e *EnvironmentStore) Exists(name string) bool {
	return os.Getenv(envSession) != ""
}
