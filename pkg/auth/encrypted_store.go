package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/crypto/pbkdf2"
)

const (
	vaultSaltSize   = 16
	vaultKeySize    = 32
	vaultIterations = 200000
	vaultVersion    = 1
)

// vaultEnvelope is the on-disk shape of the session file. Only the
// ciphertext carries secrets; salt and nonce travel in the clear.
type vaultEnvelope struct {
	Version    int       `json:"version"`
	Salt       string    `json:"salt"`
	Ciphertext string    `json:"ciphertext"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// EncryptedFileStore keeps session tokens in a single AES-GCM encrypted
// file. The key is derived from a passphrase with PBKDF2; the passphrase
// comes from KEMONOGRAB_PASSPHRASE or a generated per-user file.
type EncryptedFileStore struct {
	path       string
	passphrase string
	mu         sync.RWMutex
}

// NewEncryptedFileStore opens (or prepares to create) the vault at path.
func NewEncryptedFileStore(path string) (*EncryptedFileStore, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("create vault directory %s: %w", dir, err)
		}
	}

	passphrase, err := resolvePassphrase()
	if err != nil {
		return nil, fmt.Errorf("resolve vault passphrase: %w", err)
	}

	return &EncryptedFileStore{path: path, passphrase: passphrase}, nil
}

// Store writes or replaces one account in the vault.
func (e *EncryptedFileStore) Store(account *Account) error {
	if account == nil || account.Name == "" {
		return ErrInvalidCredentials
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	sessions, err := e.loadSessions()
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	if sessions == nil {
		sessions = make(map[string]Account)
	}

	sessions[account.Name] = *account
	return e.writeSessions(sessions)
}

// Retrieve returns the named account, or ErrCredentialsNotFound.
func (e *EncryptedFileStore) Retrieve(name string) (*Account, error) {
	if name == "" {
		return nil, ErrInvalidCredentials
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	sessions, err := e.loadSessions()
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrCredentialsNotFound
		}
		return nil, err
	}

	account, ok := sessions[name]
	if !ok {
		return nil, ErrCredentialsNotFound
	}
	return &account, nil
}

// List returns every account in the vault. A vault that was never
// written lists as empty.
func (e *EncryptedFileStore) List() ([]*Account, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	sessions, err := e.loadSessions()
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	accounts := make([]*Account, 0, len(sessions))
	for name := range sessions {
		account := sessions[name]
		accounts = append(accounts, &account)
	}
	return accounts, nil
}

// Delete removes one account. Deleting the last account removes the
// vault file itself.
func (e *EncryptedFileStore) Delete(name string) error {
	if name == "" {
		return ErrInvalidCredentials
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	sessions, err := e.loadSessions()
	if err != nil {
		if os.IsNotExist(err) {
			return ErrCredentialsNotFound
		}
		return err
	}

	if _, ok := sessions[name]; !ok {
		return ErrCredentialsNotFound
	}
	delete(sessions, name)

	if len(sessions) == 0 {
		return os.Remove(e.path)
	}
	return e.writeSessions(sessions)
}

// Exists reports whether the named account is in the vault.
func (e *EncryptedFileStore) Exists(name string) bool {
	account, err := e.Retrieve(name)
	return err == nil && account != nil
}

// loadSessions reads and decrypts the vault. The caller distinguishes a
// missing vault via os.IsNotExist on the returned error.
func (e *EncryptedFileStore) loadSessions() (map[string]Account, error) {
	raw, err := os.ReadFile(e.path)
	if err != nil {
		return nil, err
	}

	var env vaultEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("parse vault envelope: %w", err)
	}

	salt, err := base64.StdEncoding.DecodeString(env.Salt)
	if err != nil {
		return nil, fmt.Errorf("decode vault salt: %w", err)
	}
	blob, err := base64.StdEncoding.DecodeString(env.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("decode vault ciphertext: %w", err)
	}

	plaintext, err := gcmOpen(e.deriveKey(salt), blob)
	if err != nil {
		return nil, fmt.Errorf("decrypt vault: %w", err)
	}

	var sessions map[string]Account
	if err := json.Unmarshal(plaintext, &sessions); err != nil {
		return nil, fmt.Errorf("parse decrypted sessions: %w", err)
	}
	return sessions, nil
}

// writeSessions encrypts the full account set under a fresh salt and
// replaces the vault atomically.
func (e *EncryptedFileStore) writeSessions(sessions map[string]Account) error {
	salt := make([]byte, vaultSaltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return fmt.Errorf("generate vault salt: %w", err)
	}

	plaintext, err := json.Marshal(sessions)
	if err != nil {
		return fmt.Errorf("encode sessions: %w", err)
	}

	blob, err := gcmSeal(e.deriveKey(salt), plaintext)
	if err != nil {
		return fmt.Errorf("encrypt sessions: %w", err)
	}

	env := vaultEnvelope{
		Version:    vaultVersion,
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Ciphertext: base64.StdEncoding.EncodeToString(blob),
		UpdatedAt:  time.Now(),
	}

	raw, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return fmt.Errorf("encode vault envelope: %w", err)
	}

	tmp := e.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0600); err != nil {
		return fmt.Errorf("write vault file: %w", err)
	}
	return os.Rename(tmp, e.path)
}

func (e *EncryptedFileStore) deriveKey(salt []byte) []byte {
	return pbkdf2.Key([]byte(e.passphrase), salt, vaultIterations, vaultKeySize, sha256.New)
}

// resolvePassphrase prefers the environment, then a per-user passphrase
// file, and generates one on first use.
func resolvePassphrase() (string, error) {
	if fromEnv := os.Getenv("KEMONOGRAB_PASSPHRASE"); fromEnv != "" {
		return fromEnv, nil
	}

	configDir, err := getConfigDir()
	if err != nil {
		return "", err
	}
	passFile := filepath.Join(configDir, ".passphrase")

	if data, err := os.ReadFile(passFile); err == nil && len(data) > 0 {
		return string(data), nil
	}

	buf := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return "", fmt.Errorf("generate passphrase: %w", err)
	}
	generated := base64.URLEncoding.EncodeToString(buf)

	if err := os.WriteFile(passFile, []byte(generated), 0600); err != nil {
		return "", fmt.Errorf("save passphrase file: %w", err)
	}
	return generated, nil
}

// gcmSeal returns nonce||ciphertext for the given key and plaintext.
func gcmSeal(key, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// gcmOpen reverses gcmSeal.
func gcmOpen(key, blob []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	if len(blob) < gcm.NonceSize() {
		return nil, errors.New("vault ciphertext shorter than nonce")
	}
	nonce, ciphertext := blob[:gcm.NonceSize()], blob[gcm.NonceSize():]
	return gcm.Open(nil, nonce, ciphertext, nil)
}
