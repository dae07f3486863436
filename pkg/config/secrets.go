package config

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"golang.org/x/crypto/scrypt"
)

// SecretsFileName is the encrypted credential store under .triage/.
//
// Layout: magic, scrypt salt, GCM nonce, then the sealed JSON object of name → value.
// The magic is authenticated as additional data.
const SecretsFileName = "secrets.json.enc"

var secretsMagic = []byte("BTS1")

const (
	saltLen  = 16
	nonceLen = 12
	keyLen   = 32

	// scrypt cost parameters
	scryptN = 1 << 15
	scryptR = 8
	scryptP = 1
)

// ErrSecretsPassword is returned when the secrets file cannot be opened with the password.
var ErrSecretsPassword = errors.New("decryption failed (wrong password or corrupted file)")

// secretStore holds decrypted secrets for the life of the process.
type secretStore struct {
	mu     sync.RWMutex
	values map[string]string
}

//nolint:gochecknoglobals // process-wide credential store
var secrets secretStore

// SecretsPath returns <projectDir>/.triage/secrets.json.enc.
func SecretsPath(projectDir string) string {
	return filepath.Join(projectDir, ProjectConfigDir, SecretsFileName)
}

func SecretsFileExists(projectDir string) bool {
	_, err := os.Stat(SecretsPath(projectDir))
	return err == nil
}

// SetDecryptedSecrets replaces every in-memory secret. nil clears them.
func SetDecryptedSecrets(values map[string]string) {
	secrets.mu.Lock()
	defer secrets.mu.Unlock()
	secrets.values = values
}

func SetSecret(name, value string) {
	secrets.mu.Lock()
	defer secrets.mu.Unlock()
	if secrets.values == nil {
		secrets.values = make(map[string]string)
	}
	secrets.values[name] = value
}

// DeleteSecret removes name from memory. The file is untouched until SaveSecretsToFile.
func DeleteSecret(name string) {
	secrets.mu.Lock()
	defer secrets.mu.Unlock()
	delete(secrets.values, name)
}

// GetSecret looks name up in the decrypted secrets first, then in the environment.
func GetSecret(name string) (string, error) {
	secrets.mu.RLock()
	value := secrets.values[name]
	secrets.mu.RUnlock()
	if value == "" {
		value = os.Getenv(name)
	}
	if value == "" {
		return "", fmt.Errorf("secret %s not found in secrets file or environment", name)
	}
	return value, nil
}

// SecretNames lists the in-memory secrets in sorted order.
func SecretNames() []string {
	secrets.mu.RLock()
	defer secrets.mu.RUnlock()
	return slices.Sorted(maps.Keys(secrets.values))
}

// SaveSecretsToFile seals the in-memory secrets into the project secrets file.
func SaveSecretsToFile(projectDir, password string) error {
	secrets.mu.RLock()
	snapshot := maps.Clone(secrets.values)
	secrets.mu.RUnlock()
	if snapshot == nil {
		snapshot = map[string]string{}
	}
	return EncryptSecretsFile(projectDir, password, snapshot)
}

func newAEAD(password string, salt []byte) (cipher.AEAD, error) {
	pw := []byte(password)
	defer clear(pw)
	key, err := scrypt.Key(pw, salt, scryptN, scryptR, scryptP, keyLen)
	if err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}
	defer clear(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return aead, nil
}

// EncryptSecretsFile replaces the project secrets file. The file is written 0600 through
// a temp file so a crash never leaves a half-written store.
func EncryptSecretsFile(projectDir, password string, values map[string]string) error {
	plaintext, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("failed to marshal secrets: %w", err)
	}
	defer clear(plaintext)

	header := make([]byte, len(secretsMagic)+saltLen+nonceLen)
	copy(header, secretsMagic)
	salt := header[len(secretsMagic) : len(secretsMagic)+saltLen]
	nonce := header[len(secretsMagic)+saltLen:]
	if _, err := rand.Read(header[len(secretsMagic):]); err != nil {
		return fmt.Errorf("failed to generate salt: %w", err)
	}

	aead, err := newAEAD(password, salt)
	if err != nil {
		return err
	}
	sealed := aead.Seal(header, nonce, plaintext, secretsMagic)

	path := SecretsPath(projectDir)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create %s directory: %w", ProjectConfigDir, err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, sealed, 0o600); err != nil {
		return fmt.Errorf("failed to write secrets file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to replace secrets file: %w", err)
	}
	return nil
}

// DecryptSecretsFile opens the project secrets file. Loose permissions are reset to 0600
// first.
func DecryptSecretsFile(projectDir, password string) (map[string]string, error) {
	path := SecretsPath(projectDir)
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat secrets file: %w", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		getLogger().Warn("⚠️  Secrets file has permissions %04o, resetting to 0600", perm)
		if err := os.Chmod(path, 0o600); err != nil {
			return nil, fmt.Errorf("failed to fix file permissions: %w", err)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read secrets file: %w", err)
	}
	headerLen := len(secretsMagic) + saltLen + nonceLen
	if len(data) < headerLen || !bytes.HasPrefix(data, secretsMagic) {
		return nil, errors.New("secrets file is corrupted or in an unknown format")
	}

	aead, err := newAEAD(password, data[len(secretsMagic):len(secretsMagic)+saltLen])
	if err != nil {
		return nil, err
	}
	plaintext, err := aead.Open(nil, data[len(secretsMagic)+saltLen:headerLen], data[headerLen:], secretsMagic)
	if err != nil {
		return nil, ErrSecretsPassword
	}
	defer clear(plaintext)

	var values map[string]string
	if err := json.Unmarshal(plaintext, &values); err != nil {
		return nil, fmt.Errorf("failed to parse secrets: %w", err)
	}
	return values, nil
}
