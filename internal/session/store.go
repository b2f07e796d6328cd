package session

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/99designs/keyring"

	"listing_watcher/internal/fsutil"
)

// ErrNoToken is returned by a TokenStore that holds nothing yet.
var ErrNoToken = errors.New("no session token stored")

// TokenStore persists the session token between restarts.
type TokenStore interface {
	Load() (string, error)
	Save(token string) error
}

// FileStore keeps the token as a single line of text.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) Load() (string, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return "", ErrNoToken
	}
	if err != nil {
		return "", fmt.Errorf("read token file: %w", err)
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", ErrNoToken
	}
	return token, nil
}

func (s *FileStore) Save(token string) error {
	return fsutil.WriteFileAtomic(s.path, []byte(token+"\n"), 0o600)
}

const keyringItemKey = "session-token"

// KeyringStore keeps the token in the system keyring.
type KeyringStore struct {
	ring keyring.Keyring
}

// NewKeyringStore opens the keyring for service. fileDir is used by the
// encrypted-file backend when no system keyring is available.
func NewKeyringStore(service, fileDir string) (*KeyringStore, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: service,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  fileDir,
		FilePasswordFunc:         keyring.FixedStringPrompt(service + "-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return &KeyringStore{ring: ring}, nil
}

// NewKeyringStoreFrom wraps an already opened keyring.
func NewKeyringStoreFrom(ring keyring.Keyring) *KeyringStore {
	return &KeyringStore{ring: ring}
}

func (s *KeyringStore) Load() (string, error) {
	item, err := s.ring.Get(keyringItemKey)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", ErrNoToken
	}
	if err != nil {
		return "", fmt.Errorf("getting session token: %w", err)
	}
	token := strings.TrimSpace(string(item.Data))
	if token == "" {
		return "", ErrNoToken
	}
	return token, nil
}

func (s *KeyringStore) Save(token string) error {
	err := s.ring.Set(keyring.Item{
		Key:   keyringItemKey,
		Data:  []byte(token),
		Label: "listing watcher session token",
	})
	if err != nil {
		return fmt.Errorf("setting session token: %w", err)
	}
	return nil
}
