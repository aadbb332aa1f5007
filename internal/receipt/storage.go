package receipt

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Storage defines the object storage operations for receipt images. Keys are
// slash-separated object keys, not filesystem paths.
type Storage interface {
	// Save stores an object and returns its key.
	Save(key string, data []byte) (string, error)

	// Get retrieves an object by key.
	Get(key string) ([]byte, error)

	// Exists reports whether an object is present.
	Exists(key string) (bool, error)

	// Delete removes an object.
	Delete(key string) error
}

// ObjectKey builds the canonical key for a receipt image:
// uploads/{user_id}/{receipt_id}{ext}.
func ObjectKey(userID, receiptID, ext string) string {
	return fmt.Sprintf("uploads/%s/%s%s", userID, receiptID, ext)
}

// LocalStorage implements Storage on the local filesystem, mapping object
// keys onto a directory tree under basePath.
type LocalStorage struct {
	basePath string
}

// NewLocalStorage creates a LocalStorage rooted at basePath.
func NewLocalStorage(basePath string) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}
	return &LocalStorage{basePath: basePath}, nil
}

// resolve maps an object key to a path under basePath, rejecting keys that
// would escape it.
func (l *LocalStorage) resolve(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) || filepath.IsAbs(clean) {
		return "", fmt.Errorf("invalid object key: %q", key)
	}
	return filepath.Join(l.basePath, clean), nil
}

// Save stores an object, creating intermediate directories as needed.
func (l *LocalStorage) Save(key string, data []byte) (string, error) {
	path, err := l.resolve(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("creating object directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("writing object: %w", err)
	}
	return key, nil
}

// Get retrieves an object by key.
func (l *LocalStorage) Get(key string) ([]byte, error) {
	path, err := l.resolve(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading object: %w", err)
	}
	return data, nil
}

// Exists reports whether an object is present.
func (l *LocalStorage) Exists(key string) (bool, error) {
	path, err := l.resolve(key)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("checking object: %w", err)
	}
	return true, nil
}

// Delete removes an object.
func (l *LocalStorage) Delete(key string) error {
	path, err := l.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("deleting object: %w", err)
	}
	return nil
}
