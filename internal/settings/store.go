// Package settings is the persistent key/value configuration store. Values
// are stored as JSON and read back through typed accessors that fall back to
// a caller-supplied default when a key is absent.
package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/haven-org/haven/internal/models"
)

var (
	// ErrNotFound is returned by Store.Get when no setting has the key.
	ErrNotFound = errors.New("setting not found")
	// ErrInvalidKey is returned for empty or oversized keys.
	ErrInvalidKey = errors.New("invalid setting key")
)

// MaxKeyLength matches the width of the key column.
const MaxKeyLength = 128

// Meta carries the descriptive fields written alongside a value.
type Meta struct {
	Description *string
	Category    string
}

// Store is the persistence port for settings. Implementations must make
// Upsert atomic per key so that a key never has more than one record.
type Store interface {
	// Get returns the setting for key, or ErrNotFound.
	Get(ctx context.Context, key string) (*models.Setting, error)
	// Upsert creates the setting or replaces its value, description and
	// category. value must be valid JSON.
	Upsert(ctx context.Context, key string, value []byte, meta Meta) (*models.Setting, error)
	// List returns settings ordered by key. An empty category means all.
	List(ctx context.Context, category string) ([]models.Setting, error)
	// Ping reports whether the backing storage is reachable.
	Ping(ctx context.Context) error
}

// ValidateKey rejects keys the store cannot hold.
func ValidateKey(key string) error {
	if strings.TrimSpace(key) == "" || len(key) > MaxKeyLength {
		return ErrInvalidKey
	}
	return nil
}

func (m Meta) category() string {
	if m.Category == "" {
		return models.DefaultCategory
	}
	return m.Category
}

func checkValue(key string, value []byte) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if !json.Valid(value) {
		return fmt.Errorf("settings: value for %s is not valid JSON", key)
	}
	return nil
}
