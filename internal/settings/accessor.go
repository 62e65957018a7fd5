package settings

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/haven-org/haven/internal/models"
)

// GetSetting returns the stored value for key decoded into T, or def when
// the key is absent. Absence is not an error and nothing is written.
func GetSetting[T any](ctx context.Context, store Store, key string, def T) (T, error) {
	s, err := store.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return def, nil
	}
	if err != nil {
		return def, err
	}
	var v T
	if err := json.Unmarshal([]byte(s.Value), &v); err != nil {
		return def, fmt.Errorf("settings: decode %s: %w", key, err)
	}
	return v, nil
}

// SetSetting encodes value as JSON and upserts it under key. A nil
// description is stored as null and an empty category becomes "general".
func SetSetting(ctx context.Context, store Store, key string, value any, description *string, category string) (*models.Setting, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("settings: encode %s: %w", key, err)
	}
	return store.Upsert(ctx, key, raw, Meta{Description: description, Category: category})
}

// Key is a typed accessor for one well-known setting.
type Key[T any] struct {
	Name        string
	Description string
	Category    string
	Default     T
}

// Get returns the stored value or the key's default.
func (k Key[T]) Get(ctx context.Context, store Store) (T, error) {
	return GetSetting(ctx, store, k.Name, k.Default)
}

// Set stores v with the key's description and category.
func (k Key[T]) Set(ctx context.Context, store Store, v T) (*models.Setting, error) {
	var desc *string
	if k.Description != "" {
		d := k.Description
		desc = &d
	}
	return SetSetting(ctx, store, k.Name, v, desc, k.Category)
}

// Decode unmarshals a raw JSON value into the key's type. Unlike
// json.Unmarshal it rejects null so that a present field always carries a
// concrete value.
func (k Key[T]) Decode(raw json.RawMessage) (T, error) {
	var v T
	if trimmed := bytes.TrimSpace(raw); len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return v, fmt.Errorf("%s: value must not be null", k.Name)
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("%s: %w", k.Name, err)
	}
	return v, nil
}
