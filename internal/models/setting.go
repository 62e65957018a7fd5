package models

import (
	"encoding/json"
	"time"
)

// DefaultCategory is assigned to settings written without a category.
const DefaultCategory = "general"

// Setting is a single named configuration entry. Value holds the JSON
// encoding of whatever was stored (scalar, array or object).
type Setting struct {
	ID          uint      `gorm:"primaryKey;autoIncrement" json:"-"`
	Key         string    `gorm:"size:128;not null;uniqueIndex" json:"key"`
	Value       string    `gorm:"type:json" json:"-"`
	Description *string   `gorm:"type:text" json:"description"`
	Category    string    `gorm:"size:64;default:general;index" json:"category"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// TableName keeps the table name stable across GORM naming strategies.
func (Setting) TableName() string {
	return "settings"
}

// MarshalJSON renders Value as embedded JSON rather than a quoted string.
func (s Setting) MarshalJSON() ([]byte, error) {
	type alias Setting
	value := json.RawMessage(s.Value)
	if len(value) == 0 {
		value = json.RawMessage("null")
	}
	return json.Marshal(struct {
		alias
		Value json.RawMessage `json:"value"`
	}{alias(s), value})
}
