package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/siherrmann/persona/helper"
)

// Metadata is a free-form JSON object, stored as JSONB in Postgres.
// Structured attributes, document content and chunk payloads all use it.
type Metadata map[string]interface{}

// Value implements the driver.Valuer interface for database storage.
// A nil map is stored as an empty object.
func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return m.Marshal()
}

// Scan implements the sql.Scanner interface for database retrieval
func (m *Metadata) Scan(value interface{}) error {
	return m.Unmarshal(value)
}

// Marshal converts Metadata to JSON bytes
func (m Metadata) Marshal() ([]byte, error) {
	return json.Marshal(m)
}

// Unmarshal converts JSON bytes, a JSON string or Metadata to Metadata
func (m *Metadata) Unmarshal(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*m = Metadata{}
		return nil
	case Metadata:
		*m = v
		return nil
	case map[string]interface{}:
		*m = Metadata(v)
		return nil
	case string:
		return m.unmarshalBytes([]byte(v))
	case []byte:
		return m.unmarshalBytes(v)
	default:
		return helper.NewError("byte assertion", errors.New("type assertion to []byte failed"))
	}
}

func (m *Metadata) unmarshalBytes(b []byte) error {
	var decoded map[string]interface{}
	if err := json.Unmarshal(b, &decoded); err != nil {
		return err
	}
	if decoded == nil {
		decoded = map[string]interface{}{}
	}
	*m = decoded
	return nil
}

// Clone returns a shallow copy.
func (m Metadata) Clone() Metadata {
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Merge returns a shallow copy of m with every key of other written over it.
func (m Metadata) Merge(other Metadata) Metadata {
	out := m.Clone()
	for k, v := range other {
		out[k] = v
	}
	return out
}

// String returns the value at key rendered as a string, or "" when absent.
func (m Metadata) String(key string) string {
	v, ok := m[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Strings returns the list at key as strings. Non-list values yield nil.
func (m Metadata) Strings(key string) []string {
	parsed, err := ParseValue(m[key])
	if err != nil || parsed.Kind != KindList {
		return nil
	}
	out := make([]string, 0, len(parsed.List))
	for _, item := range parsed.List {
		out = append(out, formatScalar(item))
	}
	return out
}
