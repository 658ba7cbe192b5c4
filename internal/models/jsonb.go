package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

//
// RawJSON helper
//

// RawJSON holds a JSON document verbatim. It is stored as jsonb in Postgres
// and as TEXT in SQLite.
type RawJSON []byte

// Value returns the document as a string so lib/pq sends it as text.
func (j RawJSON) Value() (driver.Value, error) {
	if len(j) == 0 {
		return nil, nil
	}
	if !json.Valid(j) {
		return nil, fmt.Errorf("RawJSON: invalid JSON document")
	}
	return string(j), nil
}

func (j *RawJSON) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		*j = nil
	case []byte:
		*j = append(RawJSON(nil), v...)
	case string:
		*j = RawJSON(v)
	default:
		return fmt.Errorf("RawJSON: expected []byte or string, got %T", value)
	}
	return nil
}

// MarshalJSON emits the stored document, or null when empty.
func (j RawJSON) MarshalJSON() ([]byte, error) {
	if len(j) == 0 {
		return []byte("null"), nil
	}
	return j, nil
}

func (j *RawJSON) UnmarshalJSON(data []byte) error {
	*j = append(RawJSON(nil), data...)
	return nil
}
