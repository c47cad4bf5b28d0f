package persistence

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSON is a portable JSON-blob column, generalizing the teacher's Postgres
// JSONB type (internal/db.JSONB) to also serialize cleanly over sqlite's
// TEXT columns.
type JSON map[string]interface{}

// Value implements driver.Valuer.
func (j JSON) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	b, err := json.Marshal(j)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (j *JSON) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, j)
	case string:
		return json.Unmarshal([]byte(v), j)
	default:
		return fmt.Errorf("persistence: cannot scan %T into JSON", value)
	}
}
