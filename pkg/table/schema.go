package table

import (
	"errors"
	"fmt"
	"strings"
)

// Schema describes a key/value table.
type Schema struct {
	Name        string
	KeyColumn   string
	ValueColumn string
}

// WithDefaults fills empty column names with the defaults.
func (s Schema) WithDefaults() Schema {
	if s.KeyColumn == "" {
		s.KeyColumn = DefaultKeyColumn
	}
	if s.ValueColumn == "" {
		s.ValueColumn = DefaultValueColumn
	}
	return s
}

var ErrInvalidSchema = errors.New("invalid schema")

func (s Schema) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("%w: table name is required", ErrInvalidSchema)
	}
	if strings.ContainsAny(s.Name, " \t\n") {
		return fmt.Errorf("%w: table name %q contains whitespace", ErrInvalidSchema, s.Name)
	}
	if s.KeyColumn == s.ValueColumn {
		return fmt.Errorf("%w: table %s: key and value column are both %q", ErrInvalidSchema, s.Name, s.KeyColumn)
	}
	return nil
}
