package database

import (
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
)

// FieldDef describes one column of an entity type: how to obtain a scan
// destination for row loading, how to read the current value, and how to
// assign a dynamically typed value. The accessor table is built once at
// startup, so the generic operations never reach for runtime reflection.
type FieldDef[E any] struct {
	// Column is the column name, also used as the key in field maps and
	// serialized representations.
	Column string
	// Ptr returns a pointer to the field, used as a row scan destination.
	Ptr func(*E) any
	// Value returns the field's current value.
	Value func(*E) any
	// Assign stores a dynamically typed value into the field.
	Assign func(*E, any) error
	// MaxLen, when positive, truncates oversized string assignments to this
	// many bytes. Truncation is the declared contract, not an error.
	MaxLen int
}

// Schema is the per-entity-type accessor table backing the generic store
// operations and serialization.
type Schema[E any] struct {
	// Name is the entity type name used by Describe.
	Name string
	// Table is the table name, defaulting to the lower-cased type name.
	Table string
	// Extras maps non-column attribute names to accessors, for serialization
	// of derived or joined values.
	Extras map[string]func(*E) any

	fields []FieldDef[E]
	byName map[string]int
}

// NewSchema builds the accessor table for one entity type.
func NewSchema[E any](name string, fields []FieldDef[E]) *Schema[E] {
	s := &Schema[E]{
		Name:   name,
		Table:  strings.ToLower(name),
		fields: fields,
		byName: make(map[string]int, len(fields)),
	}
	for i, f := range fields {
		s.byName[f.Column] = i
	}
	return s
}

// Field returns the definition for a column name, or nil if unknown.
func (s *Schema[E]) Field(name string) *FieldDef[E] {
	i, ok := s.byName[name]
	if !ok {
		return nil
	}
	return &s.fields[i]
}

// Columns returns the column names in declaration order.
func (s *Schema[E]) Columns() []string {
	cols := make([]string, len(s.fields))
	for i, f := range s.fields {
		cols[i] = f.Column
	}
	return cols
}

// assign stores value into the named field, applying the truncation
// contract for oversized strings.
func (s *Schema[E]) assign(e *E, f *FieldDef[E], value any) error {
	if f.MaxLen > 0 {
		if str, ok := value.(string); ok && len(str) > f.MaxLen {
			log.Warn().
				Str("table", s.Table).
				Str("column", f.Column).
				Int("max_len", f.MaxLen).
				Int("len", len(str)).
				Msg("Truncating oversized string value")
			value = truncateString(str, f.MaxLen)
		}
	}
	if err := f.Assign(e, value); err != nil {
		return fmt.Errorf("%s.%s: %w", s.Table, f.Column, err)
	}
	return nil
}

// truncateString cuts s to at most max bytes without splitting a rune, so a
// truncated value is always valid UTF-8.
func truncateString(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// Describe renders the entity for logs: `Name(id=1, name="x")` when both an
// id and a name are present, the bare id or name when only one is, and an
// empty string otherwise. Zero ids and empty names count as absent.
func (s *Schema[E]) Describe(e *E) string {
	var id, name string
	if f := s.Field("id"); f != nil {
		if v, ok := f.Value(e).(int64); ok && v != 0 {
			id = fmt.Sprintf("%d", v)
		}
	}
	if f := s.Field("name"); f != nil {
		if v, ok := f.Value(e).(string); ok {
			name = v
		}
	}
	switch {
	case id != "" && name != "":
		return fmt.Sprintf("%s(id=%s, name=%q)", s.Name, id, name)
	case id != "":
		return id
	default:
		return name
	}
}

// assignAs adapts a typed setter into a FieldDef Assign func.
func assignAs[E any, V any](set func(*E, V)) func(*E, any) error {
	return func(e *E, value any) error {
		v, ok := value.(V)
		if !ok {
			var want V
			return fmt.Errorf("expected %T, got %T", want, value)
		}
		set(e, v)
		return nil
	}
}

// valuesEqual compares a current column value with an incoming one. Column
// values are scalars, so == suffices, except time.Time: its monotonic clock
// reading must not take part in the comparison.
func valuesEqual(a, b any) bool {
	if ta, ok := a.(time.Time); ok {
		tb, ok := b.(time.Time)
		return ok && ta.Equal(tb)
	}
	return a == b
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
