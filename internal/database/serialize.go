package database

import "time"

// EnumValuer is implemented by enum types that serialize to their
// underlying scalar value.
type EnumValuer interface {
	EnumValue() any
}

// Dicter is implemented by entities, so nested entity values serialize to
// their own representation.
type Dicter interface {
	ToDict() map[string]any
}

// SerializeValue converts a value to its JSON-safe representation:
// timestamps to whole-second Unix epoch offsets (the database does not keep
// sub-second resolution), enum members to their underlying value, maps and
// slices element-wise, and nested entities to their own serialized mapping.
func SerializeValue(value any) any {
	switch v := value.(type) {
	case nil:
		return nil
	case time.Time:
		if v.IsZero() {
			return nil
		}
		return v.Unix()
	case *time.Time:
		if v == nil || v.IsZero() {
			return nil
		}
		return v.Unix()
	case EnumValuer:
		return v.EnumValue()
	case Dicter:
		return v.ToDict()
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = SerializeValue(item)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = SerializeValue(item)
		}
		return out
	default:
		return value
	}
}

// ToDict serializes every column except those in skipColumns, plus every
// extra attribute named in extraFields. Unknown extra names are ignored.
func (s *Schema[E]) ToDict(e *E, skipColumns, extraFields []string) map[string]any {
	skip := make(map[string]bool, len(skipColumns))
	for _, name := range skipColumns {
		skip[name] = true
	}

	result := make(map[string]any, len(s.fields)+len(extraFields))
	for i := range s.fields {
		f := &s.fields[i]
		if skip[f.Column] {
			continue
		}
		result[f.Column] = SerializeValue(f.Value(e))
	}
	for _, name := range extraFields {
		if get, ok := s.Extras[name]; ok {
			result[name] = SerializeValue(get(e))
		}
	}
	return result
}
