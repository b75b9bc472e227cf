package database

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"
)

// ListOptions carries pagination and ordering for GetAll. The query language
// stops here on purpose: equality filters, one order column, limit, offset.
type ListOptions struct {
	Limit   int
	Offset  int
	OrderBy string
	Desc    bool
}

// UpdateOptions configures Update.
type UpdateOptions[E any] struct {
	// FieldNames restricts the update to the named fields. Nil means every
	// key in the field map.
	FieldNames []string
	// SkipNil skips fields whose incoming value is nil. Without it a nil
	// value reaches the field's Assign func, which rejects it for
	// non-nullable fields.
	SkipNil bool
	// Callback runs with the refreshed entity after a successful write. It
	// is invoked only when at least one field actually changed.
	Callback func(*E)
	// Commit commits the transaction after the write; otherwise the change
	// stays pending in the session.
	Commit bool
}

// Store implements the generic entity operations for one schema. A missing
// row is a normal absent result, never an error: Get and Update return
// (nil, nil), Delete is a no-op.
type Store[E any] struct {
	schema *Schema[E]
}

// NewStore builds a store over a schema.
func NewStore[E any](schema *Schema[E]) *Store[E] {
	return &Store[E]{schema: schema}
}

// Schema returns the store's accessor table.
func (st *Store[E]) Schema() *Schema[E] {
	return st.schema
}

// Get returns the first entity matching the equality filters, or (nil, nil)
// when nothing matches.
func (st *Store[E]) Get(ctx context.Context, s *Session, filters map[string]any) (*E, error) {
	items, err := st.GetAll(ctx, s, filters, ListOptions{Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return items[0], nil
}

// GetAll returns every entity matching the equality filters, with optional
// single-column ordering and pagination.
func (st *Store[E]) GetAll(ctx context.Context, s *Session, filters map[string]any, opts ListOptions) ([]*E, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s", strings.Join(st.schema.Columns(), ", "), st.schema.Table)

	args, err := st.appendWhere(&b, filters)
	if err != nil {
		return nil, err
	}

	if opts.OrderBy != "" {
		if st.schema.Field(opts.OrderBy) == nil {
			return nil, fmt.Errorf("unknown order column %q on %s", opts.OrderBy, st.schema.Table)
		}
		fmt.Fprintf(&b, " ORDER BY %s", opts.OrderBy)
		if opts.Desc {
			b.WriteString(" DESC")
		}
	}
	if opts.Limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", opts.Limit)
	}
	if opts.Offset > 0 {
		if opts.Limit <= 0 {
			b.WriteString(" LIMIT -1")
		}
		fmt.Fprintf(&b, " OFFSET %d", opts.Offset)
	}

	rows, err := s.Query(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", st.schema.Table, err)
	}
	defer rows.Close()

	var items []*E
	for rows.Next() {
		e := new(E)
		ptrs := make([]any, len(st.schema.fields))
		for i := range st.schema.fields {
			ptrs[i] = st.schema.fields[i].Ptr(e)
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", st.schema.Table, err)
		}
		items = append(items, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s rows: %w", st.schema.Table, err)
	}
	return items, nil
}

// Create inserts a new row from the field map, commits (or leaves the write
// pending when commit is false), and returns the entity refreshed from
// storage so generated defaults are populated.
func (st *Store[E]) Create(ctx context.Context, s *Session, fields map[string]any, commit bool) (*E, error) {
	e := new(E)
	cols := make([]string, 0, len(fields))
	args := make([]any, 0, len(fields))
	for _, name := range sortedKeys(fields) {
		f := st.schema.Field(name)
		if f == nil {
			return nil, fmt.Errorf("unknown column %q on %s", name, st.schema.Table)
		}
		if err := st.schema.assign(e, f, fields[name]); err != nil {
			return nil, err
		}
		cols = append(cols, name)
		args = append(args, f.Value(e))
	}

	query := fmt.Sprintf("INSERT INTO %s DEFAULT VALUES", st.schema.Table)
	if len(cols) > 0 {
		query = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
			st.schema.Table,
			strings.Join(cols, ", "),
			strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", "))
	}

	result, err := s.Exec(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", st.schema.Table, err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get %s id: %w", st.schema.Table, err)
	}

	if err := st.finish(s, commit); err != nil {
		return nil, err
	}
	return st.refresh(ctx, s, id)
}

// Update loads the entity by id and applies the selected fields, writing
// only when at least one value actually differs (equality comparison).
// Returns (nil, nil) when the id does not exist, and the entity either way
// otherwise. A real change on an entity with an updated_at column stamps it
// with the current time.
func (st *Store[E]) Update(ctx context.Context, s *Session, id int64, fields map[string]any, opts UpdateOptions[E]) (*E, error) {
	e, err := st.Get(ctx, s, map[string]any{"id": id})
	if err != nil || e == nil {
		return nil, err
	}

	names := opts.FieldNames
	if names == nil {
		names = sortedKeys(fields)
	}

	var changed []string
	for _, name := range names {
		value, ok := fields[name]
		if !ok {
			continue
		}
		if opts.SkipNil && value == nil {
			continue
		}
		f := st.schema.Field(name)
		if f == nil {
			return nil, fmt.Errorf("unknown column %q on %s", name, st.schema.Table)
		}
		if valuesEqual(f.Value(e), value) {
			continue
		}
		if err := st.schema.assign(e, f, value); err != nil {
			return nil, err
		}
		changed = append(changed, name)
	}

	if len(changed) > 0 {
		if f := st.schema.Field("updated_at"); f != nil {
			if err := st.schema.assign(e, f, time.Now().UTC()); err != nil {
				return nil, err
			}
			// The column may already be in changed when the caller passed it
			// explicitly; the stamp above wins either way.
			if !slices.Contains(changed, "updated_at") {
				changed = append(changed, "updated_at")
			}
		}

		sets := make([]string, len(changed))
		args := make([]any, 0, len(changed)+1)
		for i, name := range changed {
			sets[i] = name + " = ?"
			args = append(args, st.schema.Field(name).Value(e))
		}
		args = append(args, id)

		query := fmt.Sprintf("UPDATE %s SET %s WHERE id = ?", st.schema.Table, strings.Join(sets, ", "))
		if _, err := s.Exec(ctx, query, args...); err != nil {
			return nil, fmt.Errorf("failed to update %s: %w", st.schema.Table, err)
		}
		if err := st.finish(s, opts.Commit); err != nil {
			return nil, err
		}
		if e, err = st.refresh(ctx, s, id); err != nil {
			return nil, err
		}
		if opts.Callback != nil {
			opts.Callback(e)
		}
	}
	return e, nil
}

// Delete removes the entity by id; a missing row is a no-op. There is no
// soft delete.
func (st *Store[E]) Delete(ctx context.Context, s *Session, id int64, commit bool) error {
	e, err := st.Get(ctx, s, map[string]any{"id": id})
	if err != nil {
		return err
	}
	if e == nil {
		return nil
	}

	query := fmt.Sprintf("DELETE FROM %s WHERE id = ?", st.schema.Table)
	if _, err := s.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("failed to delete %s: %w", st.schema.Table, err)
	}
	if commit {
		return s.Commit()
	}
	return nil
}

func (st *Store[E]) appendWhere(b *strings.Builder, filters map[string]any) ([]any, error) {
	if len(filters) == 0 {
		return nil, nil
	}
	conds := make([]string, 0, len(filters))
	args := make([]any, 0, len(filters))
	for _, name := range sortedKeys(filters) {
		if st.schema.Field(name) == nil {
			return nil, fmt.Errorf("unknown filter column %q on %s", name, st.schema.Table)
		}
		conds = append(conds, name+" = ?")
		args = append(args, filters[name])
	}
	b.WriteString(" WHERE ")
	b.WriteString(strings.Join(conds, " AND "))
	return args, nil
}

func (st *Store[E]) finish(s *Session, commit bool) error {
	if commit {
		if err := s.Commit(); err != nil {
			return fmt.Errorf("failed to commit %s: %w", st.schema.Table, err)
		}
		return nil
	}
	return s.Flush()
}

func (st *Store[E]) refresh(ctx context.Context, s *Session, id int64) (*E, error) {
	e, err := st.Get(ctx, s, map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, fmt.Errorf("%s id %d vanished during refresh", st.schema.Table, id)
	}
	return e, nil
}
