package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/classplanner/internal/repository"
)

var _ repository.Collection = (*collection)(nil)

// timeLayout is how time.Time values are stored. Fixed width and always UTC,
// so plain string comparison in SQL orders timestamps correctly.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// collection is one logical collection inside the documents table.
type collection struct {
	db   *DB
	name string
}

// Insert stores a new document.
//
// ID GENERATION WITH xid:
// When the caller passes no id we generate an xid: 20 URL-safe characters,
// sortable by creation time. Accounts pass their own id (the counter value).
func (c *collection) Insert(ctx context.Context, id string, doc repository.Document) (string, error) {
	if id == "" {
		id = xid.New().String()
	}

	body := make(map[string]any, len(doc))
	for k, v := range doc {
		if k == repository.IDField {
			continue // the id lives in its own column
		}
		body[k] = normalize(v)
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("sqlite: encoding %s document: %w", c.name, err)
	}

	_, err = c.db.conn.ExecContext(ctx,
		`INSERT INTO documents (collection, id, doc) VALUES (?, ?, ?)`,
		c.name, id, string(raw),
	)
	if err != nil {
		return "", fmt.Errorf("sqlite: inserting into %s: %w", c.name, err)
	}
	return id, nil
}

// Get returns the document with the given id, or repository.ErrNoDocument.
func (c *collection) Get(ctx context.Context, id string) (repository.Document, error) {
	var raw string
	err := c.db.conn.QueryRowContext(ctx,
		`SELECT doc FROM documents WHERE collection = ? AND id = ?`,
		c.name, id,
	).Scan(&raw)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, repository.ErrNoDocument
		}
		return nil, fmt.Errorf("sqlite: getting %s/%s: %w", c.name, id, err)
	}
	return decode(id, raw)
}

// Set replaces one field. The value goes in as JSON text through json(), so
// booleans stay booleans instead of becoming SQLite integers.
//
// A missing id matches no row and is silently a no-op.
func (c *collection) Set(ctx context.Context, id, field string, value any) error {
	if err := repository.ValidateField(field); err != nil {
		return err
	}
	raw, err := json.Marshal(normalize(value))
	if err != nil {
		return fmt.Errorf("sqlite: encoding %s.%s: %w", c.name, field, err)
	}

	_, err = c.db.conn.ExecContext(ctx,
		`UPDATE documents SET doc = json_set(doc, ?, json(?))
		 WHERE collection = ? AND id = ?`,
		path(field), string(raw), c.name, id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: setting %s/%s.%s: %w", c.name, id, field, err)
	}
	return nil
}

// Push appends to an array field in one statement. '$[#]' is JSON1's
// "one past the end" index; a missing or null field starts as [].
func (c *collection) Push(ctx context.Context, id, field string, value any) error {
	if err := repository.ValidateField(field); err != nil {
		return err
	}
	raw, err := json.Marshal(normalize(value))
	if err != nil {
		return fmt.Errorf("sqlite: encoding %s.%s: %w", c.name, field, err)
	}

	p := path(field)
	_, err = c.db.conn.ExecContext(ctx,
		`UPDATE documents
		 SET doc = json_set(doc, ?, json_insert(COALESCE(json_extract(doc, ?), '[]'), '$[#]', json(?)))
		 WHERE collection = ? AND id = ?`,
		p, p, string(raw), c.name, id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: pushing to %s/%s.%s: %w", c.name, id, field, err)
	}
	return nil
}

// Delete removes a document and reports whether it existed.
func (c *collection) Delete(ctx context.Context, id string) (bool, error) {
	result, err := c.db.conn.ExecContext(ctx,
		`DELETE FROM documents WHERE collection = ? AND id = ?`,
		c.name, id,
	)
	if err != nil {
		return false, fmt.Errorf("sqlite: deleting %s/%s: %w", c.name, id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	return n > 0, nil
}

// Find translates a repository.Query into SQL over json_extract expressions.
//
// Without an explicit sort, rows come back in insertion order (rowid), which
// matches what a document database returns for an unsorted scan.
func (c *collection) Find(ctx context.Context, q repository.Query) ([]repository.Document, error) {
	var sb strings.Builder
	args := []any{c.name}
	sb.WriteString(`SELECT id, doc FROM documents WHERE collection = ?`)

	for _, f := range q.Filters {
		cond, condArgs, err := condition(f)
		if err != nil {
			return nil, err
		}
		sb.WriteString(" AND ")
		sb.WriteString(cond)
		args = append(args, condArgs...)
	}

	if q.SortField != "" && q.Sort != repository.Unsorted {
		expr, err := column(q.SortField)
		if err != nil {
			return nil, err
		}
		dir := "ASC"
		if q.Sort == repository.Descending {
			dir = "DESC"
		}
		fmt.Fprintf(&sb, " ORDER BY %s %s, rowid ASC", expr, dir)
	} else {
		sb.WriteString(" ORDER BY rowid ASC")
	}

	if q.Limit > 0 {
		sb.WriteString(" LIMIT ?")
		args = append(args, q.Limit)
	}

	rows, err := c.db.conn.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: querying %s: %w", c.name, err)
	}
	defer rows.Close()

	var docs []repository.Document
	for rows.Next() {
		var id, raw string
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("sqlite: scanning %s row: %w", c.name, err)
		}
		doc, err := decode(id, raw)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating %s: %w", c.name, err)
	}
	return docs, nil
}

// condition renders one filter as a SQL predicate plus its arguments.
func condition(f repository.Filter) (string, []any, error) {
	expr, err := column(f.Field)
	if err != nil {
		return "", nil, err
	}

	switch f.Op {
	case repository.OpEq:
		if f.Value == nil {
			return expr + " IS NULL", nil, nil
		}
		return expr + " = ?", []any{arg(f.Value)}, nil
	case repository.OpIn:
		rv := reflect.ValueOf(f.Value)
		if rv.Kind() != reflect.Slice {
			return "", nil, fmt.Errorf("sqlite: In filter on %s needs a slice, got %T", f.Field, f.Value)
		}
		if rv.Len() == 0 {
			return "0", nil, nil // IN () matches nothing
		}
		marks := make([]string, rv.Len())
		args := make([]any, rv.Len())
		for i := range marks {
			marks[i] = "?"
			args[i] = arg(rv.Index(i).Interface())
		}
		return expr + " IN (" + strings.Join(marks, ", ") + ")", args, nil
	case repository.OpGte:
		return expr + " >= ?", []any{arg(f.Value)}, nil
	case repository.OpLt:
		return expr + " < ?", []any{arg(f.Value)}, nil
	default:
		return "", nil, fmt.Errorf("sqlite: unknown filter op %d", f.Op)
	}
}

// column maps a field name onto the SQL expression that reads it.
func column(field string) (string, error) {
	if field == repository.IDField {
		return "id", nil
	}
	if err := repository.ValidateField(field); err != nil {
		return "", err
	}
	return fmt.Sprintf("json_extract(doc, '%s')", path(field)), nil
}

func path(field string) string {
	return "$." + field
}

// arg converts a filter value to what json_extract returns for the stored
// form: JSON booleans come back as 1/0, times as their fixed-width text.
func arg(v any) any {
	switch x := normalize(v).(type) {
	case bool:
		if x {
			return 1
		}
		return 0
	default:
		return x
	}
}

// normalize rewrites time values (also inside slices) into timeLayout text.
func normalize(v any) any {
	switch x := v.(type) {
	case time.Time:
		return x.UTC().Format(timeLayout)
	case *time.Time:
		if x == nil {
			return nil
		}
		return x.UTC().Format(timeLayout)
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = normalize(e)
		}
		return out
	default:
		return v
	}
}

// decode parses a stored document. UseNumber keeps large integers exact.
func decode(id, raw string) (repository.Document, error) {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var doc repository.Document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("sqlite: decoding document %s: %w", id, err)
	}
	doc[repository.IDField] = id
	return doc, nil
}
