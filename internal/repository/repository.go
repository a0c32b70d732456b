// Package repository defines the document store contract the entity layer is
// built on, plus Handle, a cached view of a single document.
//
// A store is schema-less: a Collection holds Documents (field name → value)
// addressed by an opaque string id. Concrete stores live in sub-packages
// (sqlite, mongo) and are chosen at start-up in server.New.
//
// Values written through Set/Push/Insert must be JSON-compatible: strings,
// numbers, booleans, time.Time, nil, and slices of those. Reads always go
// through Handle.Get/Decode, which normalise whatever the driver returned.
package repository

import (
	"context"
	"errors"
	"fmt"
	"regexp"
)

// IDField is the reserved field holding a document's identifier. Stores
// include it in every Document they return and accept it in filters.
const IDField = "_id"

// ErrNoDocument is returned by Collection.Get when no document has the id.
var ErrNoDocument = errors.New("repository: no document")

// Document is one schema-less record.
type Document map[string]any

// Store is a set of named collections plus atomic counters.
type Store interface {
	Collection(name string) Collection

	// Increment atomically adds one to the named counter and returns the new
	// value. A counter that doesn't exist yet starts at 1.
	Increment(ctx context.Context, counter string) (int64, error)

	Close() error
}

// Collection is a named group of documents.
//
// Every mutating method is a single-document write; there are no
// multi-document transactions.
type Collection interface {
	// Insert stores doc under id. An empty id asks the store to generate one.
	// The id actually used is returned.
	Insert(ctx context.Context, id string, doc Document) (string, error)
	Get(ctx context.Context, id string) (Document, error)
	Set(ctx context.Context, id, field string, value any) error
	// Push appends value to the array field, creating the array if needed.
	Push(ctx context.Context, id, field string, value any) error
	// Delete reports whether a document was removed.
	Delete(ctx context.Context, id string) (bool, error)
	Find(ctx context.Context, q Query) ([]Document, error)
}

// Op is a filter comparison.
type Op int

const (
	OpEq  Op = iota // field == value
	OpIn            // field is one of value ([]string or []any)
	OpGte           // field >= value
	OpLt            // field < value
)

// Filter is one condition of a Query. All filters of a query must match.
type Filter struct {
	Field string
	Op    Op
	Value any
}

// Eq, In, Gte and Lt build filters.
func Eq(field string, v any) Filter  { return Filter{Field: field, Op: OpEq, Value: v} }
func In(field string, v any) Filter  { return Filter{Field: field, Op: OpIn, Value: v} }
func Gte(field string, v any) Filter { return Filter{Field: field, Op: OpGte, Value: v} }
func Lt(field string, v any) Filter  { return Filter{Field: field, Op: OpLt, Value: v} }

// Sort is the ordering of a Query result.
type Sort int

const (
	Unsorted Sort = iota
	Ascending
	Descending
)

// Query selects documents from a Collection.
type Query struct {
	Filters   []Filter
	SortField string
	Sort      Sort
	Limit     int // 0 = no limit
}

var fieldPattern = regexp.MustCompile(`^[a-z_]+$`)

// ValidateField rejects field names the stores can't safely embed in a path
// expression. Stores call it before every field-addressed operation.
func ValidateField(field string) error {
	if !fieldPattern.MatchString(field) {
		return fmt.Errorf("repository: invalid field name %q", field)
	}
	return nil
}
