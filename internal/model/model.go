// Package model is the entity layer: Account, Class and Task, each a typed
// wrapper around one document in the store.
//
// HOW AN ENTITY WORKS:
// An entity value is a repository.Handle plus an *Entities back-pointer. The
// handle caches the document; typed accessors (Name, Archived, ...) read from
// that cache and setters write straight through to the store. Nothing outside
// this package ever sees a raw field name.
//
// Entity values are cheap and not safe for concurrent use. Build them per
// request through Entities (Account, Class, Task, the Create* factories).
//
// IDENTITY:
// Accounts are identified by an int64 allocated from the store's atomic
// "account_id" counter; 0 is the anonymous account. Classes and tasks use
// store-generated string ids. Two entity values are Equal when their ids are.
package model

import (
	"context"
	"fmt"
	"iter"
	"sort"
	"strings"
	"time"

	"github.com/sakif/classplanner/internal/repository"
)

// Collection and counter names.
const (
	accountsCollection = "accounts"
	classesCollection  = "classes"
	tasksCollection    = "tasks"

	accountCounter = "account_id"
)

// PasswordHasher hashes and verifies passwords. auth.PasswordService
// satisfies it.
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	// Verify returns nil when plaintext matches hash.
	Verify(hash, plaintext string) error
}

// Entities is the entry point to the entity layer. It owns the store, the
// three collections and the collaborators the entities need.
type Entities struct {
	store    repository.Store
	accounts repository.Collection
	classes  repository.Collection
	tasks    repository.Collection
	hasher   PasswordHasher
	now      func() time.Time
}

// NewEntities wires the entity layer to a store and a password hasher.
func NewEntities(store repository.Store, hasher PasswordHasher) *Entities {
	return &Entities{
		store:    store,
		accounts: store.Collection(accountsCollection),
		classes:  store.Collection(classesCollection),
		tasks:    store.Collection(tasksCollection),
		hasher:   hasher,
		now:      time.Now,
	}
}

// WithClock replaces the clock used for creation timestamps. Tests only.
func (e *Entities) WithClock(now func() time.Time) *Entities {
	e.now = now
	return e
}

func (e *Entities) timestamp() time.Time {
	return e.now().UTC()
}

// ArchiveFilter selects entities by their archived flag.
type ArchiveFilter int

const (
	AnyArchived ArchiveFilter = iota
	OnlyUnarchived
	OnlyArchived
)

// filter returns the store filter for f, if any.
func (f ArchiveFilter) filter() (repository.Filter, bool) {
	switch f {
	case OnlyUnarchived:
		return repository.Eq("archived", false), true
	case OnlyArchived:
		return repository.Eq("archived", true), true
	default:
		return repository.Filter{}, false
	}
}

// SortOrder orders tasks by due date. The zero value is ascending.
type SortOrder int

const (
	Ascending SortOrder = iota
	Descending
	Unordered
)

func (o SortOrder) sort() repository.Sort {
	switch o {
	case Ascending:
		return repository.Ascending
	case Descending:
		return repository.Descending
	default:
		return repository.Unsorted
	}
}

// TimeRange is the half-open interval [Start, End).
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// TaskQuery narrows a task listing. The zero value lists every task,
// ascending by date, unlimited.
type TaskQuery struct {
	Archived ArchiveFilter
	Range    *TimeRange
	Order    SortOrder
	Limit    int // 0 = no limit
}

// fieldOr reads one typed field, falling back to def when it is absent.
func fieldOr[T any](ctx context.Context, h *repository.Handle, key string, def T) (T, error) {
	v := def
	ok, err := h.Get(ctx, key, &v)
	if err != nil || !ok {
		return def, err
	}
	return v, nil
}

// seqOf turns a query into a lazy sequence: run is called again every time
// the sequence is ranged over.
func seqOf[T any](run func() ([]T, error)) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		items, err := run()
		if err != nil {
			var zero T
			yield(zero, err)
			return
		}
		for _, item := range items {
			if !yield(item, nil) {
				return
			}
		}
	}
}

// Collect drains a sequence into a slice, stopping at the first error.
func Collect[T any](seq iter.Seq2[T, error]) ([]T, error) {
	var out []T
	for item, err := range seq {
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, nil
}

// findTasks runs one task query against the store.
func (e *Entities) findTasks(ctx context.Context, filters []repository.Filter, q TaskQuery) ([]*Task, error) {
	if f, ok := q.Archived.filter(); ok {
		filters = append(filters, f)
	}
	if q.Range != nil {
		filters = append(filters,
			repository.Gte("date", q.Range.Start.UTC()),
			repository.Lt("date", q.Range.End.UTC()),
		)
	}

	docs, err := e.tasks.Find(ctx, repository.Query{
		Filters:   filters,
		SortField: "date",
		Sort:      q.Order.sort(),
		Limit:     q.Limit,
	})
	if err != nil {
		return nil, fmt.Errorf("model: finding tasks: %w", err)
	}

	tasks := make([]*Task, 0, len(docs))
	for _, doc := range docs {
		tasks = append(tasks, &Task{e: e, h: repository.NewLoadedHandle(e.tasks, doc)})
	}
	return tasks, nil
}

// sortByDate orders tasks by due date; undated tasks sort first, the same
// place a document store puts a null key.
func sortByDate(ctx context.Context, tasks []*Task, order SortOrder) error {
	if order == Unordered {
		return nil
	}
	dates := make(map[*Task]time.Time, len(tasks))
	for _, t := range tasks {
		d, err := t.Date(ctx)
		if err != nil {
			return err
		}
		if d != nil {
			dates[t] = *d
		}
	}
	sort.SliceStable(tasks, func(i, j int) bool {
		a, b := dates[tasks[i]], dates[tasks[j]]
		if order == Descending {
			return a.After(b)
		}
		return a.Before(b)
	})
	return nil
}

// normalizeEmail is the stored, case-folded form of an email address.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// optional stores empty strings as null.
func optional(s string) any {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return s
}
