package sqlite

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/classplanner/internal/repository"
)

// newTestDB returns a fresh in-memory store that is closed when the test ends.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// insertTask is a helper that stores a task-shaped document.
func insertTask(t *testing.T, c repository.Collection, name, classID string, date any, archived bool) string {
	t.Helper()
	id, err := c.Insert(context.Background(), "", repository.Document{
		"name":     name,
		"class_id": classID,
		"date":     date,
		"archived": archived,
	})
	require.NoError(t, err)
	return id
}

func names(docs []repository.Document) []string {
	out := make([]string, 0, len(docs))
	for _, d := range docs {
		out = append(out, d["name"].(string))
	}
	return out
}

// =========================================================================
// INSERT / GET
// =========================================================================

func TestInsert_GeneratesID(t *testing.T) {
	db := newTestDB(t)
	c := db.Collection("classes")

	id, err := c.Insert(context.Background(), "", repository.Document{"name": "Algebra"})
	require.NoError(t, err)
	assert.Len(t, id, 20, "xid ids are 20 characters")

	doc, err := c.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "Algebra", doc["name"])
	assert.Equal(t, id, doc[repository.IDField])
}

func TestInsert_ExplicitID(t *testing.T) {
	db := newTestDB(t)
	c := db.Collection("accounts")

	id, err := c.Insert(context.Background(), "7", repository.Document{"email": "a@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "7", id)

	_, err = c.Insert(context.Background(), "7", repository.Document{"email": "b@example.com"})
	assert.Error(t, err, "duplicate ids must be rejected")
}

func TestGet_NotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.Collection("tasks").Get(context.Background(), "nope")
	if !errors.Is(err, repository.ErrNoDocument) {
		t.Errorf("Get() error = %v, want ErrNoDocument", err)
	}
}

func TestCollectionsAreIsolated(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	_, err := db.Collection("classes").Insert(ctx, "x", repository.Document{"name": "class"})
	require.NoError(t, err)

	_, err = db.Collection("tasks").Get(ctx, "x")
	assert.ErrorIs(t, err, repository.ErrNoDocument)
}

// =========================================================================
// SET / PUSH / DELETE
// =========================================================================

func TestSet_KeepsJSONTypes(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	c := db.Collection("accounts")
	id, _ := c.Insert(ctx, "1", repository.Document{"verified": false})

	require.NoError(t, c.Set(ctx, id, "verified", true))
	require.NoError(t, c.Set(ctx, id, "display_name", "ada"))

	doc, err := c.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, true, doc["verified"])
	assert.Equal(t, "ada", doc["display_name"])
}

func TestSet_MissingDocumentIsNoop(t *testing.T) {
	db := newTestDB(t)
	err := db.Collection("accounts").Set(context.Background(), "404", "verified", true)
	assert.NoError(t, err)
}

func TestSet_RejectsBadFieldNames(t *testing.T) {
	db := newTestDB(t)
	err := db.Collection("accounts").Set(context.Background(), "1", "x') --", true)
	assert.Error(t, err)
}

func TestPush_CreatesAndAppends(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	c := db.Collection("classes")
	id, _ := c.Insert(ctx, "", repository.Document{"name": "Biology"})

	require.NoError(t, c.Push(ctx, id, "member_ids", 3))
	require.NoError(t, c.Push(ctx, id, "member_ids", 5))

	var members []int64
	h := repository.NewHandle(c, id)
	ok, err := h.Get(ctx, "member_ids", &members)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []int64{3, 5}, members)
}

func TestDelete(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	c := db.Collection("tasks")
	id := insertTask(t, c, "essay", "c1", nil, false)

	removed, err := c.Delete(ctx, id)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = c.Delete(ctx, id)
	require.NoError(t, err)
	assert.False(t, removed, "second delete finds nothing")
}

// =========================================================================
// FIND
// =========================================================================

func TestFind_FiltersSortAndLimit(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	c := db.Collection("tasks")

	day := func(d int) time.Time { return time.Date(2024, time.March, d, 9, 0, 0, 0, time.UTC) }
	insertTask(t, c, "quiz", "c1", day(12), false)
	insertTask(t, c, "essay", "c1", day(3), false)
	insertTask(t, c, "old", "c1", day(1), true)
	insertTask(t, c, "other class", "c2", day(4), false)
	insertTask(t, c, "undated", "c1", nil, false)

	docs, err := c.Find(ctx, repository.Query{
		Filters: []repository.Filter{
			repository.Eq("class_id", "c1"),
			repository.Eq("archived", false),
			repository.Gte("date", day(1)),
			repository.Lt("date", day(31)),
		},
		SortField: "date",
		Sort:      repository.Ascending,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"essay", "quiz"}, names(docs))

	docs, err = c.Find(ctx, repository.Query{
		Filters:   []repository.Filter{repository.Eq("class_id", "c1")},
		SortField: "date",
		Sort:      repository.Descending,
		Limit:     2,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"quiz", "essay"}, names(docs))
}

func TestFind_RangeIsHalfOpen(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	c := db.Collection("tasks")

	start := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 7)
	insertTask(t, c, "at start", "c1", start, false)
	insertTask(t, c, "at end", "c1", end, false)

	docs, err := c.Find(ctx, repository.Query{
		Filters: []repository.Filter{repository.Gte("date", start), repository.Lt("date", end)},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"at start"}, names(docs))
}

func TestFind_InOnID(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	c := db.Collection("classes")
	a, _ := c.Insert(ctx, "", repository.Document{"name": "a"})
	_, _ = c.Insert(ctx, "", repository.Document{"name": "b"})
	cc, _ := c.Insert(ctx, "", repository.Document{"name": "c"})

	docs, err := c.Find(ctx, repository.Query{
		Filters: []repository.Filter{repository.In(repository.IDField, []string{a, cc})},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, names(docs))

	docs, err = c.Find(ctx, repository.Query{
		Filters: []repository.Filter{repository.In(repository.IDField, []string{})},
	})
	require.NoError(t, err)
	assert.Empty(t, docs)
}

// =========================================================================
// COUNTERS
// =========================================================================

func TestIncrement_StartsAtOne(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	first, err := db.Increment(ctx, "account_id")
	require.NoError(t, err)
	second, err := db.Increment(ctx, "account_id")
	require.NoError(t, err)

	assert.Equal(t, int64(1), first)
	assert.Equal(t, int64(2), second)
}

func TestIncrement_ConcurrentCallersGetDistinctValues(t *testing.T) {
	db := newTestDB(t)
	const n = 50

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[int64]bool)
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := db.Increment(context.Background(), "account_id")
			if err != nil {
				t.Errorf("Increment() error = %v", err)
				return
			}
			mu.Lock()
			seen[v] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, seen, n, "every caller must get its own value")
	for i := int64(1); i <= n; i++ {
		assert.True(t, seen[i], "missing value %d", i)
	}
}
