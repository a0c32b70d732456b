package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
)

// Handle is a cached, in-memory view of one document.
//
// The document is read at most once per Handle unless a refresh is asked for;
// every mutation writes straight through to the Collection and then re-reads
// the document, so the cache never holds a value the store doesn't have.
//
// A Handle with an empty id, or whose document is gone, behaves as an empty
// document: reads report "absent" and writes are no-ops. Callers that care
// must check Exists first.
//
// Handles are not safe for concurrent use; each request builds its own.
type Handle struct {
	coll   Collection
	id     string
	doc    Document
	loaded bool
}

// NewHandle returns a Handle for the document with the given id. Nothing is
// read until the first Fetch.
func NewHandle(coll Collection, id string) *Handle {
	return &Handle{coll: coll, id: id}
}

// NewLoadedHandle wraps a document already read by Collection.Find, so
// iterating query results doesn't cost one Get per document.
func NewLoadedHandle(coll Collection, doc Document) *Handle {
	id, _ := doc[IDField].(string)
	return &Handle{coll: coll, id: id, doc: doc, loaded: true}
}

// ID returns the document identifier ("" for an anonymous handle).
func (h *Handle) ID() string {
	return h.id
}

// Fetch returns the cached document, reading it from the store on first use
// or when refresh is set. A missing document is returned as (nil, nil).
func (h *Handle) Fetch(ctx context.Context, refresh bool) (Document, error) {
	if h.id == "" {
		return nil, nil
	}
	if h.loaded && !refresh {
		return h.doc, nil
	}

	doc, err := h.coll.Get(ctx, h.id)
	if err != nil && !errors.Is(err, ErrNoDocument) {
		return nil, fmt.Errorf("repository: fetching %s: %w", h.id, err)
	}
	h.doc = doc // nil when ErrNoDocument
	h.loaded = true
	return h.doc, nil
}

// Exists reports whether the handle has an id and its document is present.
func (h *Handle) Exists(ctx context.Context) (bool, error) {
	doc, err := h.Fetch(ctx, false)
	if err != nil {
		return false, err
	}
	return doc != nil, nil
}

// Get decodes field key of the cached document into dst. It reports false,
// leaving dst untouched, when the document or the field is absent (or null),
// so callers pre-set dst to the default they want.
func (h *Handle) Get(ctx context.Context, key string, dst any) (bool, error) {
	doc, err := h.Fetch(ctx, false)
	if err != nil || doc == nil {
		return false, err
	}
	v, ok := doc[key]
	if !ok || v == nil {
		return false, nil
	}
	if err := convert(v, dst); err != nil {
		return false, fmt.Errorf("repository: decoding %s.%s: %w", h.id, key, err)
	}
	return true, nil
}

// Decode decodes the whole cached document into dst, typically a struct with
// json tags. It reports false when the document doesn't exist.
func (h *Handle) Decode(ctx context.Context, dst any) (bool, error) {
	doc, err := h.Fetch(ctx, false)
	if err != nil || doc == nil {
		return false, err
	}
	if err := convert(map[string]any(doc), dst); err != nil {
		return false, fmt.Errorf("repository: decoding %s: %w", h.id, err)
	}
	return true, nil
}

// Set writes one field and refreshes the cache.
func (h *Handle) Set(ctx context.Context, key string, value any) error {
	if err := ValidateField(key); err != nil {
		return err
	}
	if h.id == "" {
		return nil
	}
	if err := h.coll.Set(ctx, h.id, key, value); err != nil {
		return fmt.Errorf("repository: setting %s.%s: %w", h.id, key, err)
	}
	_, err := h.Fetch(ctx, true)
	return err
}

// Push appends value to the array field key. With dedupe, nothing happens when
// an element equal to value is already in the array. Equality is structural:
// two values are equal when they encode to the same JSON.
//
// Push and Pull re-read the document first so the scan sees current data.
func (h *Handle) Push(ctx context.Context, key string, value any, dedupe bool) error {
	if err := ValidateField(key); err != nil {
		return err
	}
	doc, err := h.Fetch(ctx, true)
	if err != nil || doc == nil {
		return err
	}

	if dedupe {
		elems, err := h.elements(key)
		if err != nil {
			return err
		}
		for _, elem := range elems {
			if equal(elem, value) {
				return nil
			}
		}
	}

	if err := h.coll.Push(ctx, h.id, key, value); err != nil {
		return fmt.Errorf("repository: pushing to %s.%s: %w", h.id, key, err)
	}
	_, err = h.Fetch(ctx, true)
	return err
}

// Pull removes the first element equal to value from the array field key and
// reports whether one was removed.
func (h *Handle) Pull(ctx context.Context, key string, value any) (bool, error) {
	if err := ValidateField(key); err != nil {
		return false, err
	}
	doc, err := h.Fetch(ctx, true)
	if err != nil || doc == nil {
		return false, err
	}

	elems, err := h.elements(key)
	if err != nil {
		return false, err
	}
	for i, elem := range elems {
		if !equal(elem, value) {
			continue
		}
		remaining := make([]any, 0, len(elems)-1)
		remaining = append(remaining, elems[:i]...)
		remaining = append(remaining, elems[i+1:]...)
		if err := h.Set(ctx, key, remaining); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}

// Delete removes the document. The handle then reports it as absent.
func (h *Handle) Delete(ctx context.Context) error {
	if h.id == "" {
		return nil
	}
	if _, err := h.coll.Delete(ctx, h.id); err != nil {
		return fmt.Errorf("repository: deleting %s: %w", h.id, err)
	}
	h.doc = nil
	h.loaded = true
	return nil
}

// elements returns the cached array field as driver-native values. Drivers
// use their own slice types (primitive.A in mongo), hence reflection.
func (h *Handle) elements(key string) ([]any, error) {
	v, ok := h.doc[key]
	if !ok || v == nil {
		return nil, nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice {
		return nil, fmt.Errorf("repository: %s.%s is not an array", h.id, key)
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, nil
}

// convert moves a driver value into dst via its JSON form. Every supported
// value type (including mongo's primitive.DateTime and primitive.A) has a
// JSON encoding, so typed decoding works the same for every store.
func convert(v, dst any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dst)
}

func equal(a, b any) bool {
	ra, errA := json.Marshal(a)
	rb, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(ra, rb)
}
