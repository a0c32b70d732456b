package model

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sakif/classplanner/internal/apperror"
	"github.com/sakif/classplanner/internal/repository"
)

// Category is the kind of work a task is.
type Category string

const (
	Homework     Category = "Homework"
	Exam         Category = "Exam"
	Quiz         Category = "Quiz"
	Test         Category = "Test"
	Project      Category = "Project"
	Presentation Category = "Presentation"
	Classwork    Category = "Classwork"
)

// Categories lists every valid category in display order.
var Categories = []Category{Homework, Exam, Quiz, Test, Project, Presentation, Classwork}

// ParseCategory accepts "" (no category) or one of Categories, ignoring case.
func ParseCategory(s string) (Category, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", nil
	}
	for _, c := range Categories {
		if strings.EqualFold(s, string(c)) {
			return c, nil
		}
	}
	return "", apperror.ValidationFailed("category", fmt.Sprintf("unknown category %q", s))
}

// HasTime reports whether t carries a time of day. A task due at exactly
// midnight is taken to be due on that date with no specific time.
func HasTime(t time.Time) bool {
	h, m, s := t.Clock()
	return h != 0 || m != 0 || s != 0 || t.Nanosecond() != 0
}

// Task is one dated piece of work inside a class. Who may see or change it
// is decided entirely by its class.
type Task struct {
	e *Entities
	h *repository.Handle
}

// TaskInput holds the fields a task is created with.
type TaskInput struct {
	Name        string
	Description string
	Date        *time.Time
	Category    Category
}

// TaskView is the JSON-ready snapshot of a task.
type TaskView struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	ClassID     string     `json:"classId"`
	Date        *time.Time `json:"date,omitempty"`
	HasTime     bool       `json:"hasTime"`
	Category    Category   `json:"category,omitempty"`
	Archived    bool       `json:"archived"`
	DateCreated time.Time  `json:"dateCreated"`
}

type taskDoc struct {
	Name        string     `json:"name"`
	Description *string    `json:"description"`
	ClassID     string     `json:"class_id"`
	Date        *time.Time `json:"date"`
	Category    *Category  `json:"category"`
	Archived    bool       `json:"archived"`
	DateCreated time.Time  `json:"date_created"`
}

// Task returns a handle for the task with the given id.
func (e *Entities) Task(id string) *Task {
	return &Task{e: e, h: repository.NewHandle(e.tasks, id)}
}

// CreateTask stores a new, unarchived task in class c. Dates are kept in UTC.
func (e *Entities) CreateTask(ctx context.Context, c *Class, in TaskInput) (*Task, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, apperror.ValidationFailed("name", "task name must not be empty")
	}
	if _, err := ParseCategory(string(in.Category)); err != nil {
		return nil, err
	}

	doc := repository.Document{
		"name":         name,
		"class_id":     c.ID(),
		"archived":     false,
		"description":  optional(in.Description),
		"date":         nil,
		"category":     optional(string(in.Category)),
		"date_created": e.timestamp(),
	}
	if in.Date != nil {
		doc["date"] = in.Date.UTC()
	}

	id, err := e.tasks.Insert(ctx, "", doc)
	if err != nil {
		return nil, fmt.Errorf("model: inserting task: %w", err)
	}
	return e.Task(id), nil
}

func (t *Task) ID() string {
	if t == nil {
		return ""
	}
	return t.h.ID()
}

// Equal compares ids.
func (t *Task) Equal(other *Task) bool {
	return t.ID() == other.ID()
}

func (t *Task) Exists(ctx context.Context) (bool, error) {
	return t.h.Exists(ctx)
}

func (t *Task) Name(ctx context.Context) (string, error) {
	return fieldOr(ctx, t.h, "name", "")
}

func (t *Task) Description(ctx context.Context) (string, error) {
	return fieldOr(ctx, t.h, "description", "")
}

func (t *Task) ClassID(ctx context.Context) (string, error) {
	return fieldOr(ctx, t.h, "class_id", "")
}

// Class returns the task's class (a missing class for a missing task).
func (t *Task) Class(ctx context.Context) (*Class, error) {
	id, err := t.ClassID(ctx)
	if err != nil {
		return nil, err
	}
	return t.e.Class(id), nil
}

// Owner is the owner of the task's class.
func (t *Task) Owner(ctx context.Context) (*Account, error) {
	c, err := t.Class(ctx)
	if err != nil {
		return nil, err
	}
	return c.Owner(ctx)
}

// Date returns the due date in UTC, or nil when the task has none.
func (t *Task) Date(ctx context.Context) (*time.Time, error) {
	d, err := fieldOr[*time.Time](ctx, t.h, "date", nil)
	if err != nil || d == nil {
		return nil, err
	}
	utc := d.UTC()
	return &utc, nil
}

// HasTime reports whether the due date has a time of day. Undated tasks
// have none.
func (t *Task) HasTime(ctx context.Context) (bool, error) {
	d, err := t.Date(ctx)
	if err != nil || d == nil {
		return false, err
	}
	return HasTime(*d), nil
}

func (t *Task) Category(ctx context.Context) (Category, error) {
	return fieldOr(ctx, t.h, "category", Category(""))
}

func (t *Task) Archived(ctx context.Context) (bool, error) {
	return fieldOr(ctx, t.h, "archived", false)
}

func (t *Task) View(ctx context.Context) (*TaskView, error) {
	var doc taskDoc
	ok, err := t.h.Decode(ctx, &doc)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperror.NotFound("task", t.ID())
	}

	v := &TaskView{
		ID:          t.ID(),
		Name:        doc.Name,
		ClassID:     doc.ClassID,
		Archived:    doc.Archived,
		DateCreated: doc.DateCreated,
	}
	if doc.Description != nil {
		v.Description = *doc.Description
	}
	if doc.Category != nil {
		v.Category = *doc.Category
	}
	if doc.Date != nil {
		d := doc.Date.UTC()
		v.Date = &d
		v.HasTime = HasTime(d)
	}
	return v, nil
}

func (t *Task) SetName(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return apperror.ValidationFailed("name", "task name must not be empty")
	}
	return t.h.Set(ctx, "name", name)
}

func (t *Task) SetDescription(ctx context.Context, description string) error {
	return t.h.Set(ctx, "description", optional(description))
}

// SetDate sets or, with nil, clears the due date.
func (t *Task) SetDate(ctx context.Context, date *time.Time) error {
	if date == nil {
		return t.h.Set(ctx, "date", nil)
	}
	return t.h.Set(ctx, "date", date.UTC())
}

func (t *Task) SetCategory(ctx context.Context, c Category) error {
	c, err := ParseCategory(string(c))
	if err != nil {
		return err
	}
	return t.h.Set(ctx, "category", optional(string(c)))
}

func (t *Task) SetArchived(ctx context.Context, archived bool) error {
	return t.h.Set(ctx, "archived", archived)
}

// Delete removes only the task document.
func (t *Task) Delete(ctx context.Context) error {
	if err := t.h.Delete(ctx); err != nil {
		return fmt.Errorf("model: deleting task %s: %w", t.ID(), err)
	}
	return nil
}
