package model

import (
	"context"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/sakif/classplanner/internal/apperror"
	"github.com/sakif/classplanner/internal/repository"
)

// Class groups tasks. Its owner is always a member, listed or not, and is
// the only account allowed to edit it or its tasks.
type Class struct {
	e *Entities
	h *repository.Handle
}

// ClassView is the JSON-ready snapshot of a class.
type ClassView struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	OwnerID     int64     `json:"ownerId"`
	MemberIDs   []int64   `json:"memberIds"`
	Archived    bool      `json:"archived"`
	DateCreated time.Time `json:"dateCreated"`
}

type classDoc struct {
	ID          string    `json:"_id"`
	Name        string    `json:"name"`
	Description *string   `json:"description"`
	OwnerID     int64     `json:"owner_id"`
	MemberIDs   []int64   `json:"member_ids"`
	Archived    bool      `json:"archived"`
	DateCreated time.Time `json:"date_created"`
}

// Class returns a handle for the class with the given id.
func (e *Entities) Class(id string) *Class {
	return &Class{e: e, h: repository.NewHandle(e.classes, id)}
}

// CreateClass creates a class owned by owner and joins owner to it.
func (e *Entities) CreateClass(ctx context.Context, owner *Account, name, description string) (*Class, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperror.ValidationFailed("name", "class name must not be empty")
	}
	if owner.IsAnonymous() {
		return nil, apperror.Unauthorized("log in to create a class")
	}

	id, err := e.classes.Insert(ctx, "", repository.Document{
		"name":         name,
		"owner_id":     owner.ID(),
		"description":  optional(description),
		"archived":     false,
		"date_created": e.timestamp(),
		"member_ids":   []int64{},
	})
	if err != nil {
		return nil, fmt.Errorf("model: inserting class: %w", err)
	}

	c := e.Class(id)
	if _, err := owner.Join(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Class) ID() string {
	if c == nil {
		return ""
	}
	return c.h.ID()
}

// Equal compares ids.
func (c *Class) Equal(other *Class) bool {
	return c.ID() == other.ID()
}

func (c *Class) Exists(ctx context.Context) (bool, error) {
	return c.h.Exists(ctx)
}

func (c *Class) Name(ctx context.Context) (string, error) {
	return fieldOr(ctx, c.h, "name", "")
}

func (c *Class) Description(ctx context.Context) (string, error) {
	return fieldOr(ctx, c.h, "description", "")
}

func (c *Class) OwnerID(ctx context.Context) (int64, error) {
	return fieldOr(ctx, c.h, "owner_id", int64(0))
}

// Owner returns the owning account (anonymous for a missing class).
func (c *Class) Owner(ctx context.Context) (*Account, error) {
	id, err := c.OwnerID(ctx)
	if err != nil {
		return nil, err
	}
	return c.e.Account(id), nil
}

func (c *Class) MemberIDs(ctx context.Context) ([]int64, error) {
	return fieldOr(ctx, c.h, "member_ids", []int64{})
}

func (c *Class) Archived(ctx context.Context) (bool, error) {
	return fieldOr(ctx, c.h, "archived", false)
}

func (c *Class) View(ctx context.Context) (*ClassView, error) {
	var doc classDoc
	ok, err := c.h.Decode(ctx, &doc)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperror.NotFound("class", c.ID())
	}
	v := &ClassView{
		ID:          c.ID(),
		Name:        doc.Name,
		OwnerID:     doc.OwnerID,
		MemberIDs:   doc.MemberIDs,
		Archived:    doc.Archived,
		DateCreated: doc.DateCreated,
	}
	if doc.Description != nil {
		v.Description = *doc.Description
	}
	if v.MemberIDs == nil {
		v.MemberIDs = []int64{}
	}
	return v, nil
}

// Members yields the owner first, then every listed member.
func (c *Class) Members(ctx context.Context) iter.Seq2[*Account, error] {
	return seqOf(func() ([]*Account, error) {
		exists, err := c.Exists(ctx)
		if err != nil || !exists {
			return nil, err
		}
		owner, err := c.Owner(ctx)
		if err != nil {
			return nil, err
		}
		ids, err := c.MemberIDs(ctx)
		if err != nil {
			return nil, err
		}

		members := make([]*Account, 0, len(ids)+1)
		members = append(members, owner)
		for _, id := range ids {
			members = append(members, c.e.Account(id))
		}
		return members, nil
	})
}

// Tasks queries the class's tasks. Date ranges are start-inclusive and
// end-exclusive; undated tasks never match a range.
func (c *Class) Tasks(ctx context.Context, q TaskQuery) iter.Seq2[*Task, error] {
	return seqOf(func() ([]*Task, error) {
		return c.e.findTasks(ctx, []repository.Filter{repository.Eq("class_id", c.ID())}, q)
	})
}

// CreateTask adds a task to the class.
func (c *Class) CreateTask(ctx context.Context, in TaskInput) (*Task, error) {
	return c.e.CreateTask(ctx, c, in)
}

// AddMember lets account view the class. The account still has to Join to
// see the class in its own list.
func (c *Class) AddMember(ctx context.Context, a *Account) error {
	if a.IsAnonymous() {
		return apperror.ValidationFailed("email", "no account with that email")
	}
	if err := c.h.Push(ctx, "member_ids", a.ID(), true); err != nil {
		return fmt.Errorf("model: adding account %d to class %s: %w", a.ID(), c.ID(), err)
	}
	return nil
}

// RemoveMember revokes a member's access and unlinks the class from the
// member's list. The owner can't be removed.
func (c *Class) RemoveMember(ctx context.Context, a *Account) (bool, error) {
	owner, err := c.OwnerID(ctx)
	if err != nil {
		return false, err
	}
	if owner == a.ID() {
		return false, apperror.ValidationFailed("accountId", "the owner can't be removed from a class")
	}

	removed, err := c.h.Pull(ctx, "member_ids", a.ID())
	if err != nil {
		return false, fmt.Errorf("model: removing account %d from class %s: %w", a.ID(), c.ID(), err)
	}
	if _, err := a.unlink(ctx, c.ID()); err != nil {
		return false, err
	}
	return removed, nil
}

func (c *Class) SetName(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return apperror.ValidationFailed("name", "class name must not be empty")
	}
	return c.h.Set(ctx, "name", name)
}

// SetDescription stores the trimmed description; empty clears it.
func (c *Class) SetDescription(ctx context.Context, description string) error {
	return c.h.Set(ctx, "description", optional(description))
}

// SetOwner hands the class to another account. The new owner gets the class
// in its list. The previous owner loses it unless it is also a member, so no
// account is left listing a class it can't view.
func (c *Class) SetOwner(ctx context.Context, a *Account) error {
	if a.IsAnonymous() {
		return apperror.ValidationFailed("ownerId", "a class needs an owner")
	}
	prev, err := c.OwnerID(ctx)
	if err != nil {
		return err
	}
	if prev == a.ID() {
		return nil
	}

	if err := c.h.Set(ctx, "owner_id", a.ID()); err != nil {
		return err
	}
	if _, err := a.Join(ctx, c); err != nil {
		return err
	}

	former := c.e.Account(prev)
	visible, err := c.CanView(ctx, former)
	if err != nil || visible {
		return err
	}
	if _, err := former.unlink(ctx, c.ID()); err != nil {
		return err
	}
	return nil
}

// SetArchived sets the archived flag. Archiving with cascade first archives
// every unarchived task of the class; unarchiving never touches tasks.
//
// The task writes and the final flag write are independent: a failure part
// way through leaves some tasks archived and the class not.
func (c *Class) SetArchived(ctx context.Context, archived, cascade bool) error {
	if archived && cascade {
		for t, err := range c.Tasks(ctx, TaskQuery{Archived: OnlyUnarchived, Order: Unordered}) {
			if err != nil {
				return err
			}
			if err := t.SetArchived(ctx, true); err != nil {
				return err
			}
		}
	}
	return c.h.Set(ctx, "archived", archived)
}

// Delete removes the class, every task in it, and the class id from the
// owner's and every member's list. Like SetArchived it is a sequence of
// single-document writes.
func (c *Class) Delete(ctx context.Context) error {
	for t, err := range c.Tasks(ctx, TaskQuery{Order: Unordered}) {
		if err != nil {
			return err
		}
		if err := t.Delete(ctx); err != nil {
			return err
		}
	}

	for m, err := range c.Members(ctx) {
		if err != nil {
			return err
		}
		if _, err := m.unlink(ctx, c.ID()); err != nil {
			return err
		}
	}

	if err := c.h.Delete(ctx); err != nil {
		return fmt.Errorf("model: deleting class %s: %w", c.ID(), err)
	}
	return nil
}
