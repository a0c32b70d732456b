package model

import (
	"context"

	"github.com/sakif/classplanner/internal/apperror"
)

// Access is what a request wants to do with an entity.
type Access int

const (
	View Access = iota
	Edit
)

// Guarded is an entity the request guard can check: Class and Task.
type Guarded interface {
	Exists(ctx context.Context) (bool, error)
	CanView(ctx context.Context, actor *Account) (bool, error)
	CanEdit(ctx context.Context, actor *Account) (bool, error)
	kind() string
	ID() string
}

var (
	_ Guarded = (*Class)(nil)
	_ Guarded = (*Task)(nil)
)

// Guard decides whether actor may perform access on entity.
//
// A missing entity, or one the actor can't view, is NotFound: an outsider
// learns nothing about what exists. An entity the actor can view but not
// edit is Forbidden for Edit. A nil actor is anonymous.
func Guard(ctx context.Context, entity Guarded, actor *Account, access Access) error {
	exists, err := entity.Exists(ctx)
	if err != nil {
		return err
	}
	if !exists {
		return apperror.NotFound(entity.kind(), entity.ID())
	}

	visible, err := entity.CanView(ctx, actor)
	if err != nil {
		return err
	}
	if !visible {
		return apperror.NotFound(entity.kind(), entity.ID())
	}

	if access == Edit {
		editable, err := entity.CanEdit(ctx, actor)
		if err != nil {
			return err
		}
		if !editable {
			return apperror.Forbidden("only the class owner can change this " + entity.kind())
		}
	}
	return nil
}

func (c *Class) kind() string { return "class" }
func (t *Task) kind() string  { return "task" }

// CanView reports whether actor owns or is a listed member of the class.
// Nobody can view a missing class.
func (c *Class) CanView(ctx context.Context, actor *Account) (bool, error) {
	if actor.IsAnonymous() {
		return false, nil
	}
	exists, err := c.Exists(ctx)
	if err != nil || !exists {
		return false, err
	}

	owner, err := c.OwnerID(ctx)
	if err != nil {
		return false, err
	}
	if owner == actor.ID() {
		return true, nil
	}

	members, err := c.MemberIDs(ctx)
	if err != nil {
		return false, err
	}
	for _, id := range members {
		if id == actor.ID() {
			return true, nil
		}
	}
	return false, nil
}

// CanEdit reports whether actor owns the class.
func (c *Class) CanEdit(ctx context.Context, actor *Account) (bool, error) {
	if actor.IsAnonymous() {
		return false, nil
	}
	exists, err := c.Exists(ctx)
	if err != nil || !exists {
		return false, err
	}
	owner, err := c.OwnerID(ctx)
	if err != nil {
		return false, err
	}
	return owner == actor.ID(), nil
}

func (t *Task) CanView(ctx context.Context, actor *Account) (bool, error) {
	c, err := t.Class(ctx)
	if err != nil {
		return false, err
	}
	return c.CanView(ctx, actor)
}

func (t *Task) CanEdit(ctx context.Context, actor *Account) (bool, error) {
	c, err := t.Class(ctx)
	if err != nil {
		return false, err
	}
	return c.CanEdit(ctx, actor)
}
