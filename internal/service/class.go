package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/classplanner/internal/apperror"
	"github.com/sakif/classplanner/internal/model"
)

const (
	MaxNameLength        = 100
	MaxDescriptionLength = 2000
)

type ClassInput struct {
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description" validate:"max=2000"`
}

// ClassUpdate changes only the fields that are set.
type ClassUpdate struct {
	Name        *string `json:"name" validate:"omitempty,max=100"`
	Description *string `json:"description" validate:"omitempty,max=2000"`
	OwnerEmail  *string `json:"ownerEmail" validate:"omitempty,email"`
}

// ParseArchiveFilter reads the archived query parameter: "" and "false" list
// live entities, "true" archived ones, "all" both.
func ParseArchiveFilter(raw string) (model.ArchiveFilter, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "false", "0":
		return model.OnlyUnarchived, nil
	case "true", "1":
		return model.OnlyArchived, nil
	case "all", "any":
		return model.AnyArchived, nil
	default:
		return 0, apperror.ValidationFailed("archived", "archived must be true, false, or all")
	}
}

type ClassService struct {
	entities *model.Entities
	logger   *slog.Logger
}

func NewClassService(entities *model.Entities, logger *slog.Logger) *ClassService {
	return &ClassService{entities: entities, logger: logger}
}

// class loads a class the actor is allowed access to.
func (s *ClassService) class(ctx context.Context, actor *model.Account, id string, access model.Access) (*model.Class, error) {
	c := s.entities.Class(id)
	if err := model.Guard(ctx, c, actor, access); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *ClassService) Create(ctx context.Context, actor *model.Account, in ClassInput) (*model.ClassView, error) {
	if actor.IsAnonymous() {
		return nil, apperror.Unauthorized("authentication required")
	}
	if err := validateInput(in); err != nil {
		return nil, err
	}
	c, err := s.entities.CreateClass(ctx, actor, in.Name, in.Description)
	if err != nil {
		return nil, fmt.Errorf("service/class: creating: %w", err)
	}
	s.logger.Info("class created",
		slog.String("classID", c.ID()),
		slog.Int64("ownerID", actor.ID()),
	)
	return c.View(ctx)
}

func (s *ClassService) Get(ctx context.Context, actor *model.Account, id string) (*model.ClassView, error) {
	c, err := s.class(ctx, actor, id, model.View)
	if err != nil {
		return nil, err
	}
	return c.View(ctx)
}

// List returns the classes in the actor's list that match the filter.
func (s *ClassService) List(ctx context.Context, actor *model.Account, archived model.ArchiveFilter) ([]*model.ClassView, error) {
	views := []*model.ClassView{}
	if actor.IsAnonymous() {
		return views, nil
	}
	for c, err := range actor.Classes(ctx, archived) {
		if err != nil {
			return nil, fmt.Errorf("service/class: listing for %d: %w", actor.ID(), err)
		}
		v, err := c.View(ctx)
		if err != nil {
			return nil, err
		}
		views = append(views, v)
	}
	return views, nil
}

func (s *ClassService) Update(ctx context.Context, actor *model.Account, id string, in ClassUpdate) (*model.ClassView, error) {
	c, err := s.class(ctx, actor, id, model.Edit)
	if err != nil {
		return nil, err
	}
	if err := validateInput(in); err != nil {
		return nil, err
	}

	if in.Name != nil {
		if err := c.SetName(ctx, *in.Name); err != nil {
			return nil, err
		}
	}
	if in.Description != nil {
		if err := c.SetDescription(ctx, *in.Description); err != nil {
			return nil, err
		}
	}
	if in.OwnerEmail != nil {
		owner, err := s.entities.AccountByEmail(ctx, *in.OwnerEmail)
		if err != nil {
			return nil, err
		}
		if owner.IsAnonymous() {
			return nil, apperror.ValidationFailed("ownerEmail", "no account with that email")
		}
		if err := c.SetOwner(ctx, owner); err != nil {
			return nil, err
		}
		s.logger.Info("class ownership moved",
			slog.String("classID", c.ID()),
			slog.Int64("from", actor.ID()),
			slog.Int64("to", owner.ID()),
		)
	}
	return c.View(ctx)
}

// Archive archives the class, and with cascade every live task in it.
func (s *ClassService) Archive(ctx context.Context, actor *model.Account, id string, cascade bool) (*model.ClassView, error) {
	c, err := s.class(ctx, actor, id, model.Edit)
	if err != nil {
		return nil, err
	}
	if err := c.SetArchived(ctx, true, cascade); err != nil {
		return nil, fmt.Errorf("service/class: archiving %s: %w", id, err)
	}
	return c.View(ctx)
}

func (s *ClassService) Unarchive(ctx context.Context, actor *model.Account, id string) (*model.ClassView, error) {
	c, err := s.class(ctx, actor, id, model.Edit)
	if err != nil {
		return nil, err
	}
	if err := c.SetArchived(ctx, false, false); err != nil {
		return nil, fmt.Errorf("service/class: unarchiving %s: %w", id, err)
	}
	return c.View(ctx)
}

func (s *ClassService) Delete(ctx context.Context, actor *model.Account, id string) error {
	c, err := s.class(ctx, actor, id, model.Edit)
	if err != nil {
		return err
	}
	if err := c.Delete(ctx); err != nil {
		return fmt.Errorf("service/class: deleting %s: %w", id, err)
	}
	s.logger.Info("class deleted", slog.String("classID", id), slog.Int64("by", actor.ID()))
	return nil
}

// Member is what other members of a class see of an account.
type Member struct {
	ID          int64  `json:"id"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
	Owner       bool   `json:"owner"`
}

// Members lists the owner first, then the listed members.
func (s *ClassService) Members(ctx context.Context, actor *model.Account, id string) ([]Member, error) {
	c, err := s.class(ctx, actor, id, model.View)
	if err != nil {
		return nil, err
	}
	ownerID, err := c.OwnerID(ctx)
	if err != nil {
		return nil, err
	}

	members := []Member{}
	for a, err := range c.Members(ctx) {
		if err != nil {
			return nil, err
		}
		if a.ID() == ownerID && len(members) > 0 {
			continue
		}
		v, err := a.View(ctx)
		if err != nil {
			return nil, err
		}
		members = append(members, Member{
			ID:          v.ID,
			DisplayName: v.DisplayName,
			Email:       v.Email,
			Owner:       v.ID == ownerID,
		})
	}
	return members, nil
}

// AddMember grants the account with the given email access to the class.
func (s *ClassService) AddMember(ctx context.Context, actor *model.Account, id, email string) (*model.ClassView, error) {
	c, err := s.class(ctx, actor, id, model.Edit)
	if err != nil {
		return nil, err
	}
	member, err := s.entities.AccountByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if err := c.AddMember(ctx, member); err != nil {
		return nil, err
	}
	return c.View(ctx)
}

func (s *ClassService) RemoveMember(ctx context.Context, actor *model.Account, id string, accountID int64) (*model.ClassView, error) {
	c, err := s.class(ctx, actor, id, model.Edit)
	if err != nil {
		return nil, err
	}
	removed, err := c.RemoveMember(ctx, s.entities.Account(accountID))
	if err != nil {
		return nil, err
	}
	if !removed {
		return nil, apperror.NotFound("member", fmt.Sprint(accountID))
	}
	return c.View(ctx)
}

// Join adds a class the actor can already view to the actor's list.
func (s *ClassService) Join(ctx context.Context, actor *model.Account, id string) (*model.ClassView, error) {
	c, err := s.class(ctx, actor, id, model.View)
	if err != nil {
		return nil, err
	}
	if _, err := actor.Join(ctx, c); err != nil {
		return nil, err
	}
	return c.View(ctx)
}

// Leave drops the class from the actor's list. The owner keeps access; any
// other member loses it.
func (s *ClassService) Leave(ctx context.Context, actor *model.Account, id string) error {
	c, err := s.class(ctx, actor, id, model.View)
	if err != nil {
		return err
	}
	_, err = actor.Leave(ctx, c)
	return err
}

// LeaveInvisible sweeps classes the actor can no longer view from its list.
func (s *ClassService) LeaveInvisible(ctx context.Context, actor *model.Account) (int, error) {
	if actor.IsAnonymous() {
		return 0, apperror.Unauthorized("authentication required")
	}
	n, err := actor.LeaveInvisibleClasses(ctx)
	if err != nil {
		return n, fmt.Errorf("service/class: sweeping classes for %d: %w", actor.ID(), err)
	}
	return n, nil
}
