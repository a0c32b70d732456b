package service

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/sakif/classplanner/internal/apperror"
	"github.com/sakif/classplanner/internal/model"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

type TaskInput struct {
	Name        string     `json:"name" validate:"required,max=100"`
	Description string     `json:"description" validate:"max=2000"`
	Date        *time.Time `json:"date"`
	Category    string     `json:"category"`
}

// TaskUpdate changes only the fields that are set. ClearDate removes the due
// date and wins over Date.
type TaskUpdate struct {
	Name        *string    `json:"name" validate:"omitempty,max=100"`
	Description *string    `json:"description" validate:"omitempty,max=2000"`
	Date        *time.Time `json:"date"`
	ClearDate   bool       `json:"clearDate"`
	Category    *string    `json:"category"`
}

type TaskService struct {
	entities *model.Entities
	logger   *slog.Logger
}

func NewTaskService(entities *model.Entities, logger *slog.Logger) *TaskService {
	return &TaskService{entities: entities, logger: logger}
}

func (s *TaskService) task(ctx context.Context, actor *model.Account, id string, access model.Access) (*model.Task, error) {
	t := s.entities.Task(id)
	if err := model.Guard(ctx, t, actor, access); err != nil {
		return nil, err
	}
	return t, nil
}

// Create adds a task to a class. Any account that can view the class may
// add to it.
func (s *TaskService) Create(ctx context.Context, actor *model.Account, classID string, in TaskInput) (*model.TaskView, error) {
	c := s.entities.Class(classID)
	if err := model.Guard(ctx, c, actor, model.View); err != nil {
		return nil, err
	}
	if err := validateInput(in); err != nil {
		return nil, err
	}
	category, err := model.ParseCategory(in.Category)
	if err != nil {
		return nil, err
	}

	t, err := c.CreateTask(ctx, model.TaskInput{
		Name:        in.Name,
		Description: in.Description,
		Date:        in.Date,
		Category:    category,
	})
	if err != nil {
		return nil, fmt.Errorf("service/task: creating in class %s: %w", classID, err)
	}
	s.logger.Info("task created",
		slog.String("taskID", t.ID()),
		slog.String("classID", classID),
		slog.Int64("by", actor.ID()),
	)
	return t.View(ctx)
}

func (s *TaskService) Get(ctx context.Context, actor *model.Account, id string) (*model.TaskView, error) {
	t, err := s.task(ctx, actor, id, model.View)
	if err != nil {
		return nil, err
	}
	return t.View(ctx)
}

func (s *TaskService) Update(ctx context.Context, actor *model.Account, id string, in TaskUpdate) (*model.TaskView, error) {
	t, err := s.task(ctx, actor, id, model.Edit)
	if err != nil {
		return nil, err
	}
	if err := validateInput(in); err != nil {
		return nil, err
	}

	if in.Name != nil {
		if err := t.SetName(ctx, *in.Name); err != nil {
			return nil, err
		}
	}
	if in.Description != nil {
		if err := t.SetDescription(ctx, *in.Description); err != nil {
			return nil, err
		}
	}
	switch {
	case in.ClearDate:
		if err := t.SetDate(ctx, nil); err != nil {
			return nil, err
		}
	case in.Date != nil:
		if err := t.SetDate(ctx, in.Date); err != nil {
			return nil, err
		}
	}
	if in.Category != nil {
		if err := t.SetCategory(ctx, model.Category(*in.Category)); err != nil {
			return nil, err
		}
	}
	return t.View(ctx)
}

func (s *TaskService) Archive(ctx context.Context, actor *model.Account, id string) (*model.TaskView, error) {
	return s.setArchived(ctx, actor, id, true)
}

func (s *TaskService) Unarchive(ctx context.Context, actor *model.Account, id string) (*model.TaskView, error) {
	return s.setArchived(ctx, actor, id, false)
}

func (s *TaskService) setArchived(ctx context.Context, actor *model.Account, id string, archived bool) (*model.TaskView, error) {
	t, err := s.task(ctx, actor, id, model.Edit)
	if err != nil {
		return nil, err
	}
	if err := t.SetArchived(ctx, archived); err != nil {
		return nil, fmt.Errorf("service/task: archiving %s: %w", id, err)
	}
	return t.View(ctx)
}

func (s *TaskService) Delete(ctx context.Context, actor *model.Account, id string) error {
	t, err := s.task(ctx, actor, id, model.Edit)
	if err != nil {
		return err
	}
	if err := t.Delete(ctx); err != nil {
		return fmt.Errorf("service/task: deleting %s: %w", id, err)
	}
	s.logger.Info("task deleted", slog.String("taskID", id), slog.Int64("by", actor.ID()))
	return nil
}

// ListForClass lists a class's tasks.
func (s *TaskService) ListForClass(ctx context.Context, actor *model.Account, classID string, q model.TaskQuery) ([]*model.TaskView, error) {
	c := s.entities.Class(classID)
	if err := model.Guard(ctx, c, actor, model.View); err != nil {
		return nil, err
	}
	if err := checkQuery(&q); err != nil {
		return nil, err
	}
	return views(ctx, c.Tasks(ctx, q))
}

// Upcoming lists tasks across every class in the actor's list.
func (s *TaskService) Upcoming(ctx context.Context, actor *model.Account, q model.TaskQuery) ([]*model.TaskView, error) {
	if actor.IsAnonymous() {
		return nil, apperror.Unauthorized("authentication required")
	}
	if err := checkQuery(&q); err != nil {
		return nil, err
	}
	return views(ctx, actor.Tasks(ctx, q))
}

// checkQuery caps the limit and rejects empty ranges.
func checkQuery(q *model.TaskQuery) error {
	if q.Limit < 0 {
		return apperror.ValidationFailed("limit", "limit must not be negative")
	}
	if q.Limit == 0 {
		q.Limit = DefaultListLimit
	}
	if q.Limit > MaxListLimit {
		q.Limit = MaxListLimit
	}
	if q.Range != nil && !q.Range.End.After(q.Range.Start) {
		return apperror.ValidationFailed("to", "the end of the range must be after its start")
	}
	return nil
}

func views(ctx context.Context, tasks iter.Seq2[*model.Task, error]) ([]*model.TaskView, error) {
	out := []*model.TaskView{}
	for t, err := range tasks {
		if err != nil {
			return nil, err
		}
		v, err := t.View(ctx)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
