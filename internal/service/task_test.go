package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/classplanner/internal/apperror"
	"github.com/sakif/classplanner/internal/model"
)

func march(d, h, m int) *time.Time {
	t := time.Date(2024, time.March, d, h, m, 0, 0, time.UTC)
	return &t
}

func names(views []*model.TaskView) []string {
	out := make([]string, 0, len(views))
	for _, v := range views {
		out = append(out, v.Name)
	}
	return out
}

func TestTaskService_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ada := f.verified(t, "ada@example.com")
	algebra := f.class(t, ada, "Algebra")

	v, err := f.tasks.Create(ctx, ada, algebra.ID, TaskInput{
		Name: "Quiz 1", Date: march(5, 14, 30), Category: "quiz",
	})
	require.NoError(t, err)
	assert.Equal(t, model.Quiz, v.Category)
	assert.True(t, v.HasTime)
	assert.Equal(t, algebra.ID, v.ClassID)

	got, err := f.tasks.Get(ctx, ada, v.ID)
	require.NoError(t, err)
	assert.Equal(t, v, got)

	_, err = f.tasks.Create(ctx, ada, algebra.ID, TaskInput{Name: "x", Category: "chores"})
	assert.ErrorIs(t, err, apperror.ErrValidation)
	_, err = f.tasks.Create(ctx, ada, algebra.ID, TaskInput{Name: ""})
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestTaskService_MembersCreateOwnersEdit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ada := f.verified(t, "ada@example.com")
	bob := f.verified(t, "bob@example.com")
	eve := f.verified(t, "eve@example.com")
	algebra := f.class(t, ada, "Algebra")
	_, err := f.classes.AddMember(ctx, ada, algebra.ID, "bob@example.com")
	require.NoError(t, err)

	_, err = f.tasks.Create(ctx, eve, algebra.ID, TaskInput{Name: "spam"})
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	v, err := f.tasks.Create(ctx, bob, algebra.ID, TaskInput{Name: "homework"})
	require.NoError(t, err)

	_, err = f.tasks.Get(ctx, eve, v.ID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
	_, err = f.tasks.Update(ctx, bob, v.ID, TaskUpdate{Name: ptr("renamed")})
	assert.ErrorIs(t, err, apperror.ErrForbidden)
	assert.ErrorIs(t, f.tasks.Delete(ctx, bob, v.ID), apperror.ErrForbidden)

	require.NoError(t, f.tasks.Delete(ctx, ada, v.ID))
	_, err = f.tasks.Get(ctx, ada, v.ID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestTaskService_Update(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ada := f.verified(t, "ada@example.com")
	algebra := f.class(t, ada, "Algebra")
	v, err := f.tasks.Create(ctx, ada, algebra.ID, TaskInput{Name: "essay"})
	require.NoError(t, err)
	assert.Nil(t, v.Date)

	v, err = f.tasks.Update(ctx, ada, v.ID, TaskUpdate{
		Name: ptr("final essay"), Date: march(20, 0, 0), Category: ptr("Project"),
	})
	require.NoError(t, err)
	assert.Equal(t, "final essay", v.Name)
	require.NotNil(t, v.Date)
	assert.False(t, v.HasTime)
	assert.Equal(t, model.Project, v.Category)

	v, err = f.tasks.Update(ctx, ada, v.ID, TaskUpdate{ClearDate: true, Date: march(21, 0, 0), Category: ptr("")})
	require.NoError(t, err)
	assert.Nil(t, v.Date)
	assert.Empty(t, v.Category)

	v, err = f.tasks.Archive(ctx, ada, v.ID)
	require.NoError(t, err)
	assert.True(t, v.Archived)
	v, err = f.tasks.Unarchive(ctx, ada, v.ID)
	require.NoError(t, err)
	assert.False(t, v.Archived)
}

func TestTaskService_ListForClass(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ada := f.verified(t, "ada@example.com")
	algebra := f.class(t, ada, "Algebra")

	for _, in := range []TaskInput{
		{Name: "late", Date: march(20, 0, 0)},
		{Name: "early", Date: march(2, 0, 0)},
		{Name: "middle", Date: march(10, 9, 0)},
	} {
		_, err := f.tasks.Create(ctx, ada, algebra.ID, in)
		require.NoError(t, err)
	}

	all, err := f.tasks.ListForClass(ctx, ada, algebra.ID, model.TaskQuery{Archived: model.OnlyUnarchived})
	require.NoError(t, err)
	assert.Equal(t, []string{"early", "middle", "late"}, names(all))

	ranged, err := f.tasks.ListForClass(ctx, ada, algebra.ID, model.TaskQuery{
		Range: &model.TimeRange{Start: *march(2, 0, 0), End: *march(20, 0, 0)},
		Order: model.Descending,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"middle", "early"}, names(ranged))

	_, err = f.tasks.ListForClass(ctx, ada, algebra.ID, model.TaskQuery{
		Range: &model.TimeRange{Start: *march(20, 0, 0), End: *march(2, 0, 0)},
	})
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestTaskService_UpcomingAcrossClasses(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ada := f.verified(t, "ada@example.com")
	algebra := f.class(t, ada, "Algebra")
	history := f.class(t, ada, "History")

	_, err := f.tasks.Create(ctx, ada, algebra.ID, TaskInput{Name: "b", Date: march(12, 0, 0)})
	require.NoError(t, err)
	_, err = f.tasks.Create(ctx, ada, history.ID, TaskInput{Name: "a", Date: march(11, 0, 0)})
	require.NoError(t, err)
	_, err = f.tasks.Create(ctx, ada, history.ID, TaskInput{Name: "c", Date: march(13, 0, 0)})
	require.NoError(t, err)

	got, err := f.tasks.Upcoming(ctx, ada, model.TaskQuery{Archived: model.OnlyUnarchived, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, names(got))

	_, err = f.tasks.Upcoming(ctx, f.entities.Anonymous(), model.TaskQuery{})
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)
}

func TestCheckQuery_Limits(t *testing.T) {
	q := model.TaskQuery{}
	require.NoError(t, checkQuery(&q))
	assert.Equal(t, DefaultListLimit, q.Limit)

	q = model.TaskQuery{Limit: MaxListLimit + 1}
	require.NoError(t, checkQuery(&q))
	assert.Equal(t, MaxListLimit, q.Limit)

	q = model.TaskQuery{Limit: -1}
	assert.ErrorIs(t, checkQuery(&q), apperror.ErrValidation)
}
