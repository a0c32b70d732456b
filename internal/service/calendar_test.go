package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/classplanner/internal/apperror"
)

func TestCalendarService_Month(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ada := f.verified(t, "ada@example.com")
	algebra := f.class(t, ada, "Algebra")
	_, err := f.tasks.Create(ctx, ada, algebra.ID, TaskInput{Name: "quiz", Date: march(5, 14, 30)})
	require.NoError(t, err)

	cal, err := f.calendar.Month(ctx, ada, 2024, 3)
	require.NoError(t, err)
	require.Len(t, cal.Weeks, 6)
	for _, w := range cal.Weeks {
		assert.Len(t, w, 7)
	}

	first := cal.Weeks[0][0]
	assert.False(t, first.InMonth, "Feb 25 leads the grid")
	assert.Empty(t, first.Classes)

	march5 := cal.Weeks[1][2]
	assert.True(t, march5.InMonth)
	require.Len(t, march5.Classes, 1)
	assert.Equal(t, "Algebra", march5.Classes[0].Name)
	require.Len(t, march5.Classes[0].Tasks, 1)
	assert.Equal(t, "quiz", march5.Classes[0].Tasks[0].Name)
}

func TestCalendarService_CurrentUsesClock(t *testing.T) {
	f := newFixture(t)
	ada := f.verified(t, "ada@example.com")

	cal, err := f.calendar.Current(context.Background(), ada)
	require.NoError(t, err)
	assert.Equal(t, fixedNow.Year(), cal.Year)
	assert.Equal(t, int(fixedNow.Month()), cal.Month)
}

func TestCalendarService_Errors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ada := f.verified(t, "ada@example.com")

	_, err := f.calendar.Month(ctx, ada, 2024, 13)
	assert.ErrorIs(t, err, apperror.ErrValidation)
	_, err = f.calendar.Month(ctx, ada, 1899, 1)
	assert.ErrorIs(t, err, apperror.ErrValidation)
	_, err = f.calendar.Month(ctx, f.entities.Anonymous(), 2024, 3)
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)
}
