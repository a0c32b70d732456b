// Package calendar lays an account's tasks out on a month grid.
//
// The grid is week-aligned: it starts on the Sunday on or before the 1st and
// holds whole 7-day weeks until the month is covered. Every day carries the
// tasks due that day, grouped by class. All dates are UTC.
package calendar

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/sakif/classplanner/internal/apperror"
	"github.com/sakif/classplanner/internal/model"
)

const (
	MinYear = 1900
	MaxYear = 9999
)

// ClassKey identifies the bucket a task is filed under.
type ClassKey struct {
	ID   string
	Name string
}

// Day is one cell of the grid.
type Day struct {
	Date    time.Time
	Classes []ClassKey                 // bucket order: first task seen first
	Tasks   map[ClassKey][]*model.Task // ascending by due date
}

// InMonth reports whether the day belongs to the month the grid was built
// for, as opposed to the leading and trailing days of neighbouring months.
func (d Day) InMonth(year int, month time.Month) bool {
	return d.Date.Year() == year && d.Date.Month() == month
}

func (d *Day) add(key ClassKey, t *model.Task) {
	if d.Tasks == nil {
		d.Tasks = make(map[ClassKey][]*model.Task)
	}
	if _, ok := d.Tasks[key]; !ok {
		d.Classes = append(d.Classes, key)
	}
	d.Tasks[key] = append(d.Tasks[key], t)
}

// Week is one row of the grid, Sunday first.
type Week [7]Day

// Calendar is a built month grid.
type Calendar struct {
	Year  int
	Month time.Month
	Start time.Time // first cell, a Sunday
	weeks []Week
}

// Rows yields the weeks in order. It can be ranged over any number of times.
func (c *Calendar) Rows() iter.Seq[Week] {
	return func(yield func(Week) bool) {
		for _, w := range c.weeks {
			if !yield(w) {
				return
			}
		}
	}
}

// End is the exclusive end of the grid: the day after the last cell.
func (c *Calendar) End() time.Time {
	return c.Start.AddDate(0, 0, 7*len(c.weeks))
}

// ValidateMonth rejects months a calendar can't be built for.
func ValidateMonth(year, month int) error {
	if year < MinYear || year > MaxYear {
		return apperror.ValidationFailed("year", fmt.Sprintf("year must be between %d and %d", MinYear, MaxYear))
	}
	if month < 1 || month > 12 {
		return apperror.ValidationFailed("month", "month must be between 1 and 12")
	}
	return nil
}

// GridStart returns the Sunday on or before the 1st of the month.
func GridStart(year int, month time.Month) time.Time {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	return first.AddDate(0, 0, -int(first.Weekday()))
}

// monthIndex orders (year, month) pairs.
func monthIndex(t time.Time) int {
	return t.Year()*12 + int(t.Month()) - 1
}

// grid builds the empty weeks. A new row is started as long as its first
// day is not past the target month.
func grid(year int, month time.Month) (time.Time, []Week) {
	start := GridStart(year, month)
	target := year*12 + int(month) - 1

	var weeks []Week
	for rowStart := start; monthIndex(rowStart) <= target; rowStart = rowStart.AddDate(0, 0, 7) {
		var w Week
		for i := range w {
			w[i].Date = rowStart.AddDate(0, 0, i)
		}
		weeks = append(weeks, w)
	}
	return start, weeks
}

// Build lays out account's unarchived, dated tasks for the month. Each
// task's class is looked up once however many tasks it has.
func Build(ctx context.Context, account *model.Account, year int, month time.Month) (*Calendar, error) {
	if err := ValidateMonth(year, int(month)); err != nil {
		return nil, err
	}

	start, weeks := grid(year, month)
	cal := &Calendar{Year: year, Month: month, Start: start, weeks: weeks}

	tasks := account.Tasks(ctx, model.TaskQuery{
		Archived: model.OnlyUnarchived,
		Range:    &model.TimeRange{Start: start, End: cal.End()},
		Order:    model.Ascending,
	})

	keys := make(map[string]ClassKey)
	for t, err := range tasks {
		if err != nil {
			return nil, err
		}
		due, err := t.Date(ctx)
		if err != nil {
			return nil, err
		}
		if due == nil {
			continue
		}

		classID, err := t.ClassID(ctx)
		if err != nil {
			return nil, err
		}
		key, ok := keys[classID]
		if !ok {
			c, err := t.Class(ctx)
			if err != nil {
				return nil, err
			}
			name, err := c.Name(ctx)
			if err != nil {
				return nil, err
			}
			key = ClassKey{ID: classID, Name: name}
			keys[classID] = key
		}

		offset := int(due.Sub(start).Hours() / 24)
		if offset < 0 || offset >= 7*len(weeks) {
			continue
		}
		cal.weeks[offset/7][offset%7].add(key, t)
	}
	return cal, nil
}
