package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/sakif/classplanner/internal/apperror"
	"github.com/sakif/classplanner/internal/calendar"
	"github.com/sakif/classplanner/internal/model"
)

// CalendarView is a month grid ready to be encoded.
type CalendarView struct {
	Year  int         `json:"year"`
	Month int         `json:"month"`
	Start time.Time   `json:"start"`
	End   time.Time   `json:"end"`
	Weeks [][]DayView `json:"weeks"`
}

type DayView struct {
	Date    time.Time  `json:"date"`
	InMonth bool       `json:"inMonth"`
	Classes []ClassDay `json:"classes"`
}

// ClassDay is one class's tasks on one day.
type ClassDay struct {
	ClassID string            `json:"classId"`
	Name    string            `json:"name"`
	Tasks   []*model.TaskView `json:"tasks"`
}

type CalendarService struct {
	now    func() time.Time
	logger *slog.Logger
}

func NewCalendarService(logger *slog.Logger) *CalendarService {
	return &CalendarService{now: time.Now, logger: logger}
}

// WithClock replaces the clock used for the current month.
func (s *CalendarService) WithClock(now func() time.Time) *CalendarService {
	s.now = now
	return s
}

// Current builds the actor's calendar for this month in UTC.
func (s *CalendarService) Current(ctx context.Context, actor *model.Account) (*CalendarView, error) {
	today := s.now().UTC()
	return s.Month(ctx, actor, today.Year(), int(today.Month()))
}

// Month builds the actor's calendar for year and month (1-12).
func (s *CalendarService) Month(ctx context.Context, actor *model.Account, year, month int) (*CalendarView, error) {
	if actor.IsAnonymous() {
		return nil, apperror.Unauthorized("authentication required")
	}
	if err := calendar.ValidateMonth(year, month); err != nil {
		return nil, err
	}

	cal, err := calendar.Build(ctx, actor, year, time.Month(month))
	if err != nil {
		return nil, err
	}

	view := &CalendarView{
		Year:  cal.Year,
		Month: int(cal.Month),
		Start: cal.Start,
		End:   cal.End(),
		Weeks: [][]DayView{},
	}
	for week := range cal.Rows() {
		days := make([]DayView, 0, len(week))
		for _, d := range week {
			dv := DayView{Date: d.Date, InMonth: d.InMonth(cal.Year, cal.Month), Classes: []ClassDay{}}
			for _, key := range d.Classes {
				cd := ClassDay{ClassID: key.ID, Name: key.Name}
				for _, t := range d.Tasks[key] {
					tv, err := t.View(ctx)
					if err != nil {
						return nil, err
					}
					cd.Tasks = append(cd.Tasks, tv)
				}
				dv.Classes = append(dv.Classes, cd)
			}
			days = append(days, dv)
		}
		view.Weeks = append(view.Weeks, days)
	}
	return view, nil
}
