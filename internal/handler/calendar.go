package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/classplanner/internal/apperror"
	"github.com/sakif/classplanner/internal/service"
)

type CalendarHandler struct {
	calendar *service.CalendarService
	accounts AccountResolver
	logger   *slog.Logger
}

func NewCalendarHandler(calendar *service.CalendarService, accounts AccountResolver, logger *slog.Logger) *CalendarHandler {
	return &CalendarHandler{calendar: calendar, accounts: accounts, logger: logger}
}

// HandleCurrent builds this month's calendar.
//
// HTTP: GET /api/calendar
func (h *CalendarHandler) HandleCurrent(w http.ResponseWriter, r *http.Request) {
	me, err := actor(r, h.accounts)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	view, err := h.calendar.Current(r.Context(), me)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// HandleMonth builds the calendar for a given month. A year or month that
// isn't a number, or is out of range, is a 400.
//
// HTTP: GET /api/calendar/{year}/{month}
func (h *CalendarHandler) HandleMonth(w http.ResponseWriter, r *http.Request) {
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil {
		writeError(w, h.logger, apperror.ValidationFailed("year", "year must be a number"))
		return
	}
	month, err := strconv.Atoi(chi.URLParam(r, "month"))
	if err != nil {
		writeError(w, h.logger, apperror.ValidationFailed("month", "month must be a number"))
		return
	}
	me, err := actor(r, h.accounts)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	view, err := h.calendar.Month(r.Context(), me, year, month)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}
