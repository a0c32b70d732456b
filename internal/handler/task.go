package handler

import (
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/classplanner/internal/apperror"
	"github.com/sakif/classplanner/internal/model"
	"github.com/sakif/classplanner/internal/service"
)

type TaskHandler struct {
	tasks    *service.TaskService
	accounts AccountResolver
	logger   *slog.Logger
}

func NewTaskHandler(tasks *service.TaskService, accounts AccountResolver, logger *slog.Logger) *TaskHandler {
	return &TaskHandler{tasks: tasks, accounts: accounts, logger: logger}
}

// parseTaskQuery reads the listing parameters:
//
//	archived  true | false | all      (default false)
//	from, to  RFC 3339 or YYYY-MM-DD  (half-open, both required together)
//	order     asc | desc              (by due date, default asc)
//	limit     1..500
func parseTaskQuery(v url.Values) (model.TaskQuery, error) {
	var q model.TaskQuery

	archived, err := service.ParseArchiveFilter(v.Get("archived"))
	if err != nil {
		return q, err
	}
	q.Archived = archived

	from, to := v.Get("from"), v.Get("to")
	if (from == "") != (to == "") {
		return q, apperror.ValidationFailed("to", "from and to must be given together")
	}
	if from != "" {
		start, err := parseDate("from", from)
		if err != nil {
			return q, err
		}
		end, err := parseDate("to", to)
		if err != nil {
			return q, err
		}
		q.Range = &model.TimeRange{Start: start, End: end}
	}

	switch strings.ToLower(v.Get("order")) {
	case "", "asc":
		q.Order = model.Ascending
	case "desc":
		q.Order = model.Descending
	default:
		return q, apperror.ValidationFailed("order", "order must be asc or desc")
	}

	if raw := v.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return q, apperror.ValidationFailed("limit", "limit must be a positive integer")
		}
		q.Limit = n
	}
	return q, nil
}

func parseDate(field, raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		return t, nil
	}
	return time.Time{}, apperror.ValidationFailed(field, "dates must be RFC 3339 or YYYY-MM-DD")
}

// HandleUpcoming lists tasks across every class in the caller's list.
//
// HTTP: GET /api/tasks
func (h *TaskHandler) HandleUpcoming(w http.ResponseWriter, r *http.Request) {
	q, err := parseTaskQuery(r.URL.Query())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	me, err := actor(r, h.accounts)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	views, err := h.tasks.Upcoming(r.Context(), me, q)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

// HTTP: GET /api/classes/{id}/tasks
func (h *TaskHandler) HandleListForClass(w http.ResponseWriter, r *http.Request) {
	q, err := parseTaskQuery(r.URL.Query())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	me, err := actor(r, h.accounts)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	views, err := h.tasks.ListForClass(r.Context(), me, chi.URLParam(r, "id"), q)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

// HTTP: POST /api/classes/{id}/tasks
func (h *TaskHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var in service.TaskInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, h.logger, err)
		return
	}
	me, err := actor(r, h.accounts)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	view, err := h.tasks.Create(r.Context(), me, chi.URLParam(r, "id"), in)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

// HTTP: GET /api/tasks/{id}
func (h *TaskHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	me, err := actor(r, h.accounts)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	view, err := h.tasks.Get(r.Context(), me, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// HTTP: PUT /api/tasks/{id}
func (h *TaskHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var in service.TaskUpdate
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, h.logger, err)
		return
	}
	me, err := actor(r, h.accounts)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	view, err := h.tasks.Update(r.Context(), me, chi.URLParam(r, "id"), in)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// HTTP: DELETE /api/tasks/{id}
func (h *TaskHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	me, err := actor(r, h.accounts)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := h.tasks.Delete(r.Context(), me, chi.URLParam(r, "id")); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HTTP: POST /api/tasks/{id}/archive
func (h *TaskHandler) HandleArchive(w http.ResponseWriter, r *http.Request) {
	h.archive(w, r, true)
}

// HTTP: POST /api/tasks/{id}/unarchive
func (h *TaskHandler) HandleUnarchive(w http.ResponseWriter, r *http.Request) {
	h.archive(w, r, false)
}

func (h *TaskHandler) archive(w http.ResponseWriter, r *http.Request, archived bool) {
	me, err := actor(r, h.accounts)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	id := chi.URLParam(r, "id")
	var view *model.TaskView
	if archived {
		view, err = h.tasks.Archive(r.Context(), me, id)
	} else {
		view, err = h.tasks.Unarchive(r.Context(), me, id)
	}
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}
