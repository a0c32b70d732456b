package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/classplanner/internal/apperror"
	"github.com/sakif/classplanner/internal/service"
)

type ClassHandler struct {
	classes  *service.ClassService
	accounts AccountResolver
	logger   *slog.Logger
}

func NewClassHandler(classes *service.ClassService, accounts AccountResolver, logger *slog.Logger) *ClassHandler {
	return &ClassHandler{classes: classes, accounts: accounts, logger: logger}
}

type memberRequest struct {
	Email string `json:"email"`
}

type sweepResponse struct {
	Left int `json:"left"`
}

// HandleList lists the caller's classes. ?archived=true|false|all, default false.
//
// HTTP: GET /api/classes
func (h *ClassHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	filter, err := service.ParseArchiveFilter(r.URL.Query().Get("archived"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	me, err := actor(r, h.accounts)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	views, err := h.classes.List(r.Context(), me, filter)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

// HTTP: POST /api/classes
func (h *ClassHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var in service.ClassInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, h.logger, err)
		return
	}
	me, err := actor(r, h.accounts)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	view, err := h.classes.Create(r.Context(), me, in)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

// HTTP: GET /api/classes/{id}
func (h *ClassHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	me, err := actor(r, h.accounts)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	view, err := h.classes.Get(r.Context(), me, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// HTTP: PUT /api/classes/{id}
func (h *ClassHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var in service.ClassUpdate
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, h.logger, err)
		return
	}
	me, err := actor(r, h.accounts)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	view, err := h.classes.Update(r.Context(), me, chi.URLParam(r, "id"), in)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// HTTP: DELETE /api/classes/{id}
func (h *ClassHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	me, err := actor(r, h.accounts)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := h.classes.Delete(r.Context(), me, chi.URLParam(r, "id")); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleArchive archives the class. ?cascade=false leaves its tasks alone;
// the default archives them too.
//
// HTTP: POST /api/classes/{id}/archive
func (h *ClassHandler) HandleArchive(w http.ResponseWriter, r *http.Request) {
	cascade := true
	if raw := r.URL.Query().Get("cascade"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, h.logger, apperror.ValidationFailed("cascade", "cascade must be true or false"))
			return
		}
		cascade = v
	}
	me, err := actor(r, h.accounts)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	view, err := h.classes.Archive(r.Context(), me, chi.URLParam(r, "id"), cascade)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// HTTP: POST /api/classes/{id}/unarchive
func (h *ClassHandler) HandleUnarchive(w http.ResponseWriter, r *http.Request) {
	me, err := actor(r, h.accounts)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	view, err := h.classes.Unarchive(r.Context(), me, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// HTTP: POST /api/classes/{id}/join
func (h *ClassHandler) HandleJoin(w http.ResponseWriter, r *http.Request) {
	me, err := actor(r, h.accounts)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	view, err := h.classes.Join(r.Context(), me, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// HTTP: POST /api/classes/{id}/leave
func (h *ClassHandler) HandleLeave(w http.ResponseWriter, r *http.Request) {
	me, err := actor(r, h.accounts)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := h.classes.Leave(r.Context(), me, chi.URLParam(r, "id")); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleLeaveUnviewable drops every class the caller can no longer see
// from its list.
//
// HTTP: POST /api/classes/leave-unviewable
func (h *ClassHandler) HandleLeaveUnviewable(w http.ResponseWriter, r *http.Request) {
	me, err := actor(r, h.accounts)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	n, err := h.classes.LeaveInvisible(r.Context(), me)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, sweepResponse{Left: n})
}

// HTTP: GET /api/classes/{id}/members
func (h *ClassHandler) HandleMembers(w http.ResponseWriter, r *http.Request) {
	me, err := actor(r, h.accounts)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	members, err := h.classes.Members(r.Context(), me, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, members)
}

// HTTP: POST /api/classes/{id}/members
func (h *ClassHandler) HandleAddMember(w http.ResponseWriter, r *http.Request) {
	var in memberRequest
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, h.logger, err)
		return
	}
	me, err := actor(r, h.accounts)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	view, err := h.classes.AddMember(r.Context(), me, chi.URLParam(r, "id"), in.Email)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// HTTP: DELETE /api/classes/{id}/members/{accountID}
func (h *ClassHandler) HandleRemoveMember(w http.ResponseWriter, r *http.Request) {
	accountID, err := strconv.ParseInt(chi.URLParam(r, "accountID"), 10, 64)
	if err != nil || accountID <= 0 {
		writeError(w, h.logger, apperror.ValidationFailed("accountID", "account id must be a positive integer"))
		return
	}
	me, err := actor(r, h.accounts)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	view, err := h.classes.RemoveMember(r.Context(), me, chi.URLParam(r, "id"), accountID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}
