package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/chorepoints/internal/chore"
	"github.com/dukerupert/chorepoints/internal/model"
)

type ChoreHandler struct {
	engine *chore.Engine
	logger *slog.Logger
}

func NewChoreHandler(e *chore.Engine, logger *slog.Logger) *ChoreHandler {
	return &ChoreHandler{engine: e, logger: logger}
}

// --- Templates ---

func (h *ChoreHandler) List(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	familyID, err := parseIDParam(r)
	if err != nil {
		badRequest(w, "invalid id")
		return
	}

	chores, err := h.engine.Chores(r.Context(), caller, familyID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, emptyIfNil(chores))
}

func (h *ChoreHandler) Create(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	familyID, err := parseIDParam(r)
	if err != nil {
		badRequest(w, "invalid id")
		return
	}
	var in chore.Input
	if !decode(w, r, &in) {
		return
	}

	c, err := h.engine.CreateChore(r.Context(), caller, familyID, in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h *ChoreHandler) Get(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	id, err := parseIDParam(r)
	if err != nil {
		badRequest(w, "invalid id")
		return
	}

	c, err := h.engine.Chore(r.Context(), caller, id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *ChoreHandler) Update(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	id, err := parseIDParam(r)
	if err != nil {
		badRequest(w, "invalid id")
		return
	}
	var in chore.Input
	if !decode(w, r, &in) {
		return
	}

	c, err := h.engine.UpdateChore(r.Context(), caller, id, in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *ChoreHandler) Archive(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	id, err := parseIDParam(r)
	if err != nil {
		badRequest(w, "invalid id")
		return
	}

	c, err := h.engine.ArchiveChore(r.Context(), caller, id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// --- Assignments ---

func (h *ChoreHandler) Assign(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	id, err := parseIDParam(r)
	if err != nil {
		badRequest(w, "invalid id")
		return
	}
	var req struct {
		AssigneeID int64     `json:"assignee_id"`
		DueAt      time.Time `json:"due_at"`
		Notes      *string   `json:"notes"`
	}
	if !decode(w, r, &req) {
		return
	}

	a, err := h.engine.Assign(r.Context(), caller, id, req.AssigneeID, req.DueAt, req.Notes)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

// Assignments lists a family's assignments. Supported filters:
// assignee_id, chore_id, status, type and due_before (RFC 3339).
func (h *ChoreHandler) Assignments(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	familyID, err := parseIDParam(r)
	if err != nil {
		badRequest(w, "invalid id")
		return
	}

	var f model.AssignmentFilter
	if f.AssigneeID, err = queryInt64(r, "assignee_id"); err != nil {
		badRequest(w, "invalid assignee_id")
		return
	}
	if f.ChoreID, err = queryInt64(r, "chore_id"); err != nil {
		badRequest(w, "invalid chore_id")
		return
	}
	if f.DueBefore, err = queryTime(r, "due_before"); err != nil {
		badRequest(w, "invalid due_before")
		return
	}
	q := r.URL.Query()
	f.Status = model.AssignmentStatus(q.Get("status"))
	f.ChoreType = model.ChoreType(q.Get("type"))
	if f.ChoreType != "" && !f.ChoreType.Valid() {
		badRequest(w, "invalid type")
		return
	}

	list, err := h.engine.Assignments(r.Context(), caller, familyID, f)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, emptyIfNil(list))
}

func (h *ChoreHandler) Assignment(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	id, err := parseIDParam(r)
	if err != nil {
		badRequest(w, "invalid id")
		return
	}

	a, err := h.engine.Assignment(r.Context(), caller, id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

type moderationRequest struct {
	Notes *string `json:"notes"`
}

// readNotes accepts an empty body.
func readNotes(w http.ResponseWriter, r *http.Request) (*string, bool) {
	var req moderationRequest
	if r.ContentLength == 0 {
		return nil, true
	}
	if !decode(w, r, &req) {
		return nil, false
	}
	return req.Notes, true
}

func (h *ChoreHandler) Complete(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	id, err := parseIDParam(r)
	if err != nil {
		badRequest(w, "invalid id")
		return
	}
	notes, ok := readNotes(w, r)
	if !ok {
		return
	}

	c, err := h.engine.Complete(r.Context(), caller, id, notes)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *ChoreHandler) Approve(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	id, err := parseIDParam(r)
	if err != nil {
		badRequest(w, "invalid id")
		return
	}
	notes, ok := readNotes(w, r)
	if !ok {
		return
	}

	a, err := h.engine.Approve(r.Context(), caller, id, notes)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *ChoreHandler) Reject(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	id, err := parseIDParam(r)
	if err != nil {
		badRequest(w, "invalid id")
		return
	}
	notes, ok := readNotes(w, r)
	if !ok {
		return
	}

	rej, err := h.engine.Reject(r.Context(), caller, id, notes)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, rej)
}
