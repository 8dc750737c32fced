package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/chorepoints/internal/goal"
)

type GoalHandler struct {
	goals  *goal.Service
	logger *slog.Logger
}

func NewGoalHandler(s *goal.Service, logger *slog.Logger) *GoalHandler {
	return &GoalHandler{goals: s, logger: logger}
}

func (h *GoalHandler) List(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	ids, ok := pathIDs(w, r, "id", "userID")
	if !ok {
		return
	}

	goals, err := h.goals.List(r.Context(), caller, ids[0], ids[1])
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, emptyIfNil(goals))
}

func (h *GoalHandler) Create(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	ids, ok := pathIDs(w, r, "id", "userID")
	if !ok {
		return
	}
	var req struct {
		Title  string `json:"title"`
		Target int    `json:"target"`
	}
	if !decode(w, r, &req) {
		return
	}

	g, err := h.goals.Create(r.Context(), caller, ids[0], ids[1], req.Title, req.Target)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, g)
}

func (h *GoalHandler) AddProgress(w http.ResponseWriter, r *http.Request) {
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
		Delta int `json:"delta"`
	}
	if !decode(w, r, &req) {
		return
	}

	g, err := h.goals.AddProgress(r.Context(), caller, id, req.Delta)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (h *GoalHandler) Abandon(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	id, err := parseIDParam(r)
	if err != nil {
		badRequest(w, "invalid id")
		return
	}

	g, err := h.goals.Abandon(r.Context(), caller, id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}
