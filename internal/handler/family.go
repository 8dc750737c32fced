package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/chorepoints/internal/identity"
)

type FamilyHandler struct {
	families *identity.Families
	logger   *slog.Logger
}

func NewFamilyHandler(f *identity.Families, logger *slog.Logger) *FamilyHandler {
	return &FamilyHandler{families: f, logger: logger}
}

func (h *FamilyHandler) Create(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	var req struct {
		Name string `json:"name"`
	}
	if !decode(w, r, &req) {
		return
	}

	family, err := h.families.Create(r.Context(), caller, req.Name)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, family)
}

// List returns the families the caller belongs to.
func (h *FamilyHandler) List(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	families, err := h.families.ListForCaller(r.Context(), caller)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, emptyIfNil(families))
}

func (h *FamilyHandler) Get(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	id, err := parseIDParam(r)
	if err != nil {
		badRequest(w, "invalid id")
		return
	}

	family, err := h.families.Get(r.Context(), caller, id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, family)
}

func (h *FamilyHandler) Members(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	id, err := parseIDParam(r)
	if err != nil {
		badRequest(w, "invalid id")
		return
	}

	members, err := h.families.Members(r.Context(), caller, id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, emptyIfNil(members))
}

func (h *FamilyHandler) AddMember(w http.ResponseWriter, r *http.Request) {
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
		UserID int64  `json:"user_id"`
		Role   string `json:"role"`
	}
	if !decode(w, r, &req) {
		return
	}

	m, err := h.families.AddMember(r.Context(), caller, id, req.UserID, req.Role)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (h *FamilyHandler) ChangeRole(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	ids, ok := pathIDs(w, r, "id", "userID")
	if !ok {
		return
	}
	var req struct {
		Role string `json:"role"`
	}
	if !decode(w, r, &req) {
		return
	}

	m, err := h.families.ChangeRole(r.Context(), caller, ids[0], ids[1], req.Role)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *FamilyHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	ids, ok := pathIDs(w, r, "id", "userID")
	if !ok {
		return
	}

	if err := h.families.RemoveMember(r.Context(), caller, ids[0], ids[1]); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
