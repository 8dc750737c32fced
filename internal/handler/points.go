package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/chorepoints/internal/badge"
	"github.com/dukerupert/chorepoints/internal/leaderboard"
	"github.com/dukerupert/chorepoints/internal/ledger"
)

// PointsHandler serves the ledger, badges and the leaderboard.
type PointsHandler struct {
	ledger *ledger.Ledger
	badges *badge.Service
	board  *leaderboard.Board
	logger *slog.Logger
}

func NewPointsHandler(l *ledger.Ledger, b *badge.Service, board *leaderboard.Board, logger *slog.Logger) *PointsHandler {
	return &PointsHandler{ledger: l, badges: b, board: board, logger: logger}
}

func (h *PointsHandler) Account(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	ids, ok := pathIDs(w, r, "id", "userID")
	if !ok {
		return
	}

	snap, err := h.ledger.Account(r.Context(), caller, ids[0], ids[1])
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *PointsHandler) History(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	ids, ok := pathIDs(w, r, "id", "userID")
	if !ok {
		return
	}

	entries, err := h.ledger.History(r.Context(), caller, ids[0], ids[1])
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, emptyIfNil(entries))
}

func (h *PointsHandler) Adjust(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	ids, ok := pathIDs(w, r, "id", "userID")
	if !ok {
		return
	}
	var req struct {
		Delta int    `json:"delta"`
		Note  string `json:"note"`
	}
	if !decode(w, r, &req) {
		return
	}

	entry, err := h.ledger.Adjust(r.Context(), caller, ids[0], ids[1], req.Delta, req.Note)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (h *PointsHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	familyID, err := parseIDParam(r)
	if err != nil {
		badRequest(w, "invalid id")
		return
	}

	standings, err := h.board.Rank(r.Context(), caller, familyID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, emptyIfNil(standings))
}

func (h *PointsHandler) Badges(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	familyID, err := parseIDParam(r)
	if err != nil {
		badRequest(w, "invalid id")
		return
	}

	badges, err := h.badges.List(r.Context(), caller, familyID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, emptyIfNil(badges))
}

func (h *PointsHandler) CreateBadge(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	familyID, err := parseIDParam(r)
	if err != nil {
		badRequest(w, "invalid id")
		return
	}
	var req struct {
		Name           string `json:"name"`
		Description    string `json:"description"`
		PointsRequired int    `json:"points_required"`
		StreakRequired int    `json:"streak_required"`
	}
	if !decode(w, r, &req) {
		return
	}

	b, err := h.badges.Create(r.Context(), caller, familyID, req.Name, req.Description, req.PointsRequired, req.StreakRequired)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

// EarnedBadges lists the badges a member currently holds.
func (h *PointsHandler) EarnedBadges(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	ids, ok := pathIDs(w, r, "id", "userID")
	if !ok {
		return
	}

	badges, err := h.badges.Earned(r.Context(), caller, ids[0], ids[1])
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, emptyIfNil(badges))
}
