package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/chorepoints/internal/reward"
)

type RewardHandler struct {
	rewards *reward.Service
	logger  *slog.Logger
}

func NewRewardHandler(s *reward.Service, logger *slog.Logger) *RewardHandler {
	return &RewardHandler{rewards: s, logger: logger}
}

func (h *RewardHandler) List(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	familyID, err := parseIDParam(r)
	if err != nil {
		badRequest(w, "invalid id")
		return
	}

	rewards, err := h.rewards.List(r.Context(), caller, familyID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, emptyIfNil(rewards))
}

func (h *RewardHandler) Create(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	familyID, err := parseIDParam(r)
	if err != nil {
		badRequest(w, "invalid id")
		return
	}
	in := reward.Input{Active: true}
	if !decode(w, r, &in) {
		return
	}

	rw, err := h.rewards.Create(r.Context(), caller, familyID, in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, rw)
}

func (h *RewardHandler) Update(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	id, err := parseIDParam(r)
	if err != nil {
		badRequest(w, "invalid id")
		return
	}
	var in reward.Input
	if !decode(w, r, &in) {
		return
	}

	rw, err := h.rewards.Update(r.Context(), caller, id, in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, rw)
}

// Redeem spends the caller's own points in the family.
func (h *RewardHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	ids, ok := pathIDs(w, r, "id", "rewardID")
	if !ok {
		return
	}

	receipt, err := h.rewards.Redeem(r.Context(), caller, ids[0], ids[1])
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, receipt)
}

func (h *RewardHandler) Redemptions(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	ids, ok := pathIDs(w, r, "id", "userID")
	if !ok {
		return
	}

	list, err := h.rewards.Redemptions(r.Context(), caller, ids[0], ids[1])
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, emptyIfNil(list))
}
