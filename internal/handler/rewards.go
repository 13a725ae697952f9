package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/habit-rewards/internal/apperror"
	"github.com/sakif/habit-rewards/internal/model"
	"github.com/sakif/habit-rewards/internal/service"
)

// RewardHandler serves the global catalog and the per-user reward ledger.
type RewardHandler struct {
	catalog *service.RewardCatalogService
	data    *service.UserDataService
	logger  *slog.Logger
}

func NewRewardHandler(catalog *service.RewardCatalogService, data *service.UserDataService, logger *slog.Logger) *RewardHandler {
	return &RewardHandler{catalog: catalog, data: data, logger: logger}
}

// HandleList returns the catalog.
//
// HTTP: GET /api/rewards
func (h *RewardHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	rewards, err := h.catalog.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rewards)
}

// HandleAdd adds a catalog reward.
//
// HTTP: POST /api/rewards (admin) {"name": "...", "credits": 10, "imgUrl": "...", "amazonUrl": "..."}
func (h *RewardHandler) HandleAdd(w http.ResponseWriter, r *http.Request) {
	var in service.RewardInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}
	reward, err := h.catalog.Add(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, reward)
}

// HandleDelete removes a catalog reward.
//
// HTTP: DELETE /api/rewards?id= (admin)
func (h *RewardHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.catalog.Delete(r.Context(), r.URL.Query().Get("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleClaim spends credits on a reward from the caller's list.
//
// HTTP: POST /api/rewards/{id}/claim[?userId=]
func (h *RewardHandler) HandleClaim(w http.ResponseWriter, r *http.Request) {
	userID, err := targetUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := h.data.ClaimReward(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleUnclaim refunds a claimed reward.
//
// HTTP: POST /api/rewards/{id}/unclaim[?userId=]
func (h *RewardHandler) HandleUnclaim(w http.ResponseWriter, r *http.Request) {
	userID, err := targetUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := h.data.UnclaimReward(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleResetCredits zeroes a user's balance. It is meant for a scheduled
// job and is guarded by the API key, not a session.
//
// HTTP: POST /api/rewards/reset?userId= (Authorization: Bearer RESET_API_KEY)
func (h *RewardHandler) HandleResetCredits(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		writeError(w, apperror.ValidationFailed("userId", "userId is required"))
		return
	}
	data, err := h.data.ResetCredits(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "total credits have been reset to 0",
		"data":    map[string]int{"totalCredits": data.TotalCredits},
	})
}

// HandleAddToMine copies a catalog reward onto the caller's list.
//
// HTTP: POST /api/me/rewards {"rewardId": "reward-..."}
func (h *RewardHandler) HandleAddToMine(w http.ResponseWriter, r *http.Request) {
	userID, err := targetUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req struct {
		RewardID string `json:"rewardId"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.RewardID == "" {
		writeError(w, apperror.ValidationFailed("rewardId", "rewardId is required"))
		return
	}
	data, err := h.data.AddReward(r.Context(), userID, req.RewardID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, data)
}

// HandleReplaceMine overwrites the caller's reward list.
//
// HTTP: PUT /api/me/rewards {"rewards": [...]}
func (h *RewardHandler) HandleReplaceMine(w http.ResponseWriter, r *http.Request) {
	userID, err := targetUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req struct {
		Rewards []model.Reward `json:"rewards"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Rewards == nil {
		writeError(w, apperror.ValidationFailed("rewards", "rewards must be an array"))
		return
	}
	data, err := h.data.ReplaceRewards(r.Context(), userID, req.Rewards)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, data)
}

// HandleRemoveMine drops a reward from the caller's list.
//
// HTTP: DELETE /api/me/rewards/{id}
func (h *RewardHandler) HandleRemoveMine(w http.ResponseWriter, r *http.Request) {
	userID, err := targetUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	data, err := h.data.RemoveReward(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, data)
}
