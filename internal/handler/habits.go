package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/sakif/habit-rewards/internal/apperror"
	"github.com/sakif/habit-rewards/internal/auth"
	"github.com/sakif/habit-rewards/internal/model"
	"github.com/sakif/habit-rewards/internal/service"
)

// HabitHandler serves the per-user aggregate and the habit ledger.
type HabitHandler struct {
	data   *service.UserDataService
	logger *slog.Logger
}

func NewHabitHandler(data *service.UserDataService, logger *slog.Logger) *HabitHandler {
	return &HabitHandler{data: data, logger: logger}
}

// habitRequest is the body of claim and unclaim calls.
type habitRequest struct {
	Habit model.HabitType `json:"habit"`
	Date  string          `json:"date"`
}

// targetUser returns the user a request acts on: the caller, or the
// ?userId= user when the caller is an admin.
func targetUser(r *http.Request) (string, error) {
	session, ok := auth.SessionFromContext(r.Context())
	if !ok {
		return "", apperror.Unauthorized("valid authentication required")
	}
	requested := r.URL.Query().Get("userId")
	if requested == "" || requested == session.UserID {
		return session.UserID, nil
	}
	if !session.IsAdmin() {
		return "", apperror.Forbidden("only admins can act on other users")
	}
	return requested, nil
}

// HandleGet returns the aggregate.
//
// HTTP: GET /api/habits[?userId=]
func (h *HabitHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	userID, err := targetUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	data, err := h.data.Get(r.Context(), userID)
	if err != nil {
		h.logger.Error("loading user data", slog.String("userID", userID), slog.String("error", err.Error()))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, data)
}

// HandleReplace overwrites the aggregate with the request body.
//
// HTTP: POST /api/habits[?userId=]
func (h *HabitHandler) HandleReplace(w http.ResponseWriter, r *http.Request) {
	userID, err := targetUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	raw, err := readBody(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	data, err := h.data.Replace(r.Context(), userID, raw)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, data)
}

// HandleClaim records a habit for a day.
//
// HTTP: POST /api/habits/claim {"habit": "exercise", "date": "2025-03-01"}
func (h *HabitHandler) HandleClaim(w http.ResponseWriter, r *http.Request) {
	h.ledger(w, r, h.data.ClaimHabit)
}

// HandleUnclaim takes back the latest claim of a habit for a day.
//
// HTTP: POST /api/habits/unclaim {"habit": "exercise", "date": "2025-03-01"}
func (h *HabitHandler) HandleUnclaim(w http.ResponseWriter, r *http.Request) {
	h.ledger(w, r, h.data.UnclaimHabit)
}

func (h *HabitHandler) ledger(w http.ResponseWriter, r *http.Request,
	op func(ctx context.Context, userID string, habit model.HabitType, date string) (*service.LedgerResult, error),
) {
	userID, err := targetUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req habitRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Habit == "" || req.Date == "" {
		writeError(w, apperror.ValidationFailed("habit", "habit and date are required"))
		return
	}

	res, err := op(r.Context(), userID, req.Habit, req.Date)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleReset deletes the caller's aggregate.
//
// HTTP: POST /api/habits/reset[?userId=]
func (h *HabitHandler) HandleReset(w http.ResponseWriter, r *http.Request) {
	userID, err := targetUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.data.ResetData(r.Context(), userID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "data reset"})
}

// HandleStats returns category and monthly totals.
//
// HTTP: GET /api/habits/stats[?userId=]
func (h *HabitHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	userID, err := targetUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	stats, err := h.data.Stats(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// HandleCatalog lists the habits that can be claimed.
//
// HTTP: GET /api/habits/catalog
func (h *HabitHandler) HandleCatalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, model.Habits)
}
