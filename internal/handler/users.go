package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/sakif/habit-rewards/internal/apperror"
	"github.com/sakif/habit-rewards/internal/service"
)

// UserHandler is the admin surface: user management plus the maintenance
// toolkit, dispatched by the "action" field of POST /api/users.
type UserHandler struct {
	users       *service.UserAdminService
	maintenance *service.MaintenanceService
	logger      *slog.Logger
}

func NewUserHandler(users *service.UserAdminService, maintenance *service.MaintenanceService, logger *slog.Logger) *UserHandler {
	return &UserHandler{users: users, maintenance: maintenance, logger: logger}
}

// adminRequest carries the fields any action may use.
type adminRequest struct {
	Action       string          `json:"action"`
	UserID       string          `json:"userId"`
	Name         string          `json:"name"`
	Email        string          `json:"email"`
	SourceUserID string          `json:"sourceUserId"`
	Data         json.RawMessage `json:"data"`
	Key          string          `json:"key"`
	Value        json.RawMessage `json:"value"`
	Prefix       string          `json:"prefix"`
	DryRun       bool            `json:"dryRun"`
}

// HandleList returns every user.
//
// HTTP: GET /api/users (admin)
func (h *UserHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

// HandleAction runs one admin action.
//
// HTTP: POST /api/users (admin) {"action": "cleanupDuplicates", ...}
func (h *UserHandler) HandleAction(w http.ResponseWriter, r *http.Request) {
	var req adminRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	h.logger.Info("admin action", slog.String("action", req.Action))
	ctx := r.Context()

	switch req.Action {
	case "getUserData":
		data, err := h.users.GetUserData(ctx, req.UserID)
		respond(w, http.StatusOK, data, err)

	case "createUser":
		user, err := h.users.CreateUser(ctx, service.CreateUserInput{
			Name:         req.Name,
			Email:        req.Email,
			SourceUserID: req.SourceUserID,
		})
		respond(w, http.StatusCreated, user, err)

	case "updateUserData":
		if len(req.Data) == 0 {
			writeError(w, apperror.ValidationFailed("data", "data is required"))
			return
		}
		data, err := h.users.UpdateUserData(ctx, req.UserID, req.Data)
		respond(w, http.StatusOK, data, err)

	case "deleteUser":
		err := h.users.DeleteUser(ctx, req.UserID)
		respond(w, http.StatusOK, success(fmt.Sprintf("user %s deleted", req.UserID)), err)

	case "cleanupDuplicates":
		report, err := h.maintenance.CleanupDuplicates(ctx, req.DryRun)
		respond(w, http.StatusOK, report, err)

	case "fixEmailBasedKeys":
		report, err := h.maintenance.MigrateEmailKeys(ctx, req.DryRun)
		respond(w, http.StatusOK, report, err)

	case "inventory":
		inv, err := h.maintenance.Inventory(ctx)
		respond(w, http.StatusOK, inv, err)

	case "listAllRedisKeys":
		list, err := h.maintenance.ListKeys(ctx, req.Prefix)
		respond(w, http.StatusOK, map[string]any{"keys": list}, err)

	case "getRedisKey":
		value, err := h.maintenance.GetKey(ctx, req.Key)
		respond(w, http.StatusOK, map[string]string{"key": req.Key, "value": value}, err)

	case "setRedisKey":
		err := h.maintenance.SetKey(ctx, req.Key, rawValue(req.Value))
		respond(w, http.StatusOK, success(fmt.Sprintf("key %s set", req.Key)), err)

	case "deleteRedisKey":
		err := h.maintenance.DeleteKey(ctx, req.Key)
		respond(w, http.StatusOK, success(fmt.Sprintf("key %s deleted", req.Key)), err)

	case "":
		writeError(w, apperror.ValidationFailed("action", "action is required"))

	default:
		writeError(w, apperror.ValidationFailed("action", fmt.Sprintf("unknown action %q", req.Action)))
	}
}

func respond(w http.ResponseWriter, status int, body any, err error) {
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, status, body)
}

func success(message string) map[string]any {
	return map[string]any{"success": true, "message": message}
}

// rawValue stores a JSON string as its contents and any other JSON value as
// its JSON text, so {"value": "abc"} stores abc and {"value": {"a":1}}
// stores {"a":1}.
func rawValue(v json.RawMessage) string {
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s
	}
	return string(v)
}
