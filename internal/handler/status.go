package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/habit-rewards/internal/repository"
)

// EnvStatus reports which settings are configured. Values are never exposed.
type EnvStatus struct {
	Backend          string `json:"storeBackend"`
	RedisConfigured  bool   `json:"redisConfigured"`
	SQLiteConfigured bool   `json:"sqliteConfigured"`
	AuthEnabled      bool   `json:"authEnabled"`
	GoogleConfigured bool   `json:"googleConfigured"`
	AdminConfigured  bool   `json:"adminConfigured"`
	ResetKeySet      bool   `json:"resetKeySet"`
}

// StatusHandler serves health and configuration checks.
type StatusHandler struct {
	store  repository.Store
	env    EnvStatus
	logger *slog.Logger
}

func NewStatusHandler(store repository.Store, env EnvStatus, logger *slog.Logger) *StatusHandler {
	return &StatusHandler{store: store, env: env, logger: logger}
}

// HandleHealth pings the store.
//
// HTTP: GET /healthz
func (h *StatusHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		h.logger.Error("health check failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "backend": h.env.Backend})
}

// HandleEnv reports configuration presence.
//
// HTTP: GET /api/admin/env (admin)
func (h *StatusHandler) HandleEnv(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.env)
}
