package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/sakif/habit-rewards/internal/auth"
	"github.com/sakif/habit-rewards/internal/handler"
	"github.com/sakif/habit-rewards/internal/model"
	"github.com/sakif/habit-rewards/internal/repository/memory"
	"github.com/sakif/habit-rewards/internal/service"
)

// pastDay is safely before "today" whenever the tests run.
const pastDay = "2024-06-01"

type harness struct {
	store   *memory.Store
	catalog *service.RewardCatalogService
	data    *service.UserDataService
	users   *service.UserAdminService

	habits  *handler.HabitHandler
	rewards *handler.RewardHandler
	admin   *handler.UserHandler
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := newTestLogger()
	store := memory.New()
	catalog := service.NewRewardCatalogService(store, logger)
	data := service.NewUserDataService(store, catalog, logger)
	users := service.NewUserAdminService(store, data, logger)
	maintenance := service.NewMaintenanceService(store, nil, logger)

	return &harness{
		store:   store,
		catalog: catalog,
		data:    data,
		users:   users,
		habits:  handler.NewHabitHandler(data, logger),
		rewards: handler.NewRewardHandler(catalog, data, logger),
		admin:   handler.NewUserHandler(users, maintenance, logger),
	}
}

// newRequest builds a request with an optional JSON body.
func newRequest(method, target string, body any) *http.Request {
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = bytes.NewBufferString(b)
	default:
		raw, _ := json.Marshal(b)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, r)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func asUser(req *http.Request, id string) *http.Request {
	return req.WithContext(auth.WithSession(req.Context(), auth.Session{UserID: id, Role: model.RoleUser}))
}

func asAdmin(req *http.Request, id string) *http.Request {
	return req.WithContext(auth.WithSession(req.Context(), auth.Session{UserID: id, Role: model.RoleAdmin}))
}

func withURLParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func serve(h http.HandlerFunc, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&v), "body: %s", rr.Body.String())
	return v
}

// register stores bare profiles so the ids count as known users.
func (h *harness) register(t *testing.T, ids ...string) {
	t.Helper()
	for _, id := range ids {
		raw, err := json.Marshal(model.UserProfile{ID: id, Name: id, Email: id + "@example.com", Role: model.RoleUser})
		require.NoError(t, err)
		require.NoError(t, h.store.Set(context.Background(), "user:"+id, string(raw)))
	}
}

// addCatalogReward adds a reward to the catalog and returns its id.
func (h *harness) addCatalogReward(t *testing.T, name string, credits int) string {
	t.Helper()
	r, err := h.catalog.Add(context.Background(), service.RewardInput{Name: name, Credits: credits})
	require.NoError(t, err)
	return r.ID
}
