// Package api exposes the REST write tier: accounts, rooms and messages.
// These handlers are the only non-gateway code that causes gateway-side
// effects, always indirectly through the chat service and its bridge.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/louieee/chatclone/internal/auth"
	"github.com/louieee/chatclone/internal/chat"
	"github.com/louieee/chatclone/internal/server/middleware"
	"github.com/louieee/chatclone/internal/store"
)

type API struct {
	logger  *slog.Logger
	service *chat.Service
}

func New(logger *slog.Logger, service *chat.Service) *API {
	return &API{
		logger:  logger.With(slog.String("component", "api")),
		service: service,
	}
}

// Routes registers the REST endpoints. authMW guards everything except
// signup and login.
func (a *API) Routes(mux *http.ServeMux, authMW middleware.Middleware) {
	mux.HandleFunc("POST /api/signup", a.handleSignup)
	mux.HandleFunc("POST /api/login", a.handleLogin)

	mux.Handle("GET /api/profile", authMW(http.HandlerFunc(a.handleProfile)))
	mux.Handle("GET /api/rooms", authMW(http.HandlerFunc(a.handleListRooms)))
	mux.Handle("POST /api/rooms", authMW(http.HandlerFunc(a.handleCreateRoom)))
	mux.Handle("GET /api/rooms/{id}", authMW(http.HandlerFunc(a.handleGetRoom)))
	mux.Handle("PUT /api/rooms/{id}", authMW(http.HandlerFunc(a.handleUpdateRoom)))
	mux.Handle("POST /api/rooms/actions", authMW(http.HandlerFunc(a.handleRoomAction)))
	mux.Handle("GET /api/messages", authMW(http.HandlerFunc(a.handleListMessages)))
	mux.Handle("POST /api/messages", authMW(http.HandlerFunc(a.handleCreateMessage)))
}

func principalFrom(r *http.Request) (*auth.Principal, bool) {
	meta, ok := middleware.ReqMetadataFrom(r.Context())
	if !ok || meta.Principal == nil {
		return nil, false
	}
	return meta.Principal, true
}

func (a *API) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.logger.Error("Failed to encode response", slog.Any("error", err))
	}
}

type errorResponse struct {
	Detail string `json:"detail"`
}

// writeError maps service errors onto HTTP statuses.
func (a *API) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		a.writeJSON(w, http.StatusNotFound, errorResponse{Detail: "not found"})
	case errors.Is(err, chat.ErrNoAccount),
		errors.Is(err, chat.ErrInvalidCredentials):
		a.writeJSON(w, http.StatusBadRequest, errorResponse{Detail: err.Error()})
	case errors.Is(err, chat.ErrNotAMember),
		errors.Is(err, chat.ErrNotAdmin):
		a.writeJSON(w, http.StatusForbidden, errorResponse{Detail: err.Error()})
	case errors.Is(err, chat.ErrAlreadyMember),
		errors.Is(err, chat.ErrRoomFull),
		errors.Is(err, chat.ErrCapacityTooSmall),
		errors.Is(err, chat.ErrEmptyMessage):
		a.writeJSON(w, http.StatusBadRequest, errorResponse{Detail: err.Error()})
	default:
		a.logger.Error("Request failed", slog.Any("error", err))
		a.writeJSON(w, http.StatusInternalServerError, errorResponse{Detail: "internal server error"})
	}
}

func (a *API) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		a.writeJSON(w, http.StatusBadRequest, errorResponse{Detail: "invalid request body"})
		return false
	}
	return true
}

func pathID(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(r.PathValue(name), 10, 64)
}
