package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/eugenenazirov/ariel/internal/storage"
)

type contextKey string

const requestIDContextKey contextKey = "requestID"

// Handler exposes a configuration store over the /ariel routes.
type Handler struct {
	store storage.Store
	clock func() time.Time
}

// HandlerOption configures Handler behaviour.
type HandlerOption func(*Handler)

// WithClock overrides the time source, primarily for tests.
func WithClock(clock func() time.Time) HandlerOption {
	return func(h *Handler) {
		h.clock = clock
	}
}

// NewHandler constructs a Handler backed by store.
func NewHandler(store storage.Store, opts ...HandlerOption) *Handler {
	h := &Handler{
		store: store,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "ok",
		Timestamp: h.clock(),
	})
}

func (h *Handler) handleListEnvironments(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.store.ListEnvironments())
}

func (h *Handler) handleGetEnvironment(w http.ResponseWriter, r *http.Request) {
	values, ok := h.store.GetAll(r.PathValue("env"))
	if !ok {
		writeError(w, http.StatusNotFound, "Environment not found", "")
		return
	}
	writeJSON(w, http.StatusOK, values)
}

func (h *Handler) handleGetValue(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	value, ok := h.store.Get(r.PathValue("env"), key)
	if !ok {
		writeError(w, http.StatusNotFound, "Config not found", "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{key: value})
}

func (h *Handler) handlePutValue(w http.ResponseWriter, r *http.Request) {
	var req setValueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", "unable to parse JSON payload")
		return
	}
	if req.Value == nil {
		writeError(w, http.StatusBadRequest, "Invalid request", "value must be a string")
		return
	}

	if err := h.store.Set(r.PathValue("env"), r.PathValue("key"), *req.Value); err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

func (h *Handler) handleDeleteValue(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Delete(r.PathValue("env"), r.PathValue("key")); err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

// EnvFileHandler serves raw values from per-environment files in a directory,
// reading "<dir>/<env>.json" on every request.
type EnvFileHandler struct {
	dir  string
	open func(path string) storage.Store
}

// NewEnvFileHandler constructs an EnvFileHandler rooted at dir. The open
// function builds and loads a store for a backing file.
func NewEnvFileHandler(dir string, open func(path string) storage.Store) *EnvFileHandler {
	return &EnvFileHandler{dir: dir, open: open}
}

func (h *EnvFileHandler) handleGetRawValue(w http.ResponseWriter, r *http.Request) {
	env := r.PathValue("env")
	path, err := storage.EnvFile(h.dir, env)
	if err != nil {
		if errors.Is(err, storage.ErrInvalidEnvironment) {
			writeError(w, http.StatusBadRequest, "Invalid environment", err.Error())
			return
		}
		writeInternalError(w, err)
		return
	}

	value, ok := h.open(path).Get(env, r.PathValue("key"))
	if !ok {
		http.Error(w, "Config not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(value))
}

func requestIDFromContext(ctx context.Context) string {
	if v := ctx.Value(requestIDContextKey); v != nil {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

type setValueRequest struct {
	Value *string `json:"value"`
}

type successResponse struct {
	Success bool `json:"success"`
}

type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if status != 0 {
		w.WriteHeader(status)
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message, details string) {
	writeJSON(w, status, errorResponse{
		Error:   message,
		Details: details,
	})
}

func writeInternalError(w http.ResponseWriter, err error) {
	writeError(w, http.StatusInternalServerError, "Internal error", err.Error())
}
