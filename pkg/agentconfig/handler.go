package agentconfig

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/switchboard-dev/switchboard/pkg/a2a"
	"github.com/switchboard-dev/switchboard/pkg/audit"
)

// Handler serves the admin configure surface. Unlike the RPC endpoint,
// failures here use HTTP status codes directly.
type Handler struct {
	router   chi.Router
	store    *Store
	auditLog *audit.Logger
	logger   *slog.Logger
}

func NewHandler(store *Store, auditLog *audit.Logger, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{store: store, auditLog: auditLog, logger: logger}

	r := chi.NewRouter()
	r.Get("/agent", h.handleGet)
	r.Put("/agent", h.handlePut)
	h.router = r
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	info, err := h.store.Get(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	if info == nil {
		h.writeStatus(w, http.StatusNotFound, "agent identity not configured")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(info)
}

func (h *Handler) handlePut(w http.ResponseWriter, r *http.Request) {
	var info AgentInfo
	if err := json.NewDecoder(r.Body).Decode(&info); err != nil {
		h.writeStatus(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	if info.Name == "" {
		h.writeStatus(w, http.StatusUnprocessableEntity, "name is required")
		return
	}
	if err := h.store.Set(r.Context(), &info); err != nil {
		h.writeError(w, err)
		return
	}
	if h.auditLog != nil {
		_ = h.auditLog.Log(r.Context(), audit.EventConfigChange, "", "", "admin", info.Name)
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(&info)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var rpcErr *a2a.Error
	if !errors.As(err, &rpcErr) {
		rpcErr = a2a.Classify(err)
	}
	h.logger.Error("configure request failed", slog.Any("error", err))
	h.writeStatus(w, a2a.HTTPStatus(rpcErr.Code), rpcErr.Wire().UserMessage)
}

func (h *Handler) writeStatus(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
