package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ireadorg/readsync/internal/config"
	"github.com/ireadorg/readsync/internal/remote"
	"github.com/ireadorg/readsync/internal/sync"
)

type Handler struct {
	cfg       *config.Config
	manager   *sync.Manager
	gateway   *remote.Gateway
	debouncer *remote.Debouncer
}

func NewHandler(cfg *config.Config, manager *sync.Manager, gateway *remote.Gateway, debouncer *remote.Debouncer) *Handler {
	return &Handler{
		cfg:       cfg,
		manager:   manager,
		gateway:   gateway,
		debouncer: debouncer,
	}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(CorsMiddleware)

	r.Get("/health", h.HealthCheck)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(AuthMiddleware(h.cfg.Server.AuthToken))

		r.Post("/sync/trigger", h.TriggerSync)
		r.Post("/sync/cancel", h.CancelSync)
		r.Get("/sync/status", h.GetSyncStatus)
		r.Get("/sync/devices", h.ListDevices)
		r.Get("/sync/history", h.GetSyncHistory)
		r.Post("/discovery/start", h.StartDiscovery)
		r.Post("/discovery/stop", h.StopDiscovery)

		r.Get("/conflicts", h.ListConflicts)
		r.Post("/conflicts/{id}/resolve", h.ResolveConflict)

		r.Get("/queue", h.QueueStatus)
		r.Post("/queue/flush", h.FlushQueue)

		r.Post("/auth/signup", h.SignUp)
		r.Post("/auth/signin", h.SignIn)
		r.Post("/auth/signout", h.SignOut)
		r.Get("/users/me", h.GetCurrentUser)
		r.Put("/users/me/username", h.UpdateUsername)

		r.Post("/progress", h.SaveProgress)
		r.Get("/progress", h.GetProgress)
	})

	return r
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Handler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DeviceID string `json:"device_id"`
		Strategy string `json:"strategy"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	sessionID, err := h.manager.StartSync(req.DeviceID, req.Strategy)
	if err != nil {
		var syncErr *sync.SyncError
		if errors.As(err, &syncErr) && syncErr.Code == sync.CodeDeviceNotFound {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	writeJSON(w, map[string]string{"status": "started", "session_id": sessionID})
}

func (h *Handler) CancelSync(w http.ResponseWriter, r *http.Request) {
	h.manager.CancelSync()
	writeJSON(w, map[string]string{"status": "cancelled"})
}

func (h *Handler) GetSyncStatus(w http.ResponseWriter, r *http.Request) {
	status := h.manager.Status()
	writeJSON(w, map[string]interface{}{
		"state":  status.State.String(),
		"status": status,
	})
}

func (h *Handler) ListDevices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]interface{}{"devices": h.manager.Devices()})
}

func (h *Handler) GetSyncHistory(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r, 20)
	history, err := h.manager.History(r.Context(), limit, offset)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]interface{}{"history": history})
}

func (h *Handler) StartDiscovery(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.StartDiscovery(); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]string{"status": "discovering"})
}

func (h *Handler) StopDiscovery(w http.ResponseWriter, r *http.Request) {
	h.manager.StopDiscovery()
	writeJSON(w, map[string]string{"status": "stopped"})
}

func (h *Handler) ListConflicts(w http.ResponseWriter, r *http.Request) {
	resolved := r.URL.Query().Get("resolved") == "true"
	limit, offset := pagination(r, 50)

	conflicts, err := h.manager.Conflicts(r.Context(), resolved, limit, offset)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]interface{}{"conflicts": conflicts})
}

func (h *Handler) ResolveConflict(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req struct {
		Strategy string `json:"strategy"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.manager.ResolveConflict(r.Context(), id, req.Strategy); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, map[string]string{"status": "resolved"})
}

func (h *Handler) QueueStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]int{"pending": h.gateway.PendingCount()})
}

func (h *Handler) FlushQueue(w http.ResponseWriter, r *http.Request) {
	synced := h.gateway.ProcessPendingQueue(r.Context())
	writeJSON(w, map[string]int{"synced": synced})
}

func (h *Handler) SignUp(w http.ResponseWriter, r *http.Request) {
	h.authenticate(w, r, h.gateway.SignUp)
}

func (h *Handler) SignIn(w http.ResponseWriter, r *http.Request) {
	h.authenticate(w, r, h.gateway.SignIn)
}

func (h *Handler) authenticate(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, email, password string) (*remote.User, error)) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	user, err := op(r.Context(), req.Email, req.Password)
	if err != nil {
		writeRemoteError(w, err)
		return
	}
	writeJSON(w, map[string]interface{}{"user": user})
}

func (h *Handler) SignOut(w http.ResponseWriter, r *http.Request) {
	if err := h.gateway.SignOut(r.Context()); err != nil {
		writeRemoteError(w, err)
		return
	}
	writeJSON(w, map[string]string{"status": "signed_out"})
}

func (h *Handler) GetCurrentUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.gateway.GetCurrentUser(r.Context())
	if err != nil {
		writeRemoteError(w, err)
		return
	}
	if user == nil {
		http.Error(w, "not signed in", http.StatusNotFound)
		return
	}
	writeJSON(w, map[string]interface{}{"user": user})
}

func (h *Handler) UpdateUsername(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID   string `json:"user_id"`
		Username string `json:"username"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.gateway.UpdateUsername(r.Context(), req.UserID, req.Username); err != nil {
		writeRemoteError(w, err)
		return
	}
	writeJSON(w, map[string]string{"status": "updated"})
}

// SaveProgress hands the record to the debouncer: bursts from a reading
// session collapse into a single backend write after the quiet period.
func (h *Handler) SaveProgress(w http.ResponseWriter, r *http.Request) {
	var progress remote.ReadingProgress
	if err := json.NewDecoder(r.Body).Decode(&progress); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if _, err := remote.SanitizeProgress(progress); err != nil {
		writeRemoteError(w, err)
		return
	}

	h.debouncer.ScheduleSync(progress)
	w.WriteHeader(http.StatusAccepted)
	writeJSON(w, map[string]string{"status": "scheduled"})
}

func (h *Handler) GetProgress(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	bookID := r.URL.Query().Get("book_id")
	if userID == "" || bookID == "" {
		http.Error(w, "user_id and book_id are required", http.StatusBadRequest)
		return
	}

	progress, err := h.gateway.GetProgress(r.Context(), userID, bookID)
	if err != nil {
		writeRemoteError(w, err)
		return
	}
	if progress == nil {
		http.Error(w, "progress not found", http.StatusNotFound)
		return
	}
	writeJSON(w, map[string]interface{}{"progress": progress})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeRemoteError(w http.ResponseWriter, err error) {
	var remoteErr *remote.Error
	if errors.As(err, &remoteErr) {
		switch remoteErr.Kind {
		case remote.KindValidation:
			http.Error(w, remoteErr.Message, http.StatusBadRequest)
		case remote.KindAuthentication:
			http.Error(w, remoteErr.Message, http.StatusUnauthorized)
		case remote.KindNetwork:
			http.Error(w, remoteErr.Message, http.StatusServiceUnavailable)
		default:
			http.Error(w, remoteErr.Message, http.StatusInternalServerError)
		}
		return
	}
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

func pagination(r *http.Request, defaultLimit int) (limit, offset int) {
	limit = defaultLimit
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 {
		limit = v
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && v >= 0 {
		offset = v
	}
	return limit, offset
}

func CorsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-CSRF-Token")

		if r.Method == "OPTIONS" {
			return
		}

		next.ServeHTTP(w, r)
	})
}

// AuthMiddleware checks the control-API bearer token. An empty configured
// token disables the check for local development.
func AuthMiddleware(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token != "" {
				got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
				if got != token {
					http.Error(w, "unauthorized", http.StatusUnauthorized)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
