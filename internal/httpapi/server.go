package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/crowvale/taskdeck/internal/config"
	"github.com/crowvale/taskdeck/internal/directory"
	"github.com/crowvale/taskdeck/internal/feed"
	"github.com/crowvale/taskdeck/internal/gateway"
	"github.com/crowvale/taskdeck/internal/observability"
	"github.com/crowvale/taskdeck/internal/optimistic"
	"github.com/crowvale/taskdeck/internal/service"
	"github.com/crowvale/taskdeck/internal/workflow"
)

type Server struct {
	cfg       config.Config
	svc       *service.Service
	dir       directory.Directory
	gw        gateway.TaskGateway
	listeners *feed.Manager
	metrics   *observability.Metrics
	logger    *zap.Logger
	upgrader  websocket.Upgrader
}

func New(cfg config.Config, svc *service.Service, dir directory.Directory, gw gateway.TaskGateway, listeners *feed.Manager, metrics *observability.Metrics, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		cfg:       cfg,
		svc:       svc,
		dir:       dir,
		gw:        gw,
		listeners: listeners,
		metrics:   metrics,
		logger:    logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Only same-origin browser clients unless explicitly opened up.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Get("/v1/users", s.handleListUsers)
	r.Post("/v1/users", s.handleUpsertUser)

	r.Post("/v1/tasks", s.handleCreateTask)
	r.Get("/v1/tasks", s.handleListTasks)
	r.Get("/v1/tasks/ws", s.handleTasksWS)
	r.Get("/v1/tasks/{id}", s.handleGetTask)
	r.Delete("/v1/tasks/{id}", s.handleDeleteTask)

	r.Post("/v1/tasks/{id}/assign-director", s.handleAssignDirector)
	r.Post("/v1/tasks/{id}/assign-employee", s.handleAssignEmployee)
	r.Post("/v1/tasks/{id}/start", s.handleStart)
	r.Post("/v1/tasks/{id}/complete", s.handleComplete)
	r.Post("/v1/tasks/{id}/director-complete", s.handleDirectorComplete)
	r.Post("/v1/tasks/{id}/approve", s.handleApprove)
	r.Post("/v1/tasks/{id}/reject", s.handleReject)
	r.Post("/v1/tasks/{id}/reapprove", s.handleReapprove)
	r.Post("/v1/tasks/{id}/pause", s.handlePause)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":           "ok",
		"feed_subscribers": s.listeners.Count(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
		"tasks":  len(s.svc.List()),
	})
}

// actorFromRequest resolves the acting user from the X-Actor-ID header.
// Authentication itself is out of scope; actor resolution is not, because
// every transition is authorized against a concrete directory user.
func (s *Server) actorFromRequest(r *http.Request) (workflow.User, error) {
	id := strings.TrimSpace(r.Header.Get("X-Actor-ID"))
	if id == "" {
		return workflow.User{}, errors.New("X-Actor-ID header is required")
	}
	return directory.Find(r.Context(), s.dir, id)
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

// respondDomainError maps the workflow error taxonomy onto HTTP statuses.
func respondDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, workflow.ErrUnauthorized):
		respondError(w, http.StatusForbidden, "unauthorized", err.Error())
	case errors.Is(err, workflow.ErrInvalidTransition):
		respondError(w, http.StatusConflict, "invalid_transition", err.Error())
	case errors.Is(err, workflow.ErrNoApprover):
		respondError(w, http.StatusUnprocessableEntity, "no_approver", err.Error())
	case errors.Is(err, service.ErrTaskNotFound), errors.Is(err, gateway.ErrNotFound):
		respondError(w, http.StatusNotFound, "task_not_found", err.Error())
	case errors.Is(err, optimistic.ErrCommitFailed):
		respondError(w, http.StatusBadGateway, "commit_failed", err.Error())
	case errors.Is(err, directory.ErrUserNotFound):
		respondError(w, http.StatusForbidden, "unknown_actor", err.Error())
	default:
		respondError(w, http.StatusBadRequest, "request_failed", err.Error())
	}
}
