package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/crowvale/taskdeck/internal/service"
	"github.com/crowvale/taskdeck/internal/workflow"
)

type createTaskRequest struct {
	Title                  string    `json:"title"`
	Description            string    `json:"description"`
	Category               string    `json:"category"`
	Priority               string    `json:"priority"`
	DueDate                time.Time `json:"due_date"`
	AssignedTo             string    `json:"assigned_to"`
	SkipDirectorApproval   bool      `json:"skip_director_approval"`
	DirectChairmanApproval bool      `json:"direct_chairman_approval"`
}

type assignRequest struct {
	DirectorID string `json:"director_id,omitempty"`
	EmployeeID string `json:"employee_id,omitempty"`
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	actor, err := s.actorFromRequest(r)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	var req createTaskRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	task, err := s.svc.Create(r.Context(), actor, service.CreateRequest{
		Title:                  req.Title,
		Description:            req.Description,
		Category:               req.Category,
		Priority:               workflow.Priority(strings.TrimSpace(req.Priority)),
		DueDate:                req.DueDate,
		AssignedTo:             req.AssignedTo,
		SkipDirectorApproval:   req.SkipDirectorApproval,
		DirectChairmanApproval: req.DirectChairmanApproval,
	})
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, task)
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"tasks": s.svc.List(),
	})
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	taskID := strings.TrimSpace(chi.URLParam(r, "id"))
	if taskID == "" {
		respondError(w, http.StatusBadRequest, "invalid_task_id", "missing task id")
		return
	}
	task, err := s.svc.Get(taskID)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, task)
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	actor, err := s.actorFromRequest(r)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	taskID := strings.TrimSpace(chi.URLParam(r, "id"))
	if taskID == "" {
		respondError(w, http.StatusBadRequest, "invalid_task_id", "missing task id")
		return
	}
	if err := s.svc.Delete(r.Context(), taskID, actor); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"deleted": taskID})
}

func (s *Server) handleAssignDirector(w http.ResponseWriter, r *http.Request) {
	s.handleTransitionWithBody(w, r, func(req assignRequest) (workflow.Action, workflow.Params) {
		return workflow.ActionAssignDirector, workflow.Params{AssigneeID: req.DirectorID}
	})
}

func (s *Server) handleAssignEmployee(w http.ResponseWriter, r *http.Request) {
	s.handleTransitionWithBody(w, r, func(req assignRequest) (workflow.Action, workflow.Params) {
		return workflow.ActionAssignEmployee, workflow.Params{AssigneeID: req.EmployeeID}
	})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	s.handleTransition(w, r, workflow.ActionStart, workflow.Params{})
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	s.handleTransition(w, r, workflow.ActionComplete, workflow.Params{})
}

func (s *Server) handleDirectorComplete(w http.ResponseWriter, r *http.Request) {
	s.handleTransition(w, r, workflow.ActionDirectorComplete, workflow.Params{})
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	s.handleTransition(w, r, workflow.ActionApprove, workflow.Params{})
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	var req reasonRequest
	if err := decodeJSON(r, &req); err != nil && err != errEmptyBody {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	s.handleTransition(w, r, workflow.ActionReject, workflow.Params{Reason: req.Reason})
}

func (s *Server) handleReapprove(w http.ResponseWriter, r *http.Request) {
	var req reasonRequest
	if err := decodeJSON(r, &req); err != nil && err != errEmptyBody {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	s.handleTransition(w, r, workflow.ActionReapprove, workflow.Params{Reason: req.Reason})
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	s.handleTransition(w, r, workflow.ActionPause, workflow.Params{})
}

func (s *Server) handleTransition(w http.ResponseWriter, r *http.Request, action workflow.Action, p workflow.Params) {
	actor, err := s.actorFromRequest(r)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	taskID := strings.TrimSpace(chi.URLParam(r, "id"))
	if taskID == "" {
		respondError(w, http.StatusBadRequest, "invalid_task_id", "missing task id")
		return
	}

	task, err := s.svc.Transition(r.Context(), taskID, action, actor, p)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, task)
}

func (s *Server) handleTransitionWithBody(w http.ResponseWriter, r *http.Request, build func(assignRequest) (workflow.Action, workflow.Params)) {
	var req assignRequest
	if err := decodeJSON(r, &req); err != nil && err != errEmptyBody {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	action, p := build(req)
	s.handleTransition(w, r, action, p)
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.dir.ListUsers(r.Context())
	if err != nil {
		respondError(w, http.StatusBadGateway, "directory_unavailable", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"users": users})
}

func (s *Server) handleUpsertUser(w http.ResponseWriter, r *http.Request) {
	var u workflow.User
	if err := decodeJSON(r, &u); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(u.ID) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "user id is required")
		return
	}
	if err := s.dir.UpsertUser(r.Context(), u); err != nil {
		respondError(w, http.StatusBadGateway, "directory_write_failed", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, u)
}
