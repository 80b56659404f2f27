// Package api exposes the report service over HTTP for scribed.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/jaimegago/scribe/internal/report"
)

// Server handles HTTP API requests for scribed.
type Server struct {
	service *report.Service
	logger  *slog.Logger
}

// New creates a new API server.
func New(service *report.Service, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{service: service, logger: logger}
}

// RegisterRoutes registers all API routes on the given mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/status", s.handleStatus)

	mux.HandleFunc("POST /api/v1/reports/generate", s.handleGenerate)
	mux.HandleFunc("POST /api/v1/templates/render", s.handleRenderTemplate)

	mux.HandleFunc("GET /api/v1/executions/{promptID}", s.handleListExecutions)
	mux.HandleFunc("DELETE /api/v1/executions/{id}", s.handleDeleteExecution)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": "0.1.0",
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

type generateRequest struct {
	PromptID int            `json:"prompt_id"`
	Request  string         `json:"request"`
	Context  map[string]any `json:"context"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Request == "" {
		writeError(w, http.StatusBadRequest, "request text is required")
		return
	}

	result, err := s.service.Generate(r.Context(), req.PromptID, req.Request, req.Context)
	if err != nil {
		s.logger.Error("generate failed", "prompt_id", req.PromptID, "error", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type renderRequest struct {
	Template  string         `json:"template"`
	Overrides map[int]string `json:"overrides"`
}

func (s *Server) handleRenderTemplate(w http.ResponseWriter, r *http.Request) {
	var req renderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Template == "" {
		writeError(w, http.StatusBadRequest, "template is required")
		return
	}

	result, err := s.service.RenderTemplate(r.Context(), req.Template, req.Overrides)
	if err != nil {
		s.logger.Error("render failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleListExecutions(w http.ResponseWriter, r *http.Request) {
	promptID, err := strconv.Atoi(r.PathValue("promptID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "prompt id must be an integer")
		return
	}

	executions, err := s.service.Executions(r.Context(), promptID)
	if err != nil {
		s.logger.Error("list executions failed", "prompt_id", promptID, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	type executionView struct {
		ID         string         `json:"id"`
		PromptID   int            `json:"prompt_id"`
		ExecutedAt time.Time      `json:"executed_at"`
		IssueCount int            `json:"issue_count"`
		Artifact   string         `json:"artifact"`
		Metadata   map[string]any `json:"metadata"`
	}
	views := make([]executionView, 0, len(executions))
	for _, exec := range executions {
		views = append(views, executionView{
			ID:         exec.ID,
			PromptID:   exec.PromptID,
			ExecutedAt: exec.ExecutedAt,
			IssueCount: len(exec.Issues),
			Artifact:   exec.Artifact,
			Metadata:   exec.Metadata,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"executions": views})
}

func (s *Server) handleDeleteExecution(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	deleted, err := s.service.DeleteExecution(r.Context(), id)
	if err != nil {
		s.logger.Error("delete execution failed", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "execution not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
