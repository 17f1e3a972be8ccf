package httpapi

import (
	"context"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/helix-run/helix/internal/orchestrator"
)

// executeRequest is the body of POST /execute (spec §6).
type executeRequest struct {
	ProjectPath string `json:"project_path" binding:"required"`
	PhaseFilter string `json:"phase_filter"`
}

// handleExecute starts a run and returns its Job immediately; the
// Orchestrator drives the run in the background, emitting events that
// /stream/{id} relays.
func (s *Server) handleExecute(c *gin.Context) {
	var req executeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	job := s.bus.CreateJob(req.ProjectPath)
	projectID := filepath.Base(req.ProjectPath)

	runCtx, cancel := context.WithCancel(context.Background())
	s.bus.SetCancel(job.ID, cancel)

	go func() {
		defer cancel()
		if _, err := s.orchestrator.Run(runCtx, orchestrator.RunOptions{
			ProjectDir:  req.ProjectPath,
			ProjectID:   projectID,
			ProjectName: projectID,
			JobID:       job.ID,
			PhaseFilter: req.PhaseFilter,
			Resume:      true,
		}); err != nil {
			s.log.Error("orchestrator run failed", "job_id", job.ID, "error", err)
		}
	}()

	c.JSON(http.StatusAccepted, job)
}

func (s *Server) handleListJobs(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}
	c.JSON(http.StatusOK, s.bus.ListJobs(limit))
}

func (s *Server) handleGetJob(c *gin.Context) {
	job := s.bus.GetJob(c.Param("id"))
	if job == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	c.JSON(http.StatusOK, job)
}

func (s *Server) handleCancelJob(c *gin.Context) {
	if !s.bus.Cancel(c.Param("id")) {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	c.Status(http.StatusNoContent)
}
