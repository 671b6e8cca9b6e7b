package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/datales/cubechat/internal/chat"
	"github.com/datales/cubechat/internal/schema"
	"github.com/datales/cubechat/internal/session"
)

// API request/response types

// ChatRequest represents one dialogue turn. An empty session ID starts
// a new session.
type ChatRequest struct {
	SessionID string `json:"session_id,omitempty"`
	Message   string `json:"message" binding:"required"`
}

// CubeSummary is the catalog listing entry for one cube.
type CubeSummary struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Dimensions  int    `json:"dimensions"`
	Measures    int    `json:"measures"`
}

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// Health handlers

func (s *Server) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "cubechat",
	})
}

func (s *Server) readyHandler(c *gin.Context) {
	// Check that the session store is accessible
	_, err := s.sessions.Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"error":  err.Error(),
		})
		return
	}

	if len(s.catalog.ListCubes()) == 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"error":  "catalog is empty",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
	})
}

// Chat handler

func (s *Server) handleChat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid request body",
			Details: err.Error(),
		})
		return
	}

	resp, err := s.chat.Respond(c.Request.Context(), req.SessionID, req.Message)
	if err != nil {
		var notFound *session.ErrNotFound
		switch {
		case errors.As(err, &notFound):
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error: "session not found",
				Code:  "session_not_found",
			})
		case errors.Is(err, chat.ErrEmptyMessage):
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error: "message cannot be empty",
			})
		default:
			s.logger.Error("turn failed",
				zap.String("session", req.SessionID),
				zap.Error(err),
			)
			c.JSON(http.StatusInternalServerError, ErrorResponse{
				Error:   "failed to process turn",
				Details: err.Error(),
			})
		}
		return
	}

	c.JSON(http.StatusOK, resp)
}

// Session handlers

func (s *Server) getSession(c *gin.Context) {
	sess, err := s.sessions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		var notFound *session.ErrNotFound
		if errors.As(err, &notFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error: "session not found",
				Code:  "session_not_found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "failed to get session",
			Details: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, sess)
}

func (s *Server) deleteSession(c *gin.Context) {
	err := s.sessions.Delete(c.Request.Context(), c.Param("id"))
	if err != nil {
		var notFound *session.ErrNotFound
		if errors.As(err, &notFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error: "session not found",
				Code:  "session_not_found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "failed to delete session",
			Details: err.Error(),
		})
		return
	}

	c.Status(http.StatusNoContent)
}

// Catalog handlers

func (s *Server) listCubes(c *gin.Context) {
	cubes := s.catalog.Cubes()
	out := make([]CubeSummary, 0, len(cubes))
	for _, cube := range cubes {
		out = append(out, CubeSummary{
			Name:        cube.Name,
			Description: cube.Description,
			Dimensions:  len(cube.Dimensions),
			Measures:    len(cube.Measures),
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"cubes": out,
		"count": len(out),
	})
}

func (s *Server) getCube(c *gin.Context) {
	cube, err := s.catalog.Cube(c.Param("name"))
	if err != nil {
		if errors.Is(err, schema.ErrCubeNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error: "cube not found",
				Code:  "cube_not_found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "failed to get cube",
			Details: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, cube)
}

// Stats handler

func (s *Server) getStats(c *gin.Context) {
	stats, err := s.sessions.Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "failed to get stats",
			Details: err.Error(),
		})
		return
	}

	s.metrics.SetSessionsActive(stats.TotalSessions)
	s.metrics.SetStorageSizeBytes(stats.StorageSizeBytes)

	c.JSON(http.StatusOK, gin.H{
		"sessions": stats,
		"cubes":    len(s.catalog.ListCubes()),
	})
}
