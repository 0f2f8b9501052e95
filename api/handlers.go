package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleListRuns(c *gin.Context) {
	if s.store == nil {
		respondError(c, http.StatusServiceUnavailable, errors.New("no store configured"))
		return
	}

	limit := 0
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			respondError(c, http.StatusBadRequest, errors.New("limit must be a positive integer"))
			return
		}
		limit = n
	}

	runs, err := s.store.ListRuns(c.Request.Context(), limit)
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

func (s *Server) handleGetRun(c *gin.Context) {
	if s.store == nil {
		respondError(c, http.StatusServiceUnavailable, errors.New("no store configured"))
		return
	}

	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		respondError(c, http.StatusBadRequest, errors.New("missing run id"))
		return
	}

	rec, err := s.store.GetReport(c.Request.Context(), id)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			respondError(c, http.StatusNotFound, err)
			return
		}
		respondError(c, http.StatusInternalServerError, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":         rec.ID,
		"dataset":    rec.Dataset,
		"created_at": rec.CreatedAt.Format(time.RFC3339),
		"columns":    rec.Report.Columns,
		"metrics":    rec.Report.Metrics,
		"failures":   rec.Report.Failures,
		"usage":      rec.Report.Usage,
		"row_count":  len(rec.Report.Rows),
	})
}

func (s *Server) handleGetRunRows(c *gin.Context) {
	if s.store == nil {
		respondError(c, http.StatusServiceUnavailable, errors.New("no store configured"))
		return
	}

	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		respondError(c, http.StatusBadRequest, errors.New("missing run id"))
		return
	}

	rec, err := s.store.GetReport(c.Request.Context(), id)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			respondError(c, http.StatusNotFound, err)
			return
		}
		respondError(c, http.StatusInternalServerError, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":      rec.ID,
		"columns": rec.Report.Columns,
		"rows":    rec.Report.Rows,
	})
}

func respondError(c *gin.Context, status int, err error) {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, gin.H{"error": msg})
}
