package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jdziat/sitepipe/pkg/core"
	"github.com/jdziat/sitepipe/pkg/queue"
)

type submitRequest struct {
	Key     string          `json:"key"`
	Payload json.RawMessage `json:"payload"`
}

type submitResponse struct {
	JobID       string         `json:"jobId"`
	Status      core.JobStatus `json:"status"`
	StatusURL   string         `json:"statusUrl"`
	ProgressURL string         `json:"progressUrl"`
}

type listResponse struct {
	Jobs []*core.Job `json:"jobs"`
}

func (s *server) submitJob(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "request body must be a JSON object"})
		return
	}

	job, err := s.queue.Submit(c.Request.Context(), queue.SubmitRequest{Key: req.Key, Payload: req.Payload})
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, submitResponse{
		JobID:       job.ID,
		Status:      job.Status,
		StatusURL:   fmt.Sprintf("/jobs/%s", job.ID),
		ProgressURL: fmt.Sprintf("/jobs/%s/stream", job.ID),
	})
}

func (s *server) getJob(c *gin.Context) {
	view, err := s.queue.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (s *server) listJobs(c *gin.Context) {
	var filter core.JobFilter
	for _, raw := range c.QueryArray("status") {
		for _, st := range strings.Split(raw, ",") {
			if st = strings.TrimSpace(st); st != "" {
				filter.Statuses = append(filter.Statuses, core.JobStatus(st))
			}
		}
	}
	filter.Key = c.Query("key")

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		limit = n
	}

	jobs, err := s.queue.List(c.Request.Context(), filter, limit)
	if err != nil {
		abortWithError(c, err)
		return
	}
	if jobs == nil {
		jobs = []*core.Job{}
	}
	c.JSON(http.StatusOK, listResponse{Jobs: jobs})
}

func (s *server) tick(c *gin.Context) {
	if s.config.ticker == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "scheduler disabled"})
		return
	}
	c.JSON(http.StatusOK, s.config.ticker.Tick(c.Request.Context()))
}

func (s *server) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := s.queue.Store().Ping(ctx); err != nil {
		_ = c.Error(err)
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
