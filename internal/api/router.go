package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/LJTian/DigestHub/internal/pipeline"
	"github.com/LJTian/DigestHub/internal/scheduler"
	"github.com/LJTian/DigestHub/internal/storage"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// Jobs starts a pipeline run without waiting for it.
type Jobs interface {
	Trigger() error
}

type StateReporter interface {
	State() pipeline.State
}

type ProviderSet interface {
	Supports(provider string) bool
}

type Server struct {
	store     *storage.Store
	jobs      Jobs
	pipeline  StateReporter
	providers ProviderSet
	gatherer  prometheus.Gatherer
	log       *zap.Logger
}

func NewServer(store *storage.Store, jobs Jobs, state StateReporter, providers ProviderSet, gatherer prometheus.Gatherer, logger *zap.Logger) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &Server{
		store:     store,
		jobs:      jobs,
		pipeline:  state,
		providers: providers,
		gatherer:  gatherer,
		log:       logger.With(zap.String("component", "api")),
	}
}

func (s *Server) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", s.health)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))

	v1 := r.Group("/api/v1")
	{
		v1.GET("/digests", s.listDigests)
		v1.POST("/jobs/run", s.runJob)
		v1.POST("/users/:id/channels", s.createChannel)
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "pipeline": s.pipeline.State()})
}

func (s *Server) listDigests(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit <= 0 {
		limit = 20
	}

	items, err := s.store.RecentDigests(c.Request.Context(), limit)
	if err != nil {
		s.internalError(c, "list digests", err)
		return
	}
	respondOK(c, http.StatusOK, items)
}

func (s *Server) runJob(c *gin.Context) {
	err := s.jobs.Trigger()
	switch {
	case err == nil:
		respondOK(c, http.StatusAccepted, gin.H{"pipeline": s.pipeline.State()})
	case errors.Is(err, scheduler.ErrBusy):
		respondError(c, http.StatusConflict, "run_in_progress", "a pipeline run is already in progress")
	case errors.Is(err, context.Canceled):
		respondError(c, http.StatusServiceUnavailable, "shutting_down", "service is shutting down")
	default:
		s.internalError(c, "trigger run", err)
	}
}

type createChannelRequest struct {
	Provider    string         `json:"provider" binding:"required"`
	Name        string         `json:"name"`
	Credentials map[string]any `json:"credentials" binding:"required"`
	IsActive    *bool          `json:"isActive"`
}

func (s *Server) createChannel(c *gin.Context) {
	userID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || userID == 0 {
		respondError(c, http.StatusBadRequest, "invalid_user", "user id must be a positive integer")
		return
	}

	var req createChannelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	req.Provider = strings.TrimSpace(req.Provider)
	if !s.providers.Supports(req.Provider) {
		respondError(c, http.StatusBadRequest, "unknown_provider", "unsupported provider "+req.Provider)
		return
	}
	if len(req.Credentials) == 0 {
		respondError(c, http.StatusBadRequest, "invalid_body", "credentials must not be empty")
		return
	}

	ctx := c.Request.Context()
	exists, err := s.store.UserExists(ctx, uint(userID))
	if err != nil {
		s.internalError(c, "lookup user", err)
		return
	}
	if !exists {
		respondError(c, http.StatusNotFound, "not_found", "user not found")
		return
	}

	ch := &storage.NotificationChannel{
		UserID:      uint(userID),
		Provider:    req.Provider,
		Name:        req.Name,
		Credentials: datatypes.JSONMap(req.Credentials),
		IsActive:    req.IsActive == nil || *req.IsActive,
	}
	if err := s.store.CreateChannel(ctx, ch); err != nil {
		if errors.Is(err, storage.ErrChannelExists) {
			respondError(c, http.StatusConflict, "channel_exists", "user already has a channel for "+req.Provider)
			return
		}
		s.internalError(c, "create channel", err)
		return
	}
	respondOK(c, http.StatusCreated, ch)
}

func (s *Server) internalError(c *gin.Context, op string, err error) {
	s.log.Error(op, zap.String("path", c.FullPath()), zap.Error(err))
	respondError(c, http.StatusInternalServerError, "internal_error", "internal server error")
}

func respondOK(c *gin.Context, status int, data any) {
	c.JSON(status, gin.H{
		"code":    "ok",
		"message": "success",
		"data":    data,
	})
}

func respondError(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{
		"code":    code,
		"message": message,
	})
}
