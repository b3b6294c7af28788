package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stoik/inboxiq/internal/models"
	"github.com/stoik/inboxiq/services/lead-service/internal/detection"
	"github.com/stoik/inboxiq/services/lead-service/internal/followup"
	"github.com/stoik/inboxiq/services/lead-service/internal/store"
)

// ErrorResponse is the JSON body of every non-2xx reply
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Detector, RecencyService and FollowUps are the pipeline operations the
// router exposes.
type Detector interface {
	Detect(ctx context.Context, userID uuid.UUID, userEmail string) (detection.Result, error)
}

type RecencyService interface {
	Get(ctx context.Context, userID, leadID uuid.UUID) (models.Recency, error)
	Refresh(ctx context.Context, userID, leadID uuid.UUID) (models.Recency, error)
}

type FollowUps interface {
	Generate(ctx context.Context, userID, leadID uuid.UUID) (followup.Draft, error)
}

type Handler struct {
	detector Detector
	recency  RecencyService
	followUp FollowUps
	// RequestTimeout bounds each request's storage work. Follow-up
	// generation gets the provider timeout on top of it.
	RequestTimeout time.Duration
}

func NewHandler(detector Detector, recency RecencyService, followUp FollowUps) *Handler {
	return &Handler{
		detector:       detector,
		recency:        recency,
		followUp:       followUp,
		RequestTimeout: 2 * time.Minute,
	}
}

// NewRouter wires the lead pipeline routes onto a gin engine
func NewRouter(h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	users := r.Group("/users/:userId")
	{
		users.POST("/leads/detect", h.DetectLeads)
		users.GET("/leads/:leadId/recency", h.GetRecency)
		users.POST("/leads/:leadId/recency", h.RefreshRecency)
		users.POST("/leads/:leadId/follow-up", h.GenerateFollowUp)
	}

	return r
}

type detectRequest struct {
	Email string `json:"email" binding:"required"`
}

// DetectLeads runs lead detection for one user
func (h *Handler) DetectLeads(c *gin.Context) {
	userID, ok := parseID(c, "userId")
	if !ok {
		return
	}

	var req detectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_request", Message: err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.RequestTimeout)
	defer cancel()

	result, err := h.detector.Detect(ctx, userID, req.Email)
	if err != nil {
		writeError(c, err, "Failed to detect leads")
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetRecency returns the computed recency without saving it
func (h *Handler) GetRecency(c *gin.Context) {
	h.recencyReply(c, h.recency.Get)
}

// RefreshRecency recomputes recency and saves it onto the lead
func (h *Handler) RefreshRecency(c *gin.Context) {
	h.recencyReply(c, h.recency.Refresh)
}

func (h *Handler) recencyReply(c *gin.Context, fn func(ctx context.Context, userID, leadID uuid.UUID) (models.Recency, error)) {
	userID, ok := parseID(c, "userId")
	if !ok {
		return
	}
	leadID, ok := parseID(c, "leadId")
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.RequestTimeout)
	defer cancel()

	r, err := fn(ctx, userID, leadID)
	if err != nil {
		writeError(c, err, "Failed to compute recency")
		return
	}

	c.JSON(http.StatusOK, r)
}

// GenerateFollowUp drafts and saves a follow-up email for a lead
func (h *Handler) GenerateFollowUp(c *gin.Context) {
	userID, ok := parseID(c, "userId")
	if !ok {
		return
	}
	leadID, ok := parseID(c, "leadId")
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.RequestTimeout)
	defer cancel()

	draft, err := h.followUp.Generate(ctx, userID, leadID)
	if err != nil {
		writeError(c, err, "Failed to generate follow-up")
		return
	}

	c.JSON(http.StatusCreated, draft)
}

func parseID(c *gin.Context, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(param))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_" + param, Message: "must be a UUID"})
		return uuid.Nil, false
	}
	return id, true
}

func writeError(c *gin.Context, err error, message string) {
	switch {
	case errors.Is(err, detection.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_input", Message: err.Error()})
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "not_found", Message: err.Error()})
	default:
		log.Printf("%s %s: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "server_error", Message: message})
	}
}
