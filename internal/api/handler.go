package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/benmeehan/proximity-agent/internal/models"
	"github.com/benmeehan/proximity-agent/internal/proximity"
	"github.com/benmeehan/proximity-agent/internal/store"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

type positionHandler interface {
	HandleSample(ctx context.Context, sample models.PositionSample) (models.ProximityUpdate, error)
}

type ledgerView interface {
	Stats() models.LedgerStats
}

type permission interface {
	Grant()
	Revoke()
	Granted() bool
}

// HealthCheck reports an error when a dependency is unavailable.
type HealthCheck func(ctx context.Context) error

type permissionRequest struct {
	Granted *bool `json:"granted" binding:"required"`
}

type positionResponse struct {
	models.ProximityEvent
	Error string `json:"error,omitempty"`
}

// Handler serves the local status and control API.
type Handler struct {
	store      store.MarkerStore
	ledger     ledgerView
	permission permission
	positions  positionHandler
	checks     map[string]HealthCheck
	events     *EventHub
	deviceID   string
	logger     zerolog.Logger
	now        func() time.Time
}

func NewHandler(markerStore store.MarkerStore, ledger ledgerView, perm permission, positions positionHandler,
	checks map[string]HealthCheck, deviceID string, logger zerolog.Logger) *Handler {
	return &Handler{
		store:      markerStore,
		ledger:     ledger,
		permission: perm,
		positions:  positions,
		checks:     checks,
		deviceID:   deviceID,
		logger:     logger,
		now:        time.Now,
	}
}

// WithEvents enables the /events websocket stream backed by hub.
func (h *Handler) WithEvents(hub *EventHub) *Handler {
	h.events = hub
	return h
}

func (h *Handler) Register(r *gin.RouterGroup) {
	r.GET("/healthz", h.Health)
	r.GET("/markers", h.ListMarkers)
	r.POST("/markers", h.CreateMarker)
	r.DELETE("/markers/:id", h.DeleteMarker)
	r.GET("/notifications", h.ListNotifications)
	r.PUT("/notifications/permission", h.SetPermission)
	r.POST("/positions", h.PostPosition)
	if h.events != nil {
		r.GET("/events", h.StreamEvents)
	}
}

func (h *Handler) Health(c *gin.Context) {
	status := http.StatusOK
	deps := gin.H{}

	for name, check := range h.checks {
		if err := check(c.Request.Context()); err != nil {
			deps[name] = gin.H{"status": "down", "error": err.Error()}
			status = http.StatusServiceUnavailable
		} else {
			deps[name] = gin.H{"status": "up"}
		}
	}

	overall := "healthy"
	if status != http.StatusOK {
		overall = "unhealthy"
	}

	c.JSON(status, gin.H{
		"status":       overall,
		"dependencies": deps,
	})
}

func (h *Handler) ListMarkers(c *gin.Context) {
	markers, err := h.store.ListMarkers(c.Request.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list markers")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch markers"})
		return
	}
	if markers == nil {
		markers = []models.Marker{}
	}
	c.JSON(http.StatusOK, markers)
}

func (h *Handler) CreateMarker(c *gin.Context) {
	var in models.NewMarker
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := in.Coordinate().Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	marker, err := h.store.AddMarker(c.Request.Context(), in)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to add marker")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to add marker"})
		return
	}
	c.JSON(http.StatusCreated, marker)
}

func (h *Handler) DeleteMarker(c *gin.Context) {
	err := h.store.DeleteMarker(c.Request.Context(), c.Param("id"))
	switch {
	case errors.Is(err, store.ErrMarkerNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "marker not found"})
	case err != nil:
		h.logger.Error().Err(err).Str("marker_id", c.Param("id")).Msg("Failed to delete marker")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete marker"})
	default:
		c.Status(http.StatusNoContent)
	}
}

func (h *Handler) ListNotifications(c *gin.Context) {
	stats := h.ledger.Stats()
	stats.DeviceID = h.deviceID
	c.JSON(http.StatusOK, stats)
}

func (h *Handler) SetPermission(c *gin.Context) {
	var req permissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "granted: required"})
		return
	}

	if *req.Granted {
		h.permission.Grant()
	} else {
		h.permission.Revoke()
	}
	h.logger.Info().Bool("granted", *req.Granted).Msg("Notification permission changed")
	c.JSON(http.StatusOK, gin.H{"granted": h.permission.Granted()})
}

func (h *Handler) PostPosition(c *gin.Context) {
	var msg models.PositionMessage
	if err := c.ShouldBindJSON(&msg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	sample := msg.Sample("api", h.now())
	if err := sample.Coordinate.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	update, err := h.positions.HandleSample(c.Request.Context(), sample)
	if proximity.IsRejected(err) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil && update.Current == nil {
		h.logger.Error().Err(err).Msg("Failed to process position")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to process position"})
		return
	}

	resp := positionResponse{ProximityEvent: update.Event(h.deviceID)}
	if err != nil {
		resp.Error = err.Error()
	}
	c.JSON(http.StatusOK, resp)
}
