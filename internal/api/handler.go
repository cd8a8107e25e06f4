package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"parkit-backend/internal/logger"
	"parkit-backend/internal/pricing"
	"parkit-backend/internal/snapshot"
	"parkit-backend/internal/tracker"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	svc     *tracker.Service
	db      *gorm.DB
	webpush *webpush.Options
	log     logger.Logger
}

// NewHandler creates a new API handler. db backs the push subscription endpoints.
func NewHandler(svc *tracker.Service, db *gorm.DB, webpushOptions *webpush.Options, log logger.Logger) *Handler {
	if log == nil {
		log = logger.NopLogger{}
	}
	return &Handler{
		svc:     svc,
		db:      db,
		webpush: webpushOptions,
		log:     log,
	}
}

// respondError maps domain errors onto HTTP status codes.
func (h *Handler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, tracker.ErrInvalidInput), errors.Is(err, pricing.ErrInvalidHours):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, tracker.ErrSpotNotFound), errors.Is(err, tracker.ErrBookingNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, tracker.ErrSpotUnavailable), errors.Is(err, tracker.ErrBookingNotActive):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, snapshot.ErrOutOfOrder), errors.Is(err, snapshot.ErrInvalidCounts):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		h.log.Errorf("%s %s: %v", c.Request.Method, c.FullPath(), err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

func badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid request", "detail": err.Error()})
}

// spotID parses the :id path parameter.
func spotID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid spot id"})
		return 0, false
	}
	return id, true
}

// intQuery parses an optional integer query parameter.
func intQuery(c *gin.Context, key string, def, lo, hi int) (int, bool) {
	raw := c.Query(key)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < lo || v > hi {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": key + " must be an integer between " + strconv.Itoa(lo) + " and " + strconv.Itoa(hi)})
		return 0, false
	}
	return v, true
}
