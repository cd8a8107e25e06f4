package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ListBookings returns active bookings, optionally for a single user.
func (h *Handler) ListBookings(c *gin.Context) {
	bookings, err := h.svc.Bookings(c.Request.Context(), c.Query("user"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bookings": bookings})
}

// EndBooking completes an active booking and frees its spot.
func (h *Handler) EndBooking(c *gin.Context) {
	id := c.Param("id")
	if err := uuid.Validate(id); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid booking id"})
		return
	}
	b, err := h.svc.EndBooking(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}
