package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/paulmach/orb"

	"parkit-backend/internal/model"
	"parkit-backend/internal/tracker"
)

// spotResponse is a spot as rendered to clients, with its [lng, lat] location.
type spotResponse struct {
	model.ParkingSpot
	Location orb.Point `json:"location"`
}

func toSpotResponse(sp model.ParkingSpot) spotResponse {
	return spotResponse{ParkingSpot: sp, Location: sp.Location()}
}

// ListSpots returns all spots, optionally filtered by status and zone.
func (h *Handler) ListSpots(c *gin.Context) {
	status := model.SpotStatus(c.Query("status"))
	if status != "" && !status.Valid() {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unknown status " + string(status)})
		return
	}
	zone := c.Query("zone")

	spots := h.svc.Spots()
	out := make([]spotResponse, 0, len(spots))
	for _, sp := range spots {
		if status != "" && sp.Status != status {
			continue
		}
		if zone != "" && sp.Zone != zone {
			continue
		}
		out = append(out, toSpotResponse(sp))
	}
	c.JSON(http.StatusOK, out)
}

// GetSpot returns a single spot.
func (h *Handler) GetSpot(c *gin.Context) {
	id, ok := spotID(c)
	if !ok {
		return
	}
	sp, err := h.svc.Spot(id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toSpotResponse(sp))
}

type createSpotRequest struct {
	Label     string    `json:"label" binding:"required"`
	IsEV      bool      `json:"isEV"`
	BasePrice float64   `json:"basePrice"`
	Location  orb.Point `json:"location"`
}

// CreateSpot adds a new free spot.
func (h *Handler) CreateSpot(c *gin.Context) {
	var req createSpotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	sp, err := h.svc.AddSpot(c.Request.Context(), tracker.NewSpot{
		Label:     req.Label,
		IsEV:      req.IsEV,
		BasePrice: req.BasePrice,
		Lng:       req.Location.Lon(),
		Lat:       req.Location.Lat(),
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toSpotResponse(sp))
}

// SpotHistory returns archived status periods of a spot.
func (h *Handler) SpotHistory(c *gin.Context) {
	id, ok := spotID(c)
	if !ok {
		return
	}
	limit, ok := intQuery(c, "limit", 50, 1, 500)
	if !ok {
		return
	}
	rows, err := h.svc.SpotHistory(c.Request.Context(), id, limit)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if rows == nil {
		rows = []model.SpotStatusHistory{}
	}
	c.JSON(http.StatusOK, rows)
}

// QuoteSpot prices a booking without reserving the spot.
func (h *Handler) QuoteSpot(c *gin.Context) {
	id, ok := spotID(c)
	if !ok {
		return
	}
	var req tracker.BookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	q, err := h.svc.Quote(id, req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, q)
}

// BookSpot reserves a free spot.
func (h *Handler) BookSpot(c *gin.Context) {
	id, ok := spotID(c)
	if !ok {
		return
	}
	var req tracker.BookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	b, err := h.svc.BookSpot(c.Request.Context(), id, req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, b)
}

// spotAction adapts a single-spot tracker mutation into a handler.
func (h *Handler) spotAction(fn func(*gin.Context, int64) (model.ParkingSpot, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := spotID(c)
		if !ok {
			return
		}
		sp, err := fn(c, id)
		if err != nil {
			h.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, toSpotResponse(sp))
	}
}

// ReleaseSpot frees a spot.
func (h *Handler) ReleaseSpot(c *gin.Context) {
	h.spotAction(func(c *gin.Context, id int64) (model.ParkingSpot, error) {
		return h.svc.ReleaseSpot(c.Request.Context(), id)
	})(c)
}

// ToggleSpotStatus cycles a spot's status.
func (h *Handler) ToggleSpotStatus(c *gin.Context) {
	h.spotAction(func(c *gin.Context, id int64) (model.ParkingSpot, error) {
		return h.svc.ToggleSpotStatus(c.Request.Context(), id)
	})(c)
}

// ToggleEV flips a spot's EV flag.
func (h *Handler) ToggleEV(c *gin.Context) {
	h.spotAction(func(c *gin.Context, id int64) (model.ParkingSpot, error) {
		return h.svc.ToggleEV(c.Request.Context(), id)
	})(c)
}

type basePriceRequest struct {
	BasePrice float64 `json:"basePrice" binding:"required"`
}

// UpdateBasePrice sets a spot's base price.
func (h *Handler) UpdateBasePrice(c *gin.Context) {
	var req basePriceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	h.spotAction(func(c *gin.Context, id int64) (model.ParkingSpot, error) {
		return h.svc.UpdateBasePrice(c.Request.Context(), id, req.BasePrice)
	})(c)
}
