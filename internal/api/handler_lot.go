package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"parkit-backend/internal/model"
	"parkit-backend/internal/pricing"
	"parkit-backend/internal/tracker"
)

// GetStats returns the aggregate lot statistics.
func (h *Handler) GetStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.Stats())
}

// GetPricing returns the pricing config and the surge table currently applied.
func (h *Handler) GetPricing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"config":            h.svc.PricingConfig(),
		"activeMultipliers": h.svc.Multipliers(),
	})
}

// GetMultipliers lists the surge table of every pricing rule.
func (h *Handler) GetMultipliers(c *gin.Context) {
	out := make(map[model.PricingRule]pricing.Multipliers, 3)
	for _, rule := range []model.PricingRule{model.RuleConservative, model.RuleBalanced, model.RuleAggressive} {
		m, _ := pricing.RuleMultipliers(rule)
		out[rule] = m
	}
	c.JSON(http.StatusOK, gin.H{
		"rules":  out,
		"active": h.svc.Multipliers(),
		"thresholds": gin.H{
			"high":     pricing.HighDemandThreshold,
			"moderate": pricing.ModerateDemandThreshold,
		},
	})
}

// PatchPricing applies a partial pricing config update.
func (h *Handler) PatchPricing(c *gin.Context) {
	var patch tracker.PricingPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		badRequest(c, err)
		return
	}
	cfg, err := h.svc.UpdatePricingConfig(c.Request.Context(), patch)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

// GetSnapshots returns the occupancy history, oldest first.
func (h *Handler) GetSnapshots(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.Snapshots())
}

// GetPrediction forecasts free spots ?minutes ahead.
func (h *Handler) GetPrediction(c *gin.Context) {
	minutes, ok := intQuery(c, "minutes", 0, 1, 24*60)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.svc.Forecast(minutes))
}

type simulateFillRequest struct {
	Count int `json:"count" binding:"required,min=1"`
}

// SimulateFill occupies up to count free spots.
func (h *Handler) SimulateFill(c *gin.Context) {
	var req simulateFillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	filled, err := h.svc.SimulateFill(c.Request.Context(), req.Count)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"filled": filled})
}

// ClearReservations frees every reserved spot.
func (h *Handler) ClearReservations(c *gin.Context) {
	cleared, err := h.svc.ClearReservations(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cleared": cleared})
}
