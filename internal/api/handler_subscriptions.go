package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"parkit-backend/internal/model"
)

type putSubscriptionRequest struct {
	Endpoint        string  `json:"endpoint" binding:"required"`
	P256DH          string  `json:"p256dh" binding:"required"`
	Auth            string  `json:"auth" binding:"required"`
	SubscribedSpots []int64 `json:"subscribed_spots"`
}

// PutSubscription creates or replaces a subscription and the spots it watches.
func (h *Handler) PutSubscription(c *gin.Context) {
	var req putSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	subscription := model.PushSubscription{
		Endpoint: req.Endpoint,
		P256DH:   req.P256DH,
		Auth:     req.Auth,
	}

	err := h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "endpoint"}},
			DoUpdates: clause.AssignmentColumns([]string{"p256dh", "auth"}),
		}).Create(&subscription).Error; err != nil {
			return err
		}

		spots := []*model.ParkingSpot{}
		if len(req.SubscribedSpots) > 0 {
			if err := tx.Find(&spots, req.SubscribedSpots).Error; err != nil {
				return err
			}
		}

		return tx.Model(&subscription).Association("Spots").Replace(spots)
	})

	if err != nil {
		h.log.Errorf("put subscription: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save subscription"})
		return
	}

	c.Status(http.StatusCreated)
}

type deleteSubscriptionRequest struct {
	Endpoint string `json:"endpoint" binding:"required"`
}

// DeleteSubscription removes a subscription and its spot mappings.
func (h *Handler) DeleteSubscription(c *gin.Context) {
	var req deleteSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	sub := model.PushSubscription{Endpoint: req.Endpoint}
	if err := h.db.WithContext(c.Request.Context()).Select("Spots").Delete(&sub).Error; err != nil {
		h.log.Errorf("delete subscription: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete subscription"})
		return
	}

	c.Status(http.StatusNoContent)
}

// GetSubscription returns the spots watched by ?endpoint=.
// The endpoint is matched as sent, without URL decoding.
func (h *Handler) GetSubscription(c *gin.Context) {
	raw, ok := rawQueryParam(c.Request.URL.RawQuery, "endpoint")
	if !ok || raw == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "endpoint is required"})
		return
	}

	var subscription model.PushSubscription
	if err := h.db.WithContext(c.Request.Context()).Preload("Spots").First(&subscription, "endpoint = ?", raw).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "subscription not found"})
		} else {
			h.log.Errorf("get subscription: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load subscription"})
		}
		return
	}

	spotIDs := make([]int64, len(subscription.Spots))
	for i, spot := range subscription.Spots {
		spotIDs[i] = spot.ID
	}

	c.JSON(http.StatusOK, gin.H{"subscribed_spots": spotIDs})
}

func rawQueryParam(rawQuery, key string) (string, bool) {
	for kv := range strings.SplitSeq(rawQuery, "&") {
		if v, ok := strings.CutPrefix(kv, key+"="); ok {
			return v, true
		}
	}
	return "", false
}
