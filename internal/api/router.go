package api

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"parkit-backend/internal/mw"
)

// RouterConfig carries the HTTP surface settings.
type RouterConfig struct {
	RateLimitPerSec float64
	RateLimitBurst  int
	RequestIPHeader string
	CacheTTL        time.Duration
	AllowedOrigins  []string

	// Limiter overrides the limiter built from RateLimitPerSec and RateLimitBurst.
	Limiter *mw.IPRateLimiter

	MetricsPath    string
	MetricsHandler http.Handler
}

// NewRouter creates and configures a new Gin router.
func NewRouter(h *Handler, cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	r.Use(cors.New(corsConfig(cfg.AllowedOrigins)))

	limiter := cfg.Limiter
	if limiter == nil {
		limiter = mw.NewIPRateLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst)
	}
	cache := mw.NewResponseCache(cfg.CacheTTL)
	caching := cache.Middleware()

	api := r.Group("/api")
	api.Use(mw.RateLimiter(limiter, mw.ClientKey(cfg.RequestIPHeader)), cache.FlushOnWrite())
	{
		api.GET("/spots", caching, h.ListSpots)
		api.POST("/spots", h.CreateSpot)
		api.GET("/spots/:id", caching, h.GetSpot)
		api.GET("/spots/:id/history", h.SpotHistory)
		api.POST("/spots/:id/quote", h.QuoteSpot)
		api.POST("/spots/:id/book", h.BookSpot)
		api.POST("/spots/:id/release", h.ReleaseSpot)
		api.POST("/spots/:id/toggle-status", h.ToggleSpotStatus)
		api.POST("/spots/:id/toggle-ev", h.ToggleEV)
		api.PUT("/spots/:id/base-price", h.UpdateBasePrice)

		api.GET("/bookings", h.ListBookings)
		api.POST("/bookings/:id/end", h.EndBooking)

		api.GET("/stats", caching, h.GetStats)
		api.GET("/pricing", caching, h.GetPricing)
		api.PATCH("/pricing", h.PatchPricing)
		api.GET("/pricing/multipliers", caching, h.GetMultipliers)
		api.GET("/snapshots", caching, h.GetSnapshots)
		api.GET("/prediction", caching, h.GetPrediction)

		api.POST("/simulate/fill", h.SimulateFill)
		api.POST("/reservations/clear", h.ClearReservations)

		api.GET("/subscriptions", h.GetSubscription)
		api.PUT("/subscriptions", h.PutSubscription)
		api.DELETE("/subscriptions", h.DeleteSubscription)
		api.GET("/vapid_public_key", h.GetVAPIDPublicKey)
	}

	if cfg.MetricsHandler != nil {
		path := cfg.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.GET(path, gin.WrapH(cfg.MetricsHandler))
	}

	return r
}

func corsConfig(origins []string) cors.Config {
	c := cors.DefaultConfig()
	if len(origins) == 0 {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = origins
	}
	c.AllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions}
	c.AllowHeaders = append(c.AllowHeaders, "Authorization")
	return c
}
