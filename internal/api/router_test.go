package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"parkit-backend/internal/db"
	"parkit-backend/internal/metrics"
	"parkit-backend/internal/model"
	"parkit-backend/internal/store"
	"parkit-backend/internal/tracker"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testAPI struct {
	router http.Handler
	db     *gorm.DB
	svc    *tracker.Service
}

func newTestAPI(t *testing.T, cfg RouterConfig, push *webpush.Options) *testAPI {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	gormDB, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, db.Migrate(gormDB))

	svc := tracker.New(store.NewGormStore(gormDB), tracker.Settings{})
	require.NoError(t, svc.Load(context.Background()))

	if cfg.RateLimitPerSec == 0 {
		cfg.RateLimitPerSec = 1000
		cfg.RateLimitBurst = 1000
	}
	h := NewHandler(svc, gormDB, push, nil)
	return &testAPI{router: NewRouter(h, cfg), db: gormDB, svc: svc}
}

func (a *testAPI) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

type spotJSON struct {
	ID       int64      `json:"id"`
	Label    string     `json:"label"`
	Zone     string     `json:"zone"`
	Status   string     `json:"status"`
	IsEV     bool       `json:"isEV"`
	Price    float64    `json:"price"`
	Location [2]float64 `json:"location"`
}

func validBooking() map[string]any {
	return map[string]any{
		"userName":           "Asha",
		"registrationNumber": "ga 01 ab 1234",
		"hours":              2,
		"vehicle":            map[string]any{"type": "4-wheeler", "size": "large"},
	}
}

func TestListSpots(t *testing.T) {
	a := newTestAPI(t, RouterConfig{}, nil)

	w := a.do(t, http.MethodGet, "/api/spots", nil)
	require.Equal(t, http.StatusOK, w.Code)
	spots := decode[[]spotJSON](t, w)
	require.Len(t, spots, 12)
	assert.Equal(t, "Panaji-A1", spots[0].Label)
	assert.Equal(t, [2]float64{73.8278, 15.4909}, spots[0].Location)

	w = a.do(t, http.MethodGet, "/api/spots?status=free", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]spotJSON](t, w), 6)

	w = a.do(t, http.MethodGet, "/api/spots?zone=Panaji%20-%20Block%20B", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]spotJSON](t, w), 2)

	w = a.do(t, http.MethodGet, "/api/spots?status=parked", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetSpot_Errors(t *testing.T) {
	a := newTestAPI(t, RouterConfig{}, nil)

	assert.Equal(t, http.StatusOK, a.do(t, http.MethodGet, "/api/spots/3", nil).Code)
	assert.Equal(t, http.StatusNotFound, a.do(t, http.MethodGet, "/api/spots/99", nil).Code)
	assert.Equal(t, http.StatusBadRequest, a.do(t, http.MethodGet, "/api/spots/abc", nil).Code)
	assert.Equal(t, http.StatusBadRequest, a.do(t, http.MethodGet, "/api/spots/0", nil).Code)
}

func TestCreateSpot(t *testing.T) {
	a := newTestAPI(t, RouterConfig{}, nil)

	w := a.do(t, http.MethodPost, "/api/spots", map[string]any{
		"label":    "Panaji-G1",
		"isEV":     true,
		"location": []float64{73.83, 15.49},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	sp := decode[spotJSON](t, w)
	assert.Equal(t, int64(13), sp.ID)
	assert.Equal(t, "free", sp.Status)
	assert.Equal(t, "Panaji - Block G", sp.Zone)
	assert.Equal(t, [2]float64{73.83, 15.49}, sp.Location)

	w = a.do(t, http.MethodPost, "/api/spots", map[string]any{"label": "Panaji-G1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = a.do(t, http.MethodPost, "/api/spots", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBookSpot(t *testing.T) {
	a := newTestAPI(t, RouterConfig{}, nil)

	w := a.do(t, http.MethodPost, "/api/spots/1/quote", validBooking())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	quote := decode[map[string]any](t, w)
	assert.Equal(t, 78.0, quote["total"])

	w = a.do(t, http.MethodPost, "/api/spots/1/book", validBooking())
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	b := decode[model.Booking](t, w)
	assert.NotEmpty(t, b.ID)
	assert.Equal(t, "GA 01 AB 1234", b.RegistrationNumber)
	assert.Equal(t, 78.0, b.TotalCost)

	var stored int64
	require.NoError(t, a.db.Model(&model.Booking{}).Count(&stored).Error)
	assert.Equal(t, int64(1), stored)

	// Booked spots cannot be booked again.
	w = a.do(t, http.MethodPost, "/api/spots/1/book", validBooking())
	assert.Equal(t, http.StatusConflict, w.Code)

	bad := validBooking()
	bad["hours"] = 30
	w = a.do(t, http.MethodPost, "/api/spots/5/book", bad)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = a.do(t, http.MethodPost, "/api/spots/99/book", validBooking())
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestBookingLifecycle(t *testing.T) {
	a := newTestAPI(t, RouterConfig{}, nil)

	w := a.do(t, http.MethodPost, "/api/spots/1/book", validBooking())
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	booked := decode[model.Booking](t, w)
	assert.Equal(t, model.BookingActive, booked.Status)

	other := validBooking()
	other["userName"] = "Rahul"
	w = a.do(t, http.MethodPost, "/api/spots/5/book", other)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	type bookingList struct {
		Bookings []model.Booking `json:"bookings"`
	}
	w = a.do(t, http.MethodGet, "/api/bookings?user=Asha", nil)
	require.Equal(t, http.StatusOK, w.Code)
	mine := decode[bookingList](t, w).Bookings
	require.Len(t, mine, 1)
	assert.Equal(t, booked.ID, mine[0].ID)

	w = a.do(t, http.MethodGet, "/api/bookings", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[bookingList](t, w).Bookings, 2)

	w = a.do(t, http.MethodPost, "/api/bookings/"+booked.ID+"/end", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	ended := decode[model.Booking](t, w)
	assert.Equal(t, model.BookingCompleted, ended.Status)
	assert.NotNil(t, ended.EndedAt)

	w = a.do(t, http.MethodGet, "/api/spots/1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "free", decode[spotJSON](t, w).Status)

	w = a.do(t, http.MethodGet, "/api/bookings?user=Asha", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[bookingList](t, w).Bookings)

	w = a.do(t, http.MethodPost, "/api/bookings/"+booked.ID+"/end", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	w = a.do(t, http.MethodPost, "/api/bookings/00000000-0000-0000-0000-000000000000/end", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = a.do(t, http.MethodPost, "/api/bookings/not-a-uuid/end", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Releasing the spot completes the remaining booking.
	w = a.do(t, http.MethodPost, "/api/spots/5/release", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var active int64
	require.NoError(t, a.db.Model(&model.Booking{}).Where("status = ?", model.BookingActive).Count(&active).Error)
	assert.Zero(t, active)
}

func TestSpotActions(t *testing.T) {
	a := newTestAPI(t, RouterConfig{}, nil)

	w := a.do(t, http.MethodPost, "/api/spots/2/release", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "free", decode[spotJSON](t, w).Status)

	w = a.do(t, http.MethodPost, "/api/spots/2/toggle-status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "occupied", decode[spotJSON](t, w).Status)

	w = a.do(t, http.MethodPost, "/api/spots/2/toggle-ev", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[spotJSON](t, w).IsEV)

	w = a.do(t, http.MethodPut, "/api/spots/2/base-price", map[string]any{"basePrice": 50})
	require.Equal(t, http.StatusOK, w.Code)

	w = a.do(t, http.MethodPut, "/api/spots/2/base-price", map[string]any{"basePrice": -5})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = a.do(t, http.MethodGet, "/api/spots/2/history", nil)
	require.Equal(t, http.StatusOK, w.Code)
	history := decode[[]map[string]any](t, w)
	// Only the occupied period ended; free periods are not archived.
	require.Len(t, history, 1)
	assert.Equal(t, "occupied", history[0]["status"])

	w = a.do(t, http.MethodGet, "/api/spots/2/history?limit=0", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStatsCacheIsFlushedByWrites(t *testing.T) {
	a := newTestAPI(t, RouterConfig{CacheTTL: time.Minute}, nil)

	w := a.do(t, http.MethodGet, "/api/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 6.0, decode[map[string]any](t, w)["free"])

	w = a.do(t, http.MethodGet, "/api/stats", nil)
	assert.Equal(t, "HIT", w.Header().Get("X-Cache"))

	w = a.do(t, http.MethodPost, "/api/simulate/fill", map[string]any{"count": 2})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2.0, decode[map[string]any](t, w)["filled"])

	w = a.do(t, http.MethodGet, "/api/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("X-Cache"))
	assert.Equal(t, 4.0, decode[map[string]any](t, w)["free"])

	w = a.do(t, http.MethodPost, "/api/reservations/clear", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 3.0, decode[map[string]any](t, w)["cleared"])

	w = a.do(t, http.MethodPost, "/api/simulate/fill", map[string]any{"count": 0})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPricingEndpoints(t *testing.T) {
	a := newTestAPI(t, RouterConfig{}, nil)

	w := a.do(t, http.MethodGet, "/api/pricing", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[map[string]map[string]any](t, w)
	assert.Equal(t, "balanced", body["config"]["rule"])
	assert.Equal(t, 1.5, body["activeMultipliers"]["high"])

	w = a.do(t, http.MethodPatch, "/api/pricing", map[string]any{"evDiscount": 0.3})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	sp, err := a.svc.Spot(3)
	require.NoError(t, err)
	assert.Equal(t, 21.0, sp.Price)

	w = a.do(t, http.MethodPatch, "/api/pricing", map[string]any{"rule": "reckless"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = a.do(t, http.MethodPatch, "/api/pricing", map[string]any{"evDiscount": 0.9})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = a.do(t, http.MethodGet, "/api/pricing/multipliers", nil)
	require.Equal(t, http.StatusOK, w.Code)
	tables := decode[struct {
		Rules map[string]map[string]float64 `json:"rules"`
	}](t, w)
	assert.Len(t, tables.Rules, 3)
	assert.Equal(t, 2.0, tables.Rules["aggressive"]["high"])
}

func TestSnapshotsAndPrediction(t *testing.T) {
	a := newTestAPI(t, RouterConfig{}, nil)

	w := a.do(t, http.MethodGet, "/api/snapshots", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]map[string]any](t, w), 1)

	w = a.do(t, http.MethodGet, "/api/prediction?minutes=30", nil)
	require.Equal(t, http.StatusOK, w.Code)
	res := decode[map[string]any](t, w)
	assert.Equal(t, 6.0, res["predictedFree"])
	assert.Equal(t, "low", res["confidence"])
	assert.Equal(t, "Insufficient historical data for accurate prediction", res["reasoning"])

	assert.Equal(t, http.StatusOK, a.do(t, http.MethodGet, "/api/prediction", nil).Code)
	assert.Equal(t, http.StatusBadRequest, a.do(t, http.MethodGet, "/api/prediction?minutes=0", nil).Code)
	assert.Equal(t, http.StatusBadRequest, a.do(t, http.MethodGet, "/api/prediction?minutes=soon", nil).Code)
}

func TestSubscriptionLifecycle(t *testing.T) {
	a := newTestAPI(t, RouterConfig{}, nil)
	endpoint := "https://push.example.com/send/abc%2Bdef"

	w := a.do(t, http.MethodPut, "/api/subscriptions", map[string]any{
		"endpoint":         endpoint,
		"p256dh":           "key",
		"auth":             "secret",
		"subscribed_spots": []int64{2, 6},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = a.do(t, http.MethodGet, "/api/subscriptions?endpoint="+endpoint, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	got := decode[map[string][]int64](t, w)
	assert.ElementsMatch(t, []int64{2, 6}, got["subscribed_spots"])

	// Replacing narrows the watched spots.
	w = a.do(t, http.MethodPut, "/api/subscriptions", map[string]any{
		"endpoint":         endpoint,
		"p256dh":           "key2",
		"auth":             "secret",
		"subscribed_spots": []int64{6},
	})
	require.Equal(t, http.StatusCreated, w.Code)
	w = a.do(t, http.MethodGet, "/api/subscriptions?endpoint="+endpoint, nil)
	assert.Equal(t, []int64{6}, decode[map[string][]int64](t, w)["subscribed_spots"])

	w = a.do(t, http.MethodDelete, "/api/subscriptions", map[string]any{"endpoint": endpoint})
	require.Equal(t, http.StatusNoContent, w.Code)

	w = a.do(t, http.MethodGet, "/api/subscriptions?endpoint="+endpoint, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	var mappings int64
	require.NoError(t, a.db.Table("subscription_spot_mapping").Count(&mappings).Error)
	assert.Zero(t, mappings)

	assert.Equal(t, http.StatusBadRequest, a.do(t, http.MethodGet, "/api/subscriptions", nil).Code)
	assert.Equal(t, http.StatusBadRequest, a.do(t, http.MethodPut, "/api/subscriptions", map[string]any{"endpoint": endpoint}).Code)
}

func TestVAPIDPublicKey(t *testing.T) {
	a := newTestAPI(t, RouterConfig{}, &webpush.Options{VAPIDPublicKey: "public-key"})
	w := a.do(t, http.MethodGet, "/api/vapid_public_key", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "public-key", decode[map[string]string](t, w)["public_key"])

	b := newTestAPI(t, RouterConfig{}, nil)
	assert.Equal(t, http.StatusServiceUnavailable, b.do(t, http.MethodGet, "/api/vapid_public_key", nil).Code)
}

func TestRateLimit(t *testing.T) {
	a := newTestAPI(t, RouterConfig{RateLimitPerSec: 0.001, RateLimitBurst: 1}, nil)

	assert.Equal(t, http.StatusOK, a.do(t, http.MethodGet, "/api/stats", nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, a.do(t, http.MethodGet, "/api/stats", nil).Code)
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := metrics.NewPromRecorder(reg)
	require.NoError(t, err)
	rec.RecordSnapshot()

	a := newTestAPI(t, RouterConfig{
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	}, nil)

	w := a.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "parkit_snapshots_total 1")
}

func TestCORSAllowsConfiguredOrigin(t *testing.T) {
	a := newTestAPI(t, RouterConfig{AllowedOrigins: []string{"https://parkit.example"}}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	req.Header.Set("Origin", "https://parkit.example")
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	assert.Equal(t, "https://parkit.example", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	req.Header.Set("Origin", "https://evil.example")
	w = httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}
