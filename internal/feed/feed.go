// Package feed polls an occupancy sensor API and applies the reported bay
// statuses to the lot.
package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"parkit-backend/config"
	"parkit-backend/internal/logger"
	"parkit-backend/internal/model"
	"parkit-backend/internal/tracker"
)

// Sink receives the statuses of one poll.
type Sink interface {
	SyncStatuses(ctx context.Context, readings map[int64]model.SpotStatus) (tracker.SyncResult, error)
}

// Service polls the sensor API on an interval.
type Service struct {
	cfg    config.FeedConfig
	sink   Sink
	client *http.Client
	log    logger.Logger
}

// NewService creates a poller. An invalid proxy URL is logged and ignored.
func NewService(cfg config.FeedConfig, sink Sink, log logger.Logger) *Service {
	if log == nil {
		log = logger.NopLogger{}
	}
	var transport http.RoundTripper = &http.Transport{}
	if cfg.HTTPProxy != "" {
		proxyURL, err := url.Parse(cfg.HTTPProxy)
		if err != nil {
			log.Warnf("invalid proxy URL %q: %v, polling without a proxy", cfg.HTTPProxy, err)
		} else {
			transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
		}
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if cfg.Request.PageSize <= 0 {
		cfg.Request.PageSize = 50
	}
	return &Service{
		cfg:  cfg,
		sink: sink,
		client: &http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
		log: log,
	}
}

// statusOf maps a raw sensor state code onto a spot status.
func (s *Service) statusOf(state int) (model.SpotStatus, bool) {
	for _, v := range s.cfg.StateFreeValues {
		if state == v {
			return model.SpotFree, true
		}
	}
	for _, v := range s.cfg.StateOccupiedValues {
		if state == v {
			return model.SpotOccupied, true
		}
	}
	for _, v := range s.cfg.StateReservedValues {
		if state == v {
			return model.SpotReserved, true
		}
	}
	return "", false
}

// Run polls once immediately and then every Interval until ctx is done.
func (s *Service) Run(ctx context.Context) {
	if !s.cfg.Enabled {
		s.log.Infof("sensor feed is disabled, not starting")
		return
	}
	interval := s.cfg.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	s.log.Infof("starting sensor feed (interval %s)", interval)

	s.poll(ctx)

	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Infof("sensor feed shutting down")
			return
		case <-timer.C:
			s.poll(ctx)
			timer.Reset(interval)
		}
	}
}

func (s *Service) poll(ctx context.Context) {
	if _, err := s.PollOnce(ctx); err != nil {
		s.log.Errorf("sensor poll failed: %v", err)
	}
}

// PollOnce fetches every page and hands the readings to the sink. A fetch
// error with no readings retrieved leaves the lot untouched.
func (s *Service) PollOnce(ctx context.Context) (tracker.SyncResult, error) {
	var items []Reading
	total := 1
	pageSize := s.cfg.Request.PageSize
	var fetchErr error
	for page := 1; (page-1)*pageSize < total; page++ {
		resp, err := s.fetchPage(ctx, page)
		if err != nil {
			fetchErr = fmt.Errorf("fetch page %d: %w", page, err)
			break
		}
		if resp.Data.Total == 0 || len(resp.Data.Items) == 0 {
			break
		}
		total = resp.Data.Total
		items = append(items, resp.Data.Items...)
		s.log.Debugf("fetched page %d, %d/%d readings", page, len(items), total)
	}
	if fetchErr != nil && len(items) == 0 {
		return tracker.SyncResult{}, fetchErr
	}
	if fetchErr != nil {
		s.log.Warnf("partial poll, applying %d readings: %v", len(items), fetchErr)
	}

	readings := make(map[int64]model.SpotStatus, len(items))
	for _, it := range items {
		status, ok := s.statusOf(it.State)
		if !ok {
			s.log.Debugw("unmapped sensor state", map[string]any{"spot": it.SpotID, "state": it.State})
			continue
		}
		readings[it.SpotID] = status
	}
	if len(readings) == 0 {
		return tracker.SyncResult{}, nil
	}

	res, err := s.sink.SyncStatuses(ctx, readings)
	if err != nil {
		return tracker.SyncResult{}, fmt.Errorf("apply readings: %w", err)
	}
	if len(res.Unknown) > 0 {
		s.log.Warnf("sensor reported %d unknown spots: %v", len(res.Unknown), res.Unknown)
	}
	if res.Changed > 0 {
		s.log.Infof("sensor feed updated %d spots", res.Changed)
	}
	return res, nil
}

// fetchPage posts the configured payload with the page number and decodes one page.
func (s *Service) fetchPage(ctx context.Context, page int) (*APIResponse, error) {
	payload := make(map[string]any, len(s.cfg.Request.Payload)+2)
	for k, v := range s.cfg.Request.Payload {
		payload[k] = v
	}
	payload["page"] = page
	payload["pageSize"] = s.cfg.Request.PageSize

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.Request.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range s.cfg.Request.Headers {
		req.Header.Set(key, value)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	var apiResp APIResponse
	if err := json.Unmarshal(raw, &apiResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if apiResp.Code != 0 {
		return nil, fmt.Errorf("sensor API returned code %d", apiResp.Code)
	}
	return &apiResp, nil
}
