package notification

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/SherClockHolmes/webpush-go"
	"gorm.io/gorm"

	"parkit-backend/internal/logger"
	"parkit-backend/internal/model"
)

// NotificationSender defines the interface for sending a web push notification.
type NotificationSender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of NotificationSender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// WorkerPool sends "spot is free" pushes to the subscribers watching a spot.
type WorkerPool struct {
	size    int
	jobs    chan int64
	db      *gorm.DB
	webpush *webpush.Options
	sender  NotificationSender
	log     logger.Logger
	wg      sync.WaitGroup
}

// NewWorkerPool creates a new worker pool. queueSize bounds pending jobs.
func NewWorkerPool(size, queueSize int, db *gorm.DB, webpushOptions *webpush.Options, log logger.Logger) *WorkerPool {
	if size <= 0 {
		size = 1
	}
	if queueSize < size {
		queueSize = size
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	return &WorkerPool{
		size:    size,
		jobs:    make(chan int64, queueSize),
		db:      db,
		webpush: webpushOptions,
		sender:  &WebPushSender{},
		log:     log,
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		wp.wg.Add(1)
		go wp.worker(ctx, i)
	}
}

// Wait blocks until every worker has returned after ctx was cancelled.
func (wp *WorkerPool) Wait() {
	wp.wg.Wait()
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	defer wp.wg.Done()
	wp.log.Debugf("worker %d started", id)
	for {
		select {
		case spotID := <-wp.jobs:
			wp.log.Debugf("worker %d processing spot %d", id, spotID)
			wp.sendNotificationsForSpot(ctx, spotID)
		case <-ctx.Done():
			wp.log.Debugf("worker %d shutting down", id)
			return
		}
	}
}

// Dispatch queues a job without blocking; the job is dropped when the queue is full.
func (wp *WorkerPool) Dispatch(spotID int64) {
	select {
	case wp.jobs <- spotID:
	default:
		wp.log.Warnf("notification queue full, dropping job for spot %d", spotID)
	}
}

// Jobs returns the jobs channel for testing.
func (wp *WorkerPool) Jobs() chan int64 {
	return wp.jobs
}

func (wp *WorkerPool) sendNotificationsForSpot(ctx context.Context, spotID int64) {
	var subscriptions []model.PushSubscription
	err := wp.db.WithContext(ctx).
		Joins("JOIN subscription_spot_mapping ssm ON ssm.push_subscription_endpoint = push_subscriptions.endpoint").
		Where("ssm.parking_spot_id = ?", spotID).
		Find(&subscriptions).Error
	if err != nil {
		wp.log.Errorf("error fetching subscriptions for spot %d: %v", spotID, err)
		return
	}

	if len(subscriptions) == 0 {
		return
	}

	wp.log.Infof("sending %d notifications for spot %d", len(subscriptions), spotID)

	var spot model.ParkingSpot
	spotLabel := fmt.Sprintf("#%d", spotID)
	if err := wp.db.WithContext(ctx).
		Select("label").
		First(&spot, spotID).Error; err != nil {
		wp.log.Warnf("error fetching spot %d: %v", spotID, err)
	} else if spot.Label != "" {
		spotLabel = spot.Label
	}

	message := fmt.Sprintf("Spot %s is now available", spotLabel)
	for _, sub := range subscriptions {
		wp.sendNotification(ctx, sub, []byte(message))
	}
}

func (wp *WorkerPool) sendNotification(ctx context.Context, sub model.PushSubscription, payload []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		wp.log.Errorf("error sending notification to %s: %v", sub.Endpoint, err)
		return
	}
	defer resp.Body.Close()

	// Expired subscriptions
	if resp.StatusCode == http.StatusGone || resp.StatusCode == http.StatusNotFound {
		wp.log.Infof("subscription for endpoint %s is expired, deleting", sub.Endpoint)
		if err := wp.db.WithContext(ctx).Delete(&sub).Error; err != nil {
			wp.log.Errorf("failed to delete expired subscription %s: %v", sub.Endpoint, err)
		}
	}
}
