package notification

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/rs/zerolog/log"

	"laundry-control-backend/internal/model"
	"laundry-control-backend/internal/store"
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

// Message is the push payload delivered to service workers.
type Message struct {
	Topic string `json:"topic"`
	Key   string `json:"key"`
}

// WorkerPool fans notification keys out to every push subscription.
type WorkerPool struct {
	size    int
	jobs    chan string
	subs    store.Subscriptions
	webpush *webpush.Options
	sender  NotificationSender
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(size int, subs store.Subscriptions, webpushOptions *webpush.Options) *WorkerPool {
	return &WorkerPool{
		size:    size,
		jobs:    make(chan string, size*16),
		subs:    subs,
		webpush: webpushOptions,
		sender:  &WebPushSender{},
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	log.Debug().Int("worker", id).Msg("Push worker started")
	for {
		select {
		case key := <-wp.jobs:
			wp.broadcast(ctx, key)
		case <-ctx.Done():
			log.Debug().Int("worker", id).Msg("Push worker shutting down")
			return
		}
	}
}

// Dispatch queues a notification key. It never blocks: when the queue is
// full the notification is dropped.
func (wp *WorkerPool) Dispatch(key string) {
	select {
	case wp.jobs <- key:
	default:
		log.Warn().Str("key", key).Msg("Push queue full, dropping notification")
	}
}

// Jobs returns the jobs channel for testing.
func (wp *WorkerPool) Jobs() chan string {
	return wp.jobs
}

func (wp *WorkerPool) broadcast(ctx context.Context, key string) {
	subscriptions, err := wp.subs.ListSubscriptions(ctx)
	if err != nil {
		log.Error().Err(err).Str("key", key).Msg("Error fetching subscriptions")
		return
	}
	if len(subscriptions) == 0 {
		return
	}

	payload, err := json.Marshal(Message{Topic: "notification-message", Key: key})
	if err != nil {
		log.Error().Err(err).Msg("Error encoding push payload")
		return
	}

	log.Debug().Int("subscriptions", len(subscriptions)).Str("key", key).Msg("Sending push notifications")
	for _, sub := range subscriptions {
		wp.sendNotification(ctx, sub, payload)
	}
}

// sendNotification sends a single web push notification.
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
		log.Warn().Err(err).Str("endpoint", sub.Endpoint).Msg("Error sending notification")
		return
	}
	defer resp.Body.Close()

	// Expired subscription
	if resp.StatusCode == http.StatusGone {
		log.Info().Str("endpoint", sub.Endpoint).Msg("Subscription expired, deleting")
		if err := wp.subs.DeleteSubscription(ctx, sub.Endpoint); err != nil {
			log.Error().Err(err).Str("endpoint", sub.Endpoint).Msg("Failed to delete expired subscription")
		}
	}
}
