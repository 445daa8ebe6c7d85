package notification

import (
	"context"
	"fmt"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"arduino-fleet-backend/internal/metrics"
	"arduino-fleet-backend/internal/model"
)

// Sender defines the interface for sending a web push notification.
type Sender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of Sender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// Job carries enough context to tell subscribers what finished.
type Job struct {
	MachineID int64
	TaskName  string
}

// WorkerPool manages a pool of workers for sending "task finished"
// notifications to dashboard subscribers of a machine.
type WorkerPool struct {
	size    int
	jobs    chan Job
	db      *gorm.DB
	webpush *webpush.Options
	sender  Sender
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(size int, db *gorm.DB, webpushOptions *webpush.Options) *WorkerPool {
	return &WorkerPool{
		size:    size,
		jobs:    make(chan Job, size),
		db:      db,
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
	logrus.WithField("worker", id).Debug("Notification worker started")
	for {
		select {
		case job := <-wp.jobs:
			wp.notifySubscribers(ctx, job)
		case <-ctx.Done():
			logrus.WithField("worker", id).Debug("Notification worker shutting down")
			return
		}
	}
}

// Dispatch queues a job. It never blocks the request path; when the queue
// is full the notification is dropped and counted.
func (wp *WorkerPool) Dispatch(job Job) {
	select {
	case wp.jobs <- job:
	default:
		metrics.NotificationsSent.WithLabelValues("dropped").Inc()
		logrus.WithField("machine_id", job.MachineID).Warn("Notification queue full, dropping job")
	}
}

// Jobs returns the jobs channel for testing.
func (wp *WorkerPool) Jobs() chan Job {
	return wp.jobs
}

// notifySubscribers fetches the machine's subscriptions and pushes to each.
func (wp *WorkerPool) notifySubscribers(ctx context.Context, job Job) {
	var subscriptions []model.PushSubscription
	err := wp.db.WithContext(ctx).
		Joins("JOIN subscription_machine_mapping smm ON smm.push_subscription_endpoint = push_subscriptions.endpoint").
		Where("smm.machine_id = ?", job.MachineID).
		Find(&subscriptions).Error
	if err != nil {
		logrus.WithError(err).WithField("machine_id", job.MachineID).Error("Failed to fetch subscriptions")
		return
	}
	if len(subscriptions) == 0 {
		return
	}

	machineLabel := fmt.Sprintf("%d", job.MachineID)
	var machine model.Machine
	if err := wp.db.WithContext(ctx).
		Select("alias").
		First(&machine, job.MachineID).Error; err == nil && machine.Alias != "" {
		machineLabel = machine.Alias
	}

	message := fmt.Sprintf("Task %q on machine %s finished", job.TaskName, machineLabel)
	for _, sub := range subscriptions {
		wp.sendNotification(ctx, sub, []byte(message))
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
		metrics.NotificationsSent.WithLabelValues("error").Inc()
		logrus.WithError(err).WithField("endpoint", sub.Endpoint).Error("Failed to send notification")
		return
	}
	defer resp.Body.Close()
	metrics.NotificationsSent.WithLabelValues(fmt.Sprintf("%d", resp.StatusCode)).Inc()

	// Expired subscriptions get cleaned up in place.
	if resp.StatusCode == http.StatusGone {
		logrus.WithField("endpoint", sub.Endpoint).Info("Subscription expired, deleting")
		if err := wp.db.WithContext(ctx).Delete(&sub).Error; err != nil {
			logrus.WithError(err).WithField("endpoint", sub.Endpoint).Error("Failed to delete expired subscription")
		}
	}
}
