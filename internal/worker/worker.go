package worker

import (
	"context"
	"log"

	"storefront-service/internal/broker"
	"storefront-service/internal/models"
	"storefront-service/internal/util"

	"go.uber.org/zap"
)

// NotificationWorker consumes lifecycle events and dispatches customer
// and moderator notifications. Actual email delivery is owned by a
// downstream provider; this worker logs the dispatch and records
// metrics so failures surface operationally.
type NotificationWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	logger       *zap.Logger
}

// Statuses that trigger a customer-facing notification. Confirmed is
// excluded: payment recording already notifies for it.
var notifiedStatuses = map[string]bool{
	models.OrderStatusProcessing: true,
	models.OrderStatusShipped:    true,
	models.OrderStatusDelivered:  true,
	models.OrderStatusCancelled:  true,
}

// NewNotificationWorker creates a new notification worker
func NewNotificationWorker(consumer *broker.Consumer) *NotificationWorker {
	w := &NotificationWorker{
		consumer: consumer,
		logger:   util.GetLogger(),
	}

	eventHandler := broker.NewEventHandler()
	eventHandler.OnOrderStatusChanged(w.handleOrderStatusChanged)
	eventHandler.OnReviewPending(w.handleReviewPending)
	w.eventHandler = eventHandler

	return w
}

// Start starts the worker
func (w *NotificationWorker) Start(ctx context.Context) error {
	log.Println("Starting notification worker...")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *NotificationWorker) Stop() error {
	log.Println("Stopping notification worker...")
	return w.consumer.Close()
}

func (w *NotificationWorker) handleOrderStatusChanged(ctx context.Context, event *models.OrderStatusChangedEvent) error {
	if !event.NotifyEmail || !notifiedStatuses[event.ToStatus] {
		util.NotificationsDispatchedTotal.WithLabelValues("skipped").Inc()
		return nil
	}

	// Dispatch hand-off point: the provider picks messages up from
	// this log stream / outbox.
	w.logger.Info("Dispatching order status notification",
		zap.String("order_number", event.OrderNumber),
		zap.String("customer_email", event.CustomerEmail),
		zap.String("from_status", event.FromStatus),
		zap.String("to_status", event.ToStatus))
	util.NotificationsDispatchedTotal.WithLabelValues("dispatched").Inc()
	return nil
}

func (w *NotificationWorker) handleReviewPending(ctx context.Context, event *models.ReviewPendingEvent) error {
	w.logger.Info("Dispatching moderation queue notification",
		zap.String("review_id", event.ReviewID),
		zap.String("product_id", event.ProductID),
		zap.Int("rating", event.Rating))
	util.NotificationsDispatchedTotal.WithLabelValues("dispatched").Inc()
	return nil
}
