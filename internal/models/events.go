package models

import "time"

// Broker event types
const (
	EventTypeOrderStatusChanged = "ORDER_STATUS_CHANGED"
	EventTypeOrderDeleted       = "ORDER_DELETED"
	EventTypePaymentRecorded    = "PAYMENT_RECORDED"
	EventTypeReviewPending      = "REVIEW_PENDING"
)

// BaseEvent contains common fields for all broker events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderStatusChangedEvent published on every order status transition
type OrderStatusChangedEvent struct {
	BaseEvent
	OrderID       string `json:"order_id"`
	OrderNumber   string `json:"order_number"`
	CustomerEmail string `json:"customer_email"`
	FromStatus    string `json:"from_status"`
	ToStatus      string `json:"to_status"`
	NotifyEmail   bool   `json:"notify_email"`
}

// OrderDeletedEvent published when an admin deletes an order
type OrderDeletedEvent struct {
	BaseEvent
	OrderID     string `json:"order_id"`
	OrderNumber string `json:"order_number"`
}

// PaymentRecordedEvent published when a bank transfer is recorded
type PaymentRecordedEvent struct {
	BaseEvent
	OrderID    string  `json:"order_id"`
	Amount     float64 `json:"amount"`
	BalanceDue float64 `json:"balance_due"`
}

// ReviewPendingEvent published when a review awaits moderation
type ReviewPendingEvent struct {
	BaseEvent
	ReviewID  string `json:"review_id"`
	ProductID string `json:"product_id"`
	Rating    int    `json:"rating"`
}
