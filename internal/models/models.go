package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Event represents a single recorded user interaction. Events are
// append-only: CreatedAt is assigned at insert and there is no update
// or delete path.
type Event struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	EventType  string             `bson:"eventType" json:"event_type"`
	UserID     string             `bson:"userId,omitempty" json:"user_id,omitempty"`
	SessionID  string             `bson:"sessionId,omitempty" json:"session_id,omitempty"`
	Source     string             `bson:"source,omitempty" json:"source,omitempty"`
	Medium     string             `bson:"medium,omitempty" json:"medium,omitempty"`
	Campaign   string             `bson:"campaign,omitempty" json:"campaign,omitempty"`
	Page       string             `bson:"page,omitempty" json:"page,omitempty"`
	ProductID  string             `bson:"productId,omitempty" json:"product_id,omitempty"`
	Device     string             `bson:"device,omitempty" json:"device,omitempty"`
	Country    string             `bson:"country,omitempty" json:"country,omitempty"`
	DurationMs int64              `bson:"durationMs,omitempty" json:"duration_ms,omitempty"`
	CreatedAt  time.Time          `bson:"createdAt" json:"created_at"`
}

// Event types
const (
	EventSessionStart        = "session_start"
	EventPageView            = "page_view"
	EventProductView         = "product_view"
	EventProductClick        = "product_click"
	EventAddToCart           = "add_to_cart"
	EventCheckoutStart       = "checkout_start"
	EventPurchase            = "purchase"
	EventCustomerSupportView = "customer_support_view"
)

// KnownEventTypes lists every accepted event type.
var KnownEventTypes = map[string]bool{
	EventSessionStart:        true,
	EventPageView:            true,
	EventProductView:         true,
	EventProductClick:        true,
	EventAddToCart:           true,
	EventCheckoutStart:       true,
	EventPurchase:            true,
	EventCustomerSupportView: true,
}

// OrderItem is a line item embedded in an order. Name, price and image
// are point-in-time snapshots taken when the order was placed.
type OrderItem struct {
	ProductID string  `bson:"productId" json:"product_id"`
	Name      string  `bson:"name" json:"name"`
	Price     float64 `bson:"price" json:"price"`
	Quantity  int     `bson:"quantity" json:"quantity"`
	Size      string  `bson:"size,omitempty" json:"size,omitempty"`
	Color     string  `bson:"color,omitempty" json:"color,omitempty"`
	Image     string  `bson:"image,omitempty" json:"image,omitempty"`
}

// AuditEntry is one append-only record in an order's audit log.
type AuditEntry struct {
	Action    string    `bson:"action" json:"action"`
	Actor     string    `bson:"actor,omitempty" json:"actor,omitempty"`
	Detail    string    `bson:"detail,omitempty" json:"detail,omitempty"`
	Timestamp time.Time `bson:"timestamp" json:"timestamp"`
}

// Order represents a customer order with embedded line items.
type Order struct {
	ID                 primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	OrderNumber        string             `bson:"orderNumber" json:"order_number"`
	CustomerName       string             `bson:"customerName" json:"customer_name"`
	CustomerEmail      string             `bson:"customerEmail" json:"customer_email"`
	CustomerPhone      string             `bson:"customerPhone,omitempty" json:"customer_phone,omitempty"`
	ShippingAddress    string             `bson:"shippingAddress,omitempty" json:"shipping_address,omitempty"`
	Items              []OrderItem        `bson:"items" json:"items"`
	Subtotal           float64            `bson:"subtotal" json:"subtotal"`
	Tax                float64            `bson:"tax" json:"tax"`
	Total              float64            `bson:"total" json:"total"`
	PaymentMethod      string             `bson:"paymentMethod" json:"payment_method"`
	Status             string             `bson:"status" json:"status"`
	CouponCode         string             `bson:"couponCode,omitempty" json:"coupon_code,omitempty"`
	TransferProofURL   string             `bson:"transferProofUrl,omitempty" json:"transfer_proof_url,omitempty"`
	StockAdjusted      bool               `bson:"stockAdjusted" json:"stock_adjusted"`
	CouponUsageCounted bool               `bson:"couponUsageCounted" json:"coupon_usage_counted"`
	AmountPaid         float64            `bson:"amountPaid" json:"amount_paid"`
	AmountRefunded     float64            `bson:"amountRefunded" json:"amount_refunded"`
	BalanceDue         float64            `bson:"balanceDue" json:"balance_due"`
	AuditLog           []AuditEntry       `bson:"auditLog,omitempty" json:"audit_log,omitempty"`
	CreatedAt          time.Time          `bson:"createdAt" json:"created_at"`
	UpdatedAt          time.Time          `bson:"updatedAt" json:"updated_at"`
}

// Order statuses
const (
	OrderStatusPending         = "pending"
	OrderStatusConfirmed       = "confirmed"
	OrderStatusProcessing      = "processing"
	OrderStatusShipped         = "shipped"
	OrderStatusDelivered       = "delivered"
	OrderStatusCancelled       = "cancelled"
	OrderStatusAwaitingAddlPay = "awaiting_additional_payment"
)

// PaymentMethodBankTransfer is the only supported payment method.
const PaymentMethodBankTransfer = "bank_transfer"

// KnownOrderStatuses lists every accepted order status. Transition
// legality between them is intentionally not validated.
var KnownOrderStatuses = map[string]bool{
	OrderStatusPending:         true,
	OrderStatusConfirmed:       true,
	OrderStatusProcessing:      true,
	OrderStatusShipped:         true,
	OrderStatusDelivered:       true,
	OrderStatusCancelled:       true,
	OrderStatusAwaitingAddlPay: true,
}

// ConfirmedOrLaterStatuses are the statuses counted as completed
// purchases by the funnel and revenue queries.
var ConfirmedOrLaterStatuses = []string{
	OrderStatusConfirmed,
	OrderStatusProcessing,
	OrderStatusShipped,
	OrderStatusDelivered,
}

// Product represents a catalog entry. Analytics and reviews read it;
// the order lifecycle mutates stock and moderation mutates the rating
// aggregate.
type Product struct {
	ID          string  `bson:"_id" json:"id"`
	Name        string  `bson:"name" json:"name"`
	Slug        string  `bson:"slug,omitempty" json:"slug,omitempty"`
	Image       string  `bson:"image,omitempty" json:"image,omitempty"`
	Price       float64 `bson:"price" json:"price"`
	Cost        float64 `bson:"cost,omitempty" json:"cost,omitempty"`
	Stock       int     `bson:"stock" json:"stock"`
	Rating      float64 `bson:"rating" json:"rating"`
	ReviewCount int     `bson:"reviewCount" json:"review_count"`
}

// Review statuses
const (
	ReviewStatusPending  = "pending"
	ReviewStatusApproved = "approved"
	ReviewStatusRejected = "rejected"
)

// Review represents a customer review of a product. ProductName, slug
// and image are snapshots taken at submission time. At most one review
// exists per (productId, customerId) pair, enforced by a unique index.
type Review struct {
	ID              primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	ProductID       string             `bson:"productId" json:"product_id"`
	OrderID         string             `bson:"orderId,omitempty" json:"order_id,omitempty"`
	CustomerID      string             `bson:"customerId" json:"customer_id"`
	CustomerName    string             `bson:"customerName" json:"customer_name"`
	CustomerEmail   string             `bson:"customerEmail" json:"customer_email"`
	Rating          int                `bson:"rating" json:"rating"`
	Message         string             `bson:"message" json:"message"`
	Status          string             `bson:"status" json:"status"`
	ProductName     string             `bson:"productName,omitempty" json:"product_name,omitempty"`
	ProductSlug     string             `bson:"productSlug,omitempty" json:"product_slug,omitempty"`
	ProductImage    string             `bson:"productImage,omitempty" json:"product_image,omitempty"`
	ModeratedBy     string             `bson:"moderatedBy,omitempty" json:"moderated_by,omitempty"`
	ModeratedAt     *time.Time         `bson:"moderatedAt,omitempty" json:"moderated_at,omitempty"`
	RejectionReason string             `bson:"rejectionReason,omitempty" json:"rejection_reason,omitempty"`
	CreatedAt       time.Time          `bson:"createdAt" json:"created_at"`
	UpdatedAt       time.Time          `bson:"updatedAt" json:"updated_at"`
}

// User represents a registered customer account.
type User struct {
	ID        string    `bson:"_id" json:"id"`
	Name      string    `bson:"name" json:"name"`
	Email     string    `bson:"email" json:"email"`
	Country   string    `bson:"country,omitempty" json:"country,omitempty"`
	CreatedAt time.Time `bson:"createdAt" json:"created_at"`
}

// Coupon tracks a discount code and how many times it has been used.
type Coupon struct {
	Code       string `bson:"_id" json:"code"`
	UsageCount int    `bson:"usageCount" json:"usage_count"`
}
