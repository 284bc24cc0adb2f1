package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"storefront-service/internal/models"
	"storefront-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ReviewStore is the storage surface the review workflow uses.
// *store.Store satisfies it.
type ReviewStore interface {
	InsertReview(ctx context.Context, review *models.Review) error
	FindReview(ctx context.Context, productID, customerID string) (*models.Review, error)
	ListProductReviews(ctx context.Context, productID, status string) ([]models.Review, error)
	ListReviewsByStatus(ctx context.Context, status string) ([]models.Review, error)
	SetReviewModeration(ctx context.Context, id, status, moderatedBy, rejectionReason string) (*models.Review, error)
	ApprovedRatings(ctx context.Context, productID string) ([]int, error)
	FindQualifyingOrder(ctx context.Context, email, productID, orderRef string) (*models.Order, error)
	GetProduct(ctx context.Context, id string) (*models.Product, error)
	UpdateProductRating(ctx context.Context, productID string, rating float64, reviewCount int) error
}

// ReviewPublisher emits moderation-queue notifications.
type ReviewPublisher interface {
	PublishReviewPending(ctx context.Context, event *models.ReviewPendingEvent) error
}

// ReviewService handles review submission, eligibility and moderation.
type ReviewService struct {
	store     ReviewStore
	publisher ReviewPublisher
	logger    *zap.Logger
}

// NewReviewService creates a new review service
func NewReviewService(st ReviewStore, publisher ReviewPublisher) *ReviewService {
	return &ReviewService{
		store:     st,
		publisher: publisher,
		logger:    util.GetLogger(),
	}
}

// SubmitReviewRequest carries a customer review submission.
type SubmitReviewRequest struct {
	ProductID     string `json:"product_id" binding:"required"`
	OrderRef      string `json:"order_ref,omitempty"`
	CustomerID    string `json:"customer_id" binding:"required"`
	CustomerName  string `json:"customer_name"`
	CustomerEmail string `json:"customer_email" binding:"required"`
	Rating        int    `json:"rating"`
	Message       string `json:"message"`
}

func (r *SubmitReviewRequest) validate() error {
	if strings.TrimSpace(r.CustomerName) == "" {
		return fmt.Errorf("name is required")
	}
	if strings.TrimSpace(r.Message) == "" {
		return fmt.Errorf("message is required")
	}
	if r.Rating < 1 || r.Rating > 5 {
		return fmt.Errorf("rating must be between 1 and 5")
	}
	return nil
}

// SubmitReview validates a submission, checks purchase eligibility and
// stores the review in pending state.
func (s *ReviewService) SubmitReview(ctx context.Context, req *SubmitReviewRequest) (*models.Review, error) {
	ctx, span := util.StartSpan(ctx, "ReviewService.SubmitReview")
	defer span.End()

	if err := req.validate(); err != nil {
		return nil, err
	}

	existing, err := s.store.FindReview(ctx, req.ProductID, req.CustomerID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("review already submitted for this product")
	}

	order, err := s.store.FindQualifyingOrder(ctx, req.CustomerEmail, req.ProductID, req.OrderRef)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, fmt.Errorf("no qualifying purchase found for this product")
	}

	review := &models.Review{
		ProductID:     req.ProductID,
		OrderID:       order.ID.Hex(),
		CustomerID:    req.CustomerID,
		CustomerName:  strings.TrimSpace(req.CustomerName),
		CustomerEmail: req.CustomerEmail,
		Rating:        req.Rating,
		Message:       strings.TrimSpace(req.Message),
		Status:        models.ReviewStatusPending,
	}

	// Product snapshot; the review keeps rendering if the catalog
	// entry changes later.
	if product, perr := s.store.GetProduct(ctx, req.ProductID); perr == nil {
		review.ProductName = product.Name
		review.ProductSlug = product.Slug
		review.ProductImage = product.Image
	}

	if err := s.store.InsertReview(ctx, review); err != nil {
		return nil, err
	}

	util.ReviewsSubmittedTotal.Inc()
	s.logger.Info("Review submitted",
		zap.String("review_id", review.ID.Hex()),
		zap.String("product_id", review.ProductID),
		zap.Int("rating", review.Rating))

	s.publishPendingNotification(ctx, review)
	return review, nil
}

// publishPendingNotification is best-effort: a broker failure never
// fails the submission.
func (s *ReviewService) publishPendingNotification(ctx context.Context, review *models.Review) {
	if s.publisher == nil {
		return
	}
	event := &models.ReviewPendingEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeReviewPending,
			Timestamp: time.Now(),
		},
		ReviewID:  review.ID.Hex(),
		ProductID: review.ProductID,
		Rating:    review.Rating,
	}
	if err := s.publisher.PublishReviewPending(ctx, event); err != nil {
		util.NotificationPublishFailures.Inc()
		s.logger.Error("Failed to publish review notification",
			zap.String("review_id", event.ReviewID), zap.Error(err))
		return
	}
	util.NotificationsPublishedTotal.Inc()
}

// ReviewEligibility is the answer to "may this customer review this
// product".
type ReviewEligibility struct {
	Eligible         bool   `json:"eligible"`
	AlreadySubmitted bool   `json:"already_submitted"`
	OrderID          string `json:"order_id,omitempty"`
}

// GetReviewEligibility reports whether the customer has a qualifying
// purchase and has not reviewed the product yet.
func (s *ReviewService) GetReviewEligibility(ctx context.Context, productID, customerID, email string) (*ReviewEligibility, error) {
	ctx, span := util.StartSpan(ctx, "ReviewService.GetReviewEligibility")
	defer span.End()

	existing, err := s.store.FindReview(ctx, productID, customerID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return &ReviewEligibility{AlreadySubmitted: true}, nil
	}

	order, err := s.store.FindQualifyingOrder(ctx, email, productID, "")
	if err != nil {
		return nil, err
	}
	if order == nil {
		return &ReviewEligibility{}, nil
	}
	return &ReviewEligibility{Eligible: true, OrderID: order.ID.Hex()}, nil
}

// ListProductReviews returns a product's approved reviews, newest
// first.
func (s *ReviewService) ListProductReviews(ctx context.Context, productID string) ([]models.Review, error) {
	ctx, span := util.StartSpan(ctx, "ReviewService.ListProductReviews")
	defer span.End()

	return s.store.ListProductReviews(ctx, productID, models.ReviewStatusApproved)
}

// ListPendingReviews returns the moderation queue, oldest first.
func (s *ReviewService) ListPendingReviews(ctx context.Context) ([]models.Review, error) {
	ctx, span := util.StartSpan(ctx, "ReviewService.ListPendingReviews")
	defer span.End()

	return s.store.ListReviewsByStatus(ctx, models.ReviewStatusPending)
}

// ModerateReview applies an approve/reject decision and keeps the
// product rating aggregate in sync.
func (s *ReviewService) ModerateReview(ctx context.Context, reviewID, decision, moderatedBy, rejectionReason string) (*models.Review, error) {
	ctx, span := util.StartSpan(ctx, "ReviewService.ModerateReview")
	defer span.End()

	if decision != models.ReviewStatusApproved && decision != models.ReviewStatusRejected {
		return nil, fmt.Errorf("invalid moderation decision: %s", decision)
	}

	review, err := s.store.SetReviewModeration(ctx, reviewID, decision, moderatedBy, rejectionReason)
	if err != nil {
		return nil, err
	}

	util.ReviewsModeratedTotal.WithLabelValues(decision).Inc()
	s.logger.Info("Review moderated",
		zap.String("review_id", reviewID),
		zap.String("decision", decision),
		zap.String("moderated_by", moderatedBy))

	// Any decision can change the approved set (approving adds,
	// rejecting a previously approved review removes), so the
	// aggregate is always recomputed from current state.
	if err := s.recomputeProductRating(ctx, review.ProductID); err != nil {
		s.logger.Error("Failed to recompute product rating",
			zap.String("product_id", review.ProductID), zap.Error(err))
	}
	return review, nil
}

func (s *ReviewService) recomputeProductRating(ctx context.Context, productID string) error {
	ratings, err := s.store.ApprovedRatings(ctx, productID)
	if err != nil {
		return err
	}

	var avg float64
	if len(ratings) > 0 {
		var sum int
		for _, r := range ratings {
			sum += r
		}
		avg = round2(float64(sum) / float64(len(ratings)))
	}
	return s.store.UpdateProductRating(ctx, productID, avg, len(ratings))
}
