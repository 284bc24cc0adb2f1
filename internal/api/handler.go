package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"storefront-service/internal/models"
	"storefront-service/internal/service"
	"storefront-service/internal/store"
	"storefront-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler contains HTTP handlers
type Handler struct {
	analyticsService *service.AnalyticsService
	orderService     *service.OrderService
	reviewService    *service.ReviewService
	reportingService *service.ReportingService
}

// NewHandler creates a new HTTP handler
func NewHandler(
	analyticsService *service.AnalyticsService,
	orderService *service.OrderService,
	reviewService *service.ReviewService,
	reportingService *service.ReportingService,
) *Handler {
	return &Handler{
		analyticsService: analyticsService,
		orderService:     orderService,
		reviewService:    reviewService,
		reportingService: reportingService,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/events", h.recordEvent)
		v1.POST("/events/batch", h.recordEventBatch)

		v1.POST("/reviews", h.submitReview)
		v1.GET("/reviews/eligibility", h.reviewEligibility)
		v1.GET("/products/:id/reviews", h.listProductReviews)
	}

	admin := router.Group("/api/v1/admin", adminOnly())
	{
		admin.GET("/analytics/summary", h.analyticsSummary)
		admin.GET("/analytics/activity-trend", h.activityTrend)
		admin.GET("/analytics/page-visit-trend", h.pageVisitTrend)
		admin.GET("/analytics/top-products", h.topProducts)
		admin.GET("/analytics/traffic-overview", h.trafficOverview)
		admin.GET("/analytics/behavior-funnel", h.behaviorFunnel)

		admin.GET("/users", h.listUsers)
		admin.GET("/users/export", h.exportUsers)
		admin.GET("/users/:id", h.userDetail)

		admin.GET("/orders", h.listOrders)
		admin.POST("/orders", h.createOrder)
		admin.GET("/orders/:id", h.getOrder)
		admin.PUT("/orders/:id", h.updateOrder)
		admin.PATCH("/orders/:id/status", h.updateOrderStatus)
		admin.PUT("/orders/:id/items", h.editOrderItems)
		admin.POST("/orders/:id/payments", h.recordPayment)
		admin.DELETE("/orders/:id", h.deleteOrder)

		admin.GET("/reports/orders", h.orderAnalytics)
		admin.GET("/reports/revenue-trend", h.revenueTrend)
		admin.GET("/reports/profit-cost", h.profitCostComparison)
		admin.GET("/reports/top-selling", h.topSellingProducts)
		admin.GET("/reports/dashboard", h.dashboardStats)

		admin.GET("/reviews/pending", h.listPendingReviews)
		admin.POST("/reviews/:id/moderate", h.moderateReview)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// recordEvent handles a single tracking event
func (h *Handler) recordEvent(c *gin.Context) {
	var event models.Event
	if err := c.ShouldBindJSON(&event); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	if err := h.analyticsService.RecordEvent(c.Request.Context(), &event); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Failed to record event",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"recorded": 1})
}

// recordEventBatch handles a tracker flush batch
func (h *Handler) recordEventBatch(c *gin.Context) {
	var req struct {
		Events []models.Event `json:"events" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	accepted, err := h.analyticsService.RecordEvents(c.Request.Context(), req.Events)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to record events",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"recorded": accepted})
}

// analyticsSummary handles the user analytics summary
func (h *Handler) analyticsSummary(c *gin.Context) {
	summary, err := h.analyticsService.GetSummary(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute summary", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, summary)
}

// activityTrend handles the daily/weekly activity trend
func (h *Handler) activityTrend(c *gin.Context) {
	period := c.DefaultQuery("period", service.PeriodDaily)
	days := queryInt(c, "days", 0)

	trend, err := h.analyticsService.GetActivityTrend(c.Request.Context(), period, days)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to compute activity trend", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trend": trend})
}

// pageVisitTrend handles the page visit trend
func (h *Handler) pageVisitTrend(c *gin.Context) {
	days := queryInt(c, "days", 0)

	trend, err := h.analyticsService.GetPageVisitTrend(c.Request.Context(), days)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute page visit trend", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trend": trend})
}

// topProducts handles the product engagement ranking
func (h *Handler) topProducts(c *gin.Context) {
	limit := queryInt(c, "limit", 10)

	products, err := h.analyticsService.GetTopProducts(c.Request.Context(), limit, queryRange(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to rank products", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": products})
}

// trafficOverview handles the traffic dimension breakdown
func (h *Handler) trafficOverview(c *gin.Context) {
	overview, err := h.analyticsService.GetTrafficOverview(c.Request.Context(), queryRange(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute traffic overview", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, overview)
}

// behaviorFunnel handles the behavior funnel
func (h *Handler) behaviorFunnel(c *gin.Context) {
	funnel, err := h.analyticsService.GetBehaviorFunnel(c.Request.Context(), queryRange(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute funnel", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"funnel": funnel})
}

// listUsers handles the paginated user listing
func (h *Handler) listUsers(c *gin.Context) {
	var input service.UserSearchInput
	if err := c.ShouldBindQuery(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid query parameters", "details": err.Error()})
		return
	}

	list, err := h.analyticsService.ListUsers(c.Request.Context(), input)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list users", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, list)
}

// exportUsers handles the unpaginated user export
func (h *Handler) exportUsers(c *gin.Context) {
	var input service.UserSearchInput
	if err := c.ShouldBindQuery(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid query parameters", "details": err.Error()})
		return
	}

	items, err := h.analyticsService.ExportUsers(c.Request.Context(), input)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to export users", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": items})
}

// userDetail handles one user's profile with rollups and history
func (h *Handler) userDetail(c *gin.Context) {
	detail, err := h.analyticsService.GetUserDetail(c.Request.Context(), c.Param("id"))
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, store.ErrUserNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "Failed to load user", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, detail)
}

// listOrders handles the order listing, paginated when a page is
// requested
func (h *Handler) listOrders(c *gin.Context) {
	status := c.Query("status")

	if c.Query("page") == "" {
		orders, err := h.orderService.ListOrders(c.Request.Context(), status)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list orders", "details": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"orders": orders, "total": len(orders)})
		return
	}

	page := int64(queryInt(c, "page", 1))
	pageSize := int64(queryInt(c, "page_size", 25))
	orders, total, err := h.orderService.ListOrdersPage(c.Request.Context(), status, page, pageSize)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list orders", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"orders":    orders,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// createOrder handles admin order creation
func (h *Handler) createOrder(c *gin.Context) {
	var req service.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.GetHeader("Idempotency-Key")
	}

	order, err := h.orderService.CreateAdminOrder(c.Request.Context(), &req, actor(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to create order",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusCreated, order)
}

// getOrder handles get order by ID
func (h *Handler) getOrder(c *gin.Context) {
	order, err := h.orderService.GetOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(orderErrStatus(err), gin.H{"error": "Failed to load order", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, order)
}

// updateOrder handles contact field updates
func (h *Handler) updateOrder(c *gin.Context) {
	var req service.UpdateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	order, err := h.orderService.UpdateAdminOrder(c.Request.Context(), c.Param("id"), &req, actor(c))
	if err != nil {
		c.JSON(orderErrStatus(err), gin.H{"error": "Failed to update order", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, order)
}

// updateOrderStatus handles status transitions
func (h *Handler) updateOrderStatus(c *gin.Context) {
	var req struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	order, err := h.orderService.UpdateStatus(c.Request.Context(), c.Param("id"), req.Status, actor(c))
	if err != nil {
		c.JSON(orderErrStatus(err), gin.H{"error": "Failed to update status", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, order)
}

// editOrderItems handles line item replacement
func (h *Handler) editOrderItems(c *gin.Context) {
	var req struct {
		Items []service.OrderItemInput `json:"items" binding:"required,min=1"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	order, err := h.orderService.EditOrderItems(c.Request.Context(), c.Param("id"), req.Items, actor(c))
	if err != nil {
		c.JSON(orderErrStatus(err), gin.H{"error": "Failed to edit order items", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, order)
}

// recordPayment handles a received bank transfer
func (h *Handler) recordPayment(c *gin.Context) {
	var req struct {
		Amount   float64 `json:"amount" binding:"required"`
		ProofURL string  `json:"proof_url,omitempty"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	order, err := h.orderService.RecordBankTransferPayment(c.Request.Context(), c.Param("id"), req.Amount, req.ProofURL, actor(c))
	if err != nil {
		c.JSON(orderErrStatus(err), gin.H{"error": "Failed to record payment", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, order)
}

// deleteOrder handles order deletion
func (h *Handler) deleteOrder(c *gin.Context) {
	if err := h.orderService.DeleteOrder(c.Request.Context(), c.Param("id"), actor(c)); err != nil {
		c.JSON(orderErrStatus(err), gin.H{"error": "Failed to delete order", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// orderAnalytics handles the order volume/revenue report
func (h *Handler) orderAnalytics(c *gin.Context) {
	r := queryRange(c)
	if r.End.IsZero() {
		r.End = time.Now()
	}
	if r.Start.IsZero() {
		r.Start = r.End.AddDate(0, 0, -30)
	}

	analytics, err := h.reportingService.GetOrderAnalytics(c.Request.Context(), r.Start, r.End)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute order analytics", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, analytics)
}

// revenueTrend handles the bucketed revenue report
func (h *Handler) revenueTrend(c *gin.Context) {
	period := c.DefaultQuery("period", service.PeriodDaily)

	trend, err := h.reportingService.GetRevenueTrend(c.Request.Context(), period)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute revenue trend", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trend": trend})
}

// profitCostComparison handles the revenue vs cost report
func (h *Handler) profitCostComparison(c *gin.Context) {
	period := c.DefaultQuery("period", service.PeriodMonthly)

	comparison, err := h.reportingService.GetProfitCostComparison(c.Request.Context(), period)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute profit comparison", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"comparison": comparison})
}

// topSellingProducts handles the quantity-sold ranking
func (h *Handler) topSellingProducts(c *gin.Context) {
	limit := queryInt(c, "limit", 10)

	products, err := h.reportingService.GetTopSellingProducts(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to rank products", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": products})
}

// dashboardStats handles the admin dashboard snapshot
func (h *Handler) dashboardStats(c *gin.Context) {
	stats, err := h.reportingService.GetDashboardStats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute dashboard stats", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// submitReview handles customer review submission
func (h *Handler) submitReview(c *gin.Context) {
	var req service.SubmitReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	review, err := h.reviewService.SubmitReview(c.Request.Context(), &req)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, store.ErrDuplicateReview) {
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{"error": "Failed to submit review", "details": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, review)
}

// reviewEligibility handles the "can I review this" check
func (h *Handler) reviewEligibility(c *gin.Context) {
	productID := c.Query("product_id")
	customerID := c.Query("customer_id")
	email := c.Query("email")
	if productID == "" || customerID == "" || email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "product_id, customer_id and email are required"})
		return
	}

	eligibility, err := h.reviewService.GetReviewEligibility(c.Request.Context(), productID, customerID, email)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check eligibility", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, eligibility)
}

// listProductReviews handles a product's approved reviews
func (h *Handler) listProductReviews(c *gin.Context) {
	reviews, err := h.reviewService.ListProductReviews(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list reviews", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"reviews": reviews})
}

// listPendingReviews handles the moderation queue
func (h *Handler) listPendingReviews(c *gin.Context) {
	reviews, err := h.reviewService.ListPendingReviews(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list pending reviews", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"reviews": reviews})
}

// moderateReview handles an approve/reject decision
func (h *Handler) moderateReview(c *gin.Context) {
	var req struct {
		Decision        string `json:"decision" binding:"required"`
		RejectionReason string `json:"rejection_reason,omitempty"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	review, err := h.reviewService.ModerateReview(c.Request.Context(), c.Param("id"), req.Decision, actor(c), req.RejectionReason)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, store.ErrReviewNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "Failed to moderate review", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, review)
}

// adminOnly trusts the role header set by the upstream gateway after
// authentication.
func adminOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("X-User-Role") != "admin" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Admin role required"})
			return
		}
		c.Next()
	}
}

// actor identifies the admin performing a mutation, for audit entries.
func actor(c *gin.Context) string {
	if user := c.GetHeader("X-User-Id"); user != "" {
		return user
	}
	return "admin"
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}

func orderErrStatus(err error) int {
	if errors.Is(err, store.ErrOrderNotFound) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func queryInt(c *gin.Context, name string, fallback int) int {
	v := c.Query(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// queryRange parses optional start/end date query parameters
// (YYYY-MM-DD). The end date is inclusive through end of day.
func queryRange(c *gin.Context) service.DateRange {
	var r service.DateRange
	if v := c.Query("start"); v != "" {
		if t, err := time.Parse("2006-01-02", v); err == nil {
			r.Start = t
		}
	}
	if v := c.Query("end"); v != "" {
		if t, err := time.Parse("2006-01-02", v); err == nil {
			r.End = t.AddDate(0, 0, 1).Add(-time.Millisecond)
		}
	}
	return r
}
