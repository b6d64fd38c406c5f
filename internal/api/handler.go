package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"fulfillment-service/internal/service"
	"fulfillment-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Services groups what the HTTP surface calls into
type Services struct {
	Engine     *service.FulfillmentEngine
	Resolver   *service.AccessResolver
	Ledger     *service.EntitlementLedger
	Catalog    *service.AssetCatalog
	Reconciler *service.Reconciler
	Purger     *service.HistoryPurger
}

// Pinger is a dependency checked by the readiness probe
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler contains HTTP handlers
type Handler struct {
	svc    Services
	probes map[string]Pinger
}

// NewHandler creates a new HTTP handler
func NewHandler(svc Services, probes map[string]Pinger) *Handler {
	return &Handler{svc: svc, probes: probes}
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
		v1.POST("/orders/:id/fulfill", h.fulfillOrder)
		v1.GET("/users/:userId/products/:productId/access", h.checkAccess)
		v1.GET("/users/:userId/grants", h.listGrants)
	}

	admin := v1.Group("/admin")
	{
		admin.POST("/reconcile", h.reconcile)
		admin.GET("/grants", h.listGrantsByStatus)
		admin.POST("/users/:userId/products/:productId/revoke", h.revokeGrant)
		admin.DELETE("/users/:userId/history", h.purgeHistory)
		admin.GET("/assets", h.listAssets)
		admin.PUT("/products/:productId/asset", h.setAsset)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck pings every dependency
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	failing := gin.H{}
	for name, p := range h.probes {
		if err := p.Ping(ctx); err != nil {
			failing[name] = err.Error()
		}
	}

	if len(failing) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "not_ready",
			"failing": failing,
			"time":    time.Now().Unix(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// fulfillOrder runs fulfillment for a completed order
func (h *Handler) fulfillOrder(c *gin.Context) {
	orderID := c.Param("id")

	outcomes, err := h.svc.Engine.FulfillOrderByID(c.Request.Context(), orderID)
	if err != nil {
		writeError(c, "Failed to fulfill order", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"order_id": orderID,
		"outcomes": outcomes,
	})
}

// checkAccess returns the access decision for a user and product
func (h *Handler) checkAccess(c *gin.Context) {
	productID, ok := productIDParam(c)
	if !ok {
		return
	}

	decision, err := h.svc.Resolver.Resolve(c.Request.Context(), c.Param("userId"), productID)
	if err != nil {
		writeError(c, "Failed to check access", err)
		return
	}

	c.JSON(http.StatusOK, decision)
}

// listGrants returns every grant a user holds
func (h *Handler) listGrants(c *gin.Context) {
	userID := c.Param("userId")

	grants, err := h.svc.Ledger.ListGrants(c.Request.Context(), userID)
	if err != nil {
		writeError(c, "Failed to list grants", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id": userID,
		"grants":  grants,
	})
}

func (h *Handler) listGrantsByStatus(c *gin.Context) {
	status := c.DefaultQuery("status", "pending")

	grants, err := h.svc.Ledger.ListGrantsByStatus(c.Request.Context(), status)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid status",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": status,
		"grants": grants,
	})
}

func (h *Handler) reconcile(c *gin.Context) {
	summary, err := h.svc.Reconciler.ReconcileAll(c.Request.Context())
	if err != nil {
		writeError(c, "Reconciliation failed", err)
		return
	}

	c.JSON(http.StatusOK, summary)
}

func (h *Handler) revokeGrant(c *gin.Context) {
	productID, ok := productIDParam(c)
	if !ok {
		return
	}
	userID := c.Param("userId")

	if err := h.svc.Ledger.RevokeGrant(c.Request.Context(), userID, productID); err != nil {
		writeError(c, "Failed to revoke grant", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id":    userID,
		"product_id": productID,
		"status":     "revoked",
	})
}

func (h *Handler) purgeHistory(c *gin.Context) {
	result := h.svc.Purger.PurgeUserHistory(c.Request.Context(), c.Param("userId"))

	status := http.StatusOK
	if result.GrantsError != "" || result.OrdersError != "" {
		status = http.StatusInternalServerError
	}
	c.JSON(status, result)
}

func (h *Handler) listAssets(c *gin.Context) {
	mappings, err := h.svc.Catalog.List(c.Request.Context())
	if err != nil {
		writeError(c, "Failed to list assets", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"assets": mappings})
}

// SetAssetRequest is the body of PUT /admin/products/:productId/asset
type SetAssetRequest struct {
	AssetName string `json:"asset_name"`
	Locator   string `json:"locator"`
}

func (h *Handler) setAsset(c *gin.Context) {
	productID, ok := productIDParam(c)
	if !ok {
		return
	}

	var req SetAssetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	m, err := h.svc.Catalog.SetAsset(c.Request.Context(), productID, req.AssetName, req.Locator)
	if err != nil {
		writeError(c, "Failed to set asset", err)
		return
	}

	c.JSON(http.StatusOK, m)
}

func productIDParam(c *gin.Context) (int64, bool) {
	productID, err := strconv.ParseInt(c.Param("productId"), 10, 64)
	if err != nil || productID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid product ID",
		})
		return 0, false
	}
	return productID, true
}

// writeError maps service errors to status codes
func writeError(c *gin.Context, msg string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrOrderNotFound), errors.Is(err, service.ErrGrantNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrInvalidProductSet), errors.Is(err, service.ErrInvalidLocator):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrReconcileInProgress):
		status = http.StatusConflict
	}

	c.JSON(status, gin.H{
		"error":   msg,
		"details": err.Error(),
	})
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
