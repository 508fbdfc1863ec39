package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"tableorder/internal/cart"
	"tableorder/internal/catalog"
	"tableorder/internal/models"
	"tableorder/internal/orders"
	"tableorder/internal/service"
	"tableorder/internal/util"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// SessionHeader identifies the customer session that owns a cart.
const SessionHeader = "X-Session-ID"

const (
	cartKey    = "cart"
	sessionKey = "session"
)

// Handler contains HTTP handlers
type Handler struct {
	orderService *service.OrderService
	catalog      *catalog.Store
	orders       *orders.Store
	sessions     *service.CartSessions
	allowOrigins []string
	logger       *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(
	orderService *service.OrderService,
	catalogStore *catalog.Store,
	orderStore *orders.Store,
	sessions *service.CartSessions,
	allowOrigins []string,
) *Handler {
	return &Handler{
		orderService: orderService,
		catalog:      catalogStore,
		orders:       orderStore,
		sessions:     sessions,
		allowOrigins: allowOrigins,
		logger:       util.GetLogger(),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(cors.New(h.corsConfig()))

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/products", h.listProducts)
		v1.GET("/products/:id", h.getProduct)
		v1.POST("/products", h.createProduct)
		v1.PATCH("/products/:id", h.updateProduct)
		v1.POST("/products/:id/toggle", h.toggleProduct)
		v1.GET("/categories", h.listCategories)

		v1.GET("/orders", h.listOrders)
		v1.GET("/orders/:id", h.getOrder)
		v1.PATCH("/orders/:id/status", h.updateOrderStatus)
		v1.GET("/order-statuses", h.listStatuses)

		v1.GET("/notifications", h.notifications)
		v1.GET("/dashboard", h.dashboard)

		session := v1.Group("", h.sessionMiddleware())
		{
			session.GET("/cart", h.getCart)
			session.DELETE("/cart", h.clearCart)
			session.PUT("/cart/table", h.setTable)
			session.POST("/cart/items", h.addCartItem)
			session.PATCH("/cart/items/:id", h.updateCartItem)
			session.DELETE("/cart/items/:id", h.removeCartItem)
			session.POST("/checkout", h.checkout)
			session.GET("/orders/latest", h.latestOrder)
		}
	}
}

func (h *Handler) corsConfig() cors.Config {
	cfg := cors.DefaultConfig()
	cfg.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	cfg.AddAllowHeaders(SessionHeader)
	cfg.AddExposeHeaders(SessionHeader)

	if len(h.allowOrigins) == 0 || (len(h.allowOrigins) == 1 && h.allowOrigins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = h.allowOrigins
	}
	return cfg
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

// sessionMiddleware resolves the caller's cart from the session header
func (h *Handler) sessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.GetHeader(SessionHeader)
		if sessionID == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error": SessionHeader + " header is required",
			})
			return
		}

		store, err := h.sessions.Get(c.Request.Context(), sessionID)
		if err != nil {
			h.logger.Error("Failed to open cart session", zap.String("session_id", sessionID), zap.Error(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error":   "Failed to open cart",
				"details": err.Error(),
			})
			return
		}

		c.Set(sessionKey, sessionID)
		c.Set(cartKey, store)
		c.Next()
	}
}

func sessionCart(c *gin.Context) *cart.Store {
	return c.MustGet(cartKey).(*cart.Store)
}

func sessionOf(c *gin.Context) string {
	return c.GetString(sessionKey)
}

func (h *Handler) listProducts(c *gin.Context) {
	products := h.catalog.List()
	if category := c.Query("category"); category != "" {
		filtered := make([]models.Product, 0, len(products))
		for _, p := range products {
			if p.Category == category {
				filtered = append(filtered, p)
			}
		}
		products = filtered
	}
	c.JSON(http.StatusOK, products)
}

func (h *Handler) getProduct(c *gin.Context) {
	p, ok := h.catalog.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
		return
	}
	c.JSON(http.StatusOK, p)
}

// CreateProductRequest is the admin add-product form. Every field is required.
type CreateProductRequest struct {
	Name        string   `json:"name" binding:"required"`
	Price       *float64 `json:"price" binding:"required,gte=0"`
	Description string   `json:"description" binding:"required"`
	Category    string   `json:"category" binding:"required"`
	Image       string   `json:"image" binding:"required"`
	Available   *bool    `json:"available"`
}

func (h *Handler) createProduct(c *gin.Context) {
	var req CreateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	p := models.Product{
		Name:        req.Name,
		Price:       *req.Price,
		Description: req.Description,
		Category:    req.Category,
		Image:       req.Image,
		Available:   true,
	}
	if req.Available != nil {
		p.Available = *req.Available
	}

	created, err := h.orderService.AddProduct(c.Request.Context(), p)
	if err != nil {
		writeError(c, "Failed to add product", err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (h *Handler) updateProduct(c *gin.Context) {
	var patch models.ProductPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	id := c.Param("id")
	if err := h.catalog.Update(c.Request.Context(), id, patch); err != nil {
		writeError(c, "Failed to update product", err)
		return
	}
	p, _ := h.catalog.Get(id)
	c.JSON(http.StatusOK, p)
}

func (h *Handler) toggleProduct(c *gin.Context) {
	id := c.Param("id")
	if err := h.catalog.ToggleAvailability(c.Request.Context(), id); err != nil {
		writeError(c, "Failed to toggle product", err)
		return
	}
	p, _ := h.catalog.Get(id)
	c.JSON(http.StatusOK, p)
}

func (h *Handler) listCategories(c *gin.Context) {
	c.JSON(http.StatusOK, h.catalog.Categories())
}

// cartView is the cart as the customer sees it
type cartView struct {
	Table     string            `json:"table"`
	Items     []models.CartLine `json:"items"`
	Total     float64           `json:"total"`
	ItemCount int               `json:"item_count"`
}

func renderCart(c *gin.Context, status int, store *cart.Store) {
	c.JSON(status, cartView{
		Table:     store.Table(),
		Items:     store.Lines(),
		Total:     store.TotalAmount(),
		ItemCount: store.ItemCount(),
	})
}

func (h *Handler) getCart(c *gin.Context) {
	renderCart(c, http.StatusOK, sessionCart(c))
}

func (h *Handler) clearCart(c *gin.Context) {
	store := sessionCart(c)
	if err := store.ClearCart(c.Request.Context()); err != nil {
		writeError(c, "Failed to clear cart", err)
		return
	}
	renderCart(c, http.StatusOK, store)
}

type setTableRequest struct {
	Table string `json:"table"`
}

func (h *Handler) setTable(c *gin.Context) {
	var req setTableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}
	store := sessionCart(c)
	store.SetTable(req.Table)
	renderCart(c, http.StatusOK, store)
}

type addCartItemRequest struct {
	ProductID string `json:"product_id" binding:"required"`
}

func (h *Handler) addCartItem(c *gin.Context) {
	var req addCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	store := sessionCart(c)
	if err := h.orderService.AddProductToCart(c.Request.Context(), store, req.ProductID); err != nil {
		writeError(c, "Failed to add to cart", err)
		return
	}
	renderCart(c, http.StatusOK, store)
}

type updateCartItemRequest struct {
	Qty *int `json:"qty" binding:"required"`
}

func (h *Handler) updateCartItem(c *gin.Context) {
	var req updateCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	store := sessionCart(c)
	if err := store.UpdateQuantity(c.Request.Context(), c.Param("id"), *req.Qty); err != nil {
		writeError(c, "Failed to update cart", err)
		return
	}
	renderCart(c, http.StatusOK, store)
}

func (h *Handler) removeCartItem(c *gin.Context) {
	store := sessionCart(c)
	if err := store.RemoveFromCart(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, "Failed to remove from cart", err)
		return
	}
	renderCart(c, http.StatusOK, store)
}

type checkoutRequest struct {
	Notes string `json:"notes"`
}

func (h *Handler) checkout(c *gin.Context) {
	var req checkoutRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "Invalid request body",
				"details": err.Error(),
			})
			return
		}
	}

	resp, err := h.orderService.PlaceOrder(c.Request.Context(), sessionOf(c), sessionCart(c), req.Notes)
	if err != nil {
		writeError(c, "Failed to place order", err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *Handler) latestOrder(c *gin.Context) {
	tracked, err := h.orderService.LatestOrder(c.Request.Context(), sessionOf(c))
	if err != nil {
		writeError(c, "Failed to load order", err)
		return
	}
	c.JSON(http.StatusOK, tracked)
}

func (h *Handler) listOrders(c *gin.Context) {
	all := h.orders.List()
	entries := make([]orders.FeedEntry, len(all))
	for i, o := range all {
		entries[i] = orders.FeedEntry{Order: o, Total: o.Total()}
	}
	c.JSON(http.StatusOK, entries)
}

func (h *Handler) getOrder(c *gin.Context) {
	o, ok := h.orders.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
		return
	}
	c.JSON(http.StatusOK, orders.FeedEntry{Order: o, Total: o.Total()})
}

type updateStatusRequest struct {
	Status models.OrderStatus `json:"status" binding:"required"`
}

func (h *Handler) updateOrderStatus(c *gin.Context) {
	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	id := c.Param("id")
	if err := h.orders.UpdateOrderStatus(c.Request.Context(), id, req.Status); err != nil {
		writeError(c, "Failed to update order status", err)
		return
	}
	o, _ := h.orders.Get(id)
	c.JSON(http.StatusOK, orders.FeedEntry{Order: o, Total: o.Total()})
}

func (h *Handler) listStatuses(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"tracker": models.TrackerSequence,
		"admin":   models.AdminActions,
	})
}

func (h *Handler) notifications(c *gin.Context) {
	feed := h.orderService.Feed()
	entries := feed.Entries()
	c.JSON(http.StatusOK, gin.H{
		"count":  len(entries),
		"orders": entries,
	})
}

func (h *Handler) dashboard(c *gin.Context) {
	c.JSON(http.StatusOK, h.orderService.Dashboard())
}

// writeError maps domain errors to HTTP statuses
func writeError(c *gin.Context, msg string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, catalog.ErrNotFound),
		errors.Is(err, orders.ErrNotFound),
		errors.Is(err, cart.ErrNotInCart),
		errors.Is(err, service.ErrNoOrder):
		status = http.StatusNotFound
	case errors.Is(err, catalog.ErrDuplicateID),
		errors.Is(err, orders.ErrDuplicateID),
		errors.Is(err, cart.ErrUnavailable):
		status = http.StatusConflict
	case errors.Is(err, catalog.ErrMissingID),
		errors.Is(err, catalog.ErrInvalidPrice),
		errors.Is(err, orders.ErrInvalidStatus),
		errors.Is(err, orders.ErrMissingID),
		errors.Is(err, orders.ErrMissingTable),
		errors.Is(err, orders.ErrEmptyOrder),
		errors.Is(err, service.ErrTableRequired),
		errors.Is(err, service.ErrCartEmpty):
		status = http.StatusBadRequest
	}

	if status == http.StatusInternalServerError {
		util.GetLogger().Error(msg, zap.Error(err))
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
