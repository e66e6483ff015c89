package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/NicolaiBoKunkel/e-commerace-project/internal/client"
	"github.com/NicolaiBoKunkel/e-commerace-project/internal/db"
	"github.com/NicolaiBoKunkel/e-commerace-project/internal/models"
	"github.com/NicolaiBoKunkel/e-commerace-project/internal/publisher"
)

type OrderHandler struct {
	repo          *db.OrderRepository
	productClient *client.ProductClient
	publisher     *publisher.OrderPublisher
	log           *zap.SugaredLogger
}

func NewOrderHandler(log *zap.SugaredLogger, repo *db.OrderRepository, productClient *client.ProductClient, pub *publisher.OrderPublisher) *OrderHandler {
	return &OrderHandler{
		repo:          repo,
		productClient: productClient,
		publisher:     pub,
		log:           log,
	}
}

// HealthCheck returns server status
func (h *OrderHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "order-service"})
}

// ListOrders returns all orders
func (h *OrderHandler) ListOrders(c *gin.Context) {
	orders, err := h.repo.GetAll(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, orders)
}

// GetOrder returns a single order with items
func (h *OrderHandler) GetOrder(c *gin.Context) {
	order, err := h.repo.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if order == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
		return
	}

	c.JSON(http.StatusOK, order)
}

// CreateOrder creates a new order. Product details come from a synchronous
// call to the product service; the saga only starts when the order ships.
func (h *OrderHandler) CreateOrder(c *gin.Context) {
	var req models.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	order := models.Order{
		UserID: req.UserID,
		Status: models.OrderStatusPending,
	}

	var totalAmount float64

	for _, item := range req.Items {
		product, err := h.productClient.GetProduct(c.Request.Context(), item.ProductID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		orderItem := models.OrderItem{
			ProductID:   product.ID,
			ProductName: product.Name,
			Quantity:    item.Quantity,
			Price:       product.Price,
		}

		totalAmount += product.Price * float64(item.Quantity)
		order.Items = append(order.Items, orderItem)
	}

	order.TotalAmount = totalAmount

	if err := h.repo.Create(c.Request.Context(), &order); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	h.log.Infof("✅ Order %s created with total $%.2f", order.ID, order.TotalAmount)
	c.JSON(http.StatusCreated, order)
}

// UpdateOrderStatus updates the order status. Shipping an order broadcasts
// the ORDER_SHIPPED event that kicks off the inventory saga.
func (h *OrderHandler) UpdateOrderStatus(c *gin.Context) {
	id := c.Param("id")

	var req struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	validStatuses := map[string]bool{
		models.OrderStatusPending:   true,
		models.OrderStatusConfirmed: true,
		models.OrderStatusShipped:   true,
		models.OrderStatusDelivered: true,
		models.OrderStatusCancelled: true,
	}
	if !validStatuses[req.Status] {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
		return
	}

	order, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if order == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
		return
	}

	if err := h.repo.UpdateStatus(c.Request.Context(), id, req.Status); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if req.Status == models.OrderStatusShipped {
		// The order is already shipped either way; a lost event is logged,
		// not surfaced as a request failure.
		if err := h.publisher.PublishOrderShipped(order); err != nil {
			h.log.Errorf("⚠️ Failed to publish %s event for order %s: %v", req.Status, order.ID, err)
		}
	}

	c.JSON(http.StatusOK, gin.H{"message": "order status updated"})
}
