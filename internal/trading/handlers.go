// Package trading exposes the order intake HTTP surface: placing,
// modifying, cancelling and querying orders.
package trading

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ksred/orderbook-api/internal/engine"
	"github.com/ksred/orderbook-api/internal/types"
	"github.com/ksred/orderbook-api/pkg/response"
)

// GinHandlers contains HTTP handlers for order intake endpoints
type GinHandlers struct {
	controller *engine.Controller
}

// NewGinHandlers creates a new set of HTTP handlers for order endpoints
func NewGinHandlers(controller *engine.Controller) *GinHandlers {
	return &GinHandlers{
		controller: controller,
	}
}

// PlaceOrderHandler handles POST requests to place new orders
// Request body: {"side": "buy"|"sell", "quantity": int, "price": decimal, "owner_id": uuid?}
func (h *GinHandlers) PlaceOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req types.PlaceOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.ValidationFailed(c, err.Error())
			return
		}

		order, err := h.controller.Place(req)
		if err != nil {
			if engine.IsValidation(err) {
				response.ValidationFailed(c, err.Error())
				return
			}
			response.InternalError(c, "Failed to place order")
			return
		}

		response.Success(c, order)
	}
}

// GetOrderHandler handles GET requests for a single order
// URL parameter: order_id
func (h *GinHandlers) GetOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		orderID, err := uuid.Parse(c.Param("order_id"))
		if err != nil {
			response.NotFound(c, "Order not found")
			return
		}

		order, err := h.controller.GetOrder(orderID)
		if err != nil {
			if errors.Is(err, engine.ErrOrderNotFound) {
				response.NotFound(c, "Order not found")
				return
			}
			response.InternalError(c, "Failed to retrieve order")
			return
		}

		response.Success(c, order)
	}
}

// ListOrdersHandler handles GET requests for the order listing
// Query parameters: status, side, owner_id, page, page_size
func (h *GinHandlers) ListOrdersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		filter := engine.OrderFilter{
			Status: c.Query("status"),
			Side:   c.Query("side"),
		}

		if raw := c.Query("owner_id"); raw != "" {
			ownerID, err := uuid.Parse(raw)
			if err != nil {
				response.ValidationFailed(c, "owner_id must be a valid uuid")
				return
			}
			filter.OwnerID = &ownerID
		}

		filter.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
		filter.PageSize, _ = strconv.Atoi(c.DefaultQuery("page_size", "20"))

		list, err := h.controller.ListOrders(filter)
		response.Handle(c, list, err)
	}
}

// ModifyOrderHandler handles PUT requests to reprice an order
// URL parameter: order_id, body: {"price": decimal}
func (h *GinHandlers) ModifyOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		orderID, err := uuid.Parse(c.Param("order_id"))
		if err != nil {
			response.NotFound(c, "Order not found")
			return
		}

		var req types.ModifyOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.ValidationFailed(c, err.Error())
			return
		}

		order, err := h.controller.Modify(orderID, req.Price)
		if err != nil {
			switch {
			case errors.Is(err, engine.ErrOrderNotFound):
				response.NotFound(c, "Order not found")
			case errors.Is(err, engine.ErrOrderNotActive):
				response.StateConflict(c, "Order cannot be modified")
			case engine.IsValidation(err):
				response.ValidationFailed(c, err.Error())
			default:
				response.InternalError(c, "Failed to modify order")
			}
			return
		}

		response.Success(c, order)
	}
}

// CancelOrderHandler handles DELETE requests to cancel an order
// URL parameter: order_id
func (h *GinHandlers) CancelOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		orderID, err := uuid.Parse(c.Param("order_id"))
		if err != nil {
			response.NotFound(c, "Order not found")
			return
		}

		order, err := h.controller.Cancel(orderID)
		if err != nil {
			switch {
			case errors.Is(err, engine.ErrOrderNotFound):
				response.NotFound(c, "Order not found")
			case errors.Is(err, engine.ErrOrderNotActive):
				response.StateConflict(c, "Order cannot be cancelled")
			default:
				response.InternalError(c, "Failed to cancel order")
			}
			return
		}

		response.Success(c, order)
	}
}
