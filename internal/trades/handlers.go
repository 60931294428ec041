package trades

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ksred/orderbook-api/internal/types"
	"github.com/ksred/orderbook-api/pkg/response"
)

const (
	defaultDepth = 5
	maxDepth     = 20
)

// SnapshotSource produces lane-consistent book snapshots. Implemented by
// the engine controller.
type SnapshotSource interface {
	Snapshot(depth int) types.BookSnapshot
}

// GinHandlers contains HTTP handlers for the trade and book query endpoints
type GinHandlers struct {
	service *Service
	books   SnapshotSource
}

// NewGinHandlers creates a new set of HTTP handlers for query endpoints
func NewGinHandlers(service *Service, books SnapshotSource) *GinHandlers {
	return &GinHandlers{
		service: service,
		books:   books,
	}
}

// ListTradesHandler handles GET requests for the trade history
// Query parameters: page, page_size
func (h *GinHandlers) ListTradesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
		pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

		list, err := h.service.ListTrades(page, pageSize)
		response.Handle(c, list, err)
	}
}

// GetTradeHandler handles GET requests for a single trade
// URL parameter: trade_id
func (h *GinHandlers) GetTradeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		tradeID, err := uuid.Parse(c.Param("trade_id"))
		if err != nil {
			response.NotFound(c, "Trade not found")
			return
		}

		trade, err := h.service.GetTrade(tradeID)
		if err != nil {
			if errors.Is(err, ErrTradeNotFound) {
				response.NotFound(c, "Trade not found")
				return
			}
			response.InternalError(c, "Failed to retrieve trade")
			return
		}

		response.Success(c, trade)
	}
}

// SettleTradeHandler handles POST requests for the one-shot settle
// transition
// URL parameter: trade_id
func (h *GinHandlers) SettleTradeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		tradeID, err := uuid.Parse(c.Param("trade_id"))
		if err != nil {
			response.NotFound(c, "Trade not found")
			return
		}

		trade, err := h.service.SettleTrade(tradeID)
		if err != nil {
			switch {
			case errors.Is(err, ErrTradeNotFound):
				response.NotFound(c, "Trade not found")
			case errors.Is(err, ErrAlreadySettled):
				response.StateConflict(c, "Trade already settled")
			default:
				response.InternalError(c, "Failed to settle trade")
			}
			return
		}

		response.Success(c, trade)
	}
}

// OrderBookHandler handles GET requests for the aggregated book snapshot
// Query parameter: depth (1..20, default 5)
func (h *GinHandlers) OrderBookHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		depth := defaultDepth
		if raw := c.Query("depth"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed < 1 || parsed > maxDepth {
				response.ValidationFailed(c, "Depth must be between 1 and 20")
				return
			}
			depth = parsed
		}

		response.Success(c, h.books.Snapshot(depth))
	}
}
