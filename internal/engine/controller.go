// Package engine hosts the book controller: the single serialized lane
// through which every book mutation flows, plus the write-behind
// persistence sink feeding the orders and trades relations.
package engine

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/ksred/orderbook-api/internal/book"
	"github.com/ksred/orderbook-api/internal/types"
)

// Controller owns the order book and serializes place/modify/cancel and
// snapshot reads through one mutex-guarded lane. Matching never blocks: the
// only waits are lane entry and the buffered persistence hand-off.
type Controller struct {
	mu     sync.Mutex
	book   *book.Book
	recent tradeRing

	db     *Database
	sink   *sink
	logger zerolog.Logger
}

func NewController(gormDB *gorm.DB) *Controller {
	db := NewDatabase(gormDB)
	return &Controller{
		book:   book.New(),
		db:     db,
		sink:   newSink(db),
		logger: log.With().Str("component", "book_controller").Logger(),
	}
}

// Recover rebuilds the in-memory book from the persisted resting orders.
// Called once at startup, before any traffic is admitted.
func (c *Controller) Recover() error {
	orders, err := c.db.RestingOrders()
	if err != nil {
		return fmt.Errorf("failed to load resting orders: %w", err)
	}

	c.mu.Lock()
	c.book.Restore(orders)
	c.mu.Unlock()

	c.logger.Info().Int("resting_orders", len(orders)).Msg("order book rebuilt from storage")
	return nil
}

// Place validates and admits a new order, runs the matching kernel and
// returns the post-match state. The order row is written through before
// matching so the returned id is durably reserved.
func (c *Controller) Place(req types.PlaceOrderRequest) (*types.Order, error) {
	if err := validatePlace(req); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	order := &types.Order{
		OrderID:           uuid.New(),
		Side:              req.Side,
		Quantity:          req.Quantity,
		Price:             req.Price,
		RemainingQuantity: req.Quantity,
		Status:            types.StatusActive,
		IsActive:          true,
		OwnerID:           req.OwnerID,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := c.db.CreateOrder(order); err != nil {
		return nil, fmt.Errorf("failed to persist order: %w", err)
	}

	c.mu.Lock()
	trades, touched := c.book.Submit(order, now)
	c.persistMatch(order, trades, touched)
	result := *order
	c.mu.Unlock()

	c.logger.Debug().
		Str("order_id", order.OrderID.String()).
		Str("side", string(order.Side)).
		Int64("quantity", order.Quantity).
		Str("price", order.Price.String()).
		Int("trades", len(trades)).
		Str("status", string(order.Status)).
		Msg("order placed")

	return &result, nil
}

// Modify reprices a resting order. The order keeps its id and traded
// history but forfeits queue priority: the remaining quantity re-enters at
// the tail of the new level, matching first if the new price crosses.
func (c *Controller) Modify(orderID uuid.UUID, newPrice types.Price) (*types.Order, error) {
	if newPrice <= 0 {
		return nil, &ValidationError{Field: "price", Reason: "must be positive"}
	}
	if newPrice > types.MaxPrice {
		return nil, &ValidationError{Field: "price", Reason: "exceeds maximum value"}
	}

	now := time.Now().UTC()

	c.mu.Lock()
	order, ok := c.book.Remove(orderID)
	if !ok {
		c.mu.Unlock()
		return nil, c.missingOrderError(orderID)
	}

	order.Price = newPrice
	order.IsActive = false
	order.UpdatedAt = now
	trades, touched := c.book.Submit(order, now)
	c.persistMatch(order, trades, touched)
	result := *order
	c.mu.Unlock()

	c.logger.Debug().
		Str("order_id", orderID.String()).
		Str("new_price", newPrice.String()).
		Int("trades", len(trades)).
		Msg("order modified")

	return &result, nil
}

// Cancel excises a resting order, freezing its quantities. Terminal state,
// so the row is written through synchronously.
func (c *Controller) Cancel(orderID uuid.UUID) (*types.Order, error) {
	now := time.Now().UTC()

	c.mu.Lock()
	order, ok := c.book.Remove(orderID)
	if !ok {
		c.mu.Unlock()
		return nil, c.missingOrderError(orderID)
	}

	order.Status = types.StatusCancelled
	order.IsActive = false
	order.UpdatedAt = now
	result := *order
	c.mu.Unlock()

	if err := c.sink.enqueueOrderWait(result); err != nil {
		return nil, fmt.Errorf("failed to persist cancellation: %w", err)
	}

	c.logger.Debug().Str("order_id", orderID.String()).Msg("order cancelled")
	return &result, nil
}

// GetOrder returns the freshest view of an order: the live book copy if it
// is resting, the persisted row otherwise.
func (c *Controller) GetOrder(orderID uuid.UUID) (*types.Order, error) {
	c.mu.Lock()
	if order, ok := c.book.Get(orderID); ok {
		result := *order
		c.mu.Unlock()
		return &result, nil
	}
	c.mu.Unlock()

	order, err := c.db.GetOrder(orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	return order, nil
}

// ListOrders pages through persisted orders, newest first.
func (c *Controller) ListOrders(filter OrderFilter) (*types.OrderList, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 || filter.PageSize > 100 {
		filter.PageSize = 20
	}

	orders, total, err := c.db.ListOrders(filter)
	if err != nil {
		return nil, err
	}

	totalPages := int(math.Ceil(float64(total) / float64(filter.PageSize)))
	return &types.OrderList{
		Orders: orders,
		Pagination: types.Pagination{
			Page:        filter.Page,
			PageSize:    filter.PageSize,
			TotalPages:  totalPages,
			TotalCount:  total,
			HasNext:     filter.Page < totalPages,
			HasPrevious: filter.Page > 1,
		},
	}, nil
}

// Snapshot aggregates the top levels of the book at a single lane instant.
func (c *Controller) Snapshot(depth int) types.BookSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.book.Snapshot(depth, time.Now().UTC())
}

// RecentTrades returns up to n trades from the in-memory suffix, newest
// first.
func (c *Controller) RecentTrades(n int) []types.Trade {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recent.latest(n)
}

// Close drains the persistence sink. The controller must not be used
// afterwards.
func (c *Controller) Close() {
	c.sink.close()
}

// persistMatch hands the results of a kernel run to the write-behind sink
// and records trades for the streaming feed. Caller holds the lane.
func (c *Controller) persistMatch(order *types.Order, trades []*types.Trade, touched []*types.Order) {
	for i, trade := range trades {
		c.recent.append(*trade)
		c.sink.enqueueTrade(*trade)
		c.sink.enqueueOrder(*touched[i])
	}
	c.sink.enqueueOrder(*order)
}

// missingOrderError distinguishes an id that was never assigned from an
// order that already left the book.
func (c *Controller) missingOrderError(orderID uuid.UUID) error {
	order, err := c.db.GetOrder(orderID)
	if err != nil {
		return err
	}
	if order == nil {
		return ErrOrderNotFound
	}
	return ErrOrderNotActive
}

func validatePlace(req types.PlaceOrderRequest) error {
	if req.Side != types.SideBuy && req.Side != types.SideSell {
		return &ValidationError{Field: "side", Reason: "must be \"buy\" or \"sell\""}
	}
	if req.Quantity <= 0 {
		return &ValidationError{Field: "quantity", Reason: "must be a positive integer"}
	}
	if req.Quantity > types.MaxQuantity {
		return &ValidationError{Field: "quantity", Reason: "exceeds maximum value"}
	}
	if req.Price <= 0 {
		return &ValidationError{Field: "price", Reason: "must be positive"}
	}
	if req.Price > types.MaxPrice {
		return &ValidationError{Field: "price", Reason: "exceeds maximum value"}
	}
	return nil
}
