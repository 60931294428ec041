package engine

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ksred/orderbook-api/internal/database"
	"github.com/ksred/orderbook-api/internal/types"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := database.Open(dsn)
	require.NoError(t, err)
	return db
}

func placeReq(side types.Side, quantity int64, price types.Price) types.PlaceOrderRequest {
	return types.PlaceOrderRequest{Side: side, Quantity: quantity, Price: price}
}

func TestPlaceValidation(t *testing.T) {
	c := NewController(testDB(t))
	defer c.Close()

	tests := []struct {
		name string
		req  types.PlaceOrderRequest
	}{
		{"missing side", placeReq("", 10, 10000)},
		{"zero quantity", placeReq(types.SideBuy, 0, 10000)},
		{"negative quantity", placeReq(types.SideBuy, -5, 10000)},
		{"oversized quantity", placeReq(types.SideBuy, types.MaxQuantity+1, 10000)},
		{"zero price", placeReq(types.SideBuy, 10, 0)},
		{"oversized price", placeReq(types.SideBuy, 10, types.MaxPrice+1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Place(tt.req)
			assert.True(t, IsValidation(err), "expected validation error, got %v", err)
		})
	}
}

func TestPlaceRestsAndIsQueryable(t *testing.T) {
	c := NewController(testDB(t))
	defer c.Close()

	order, err := c.Place(placeReq(types.SideBuy, 10, 10000))
	require.NoError(t, err)

	assert.Equal(t, types.StatusActive, order.Status)
	assert.True(t, order.IsActive)
	assert.Equal(t, int64(10), order.RemainingQuantity)

	// Immediately queryable with a monotonic status.
	got, err := c.GetOrder(order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, order.OrderID, got.OrderID)
	assert.Equal(t, types.StatusActive, got.Status)
}

func TestPlaceCrossProducesTrade(t *testing.T) {
	c := NewController(testDB(t))

	sell, err := c.Place(placeReq(types.SideSell, 10, 10100))
	require.NoError(t, err)

	buy, err := c.Place(placeReq(types.SideBuy, 4, 10200))
	require.NoError(t, err)

	// Incoming buy fully filled at the passive price.
	assert.Equal(t, types.StatusFilled, buy.Status)
	assert.Equal(t, int64(4), buy.TradedQuantity)
	assert.Equal(t, types.Price(10100), buy.AverageTradedPrice)

	// Resting sell partially filled, still live.
	got, err := c.GetOrder(sell.OrderID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusPartiallyFilled, got.Status)
	assert.Equal(t, int64(6), got.RemainingQuantity)

	recent := c.RecentTrades(5)
	require.Len(t, recent, 1)
	assert.Equal(t, types.Price(10100), recent[0].Price)
	assert.Equal(t, int64(4), recent[0].Quantity)

	// Drain the sink, then the trade and both rows must be durable.
	db := c.db
	c.Close()

	trade := &types.Trade{}
	require.NoError(t, db.db.First(trade, "trade_id = ?", recent[0].TradeID).Error)
	assert.Equal(t, buy.OrderID, trade.BidOrderID)
	assert.Equal(t, sell.OrderID, trade.AskOrderID)

	row, err := db.GetOrder(sell.OrderID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusPartiallyFilled, row.Status)
}

func TestModifySemantics(t *testing.T) {
	c := NewController(testDB(t))
	defer c.Close()

	a, err := c.Place(placeReq(types.SideSell, 10, 10000))
	require.NoError(t, err)
	b, err := c.Place(placeReq(types.SideSell, 10, 10000))
	require.NoError(t, err)

	// Reprice B below A.
	modified, err := c.Modify(b.OrderID, 9900)
	require.NoError(t, err)
	assert.Equal(t, types.Price(9900), modified.Price)
	assert.True(t, modified.IsActive)

	// A buy at 99 trades with B, not A.
	buy, err := c.Place(placeReq(types.SideBuy, 5, 9900))
	require.NoError(t, err)
	assert.Equal(t, types.StatusFilled, buy.Status)

	recent := c.RecentTrades(1)
	require.Len(t, recent, 1)
	assert.Equal(t, b.OrderID, recent[0].AskOrderID)

	// A is untouched at its original level.
	got, err := c.GetOrder(a.OrderID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusActive, got.Status)
	assert.Equal(t, int64(10), got.RemainingQuantity)
}

func TestModifyCrossesImmediately(t *testing.T) {
	c := NewController(testDB(t))
	defer c.Close()

	_, err := c.Place(placeReq(types.SideBuy, 5, 10000))
	require.NoError(t, err)
	sell, err := c.Place(placeReq(types.SideSell, 5, 10200))
	require.NoError(t, err)

	// Repricing the sell through the bid executes at the resting bid price.
	modified, err := c.Modify(sell.OrderID, 9900)
	require.NoError(t, err)
	assert.Equal(t, types.StatusFilled, modified.Status)
	assert.Equal(t, types.Price(10000), modified.AverageTradedPrice)
}

func TestModifyErrors(t *testing.T) {
	c := NewController(testDB(t))
	defer c.Close()

	_, err := c.Modify(uuid.New(), 10000)
	assert.ErrorIs(t, err, ErrOrderNotFound)

	order, err := c.Place(placeReq(types.SideBuy, 5, 10000))
	require.NoError(t, err)
	_, err = c.Cancel(order.OrderID)
	require.NoError(t, err)

	_, err = c.Modify(order.OrderID, 10100)
	assert.ErrorIs(t, err, ErrOrderNotActive)
}

func TestCancelFreezesState(t *testing.T) {
	c := NewController(testDB(t))
	defer c.Close()

	_, err := c.Place(placeReq(types.SideSell, 3, 10000))
	require.NoError(t, err)

	buy, err := c.Place(placeReq(types.SideBuy, 10, 10000))
	require.NoError(t, err)
	assert.Equal(t, types.StatusPartiallyFilled, buy.Status)

	cancelled, err := c.Cancel(buy.OrderID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCancelled, cancelled.Status)
	assert.False(t, cancelled.IsActive)
	assert.Equal(t, int64(3), cancelled.TradedQuantity)
	assert.Equal(t, int64(7), cancelled.RemainingQuantity)

	// A second cancel is a state conflict, not a silent success.
	_, err = c.Cancel(buy.OrderID)
	assert.ErrorIs(t, err, ErrOrderNotActive)
}

func TestPlaceThenImmediateCancel(t *testing.T) {
	c := NewController(testDB(t))
	defer c.Close()

	order, err := c.Place(placeReq(types.SideBuy, 10, 10000))
	require.NoError(t, err)

	cancelled, err := c.Cancel(order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), cancelled.TradedQuantity)
	assert.Equal(t, cancelled.Quantity, cancelled.RemainingQuantity)
}

func TestListOrdersFiltersAndPagination(t *testing.T) {
	c := NewController(testDB(t))
	defer c.Close()

	owner := uuid.New()
	for i := 0; i < 5; i++ {
		req := placeReq(types.SideBuy, 10, types.Price(9000+i*10))
		req.OwnerID = &owner
		_, err := c.Place(req)
		require.NoError(t, err)
	}
	for i := 0; i < 3; i++ {
		_, err := c.Place(placeReq(types.SideSell, 10, types.Price(20000+i*10)))
		require.NoError(t, err)
	}

	list, err := c.ListOrders(OrderFilter{Side: "buy"})
	require.NoError(t, err)
	assert.Equal(t, int64(5), list.Pagination.TotalCount)

	list, err = c.ListOrders(OrderFilter{OwnerID: &owner})
	require.NoError(t, err)
	assert.Len(t, list.Orders, 5)

	list, err = c.ListOrders(OrderFilter{Status: "active", PageSize: 3})
	require.NoError(t, err)
	assert.Len(t, list.Orders, 3)
	assert.Equal(t, int64(8), list.Pagination.TotalCount)
	assert.Equal(t, 3, list.Pagination.TotalPages)
	assert.True(t, list.Pagination.HasNext)
	assert.False(t, list.Pagination.HasPrevious)
}

func TestSnapshotIsLaneConsistent(t *testing.T) {
	c := NewController(testDB(t))
	defer c.Close()

	_, err := c.Place(placeReq(types.SideBuy, 10, 10000))
	require.NoError(t, err)
	_, err = c.Place(placeReq(types.SideSell, 10, 10100))
	require.NoError(t, err)

	snap := c.Snapshot(5)
	require.Len(t, snap.Bids, 1)
	require.Len(t, snap.Asks, 1)
	assert.Equal(t, 5, snap.Depth)
}

func TestRecoverRebuildsBook(t *testing.T) {
	db := testDB(t)

	c1 := NewController(db)
	first, err := c1.Place(placeReq(types.SideSell, 10, 10000))
	require.NoError(t, err)
	second, err := c1.Place(placeReq(types.SideSell, 10, 10000))
	require.NoError(t, err)
	c1.Close()

	c2 := NewController(db)
	require.NoError(t, c2.Recover())
	defer c2.Close()

	snap := c2.Snapshot(5)
	require.Len(t, snap.Asks, 1)
	assert.Equal(t, int64(20), snap.Asks[0].Quantity)

	// Priority survives the rebuild: the earlier order fills first.
	buy, err := c2.Place(placeReq(types.SideBuy, 5, 10000))
	require.NoError(t, err)
	assert.Equal(t, types.StatusFilled, buy.Status)

	recent := c2.RecentTrades(1)
	require.Len(t, recent, 1)
	assert.Equal(t, first.OrderID, recent[0].AskOrderID)
	_ = second
}
