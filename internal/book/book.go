// Package book implements the in-memory limit order book: ordered price
// levels per side, FIFO queues within a level, an order-id index for O(1)
// excision, and the price-time priority matching kernel.
//
// The book is not safe for concurrent use; the engine serializes all access
// through a single lane.
package book

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/btree"

	"github.com/ksred/orderbook-api/internal/types"
)

// Book holds the resting orders of a single instrument.
type Book struct {
	bids   btree.Map[int64, *level]
	asks   btree.Map[int64, *level]
	orders map[uuid.UUID]*node
}

func New() *Book {
	return &Book{
		orders: make(map[uuid.UUID]*node),
	}
}

// Submit runs the matching kernel for an incoming order: cross against the
// best opposing levels while the limit allows, then rest any remainder at
// the tail of its own level. Trades execute at the resting side's price.
// The second return value lists the resting orders whose state changed, in
// fill order, so the caller can persist them.
//
// The order must have positive remaining quantity and must not already be
// in the book; violations are programmer errors and panic.
func (b *Book) Submit(o *types.Order, now time.Time) ([]*types.Trade, []*types.Order) {
	if o.RemainingQuantity <= 0 {
		panic(fmt.Sprintf("book: submit of order %s with no remaining quantity", o.OrderID))
	}
	if _, exists := b.orders[o.OrderID]; exists {
		panic(fmt.Sprintf("book: order %s already resting", o.OrderID))
	}

	var (
		trades  []*types.Trade
		touched []*types.Order
	)
	for o.RemainingQuantity > 0 {
		lvl := b.bestOpposing(o.Side)
		if lvl == nil || !crosses(o.Side, o.Price, lvl.price) {
			break
		}

		resting := lvl.head.order
		quantity := min64(o.RemainingQuantity, resting.RemainingQuantity)
		trades = append(trades, newTrade(o, resting, quantity, lvl.price, now))
		touched = append(touched, resting)

		o.ApplyFill(quantity, lvl.price, now)
		resting.ApplyFill(quantity, lvl.price, now)
		lvl.totalQuantity -= quantity

		if resting.RemainingQuantity == 0 {
			b.removeNode(lvl.head)
		}
	}

	if o.RemainingQuantity > 0 {
		b.rest(o)
	}
	return trades, touched
}

// Remove excises a resting order, for cancellation or repricing. The
// order's quantities are left untouched.
func (b *Book) Remove(id uuid.UUID) (*types.Order, bool) {
	n, ok := b.orders[id]
	if !ok {
		return nil, false
	}
	n.level.totalQuantity -= n.order.RemainingQuantity
	b.removeNode(n)
	return n.order, true
}

// Contains reports whether the order is currently resting.
func (b *Book) Contains(id uuid.UUID) bool {
	_, ok := b.orders[id]
	return ok
}

// Get returns the live resting order, if present.
func (b *Book) Get(id uuid.UUID) (*types.Order, bool) {
	n, ok := b.orders[id]
	if !ok {
		return nil, false
	}
	return n.order, true
}

// Len is the number of resting orders.
func (b *Book) Len() int {
	return len(b.orders)
}

// Snapshot aggregates up to depth levels per side: bids descending by
// price, asks ascending.
func (b *Book) Snapshot(depth int, now time.Time) types.BookSnapshot {
	snap := types.BookSnapshot{
		Bids:      make([]types.PriceLevelSnapshot, 0, depth),
		Asks:      make([]types.PriceLevelSnapshot, 0, depth),
		Timestamp: now,
		Depth:     depth,
	}
	b.bids.Reverse(func(_ int64, lvl *level) bool {
		snap.Bids = append(snap.Bids, types.PriceLevelSnapshot{Price: lvl.price, Quantity: lvl.totalQuantity})
		return len(snap.Bids) < depth
	})
	b.asks.Scan(func(_ int64, lvl *level) bool {
		snap.Asks = append(snap.Asks, types.PriceLevelSnapshot{Price: lvl.price, Quantity: lvl.totalQuantity})
		return len(snap.Asks) < depth
	})
	return snap
}

// Restore re-seats previously persisted resting orders, oldest first, used
// to rebuild the book after a restart. No matching runs: a persisted book
// is already uncrossed.
func (b *Book) Restore(orders []*types.Order) {
	for _, o := range orders {
		if o.RemainingQuantity <= 0 {
			continue
		}
		b.rest(o)
	}
}

func (b *Book) rest(o *types.Order) {
	sideMap := &b.asks
	if o.Side == types.SideBuy {
		sideMap = &b.bids
	}
	lvl, ok := sideMap.Get(int64(o.Price))
	if !ok {
		lvl = &level{price: o.Price}
		sideMap.Set(int64(o.Price), lvl)
	}
	n := &node{order: o}
	lvl.enqueue(n)
	b.orders[o.OrderID] = n
	o.IsActive = true
}

// removeNode unlinks the node and drops its level from the price index if
// the queue emptied. Aggregate quantity must already be settled.
func (b *Book) removeNode(n *node) {
	lvl := n.level
	lvl.unlink(n)
	delete(b.orders, n.order.OrderID)
	if lvl.empty() {
		if n.order.Side == types.SideBuy {
			b.bids.Delete(int64(lvl.price))
		} else {
			b.asks.Delete(int64(lvl.price))
		}
	}
}

func (b *Book) bestOpposing(side types.Side) *level {
	if side == types.SideBuy {
		if _, lvl, ok := b.asks.Min(); ok {
			return lvl
		}
		return nil
	}
	if _, lvl, ok := b.bids.Max(); ok {
		return lvl
	}
	return nil
}

// crosses reports whether an incoming limit allows a match at the best
// opposing price. A touch at exactly the limit is a valid cross.
func crosses(side types.Side, limit, best types.Price) bool {
	if side == types.SideBuy {
		return limit >= best
	}
	return limit <= best
}

func newTrade(incoming, resting *types.Order, quantity int64, price types.Price, now time.Time) *types.Trade {
	trade := &types.Trade{
		TradeID:            uuid.New(),
		Price:              price,
		Quantity:           quantity,
		ExecutionTimestamp: now,
	}
	if incoming.Side == types.SideBuy {
		trade.BidOrderID = incoming.OrderID
		trade.AskOrderID = resting.OrderID
	} else {
		trade.BidOrderID = resting.OrderID
		trade.AskOrderID = incoming.OrderID
	}
	return trade
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
