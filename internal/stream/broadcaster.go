package stream

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/ksred/orderbook-api/internal/types"
)

const (
	feedDepth     = 5
	feedTradeTail = 5
)

// BookSource is the lane-consistent view the broadcaster reads from.
// Implemented by the engine controller.
type BookSource interface {
	Snapshot(depth int) types.BookSnapshot
	RecentTrades(n int) []types.Trade
}

// tradeMessage is the per-trade wire shape of the trade feed.
type tradeMessage struct {
	TradeID            uuid.UUID   `json:"trade_id"`
	Price              types.Price `json:"price"`
	Quantity           int64       `json:"quantity"`
	ExecutionTimestamp time.Time   `json:"execution_timestamp"`
	BidOrderID         uuid.UUID   `json:"bid_order_id"`
	AskOrderID         uuid.UUID   `json:"ask_order_id"`
}

type tradeFeedPayload struct {
	Trades []tradeMessage `json:"trades"`
}

type bookFeedPayload struct {
	Bids []types.PriceLevelSnapshot `json:"bids"`
	Asks []types.PriceLevelSnapshot `json:"asks"`
}

// Broadcaster pushes periodic snapshots onto the hub. Each feed is only
// produced while it has subscribers, and every payload reflects the book
// at a single lane instant.
type Broadcaster struct {
	hub      *Hub
	source   BookSource
	interval time.Duration
}

func NewBroadcaster(hub *Hub, source BookSource, interval time.Duration) *Broadcaster {
	return &Broadcaster{
		hub:      hub,
		source:   source,
		interval: interval,
	}
}

// Start runs the broadcast loop until the context is cancelled.
func (b *Broadcaster) Start(ctx context.Context) {
	logger := log.With().Str("component", "broadcaster").Logger()
	logger.Info().Dur("interval", b.interval).Msg("starting snapshot broadcaster")

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("shutting down snapshot broadcaster")
			return
		case <-ticker.C:
			b.tick()
		}
	}
}

func (b *Broadcaster) tick() {
	if b.hub.Subscribers(FeedOrderBook) > 0 {
		snap := b.source.Snapshot(feedDepth)
		b.hub.Broadcast(FeedOrderBook, bookFeedPayload{
			Bids: snap.Bids,
			Asks: snap.Asks,
		})
	}

	if b.hub.Subscribers(FeedTrades) > 0 {
		recent := b.source.RecentTrades(feedTradeTail)
		msgs := make([]tradeMessage, 0, len(recent))
		for _, t := range recent {
			msgs = append(msgs, tradeMessage{
				TradeID:            t.TradeID,
				Price:              t.Price,
				Quantity:           t.Quantity,
				ExecutionTimestamp: t.ExecutionTimestamp,
				BidOrderID:         t.BidOrderID,
				AskOrderID:         t.AskOrderID,
			})
		}
		b.hub.Broadcast(FeedTrades, tradeFeedPayload{Trades: msgs})
	}
}
