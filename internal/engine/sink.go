package engine

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ksred/orderbook-api/internal/types"
)

const (
	sinkBuffer   = 1024
	sinkAttempts = 3
	sinkBackoff  = 50 * time.Millisecond
)

// writeOp is one pending persistence write: either an order upsert or a
// trade insert. A non-nil reply makes the write synchronous from the
// caller's point of view while still applying in lane order.
type writeOp struct {
	order *types.Order
	trade *types.Trade
	reply chan error
}

// sink is the write-behind persistence lane. Operations are applied in
// submission order by a single goroutine, so row state in the database only
// ever moves forward. Transient failures are retried with backoff; on
// exhaustion the write is dropped and logged, keeping the in-memory book
// authoritative.
type sink struct {
	db   *Database
	ops  chan writeOp
	done chan struct{}
}

func newSink(db *Database) *sink {
	s := &sink{
		db:   db,
		ops:  make(chan writeOp, sinkBuffer),
		done: make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *sink) run() {
	defer close(s.done)
	logger := log.With().Str("component", "persistence_sink").Logger()

	for op := range s.ops {
		var err error
		for attempt := 1; attempt <= sinkAttempts; attempt++ {
			err = s.apply(op)
			if err == nil {
				break
			}
			time.Sleep(time.Duration(attempt) * sinkBackoff)
		}
		if op.reply != nil {
			op.reply <- err
			continue
		}
		if err != nil {
			if op.trade != nil {
				logger.Error().Err(err).
					Str("trade_id", op.trade.TradeID.String()).
					Msg("dropping trade write after retries")
			} else {
				logger.Error().Err(err).
					Str("order_id", op.order.OrderID.String()).
					Msg("dropping order write after retries")
			}
		}
	}
}

func (s *sink) apply(op writeOp) error {
	if op.trade != nil {
		return s.db.CreateTrade(op.trade)
	}
	return s.db.SaveOrder(op.order)
}

// enqueueOrder schedules an upsert of the order's current state. The value
// is copied so the lane can keep mutating the live order.
func (s *sink) enqueueOrder(order types.Order) {
	s.ops <- writeOp{order: &order}
}

func (s *sink) enqueueTrade(trade types.Trade) {
	s.ops <- writeOp{trade: &trade}
}

// enqueueOrderWait schedules the write behind everything already queued and
// blocks until it has been applied. Used for terminal transitions, whose
// persistence failures are surfaced to the caller.
func (s *sink) enqueueOrderWait(order types.Order) error {
	reply := make(chan error, 1)
	s.ops <- writeOp{order: &order, reply: reply}
	return <-reply
}

// close drains outstanding writes and stops the goroutine.
func (s *sink) close() {
	close(s.ops)
	<-s.done
}
