package types

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Side of the book an order rests on.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

var ErrInvalidSide = errors.New("side must be \"buy\" or \"sell\"")

// ParseSide normalizes the wire representation, accepting any casing.
func ParseSide(s string) (Side, error) {
	switch strings.ToUpper(s) {
	case "BUY":
		return SideBuy, nil
	case "SELL":
		return SideSell, nil
	default:
		return "", ErrInvalidSide
	}
}

func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// MarshalJSON emits the lowercase wire form.
func (s Side) MarshalJSON() ([]byte, error) {
	return json.Marshal(strings.ToLower(string(s)))
}

func (s *Side) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return ErrInvalidSide
	}
	parsed, err := ParseSide(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Order lifecycle states.
type Status string

const (
	StatusPending         Status = "PENDING"
	StatusActive          Status = "ACTIVE"
	StatusPartiallyFilled Status = "PARTIALLY_FILLED"
	StatusFilled          Status = "FILLED"
	StatusCancelled       Status = "CANCELLED"
	StatusRejected        Status = "REJECTED"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusFilled || s == StatusCancelled || s == StatusRejected
}

// Order is a limit order. The same struct backs the live book entry, the
// persisted row and the wire shape; the book holds the authoritative copy
// while the order is resting.
type Order struct {
	gorm.Model         `json:"-"`
	OrderID            uuid.UUID  `gorm:"type:uuid;uniqueIndex" json:"order_id"`
	Side               Side       `json:"side"`
	Quantity           int64      `json:"quantity"`
	Price              Price      `json:"price"`
	RemainingQuantity  int64      `json:"remaining_quantity"`
	TradedQuantity     int64      `json:"traded_quantity"`
	TradedNotional     int64      `json:"-"` // sum of fill qty x fill price, in hundredths
	AverageTradedPrice Price      `json:"average_traded_price"`
	Status             Status     `gorm:"index" json:"status"`
	IsActive           bool       `json:"is_active"`
	OwnerID            *uuid.UUID `gorm:"type:uuid;index" json:"owner_id,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// ApplyFill deducts a fill from the order and refreshes the traded-quantity
// accounting. The average price is derived from the accumulators on every
// fill, so repeated fills cannot drift.
func (o *Order) ApplyFill(quantity int64, price Price, now time.Time) {
	if quantity <= 0 || quantity > o.RemainingQuantity {
		panic("orderbook: fill quantity out of range")
	}
	o.RemainingQuantity -= quantity
	o.TradedQuantity += quantity
	o.TradedNotional += quantity * int64(price)
	o.AverageTradedPrice = Price((o.TradedNotional + o.TradedQuantity/2) / o.TradedQuantity)
	if o.RemainingQuantity == 0 {
		o.Status = StatusFilled
		o.IsActive = false
	} else {
		o.Status = StatusPartiallyFilled
	}
	o.UpdatedAt = now
}

// Trade records an execution between a resting and an incoming order.
// Immutable after creation except for the one-shot settlement transition.
type Trade struct {
	gorm.Model          `json:"-"`
	TradeID             uuid.UUID  `gorm:"type:uuid;uniqueIndex" json:"trade_id"`
	Price               Price      `json:"price"`
	Quantity            int64      `json:"quantity"`
	BidOrderID          uuid.UUID  `gorm:"type:uuid;index" json:"bid_order_id"`
	AskOrderID          uuid.UUID  `gorm:"type:uuid;index" json:"ask_order_id"`
	ExecutionTimestamp  time.Time  `gorm:"index:idx_trades_execution_ts,sort:desc" json:"execution_timestamp"`
	IsSettled           bool       `gorm:"index" json:"is_settled"`
	SettlementTimestamp *time.Time `json:"settlement_timestamp"`
}

// PriceLevelSnapshot is one aggregated rung of the ladder.
type PriceLevelSnapshot struct {
	Price    Price `json:"price"`
	Quantity int64 `json:"quantity"`
}

// BookSnapshot is a point-in-time view of the book: bids descending,
// asks ascending, quantities aggregated per level.
type BookSnapshot struct {
	Bids      []PriceLevelSnapshot `json:"bids"`
	Asks      []PriceLevelSnapshot `json:"asks"`
	Timestamp time.Time            `json:"timestamp"`
	Depth     int                  `json:"depth"`
}
