// Package trades serves the query side: trade history, one-shot trade
// settlement and the aggregated order book snapshot.
package trades

import (
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/ksred/orderbook-api/internal/types"
)

var (
	// ErrTradeNotFound means the id was never assigned to a trade.
	ErrTradeNotFound = errors.New("trade not found")
	// ErrAlreadySettled means the one-shot settle transition already ran.
	ErrAlreadySettled = errors.New("trade already settled")
)

// Service handles trade queries and settlement
type Service struct {
	db *Database
}

// NewService creates a new trade service with the given database connection
func NewService(gormDB *gorm.DB) *Service {
	return &Service{
		db: NewDatabase(gormDB),
	}
}

// GetTrade retrieves a trade by its ID
func (s *Service) GetTrade(tradeID uuid.UUID) (*types.Trade, error) {
	return s.db.GetTrade(tradeID)
}

// ListTrades returns one page of trades, most recent execution first
func (s *Service) ListTrades(page, pageSize int) (*types.TradeList, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	trades, total, err := s.db.ListTrades(page, pageSize)
	if err != nil {
		return nil, err
	}

	totalPages := int(math.Ceil(float64(total) / float64(pageSize)))
	return &types.TradeList{
		Trades: trades,
		Pagination: types.Pagination{
			Page:        page,
			PageSize:    pageSize,
			TotalPages:  totalPages,
			TotalCount:  total,
			HasNext:     page < totalPages,
			HasPrevious: page > 1,
		},
	}, nil
}

// SettleTrade transitions a trade's settled flag false to true exactly
// once and stamps the settlement time. A second call is a state conflict.
func (s *Service) SettleTrade(tradeID uuid.UUID) (*types.Trade, error) {
	logger := log.With().
		Str("trade_id", tradeID.String()).
		Str("service", "trades").
		Logger()

	trade, err := s.db.GetTrade(tradeID)
	if err != nil {
		return nil, err
	}
	if trade.IsSettled {
		logger.Warn().Msg("settle rejected, trade already settled")
		return nil, ErrAlreadySettled
	}

	now := time.Now().UTC()
	settled, err := s.db.SettleTrade(tradeID, now)
	if err != nil {
		logger.Error().Err(err).Msg("failed to settle trade")
		return nil, err
	}

	logger.Info().Time("settlement_timestamp", now).Msg("trade settled")
	return settled, nil
}
