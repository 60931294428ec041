package trades

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ksred/orderbook-api/internal/types"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

func (d *Database) GetTrade(tradeID uuid.UUID) (*types.Trade, error) {
	var trade types.Trade
	if err := d.db.Where("trade_id = ?", tradeID).First(&trade).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTradeNotFound
		}
		return nil, err
	}
	return &trade, nil
}

func (d *Database) ListTrades(page, pageSize int) ([]types.Trade, int64, error) {
	var total int64
	if err := d.db.Model(&types.Trade{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var trades []types.Trade
	offset := (page - 1) * pageSize
	err := d.db.Order("execution_timestamp DESC").Offset(offset).Limit(pageSize).Find(&trades).Error
	if err != nil {
		return nil, 0, err
	}
	return trades, total, nil
}

// SettleTrade flips the settled flag with a guarded update so concurrent
// settle calls cannot both succeed.
func (d *Database) SettleTrade(tradeID uuid.UUID, settledAt time.Time) (*types.Trade, error) {
	result := d.db.Model(&types.Trade{}).
		Where("trade_id = ? AND is_settled = ?", tradeID, false).
		Updates(map[string]interface{}{
			"is_settled":           true,
			"settlement_timestamp": settledAt,
		})
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, ErrAlreadySettled
	}
	return d.GetTrade(tradeID)
}
