package engine

import (
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ksred/orderbook-api/internal/types"
)

// Database wraps the gorm connection with the order persistence queries the
// engine needs.
type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

// CreateOrder inserts a freshly admitted order row.
func (d *Database) CreateOrder(order *types.Order) error {
	return d.db.Create(order).Error
}

// SaveOrder writes the order's current state back to its row.
func (d *Database) SaveOrder(order *types.Order) error {
	return d.db.Save(order).Error
}

// CreateTrade inserts an execution record.
func (d *Database) CreateTrade(trade *types.Trade) error {
	return d.db.Create(trade).Error
}

// GetOrder fetches an order row by its public id.
func (d *Database) GetOrder(orderID uuid.UUID) (*types.Order, error) {
	var order types.Order
	if err := d.db.Where("order_id = ?", orderID).First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

// OrderFilter narrows a ListOrders query.
type OrderFilter struct {
	Status   string
	Side     string
	OwnerID  *uuid.UUID
	Page     int
	PageSize int
}

// ListOrders returns one page of orders, newest first, plus the total count
// for the filter.
func (d *Database) ListOrders(filter OrderFilter) ([]types.Order, int64, error) {
	query := d.db.Model(&types.Order{})

	if filter.Status != "" {
		query = query.Where("status = ?", strings.ToUpper(filter.Status))
	}
	if filter.Side != "" {
		if side, err := types.ParseSide(filter.Side); err == nil {
			query = query.Where("side = ?", string(side))
		}
	}
	if filter.OwnerID != nil {
		query = query.Where("owner_id = ?", *filter.OwnerID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var orders []types.Order
	offset := (filter.Page - 1) * filter.PageSize
	err := query.Order("created_at DESC").Offset(offset).Limit(filter.PageSize).Find(&orders).Error
	if err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

// RestingOrders loads the orders that were live in the book when the
// process last stopped, oldest first so queue priority is rebuilt intact.
func (d *Database) RestingOrders() ([]*types.Order, error) {
	var orders []*types.Order
	err := d.db.
		Where("is_active = ? AND status IN ?", true, []string{string(types.StatusActive), string(types.StatusPartiallyFilled)}).
		Order("created_at ASC").
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}
