package types

import "github.com/google/uuid"

// PlaceOrderRequest is the intake body for POST /orders/.
type PlaceOrderRequest struct {
	Side     Side       `json:"side"`
	Quantity int64      `json:"quantity"`
	Price    Price      `json:"price"`
	OwnerID  *uuid.UUID `json:"owner_id"`
}

// ModifyOrderRequest is the body for PUT /orders/:order_id/.
type ModifyOrderRequest struct {
	Price Price `json:"price"`
}

// Pagination describes one page of a listing.
type Pagination struct {
	Page        int   `json:"page"`
	PageSize    int   `json:"page_size"`
	TotalPages  int   `json:"total_pages"`
	TotalCount  int64 `json:"total_count"`
	HasNext     bool  `json:"has_next"`
	HasPrevious bool  `json:"has_previous"`
}

// OrderList is the paginated order listing response.
type OrderList struct {
	Orders     []Order    `json:"orders"`
	Pagination Pagination `json:"pagination"`
}

// TradeList is the paginated trade listing response.
type TradeList struct {
	Trades     []Trade    `json:"trades"`
	Pagination Pagination `json:"pagination"`
}
