package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// SpendingSummary aggregates a user's stored orders.
type SpendingSummary struct {
	TotalSpending decimal.Decimal   `json:"total_spending"`
	TotalOrders   int               `json:"total_orders"`
	SpendingTrend []MonthlySpending `json:"spending_trend"`
}

// MonthlySpending is the order total of one calendar month (YYYY-MM).
type MonthlySpending struct {
	Month         string          `json:"month"`
	TotalSpending decimal.Decimal `json:"total_spending"`
	Orders        int             `json:"orders"`
}

// PurchasedItem is one line of a stored order.
type PurchasedItem struct {
	OrderID   string          `json:"order_id"`
	OrderDate *time.Time      `json:"order_date"`
	Title     string          `json:"title"`
	ASIN      *string         `json:"asin,omitempty"`
	URL       *string         `json:"url,omitempty"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
}

// ItemPage is one page of purchased items.
type ItemPage struct {
	Data  []PurchasedItem `json:"data"`
	Total int             `json:"total"`
	Page  int             `json:"page"`
	Limit int             `json:"limit"`
}

// ItemQuery selects a page of purchased items. Filter matches the title or
// the order date text.
type ItemQuery struct {
	Page      int    `validate:"min=1"`
	Limit     int    `validate:"min=1,max=100"`
	SortBy    string `validate:"oneof=title asin price order_date"`
	SortOrder string `validate:"oneof=asc desc"`
	Filter    string `validate:"max=200"`
}

// DefaultItemQuery returns the first page, newest orders first.
func DefaultItemQuery() ItemQuery {
	return ItemQuery{Page: 1, Limit: 20, SortBy: "order_date", SortOrder: "desc"}
}

// Offset is the number of rows before the page.
func (q ItemQuery) Offset() int {
	return (q.Page - 1) * q.Limit
}

// Validate validates the ItemQuery using the validator.
func (q *ItemQuery) Validate() error {
	return validate.Struct(q)
}

// PricePoint is the unit price paid in one order.
type PricePoint struct {
	Price decimal.Decimal `json:"price"`
	Date  *time.Time      `json:"date"`
}

// RepeatItem is a product bought more than once. Previous holds up to three
// earlier purchases, newest first.
type RepeatItem struct {
	ASIN        string          `json:"asin"`
	Title       string          `json:"title"`
	URL         *string         `json:"url,omitempty"`
	Current     PricePoint      `json:"current"`
	Previous    []PricePoint    `json:"previous"`
	PriceChange decimal.Decimal `json:"price_change"`
}

// RepeatItemQuery filters and orders repeat purchases.
type RepeatItemQuery struct {
	SortBy           string `validate:"oneof=title current_price current_date previous_price previous_date"`
	SortOrder        string `validate:"oneof=asc desc"`
	Filter           string `validate:"max=200"`
	PriceChangedOnly bool
}

// DefaultRepeatItemQuery orders repeat purchases by title.
func DefaultRepeatItemQuery() RepeatItemQuery {
	return RepeatItemQuery{SortBy: "title", SortOrder: "asc"}
}

// Validate validates the RepeatItemQuery using the validator.
func (q *RepeatItemQuery) Validate() error {
	return validate.Struct(q)
}
