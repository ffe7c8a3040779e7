// Package provider defines the contracts for retrieving order history and
// current product prices, with command and scraping implementations.
package provider

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrNoCredentials is returned when a user has not configured provider access.
var ErrNoCredentials = errors.New("provider credentials are not configured")

// ErrBlocked is returned when the storefront served a CAPTCHA or robot check.
var ErrBlocked = errors.New("storefront blocked the request")

// Credentials authenticate against the order source.
type Credentials struct {
	Email     string
	Password  string
	OTPSecret string
}

// Configured reports whether enough is present to attempt a login.
func (c Credentials) Configured() bool {
	return c.Email != "" && c.Password != ""
}

// FetchRequest asks for a user's orders placed in the last Days days.
type FetchRequest struct {
	UserID      uuid.UUID
	Credentials Credentials
	Days        int
}

// Order is one purchase returned by a provider.
type Order struct {
	ID    string
	Date  time.Time
	Total decimal.NullDecimal
	Items []OrderItem
}

// OrderItem is one line of an Order.
type OrderItem struct {
	OrderID  string
	Title    string
	ASIN     string
	URL      string
	Price    decimal.Decimal
	Quantity int
}

// OrderProvider retrieves order history. logf receives human-readable progress
// lines and may be nil.
type OrderProvider interface {
	FetchOrders(ctx context.Context, req FetchRequest, logf func(string)) ([]Order, error)
}

// PriceQuote is the observed state of a product page.
type PriceQuote struct {
	URL      string
	Title    string
	Price    decimal.NullDecimal
	Currency string
}

// PriceFetcher retrieves the current price of a product.
type PriceFetcher interface {
	FetchPrice(ctx context.Context, url string) (*PriceQuote, error)
}

// OrderProviderFunc adapts a function to OrderProvider.
type OrderProviderFunc func(ctx context.Context, req FetchRequest, logf func(string)) ([]Order, error)

// FetchOrders implements OrderProvider.
func (f OrderProviderFunc) FetchOrders(ctx context.Context, req FetchRequest, logf func(string)) ([]Order, error) {
	return f(ctx, req, logf)
}
