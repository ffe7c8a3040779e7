// Package notify evaluates price drops against user thresholds and delivers
// webhook notifications.
package notify

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jonathan/purchase-tracker/internal/types"
)

var hundred = decimal.NewFromInt(100)

// Decision is the outcome of evaluating one price observation.
type Decision struct {
	Fire          bool
	Previous      decimal.Decimal
	Current       decimal.Decimal
	Change        decimal.Decimal // current - previous, negative on a drop
	ChangePercent decimal.Decimal
}

// Evaluate compares newPrice with the item's current price.
// With delta = previous - new, a percent threshold fires when
// 100*delta/previous >= threshold and an absolute threshold fires when
// delta >= threshold. Only strict drops fire. Items without a threshold or a
// previous price never fire.
func Evaluate(item *types.TrackedItem, newPrice decimal.Decimal) Decision {
	d := Decision{Current: newPrice}
	if item == nil || !item.CurrentPrice.Valid {
		return d
	}

	prev := item.CurrentPrice.Decimal
	d.Previous = prev
	d.Change = newPrice.Sub(prev)
	if !prev.IsZero() {
		d.ChangePercent = d.Change.Mul(hundred).Div(prev).Round(2)
	}

	if !item.HasThreshold() {
		return d
	}
	delta := prev.Sub(newPrice)
	if !delta.IsPositive() {
		return d
	}

	threshold := item.ThresholdValue.Decimal
	switch item.ThresholdType {
	case types.ThresholdPercent:
		if prev.IsPositive() {
			d.Fire = delta.Mul(hundred).Div(prev).GreaterThanOrEqual(threshold)
		}
	case types.ThresholdAbsolute:
		d.Fire = delta.GreaterThanOrEqual(threshold)
	}
	return d
}

// PriceDropPayload is the JSON body posted to a price webhook.
type PriceDropPayload struct {
	ItemID             uuid.UUID           `json:"item_id"`
	ItemName           string              `json:"item_name"`
	URL                string              `json:"url"`
	Currency           string              `json:"currency"`
	PreviousPrice      float64             `json:"previous_price"`
	CurrentPrice       float64             `json:"current_price"`
	PriceChange        float64             `json:"price_change"`
	PriceChangePercent float64             `json:"price_change_percent"`
	ThresholdType      types.ThresholdType `json:"threshold_type"`
	ThresholdValue     float64             `json:"threshold_value"`
}

// NewPriceDropPayload builds the webhook body for a fired decision.
func NewPriceDropPayload(item *types.TrackedItem, d Decision) PriceDropPayload {
	return PriceDropPayload{
		ItemID:             item.ID,
		ItemName:           item.DisplayName,
		URL:                item.SourceURL,
		Currency:           item.Currency,
		PreviousPrice:      d.Previous.InexactFloat64(),
		CurrentPrice:       d.Current.InexactFloat64(),
		PriceChange:        d.Change.Round(2).InexactFloat64(),
		PriceChangePercent: d.ChangePercent.InexactFloat64(),
		ThresholdType:      item.ThresholdType,
		ThresholdValue:     item.ThresholdValue.Decimal.InexactFloat64(),
	}
}
