package types

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ThresholdType selects how a price drop is measured.
type ThresholdType string

const (
	ThresholdPercent  ThresholdType = "percent"
	ThresholdAbsolute ThresholdType = "absolute"
)

// Valid reports whether t is a known threshold type.
func (t ThresholdType) Valid() bool {
	return t == ThresholdPercent || t == ThresholdAbsolute
}

// TrackedItem is a product a user watches for price drops.
type TrackedItem struct {
	ID             uuid.UUID           `json:"id"`
	Owner          uuid.UUID           `json:"owner"`
	SourceURL      string              `json:"url"`
	ExternalID     string              `json:"asin,omitempty"`
	DisplayName    string              `json:"name"`
	CustomName     bool                `json:"is_custom_name"`
	CurrentPrice   decimal.NullDecimal `json:"current_price"`
	Currency       string              `json:"currency"`
	ThresholdType  ThresholdType       `json:"threshold_type"`
	ThresholdValue decimal.NullDecimal `json:"threshold_value"`
	LastCheckedAt  *time.Time          `json:"last_checked,omitempty"`
	CreatedAt      time.Time           `json:"created_at"`
}

// HasThreshold reports whether a notification threshold is configured.
func (i *TrackedItem) HasThreshold() bool {
	return i.ThresholdValue.Valid && i.ThresholdType.Valid()
}

// PriceHistoryEntry is one observed price of a tracked item.
type PriceHistoryEntry struct {
	TrackedItemID uuid.UUID       `json:"tracked_item_id"`
	Price         decimal.Decimal `json:"price"`
	RecordedAt    time.Time       `json:"recorded_at"`
}

// TrackedItemDetail is an item with its per-day price history.
type TrackedItemDetail struct {
	TrackedItem
	History []PriceHistoryEntry `json:"history"`
}

// NotificationPreference controls job-completion summaries.
type NotificationPreference string

const (
	NotifyOff        NotificationPreference = "off"
	NotifyAlways     NotificationPreference = "always"
	NotifyErrorsOnly NotificationPreference = "errors_only"
)

// NotificationSettings are the per-user webhook settings.
type NotificationSettings struct {
	UserID                uuid.UUID              `json:"user_id"`
	JobWebhookURL         string                 `json:"job_webhook_url"`
	JobPreference         NotificationPreference `json:"job_notification_preference"`
	PriceWebhookURL       string                 `json:"price_webhook_url"`
	DefaultThresholdType  ThresholdType          `json:"default_threshold_type,omitempty"`
	DefaultThresholdValue decimal.NullDecimal    `json:"default_threshold_value"`
}

// ScheduledTarget is a user opted into scheduled ingestion.
type ScheduledTarget struct {
	UserID   uuid.UUID
	Username string
}
