package types

import (
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var validate = validator.New()

// StartImportRequest is the body of a manual import request.
type StartImportRequest struct {
	Days int `json:"days" validate:"omitempty,min=1,max=3650"`
}

// Validate validates the StartImportRequest using the validator.
func (r *StartImportRequest) Validate() error {
	return validate.Struct(r)
}

// AcknowledgeJobRequest marks a job's completion notice as seen.
type AcknowledgeJobRequest struct {
	JobID uuid.UUID `json:"job_id" validate:"required"`
}

// Validate validates the AcknowledgeJobRequest using the validator.
func (r *AcknowledgeJobRequest) Validate() error {
	return validate.Struct(r)
}

// ThresholdRequest sets or clears a tracked item's notification threshold.
// A null threshold_value disables notifications for the item.
type ThresholdRequest struct {
	ThresholdType  ThresholdType `json:"threshold_type" validate:"required,oneof=percent absolute"`
	ThresholdValue *float64      `json:"threshold_value" validate:"omitempty,gte=0"`
}

// Validate validates the ThresholdRequest using the validator.
func (r *ThresholdRequest) Validate() error {
	return validate.Struct(r)
}

// AddTrackedItemRequest starts tracking a product URL.
type AddTrackedItemRequest struct {
	URL            string        `json:"url" validate:"required,url"`
	ThresholdType  ThresholdType `json:"notification_threshold_type" validate:"omitempty,oneof=percent absolute"`
	ThresholdValue *float64      `json:"notification_threshold_value" validate:"omitempty,gte=0"`
}

// Validate validates the AddTrackedItemRequest using the validator.
func (r *AddTrackedItemRequest) Validate() error {
	return validate.Struct(r)
}

// RenameTrackedItemRequest gives an item a custom display name.
type RenameTrackedItemRequest struct {
	Name string `json:"name" validate:"required,min=1,max=500"`
}

// Validate validates the RenameTrackedItemRequest using the validator.
func (r *RenameTrackedItemRequest) Validate() error {
	return validate.Struct(r)
}

// WebhookTestRequest asks for a connectivity check against a webhook URL.
type WebhookTestRequest struct {
	WebhookURL string `json:"webhook_url" validate:"required,url"`
}

// Validate validates the WebhookTestRequest using the validator.
func (r *WebhookTestRequest) Validate() error {
	return validate.Struct(r)
}

// NotificationSettingsRequest updates a user's webhook settings.
type NotificationSettingsRequest struct {
	JobWebhookURL         string                 `json:"job_webhook_url" validate:"omitempty,url"`
	JobPreference         NotificationPreference `json:"job_notification_preference" validate:"omitempty,oneof=off always errors_only"`
	PriceWebhookURL       string                 `json:"price_webhook_url" validate:"omitempty,url"`
	DefaultThresholdType  ThresholdType          `json:"default_threshold_type" validate:"omitempty,oneof=percent absolute"`
	DefaultThresholdValue *float64               `json:"default_threshold_value" validate:"omitempty,gte=0"`
}

// Validate validates the NotificationSettingsRequest using the validator.
func (r *NotificationSettingsRequest) Validate() error {
	return validate.Struct(r)
}

// ProviderSettingsRequest stores the credentials used for order retrieval.
// An empty password keeps the stored one.
type ProviderSettingsRequest struct {
	Email                     string `json:"provider_email" validate:"omitempty,email"`
	Password                  string `json:"provider_password"`
	OTPSecret                 string `json:"provider_otp_secret"`
	ScheduledIngestionEnabled bool   `json:"enable_scheduled_ingestion"`
}

// Validate validates the ProviderSettingsRequest using the validator.
func (r *ProviderSettingsRequest) Validate() error {
	return validate.Struct(r)
}
