package server

import (
	"fmt"
	"net/http"

	"github.com/jonathan/purchase-tracker/internal/server/middleware"
	"github.com/jonathan/purchase-tracker/internal/types"
)

// providerSettingsView never exposes stored secrets, only whether they exist.
type providerSettingsView struct {
	Email                     string `json:"provider_email"`
	HasPassword               bool   `json:"has_provider_password"`
	HasOTPSecret              bool   `json:"has_provider_otp_secret"`
	ScheduledIngestionEnabled bool   `json:"enable_scheduled_ingestion"`
}

type settingsResponse struct {
	Notifications *types.NotificationSettings `json:"notifications"`
	Provider      providerSettingsView        `json:"provider"`
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.GetUserID(r)
	if err != nil {
		s.errorResponse(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	notifications, err := s.deps.Settings.NotificationSettings(r.Context(), userID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if notifications == nil {
		notifications = &types.NotificationSettings{UserID: userID, JobPreference: types.NotifyOff}
	}

	ps, err := s.deps.Settings.GetProviderSettings(r.Context(), userID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var view providerSettingsView
	if ps != nil {
		view = providerSettingsView{
			Email:                     ps.Email,
			HasPassword:               ps.PasswordEncrypted != "",
			HasOTPSecret:              ps.OTPSecretEncrypted != "",
			ScheduledIngestionEnabled: ps.ScheduledIngestionEnabled,
		}
	}

	s.jsonResponse(w, http.StatusOK, settingsResponse{Notifications: notifications, Provider: view})
}

func (s *Server) handleUpdateNotificationSettings(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.GetUserID(r)
	if err != nil {
		s.errorResponse(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req types.NotificationSettingsRequest
	if err := s.decodeRequest(r, &req, false); err != nil {
		s.writeError(w, r, err)
		return
	}

	updated, err := s.deps.Settings.UpdateNotificationSettings(r.Context(), userID, &req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, updated)
}

// handleUpdateProviderSettings seals the provider secrets before storing them.
// Empty secrets keep the stored values.
func (s *Server) handleUpdateProviderSettings(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.GetUserID(r)
	if err != nil {
		s.errorResponse(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req types.ProviderSettingsRequest
	if err := s.decodeRequest(r, &req, false); err != nil {
		s.writeError(w, r, err)
		return
	}

	password, err := s.seal(req.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	otp, err := s.seal(req.OTPSecret)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.deps.Settings.UpdateProviderSettings(r.Context(), userID, req.Email, password, otp, req.ScheduledIngestionEnabled); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]string{"message": "Provider settings updated"})
}

func (s *Server) seal(secret string) (*string, error) {
	if secret == "" {
		return nil, nil
	}
	if s.deps.Box == nil {
		return nil, fmt.Errorf("credential encryption is not configured")
	}
	sealed, err := s.deps.Box.Seal(secret)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt credential: %w", err)
	}
	return &sealed, nil
}

// handleTestWebhook sends a synthetic payload and reports the delivery attempt.
func (s *Server) handleTestWebhook(w http.ResponseWriter, r *http.Request) {
	var req types.WebhookTestRequest
	if err := s.decodeRequest(r, &req, false); err != nil {
		s.writeError(w, r, err)
		return
	}

	result := s.deps.Webhooks.TestWebhook(r.Context(), req.WebhookURL)
	s.jsonResponse(w, http.StatusOK, result)
}
