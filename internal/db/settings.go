package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/jonathan/purchase-tracker/internal/provider"
	"github.com/jonathan/purchase-tracker/internal/secrets"
	"github.com/jonathan/purchase-tracker/internal/types"
)

// -----------------------------------------------------------------------------
// User Settings Methods
// -----------------------------------------------------------------------------

const notificationColumns = `s.user_id, COALESCE(s.job_webhook_url, ''), s.job_notification_preference,
	COALESCE(s.price_webhook_url, ''), s.default_threshold_type, s.default_threshold_value`

// NotificationSettings retrieves a user's webhook settings, or nil when none are stored.
func (db *DB) NotificationSettings(ctx context.Context, userID uuid.UUID) (*types.NotificationSettings, error) {
	settings, err := scanNotificationSettings(db.pool.QueryRow(ctx,
		`SELECT `+notificationColumns+` FROM user_settings s WHERE s.user_id = $1`, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get notification settings: %w", err)
	}
	return settings, nil
}

// AdminSettings retrieves the webhook settings of the oldest admin.
func (db *DB) AdminSettings(ctx context.Context) (*types.NotificationSettings, error) {
	settings, err := scanNotificationSettings(db.pool.QueryRow(ctx,
		`SELECT `+notificationColumns+`
		 FROM user_settings s JOIN users u ON u.id = s.user_id
		 WHERE u.is_admin
		 ORDER BY u.created_at
		 LIMIT 1`))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get admin settings: %w", err)
	}
	return settings, nil
}

// UpdateNotificationSettings replaces a user's webhook settings.
func (db *DB) UpdateNotificationSettings(ctx context.Context, userID uuid.UUID, req *types.NotificationSettingsRequest) (*types.NotificationSettings, error) {
	pref := req.JobPreference
	if pref == "" {
		pref = types.NotifyOff
	}
	var thresholdType *string
	if req.DefaultThresholdType != "" {
		tt := string(req.DefaultThresholdType)
		thresholdType = &tt
	}
	var thresholdValue decimal.NullDecimal
	if req.DefaultThresholdValue != nil {
		thresholdValue = decimal.NewNullDecimal(decimal.NewFromFloat(*req.DefaultThresholdValue))
	}

	_, err := db.pool.Exec(ctx,
		`INSERT INTO user_settings (user_id, job_webhook_url, job_notification_preference,
		                            price_webhook_url, default_threshold_type, default_threshold_value)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (user_id) DO UPDATE SET
		     job_webhook_url = $2,
		     job_notification_preference = $3,
		     price_webhook_url = $4,
		     default_threshold_type = $5,
		     default_threshold_value = $6,
		     updated_at = NOW()`,
		userID, nullIfEmpty(req.JobWebhookURL), string(pref), nullIfEmpty(req.PriceWebhookURL),
		thresholdType, thresholdValue,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update notification settings: %w", err)
	}
	return db.NotificationSettings(ctx, userID)
}

// GetProviderSettings retrieves a user's stored provider credentials, or nil.
func (db *DB) GetProviderSettings(ctx context.Context, userID uuid.UUID) (*ProviderSettings, error) {
	var ps ProviderSettings
	err := db.pool.QueryRow(ctx,
		`SELECT user_id, COALESCE(provider_email, ''), COALESCE(provider_password_encrypted, ''),
		        COALESCE(provider_otp_secret_encrypted, ''), scheduled_ingestion_enabled
		 FROM user_settings WHERE user_id = $1`,
		userID,
	).Scan(&ps.UserID, &ps.Email, &ps.PasswordEncrypted, &ps.OTPSecretEncrypted, &ps.ScheduledIngestionEnabled)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get provider settings: %w", err)
	}
	return &ps, nil
}

// UpdateProviderSettings stores provider credentials. A nil secret keeps the stored value.
func (db *DB) UpdateProviderSettings(ctx context.Context, userID uuid.UUID, email string, passwordEncrypted, otpEncrypted *string, scheduled bool) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO user_settings (user_id, provider_email, provider_password_encrypted,
		                            provider_otp_secret_encrypted, scheduled_ingestion_enabled)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (user_id) DO UPDATE SET
		     provider_email = $2,
		     provider_password_encrypted = COALESCE($3, user_settings.provider_password_encrypted),
		     provider_otp_secret_encrypted = COALESCE($4, user_settings.provider_otp_secret_encrypted),
		     scheduled_ingestion_enabled = $5,
		     updated_at = NOW()`,
		userID, nullIfEmpty(email), passwordEncrypted, otpEncrypted, scheduled,
	)
	if err != nil {
		return fmt.Errorf("failed to update provider settings: %w", err)
	}
	return nil
}

// ScheduledTargets lists users opted into scheduled ingestion, by username.
func (db *DB) ScheduledTargets(ctx context.Context) ([]types.ScheduledTarget, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT u.id, u.username
		 FROM users u JOIN user_settings s ON s.user_id = u.id
		 WHERE s.scheduled_ingestion_enabled AND s.provider_email IS NOT NULL
		 ORDER BY u.username`)
	if err != nil {
		return nil, fmt.Errorf("failed to list scheduled users: %w", err)
	}
	defer rows.Close()

	var targets []types.ScheduledTarget
	for rows.Next() {
		var t types.ScheduledTarget
		if err := rows.Scan(&t.UserID, &t.Username); err != nil {
			return nil, fmt.Errorf("failed to scan scheduled user: %w", err)
		}
		targets = append(targets, t)
	}
	return targets, rows.Err()
}

func scanNotificationSettings(row pgx.Row) (*types.NotificationSettings, error) {
	var s types.NotificationSettings
	var pref string
	var thresholdType *string
	if err := row.Scan(&s.UserID, &s.JobWebhookURL, &pref, &s.PriceWebhookURL,
		&thresholdType, &s.DefaultThresholdValue); err != nil {
		return nil, err
	}
	s.JobPreference = types.NotificationPreference(pref)
	if thresholdType != nil {
		s.DefaultThresholdType = types.ThresholdType(*thresholdType)
	}
	return &s, nil
}

// Directory resolves scheduled targets and decrypted provider credentials.
type Directory struct {
	db  *DB
	box *secrets.Box
}

// Directory returns a jobs.Directory that decrypts credentials with box.
func (db *DB) Directory(box *secrets.Box) *Directory {
	return &Directory{db: db, box: box}
}

// ScheduledTargets implements jobs.Directory.
func (d *Directory) ScheduledTargets(ctx context.Context) ([]types.ScheduledTarget, error) {
	return d.db.ScheduledTargets(ctx)
}

// Credentials implements jobs.Directory.
func (d *Directory) Credentials(ctx context.Context, userID uuid.UUID) (provider.Credentials, error) {
	ps, err := d.db.GetProviderSettings(ctx, userID)
	if err != nil {
		return provider.Credentials{}, err
	}
	if ps == nil || ps.Email == "" || ps.PasswordEncrypted == "" {
		return provider.Credentials{}, provider.ErrNoCredentials
	}
	if d.box == nil {
		return provider.Credentials{}, fmt.Errorf("credential encryption is not configured")
	}

	creds := provider.Credentials{Email: ps.Email}
	if creds.Password, err = d.box.Open(ps.PasswordEncrypted); err != nil {
		return provider.Credentials{}, fmt.Errorf("failed to decrypt provider password: %w", err)
	}
	if ps.OTPSecretEncrypted != "" {
		if creds.OTPSecret, err = d.box.Open(ps.OTPSecretEncrypted); err != nil {
			return provider.Credentials{}, fmt.Errorf("failed to decrypt provider otp secret: %w", err)
		}
	}
	return creds, nil
}
