package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJWTConfig_Defaults(t *testing.T) {
	cfg, err := NewJWTConfig(envMap(map[string]string{"JWT_SECRET": "a-long-enough-secret"}))
	require.NoError(t, err)
	assert.Equal(t, 24, cfg.ExpirationHours)
	assert.Equal(t, 24*time.Hour, cfg.Expiration())
	assert.Equal(t, "purchase-tracker", cfg.Issuer)
}

func TestNewJWTConfig_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{name: "missing secret", env: map[string]string{}, want: "JWT_SECRET is required"},
		{name: "short secret", env: map[string]string{"JWT_SECRET": "short"}, want: "at least 16"},
		{name: "bad expiration", env: map[string]string{"JWT_SECRET": "a-long-enough-secret", "JWT_EXPIRATION_HOURS": "day"}, want: "invalid JWT_EXPIRATION_HOURS"},
		{name: "zero expiration", env: map[string]string{"JWT_SECRET": "a-long-enough-secret", "JWT_EXPIRATION_HOURS": "0"}, want: "at least 1 hour"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewJWTConfig(envMap(tt.env))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestNewPasswordConfig(t *testing.T) {
	cfg, err := NewPasswordConfig(envMap(map[string]string{}))
	require.NoError(t, err)
	assert.Equal(t, 12, cfg.BcryptCost)

	_, err = NewPasswordConfig(envMap(map[string]string{"BCRYPT_COST": "20"}))
	assert.Error(t, err)

	_, err = NewPasswordConfig(envMap(map[string]string{"BCRYPT_COST": "high"}))
	assert.Error(t, err)
}

func TestPasswordConfig_HashAndVerify(t *testing.T) {
	cfg := &PasswordConfig{BcryptCost: 4, Pepper: "pepper"}

	hash, err := cfg.HashPassword("correct horse")
	require.NoError(t, err)
	assert.True(t, cfg.VerifyPassword("correct horse", hash))
	assert.False(t, cfg.VerifyPassword("wrong horse", hash))

	// a different pepper invalidates existing hashes
	other := &PasswordConfig{BcryptCost: 4, Pepper: "rotated"}
	assert.False(t, other.VerifyPassword("correct horse", hash))
}

func TestPasswordConfig_Limits(t *testing.T) {
	cfg := &PasswordConfig{BcryptCost: 4}

	_, err := cfg.HashPassword("short")
	assert.ErrorIs(t, err, ErrPasswordTooShort)

	_, err = cfg.HashPassword(strings.Repeat("x", 100))
	assert.Error(t, err)
}
