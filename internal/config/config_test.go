package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setBaseEnv(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/factory")
	t.Setenv("GEMINI_API_KEY", "test-key")
	t.Setenv("GOOGLE_SEARCH_API_KEY", "")
	t.Setenv("GOOGLE_SEARCH_CX", "")
	t.Setenv("PORT", "")
}

func TestLoad_Defaults(t *testing.T) {
	setBaseEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres://localhost/factory", cfg.DatabaseURL)
	assert.Equal(t, "test-key", cfg.APIKey)
	assert.Equal(t, 8080, cfg.Port)
	assert.False(t, cfg.SearchEnabled())
}

func TestLoad_CustomPort(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("PORT", "9000")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Port)
}

func TestLoad_InvalidPort(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("PORT", "not-a-number")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_MissingRequired(t *testing.T) {
	tests := []struct {
		name  string
		unset string
	}{
		{"no database url", "DATABASE_URL"},
		{"no api key", "GEMINI_API_KEY"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setBaseEnv(t)
			t.Setenv(tt.unset, "")

			_, err := Load()
			assert.ErrorContains(t, err, tt.unset)
		})
	}
}

func TestLoad_SearchKeysMustPair(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("GOOGLE_SEARCH_API_KEY", "search-key")

	_, err := Load()
	assert.ErrorContains(t, err, "must be set together")

	t.Setenv("GOOGLE_SEARCH_CX", "engine-id")
	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.SearchEnabled())
}

func TestValidate_PortRange(t *testing.T) {
	cfg := &Config{DatabaseURL: "x", APIKey: "y", Port: 0}
	assert.Error(t, cfg.Validate())

	cfg.Port = 70000
	assert.Error(t, cfg.Validate())

	cfg.Port = 8080
	assert.NoError(t, cfg.Validate())
}

func TestNewJWTConfig(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("JWT_EXPIRATION_HOURS", "")

	cfg, err := NewJWTConfig()
	require.NoError(t, err)
	assert.Equal(t, "s3cret", cfg.Secret)
	assert.Equal(t, 24, cfg.ExpirationHours)

	t.Setenv("JWT_EXPIRATION_HOURS", "48")
	cfg, err = NewJWTConfig()
	require.NoError(t, err)
	assert.Equal(t, 48, cfg.ExpirationHours)

	t.Setenv("JWT_EXPIRATION_HOURS", "0")
	_, err = NewJWTConfig()
	assert.Error(t, err)

	t.Setenv("JWT_SECRET", "")
	_, err = NewJWTConfig()
	assert.ErrorContains(t, err, "JWT_SECRET")
}

func TestNewPasswordConfig(t *testing.T) {
	t.Setenv("BCRYPT_COST", "")
	cfg, err := NewPasswordConfig()
	require.NoError(t, err)
	assert.Equal(t, 12, cfg.BcryptCost)

	t.Setenv("BCRYPT_COST", "10")
	cfg, err = NewPasswordConfig()
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.BcryptCost)

	for _, bad := range []string{"9", "15", "abc"} {
		t.Setenv("BCRYPT_COST", bad)
		_, err = NewPasswordConfig()
		assert.Error(t, err, bad)
	}
}

func TestPasswordRoundTrip(t *testing.T) {
	cfg := &PasswordConfig{BcryptCost: 10}

	hash, err := cfg.HashPassword("correct horse battery staple")
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse battery staple", hash)

	assert.True(t, cfg.VerifyPassword("correct horse battery staple", hash))
	assert.False(t, cfg.VerifyPassword("wrong password", hash))
	assert.False(t, cfg.VerifyPassword("anything", "not-a-bcrypt-hash"))
}
