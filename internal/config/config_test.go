package config_test

import (
	"testing"
	"time"

	"github.com/nfrund/freemember/internal/config"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := config.FromViper(viper.New())

	assert.Equal(t, "memory", cfg.GetMemberStore())
	assert.Equal(t, 5, cfg.GetMinPasswordLength())
	assert.Equal(t, 24*time.Hour, cfg.GetResetCodeTTL())
	assert.True(t, cfg.GetAllowRegistration())
	assert.False(t, cfg.GetUseMembershipCaptcha())
	assert.Empty(t, cfg.GetSessionSecret(), "signing keys have no default")
	assert.Empty(t, cfg.GetParamsHashKey())
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("MEMBER_STORE", "surreal")
	t.Setenv("RESET_CODE_TTL", "2h")
	t.Setenv("APP_BASE_URL", "https://example.com/")

	cfg := config.FromViper(viper.New())

	assert.Equal(t, "surreal", cfg.GetMemberStore())
	assert.Equal(t, 2*time.Hour, cfg.GetResetCodeTTL())
	assert.Equal(t, "https://example.com", cfg.GetAppBaseURL(), "trailing slash is trimmed")
}

func TestSetOverridesEnvironment(t *testing.T) {
	t.Setenv("ALLOW_REGISTRATION", "true")
	cfg := config.FromViper(viper.New())
	cfg.Set("ALLOW_REGISTRATION", false)

	assert.False(t, cfg.GetAllowRegistration())
}

func TestCheckSecrets(t *testing.T) {
	strong := "0123456789abcdef0123456789abcdef"

	tests := []struct {
		name    string
		session string
		params  string
		wantErr string
	}{
		{name: "both set", session: strong, params: strong},
		{name: "session unset", params: strong, wantErr: "SESSION_SECRET is not set"},
		{name: "params unset", session: strong, wantErr: "PARAMS_HASH_KEY is not set"},
		{name: "placeholder", session: "change-me-to-a-long-random-string", params: strong, wantErr: "placeholder"},
		{name: "too short", session: strong, params: "short", wantErr: "at least 32 bytes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.FromViper(viper.New())
			cfg.Set("SESSION_SECRET", tt.session)
			cfg.Set("PARAMS_HASH_KEY", tt.params)

			err := config.CheckSecrets(cfg)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, config.ErrWeakSecret)
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
