package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Provider exposes the settings consumed by the rest of the application.
// Handlers and services depend on this interface so tests can stub it.
type Provider interface {
	GetServerAddr() string
	GetAppBaseURL() string
	GetSessionSecret() string
	GetParamsHashKey() string
	GetParamsBlockKey() string
	GetPagesDir() string
	GetPagesWatch() bool

	GetMemberStore() string
	GetMemberFieldsFile() string
	GetDBURL() string
	GetDBNs() string
	GetDBDb() string
	GetDBUser() string
	GetDBPass() string
	GetDBQueryTimeout() time.Duration

	GetEmailProvider() string
	GetEmailSender() string
	GetEmailAPIKey() string

	GetAllowRegistration() bool
	GetUseMembershipCaptcha() bool
	GetDefaultGroup() string
	GetMinPasswordLength() int
	GetResetCodeTTL() time.Duration
	GetAutoLoginDuration() time.Duration

	GetRateLimitStore() string
	GetRateLimitPerMinute() int
	GetRedisAddr() string
}

// Config is the viper-backed Provider.
type Config struct {
	v *viper.Viper
}

var _ Provider = (*Config)(nil)

// New loads configuration from a .env file (if present) and the environment.
func New() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}
	return FromViper(viper.New())
}

// FromViper wraps an existing viper instance, applying defaults and
// environment binding. Tests use it with explicit Set calls.
func FromViper(v *viper.Viper) *Config {
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("APP_ADDR", ":8080")
	v.SetDefault("APP_BASE_URL", "http://localhost:8080")
	v.SetDefault("PARAMS_BLOCK_KEY", "")
	v.SetDefault("PAGES_DIR", "web/pages")
	v.SetDefault("PAGES_WATCH", false)

	v.SetDefault("MEMBER_STORE", "memory")
	v.SetDefault("MEMBER_FIELDS_FILE", "")
	v.SetDefault("SURREAL_NS", "freemember")
	v.SetDefault("SURREAL_DB", "freemember")
	v.SetDefault("DB_QUERY_TIMEOUT", 5*time.Second)

	v.SetDefault("EMAIL_PROVIDER", "log")
	v.SetDefault("EMAIL_SENDER", "FreeMember <noreply@localhost>")

	v.SetDefault("ALLOW_REGISTRATION", true)
	v.SetDefault("USE_MEMBERSHIP_CAPTCHA", false)
	v.SetDefault("DEFAULT_MEMBER_GROUP", "members")
	v.SetDefault("MIN_PASSWORD_LENGTH", 5)
	v.SetDefault("RESET_CODE_TTL", 24*time.Hour)
	v.SetDefault("AUTO_LOGIN_DURATION", 14*24*time.Hour)

	v.SetDefault("RATE_LIMIT_STORE", "memory")
	v.SetDefault("RATE_LIMIT_PER_MINUTE", 10)
	v.SetDefault("REDIS_ADDR", "localhost:6379")

	return &Config{v: v}
}

// MinSecretLength is the shortest accepted SESSION_SECRET or PARAMS_HASH_KEY.
const MinSecretLength = 32

// ErrWeakSecret is returned by CheckSecrets.
var ErrWeakSecret = errors.New("weak secret")

// CheckSecrets rejects signing keys that are unset, too short or still the
// placeholder from .env.example. Both keys authenticate data the browser
// sends back, so a guessable value lets anyone forge a login.
func CheckSecrets(p Provider) error {
	for _, s := range []struct{ key, value string }{
		{"SESSION_SECRET", p.GetSessionSecret()},
		{"PARAMS_HASH_KEY", p.GetParamsHashKey()},
	} {
		switch {
		case s.value == "":
			return fmt.Errorf("%w: %s is not set", ErrWeakSecret, s.key)
		case strings.HasPrefix(s.value, "change-me"):
			return fmt.Errorf("%w: %s still holds the example placeholder", ErrWeakSecret, s.key)
		case len(s.value) < MinSecretLength:
			return fmt.Errorf("%w: %s must be at least %d bytes", ErrWeakSecret, s.key, MinSecretLength)
		}
	}
	return nil
}

// Set overrides a single key. Intended for tests and CLI flags.
func (c *Config) Set(key string, value any) { c.v.Set(key, value) }

func (c *Config) GetServerAddr() string     { return c.v.GetString("APP_ADDR") }
func (c *Config) GetAppBaseURL() string     { return strings.TrimRight(c.v.GetString("APP_BASE_URL"), "/") }
func (c *Config) GetSessionSecret() string  { return c.v.GetString("SESSION_SECRET") }
func (c *Config) GetParamsHashKey() string  { return c.v.GetString("PARAMS_HASH_KEY") }
func (c *Config) GetParamsBlockKey() string { return c.v.GetString("PARAMS_BLOCK_KEY") }
func (c *Config) GetPagesDir() string       { return c.v.GetString("PAGES_DIR") }
func (c *Config) GetPagesWatch() bool       { return c.v.GetBool("PAGES_WATCH") }

func (c *Config) GetMemberStore() string           { return c.v.GetString("MEMBER_STORE") }
func (c *Config) GetMemberFieldsFile() string      { return c.v.GetString("MEMBER_FIELDS_FILE") }
func (c *Config) GetDBURL() string                 { return c.v.GetString("SURREAL_URL") }
func (c *Config) GetDBNs() string                  { return c.v.GetString("SURREAL_NS") }
func (c *Config) GetDBDb() string                  { return c.v.GetString("SURREAL_DB") }
func (c *Config) GetDBUser() string                { return c.v.GetString("SURREAL_USER") }
func (c *Config) GetDBPass() string                { return c.v.GetString("SURREAL_PASS") }
func (c *Config) GetDBQueryTimeout() time.Duration { return c.v.GetDuration("DB_QUERY_TIMEOUT") }

func (c *Config) GetEmailProvider() string { return c.v.GetString("EMAIL_PROVIDER") }
func (c *Config) GetEmailSender() string   { return c.v.GetString("EMAIL_SENDER") }
func (c *Config) GetEmailAPIKey() string   { return c.v.GetString("EMAIL_API_KEY") }

func (c *Config) GetAllowRegistration() bool          { return c.v.GetBool("ALLOW_REGISTRATION") }
func (c *Config) GetUseMembershipCaptcha() bool       { return c.v.GetBool("USE_MEMBERSHIP_CAPTCHA") }
func (c *Config) GetDefaultGroup() string             { return c.v.GetString("DEFAULT_MEMBER_GROUP") }
func (c *Config) GetMinPasswordLength() int           { return c.v.GetInt("MIN_PASSWORD_LENGTH") }
func (c *Config) GetResetCodeTTL() time.Duration      { return c.v.GetDuration("RESET_CODE_TTL") }
func (c *Config) GetAutoLoginDuration() time.Duration { return c.v.GetDuration("AUTO_LOGIN_DURATION") }

func (c *Config) GetRateLimitStore() string  { return c.v.GetString("RATE_LIMIT_STORE") }
func (c *Config) GetRateLimitPerMinute() int { return c.v.GetInt("RATE_LIMIT_PER_MINUTE") }
func (c *Config) GetRedisAddr() string       { return c.v.GetString("REDIS_ADDR") }
