// Package testutils holds helpers shared by package tests.
package testutils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/joho/godotenv"
	"github.com/nfrund/freemember/internal/config"
	"github.com/spf13/viper"
)

// ConfigForTests returns a config isolated from other tests. Values from a
// .env.test file at the project root, when one exists, are applied with
// t.Setenv first so integration tests can point at real services.
func ConfigForTests(t *testing.T) *config.Config {
	t.Helper()

	if root, ok := projectRoot(); ok {
		env, err := godotenv.Read(filepath.Join(root, ".env.test"))
		if err == nil {
			for key, value := range env {
				t.Setenv(key, value)
			}
		}
	}

	cfg := config.FromViper(viper.New())
	cfg.Set("APP_BASE_URL", "http://example.com")
	cfg.Set("SESSION_SECRET", "a-very-secret-key-for-testing-only!")
	cfg.Set("PARAMS_HASH_KEY", "0123456789abcdef0123456789abcdef")
	cfg.Set("MEMBER_STORE", "memory")
	cfg.Set("EMAIL_PROVIDER", "log")
	return cfg
}

// projectRoot walks up from the working directory to the go.mod.
func projectRoot() (string, bool) {
	path, err := os.Getwd()
	if err != nil {
		return "", false
	}
	for {
		if _, err := os.Stat(filepath.Join(path, "go.mod")); err == nil {
			return path, true
		}
		if path == filepath.Dir(path) {
			return "", false
		}
		path = filepath.Dir(path)
	}
}
