package database

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/nfrund/freemember/internal/config"
	"github.com/surrealdb/surrealdb.go"
)

// NewDB creates and configures a new SurrealDB connection. The connection
// is retried with backoff so the app can start alongside the database.
func NewDB(ctx context.Context, cfg config.Provider) (*surrealdb.DB, error) {
	if cfg.GetDBURL() == "" {
		return nil, NewDBError(ErrNotConnected, "SURREAL_URL is not set")
	}

	var db *surrealdb.DB
	err := connectBackoff().Retry(ctx, func() error {
		var err error
		db, err = connect(ctx, cfg)
		return err
	})
	if err != nil {
		return nil, NewDBError(err, "failed to connect to "+redactDBURL(cfg.GetDBURL()))
	}

	slog.Info("Successfully signed in to SurrealDB", "db_url", redactDBURL(cfg.GetDBURL()), "namespace", cfg.GetDBNs(), "database", cfg.GetDBDb())
	return db, nil
}

func connect(ctx context.Context, cfg config.Provider) (*surrealdb.DB, error) {
	db, err := surrealdb.FromEndpointURLString(ctx, cfg.GetDBURL())
	if err != nil {
		return nil, fmt.Errorf("failed to open connection: %w", err)
	}

	authData := &surrealdb.Auth{
		Username: cfg.GetDBUser(),
		Password: cfg.GetDBPass(),
	}
	if _, err = db.SignIn(ctx, authData); err != nil {
		db.Close(ctx)
		return nil, fmt.Errorf("failed to sign in: %w", err)
	}

	if err = db.Use(ctx, cfg.GetDBNs(), cfg.GetDBDb()); err != nil {
		db.Close(ctx)
		return nil, fmt.Errorf("failed to use namespace/db: %w", err)
	}
	return db, nil
}

// redactDBURL returns dbURL with any password replaced.
func redactDBURL(dbURL string) string {
	parsedURL, err := url.Parse(dbURL)
	if err != nil {
		return "invalid-url"
	}
	return parsedURL.Redacted()
}
