package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/nfrund/freemember/internal/actions"
	"github.com/nfrund/freemember/internal/captcha"
	"github.com/nfrund/freemember/internal/config"
	"github.com/nfrund/freemember/internal/database"
	"github.com/nfrund/freemember/internal/domain"
	"github.com/nfrund/freemember/internal/email"
	"github.com/nfrund/freemember/internal/freemember"
	"github.com/nfrund/freemember/internal/handlers"
	"github.com/nfrund/freemember/internal/middleware"
	"github.com/nfrund/freemember/internal/pages"
	"github.com/nfrund/freemember/internal/params"
	"github.com/nfrund/freemember/internal/password"
	"github.com/nfrund/freemember/internal/pubsub"
	"github.com/nfrund/freemember/web"
	"github.com/samber/do/v2"
	"github.com/spf13/afero"
	"github.com/surrealdb/surrealdb.go"
)

const (
	captchaExpiration = 10 * time.Minute

	// embeddedPages as PAGES_DIR selects the sample site compiled into the
	// binary.
	embeddedPages = "embed"
)

// closer is a resource released when the server shuts down.
type closer struct {
	name string
	fn   func() error
}

// closers collects shutdown hooks registered by providers, in the order the
// resources were opened.
type closers struct {
	list []closer
}

func (c *closers) add(name string, fn func() error) {
	c.list = append(c.list, closer{name: name, fn: fn})
}

// closeAll releases resources in reverse order.
func (c *closers) closeAll(logger *slog.Logger) {
	for i := len(c.list) - 1; i >= 0; i-- {
		if err := c.list[i].fn(); err != nil {
			logger.Error("Failed to close resource", "resource", c.list[i].name, "error", err)
		}
	}
	c.list = nil
}

// newInjector registers every service provider. Services are built lazily
// the first time they are invoked.
func newInjector(ctx context.Context, opts Options, res *closers) *do.RootScope {
	i := do.New()

	do.ProvideValue[config.Provider](i, opts.Config)
	do.ProvideValue(i, opts.Logger)
	do.ProvideValue(i, res)

	do.Provide(i, func(i do.Injector) (domain.MemberRepository, error) {
		return provideMemberStore(ctx, i, opts.FS)
	})
	do.Provide(i, providePasswordHasher)
	do.Provide(i, func(i do.Injector) (*captcha.Service, error) {
		return captcha.New(captchaExpiration), nil
	})
	do.Provide(i, func(i do.Injector) (domain.EmailSender, error) {
		return email.NewEmailService(do.MustInvoke[config.Provider](i))
	})
	do.Provide(i, func(i do.Injector) (*pubsub.WatermillBridge, error) {
		return provideEventBus(ctx, i)
	})
	do.Provide(i, provideParamsCodec)
	do.Provide(i, func(i do.Injector) (*actions.Registry, error) {
		return actions.Default(), nil
	})
	do.Provide(i, provideService)
	do.Provide(i, provideFreemember)
	do.Provide(i, func(i do.Injector) (*pages.Loader, error) {
		return providePages(ctx, i, opts)
	})
	do.Provide(i, func(i do.Injector) (echomw.RateLimiterStore, error) {
		store, closeFn, err := middleware.NewRateLimiterStore(ctx, do.MustInvoke[config.Provider](i))
		if err != nil {
			return nil, err
		}
		do.MustInvoke[*closers](i).add("rate limiter store", closeFn)
		return store, nil
	})

	return i
}

func provideMemberStore(ctx context.Context, i do.Injector, fsys afero.Fs) (domain.MemberRepository, error) {
	cfg := do.MustInvoke[config.Provider](i)
	logger := do.MustInvoke[*slog.Logger](i)

	fields, err := database.LoadCustomFields(fsys, cfg.GetMemberFieldsFile())
	if err != nil {
		return nil, err
	}

	switch cfg.GetMemberStore() {
	case "", "memory":
		logger.Warn("Using in-memory member store; members are lost on restart")
		return database.NewMemoryMemberStore(fields), nil
	case "surreal":
		db, err := database.NewDB(ctx, cfg)
		if err != nil {
			return nil, err
		}
		do.MustInvoke[*closers](i).add("surrealdb", closeDB(db))
		return database.NewSurrealMemberStore(db, fields, cfg.GetDBQueryTimeout()), nil
	default:
		return nil, fmt.Errorf("unknown member store %q", cfg.GetMemberStore())
	}
}

func closeDB(db *surrealdb.DB) func() error {
	return func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return db.Close(ctx)
	}
}

func providePasswordHasher(i do.Injector) (*password.Hasher, error) {
	return password.New(password.DefaultConfig())
}

func provideEventBus(ctx context.Context, i do.Injector) (*pubsub.WatermillBridge, error) {
	logger := do.MustInvoke[*slog.Logger](i)

	bus := pubsub.NewWatermillBridge(false)
	do.MustInvoke[*closers](i).add("event bus", bus.Close)
	if err := pubsub.SubscribeAuditLog(ctx, bus, logger); err != nil {
		return nil, err
	}
	return bus, nil
}

func provideParamsCodec(i do.Injector) (*params.Codec, error) {
	cfg := do.MustInvoke[config.Provider](i)
	return params.NewCodec([]byte(cfg.GetParamsHashKey()), []byte(cfg.GetParamsBlockKey()))
}

func provideService(i do.Injector) (*freemember.Service, error) {
	repo, err := do.Invoke[domain.MemberRepository](i)
	if err != nil {
		return nil, err
	}
	hasher, err := do.Invoke[*password.Hasher](i)
	if err != nil {
		return nil, err
	}
	mailer, err := do.Invoke[domain.EmailSender](i)
	if err != nil {
		return nil, err
	}
	bus, err := do.Invoke[*pubsub.WatermillBridge](i)
	if err != nil {
		return nil, err
	}
	return freemember.NewService(
		repo,
		hasher,
		do.MustInvoke[*captcha.Service](i),
		mailer,
		bus,
		do.MustInvoke[config.Provider](i),
	), nil
}

func provideFreemember(i do.Injector) (*handlers.Freemember, error) {
	svc, err := do.Invoke[*freemember.Service](i)
	if err != nil {
		return nil, err
	}
	codec, err := do.Invoke[*params.Codec](i)
	if err != nil {
		return nil, err
	}
	return handlers.NewFreemember(
		svc,
		do.MustInvoke[domain.MemberRepository](i),
		do.MustInvoke[*actions.Registry](i),
		codec,
		do.MustInvoke[*captcha.Service](i),
		do.MustInvoke[config.Provider](i),
	), nil
}

// providePages serves templates from PAGES_DIR on opts.FS, or the bundled
// sample site when PAGES_DIR is "embed". Watching only works on the real
// filesystem.
func providePages(ctx context.Context, i do.Injector, opts Options) (*pages.Loader, error) {
	cfg := do.MustInvoke[config.Provider](i)

	if cfg.GetPagesDir() == embeddedPages {
		return pages.NewLoader(afero.FromIOFS{FS: web.Pages}), nil
	}
	if _, ok := opts.FS.(*afero.OsFs); ok {
		loader := pages.NewDirLoader(cfg.GetPagesDir())
		if cfg.GetPagesWatch() {
			if err := loader.Watch(ctx); err != nil {
				return nil, err
			}
		}
		return loader, nil
	}
	return pages.NewLoader(afero.NewBasePathFs(opts.FS, cfg.GetPagesDir())), nil
}
