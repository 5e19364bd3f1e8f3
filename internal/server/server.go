package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/sessions"
	"github.com/labstack/echo-contrib/session"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/nfrund/freemember/internal/captcha"
	"github.com/nfrund/freemember/internal/config"
	"github.com/nfrund/freemember/internal/domain"
	"github.com/nfrund/freemember/internal/freemember"
	"github.com/nfrund/freemember/internal/handlers"
	"github.com/nfrund/freemember/internal/middleware"
	"github.com/nfrund/freemember/internal/pages"
	"github.com/samber/do/v2"
	"github.com/spf13/afero"
)

// Options configures a Server.
type Options struct {
	Config config.Provider
	Logger *slog.Logger
	// FS holds the pages directory and the member fields file. Defaults to
	// the OS filesystem.
	FS afero.Fs
}

// Server holds the dependencies for the HTTP server.
type Server struct {
	E   *echo.Echo
	Cfg config.Provider

	injector   *do.RootScope
	resources  *closers
	logger     *slog.Logger
	cancel     context.CancelFunc
	released   sync.Once
	freemember *handlers.Freemember
	service    *freemember.Service
	pages      *pages.Loader
	captcha    *captcha.Service
	members    domain.MemberRepository
}

// New builds the service graph and the echo instance. Background work
// started by the services, such as the page watcher and the audit log
// subscriber, runs until Shutdown.
func New(opts Options) (*Server, error) {
	if opts.Config == nil {
		return nil, errors.New("server: config is required")
	}
	if err := config.CheckSecrets(opts.Config); err != nil {
		return nil, fmt.Errorf("server: %w", err)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.FS == nil {
		opts.FS = afero.NewOsFs()
	}

	ctx, cancel := context.WithCancel(context.Background())
	res := &closers{}
	s := &Server{
		Cfg:       opts.Config,
		injector:  newInjector(ctx, opts, res),
		resources: res,
		logger:    opts.Logger,
		cancel:    cancel,
	}

	if err := s.invoke(); err != nil {
		s.release()
		return nil, err
	}

	rateStore, err := do.Invoke[echomw.RateLimiterStore](s.injector)
	if err != nil {
		s.release()
		return nil, fmt.Errorf("failed to create rate limiter: %w", err)
	}

	e := echo.New()
	e.HideBanner = true
	setupErrorHandling(e)

	e.Use(echomw.RequestIDWithConfig(echomw.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	e.Use(middleware.Logger(opts.Logger))
	e.Use(echomw.Recover())

	store := sessions.NewCookieStore([]byte(opts.Config.GetSessionSecret()))
	store.Options = &sessions.Options{
		Path:     "/",
		HttpOnly: true,
	}
	e.Use(session.Middleware(store))
	e.Use(middleware.CurrentMember(s.service))
	e.Use(middleware.RateLimiter(rateStore))

	s.E = e
	s.freemember.SetPageRenderer(s)
	s.RegisterRoutes()
	return s, nil
}

// invoke resolves the services the routes depend on.
func (s *Server) invoke() error {
	var err error
	if s.members, err = do.Invoke[domain.MemberRepository](s.injector); err != nil {
		return fmt.Errorf("failed to create member store: %w", err)
	}
	if s.service, err = do.Invoke[*freemember.Service](s.injector); err != nil {
		return fmt.Errorf("failed to create member service: %w", err)
	}
	if s.freemember, err = do.Invoke[*handlers.Freemember](s.injector); err != nil {
		return fmt.Errorf("failed to create freemember handler: %w", err)
	}
	if s.pages, err = do.Invoke[*pages.Loader](s.injector); err != nil {
		return fmt.Errorf("failed to create page loader: %w", err)
	}
	s.captcha = do.MustInvoke[*captcha.Service](s.injector)
	return nil
}

// Members returns the member store, useful for the CLI and tests.
func (s *Server) Members() domain.MemberRepository {
	return s.members
}

// Injector exposes the service container.
func (s *Server) Injector() do.Injector {
	return s.injector
}

// Shutdown stops the HTTP server and releases every resource.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	if s.E != nil {
		err = s.E.Shutdown(ctx)
	}
	s.release()
	return err
}

func (s *Server) release() {
	s.released.Do(func() {
		s.cancel()
		s.resources.closeAll(s.logger)
		s.injector.Shutdown()
	})
}
