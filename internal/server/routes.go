package server

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/nfrund/freemember/internal/captcha"
	"github.com/nfrund/freemember/internal/handlers"
	"github.com/nfrund/freemember/internal/middleware"
	"github.com/nfrund/freemember/internal/pages"
	"github.com/nfrund/freemember/internal/tmpl"
)

// actionField is the form or query field naming the action to run.
const actionField = "ACT"

// RegisterRoutes sets up all the application routes.
func (s *Server) RegisterRoutes() {
	s.E.GET("/health", func(c echo.Context) error {
		return c.String(http.StatusOK, "OK")
	})

	s.E.GET(captcha.PathPrefix+"*", echo.WrapHandler(s.captcha.Handler()))

	s.E.GET("/*", s.handleRequest)
	s.E.POST("/*", s.handleRequest)
}

// handleRequest runs the submitted action, if any, and otherwise renders the
// page at the request path.
func (s *Server) handleRequest(c echo.Context) error {
	if act := c.FormValue(actionField); act != "" {
		return s.freemember.Action(c, act)
	}
	return s.RenderPage(c)
}

// RenderPage resolves the template for the request path and renders its
// tags. Actions call it to show inline errors.
func (s *Server) RenderPage(c echo.Context) error {
	page, err := s.pages.Resolve(c.Request().URL.Path)
	if errors.Is(err, pages.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "Page not found.")
	}
	if err != nil {
		return err
	}

	out, err := tmpl.Render(page.Body, func(tag tmpl.Tag) (string, error) {
		return s.freemember.Tag(c, tag)
	})

	var redirect *handlers.Redirect
	if errors.As(err, &redirect) {
		return c.Redirect(http.StatusSeeOther, redirect.URL)
	}
	if err != nil {
		middleware.FromContext(c.Request().Context()).Error("Failed to render page",
			slog.String("page", page.File),
			slog.Any("error", err),
		)
		return err
	}
	return c.HTML(http.StatusOK, out)
}
