package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/sessions"
	"github.com/labstack/echo-contrib/session"
	"github.com/labstack/echo/v4"
	"github.com/nfrund/freemember/internal/domain"
)

const (
	// SessionName is the cookie session that holds the logged in member.
	SessionName      = "freemember"
	sessionMemberKey = "member_id"

	// MemberContextKey holds the *domain.Member for the current request.
	MemberContextKey = "freemember.member"
)

// MemberLoader resolves the member id stored in the session. A nil member
// with a nil error means the id no longer exists.
type MemberLoader interface {
	CurrentMember(ctx context.Context, memberID string) (*domain.Member, error)
}

// CurrentMember loads the logged in member, if any, from the session and
// stores it on the echo context. Requests without a session pass through
// untouched; a session pointing at a missing member is cleared.
func CurrentMember(loader MemberLoader) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			sess, err := session.Get(SessionName, c)
			if err != nil {
				// A cookie signed with an old secret lands here.
				FromContext(c.Request().Context()).Debug("ignoring unreadable session", slog.Any("error", err))
				return next(c)
			}

			id, _ := sess.Values[sessionMemberKey].(string)
			if id == "" {
				return next(c)
			}

			member, err := loader.CurrentMember(c.Request().Context(), id)
			switch {
			case err != nil:
				return err
			case member == nil:
				_ = EndSession(c)
			default:
				c.Set(MemberContextKey, member)
			}
			return next(c)
		}
	}
}

// MemberFrom returns the member loaded by CurrentMember, or nil for guests.
func MemberFrom(c echo.Context) *domain.Member {
	m, _ := c.Get(MemberContextKey).(*domain.Member)
	return m
}

// StartSession logs the member in. A positive remember duration makes the
// cookie persistent; otherwise it lasts for the browser session.
func StartSession(c echo.Context, member *domain.Member, remember time.Duration) error {
	sess, err := session.Get(SessionName, c)
	if err != nil {
		return err
	}
	sess.Options = &sessions.Options{
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(remember.Seconds()),
	}
	sess.Values[sessionMemberKey] = member.ID
	if err := sess.Save(c.Request(), c.Response()); err != nil {
		return err
	}
	c.Set(MemberContextKey, member)
	return nil
}

// EndSession logs the current member out.
func EndSession(c echo.Context) error {
	sess, err := session.Get(SessionName, c)
	if err != nil {
		return err
	}
	delete(sess.Values, sessionMemberKey)
	sess.Options = &sessions.Options{Path: "/", MaxAge: -1, HttpOnly: true}
	c.Set(MemberContextKey, nil)
	return sess.Save(c.Request(), c.Response())
}
