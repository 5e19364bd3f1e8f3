package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/nfrund/freemember/internal/actions"
	"github.com/nfrund/freemember/internal/config"
	"github.com/nfrund/freemember/internal/domain"
	"github.com/nfrund/freemember/internal/freemember"
	"github.com/nfrund/freemember/internal/middleware"
	"github.com/nfrund/freemember/internal/params"
	"github.com/nfrund/freemember/internal/tmpl"
)

// ErrUnknownTag is returned for a tag name the controller does not handle.
var ErrUnknownTag = errors.New("unknown freemember tag")

// Redirect is returned by a tag that ends the request with a redirect, such
// as logout. The page renderer turns it into a 303 response.
type Redirect struct {
	URL string
}

func (r *Redirect) Error() string { return "redirect to " + r.URL }

// PageRenderer renders the page at the current request URI. Actions use it
// to show inline errors on the page that posted the form.
type PageRenderer interface {
	RenderPage(c echo.Context) error
}

// CaptchaCreator creates a captcha and returns its markup.
type CaptchaCreator interface {
	Create() (id string, markup string)
}

// Freemember is the controller behind every {exp:freemember:*} tag and
// act_* form action.
type Freemember struct {
	svc     *freemember.Service
	repo    domain.MemberRepository
	actions *actions.Registry
	params  *params.Codec
	captcha CaptchaCreator
	cfg     config.Provider
	pages   PageRenderer
}

// NewFreemember creates the controller. The page renderer is attached later
// with SetPageRenderer because it in turn dispatches tags to the controller.
func NewFreemember(
	svc *freemember.Service,
	repo domain.MemberRepository,
	registry *actions.Registry,
	codec *params.Codec,
	captcha CaptchaCreator,
	cfg config.Provider,
) *Freemember {
	return &Freemember{
		svc:     svc,
		repo:    repo,
		actions: registry,
		params:  codec,
		captcha: captcha,
		cfg:     cfg,
	}
}

// SetPageRenderer attaches the renderer used for inline error handling.
func (h *Freemember) SetPageRenderer(r PageRenderer) {
	h.pages = r
}

// Tag renders a single tag.
func (h *Freemember) Tag(c echo.Context, tag tmpl.Tag) (string, error) {
	switch tag.Name {
	case "login":
		return h.Login(c, tag)
	case "register":
		return h.Register(c, tag)
	case "update_profile":
		return h.UpdateProfile(c, tag)
	case "members":
		return h.Members(c, tag)
	case "forgot_password":
		return h.ForgotPassword(c, tag)
	case "reset_password":
		return h.ResetPassword(c, tag)
	case "logout":
		return h.Logout(c, tag)
	case "logout_url":
		return h.LogoutURL(c, tag)
	case "flash":
		return h.Flash(c, tag)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownTag, tag.Name)
	}
}

// Action runs the act_* method registered under the submitted ACT value.
func (h *Freemember) Action(c echo.Context, act string) error {
	a, err := h.actions.Lookup(act)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid action.").SetInternal(err)
	}
	switch a.Method {
	case actions.Login:
		return h.ActLogin(c)
	case actions.Register:
		return h.ActRegister(c)
	case actions.UpdateProfile:
		return h.ActUpdateProfile(c)
	case actions.ForgotPassword:
		return h.ActForgotPassword(c)
	case actions.ResetPassword:
		return h.ActResetPassword(c)
	case actions.Logout:
		return h.ActLogout(c)
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid action.")
	}
}

// submission collects the posted form and its decoded tag parameters.
func (h *Freemember) submission(c echo.Context) freemember.Submission {
	form := postValues(c)
	decoded, err := h.params.Decode(form.Get(params.FieldName))
	if err != nil {
		middleware.FromContext(c.Request().Context()).Debug("form parameters unavailable", slog.Any("error", err))
	}
	return freemember.Submission{Form: form, Params: decoded}
}

// postValues returns only the request body values, never the query string.
func postValues(c echo.Context) url.Values {
	if _, err := c.FormParams(); err != nil {
		return url.Values{}
	}
	if c.Request().PostForm == nil {
		return url.Values{}
	}
	return c.Request().PostForm
}

func errorsKey(action string) string {
	return "freemember.errors." + action
}

// setErrors stores the result of an action for tags rendered later in the
// same request.
func setErrors(c echo.Context, action string, errs domain.FieldErrors) {
	c.Set(errorsKey(action), errs)
}

func getErrors(c echo.Context, action string) domain.FieldErrors {
	errs, _ := c.Get(errorsKey(action)).(domain.FieldErrors)
	return errs
}

// siteIndex is the site root URL.
func (h *Freemember) siteIndex() string {
	return h.cfg.GetAppBaseURL() + "/"
}

// createURL turns a site path into an absolute URL. Absolute URLs pass
// through unchanged.
func (h *Freemember) createURL(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return h.siteIndex() + strings.TrimLeft(path, "/")
}

// uriString is the request path without surrounding slashes.
func uriString(c echo.Context) string {
	return strings.Trim(c.Request().URL.Path, "/")
}

// lastSegment returns the final segment of the request path.
func lastSegment(c echo.Context) string {
	uri := uriString(c)
	if i := strings.LastIndex(uri, "/"); i >= 0 {
		return uri[i+1:]
	}
	return uri
}
