package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/nfrund/freemember/internal/actions"
	"github.com/nfrund/freemember/internal/domain"
	"github.com/nfrund/freemember/internal/middleware"
	"github.com/nfrund/freemember/internal/view"
)

// ActLogin handles the login form.
func (h *Freemember) ActLogin(c echo.Context) error {
	sub := h.submission(c)
	member, errs, err := h.svc.Login(c.Request().Context(), sub)
	if err != nil {
		return err
	}
	setErrors(c, actions.Login, errs)
	if len(errs) == 0 {
		remember := h.cfg.GetAutoLoginDuration()
		if sub.Value("auto_login") == "" {
			remember = 0
		}
		if err := middleware.StartSession(c, member, remember); err != nil {
			return err
		}
		view.SetFlashSuccess(c, "You are now logged in.")
	}
	return h.actionComplete(c, errs)
}

// ActRegister handles the registration form. New members are logged in.
func (h *Freemember) ActRegister(c echo.Context) error {
	if msg := h.svc.CanRegister(c.Request().Context(), middleware.MemberFrom(c)); msg != "" {
		return view.ShowUserError(c, []string{msg})
	}

	member, errs, err := h.svc.Register(c.Request().Context(), h.submission(c))
	if err != nil {
		return err
	}
	setErrors(c, actions.Register, errs)
	if len(errs) == 0 {
		if err := middleware.StartSession(c, member, 0); err != nil {
			return err
		}
		view.SetFlashSuccess(c, "Your account has been created.")
	}
	return h.actionComplete(c, errs)
}

// ActUpdateProfile handles the profile form.
func (h *Freemember) ActUpdateProfile(c echo.Context) error {
	errs, err := h.svc.UpdateProfile(c.Request().Context(), middleware.MemberFrom(c), h.submission(c))
	if err != nil {
		return err
	}
	setErrors(c, actions.UpdateProfile, errs)
	if len(errs) == 0 {
		view.SetFlashSuccess(c, "Your profile has been updated.")
	}
	return h.actionComplete(c, errs)
}

// ActForgotPassword handles the forgot password form.
func (h *Freemember) ActForgotPassword(c echo.Context) error {
	errs, err := h.svc.ForgotPassword(c.Request().Context(), h.submission(c))
	if err != nil {
		return err
	}
	setErrors(c, actions.ForgotPassword, errs)
	if len(errs) == 0 {
		view.SetFlashSuccess(c, "If an account with that email exists, a password reset link has been sent.")
	}
	return h.actionComplete(c, errs)
}

// ActResetPassword handles the reset password form and logs the member in.
func (h *Freemember) ActResetPassword(c echo.Context) error {
	member, errs, err := h.svc.ResetPassword(c.Request().Context(), h.submission(c))
	if err != nil {
		return err
	}
	setErrors(c, actions.ResetPassword, errs)
	if len(errs) == 0 {
		if err := middleware.StartSession(c, member, 0); err != nil {
			return err
		}
		view.SetFlashSuccess(c, "Your password has been reset.")
	}
	return h.actionComplete(c, errs)
}

// ActLogout logs the visitor out.
func (h *Freemember) ActLogout(c echo.Context) error {
	if err := h.logout(c); err != nil {
		return err
	}
	return h.actionComplete(c, nil)
}

func (h *Freemember) logout(c echo.Context) error {
	h.svc.Logout(c.Request().Context(), middleware.MemberFrom(c))
	if err := middleware.EndSession(c); err != nil {
		return err
	}
	view.SetFlashSuccess(c, "You have been logged out.")
	return nil
}

// actionComplete finishes a form action. Success redirects to return_url.
// Failures either re-render the posting page, when the form asked for
// inline errors, or show the generic error page.
func (h *Freemember) actionComplete(c echo.Context, errs domain.FieldErrors) error {
	if len(errs) == 0 {
		return c.Redirect(http.StatusSeeOther, h.returnTarget(c.FormValue("return_url")))
	}
	if h.submission(c).FormParam("error_handling") == "inline" && h.pages != nil {
		return h.pages.RenderPage(c)
	}
	return view.ShowUserError(c, errs.Messages())
}

// returnTarget resolves a return URL, defaulting to the site index.
func (h *Freemember) returnTarget(ret string) string {
	if ret == "" {
		return h.siteIndex()
	}
	return h.createURL(ret)
}
