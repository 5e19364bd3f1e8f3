package handlers

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/nfrund/freemember/internal/actions"
	"github.com/nfrund/freemember/internal/domain"
	"github.com/nfrund/freemember/internal/middleware"
	"github.com/nfrund/freemember/internal/tmpl"
	"github.com/nfrund/freemember/internal/view"
)

// Login renders the login form.
func (h *Freemember) Login(c echo.Context, tag tmpl.Tag) (string, error) {
	f := h.newTagForm(c, tag)
	f.addField("email", "email")
	f.addField("username", "text")
	f.addField("password", "password")
	f.addField("auto_login", "checkbox")

	f.addErrors(getErrors(c, actions.Login))
	return f.build(actions.Login, nil)
}

// Register renders the registration form, or a message when the visitor
// may not register.
func (h *Freemember) Register(c echo.Context, tag tmpl.Tag) (string, error) {
	if msg := h.svc.CanRegister(c.Request().Context(), middleware.MemberFrom(c)); msg != "" {
		return msg, nil
	}

	f := h.newTagForm(c, tag)
	f.addMemberFields(nil)

	if h.cfg.GetUseMembershipCaptcha() && h.captcha != nil {
		_, markup := h.captcha.Create()
		f.vars["captcha"] = tmpl.HTML(markup)
	}

	f.addErrors(getErrors(c, actions.Register))
	return f.build(actions.Register, nil)
}

// UpdateProfile renders the profile form of the logged in member.
func (h *Freemember) UpdateProfile(c echo.Context, tag tmpl.Tag) (string, error) {
	member := middleware.MemberFrom(c)
	if msg := h.svc.CanUpdate(c.Request().Context(), member); msg != "" {
		return msg, nil
	}

	f := h.newTagForm(c, tag)
	f.addMemberFields(member)

	f.addErrors(getErrors(c, actions.UpdateProfile))
	return f.build(actions.UpdateProfile, nil)
}

// Members lists public member profiles. Every tag parameter narrows the
// search; list parameters take pipe separated values.
func (h *Freemember) Members(c echo.Context, tag tmpl.Tag) (string, error) {
	q := domain.MemberQuery{
		MemberIDs:  pipeList(tag.Param("member_id")),
		Usernames:  pipeList(tag.Param("username")),
		Emails:     pipeList(tag.Param("email")),
		GroupIDs:   pipeList(tag.Param("group_id")),
		ScreenName: tag.Param("screen_name"),
		OrderBy:    tag.Param("orderby"),
		Sort:       tag.Param("sort"),
		Limit:      atoi(tag.Param("limit")),
		Offset:     atoi(tag.Param("offset")),
	}

	members, err := h.repo.FindMembers(c.Request().Context(), q)
	if err != nil {
		return "", err
	}
	if len(members) == 0 {
		return tmpl.NoResults(tag.Data), nil
	}

	rows := make([]tmpl.Vars, 0, len(members))
	for i, m := range members {
		row := h.memberVars(m)
		row["count"] = i + 1
		row["total_results"] = len(members)
		rows = append(rows, row)
	}
	return tmpl.ParseVariables(tag.Data, rows), nil
}

// memberVars exposes the public profile of m. Email addresses stay private.
func (h *Freemember) memberVars(m *domain.Member) tmpl.Vars {
	row := tmpl.Vars{
		"member_id":  m.ID,
		"group_id":   m.GroupID,
		"join_date":  m.JoinDate.Unix(),
		"no_results": false,
	}
	for _, field := range h.repo.MemberFields() {
		if field == "email" {
			continue
		}
		row[field] = m.Field(field)
	}
	if m.LastLogin != nil {
		row["last_login"] = m.LastLogin.Unix()
	} else {
		row["last_login"] = false
	}
	for _, cf := range h.repo.CustomFields() {
		if !cf.Public {
			continue
		}
		value := m.Field(cf.Column())
		row[cf.Column()] = value
		row[cf.Name] = value
	}
	return row
}

// ForgotPassword renders the form requesting a reset email.
func (h *Freemember) ForgotPassword(c echo.Context, tag tmpl.Tag) (string, error) {
	f := h.newTagForm(c, tag)
	f.addField("email", "email")

	f.addErrors(getErrors(c, actions.ForgotPassword))
	return f.build(actions.ForgotPassword, nil)
}

// ResetPassword renders the new password form for a valid reset code. The
// code comes from the reset_code parameter, the older code parameter, or the
// last URI segment.
func (h *Freemember) ResetPassword(c echo.Context, tag tmpl.Tag) (string, error) {
	code, ok := tag.FetchParam("reset_code")
	if !ok {
		if code, ok = tag.FetchParam("code"); !ok {
			code = lastSegment(c)
		}
	}

	member, err := h.repo.FindByResetCode(c.Request().Context(), code)
	if err != nil {
		return "", err
	}
	if member == nil {
		return tmpl.NoResults(tag.Data), nil
	}

	f := h.newTagForm(c, tag)
	f.addField("password", "password")
	f.addField("password_confirm", "password")

	f.vars["email"] = member.Email
	f.vars["username"] = member.Username
	f.vars["screen_name"] = member.ScreenName

	f.addErrors(getErrors(c, actions.ResetPassword))
	return f.build(actions.ResetPassword, map[string]string{"reset_code": code})
}

// Logout logs the visitor out as soon as the page renders and redirects to
// the return parameter.
func (h *Freemember) Logout(c echo.Context, tag tmpl.Tag) (string, error) {
	if err := h.logout(c); err != nil {
		return "", err
	}
	return "", &Redirect{URL: h.returnTarget(tag.Param("return"))}
}

// LogoutURL returns a link that runs act_logout.
func (h *Freemember) LogoutURL(c echo.Context, tag tmpl.Tag) (string, error) {
	u := h.siteIndex() + "?ACT=" + strconv.Itoa(h.actions.ID(actions.Logout))
	if ret := tag.Param("return"); ret != "" {
		u += "&" + url.Values{"return_url": {ret}}.Encode()
	}
	return u, nil
}

// Flash renders messages left by the previous request.
func (h *Freemember) Flash(c echo.Context, tag tmpl.Tag) (string, error) {
	return view.RenderFlashes(view.GetFlashData(c)), nil
}

func pipeList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, "|") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func atoi(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 {
		return 0
	}
	return n
}
