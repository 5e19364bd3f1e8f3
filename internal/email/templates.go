package email

import (
	"strings"

	"maragu.dev/gomponents"
	. "maragu.dev/gomponents/html"
)

// ResetPasswordSubject is the subject line of the reset email.
const ResetPasswordSubject = "Reset your password"

// ResetPasswordBody renders the HTML body of the reset email.
func ResetPasswordBody(screenName, link string) string {
	var b strings.Builder
	_ = Div(
		P(gomponents.Textf("Hi %s,", screenName)),
		P(gomponents.Text("Someone asked to reset the password for your account. Follow the link below to choose a new one:")),
		P(A(Href(link), gomponents.Text("Reset Password"))),
		P(gomponents.Text("If you did not ask for this you can ignore this email.")),
	).Render(&b)
	return b.String()
}
