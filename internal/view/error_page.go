package view

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"maragu.dev/gomponents"
	"maragu.dev/gomponents/components"
	. "maragu.dev/gomponents/html"
)

// UserErrorPage renders the generic page shown when a form submission fails
// and the form did not ask for inline errors.
func UserErrorPage(messages []string) gomponents.Node {
	return components.HTML5(components.HTML5Props{
		Title:    "Error",
		Language: "en",
		Body: []gomponents.Node{
			Main(
				Class("freemember-error"),
				H1(gomponents.Text("The following errors were encountered")),
				Ul(gomponents.Map(messages, func(msg string) gomponents.Node {
					return Li(gomponents.Text(msg))
				})),
				P(A(Href("javascript:history.go(-1)"), gomponents.Text("Return to the previous page"))),
			),
		},
	})
}

// ShowUserError writes the generic error page.
func ShowUserError(c echo.Context, messages []string) error {
	c.Response().Header().Set(echo.HeaderContentType, echo.MIMETextHTMLCharsetUTF8)
	c.Response().WriteHeader(http.StatusOK)
	return UserErrorPage(messages).Render(c.Response().Writer)
}
