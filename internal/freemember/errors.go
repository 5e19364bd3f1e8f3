package freemember

import (
	"fmt"
	"html"
	"strings"
)

// User facing messages.
const (
	MsgAlreadyLoggedIn      = "You are already logged in."
	MsgRegistrationDisabled = "New registrations are not currently accepted."
	MsgMustBeLoggedIn       = "You must be logged in to update your profile."
	MsgInvalidLogin         = "Invalid username or password."
	MsgBanned               = "Your account has been banned."
	MsgInvalidEmail         = "Please enter a valid email address."
	MsgEmailTaken           = "That email address is already registered."
	MsgUsernameTaken        = "That username is already taken."
	MsgEmailMismatch        = "The email addresses you entered do not match."
	MsgPasswordMismatch     = "The passwords you entered do not match."
	MsgCurrentPassword      = "Your current password is incorrect."
	MsgAcceptTerms          = "You must accept the terms and conditions."
	MsgCaptcha              = "The text you entered did not match the image."
	MsgInvalidResetCode     = "Your password reset link is invalid or has expired."
)

// DefaultErrorDelimiters wrap an inline error when the form does not set
// error_delimiters.
const DefaultErrorDelimiters = `<span class="error">|</span>`

// WrapError escapes msg and wraps it in the open|close delimiters given by the
// error_delimiters tag parameter.
func WrapError(params map[string]string, msg string) string {
	delims := params["error_delimiters"]
	open, closing, ok := strings.Cut(delims, "|")
	if !ok {
		open, closing, _ = strings.Cut(DefaultErrorDelimiters, "|")
	}
	return open + html.EscapeString(msg) + closing
}

func requiredMsg(label string) string {
	return fmt.Sprintf("The %s field is required.", label)
}
