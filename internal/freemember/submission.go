package freemember

import (
	"net/url"
	"strings"
)

// Submission is a posted FreeMember form: the raw form values plus the tag
// parameters recovered from the encrypted _params field.
type Submission struct {
	Form   url.Values
	Params map[string]string
}

// Posted reports whether name was submitted, even if empty.
func (s Submission) Posted(name string) bool {
	_, ok := s.Form[name]
	return ok
}

// Value returns the trimmed value of name, or "".
func (s Submission) Value(name string) string {
	return strings.TrimSpace(s.Raw(name))
}

// Raw returns the untrimmed value of name. Passwords are read this way.
// When a name is posted more than once the last value wins, so a checked
// checkbox overrides the hidden empty input rendered before it.
func (s Submission) Raw(name string) string {
	v := s.Form[name]
	if len(v) == 0 {
		return ""
	}
	return v[len(v)-1]
}

// FormParam returns a tag parameter of the submitted form.
func (s Submission) FormParam(name string) string {
	return s.Params[name]
}
