package tmpl

import "regexp"

// Prefix introduces every FreeMember tag.
const Prefix = "exp:freemember:"

// Tag is a single tag occurrence on a page.
type Tag struct {
	Name   string
	Params map[string]string
	Data   string
	Paired bool
}

// FetchParam returns the named parameter and whether it was present.
// A parameter set to the empty string is present.
func (t Tag) FetchParam(name string) (string, bool) {
	v, ok := t.Params[name]
	return v, ok
}

// Param returns the named parameter or "".
func (t Tag) Param(name string) string {
	return t.Params[name]
}

var paramPattern = regexp.MustCompile(`([A-Za-z_][\w:-]*)\s*=\s*(?:"([^"]*)"|'([^']*)')`)

// ParseParams parses key="value" pairs. Single and double quotes are accepted.
func ParseParams(s string) map[string]string {
	params := make(map[string]string)
	for _, m := range paramPattern.FindAllStringSubmatchIndex(s, -1) {
		key := s[m[2]:m[3]]
		if m[4] >= 0 {
			params[key] = s[m[4]:m[5]]
		} else {
			params[key] = s[m[6]:m[7]]
		}
	}
	return params
}
