package view

import (
	"sort"
	"strings"

	"maragu.dev/gomponents"
	. "maragu.dev/gomponents/html"
)

// FormData describes a form declaration.
type FormData struct {
	Action string
	ID     string
	Name   string
	Class  string
	Hidden map[string]string
}

// FormDeclaration renders the <form> element with its hidden fields and body. The body
// is trusted markup already produced by the template parser.
func FormDeclaration(data FormData, body string) string {
	attrs := []gomponents.Node{
		Method("post"),
		Action(data.Action),
		gomponents.If(data.ID != "", ID(data.ID)),
		gomponents.If(data.Name != "", Name(data.Name)),
		gomponents.If(data.Class != "", Class(data.Class)),
	}

	keys := make([]string, 0, len(data.Hidden))
	for k := range data.Hidden {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	hidden := make([]gomponents.Node, 0, len(keys))
	for _, k := range keys {
		hidden = append(hidden, Input(Type("hidden"), Name(k), Value(data.Hidden[k])))
	}

	var b strings.Builder
	_ = FormEl(
		gomponents.Group(attrs),
		Div(Class("hiddenFields"), gomponents.Group(hidden)),
		gomponents.Raw(body),
	).Render(&b)
	return b.String()
}

// InputField renders a single form input. Checkboxes are preceded by a hidden
// empty input so that unchecking submits a value.
func InputField(inputType, name, value string, checked bool) string {
	var b strings.Builder
	if inputType == "checkbox" {
		_ = gomponents.Group{
			Input(Type("hidden"), Name(name), Value("")),
			Input(Type("checkbox"), Name(name), ID(name), Value("1"), gomponents.If(checked, Checked())),
		}.Render(&b)
		return b.String()
	}
	_ = Input(Type(inputType), Name(name), ID(name), Value(value)).Render(&b)
	return b.String()
}
