package handlers

import (
	"fmt"

	"github.com/labstack/echo/v4"
	"github.com/nfrund/freemember/internal/domain"
	"github.com/nfrund/freemember/internal/freemember"
	"github.com/nfrund/freemember/internal/params"
	"github.com/nfrund/freemember/internal/tmpl"
	"github.com/nfrund/freemember/internal/view"
)

// tagForm accumulates the variables of one form tag.
type tagForm struct {
	h    *Freemember
	c    echo.Context
	tag  tmpl.Tag
	post map[string][]string
	vars tmpl.Vars
}

func (h *Freemember) newTagForm(c echo.Context, tag tmpl.Tag) *tagForm {
	return &tagForm{
		h:    h,
		c:    c,
		tag:  tag,
		post: postValues(c),
		vars: tmpl.Vars{},
	}
}

// addField adds name with the posted value, falling back to a value already
// seeded into the variables. Password fields are never refilled.
func (f *tagForm) addField(name, inputType string) {
	var value any = false
	switch {
	case inputType == "password":
		value = nil
	default:
		if posted, ok := f.post[name]; ok && len(posted) > 0 {
			value = posted[len(posted)-1]
		} else if existing, ok := f.vars[name]; ok {
			value = existing
		}
	}
	f.setField(name, inputType, value)
}

// forceField adds name with a fixed value regardless of what was posted.
func (f *tagForm) forceField(name, inputType string, value any) {
	f.setField(name, inputType, value)
}

func (f *tagForm) setField(name, inputType string, value any) {
	if inputType == "text" && (name == "email" || name == "email_confirm") {
		inputType = "email"
	}

	f.vars[name] = value
	f.vars["error:"+name] = false

	checked := f.vars.Truthy(name)
	if inputType == "checkbox" {
		if checked {
			f.vars[name+"_checked"] = " checked "
		} else {
			f.vars[name+"_checked"] = ""
		}
	}
	f.vars["field:"+name] = tmpl.HTML(view.InputField(inputType, name, stringValue(value), checked))
}

// addMemberFields adds every editable member field, seeded from member
// when one is given.
func (f *tagForm) addMemberFields(member *domain.Member) {
	for _, field := range f.h.repo.MemberFields() {
		if member != nil {
			f.vars[field] = member.Field(field)
		}
		f.addField(field, "text")
	}

	for _, cf := range f.h.repo.CustomFields() {
		if member != nil {
			value := member.Field(cf.Column())
			f.vars[cf.Column()] = value
			f.vars[cf.Name] = value
		}
		f.addField(cf.Name, "text")
	}

	f.addField("email_confirm", "text")
	f.addField("current_password", "password")
	f.addField("password", "password")
	f.addField("password_confirm", "password")
	f.forceField("captcha", "text", false)
	f.addField("accept_terms", "checkbox")
}

// addErrors exposes errs as error:<field> variables.
func (f *tagForm) addErrors(errs domain.FieldErrors) {
	for field, msg := range errs {
		f.vars["error:"+field] = tmpl.HTML(freemember.WrapError(f.tag.Params, msg))
	}
}

// build renders the form declaration around the parsed tagdata.
func (f *tagForm) build(action string, extraHidden map[string]string) (string, error) {
	encoded, err := f.h.params.Encode(f.tag.Params)
	if err != nil {
		return "", fmt.Errorf("encoding form parameters: %w", err)
	}

	hidden := make(map[string]string, len(extraHidden)+3)
	for k, v := range extraHidden {
		hidden[k] = v
	}
	hidden["ACT"] = fmt.Sprint(f.h.actions.ID(action))
	hidden[params.FieldName] = encoded
	hidden["return_url"] = f.tag.Param("return")
	if hidden["return_url"] == "PREVIOUS_URL" {
		hidden["return_url"] = uriString(f.c)
	}

	data := view.FormData{
		Action: f.h.createURL(uriString(f.c)),
		ID:     f.tag.Param("form_id"),
		Name:   f.tag.Param("form_name"),
		Class:  f.tag.Param("form_class"),
		Hidden: hidden,
	}
	body := tmpl.ParseVariables(f.tag.Data, []tmpl.Vars{f.vars})
	return view.FormDeclaration(data, body), nil
}

func stringValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case bool:
		if x {
			return "1"
		}
		return ""
	case string:
		return x
	case tmpl.HTML:
		return string(x)
	default:
		return fmt.Sprint(x)
	}
}
