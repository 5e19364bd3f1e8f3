package freemember

import (
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/nfrund/freemember/internal/domain"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// checker runs field rules and turns failures into form errors.
type checker struct {
	validate *validator.Validate
	policy   *bluemonday.Policy
	labels   map[string]string
}

func newChecker(custom []domain.CustomField) *checker {
	labels := make(map[string]string, len(custom))
	for _, f := range custom {
		if f.Label != "" {
			labels[f.Name] = f.Label
		}
	}
	return &checker{
		validate: validator.New(),
		policy:   bluemonday.StrictPolicy(),
		labels:   labels,
	}
}

// label turns a field name into the text shown in messages: screen_name
// becomes "Screen Name" unless a custom field supplies its own label.
func (ck *checker) label(field string) string {
	if l, ok := ck.labels[field]; ok {
		return l
	}
	// Casers keep state and are not safe for concurrent use.
	return cases.Title(language.English).String(strings.ReplaceAll(field, "_", " "))
}

// check validates value against rules and records the first failure on
// field. It reports whether value passed.
func (ck *checker) check(errs domain.FieldErrors, field, value, rules string) bool {
	err := ck.validate.Var(value, rules)
	if err == nil {
		return true
	}
	errs.Add(field, ck.message(field, err))
	return false
}

// match records mismatch on field unless value equals other.
func (ck *checker) match(errs domain.FieldErrors, field, value, other, mismatch string) bool {
	if err := ck.validate.VarWithValue(value, other, "eqfield"); err != nil {
		errs.Add(field, mismatch)
		return false
	}
	return true
}

func (ck *checker) message(field string, err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	fe := verrs[0]
	label := ck.label(field)
	switch fe.Tag() {
	case "required":
		return requiredMsg(label)
	case "email":
		return MsgInvalidEmail
	case "min":
		return fmt.Sprintf("The %s field must be at least %s characters long.", label, fe.Param())
	case "max":
		return fmt.Sprintf("The %s field cannot exceed %s characters.", label, fe.Param())
	case "url":
		return fmt.Sprintf("The %s field must contain a valid URL.", label)
	default:
		return fmt.Sprintf("The %s field is invalid.", label)
	}
}

// clean strips markup from a submitted text value. Templates escape on
// output, so entities produced by the policy are decoded again.
func (ck *checker) clean(value string) string {
	return strings.TrimSpace(html.UnescapeString(ck.policy.Sanitize(value)))
}

// passwordRules builds the rule string for a new password.
func passwordRules(minLength int) string {
	if minLength < 1 {
		return "required"
	}
	return "required,min=" + strconv.Itoa(minLength)
}

// customRules builds the rule string for a custom field.
func customRules(f domain.CustomField) string {
	var rules []string
	if f.Required {
		rules = append(rules, "required")
	} else {
		rules = append(rules, "omitempty")
	}
	if f.MaxLength > 0 {
		rules = append(rules, "max="+strconv.Itoa(f.MaxLength))
	}
	return strings.Join(rules, ",")
}
