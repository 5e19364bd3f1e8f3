package database

import (
	"fmt"
	"regexp"

	"github.com/nfrund/freemember/internal/domain"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

var fieldNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

type fieldsFile struct {
	Fields []domain.CustomField `yaml:"fields"`
}

// LoadCustomFields reads custom member field definitions from a YAML file:
//
//	fields:
//	  - id: 1
//	    name: company
//	    label: Company
//	    required: true
//	    max_length: 100
//	    public: true
//
// An empty path yields no custom fields.
func LoadCustomFields(fs afero.Fs, path string) ([]domain.CustomField, error) {
	if path == "" {
		return nil, nil
	}
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read member fields file: %w", err)
	}

	var file fieldsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse member fields file %s: %w", path, err)
	}
	if err := validateCustomFields(file.Fields); err != nil {
		return nil, fmt.Errorf("invalid member fields file %s: %w", path, err)
	}
	return file.Fields, nil
}

func validateCustomFields(fields []domain.CustomField) error {
	reserved := make(map[string]bool)
	for _, f := range domain.StandardFields {
		reserved[f] = true
	}
	for _, f := range []string{"member_id", "group_id", "password", "password_confirm", "current_password", "email_confirm", "captcha", "accept_terms"} {
		reserved[f] = true
	}

	ids := make(map[int]bool)
	names := make(map[string]bool)
	for _, f := range fields {
		switch {
		case f.ID <= 0:
			return fmt.Errorf("field %q: id must be positive", f.Name)
		case ids[f.ID]:
			return fmt.Errorf("duplicate field id %d", f.ID)
		case !fieldNamePattern.MatchString(f.Name):
			return fmt.Errorf("field %d: invalid name %q", f.ID, f.Name)
		case names[f.Name] || reserved[f.Name]:
			return fmt.Errorf("field name %q is already in use", f.Name)
		}
		ids[f.ID] = true
		names[f.Name] = true
	}
	return nil
}
