package database

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCustomFields(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/etc/fields.yaml", []byte(`
fields:
  - id: 1
    name: company
    label: Company
    required: true
    max_length: 100
    public: true
  - id: 4
    name: twitter
    label: Twitter handle
`), 0o644))

	fields, err := LoadCustomFields(fs, "/etc/fields.yaml")
	require.NoError(t, err)
	require.Len(t, fields, 2)
	assert.Equal(t, "company", fields[0].Name)
	assert.True(t, fields[0].Required)
	assert.Equal(t, "m_field_id_4", fields[1].Column())
}

func TestLoadCustomFieldsEmptyPath(t *testing.T) {
	fields, err := LoadCustomFields(afero.NewMemMapFs(), "")
	require.NoError(t, err)
	assert.Nil(t, fields)
}

func TestLoadCustomFieldsErrors(t *testing.T) {
	cases := map[string]string{
		"missing id":   "fields:\n  - name: company\n",
		"duplicate id": "fields:\n  - {id: 1, name: a}\n  - {id: 1, name: b}\n",
		"bad name":     "fields:\n  - {id: 1, name: Bad-Name}\n",
		"reserved":     "fields:\n  - {id: 1, name: email}\n",
		"not yaml":     "fields: [",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			require.NoError(t, afero.WriteFile(fs, "f.yaml", []byte(body), 0o644))
			_, err := LoadCustomFields(fs, "f.yaml")
			assert.Error(t, err)
		})
	}

	_, err := LoadCustomFields(afero.NewMemMapFs(), "absent.yaml")
	assert.Error(t, err)
}
