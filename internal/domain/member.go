package domain

import (
	"context"
	"strconv"
	"strings"
	"time"
)

// StandardFields lists the member columns that can be set from a form.
// Order matters: forms and member listings render fields in this order.
var StandardFields = []string{
	"username",
	"screen_name",
	"email",
	"url",
	"location",
	"occupation",
	"interests",
	"bio",
}

// Member represents a registered site member.
type Member struct {
	ID               string            `json:"member_id"`
	UniqueID         string            `json:"unique_id"`
	GroupID          string            `json:"group_id"`
	Username         string            `json:"username"`
	ScreenName       string            `json:"screen_name"`
	Email            string            `json:"email"`
	Password         string            `json:"password,omitempty"`
	URL              string            `json:"url,omitempty"`
	Location         string            `json:"location,omitempty"`
	Occupation       string            `json:"occupation,omitempty"`
	Interests        string            `json:"interests,omitempty"`
	Bio              string            `json:"bio,omitempty"`
	ResetCode        string            `json:"reset_code,omitempty"`
	ResetCodeExpires *time.Time        `json:"reset_code_expires,omitempty"`
	JoinDate         time.Time         `json:"join_date"`
	LastLogin        *time.Time        `json:"last_login,omitempty"`
	Custom           map[string]string `json:"custom,omitempty"`
}

// Field returns the value of a standard field or an m_field_id_N column.
func (m *Member) Field(name string) string {
	switch name {
	case "member_id":
		return m.ID
	case "group_id":
		return m.GroupID
	case "username":
		return m.Username
	case "screen_name":
		return m.ScreenName
	case "email":
		return m.Email
	case "url":
		return m.URL
	case "location":
		return m.Location
	case "occupation":
		return m.Occupation
	case "interests":
		return m.Interests
	case "bio":
		return m.Bio
	}
	if strings.HasPrefix(name, CustomColumnPrefix) {
		return m.Custom[name]
	}
	return ""
}

// SetField sets a standard field or an m_field_id_N column. It reports
// whether the name was recognised.
func (m *Member) SetField(name, value string) bool {
	switch name {
	case "username":
		m.Username = value
	case "screen_name":
		m.ScreenName = value
	case "email":
		m.Email = value
	case "url":
		m.URL = value
	case "location":
		m.Location = value
	case "occupation":
		m.Occupation = value
	case "interests":
		m.Interests = value
	case "bio":
		m.Bio = value
	default:
		if !strings.HasPrefix(name, CustomColumnPrefix) {
			return false
		}
		if m.Custom == nil {
			m.Custom = make(map[string]string)
		}
		m.Custom[name] = value
	}
	return true
}

// ResetCodeValid reports whether code matches an unexpired reset code.
func (m *Member) ResetCodeValid(code string, now time.Time) bool {
	if code == "" || m.ResetCode == "" || m.ResetCode != code {
		return false
	}
	return m.ResetCodeExpires != nil && now.Before(*m.ResetCodeExpires)
}

// CustomColumnPrefix prefixes the storage column of a custom member field.
const CustomColumnPrefix = "m_field_id_"

// CustomField describes a site-defined member profile field.
type CustomField struct {
	ID        int    `yaml:"id" json:"id"`
	Name      string `yaml:"name" json:"name"`
	Label     string `yaml:"label" json:"label"`
	Required  bool   `yaml:"required" json:"required"`
	MaxLength int    `yaml:"max_length" json:"max_length"`
	Public    bool   `yaml:"public" json:"public"`
}

// Column returns the storage column of the field, e.g. m_field_id_3.
func (f CustomField) Column() string {
	return CustomColumnPrefix + strconv.Itoa(f.ID)
}

// MemberQuery narrows a member listing. Zero values mean "any".
type MemberQuery struct {
	MemberIDs  []string
	Usernames  []string
	Emails     []string
	GroupIDs   []string
	ScreenName string
	OrderBy    string
	Sort       string
	Limit      int
	Offset     int
}

// MemberRepository defines the contract for member storage.
// It lives in the domain because it's a requirement OF the domain, not
// of the database implementation.
type MemberRepository interface {
	FindByID(ctx context.Context, id string) (*Member, error)
	FindByEmail(ctx context.Context, email string) (*Member, error)
	FindByUsername(ctx context.Context, username string) (*Member, error)
	FindByResetCode(ctx context.Context, code string) (*Member, error)
	FindMembers(ctx context.Context, q MemberQuery) ([]*Member, error)
	Create(ctx context.Context, m *Member) (*Member, error)
	Update(ctx context.Context, m *Member) error
	MemberFields() []string
	CustomFields() []CustomField
}
