package domain

import (
	"errors"
	"sort"
	"strings"
)

// Sentinel errors for the domain layer. These provide consistent, checkable
// errors for common business logic failures.
var (
	ErrMemberNotFound     = errors.New("member not found")
	ErrMemberExists       = errors.New("member with this email or username already exists")
	ErrInvalidCredentials = errors.New("invalid credentials provided")
	ErrInvalidResetCode   = errors.New("invalid or expired password reset code")
)

// FieldErrors maps a form field name to a user facing message.
// A nil or empty FieldErrors means the operation succeeded.
type FieldErrors map[string]string

// Add records msg for field unless the field already has an error.
func (fe FieldErrors) Add(field, msg string) {
	if _, ok := fe[field]; !ok {
		fe[field] = msg
	}
}

// Has reports whether field has an error.
func (fe FieldErrors) Has(field string) bool {
	_, ok := fe[field]
	return ok
}

// Keys returns the field names in sorted order.
func (fe FieldErrors) Keys() []string {
	keys := make([]string, 0, len(fe))
	for k := range fe {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Messages returns the messages ordered by field name.
func (fe FieldErrors) Messages() []string {
	msgs := make([]string, 0, len(fe))
	for _, k := range fe.Keys() {
		msgs = append(msgs, fe[k])
	}
	return msgs
}

func (fe FieldErrors) Error() string {
	return strings.Join(fe.Messages(), "; ")
}
