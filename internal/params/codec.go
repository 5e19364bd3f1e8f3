// Package params carries a tag's parameters from the rendered form to the
// action that handles its submission. The parameters are authenticated (and
// optionally encrypted) with gorilla/securecookie so that visitors cannot
// alter settings such as return URLs or error handling.
package params

import (
	"errors"
	"fmt"

	"github.com/gorilla/securecookie"
)

// FieldName is the hidden form field holding the encoded parameters.
const FieldName = "_params"

// ErrMissing is returned when a submission carries no parameters.
var ErrMissing = errors.New("form parameters missing")

// Codec encodes and decodes tag parameter maps.
type Codec struct {
	sc *securecookie.SecureCookie
}

// NewCodec creates a codec. hashKey authenticates values and should be at
// least 32 bytes; blockKey, when non-empty, enables AES encryption and must
// be 16, 24 or 32 bytes.
func NewCodec(hashKey, blockKey []byte) (*Codec, error) {
	if len(hashKey) == 0 {
		return nil, errors.New("params hash key is required")
	}
	if len(blockKey) == 0 {
		blockKey = nil
	} else if n := len(blockKey); n != 16 && n != 24 && n != 32 {
		return nil, fmt.Errorf("params block key must be 16, 24 or 32 bytes, got %d", n)
	}

	sc := securecookie.New(hashKey, blockKey)
	// Forms may sit on a page for a long time.
	sc.MaxAge(0)
	return &Codec{sc: sc}, nil
}

// Encode serializes params for the hidden field.
func (c *Codec) Encode(params map[string]string) (string, error) {
	if params == nil {
		params = map[string]string{}
	}
	return c.sc.Encode(FieldName, params)
}

// Decode restores params. It always returns a non-nil map.
func (c *Codec) Decode(value string) (map[string]string, error) {
	params := map[string]string{}
	if value == "" {
		return params, ErrMissing
	}
	if err := c.sc.Decode(FieldName, value, &params); err != nil {
		return map[string]string{}, fmt.Errorf("failed to decode form parameters: %w", err)
	}
	return params, nil
}
