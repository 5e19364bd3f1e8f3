// Package captcha issues and checks the image captcha shown on the
// registration form.
package captcha

import (
	"net/http"
	"strings"
	"time"

	"github.com/dchest/captcha"
	"maragu.dev/gomponents"
	. "maragu.dev/gomponents/html"
)

const (
	// IDField is the hidden form field carrying the captcha id.
	IDField = "captcha_id"
	// AnswerField is the text field the visitor types the digits into.
	AnswerField = "captcha"

	// PathPrefix is where captcha images are served.
	PathPrefix = "/captcha/"

	imageWidth  = 240
	imageHeight = 80
)

// Service creates and verifies captchas.
type Service struct {
	store captcha.Store
}

// New creates a Service backed by an in-memory store. The dchest/captcha
// package keeps its store globally, so only one Service should exist per
// process.
func New(expiration time.Duration) *Service {
	store := captcha.NewMemoryStore(captcha.CollectNum, expiration)
	captcha.SetCustomStore(store)
	return &Service{store: store}
}

// Create generates a new captcha and returns the markup to embed in a form:
// the image plus a hidden field carrying its id.
func (s *Service) Create() (id string, markup string) {
	id = captcha.New()
	var b strings.Builder
	_ = gomponents.Group{
		Img(
			Class("captcha"),
			Src(PathPrefix+id+".png"),
			Alt("captcha"),
			Width("240"),
			Height("80"),
		),
		Input(Type("hidden"), Name(IDField), Value(id)),
	}.Render(&b)
	return id, b.String()
}

// Verify checks answer against the captcha id. A captcha can only be
// verified once.
func (s *Service) Verify(id, answer string) bool {
	if id == "" || answer == "" {
		return false
	}
	return captcha.VerifyString(id, strings.TrimSpace(answer))
}

// Handler serves captcha images under PathPrefix.
func (s *Service) Handler() http.Handler {
	return captcha.Server(imageWidth, imageHeight)
}

// answer returns the digits of id without consuming them.
func (s *Service) answer(id string) string {
	digits := s.store.Get(id, false)
	var b strings.Builder
	for _, d := range digits {
		b.WriteByte('0' + d)
	}
	return b.String()
}
