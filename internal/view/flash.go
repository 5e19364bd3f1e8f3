package view

import (
	"strings"

	"github.com/labstack/echo-contrib/session"
	"github.com/labstack/echo/v4"
	"maragu.dev/gomponents"
	. "maragu.dev/gomponents/html"
)

const (
	flashSessionName = "flash-session"
	flashKeySuccess  = "success"
	flashKeyError    = "error"
)

// FlashData holds the flash messages consumed by one request.
type FlashData struct {
	Success []string
	Error   []string
}

// setFlash sets a flash message in the session.
func setFlash(c echo.Context, key, message string) {
	sess, err := session.Get(flashSessionName, c)
	if err != nil {
		return
	}
	sess.AddFlash(message, key)
	_ = sess.Save(c.Request(), c.Response())
}

// SetFlashSuccess sets a success flash message.
func SetFlashSuccess(c echo.Context, message string) {
	setFlash(c, flashKeySuccess, message)
}

// SetFlashError sets an error flash message.
func SetFlashError(c echo.Context, message string) {
	setFlash(c, flashKeyError, message)
}

// GetFlashData retrieves and clears flash messages from the session. The
// result is cached on the request so every tag on a page sees the same
// messages.
func GetFlashData(c echo.Context) FlashData {
	const cacheKey = "freemember.flashes"
	if cached, ok := c.Get(cacheKey).(FlashData); ok {
		return cached
	}

	var data FlashData
	sess, err := session.Get(flashSessionName, c)
	if err != nil {
		return data
	}

	successFlashes := sess.Flashes(flashKeySuccess)
	errorFlashes := sess.Flashes(flashKeyError)
	data.Success = toStrings(successFlashes)
	data.Error = toStrings(errorFlashes)

	// Flashes() clears them in memory; save to persist the clearing.
	if len(successFlashes) > 0 || len(errorFlashes) > 0 {
		_ = sess.Save(c.Request(), c.Response())
	}
	c.Set(cacheKey, data)
	return data
}

func toStrings(values []interface{}) []string {
	var out []string
	for _, v := range values {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// RenderFlashes renders the messages as <div class="flash flash-success">
// and <div class="flash flash-error"> blocks. Nothing is rendered when there
// are no messages.
func RenderFlashes(data FlashData) string {
	if len(data.Success) == 0 && len(data.Error) == 0 {
		return ""
	}
	block := func(kind string) func(string) gomponents.Node {
		return func(msg string) gomponents.Node {
			return Div(Class("flash flash-"+kind), Role("alert"), gomponents.Text(msg))
		}
	}
	var b strings.Builder
	_ = gomponents.Group{
		gomponents.Map(data.Success, block(flashKeySuccess)),
		gomponents.Map(data.Error, block(flashKeyError)),
	}.Render(&b)
	return b.String()
}
