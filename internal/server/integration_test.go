package server_test

import (
	"context"
	"html"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"regexp"
	"testing"
	"time"

	"github.com/nfrund/freemember/internal/captcha"
	"github.com/nfrund/freemember/internal/config"
	"github.com/nfrund/freemember/internal/freemember"
	"github.com/nfrund/freemember/internal/server"
	"github.com/nfrund/freemember/internal/testutils"
	"github.com/samber/do/v2"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testPages = map[string]string{
	"pages/index.html": `<h1>Home</h1>{exp:freemember:flash}`,
	"pages/register.html": `{exp:freemember:register return="profile"}` +
		`{field:email}{field:username}{field:password}{field:password_confirm}` +
		`{/exp:freemember:register}`,
	"pages/login.html": `{exp:freemember:flash}{exp:freemember:login return="profile" error_handling="inline"}` +
		`{field:email}{field:password}{if error:password}{error:password}{/if}` +
		`{/exp:freemember:login}`,
	"pages/profile.html": `{exp:freemember:flash}{exp:freemember:update_profile}Hello {username}{/exp:freemember:update_profile}`,
	"pages/logout.html":  `{exp:freemember:logout return="login"}`,
}

type testApp struct {
	srv    *server.Server
	ts     *httptest.Server
	client *http.Client
}

func newTestApp(t *testing.T, files map[string]string, settings map[string]any) *testApp {
	t.Helper()

	fs := afero.NewMemMapFs()
	for name, body := range files {
		require.NoError(t, afero.WriteFile(fs, name, []byte(body), 0o644))
	}

	cfg := testutils.ConfigForTests(t)
	cfg.Set("PAGES_DIR", "pages")
	cfg.Set("MEMBER_STORE", "memory")
	cfg.Set("RATE_LIMIT_STORE", "memory")
	cfg.Set("RATE_LIMIT_PER_MINUTE", 1000)
	cfg.Set("SESSION_SECRET", "integration-test-session-secret!")
	for k, v := range settings {
		cfg.Set(k, v)
	}

	srv, err := server.New(server.Options{
		Config: cfg,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		FS:     fs,
	})
	require.NoError(t, err)

	ts := httptest.NewServer(srv.E)
	cfg.Set("APP_BASE_URL", ts.URL)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	t.Cleanup(func() {
		ts.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
	return &testApp{srv: srv, ts: ts, client: &http.Client{Jar: jar}}
}

func (a *testApp) get(t *testing.T, path string) (int, string) {
	t.Helper()
	resp, err := a.client.Get(a.ts.URL + path)
	require.NoError(t, err)
	return readBody(t, resp)
}

func (a *testApp) post(t *testing.T, path string, form url.Values) (int, string) {
	t.Helper()
	resp, err := a.client.PostForm(a.ts.URL+path, form)
	require.NoError(t, err)
	return readBody(t, resp)
}

func readBody(t *testing.T, resp *http.Response) (int, string) {
	t.Helper()
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

var hiddenPattern = regexp.MustCompile(`<input type="hidden" name="([^"]+)" value="([^"]*)">`)

// formValues returns the hidden fields of the form on page merged with
// fields.
func formValues(page string, fields map[string]string) url.Values {
	v := url.Values{}
	for _, m := range hiddenPattern.FindAllStringSubmatch(page, -1) {
		v.Set(m[1], html.UnescapeString(m[2]))
	}
	for k, val := range fields {
		v.Set(k, val)
	}
	return v
}

func TestHealth(t *testing.T) {
	app := newTestApp(t, testPages, nil)

	status, body := app.get(t, "/health")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "OK", body)
}

func TestPageRendering(t *testing.T) {
	app := newTestApp(t, testPages, nil)

	status, body := app.get(t, "/")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "<h1>Home</h1>", body)

	status, body = app.get(t, "/profile")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, freemember.MsgMustBeLoggedIn, body)

	// Unknown paths fall back to the nearest index.
	status, body = app.get(t, "/no/such/page")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "<h1>Home</h1>", body)
}

func TestPageNotFound(t *testing.T) {
	app := newTestApp(t, map[string]string{"pages/about.html": "About"}, nil)

	status, _ := app.get(t, "/about")
	assert.Equal(t, http.StatusOK, status)

	status, _ = app.get(t, "/elsewhere")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestMemberLifecycle(t *testing.T) {
	app := newTestApp(t, testPages, nil)

	_, page := app.get(t, "/register")
	status, body := app.post(t, "/register", formValues(page, map[string]string{
		"email":            "ann@example.com",
		"username":         "ann",
		"password":         "secret123",
		"password_confirm": "secret123",
	}))
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "Your account has been created.")
	assert.Contains(t, body, "Hello ann")

	// The flash is shown once.
	_, body = app.get(t, "/profile")
	assert.NotContains(t, body, "Your account has been created.")
	assert.Contains(t, body, "Hello ann")

	// The logout tag ends the session and redirects to its return page.
	_, body = app.get(t, "/logout")
	assert.Contains(t, body, "You have been logged out.")
	_, body = app.get(t, "/profile")
	assert.Contains(t, body, freemember.MsgMustBeLoggedIn)

	_, page = app.get(t, "/login")
	status, body = app.post(t, "/login", formValues(page, map[string]string{
		"email":    "ann@example.com",
		"password": "wrong-password",
	}))
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, `<span class="error">`+freemember.MsgInvalidLogin+`</span>`)

	status, body = app.post(t, "/login", formValues(page, map[string]string{
		"email":    "ann@example.com",
		"password": "secret123",
	}))
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "You are now logged in.")
	assert.Contains(t, body, "Hello ann")

	members, err := app.srv.Members().FindByUsername(context.Background(), "ann")
	require.NoError(t, err)
	require.NotNil(t, members)
	assert.NotNil(t, members.LastLogin)
}

func TestRegisterErrorsShowErrorPage(t *testing.T) {
	app := newTestApp(t, testPages, nil)

	_, page := app.get(t, "/register")
	status, body := app.post(t, "/register", formValues(page, map[string]string{
		"email":            "not-an-email",
		"password":         "secret123",
		"password_confirm": "different",
	}))
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "The following errors were encountered")
	assert.Contains(t, body, freemember.MsgPasswordMismatch)
}

func TestUnknownAction(t *testing.T) {
	app := newTestApp(t, testPages, nil)

	status, _ := app.post(t, "/", url.Values{"ACT": {"99"}})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestRateLimitOnlyCountsPosts(t *testing.T) {
	app := newTestApp(t, testPages, map[string]any{"RATE_LIMIT_PER_MINUTE": 1})

	for i := 0; i < 3; i++ {
		status, _ := app.get(t, "/")
		assert.Equal(t, http.StatusOK, status)
	}

	_, page := app.get(t, "/login")
	form := formValues(page, map[string]string{"email": "nobody@example.com", "password": "whatever1"})

	status, _ := app.post(t, "/login", form)
	assert.Equal(t, http.StatusOK, status)

	status, body := app.post(t, "/login", form)
	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.Contains(t, body, "Too many requests")
}

func TestCaptchaImage(t *testing.T) {
	app := newTestApp(t, testPages, nil)

	id, _ := do.MustInvoke[*captcha.Service](app.srv.Injector()).Create()

	resp, err := app.client.Get(app.ts.URL + captcha.PathPrefix + id + ".png")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
}

func TestNewRejectsUnknownMemberStore(t *testing.T) {
	cfg := testutils.ConfigForTests(t)
	cfg.Set("MEMBER_STORE", "carrier-pigeon")

	_, err := server.New(server.Options{
		Config: cfg,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		FS:     afero.NewMemMapFs(),
	})
	assert.ErrorContains(t, err, "unknown member store")
}

func TestNewRejectsWeakSecrets(t *testing.T) {
	for _, secret := range []string{"", "change-me-session-secret-0123456789"} {
		cfg := testutils.ConfigForTests(t)
		cfg.Set("SESSION_SECRET", secret)

		_, err := server.New(server.Options{
			Config: cfg,
			Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
			FS:     afero.NewMemMapFs(),
		})
		assert.ErrorIs(t, err, config.ErrWeakSecret, "secret %q", secret)
	}
}

func TestShutdownIsIdempotent(t *testing.T) {
	app := newTestApp(t, testPages, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, app.srv.Shutdown(ctx))
	assert.NotPanics(t, func() { _ = app.srv.Shutdown(ctx) })
}

func TestEmbeddedSamplePages(t *testing.T) {
	app := newTestApp(t, nil, map[string]any{"PAGES_DIR": "embed"})

	status, body := app.get(t, "/")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "<h1>FreeMember</h1>")
	assert.Contains(t, body, "?ACT=6")

	_, body = app.get(t, "/login")
	assert.Contains(t, body, `<input type="hidden" name="ACT" value="1">`)

	_, body = app.get(t, "/reset_password/unknown-code")
	assert.Contains(t, body, "This reset link is invalid or has expired.")
}
