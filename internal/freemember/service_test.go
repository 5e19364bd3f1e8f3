package freemember

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nfrund/freemember/internal/config"
	"github.com/nfrund/freemember/internal/database"
	"github.com/nfrund/freemember/internal/domain"
	"github.com/nfrund/freemember/internal/email"
	"github.com/nfrund/freemember/internal/pubsub"
	"github.com/nfrund/freemember/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockSender struct {
	mock.Mock
}

func (m *mockSender) Send(to, subject, htmlBody string) error {
	args := m.Called(to, subject, htmlBody)
	return args.Error(0)
}

type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
}

func (p *recordingPublisher) Publish(ctx context.Context, msg pubsub.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, msg.Topic)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) published() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.topics...)
}

type stubCaptcha bool

func (s stubCaptcha) Verify(id, answer string) bool { return bool(s) }

type testEnv struct {
	svc    *Service
	repo   *database.MemoryMemberStore
	mailer *mockSender
	events *recordingPublisher
	cfg    *config.Config
}

func newTestEnv(t *testing.T, fields ...domain.CustomField) *testEnv {
	t.Helper()
	hasher := testutils.FastHasher(t)

	cfg := testutils.ConfigForTests(t)
	cfg.Set("APP_BASE_URL", "http://example.com/")
	repo := database.NewMemoryMemberStore(fields)
	env := &testEnv{
		repo:   repo,
		mailer: &mockSender{},
		events: &recordingPublisher{},
		cfg:    cfg,
	}
	env.svc = NewService(repo, hasher, stubCaptcha(false), env.mailer, env.events, cfg)
	return env
}

func form(kv ...string) Submission {
	values := url.Values{}
	for i := 0; i+1 < len(kv); i += 2 {
		values.Add(kv[i], kv[i+1])
	}
	return Submission{Form: values, Params: map[string]string{}}
}

func (env *testEnv) register(t *testing.T, emailAddr, username, pass string) *domain.Member {
	t.Helper()
	m, errs, err := env.svc.Register(context.Background(), form(
		"email", emailAddr, "username", username, "password", pass, "password_confirm", pass,
	))
	require.NoError(t, err)
	require.Empty(t, errs)
	return m
}

func TestCanRegisterAndUpdate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	member := &domain.Member{ID: "1"}

	assert.Equal(t, "", env.svc.CanRegister(ctx, nil))
	assert.Equal(t, MsgAlreadyLoggedIn, env.svc.CanRegister(ctx, member))

	env.cfg.Set("ALLOW_REGISTRATION", false)
	assert.Equal(t, MsgRegistrationDisabled, env.svc.CanRegister(ctx, nil))

	assert.Equal(t, MsgMustBeLoggedIn, env.svc.CanUpdate(ctx, nil))
	assert.Equal(t, "", env.svc.CanUpdate(ctx, member))
}

func TestCurrentMember(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ann := env.register(t, "ann@example.com", "ann", "secret1")

	m, err := env.svc.CurrentMember(ctx, ann.ID)
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "ann", m.Username)

	m, err = env.svc.CurrentMember(ctx, "")
	require.NoError(t, err)
	assert.Nil(t, m, "empty id is a guest")

	m, err = env.svc.CurrentMember(ctx, "deleted-member")
	require.NoError(t, err)
	assert.Nil(t, m, "unknown id is a guest")
}

func TestAuthenticate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.register(t, "ann@example.com", "ann", "secret1")

	m, err := env.svc.authenticate(ctx, "ann@example.com", "", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "ann", m.Username)

	m, err = env.svc.authenticate(ctx, "", "ann", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "ann@example.com", m.Email)

	_, err = env.svc.authenticate(ctx, "ann@example.com", "", "wrong")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)

	_, err = env.svc.authenticate(ctx, "nobody@example.com", "", "secret1")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
}

func TestMemberByResetCode(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ann := env.register(t, "ann@example.com", "ann", "secret1")

	expires := time.Now().Add(time.Hour)
	ann.ResetCode = "valid-code"
	ann.ResetCodeExpires = &expires
	require.NoError(t, env.repo.Update(ctx, ann))

	m, err := env.svc.memberByResetCode(ctx, "valid-code")
	require.NoError(t, err)
	assert.Equal(t, ann.ID, m.ID)

	for _, code := range []string{"", "other-code"} {
		_, err := env.svc.memberByResetCode(ctx, code)
		assert.ErrorIs(t, err, domain.ErrInvalidResetCode, "code %q", code)
	}

	past := time.Now().Add(-time.Minute)
	ann.ResetCodeExpires = &past
	require.NoError(t, env.repo.Update(ctx, ann))
	_, err = env.svc.memberByResetCode(ctx, "valid-code")
	assert.ErrorIs(t, err, domain.ErrInvalidResetCode, "expired code")
}

func TestRegister(t *testing.T) {
	t.Run("creates a member with defaults", func(t *testing.T) {
		env := newTestEnv(t)
		m, errs, err := env.svc.Register(context.Background(), form(
			"email", "ann@example.com", "password", "secret1", "password_confirm", "secret1",
		))
		require.NoError(t, err)
		require.Empty(t, errs)

		assert.Equal(t, "ann@example.com", m.Username)
		assert.Equal(t, "ann@example.com", m.ScreenName)
		assert.Equal(t, "members", m.GroupID)
		assert.NotEqual(t, "secret1", m.Password)
		assert.Equal(t, []string{pubsub.TopicMemberRegistered}, env.events.published())

		stored, err := env.repo.FindByEmail(context.Background(), "ann@example.com")
		require.NoError(t, err)
		require.NotNil(t, stored)
		assert.Equal(t, m.ID, stored.ID)
	})

	t.Run("reports field errors", func(t *testing.T) {
		env := newTestEnv(t)
		_, errs, err := env.svc.Register(context.Background(), form(
			"email", "not-an-email", "password", "abc", "password_confirm", "abc",
		))
		require.NoError(t, err)
		assert.Equal(t, MsgInvalidEmail, errs["email"])
		assert.Equal(t, "The Password field must be at least 5 characters long.", errs["password"])
		assert.False(t, errs.Has("password_confirm"), "confirmation is only checked for a valid password")
		assert.Empty(t, env.events.published())
	})

	t.Run("checks confirmations", func(t *testing.T) {
		env := newTestEnv(t)
		_, errs, err := env.svc.Register(context.Background(), form(
			"email", "ann@example.com", "email_confirm", "anne@example.com",
			"password", "secret1", "password_confirm", "secret2",
		))
		require.NoError(t, err)
		assert.Equal(t, []string{"email_confirm", "password_confirm"}, errs.Keys())
		assert.Equal(t, MsgEmailMismatch, errs["email_confirm"])
		assert.Equal(t, MsgPasswordMismatch, errs["password_confirm"])
	})

	t.Run("requires a missing email", func(t *testing.T) {
		env := newTestEnv(t)
		_, errs, err := env.svc.Register(context.Background(), form("password", "secret1", "password_confirm", "secret1"))
		require.NoError(t, err)
		assert.Equal(t, "The Email field is required.", errs["email"])
	})

	t.Run("rejects taken email and username", func(t *testing.T) {
		env := newTestEnv(t)
		env.register(t, "ann@example.com", "ann", "secret1")

		_, errs, err := env.svc.Register(context.Background(), form(
			"email", "ANN@example.com", "username", "Ann", "password", "secret1", "password_confirm", "secret1",
		))
		require.NoError(t, err)
		assert.Equal(t, MsgEmailTaken, errs["email"])
		assert.Equal(t, MsgUsernameTaken, errs["username"])
	})

	t.Run("requires terms when the form asks for them", func(t *testing.T) {
		env := newTestEnv(t)
		sub := form("email", "ann@example.com", "password", "secret1", "password_confirm", "secret1", "accept_terms", "")
		sub.Params["require_terms"] = "yes"

		_, errs, err := env.svc.Register(context.Background(), sub)
		require.NoError(t, err)
		assert.Equal(t, MsgAcceptTerms, errs["accept_terms"])

		sub.Form.Set("accept_terms", "1")
		_, errs, err = env.svc.Register(context.Background(), sub)
		require.NoError(t, err)
		assert.Empty(t, errs)
	})

	t.Run("checks the captcha when enabled", func(t *testing.T) {
		env := newTestEnv(t)
		env.cfg.Set("USE_MEMBERSHIP_CAPTCHA", true)
		_, errs, err := env.svc.Register(context.Background(), form(
			"email", "ann@example.com", "password", "secret1", "password_confirm", "secret1", "captcha", "123456",
		))
		require.NoError(t, err)
		assert.Equal(t, MsgCaptcha, errs["captcha"])
	})

	t.Run("strips markup from text fields", func(t *testing.T) {
		env := newTestEnv(t)
		m, errs, err := env.svc.Register(context.Background(), form(
			"email", "ann@example.com", "screen_name", "<b>Ann</b> & co<script>x()</script>",
			"password", "secret1", "password_confirm", "secret1",
		))
		require.NoError(t, err)
		require.Empty(t, errs)
		assert.Equal(t, "Ann & co", m.ScreenName)
	})

	t.Run("validates custom fields", func(t *testing.T) {
		env := newTestEnv(t,
			domain.CustomField{ID: 1, Name: "company", Label: "Company Name", Required: true},
			domain.CustomField{ID: 2, Name: "zip", MaxLength: 5},
		)
		_, errs, err := env.svc.Register(context.Background(), form(
			"email", "ann@example.com", "password", "secret1", "password_confirm", "secret1", "zip", "1234567",
		))
		require.NoError(t, err)
		assert.Equal(t, "The Company Name field is required.", errs["company"])
		assert.Equal(t, "The Zip field cannot exceed 5 characters.", errs["zip"])

		m, errs, err := env.svc.Register(context.Background(), form(
			"email", "ann@example.com", "password", "secret1", "password_confirm", "secret1",
			"company", "Acme", "zip", "12345",
		))
		require.NoError(t, err)
		require.Empty(t, errs)
		assert.Equal(t, "Acme", m.Custom["m_field_id_1"])
		assert.Equal(t, "12345", m.Custom["m_field_id_2"])
	})
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "ann@example.com", "ann", "secret1")
	ctx := context.Background()

	t.Run("by email", func(t *testing.T) {
		m, errs, err := env.svc.Login(ctx, form("email", "ann@example.com", "password", "secret1"))
		require.NoError(t, err)
		require.Empty(t, errs)
		assert.Equal(t, "ann", m.Username)
		require.NotNil(t, m.LastLogin)
	})

	t.Run("by username", func(t *testing.T) {
		m, errs, err := env.svc.Login(ctx, form("email", "", "username", "ann", "password", "secret1"))
		require.NoError(t, err)
		require.Empty(t, errs)
		assert.Equal(t, "ann@example.com", m.Email)
	})

	t.Run("missing fields", func(t *testing.T) {
		_, errs, err := env.svc.Login(ctx, form())
		require.NoError(t, err)
		assert.Equal(t, []string{"email", "password"}, errs.Keys())
	})

	t.Run("wrong password and unknown member look the same", func(t *testing.T) {
		_, errs, err := env.svc.Login(ctx, form("email", "ann@example.com", "password", "nope!"))
		require.NoError(t, err)
		assert.Equal(t, domain.FieldErrors{"password": MsgInvalidLogin}, errs)

		_, errs, err = env.svc.Login(ctx, form("email", "bob@example.com", "password", "secret1"))
		require.NoError(t, err)
		assert.Equal(t, domain.FieldErrors{"password": MsgInvalidLogin}, errs)
	})

	t.Run("banned members cannot log in", func(t *testing.T) {
		banned := env.register(t, "bad@example.com", "bad", "secret1")
		banned.GroupID = BannedGroup
		require.NoError(t, env.repo.Update(ctx, banned))

		_, errs, err := env.svc.Login(ctx, form("email", "bad@example.com", "password", "secret1"))
		require.NoError(t, err)
		assert.Equal(t, MsgBanned, errs["email"])
	})

	assert.Contains(t, env.events.published(), pubsub.TopicMemberLoggedIn)
}

func TestUpdateProfile(t *testing.T) {
	ctx := context.Background()

	t.Run("plain fields need no password", func(t *testing.T) {
		env := newTestEnv(t)
		m := env.register(t, "ann@example.com", "ann", "secret1")

		errs, err := env.svc.UpdateProfile(ctx, m, form("screen_name", "Annie", "location", "Paris"))
		require.NoError(t, err)
		require.Empty(t, errs)

		stored, err := env.repo.FindByID(ctx, m.ID)
		require.NoError(t, err)
		assert.Equal(t, "Annie", stored.ScreenName)
		assert.Equal(t, "Paris", stored.Location)
		assert.Equal(t, "ann@example.com", stored.Email, "unposted fields are kept")
		assert.Contains(t, env.events.published(), pubsub.TopicMemberUpdated)
	})

	t.Run("email change needs the current password", func(t *testing.T) {
		env := newTestEnv(t)
		m := env.register(t, "ann@example.com", "ann", "secret1")

		errs, err := env.svc.UpdateProfile(ctx, m, form("email", "new@example.com"))
		require.NoError(t, err)
		assert.Equal(t, MsgCurrentPassword, errs["current_password"])
		assert.Equal(t, "ann@example.com", m.Email)

		errs, err = env.svc.UpdateProfile(ctx, m, form("email", "new@example.com", "current_password", "secret1"))
		require.NoError(t, err)
		require.Empty(t, errs)
		assert.Equal(t, "new@example.com", m.Email)
	})

	t.Run("resubmitting the same email is not a change", func(t *testing.T) {
		env := newTestEnv(t)
		m := env.register(t, "ann@example.com", "ann", "secret1")

		errs, err := env.svc.UpdateProfile(ctx, m, form("email", "ann@example.com", "username", "ann", "bio", "hi"))
		require.NoError(t, err)
		assert.Empty(t, errs)
	})

	t.Run("email taken by another member", func(t *testing.T) {
		env := newTestEnv(t)
		env.register(t, "bob@example.com", "bob", "secret1")
		m := env.register(t, "ann@example.com", "ann", "secret1")

		errs, err := env.svc.UpdateProfile(ctx, m, form("email", "bob@example.com", "current_password", "secret1"))
		require.NoError(t, err)
		assert.Equal(t, MsgEmailTaken, errs["email"])
	})

	t.Run("password change", func(t *testing.T) {
		env := newTestEnv(t)
		m := env.register(t, "ann@example.com", "ann", "secret1")

		errs, err := env.svc.UpdateProfile(ctx, m, form(
			"password", "newpass", "password_confirm", "newpass", "current_password", "secret1",
		))
		require.NoError(t, err)
		require.Empty(t, errs)

		_, errs, err = env.svc.Login(ctx, form("email", "ann@example.com", "password", "newpass"))
		require.NoError(t, err)
		assert.Empty(t, errs)
	})

	t.Run("guest", func(t *testing.T) {
		env := newTestEnv(t)
		errs, err := env.svc.UpdateProfile(ctx, nil, form("bio", "x"))
		require.NoError(t, err)
		assert.NotEmpty(t, errs)
	})
}

func TestForgotPassword(t *testing.T) {
	ctx := context.Background()

	t.Run("requires a valid email", func(t *testing.T) {
		env := newTestEnv(t)
		errs, err := env.svc.ForgotPassword(ctx, form("email", "nope"))
		require.NoError(t, err)
		assert.Equal(t, MsgInvalidEmail, errs["email"])
		env.mailer.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("unknown email is silently accepted", func(t *testing.T) {
		env := newTestEnv(t)
		errs, err := env.svc.ForgotPassword(ctx, form("email", "ghost@example.com"))
		require.NoError(t, err)
		assert.Empty(t, errs)
		env.mailer.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("sends a reset link", func(t *testing.T) {
		env := newTestEnv(t)
		env.register(t, "ann@example.com", "ann", "secret1")

		var body string
		env.mailer.On("Send", "ann@example.com", email.ResetPasswordSubject, mock.AnythingOfType("string")).
			Run(func(args mock.Arguments) { body = args.String(2) }).
			Return(nil).Once()

		sub := form("email", "ann@example.com")
		sub.Params["reset"] = "/account/reset/"
		errs, err := env.svc.ForgotPassword(ctx, sub)
		require.NoError(t, err)
		require.Empty(t, errs)
		env.mailer.AssertExpectations(t)

		stored, err := env.repo.FindByEmail(ctx, "ann@example.com")
		require.NoError(t, err)
		assert.Len(t, stored.ResetCode, 64)
		require.NotNil(t, stored.ResetCodeExpires)
		assert.WithinDuration(t, time.Now().Add(24*time.Hour), *stored.ResetCodeExpires, time.Minute)
		assert.Contains(t, body, "http://example.com/account/reset/"+stored.ResetCode)
		assert.Contains(t, env.events.published(), pubsub.TopicPasswordResetRequested)
	})
}

func TestResetPassword(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	m := env.register(t, "ann@example.com", "ann", "secret1")

	expires := time.Now().Add(time.Hour)
	m.ResetCode = strings.Repeat("ab", 32)
	m.ResetCodeExpires = &expires
	require.NoError(t, env.repo.Update(ctx, m))

	t.Run("unknown code", func(t *testing.T) {
		_, errs, err := env.svc.ResetPassword(ctx, form("reset_code", "zzz", "password", "newpass", "password_confirm", "newpass"))
		require.NoError(t, err)
		assert.Equal(t, MsgInvalidResetCode, errs["reset_code"])
	})

	t.Run("password rules apply", func(t *testing.T) {
		_, errs, err := env.svc.ResetPassword(ctx, form("reset_code", m.ResetCode, "password", "newpass", "password_confirm", "other"))
		require.NoError(t, err)
		assert.Equal(t, MsgPasswordMismatch, errs["password_confirm"])
	})

	t.Run("sets the password and clears the code", func(t *testing.T) {
		updated, errs, err := env.svc.ResetPassword(ctx, form("reset_code", m.ResetCode, "password", "newpass", "password_confirm", "newpass"))
		require.NoError(t, err)
		require.Empty(t, errs)
		assert.Empty(t, updated.ResetCode)
		assert.Nil(t, updated.ResetCodeExpires)

		_, errs, err = env.svc.Login(ctx, form("email", "ann@example.com", "password", "newpass"))
		require.NoError(t, err)
		assert.Empty(t, errs)

		_, errs, err = env.svc.ResetPassword(ctx, form("reset_code", m.ResetCode, "password", "again", "password_confirm", "again"))
		require.NoError(t, err)
		assert.True(t, errs.Has("reset_code"), "codes are single use")
	})

	t.Run("expired code", func(t *testing.T) {
		past := time.Now().Add(-time.Minute)
		stale, err := env.repo.FindByEmail(ctx, "ann@example.com")
		require.NoError(t, err)
		stale.ResetCode = strings.Repeat("cd", 32)
		stale.ResetCodeExpires = &past
		require.NoError(t, env.repo.Update(ctx, stale))

		_, errs, err := env.svc.ResetPassword(ctx, form("reset_code", stale.ResetCode, "password", "newpass", "password_confirm", "newpass"))
		require.NoError(t, err)
		assert.True(t, errs.Has("reset_code"))
	})
}

func TestLogoutPublishes(t *testing.T) {
	env := newTestEnv(t)
	env.svc.Logout(context.Background(), nil)
	assert.Empty(t, env.events.published())

	env.svc.Logout(context.Background(), &domain.Member{ID: "7"})
	assert.Equal(t, []string{pubsub.TopicMemberLoggedOut}, env.events.published())
}

func TestWrapError(t *testing.T) {
	assert.Equal(t, `<span class="error">Bad &lt;input&gt;</span>`, WrapError(nil, "Bad <input>"))
	assert.Equal(t, `<p class="err">Oops</p>`, WrapError(map[string]string{"error_delimiters": `<p class="err">|</p>`}, "Oops"))
	assert.Equal(t, `<span class="error">Oops</span>`, WrapError(map[string]string{"error_delimiters": "nodelim"}, "Oops"))
}

func TestSubmission(t *testing.T) {
	sub := form("name", "  Ann ", "empty", "")
	sub.Params["return"] = "/home"

	assert.True(t, sub.Posted("empty"))
	assert.False(t, sub.Posted("missing"))
	assert.Equal(t, "Ann", sub.Value("name"))
	assert.Equal(t, "  Ann ", sub.Raw("name"))
	assert.Equal(t, "/home", sub.FormParam("return"))
	assert.Equal(t, "/home", newTestEnv(t).svc.FormParam(sub, "return"))
}
