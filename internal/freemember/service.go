// Package freemember implements member login, registration, profile updates
// and password resets on top of a domain.MemberRepository.
package freemember

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nfrund/freemember/internal/captcha"
	"github.com/nfrund/freemember/internal/config"
	"github.com/nfrund/freemember/internal/domain"
	"github.com/nfrund/freemember/internal/email"
	"github.com/nfrund/freemember/internal/password"
	"github.com/nfrund/freemember/internal/pubsub"
)

// BannedGroup is the member group that may not log in.
const BannedGroup = "banned"

// CaptchaVerifier checks a captcha answer.
type CaptchaVerifier interface {
	Verify(id, answer string) bool
}

// Service holds the member business rules.
type Service struct {
	repo    domain.MemberRepository
	hasher  *password.Hasher
	captcha CaptchaVerifier
	mailer  domain.EmailSender
	events  pubsub.Publisher
	cfg     config.Provider
	check   *checker
	logger  *slog.Logger
	now     func() time.Time
}

// NewService wires a Service. events may be nil.
func NewService(
	repo domain.MemberRepository,
	hasher *password.Hasher,
	captcha CaptchaVerifier,
	mailer domain.EmailSender,
	events pubsub.Publisher,
	cfg config.Provider,
) *Service {
	return &Service{
		repo:    repo,
		hasher:  hasher,
		captcha: captcha,
		mailer:  mailer,
		events:  events,
		cfg:     cfg,
		check:   newChecker(repo.CustomFields()),
		logger:  slog.Default(),
		now:     time.Now,
	}
}

// CanRegister returns a message explaining why current may not register, or
// "" when the registration form can be shown.
func (s *Service) CanRegister(ctx context.Context, current *domain.Member) string {
	if current != nil {
		return MsgAlreadyLoggedIn
	}
	if !s.cfg.GetAllowRegistration() {
		return MsgRegistrationDisabled
	}
	return ""
}

// CanUpdate returns a message explaining why current may not edit a profile.
func (s *Service) CanUpdate(ctx context.Context, current *domain.Member) string {
	if current == nil {
		return MsgMustBeLoggedIn
	}
	return ""
}

// CurrentMember loads the member with memberID. An empty id, or one that no
// longer exists, means a guest.
func (s *Service) CurrentMember(ctx context.Context, memberID string) (*domain.Member, error) {
	if memberID == "" {
		return nil, nil
	}
	m, err := s.repo.FindByID(ctx, memberID)
	if errors.Is(err, domain.ErrMemberNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading current member: %w", err)
	}
	return m, nil
}

// Login checks the submitted credentials. The member is identified by email
// when one is posted and by username otherwise.
func (s *Service) Login(ctx context.Context, sub Submission) (*domain.Member, domain.FieldErrors, error) {
	errs := domain.FieldErrors{}

	email, username := sub.Value("email"), sub.Value("username")
	if email == "" && username == "" {
		errs.Add("email", requiredMsg(s.check.label("email")))
	}
	pass := sub.Raw("password")
	if pass == "" {
		errs.Add("password", requiredMsg(s.check.label("password")))
	}
	if len(errs) > 0 {
		return nil, errs, nil
	}

	member, err := s.authenticate(ctx, email, username, pass)
	if errors.Is(err, domain.ErrInvalidCredentials) {
		errs.Add("password", MsgInvalidLogin)
		return nil, errs, nil
	}
	if err != nil {
		return nil, nil, err
	}
	if member.GroupID == BannedGroup {
		errs.Add("email", MsgBanned)
		return nil, errs, nil
	}

	now := s.now().UTC()
	member.LastLogin = &now
	if s.hasher.NeedsRehash(member.Password) {
		if hash, err := s.hasher.Hash(pass); err == nil {
			member.Password = hash
		}
	}
	if err := s.repo.Update(ctx, member); err != nil {
		return nil, nil, fmt.Errorf("recording login: %w", err)
	}

	s.publish(ctx, pubsub.TopicMemberLoggedIn, member)
	return member, nil, nil
}

// authenticate finds the member by email, or by username when no email is
// given, and checks pass against the stored hash. Unknown members and wrong
// passwords both yield domain.ErrInvalidCredentials.
func (s *Service) authenticate(ctx context.Context, email, username, pass string) (*domain.Member, error) {
	var (
		member *domain.Member
		err    error
	)
	if email != "" {
		member, err = s.repo.FindByEmail(ctx, email)
	} else {
		member, err = s.repo.FindByUsername(ctx, username)
	}
	if err != nil {
		return nil, fmt.Errorf("looking up member: %w", err)
	}
	if member == nil {
		return nil, domain.ErrInvalidCredentials
	}

	ok, err := s.hasher.Verify(pass, member.Password)
	if err != nil {
		s.logger.WarnContext(ctx, "Stored password hash is unreadable", "member_id", member.ID, "error", err)
	}
	if !ok {
		return nil, domain.ErrInvalidCredentials
	}
	return member, nil
}

// Register creates a member from the submitted form.
func (s *Service) Register(ctx context.Context, sub Submission) (*domain.Member, domain.FieldErrors, error) {
	errs := domain.FieldErrors{}
	member := &domain.Member{GroupID: s.cfg.GetDefaultGroup()}

	for _, field := range s.repo.MemberFields() {
		member.SetField(field, s.check.clean(sub.Value(field)))
	}
	for _, f := range s.repo.CustomFields() {
		value := s.check.clean(sub.Value(f.Name))
		s.check.check(errs, f.Name, value, customRules(f))
		member.SetField(f.Column(), value)
	}

	if s.check.check(errs, "email", member.Email, "required,email") && sub.Posted("email_confirm") {
		s.check.match(errs, "email_confirm", sub.Value("email_confirm"), member.Email, MsgEmailMismatch)
	}
	if member.Username == "" {
		member.Username = member.Email
	}
	if member.ScreenName == "" {
		member.ScreenName = member.Username
	}

	pass := sub.Raw("password")
	if s.check.check(errs, "password", pass, passwordRules(s.cfg.GetMinPasswordLength())) {
		s.check.match(errs, "password_confirm", sub.Raw("password_confirm"), pass, MsgPasswordMismatch)
	}

	if sub.FormParam("require_terms") == "yes" && sub.Value("accept_terms") == "" {
		errs.Add("accept_terms", MsgAcceptTerms)
	}
	if s.cfg.GetUseMembershipCaptcha() && !s.captcha.Verify(sub.Value(captcha.IDField), sub.Value(captcha.AnswerField)) {
		errs.Add("captcha", MsgCaptcha)
	}

	if err := s.checkUnique(ctx, errs, member, nil); err != nil {
		return nil, nil, err
	}
	if len(errs) > 0 {
		return nil, errs, nil
	}

	hash, err := s.hasher.Hash(pass)
	if err != nil {
		return nil, nil, fmt.Errorf("hashing password: %w", err)
	}
	member.Password = hash

	created, err := s.repo.Create(ctx, member)
	if errors.Is(err, domain.ErrMemberExists) {
		// Lost a race with a concurrent registration.
		errs.Add("email", MsgEmailTaken)
		return nil, errs, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("creating member: %w", err)
	}

	s.publish(ctx, pubsub.TopicMemberRegistered, created)
	return created, nil, nil
}

// UpdateProfile applies the posted fields to member. Only fields present in
// the submission change. Changing the email, username or password needs the
// current password.
func (s *Service) UpdateProfile(ctx context.Context, member *domain.Member, sub Submission) (domain.FieldErrors, error) {
	if member == nil {
		return domain.FieldErrors{"email": MsgMustBeLoggedIn}, nil
	}
	errs := domain.FieldErrors{}
	updated := *member
	updated.Custom = make(map[string]string, len(member.Custom))
	for k, v := range member.Custom {
		updated.Custom[k] = v
	}

	for _, field := range s.repo.MemberFields() {
		if sub.Posted(field) {
			updated.SetField(field, s.check.clean(sub.Value(field)))
		}
	}
	for _, f := range s.repo.CustomFields() {
		if !sub.Posted(f.Name) {
			continue
		}
		value := s.check.clean(sub.Value(f.Name))
		s.check.check(errs, f.Name, value, customRules(f))
		updated.SetField(f.Column(), value)
	}

	sensitive := false
	if sub.Posted("email") {
		if s.check.check(errs, "email", updated.Email, "required,email") && sub.Posted("email_confirm") {
			s.check.match(errs, "email_confirm", sub.Value("email_confirm"), updated.Email, MsgEmailMismatch)
		}
		sensitive = sensitive || !strings.EqualFold(updated.Email, member.Email)
	}
	if sub.Posted("username") {
		s.check.check(errs, "username", updated.Username, "required")
		sensitive = sensitive || updated.Username != member.Username
	}
	if sub.Posted("screen_name") && updated.ScreenName == "" {
		updated.ScreenName = updated.Username
	}

	newPass := sub.Raw("password")
	if newPass != "" {
		if s.check.check(errs, "password", newPass, passwordRules(s.cfg.GetMinPasswordLength())) {
			s.check.match(errs, "password_confirm", sub.Raw("password_confirm"), newPass, MsgPasswordMismatch)
		}
		sensitive = true
	}

	if sensitive {
		ok, _ := s.hasher.Verify(sub.Raw("current_password"), member.Password)
		if !ok {
			errs.Add("current_password", MsgCurrentPassword)
		}
	}

	if err := s.checkUnique(ctx, errs, &updated, member); err != nil {
		return nil, err
	}
	if len(errs) > 0 {
		return errs, nil
	}

	if newPass != "" {
		hash, err := s.hasher.Hash(newPass)
		if err != nil {
			return nil, fmt.Errorf("hashing password: %w", err)
		}
		updated.Password = hash
	}
	if err := s.repo.Update(ctx, &updated); err != nil {
		if errors.Is(err, domain.ErrMemberExists) {
			errs.Add("email", MsgEmailTaken)
			return errs, nil
		}
		return nil, fmt.Errorf("updating member: %w", err)
	}
	*member = updated

	s.publish(ctx, pubsub.TopicMemberUpdated, member)
	return nil, nil
}

// ForgotPassword emails a reset link to the submitted address. Unknown
// addresses are not reported so the form cannot be used to probe accounts.
func (s *Service) ForgotPassword(ctx context.Context, sub Submission) (domain.FieldErrors, error) {
	errs := domain.FieldErrors{}
	addr := sub.Value("email")
	if !s.check.check(errs, "email", addr, "required,email") {
		return errs, nil
	}

	member, err := s.repo.FindByEmail(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("looking up member: %w", err)
	}
	if member == nil {
		s.logger.InfoContext(ctx, "Password reset requested for unknown email", "email", addr)
		return nil, nil
	}

	code, err := newResetCode()
	if err != nil {
		return nil, err
	}
	expires := s.now().UTC().Add(s.cfg.GetResetCodeTTL())
	member.ResetCode = code
	member.ResetCodeExpires = &expires
	if err := s.repo.Update(ctx, member); err != nil {
		return nil, fmt.Errorf("storing reset code: %w", err)
	}

	link := s.resetURL(sub, code)
	if err := s.mailer.Send(member.Email, email.ResetPasswordSubject, email.ResetPasswordBody(member.ScreenName, link)); err != nil {
		return nil, fmt.Errorf("sending reset email: %w", err)
	}

	s.publish(ctx, pubsub.TopicPasswordResetRequested, member)
	return nil, nil
}

// ResetPassword sets a new password for the member holding the posted reset
// code and clears the code.
func (s *Service) ResetPassword(ctx context.Context, sub Submission) (*domain.Member, domain.FieldErrors, error) {
	errs := domain.FieldErrors{}

	member, err := s.memberByResetCode(ctx, sub.Value("reset_code"))
	if errors.Is(err, domain.ErrInvalidResetCode) {
		errs.Add("reset_code", MsgInvalidResetCode)
	} else if err != nil {
		return nil, nil, err
	}

	pass := sub.Raw("password")
	if s.check.check(errs, "password", pass, passwordRules(s.cfg.GetMinPasswordLength())) {
		s.check.match(errs, "password_confirm", sub.Raw("password_confirm"), pass, MsgPasswordMismatch)
	}
	if len(errs) > 0 {
		return nil, errs, nil
	}

	hash, err := s.hasher.Hash(pass)
	if err != nil {
		return nil, nil, fmt.Errorf("hashing password: %w", err)
	}
	member.Password = hash
	member.ResetCode = ""
	member.ResetCodeExpires = nil
	if err := s.repo.Update(ctx, member); err != nil {
		return nil, nil, fmt.Errorf("updating member: %w", err)
	}

	s.publish(ctx, pubsub.TopicPasswordReset, member)
	return member, nil, nil
}

// memberByResetCode returns the member holding a non-expired reset code,
// or domain.ErrInvalidResetCode.
func (s *Service) memberByResetCode(ctx context.Context, code string) (*domain.Member, error) {
	if code == "" {
		return nil, domain.ErrInvalidResetCode
	}
	member, err := s.repo.FindByResetCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("looking up reset code: %w", err)
	}
	if member == nil {
		return nil, domain.ErrInvalidResetCode
	}
	return member, nil
}

// Logout records that member logged out. Guests are ignored.
func (s *Service) Logout(ctx context.Context, member *domain.Member) {
	if member != nil {
		s.publish(ctx, pubsub.TopicMemberLoggedOut, member)
	}
}

// WrapError wraps msg in the delimiters of the submitted form.
func (s *Service) WrapError(params map[string]string, msg string) string {
	return WrapError(params, msg)
}

// FormParam returns a tag parameter of the submitted form.
func (s *Service) FormParam(sub Submission, name string) string {
	return sub.FormParam(name)
}

// checkUnique records errors when another member already uses the email or
// username of m. current is the member being edited, nil on registration.
func (s *Service) checkUnique(ctx context.Context, errs domain.FieldErrors, m, current *domain.Member) error {
	if m.Email != "" && !errs.Has("email") && (current == nil || !strings.EqualFold(m.Email, current.Email)) {
		other, err := s.repo.FindByEmail(ctx, m.Email)
		if err != nil {
			return fmt.Errorf("checking email: %w", err)
		}
		if other != nil && (current == nil || other.ID != current.ID) {
			errs.Add("email", MsgEmailTaken)
		}
	}
	if m.Username != "" && !errs.Has("username") && (current == nil || !strings.EqualFold(m.Username, current.Username)) {
		other, err := s.repo.FindByUsername(ctx, m.Username)
		if err != nil {
			return fmt.Errorf("checking username: %w", err)
		}
		if other != nil && (current == nil || other.ID != current.ID) {
			errs.Add("username", MsgUsernameTaken)
		}
	}
	return nil
}

// resetURL builds the link sent in the reset email. The form's reset
// parameter names the page holding the reset_password tag.
func (s *Service) resetURL(sub Submission, code string) string {
	base := s.cfg.GetAppBaseURL()
	target := strings.Trim(sub.FormParam("reset"), "/")
	switch {
	case target == "":
		return base + "/reset_password/" + code
	case strings.HasPrefix(target, "http://"), strings.HasPrefix(target, "https://"):
		return target + "/" + code
	default:
		return base + "/" + target + "/" + code
	}
}

func (s *Service) publish(ctx context.Context, topic string, m *domain.Member) {
	if s.events == nil {
		return
	}
	ev := pubsub.MemberEvent{MemberID: m.ID, Username: m.Username, Email: m.Email, OccurredAt: s.now().UTC()}
	if err := pubsub.PublishMemberEvent(ctx, s.events, topic, ev); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish member event", "topic", topic, "member_id", m.ID, "error", err)
	}
}

func newResetCode() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating reset code: %w", err)
	}
	return hex.EncodeToString(b), nil
}
