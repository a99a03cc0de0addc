package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-identity-quota/internal/domain"
	"github.com/go-identity-quota/internal/pkg/id"
	"github.com/go-identity-quota/internal/pkg/keylock"
	"github.com/go-identity-quota/internal/pkg/validate"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/go-identity-quota/internal/application/auth")

// IdentityStore persists identities keyed by normalized email.
type IdentityStore interface {
	// Create returns domain.ErrConflict when the email is taken.
	Create(ctx context.Context, ident *domain.Identity) error
	// FindByEmail returns domain.ErrNotFound when absent.
	FindByEmail(ctx context.Context, email string) (*domain.Identity, error)
	MarkVerified(ctx context.Context, email string) error
	UpdatePassword(ctx context.Context, email, digest string) error
	Delete(ctx context.Context, email string) (bool, error)
}

type CodeStore interface {
	Issue(ctx context.Context, email string) (string, error)
	Validate(ctx context.Context, email, candidate string) (bool, error)
}

type ResetStore interface {
	Issue(email string) (string, error)
	// Consume deletes and returns a live entry; Restore puts one back.
	Consume(token string) (domain.ResetToken, bool)
	Restore(t domain.ResetToken)
}

type EmailSender interface {
	Send(ctx context.Context, to, subject, body string) error
}

type PasswordHasher interface {
	Hash(plain string) (string, error)
	Verify(plain, digest string) bool
}

type AuditSink interface {
	Record(ctx context.Context, ev domain.AuditEvent) error
}

// TokenSigner issues bearer tokens for verified logins.
type TokenSigner interface {
	Sign(identityID, email string) (string, error)
}

// Observer receives the result of every operation, e.g. for metrics.
type Observer interface {
	AuthOutcome(op string, err error)
}

type LoginOutcome int

const (
	LoginSucceeded LoginOutcome = iota
	VerificationRequired
)

func (o LoginOutcome) String() string {
	if o == VerificationRequired {
		return "verification_required"
	}
	return "succeeded"
}

// LoginResult is the non-error outcome of Login. IdentityID and Bearer are only set on success.
type LoginResult struct {
	Outcome    LoginOutcome
	IdentityID string
	Bearer     string
}

// SessionInfo is what a returning client learns about its saved identity.
type SessionInfo struct {
	Name              string `json:"name"`
	SubscriptionLevel int    `json:"subscription_level"`
}

type Service interface {
	Register(ctx context.Context, req domain.RegisterRequest, client domain.ClientInfo) error
	Verify(ctx context.Context, email, code string, client domain.ClientInfo) error
	Login(ctx context.Context, email, password string, client domain.ClientInfo) (*LoginResult, error)
	Resend(ctx context.Context, email string) error
	RequestPasswordReset(ctx context.Context, email string) error
	ConfirmPasswordReset(ctx context.Context, token, newPassword string) error
	Session(ctx context.Context, email, identityID string, client domain.ClientInfo) (*SessionInfo, error)
	SignOut(ctx context.Context, email string, client domain.ClientInfo) error
	DeleteAccount(ctx context.Context, email string) error
}

// ServiceDeps wires the collaborators of the auth service. Signer, Audit and Observer are optional.
type ServiceDeps struct {
	Identities IdentityStore
	Codes      CodeStore
	Resets     ResetStore
	Mailer     EmailSender
	Hasher     PasswordHasher
	Clock      clockwork.Clock
	Signer     TokenSigner
	Audit      AuditSink
	Observer   Observer
}

type service struct {
	ServiceDeps
	locks *keylock.Map
}

func NewService(d ServiceDeps) Service {
	if d.Clock == nil {
		d.Clock = clockwork.NewRealClock()
	}
	return &service{ServiceDeps: d, locks: keylock.New()}
}

func (s *service) Register(ctx context.Context, req domain.RegisterRequest, client domain.ClientInfo) (err error) {
	email := domain.NormalizeEmail(req.Email)
	ctx, span := s.start(ctx, "register", email)
	defer func() { s.finish(span, "register", err) }()

	if !validate.Email(email) {
		return fmt.Errorf("register %q: %w", req.Email, domain.ErrInvalidEmailFormat)
	}
	digest, err := s.Hasher.Hash(req.Password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	unlock := s.locks.Lock(email)
	defer unlock()

	ident := &domain.Identity{
		ID:                id.New(),
		Email:             email,
		PasswordDigest:    digest,
		DisplayName:       req.Name,
		RegisteredAt:      s.Clock.Now().UTC(),
		SubscriptionLevel: domain.LowestTier,
	}
	if err := s.Identities.Create(ctx, ident); err != nil {
		return err
	}
	s.audit(ctx, domain.AuditRegistered, email, client)
	return s.issueAndSend(ctx, email)
}

func (s *service) Verify(ctx context.Context, email, code string, client domain.ClientInfo) (err error) {
	email = domain.NormalizeEmail(email)
	ctx, span := s.start(ctx, "verify", email)
	defer func() { s.finish(span, "verify", err) }()

	unlock := s.locks.Lock(email)
	defer unlock()

	if _, err := s.Identities.FindByEmail(ctx, email); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrInvalidOrExpiredCode
		}
		return err
	}
	ok, err := s.Codes.Validate(ctx, email, code)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrInvalidOrExpiredCode
	}
	if err := s.Identities.MarkVerified(ctx, email); err != nil {
		return fmt.Errorf("mark verified: %w", err)
	}
	s.audit(ctx, domain.AuditVerified, email, client)
	return nil
}

// Login never distinguishes an unknown email from a wrong password. For an unverified identity it
// issues and sends a fresh code and reports VerificationRequired.
func (s *service) Login(ctx context.Context, email, password string, client domain.ClientInfo) (res *LoginResult, err error) {
	email = domain.NormalizeEmail(email)
	ctx, span := s.start(ctx, "login", email)
	defer func() {
		if res != nil {
			span.SetAttributes(attribute.String("login.outcome", res.Outcome.String()))
		}
		s.finish(span, "login", err)
	}()

	unlock := s.locks.Lock(email)
	defer unlock()

	ident, err := s.Identities.FindByEmail(ctx, email)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !s.Hasher.Verify(password, ident.PasswordDigest) {
		return nil, domain.ErrInvalidCredentials
	}

	if !ident.Verified {
		if err := s.issueAndSend(ctx, email); err != nil {
			return nil, err
		}
		return &LoginResult{Outcome: VerificationRequired}, nil
	}

	res = &LoginResult{Outcome: LoginSucceeded, IdentityID: ident.ID}
	if s.Signer != nil {
		bearer, err := s.Signer.Sign(ident.ID, email)
		if err != nil {
			return nil, fmt.Errorf("sign bearer: %w", err)
		}
		res.Bearer = bearer
	}
	s.audit(ctx, domain.AuditLogin, email, client)
	return res, nil
}

func (s *service) Resend(ctx context.Context, email string) (err error) {
	email = domain.NormalizeEmail(email)
	ctx, span := s.start(ctx, "resend", email)
	defer func() { s.finish(span, "resend", err) }()

	unlock := s.locks.Lock(email)
	defer unlock()

	ident, err := s.Identities.FindByEmail(ctx, email)
	if err != nil {
		return err
	}
	if ident.Verified {
		return domain.ErrAlreadyVerified
	}
	return s.issueAndSend(ctx, email)
}

// RequestPasswordReset reports success once the token is issued; delivery problems are only logged.
func (s *service) RequestPasswordReset(ctx context.Context, email string) (err error) {
	email = domain.NormalizeEmail(email)
	ctx, span := s.start(ctx, "reset_request", email)
	defer func() { s.finish(span, "reset_request", err) }()

	if _, err := s.Identities.FindByEmail(ctx, email); err != nil {
		return err
	}
	token, err := s.Resets.Issue(email)
	if err != nil {
		return fmt.Errorf("issue reset token: %w", err)
	}
	body := fmt.Sprintf("Your password reset code is %s. It expires in %d minutes.",
		token, int(domain.ResetTokenValidity.Minutes()))
	if err := s.Mailer.Send(ctx, email, "Password reset", body); err != nil {
		slog.Warn("reset delivery failed", "email", email, "err", err)
	}
	return nil
}

func (s *service) ConfirmPasswordReset(ctx context.Context, token, newPassword string) (err error) {
	ctx, span := s.start(ctx, "reset_confirm", "")
	defer func() { s.finish(span, "reset_confirm", err) }()

	digest, err := s.Hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	rt, ok := s.Resets.Consume(token)
	if !ok {
		return domain.ErrInvalidOrExpiredToken
	}

	unlock := s.locks.Lock(rt.Email)
	defer unlock()

	if err := s.Identities.UpdatePassword(ctx, rt.Email, digest); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrInvalidOrExpiredToken
		}
		// The token stays usable when the new password could not be stored.
		s.Resets.Restore(rt)
		return err
	}
	return nil
}

// Session confirms that identityID is still the identity registered under email.
func (s *service) Session(ctx context.Context, email, identityID string, client domain.ClientInfo) (info *SessionInfo, err error) {
	email = domain.NormalizeEmail(email)
	ctx, span := s.start(ctx, "session", email)
	defer func() { s.finish(span, "session", err) }()

	ident, err := s.Identities.FindByEmail(ctx, email)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if ident.ID != identityID {
		return nil, domain.ErrInvalidCredentials
	}
	s.audit(ctx, domain.AuditAutoLogin, email, client)
	return &SessionInfo{Name: ident.DisplayName, SubscriptionLevel: ident.SubscriptionLevel}, nil
}

func (s *service) SignOut(ctx context.Context, email string, client domain.ClientInfo) error {
	email = domain.NormalizeEmail(email)
	ctx, span := s.start(ctx, "sign_out", email)
	defer func() { s.finish(span, "sign_out", nil) }()

	s.audit(ctx, domain.AuditSignedOut, email, client)
	return nil
}

func (s *service) DeleteAccount(ctx context.Context, email string) (err error) {
	email = domain.NormalizeEmail(email)
	ctx, span := s.start(ctx, "delete_account", email)
	defer func() { s.finish(span, "delete_account", err) }()

	unlock := s.locks.Lock(email)
	defer unlock()

	deleted, err := s.Identities.Delete(ctx, email)
	if err != nil {
		return err
	}
	if !deleted {
		return domain.ErrNotFound
	}
	return nil
}

// issueAndSend must be called with the email lock held. The code stays stored when delivery fails.
func (s *service) issueAndSend(ctx context.Context, email string) error {
	code, err := s.Codes.Issue(ctx, email)
	if err != nil {
		return err
	}
	body := fmt.Sprintf("Your verification code is %s. It expires in %d minutes.",
		code, int(domain.CodeValidity.Minutes()))
	if err := s.Mailer.Send(ctx, email, "Your verification code", body); err != nil {
		slog.Warn("code delivery failed", "email", email, "err", err)
		return fmt.Errorf("send code: %w: %w", domain.ErrDeliveryFailed, err)
	}
	return nil
}

func (s *service) audit(ctx context.Context, status, email string, client domain.ClientInfo) {
	if s.Audit == nil {
		return
	}
	ev := domain.AuditEvent{
		Status:     status,
		At:         s.Clock.Now().UTC(),
		Email:      email,
		IP:         client.IP,
		UserAgent:  client.UserAgent,
		DeviceID:   client.DeviceID,
		DeviceName: client.DeviceName,
	}
	if err := s.Audit.Record(ctx, ev); err != nil {
		slog.Warn("audit record failed", "status", status, "err", err)
	}
}

func (s *service) start(ctx context.Context, op, email string) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, "auth."+op)
	if email != "" {
		span.SetAttributes(attribute.String("auth.email_domain", emailDomain(email)))
	}
	return ctx, span
}

func (s *service) finish(span trace.Span, op string, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, domain.KindOf(err))
	}
	span.End()
	if s.Observer != nil {
		s.Observer.AuthOutcome(op, err)
	}
}

func emailDomain(email string) string {
	if i := strings.LastIndexByte(email, '@'); i >= 0 {
		return email[i+1:]
	}
	return ""
}
