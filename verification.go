package auth

import (
	"context"
	"crypto/subtle"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// DefaultVerificationCodeTTL is the window a one-time code stays valid.
var DefaultVerificationCodeTTL = 10 * time.Minute

// CodeVerifier manages the one-time email verification codes that gate
// new accounts. Codes are single use: consumption is delegated to the
// repository's compare-and-clear update, so of N concurrent submissions
// of the same code exactly one succeeds.
type CodeVerifier struct {
	repo     RepositoryManager
	mailer   Mailer
	activity ActivitySink
	logger   Logger
	codeTTL  time.Duration
	now      func() time.Time
}

// NewCodeVerifier creates a verifier with sane defaults.
func NewCodeVerifier(repo RepositoryManager) *CodeVerifier {
	return &CodeVerifier{
		repo:     repo,
		mailer:   NewLogMailer(nil),
		activity: noopActivitySink{},
		logger:   defLogger{},
		codeTTL:  DefaultVerificationCodeTTL,
		now:      time.Now,
	}
}

// WithMailer sets the outbound mailer.
func (v *CodeVerifier) WithMailer(m Mailer) *CodeVerifier {
	v.mailer = normalizeMailer(m)
	return v
}

// WithActivitySink sets the sink used to emit verification events.
func (v *CodeVerifier) WithActivitySink(sink ActivitySink) *CodeVerifier {
	v.activity = normalizeActivitySink(sink)
	return v
}

// WithLogger overrides the logger used by the verifier.
func (v *CodeVerifier) WithLogger(logger Logger) *CodeVerifier {
	if logger != nil {
		v.logger = logger
	}
	return v
}

// WithCodeTTL overrides the validity window for new codes.
func (v *CodeVerifier) WithCodeTTL(ttl time.Duration) *CodeVerifier {
	if ttl > 0 {
		v.codeTTL = ttl
	}
	return v
}

// WithClock injects a custom time source (useful for tests).
func (v *CodeVerifier) WithClock(clock func() time.Time) *CodeVerifier {
	if clock != nil {
		v.now = clock
	}
	return v
}

// RequestCode issues a fresh code for the account, overwriting whatever
// challenge was stored before, and mails it out.
func (v *CodeVerifier) RequestCode(ctx context.Context, identifier string) error {
	user, err := v.findAccount(ctx, identifier)
	if err != nil {
		return err
	}

	return v.issueCode(ctx, user)
}

// ResendCode issues a replacement code. Unlike RequestCode it requires an
// open challenge: accounts that already verified get ErrNoPendingCode.
func (v *CodeVerifier) ResendCode(ctx context.Context, identifier string) error {
	user, err := v.findAccount(ctx, identifier)
	if err != nil {
		return err
	}

	if !user.Verification.IsOpen() {
		return ErrNoPendingCode
	}

	return v.issueCode(ctx, user)
}

// VerifyCode checks a submitted code against the stored challenge and, on
// success, consumes it and enables the account. The checks are ordered:
// a missing account wins over a missing challenge, a mismatch wins over
// expiry. An expired code is left in place so the caller can observe the
// same error until a new code is requested.
func (v *CodeVerifier) VerifyCode(ctx context.Context, identifier, code string) (*User, error) {
	user, err := v.findAccount(ctx, identifier)
	if err != nil {
		return nil, err
	}

	if !user.Verification.IsOpen() {
		return nil, ErrNoPendingCode
	}

	if subtle.ConstantTimeCompare([]byte(user.Verification.Value), []byte(code)) != 1 {
		return nil, ErrCodeMismatch
	}

	if user.Verification.IsExpired(v.now()) {
		return nil, ErrCodeExpired
	}

	updated, err := v.repo.Users().ConsumeVerificationCode(ctx, user.ID, code)
	if err != nil {
		// the compare-and-clear found no matching row: someone else
		// consumed the code between our read and this write
		if goerrors.IsNotFound(err) {
			return nil, ErrNoPendingCode
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to consume verification code")
	}

	v.recordEvent(ctx, ActivityEventVerificationSuccess, updated, nil)

	return updated, nil
}

func (v *CodeVerifier) issueCode(ctx context.Context, user *User) error {
	code, err := NewVerificationCode()
	if err != nil {
		return err
	}

	expires := v.now().Add(v.codeTTL)
	challenge := Challenge{Value: code, ExpiresAt: &expires}

	if _, err := v.repo.Users().SetVerificationChallenge(ctx, user.ID, challenge); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to store verification code")
	}

	if err := v.mailer.SendVerificationCode(ctx, user.Email, code); err != nil {
		return WrapDeliveryError(err, user.Email)
	}

	v.recordEvent(ctx, ActivityEventVerificationRequested, user, map[string]any{
		"expires_at": expires,
	})

	return nil
}

func (v *CodeVerifier) findAccount(ctx context.Context, identifier string) (*User, error) {
	user, err := v.repo.Users().GetByIdentifier(ctx, identifier)
	if err != nil {
		if goerrors.IsNotFound(err) {
			return nil, ErrAccountNotFound
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve account")
	}
	return user, nil
}

func (v *CodeVerifier) recordEvent(ctx context.Context, eventType ActivityEventType, user *User, metadata map[string]any) {
	if user == nil {
		return
	}

	event := ActivityEvent{
		EventType:  eventType,
		Actor:      ActorRef{ID: user.ID.String(), Type: "user"},
		UserID:     user.ID.String(),
		Metadata:   metadata,
		OccurredAt: v.now(),
	}

	if err := normalizeActivitySink(v.activity).Record(ctx, event); err != nil {
		v.logger.Warn("activity sink error during verification: %v", err)
	}
}
