package auth

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// DefaultResetTokenTTL is the window a reset token stays valid.
var DefaultResetTokenTTL = time.Hour

// ResetManager handles the password reset token lifecycle. An account has
// at most one open reset window; initiating again overwrites the previous
// token. Consumption is a compare-and-clear swap of the password hash, so
// a token can change the password exactly once.
type ResetManager struct {
	repo     RepositoryManager
	mailer   Mailer
	activity ActivitySink
	logger   Logger
	tokenTTL time.Duration
	now      func() time.Time
}

// NewResetManager creates a manager with sane defaults.
func NewResetManager(repo RepositoryManager) *ResetManager {
	return &ResetManager{
		repo:     repo,
		mailer:   NewLogMailer(nil),
		activity: noopActivitySink{},
		logger:   defLogger{},
		tokenTTL: DefaultResetTokenTTL,
		now:      time.Now,
	}
}

// WithMailer sets the outbound mailer.
func (r *ResetManager) WithMailer(m Mailer) *ResetManager {
	r.mailer = normalizeMailer(m)
	return r
}

// WithActivitySink sets the sink used to emit reset events.
func (r *ResetManager) WithActivitySink(sink ActivitySink) *ResetManager {
	r.activity = normalizeActivitySink(sink)
	return r
}

// WithLogger overrides the logger used by the manager.
func (r *ResetManager) WithLogger(logger Logger) *ResetManager {
	if logger != nil {
		r.logger = logger
	}
	return r
}

// WithTokenTTL overrides the validity window for new tokens.
func (r *ResetManager) WithTokenTTL(ttl time.Duration) *ResetManager {
	if ttl > 0 {
		r.tokenTTL = ttl
	}
	return r
}

// WithClock injects a custom time source (useful for tests).
func (r *ResetManager) WithClock(clock func() time.Time) *ResetManager {
	if clock != nil {
		r.now = clock
	}
	return r
}

// Initiate opens a reset window for the account registered under email
// and mails the token. ErrAccountNotFound is internal: HTTP callers must
// respond uniformly whether or not the account exists.
func (r *ResetManager) Initiate(ctx context.Context, email string) (string, error) {
	user, err := r.repo.Users().GetByEmail(ctx, email)
	if err != nil {
		if goerrors.IsNotFound(err) {
			return "", ErrAccountNotFound
		}
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve account for password reset")
	}

	token := NewResetToken()
	expires := r.now().Add(r.tokenTTL)
	challenge := Challenge{Value: token, ExpiresAt: &expires}

	if _, err := r.repo.Users().SetResetChallenge(ctx, user.ID, challenge); err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to store reset token")
	}

	if err := r.mailer.SendPasswordResetLink(ctx, user.Email, token); err != nil {
		return "", WrapDeliveryError(err, user.Email)
	}

	r.recordEvent(ctx, ActivityEventPasswordResetRequest, user, map[string]any{
		"expires_at": expires,
	})

	return token, nil
}

// Consume exchanges a reset token for a new password. Unknown tokens map
// to ErrResetTokenInvalid, stale ones to ErrResetTokenExpired; an expired
// token is left in place until a new Initiate overwrites it. Losing a
// race against a concurrent consume reports ErrResetTokenInvalid, same as
// a token that never existed.
func (r *ResetManager) Consume(ctx context.Context, token, newPassword string) (*User, error) {
	user, err := r.repo.Users().GetByResetToken(ctx, token)
	if err != nil {
		if goerrors.IsNotFound(err) {
			return nil, ErrResetTokenInvalid
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve reset request")
	}

	if user.Reset.IsExpired(r.now()) {
		return nil, ErrResetTokenExpired
	}

	passwordHash, err := HashPassword(newPassword)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid new password provided")
	}

	updated, err := r.repo.Users().ConsumeResetToken(ctx, user.ID, token, passwordHash)
	if err != nil {
		if goerrors.IsNotFound(err) {
			return nil, ErrResetTokenInvalid
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update user password")
	}

	r.recordEvent(ctx, ActivityEventPasswordResetSuccess, updated, nil)

	return updated, nil
}

func (r *ResetManager) recordEvent(ctx context.Context, eventType ActivityEventType, user *User, metadata map[string]any) {
	if user == nil {
		return
	}

	event := ActivityEvent{
		EventType:  eventType,
		Actor:      ActorRef{ID: user.ID.String(), Type: "user"},
		UserID:     user.ID.String(),
		Metadata:   metadata,
		OccurredAt: r.now(),
	}

	if err := normalizeActivitySink(r.activity).Record(ctx, event); err != nil {
		r.logger.Warn("activity sink error during password reset: %v", err)
	}
}
