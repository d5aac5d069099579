package auth

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
)

// AuthStatus tags the outcome of an authentication attempt.
type AuthStatus string

const (
	// AuthStatusAuthenticated means a principal was established.
	AuthStatusAuthenticated AuthStatus = "authenticated"
	// AuthStatusUnauthenticated means no usable credentials were presented.
	// The request may still proceed anonymously.
	AuthStatusUnauthenticated AuthStatus = "unauthenticated"
	// AuthStatusRejected means credentials were presented and refused.
	AuthStatusRejected AuthStatus = "rejected"
)

// AuthAttempt carries whatever credentials accompanied a request. Either
// or both fields may be empty.
type AuthAttempt struct {
	Token      string
	Identifier string
	Password   string
}

// AuthOutcome is the result of running the pipeline.
type AuthOutcome struct {
	Status    AuthStatus
	Principal Identity
	Token     string
	// MustReauthenticate is set when a previously valid session was
	// refused because the account is no longer in good standing. The
	// caller should drop the session and force a fresh login.
	MustReauthenticate bool
	Reason             error
}

// Pipeline runs the three authentication stages in order: bearer token,
// credential login, then live standing enforcement. Stage one failures
// downgrade to unauthenticated rather than rejecting, so an expired token
// on an anonymous-friendly route just loses its principal. Stage three
// re-reads the account so a suspension takes effect on the next request
// even while old tokens are still cryptographically valid.
type Pipeline struct {
	auther Authenticator
	users  Users
	logger Logger
}

// NewPipeline assembles the authentication pipeline.
func NewPipeline(auther Authenticator, users Users) *Pipeline {
	return &Pipeline{
		auther: auther,
		users:  users,
		logger: defLogger{},
	}
}

// WithLogger overrides the pipeline logger.
func (p *Pipeline) WithLogger(logger Logger) *Pipeline {
	if logger != nil {
		p.logger = logger
	}
	return p
}

// Run executes the pipeline for a single request.
func (p *Pipeline) Run(ctx context.Context, attempt AuthAttempt) AuthOutcome {
	outcome := AuthOutcome{Status: AuthStatusUnauthenticated}

	if attempt.Token != "" {
		outcome = p.bearerTokenStage(ctx, attempt.Token)
	}

	if outcome.Status != AuthStatusAuthenticated && attempt.Identifier != "" {
		outcome = p.credentialLoginStage(ctx, attempt.Identifier, attempt.Password)
		if outcome.Status == AuthStatusRejected {
			return outcome
		}
	}

	if outcome.Status == AuthStatusAuthenticated {
		outcome = p.standingEnforcementStage(ctx, outcome)
	}

	return outcome
}

// bearerTokenStage resolves a presented token into a principal. Any
// token error, expired included, downgrades to unauthenticated.
func (p *Pipeline) bearerTokenStage(ctx context.Context, token string) AuthOutcome {
	session, err := p.auther.SessionFromToken(token)
	if err != nil {
		p.logger.Debug("bearer token rejected, continuing unauthenticated", "error", err)
		return AuthOutcome{Status: AuthStatusUnauthenticated}
	}

	identity, err := p.auther.IdentityFromSession(ctx, session)
	if err != nil {
		p.logger.Debug("token session has no resolvable identity", "error", err)
		return AuthOutcome{Status: AuthStatusUnauthenticated}
	}

	return AuthOutcome{
		Status:    AuthStatusAuthenticated,
		Principal: identity,
		Token:     token,
	}
}

// credentialLoginStage exchanges an identifier and password for a fresh
// token. Unlike the token stage, failures here are terminal rejections.
func (p *Pipeline) credentialLoginStage(ctx context.Context, identifier, password string) AuthOutcome {
	token, err := p.auther.Login(ctx, identifier, password)
	if err != nil {
		return AuthOutcome{
			Status: AuthStatusRejected,
			Reason: err,
		}
	}

	session, err := p.auther.SessionFromToken(token)
	if err != nil {
		return AuthOutcome{
			Status: AuthStatusRejected,
			Reason: goerrors.Wrap(err, goerrors.CategoryInternal, "freshly issued token failed validation"),
		}
	}

	identity, err := p.auther.IdentityFromSession(ctx, session)
	if err != nil {
		return AuthOutcome{
			Status: AuthStatusRejected,
			Reason: err,
		}
	}

	return AuthOutcome{
		Status:    AuthStatusAuthenticated,
		Principal: identity,
		Token:     token,
	}
}

// standingEnforcementStage re-reads the account record and refuses
// principals whose accounts are no longer active. This is the only
// revocation mechanism: tokens stay cryptographically valid across a
// suspend/reinstate cycle, so a reinstated account's unexpired token
// works again without reissue.
func (p *Pipeline) standingEnforcementStage(ctx context.Context, outcome AuthOutcome) AuthOutcome {
	if outcome.Principal == nil {
		return outcome
	}

	user, err := p.users.GetByID(ctx, outcome.Principal.ID())
	if err != nil {
		if goerrors.IsNotFound(err) {
			return AuthOutcome{
				Status:             AuthStatusRejected,
				MustReauthenticate: true,
				Reason:             ErrAccountNotFound,
			}
		}
		return AuthOutcome{
			Status:             AuthStatusRejected,
			MustReauthenticate: true,
			Reason:             goerrors.Wrap(err, goerrors.CategoryInternal, "failed to re-read account standing"),
		}
	}

	if err := standingAuthError(user.Standing()); err != nil {
		return AuthOutcome{
			Status:             AuthStatusRejected,
			MustReauthenticate: true,
			Reason:             err,
		}
	}

	return outcome
}
