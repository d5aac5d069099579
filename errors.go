package auth

import (
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

// Text codes surfaced to clients alongside the HTTP status. These are the
// stable identifiers; messages may be reworded freely.
const (
	TextCodeTokenMalformed  = "TOKEN_MALFORMED"
	TextCodeTokenSignature  = "TOKEN_SIGNATURE_INVALID"
	TextCodeTokenExpired    = "TOKEN_EXPIRED"
	TextCodeAccountNotFound = "ACCOUNT_NOT_FOUND"
	TextCodeNoPendingCode   = "NO_PENDING_CODE"
	TextCodeCodeMismatch    = "CODE_MISMATCH"
	TextCodeCodeExpired     = "CODE_EXPIRED"
	TextCodeResetInvalid    = "RESET_TOKEN_INVALID"
	TextCodeResetExpired    = "RESET_TOKEN_EXPIRED"
	TextCodeBadCredentials  = "BAD_CREDENTIALS"
	TextCodeAccountDisabled = "ACCOUNT_DISABLED"
	TextCodeTooManyAttempts = "TOO_MANY_LOGIN_ATTEMPTS"
	TextCodeMailDelivery    = "NOTIFICATION_DELIVERY_FAILED"
	TextCodeReauthenticate  = "REAUTHENTICATION_REQUIRED"
	TextCodeUsernameTaken   = "USERNAME_TAKEN"
	TextCodeEmailTaken      = "EMAIL_TAKEN"
	textCodeEmptyCredential = "EMPTY_CREDENTIAL"
)

// Token verification outcomes. All three are unauthenticated-class results,
// never 500s: a caller holding a bad token is a client problem.
var (
	// ErrTokenMalformed means the artifact is not even a JWT (wrong segment
	// count, bad base64). Distinct from a well-formed token that fails its
	// signature check.
	ErrTokenMalformed = goerrors.New("authentication token is malformed", goerrors.CategoryAuth).
				WithTextCode(TextCodeTokenMalformed).
				WithCode(goerrors.CodeUnauthorized)

	// ErrTokenSignatureInvalid means the payload or signature was tampered with.
	ErrTokenSignatureInvalid = goerrors.New("authentication token signature is invalid", goerrors.CategoryAuth).
					WithTextCode(TextCodeTokenSignature).
					WithCode(goerrors.CodeUnauthorized)

	// ErrTokenExpired means the token verified but is past its expiry instant.
	ErrTokenExpired = goerrors.New("authentication token has expired", goerrors.CategoryAuth).
			WithTextCode(TextCodeTokenExpired).
			WithCode(goerrors.CodeUnauthorized)
)

// One-time-code verification outcomes.
var (
	ErrAccountNotFound = goerrors.New("account not found", goerrors.CategoryNotFound).
				WithTextCode(TextCodeAccountNotFound).
				WithCode(goerrors.CodeNotFound)

	ErrNoPendingCode = goerrors.New("no verification code is pending for this account", goerrors.CategoryConflict).
				WithTextCode(TextCodeNoPendingCode).
				WithCode(goerrors.CodeConflict)

	ErrCodeMismatch = goerrors.New("verification code does not match", goerrors.CategoryValidation).
			WithTextCode(TextCodeCodeMismatch).
			WithCode(goerrors.CodeBadRequest)

	// ErrCodeExpired leaves the stored code in place. The caller has to
	// request a fresh one; expiry never clears the slot on its own.
	ErrCodeExpired = goerrors.New("verification code has expired", goerrors.CategoryValidation).
			WithTextCode(TextCodeCodeExpired).
			WithCode(goerrors.CodeBadRequest)
)

// Password-reset outcomes.
var (
	ErrResetTokenInvalid = goerrors.New("invalid password reset token", goerrors.CategoryNotFound).
				WithTextCode(TextCodeResetInvalid).
				WithCode(goerrors.CodeNotFound)

	ErrResetTokenExpired = goerrors.New("password reset token has expired", goerrors.CategoryValidation).
				WithTextCode(TextCodeResetExpired).
				WithCode(goerrors.CodeBadRequest)
)

// Login outcomes.
var (
	// ErrMismatchedHashAndPassword covers both unknown identifiers and wrong
	// passwords so the two are indistinguishable to a caller probing accounts.
	ErrMismatchedHashAndPassword = goerrors.New("invalid credentials", goerrors.CategoryAuth).
					WithTextCode(TextCodeBadCredentials).
					WithCode(goerrors.CodeUnauthorized)

	// ErrAccountDisabled is returned for valid credentials against a disabled
	// account. Unverified and suspended accounts report identically.
	ErrAccountDisabled = goerrors.New("account is disabled", goerrors.CategoryAuth).
				WithTextCode(TextCodeAccountDisabled).
				WithCode(goerrors.CodeForbidden)

	ErrTooManyLoginAttempts = goerrors.New("too many login attempts, try again later", goerrors.CategoryAuth).
				WithTextCode(TextCodeTooManyAttempts).
				WithCode(goerrors.CodeUnauthorized)
)

// Registration conflicts.
var (
	ErrUsernameTaken = goerrors.New("username is already registered", goerrors.CategoryConflict).
				WithTextCode(TextCodeUsernameTaken).
				WithCode(goerrors.CodeConflict)

	ErrEmailTaken = goerrors.New("email is already registered", goerrors.CategoryConflict).
			WithTextCode(TextCodeEmailTaken).
			WithCode(goerrors.CodeConflict)
)

// ErrNotificationDelivery is returned when the outbound mailer reports a
// failure; never swallowed silently.
var ErrNotificationDelivery = goerrors.New("failed to deliver notification", goerrors.CategoryOperation).
	WithTextCode(TextCodeMailDelivery).
	WithCode(goerrors.CodeInternal)

// ErrNoEmptyString guards hashing and token generation inputs.
var ErrNoEmptyString = goerrors.New("value must not be empty", goerrors.CategoryBadInput).
	WithTextCode(textCodeEmptyCredential).
	WithCode(goerrors.CodeBadRequest)

// ErrIdentityNotFound is the error we return for non found identities.
var ErrIdentityNotFound = goerrors.New("identity not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeAccountNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrUnableToFindSession is the error when our request has no cookie.
var ErrUnableToFindSession = goerrors.New("unable to find session", goerrors.CategoryAuth).
	WithCode(goerrors.CodeUnauthorized)

// ErrUnableToDecodeSession unable to decode JWT from session cookie.
var ErrUnableToDecodeSession = goerrors.New("unable to decode session", goerrors.CategoryAuth).
	WithCode(goerrors.CodeUnauthorized)

// ErrUnableToMapClaims unable to get claims from token.
var ErrUnableToMapClaims = goerrors.New("unable to map claims", goerrors.CategoryAuth).
	WithCode(goerrors.CodeUnauthorized)

// ErrUnableToParseData parse error.
var ErrUnableToParseData = goerrors.New("unable to parse data", goerrors.CategoryBadInput).
	WithCode(goerrors.CodeBadRequest)

// IsTokenExpiredError will check for expired tokens
func IsTokenExpiredError(err error) bool {
	if err == nil {
		return false
	}
	if goerrors.Is(err, ErrTokenExpired) {
		return true
	}
	return strings.Contains(err.Error(), "token is expired")
}

// IsMalformedError will check for error message
func IsMalformedError(err error) bool {
	if err == nil {
		return false
	}
	if goerrors.Is(err, ErrTokenMalformed) {
		return true
	}
	return strings.Contains(err.Error(), "token is malformed") ||
		strings.Contains(err.Error(), "missing or malformed JWT")
}
