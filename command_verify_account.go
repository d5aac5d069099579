package auth

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

type VerifyAccountMessage struct {
	Identifier string `json:"identifier"`
	Code       string `json:"code"`
	OnResponse func(resp *VerifyAccountResponse)
}

func (e VerifyAccountMessage) Type() string { return "user.verify_account" }

type VerifyAccountResponse struct {
	User    *User  `json:"user,omitempty"`
	Token   string `json:"token,omitempty"`
	Success bool   `json:"success"`
}

// VerifyAccountHandler consumes a one-time code and, on success, issues a
// session token so the freshly enabled account is logged in immediately.
type VerifyAccountHandler struct {
	codes  *CodeVerifier
	tokens TokenService
}

// NewVerifyAccountHandler wires the handler with its collaborators.
func NewVerifyAccountHandler(codes *CodeVerifier, tokens TokenService) *VerifyAccountHandler {
	return &VerifyAccountHandler{
		codes:  codes,
		tokens: tokens,
	}
}

func (h *VerifyAccountHandler) Execute(ctx context.Context, event VerifyAccountMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during account verification",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *VerifyAccountHandler) execute(ctx context.Context, event VerifyAccountMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	user, err := h.codes.VerifyCode(ctx, event.Identifier, event.Code)
	if err != nil {
		return err
	}

	resp := &VerifyAccountResponse{
		User:    user,
		Success: true,
	}

	if h.tokens != nil {
		token, err := h.tokens.Issue(NewIdentityFromUser(user))
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to issue token after verification")
		}
		resp.Token = token
	}

	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}

type ResendVerificationMessage struct {
	Identifier string `json:"identifier"`
}

func (e ResendVerificationMessage) Type() string { return "user.resend_verification" }

// ResendVerificationHandler issues a replacement code for accounts that
// still have an open challenge.
type ResendVerificationHandler struct {
	codes *CodeVerifier
}

// NewResendVerificationHandler wires the handler with its collaborators.
func NewResendVerificationHandler(codes *CodeVerifier) *ResendVerificationHandler {
	return &ResendVerificationHandler{codes: codes}
}

func (h *ResendVerificationHandler) Execute(ctx context.Context, event ResendVerificationMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during verification resend",
		)
	default:
		ctx, cancel := context.WithTimeout(ctx, time.Second*10)
		defer cancel()
		return h.codes.ResendCode(ctx, event.Identifier)
	}
}
