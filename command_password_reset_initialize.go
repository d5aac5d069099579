package auth

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

type InitializePasswordResetMessage struct {
	Email      string `json:"email" example:"pepe.rone@example.com" doc:"Account email."`
	OnResponse func(resp *InitializePasswordResetResponse)
}

func (p InitializePasswordResetMessage) Type() string { return "user.password_reset" }

type InitializePasswordResetResponse struct {
	// Token is only populated when an account matched; HTTP callers must
	// not leak whether it did.
	Token   string
	Success bool
}

// InitializePasswordResetHandler opens a reset window. A missing account
// is absorbed here: the response reports success either way so the
// boundary stays uniform.
type InitializePasswordResetHandler struct {
	resets *ResetManager
}

// NewInitializePasswordResetHandler wires the handler with its collaborators.
func NewInitializePasswordResetHandler(resets *ResetManager) *InitializePasswordResetHandler {
	return &InitializePasswordResetHandler{resets: resets}
}

func (h *InitializePasswordResetHandler) Execute(ctx context.Context, event InitializePasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset initialization",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *InitializePasswordResetHandler) execute(ctx context.Context, event InitializePasswordResetMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	resp := &InitializePasswordResetResponse{}

	token, err := h.resets.Initiate(ctx, event.Email)
	if err != nil {
		if !goerrors.Is(err, ErrAccountNotFound) {
			return err
		}
	} else {
		resp.Token = token
	}

	resp.Success = true
	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}
