package auth

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

type FinalizePasswordResetMessage struct {
	Token    string `json:"token" example:"350399bc-c095-4bdc-a59c-3352d44848e4" doc:"Reset password token"`
	Password string `json:"password" example:"some_secret_word" doc:"Password"`
}

func (p FinalizePasswordResetMessage) Type() string { return "user.password_reset_finalize" }

// FinalizePasswordResetHandler exchanges a reset token for a new
// password.
type FinalizePasswordResetHandler struct {
	resets *ResetManager
}

// NewFinalizePasswordResetHandler creates a handler with sane defaults.
func NewFinalizePasswordResetHandler(resets *ResetManager) *FinalizePasswordResetHandler {
	return &FinalizePasswordResetHandler{resets: resets}
}

func (h *FinalizePasswordResetHandler) Execute(ctx context.Context, event FinalizePasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset finalization",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *FinalizePasswordResetHandler) execute(ctx context.Context, event FinalizePasswordResetMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	if _, err := h.resets.Consume(ctx, event.Token, event.Password); err != nil {
		return err
	}

	return nil
}
