package auth_test

import (
	"context"
	"testing"

	"github.com/campusboard/go-auth"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyAccountHandler(t *testing.T) {
	ctx := context.Background()
	cfg := newTestConfig()

	setup := func(t *testing.T) (*memRepo, *recordingMailer, *auth.CodeVerifier) {
		t.Helper()
		repo := newMemRepo(&auth.User{
			Username: "pending-peggy",
			Email:    "peggy@example.edu",
		})
		mailer := newRecordingMailer()
		codes := auth.NewCodeVerifier(repo).WithMailer(mailer)
		require.NoError(t, codes.RequestCode(ctx, "pending-peggy"))
		return repo, mailer, codes
	}

	t.Run("verifies the account and issues a session token", func(t *testing.T) {
		_, mailer, codes := setup(t)
		tokens := auth.NewTokenService(
			[]byte(cfg.GetSigningKey()),
			cfg.GetTokenExpiration(),
			cfg.GetIssuer(),
			jwt.ClaimStrings(cfg.GetAudience()),
			nil,
		)
		handler := auth.NewVerifyAccountHandler(codes, tokens)

		var resp *auth.VerifyAccountResponse
		err := handler.Execute(ctx, auth.VerifyAccountMessage{
			Identifier: "pending-peggy",
			Code:       mailer.CodeFor("peggy@example.edu"),
			OnResponse: func(r *auth.VerifyAccountResponse) { resp = r },
		})
		require.NoError(t, err)
		require.NotNil(t, resp)

		assert.True(t, resp.Success)
		require.NotNil(t, resp.User)
		assert.True(t, resp.User.Enabled)
		require.NotEmpty(t, resp.Token)

		claims, err := tokens.Validate(resp.Token)
		require.NoError(t, err)
		assert.Equal(t, resp.User.ID.String(), claims.UserID())
	})

	t.Run("works without a token service", func(t *testing.T) {
		_, mailer, codes := setup(t)
		handler := auth.NewVerifyAccountHandler(codes, nil)

		var resp *auth.VerifyAccountResponse
		err := handler.Execute(ctx, auth.VerifyAccountMessage{
			Identifier: "pending-peggy",
			Code:       mailer.CodeFor("peggy@example.edu"),
			OnResponse: func(r *auth.VerifyAccountResponse) { resp = r },
		})
		require.NoError(t, err)
		require.NotNil(t, resp)
		assert.True(t, resp.Success)
		assert.Empty(t, resp.Token)
	})

	t.Run("propagates verification errors", func(t *testing.T) {
		_, mailer, codes := setup(t)
		handler := auth.NewVerifyAccountHandler(codes, nil)

		wrong := "000000"
		if wrong == mailer.CodeFor("peggy@example.edu") {
			wrong = "000001"
		}

		err := handler.Execute(ctx, auth.VerifyAccountMessage{
			Identifier: "pending-peggy",
			Code:       wrong,
		})
		assert.ErrorIs(t, err, auth.ErrCodeMismatch)
	})
}

func TestResendVerificationHandler(t *testing.T) {
	ctx := context.Background()

	t.Run("resends an open challenge", func(t *testing.T) {
		repo := newMemRepo(&auth.User{
			Username: "pending-peggy",
			Email:    "peggy@example.edu",
		})
		mailer := newRecordingMailer()
		codes := auth.NewCodeVerifier(repo).WithMailer(mailer)
		require.NoError(t, codes.RequestCode(ctx, "pending-peggy"))

		handler := auth.NewResendVerificationHandler(codes)

		err := handler.Execute(ctx, auth.ResendVerificationMessage{Identifier: "pending-peggy"})
		require.NoError(t, err)

		user, err := repo.Users().GetByIdentifier(ctx, "pending-peggy")
		require.NoError(t, err)
		assert.Equal(t, mailer.CodeFor("peggy@example.edu"), user.Verification.Value)
	})

	t.Run("refuses verified accounts", func(t *testing.T) {
		repo := newMemRepo(&auth.User{
			Username: "verified-vern",
			Email:    "vern@example.edu",
			Enabled:  true,
		})
		handler := auth.NewResendVerificationHandler(auth.NewCodeVerifier(repo))

		err := handler.Execute(ctx, auth.ResendVerificationMessage{Identifier: "verified-vern"})
		assert.ErrorIs(t, err, auth.ErrNoPendingCode)
	})
}
