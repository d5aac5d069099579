package auth_test

import (
	"context"
	"testing"

	"github.com/campusboard/go-auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterUserHandler(t *testing.T) {
	ctx := context.Background()

	t.Run("creates a disabled account and mails a code", func(t *testing.T) {
		repo := newMemRepo()
		mailer := newRecordingMailer()
		handler := auth.NewRegisterUserHandler(repo, auth.NewCodeVerifier(repo).WithMailer(mailer))

		var created *auth.User
		err := handler.Execute(ctx, auth.RegisterUserMessage{
			FirstName:  "Ada",
			LastName:   "Lovelace",
			Email:      "ada@example.edu",
			Password:   testPassword,
			OnResponse: func(user *auth.User) { created = user },
		})
		require.NoError(t, err)
		require.NotNil(t, created)

		// username falls back to the email local part
		assert.Equal(t, "ada", created.Username)
		assert.Equal(t, auth.RoleStudent, created.Role)
		assert.False(t, created.Enabled)
		assert.Equal(t, auth.UserStandingPending, created.Standing())
		assert.NoError(t, auth.ComparePasswordAndHash(testPassword, created.PasswordHash))

		code := mailer.CodeFor("ada@example.edu")
		require.Len(t, code, auth.VerificationCodeLength)

		stored, err := repo.Users().GetByIdentifier(ctx, "ada@example.edu")
		require.NoError(t, err)
		assert.Equal(t, code, stored.Verification.Value)
	})

	t.Run("rejects a taken username", func(t *testing.T) {
		repo := newMemRepo(&auth.User{
			Username: "ada",
			Email:    "other@example.edu",
		})
		handler := auth.NewRegisterUserHandler(repo, nil)

		err := handler.Execute(ctx, auth.RegisterUserMessage{
			Username: "ada",
			Email:    "ada@example.edu",
			Password: testPassword,
		})
		assert.ErrorIs(t, err, auth.ErrUsernameTaken)
	})

	t.Run("rejects a taken email", func(t *testing.T) {
		repo := newMemRepo(&auth.User{
			Username: "someone-else",
			Email:    "ada@example.edu",
		})
		handler := auth.NewRegisterUserHandler(repo, nil)

		err := handler.Execute(ctx, auth.RegisterUserMessage{
			Username: "ada",
			Email:    "ada@example.edu",
			Password: testPassword,
		})
		assert.ErrorIs(t, err, auth.ErrEmailTaken)
	})

	t.Run("rejects an empty password", func(t *testing.T) {
		repo := newMemRepo()
		handler := auth.NewRegisterUserHandler(repo, nil)

		err := handler.Execute(ctx, auth.RegisterUserMessage{
			Username: "ada",
			Email:    "ada@example.edu",
		})
		assert.Error(t, err)
	})

	t.Run("aborts on a cancelled context", func(t *testing.T) {
		repo := newMemRepo()
		handler := auth.NewRegisterUserHandler(repo, nil)

		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		err := handler.Execute(cancelled, auth.RegisterUserMessage{
			Username: "ada",
			Email:    "ada@example.edu",
			Password: testPassword,
		})
		assert.Error(t, err)
	})
}
