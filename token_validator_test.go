package auth_test

import (
	"testing"

	"github.com/campusboard/go-auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenValidatorFunc(t *testing.T) {
	t.Run("delegates to the wrapped function", func(t *testing.T) {
		called := false
		v := auth.TokenValidatorFunc(func(tokenString string) (auth.AuthClaims, error) {
			called = true
			assert.Equal(t, "raw-token", tokenString)
			return &auth.JWTClaims{UID: "user-123"}, nil
		})

		claims, err := v.Validate("raw-token")
		require.NoError(t, err)
		assert.True(t, called)
		assert.Equal(t, "user-123", claims.UserID())
	})

	t.Run("nil func rejects", func(t *testing.T) {
		var v auth.TokenValidatorFunc
		_, err := v.Validate("raw-token")
		assert.Error(t, err)
	})
}

func TestMultiTokenValidator(t *testing.T) {
	good := auth.TokenValidatorFunc(func(string) (auth.AuthClaims, error) {
		return &auth.JWTClaims{UID: "user-123"}, nil
	})
	malformed := auth.TokenValidatorFunc(func(string) (auth.AuthClaims, error) {
		return nil, auth.ErrTokenMalformed
	})
	expired := auth.TokenValidatorFunc(func(string) (auth.AuthClaims, error) {
		return nil, auth.ErrTokenExpired
	})

	t.Run("malformed falls through to the next validator", func(t *testing.T) {
		v := auth.NewMultiTokenValidator(malformed, good)

		claims, err := v.Validate("raw-token")
		require.NoError(t, err)
		assert.Equal(t, "user-123", claims.UserID())
	})

	t.Run("non-malformed errors are terminal", func(t *testing.T) {
		v := auth.NewMultiTokenValidator(expired, good)

		_, err := v.Validate("raw-token")
		assert.ErrorIs(t, err, auth.ErrTokenExpired)
	})

	t.Run("all malformed returns the last error", func(t *testing.T) {
		v := auth.NewMultiTokenValidator(malformed, malformed)

		_, err := v.Validate("raw-token")
		assert.ErrorIs(t, err, auth.ErrTokenMalformed)
	})

	t.Run("no validators", func(t *testing.T) {
		v := auth.NewMultiTokenValidator(nil)

		_, err := v.Validate("raw-token")
		assert.ErrorIs(t, err, auth.ErrTokenMalformed)
	})
}

func TestErrorClassifiers(t *testing.T) {
	assert.True(t, auth.IsTokenExpiredError(auth.ErrTokenExpired))
	assert.False(t, auth.IsTokenExpiredError(auth.ErrTokenMalformed))
	assert.False(t, auth.IsTokenExpiredError(nil))

	assert.True(t, auth.IsMalformedError(auth.ErrTokenMalformed))
	assert.False(t, auth.IsMalformedError(auth.ErrTokenExpired))
	assert.False(t, auth.IsMalformedError(nil))
}
