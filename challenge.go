package auth

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// VerificationCodeLength is the number of digits in a one-time code.
const VerificationCodeLength = 6

var verificationCodeMax = big.NewInt(1_000_000)

// NewVerificationCode generates a zero-padded numeric one-time code using
// a CSPRNG. Leading zeros are preserved, so "004217" is a valid code.
func NewVerificationCode() (string, error) {
	n, err := rand.Int(rand.Reader, verificationCodeMax)
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to generate verification code")
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// NewResetToken generates an opaque password reset token.
func NewResetToken() string {
	return uuid.NewString()
}

func newTokenID() string {
	return uuid.NewString()
}
