package otpcode

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"math/big"
)

// Digits is the length of every generated code.
const Digits = 6

var upper = big.NewInt(1_000_000)

// New returns a cryptographically random zero-padded 6-digit code.
func New() (string, error) {
	n, err := rand.Int(rand.Reader, upper)
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return fmt.Sprintf("%0*d", Digits, n.Int64()), nil
}

// Equal compares a stored code with a candidate in constant time.
func Equal(stored, candidate string) bool {
	return subtle.ConstantTimeCompare([]byte(stored), []byte(candidate)) == 1
}
