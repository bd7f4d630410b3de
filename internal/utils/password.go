package utils

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// dummyHash is compared against when the account does not exist so that an
// unknown username costs the same bcrypt work as a wrong password.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("shopease-no-such-user"), bcrypt.DefaultCost)

// HashPassword returns bcrypt hash using the given cost.
func HashPassword(plain string, cost int) (string, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	b, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// VerifyPassword safely compares bcrypt hash and plain password.
func VerifyPassword(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

// BurnPasswordCheck performs a throwaway comparison.
func BurnPasswordCheck(plain string) {
	_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(plain))
}

// IsPasswordTooLong reports whether bcrypt would refuse plain.
func IsPasswordTooLong(plain string) bool {
	_, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.MinCost)
	return errors.Is(err, bcrypt.ErrPasswordTooLong)
}
