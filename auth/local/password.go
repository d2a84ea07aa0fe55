package local

import (
	"unicode"

	apperrors "github.com/sigea-app/sigea/internal/errors"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 8

// ValidatePasswordStrength requires at least eight characters with an upper
// case letter, a lower case letter and a digit.
func ValidatePasswordStrength(password string) error {
	if len(password) < minPasswordLength {
		return apperrors.Wrapf(apperrors.ErrWeakPassword, "password must be at least %d characters long", minPasswordLength)
	}

	var (
		hasUpper  bool
		hasLower  bool
		hasNumber bool
	)

	for _, char := range password {
		if unicode.IsUpper(char) {
			hasUpper = true
		} else if unicode.IsLower(char) {
			hasLower = true
		} else if unicode.IsDigit(char) {
			hasNumber = true
		}
	}

	if !hasUpper {
		return apperrors.Wrapf(apperrors.ErrWeakPassword, "password must contain at least one uppercase letter")
	}
	if !hasLower {
		return apperrors.Wrapf(apperrors.ErrWeakPassword, "password must contain at least one lowercase letter")
	}
	if !hasNumber {
		return apperrors.Wrapf(apperrors.ErrWeakPassword, "password must contain at least one number")
	}
	return nil
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}
