package auth

import (
	"fmt"
	"strings"
	"unicode"
)

const (
	MinPasswordLen = 10
	// bcrypt only considers the first 72 bytes, longer inputs would
	// silently truncate
	MaxPasswordLen = 72
)

// Frequently attempted passwords, rejected regardless of composition
var commonPasswords = map[string]bool{
	"password":     true,
	"password1":    true,
	"password123":  true,
	"passw0rd":     true,
	"12345678":     true,
	"123456789":    true,
	"1234567890":   true,
	"qwertzuiop":   true,
	"qwertyuiop":   true,
	"letmein":      true,
	"welcome1":     true,
	"sonnenschein": true,
	"schalke04":    true,
	"hallo123":     true,
}

// ValidatePassword enforces the password policy for new passwords
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLen {
		return fmt.Errorf("password must be at least %d characters", MinPasswordLen)
	}
	if len(password) > MaxPasswordLen {
		return fmt.Errorf("password must be at most %d characters", MaxPasswordLen)
	}
	if commonPasswords[strings.ToLower(password)] {
		return fmt.Errorf("password is too common, please choose another one")
	}

	var hasLetter, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	if !hasLetter || !hasDigit {
		return fmt.Errorf("password must contain at least one letter and one digit")
	}

	return nil
}
