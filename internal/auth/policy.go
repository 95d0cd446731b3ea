package auth

import (
	"fmt"
	"strings"
)

// PasswordSpecials is the fixed set of special characters a password must
// draw at least one character from.
const PasswordSpecials = "@$!%*?&"

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 8

// PolicyViolation lists what a password is missing. It is returned by
// CheckPasswordStrength and never wraps another error.
type PolicyViolation struct {
	Problems []string
}

func (v *PolicyViolation) Error() string {
	return "auth: weak password: " + strings.Join(v.Problems, ", ")
}

// CheckPasswordStrength enforces the registration password policy: at
// least MinPasswordLength characters, at least one lowercase letter, one
// uppercase letter, one digit and one of PasswordSpecials, and nothing
// outside [A-Za-z0-9] plus PasswordSpecials.
func CheckPasswordStrength(password string) error {
	var problems []string

	if len(password) < MinPasswordLength {
		problems = append(problems, fmt.Sprintf("at least %d characters", MinPasswordLength))
	}

	var hasLower, hasUpper, hasDigit, hasSpecial, hasOther bool
	for _, ch := range password {
		switch {
		case ch >= 'a' && ch <= 'z':
			hasLower = true
		case ch >= 'A' && ch <= 'Z':
			hasUpper = true
		case ch >= '0' && ch <= '9':
			hasDigit = true
		case strings.ContainsRune(PasswordSpecials, ch):
			hasSpecial = true
		default:
			hasOther = true
		}
	}

	if !hasLower {
		problems = append(problems, "one lowercase letter")
	}
	if !hasUpper {
		problems = append(problems, "one uppercase letter")
	}
	if !hasDigit {
		problems = append(problems, "one number")
	}
	if !hasSpecial {
		problems = append(problems, "one special character ("+PasswordSpecials+")")
	}
	if hasOther {
		problems = append(problems, "only letters, numbers and "+PasswordSpecials)
	}

	if len(problems) > 0 {
		return &PolicyViolation{Problems: problems}
	}
	return nil
}
