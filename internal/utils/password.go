package utils

import (
	"strconv"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

// HashPassword returns bcrypt hash using the given cost.  bcrypt draws a
// fresh salt on every call, so hashing the same input twice yields two
// different strings.
func HashPassword(plain string, cost int) (string, error) {
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

// PasswordRule is one named predicate of a PasswordPolicy.  Message is
// reported when Check returns false.
type PasswordRule struct {
	Name    string
	Message string
	Check   func(password string) bool
}

// PasswordPolicy is an ordered list of rules; every unmet rule yields one
// error.
type PasswordPolicy struct {
	Rules []PasswordRule
}

// PasswordCheck is the outcome of PasswordPolicy.Validate.
type PasswordCheck struct {
	IsValid bool     `json:"is_valid"`
	Errors  []string `json:"errors,omitempty"`
}

// Validate runs every rule against password.
func (p PasswordPolicy) Validate(password string) PasswordCheck {
	var errs []string
	for _, r := range p.Rules {
		if !r.Check(password) {
			errs = append(errs, r.Message)
		}
	}
	return PasswordCheck{IsValid: len(errs) == 0, Errors: errs}
}

// MinLengthRule requires at least n characters.
func MinLengthRule(n int) PasswordRule {
	return PasswordRule{
		Name:    "min_length",
		Message: "password must be at least " + strconv.Itoa(n) + " characters long",
		Check:   func(pw string) bool { return len([]rune(pw)) >= n },
	}
}

// UpperRule requires an upper-case letter.
func UpperRule() PasswordRule {
	return PasswordRule{Name: "uppercase", Message: "password must contain an uppercase letter", Check: hasRune(unicode.IsUpper)}
}

// LowerRule requires a lower-case letter.
func LowerRule() PasswordRule {
	return PasswordRule{Name: "lowercase", Message: "password must contain a lowercase letter", Check: hasRune(unicode.IsLower)}
}

// DigitRule requires a decimal digit.
func DigitRule() PasswordRule {
	return PasswordRule{Name: "digit", Message: "password must contain a number", Check: hasRune(unicode.IsDigit)}
}

// SymbolRule requires punctuation or a symbol.
func SymbolRule() PasswordRule {
	return PasswordRule{
		Name:    "symbol",
		Message: "password must contain a special character",
		Check: hasRune(func(r rune) bool {
			return unicode.IsPunct(r) || unicode.IsSymbol(r)
		}),
	}
}

// DefaultPasswordPolicy enforces the minimum length plus upper, lower,
// digit and symbol composition.
func DefaultPasswordPolicy(minLength int) PasswordPolicy {
	if minLength < 8 {
		minLength = 8
	}
	return PasswordPolicy{Rules: []PasswordRule{
		MinLengthRule(minLength),
		UpperRule(),
		LowerRule(),
		DigitRule(),
		SymbolRule(),
	}}
}

func hasRune(pred func(rune) bool) func(string) bool {
	return func(s string) bool {
		for _, r := range s {
			if pred(r) {
				return true
			}
		}
		return false
	}
}
