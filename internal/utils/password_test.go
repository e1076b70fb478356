package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestHashPassword_RoundTrip(t *testing.T) {
	hash, err := HashPassword("Password1!", bcrypt.MinCost)
	require.NoError(t, err)

	assert.NotEqual(t, "Password1!", hash)
	assert.True(t, VerifyPassword(hash, "Password1!"))
	assert.False(t, VerifyPassword(hash, "Password1?"))
	assert.False(t, VerifyPassword("not-a-hash", "Password1!"))
}

func TestHashPassword_FreshSalt(t *testing.T) {
	a, err := HashPassword("Password1!", bcrypt.MinCost)
	require.NoError(t, err)
	b, err := HashPassword("Password1!", bcrypt.MinCost)
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestDefaultPasswordPolicy(t *testing.T) {
	policy := DefaultPasswordPolicy(8)

	tests := []struct {
		name      string
		password  string
		wantValid bool
		wantErrs  int
	}{
		{name: "strong", password: "Password1!", wantValid: true},
		{name: "too short", password: "Pa1!", wantErrs: 1},
		{name: "no upper", password: "password1!", wantErrs: 1},
		{name: "no lower", password: "PASSWORD1!", wantErrs: 1},
		{name: "no digit", password: "Password!!", wantErrs: 1},
		{name: "no symbol", password: "Password12", wantErrs: 1},
		{name: "empty", password: "", wantErrs: 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := policy.Validate(tt.password)
			assert.Equal(t, tt.wantValid, res.IsValid)
			assert.Len(t, res.Errors, tt.wantErrs)
		})
	}
}

func TestPasswordPolicy_CustomRules(t *testing.T) {
	policy := PasswordPolicy{Rules: []PasswordRule{MinLengthRule(12)}}

	res := policy.Validate("short")
	assert.False(t, res.IsValid)
	assert.Equal(t, []string{"password must be at least 12 characters long"}, res.Errors)

	assert.True(t, policy.Validate("long enough password").IsValid)
}

func TestDefaultPasswordPolicy_MinimumNeverBelowEight(t *testing.T) {
	policy := DefaultPasswordPolicy(4)
	res := policy.Validate("Pa1!xyz")
	assert.False(t, res.IsValid)
	assert.Contains(t, res.Errors, "password must be at least 8 characters long")
}
