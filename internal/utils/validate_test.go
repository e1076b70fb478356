package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateEmail(t *testing.T) {
	tests := []struct {
		email   string
		wantErr bool
	}{
		{"alice@x.com", false},
		{" alice.b+news@mail.example.org ", false},
		{"", true},
		{"alice", true},
		{"alice@x", true},
		{"@x.com", true},
		{strings.Repeat("a", 250) + "@x.com", true},
	}
	for _, tt := range tests {
		t.Run(tt.email, func(t *testing.T) {
			err := ValidateEmail(tt.email)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateUsername(t *testing.T) {
	tests := []struct {
		username string
		wantErr  bool
	}{
		{"alice", false},
		{"a.b-c_1", false},
		{"", true},
		{"ab", true},
		{strings.Repeat("a", 33), true},
		{"alice smith", true},
		{"alice@x", true},
	}
	for _, tt := range tests {
		t.Run(tt.username, func(t *testing.T) {
			err := ValidateUsername(tt.username)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateName(t *testing.T) {
	assert.NoError(t, ValidateName("first_name", "Zoë"))
	assert.EqualError(t, ValidateName("first_name", "  "), "first_name is required")
	assert.Error(t, ValidateName("last_name", strings.Repeat("é", 101)))
}
