package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMailboxNameValidator(t *testing.T) {
	validator := NewMailboxNameValidator(5, 25, []string{"admin", "postmaster", "support"})

	tests := []struct {
		name    string
		input   string
		want    string
		wantErr error
	}{
		{"Valid name", "swift-fox", "swift-fox", nil},
		{"Valid with dots and underscore", "jane.doe_01", "jane.doe_01", nil},
		{"Trims whitespace", "  swift-fox ", "swift-fox", nil},
		{"Keeps case", "Swift-Fox", "Swift-Fox", nil},
		{"Exactly min length", "abcde", "", ErrMailboxNameTooShort},
		{"One over min length", "abcdef", "abcdef", nil},
		{"Exactly max length", "abcdefghijklmnopqrstuvwxy", "", ErrMailboxNameTooLong},
		{"One under max length", "abcdefghijklmnopqrstuvwx", "abcdefghijklmnopqrstuvwx", nil},
		{"Empty", "", "", ErrMailboxNameInvalid},
		{"Inner space", "swift fox", "", ErrMailboxNameInvalid},
		{"Contains @", "swift@fox", "", ErrMailboxNameInvalid},
		{"Starts with dash", "-swiftfox", "", ErrMailboxNameInvalid},
		{"Reserved", "postmaster", "", ErrMailboxNameReserved},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := validator.Validate(tt.input)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMailboxNameValidatorDefaults(t *testing.T) {
	validator := NewMailboxNameValidator(0, 0, nil)

	_, err := validator.Validate("abcde")
	assert.ErrorIs(t, err, ErrMailboxNameTooShort)

	got, err := validator.Validate("abcdef")
	require.NoError(t, err)
	assert.Equal(t, "abcdef", got)
	assert.False(t, validator.IsReserved("abcdef"))
}

func TestValidateSenderAddress(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
		valid    bool
	}{
		{"Bare address", "friend@ok.com", "friend@ok.com", true},
		{"Display name", "Friend <friend@ok.com>", "friend@ok.com", true},
		{"Case preserved", "Friend@OK.com", "Friend@OK.com", true},
		{"No @", "friend.ok.com", "", false},
		{"Empty", "", "", false},
		{"Spaces", "friend @ok.com", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidateSenderAddress(tt.input)
			if !tt.valid {
				assert.ErrorIs(t, err, ErrMalformedAddress)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}
