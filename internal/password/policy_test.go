package password

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/rustproof/rustproof/internal/common"
)

func defaultPolicy() Policy {
	return Policy{
		MinLength: 8,
		MaxLength: 72,
		RequiredClasses: []ClassRequirement{
			{Class: ClassLower, Min: 1},
			{Class: ClassUpper, Min: 1},
			{Class: ClassDigit, Min: 1},
		},
	}
}

func TestCheckStrength(t *testing.T) {
	tests := []struct {
		name        string
		plain       string
		wantWeak    bool
		wantReasons int
	}{
		{"strong password passes", "Passw0rd!", false, 0},
		{"too short", "abc", true, 3}, // length + missing upper + missing digit
		{"missing digit", "Password!", true, 1},
		{"missing upper and digit", "password", true, 2},
		{"empty", "", true, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckStrength(tt.plain, defaultPolicy())
			if !tt.wantWeak {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, common.ErrWeakPassword)
			var weak *WeakPasswordError
			if !errors.As(err, &weak) {
				t.Fatalf("expected WeakPasswordError, got %T", err)
			}
			assert.Len(t, weak.Reasons, tt.wantReasons, "reasons: %v", weak.Reasons)
		})
	}
}

func TestCheckStrength_MaxLengthCap(t *testing.T) {
	p := Policy{MaxLength: 4}
	err := CheckStrength("abcde", p)
	assert.ErrorIs(t, err, common.ErrWeakPassword)
	assert.NoError(t, CheckStrength("abcd", p))
}
