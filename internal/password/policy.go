package password

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/rustproof/rustproof/internal/common"
)

// CharClass names a character class the strength policy may require.
type CharClass string

const (
	ClassLower  CharClass = "lower"
	ClassUpper  CharClass = "upper"
	ClassDigit  CharClass = "digit"
	ClassSymbol CharClass = "symbol"
)

// ClassRequirement demands at least Min characters of the given class.
type ClassRequirement struct {
	Class CharClass
	Min   int
}

// Policy is the configured strength policy.
type Policy struct {
	MinLength       int
	MaxLength       int
	RequiredClasses []ClassRequirement
}

// WeakPasswordError lists every policy violation of a candidate password.
// It matches common.ErrWeakPassword via errors.Is.
type WeakPasswordError struct {
	Reasons []string
}

func (e *WeakPasswordError) Error() string {
	return "weak password: " + strings.Join(e.Reasons, "; ")
}

func (e *WeakPasswordError) Is(target error) bool {
	return target == common.ErrWeakPassword
}

// CheckStrength validates plaintext against the policy and returns a
// WeakPasswordError naming every violated rule, or nil.
func CheckStrength(plaintext string, p Policy) error {
	var reasons []string

	runes := []rune(plaintext)
	if p.MinLength > 0 && len(runes) < p.MinLength {
		reasons = append(reasons, fmt.Sprintf("must be at least %d characters", p.MinLength))
	}
	if p.MaxLength > 0 && len(runes) > p.MaxLength {
		reasons = append(reasons, fmt.Sprintf("must be at most %d characters", p.MaxLength))
	}

	counts := map[CharClass]int{}
	for _, r := range runes {
		switch {
		case unicode.IsLower(r):
			counts[ClassLower]++
		case unicode.IsUpper(r):
			counts[ClassUpper]++
		case unicode.IsDigit(r):
			counts[ClassDigit]++
		default:
			counts[ClassSymbol]++
		}
	}
	for _, req := range p.RequiredClasses {
		if counts[req.Class] < req.Min {
			reasons = append(reasons, fmt.Sprintf("must contain at least %d %s character(s)", req.Min, req.Class))
		}
	}

	if len(reasons) > 0 {
		return &WeakPasswordError{Reasons: reasons}
	}
	return nil
}
