package credentials

import (
	"fmt"
	"regexp"

	validation "github.com/go-ozzo/ozzo-validation"
)

var (
	digitRx           = regexp.MustCompile(`[0-9]`)
	lowerRx           = regexp.MustCompile(`[a-z]`)
	upperRx           = regexp.MustCompile(`[A-Z]`)
	nonAlphanumericRx = regexp.MustCompile(`[^a-zA-Z0-9]`)
)

// ComplexityPolicy is the default PasswordPolicy
type ComplexityPolicy struct {
	MinLength              int
	RequireDigit           bool
	RequireLowercase       bool
	RequireUppercase       bool
	RequireNonAlphanumeric bool
}

// DefaultPasswordPolicy requires twelve characters mixing digits, both
// cases and a symbol.
func DefaultPasswordPolicy() ComplexityPolicy {
	return ComplexityPolicy{
		MinLength:              12,
		RequireDigit:           true,
		RequireLowercase:       true,
		RequireUppercase:       true,
		RequireNonAlphanumeric: true,
	}
}

type policyRule struct {
	reason  string
	enabled bool
	rule    validation.Rule
}

// Validate returns a *PasswordPolicyError listing every failed rule.
func (p ComplexityPolicy) Validate(password string) error {
	if err := validation.Validate(password, validation.Required); err != nil {
		return &PasswordPolicyError{Reasons: []string{"password is required"}}
	}

	rules := []policyRule{
		{
			reason:  fmt.Sprintf("password must be at least %d characters", p.MinLength),
			enabled: p.MinLength > 0,
			rule:    validation.Length(p.MinLength, 0),
		},
		{reason: "password must contain a digit", enabled: p.RequireDigit, rule: validation.Match(digitRx)},
		{reason: "password must contain a lowercase letter", enabled: p.RequireLowercase, rule: validation.Match(lowerRx)},
		{reason: "password must contain an uppercase letter", enabled: p.RequireUppercase, rule: validation.Match(upperRx)},
		{reason: "password must contain a non alphanumeric character", enabled: p.RequireNonAlphanumeric, rule: validation.Match(nonAlphanumericRx)},
	}

	var reasons []string
	for _, r := range rules {
		if !r.enabled {
			continue
		}
		if err := validation.Validate(password, r.rule); err != nil {
			reasons = append(reasons, r.reason)
		}
	}

	if len(reasons) > 0 {
		return &PasswordPolicyError{Reasons: reasons}
	}
	return nil
}

var _ PasswordPolicy = ComplexityPolicy{}
