package credentials_test

import (
	"context"
	"testing"

	"github.com/goliatone/go-credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComplexityPolicy(t *testing.T) {
	policy := credentials.DefaultPasswordPolicy()

	tests := []struct {
		name     string
		password string
		reasons  []string
	}{
		{name: "strong", password: strongPassword},
		{name: "empty", password: "", reasons: []string{"password is required"}},
		{
			name:     "short lowercase",
			password: "abc",
			reasons: []string{
				"password must be at least 12 characters",
				"password must contain a digit",
				"password must contain an uppercase letter",
				"password must contain a non alphanumeric character",
			},
		},
		{
			name:     "missing symbol",
			password: "Abcdefghijk1",
			reasons:  []string{"password must contain a non alphanumeric character"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := policy.Validate(tt.password)
			if tt.reasons == nil {
				assert.NoError(t, err)
				return
			}

			var policyErr *credentials.PasswordPolicyError
			require.ErrorAs(t, err, &policyErr)
			assert.Equal(t, tt.reasons, policyErr.Reasons)
		})
	}
}

func TestComplexityPolicyRelaxed(t *testing.T) {
	policy := credentials.ComplexityPolicy{MinLength: 4}

	assert.NoError(t, policy.Validate("abcd"))
	assert.Error(t, policy.Validate("abc"))
}

func TestCustomPasswordPolicyIsUsed(t *testing.T) {
	f := newFixture(t, credentials.WithPasswordPolicy(credentials.ComplexityPolicy{MinLength: 4}))
	account := f.account(t, "mia", strongPassword)

	assert.NoError(t, f.manager.Validator().ChangePassword(context.Background(), account.ID, strongPassword, "easy"))
}
