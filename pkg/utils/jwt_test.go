package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	SetSecret("test-secret")

	token, err := GenerateToken(42, []string{"teacher"}, false)
	require.NoError(t, err)

	claims, err := ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), claims.UserID)
	assert.Equal(t, []string{"teacher"}, claims.Roles)
	assert.False(t, claims.IsAdmin)
}

func TestValidateRejectsWrongSecret(t *testing.T) {
	SetSecret("first-secret")
	token, err := GenerateToken(1, nil, true)
	require.NoError(t, err)

	SetSecret("other-secret")
	_, err = ValidateToken(token)
	assert.Error(t, err)
}
