package jwt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndParse(t *testing.T) {
	tok, exp, err := GenerateToken("s3cret", 7, "superadmin", TypeAccess, time.Minute)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Minute), exp, 2*time.Second)

	claims, err := ParseToken("s3cret", tok, TypeAccess)
	require.NoError(t, err)
	assert.Equal(t, uint(7), claims.UserID)
	assert.Equal(t, "superadmin", claims.Role)
}

func TestParseRejectsWrongSecret(t *testing.T) {
	tok, _, err := GenerateToken("one", 1, "project-developer", TypeAccess, time.Minute)
	require.NoError(t, err)

	_, err = ParseToken("two", tok, TypeAccess)
	assert.Error(t, err)
}

func TestParseRejectsWrongType(t *testing.T) {
	tok, _, err := GenerateToken("s", 1, "project-developer", TypeRefresh, time.Minute)
	require.NoError(t, err)

	_, err = ParseToken("s", tok, TypeAccess)
	assert.Error(t, err)
}

func TestParseRejectsExpired(t *testing.T) {
	tok, _, err := GenerateToken("s", 1, "project-developer", TypeAccess, -time.Minute)
	require.NoError(t, err)

	_, err = ParseToken("s", tok, TypeAccess)
	assert.Error(t, err)
}
