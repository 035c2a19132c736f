package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStaticTokens(t *testing.T) {
	tokens, err := ParseStaticTokens(" dev-a=school-a:1, dev-b=school-b:2 ,")
	require.NoError(t, err)
	require.Len(t, tokens, 2)

	pat, err := tokens.FindTokenByPlainToken(context.Background(), "dev-b")
	require.NoError(t, err)
	assert.Equal(t, "school-b", pat.TenantID)
	assert.Equal(t, int64(2), pat.UserID)

	_, err = tokens.FindTokenByPlainToken(context.Background(), "nope")
	assert.Error(t, err)

	empty, err := ParseStaticTokens("")
	require.NoError(t, err)
	assert.Empty(t, empty)

	for _, bad := range []string{"dev", "dev=school-a", "dev=:1", "dev=school-a:x", "=school-a:1"} {
		_, err := ParseStaticTokens(bad)
		assert.Error(t, err, bad)
	}
}
