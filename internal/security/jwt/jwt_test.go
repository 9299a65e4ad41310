package jwt

import (
	"testing"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_GenerateParse(t *testing.T) {
	m := NewManager("0123456789abcdef", 60, "sysadmin")
	tok, err := m.Generate(7, "jti-1")
	require.NoError(t, err)

	claims, err := m.Parse(tok)
	require.NoError(t, err)
	assert.EqualValues(t, 7, claims.UserID)
	assert.Equal(t, "jti-1", claims.JTI)
	assert.Equal(t, "sysadmin", claims.Issuer)
}

func TestManager_Rejects(t *testing.T) {
	m := NewManager("0123456789abcdef", 60, "sysadmin")

	other := NewManager("another-secret-value", 60, "sysadmin")
	tok, _ := other.Generate(7, "x")
	_, err := m.Parse(tok)
	assert.Error(t, err, "wrong secret")

	wrongIss := NewManager("0123456789abcdef", 60, "elsewhere")
	tok, _ = wrongIss.Generate(7, "x")
	_, err = m.Parse(tok)
	assert.Error(t, err, "wrong issuer")

	expired := NewManager("0123456789abcdef", -1, "sysadmin")
	tok, _ = expired.Generate(7, "x")
	_, err = m.Parse(tok)
	assert.ErrorIs(t, err, jwtlib.ErrTokenExpired)

	tok, _ = m.Generate(0, "x")
	_, err = m.Parse(tok)
	assert.Error(t, err, "no user id")

	_, err = m.Parse("not-a-token")
	assert.Error(t, err)
}
