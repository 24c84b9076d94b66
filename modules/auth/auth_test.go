package auth

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAuthenticateSuccess(t *testing.T) {
	m := New(map[string]string{"secret-1": "acme"})
	tenant, err := m.Authenticate("secret-1")
	require.NoError(t, err)
	require.Equal(t, "acme", tenant)
}

func TestAuthenticateMissingKey(t *testing.T) {
	m := New(nil)
	_, err := m.Authenticate("")
	require.ErrorIs(t, err, ErrMissingKey)
}

func TestAuthenticateInvalidKey(t *testing.T) {
	m := New(map[string]string{"secret-1": "acme"})
	_, err := m.Authenticate("unknown")
	require.ErrorIs(t, err, ErrInvalidKey)
}

func TestParseAPIKeys(t *testing.T) {
	m, err := ParseAPIKeys("acme:secret-1,globex:secret-2")
	require.NoError(t, err)

	tenant, err := m.Authenticate("secret-1")
	require.NoError(t, err)
	require.Equal(t, "acme", tenant)

	tenant, err = m.Authenticate("secret-2")
	require.NoError(t, err)
	require.Equal(t, "globex", tenant)
}

func TestParseAPIKeysEmpty(t *testing.T) {
	m, err := ParseAPIKeys("")
	require.NoError(t, err)
	_, err = m.Authenticate("anything")
	require.ErrorIs(t, err, ErrInvalidKey)
}

func TestParseAPIKeysRejectsMalformed(t *testing.T) {
	_, err := ParseAPIKeys("acme-secret-1")
	require.Error(t, err)
}
